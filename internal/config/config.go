package config

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/UnivaCorporation/tortuga-sub001/internal/datastore"
	"github.com/samber/lo"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	_ "modernc.org/sqlite"
)

// Configuration keys, shared by flags, environment variables and the config file
const (
	ConfigFile            = "config"
	DBPath                = "db-path"
	Listen                = "listen"
	LogFormat             = "log-format"
	LogLevel              = "log-level"
	LogSource             = "log-source"
	ObjectStore           = "object-store"
	RedisAddress          = "redis-address"
	DNSZone               = "dns-zone"
	HookScript            = "hook-script"
	BootConfigDir         = "boot-config-dir"
	ClusterUpdateCommand  = "cluster-update-command"
	Workers               = "workers"
	DiscoveryLeasesFile   = "discovery-leases-file"
	DiscoveryPollInterval = "discovery-poll-interval"
)

// EnvPrefix prefixes every environment variable, e.g. TORTUGA_DB_PATH
const EnvPrefix = "tortuga"

// Config holds all configuration for the tortuga service
type Config struct {
	DBPath                string
	Listen                string
	LogFormat             string
	LogLevel              string
	LogSource             bool
	ObjectStore           string
	RedisAddress          string
	DNSZone               string
	HookScript            string
	BootConfigDir         string
	ClusterUpdateCommand  string
	Workers               int
	DiscoveryLeasesFile   string
	DiscoveryPollInterval time.Duration
}

// NewConfig creates a new Config with default values
func NewConfig() *Config {
	return &Config{
		DBPath:                "~/tortuga/data/tortuga.db",
		Listen:                ":8080",
		LogFormat:             "text",
		LogLevel:              "INFO",
		ObjectStore:           "memory",
		RedisAddress:          "localhost:6379",
		Workers:               1,
		DiscoveryLeasesFile:   "/var/lib/dhcpd/dhcpd.leases",
		DiscoveryPollInterval: 2 * time.Second,
	}
}

// RegisterFlags adds every configuration key to flags, using the NewConfig defaults
func RegisterFlags(flags *flag.FlagSet) {
	defaults := NewConfig()

	flags.String(ConfigFile, "", "optional YAML configuration file")
	flags.String(DBPath, defaults.DBPath, "path of the SQLite database")
	flags.String(Listen, defaults.Listen, "HTTP listen address")
	flags.String(LogFormat, defaults.LogFormat, "log format (json, text)")
	flags.String(LogLevel, defaults.LogLevel, "minimum log level")
	flags.Bool(LogSource, defaults.LogSource, "add source code location to logs")
	flags.String(ObjectStore, defaults.ObjectStore, "add-host session store (memory, redis)")
	flags.String(RedisAddress, defaults.RedisAddress, "redis address used by the redis object store")
	flags.String(DNSZone, defaults.DNSZone, "DNS zone appended to generated host names")
	flags.String(HookScript, defaults.HookScript, "script run by the default resource adapter on node events")
	flags.String(BootConfigDir, defaults.BootConfigDir, "pxelinux configuration directory written for local nodes")
	flags.String(ClusterUpdateCommand, defaults.ClusterUpdateCommand, "command run when the cluster configuration changes")
	flags.Int(Workers, defaults.Workers, "number of add-nodes request workers")
	flags.String(DiscoveryLeasesFile, defaults.DiscoveryLeasesFile, "DHCP leases file polled during node discovery")
	flags.Duration(DiscoveryPollInterval, defaults.DiscoveryPollInterval, "how often discovery polls for new MAC addresses")
}

// Load binds flags and TORTUGA_ environment variables into v, reads the
// optional config file and returns the resulting Config.
func Load(v *viper.Viper, flags *flag.FlagSet) (*Config, error) {
	v.SetEnvPrefix(EnvPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	lo.Must0(v.BindPFlags(flags))

	if file := v.GetString(ConfigFile); file != "" {
		v.SetConfigFile(file)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	c := &Config{
		DBPath:                v.GetString(DBPath),
		Listen:                v.GetString(Listen),
		LogFormat:             v.GetString(LogFormat),
		LogLevel:              v.GetString(LogLevel),
		LogSource:             v.GetBool(LogSource),
		ObjectStore:           v.GetString(ObjectStore),
		RedisAddress:          v.GetString(RedisAddress),
		DNSZone:               v.GetString(DNSZone),
		HookScript:            v.GetString(HookScript),
		BootConfigDir:         v.GetString(BootConfigDir),
		ClusterUpdateCommand:  v.GetString(ClusterUpdateCommand),
		Workers:               v.GetInt(Workers),
		DiscoveryLeasesFile:   v.GetString(DiscoveryLeasesFile),
		DiscoveryPollInterval: v.GetDuration(DiscoveryPollInterval),
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

// Validate checks values that cannot be expressed through flag types
func (c *Config) Validate() error {
	switch c.ObjectStore {
	case "memory", "redis":
	default:
		return fmt.Errorf("unknown object store '%s'", c.ObjectStore)
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.DiscoveryPollInterval <= 0 {
		return fmt.Errorf("discovery poll interval must be positive")
	}
	return nil
}

// InitializeDatabase creates and configures the database connection
func (c *Config) InitializeDatabase(logger *slog.Logger) (*datastore.Datastore, error) {
	dbPath := c.expandPath(c.DBPath)

	// Ensure database directory exists
	dbDir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dbDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite", datastore.DSN(dbPath))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	OptimizeDatabaseConnection(db)

	if err := ApplyPragmaOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply performance optimizations: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	if err := datastore.Migrate(db, logger); err != nil {
		_ = db.Close()
		return nil, err
	}

	return datastore.FromDB(db), nil
}

// ExpandedDBPath returns DBPath with a leading ~ resolved
func (c *Config) ExpandedDBPath() string {
	return c.expandPath(c.DBPath)
}

// expandPath expands ~ to home directory
func (c *Config) expandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return path
	}

	return filepath.Join(homeDir, path[2:])
}
