package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/UnivaCorporation/tortuga-sub001/internal/addhost"
	"github.com/UnivaCorporation/tortuga-sub001/internal/cluster"
	"github.com/UnivaCorporation/tortuga-sub001/internal/config"
	"github.com/UnivaCorporation/tortuga-sub001/internal/datastore"
	"github.com/UnivaCorporation/tortuga-sub001/internal/kitactions"
	"github.com/UnivaCorporation/tortuga-sub001/internal/metrics"
	"github.com/UnivaCorporation/tortuga-sub001/internal/node"
	"github.com/UnivaCorporation/tortuga-sub001/internal/objectstore"
	"github.com/UnivaCorporation/tortuga-sub001/internal/repository"
	"github.com/UnivaCorporation/tortuga-sub001/internal/reservation"
	"github.com/UnivaCorporation/tortuga-sub001/internal/resourceadapter"
	"github.com/UnivaCorporation/tortuga-sub001/internal/resourceadapter/local"
	"github.com/UnivaCorporation/tortuga-sub001/internal/tasks"
	"github.com/gomodule/redigo/redis"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

// app holds the wired services shared by the commands
type app struct {
	ds           *datastore.Datastore
	redisPool    *redis.Pool
	registry     *prometheus.Registry
	metrics      *metrics.Metrics
	reservations *reservation.Store
	requests     repository.NodeRequestRepository
	sessions     *addhost.SessionManager
	adapter      *local.Adapter
	addHosts     *addhost.Manager
	nodes        *node.Manager
	cluster      *cluster.Scheduler
	queue        *tasks.Queue
	logger       *slog.Logger
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	ds, err := cfg.InitializeDatabase(logger)
	if err != nil {
		return nil, err
	}

	a := &app{
		ds:           ds,
		registry:     prometheus.NewRegistry(),
		reservations: reservation.NewStore(),
		logger:       logger,
	}

	a.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	if a.metrics, err = metrics.New(a.registry); err != nil {
		_ = ds.Close()
		return nil, err
	}

	var store objectstore.Store
	switch cfg.ObjectStore {
	case "redis":
		a.redisPool = objectstore.NewRedisPool(cfg.RedisAddress)
		store = objectstore.NewRedisStore(addhost.SessionNamespace, a.redisPool)
	default:
		store = objectstore.NewMemoryStore(addhost.SessionNamespace)
	}

	nodeRepo := repository.NewNodeRepository(ds)
	hardwareProfiles := repository.NewHardwareProfileRepository(ds)
	softwareProfiles := repository.NewSoftwareProfileRepository(ds.DB)
	tags := repository.NewTagRepository(ds.DB)
	a.requests = repository.NewNodeRequestRepository(ds)

	server := addhost.NewServer(nodeRepo, a.reservations, logger)
	a.sessions = addhost.NewSessionManager(store, nodeRepo, logger)

	kit := kitactions.NewManager(logger)
	kit.Register(kitactions.AuditLog{Logger: logger})

	a.cluster = cluster.NewScheduler(cfg.ClusterUpdateCommand, resourceadapter.ExecRunner, logger)

	var bootConfig local.BootConfigWriter = local.LogBootConfig{Logger: logger}
	if cfg.BootConfigDir != "" {
		bootConfig = local.PXEConfigDir{Dir: cfg.BootConfigDir}
	}

	a.adapter = local.New(local.Config{
		Server:       server,
		Kit:          kit,
		Hook:         resourceadapter.NewHookScript(cfg.HookScript, resourceadapter.ExecRunner, logger),
		BootConfig:   bootConfig,
		DNSZone:      cfg.DNSZone,
		Discovery:    local.LeasesFile{Path: cfg.DiscoveryLeasesFile},
		PollInterval: cfg.DiscoveryPollInterval,
		Logger:       logger,
	})
	adapters := resourceadapter.NewRegistry()
	adapters.Register(local.Name, func() (resourceadapter.Adapter, error) {
		return a.adapter, nil
	})

	a.addHosts = addhost.NewManager(addhost.ManagerConfig{
		HardwareProfiles: hardwareProfiles,
		SoftwareProfiles: softwareProfiles,
		Tags:             tags,
		Nodes:            nodeRepo,
		Adapters:         adapters,
		Server:           server,
		Sessions:         a.sessions,
		Kit:              kit,
		Cluster:          a.cluster,
		Metrics:          a.metrics,
		Logger:           logger,
	})

	a.nodes = node.NewManager(node.Config{
		Nodes:            nodeRepo,
		HardwareProfiles: hardwareProfiles,
		SoftwareProfiles: softwareProfiles,
		Tags:             tags,
		Adapters:         adapters,
		Kit:              kit,
		Sessions:         a.sessions,
		Cluster:          a.cluster,
		Metrics:          a.metrics,
		Logger:           logger,
	})

	a.queue = tasks.NewQueue(a.requests, a.sessions, logger)

	return a, nil
}

// newWorkers creates n request workers and re-queues requests left running
// by a previous process
func (a *app) newWorkers(ctx context.Context, n int) ([]*tasks.Worker, error) {
	workers := make([]*tasks.Worker, n)
	for i := range workers {
		workers[i] = tasks.NewWorker(a.queue, a.addHosts, tasks.WorkerConfig{}, a.metrics, a.logger.With("worker", i))
	}
	if err := workers[0].Recover(ctx); err != nil {
		return nil, fmt.Errorf("failed to recover node requests: %w", err)
	}
	return workers, nil
}

// flush runs cluster updates requested during a one-shot command
func (a *app) flush(ctx context.Context) {
	a.cluster.Flush(ctx)
}

func (a *app) Close() error {
	var result *multierror.Error
	if a.redisPool != nil {
		if err := a.redisPool.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("failed to close redis pool: %w", err))
		}
	}
	if err := a.ds.Close(); err != nil {
		result = multierror.Append(result, fmt.Errorf("failed to close database: %w", err))
	}
	return result.ErrorOrNil()
}
