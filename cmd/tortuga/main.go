package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/UnivaCorporation/tortuga-sub001/internal/config"
	"github.com/UnivaCorporation/tortuga-sub001/internal/log"
	"github.com/fatih/color"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cfg *config.Config
var logger *slog.Logger

var tortugaCmd = &cobra.Command{
	Use:   "tortuga",
	Short: "Tortuga provisions and tracks cluster nodes.",

	SilenceUsage:  true,
	SilenceErrors: true,

	PersistentPreRunE: func(cmd *cobra.Command, args []string) (err error) {
		if cfg, err = config.Load(viper.New(), cmd.Root().PersistentFlags()); err != nil {
			return err
		}

		logger, err = log.New(os.Stderr, log.Options{
			Format: cfg.LogFormat,
			Level:  cfg.LogLevel,
			Source: cfg.LogSource,
		})
		return err
	},
}

func init() {
	tortugaCmd.AddCommand(serveCmd)
	tortugaCmd.AddCommand(migrateCmd)
	tortugaCmd.AddCommand(loadTopologyCmd)
	tortugaCmd.AddCommand(addNodesCmd)
	tortugaCmd.AddCommand(getNodeRequestsCmd)
	tortugaCmd.AddCommand(deleteNodeCmd)

	config.RegisterFlags(tortugaCmd.PersistentFlags())
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	tortugaCmd.SetOut(os.Stdout)
	if err := tortugaCmd.ExecuteContext(ctx); err != nil {
		lo.Must(fmt.Fprintln(os.Stderr, color.HiRedString(fmt.Sprint(err))))
		os.Exit(1)
	}
}
