package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/UnivaCorporation/tortuga-sub001/internal/api"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the add-nodes request workers",
	Args:  cobra.NoArgs,

	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cfg, logger)
		if err != nil {
			return err
		}
		defer func() {
			if err := a.Close(); err != nil {
				logger.Warn("Shutdown failed", "error", err)
			}
		}()

		if err := a.metrics.TrackReservations(a.reservations); err != nil {
			return err
		}

		router := api.NewRouter(api.NewAPI(api.Config{
			Queue:     a.queue,
			Sessions:  a.sessions,
			Nodes:     a.nodes,
			Discovery: a.adapter,
			Gatherer:  a.registry,
			Logger:    logger,
		}))
		server := &http.Server{
			Addr:              cfg.Listen,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Nothing may be running yet if recovery fails
		workers, err := a.newWorkers(cmd.Context(), cfg.Workers)
		if err != nil {
			return err
		}

		g, ctx := errgroup.WithContext(cmd.Context())

		g.Go(func() error {
			logger.Info("Starting HTTP server", "listen", cfg.Listen)
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-ctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		})

		g.Go(func() error {
			return a.cluster.Run(ctx)
		})

		for _, worker := range workers {
			worker := worker
			g.Go(func() error {
				return worker.Run(ctx)
			})
		}

		if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
			return err
		}

		cmd.PrintErrln(color.HiGreenString("Tortuga stopped"))
		return nil
	},
}
