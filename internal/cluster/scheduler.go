// Package cluster schedules cluster-wide configuration updates after the
// node inventory changes.
package cluster

import (
	"context"
	"log/slog"
	"strings"

	"github.com/UnivaCorporation/tortuga-sub001/internal/resourceadapter"
)

// Scheduler coalesces update requests and runs the update command from a
// single goroutine. Requests made while an update is queued are merged into it.
type Scheduler struct {
	command []string
	run     resourceadapter.CommandRunner
	pending chan string
	logger  *slog.Logger
}

// NewScheduler creates a scheduler for command. An empty command turns
// updates into log entries.
func NewScheduler(command string, run resourceadapter.CommandRunner, logger *slog.Logger) *Scheduler {
	if run == nil {
		run = resourceadapter.ExecRunner
	}
	return &Scheduler{
		command: strings.Fields(command),
		run:     run,
		pending: make(chan string, 1),
		logger:  logger.With("component", "cluster-update"),
	}
}

// ScheduleClusterUpdate queues an update without blocking
func (s *Scheduler) ScheduleClusterUpdate(ctx context.Context, reason string) error {
	select {
	case s.pending <- reason:
		s.logger.Debug("Cluster update scheduled", "reason", reason)
	default:
		s.logger.Debug("Cluster update already pending", "reason", reason)
	}
	return nil
}

// Run processes queued updates until ctx is done
func (s *Scheduler) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case reason := <-s.pending:
			s.update(ctx, reason)
		}
	}
}

func (s *Scheduler) update(ctx context.Context, reason string) {
	if len(s.command) == 0 {
		s.logger.Info("Cluster update requested, no update command configured", "reason", reason)
		return
	}

	s.logger.Info("Running cluster update", "reason", reason, "command", s.command[0])
	output, err := s.run(ctx, s.command[0], s.command[1:]...)
	if err != nil {
		s.logger.Error("Cluster update failed", "error", err, "output", strings.TrimSpace(string(output)))
		return
	}
	s.logger.Debug("Cluster update finished")
}

// Flush runs a queued update, if any, on the calling goroutine. One-shot
// commands use it in place of Run.
func (s *Scheduler) Flush(ctx context.Context) {
	select {
	case reason := <-s.pending:
		s.update(ctx, reason)
	default:
	}
}
