package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/UnivaCorporation/tortuga-sub001/internal/addhost"
	"github.com/UnivaCorporation/tortuga-sub001/internal/domain"
	"github.com/UnivaCorporation/tortuga-sub001/internal/metrics"
	"github.com/UnivaCorporation/tortuga-sub001/internal/repository"
	"github.com/cenkalti/backoff"
)

// AddHoster runs the add-host workflow
type AddHoster interface {
	AddHosts(ctx context.Context, req *domain.AddNodesRequest) ([]*domain.Node, error)
}

// WorkerConfig tunes request processing
type WorkerConfig struct {
	// MaxRetries bounds the retries of a request failing with a conflict
	MaxRetries uint64
	// PollInterval is how often the queue is checked without a notification
	PollInterval time.Duration
	// NewBackOff returns the retry schedule for one request
	NewBackOff func() backoff.BackOff
}

// Worker executes queued requests one at a time
type Worker struct {
	queue   *Queue
	hosts   AddHoster
	cfg     WorkerConfig
	metrics *metrics.Metrics
	logger  *slog.Logger
}

func getExponentialBackoff(initialInterval time.Duration, multiplier float64, maxInterval time.Duration, maxElapsedTime time.Duration) *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = initialInterval
	b.Multiplier = multiplier
	b.MaxInterval = maxInterval
	b.MaxElapsedTime = maxElapsedTime
	return b
}

// NewWorker creates a worker draining queue
func NewWorker(queue *Queue, hosts AddHoster, cfg WorkerConfig, m *metrics.Metrics, logger *slog.Logger) *Worker {
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 5
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 30 * time.Second
	}
	if cfg.NewBackOff == nil {
		cfg.NewBackOff = func() backoff.BackOff {
			return getExponentialBackoff(200*time.Millisecond, 2, 5*time.Second, time.Minute)
		}
	}
	return &Worker{
		queue:   queue,
		hosts:   hosts,
		cfg:     cfg,
		metrics: m,
		logger:  logger.With("component", "task-worker"),
	}
}

// Recover re-queues requests that were running when the process stopped
func (w *Worker) Recover(ctx context.Context) error {
	n, err := w.queue.requests.ResetRunning(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		w.logger.Info("Re-queued interrupted node requests", "count", n)
	}
	return nil
}

// Run processes requests until ctx is done
func (w *Worker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.cfg.PollInterval)
	defer ticker.Stop()

	for {
		if _, err := w.ProcessPending(ctx); err != nil {
			w.logger.Error("Unable to process node requests", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-w.queue.signal:
		case <-ticker.C:
		}
	}
}

// ProcessPending executes pending requests until none is left and returns
// how many were processed
func (w *Worker) ProcessPending(ctx context.Context) (int, error) {
	processed := 0
	for ctx.Err() == nil {
		nr, err := w.queue.requests.ClaimNextPending(ctx)
		if errors.Is(err, repository.ErrNotFound) {
			return processed, nil
		}
		if err != nil {
			return processed, err
		}

		w.process(ctx, nr)
		processed++
	}
	return processed, nil
}

func (w *Worker) process(ctx context.Context, nr domain.NodeRequest) {
	logger := w.logger.With("session", nr.AddHostSession, "request", nr.ID)
	logger.Info("Processing node request")

	var added int
	operation := func() error {
		req := nr.Request
		req.AddHostSession = nr.AddHostSession
		nodes, err := w.hosts.AddHosts(ctx, &req)
		if err == nil {
			added = len(nodes)
			return nil
		}
		if errors.Is(err, addhost.ErrConflict) {
			return err
		}
		return backoff.Permanent(err)
	}
	notify := func(err error, wait time.Duration) {
		logger.Warn("Node request conflicted, retrying", "error", err, "wait", wait)
	}

	b := backoff.WithContext(backoff.WithMaxRetries(w.cfg.NewBackOff(), w.cfg.MaxRetries), ctx)
	err := backoff.RetryNotify(operation, b, notify)

	state, message := domain.NodeRequestDone, fmt.Sprintf("Added %d node(s)", added)
	if err != nil {
		state, message = domain.NodeRequestError, err.Error()
		logger.Error("Node request failed", "error", err)
	}

	if err := w.queue.requests.Finish(context.WithoutCancel(ctx), nr.ID, state, message); err != nil {
		logger.Error("Unable to record node request result", "error", err)
	}
	w.metrics.NodeRequestFinished(state)
}
