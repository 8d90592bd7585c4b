// Package tasks processes add-nodes requests asynchronously. Requests are
// persisted so they survive restarts and are executed by workers.
package tasks

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/UnivaCorporation/tortuga-sub001/internal/domain"
)

// Requests persists node requests
type Requests interface {
	Save(ctx context.Context, request domain.NodeRequest) (domain.NodeRequest, error)
	ClaimNextPending(ctx context.Context) (domain.NodeRequest, error)
	Finish(ctx context.Context, id int64, state, message string) error
	ResetRunning(ctx context.Context) (int64, error)
}

// Sessions creates the add-host session a queued request reports to
type Sessions interface {
	CreateSession(ctx context.Context) (string, error)
	UpdateStatus(ctx context.Context, id, msg string)
}

// Queue accepts add-nodes requests and wakes up workers
type Queue struct {
	requests Requests
	sessions Sessions
	signal   chan struct{}
	logger   *slog.Logger
}

// NewQueue creates a request queue
func NewQueue(requests Requests, sessions Sessions, logger *slog.Logger) *Queue {
	return &Queue{
		requests: requests,
		sessions: sessions,
		signal:   make(chan struct{}, 1),
		logger:   logger.With("component", "task-queue"),
	}
}

// Enqueue persists req and returns the add-host session tracking it
func (q *Queue) Enqueue(ctx context.Context, req domain.AddNodesRequest) (string, error) {
	session, err := q.sessions.CreateSession(ctx)
	if err != nil {
		return "", err
	}
	req.AddHostSession = session

	_, err = q.requests.Save(ctx, domain.NodeRequest{
		Action:         domain.NodeRequestActionAdd,
		Request:        req,
		AddHostSession: session,
		State:          domain.NodeRequestPending,
	})
	if err != nil {
		return "", fmt.Errorf("failed to queue add nodes request: %w", err)
	}

	q.sessions.UpdateStatus(ctx, session, "Add nodes request queued")
	q.logger.Info("Queued add nodes request", "session", session, "hardwareProfile", req.HardwareProfile)

	q.Notify()
	return session, nil
}

// Notify wakes up an idle worker
func (q *Queue) Notify() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}
