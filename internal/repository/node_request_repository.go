package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/UnivaCorporation/tortuga-sub001/internal/datastore"
	"github.com/UnivaCorporation/tortuga-sub001/internal/domain"
)

// NodeRequestRepository persists asynchronous add-nodes requests
type NodeRequestRepository interface {
	Save(ctx context.Context, request domain.NodeRequest) (domain.NodeRequest, error)
	FindBySession(ctx context.Context, session string) (domain.NodeRequest, error)
	FindAll(ctx context.Context) ([]domain.NodeRequest, error)

	// ClaimNextPending atomically moves the oldest pending request to running.
	// Returns ErrNotFound when nothing is pending.
	ClaimNextPending(ctx context.Context) (domain.NodeRequest, error)

	// Finish records the terminal state of a request
	Finish(ctx context.Context, id int64, state, message string) error

	// ResetRunning returns requests left running by a previous process to pending
	ResetRunning(ctx context.Context) (int64, error)
}

type nodeRequestRepositoryImpl struct {
	ds *datastore.Datastore
}

// NewNodeRequestRepository creates a new node request repository
func NewNodeRequestRepository(ds *datastore.Datastore) NodeRequestRepository {
	return &nodeRequestRepositoryImpl{ds: ds}
}

const nodeRequestColumns = "id, action, request, add_host_session, state, message, created_at, updated_at"

func scanNodeRequest(row rowScanner) (domain.NodeRequest, error) {
	var nr domain.NodeRequest
	var body, createdAt, updatedAt string
	if err := row.Scan(&nr.ID, &nr.Action, &body, &nr.AddHostSession, &nr.State, &nr.Message, &createdAt, &updatedAt); err != nil {
		return domain.NodeRequest{}, err
	}
	nr.CreatedAt = parseTimestamp(createdAt)
	nr.UpdatedAt = parseTimestamp(updatedAt)
	if err := json.Unmarshal([]byte(body), &nr.Request); err != nil {
		return domain.NodeRequest{}, fmt.Errorf("failed to decode node request %d: %w", nr.ID, err)
	}
	return nr, nil
}

// parseTimestamp accepts both the driver's RFC 3339 rendering and SQLite's CURRENT_TIMESTAMP text
func parseTimestamp(s string) time.Time {
	for _, layout := range []string{time.RFC3339Nano, time.DateTime} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// Save creates a new node request
func (r *nodeRequestRepositoryImpl) Save(ctx context.Context, nr domain.NodeRequest) (domain.NodeRequest, error) {
	if nr.AddHostSession == "" {
		return domain.NodeRequest{}, fmt.Errorf("node request has no add-host session: %w", ErrInvalidEntity)
	}
	if nr.Action == "" {
		nr.Action = domain.NodeRequestActionAdd
	}
	if nr.State == "" {
		nr.State = domain.NodeRequestPending
	}

	body, err := json.Marshal(nr.Request)
	if err != nil {
		return domain.NodeRequest{}, fmt.Errorf("failed to encode node request: %w", err)
	}

	result, err := r.ds.DB.ExecContext(ctx, `
		INSERT INTO node_requests (action, request, add_host_session, state, message)
		VALUES (?, ?, ?, ?, ?)`,
		nr.Action, string(body), nr.AddHostSession, nr.State, nr.Message)
	if err != nil {
		return domain.NodeRequest{}, wrapWriteError(err, "failed to create node request for session %s", nr.AddHostSession)
	}
	if nr.ID, err = result.LastInsertId(); err != nil {
		return domain.NodeRequest{}, fmt.Errorf("failed to get node request ID: %w", err)
	}
	return nr, nil
}

// FindBySession finds the request belonging to an add-host session
func (r *nodeRequestRepositoryImpl) FindBySession(ctx context.Context, session string) (domain.NodeRequest, error) {
	row := r.ds.DB.QueryRowContext(ctx, "SELECT "+nodeRequestColumns+" FROM node_requests WHERE add_host_session = ?", session)
	nr, err := scanNodeRequest(row)
	if err != nil {
		return domain.NodeRequest{}, wrapReadError(err, "node request for session %s", session)
	}
	return nr, nil
}

// FindAll returns all node requests, oldest first
func (r *nodeRequestRepositoryImpl) FindAll(ctx context.Context) ([]domain.NodeRequest, error) {
	rows, err := r.ds.DB.QueryContext(ctx, "SELECT "+nodeRequestColumns+" FROM node_requests ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to find node requests: %w", err)
	}
	defer rows.Close()

	var requests []domain.NodeRequest
	for rows.Next() {
		nr, err := scanNodeRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, nr)
	}
	return requests, rows.Err()
}

// ClaimNextPending moves the oldest pending request to running
func (r *nodeRequestRepositoryImpl) ClaimNextPending(ctx context.Context) (domain.NodeRequest, error) {
	var claimed domain.NodeRequest
	err := r.ds.WithTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, "SELECT "+nodeRequestColumns+" FROM node_requests WHERE state = ? ORDER BY id LIMIT 1", domain.NodeRequestPending)
		nr, err := scanNodeRequest(row)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrNotFound
			}
			return fmt.Errorf("failed to find pending node request: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			"UPDATE node_requests SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
			domain.NodeRequestRunning, nr.ID); err != nil {
			return fmt.Errorf("failed to claim node request %d: %w", nr.ID, err)
		}
		nr.State = domain.NodeRequestRunning
		claimed = nr
		return nil
	})
	return claimed, err
}

// Finish records the terminal state of a request
func (r *nodeRequestRepositoryImpl) Finish(ctx context.Context, id int64, state, message string) error {
	result, err := r.ds.DB.ExecContext(ctx,
		"UPDATE node_requests SET state = ?, message = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?",
		state, message, id)
	if err != nil {
		return fmt.Errorf("failed to update node request %d: %w", id, err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("node request with ID %d: %w", id, ErrNotFound)
	}
	return nil
}

// ResetRunning re-queues requests interrupted by a restart
func (r *nodeRequestRepositoryImpl) ResetRunning(ctx context.Context) (int64, error) {
	result, err := r.ds.DB.ExecContext(ctx,
		"UPDATE node_requests SET state = ?, updated_at = CURRENT_TIMESTAMP WHERE state = ?",
		domain.NodeRequestPending, domain.NodeRequestRunning)
	if err != nil {
		return 0, fmt.Errorf("failed to reset running node requests: %w", err)
	}
	return result.RowsAffected()
}
