package addhost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/UnivaCorporation/tortuga-sub001/internal/domain"
	"github.com/UnivaCorporation/tortuga-sub001/internal/objectstore"
	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
)

// SessionNamespace is the object store namespace holding add-host sessions
const SessionNamespace = "add-host-manager"

// SessionNodes finds the nodes created by an add-host session
type SessionNodes interface {
	FindByAddHostSession(ctx context.Context, session string) ([]domain.Node, error)
}

// SessionStatus is a snapshot of an add-host session
type SessionStatus struct {
	domain.AddHostStatus
	NodeDetails []domain.Node `json:"nodeDetails,omitempty"`
}

type sessionRecord struct {
	Status domain.AddHostStatus `json:"status"`
}

// SessionManager records add-host progress in an object store
type SessionManager struct {
	mu     sync.Mutex
	store  objectstore.Store
	nodes  SessionNodes
	logger *slog.Logger
	newID  func() string
}

// NewSessionManager creates a session manager
func NewSessionManager(store objectstore.Store, nodes SessionNodes, logger *slog.Logger) *SessionManager {
	return &SessionManager{
		store:  store,
		nodes:  nodes,
		logger: logger,
		newID:  func() string { return uuid.NewString() },
	}
}

// CreateSession allocates a new session with an empty status
func (m *SessionManager) CreateSession(ctx context.Context) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.newID()
	if err := m.write(ctx, id, domain.AddHostStatus{Messages: []string{}}); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateStatus appends msg to the session messages. Unknown sessions are
// logged and otherwise ignored.
func (m *SessionManager) UpdateStatus(ctx context.Context, id, msg string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.modify(ctx, id, func(status *domain.AddHostStatus) {
		status.Messages = append(status.Messages, msg)
	})
}

// SetRunning records whether the session is still being processed
func (m *SessionManager) SetRunning(ctx context.Context, id string, running bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.modify(ctx, id, func(status *domain.AddHostStatus) {
		status.Running = running
	})
}

// AddNodes records node names created by the session
func (m *SessionManager) AddNodes(ctx context.Context, id string, names []string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.modify(ctx, id, func(status *domain.AddHostStatus) {
		status.Nodes = append(status.Nodes, names...)
	})
}

func (m *SessionManager) modify(ctx context.Context, id string, fn func(*domain.AddHostStatus)) {
	status, err := m.read(ctx, id)
	if err != nil {
		m.logger.Warn("Unable to update add-host session", "session", id, "error", err)
		return
	}

	fn(&status)

	if err := m.write(ctx, id, status); err != nil {
		m.logger.Warn("Unable to update add-host session", "session", id, "error", err)
	}
}

// GetStatus returns a copy of the session status with messages starting at
// startMessageIndex. With includeNodes the session's persisted nodes are
// attached.
func (m *SessionManager) GetStatus(ctx context.Context, id string, startMessageIndex int, includeNodes bool) (SessionStatus, error) {
	var result SessionStatus

	if includeNodes {
		nodes, err := m.nodes.FindByAddHostSession(ctx, id)
		if err != nil {
			return SessionStatus{}, fmt.Errorf("failed to load nodes of session %s: %w", id, err)
		}
		result.NodeDetails = nodes
	}

	m.mu.Lock()
	status, err := m.read(ctx, id)
	m.mu.Unlock()
	if err != nil {
		return SessionStatus{}, err
	}

	start := min(max(startMessageIndex, 0), len(status.Messages))
	status.Messages = append([]string{}, status.Messages[start:]...)
	result.AddHostStatus = status

	return result, nil
}

// DeleteSessions removes sessions, skipping unknown ids. Failures are
// logged and returned together.
func (m *SessionManager) DeleteSessions(ctx context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var result *multierror.Error
	for _, id := range ids {
		exists, err := m.store.Exists(ctx, id)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("session %s: %w", id, err))
			continue
		}
		if !exists {
			continue
		}
		if err := m.store.Delete(ctx, id); err != nil {
			result = multierror.Append(result, fmt.Errorf("session %s: %w", id, err))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		m.logger.Warn("Unable to delete add-host sessions", "error", err)
		return err
	}
	return nil
}

func (m *SessionManager) read(ctx context.Context, id string) (domain.AddHostStatus, error) {
	obj, err := m.store.Get(ctx, id)
	if err != nil {
		if errors.Is(err, objectstore.ErrNotFound) {
			return domain.AddHostStatus{}, fmt.Errorf("add-host session [%s]: %w", id, ErrNotFound)
		}
		return domain.AddHostStatus{}, err
	}

	var record sessionRecord
	if err := objectstore.Decode(obj, &record); err != nil {
		return domain.AddHostStatus{}, err
	}
	if record.Status.Messages == nil {
		record.Status.Messages = []string{}
	}
	return record.Status, nil
}

func (m *SessionManager) write(ctx context.Context, id string, status domain.AddHostStatus) error {
	obj, err := objectstore.Encode(sessionRecord{Status: status})
	if err != nil {
		return err
	}
	if err := m.store.Set(ctx, id, obj); err != nil {
		return fmt.Errorf("failed to save add-host session %s: %w", id, err)
	}
	return nil
}
