// Package kitactions dispatches node life cycle events to the installed
// kit components.
package kitactions

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/hashicorp/go-multierror"
)

// Component is a named kit component. It receives the events for which it
// implements the matching handler interface.
type Component interface {
	Name() string
}

// PreAddHostHandler is called for each node before the add-host batch is committed
type PreAddHostHandler interface {
	PreAddHost(ctx context.Context, hwProfile, swProfile, hostname, ip string) error
}

// PostAddHostHandler is called once per committed add-host batch
type PostAddHostHandler interface {
	PostAddHost(ctx context.Context, hwProfile, swProfile string, nodes []string) error
}

// PreDeleteHostHandler is called before nodes are removed
type PreDeleteHostHandler interface {
	PreDeleteHost(ctx context.Context, hwProfile, swProfile string, nodes []string) error
}

// PostDeleteHostHandler is called after nodes have been removed
type PostDeleteHostHandler interface {
	PostDeleteHost(ctx context.Context, hwProfile, swProfile string, nodes []string) error
}

// Manager holds the registered components
type Manager struct {
	mu         sync.RWMutex
	components []Component
	logger     *slog.Logger
}

// NewManager creates an empty kit action manager
func NewManager(logger *slog.Logger) *Manager {
	return &Manager{logger: logger.With("component", "kit-actions")}
}

// Register adds c. Components are notified in registration order.
func (m *Manager) Register(c Component) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.components = append(m.components, c)
}

// Components returns the registered component names
func (m *Manager) Components() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.components))
	for _, c := range m.components {
		names = append(names, c.Name())
	}
	return names
}

func (m *Manager) snapshot() []Component {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]Component(nil), m.components...)
}

// dispatch calls fn for every component; every component is notified even
// when an earlier one fails
func (m *Manager) dispatch(event string, fn func(Component) (bool, error)) error {
	var result *multierror.Error
	for _, c := range m.snapshot() {
		handled, err := fn(c)
		if !handled {
			continue
		}
		if err != nil {
			m.logger.Warn("Kit action failed", "event", event, "kitComponent", c.Name(), "error", err)
			result = multierror.Append(result, fmt.Errorf("%s %s: %w", c.Name(), event, err))
		}
	}
	return result.ErrorOrNil()
}

// PreAddHost notifies components about a node about to be added
func (m *Manager) PreAddHost(ctx context.Context, hwProfile, swProfile, hostname, ip string) error {
	return m.dispatch("pre-add-host", func(c Component) (bool, error) {
		h, ok := c.(PreAddHostHandler)
		if !ok {
			return false, nil
		}
		return true, h.PreAddHost(ctx, hwProfile, swProfile, hostname, ip)
	})
}

// PostAddHost notifies components about a committed batch of nodes
func (m *Manager) PostAddHost(ctx context.Context, hwProfile, swProfile string, nodes []string) error {
	return m.dispatch("post-add-host", func(c Component) (bool, error) {
		h, ok := c.(PostAddHostHandler)
		if !ok {
			return false, nil
		}
		return true, h.PostAddHost(ctx, hwProfile, swProfile, nodes)
	})
}

// PreDeleteHost notifies components about nodes about to be deleted
func (m *Manager) PreDeleteHost(ctx context.Context, hwProfile, swProfile string, nodes []string) error {
	return m.dispatch("pre-delete-host", func(c Component) (bool, error) {
		h, ok := c.(PreDeleteHostHandler)
		if !ok {
			return false, nil
		}
		return true, h.PreDeleteHost(ctx, hwProfile, swProfile, nodes)
	})
}

// PostDeleteHost notifies components about deleted nodes
func (m *Manager) PostDeleteHost(ctx context.Context, hwProfile, swProfile string, nodes []string) error {
	return m.dispatch("post-delete-host", func(c Component) (bool, error) {
		h, ok := c.(PostDeleteHostHandler)
		if !ok {
			return false, nil
		}
		return true, h.PostDeleteHost(ctx, hwProfile, swProfile, nodes)
	})
}

// AuditLog is a component that logs every event
type AuditLog struct {
	Logger *slog.Logger
}

// Name returns "audit"
func (a AuditLog) Name() string { return "audit" }

func (a AuditLog) PreAddHost(ctx context.Context, hwProfile, swProfile, hostname, ip string) error {
	a.Logger.InfoContext(ctx, "Adding node", "hardwareProfile", hwProfile, "softwareProfile", swProfile, "node", hostname, "ip", ip)
	return nil
}

func (a AuditLog) PostAddHost(ctx context.Context, hwProfile, swProfile string, nodes []string) error {
	a.Logger.InfoContext(ctx, "Nodes added", "hardwareProfile", hwProfile, "softwareProfile", swProfile, "nodes", nodes)
	return nil
}

func (a AuditLog) PreDeleteHost(ctx context.Context, hwProfile, swProfile string, nodes []string) error {
	a.Logger.InfoContext(ctx, "Deleting nodes", "hardwareProfile", hwProfile, "softwareProfile", swProfile, "nodes", nodes)
	return nil
}

func (a AuditLog) PostDeleteHost(ctx context.Context, hwProfile, swProfile string, nodes []string) error {
	a.Logger.InfoContext(ctx, "Nodes deleted", "hardwareProfile", hwProfile, "softwareProfile", swProfile, "nodes", nodes)
	return nil
}
