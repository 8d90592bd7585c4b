// Package node implements the node deletion workflow.
package node

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	"github.com/UnivaCorporation/tortuga-sub001/internal/addhost"
	"github.com/UnivaCorporation/tortuga-sub001/internal/domain"
	"github.com/UnivaCorporation/tortuga-sub001/internal/metrics"
	"github.com/UnivaCorporation/tortuga-sub001/internal/repository"
	"github.com/UnivaCorporation/tortuga-sub001/internal/resourceadapter"
	"github.com/samber/lo"
)

// ErrDeleteDenied is returned when software profile locks or minimum node
// counts forbid the deletion
var ErrDeleteDenied = errors.New("node deletion denied")

// NodeStore finds and removes nodes
type NodeStore interface {
	FindByName(ctx context.Context, name string) (domain.Node, error)
	DeleteAll(ctx context.Context, ids []int64) error
}

// HardwareProfiles looks up hardware profiles by ID
type HardwareProfiles interface {
	FindByID(ctx context.Context, id int64) (domain.HardwareProfile, error)
}

// SoftwareProfiles looks up software profiles and their node counts
type SoftwareProfiles interface {
	FindByID(ctx context.Context, id int64) (domain.SoftwareProfile, error)
	CountNodes(ctx context.Context, id int64) (int, error)
}

// Tags removes tags left without nodes
type Tags interface {
	DeleteUnused(ctx context.Context) (int64, error)
}

// AdapterFactory instantiates resource adapters by name
type AdapterFactory interface {
	New(name string) (resourceadapter.Adapter, error)
}

// KitActions is notified before and after nodes are removed
type KitActions interface {
	PreDeleteHost(ctx context.Context, hwProfile, swProfile string, nodes []string) error
	PostDeleteHost(ctx context.Context, hwProfile, swProfile string, nodes []string) error
}

// Sessions removes add-host session records
type Sessions interface {
	DeleteSessions(ctx context.Context, ids []string) error
}

// ClusterUpdater schedules a cluster wide configuration refresh
type ClusterUpdater interface {
	ScheduleClusterUpdate(ctx context.Context, reason string) error
}

// Config holds the collaborators of the deletion workflow
type Config struct {
	Nodes            NodeStore
	HardwareProfiles HardwareProfiles
	SoftwareProfiles SoftwareProfiles
	Tags             Tags
	Adapters         AdapterFactory
	Kit              KitActions
	Sessions         Sessions
	Cluster          ClusterUpdater
	Metrics          *metrics.Metrics
	Logger           *slog.Logger
}

// Manager deletes nodes
type Manager struct {
	Config
}

// NewManager creates a node deletion manager
func NewManager(cfg Config) *Manager {
	cfg.Logger = cfg.Logger.With("component", "node-manager")
	return &Manager{Config: cfg}
}

// target is a node scheduled for deletion with its resolved profiles
type target struct {
	node domain.Node
	hw   domain.HardwareProfile
	sw   *domain.SoftwareProfile
}

func (t target) swName() string {
	if t.sw == nil {
		return ""
	}
	return t.sw.Name
}

// DeleteNodes removes the named nodes. Unless force is set, nodes of soft
// locked software profiles are kept. Hard locked profiles and minimum node
// counts are always honoured, except that force overrides the minimum for
// soft locked profiles.
func (m *Manager) DeleteNodes(ctx context.Context, names []string, force bool) ([]string, error) {
	targets, err := m.resolve(ctx, lo.Uniq(names))
	if err != nil {
		return nil, err
	}

	if err := m.validate(ctx, targets, force); err != nil {
		return nil, err
	}

	for _, t := range targets {
		if m.Kit == nil {
			break
		}
		if err := m.Kit.PreDeleteHost(ctx, t.hw.Name, t.swName(), []string{t.node.Name}); err != nil {
			m.Logger.Warn("Pre delete host kit actions failed", "node", t.node.Name, "error", err)
		}
	}

	groups := lo.GroupBy(targets, func(t target) int64 { return t.hw.ID })
	hwIDs := lo.Keys(groups)
	slices.Sort(hwIDs)

	for _, id := range hwIDs {
		group := groups[id]
		hw := group[0].hw
		if hw.ResourceAdapter == "" {
			return nil, fmt.Errorf("%w: hardware profile [%s] does not have a resource adapter", addhost.ErrResourceAdapterNotFound, hw.Name)
		}
		adapter, err := m.Adapters.New(hw.ResourceAdapter)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", addhost.ErrResourceAdapterNotFound, err)
		}
		nodes := lo.Map(group, func(t target, _ int) domain.Node { return t.node })
		if err := adapter.DeleteNodes(ctx, nodes); err != nil {
			return nil, fmt.Errorf("resource adapter [%s] failed to delete nodes: %w", adapter.Name(), err)
		}
	}

	ids := lo.Map(targets, func(t target, _ int) int64 { return t.node.ID })
	if err := m.Nodes.DeleteAll(ctx, ids); err != nil {
		return nil, fmt.Errorf("failed to delete nodes: %w", err)
	}

	deleted := lo.Map(targets, func(t target, _ int) string { return t.node.Name })
	m.Metrics.NodesDeleted(len(deleted))
	m.Logger.Info("Deleted nodes", "nodes", deleted)

	m.afterDelete(context.WithoutCancel(ctx), targets)
	return deleted, nil
}

// afterDelete runs the best effort cleanup following a committed deletion
func (m *Manager) afterDelete(ctx context.Context, targets []target) {
	for _, t := range targets {
		if m.Kit == nil {
			break
		}
		if err := m.Kit.PostDeleteHost(ctx, t.hw.Name, t.swName(), []string{t.node.Name}); err != nil {
			m.Logger.Warn("Post delete host kit actions failed", "node", t.node.Name, "error", err)
		}
	}

	if m.Tags != nil {
		if n, err := m.Tags.DeleteUnused(ctx); err != nil {
			m.Logger.Warn("Unable to delete unused tags", "error", err)
		} else if n > 0 {
			m.Logger.Info("Deleted unused tags", "count", n)
		}
	}

	sessions := lo.Uniq(lo.FilterMap(targets, func(t target, _ int) (string, bool) {
		return t.node.AddHostSession, t.node.AddHostSession != ""
	}))
	if len(sessions) > 0 {
		if err := m.Sessions.DeleteSessions(ctx, sessions); err != nil {
			m.Logger.Warn("Unable to delete add-host sessions", "error", err)
		}
	}

	if m.Cluster != nil {
		if err := m.Cluster.ScheduleClusterUpdate(ctx, "Node(s) deleted"); err != nil {
			m.Logger.Warn("Unable to schedule cluster update", "error", err)
		}
	}
}

func (m *Manager) resolve(ctx context.Context, names []string) ([]target, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no nodes specified", addhost.ErrInvalidArgument)
	}

	hwCache := make(map[int64]domain.HardwareProfile)
	swCache := make(map[int64]domain.SoftwareProfile)

	targets := make([]target, 0, len(names))
	for _, name := range names {
		node, err := m.Nodes.FindByName(ctx, name)
		if err != nil {
			if errors.Is(err, repository.ErrNotFound) {
				return nil, fmt.Errorf("%w: [%s]", addhost.ErrNodeNotFound, name)
			}
			return nil, err
		}

		hw, ok := hwCache[node.HardwareProfileID]
		if !ok {
			if hw, err = m.HardwareProfiles.FindByID(ctx, node.HardwareProfileID); err != nil {
				return nil, fmt.Errorf("failed to load hardware profile of node [%s]: %w", name, err)
			}
			hwCache[hw.ID] = hw
		}

		t := target{node: node, hw: hw}
		if node.SoftwareProfileID != nil {
			sw, ok := swCache[*node.SoftwareProfileID]
			if !ok {
				if sw, err = m.SoftwareProfiles.FindByID(ctx, *node.SoftwareProfileID); err != nil {
					return nil, fmt.Errorf("failed to load software profile of node [%s]: %w", name, err)
				}
				swCache[sw.ID] = sw
			}
			t.sw = &sw
		}
		targets = append(targets, t)
	}
	return targets, nil
}

// validate applies software profile locks and minimum node counts
func (m *Manager) validate(ctx context.Context, targets []target, force bool) error {
	bySoftwareProfile := lo.GroupBy(
		lo.Filter(targets, func(t target, _ int) bool { return t.sw != nil }),
		func(t target) int64 { return t.sw.ID },
	)
	ids := lo.Keys(bySoftwareProfile)
	slices.Sort(ids)

	var problems []string
	for _, id := range ids {
		group := bySoftwareProfile[id]
		sw := group[0].sw

		if sw.LockedState == domain.LockHardLocked {
			problems = append(problems, fmt.Sprintf("nodes cannot be deleted from hard locked software profile [%s]", sw.Name))
			continue
		}

		if sw.MinNodes > 0 {
			count, err := m.SoftwareProfiles.CountNodes(ctx, sw.ID)
			if err != nil {
				return err
			}
			if count-len(group) < sw.MinNodes {
				if force && sw.LockedState == domain.LockSoftLocked {
					continue
				}
				problems = append(problems, fmt.Sprintf("software profile [%s] requires minimum of %d nodes; denied request to delete %d node(s)", sw.Name, sw.MinNodes, len(group)))
				continue
			}
		}

		if sw.LockedState == domain.LockSoftLocked && !force {
			problems = append(problems, fmt.Sprintf("nodes cannot be deleted from soft locked software profile [%s]", sw.Name))
		}
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrDeleteDenied, strings.Join(problems, "; "))
	}
	return nil
}
