package addhost

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"slices"
	"strings"

	"github.com/UnivaCorporation/tortuga-sub001/internal/domain"
	"github.com/UnivaCorporation/tortuga-sub001/internal/metrics"
	"github.com/UnivaCorporation/tortuga-sub001/internal/repository"
	"github.com/UnivaCorporation/tortuga-sub001/internal/resourceadapter"
	"github.com/samber/lo"
)

// HardwareProfiles looks up hardware profiles
type HardwareProfiles interface {
	FindByName(ctx context.Context, name string) (domain.HardwareProfile, error)
}

// SoftwareProfiles looks up software profiles
type SoftwareProfiles interface {
	FindByName(ctx context.Context, name string) (domain.SoftwareProfile, error)
	FindByID(ctx context.Context, id int64) (domain.SoftwareProfile, error)
}

// Tags resolves key/value tags
type Tags interface {
	FindOrCreate(ctx context.Context, key, value string) (domain.Tag, error)
}

// NodeStore persists new nodes
type NodeStore interface {
	ExistsByName(ctx context.Context, name string) (bool, error)
	SaveAll(ctx context.Context, nodes []*domain.Node) error
}

// AdapterFactory instantiates resource adapters by name
type AdapterFactory interface {
	New(name string) (resourceadapter.Adapter, error)
}

// KitActions receives the post-add notification for a batch of nodes
type KitActions interface {
	PostAddHost(ctx context.Context, hwProfile, swProfile string, nodes []string) error
}

// ClusterUpdater schedules a cluster wide configuration refresh
type ClusterUpdater interface {
	ScheduleClusterUpdate(ctx context.Context, reason string) error
}

// ManagerConfig holds the collaborators of the add-host orchestrator
type ManagerConfig struct {
	HardwareProfiles HardwareProfiles
	SoftwareProfiles SoftwareProfiles
	Tags             Tags
	Nodes            NodeStore
	Adapters         AdapterFactory
	Server           *Server
	Sessions         *SessionManager
	Kit              KitActions
	Cluster          ClusterUpdater
	Metrics          *metrics.Metrics
	Logger           *slog.Logger
}

// Manager runs the add-host workflow: validate, delegate to the resource
// adapter, persist and run post-add hooks.
type Manager struct {
	ManagerConfig
}

// NewManager creates the add-host orchestrator
func NewManager(cfg ManagerConfig) *Manager {
	return &Manager{ManagerConfig: cfg}
}

// AddHosts adds the nodes described by req. A session is created when req
// does not carry one; progress is recorded on it either way.
func (m *Manager) AddHosts(ctx context.Context, req *domain.AddNodesRequest) ([]*domain.Node, error) {
	if req.AddHostSession == "" {
		session, err := m.Sessions.CreateSession(ctx)
		if err != nil {
			return nil, err
		}
		req.AddHostSession = session
	}
	session := req.AddHostSession
	logger := m.Logger.With("session", session)

	m.Sessions.SetRunning(ctx, session, true)
	defer m.Sessions.SetRunning(context.WithoutCancel(ctx), session, false)

	nodes, err := m.addHosts(ctx, logger, req)
	if err != nil {
		logger.Error("Add hosts failed", "hardwareProfile", req.HardwareProfile, "error", err)
		m.Sessions.UpdateStatus(context.WithoutCancel(ctx), session, fmt.Sprintf("Error: %v", err))
		return nil, err
	}
	return nodes, nil
}

func (m *Manager) addHosts(ctx context.Context, logger *slog.Logger, req *domain.AddNodesRequest) ([]*domain.Node, error) {
	session := req.AddHostSession

	hw, sw, err := m.validate(ctx, req)
	if err != nil {
		return nil, err
	}

	tags, err := m.resolveTags(ctx, req.Tags)
	if err != nil {
		return nil, err
	}

	adapter, err := m.Adapters.New(hw.ResourceAdapter)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResourceAdapterNotFound, err)
	}

	if err := adapter.ValidateStartArguments(ctx, req, &hw, sw); err != nil {
		return nil, err
	}

	m.Sessions.UpdateStatus(ctx, session, fmt.Sprintf("Adding nodes to hardware profile [%s] using resource adapter [%s]", hw.Name, adapter.Name()))

	nodes, err := adapter.Start(ctx, req, &hw, sw)
	if err != nil {
		m.Metrics.AddHostFailed(hw.Name)
		return nil, err
	}

	for _, node := range nodes {
		node.Tags = tags
	}

	if err := m.persist(ctx, nodes); err != nil {
		m.Metrics.AddHostFailed(hw.Name)
		return nil, err
	}

	names := lo.Map(nodes, func(node *domain.Node, _ int) string { return node.Name })
	m.Sessions.AddNodes(ctx, session, names)
	m.Sessions.UpdateStatus(ctx, session, fmt.Sprintf("Added %d node(s)", len(nodes)))
	m.Metrics.NodesAdded(hw.Name, len(nodes))
	logger.Info("Added nodes", "hardwareProfile", hw.Name, "count", len(nodes))

	if len(nodes) > 0 && !isIdleProfile(&hw, sw) {
		m.postAddHost(ctx, logger, adapter, &hw, sw, names)
	}

	return nodes, nil
}

// validate resolves the profiles named by req
func (m *Manager) validate(ctx context.Context, req *domain.AddNodesRequest) (domain.HardwareProfile, *domain.SoftwareProfile, error) {
	if err := validateNodeDetails(req.NodeDetails); err != nil {
		return domain.HardwareProfile{}, nil, err
	}

	for _, detail := range req.NodeDetails {
		if detail.Name == "" {
			continue
		}
		exists, err := m.Nodes.ExistsByName(ctx, detail.Name)
		if err != nil {
			return domain.HardwareProfile{}, nil, err
		}
		if exists {
			return domain.HardwareProfile{}, nil, fmt.Errorf("%w: [%s]", ErrNodeAlreadyExists, detail.Name)
		}
	}

	if req.HardwareProfile == "" {
		return domain.HardwareProfile{}, nil, fmt.Errorf("%w: hardware profile is required", ErrInvalidArgument)
	}
	hw, err := m.HardwareProfiles.FindByName(ctx, req.HardwareProfile)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return domain.HardwareProfile{}, nil, fmt.Errorf("%w: [%s]", ErrHardwareProfileNotFound, req.HardwareProfile)
		}
		return domain.HardwareProfile{}, nil, err
	}

	if hw.ResourceAdapter == "" {
		return domain.HardwareProfile{}, nil, fmt.Errorf("%w: hardware profile [%s] does not have a resource adapter", ErrResourceAdapterNotFound, hw.Name)
	}

	if strings.Contains(hw.NameFormat, "#R") && req.Rack == nil {
		return domain.HardwareProfile{}, nil, fmt.Errorf("%w: hardware profile [%s] requires a rack number", ErrInvalidArgument, hw.Name)
	}

	sw, err := m.resolveSoftwareProfile(ctx, req, &hw)
	if err != nil {
		return domain.HardwareProfile{}, nil, err
	}

	return hw, sw, nil
}

// validateNodeDetails rejects names, MAC addresses and IP addresses that
// appear more than once within the same request
func validateNodeDetails(details []domain.NodeDetail) error {
	names := make(map[string]struct{})
	macs := make(map[string]struct{})
	ips := make(map[netip.Addr]struct{})

	for _, detail := range details {
		if detail.Name != "" {
			if _, ok := names[detail.Name]; ok {
				return fmt.Errorf("%w: node name [%s] is given more than once", ErrInvalidArgument, detail.Name)
			}
			names[detail.Name] = struct{}{}
		}

		for _, spec := range detail.Nics {
			if spec.MAC != "" {
				// malformed addresses are reported by the NIC initializer
				if mac, err := NormalizeMAC(spec.MAC); err == nil {
					if _, ok := macs[mac]; ok {
						return fmt.Errorf("%w: MAC address [%s] is given more than once", ErrInvalidArgument, spec.MAC)
					}
					macs[mac] = struct{}{}
				}
			}
			if spec.IP != "" {
				if ip, err := netip.ParseAddr(spec.IP); err == nil {
					if _, ok := ips[ip]; ok {
						return fmt.Errorf("%w: IP address [%s] is given more than once", ErrInvalidArgument, spec.IP)
					}
					ips[ip] = struct{}{}
				}
			}
		}
	}
	return nil
}

func (m *Manager) resolveSoftwareProfile(ctx context.Context, req *domain.AddNodesRequest, hw *domain.HardwareProfile) (*domain.SoftwareProfile, error) {
	var sw domain.SoftwareProfile
	var err error

	switch {
	case req.SoftwareProfile != "":
		sw, err = m.SoftwareProfiles.FindByName(ctx, req.SoftwareProfile)
	case hw.IdleSoftwareProfileID != nil:
		sw, err = m.SoftwareProfiles.FindByID(ctx, *hw.IdleSoftwareProfileID)
	default:
		return nil, nil
	}

	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: [%s]", ErrSoftwareProfileNotFound, req.SoftwareProfile)
		}
		return nil, err
	}
	return &sw, nil
}

func (m *Manager) resolveTags(ctx context.Context, tags map[string]string) ([]domain.Tag, error) {
	keys := lo.Keys(tags)
	slices.Sort(keys)

	resolved := make([]domain.Tag, 0, len(keys))
	for _, key := range keys {
		tag, err := m.Tags.FindOrCreate(ctx, key, tags[key])
		if err != nil {
			return nil, fmt.Errorf("%w: tag [%s]: %v", ErrInvalidArgument, key, err)
		}
		resolved = append(resolved, tag)
	}
	return resolved, nil
}

// persist commits the batch and releases its reservations, whatever the outcome
func (m *Manager) persist(ctx context.Context, nodes []*domain.Node) error {
	if len(nodes) == 0 {
		return nil
	}

	err := m.Nodes.SaveAll(ctx, nodes)
	m.Server.ClearNodes(nodes)

	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return fmt.Errorf("%w: %w", ErrConflict, err)
		}
		return fmt.Errorf("failed to save nodes: %w", err)
	}
	return nil
}

func (m *Manager) postAddHost(ctx context.Context, logger *slog.Logger, adapter resourceadapter.Adapter, hw *domain.HardwareProfile, sw *domain.SoftwareProfile, names []string) {
	if err := adapter.HookAction(ctx, resourceadapter.ActionAdd, names); err != nil {
		logger.Warn("Add hook failed", "error", err)
	}

	swName := ""
	if sw != nil {
		swName = sw.Name
	}

	if m.Kit != nil {
		if err := m.Kit.PostAddHost(ctx, hw.Name, swName, names); err != nil {
			logger.Warn("Post add host kit actions failed", "error", err)
		}
	}

	if m.Cluster != nil {
		if err := m.Cluster.ScheduleClusterUpdate(ctx, "Node(s) added"); err != nil {
			logger.Warn("Unable to schedule cluster update", "error", err)
		}
	}

	if err := adapter.HookAction(ctx, resourceadapter.ActionStart, names); err != nil {
		logger.Warn("Start hook failed", "error", err)
	}
}

// isIdleProfile reports whether sw is the idle software profile of hw
func isIdleProfile(hw *domain.HardwareProfile, sw *domain.SoftwareProfile) bool {
	return sw != nil && hw.IdleSoftwareProfileID != nil && sw.ID == *hw.IdleSoftwareProfileID
}
