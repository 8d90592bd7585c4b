// Package local implements the "default" resource adapter for on-premise
// nodes: predefined nodes from request details, or nodes discovered from
// DHCP traffic on the provisioning network.
package local

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/UnivaCorporation/tortuga-sub001/internal/addhost"
	"github.com/UnivaCorporation/tortuga-sub001/internal/domain"
	"github.com/UnivaCorporation/tortuga-sub001/internal/resourceadapter"
	"github.com/hashicorp/go-multierror"
	"github.com/samber/lo"
)

// Name is the registry name of the adapter
const Name = "default"

const defaultPollInterval = 2 * time.Second

// PreAddHook is notified for every node before it is committed
type PreAddHook interface {
	PreAddHost(ctx context.Context, hwProfile, swProfile, hostname, ip string) error
}

// MACSource reports MAC addresses seen on the provisioning network
type MACSource interface {
	MACs(ctx context.Context) ([]string, error)
}

// Config holds the adapter's collaborators. BootConfig is optional.
type Config struct {
	Server       *addhost.Server
	Kit          PreAddHook
	Hook         *resourceadapter.HookScript
	BootConfig   BootConfigWriter
	DNSZone      string
	Discovery    MACSource
	PollInterval time.Duration
	Logger       *slog.Logger
}

// Adapter is the default resource adapter
type Adapter struct {
	cfg Config

	mu          sync.Mutex
	discoveries map[*discovery]struct{}
}

// discovery is one running DHCP discovery
type discovery struct {
	session string
	aborted atomic.Bool
}

// New creates the default resource adapter
func New(cfg Config) *Adapter {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	cfg.Logger = cfg.Logger.With("component", "resource-adapter", "adapter", Name)
	return &Adapter{
		cfg:         cfg,
		discoveries: make(map[*discovery]struct{}),
	}
}

// Name returns "default"
func (a *Adapter) Name() string {
	return Name
}

// ValidateStartArguments requires a software profile, and node details
// wherever nodes cannot be discovered
func (a *Adapter) ValidateStartArguments(ctx context.Context, req *domain.AddNodesRequest, hw *domain.HardwareProfile, sw *domain.SoftwareProfile) error {
	if sw == nil {
		return fmt.Errorf("%w: software profile must be provided when adding nodes to hardware profile [%s]", addhost.ErrInvalidArgument, hw.Name)
	}
	if hw.IsRemote() || len(req.NodeDetails) > 0 {
		return nil
	}

	if hw.NameFormat == domain.NameFormatWildcard {
		return fmt.Errorf("%w: name and MAC address must be specified for nodes in hardware profile [%s]", addhost.ErrInvalidArgument, hw.Name)
	}
	if a.cfg.Discovery == nil {
		return fmt.Errorf("%w: MAC address must be specified for nodes in hardware profile [%s]", addhost.ErrInvalidArgument, hw.Name)
	}
	if req.Count <= 0 {
		return fmt.Errorf("%w: node count must be positive", addhost.ErrInvalidArgument)
	}
	return nil
}

// Start creates the requested nodes. With node details every detail becomes
// a node; otherwise nodes are discovered until the requested count is reached
// or discovery is aborted.
func (a *Adapter) Start(ctx context.Context, req *domain.AddNodesRequest, hw *domain.HardwareProfile, sw *domain.SoftwareProfile) ([]*domain.Node, error) {
	if len(req.NodeDetails) > 0 {
		return a.addPredefinedNodes(ctx, req, hw, sw)
	}
	return a.discoverNodes(ctx, req, hw, sw)
}

func (a *Adapter) addPredefinedNodes(ctx context.Context, req *domain.AddNodesRequest, hw *domain.HardwareProfile, sw *domain.SoftwareProfile) ([]*domain.Node, error) {
	generateIP := !hw.IsRemote()

	nodes := make([]*domain.Node, 0, len(req.NodeDetails))
	for _, detail := range req.NodeDetails {
		node, err := a.cfg.Server.CreateNewNode(ctx, detail, req.AddHostSession, req.Rack, hw, sw, true, generateIP, a.cfg.DNSZone)
		if err != nil {
			a.cfg.Server.ClearNodes(nodes)
			return nil, err
		}
		nodes = append(nodes, node)
		if err := a.writeBootConfig(ctx, node, hw, sw); err != nil {
			a.cfg.Server.ClearNodes(nodes)
			return nil, err
		}
		a.preAddHost(ctx, node, hw, sw)
	}
	return nodes, nil
}

// Abort stops the running discoveries of session after their current poll.
// An empty session aborts every running discovery. It returns the number of
// discoveries signalled; discoveries started later are not affected.
func (a *Adapter) Abort(session string) int {
	a.mu.Lock()
	defer a.mu.Unlock()

	n := 0
	for d := range a.discoveries {
		if session == "" || d.session == session {
			d.aborted.Store(true)
			n++
		}
	}
	return n
}

func (a *Adapter) track(session string) (*discovery, func()) {
	d := &discovery{session: session}
	a.mu.Lock()
	a.discoveries[d] = struct{}{}
	a.mu.Unlock()

	return d, func() {
		a.mu.Lock()
		delete(a.discoveries, d)
		a.mu.Unlock()
	}
}

func (a *Adapter) discoverNodes(ctx context.Context, req *domain.AddNodesRequest, hw *domain.HardwareProfile, sw *domain.SoftwareProfile) ([]*domain.Node, error) {
	if a.cfg.Discovery == nil {
		return nil, fmt.Errorf("%w: DHCP discovery is not configured", addhost.ErrInvalidArgument)
	}

	provisioning, ok := firstProvisioningNetwork(hw)
	if !ok {
		return nil, fmt.Errorf("%w: hardware profile [%s] does not have a provisioning network", addhost.ErrNicNotFound, hw.Name)
	}

	d, done := a.track(req.AddHostSession)
	defer done()
	a.cfg.Logger.Info("Starting node discovery", "hardwareProfile", hw.Name, "count", req.Count)

	ticker := time.NewTicker(a.cfg.PollInterval)
	defer ticker.Stop()

	seen := make(map[string]struct{})
	var nodes []*domain.Node

	for len(nodes) < req.Count {
		if d.aborted.Load() {
			a.cfg.Logger.Info("Node discovery aborted", "discovered", len(nodes))
			return nodes, nil
		}
		if err := ctx.Err(); err != nil {
			a.cfg.Server.ClearNodes(nodes)
			return nil, err
		}

		macs, err := a.cfg.Discovery.MACs(ctx)
		if err != nil {
			a.cfg.Server.ClearNodes(nodes)
			return nil, err
		}

		for _, mac := range macs {
			if len(nodes) == req.Count {
				break
			}
			if _, ok := seen[mac]; ok {
				continue
			}
			seen[mac] = struct{}{}

			detail := domain.NodeDetail{Nics: discoveredNicSpecs(hw, provisioning, mac)}
			node, err := a.cfg.Server.CreateNewNode(ctx, detail, req.AddHostSession, req.Rack, hw, sw, true, true, a.cfg.DNSZone)
			if errors.Is(err, addhost.ErrMACAddressAlreadyExists) {
				a.cfg.Logger.Debug("Ignoring known MAC address", "mac", mac)
				continue
			}
			if err != nil {
				a.cfg.Server.ClearNodes(nodes)
				return nil, err
			}

			a.cfg.Logger.Info("Discovered node", "node", node.Name, "mac", mac)
			nodes = append(nodes, node)
			if err := a.writeBootConfig(ctx, node, hw, sw); err != nil {
				a.cfg.Server.ClearNodes(nodes)
				return nil, err
			}
			a.preAddHost(ctx, node, hw, sw)
		}

		if len(nodes) == req.Count {
			break
		}

		select {
		case <-ctx.Done():
			a.cfg.Server.ClearNodes(nodes)
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	return nodes, nil
}

// firstProvisioningNetwork returns the ID of the provisioning network with the
// lowest device name
func firstProvisioningNetwork(hw *domain.HardwareProfile) (int64, bool) {
	networks := sortedNetworks(hw)
	hpn, ok := lo.Find(networks, func(hpn domain.HardwareProfileNetwork) bool {
		return hpn.Network != nil && hpn.Network.Type == domain.NetworkTypeProvision
	})
	return hpn.NetworkID, ok
}

// discoveredNicSpecs places mac on the provisioning network and leaves the
// other NICs empty, in device order
func discoveredNicSpecs(hw *domain.HardwareProfile, provisioningID int64, mac string) []domain.NicSpec {
	return lo.Map(sortedNetworks(hw), func(hpn domain.HardwareProfileNetwork, _ int) domain.NicSpec {
		if hpn.NetworkID == provisioningID {
			return domain.NicSpec{MAC: mac}
		}
		return domain.NicSpec{}
	})
}

func sortedNetworks(hw *domain.HardwareProfile) []domain.HardwareProfileNetwork {
	networks := slices.Clone(hw.Networks)
	slices.SortStableFunc(networks, func(a, b domain.HardwareProfileNetwork) int {
		return strings.Compare(a.Device, b.Device)
	})
	return networks
}

func (a *Adapter) preAddHost(ctx context.Context, node *domain.Node, hw *domain.HardwareProfile, sw *domain.SoftwareProfile) {
	if a.cfg.Kit == nil {
		return
	}

	ip := ""
	if nic := node.ProvisioningNic(); nic != nil {
		ip = nic.IP
	}
	swName := ""
	if sw != nil {
		swName = sw.Name
	}

	if err := a.cfg.Kit.PreAddHost(ctx, hw.Name, swName, node.Name, ip); err != nil {
		a.cfg.Logger.Warn("Pre add host kit actions failed", "node", node.Name, "error", err)
	}
}

// HookAction runs the configured hook script
func (a *Adapter) HookAction(ctx context.Context, action string, nodeNames []string, args ...string) error {
	return a.cfg.Hook.Run(ctx, action, nodeNames, args...)
}

func (a *Adapter) writeBootConfig(ctx context.Context, node *domain.Node, hw *domain.HardwareProfile, sw *domain.SoftwareProfile) error {
	if a.cfg.BootConfig == nil {
		return nil
	}
	if err := a.cfg.BootConfig.Write(ctx, node, hw, sw); err != nil {
		return fmt.Errorf("unable to write boot configuration for node [%s]: %w", node.Name, err)
	}
	return nil
}

// DeleteNodes removes the boot configuration of nodes and runs the delete
// hook. The hook runs even when a removal fails.
func (a *Adapter) DeleteNodes(ctx context.Context, nodes []domain.Node) error {
	var result *multierror.Error
	if a.cfg.BootConfig != nil {
		for _, node := range nodes {
			if err := a.cfg.BootConfig.Remove(ctx, node); err != nil {
				result = multierror.Append(result, fmt.Errorf("unable to remove boot configuration for node [%s]: %w", node.Name, err))
			}
		}
	}

	names := lo.Map(nodes, func(node domain.Node, _ int) string { return node.Name })
	if err := a.cfg.Hook.Run(ctx, resourceadapter.ActionDelete, names); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}
