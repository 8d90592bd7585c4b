package addhost

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/UnivaCorporation/tortuga-sub001/internal/domain"
	"github.com/UnivaCorporation/tortuga-sub001/internal/reservation"
)

// NodeLookup is the persisted state the allocators consult
type NodeLookup interface {
	NameLookup
	AddressLookup
	MACLookup
}

// Server initializes new nodes: name, NICs and addresses
type Server struct {
	names        *NameAllocator
	addresses    *AddressAllocator
	nics         *NicInitializer
	reservations *reservation.Store
	logger       *slog.Logger
}

// NewServer wires the allocators around a shared reservation store
func NewServer(nodes NodeLookup, reservations *reservation.Store, logger *slog.Logger) *Server {
	addresses := NewAddressAllocator(nodes, reservations, logger)
	return &Server{
		names:        NewNameAllocator(nodes, reservations, logger),
		addresses:    addresses,
		nics:         NewNicInitializer(addresses, nodes, reservations, logger),
		reservations: reservations,
		logger:       logger,
	}
}

// Names returns the server's name allocator
func (s *Server) Names() *NameAllocator {
	return s.names
}

// Addresses returns the server's address allocator
func (s *Server) Addresses() *AddressAllocator {
	return s.addresses
}

// InitializeNode assigns a name (unless already set) and NICs to node.
// Any reservation taken for the node is released when an error is returned.
func (s *Server) InitializeNode(ctx context.Context, node *domain.Node, hw *domain.HardwareProfile, sw *domain.SoftwareProfile, specs []domain.NicSpec, validateIP, generateIP bool, dnsSuffix string) error {
	if hw.IsRemote() {
		validateIP = false
	}

	if !hw.IsRemote() && len(hw.Networks) == 0 {
		return fmt.Errorf("%w: hardware profile [%s] does not have a provisioning network", ErrNetworkNotFound, hw.Name)
	}

	node.HardwareProfileID = hw.ID
	node.HardwareProfile = hw
	if sw != nil {
		id := sw.ID
		node.SoftwareProfileID = &id
		node.SoftwareProfile = sw
	}

	if err := s.initializeNode(ctx, node, hw, specs, validateIP, generateIP, dnsSuffix); err != nil {
		s.ClearNode(node)
		return err
	}

	s.logger.Debug("Initialized new node", "node", node.Name)
	return nil
}

func (s *Server) initializeNode(ctx context.Context, node *domain.Node, hw *domain.HardwareProfile, specs []domain.NicSpec, validateIP, generateIP bool, dnsSuffix string) error {
	if node.Name == "" {
		name, err := s.names.GenerateNodeName(ctx, hw.NameFormat, node.Rack, false, dnsSuffix)
		if err != nil {
			return err
		}
		node.Name = name
	}

	nics, err := s.nics.InitializeNics(ctx, node, hw, specs, validateIP, generateIP)
	node.Nics = nics
	return err
}

// CreateNewNode builds a node from a caller supplied detail record and
// initializes it. Wildcard name formats require a name; all other formats
// forbid one.
func (s *Server) CreateNewNode(ctx context.Context, detail domain.NodeDetail, session string, rack *int, hw *domain.HardwareProfile, sw *domain.SoftwareProfile, validateIP, generateIP bool, dnsSuffix string) (*domain.Node, error) {
	if hw.NameFormat == domain.NameFormatWildcard && detail.Name == "" {
		return nil, fmt.Errorf("%w: name is required for hardware profile [%s]", ErrInvalidArgument, hw.Name)
	}
	if hw.NameFormat != domain.NameFormatWildcard && detail.Name != "" {
		return nil, fmt.Errorf("%w: hardware profile [%s] does not allow setting host names", ErrInvalidArgument, hw.Name)
	}

	node := &domain.Node{
		Name:           detail.Name,
		Rack:           rack,
		AddHostSession: session,
	}

	if err := s.InitializeNode(ctx, node, hw, sw, detail.Nics, validateIP, generateIP, dnsSuffix); err != nil {
		return nil, err
	}
	return node, nil
}

// ClearNode releases the name and NIC addresses reserved for node
func (s *Server) ClearNode(node *domain.Node) {
	s.ClearNodes([]*domain.Node{node})
}

// ClearNodes releases the reservations of several nodes at once
func (s *Server) ClearNodes(nodes []*domain.Node) {
	var names []string
	var ips []netip.Addr
	for _, node := range nodes {
		if node == nil {
			continue
		}
		if node.Name != "" {
			names = append(names, HostName(node.Name))
		}
		for _, nic := range node.Nics {
			if ip, err := netip.ParseAddr(nic.IP); err == nil {
				ips = append(ips, ip)
			}
		}
	}
	s.reservations.Release(names, ips)
}
