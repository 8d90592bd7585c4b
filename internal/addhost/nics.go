package addhost

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"regexp"
	"slices"
	"strings"

	"github.com/UnivaCorporation/tortuga-sub001/internal/domain"
	"github.com/UnivaCorporation/tortuga-sub001/internal/reservation"
)

// MACLookup finds NICs already carrying a MAC address
type MACLookup interface {
	FindNicsByMAC(ctx context.Context, mac string) ([]domain.Nic, error)
}

// NicInitializer builds the NICs of a new node against its hardware profile networks
type NicInitializer struct {
	addresses    *AddressAllocator
	macs         MACLookup
	reservations *reservation.Store
	logger       *slog.Logger
}

// NewNicInitializer creates a NIC initializer
func NewNicInitializer(addresses *AddressAllocator, macs MACLookup, reservations *reservation.Store, logger *slog.Logger) *NicInitializer {
	return &NicInitializer{
		addresses:    addresses,
		macs:         macs,
		reservations: reservations,
		logger:       logger,
	}
}

var macPattern = regexp.MustCompile(`^[0-9a-f]{2}(:[0-9a-f]{2}){5}$`)

// NormalizeMAC lowercases mac, converts dashes to colons and expands bare
// twelve digit forms.
func NormalizeMAC(mac string) (string, error) {
	m := strings.ToLower(strings.ReplaceAll(strings.TrimSpace(mac), "-", ":"))
	if len(m) == 12 && !strings.Contains(m, ":") {
		var b strings.Builder
		for i := 0; i < 12; i += 2 {
			if i > 0 {
				b.WriteByte(':')
			}
			b.WriteString(m[i : i+2])
		}
		m = b.String()
	}
	if !macPattern.MatchString(m) {
		return "", fmt.Errorf("%w: [%s]", ErrInvalidMACAddress, mac)
	}
	return m, nil
}

// InitializeNics pairs specs with the hardware profile networks, sorted by
// device name, and returns one NIC per pair.
//
// On error the NICs completed so far are returned together with the error
// so the caller can release the addresses they reserved.
func (n *NicInitializer) InitializeNics(ctx context.Context, node *domain.Node, hw *domain.HardwareProfile, specs []domain.NicSpec, validateIP, generateIP bool) ([]domain.Nic, error) {
	networks := slices.Clone(hw.Networks)
	slices.SortStableFunc(networks, func(a, b domain.HardwareProfileNetwork) int {
		return strings.Compare(a.Device, b.Device)
	})

	count := max(len(specs), len(networks))
	nics := make([]domain.Nic, 0, count)

	for i := 0; i < count; i++ {
		var spec *domain.NicSpec
		if i < len(specs) {
			spec = &specs[i]
		}
		var network *domain.Network
		device := ""
		if i < len(networks) {
			network = networks[i].Network
			device = networks[i].Device
		}

		nic, err := n.initializeNic(ctx, node, hw, spec, network, validateIP, generateIP)
		if err != nil {
			return nics, err
		}

		if network != nil && (nic.IP != "" || network.Type != domain.NetworkTypeProvision) {
			id := network.ID
			nic.NetworkID = &id
			nic.Network = network
			nic.Device = device
		} else if spec != nil {
			nic.Device = spec.Device
		}
		nic.Boot = nic.Network != nil && nic.Network.Type == domain.NetworkTypeProvision

		nics = append(nics, nic)
	}

	return nics, nil
}

func (n *NicInitializer) initializeNic(ctx context.Context, node *domain.Node, hw *domain.HardwareProfile, spec *domain.NicSpec, network *domain.Network, validateIP, generateIP bool) (domain.Nic, error) {
	var nic domain.Nic

	if spec != nil && spec.MAC != "" {
		mac, err := n.validateMAC(ctx, spec.MAC, network)
		if err != nil {
			return nic, err
		}
		nic.MAC = mac
	}

	if spec != nil && spec.IP != "" {
		ip, err := validateIPAddress(spec.IP, network, validateIP && !hw.IsRemote())
		if err != nil {
			return nic, err
		}
		if !n.reservations.ReserveIP(ip) {
			return nic, fmt.Errorf("%w: IP address [%s] is already reserved by another node", ErrConflict, ip)
		}
		nic.IP = ip.String()
		return nic, nil
	}

	if hw.Location == domain.LocationLocal && network == nil {
		return nic, fmt.Errorf("%w: hardware profile [%s] does not have a provisioning network", ErrNicNotFound, hw.Name)
	}

	if generateIP && network != nil && network.Type == domain.NetworkTypeProvision {
		ip, ok, err := n.addresses.GenerateProvisioningIP(ctx, network)
		if err != nil {
			return nic, err
		}
		if ok {
			nic.IP = ip.String()
			n.logger.Debug("Assigned IP to node", "node", node.Name, "ip", nic.IP)
		}
	}

	return nic, nil
}

// validateMAC normalizes mac and rejects it when already used on network
func (n *NicInitializer) validateMAC(ctx context.Context, mac string, network *domain.Network) (string, error) {
	normalized, err := NormalizeMAC(mac)
	if err != nil {
		return "", err
	}
	if network == nil {
		return normalized, nil
	}

	existing, err := n.macs.FindNicsByMAC(ctx, normalized)
	if err != nil {
		return "", fmt.Errorf("failed to look up MAC address [%s]: %w", normalized, err)
	}
	for _, nic := range existing {
		if nic.NetworkID != nil && *nic.NetworkID == network.ID {
			return "", fmt.Errorf("%w: [%s] on network [%s]", ErrMACAddressAlreadyExists, normalized, network.Name)
		}
	}
	return normalized, nil
}

// validateIPAddress parses ip and, when check is set, requires it to lie
// inside network
func validateIPAddress(ip string, network *domain.Network, check bool) (netip.Addr, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil || !addr.Is4() {
		if check {
			return netip.Addr{}, fmt.Errorf("%w: IP address [%s] is malformed", ErrNetworkNotFound, ip)
		}
		return netip.Addr{}, fmt.Errorf("%w: IP address [%s] is malformed", ErrInvalidArgument, ip)
	}
	if !check {
		return addr, nil
	}

	if network == nil {
		return netip.Addr{}, fmt.Errorf("%w: no network available for IP address [%s]", ErrNetworkNotFound, ip)
	}
	prefix, err := network.Prefix()
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: network [%s]: %v", ErrInvalidArgument, network.Name, err)
	}
	if !prefix.Contains(addr) {
		return netip.Addr{}, fmt.Errorf("%w: IP address [%s] is not on network [%s]", ErrNetworkNotFound, ip, network.String())
	}
	return addr, nil
}
