package addhost

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"

	"github.com/UnivaCorporation/tortuga-sub001/internal/domain"
	"github.com/UnivaCorporation/tortuga-sub001/internal/reservation"
)

// AddressLookup finds IPs already assigned to NICs on a network
type AddressLookup interface {
	FindNicIPsByNetwork(ctx context.Context, networkID int64) ([]string, error)
}

// AddressAllocator hands out provisioning IPs from a network's range
type AddressAllocator struct {
	nics         AddressLookup
	reservations *reservation.Store
	logger       *slog.Logger
}

// NewAddressAllocator creates an address allocator sharing the process-wide reservation store
func NewAddressAllocator(nics AddressLookup, reservations *reservation.Store, logger *slog.Logger) *AddressAllocator {
	return &AddressAllocator{
		nics:         nics,
		reservations: reservations,
		logger:       logger,
	}
}

// GenerateProvisioningIP reserves the next free address on network.
//
// The boolean result is false, with a nil error, when no address is needed
// because the network is nil or addresses are handed out by DHCP. Running
// out of addresses returns ErrAddressSpaceExhausted.
func (a *AddressAllocator) GenerateProvisioningIP(ctx context.Context, network *domain.Network) (netip.Addr, bool, error) {
	if network == nil || network.UsingDHCP {
		return netip.Addr{}, false, nil
	}

	prefix, err := network.Prefix()
	if err != nil {
		return netip.Addr{}, false, fmt.Errorf("%w: network [%s]: %v", ErrInvalidArgument, network.Name, err)
	}

	start := prefix.Addr().Next()
	if network.StartIP != "" {
		if start, err = netip.ParseAddr(network.StartIP); err != nil {
			return netip.Addr{}, false, fmt.Errorf("%w: network [%s] start IP %q: %v", ErrInvalidArgument, network.Name, network.StartIP, err)
		}
	}

	increment := uint32(1)
	if network.Increment > 1 {
		increment = uint32(network.Increment)
	}

	broadcast := lastAddr(prefix)
	numAddresses := uint64(1) << (32 - prefix.Bits())

	var chosen netip.Addr
	err = a.reservations.Do(func(tx reservation.Txn) error {
		persisted, err := a.nics.FindNicIPsByNetwork(ctx, network.ID)
		if err != nil {
			return fmt.Errorf("failed to look up IPs on network [%s]: %w", network.Name, err)
		}

		used := make(map[netip.Addr]struct{}, len(persisted))
		for _, s := range persisted {
			if ip, err := netip.ParseAddr(s); err == nil {
				used[ip] = struct{}{}
			}
		}

		ip := start
		for i := uint64(0); i < numAddresses; i++ {
			if !ip.IsValid() || !prefix.Contains(ip) || ip == broadcast {
				break
			}
			_, taken := used[ip]
			if !taken && !tx.HasIP(ip) {
				tx.AddIP(ip)
				chosen = ip
				return nil
			}
			ip = advance(ip, increment)
		}

		return fmt.Errorf("%w on network [%s]", ErrAddressSpaceExhausted, network.String())
	})
	if err != nil {
		return netip.Addr{}, false, err
	}

	a.logger.Debug("Allocated provisioning IP", "ip", chosen, "network", network.Name)
	return chosen, true, nil
}

// lastAddr returns the broadcast address of an IPv4 prefix
func lastAddr(prefix netip.Prefix) netip.Addr {
	v := addrToUint32(prefix.Masked().Addr())
	hostBits := 32 - prefix.Bits()
	if hostBits == 32 {
		return uint32ToAddr(^uint32(0))
	}
	return uint32ToAddr(v | (uint32(1)<<hostBits - 1))
}

// advance returns ip+n, or the zero Addr on overflow
func advance(ip netip.Addr, n uint32) netip.Addr {
	v := addrToUint32(ip)
	if v > ^uint32(0)-n {
		return netip.Addr{}
	}
	return uint32ToAddr(v + n)
}

func addrToUint32(ip netip.Addr) uint32 {
	b := ip.As4()
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}

func uint32ToAddr(v uint32) netip.Addr {
	return netip.AddrFrom4([4]byte{byte(v >> 24), byte(v >> 16), byte(v >> 8), byte(v)})
}
