package domain

import (
	"fmt"
	"net/netip"
	"strconv"
)

// Network types and hardware profile locations used by the provisioning workflow.
const (
	NetworkTypeProvision = "provision"
	NetworkTypePublic    = "public"

	LocationLocal  = "local"
	LocationRemote = "remote"

	// NameFormatWildcard marks a hardware profile whose node names must be supplied by the caller.
	NameFormatWildcard = "*"
)

// Network represents an IPv4 network that NICs can be attached to
type Network struct {
	ID        int64  // Unique identifier
	Name      string // Network name (e.g., "prov")
	Address   string // Network address (e.g., "10.2.0.0")
	Netmask   string // Dotted netmask or prefix length (e.g., "255.255.255.0" or "24")
	StartIP   string // First address handed out by the allocator (optional)
	Increment int    // Stride between allocated addresses, defaults to 1
	UsingDHCP bool   // Addresses are handed out by an external DHCP server
	Type      string // Network type (e.g., "provision")
}

// Prefix returns the masked CIDR prefix for the network.
func (n Network) Prefix() (netip.Prefix, error) {
	addr, err := netip.ParseAddr(n.Address)
	if err != nil {
		return netip.Prefix{}, fmt.Errorf("invalid network address %q: %w", n.Address, err)
	}
	if !addr.Is4() {
		return netip.Prefix{}, fmt.Errorf("network address %q is not IPv4", n.Address)
	}

	bits, err := maskBits(n.Netmask)
	if err != nil {
		return netip.Prefix{}, err
	}

	return netip.PrefixFrom(addr, bits).Masked(), nil
}

// String renders the network as address/netmask.
func (n Network) String() string {
	return n.Address + "/" + n.Netmask
}

func maskBits(mask string) (int, error) {
	if bits, err := strconv.Atoi(mask); err == nil {
		if bits < 0 || bits > 32 {
			return 0, fmt.Errorf("invalid prefix length %d", bits)
		}
		return bits, nil
	}

	addr, err := netip.ParseAddr(mask)
	if err != nil || !addr.Is4() {
		return 0, fmt.Errorf("invalid netmask %q", mask)
	}

	b := addr.As4()
	v := uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
	bits := 0
	for v&0x80000000 != 0 {
		bits++
		v <<= 1
	}
	if v != 0 {
		return 0, fmt.Errorf("non-contiguous netmask %q", mask)
	}
	return bits, nil
}

// HardwareProfileNetwork attaches a network to a hardware profile on a named device
type HardwareProfileNetwork struct {
	NetworkID int64    // Foreign key to Network
	Network   *Network // Loaded network row
	Device    string   // Device name (e.g., "eth0")
}

// HardwareProfile describes a class of hardware nodes are provisioned onto
type HardwareProfile struct {
	ID                    int64
	Name                  string
	NameFormat            string // Node name template, "*" when names are caller supplied
	Location              string // "local" or "remote"
	ResourceAdapter       string // Name of the resource adapter that provisions the hardware
	IdleSoftwareProfileID *int64 // Software profile assigned to nodes added without one
	Networks              []HardwareProfileNetwork
}

// IsRemote reports whether nodes of this profile live outside the installer's networks.
func (hp *HardwareProfile) IsRemote() bool {
	return hp.Location == LocationRemote
}

// SoftwareProfile describes the software stack installed onto nodes
type SoftwareProfile struct {
	ID          int64
	Name        string
	IsIdle      bool
	MinNodes    int
	LockedState string // "Unlocked", "SoftLocked" or "HardLocked"
}

// Software profile lock states.
const (
	LockUnlocked   = "Unlocked"
	LockSoftLocked = "SoftLocked"
	LockHardLocked = "HardLocked"
)

// Nic represents a network interface belonging to a node
type Nic struct {
	ID        int64
	NodeID    int64
	NetworkID *int64   // Nullable: a NIC may exist without a network
	Network   *Network // Loaded network row, nil when NetworkID is nil
	Device    string
	MAC       string // Normalized lowercase colon separated MAC, empty when unknown
	IP        string // Dotted-quad IPv4 address, empty when unassigned
	Boot      bool   // NIC on the provisioning network
}

// Tag is a key/value label attached to nodes
type Tag struct {
	ID    int64
	Key   string
	Value string
}

// Node represents a provisioned (or provisioning) host
type Node struct {
	ID                int64
	Name              string
	Rack              *int
	AddHostSession    string
	HardwareProfileID int64
	SoftwareProfileID *int64
	HardwareProfile   *HardwareProfile
	SoftwareProfile   *SoftwareProfile
	Nics              []Nic
	Tags              []Tag
}

// ProvisioningNic returns the first NIC on a provisioning network, or nil.
func (n *Node) ProvisioningNic() *Nic {
	for i := range n.Nics {
		if n.Nics[i].Network != nil && n.Nics[i].Network.Type == NetworkTypeProvision {
			return &n.Nics[i]
		}
	}
	return nil
}
