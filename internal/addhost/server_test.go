package addhost

import (
	"context"
	"net/netip"
	"testing"

	"github.com/UnivaCorporation/tortuga-sub001/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func assertNoReservations(t *testing.T, f *fixture) {
	t.Helper()
	names, ips := f.reservations.Len()
	assert.Zero(t, names, "pending names")
	assert.Zero(t, ips, "pending IPs")
}

func TestCreateNewNode(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hw, prov := f.computeProfile(t)
	sw := f.softwareProfile(t, domain.SoftwareProfile{Name: "Compute"})

	detail := domain.NodeDetail{Nics: []domain.NicSpec{{MAC: "52-54-00-AA-BB-01"}}}
	node, err := f.server.CreateNewNode(ctx, detail, "session-1", nil, hw, sw, true, true, "")
	require.NoError(t, err)

	assert.Equal(t, "compute-01", node.Name)
	assert.Equal(t, "session-1", node.AddHostSession)
	assert.Equal(t, hw.ID, node.HardwareProfileID)
	require.NotNil(t, node.SoftwareProfileID)
	assert.Equal(t, sw.ID, *node.SoftwareProfileID)

	require.Len(t, node.Nics, 1)
	nic := node.Nics[0]
	assert.Equal(t, "52:54:00:aa:bb:01", nic.MAC)
	assert.Equal(t, "10.0.0.1", nic.IP)
	assert.Equal(t, "eth0", nic.Device)
	assert.True(t, nic.Boot)
	require.NotNil(t, nic.NetworkID)
	assert.Equal(t, prov.ID, *nic.NetworkID)

	assert.True(t, f.reservations.HasName("compute-01"))
	assert.True(t, f.reservations.HasIP(netip.MustParseAddr("10.0.0.1")))

	f.server.ClearNode(node)
	assertNoReservations(t, f)
}

func TestCreateNewNode_SuppliedIP(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hw, _ := f.computeProfile(t)

	detail := domain.NodeDetail{Nics: []domain.NicSpec{{MAC: "52:54:00:aa:bb:01", IP: "10.0.0.50"}}}
	node, err := f.server.CreateNewNode(ctx, detail, "session-1", nil, hw, nil, true, true, "")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.50", node.Nics[0].IP)
	assert.Nil(t, node.SoftwareProfileID)

	// The same address cannot be handed to a second in-flight node
	_, err = f.server.CreateNewNode(ctx, detail, "session-2", nil, hw, nil, true, true, "")
	assert.ErrorIs(t, err, ErrConflict)

	// Only the first node's name and address remain reserved
	names, ips := f.reservations.Len()
	assert.Equal(t, 1, names)
	assert.Equal(t, 1, ips)
}

func TestCreateNewNode_IPOutsideNetwork(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hw, _ := f.computeProfile(t)

	detail := domain.NodeDetail{Nics: []domain.NicSpec{{MAC: "52:54:00:aa:bb:01", IP: "192.168.5.5"}}}
	_, err := f.server.CreateNewNode(ctx, detail, "session-1", nil, hw, nil, true, true, "")
	assert.ErrorIs(t, err, ErrNetworkNotFound)

	assertNoReservations(t, f)
}

func TestCreateNewNode_RollbackOnNicFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	prov := f.network(t, domain.Network{Name: "prov", Address: "10.0.0.0", Netmask: "24"})
	public := f.network(t, domain.Network{Name: "public", Address: "172.16.0.0", Netmask: "16", Type: domain.NetworkTypePublic})
	hw := f.hardwareProfile(t, domain.HardwareProfile{
		Name:       "compute",
		NameFormat: "compute-#NN",
		Networks: []domain.HardwareProfileNetwork{
			{NetworkID: public.ID, Device: "eth1"},
			{NetworkID: prov.ID, Device: "eth0"},
		},
	})

	detail := domain.NodeDetail{Nics: []domain.NicSpec{
		{MAC: "52:54:00:aa:bb:01"},
		{MAC: "not-a-mac"},
	}}
	_, err := f.server.CreateNewNode(ctx, detail, "session-1", nil, hw, nil, true, true, "")
	assert.ErrorIs(t, err, ErrInvalidMACAddress)

	// The name and the address generated for eth0 are both released
	assertNoReservations(t, f)
}

func TestCreateNewNode_DuplicateMAC(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hw, prov := f.computeProfile(t)
	f.persistNode(t, hw, "compute-01", provNic(prov, "52:54:00:aa:bb:01", "10.0.0.1"))

	detail := domain.NodeDetail{Nics: []domain.NicSpec{{MAC: "52:54:00:AA:BB:01"}}}
	_, err := f.server.CreateNewNode(ctx, detail, "session-1", nil, hw, nil, true, true, "")
	assert.ErrorIs(t, err, ErrMACAddressAlreadyExists)
	assert.NotErrorIs(t, err, ErrConflict)

	assertNoReservations(t, f)
}

func TestCreateNewNode_NameRules(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hw, prov := f.computeProfile(t)
	wildcard := f.hardwareProfile(t, domain.HardwareProfile{
		Name:       "custom",
		NameFormat: domain.NameFormatWildcard,
		Networks:   []domain.HardwareProfileNetwork{{NetworkID: prov.ID, Device: "eth0"}},
	})

	_, err := f.server.CreateNewNode(ctx, domain.NodeDetail{}, "s", nil, wildcard, nil, true, true, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = f.server.CreateNewNode(ctx, domain.NodeDetail{Name: "mynode"}, "s", nil, hw, nil, true, true, "")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	node, err := f.server.CreateNewNode(ctx, domain.NodeDetail{Name: "mynode.cluster.example"}, "s", nil, wildcard, nil, true, true, "")
	require.NoError(t, err)
	assert.Equal(t, "mynode.cluster.example", node.Name)
}

func TestCreateNewNode_Remote(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hw := f.hardwareProfile(t, domain.HardwareProfile{
		Name:       "cloud",
		NameFormat: domain.NameFormatWildcard,
		Location:   domain.LocationRemote,
	})

	detail := domain.NodeDetail{Name: "cloud-1", Nics: []domain.NicSpec{{IP: "203.0.113.10"}}}
	node, err := f.server.CreateNewNode(ctx, detail, "s", nil, hw, nil, true, false, "")
	require.NoError(t, err)

	require.Len(t, node.Nics, 1)
	assert.Equal(t, "203.0.113.10", node.Nics[0].IP)
	assert.Nil(t, node.Nics[0].NetworkID)
	assert.False(t, node.Nics[0].Boot)
}

func TestInitializeNode_LocalWithoutNetworks(t *testing.T) {
	f := newFixture(t)
	hw := f.hardwareProfile(t, domain.HardwareProfile{Name: "bare", NameFormat: "bare-#N"})

	node := &domain.Node{}
	err := f.server.InitializeNode(context.Background(), node, hw, nil, nil, true, true, "")
	assert.ErrorIs(t, err, ErrNetworkNotFound)
	assertNoReservations(t, f)
}

func TestInitializeNode_DHCPNetwork(t *testing.T) {
	f := newFixture(t)
	dhcp := f.network(t, domain.Network{Name: "dhcp", Address: "10.9.0.0", Netmask: "24", UsingDHCP: true})
	hw := f.hardwareProfile(t, domain.HardwareProfile{
		Name:       "dhcp",
		NameFormat: "dhcp-#NN",
		Networks:   []domain.HardwareProfileNetwork{{NetworkID: dhcp.ID, Device: "eth0"}},
	})

	node := &domain.Node{}
	err := f.server.InitializeNode(context.Background(), node, hw, nil, []domain.NicSpec{{MAC: "52:54:00:aa:bb:09", Device: "eno1"}}, true, true, "")
	require.NoError(t, err)

	require.Len(t, node.Nics, 1)
	assert.Empty(t, node.Nics[0].IP)
	assert.Equal(t, "52:54:00:aa:bb:09", node.Nics[0].MAC)
	assert.Equal(t, "eno1", node.Nics[0].Device)
}

func TestClearNodes(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	hw, _ := f.computeProfile(t)

	var nodes []*domain.Node
	for i := 0; i < 3; i++ {
		node, err := f.server.CreateNewNode(ctx, domain.NodeDetail{}, "s", nil, hw, nil, true, true, "cluster.example")
		require.NoError(t, err)
		nodes = append(nodes, node)
	}

	names, ips := f.reservations.Len()
	assert.Equal(t, 3, names)
	assert.Equal(t, 3, ips)

	f.server.ClearNodes(append(nodes, nil))
	assertNoReservations(t, f)
}
