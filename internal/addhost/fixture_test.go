package addhost

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/UnivaCorporation/tortuga-sub001/internal/datastore"
	"github.com/UnivaCorporation/tortuga-sub001/internal/domain"
	"github.com/UnivaCorporation/tortuga-sub001/internal/repository"
	"github.com/UnivaCorporation/tortuga-sub001/internal/reservation"
	"github.com/UnivaCorporation/tortuga-sub001/internal/testutil"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	ds               *datastore.Datastore
	nodes            repository.NodeRepository
	networks         repository.NetworkRepository
	hardwareProfiles repository.HardwareProfileRepository
	softwareProfiles repository.SoftwareProfileRepository
	tags             repository.TagRepository
	reservations     *reservation.Store
	server           *Server
	logger           *slog.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, cleanup := testutil.SetupTestDBWithMigrations(t, t.Name())
	t.Cleanup(cleanup)

	ds := datastore.FromDB(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	nodes := repository.NewNodeRepository(ds)
	reservations := reservation.NewStore()

	return &fixture{
		ds:               ds,
		nodes:            nodes,
		networks:         repository.NewNetworkRepository(db),
		hardwareProfiles: repository.NewHardwareProfileRepository(ds),
		softwareProfiles: repository.NewSoftwareProfileRepository(db),
		tags:             repository.NewTagRepository(db),
		reservations:     reservations,
		server:           NewServer(nodes, reservations, logger),
		logger:           logger,
	}
}

func (f *fixture) network(t *testing.T, n domain.Network) *domain.Network {
	t.Helper()
	saved, err := f.networks.Save(context.Background(), n)
	require.NoError(t, err)
	return &saved
}

// hardwareProfile saves hp and reloads it so the attached networks are populated
func (f *fixture) hardwareProfile(t *testing.T, hp domain.HardwareProfile) *domain.HardwareProfile {
	t.Helper()
	ctx := context.Background()
	_, err := f.hardwareProfiles.Save(ctx, hp)
	require.NoError(t, err)
	loaded, err := f.hardwareProfiles.FindByName(ctx, hp.Name)
	require.NoError(t, err)
	return &loaded
}

func (f *fixture) softwareProfile(t *testing.T, sp domain.SoftwareProfile) *domain.SoftwareProfile {
	t.Helper()
	saved, err := f.softwareProfiles.Save(context.Background(), sp)
	require.NoError(t, err)
	return &saved
}

// computeProfile creates a local "compute" profile with eth0 on a /24 provisioning network
func (f *fixture) computeProfile(t *testing.T) (*domain.HardwareProfile, *domain.Network) {
	t.Helper()
	prov := f.network(t, domain.Network{Name: "prov", Address: "10.0.0.0", Netmask: "255.255.255.0"})
	hw := f.hardwareProfile(t, domain.HardwareProfile{
		Name:            "compute",
		NameFormat:      "compute-#NN",
		ResourceAdapter: "stub",
		Networks:        []domain.HardwareProfileNetwork{{NetworkID: prov.ID, Device: "eth0"}},
	})
	return hw, prov
}

// persistNode commits a node directly, bypassing the allocators
func (f *fixture) persistNode(t *testing.T, hw *domain.HardwareProfile, name string, nics ...domain.Nic) {
	t.Helper()
	node := &domain.Node{Name: name, HardwareProfileID: hw.ID, Nics: nics}
	require.NoError(t, f.nodes.SaveAll(context.Background(), []*domain.Node{node}))
}

func provNic(network *domain.Network, mac, ip string) domain.Nic {
	id := network.ID
	return domain.Nic{NetworkID: &id, Device: "eth0", MAC: mac, IP: ip, Boot: true}
}
