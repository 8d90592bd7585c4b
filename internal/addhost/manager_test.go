package addhost

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/UnivaCorporation/tortuga-sub001/internal/domain"
	"github.com/UnivaCorporation/tortuga-sub001/internal/metrics"
	"github.com/UnivaCorporation/tortuga-sub001/internal/objectstore"
	"github.com/UnivaCorporation/tortuga-sub001/internal/resourceadapter"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubAdapter creates nodes through the Server and records hook actions
type stubAdapter struct {
	server *Server
	start  func(ctx context.Context, req *domain.AddNodesRequest, hw *domain.HardwareProfile, sw *domain.SoftwareProfile) ([]*domain.Node, error)

	mu    sync.Mutex
	hooks []string
}

func (a *stubAdapter) Name() string { return "stub" }

func (a *stubAdapter) ValidateStartArguments(ctx context.Context, req *domain.AddNodesRequest, hw *domain.HardwareProfile, sw *domain.SoftwareProfile) error {
	if req.Count < 0 {
		return ErrInvalidArgument
	}
	return nil
}

func (a *stubAdapter) Start(ctx context.Context, req *domain.AddNodesRequest, hw *domain.HardwareProfile, sw *domain.SoftwareProfile) ([]*domain.Node, error) {
	if a.start != nil {
		return a.start(ctx, req, hw, sw)
	}

	var nodes []*domain.Node
	for i := 0; i < req.Count; i++ {
		node, err := a.server.CreateNewNode(ctx, domain.NodeDetail{}, req.AddHostSession, req.Rack, hw, sw, true, true, "")
		if err != nil {
			a.server.ClearNodes(nodes)
			return nil, err
		}
		nodes = append(nodes, node)
	}
	return nodes, nil
}

func (a *stubAdapter) HookAction(ctx context.Context, action string, nodeNames []string, args ...string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hooks = append(a.hooks, action+":"+strings.Join(nodeNames, ","))
	return nil
}

func (a *stubAdapter) DeleteNodes(ctx context.Context, nodes []domain.Node) error { return nil }

type kitSpy struct {
	calls [][]string
}

func (k *kitSpy) PostAddHost(ctx context.Context, hwProfile, swProfile string, nodes []string) error {
	k.calls = append(k.calls, append([]string{hwProfile, swProfile}, nodes...))
	return nil
}

type clusterSpy struct {
	reasons []string
}

func (c *clusterSpy) ScheduleClusterUpdate(ctx context.Context, reason string) error {
	c.reasons = append(c.reasons, reason)
	return nil
}

type managerFixture struct {
	*fixture
	manager  *Manager
	adapter  *stubAdapter
	kit      *kitSpy
	cluster  *clusterSpy
	sessions *SessionManager
	registry *prometheus.Registry
}

func newManagerFixture(t *testing.T) *managerFixture {
	t.Helper()
	f := newFixture(t)

	adapter := &stubAdapter{server: f.server}
	registry := resourceadapter.NewRegistry()
	registry.Register("stub", func() (resourceadapter.Adapter, error) { return adapter, nil })

	reg := prometheus.NewRegistry()
	m, err := metrics.New(reg)
	require.NoError(t, err)

	sessions := NewSessionManager(objectstore.NewMemoryStore(SessionNamespace), f.nodes, f.logger)
	kit := &kitSpy{}
	cluster := &clusterSpy{}

	manager := NewManager(ManagerConfig{
		HardwareProfiles: f.hardwareProfiles,
		SoftwareProfiles: f.softwareProfiles,
		Tags:             f.tags,
		Nodes:            f.nodes,
		Adapters:         registry,
		Server:           f.server,
		Sessions:         sessions,
		Kit:              kit,
		Cluster:          cluster,
		Metrics:          m,
		Logger:           f.logger,
	})

	return &managerFixture{
		fixture:  f,
		manager:  manager,
		adapter:  adapter,
		kit:      kit,
		cluster:  cluster,
		sessions: sessions,
		registry: reg,
	}
}

func TestManager_AddHosts(t *testing.T) {
	mf := newManagerFixture(t)
	ctx := context.Background()
	mf.computeProfile(t)
	mf.softwareProfile(t, domain.SoftwareProfile{Name: "Compute"})

	req := &domain.AddNodesRequest{
		HardwareProfile: "compute",
		SoftwareProfile: "Compute",
		Count:           2,
		Tags:            map[string]string{"role": "worker", "env": "test"},
	}
	nodes, err := mf.manager.AddHosts(ctx, req)
	require.NoError(t, err)
	require.Len(t, nodes, 2)
	require.NotEmpty(t, req.AddHostSession)

	persisted, err := mf.nodes.FindByAddHostSession(ctx, req.AddHostSession)
	require.NoError(t, err)
	require.Len(t, persisted, 2)
	assert.Equal(t, "compute-01", persisted[0].Name)
	assert.Equal(t, "10.0.0.1", persisted[0].Nics[0].IP)
	assert.Len(t, persisted[0].Tags, 2)

	assertNoReservations(t, mf.fixture)

	status, err := mf.sessions.GetStatus(ctx, req.AddHostSession, 0, false)
	require.NoError(t, err)
	assert.False(t, status.Running)
	assert.Equal(t, []string{"compute-01", "compute-02"}, status.Nodes)
	assert.Contains(t, status.Messages, "Added 2 node(s)")

	assert.Equal(t, []string{"add:compute-01,compute-02", "start:compute-01,compute-02"}, mf.adapter.hooks)
	assert.Equal(t, [][]string{{"compute", "Compute", "compute-01", "compute-02"}}, mf.kit.calls)
	assert.Len(t, mf.cluster.reasons, 1)

	count, err := testutil.GatherAndCount(mf.registry, "tortuga_nodes_added_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestManager_AddHostsIdleProfile(t *testing.T) {
	mf := newManagerFixture(t)
	ctx := context.Background()
	idle := mf.softwareProfile(t, domain.SoftwareProfile{Name: "Idle", IsIdle: true})
	prov := mf.network(t, domain.Network{Name: "prov", Address: "10.0.0.0", Netmask: "24"})
	mf.hardwareProfile(t, domain.HardwareProfile{
		Name:                  "compute",
		NameFormat:            "compute-#NN",
		ResourceAdapter:       "stub",
		IdleSoftwareProfileID: &idle.ID,
		Networks:              []domain.HardwareProfileNetwork{{NetworkID: prov.ID, Device: "eth0"}},
	})

	nodes, err := mf.manager.AddHosts(ctx, &domain.AddNodesRequest{HardwareProfile: "compute", Count: 1})
	require.NoError(t, err)
	require.Len(t, nodes, 1)
	require.NotNil(t, nodes[0].SoftwareProfileID)
	assert.Equal(t, idle.ID, *nodes[0].SoftwareProfileID)

	// Idle nodes do not trigger post-add hooks
	assert.Empty(t, mf.adapter.hooks)
	assert.Empty(t, mf.kit.calls)
	assert.Empty(t, mf.cluster.reasons)
}

func TestManager_AddHostsValidation(t *testing.T) {
	mf := newManagerFixture(t)
	ctx := context.Background()
	hw, prov := mf.computeProfile(t)
	mf.persistNode(t, hw, "taken", provNic(prov, "52:54:00:00:00:01", "10.0.0.100"))
	mf.hardwareProfile(t, domain.HardwareProfile{Name: "racked", NameFormat: "r#R-#N", ResourceAdapter: "stub"})
	mf.hardwareProfile(t, domain.HardwareProfile{Name: "noadapter", NameFormat: "x-#N"})
	mf.hardwareProfile(t, domain.HardwareProfile{Name: "unknownadapter", NameFormat: "x-#N", ResourceAdapter: "aws"})

	tests := []struct {
		name    string
		req     domain.AddNodesRequest
		wantErr error
	}{
		{name: "missing hardware profile", req: domain.AddNodesRequest{Count: 1}, wantErr: ErrInvalidArgument},
		{name: "unknown hardware profile", req: domain.AddNodesRequest{HardwareProfile: "gpu", Count: 1}, wantErr: ErrHardwareProfileNotFound},
		{name: "unknown software profile", req: domain.AddNodesRequest{HardwareProfile: "compute", SoftwareProfile: "Nope", Count: 1}, wantErr: ErrSoftwareProfileNotFound},
		{name: "existing node", req: domain.AddNodesRequest{HardwareProfile: "compute", NodeDetails: []domain.NodeDetail{{Name: "taken"}}}, wantErr: ErrNodeAlreadyExists},
		{name: "rack required", req: domain.AddNodesRequest{HardwareProfile: "racked", Count: 1}, wantErr: ErrInvalidArgument},
		{name: "no resource adapter", req: domain.AddNodesRequest{HardwareProfile: "noadapter", Count: 1}, wantErr: ErrResourceAdapterNotFound},
		{name: "unregistered resource adapter", req: domain.AddNodesRequest{HardwareProfile: "unknownadapter", Count: 1}, wantErr: ErrResourceAdapterNotFound},
		{name: "adapter rejects arguments", req: domain.AddNodesRequest{HardwareProfile: "compute", Count: -1}, wantErr: ErrInvalidArgument},
		{name: "duplicate ip in request", req: domain.AddNodesRequest{HardwareProfile: "compute", NodeDetails: []domain.NodeDetail{
			{Nics: []domain.NicSpec{{MAC: "52:54:00:00:00:10", IP: "10.0.0.50"}}},
			{Nics: []domain.NicSpec{{MAC: "52:54:00:00:00:11", IP: "10.0.0.50"}}},
		}}, wantErr: ErrInvalidArgument},
		{name: "duplicate mac in request", req: domain.AddNodesRequest{HardwareProfile: "compute", NodeDetails: []domain.NodeDetail{
			{Nics: []domain.NicSpec{{MAC: "52:54:00:00:00:10"}}},
			{Nics: []domain.NicSpec{{MAC: "52-54-00-00-00-10"}}},
		}}, wantErr: ErrInvalidArgument},
		{name: "duplicate name in request", req: domain.AddNodesRequest{HardwareProfile: "compute", NodeDetails: []domain.NodeDetail{
			{Name: "login-01"}, {Name: "login-01"},
		}}, wantErr: ErrInvalidArgument},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.req
			_, err := mf.manager.AddHosts(ctx, &req)
			assert.ErrorIs(t, err, tt.wantErr)

			status, err := mf.sessions.GetStatus(ctx, req.AddHostSession, 0, false)
			require.NoError(t, err)
			assert.False(t, status.Running)
			require.NotEmpty(t, status.Messages)
			assert.True(t, strings.HasPrefix(status.Messages[len(status.Messages)-1], "Error: "))
		})
	}

	assertNoReservations(t, mf.fixture)
}

func TestManager_AddHostsConflict(t *testing.T) {
	mf := newManagerFixture(t)
	ctx := context.Background()
	hw, prov := mf.computeProfile(t)
	mf.persistNode(t, hw, "compute-07", provNic(prov, "52:54:00:00:00:07", "10.0.0.7"))

	// A node created behind the allocator's back collides on commit
	mf.adapter.start = func(ctx context.Context, req *domain.AddNodesRequest, hw *domain.HardwareProfile, sw *domain.SoftwareProfile) ([]*domain.Node, error) {
		node, err := mf.server.CreateNewNode(ctx, domain.NodeDetail{}, req.AddHostSession, nil, hw, sw, true, true, "")
		if err != nil {
			return nil, err
		}
		rogue := &domain.Node{Name: "compute-07", HardwareProfileID: hw.ID, AddHostSession: req.AddHostSession}
		return []*domain.Node{node, rogue}, nil
	}

	req := &domain.AddNodesRequest{HardwareProfile: "compute", Count: 1}
	_, err := mf.manager.AddHosts(ctx, req)
	assert.ErrorIs(t, err, ErrConflict)

	// The batch is rolled back and its reservations released
	persisted, err := mf.nodes.FindByAddHostSession(ctx, req.AddHostSession)
	require.NoError(t, err)
	assert.Empty(t, persisted)
	assertNoReservations(t, mf.fixture)
	assert.Empty(t, mf.adapter.hooks)
}
