package addhost

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/UnivaCorporation/tortuga-sub001/internal/domain"
	"github.com/UnivaCorporation/tortuga-sub001/internal/objectstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSessionManager(f *fixture, store objectstore.Store) *SessionManager {
	m := NewSessionManager(store, f.nodes, f.logger)
	next := 0
	m.newID = func() string {
		next++
		return fmt.Sprintf("session-%d", next)
	}
	return m
}

func TestSessionManager_Status(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := newTestSessionManager(f, objectstore.NewMemoryStore(SessionNamespace))

	id, err := m.CreateSession(ctx)
	require.NoError(t, err)
	assert.Equal(t, "session-1", id)

	m.SetRunning(ctx, id, true)
	m.UpdateStatus(ctx, id, "first")
	m.UpdateStatus(ctx, id, "second")
	m.UpdateStatus(ctx, id, "third")
	m.AddNodes(ctx, id, []string{"compute-01", "compute-02"})

	status, err := m.GetStatus(ctx, id, 0, false)
	require.NoError(t, err)
	assert.True(t, status.Running)
	assert.Equal(t, []string{"first", "second", "third"}, status.Messages)
	assert.Equal(t, []string{"compute-01", "compute-02"}, status.Nodes)
	assert.Nil(t, status.NodeDetails)

	status, err = m.GetStatus(ctx, id, 2, false)
	require.NoError(t, err)
	assert.Equal(t, []string{"third"}, status.Messages)

	status, err = m.GetStatus(ctx, id, 10, false)
	require.NoError(t, err)
	assert.Empty(t, status.Messages)

	status, err = m.GetStatus(ctx, id, -3, false)
	require.NoError(t, err)
	assert.Len(t, status.Messages, 3)

	m.SetRunning(ctx, id, false)
	status, err = m.GetStatus(ctx, id, 0, false)
	require.NoError(t, err)
	assert.False(t, status.Running)
}

func TestSessionManager_UnknownSession(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	store := objectstore.NewMemoryStore(SessionNamespace)
	m := newTestSessionManager(f, store)

	_, err := m.GetStatus(ctx, "missing", 0, false)
	assert.ErrorIs(t, err, ErrNotFound)

	// Updates to unknown sessions do not create them
	m.UpdateStatus(ctx, "missing", "hello")
	exists, err := store.Exists(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSessionManager_NodeDetails(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := newTestSessionManager(f, objectstore.NewMemoryStore(SessionNamespace))
	hw, prov := f.computeProfile(t)

	id, err := m.CreateSession(ctx)
	require.NoError(t, err)

	node := &domain.Node{Name: "compute-01", HardwareProfileID: hw.ID, AddHostSession: id, Nics: []domain.Nic{provNic(prov, "52:54:00:00:00:01", "10.0.0.1")}}
	require.NoError(t, f.nodes.SaveAll(ctx, []*domain.Node{node}))

	status, err := m.GetStatus(ctx, id, 0, true)
	require.NoError(t, err)
	require.Len(t, status.NodeDetails, 1)
	assert.Equal(t, "compute-01", status.NodeDetails[0].Name)
}

func TestSessionManager_DeleteSessions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := newTestSessionManager(f, objectstore.NewMemoryStore(SessionNamespace))

	first, err := m.CreateSession(ctx)
	require.NoError(t, err)
	second, err := m.CreateSession(ctx)
	require.NoError(t, err)

	require.NoError(t, m.DeleteSessions(ctx, []string{first, "unknown"}))

	_, err = m.GetStatus(ctx, first, 0, false)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = m.GetStatus(ctx, second, 0, false)
	assert.NoError(t, err)
}

type failingDeleteStore struct {
	objectstore.Store
}

func (s failingDeleteStore) Delete(ctx context.Context, key string) error {
	return errors.New("backend unavailable")
}

func TestSessionManager_DeleteSessionsAggregatesErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	m := newTestSessionManager(f, failingDeleteStore{Store: objectstore.NewMemoryStore(SessionNamespace)})

	first, err := m.CreateSession(ctx)
	require.NoError(t, err)
	second, err := m.CreateSession(ctx)
	require.NoError(t, err)

	err = m.DeleteSessions(ctx, []string{first, second})
	require.Error(t, err)
	assert.ErrorContains(t, err, first)
	assert.ErrorContains(t, err, second)
}
