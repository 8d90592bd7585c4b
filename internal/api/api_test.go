package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/UnivaCorporation/tortuga-sub001/internal/addhost"
	"github.com/UnivaCorporation/tortuga-sub001/internal/domain"
	"github.com/UnivaCorporation/tortuga-sub001/internal/node"
	"github.com/UnivaCorporation/tortuga-sub001/internal/repository"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQueue struct {
	requests []domain.AddNodesRequest
	err      error
}

func (q *fakeQueue) Enqueue(_ context.Context, req domain.AddNodesRequest) (string, error) {
	if q.err != nil {
		return "", q.err
	}
	q.requests = append(q.requests, req)
	return fmt.Sprintf("session-%d", len(q.requests)), nil
}

type fakeSessions struct {
	status       addhost.SessionStatus
	err          error
	start        int
	includeNodes bool
}

func (s *fakeSessions) GetStatus(_ context.Context, id string, start int, includeNodes bool) (addhost.SessionStatus, error) {
	s.start, s.includeNodes = start, includeNodes
	if s.err != nil {
		return addhost.SessionStatus{}, s.err
	}
	return s.status, nil
}

type fakeDeleter struct {
	names []string
	force bool
	err   error
}

func (d *fakeDeleter) DeleteNodes(_ context.Context, names []string, force bool) ([]string, error) {
	d.names, d.force = names, force
	if d.err != nil {
		return nil, d.err
	}
	return names, nil
}

type fakeAborter struct {
	sessions []string
	running  int
}

func (f *fakeAborter) Abort(session string) int {
	f.sessions = append(f.sessions, session)
	return f.running
}

type testServer struct {
	queue    *fakeQueue
	sessions *fakeSessions
	nodes    *fakeDeleter
	aborter  *fakeAborter
	registry *prometheus.Registry
	handler  http.Handler
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	s := &testServer{
		queue:    &fakeQueue{},
		sessions: &fakeSessions{},
		nodes:    &fakeDeleter{},
		aborter:  &fakeAborter{},
		registry: prometheus.NewRegistry(),
	}
	s.handler = NewRouter(NewAPI(Config{
		Queue:     s.queue,
		Sessions:  s.sessions,
		Nodes:     s.nodes,
		Discovery: s.aborter,
		Gatherer:  s.registry,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
	}))
	return s
}

func (s *testServer) do(method, target, body string) *httptest.ResponseRecorder {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Error
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "running")
}

func TestAddHostHandler(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/v1/addhost", `{"hardwareProfile":"compute","softwareProfile":"compute","count":2,"tags":{"role":"worker"}}`)
	require.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))

	var resp AddHostResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "session-1", resp.Session)

	require.Len(t, s.queue.requests, 1)
	assert.Equal(t, "compute", s.queue.requests[0].HardwareProfile)
	assert.Equal(t, 2, s.queue.requests[0].Count)
	assert.Equal(t, map[string]string{"role": "worker"}, s.queue.requests[0].Tags)
}

func TestAddHostHandler_BadRequests(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"invalid json", `{"hardwareProfile":`, "Invalid JSON"},
		{"unknown field", `{"hardwareProfile":"compute","flavor":"large"}`, "Invalid JSON"},
		{"missing hardware profile", `{"count":1}`, "hardwareProfile is required"},
		{"negative count", `{"hardwareProfile":"compute","count":-1}`, "count must not be negative"},
		{"session supplied", `{"hardwareProfile":"compute","addHostSession":"abc"}`, "addHostSession is assigned by the server"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			w := s.do(http.MethodPost, "/v1/addhost", tt.body)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Equal(t, tt.want, decodeError(t, w))
			assert.Empty(t, s.queue.requests)
		})
	}
}

func TestAddHostHandler_QueueFailure(t *testing.T) {
	s := newTestServer(t)
	s.queue.err = errors.New("disk full")

	w := s.do(http.MethodPost, "/v1/addhost", `{"hardwareProfile":"compute","count":1}`)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Failed to queue add nodes request", decodeError(t, w))
}

func TestAddHostStatusHandler(t *testing.T) {
	s := newTestServer(t)
	rack := 3
	networkID := int64(1)
	s.sessions.status = addhost.SessionStatus{
		AddHostStatus: domain.AddHostStatus{
			Running:  false,
			Messages: []string{"Added 1 node(s)"},
			Nodes:    []string{"compute-03-001"},
		},
		NodeDetails: []domain.Node{{
			ID:                7,
			Name:              "compute-03-001",
			Rack:              &rack,
			HardwareProfileID: 2,
			Nics: []domain.Nic{{
				NetworkID: &networkID,
				Network:   &domain.Network{ID: networkID, Name: "prov"},
				Device:    "eth0",
				MAC:       "00:11:22:33:44:55",
				IP:        "10.0.0.1",
				Boot:      true,
			}},
			Tags: []domain.Tag{{Key: "role", Value: "worker"}},
		}},
	}

	w := s.do(http.MethodGet, "/v1/addhost/session-1?start=2&nodes=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2, s.sessions.start)
	assert.True(t, s.sessions.includeNodes)

	var resp SessionStatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Running)
	assert.Equal(t, []string{"Added 1 node(s)"}, resp.Messages)
	require.Len(t, resp.NodeDetails, 1)
	assert.Equal(t, "compute-03-001", resp.NodeDetails[0].Name)
	assert.Equal(t, []NicResponse{{Device: "eth0", MAC: "00:11:22:33:44:55", IP: "10.0.0.1", Network: "prov", Boot: true}}, resp.NodeDetails[0].Nics)
	assert.Equal(t, map[string]string{"role": "worker"}, resp.NodeDetails[0].Tags)
}

func TestAddHostStatusHandler_Defaults(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/v1/addhost/session-1", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0, s.sessions.start)
	assert.False(t, s.sessions.includeNodes)
	assert.JSONEq(t, `{"running":false,"messages":[]}`, w.Body.String())
}

func TestAddHostStatusHandler_Errors(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodGet, "/v1/addhost/session-1?start=abc", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(http.MethodGet, "/v1/addhost/session-1?nodes=maybe", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s.sessions.err = fmt.Errorf("session missing: %w", addhost.ErrNotFound)
	w = s.do(http.MethodGet, "/v1/addhost/missing", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "session missing: not found", decodeError(t, w))
}

func TestDeleteNodeHandler(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodDelete, "/v1/nodes/compute-01?force=true", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"compute-01"}, s.nodes.names)
	assert.True(t, s.nodes.force)
	assert.JSONEq(t, `{"deleted":["compute-01"]}`, w.Body.String())
}

func TestDeleteNodeHandler_Errors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", fmt.Errorf("node compute-01: %w", addhost.ErrNodeNotFound), http.StatusNotFound},
		{"denied", fmt.Errorf("profile locked: %w", node.ErrDeleteDenied), http.StatusConflict},
		{"internal", errors.New("database is locked"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.nodes.err = tt.err

			w := s.do(http.MethodDelete, "/v1/nodes/compute-01", "")
			assert.Equal(t, tt.want, w.Code)
			assert.False(t, s.nodes.force)
		})
	}

	s := newTestServer(t)
	w := s.do(http.MethodDelete, "/v1/nodes/compute-01?force=sometimes", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAbortDiscoveryHandler(t *testing.T) {
	s := newTestServer(t)

	w := s.do(http.MethodPost, "/v1/discovery/abort", "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "No node discovery is running")

	s.aborter.running = 1
	w = s.do(http.MethodPost, "/v1/discovery/abort?session=abc", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []string{"", "abc"}, s.aborter.sessions)

	handler := NewRouter(NewAPI(Config{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/discovery/abort", nil))
	assert.Equal(t, http.StatusNotImplemented, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "tortuga_test_total", Help: "test counter"})
	s.registry.MustRegister(counter)
	counter.Inc()

	w := s.do(http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "tortuga_test_total 1")
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{addhost.ErrInvalidArgument, http.StatusBadRequest},
		{addhost.ErrNameSpaceExhausted, http.StatusBadRequest},
		{addhost.ErrInvalidMACAddress, http.StatusBadRequest},
		{repository.ErrInvalidEntity, http.StatusBadRequest},
		{addhost.ErrHardwareProfileNotFound, http.StatusNotFound},
		{addhost.ErrNetworkNotFound, http.StatusNotFound},
		{repository.ErrNotFound, http.StatusNotFound},
		{addhost.ErrConflict, http.StatusConflict},
		{addhost.ErrNodeAlreadyExists, http.StatusConflict},
		{addhost.ErrMACAddressAlreadyExists, http.StatusConflict},
		{node.ErrDeleteDenied, http.StatusConflict},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.err.Error(), func(t *testing.T) {
			assert.Equal(t, tt.want, statusFor(fmt.Errorf("wrapped: %w", tt.err)))
		})
	}
}
