package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/UnivaCorporation/tortuga-sub001/internal/addhost"
	"github.com/UnivaCorporation/tortuga-sub001/internal/domain"
	"github.com/UnivaCorporation/tortuga-sub001/internal/node"
	"github.com/UnivaCorporation/tortuga-sub001/internal/repository"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// AddHostQueue accepts add-nodes requests for asynchronous processing
type AddHostQueue interface {
	Enqueue(ctx context.Context, req domain.AddNodesRequest) (string, error)
}

// SessionReader reads add-host session progress
type SessionReader interface {
	GetStatus(ctx context.Context, id string, startMessageIndex int, includeNodes bool) (addhost.SessionStatus, error)
}

// NodeDeleter runs the node deletion workflow
type NodeDeleter interface {
	DeleteNodes(ctx context.Context, names []string, force bool) ([]string, error)
}

// DiscoveryAborter stops running node discoveries. An empty session aborts
// all of them. It returns how many discoveries were signalled.
type DiscoveryAborter interface {
	Abort(session string) int
}

// Config holds the API collaborators. Discovery and Gatherer are optional.
type Config struct {
	Queue     AddHostQueue
	Sessions  SessionReader
	Nodes     NodeDeleter
	Discovery DiscoveryAborter
	Gatherer  prometheus.Gatherer
	Logger    *slog.Logger
}

// API serves the add-host and node endpoints
type API struct {
	queue     AddHostQueue
	sessions  SessionReader
	nodes     NodeDeleter
	discovery DiscoveryAborter
	gatherer  prometheus.Gatherer
	logger    *slog.Logger
}

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error string `json:"error"`
}

// NewAPI creates a new API instance
func NewAPI(cfg Config) *API {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &API{
		queue:     cfg.Queue,
		sessions:  cfg.Sessions,
		nodes:     cfg.Nodes,
		discovery: cfg.Discovery,
		gatherer:  cfg.Gatherer,
		logger:    logger.With("component", "api"),
	}
}

// NewRouter returns a chi router with middleware and every API route registered
func NewRouter(a *API) chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(a.logger))
	r.Use(middleware.Recoverer)

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		if _, err := fmt.Fprintln(w, "Tortuga provisioning service is running!"); err != nil {
			a.logger.Warn("Failed to write response", "error", err)
		}
	})

	a.RegisterRoutes(r)
	return r
}

// RegisterRoutes registers all API endpoints to the given chi router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/v1/addhost", func(r chi.Router) {
		r.Post("/", a.addHostHandler)
		r.Get("/{session}", a.addHostStatusHandler)
	})

	r.Route("/v1/nodes", func(r chi.Router) {
		r.Delete("/{name}", a.deleteNodeHandler)
	})

	r.Post("/v1/discovery/abort", a.abortDiscoveryHandler)

	if a.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{}))
	}
}

// statusFor maps error kinds onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, addhost.ErrInvalidArgument),
		errors.Is(err, addhost.ErrInvalidMACAddress),
		errors.Is(err, repository.ErrInvalidEntity):
		return http.StatusBadRequest
	case errors.Is(err, addhost.ErrNotFound),
		errors.Is(err, addhost.ErrNetworkNotFound),
		errors.Is(err, addhost.ErrNicNotFound),
		errors.Is(err, addhost.ErrNodeNotFound),
		errors.Is(err, addhost.ErrResourceAdapterNotFound),
		errors.Is(err, addhost.ErrHardwareProfileNotFound),
		errors.Is(err, addhost.ErrSoftwareProfileNotFound),
		errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, addhost.ErrConflict),
		errors.Is(err, addhost.ErrNodeAlreadyExists),
		errors.Is(err, addhost.ErrMACAddressAlreadyExists),
		errors.Is(err, node.ErrDeleteDenied),
		errors.Is(err, repository.ErrDuplicate):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

func (a *API) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Warn("Failed to encode response", "error", err)
	}
}

func (a *API) writeError(w http.ResponseWriter, status int, msg string) {
	a.writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeFailure reports err with the status its kind maps to. Internal errors
// are logged and replaced by a generic message.
func (a *API) writeFailure(w http.ResponseWriter, r *http.Request, err error, internalMsg string) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		a.logger.ErrorContext(r.Context(), internalMsg, "error", err, "requestId", middleware.GetReqID(r.Context()))
		a.writeError(w, status, internalMsg)
		return
	}
	a.writeError(w, status, err.Error())
}
