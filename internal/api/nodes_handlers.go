package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// DeleteNodesResponse lists the nodes removed by a delete request
type DeleteNodesResponse struct {
	Deleted []string `json:"deleted"`
}

// deleteNodeHandler handles DELETE /v1/nodes/{name}?force=true
func (a *API) deleteNodeHandler(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")

	force := false
	if s := r.URL.Query().Get("force"); s != "" {
		var err error
		if force, err = strconv.ParseBool(s); err != nil {
			a.writeError(w, http.StatusBadRequest, "Invalid force flag")
			return
		}
	}

	deleted, err := a.nodes.DeleteNodes(r.Context(), []string{name}, force)
	if err != nil {
		a.writeFailure(w, r, err, "Failed to delete node")
		return
	}

	a.writeJSON(w, http.StatusOK, DeleteNodesResponse{Deleted: deleted})
}

// abortDiscoveryHandler handles POST /v1/discovery/abort[?session=id]
func (a *API) abortDiscoveryHandler(w http.ResponseWriter, r *http.Request) {
	if a.discovery == nil {
		a.writeError(w, http.StatusNotImplemented, "Node discovery is not available")
		return
	}
	session := r.URL.Query().Get("session")
	if a.discovery.Abort(session) == 0 {
		a.writeError(w, http.StatusConflict, "No node discovery is running")
		return
	}
	a.logger.InfoContext(r.Context(), "Node discovery abort requested", "session", session)
	w.WriteHeader(http.StatusNoContent)
}
