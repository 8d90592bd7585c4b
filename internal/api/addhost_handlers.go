package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/UnivaCorporation/tortuga-sub001/internal/addhost"
	"github.com/UnivaCorporation/tortuga-sub001/internal/domain"
	"github.com/go-chi/chi/v5"
)

// AddHostResponse is returned once an add-nodes request is queued
type AddHostResponse struct {
	Session string `json:"session"`
}

// NicResponse describes a NIC of a node in a session status
type NicResponse struct {
	Device  string `json:"device,omitempty"`
	MAC     string `json:"mac,omitempty"`
	IP      string `json:"ip,omitempty"`
	Network string `json:"network,omitempty"`
	Boot    bool   `json:"boot"`
}

// NodeResponse describes a node added by a session
type NodeResponse struct {
	ID                int64             `json:"id"`
	Name              string            `json:"name"`
	Rack              *int              `json:"rack,omitempty"`
	HardwareProfileID int64             `json:"hardwareProfileId"`
	SoftwareProfileID *int64            `json:"softwareProfileId,omitempty"`
	Nics              []NicResponse     `json:"nics"`
	Tags              map[string]string `json:"tags,omitempty"`
}

// SessionStatusResponse is the body of GET /v1/addhost/{session}
type SessionStatusResponse struct {
	Running     bool           `json:"running"`
	Messages    []string       `json:"messages"`
	Nodes       []string       `json:"nodes,omitempty"`
	NodeDetails []NodeResponse `json:"nodeDetails,omitempty"`
}

// addHostHandler handles POST /v1/addhost.
//
// Request: JSON add-nodes request. Responds 202 with the session id that
// tracks the queued request.
func (a *API) addHostHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.AddNodesRequest
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		a.writeError(w, http.StatusBadRequest, "Invalid JSON")
		return
	}

	if req.HardwareProfile == "" {
		a.writeError(w, http.StatusBadRequest, "hardwareProfile is required")
		return
	}
	if req.Count < 0 {
		a.writeError(w, http.StatusBadRequest, "count must not be negative")
		return
	}
	if req.AddHostSession != "" {
		a.writeError(w, http.StatusBadRequest, "addHostSession is assigned by the server")
		return
	}

	session, err := a.queue.Enqueue(r.Context(), req)
	if err != nil {
		a.writeFailure(w, r, err, "Failed to queue add nodes request")
		return
	}

	a.writeJSON(w, http.StatusAccepted, AddHostResponse{Session: session})
}

// addHostStatusHandler handles GET /v1/addhost/{session}?start=N&nodes=true
func (a *API) addHostStatusHandler(w http.ResponseWriter, r *http.Request) {
	session := chi.URLParam(r, "session")
	query := r.URL.Query()

	start := 0
	if s := query.Get("start"); s != "" {
		var err error
		if start, err = strconv.Atoi(s); err != nil || start < 0 {
			a.writeError(w, http.StatusBadRequest, "Invalid start index")
			return
		}
	}

	includeNodes := false
	if s := query.Get("nodes"); s != "" {
		var err error
		if includeNodes, err = strconv.ParseBool(s); err != nil {
			a.writeError(w, http.StatusBadRequest, "Invalid nodes flag")
			return
		}
	}

	status, err := a.sessions.GetStatus(r.Context(), session, start, includeNodes)
	if err != nil {
		a.writeFailure(w, r, err, "Failed to get session status")
		return
	}

	a.writeJSON(w, http.StatusOK, toSessionStatusResponse(status))
}

func toSessionStatusResponse(status addhost.SessionStatus) SessionStatusResponse {
	resp := SessionStatusResponse{
		Running:  status.Running,
		Messages: status.Messages,
		Nodes:    status.Nodes,
	}
	if resp.Messages == nil {
		resp.Messages = []string{}
	}
	for _, n := range status.NodeDetails {
		resp.NodeDetails = append(resp.NodeDetails, toNodeResponse(n))
	}
	return resp
}

func toNodeResponse(n domain.Node) NodeResponse {
	resp := NodeResponse{
		ID:                n.ID,
		Name:              n.Name,
		Rack:              n.Rack,
		HardwareProfileID: n.HardwareProfileID,
		SoftwareProfileID: n.SoftwareProfileID,
		Nics:              []NicResponse{},
	}
	for _, nic := range n.Nics {
		nr := NicResponse{Device: nic.Device, MAC: nic.MAC, IP: nic.IP, Boot: nic.Boot}
		if nic.Network != nil {
			nr.Network = nic.Network.Name
		}
		resp.Nics = append(resp.Nics, nr)
	}
	if len(n.Tags) > 0 {
		resp.Tags = make(map[string]string, len(n.Tags))
		for _, tag := range n.Tags {
			resp.Tags[tag.Key] = tag.Value
		}
	}
	return resp
}
