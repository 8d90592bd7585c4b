package domain

import "time"

// NicSpec is the caller supplied description of a single NIC
type NicSpec struct {
	MAC    string `json:"mac,omitempty" yaml:"mac,omitempty"`
	IP     string `json:"ip,omitempty" yaml:"ip,omitempty"`
	Device string `json:"device,omitempty" yaml:"device,omitempty"`
}

// NodeDetail is a caller supplied node description within an add-nodes request
type NodeDetail struct {
	Name string    `json:"name,omitempty" yaml:"name,omitempty"`
	Nics []NicSpec `json:"nics,omitempty" yaml:"nics,omitempty"`
}

// AddNodesRequest is a single add-nodes invocation
type AddNodesRequest struct {
	HardwareProfile              string            `json:"hardwareProfile" yaml:"hardwareProfile"`
	SoftwareProfile              string            `json:"softwareProfile,omitempty" yaml:"softwareProfile,omitempty"`
	Count                        int               `json:"count,omitempty" yaml:"count,omitempty"`
	Rack                         *int              `json:"rack,omitempty" yaml:"rack,omitempty"`
	Tags                         map[string]string `json:"tags,omitempty" yaml:"tags,omitempty"`
	ExtraArgs                    map[string]string `json:"extraArgs,omitempty" yaml:"extraArgs,omitempty"`
	NodeDetails                  []NodeDetail      `json:"nodeDetails,omitempty" yaml:"nodeDetails,omitempty"`
	ResourceAdapterConfiguration string            `json:"resourceAdapterConfiguration,omitempty" yaml:"resourceAdapterConfiguration,omitempty"`
	AddHostSession               string            `json:"addHostSession,omitempty" yaml:"addHostSession,omitempty"`
}

// AddHostStatus is the progress record of an add-host session
type AddHostStatus struct {
	Running  bool     `json:"running"`
	Messages []string `json:"messages"`
	Nodes    []string `json:"nodes,omitempty"`
}

// Node request actions and states.
const (
	NodeRequestActionAdd = "ADD"

	NodeRequestPending = "pending"
	NodeRequestRunning = "running"
	NodeRequestDone    = "done"
	NodeRequestError   = "error"
)

// NodeRequest is a persisted, asynchronously processed add-nodes request
type NodeRequest struct {
	ID             int64
	Action         string
	Request        AddNodesRequest
	AddHostSession string
	State          string
	Message        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
