// Package resourceadapter defines the contract between the add-host workflow
// and the platforms that actually provide hardware.
package resourceadapter

import (
	"context"

	"github.com/UnivaCorporation/tortuga-sub001/internal/domain"
)

// Hook actions understood by adapters
const (
	ActionAdd      = "add"
	ActionStart    = "start"
	ActionDelete   = "delete"
	ActionShutdown = "shutdown"
	ActionReset    = "reset"
)

// Adapter provisions nodes on a specific platform
type Adapter interface {
	// Name returns the name the adapter is registered under
	Name() string

	// ValidateStartArguments rejects requests the adapter cannot serve
	ValidateStartArguments(ctx context.Context, req *domain.AddNodesRequest, hw *domain.HardwareProfile, sw *domain.SoftwareProfile) error

	// Start creates and initializes the requested nodes. The returned nodes
	// are not persisted yet and still hold their reservations.
	Start(ctx context.Context, req *domain.AddNodesRequest, hw *domain.HardwareProfile, sw *domain.SoftwareProfile) ([]*domain.Node, error)

	// HookAction notifies external tooling about an action on nodes
	HookAction(ctx context.Context, action string, nodeNames []string, args ...string) error

	// DeleteNodes releases the platform resources held by nodes
	DeleteNodes(ctx context.Context, nodes []domain.Node) error
}
