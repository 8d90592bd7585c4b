package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/UnivaCorporation/tortuga-sub001/internal/domain"
)

// BootConfigWriter manages the network boot configuration of local nodes
type BootConfigWriter interface {
	Write(ctx context.Context, node *domain.Node, hw *domain.HardwareProfile, sw *domain.SoftwareProfile) error
	Remove(ctx context.Context, node domain.Node) error
}

// PXEConfigDir writes one pxelinux configuration file per boot NIC, named
// after the NIC's MAC address ("01-52-54-00-00-00-01").
type PXEConfigDir struct {
	Dir string
}

// Write installs the configuration that makes node boot into the installer
// for its software profile. Nodes without a known boot MAC are skipped.
func (p PXEConfigDir) Write(ctx context.Context, node *domain.Node, hw *domain.HardwareProfile, sw *domain.SoftwareProfile) error {
	macs := bootMACs(*node)
	if len(macs) == 0 {
		return nil
	}

	if err := os.MkdirAll(p.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create boot configuration directory: %w", err)
	}

	content := pxeConfig(node, hw, sw)
	for _, mac := range macs {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := os.WriteFile(p.path(mac), content, 0o644); err != nil {
			return fmt.Errorf("failed to write boot configuration: %w", err)
		}
	}
	return nil
}

// Remove deletes the configuration files of every NIC of node. Missing files
// are ignored.
func (p PXEConfigDir) Remove(ctx context.Context, node domain.Node) error {
	for _, nic := range node.Nics {
		if nic.MAC == "" {
			continue
		}
		if err := os.Remove(p.path(nic.MAC)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("failed to remove boot configuration: %w", err)
		}
	}
	return nil
}

func (p PXEConfigDir) path(mac string) string {
	return filepath.Join(p.Dir, "01-"+strings.ReplaceAll(strings.ToLower(mac), ":", "-"))
}

func bootMACs(node domain.Node) []string {
	var macs []string
	for _, nic := range node.Nics {
		if nic.Boot && nic.MAC != "" {
			macs = append(macs, nic.MAC)
		}
	}
	return macs
}

func pxeConfig(node *domain.Node, hw *domain.HardwareProfile, sw *domain.SoftwareProfile) []byte {
	swName := ""
	if sw != nil {
		swName = sw.Name
	}
	ip := ""
	if nic := node.ProvisioningNic(); nic != nil {
		ip = nic.IP
	}

	var b bytes.Buffer
	fmt.Fprintf(&b, "# %s\n", node.Name)
	fmt.Fprintf(&b, "# hardware profile: %s\n", hw.Name)
	fmt.Fprintf(&b, "# software profile: %s\n", swName)
	b.WriteString("DEFAULT install\n")
	b.WriteString("LABEL install\n")
	fmt.Fprintf(&b, "  KERNEL kernel-%s\n", swName)
	fmt.Fprintf(&b, "  APPEND initrd=initrd-%s hostname=%s ip=%s\n", swName, node.Name, ip)
	return b.Bytes()
}

// LogBootConfig only logs boot configuration changes. It is used when no
// boot configuration directory is configured.
type LogBootConfig struct {
	Logger *slog.Logger
}

func (l LogBootConfig) Write(ctx context.Context, node *domain.Node, hw *domain.HardwareProfile, sw *domain.SoftwareProfile) error {
	l.Logger.InfoContext(ctx, "Boot configuration not written, no boot configuration directory", "node", node.Name, "macs", bootMACs(*node))
	return nil
}

func (l LogBootConfig) Remove(ctx context.Context, node domain.Node) error {
	l.Logger.InfoContext(ctx, "Boot configuration not removed, no boot configuration directory", "node", node.Name)
	return nil
}
