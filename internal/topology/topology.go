// Package topology loads networks and hardware/software profiles from a YAML
// document into the inventory.
package topology

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/UnivaCorporation/tortuga-sub001/internal/domain"
	"github.com/UnivaCorporation/tortuga-sub001/internal/repository"
	"gopkg.in/yaml.v3"
)

// Topology is the YAML document accepted by Load
type Topology struct {
	Networks         []Network         `yaml:"networks"`
	SoftwareProfiles []SoftwareProfile `yaml:"softwareProfiles"`
	HardwareProfiles []HardwareProfile `yaml:"hardwareProfiles"`
}

type Network struct {
	Name      string `yaml:"name"`
	Address   string `yaml:"address"`
	Netmask   string `yaml:"netmask"`
	StartIP   string `yaml:"startIp"`
	Increment int    `yaml:"increment"`
	UsingDHCP bool   `yaml:"usingDhcp"`
	Type      string `yaml:"type"`
}

type SoftwareProfile struct {
	Name        string `yaml:"name"`
	Idle        bool   `yaml:"idle"`
	MinNodes    int    `yaml:"minNodes"`
	LockedState string `yaml:"lockedState"`
}

type HardwareProfile struct {
	Name                string              `yaml:"name"`
	NameFormat          string              `yaml:"nameFormat"`
	Location            string              `yaml:"location"`
	ResourceAdapter     string              `yaml:"resourceAdapter"`
	IdleSoftwareProfile string              `yaml:"idleSoftwareProfile"`
	Networks            []NetworkAttachment `yaml:"networks"`
}

// NetworkAttachment places a named network on a device of a hardware profile
type NetworkAttachment struct {
	Network string `yaml:"network"`
	Device  string `yaml:"device"`
}

// Summary counts the entities written by Apply
type Summary struct {
	Networks         int
	SoftwareProfiles int
	HardwareProfiles int
}

// Load decodes a topology document. Unknown keys are rejected.
func Load(r io.Reader) (*Topology, error) {
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)

	var t Topology
	if err := decoder.Decode(&t); err != nil {
		if errors.Is(err, io.EOF) {
			return &t, nil
		}
		return nil, fmt.Errorf("failed to decode topology: %w", err)
	}
	return &t, nil
}

type NetworkStore interface {
	Save(ctx context.Context, n domain.Network) (domain.Network, error)
	FindByName(ctx context.Context, name string) (domain.Network, error)
}

type SoftwareProfileStore interface {
	Save(ctx context.Context, sp domain.SoftwareProfile) (domain.SoftwareProfile, error)
	FindByName(ctx context.Context, name string) (domain.SoftwareProfile, error)
}

type HardwareProfileStore interface {
	Save(ctx context.Context, hp domain.HardwareProfile) (domain.HardwareProfile, error)
	FindByName(ctx context.Context, name string) (domain.HardwareProfile, error)
}

// Loader upserts a Topology by entity name
type Loader struct {
	networks         NetworkStore
	softwareProfiles SoftwareProfileStore
	hardwareProfiles HardwareProfileStore
	logger           *slog.Logger
}

func NewLoader(networks NetworkStore, sw SoftwareProfileStore, hw HardwareProfileStore, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		networks:         networks,
		softwareProfiles: sw,
		hardwareProfiles: hw,
		logger:           logger,
	}
}

// Apply writes networks first, then software profiles, then hardware
// profiles so that references resolve against rows written earlier in the
// same document. Existing rows with the same name are updated in place.
func (l *Loader) Apply(ctx context.Context, t *Topology) (Summary, error) {
	var summary Summary

	for _, n := range t.Networks {
		network := domain.Network{
			Name:      n.Name,
			Address:   n.Address,
			Netmask:   n.Netmask,
			StartIP:   n.StartIP,
			Increment: n.Increment,
			UsingDHCP: n.UsingDHCP,
			Type:      n.Type,
		}
		existing, err := l.networks.FindByName(ctx, n.Name)
		switch {
		case err == nil:
			network.ID = existing.ID
		case !errors.Is(err, repository.ErrNotFound):
			return summary, err
		}
		if _, err := l.networks.Save(ctx, network); err != nil {
			return summary, fmt.Errorf("network %q: %w", n.Name, err)
		}
		l.logger.Info("Loaded network", "name", n.Name, "address", network.String())
		summary.Networks++
	}

	for _, s := range t.SoftwareProfiles {
		sp := domain.SoftwareProfile{
			Name:        s.Name,
			IsIdle:      s.Idle,
			MinNodes:    s.MinNodes,
			LockedState: s.LockedState,
		}
		switch sp.LockedState {
		case "", domain.LockUnlocked, domain.LockSoftLocked, domain.LockHardLocked:
		default:
			return summary, fmt.Errorf("software profile %q: invalid locked state %q: %w", s.Name, s.LockedState, repository.ErrInvalidEntity)
		}
		existing, err := l.softwareProfiles.FindByName(ctx, s.Name)
		switch {
		case err == nil:
			sp.ID = existing.ID
		case !errors.Is(err, repository.ErrNotFound):
			return summary, err
		}
		if _, err := l.softwareProfiles.Save(ctx, sp); err != nil {
			return summary, fmt.Errorf("software profile %q: %w", s.Name, err)
		}
		l.logger.Info("Loaded software profile", "name", s.Name)
		summary.SoftwareProfiles++
	}

	for _, h := range t.HardwareProfiles {
		hp := domain.HardwareProfile{
			Name:            h.Name,
			NameFormat:      h.NameFormat,
			Location:        h.Location,
			ResourceAdapter: h.ResourceAdapter,
		}

		if h.IdleSoftwareProfile != "" {
			idle, err := l.softwareProfiles.FindByName(ctx, h.IdleSoftwareProfile)
			if err != nil {
				return summary, fmt.Errorf("hardware profile %q: idle software profile %q: %w", h.Name, h.IdleSoftwareProfile, err)
			}
			if !idle.IsIdle {
				return summary, fmt.Errorf("hardware profile %q: software profile %q is not idle: %w", h.Name, idle.Name, repository.ErrInvalidEntity)
			}
			hp.IdleSoftwareProfileID = &idle.ID
		}

		for _, attachment := range h.Networks {
			network, err := l.networks.FindByName(ctx, attachment.Network)
			if err != nil {
				return summary, fmt.Errorf("hardware profile %q: network %q: %w", h.Name, attachment.Network, err)
			}
			hp.Networks = append(hp.Networks, domain.HardwareProfileNetwork{
				NetworkID: network.ID,
				Device:    attachment.Device,
			})
		}

		existing, err := l.hardwareProfiles.FindByName(ctx, h.Name)
		switch {
		case err == nil:
			hp.ID = existing.ID
		case !errors.Is(err, repository.ErrNotFound):
			return summary, err
		}
		if _, err := l.hardwareProfiles.Save(ctx, hp); err != nil {
			return summary, fmt.Errorf("hardware profile %q: %w", h.Name, err)
		}
		l.logger.Info("Loaded hardware profile", "name", h.Name, "networks", len(hp.Networks))
		summary.HardwareProfiles++
	}

	return summary, nil
}
