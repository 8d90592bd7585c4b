package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/UnivaCorporation/tortuga-sub001/internal/datastore"
	"github.com/UnivaCorporation/tortuga-sub001/internal/domain"
)

// HardwareProfileRepository defines domain-specific operations for hardware profiles
type HardwareProfileRepository interface {
	Repository[domain.HardwareProfile, int64]
	FindByName(ctx context.Context, name string) (domain.HardwareProfile, error)
}

type hardwareProfileRepositoryImpl struct {
	ds *datastore.Datastore
}

// NewHardwareProfileRepository creates a new hardware profile repository
func NewHardwareProfileRepository(ds *datastore.Datastore) HardwareProfileRepository {
	return &hardwareProfileRepositoryImpl{ds: ds}
}

const hardwareProfileColumns = "id, name, name_format, location, resource_adapter, idle_software_profile_id"

func scanHardwareProfile(row rowScanner) (domain.HardwareProfile, error) {
	var hp domain.HardwareProfile
	var idle sql.NullInt64
	err := row.Scan(&hp.ID, &hp.Name, &hp.NameFormat, &hp.Location, &hp.ResourceAdapter, &idle)
	hp.IdleSoftwareProfileID = int64Ptr(idle)
	return hp, err
}

// Save creates or updates a hardware profile together with its network attachments
func (r *hardwareProfileRepositoryImpl) Save(ctx context.Context, hp domain.HardwareProfile) (domain.HardwareProfile, error) {
	if hp.Name == "" {
		return domain.HardwareProfile{}, fmt.Errorf("hardware profile name is required: %w", ErrInvalidEntity)
	}
	if hp.NameFormat == "" {
		hp.NameFormat = domain.NameFormatWildcard
	}
	if hp.Location == "" {
		hp.Location = domain.LocationLocal
	}
	if hp.Location != domain.LocationLocal && hp.Location != domain.LocationRemote {
		return domain.HardwareProfile{}, fmt.Errorf("invalid hardware profile location %q: %w", hp.Location, ErrInvalidEntity)
	}

	err := r.ds.WithTx(ctx, func(tx *sql.Tx) error {
		if hp.ID != 0 {
			_, err := tx.ExecContext(ctx, `
				UPDATE hardware_profiles
				SET name = ?, name_format = ?, location = ?, resource_adapter = ?, idle_software_profile_id = ?,
					updated_at = CURRENT_TIMESTAMP
				WHERE id = ?`,
				hp.Name, hp.NameFormat, hp.Location, hp.ResourceAdapter, nullInt64(hp.IdleSoftwareProfileID), hp.ID)
			if err != nil {
				return wrapWriteError(err, "failed to update hardware profile %q", hp.Name)
			}
			if _, err := tx.ExecContext(ctx, "DELETE FROM hardware_profile_networks WHERE hardware_profile_id = ?", hp.ID); err != nil {
				return fmt.Errorf("failed to clear hardware profile networks: %w", err)
			}
		} else {
			result, err := tx.ExecContext(ctx, `
				INSERT INTO hardware_profiles (name, name_format, location, resource_adapter, idle_software_profile_id)
				VALUES (?, ?, ?, ?, ?)`,
				hp.Name, hp.NameFormat, hp.Location, hp.ResourceAdapter, nullInt64(hp.IdleSoftwareProfileID))
			if err != nil {
				return wrapWriteError(err, "failed to create hardware profile %q", hp.Name)
			}
			if hp.ID, err = result.LastInsertId(); err != nil {
				return fmt.Errorf("failed to get hardware profile ID: %w", err)
			}
		}

		for _, hpn := range hp.Networks {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO hardware_profile_networks (hardware_profile_id, network_id, device)
				VALUES (?, ?, ?)`,
				hp.ID, hpn.NetworkID, hpn.Device)
			if err != nil {
				return wrapWriteError(err, "failed to attach network %d to hardware profile %q", hpn.NetworkID, hp.Name)
			}
		}
		return nil
	})
	if err != nil {
		return domain.HardwareProfile{}, err
	}

	return hp, nil
}

// FindByID finds a hardware profile by ID
func (r *hardwareProfileRepositoryImpl) FindByID(ctx context.Context, id int64) (domain.HardwareProfile, error) {
	row := r.ds.DB.QueryRowContext(ctx, "SELECT "+hardwareProfileColumns+" FROM hardware_profiles WHERE id = ?", id)
	hp, err := scanHardwareProfile(row)
	if err != nil {
		return domain.HardwareProfile{}, wrapReadError(err, "hardware profile with ID %d", id)
	}
	return r.withNetworks(ctx, hp)
}

// FindByName finds a hardware profile by name
func (r *hardwareProfileRepositoryImpl) FindByName(ctx context.Context, name string) (domain.HardwareProfile, error) {
	row := r.ds.DB.QueryRowContext(ctx, "SELECT "+hardwareProfileColumns+" FROM hardware_profiles WHERE name = ?", name)
	hp, err := scanHardwareProfile(row)
	if err != nil {
		return domain.HardwareProfile{}, wrapReadError(err, "hardware profile %q", name)
	}
	return r.withNetworks(ctx, hp)
}

// FindAll finds all hardware profiles
func (r *hardwareProfileRepositoryImpl) FindAll(ctx context.Context) ([]domain.HardwareProfile, error) {
	rows, err := r.ds.DB.QueryContext(ctx, "SELECT "+hardwareProfileColumns+" FROM hardware_profiles ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to find hardware profiles: %w", err)
	}

	var profiles []domain.HardwareProfile
	for rows.Next() {
		hp, err := scanHardwareProfile(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan hardware profile: %w", err)
		}
		profiles = append(profiles, hp)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hardware profiles: %w", err)
	}

	for i := range profiles {
		if profiles[i], err = r.withNetworks(ctx, profiles[i]); err != nil {
			return nil, err
		}
	}
	return profiles, nil
}

// withNetworks loads the network attachments of hp
func (r *hardwareProfileRepositoryImpl) withNetworks(ctx context.Context, hp domain.HardwareProfile) (domain.HardwareProfile, error) {
	rows, err := r.ds.DB.QueryContext(ctx, `
		SELECT hpn.device, n.id, n.name, n.address, n.netmask, n.start_ip, n.increment, n.using_dhcp, n.type
		FROM hardware_profile_networks hpn
		JOIN networks n ON n.id = hpn.network_id
		WHERE hpn.hardware_profile_id = ?
		ORDER BY hpn.device`, hp.ID)
	if err != nil {
		return domain.HardwareProfile{}, fmt.Errorf("failed to load networks for hardware profile %q: %w", hp.Name, err)
	}
	defer rows.Close()

	hp.Networks = nil
	for rows.Next() {
		var hpn domain.HardwareProfileNetwork
		var n domain.Network
		var startIP sql.NullString
		if err := rows.Scan(&hpn.Device, &n.ID, &n.Name, &n.Address, &n.Netmask, &startIP, &n.Increment, &n.UsingDHCP, &n.Type); err != nil {
			return domain.HardwareProfile{}, fmt.Errorf("failed to scan hardware profile network: %w", err)
		}
		n.StartIP = startIP.String
		hpn.NetworkID = n.ID
		hpn.Network = &n
		hp.Networks = append(hp.Networks, hpn)
	}
	return hp, rows.Err()
}

// DeleteByID deletes a hardware profile by ID
func (r *hardwareProfileRepositoryImpl) DeleteByID(ctx context.Context, id int64) error {
	result, err := r.ds.DB.ExecContext(ctx, "DELETE FROM hardware_profiles WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete hardware profile: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("hardware profile with ID %d: %w", id, ErrNotFound)
	}
	return nil
}

// ExistsByID checks if a hardware profile exists by ID
func (r *hardwareProfileRepositoryImpl) ExistsByID(ctx context.Context, id int64) (bool, error) {
	return existsBy(ctx, r.ds.DB, "SELECT COUNT(*) FROM hardware_profiles WHERE id = ?", id)
}
