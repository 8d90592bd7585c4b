package repository

import (
	"context"
	"database/sql"
	"fmt"
	"net/netip"

	"github.com/UnivaCorporation/tortuga-sub001/internal/domain"
)

// NetworkRepository defines domain-specific operations for networks
type NetworkRepository interface {
	Repository[domain.Network, int64]
	FindByName(ctx context.Context, name string) (domain.Network, error)
}

// networkRepositoryImpl implements NetworkRepository
type networkRepositoryImpl struct {
	db *sql.DB
}

// NewNetworkRepository creates a new network repository
func NewNetworkRepository(db *sql.DB) NetworkRepository {
	return &networkRepositoryImpl{
		db: db,
	}
}

const networkColumns = "id, name, address, netmask, start_ip, increment, using_dhcp, type"

func scanNetwork(row rowScanner) (domain.Network, error) {
	var n domain.Network
	var startIP sql.NullString
	err := row.Scan(&n.ID, &n.Name, &n.Address, &n.Netmask, &startIP, &n.Increment, &n.UsingDHCP, &n.Type)
	n.StartIP = startIP.String
	return n, err
}

func validateNetwork(n domain.Network) error {
	if n.Name == "" {
		return fmt.Errorf("network name is required: %w", ErrInvalidEntity)
	}
	prefix, err := n.Prefix()
	if err != nil {
		return fmt.Errorf("%v: %w", err, ErrInvalidEntity)
	}
	if n.StartIP != "" {
		start, err := netip.ParseAddr(n.StartIP)
		if err != nil || !prefix.Contains(start) {
			return fmt.Errorf("start IP %q is not within network %s: %w", n.StartIP, prefix, ErrInvalidEntity)
		}
	}
	if n.Increment < 0 {
		return fmt.Errorf("network increment must be positive: %w", ErrInvalidEntity)
	}
	return nil
}

// Save creates or updates a network
func (r *networkRepositoryImpl) Save(ctx context.Context, n domain.Network) (domain.Network, error) {
	if err := validateNetwork(n); err != nil {
		return domain.Network{}, err
	}
	if n.Increment == 0 {
		n.Increment = 1
	}
	if n.Type == "" {
		n.Type = domain.NetworkTypeProvision
	}

	if n.ID != 0 {
		_, err := r.db.ExecContext(ctx, `
			UPDATE networks
			SET name = ?, address = ?, netmask = ?, start_ip = ?, increment = ?, using_dhcp = ?, type = ?,
				updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`,
			n.Name, n.Address, n.Netmask, nullString(n.StartIP), n.Increment, n.UsingDHCP, n.Type, n.ID)
		if err != nil {
			return domain.Network{}, wrapWriteError(err, "failed to update network %q", n.Name)
		}
		return n, nil
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO networks (name, address, netmask, start_ip, increment, using_dhcp, type)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		n.Name, n.Address, n.Netmask, nullString(n.StartIP), n.Increment, n.UsingDHCP, n.Type)
	if err != nil {
		return domain.Network{}, wrapWriteError(err, "failed to create network %q", n.Name)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return domain.Network{}, fmt.Errorf("failed to get network ID: %w", err)
	}

	n.ID = id
	return n, nil
}

// FindByID finds a network by ID
func (r *networkRepositoryImpl) FindByID(ctx context.Context, id int64) (domain.Network, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+networkColumns+" FROM networks WHERE id = ?", id)
	n, err := scanNetwork(row)
	if err != nil {
		return domain.Network{}, wrapReadError(err, "network with ID %d", id)
	}
	return n, nil
}

// FindByName finds a network by name
func (r *networkRepositoryImpl) FindByName(ctx context.Context, name string) (domain.Network, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+networkColumns+" FROM networks WHERE name = ?", name)
	n, err := scanNetwork(row)
	if err != nil {
		return domain.Network{}, wrapReadError(err, "network %q", name)
	}
	return n, nil
}

// FindAll finds all networks
func (r *networkRepositoryImpl) FindAll(ctx context.Context) ([]domain.Network, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+networkColumns+" FROM networks ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to find networks: %w", err)
	}
	defer rows.Close()

	var networks []domain.Network
	for rows.Next() {
		n, err := scanNetwork(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan network: %w", err)
		}
		networks = append(networks, n)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating networks: %w", err)
	}

	return networks, nil
}

// DeleteByID deletes a network by ID
func (r *networkRepositoryImpl) DeleteByID(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM networks WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete network: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected == 0 {
		return fmt.Errorf("network with ID %d: %w", id, ErrNotFound)
	}

	return nil
}

// ExistsByID checks if a network exists by ID
func (r *networkRepositoryImpl) ExistsByID(ctx context.Context, id int64) (bool, error) {
	exists, err := existsBy(ctx, r.db, "SELECT COUNT(*) FROM networks WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("failed to check network existence: %w", err)
	}
	return exists, nil
}
