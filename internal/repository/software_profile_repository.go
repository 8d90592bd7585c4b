package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/UnivaCorporation/tortuga-sub001/internal/domain"
)

// SoftwareProfileRepository defines domain-specific operations for software profiles
type SoftwareProfileRepository interface {
	Repository[domain.SoftwareProfile, int64]
	FindByName(ctx context.Context, name string) (domain.SoftwareProfile, error)
	CountNodes(ctx context.Context, id int64) (int, error)
}

type softwareProfileRepositoryImpl struct {
	db *sql.DB
}

// NewSoftwareProfileRepository creates a new software profile repository
func NewSoftwareProfileRepository(db *sql.DB) SoftwareProfileRepository {
	return &softwareProfileRepositoryImpl{db: db}
}

const softwareProfileColumns = "id, name, is_idle, min_nodes, locked_state"

func scanSoftwareProfile(row rowScanner) (domain.SoftwareProfile, error) {
	var sp domain.SoftwareProfile
	err := row.Scan(&sp.ID, &sp.Name, &sp.IsIdle, &sp.MinNodes, &sp.LockedState)
	return sp, err
}

// Save creates or updates a software profile
func (r *softwareProfileRepositoryImpl) Save(ctx context.Context, sp domain.SoftwareProfile) (domain.SoftwareProfile, error) {
	if sp.Name == "" {
		return domain.SoftwareProfile{}, fmt.Errorf("software profile name is required: %w", ErrInvalidEntity)
	}
	if sp.LockedState == "" {
		sp.LockedState = domain.LockUnlocked
	}

	if sp.ID != 0 {
		_, err := r.db.ExecContext(ctx, `
			UPDATE software_profiles
			SET name = ?, is_idle = ?, min_nodes = ?, locked_state = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`,
			sp.Name, sp.IsIdle, sp.MinNodes, sp.LockedState, sp.ID)
		if err != nil {
			return domain.SoftwareProfile{}, wrapWriteError(err, "failed to update software profile %q", sp.Name)
		}
		return sp, nil
	}

	result, err := r.db.ExecContext(ctx, `
		INSERT INTO software_profiles (name, is_idle, min_nodes, locked_state)
		VALUES (?, ?, ?, ?)`,
		sp.Name, sp.IsIdle, sp.MinNodes, sp.LockedState)
	if err != nil {
		return domain.SoftwareProfile{}, wrapWriteError(err, "failed to create software profile %q", sp.Name)
	}

	if sp.ID, err = result.LastInsertId(); err != nil {
		return domain.SoftwareProfile{}, fmt.Errorf("failed to get software profile ID: %w", err)
	}
	return sp, nil
}

// FindByID finds a software profile by ID
func (r *softwareProfileRepositoryImpl) FindByID(ctx context.Context, id int64) (domain.SoftwareProfile, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+softwareProfileColumns+" FROM software_profiles WHERE id = ?", id)
	sp, err := scanSoftwareProfile(row)
	if err != nil {
		return domain.SoftwareProfile{}, wrapReadError(err, "software profile with ID %d", id)
	}
	return sp, nil
}

// FindByName finds a software profile by name
func (r *softwareProfileRepositoryImpl) FindByName(ctx context.Context, name string) (domain.SoftwareProfile, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+softwareProfileColumns+" FROM software_profiles WHERE name = ?", name)
	sp, err := scanSoftwareProfile(row)
	if err != nil {
		return domain.SoftwareProfile{}, wrapReadError(err, "software profile %q", name)
	}
	return sp, nil
}

// FindAll finds all software profiles
func (r *softwareProfileRepositoryImpl) FindAll(ctx context.Context) ([]domain.SoftwareProfile, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT "+softwareProfileColumns+" FROM software_profiles ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to find software profiles: %w", err)
	}
	defer rows.Close()

	var profiles []domain.SoftwareProfile
	for rows.Next() {
		sp, err := scanSoftwareProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan software profile: %w", err)
		}
		profiles = append(profiles, sp)
	}
	return profiles, rows.Err()
}

// DeleteByID deletes a software profile by ID
func (r *softwareProfileRepositoryImpl) DeleteByID(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM software_profiles WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete software profile: %w", err)
	}
	if n, err := result.RowsAffected(); err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	} else if n == 0 {
		return fmt.Errorf("software profile with ID %d: %w", id, ErrNotFound)
	}
	return nil
}

// ExistsByID checks if a software profile exists by ID
func (r *softwareProfileRepositoryImpl) ExistsByID(ctx context.Context, id int64) (bool, error) {
	return existsBy(ctx, r.db, "SELECT COUNT(*) FROM software_profiles WHERE id = ?", id)
}

// CountNodes returns the number of nodes currently assigned to the profile
func (r *softwareProfileRepositoryImpl) CountNodes(ctx context.Context, id int64) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM nodes WHERE software_profile_id = ?", id).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count nodes for software profile %d: %w", id, err)
	}
	return count, nil
}
