package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/UnivaCorporation/tortuga-sub001/internal/domain"
)

// TagRepository resolves key/value tags
type TagRepository interface {
	// FindOrCreate returns the tag with key and value, creating it when missing
	FindOrCreate(ctx context.Context, key, value string) (domain.Tag, error)
	FindAll(ctx context.Context) ([]domain.Tag, error)

	// DeleteUnused removes tags no longer attached to any node
	DeleteUnused(ctx context.Context) (int64, error)
}

type tagRepositoryImpl struct {
	db *sql.DB
}

// NewTagRepository creates a new tag repository
func NewTagRepository(db *sql.DB) TagRepository {
	return &tagRepositoryImpl{db: db}
}

// FindOrCreate returns an existing tag or inserts a new one
func (r *tagRepositoryImpl) FindOrCreate(ctx context.Context, key, value string) (domain.Tag, error) {
	if key == "" {
		return domain.Tag{}, fmt.Errorf("tag key is required: %w", ErrInvalidEntity)
	}

	tag := domain.Tag{Key: key, Value: value}
	err := r.db.QueryRowContext(ctx, "SELECT id FROM tags WHERE key = ? AND value = ?", key, value).Scan(&tag.ID)
	if err == nil {
		return tag, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return domain.Tag{}, fmt.Errorf("failed to find tag %s=%s: %w", key, value, err)
	}

	// A concurrent insert of the same tag is resolved by the unique constraint
	_, err = r.db.ExecContext(ctx, "INSERT INTO tags (key, value) VALUES (?, ?) ON CONFLICT (key, value) DO NOTHING", key, value)
	if err != nil {
		return domain.Tag{}, wrapWriteError(err, "failed to create tag %s=%s", key, value)
	}
	err = r.db.QueryRowContext(ctx, "SELECT id FROM tags WHERE key = ? AND value = ?", key, value).Scan(&tag.ID)
	if err != nil {
		return domain.Tag{}, wrapReadError(err, "tag %s=%s", key, value)
	}
	return tag, nil
}

// FindAll returns all tags
func (r *tagRepositoryImpl) FindAll(ctx context.Context) ([]domain.Tag, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT id, key, value FROM tags ORDER BY key, value")
	if err != nil {
		return nil, fmt.Errorf("failed to find tags: %w", err)
	}
	defer rows.Close()

	var tags []domain.Tag
	for rows.Next() {
		var tag domain.Tag
		if err := rows.Scan(&tag.ID, &tag.Key, &tag.Value); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

// DeleteUnused removes orphaned tags and returns how many were deleted
func (r *tagRepositoryImpl) DeleteUnused(ctx context.Context) (int64, error) {
	result, err := r.db.ExecContext(ctx, "DELETE FROM tags WHERE id NOT IN (SELECT tag_id FROM node_tags)")
	if err != nil {
		return 0, fmt.Errorf("failed to delete unused tags: %w", err)
	}
	return result.RowsAffected()
}
