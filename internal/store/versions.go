package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"propdesk/api/internal/util"
)

// CreateCheckpoint snapshots the given state as the next version of the
// block. The version number is assigned inside the INSERT so concurrent
// checkpoints of the same block cannot race to the same number; the
// UNIQUE(block_id, version_number) constraint backstops it.
func (s *PostgresStore) CreateCheckpoint(ctx context.Context, blockID, title, content string, metadata map[string]any, description, createdBy string) (ContentVersion, error) {
	meta, err := marshalMetadata(metadata)
	if err != nil {
		return ContentVersion{}, err
	}

	version := ContentVersion{
		ID:                util.NewID("ver"),
		BlockID:           blockID,
		Title:             title,
		Content:           content,
		ContextMetadata:   metadata,
		ChangeDescription: description,
		CreatedBy:         createdBy,
	}
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO content_versions (id, block_id, version_number, title, content, context_metadata, change_description, created_by)
		SELECT $1, $2, COALESCE(MAX(version_number), 0) + 1, $3, $4, $5, $6, $7
		FROM content_versions WHERE block_id = $2
		RETURNING version_number, created_at
	`, version.ID, blockID, title, content, meta, description, createdBy).Scan(&version.VersionNumber, &version.CreatedAt)
	if err != nil {
		return ContentVersion{}, fmt.Errorf("create checkpoint: %w", err)
	}
	return version, nil
}

// ListVersions returns a block's history newest first.
func (s *PostgresStore) ListVersions(ctx context.Context, blockID string) ([]ContentVersion, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, block_id, version_number, title, content, context_metadata, change_description, created_at, created_by
		FROM content_versions
		WHERE block_id = $1
		ORDER BY version_number DESC
	`, blockID)
	if err != nil {
		return nil, fmt.Errorf("list versions: %w", err)
	}
	defer rows.Close()

	versions := []ContentVersion{}
	for rows.Next() {
		version, err := scanVersion(rows)
		if err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}
	return versions, rows.Err()
}

func (s *PostgresStore) GetVersion(ctx context.Context, blockID string, versionNumber int) (ContentVersion, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, block_id, version_number, title, content, context_metadata, change_description, created_at, created_by
		FROM content_versions
		WHERE block_id = $1 AND version_number = $2
	`, blockID, versionNumber)
	return scanVersion(row)
}

func scanVersion(row interface{ Scan(...any) error }) (ContentVersion, error) {
	var version ContentVersion
	var meta sql.NullString
	err := row.Scan(&version.ID, &version.BlockID, &version.VersionNumber, &version.Title,
		&version.Content, &meta, &version.ChangeDescription, &version.CreatedAt, &version.CreatedBy)
	if err != nil {
		return ContentVersion{}, err
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &version.ContextMetadata); err != nil {
			return ContentVersion{}, fmt.Errorf("decode version metadata: %w", err)
		}
	}
	return version, nil
}

// ---- track changes ----

func (s *PostgresStore) SetTrackChangesEnabled(ctx context.Context, blockID string, enabled bool) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE content_blocks SET track_changes_enabled = $2, updated_at = NOW()
		WHERE id = $1 AND is_deleted = FALSE
	`, blockID, enabled)
	if err != nil {
		return fmt.Errorf("set track changes: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) InsertTrackedChange(ctx context.Context, change TrackedChange) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tracked_changes (id, block_id, change_type, author, user_id)
		VALUES ($1, $2, $3, $4, $5)
	`, change.ID, change.BlockID, change.Type, change.Author, change.UserID)
	if err != nil {
		return fmt.Errorf("insert tracked change: %w", err)
	}
	return nil
}

// ListPendingChanges returns a block's unresolved changes in recorded order.
func (s *PostgresStore) ListPendingChanges(ctx context.Context, blockID string) ([]TrackedChange, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, block_id, change_type, author, user_id, status, recorded_at, resolved_at, resolved_by
		FROM tracked_changes
		WHERE block_id = $1 AND status = 'pending'
		ORDER BY recorded_at ASC, id ASC
	`, blockID)
	if err != nil {
		return nil, fmt.Errorf("list pending changes: %w", err)
	}
	defer rows.Close()

	changes := []TrackedChange{}
	for rows.Next() {
		var change TrackedChange
		if err := rows.Scan(&change.ID, &change.BlockID, &change.Type, &change.Author, &change.UserID,
			&change.Status, &change.RecordedAt, &change.ResolvedAt, &change.ResolvedBy); err != nil {
			return nil, err
		}
		changes = append(changes, change)
	}
	return changes, rows.Err()
}

// ResolveChanges marks the given change IDs accepted or rejected. Only
// pending rows transition; already-resolved IDs are left untouched.
func (s *PostgresStore) ResolveChanges(ctx context.Context, blockID string, changeIDs []string, status, resolvedBy string, resolvedAt time.Time) error {
	if len(changeIDs) == 0 {
		return nil
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE tracked_changes
		SET status = $3, resolved_at = $4, resolved_by = $5
		WHERE block_id = $1 AND id = ANY($2) AND status = 'pending'
	`, blockID, changeIDs, status, resolvedAt, resolvedBy)
	if err != nil {
		return fmt.Errorf("resolve changes: %w", err)
	}
	return nil
}

// DiscardPendingChanges drops a block's unresolved changes, used when
// track changes is switched off with edits still pending.
func (s *PostgresStore) DiscardPendingChanges(ctx context.Context, blockID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM tracked_changes WHERE block_id = $1 AND status = 'pending'`, blockID)
	if err != nil {
		return fmt.Errorf("discard pending changes: %w", err)
	}
	return nil
}
