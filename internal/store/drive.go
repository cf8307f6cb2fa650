package store

import (
	"context"
	"fmt"
	"time"

	"propdesk/api/internal/util"
)

// SaveDriveCredential deactivates any previous grant and stores the new
// one. Only one credential is active at a time.
func (s *PostgresStore) SaveDriveCredential(ctx context.Context, cred DriveCredential) (DriveCredential, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return DriveCredential{}, fmt.Errorf("begin credential tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE drive_credentials SET is_active = FALSE, updated_at = NOW() WHERE is_active`); err != nil {
		_ = tx.Rollback()
		return DriveCredential{}, fmt.Errorf("deactivate credentials: %w", err)
	}

	if cred.ID == "" {
		cred.ID = util.NewID("gdc")
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO drive_credentials (id, access_token, refresh_token, token_uri, scopes, expiry, folder_id, is_active)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
		RETURNING created_at, updated_at
	`, cred.ID, cred.AccessToken, cred.RefreshToken, cred.TokenURI, cred.Scopes, cred.Expiry, cred.FolderID).
		Scan(&cred.CreatedAt, &cred.UpdatedAt)
	if err != nil {
		_ = tx.Rollback()
		return DriveCredential{}, fmt.Errorf("insert credential: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return DriveCredential{}, fmt.Errorf("commit credential tx: %w", err)
	}
	cred.IsActive = true
	return cred, nil
}

func (s *PostgresStore) GetActiveDriveCredential(ctx context.Context) (DriveCredential, error) {
	var cred DriveCredential
	err := s.db.QueryRowContext(ctx, `
		SELECT id, access_token, refresh_token, token_uri, scopes, expiry, folder_id, is_active, created_at, updated_at
		FROM drive_credentials
		WHERE is_active
		ORDER BY updated_at DESC
		LIMIT 1
	`).Scan(&cred.ID, &cred.AccessToken, &cred.RefreshToken, &cred.TokenURI, &cred.Scopes,
		&cred.Expiry, &cred.FolderID, &cred.IsActive, &cred.CreatedAt, &cred.UpdatedAt)
	return cred, err
}

// UpdateDriveAccessToken stores a refreshed access token and expiry.
func (s *PostgresStore) UpdateDriveAccessToken(ctx context.Context, credID, accessToken string, expiry *time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE drive_credentials SET access_token = $2, expiry = $3, updated_at = NOW() WHERE id = $1
	`, credID, accessToken, expiry)
	if err != nil {
		return fmt.Errorf("update drive token: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeactivateDriveCredentials(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `UPDATE drive_credentials SET is_active = FALSE, updated_at = NOW() WHERE is_active`)
	if err != nil {
		return fmt.Errorf("deactivate credentials: %w", err)
	}
	return nil
}
