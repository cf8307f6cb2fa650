package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"propdesk/api/internal/util"
)

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// ---- users & sessions ----

func (s *PostgresStore) EnsureUserByName(ctx context.Context, name string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, created_at FROM users WHERE display_name = $1`, name,
	).Scan(&user.ID, &user.DisplayName, &user.CreatedAt)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return User{}, fmt.Errorf("lookup user: %w", err)
	}

	err = s.db.QueryRowContext(ctx, `
		INSERT INTO users (display_name)
		VALUES ($1)
		ON CONFLICT (display_name) DO UPDATE SET display_name = EXCLUDED.display_name
		RETURNING id, display_name, created_at
	`, name).Scan(&user.ID, &user.DisplayName, &user.CreatedAt)
	if err != nil {
		return User{}, fmt.Errorf("insert user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (User, error) {
	var user User
	err := s.db.QueryRowContext(ctx,
		`SELECT id, display_name, created_at FROM users WHERE id = $1`, userID,
	).Scan(&user.ID, &user.DisplayName, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) SaveRefreshSession(ctx context.Context, tokenHash, userID string, expiresAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO refresh_sessions (token_hash, user_id, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (token_hash) DO UPDATE SET user_id=EXCLUDED.user_id, expires_at=EXCLUDED.expires_at, revoked_at=NULL
	`, tokenHash, userID, expiresAt)
	if err != nil {
		return fmt.Errorf("save refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) LookupRefreshSession(ctx context.Context, tokenHash string) (User, error) {
	const query = `
		SELECT u.id, u.display_name, u.created_at
		FROM refresh_sessions rs
		JOIN users u ON u.id = rs.user_id
		WHERE rs.token_hash = $1
			AND rs.revoked_at IS NULL
			AND rs.expires_at > NOW()
	`
	var user User
	err := s.db.QueryRowContext(ctx, query, tokenHash).Scan(&user.ID, &user.DisplayName, &user.CreatedAt)
	if err != nil {
		return User{}, err
	}
	return user, nil
}

func (s *PostgresStore) RevokeRefreshSession(ctx context.Context, tokenHash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE refresh_sessions SET revoked_at=NOW() WHERE token_hash=$1`, tokenHash)
	if err != nil {
		return fmt.Errorf("revoke refresh session: %w", err)
	}
	return nil
}

func (s *PostgresStore) RevokeAccessToken(ctx context.Context, jti string, exp time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO revoked_access_tokens (jti, expires_at)
		VALUES ($1, $2)
		ON CONFLICT (jti) DO NOTHING
	`, jti, exp)
	if err != nil {
		return fmt.Errorf("revoke access token: %w", err)
	}
	return nil
}

func (s *PostgresStore) IsAccessTokenRevoked(ctx context.Context, jti string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM revoked_access_tokens WHERE jti=$1 AND expires_at > NOW())`, jti,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check access token: %w", err)
	}
	return exists, nil
}

// ---- content blocks ----

// BlockFilter narrows ListContentBlocks. Zero values mean "no filter".
type BlockFilter struct {
	Query       string
	SectionType string
	TagID       string
	Limit       int
	Offset      int
}

const blockColumns = `
	b.id, b.title, b.content, b.section_type, b.estimated_pages, b.word_count,
	b.context_metadata, b.quality_rating, b.usage_count, b.track_changes_enabled,
	b.is_deleted, b.created_at, b.updated_at, b.created_by, b.updated_by
`

func scanBlock(row interface{ Scan(...any) error }) (ContentBlock, error) {
	var block ContentBlock
	var meta sql.NullString
	err := row.Scan(
		&block.ID, &block.Title, &block.Content, &block.SectionType,
		&block.EstimatedPages, &block.WordCount, &meta, &block.QualityRating,
		&block.UsageCount, &block.TrackChangesEnabled, &block.IsDeleted,
		&block.CreatedAt, &block.UpdatedAt, &block.CreatedBy, &block.UpdatedBy,
	)
	if err != nil {
		return ContentBlock{}, err
	}
	if meta.Valid && meta.String != "" {
		if err := json.Unmarshal([]byte(meta.String), &block.ContextMetadata); err != nil {
			return ContentBlock{}, fmt.Errorf("decode block metadata: %w", err)
		}
	}
	return block, nil
}

func marshalMetadata(meta map[string]any) (any, error) {
	if meta == nil {
		return nil, nil
	}
	raw, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return string(raw), nil
}

func (s *PostgresStore) ListContentBlocks(ctx context.Context, filter BlockFilter) ([]ContentBlock, int, error) {
	where := []string{"b.is_deleted = FALSE"}
	args := []any{}
	argN := 1

	if filter.Query != "" {
		where = append(where, fmt.Sprintf("b.fts @@ plainto_tsquery('english', $%d)", argN))
		args = append(args, filter.Query)
		argN++
	}
	if filter.SectionType != "" {
		where = append(where, fmt.Sprintf("b.section_type = $%d", argN))
		args = append(args, filter.SectionType)
		argN++
	}
	if filter.TagID != "" {
		where = append(where, fmt.Sprintf("EXISTS(SELECT 1 FROM content_block_tags bt WHERE bt.block_id = b.id AND bt.tag_id = $%d)", argN))
		args = append(args, filter.TagID)
		argN++
	}

	whereClause := strings.Join(where, " AND ")

	var total int
	countQuery := "SELECT COUNT(*) FROM content_blocks b WHERE " + whereClause
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count blocks: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM content_blocks b WHERE %s ORDER BY b.updated_at DESC LIMIT $%d OFFSET $%d`,
		blockColumns, whereClause, argN, argN+1)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list blocks: %w", err)
	}
	defer rows.Close()

	var blocks []ContentBlock
	for rows.Next() {
		block, err := scanBlock(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan block: %w", err)
		}
		blocks = append(blocks, block)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range blocks {
		tags, err := s.listBlockTags(ctx, blocks[i].ID)
		if err != nil {
			return nil, 0, err
		}
		blocks[i].Tags = tags
	}
	return blocks, total, nil
}

func (s *PostgresStore) GetContentBlock(ctx context.Context, blockID string) (ContentBlock, error) {
	query := fmt.Sprintf(`SELECT %s FROM content_blocks b WHERE b.id = $1 AND b.is_deleted = FALSE`, blockColumns)
	block, err := scanBlock(s.db.QueryRowContext(ctx, query, blockID))
	if err != nil {
		return ContentBlock{}, err
	}
	block.Tags, err = s.listBlockTags(ctx, block.ID)
	if err != nil {
		return ContentBlock{}, err
	}
	block.SectionLabels, err = s.listBlockSectionLabels(ctx, block.ID)
	if err != nil {
		return ContentBlock{}, err
	}
	return block, nil
}

func (s *PostgresStore) InsertContentBlock(ctx context.Context, block ContentBlock) error {
	meta, err := marshalMetadata(block.ContextMetadata)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO content_blocks
			(id, title, content, section_type, estimated_pages, word_count, context_metadata,
			 quality_rating, track_changes_enabled, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $10)
	`, block.ID, block.Title, block.Content, block.SectionType, block.EstimatedPages,
		block.WordCount, meta, block.QualityRating, block.TrackChangesEnabled, block.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert block: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateContentBlock(ctx context.Context, block ContentBlock) error {
	meta, err := marshalMetadata(block.ContextMetadata)
	if err != nil {
		return err
	}
	result, err := s.db.ExecContext(ctx, `
		UPDATE content_blocks
		SET title=$2, content=$3, section_type=$4, estimated_pages=$5, word_count=$6,
			context_metadata=$7, quality_rating=$8, updated_by=$9, updated_at=NOW()
		WHERE id=$1 AND is_deleted = FALSE
	`, block.ID, block.Title, block.Content, block.SectionType, block.EstimatedPages,
		block.WordCount, meta, block.QualityRating, block.UpdatedBy)
	if err != nil {
		return fmt.Errorf("update block: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateBlockLiveContent overwrites only title/content, used by revert and
// by track-change resolution.
func (s *PostgresStore) UpdateBlockLiveContent(ctx context.Context, blockID, title, content, updatedBy string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE content_blocks
		SET title=$2, content=$3, updated_by=$4, updated_at=NOW()
		WHERE id=$1 AND is_deleted = FALSE
	`, blockID, title, content, updatedBy)
	if err != nil {
		return fmt.Errorf("update block content: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) SoftDeleteContentBlock(ctx context.Context, blockID string) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE content_blocks SET is_deleted = TRUE, updated_at = NOW() WHERE id = $1 AND is_deleted = FALSE`, blockID)
	if err != nil {
		return fmt.Errorf("delete block: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) SetBlockTags(ctx context.Context, blockID string, tagIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tag tx: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM content_block_tags WHERE block_id=$1`, blockID); err != nil {
		_ = tx.Rollback()
		return fmt.Errorf("clear block tags: %w", err)
	}
	for _, tagID := range tagIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO content_block_tags (block_id, tag_id) VALUES ($1, $2)
			ON CONFLICT DO NOTHING
		`, blockID, tagID); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("attach tag: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tag tx: %w", err)
	}
	return nil
}

func (s *PostgresStore) listBlockTags(ctx context.Context, blockID string) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT t.id, t.name, t.category, t.color, t.usage_count, t.created_at
		FROM tags t
		JOIN content_block_tags bt ON bt.tag_id = t.id
		WHERE bt.block_id = $1
		ORDER BY t.name
	`, blockID)
	if err != nil {
		return nil, fmt.Errorf("list block tags: %w", err)
	}
	defer rows.Close()

	tags := []Tag{}
	for rows.Next() {
		var tag Tag
		if err := rows.Scan(&tag.ID, &tag.Name, &tag.Category, &tag.Color, &tag.UsageCount, &tag.CreatedAt); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func (s *PostgresStore) listBlockSectionLabels(ctx context.Context, blockID string) ([]SectionTypeLabel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT st.id, st.name, st.display_name, st.description, st.color, st.usage_count, st.created_at
		FROM section_types st
		JOIN content_block_section_types bst ON bst.section_type_id = st.id
		WHERE bst.block_id = $1
		ORDER BY st.name
	`, blockID)
	if err != nil {
		return nil, fmt.Errorf("list block section labels: %w", err)
	}
	defer rows.Close()

	labels := []SectionTypeLabel{}
	for rows.Next() {
		var label SectionTypeLabel
		if err := rows.Scan(&label.ID, &label.Name, &label.DisplayName, &label.Description, &label.Color, &label.UsageCount, &label.CreatedAt); err != nil {
			return nil, err
		}
		labels = append(labels, label)
	}
	return labels, rows.Err()
}

// ---- tags ----

func (s *PostgresStore) ListTags(ctx context.Context) ([]Tag, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, category, color, usage_count, created_at FROM tags ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	defer rows.Close()

	tags := []Tag{}
	for rows.Next() {
		var tag Tag
		if err := rows.Scan(&tag.ID, &tag.Name, &tag.Category, &tag.Color, &tag.UsageCount, &tag.CreatedAt); err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, rows.Err()
}

func (s *PostgresStore) InsertTag(ctx context.Context, tag Tag) (Tag, error) {
	if tag.ID == "" {
		tag.ID = util.NewID("tag")
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO tags (id, name, category, color)
		VALUES ($1, $2, $3, $4)
		RETURNING id, name, category, color, usage_count, created_at
	`, tag.ID, tag.Name, tag.Category, tag.Color).Scan(
		&tag.ID, &tag.Name, &tag.Category, &tag.Color, &tag.UsageCount, &tag.CreatedAt)
	if err != nil {
		return Tag{}, fmt.Errorf("insert tag: %w", err)
	}
	return tag, nil
}

// ---- section types ----

func (s *PostgresStore) ListSectionTypes(ctx context.Context) ([]SectionTypeLabel, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, display_name, description, color, usage_count, created_at FROM section_types ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("list section types: %w", err)
	}
	defer rows.Close()

	labels := []SectionTypeLabel{}
	for rows.Next() {
		var label SectionTypeLabel
		if err := rows.Scan(&label.ID, &label.Name, &label.DisplayName, &label.Description, &label.Color, &label.UsageCount, &label.CreatedAt); err != nil {
			return nil, err
		}
		labels = append(labels, label)
	}
	return labels, rows.Err()
}

func (s *PostgresStore) InsertSectionType(ctx context.Context, label SectionTypeLabel) (SectionTypeLabel, error) {
	if label.ID == "" {
		label.ID = util.NewID("sect")
	}
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO section_types (id, name, display_name, description, color)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, name, display_name, description, color, usage_count, created_at
	`, label.ID, label.Name, label.DisplayName, label.Description, label.Color).Scan(
		&label.ID, &label.Name, &label.DisplayName, &label.Description, &label.Color, &label.UsageCount, &label.CreatedAt)
	if err != nil {
		return SectionTypeLabel{}, fmt.Errorf("insert section type: %w", err)
	}
	return label, nil
}
