package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// ProposalFilter narrows ListProposals.
type ProposalFilter struct {
	Query           string
	Status          string
	IncludeArchived bool
	Limit           int
	Offset          int
}

const proposalColumns = `
	p.id, p.name, p.client_name, p.rfp_number, p.rfp_deadline, p.page_limit,
	p.estimated_pages, p.status, p.is_archived, p.notes, p.rfp_context,
	p.created_at, p.updated_at, p.created_by, p.updated_by
`

func scanProposal(row interface{ Scan(...any) error }) (Proposal, error) {
	var proposal Proposal
	err := row.Scan(
		&proposal.ID, &proposal.Name, &proposal.ClientName, &proposal.RFPNumber,
		&proposal.RFPDeadline, &proposal.PageLimit, &proposal.EstimatedPages,
		&proposal.Status, &proposal.IsArchived, &proposal.Notes, &proposal.RFPContext,
		&proposal.CreatedAt, &proposal.UpdatedAt, &proposal.CreatedBy, &proposal.UpdatedBy,
	)
	return proposal, err
}

func (s *PostgresStore) ListProposals(ctx context.Context, filter ProposalFilter) ([]Proposal, int, error) {
	where := []string{"TRUE"}
	args := []any{}
	argN := 1

	if !filter.IncludeArchived {
		where = append(where, "p.is_archived = FALSE")
	}
	if filter.Query != "" {
		where = append(where, fmt.Sprintf("p.fts @@ plainto_tsquery('english', $%d)", argN))
		args = append(args, filter.Query)
		argN++
	}
	if filter.Status != "" {
		where = append(where, fmt.Sprintf("p.status = $%d", argN))
		args = append(args, filter.Status)
		argN++
	}
	whereClause := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM proposals p WHERE "+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count proposals: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`SELECT %s FROM proposals p WHERE %s ORDER BY p.updated_at DESC LIMIT $%d OFFSET $%d`,
		proposalColumns, whereClause, argN, argN+1)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list proposals: %w", err)
	}
	defer rows.Close()

	proposals := []Proposal{}
	for rows.Next() {
		proposal, err := scanProposal(rows)
		if err != nil {
			return nil, 0, err
		}
		proposals = append(proposals, proposal)
	}
	return proposals, total, rows.Err()
}

func (s *PostgresStore) GetProposal(ctx context.Context, proposalID string) (Proposal, error) {
	query := fmt.Sprintf(`SELECT %s FROM proposals p WHERE p.id = $1`, proposalColumns)
	return scanProposal(s.db.QueryRowContext(ctx, query, proposalID))
}

func (s *PostgresStore) InsertProposal(ctx context.Context, proposal Proposal) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO proposals (id, name, client_name, rfp_number, rfp_deadline, page_limit, estimated_pages, status, notes, rfp_context, created_by, updated_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $11)
	`, proposal.ID, proposal.Name, proposal.ClientName, proposal.RFPNumber, proposal.RFPDeadline,
		proposal.PageLimit, proposal.EstimatedPages, proposal.Status, proposal.Notes, proposal.RFPContext, proposal.CreatedBy)
	if err != nil {
		return fmt.Errorf("insert proposal: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateProposal(ctx context.Context, proposal Proposal) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE proposals
		SET name=$2, client_name=$3, rfp_number=$4, rfp_deadline=$5, page_limit=$6,
			estimated_pages=$7, status=$8, is_archived=$9, notes=$10, rfp_context=$11,
			updated_by=$12, updated_at=NOW()
		WHERE id=$1
	`, proposal.ID, proposal.Name, proposal.ClientName, proposal.RFPNumber, proposal.RFPDeadline,
		proposal.PageLimit, proposal.EstimatedPages, proposal.Status, proposal.IsArchived,
		proposal.Notes, proposal.RFPContext, proposal.UpdatedBy)
	if err != nil {
		return fmt.Errorf("update proposal: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteProposal(ctx context.Context, proposalID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM proposals WHERE id = $1`, proposalID)
	if err != nil {
		return fmt.Errorf("delete proposal: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ---- sections ----

func (s *PostgresStore) ListSections(ctx context.Context, proposalID string) ([]ProposalSection, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, proposal_id, title, section_type, sort_order, page_target_min, page_target_max,
			current_pages, status, notes, created_at, updated_at
		FROM proposal_sections
		WHERE proposal_id = $1
		ORDER BY sort_order ASC
	`, proposalID)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}
	defer rows.Close()

	sections := []ProposalSection{}
	for rows.Next() {
		var section ProposalSection
		if err := rows.Scan(&section.ID, &section.ProposalID, &section.Title, &section.SectionType,
			&section.SortOrder, &section.PageTargetMin, &section.PageTargetMax, &section.CurrentPages,
			&section.Status, &section.Notes, &section.CreatedAt, &section.UpdatedAt); err != nil {
			return nil, err
		}
		sections = append(sections, section)
	}
	return sections, rows.Err()
}

func (s *PostgresStore) GetSection(ctx context.Context, sectionID string) (ProposalSection, error) {
	var section ProposalSection
	err := s.db.QueryRowContext(ctx, `
		SELECT id, proposal_id, title, section_type, sort_order, page_target_min, page_target_max,
			current_pages, status, notes, created_at, updated_at
		FROM proposal_sections WHERE id = $1
	`, sectionID).Scan(&section.ID, &section.ProposalID, &section.Title, &section.SectionType,
		&section.SortOrder, &section.PageTargetMin, &section.PageTargetMax, &section.CurrentPages,
		&section.Status, &section.Notes, &section.CreatedAt, &section.UpdatedAt)
	return section, err
}

// InsertSection appends the section at the end of the proposal's order.
func (s *PostgresStore) InsertSection(ctx context.Context, section ProposalSection) (ProposalSection, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO proposal_sections (id, proposal_id, title, section_type, sort_order, page_target_min, page_target_max, status, notes)
		SELECT $1, $2, $3, $4, COALESCE(MAX(sort_order), -1) + 1, $5, $6, $7, $8
		FROM proposal_sections WHERE proposal_id = $2
		RETURNING sort_order, created_at, updated_at
	`, section.ID, section.ProposalID, section.Title, section.SectionType,
		section.PageTargetMin, section.PageTargetMax, section.Status, section.Notes).
		Scan(&section.SortOrder, &section.CreatedAt, &section.UpdatedAt)
	if err != nil {
		return ProposalSection{}, fmt.Errorf("insert section: %w", err)
	}
	return section, nil
}

func (s *PostgresStore) UpdateSection(ctx context.Context, section ProposalSection) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE proposal_sections
		SET title=$2, section_type=$3, page_target_min=$4, page_target_max=$5,
			current_pages=$6, status=$7, notes=$8, updated_at=NOW()
		WHERE id=$1
	`, section.ID, section.Title, section.SectionType, section.PageTargetMin,
		section.PageTargetMax, section.CurrentPages, section.Status, section.Notes)
	if err != nil {
		return fmt.Errorf("update section: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteSection(ctx context.Context, sectionID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM proposal_sections WHERE id = $1`, sectionID)
	if err != nil {
		return fmt.Errorf("delete section: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ReorderSections rewrites sort_order to match the given ID order.
func (s *PostgresStore) ReorderSections(ctx context.Context, proposalID string, sectionIDs []string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin reorder tx: %w", err)
	}
	for i, sectionID := range sectionIDs {
		if _, err := tx.ExecContext(ctx,
			`UPDATE proposal_sections SET sort_order=$3, updated_at=NOW() WHERE id=$1 AND proposal_id=$2`,
			sectionID, proposalID, i); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("reorder section: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit reorder tx: %w", err)
	}
	return nil
}

// ---- section contents ----

func (s *PostgresStore) ListSectionContents(ctx context.Context, sectionID string) ([]SectionContent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, section_id, source_block_id, is_custom, title, content, sort_order,
			word_count, customization_notes, created_at, updated_at
		FROM section_contents
		WHERE section_id = $1
		ORDER BY sort_order ASC
	`, sectionID)
	if err != nil {
		return nil, fmt.Errorf("list section contents: %w", err)
	}
	defer rows.Close()

	contents := []SectionContent{}
	for rows.Next() {
		var content SectionContent
		if err := rows.Scan(&content.ID, &content.SectionID, &content.SourceBlockID, &content.IsCustom,
			&content.Title, &content.Content, &content.SortOrder, &content.WordCount,
			&content.CustomizationNotes, &content.CreatedAt, &content.UpdatedAt); err != nil {
			return nil, err
		}
		contents = append(contents, content)
	}
	return contents, rows.Err()
}

func (s *PostgresStore) InsertSectionContent(ctx context.Context, content SectionContent) (SectionContent, error) {
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO section_contents (id, section_id, source_block_id, is_custom, title, content, sort_order, word_count, customization_notes)
		SELECT $1, $2, $3, $4, $5, $6, COALESCE(MAX(sort_order), -1) + 1, $7, $8
		FROM section_contents WHERE section_id = $2
		RETURNING sort_order, created_at, updated_at
	`, content.ID, content.SectionID, content.SourceBlockID, content.IsCustom, content.Title,
		content.Content, content.WordCount, content.CustomizationNotes).
		Scan(&content.SortOrder, &content.CreatedAt, &content.UpdatedAt)
	if err != nil {
		return SectionContent{}, fmt.Errorf("insert section content: %w", err)
	}
	return content, nil
}

func (s *PostgresStore) UpdateSectionContent(ctx context.Context, content SectionContent) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE section_contents
		SET title=$2, content=$3, word_count=$4, customization_notes=$5, updated_at=NOW()
		WHERE id=$1
	`, content.ID, content.Title, content.Content, content.WordCount, content.CustomizationNotes)
	if err != nil {
		return fmt.Errorf("update section content: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteSectionContent(ctx context.Context, contentID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM section_contents WHERE id = $1`, contentID)
	if err != nil {
		return fmt.Errorf("delete section content: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// IncrementBlockUsage bumps a block's usage counter when it is pulled
// into a proposal.
func (s *PostgresStore) IncrementBlockUsage(ctx context.Context, blockID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE content_blocks SET usage_count = usage_count + 1 WHERE id = $1`, blockID)
	if err != nil {
		return fmt.Errorf("increment block usage: %w", err)
	}
	return nil
}

// ---- requirements ----

func (s *PostgresStore) ListRequirements(ctx context.Context, proposalID string) ([]Requirement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, proposal_id, requirement_number, requirement_text, section, status,
			coverage_notes, addressed_in_section_id, priority, is_mandatory, created_at, updated_at
		FROM requirements
		WHERE proposal_id = $1
		ORDER BY requirement_number ASC, created_at ASC
	`, proposalID)
	if err != nil {
		return nil, fmt.Errorf("list requirements: %w", err)
	}
	defer rows.Close()

	requirements := []Requirement{}
	for rows.Next() {
		var req Requirement
		if err := rows.Scan(&req.ID, &req.ProposalID, &req.Number, &req.Text, &req.Section,
			&req.Status, &req.CoverageNotes, &req.AddressedInSectionID, &req.Priority,
			&req.IsMandatory, &req.CreatedAt, &req.UpdatedAt); err != nil {
			return nil, err
		}
		requirements = append(requirements, req)
	}
	return requirements, rows.Err()
}

func (s *PostgresStore) InsertRequirement(ctx context.Context, req Requirement) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO requirements (id, proposal_id, requirement_number, requirement_text, section, status, coverage_notes, priority, is_mandatory)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, req.ID, req.ProposalID, req.Number, req.Text, req.Section, req.Status,
		req.CoverageNotes, req.Priority, req.IsMandatory)
	if err != nil {
		return fmt.Errorf("insert requirement: %w", err)
	}
	return nil
}

func (s *PostgresStore) UpdateRequirement(ctx context.Context, req Requirement) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE requirements
		SET requirement_number=$2, requirement_text=$3, section=$4, status=$5,
			coverage_notes=$6, addressed_in_section_id=$7, priority=$8, is_mandatory=$9, updated_at=NOW()
		WHERE id=$1
	`, req.ID, req.Number, req.Text, req.Section, req.Status, req.CoverageNotes,
		req.AddressedInSectionID, req.Priority, req.IsMandatory)
	if err != nil {
		return fmt.Errorf("update requirement: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (s *PostgresStore) DeleteRequirement(ctx context.Context, requirementID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM requirements WHERE id = $1`, requirementID)
	if err != nil {
		return fmt.Errorf("delete requirement: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// ---- attachments ----

func (s *PostgresStore) ListAttachments(ctx context.Context, proposalID string) ([]Attachment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, proposal_id, file_name, object_key, content_type, size_bytes, purpose, description, uploaded_at, uploaded_by
		FROM attachments
		WHERE proposal_id = $1
		ORDER BY uploaded_at DESC
	`, proposalID)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	attachments := []Attachment{}
	for rows.Next() {
		var att Attachment
		if err := rows.Scan(&att.ID, &att.ProposalID, &att.FileName, &att.ObjectKey, &att.ContentType,
			&att.SizeBytes, &att.Purpose, &att.Description, &att.UploadedAt, &att.UploadedBy); err != nil {
			return nil, err
		}
		attachments = append(attachments, att)
	}
	return attachments, rows.Err()
}

func (s *PostgresStore) GetAttachment(ctx context.Context, attachmentID string) (Attachment, error) {
	var att Attachment
	err := s.db.QueryRowContext(ctx, `
		SELECT id, proposal_id, file_name, object_key, content_type, size_bytes, purpose, description, uploaded_at, uploaded_by
		FROM attachments WHERE id = $1
	`, attachmentID).Scan(&att.ID, &att.ProposalID, &att.FileName, &att.ObjectKey, &att.ContentType,
		&att.SizeBytes, &att.Purpose, &att.Description, &att.UploadedAt, &att.UploadedBy)
	return att, err
}

func (s *PostgresStore) InsertAttachment(ctx context.Context, att Attachment) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attachments (id, proposal_id, file_name, object_key, content_type, size_bytes, purpose, description, uploaded_by)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, att.ID, att.ProposalID, att.FileName, att.ObjectKey, att.ContentType, att.SizeBytes,
		att.Purpose, att.Description, att.UploadedBy)
	if err != nil {
		return fmt.Errorf("insert attachment: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteAttachment(ctx context.Context, attachmentID string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM attachments WHERE id = $1`, attachmentID)
	if err != nil {
		return fmt.Errorf("delete attachment: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
