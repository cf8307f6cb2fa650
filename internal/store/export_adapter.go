package store

import (
	"context"

	"propdesk/api/internal/export"
)

// ExportAdapter narrows PostgresStore to the export.DataStore surface.
type ExportAdapter struct {
	store *PostgresStore
}

func NewExportAdapter(store *PostgresStore) *ExportAdapter {
	return &ExportAdapter{store: store}
}

func (a *ExportAdapter) GetProposalInfo(ctx context.Context, id string) (export.ProposalInfo, error) {
	proposal, err := a.store.GetProposal(ctx, id)
	if err != nil {
		return export.ProposalInfo{}, err
	}
	return export.ProposalInfo{
		ID:          proposal.ID,
		Name:        proposal.Name,
		ClientName:  proposal.ClientName,
		RFPNumber:   proposal.RFPNumber,
		RFPDeadline: proposal.RFPDeadline,
	}, nil
}

func (a *ExportAdapter) ListSectionInfos(ctx context.Context, proposalID string) ([]export.SectionInfo, error) {
	sections, err := a.store.ListSections(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	infos := make([]export.SectionInfo, 0, len(sections))
	for _, section := range sections {
		infos = append(infos, export.SectionInfo{
			ID:         section.ID,
			ProposalID: section.ProposalID,
			Title:      section.Title,
		})
	}
	return infos, nil
}

func (a *ExportAdapter) GetSectionInfo(ctx context.Context, id string) (export.SectionInfo, error) {
	section, err := a.store.GetSection(ctx, id)
	if err != nil {
		return export.SectionInfo{}, err
	}
	return export.SectionInfo{
		ID:         section.ID,
		ProposalID: section.ProposalID,
		Title:      section.Title,
	}, nil
}

func (a *ExportAdapter) ListEntryInfos(ctx context.Context, sectionID string) ([]export.EntryInfo, error) {
	contents, err := a.store.ListSectionContents(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	entries := make([]export.EntryInfo, 0, len(contents))
	for _, content := range contents {
		entries = append(entries, export.EntryInfo{
			Title:   content.Title,
			Content: content.Content,
		})
	}
	return entries, nil
}

func (a *ExportAdapter) GetBlockInfo(ctx context.Context, id string) (export.EntryInfo, error) {
	block, err := a.store.GetContentBlock(ctx, id)
	if err != nil {
		return export.EntryInfo{}, err
	}
	return export.EntryInfo{Title: block.Title, Content: block.Content}, nil
}
