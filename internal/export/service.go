package export

import (
	"context"
	"fmt"
	"html/template"
	"time"

	"propdesk/api/internal/track"
)

// DataStore defines the data access the exporter needs
type DataStore interface {
	GetProposalInfo(ctx context.Context, id string) (ProposalInfo, error)
	ListSectionInfos(ctx context.Context, proposalID string) ([]SectionInfo, error)
	GetSectionInfo(ctx context.Context, id string) (SectionInfo, error)
	ListEntryInfos(ctx context.Context, sectionID string) ([]EntryInfo, error)
	GetBlockInfo(ctx context.Context, id string) (EntryInfo, error)
}

// ProposalInfo holds proposal metadata for export
type ProposalInfo struct {
	ID          string
	Name        string
	ClientName  string
	RFPNumber   string
	RFPDeadline *time.Time
}

// SectionInfo holds section metadata for export
type SectionInfo struct {
	ID         string
	ProposalID string
	Title      string
}

// EntryInfo holds one piece of exportable content
type EntryInfo struct {
	Title   string
	Content string
}

// Service assembles proposal content and renders it to the requested format
type Service struct {
	store DataStore
}

// NewService creates a new export service
func NewService(store DataStore) *Service {
	return &Service{store: store}
}

// Export generates an export in the requested format
func (s *Service) Export(ctx context.Context, req Request) (*Result, error) {
	var data TemplateData
	var err error

	switch req.Kind {
	case KindProposal:
		data, err = s.proposalData(ctx, req.ID)
	case KindSection:
		data, err = s.sectionData(ctx, req.ID)
	case KindBlock:
		data, err = s.blockData(ctx, req.ID)
	default:
		return nil, fmt.Errorf("unsupported export kind: %s", req.Kind)
	}
	if err != nil {
		return nil, err
	}

	html, err := RenderProposalHTML(data)
	if err != nil {
		return nil, fmt.Errorf("render template: %w", err)
	}

	switch req.Format {
	case FormatPDF:
		return exportPDF(html, data.Title)
	case FormatDOCX:
		return exportDOCX(html, data.Title)
	default:
		return nil, fmt.Errorf("unsupported format: %s", req.Format)
	}
}

func (s *Service) proposalData(ctx context.Context, proposalID string) (TemplateData, error) {
	proposal, err := s.store.GetProposalInfo(ctx, proposalID)
	if err != nil {
		return TemplateData{}, fmt.Errorf("get proposal: %w", err)
	}

	data := TemplateData{
		Title:      proposal.Name,
		ClientName: proposal.ClientName,
		RFPNumber:  proposal.RFPNumber,
	}
	if proposal.RFPDeadline != nil {
		data.Deadline = proposal.RFPDeadline.Format("January 2, 2006")
	}

	sections, err := s.store.ListSectionInfos(ctx, proposalID)
	if err != nil {
		return TemplateData{}, fmt.Errorf("list sections: %w", err)
	}
	for _, section := range sections {
		rendered, err := s.renderSection(ctx, section)
		if err != nil {
			return TemplateData{}, err
		}
		data.Sections = append(data.Sections, rendered)
	}
	return data, nil
}

func (s *Service) sectionData(ctx context.Context, sectionID string) (TemplateData, error) {
	section, err := s.store.GetSectionInfo(ctx, sectionID)
	if err != nil {
		return TemplateData{}, fmt.Errorf("get section: %w", err)
	}
	rendered, err := s.renderSection(ctx, section)
	if err != nil {
		return TemplateData{}, err
	}
	return TemplateData{
		Title:    section.Title,
		Sections: []TemplateSection{{Entries: rendered.Entries}},
	}, nil
}

func (s *Service) blockData(ctx context.Context, blockID string) (TemplateData, error) {
	entry, err := s.store.GetBlockInfo(ctx, blockID)
	if err != nil {
		return TemplateData{}, fmt.Errorf("get block: %w", err)
	}
	return TemplateData{
		Title: entry.Title,
		Sections: []TemplateSection{{
			Entries: []TemplateEntry{{ContentHTML: template.HTML(track.CleanView(entry.Content))}},
		}},
	}, nil
}

func (s *Service) renderSection(ctx context.Context, section SectionInfo) (TemplateSection, error) {
	entries, err := s.store.ListEntryInfos(ctx, section.ID)
	if err != nil {
		return TemplateSection{}, fmt.Errorf("list section contents: %w", err)
	}

	rendered := TemplateSection{Title: section.Title}
	for _, entry := range entries {
		rendered.Entries = append(rendered.Entries, TemplateEntry{
			Title: entry.Title,
			// pending edits export as their accepted view
			ContentHTML: template.HTML(track.CleanView(entry.Content)),
		})
	}
	return rendered, nil
}
