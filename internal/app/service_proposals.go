package app

import (
	"context"
	"io"
	"net/http"
	"strings"
	"time"

	"propdesk/api/internal/ai"
	"propdesk/api/internal/search"
	"propdesk/api/internal/store"
	"propdesk/api/internal/track"
	"propdesk/api/internal/util"
)

type ProposalInput struct {
	Name           string     `json:"name"`
	ClientName     string     `json:"clientName"`
	RFPNumber      string     `json:"rfpNumber"`
	RFPDeadline    *time.Time `json:"rfpDeadline"`
	PageLimit      *int       `json:"pageLimit"`
	EstimatedPages *int       `json:"estimatedPages"`
	Status         string     `json:"status"`
	IsArchived     *bool      `json:"isArchived"`
	Notes          string     `json:"notes"`
	RFPContext     string     `json:"rfpContext"`
}

var allowedProposalStatuses = map[string]struct{}{
	"draft":     {},
	"in_review": {},
	"submitted": {},
	"won":       {},
	"lost":      {},
}

func (s *Service) ListProposals(ctx context.Context, filter store.ProposalFilter) (map[string]any, error) {
	proposals, total, err := s.store.ListProposals(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(proposals))
	for _, proposal := range proposals {
		items = append(items, proposalPayload(proposal))
	}
	return map[string]any{"proposals": items, "total": total}, nil
}

func (s *Service) GetProposal(ctx context.Context, proposalID string) (map[string]any, error) {
	proposal, err := s.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	sections, err := s.store.ListSections(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	payload := proposalPayload(proposal)
	payload["sections"] = sectionPayloads(sections)
	return payload, nil
}

func (s *Service) CreateProposal(ctx context.Context, input ProposalInput, session Session) (map[string]any, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	status := trimmedOrDefault(input.Status, "draft")
	if _, ok := allowedProposalStatuses[status]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			"status must be one of draft, in_review, submitted, won, lost", nil)
	}

	proposal := store.Proposal{
		ID:             util.NewID("prop"),
		Name:           name,
		ClientName:     input.ClientName,
		RFPNumber:      input.RFPNumber,
		RFPDeadline:    input.RFPDeadline,
		PageLimit:      input.PageLimit,
		EstimatedPages: input.EstimatedPages,
		Status:         status,
		Notes:          input.Notes,
		RFPContext:     input.RFPContext,
		CreatedBy:      session.UserName,
	}
	if err := s.store.InsertProposal(ctx, proposal); err != nil {
		return nil, err
	}
	s.indexProposal(ctx, proposal.ID)
	return s.GetProposal(ctx, proposal.ID)
}

func (s *Service) UpdateProposal(ctx context.Context, proposalID string, input ProposalInput, session Session) (map[string]any, error) {
	current, err := s.store.GetProposal(ctx, proposalID)
	if err != nil {
		return nil, err
	}

	status := trimmedOrDefault(input.Status, current.Status)
	if _, ok := allowedProposalStatuses[status]; !ok {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			"status must be one of draft, in_review, submitted, won, lost", nil)
	}

	updated := current
	updated.Name = trimmedOrDefault(input.Name, current.Name)
	updated.ClientName = input.ClientName
	updated.RFPNumber = input.RFPNumber
	updated.RFPDeadline = input.RFPDeadline
	updated.PageLimit = input.PageLimit
	updated.EstimatedPages = input.EstimatedPages
	updated.Status = status
	if input.IsArchived != nil {
		updated.IsArchived = *input.IsArchived
	}
	updated.Notes = input.Notes
	updated.RFPContext = input.RFPContext
	updated.UpdatedBy = session.UserName

	if err := s.store.UpdateProposal(ctx, updated); err != nil {
		return nil, err
	}
	if updated.IsArchived {
		s.search.DeleteProposal(proposalID)
	} else {
		s.indexProposal(ctx, proposalID)
	}
	return s.GetProposal(ctx, proposalID)
}

func (s *Service) DeleteProposal(ctx context.Context, proposalID string) error {
	if err := s.store.DeleteProposal(ctx, proposalID); err != nil {
		return err
	}
	s.search.DeleteProposal(proposalID)
	return nil
}

func (s *Service) indexProposal(ctx context.Context, proposalID string) {
	proposal, err := s.store.GetProposal(ctx, proposalID)
	if err != nil {
		return
	}
	s.search.IndexProposal(search.ProposalRecord{
		ID:         proposal.ID,
		Name:       proposal.Name,
		ClientName: proposal.ClientName,
		RFPContext: proposal.RFPContext,
		Status:     proposal.Status,
	})
}

// ---- sections ----

type SectionInput struct {
	Title         string   `json:"title"`
	SectionType   string   `json:"sectionType"`
	PageTargetMin *float64 `json:"pageTargetMin"`
	PageTargetMax *float64 `json:"pageTargetMax"`
	CurrentPages  *float64 `json:"currentPages"`
	Status        string   `json:"status"`
	Notes         string   `json:"notes"`
}

func (s *Service) CreateSection(ctx context.Context, proposalID string, input SectionInput) (map[string]any, error) {
	if _, err := s.store.GetProposal(ctx, proposalID); err != nil {
		return nil, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	section, err := s.store.InsertSection(ctx, store.ProposalSection{
		ID:            util.NewID("sec"),
		ProposalID:    proposalID,
		Title:         title,
		SectionType:   input.SectionType,
		PageTargetMin: input.PageTargetMin,
		PageTargetMax: input.PageTargetMax,
		Status:        trimmedOrDefault(input.Status, "not_started"),
		Notes:         input.Notes,
	})
	if err != nil {
		return nil, err
	}
	return sectionPayload(section), nil
}

func (s *Service) UpdateSection(ctx context.Context, sectionID string, input SectionInput) (map[string]any, error) {
	current, err := s.store.GetSection(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	updated := current
	updated.Title = trimmedOrDefault(input.Title, current.Title)
	updated.SectionType = input.SectionType
	updated.PageTargetMin = input.PageTargetMin
	updated.PageTargetMax = input.PageTargetMax
	updated.CurrentPages = input.CurrentPages
	updated.Status = trimmedOrDefault(input.Status, current.Status)
	updated.Notes = input.Notes
	if err := s.store.UpdateSection(ctx, updated); err != nil {
		return nil, err
	}
	section, err := s.store.GetSection(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	return sectionPayload(section), nil
}

func (s *Service) DeleteSection(ctx context.Context, sectionID string) error {
	return s.store.DeleteSection(ctx, sectionID)
}

func (s *Service) ReorderSections(ctx context.Context, proposalID string, sectionIDs []string) (map[string]any, error) {
	if len(sectionIDs) == 0 {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "sectionIds is required", nil)
	}
	if err := s.store.ReorderSections(ctx, proposalID, sectionIDs); err != nil {
		return nil, err
	}
	sections, err := s.store.ListSections(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"sections": sectionPayloads(sections)}, nil
}

// ---- section contents ----

type SectionContentInput struct {
	SourceBlockID      *string `json:"sourceBlockId"`
	Title              string  `json:"title"`
	Content            string  `json:"content"`
	CustomizationNotes string  `json:"customizationNotes"`
}

func (s *Service) ListSectionContents(ctx context.Context, sectionID string) (map[string]any, error) {
	if _, err := s.store.GetSection(ctx, sectionID); err != nil {
		return nil, err
	}
	contents, err := s.store.ListSectionContents(ctx, sectionID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(contents))
	for _, content := range contents {
		items = append(items, contentPayload(content))
	}
	return map[string]any{"contents": items}, nil
}

// AddSectionContent pulls a library block into a section, or adds
// custom content when no source block is given. Library content is
// copied at its current accepted view; later edits stay local to the
// proposal.
func (s *Service) AddSectionContent(ctx context.Context, sectionID string, input SectionContentInput) (map[string]any, error) {
	if _, err := s.store.GetSection(ctx, sectionID); err != nil {
		return nil, err
	}

	content := store.SectionContent{
		ID:                 util.NewID("scn"),
		SectionID:          sectionID,
		Title:              input.Title,
		Content:            input.Content,
		CustomizationNotes: input.CustomizationNotes,
		IsCustom:           true,
	}

	if input.SourceBlockID != nil && *input.SourceBlockID != "" {
		block, err := s.store.GetContentBlock(ctx, *input.SourceBlockID)
		if err != nil {
			return nil, err
		}
		content.SourceBlockID = input.SourceBlockID
		content.IsCustom = false
		if content.Title == "" {
			content.Title = block.Title
		}
		if content.Content == "" {
			content.Content = track.CleanView(block.Content)
		}
		if err := s.store.IncrementBlockUsage(ctx, block.ID); err != nil {
			return nil, err
		}
	} else if strings.TrimSpace(content.Content) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			"content is required for custom entries", nil)
	}

	content.WordCount = track.WordCount(content.Content)
	inserted, err := s.store.InsertSectionContent(ctx, content)
	if err != nil {
		return nil, err
	}
	return contentPayload(inserted), nil
}

func (s *Service) UpdateSectionContent(ctx context.Context, contentID string, input SectionContentInput) error {
	content := store.SectionContent{
		ID:                 contentID,
		Title:              input.Title,
		Content:            input.Content,
		WordCount:          track.WordCount(input.Content),
		CustomizationNotes: input.CustomizationNotes,
	}
	return s.store.UpdateSectionContent(ctx, content)
}

func (s *Service) DeleteSectionContent(ctx context.Context, contentID string) error {
	return s.store.DeleteSectionContent(ctx, contentID)
}

// ---- requirements ----

type RequirementInput struct {
	Number               string  `json:"number"`
	Text                 string  `json:"text"`
	Section              string  `json:"section"`
	Status               string  `json:"status"`
	CoverageNotes        string  `json:"coverageNotes"`
	AddressedInSectionID *string `json:"addressedInSectionId"`
	Priority             string  `json:"priority"`
	IsMandatory          bool    `json:"isMandatory"`
}

func (s *Service) ListRequirements(ctx context.Context, proposalID string) (map[string]any, error) {
	if _, err := s.store.GetProposal(ctx, proposalID); err != nil {
		return nil, err
	}
	requirements, err := s.store.ListRequirements(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(requirements))
	for _, req := range requirements {
		items = append(items, requirementPayload(req))
	}
	return map[string]any{"requirements": items}, nil
}

func (s *Service) CreateRequirement(ctx context.Context, proposalID string, input RequirementInput) (map[string]any, error) {
	if _, err := s.store.GetProposal(ctx, proposalID); err != nil {
		return nil, err
	}
	if strings.TrimSpace(input.Text) == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "text is required", nil)
	}
	req := store.Requirement{
		ID:          util.NewID("req"),
		ProposalID:  proposalID,
		Number:      input.Number,
		Text:        input.Text,
		Section:     input.Section,
		Status:      trimmedOrDefault(input.Status, "not_addressed"),
		Priority:    input.Priority,
		IsMandatory: input.IsMandatory,
	}
	if err := s.store.InsertRequirement(ctx, req); err != nil {
		return nil, err
	}
	return requirementPayload(req), nil
}

func (s *Service) UpdateRequirement(ctx context.Context, requirementID string, input RequirementInput) error {
	return s.store.UpdateRequirement(ctx, store.Requirement{
		ID:                   requirementID,
		Number:               input.Number,
		Text:                 input.Text,
		Section:              input.Section,
		Status:               trimmedOrDefault(input.Status, "not_addressed"),
		CoverageNotes:        input.CoverageNotes,
		AddressedInSectionID: input.AddressedInSectionID,
		Priority:             input.Priority,
		IsMandatory:          input.IsMandatory,
	})
}

func (s *Service) DeleteRequirement(ctx context.Context, requirementID string) error {
	return s.store.DeleteRequirement(ctx, requirementID)
}

// ---- attachments ----

func (s *Service) ListAttachments(ctx context.Context, proposalID string) (map[string]any, error) {
	attachments, err := s.store.ListAttachments(ctx, proposalID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(attachments))
	for _, att := range attachments {
		items = append(items, attachmentPayload(att))
	}
	return map[string]any{"attachments": items}, nil
}

func (s *Service) UploadAttachment(ctx context.Context, proposalID, fileName, contentType, purpose, description string, body io.Reader, size int64, session Session) (map[string]any, error) {
	if s.objects == nil {
		return nil, domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Object storage is not configured", nil)
	}
	if _, err := s.store.GetProposal(ctx, proposalID); err != nil {
		return nil, err
	}

	att := store.Attachment{
		ID:          util.NewID("att"),
		ProposalID:  proposalID,
		FileName:    fileName,
		ContentType: contentType,
		SizeBytes:   size,
		Purpose:     purpose,
		Description: description,
		UploadedBy:  session.UserName,
	}
	att.ObjectKey = proposalID + "/" + att.ID + "/" + fileName

	if err := s.objects.Put(ctx, att.ObjectKey, body, size, contentType); err != nil {
		return nil, err
	}
	if err := s.store.InsertAttachment(ctx, att); err != nil {
		return nil, err
	}
	return attachmentPayload(att), nil
}

func (s *Service) AttachmentDownloadURL(ctx context.Context, attachmentID string) (string, error) {
	if s.objects == nil {
		return "", domainError(http.StatusServiceUnavailable, "STORAGE_UNAVAILABLE", "Object storage is not configured", nil)
	}
	att, err := s.store.GetAttachment(ctx, attachmentID)
	if err != nil {
		return "", err
	}
	return s.objects.PresignedDownload(ctx, att.ObjectKey, att.FileName, 15*time.Minute)
}

func (s *Service) DeleteAttachment(ctx context.Context, attachmentID string) error {
	att, err := s.store.GetAttachment(ctx, attachmentID)
	if err != nil {
		return err
	}
	if s.objects != nil {
		_ = s.objects.Delete(ctx, att.ObjectKey)
	}
	return s.store.DeleteAttachment(ctx, attachmentID)
}

// ---- AI drafting ----

type GenerateInput struct {
	Action       string `json:"action"`
	SectionType  string `json:"sectionType"`
	Instructions string `json:"instructions"`
	BlockID      string `json:"blockId"`
	ProposalID   string `json:"proposalId"`
	Content      string `json:"content"`
}

// Generate drafts, improves or expands content with Claude. When a
// block ID is given its accepted view seeds the existing content; a
// proposal ID pulls in the RFP context.
func (s *Service) Generate(ctx context.Context, input GenerateInput) (map[string]any, error) {
	if s.ai == nil || !s.ai.Enabled() {
		return nil, domainError(http.StatusServiceUnavailable, "AI_UNAVAILABLE", "AI drafting is not configured", nil)
	}

	existing := input.Content
	sectionType := input.SectionType
	if input.BlockID != "" {
		block, err := s.store.GetContentBlock(ctx, input.BlockID)
		if err != nil {
			return nil, err
		}
		if existing == "" {
			existing = track.CleanView(block.Content)
		}
		if sectionType == "" {
			sectionType = block.SectionType
		}
	}

	rfpContext := ""
	if input.ProposalID != "" {
		proposal, err := s.store.GetProposal(ctx, input.ProposalID)
		if err != nil {
			return nil, err
		}
		rfpContext = proposal.RFPContext
	}

	result, err := s.ai.Generate(ctx, ai.Request{
		Action:          trimmedOrDefault(input.Action, ai.ActionDraft),
		SectionType:     sectionType,
		Instructions:    input.Instructions,
		ExistingContent: existing,
		RFPContext:      rfpContext,
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"content":   result.Content,
		"model":     result.Model,
		"wordCount": result.WordCount,
	}, nil
}

// ---- payload shaping ----

func proposalPayload(proposal store.Proposal) map[string]any {
	return map[string]any{
		"id":             proposal.ID,
		"name":           proposal.Name,
		"clientName":     proposal.ClientName,
		"rfpNumber":      proposal.RFPNumber,
		"rfpDeadline":    proposal.RFPDeadline,
		"pageLimit":      proposal.PageLimit,
		"estimatedPages": proposal.EstimatedPages,
		"status":         proposal.Status,
		"isArchived":     proposal.IsArchived,
		"notes":          proposal.Notes,
		"rfpContext":     proposal.RFPContext,
		"createdAt":      proposal.CreatedAt,
		"updatedAt":      proposal.UpdatedAt,
		"createdBy":      proposal.CreatedBy,
		"updatedBy":      proposal.UpdatedBy,
	}
}

func sectionPayload(section store.ProposalSection) map[string]any {
	return map[string]any{
		"id":            section.ID,
		"proposalId":    section.ProposalID,
		"title":         section.Title,
		"sectionType":   section.SectionType,
		"sortOrder":     section.SortOrder,
		"pageTargetMin": section.PageTargetMin,
		"pageTargetMax": section.PageTargetMax,
		"currentPages":  section.CurrentPages,
		"status":        section.Status,
		"notes":         section.Notes,
	}
}

func sectionPayloads(sections []store.ProposalSection) []map[string]any {
	items := make([]map[string]any, 0, len(sections))
	for _, section := range sections {
		items = append(items, sectionPayload(section))
	}
	return items
}

func contentPayload(content store.SectionContent) map[string]any {
	return map[string]any{
		"id":                 content.ID,
		"sectionId":          content.SectionID,
		"sourceBlockId":      content.SourceBlockID,
		"isCustom":           content.IsCustom,
		"title":              content.Title,
		"content":            content.Content,
		"sortOrder":          content.SortOrder,
		"wordCount":          content.WordCount,
		"customizationNotes": content.CustomizationNotes,
	}
}

func requirementPayload(req store.Requirement) map[string]any {
	return map[string]any{
		"id":                   req.ID,
		"proposalId":           req.ProposalID,
		"number":               req.Number,
		"text":                 req.Text,
		"section":              req.Section,
		"status":               req.Status,
		"coverageNotes":        req.CoverageNotes,
		"addressedInSectionId": req.AddressedInSectionID,
		"priority":             req.Priority,
		"isMandatory":          req.IsMandatory,
	}
}

func attachmentPayload(att store.Attachment) map[string]any {
	return map[string]any{
		"id":          att.ID,
		"proposalId":  att.ProposalID,
		"fileName":    att.FileName,
		"contentType": att.ContentType,
		"sizeBytes":   att.SizeBytes,
		"purpose":     att.Purpose,
		"description": att.Description,
		"uploadedAt":  att.UploadedAt,
		"uploadedBy":  att.UploadedBy,
	}
}
