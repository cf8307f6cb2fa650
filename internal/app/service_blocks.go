package app

import (
	"context"
	"net/http"
	"strings"

	"propdesk/api/internal/search"
	"propdesk/api/internal/store"
	"propdesk/api/internal/track"
	"propdesk/api/internal/util"
)

type BlockInput struct {
	Title           string         `json:"title"`
	Content         string         `json:"content"`
	SectionType     string         `json:"sectionType"`
	EstimatedPages  *float64       `json:"estimatedPages"`
	ContextMetadata map[string]any `json:"contextMetadata"`
	QualityRating   *float64       `json:"qualityRating"`
	TagIDs          []string       `json:"tagIds"`
}

var allowedSectionTypes = map[string]struct{}{
	"executive_summary": {},
	"technical":         {},
	"management":        {},
	"qualifications":    {},
	"pricing":           {},
	"other":             {},
}

func validateSectionType(sectionType string) error {
	if _, ok := allowedSectionTypes[sectionType]; !ok {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
			"sectionType must be one of executive_summary, technical, management, qualifications, pricing, other", nil)
	}
	return nil
}

func (s *Service) ListBlocks(ctx context.Context, filter store.BlockFilter) (map[string]any, error) {
	blocks, total, err := s.store.ListContentBlocks(ctx, filter)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(blocks))
	for _, block := range blocks {
		items = append(items, blockPayload(block))
	}
	return map[string]any{"blocks": items, "total": total}, nil
}

func (s *Service) GetBlock(ctx context.Context, blockID string) (map[string]any, error) {
	block, err := s.store.GetContentBlock(ctx, blockID)
	if err != nil {
		return nil, err
	}
	return blockPayload(block), nil
}

func (s *Service) CreateBlock(ctx context.Context, input BlockInput, session Session) (map[string]any, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "title is required", nil)
	}
	sectionType := trimmedOrDefault(input.SectionType, "other")
	if err := validateSectionType(sectionType); err != nil {
		return nil, err
	}

	block := store.ContentBlock{
		ID:              util.NewID("blk"),
		Title:           title,
		Content:         input.Content,
		SectionType:     sectionType,
		EstimatedPages:  input.EstimatedPages,
		WordCount:       track.WordCount(input.Content),
		ContextMetadata: input.ContextMetadata,
		QualityRating:   input.QualityRating,
		CreatedBy:       session.UserName,
	}
	if err := s.store.InsertContentBlock(ctx, block); err != nil {
		return nil, err
	}
	if len(input.TagIDs) > 0 {
		if err := s.store.SetBlockTags(ctx, block.ID, input.TagIDs); err != nil {
			return nil, err
		}
	}

	// initial checkpoint so history starts at version 1
	if _, err := s.store.CreateCheckpoint(ctx, block.ID, block.Title, block.Content, block.ContextMetadata, "Initial version", session.UserName); err != nil {
		return nil, err
	}

	s.indexBlock(ctx, block.ID)
	return s.GetBlock(ctx, block.ID)
}

// UpdateBlock saves new live content. With track changes enabled the
// content arrives with ins/del markup embedded; RecordChange registers
// the corresponding change entries.
func (s *Service) UpdateBlock(ctx context.Context, blockID string, input BlockInput, checkpoint bool, description string, session Session) (map[string]any, error) {
	unlock, err := s.lockBlock(blockID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	current, err := s.store.GetContentBlock(ctx, blockID)
	if err != nil {
		return nil, err
	}

	sectionType := trimmedOrDefault(input.SectionType, current.SectionType)
	if err := validateSectionType(sectionType); err != nil {
		return nil, err
	}
	title := trimmedOrDefault(input.Title, current.Title)

	updated := current
	updated.Title = title
	updated.Content = input.Content
	updated.SectionType = sectionType
	updated.EstimatedPages = input.EstimatedPages
	updated.WordCount = track.WordCount(input.Content)
	updated.ContextMetadata = input.ContextMetadata
	updated.QualityRating = input.QualityRating
	updated.UpdatedBy = session.UserName

	if err := s.store.UpdateContentBlock(ctx, updated); err != nil {
		return nil, err
	}
	if input.TagIDs != nil {
		if err := s.store.SetBlockTags(ctx, blockID, input.TagIDs); err != nil {
			return nil, err
		}
	}

	if checkpoint {
		if _, err := s.store.CreateCheckpoint(ctx, blockID, updated.Title, updated.Content, updated.ContextMetadata, description, session.UserName); err != nil {
			return nil, err
		}
	}

	s.indexBlock(ctx, blockID)
	return s.GetBlock(ctx, blockID)
}

func (s *Service) DeleteBlock(ctx context.Context, blockID string) error {
	if err := s.store.SoftDeleteContentBlock(ctx, blockID); err != nil {
		return err
	}
	s.search.DeleteBlock(blockID)
	return nil
}

func (s *Service) ListTags(ctx context.Context) (map[string]any, error) {
	tags, err := s.store.ListTags(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"tags": tagPayloads(tags)}, nil
}

func (s *Service) CreateTag(ctx context.Context, name, category, color string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	tag, err := s.store.InsertTag(ctx, store.Tag{Name: name, Category: category, Color: color})
	if err != nil {
		return nil, err
	}
	return tagPayload(tag), nil
}

func (s *Service) ListSectionTypes(ctx context.Context) (map[string]any, error) {
	labels, err := s.store.ListSectionTypes(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"sectionTypes": labelPayloads(labels)}, nil
}

func (s *Service) CreateSectionType(ctx context.Context, name, displayName, description, color string) (map[string]any, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "name is required", nil)
	}
	label, err := s.store.InsertSectionType(ctx, store.SectionTypeLabel{
		Name:        name,
		DisplayName: trimmedOrDefault(displayName, name),
		Description: description,
		Color:       color,
	})
	if err != nil {
		return nil, err
	}
	return labelPayload(label), nil
}

// indexBlock pushes the block's current state to the search index.
// Best effort; errors are logged inside the search service.
func (s *Service) indexBlock(ctx context.Context, blockID string) {
	block, err := s.store.GetContentBlock(ctx, blockID)
	if err != nil {
		return
	}
	tagNames := make([]string, 0, len(block.Tags))
	for _, tag := range block.Tags {
		tagNames = append(tagNames, tag.Name)
	}
	s.search.IndexBlock(search.BlockRecord{
		ID:          block.ID,
		Title:       block.Title,
		Body:        track.CleanView(block.Content),
		SectionType: block.SectionType,
		Tags:        tagNames,
	})
}

func blockPayload(block store.ContentBlock) map[string]any {
	tags := tagPayloads(block.Tags)
	labels := labelPayloads(block.SectionLabels)
	return map[string]any{
		"id":                  block.ID,
		"title":               block.Title,
		"content":             block.Content,
		"sectionType":         block.SectionType,
		"estimatedPages":      block.EstimatedPages,
		"wordCount":           block.WordCount,
		"contextMetadata":     block.ContextMetadata,
		"qualityRating":       block.QualityRating,
		"usageCount":          block.UsageCount,
		"trackChangesEnabled": block.TrackChangesEnabled,
		"createdAt":           block.CreatedAt,
		"updatedAt":           block.UpdatedAt,
		"createdBy":           block.CreatedBy,
		"updatedBy":           block.UpdatedBy,
		"tags":                tags,
		"sectionTypes":        labels,
	}
}

func tagPayload(tag store.Tag) map[string]any {
	return map[string]any{
		"id":         tag.ID,
		"name":       tag.Name,
		"category":   tag.Category,
		"color":      tag.Color,
		"usageCount": tag.UsageCount,
	}
}

func tagPayloads(tags []store.Tag) []map[string]any {
	items := make([]map[string]any, 0, len(tags))
	for _, tag := range tags {
		items = append(items, tagPayload(tag))
	}
	return items
}

func labelPayload(label store.SectionTypeLabel) map[string]any {
	return map[string]any{
		"id":          label.ID,
		"name":        label.Name,
		"displayName": label.DisplayName,
		"description": label.Description,
		"color":       label.Color,
		"usageCount":  label.UsageCount,
	}
}

func labelPayloads(labels []store.SectionTypeLabel) []map[string]any {
	items := make([]map[string]any, 0, len(labels))
	for _, label := range labels {
		items = append(items, labelPayload(label))
	}
	return items
}
