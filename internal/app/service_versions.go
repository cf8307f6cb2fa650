package app

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"propdesk/api/internal/diff"
	"propdesk/api/internal/store"
	"propdesk/api/internal/track"
	"propdesk/api/internal/util"
)

// ListBlockVersions returns a block's checkpoint history, newest first.
func (s *Service) ListBlockVersions(ctx context.Context, blockID string) (map[string]any, error) {
	if _, err := s.store.GetContentBlock(ctx, blockID); err != nil {
		return nil, err
	}
	versions, err := s.store.ListVersions(ctx, blockID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(versions))
	for _, version := range versions {
		items = append(items, versionPayload(version))
	}
	return map[string]any{"versions": items, "total": len(items)}, nil
}

func (s *Service) GetBlockVersion(ctx context.Context, blockID string, versionNumber int) (map[string]any, error) {
	version, err := s.store.GetVersion(ctx, blockID, versionNumber)
	if err != nil {
		return nil, err
	}
	return versionPayload(version), nil
}

// CheckpointBlock snapshots the block's current live state as a new
// version.
func (s *Service) CheckpointBlock(ctx context.Context, blockID, description string, session Session) (map[string]any, error) {
	unlock, err := s.lockBlock(blockID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	block, err := s.store.GetContentBlock(ctx, blockID)
	if err != nil {
		return nil, err
	}
	version, err := s.store.CreateCheckpoint(ctx, blockID, block.Title, block.Content, block.ContextMetadata, description, session.UserName)
	if err != nil {
		return nil, err
	}
	return versionPayload(version), nil
}

// RevertBlock restores a block's live content from an older version.
// The pre-revert state is checkpointed first, so nothing is lost; the
// reverted content itself stays unversioned until the next checkpoint.
func (s *Service) RevertBlock(ctx context.Context, blockID string, versionNumber int, session Session) (map[string]any, error) {
	unlock, err := s.lockBlock(blockID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	target, err := s.store.GetVersion(ctx, blockID, versionNumber)
	if err != nil {
		return nil, err
	}
	block, err := s.store.GetContentBlock(ctx, blockID)
	if err != nil {
		return nil, err
	}

	safety := fmt.Sprintf("Auto-saved before reverting to version %d", versionNumber)
	checkpoint, err := s.store.CreateCheckpoint(ctx, blockID, block.Title, block.Content, block.ContextMetadata, safety, session.UserName)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateBlockLiveContent(ctx, blockID, target.Title, target.Content, session.UserName); err != nil {
		return nil, err
	}

	s.indexBlock(ctx, blockID)
	return map[string]any{
		"revertedTo":       versionNumber,
		"safetyCheckpoint": versionPayload(checkpoint),
		"title":            target.Title,
		"content":          target.Content,
	}, nil
}

// CompareBlockVersions diffs two checkpoints of the same block. Version
// number 0 means the current live content.
func (s *Service) CompareBlockVersions(ctx context.Context, blockID string, fromVersion, toVersion int) (map[string]any, error) {
	oldText, oldLabel, err := s.versionText(ctx, blockID, fromVersion)
	if err != nil {
		return nil, err
	}
	newText, newLabel, err := s.versionText(ctx, blockID, toVersion)
	if err != nil {
		return nil, err
	}

	spans := diff.CompareHTML(oldText, newText)
	return map[string]any{
		"blockId": blockID,
		"from":    oldLabel,
		"to":      newLabel,
		"spans":   spans,
	}, nil
}

// CompareVersionWithPrevious diffs a checkpoint against its
// predecessor. The oldest version has none; it comes back with a null
// previous and no spans.
func (s *Service) CompareVersionWithPrevious(ctx context.Context, blockID string, versionNumber int) (map[string]any, error) {
	version, err := s.store.GetVersion(ctx, blockID, versionNumber)
	if err != nil {
		return nil, err
	}
	if versionNumber <= 1 {
		return map[string]any{
			"version":  versionPayload(version),
			"previous": nil,
			"spans":    []diff.Span{},
		}, nil
	}
	previous, err := s.store.GetVersion(ctx, blockID, versionNumber-1)
	if err != nil {
		return nil, err
	}
	spans := diff.CompareHTML(track.CleanView(previous.Content), track.CleanView(version.Content))
	return map[string]any{
		"version":  versionPayload(version),
		"previous": versionPayload(previous),
		"spans":    spans,
	}, nil
}

// CompareTexts diffs two arbitrary pieces of content without touching
// stored blocks. HTML inputs are stripped to prose before comparing.
func (s *Service) CompareTexts(oldHTML, newHTML, oldText, newText string) map[string]any {
	var spans []diff.Span
	if oldHTML != "" || newHTML != "" {
		spans = diff.CompareHTML(oldHTML, newHTML)
	} else {
		spans = diff.Compare(oldText, newText)
	}
	return map[string]any{"spans": spans}
}

func (s *Service) versionText(ctx context.Context, blockID string, versionNumber int) (string, string, error) {
	if versionNumber == 0 {
		block, err := s.store.GetContentBlock(ctx, blockID)
		if err != nil {
			return "", "", err
		}
		return track.CleanView(block.Content), "current", nil
	}
	version, err := s.store.GetVersion(ctx, blockID, versionNumber)
	if err != nil {
		return "", "", err
	}
	return track.CleanView(version.Content), fmt.Sprintf("v%d", version.VersionNumber), nil
}

// ---- track changes ----

type RecordChangeInput struct {
	Content string        `json:"content"`
	Changes []ChangeEntry `json:"changes"`
}

type ChangeEntry struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// SetTrackChanges toggles the review mode. Turning it off with edits
// still pending discards them: pending markup resolves to its accepted
// view and the unresolved change entries are dropped.
func (s *Service) SetTrackChanges(ctx context.Context, blockID string, enabled bool, session Session) (map[string]any, error) {
	unlock, err := s.lockBlock(blockID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	block, err := s.store.GetContentBlock(ctx, blockID)
	if err != nil {
		return nil, err
	}

	if !enabled && block.TrackChangesEnabled {
		if track.HasMarkup(block.Content) {
			clean := track.CleanView(block.Content)
			if err := s.store.UpdateBlockLiveContent(ctx, blockID, block.Title, clean, session.UserName); err != nil {
				return nil, err
			}
		}
		if err := s.store.DiscardPendingChanges(ctx, blockID); err != nil {
			return nil, err
		}
	}

	if err := s.store.SetTrackChangesEnabled(ctx, blockID, enabled); err != nil {
		return nil, err
	}
	s.indexBlock(ctx, blockID)
	return map[string]any{"blockId": blockID, "trackChangesEnabled": enabled}, nil
}

// RecordChange stores the block content with embedded change markup and
// registers the pending change entries it contains.
func (s *Service) RecordChange(ctx context.Context, blockID string, input RecordChangeInput, session Session) (map[string]any, error) {
	unlock, err := s.lockBlock(blockID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	block, err := s.store.GetContentBlock(ctx, blockID)
	if err != nil {
		return nil, err
	}
	if !block.TrackChangesEnabled {
		return nil, domainError(http.StatusConflict, "TRACK_CHANGES_DISABLED",
			"Track changes is not enabled for this content block", nil)
	}

	if err := s.store.UpdateBlockLiveContent(ctx, blockID, block.Title, input.Content, session.UserName); err != nil {
		return nil, err
	}

	for _, entry := range input.Changes {
		changeType := strings.ToLower(strings.TrimSpace(entry.Type))
		if changeType != track.TypeInsert && changeType != track.TypeDelete {
			return nil, domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR",
				"change type must be insert or delete", map[string]any{"changeId": entry.ID})
		}
		changeID := entry.ID
		if changeID == "" {
			changeID = util.NewID("chg")
		}
		if err := s.store.InsertTrackedChange(ctx, store.TrackedChange{
			ID:      changeID,
			BlockID: blockID,
			Type:    changeType,
			Author:  session.UserName,
			UserID:  session.UserID,
		}); err != nil {
			return nil, err
		}
	}

	return s.ListPendingChanges(ctx, blockID)
}

func (s *Service) ListPendingChanges(ctx context.Context, blockID string) (map[string]any, error) {
	changes, err := s.store.ListPendingChanges(ctx, blockID)
	if err != nil {
		return nil, err
	}
	items := make([]map[string]any, 0, len(changes))
	for _, change := range changes {
		items = append(items, map[string]any{
			"id":         change.ID,
			"type":       change.Type,
			"author":     change.Author,
			"status":     change.Status,
			"recordedAt": change.RecordedAt,
		})
	}
	return map[string]any{"blockId": blockID, "changes": items, "total": len(items)}, nil
}

// ResolveChanges accepts or rejects the given pending changes. A nil id
// list means every pending change. IDs that are unknown or already
// resolved are filtered out rather than failing the whole batch.
// Resolved entries are kept with their final status.
func (s *Service) ResolveChanges(ctx context.Context, blockID string, changeIDs []string, accept bool, session Session) (map[string]any, error) {
	unlock, err := s.lockBlock(blockID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	block, err := s.store.GetContentBlock(ctx, blockID)
	if err != nil {
		return nil, err
	}

	pending, err := s.store.ListPendingChanges(ctx, blockID)
	if err != nil {
		return nil, err
	}
	pendingByID := make(map[string]store.TrackedChange, len(pending))
	for _, change := range pending {
		pendingByID[change.ID] = change
	}

	// apply in recorded order regardless of request order; nil means
	// everything pending
	requested := make(map[string]bool, len(changeIDs))
	for _, id := range changeIDs {
		requested[id] = true
	}
	var decisions []track.Decision
	var resolvedIDs []string
	for _, change := range pending {
		if changeIDs != nil && !requested[change.ID] {
			continue
		}
		decisions = append(decisions, track.Decision{
			ChangeID: change.ID,
			Type:     change.Type,
			Accept:   accept,
		})
		resolvedIDs = append(resolvedIDs, change.ID)
	}

	if len(decisions) == 0 {
		skipped := changeIDs
		if skipped == nil {
			skipped = []string{}
		}
		return map[string]any{"blockId": blockID, "resolved": []string{}, "skipped": skipped, "pending": pendingIDs(pending)}, nil
	}

	content, err := track.Apply(block.Content, decisions)
	if err != nil {
		return nil, err
	}

	if err := s.store.UpdateBlockLiveContent(ctx, blockID, block.Title, content, session.UserName); err != nil {
		return nil, err
	}

	status := "rejected"
	if accept {
		status = "accepted"
	}
	if err := s.store.ResolveChanges(ctx, blockID, resolvedIDs, status, session.UserName, time.Now()); err != nil {
		return nil, err
	}

	var skipped []string
	for _, id := range changeIDs {
		if _, ok := pendingByID[id]; !ok {
			skipped = append(skipped, id)
		}
	}
	if skipped == nil {
		skipped = []string{}
	}

	resolvedSet := make(map[string]bool, len(resolvedIDs))
	for _, id := range resolvedIDs {
		resolvedSet[id] = true
	}
	remaining := []string{}
	for _, change := range pending {
		if !resolvedSet[change.ID] {
			remaining = append(remaining, change.ID)
		}
	}

	s.indexBlock(ctx, blockID)
	return map[string]any{
		"blockId":  blockID,
		"resolved": resolvedIDs,
		"skipped":  skipped,
		"pending":  remaining,
		"status":   status,
		"content":  content,
	}, nil
}

func pendingIDs(pending []store.TrackedChange) []string {
	ids := make([]string, 0, len(pending))
	for _, change := range pending {
		ids = append(ids, change.ID)
	}
	return ids
}

// DiffBlock compares the block's original view (all pending changes
// rejected) against its proposed view (all accepted), for reviewers.
func (s *Service) DiffBlock(ctx context.Context, blockID string) (map[string]any, error) {
	block, err := s.store.GetContentBlock(ctx, blockID)
	if err != nil {
		return nil, err
	}
	original := track.OriginalView(block.Content)
	proposed := track.CleanView(block.Content)
	spans := diff.CompareHTML(original, proposed)
	return map[string]any{
		"blockId": blockID,
		"spans":   spans,
		"pending": track.ActiveChangeIDs(block.Content),
	}, nil
}

func versionPayload(version store.ContentVersion) map[string]any {
	return map[string]any{
		"id":                version.ID,
		"blockId":           version.BlockID,
		"versionNumber":     version.VersionNumber,
		"title":             version.Title,
		"content":           version.Content,
		"contextMetadata":   version.ContextMetadata,
		"changeDescription": version.ChangeDescription,
		"createdAt":         version.CreatedAt,
		"createdBy":         version.CreatedBy,
	}
}
