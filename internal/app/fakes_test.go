package app

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"propdesk/api/internal/config"
	"propdesk/api/internal/search"
	"propdesk/api/internal/store"
)

// fakeStore is an in-memory dataStore for service and handler tests.
// Individual methods can be overridden through the Fn fields when a
// test needs to inject errors.
type fakeStore struct {
	mu sync.Mutex

	users           map[string]store.User
	refreshSessions map[string]store.User
	revokedJTIs     map[string]bool

	blocks     map[string]store.ContentBlock
	blockOrder []string
	blockTags  map[string][]string
	versions   map[string][]store.ContentVersion
	changes    map[string][]store.TrackedChange
	tags       map[string]store.Tag
	labels     []store.SectionTypeLabel

	proposals     map[string]store.Proposal
	proposalOrder []string
	sections      map[string]store.ProposalSection
	contents      map[string]store.SectionContent
	requirements  map[string]store.Requirement
	attachments   map[string]store.Attachment

	getContentBlockFn  func(context.Context, string) (store.ContentBlock, error)
	createCheckpointFn func(context.Context, string, string, string, map[string]any, string, string) (store.ContentVersion, error)
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		users:           make(map[string]store.User),
		refreshSessions: make(map[string]store.User),
		revokedJTIs:     make(map[string]bool),
		blocks:          make(map[string]store.ContentBlock),
		blockTags:       make(map[string][]string),
		versions:        make(map[string][]store.ContentVersion),
		changes:         make(map[string][]store.TrackedChange),
		tags:            make(map[string]store.Tag),
		proposals:       make(map[string]store.Proposal),
		sections:        make(map[string]store.ProposalSection),
		contents:        make(map[string]store.SectionContent),
		requirements:    make(map[string]store.Requirement),
		attachments:     make(map[string]store.Attachment),
	}
}

func (f *fakeStore) Ping(context.Context) error { return nil }

// ---- users and sessions ----

func (f *fakeStore) EnsureUserByName(_ context.Context, name string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, user := range f.users {
		if user.DisplayName == name {
			return user, nil
		}
	}
	user := store.User{ID: fmt.Sprintf("usr_%d", len(f.users)+1), DisplayName: name, CreatedAt: time.Now()}
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeStore) GetUserByID(_ context.Context, id string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.users[id]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) SaveRefreshSession(_ context.Context, tokenHash, userID string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshSessions[tokenHash] = f.users[userID]
	return nil
}

func (f *fakeStore) LookupRefreshSession(_ context.Context, tokenHash string) (store.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	user, ok := f.refreshSessions[tokenHash]
	if !ok {
		return store.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (f *fakeStore) RevokeRefreshSession(_ context.Context, tokenHash string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.refreshSessions, tokenHash)
	return nil
}

func (f *fakeStore) RevokeAccessToken(_ context.Context, jti string, _ time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.revokedJTIs[jti] = true
	return nil
}

func (f *fakeStore) IsAccessTokenRevoked(_ context.Context, jti string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.revokedJTIs[jti], nil
}

// ---- content blocks ----

func (f *fakeStore) ListContentBlocks(_ context.Context, filter store.BlockFilter) ([]store.ContentBlock, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.ContentBlock
	for _, id := range f.blockOrder {
		block := f.blocks[id]
		if block.IsDeleted {
			continue
		}
		if filter.SectionType != "" && block.SectionType != filter.SectionType {
			continue
		}
		out = append(out, block)
	}
	return out, len(out), nil
}

func (f *fakeStore) GetContentBlock(ctx context.Context, id string) (store.ContentBlock, error) {
	if f.getContentBlockFn != nil {
		return f.getContentBlockFn(ctx, id)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	block, ok := f.blocks[id]
	if !ok || block.IsDeleted {
		return store.ContentBlock{}, sql.ErrNoRows
	}
	return block, nil
}

func (f *fakeStore) InsertContentBlock(_ context.Context, block store.ContentBlock) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	block.CreatedAt = time.Now()
	block.UpdatedAt = block.CreatedAt
	f.blocks[block.ID] = block
	f.blockOrder = append(f.blockOrder, block.ID)
	return nil
}

func (f *fakeStore) UpdateContentBlock(_ context.Context, block store.ContentBlock) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	current, ok := f.blocks[block.ID]
	if !ok || current.IsDeleted {
		return sql.ErrNoRows
	}
	block.CreatedAt = current.CreatedAt
	block.TrackChangesEnabled = current.TrackChangesEnabled
	block.UpdatedAt = time.Now()
	f.blocks[block.ID] = block
	return nil
}

func (f *fakeStore) UpdateBlockLiveContent(_ context.Context, id, title, content, updatedBy string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	block, ok := f.blocks[id]
	if !ok || block.IsDeleted {
		return sql.ErrNoRows
	}
	block.Title = title
	block.Content = content
	block.UpdatedBy = updatedBy
	block.UpdatedAt = time.Now()
	f.blocks[id] = block
	return nil
}

func (f *fakeStore) SoftDeleteContentBlock(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	block, ok := f.blocks[id]
	if !ok {
		return sql.ErrNoRows
	}
	block.IsDeleted = true
	f.blocks[id] = block
	return nil
}

func (f *fakeStore) SetBlockTags(_ context.Context, id string, tagIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blockTags[id] = tagIDs
	return nil
}

func (f *fakeStore) IncrementBlockUsage(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	block, ok := f.blocks[id]
	if !ok {
		return sql.ErrNoRows
	}
	block.UsageCount++
	f.blocks[id] = block
	return nil
}

func (f *fakeStore) ListTags(context.Context) ([]store.Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]store.Tag, 0, len(f.tags))
	for _, tag := range f.tags {
		out = append(out, tag)
	}
	return out, nil
}

func (f *fakeStore) InsertTag(_ context.Context, tag store.Tag) (store.Tag, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if tag.ID == "" {
		tag.ID = fmt.Sprintf("tag_%d", len(f.tags)+1)
	}
	tag.CreatedAt = time.Now()
	f.tags[tag.ID] = tag
	return tag, nil
}

func (f *fakeStore) ListSectionTypes(context.Context) ([]store.SectionTypeLabel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]store.SectionTypeLabel(nil), f.labels...), nil
}

func (f *fakeStore) InsertSectionType(_ context.Context, label store.SectionTypeLabel) (store.SectionTypeLabel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if label.ID == "" {
		label.ID = fmt.Sprintf("sect_%d", len(f.labels)+1)
	}
	label.CreatedAt = time.Now()
	f.labels = append(f.labels, label)
	return label, nil
}

// ---- versions and track changes ----

func (f *fakeStore) CreateCheckpoint(ctx context.Context, blockID, title, content string, metadata map[string]any, description, createdBy string) (store.ContentVersion, error) {
	if f.createCheckpointFn != nil {
		return f.createCheckpointFn(ctx, blockID, title, content, metadata, description, createdBy)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	version := store.ContentVersion{
		ID:                fmt.Sprintf("ver_%s_%d", blockID, len(f.versions[blockID])+1),
		BlockID:           blockID,
		VersionNumber:     len(f.versions[blockID]) + 1,
		Title:             title,
		Content:           content,
		ContextMetadata:   metadata,
		ChangeDescription: description,
		CreatedAt:         time.Now(),
		CreatedBy:         createdBy,
	}
	f.versions[blockID] = append(f.versions[blockID], version)
	return version, nil
}

func (f *fakeStore) ListVersions(_ context.Context, blockID string) ([]store.ContentVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := f.versions[blockID]
	out := make([]store.ContentVersion, 0, len(stored))
	for i := len(stored) - 1; i >= 0; i-- {
		out = append(out, stored[i])
	}
	return out, nil
}

func (f *fakeStore) GetVersion(_ context.Context, blockID string, versionNumber int) (store.ContentVersion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, version := range f.versions[blockID] {
		if version.VersionNumber == versionNumber {
			return version, nil
		}
	}
	return store.ContentVersion{}, sql.ErrNoRows
}

func (f *fakeStore) SetTrackChangesEnabled(_ context.Context, blockID string, enabled bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	block, ok := f.blocks[blockID]
	if !ok {
		return sql.ErrNoRows
	}
	block.TrackChangesEnabled = enabled
	f.blocks[blockID] = block
	return nil
}

func (f *fakeStore) InsertTrackedChange(_ context.Context, change store.TrackedChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	change.Status = "pending"
	change.RecordedAt = time.Now()
	f.changes[change.BlockID] = append(f.changes[change.BlockID], change)
	return nil
}

func (f *fakeStore) ListPendingChanges(_ context.Context, blockID string) ([]store.TrackedChange, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.TrackedChange
	for _, change := range f.changes[blockID] {
		if change.Status == "pending" {
			out = append(out, change)
		}
	}
	return out, nil
}

func (f *fakeStore) ResolveChanges(_ context.Context, blockID string, changeIDs []string, status, resolvedBy string, resolvedAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	requested := make(map[string]bool, len(changeIDs))
	for _, id := range changeIDs {
		requested[id] = true
	}
	for i, change := range f.changes[blockID] {
		if change.Status == "pending" && requested[change.ID] {
			change.Status = status
			change.ResolvedBy = resolvedBy
			change.ResolvedAt = &resolvedAt
			f.changes[blockID][i] = change
		}
	}
	return nil
}

func (f *fakeStore) DiscardPendingChanges(_ context.Context, blockID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []store.TrackedChange
	for _, change := range f.changes[blockID] {
		if change.Status != "pending" {
			kept = append(kept, change)
		}
	}
	f.changes[blockID] = kept
	return nil
}

// ---- proposals ----

func (f *fakeStore) ListProposals(_ context.Context, filter store.ProposalFilter) ([]store.Proposal, int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Proposal
	for _, id := range f.proposalOrder {
		proposal := f.proposals[id]
		if proposal.IsArchived && !filter.IncludeArchived {
			continue
		}
		if filter.Status != "" && proposal.Status != filter.Status {
			continue
		}
		out = append(out, proposal)
	}
	return out, len(out), nil
}

func (f *fakeStore) GetProposal(_ context.Context, id string) (store.Proposal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	proposal, ok := f.proposals[id]
	if !ok {
		return store.Proposal{}, sql.ErrNoRows
	}
	return proposal, nil
}

func (f *fakeStore) InsertProposal(_ context.Context, proposal store.Proposal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	proposal.CreatedAt = time.Now()
	proposal.UpdatedAt = proposal.CreatedAt
	f.proposals[proposal.ID] = proposal
	f.proposalOrder = append(f.proposalOrder, proposal.ID)
	return nil
}

func (f *fakeStore) UpdateProposal(_ context.Context, proposal store.Proposal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.proposals[proposal.ID]; !ok {
		return sql.ErrNoRows
	}
	proposal.UpdatedAt = time.Now()
	f.proposals[proposal.ID] = proposal
	return nil
}

func (f *fakeStore) DeleteProposal(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.proposals[id]; !ok {
		return sql.ErrNoRows
	}
	delete(f.proposals, id)
	return nil
}

func (f *fakeStore) ListSections(_ context.Context, proposalID string) ([]store.ProposalSection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.ProposalSection
	for _, section := range f.sections {
		if section.ProposalID == proposalID {
			out = append(out, section)
		}
	}
	return out, nil
}

func (f *fakeStore) GetSection(_ context.Context, id string) (store.ProposalSection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	section, ok := f.sections[id]
	if !ok {
		return store.ProposalSection{}, sql.ErrNoRows
	}
	return section, nil
}

func (f *fakeStore) InsertSection(_ context.Context, section store.ProposalSection) (store.ProposalSection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	section.SortOrder = len(f.sections)
	section.CreatedAt = time.Now()
	f.sections[section.ID] = section
	return section, nil
}

func (f *fakeStore) UpdateSection(_ context.Context, section store.ProposalSection) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.sections[section.ID]; !ok {
		return sql.ErrNoRows
	}
	f.sections[section.ID] = section
	return nil
}

func (f *fakeStore) DeleteSection(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.sections, id)
	return nil
}

func (f *fakeStore) ReorderSections(_ context.Context, _ string, sectionIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for index, id := range sectionIDs {
		if section, ok := f.sections[id]; ok {
			section.SortOrder = index
			f.sections[id] = section
		}
	}
	return nil
}

func (f *fakeStore) ListSectionContents(_ context.Context, sectionID string) ([]store.SectionContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.SectionContent
	for _, content := range f.contents {
		if content.SectionID == sectionID {
			out = append(out, content)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertSectionContent(_ context.Context, content store.SectionContent) (store.SectionContent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content.SortOrder = len(f.contents)
	content.CreatedAt = time.Now()
	f.contents[content.ID] = content
	return content, nil
}

func (f *fakeStore) UpdateSectionContent(_ context.Context, content store.SectionContent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.contents[content.ID]; !ok {
		return sql.ErrNoRows
	}
	f.contents[content.ID] = content
	return nil
}

func (f *fakeStore) DeleteSectionContent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.contents, id)
	return nil
}

func (f *fakeStore) ListRequirements(_ context.Context, proposalID string) ([]store.Requirement, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Requirement
	for _, req := range f.requirements {
		if req.ProposalID == proposalID {
			out = append(out, req)
		}
	}
	return out, nil
}

func (f *fakeStore) InsertRequirement(_ context.Context, req store.Requirement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requirements[req.ID] = req
	return nil
}

func (f *fakeStore) UpdateRequirement(_ context.Context, req store.Requirement) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.requirements[req.ID]; !ok {
		return sql.ErrNoRows
	}
	f.requirements[req.ID] = req
	return nil
}

func (f *fakeStore) DeleteRequirement(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.requirements, id)
	return nil
}

func (f *fakeStore) ListAttachments(_ context.Context, proposalID string) ([]store.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []store.Attachment
	for _, att := range f.attachments {
		if att.ProposalID == proposalID {
			out = append(out, att)
		}
	}
	return out, nil
}

func (f *fakeStore) GetAttachment(_ context.Context, id string) (store.Attachment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	att, ok := f.attachments[id]
	if !ok {
		return store.Attachment{}, sql.ErrNoRows
	}
	return att, nil
}

func (f *fakeStore) InsertAttachment(_ context.Context, att store.Attachment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attachments[att.ID] = att
	return nil
}

func (f *fakeStore) DeleteAttachment(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.attachments, id)
	return nil
}

// fakeSearch records index traffic so tests can assert what reaches the
// search layer.
type fakeSearch struct {
	mu               sync.Mutex
	indexedBlocks    []search.BlockRecord
	indexedProposals []search.ProposalRecord
	deletedBlocks    []string
	deletedProposals []string
	searchFn         func(search.Query) search.Response
}

func (f *fakeSearch) Search(q search.Query) search.Response {
	if f.searchFn != nil {
		return f.searchFn(q)
	}
	return search.Response{Results: []search.Result{}, Query: q.Text}
}

func (f *fakeSearch) IndexBlock(rec search.BlockRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexedBlocks = append(f.indexedBlocks, rec)
}

func (f *fakeSearch) IndexProposal(rec search.ProposalRecord) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.indexedProposals = append(f.indexedProposals, rec)
}

func (f *fakeSearch) DeleteBlock(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedBlocks = append(f.deletedBlocks, id)
}

func (f *fakeSearch) DeleteProposal(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletedProposals = append(f.deletedProposals, id)
}

func (f *fakeSearch) lastBlock() (search.BlockRecord, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.indexedBlocks) == 0 {
		return search.BlockRecord{}, false
	}
	return f.indexedBlocks[len(f.indexedBlocks)-1], true
}

func newTestService(fs *fakeStore) (*Service, *fakeSearch) {
	searcher := &fakeSearch{}
	svc := &Service{
		cfg: config.Config{
			JWTSecret:  "test-secret",
			AccessTTL:  time.Hour,
			RefreshTTL: 24 * time.Hour,
		},
		store:  fs,
		search: searcher,
		locks:  make(map[string]*sync.Mutex),
	}
	return svc, searcher
}
