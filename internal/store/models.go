package store

import "time"

type User struct {
	ID          string
	DisplayName string
	CreatedAt   time.Time
}

// ContentBlock is the core reusable unit of the content library.
// Content is rich text serialized as HTML.
type ContentBlock struct {
	ID                  string
	Title               string
	Content             string
	SectionType         string
	EstimatedPages      *float64
	WordCount           int
	ContextMetadata     map[string]any
	QualityRating       *float64
	UsageCount          int
	TrackChangesEnabled bool
	IsDeleted           bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
	CreatedBy           string
	UpdatedBy           string

	// Joined for API responses
	Tags          []Tag
	SectionLabels []SectionTypeLabel
}

// ContentVersion is an immutable snapshot of a content block.
// VersionNumber is strictly increasing per block, starting at 1,
// never reused and never deleted.
type ContentVersion struct {
	ID                string
	BlockID           string
	VersionNumber     int
	Title             string
	Content           string
	ContextMetadata   map[string]any
	ChangeDescription string
	CreatedAt         time.Time
	CreatedBy         string
}

// TrackedChange is one pending edit awaiting accept/reject resolution.
// Resolved entries are retained with their final status as an audit trail.
type TrackedChange struct {
	ID         string
	BlockID    string
	Type       string // "insert" or "delete"
	Author     string
	UserID     string
	Status     string // "pending", "accepted", "rejected"
	RecordedAt time.Time
	ResolvedAt *time.Time
	ResolvedBy string
}

type Tag struct {
	ID         string
	Name       string
	Category   string
	Color      string
	UsageCount int
	CreatedAt  time.Time
}

type SectionTypeLabel struct {
	ID          string
	Name        string
	DisplayName string
	Description string
	Color       string
	UsageCount  int
	CreatedAt   time.Time
}

type Proposal struct {
	ID             string
	Name           string
	ClientName     string
	RFPNumber      string
	RFPDeadline    *time.Time
	PageLimit      *int
	EstimatedPages *int
	Status         string
	IsArchived     bool
	Notes          string
	RFPContext     string
	CreatedAt      time.Time
	UpdatedAt      time.Time
	CreatedBy      string
	UpdatedBy      string
}

type ProposalSection struct {
	ID            string
	ProposalID    string
	Title         string
	SectionType   string
	SortOrder     int
	PageTargetMin *float64
	PageTargetMax *float64
	CurrentPages  *float64
	Status        string
	Notes         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SectionContent is one ordered content entry within a proposal section,
// either copied from a library block or written in place.
type SectionContent struct {
	ID                 string
	SectionID          string
	SourceBlockID      *string
	IsCustom           bool
	Title              string
	Content            string
	SortOrder          int
	WordCount          int
	CustomizationNotes string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type Requirement struct {
	ID                   string
	ProposalID           string
	Number               string
	Text                 string
	Section              string
	Status               string
	CoverageNotes        string
	AddressedInSectionID *string
	Priority             string
	IsMandatory          bool
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// Attachment is a supplemental file stored in object storage.
type Attachment struct {
	ID          string
	ProposalID  string
	FileName    string
	ObjectKey   string
	ContentType string
	SizeBytes   int64
	Purpose     string
	Description string
	UploadedAt  time.Time
	UploadedBy  string
}

// DriveCredential holds the Google Drive OAuth grant. A single active
// credential per deployment, matching the connect/disconnect flow.
type DriveCredential struct {
	ID           string
	AccessToken  string
	RefreshToken string
	TokenURI     string
	Scopes       string
	Expiry       *time.Time
	FolderID     string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
