package app

import (
	"context"
	"strings"
	"sync"
	"time"

	"propdesk/api/internal/ai"
	"propdesk/api/internal/auth"
	"propdesk/api/internal/config"
	"propdesk/api/internal/drive"
	"propdesk/api/internal/export"
	"propdesk/api/internal/search"
	"propdesk/api/internal/session"
	"propdesk/api/internal/store"
	"propdesk/api/internal/storage"
	"propdesk/api/internal/util"
)

type Session struct {
	Token        string
	RefreshToken string
	UserID       string
	UserName     string
	JTI          string
	ExpiresAt    time.Time
}

// dataStore is the persistence surface the service depends on. The
// production implementation is store.PostgresStore; tests use fakes.
type dataStore interface {
	EnsureUserByName(context.Context, string) (store.User, error)
	GetUserByID(context.Context, string) (store.User, error)
	SaveRefreshSession(context.Context, string, string, time.Time) error
	LookupRefreshSession(context.Context, string) (store.User, error)
	RevokeRefreshSession(context.Context, string) error
	RevokeAccessToken(context.Context, string, time.Time) error
	IsAccessTokenRevoked(context.Context, string) (bool, error)

	ListContentBlocks(context.Context, store.BlockFilter) ([]store.ContentBlock, int, error)
	GetContentBlock(context.Context, string) (store.ContentBlock, error)
	InsertContentBlock(context.Context, store.ContentBlock) error
	UpdateContentBlock(context.Context, store.ContentBlock) error
	UpdateBlockLiveContent(context.Context, string, string, string, string) error
	SoftDeleteContentBlock(context.Context, string) error
	SetBlockTags(context.Context, string, []string) error
	IncrementBlockUsage(context.Context, string) error
	ListTags(context.Context) ([]store.Tag, error)
	InsertTag(context.Context, store.Tag) (store.Tag, error)
	ListSectionTypes(context.Context) ([]store.SectionTypeLabel, error)
	InsertSectionType(context.Context, store.SectionTypeLabel) (store.SectionTypeLabel, error)

	CreateCheckpoint(context.Context, string, string, string, map[string]any, string, string) (store.ContentVersion, error)
	ListVersions(context.Context, string) ([]store.ContentVersion, error)
	GetVersion(context.Context, string, int) (store.ContentVersion, error)
	SetTrackChangesEnabled(context.Context, string, bool) error
	InsertTrackedChange(context.Context, store.TrackedChange) error
	ListPendingChanges(context.Context, string) ([]store.TrackedChange, error)
	ResolveChanges(context.Context, string, []string, string, string, time.Time) error
	DiscardPendingChanges(context.Context, string) error

	ListProposals(context.Context, store.ProposalFilter) ([]store.Proposal, int, error)
	GetProposal(context.Context, string) (store.Proposal, error)
	InsertProposal(context.Context, store.Proposal) error
	UpdateProposal(context.Context, store.Proposal) error
	DeleteProposal(context.Context, string) error
	ListSections(context.Context, string) ([]store.ProposalSection, error)
	GetSection(context.Context, string) (store.ProposalSection, error)
	InsertSection(context.Context, store.ProposalSection) (store.ProposalSection, error)
	UpdateSection(context.Context, store.ProposalSection) error
	DeleteSection(context.Context, string) error
	ReorderSections(context.Context, string, []string) error
	ListSectionContents(context.Context, string) ([]store.SectionContent, error)
	InsertSectionContent(context.Context, store.SectionContent) (store.SectionContent, error)
	UpdateSectionContent(context.Context, store.SectionContent) error
	DeleteSectionContent(context.Context, string) error
	ListRequirements(context.Context, string) ([]store.Requirement, error)
	InsertRequirement(context.Context, store.Requirement) error
	UpdateRequirement(context.Context, store.Requirement) error
	DeleteRequirement(context.Context, string) error
	ListAttachments(context.Context, string) ([]store.Attachment, error)
	GetAttachment(context.Context, string) (store.Attachment, error)
	InsertAttachment(context.Context, store.Attachment) error
	DeleteAttachment(context.Context, string) error

	Ping(ctx context.Context) error
}

type searchService interface {
	Search(q search.Query) search.Response
	IndexBlock(rec search.BlockRecord)
	IndexProposal(rec search.ProposalRecord)
	DeleteBlock(id string)
	DeleteProposal(id string)
}

type aiService interface {
	Enabled() bool
	Generate(ctx context.Context, req ai.Request) (ai.Result, error)
}

type driveService interface {
	Configured() bool
	AuthURL(state string) (string, error)
	ExchangeCode(ctx context.Context, code string) error
	Connected(ctx context.Context) (bool, error)
	Disconnect(ctx context.Context) error
	Search(ctx context.Context, query, folderID string, limit int) ([]drive.File, error)
	FileContent(ctx context.Context, fileID, mimeType string) (string, error)
}

type exportService interface {
	Export(ctx context.Context, req export.Request) (*export.Result, error)
}

type Service struct {
	cfg      config.Config
	store    dataStore
	sessions *session.RedisStore
	search   searchService
	ai       aiService
	drive    driveService
	exporter exportService
	objects  *storage.ObjectStore

	// per-block mutation guard
	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

func New(cfg config.Config, dataStore *store.PostgresStore, searchService *search.Service) *Service {
	return &Service{
		cfg:    cfg,
		store:  dataStore,
		search: searchService,
		locks:  make(map[string]*sync.Mutex),
	}
}

// NewWithSessionStore keeps refresh tokens in Redis instead of Postgres.
func NewWithSessionStore(cfg config.Config, dataStore *store.PostgresStore, sessions *session.RedisStore, searchService *search.Service) *Service {
	svc := New(cfg, dataStore, searchService)
	svc.sessions = sessions
	return svc
}

func (s *Service) SetAI(aiSvc *ai.Service)                   { s.ai = aiSvc }
func (s *Service) SetDrive(driveSvc *drive.Service)          { s.drive = driveSvc }
func (s *Service) SetExporter(exporter *export.Service)      { s.exporter = exporter }
func (s *Service) SetObjectStore(objects *storage.ObjectStore) { s.objects = objects }

func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

// blockLock returns the mutex guarding one block's mutations. Locks are
// created on demand and kept for the process lifetime.
func (s *Service) blockLock(blockID string) *sync.Mutex {
	s.lockMu.Lock()
	defer s.lockMu.Unlock()
	lock, ok := s.locks[blockID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[blockID] = lock
	}
	return lock
}

// lockBlock acquires the block's mutation lock without blocking. A
// second concurrent mutation on the same block gets a 409 instead of
// queueing behind the first.
func (s *Service) lockBlock(blockID string) (func(), error) {
	lock := s.blockLock(blockID)
	if !lock.TryLock() {
		return nil, domainError(409, "MUTATION_IN_FLIGHT", "Another change to this content block is in progress", nil)
	}
	return lock.Unlock, nil
}

func (s *Service) Login(ctx context.Context, name string) (Session, error) {
	userName := trimmedOrDefault(name, "User")

	user, err := s.store.EnsureUserByName(ctx, userName)
	if err != nil {
		return Session{}, err
	}

	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	tokenHash := auth.HashToken(refreshToken)

	var user store.User
	var err error
	if s.sessions != nil {
		user, err = s.sessions.LookupRefreshSession(ctx, tokenHash)
	} else {
		user, err = s.store.LookupRefreshSession(ctx, tokenHash)
	}
	if err != nil {
		return Session{}, err
	}

	if s.sessions != nil {
		err = s.sessions.RevokeRefreshSession(ctx, tokenHash)
	} else {
		err = s.store.RevokeRefreshSession(ctx, tokenHash)
	}
	if err != nil {
		return Session{}, err
	}
	return s.issueSession(ctx, user)
}

func (s *Service) issueSession(ctx context.Context, user store.User) (Session, error) {
	now := time.Now()
	expiresAt := now.Add(s.cfg.AccessTTL)
	jti := util.NewID("jti")

	token, err := auth.IssueToken([]byte(s.cfg.JWTSecret), auth.Claims{
		Sub:  user.ID,
		Name: user.DisplayName,
		JTI:  jti,
		Exp:  expiresAt.Unix(),
	})
	if err != nil {
		return Session{}, err
	}

	refresh := util.NewID("rft") + util.NewID("")
	refreshExpires := now.Add(s.cfg.RefreshTTL)
	if s.sessions != nil {
		err = s.sessions.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, user.DisplayName, refreshExpires)
	} else {
		err = s.store.SaveRefreshSession(ctx, auth.HashToken(refresh), user.ID, refreshExpires)
	}
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:        token,
		RefreshToken: refresh,
		UserID:       user.ID,
		UserName:     user.DisplayName,
		JTI:          jti,
		ExpiresAt:    expiresAt,
	}, nil
}

func (s *Service) SessionFromToken(ctx context.Context, token string) (Session, error) {
	claims, err := auth.ParseToken([]byte(s.cfg.JWTSecret), token)
	if err != nil {
		return Session{}, err
	}
	revoked, err := s.store.IsAccessTokenRevoked(ctx, claims.JTI)
	if err != nil {
		return Session{}, err
	}
	if revoked {
		return Session{}, auth.ErrInvalidToken
	}

	user, err := s.store.GetUserByID(ctx, claims.Sub)
	if err != nil {
		return Session{}, err
	}

	return Session{
		Token:     token,
		UserID:    user.ID,
		UserName:  user.DisplayName,
		JTI:       claims.JTI,
		ExpiresAt: time.Unix(claims.Exp, 0),
	}, nil
}

func (s *Service) Logout(ctx context.Context, session Session, refreshToken string) error {
	if session.JTI != "" {
		_ = s.store.RevokeAccessToken(ctx, session.JTI, session.ExpiresAt)
	}
	if refreshToken != "" {
		tokenHash := auth.HashToken(refreshToken)
		if s.sessions != nil {
			_ = s.sessions.RevokeRefreshSession(ctx, tokenHash)
		} else {
			_ = s.store.RevokeRefreshSession(ctx, tokenHash)
		}
	}
	return nil
}

// Search runs the library-wide full-text search.
func (s *Service) Search(ctx context.Context, text, filterType, sectionType string, limit, offset int) (search.Response, error) {
	_ = ctx
	return s.search.Search(search.Query{
		Text:              text,
		FilterType:        search.ResultType(filterType),
		FilterSectionType: sectionType,
		Limit:             limit,
		Offset:            offset,
	}), nil
}

func trimmedOrDefault(value, fallback string) string {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return fallback
	}
	return trimmed
}
