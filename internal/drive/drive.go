// Package drive integrates Google Drive for reference-document search.
// A single OAuth grant is stored server side; all users share it.
package drive

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"propdesk/api/internal/store"
)

var (
	ErrNotConfigured = errors.New("drive: oauth client not configured")
	ErrNotConnected  = errors.New("drive: no active credential")
)

const driveScope = "https://www.googleapis.com/auth/drive.readonly"

type credentialStore interface {
	SaveDriveCredential(ctx context.Context, cred store.DriveCredential) (store.DriveCredential, error)
	GetActiveDriveCredential(ctx context.Context) (store.DriveCredential, error)
	UpdateDriveAccessToken(ctx context.Context, credID, accessToken string, expiry *time.Time) error
	DeactivateDriveCredentials(ctx context.Context) error
}

type Service struct {
	clientID     string
	clientSecret string
	redirectURI  string
	store        credentialStore
	httpClient   *http.Client

	// overridable in tests
	authBase  string
	tokenURL  string
	driveBase string
}

func NewService(clientID, clientSecret, redirectURI string, credStore credentialStore) *Service {
	return &Service{
		clientID:     clientID,
		clientSecret: clientSecret,
		redirectURI:  redirectURI,
		store:        credStore,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		authBase:     "https://accounts.google.com/o/oauth2/v2/auth",
		tokenURL:     "https://oauth2.googleapis.com/token",
		driveBase:    "https://www.googleapis.com/drive/v3",
	}
}

func (s *Service) Configured() bool {
	return s.clientID != "" && s.clientSecret != ""
}

// AuthURL builds the consent-screen URL. State is caller supplied and
// verified on callback.
func (s *Service) AuthURL(state string) (string, error) {
	if !s.Configured() {
		return "", ErrNotConfigured
	}
	params := url.Values{
		"client_id":     {s.clientID},
		"redirect_uri":  {s.redirectURI},
		"response_type": {"code"},
		"scope":         {driveScope},
		"access_type":   {"offline"},
		"prompt":        {"consent"},
		"state":         {state},
	}
	return s.authBase + "?" + params.Encode(), nil
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int    `json:"expires_in"`
	Scope        string `json:"scope"`
}

// ExchangeCode trades the callback code for tokens and stores them as
// the active credential.
func (s *Service) ExchangeCode(ctx context.Context, code string) error {
	if !s.Configured() {
		return ErrNotConfigured
	}
	form := url.Values{
		"code":          {code},
		"client_id":     {s.clientID},
		"client_secret": {s.clientSecret},
		"redirect_uri":  {s.redirectURI},
		"grant_type":    {"authorization_code"},
	}
	token, err := s.postToken(ctx, form)
	if err != nil {
		return err
	}

	expiry := time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	_, err = s.store.SaveDriveCredential(ctx, store.DriveCredential{
		AccessToken:  token.AccessToken,
		RefreshToken: token.RefreshToken,
		TokenURI:     s.tokenURL,
		Scopes:       token.Scope,
		Expiry:       &expiry,
	})
	if err != nil {
		return fmt.Errorf("store credential: %w", err)
	}
	return nil
}

func (s *Service) postToken(ctx context.Context, form url.Values) (tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return tokenResponse{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("token request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return tokenResponse{}, fmt.Errorf("token endpoint returned %d: %s", resp.StatusCode, body)
	}

	var token tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return tokenResponse{}, fmt.Errorf("decode token response: %w", err)
	}
	return token, nil
}

// Connected reports whether an active grant exists.
func (s *Service) Connected(ctx context.Context) (bool, error) {
	_, err := s.store.GetActiveDriveCredential(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *Service) Disconnect(ctx context.Context) error {
	return s.store.DeactivateDriveCredentials(ctx)
}

// accessToken returns a usable token, refreshing it first when expired.
func (s *Service) accessToken(ctx context.Context) (string, error) {
	cred, err := s.store.GetActiveDriveCredential(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotConnected
	}
	if err != nil {
		return "", err
	}

	if cred.Expiry != nil && time.Until(*cred.Expiry) > time.Minute {
		return cred.AccessToken, nil
	}
	if cred.RefreshToken == "" {
		return cred.AccessToken, nil
	}

	form := url.Values{
		"refresh_token": {cred.RefreshToken},
		"client_id":     {s.clientID},
		"client_secret": {s.clientSecret},
		"grant_type":    {"refresh_token"},
	}
	token, err := s.postToken(ctx, form)
	if err != nil {
		return "", fmt.Errorf("refresh token: %w", err)
	}
	expiry := time.Now().Add(time.Duration(token.ExpiresIn) * time.Second)
	if err := s.store.UpdateDriveAccessToken(ctx, cred.ID, token.AccessToken, &expiry); err != nil {
		return "", err
	}
	return token.AccessToken, nil
}

// File is one Drive search hit.
type File struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	MimeType     string    `json:"mimeType"`
	ModifiedTime time.Time `json:"modifiedTime"`
	WebViewLink  string    `json:"webViewLink"`
}

type fileListResponse struct {
	Files []File `json:"files"`
}

// Search queries Drive files by full text. folderID narrows the search
// to one folder when set.
func (s *Service) Search(ctx context.Context, query, folderID string, limit int) ([]File, error) {
	token, err := s.accessToken(ctx)
	if err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	q := fmt.Sprintf("fullText contains '%s' and trashed = false", escapeQuery(query))
	if folderID != "" {
		q += fmt.Sprintf(" and '%s' in parents", escapeQuery(folderID))
	}

	params := url.Values{
		"q":        {q},
		"pageSize": {fmt.Sprint(limit)},
		"fields":   {"files(id,name,mimeType,modifiedTime,webViewLink)"},
		"orderBy":  {"modifiedTime desc"},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.driveBase+"/files?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build search request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("drive search: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("drive search returned %d: %s", resp.StatusCode, body)
	}

	var list fileListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	return list.Files, nil
}

// FileContent fetches a file's text. Google Docs are exported as plain
// text; other files are downloaded raw.
func (s *Service) FileContent(ctx context.Context, fileID, mimeType string) (string, error) {
	token, err := s.accessToken(ctx)
	if err != nil {
		return "", err
	}

	var endpoint string
	if strings.HasPrefix(mimeType, "application/vnd.google-apps.") {
		endpoint = fmt.Sprintf("%s/files/%s/export?mimeType=%s", s.driveBase, url.PathEscape(fileID), url.QueryEscape("text/plain"))
	} else {
		endpoint = fmt.Sprintf("%s/files/%s?alt=media", s.driveBase, url.PathEscape(fileID))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return "", fmt.Errorf("build content request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("drive content: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("drive content returned %d: %s", resp.StatusCode, body)
	}

	content, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("read file content: %w", err)
	}
	return string(content), nil
}

func escapeQuery(q string) string {
	return strings.ReplaceAll(strings.ReplaceAll(q, `\`, `\\`), "'", `\'`)
}
