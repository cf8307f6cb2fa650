package app

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"propdesk/api/internal/drive"
	"propdesk/api/internal/export"
	"propdesk/api/internal/util"
)

func (s *Service) driveOrError() (driveService, error) {
	if s.drive == nil || !s.drive.Configured() {
		return nil, domainError(http.StatusServiceUnavailable, "DRIVE_UNAVAILABLE",
			"Google Drive integration is not configured", nil)
	}
	return s.drive, nil
}

// DriveAuthURL builds the Google consent URL. The state value is random
// per request; Google echoes it back on the callback.
func (s *Service) DriveAuthURL(ctx context.Context) (map[string]any, error) {
	_ = ctx
	svc, err := s.driveOrError()
	if err != nil {
		return nil, err
	}
	state := util.NewID("gds")
	url, err := svc.AuthURL(state)
	if err != nil {
		return nil, err
	}
	return map[string]any{"url": url, "state": state}, nil
}

func (s *Service) DriveExchangeCode(ctx context.Context, code string) error {
	svc, err := s.driveOrError()
	if err != nil {
		return err
	}
	if strings.TrimSpace(code) == "" {
		return domainError(http.StatusUnprocessableEntity, "VALIDATION_ERROR", "code is required", nil)
	}
	return svc.ExchangeCode(ctx, code)
}

func (s *Service) DriveStatus(ctx context.Context) (map[string]any, error) {
	if s.drive == nil || !s.drive.Configured() {
		return map[string]any{"configured": false, "connected": false}, nil
	}
	connected, err := s.drive.Connected(ctx)
	if err != nil {
		return nil, err
	}
	return map[string]any{"configured": true, "connected": connected}, nil
}

func (s *Service) DriveDisconnect(ctx context.Context) error {
	svc, err := s.driveOrError()
	if err != nil {
		return err
	}
	return svc.Disconnect(ctx)
}

func (s *Service) DriveSearch(ctx context.Context, query, folderID string, limit int) (map[string]any, error) {
	svc, err := s.driveOrError()
	if err != nil {
		return nil, err
	}
	files, err := svc.Search(ctx, query, folderID, limit)
	if err != nil {
		return nil, driveError(err)
	}
	if files == nil {
		files = []drive.File{}
	}
	return map[string]any{"files": files, "total": len(files)}, nil
}

func (s *Service) DriveFileContent(ctx context.Context, fileID, mimeType string) (map[string]any, error) {
	svc, err := s.driveOrError()
	if err != nil {
		return nil, err
	}
	content, err := svc.FileContent(ctx, fileID, mimeType)
	if err != nil {
		return nil, driveError(err)
	}
	return map[string]any{"fileId": fileID, "content": content}, nil
}

func driveError(err error) error {
	if errors.Is(err, drive.ErrNotConnected) {
		return domainError(http.StatusConflict, "DRIVE_NOT_CONNECTED",
			"No Google Drive account is connected", nil)
	}
	return err
}

// Export renders a proposal, section or single block to DOCX or PDF.
func (s *Service) Export(ctx context.Context, req export.Request) (*export.Result, error) {
	if s.exporter == nil {
		return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE",
			"Document export is not configured", nil)
	}
	result, err := s.exporter.Export(ctx, req)
	if err != nil {
		if errors.Is(err, export.ErrPDFDependencyMissing) || errors.Is(err, export.ErrDOCXDependencyMissing) {
			return nil, domainError(http.StatusServiceUnavailable, "EXPORT_UNAVAILABLE", err.Error(), nil)
		}
		return nil, err
	}
	return result, nil
}
