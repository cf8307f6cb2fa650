package app

import (
	"net/http"
	"strings"
)

// handleDrive dispatches the authenticated /api/drive/* routes. The
// OAuth callback is handled separately because Google calls it without
// a bearer token.
func (s *HTTPServer) handleDrive(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(r.URL.Path)
	if len(parts) < 3 || parts[0] != "api" || parts[1] != "drive" {
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
		return
	}

	switch {
	case len(parts) == 3 && parts[2] == "auth-url" && r.Method == http.MethodGet:
		payload, err := s.service.DriveAuthURL(r.Context())
		s.respond(w, payload, err)

	case len(parts) == 3 && parts[2] == "status" && r.Method == http.MethodGet:
		payload, err := s.service.DriveStatus(r.Context())
		s.respond(w, payload, err)

	case len(parts) == 3 && parts[2] == "disconnect" && r.Method == http.MethodPost:
		if err := s.service.DriveDisconnect(r.Context()); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})

	case len(parts) == 3 && parts[2] == "search" && r.Method == http.MethodGet:
		limit, err := intQuery(r, "limit", 20)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
			return
		}
		payload, err := s.service.DriveSearch(r.Context(),
			strings.TrimSpace(r.URL.Query().Get("q")),
			strings.TrimSpace(r.URL.Query().Get("folderId")),
			limit)
		s.respond(w, payload, err)

	case len(parts) == 5 && parts[2] == "files" && parts[4] == "content" && r.Method == http.MethodGet:
		payload, err := s.service.DriveFileContent(r.Context(), parts[3],
			strings.TrimSpace(r.URL.Query().Get("mimeType")))
		s.respond(w, payload, err)

	default:
		writeError(w, http.StatusNotFound, "NOT_FOUND", "Not found", nil)
	}
}

// handleDriveCallback completes the OAuth flow. Google redirects the
// browser here with a one-time code; the response is a plain page the
// user can close.
func (s *HTTPServer) handleDriveCallback(w http.ResponseWriter, r *http.Request) {
	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		writeError(w, http.StatusBadRequest, "DRIVE_CONSENT_DENIED", "Google Drive authorization was denied", nil)
		return
	}

	code := r.URL.Query().Get("code")
	if err := s.service.DriveExchangeCode(r.Context(), code); err != nil {
		status, errCode, message, details := mapError(err)
		writeError(w, status, errCode, message, details)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "message": "Google Drive connected. You can close this window."})
}
