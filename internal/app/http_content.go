package app

import (
	"net/http"
	"strconv"
	"strings"

	"propdesk/api/internal/store"
)

// routeContent dispatches the content library routes: blocks, tags,
// section types, version history and track changes. Returns false when
// the path is not a content route.
func (s *HTTPServer) routeContent(w http.ResponseWriter, r *http.Request, session Session, parts []string) bool {
	if len(parts) < 2 || parts[0] != "api" {
		return false
	}

	switch parts[1] {
	case "tags":
		if len(parts) != 2 {
			return false
		}
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.ListTags(r.Context())
			s.respond(w, payload, err)
		case http.MethodPost:
			var body struct {
				Name     string `json:"name"`
				Category string `json:"category"`
				Color    string `json:"color"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return true
			}
			tag, err := s.service.CreateTag(r.Context(), body.Name, body.Category, body.Color)
			s.respondCreated(w, tag, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return true

	case "section-types":
		if len(parts) != 2 {
			return false
		}
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.ListSectionTypes(r.Context())
			s.respond(w, payload, err)
		case http.MethodPost:
			var body struct {
				Name        string `json:"name"`
				DisplayName string `json:"displayName"`
				Description string `json:"description"`
				Color       string `json:"color"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return true
			}
			label, err := s.service.CreateSectionType(r.Context(), body.Name, body.DisplayName, body.Description, body.Color)
			s.respondCreated(w, label, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return true

	case "content-blocks":
		return s.routeBlocks(w, r, session, parts)
	}

	return false
}

func (s *HTTPServer) routeBlocks(w http.ResponseWriter, r *http.Request, session Session, parts []string) bool {
	// /api/content-blocks
	if len(parts) == 2 {
		switch r.Method {
		case http.MethodGet:
			limit, err := intQuery(r, "limit", 20)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "limit must be an integer", nil)
				return true
			}
			offset, err := intQuery(r, "offset", 0)
			if err != nil {
				writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "offset must be an integer", nil)
				return true
			}
			payload, err := s.service.ListBlocks(r.Context(), store.BlockFilter{
				Query:       strings.TrimSpace(r.URL.Query().Get("q")),
				SectionType: strings.TrimSpace(r.URL.Query().Get("sectionType")),
				TagID:       strings.TrimSpace(r.URL.Query().Get("tagId")),
				Limit:       limit,
				Offset:      offset,
			})
			s.respond(w, payload, err)
		case http.MethodPost:
			var body BlockInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return true
			}
			payload, err := s.service.CreateBlock(r.Context(), body, session)
			s.respondCreated(w, payload, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return true
	}

	blockID := parts[2]

	// /api/content-blocks/{id}
	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.GetBlock(r.Context(), blockID)
			s.respond(w, payload, err)
		case http.MethodPut:
			var body struct {
				BlockInput
				Checkpoint        bool   `json:"checkpoint"`
				ChangeDescription string `json:"changeDescription"`
			}
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return true
			}
			payload, err := s.service.UpdateBlock(r.Context(), blockID, body.BlockInput, body.Checkpoint, body.ChangeDescription, session)
			s.respond(w, payload, err)
		case http.MethodDelete:
			if err := s.service.DeleteBlock(r.Context(), blockID); err != nil {
				status, code, message, details := mapError(err)
				writeError(w, status, code, message, details)
				return true
			}
			writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return true
	}

	action := parts[3]

	// /api/content-blocks/{id}/versions
	if action == "versions" && r.Method == http.MethodGet && len(parts) == 4 {
		payload, err := s.service.ListBlockVersions(r.Context(), blockID)
		s.respond(w, payload, err)
		return true
	}

	// /api/content-blocks/{id}/versions/{n}
	// /api/content-blocks/{id}/versions/{n}/compare  (against predecessor)
	if action == "versions" && r.Method == http.MethodGet && (len(parts) == 5 || len(parts) == 6) {
		versionNumber, err := strconv.Atoi(parts[4])
		if err != nil || versionNumber < 1 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "version must be a positive integer", nil)
			return true
		}
		if len(parts) == 6 {
			if parts[5] != "compare" {
				return false
			}
			payload, err := s.service.CompareVersionWithPrevious(r.Context(), blockID, versionNumber)
			s.respond(w, payload, err)
			return true
		}
		payload, err := s.service.GetBlockVersion(r.Context(), blockID, versionNumber)
		s.respond(w, payload, err)
		return true
	}

	// /api/content-blocks/{id}/checkpoint
	if action == "checkpoint" && r.Method == http.MethodPost && len(parts) == 4 {
		var body struct {
			Description string `json:"description"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return true
		}
		payload, err := s.service.CheckpointBlock(r.Context(), blockID, body.Description, session)
		s.respondCreated(w, payload, err)
		return true
	}

	// /api/content-blocks/{id}/revert
	if action == "revert" && r.Method == http.MethodPost && len(parts) == 4 {
		var body struct {
			Version int `json:"version"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return true
		}
		if body.Version < 1 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "version must be a positive integer", nil)
			return true
		}
		payload, err := s.service.RevertBlock(r.Context(), blockID, body.Version, session)
		s.respond(w, payload, err)
		return true
	}

	// /api/content-blocks/{id}/compare?from=2&to=5  (0 or omitted = current)
	if action == "compare" && r.Method == http.MethodGet && len(parts) == 4 {
		from, err := intQuery(r, "from", 0)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "from must be an integer", nil)
			return true
		}
		to, err := intQuery(r, "to", 0)
		if err != nil {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "to must be an integer", nil)
			return true
		}
		payload, err := s.service.CompareBlockVersions(r.Context(), blockID, from, to)
		s.respond(w, payload, err)
		return true
	}

	// /api/content-blocks/{id}/track-changes
	if action == "track-changes" && r.Method == http.MethodPut && len(parts) == 4 {
		var body struct {
			Enabled bool `json:"enabled"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return true
		}
		payload, err := s.service.SetTrackChanges(r.Context(), blockID, body.Enabled, session)
		s.respond(w, payload, err)
		return true
	}

	// /api/content-blocks/{id}/changes
	if action == "changes" && len(parts) == 4 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.ListPendingChanges(r.Context(), blockID)
			s.respond(w, payload, err)
		case http.MethodPost:
			var body RecordChangeInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return true
			}
			payload, err := s.service.RecordChange(r.Context(), blockID, body, session)
			s.respond(w, payload, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return true
	}

	// /api/content-blocks/{id}/changes/accept | reject
	if action == "changes" && r.Method == http.MethodPost && len(parts) == 5 {
		verdict := parts[4]
		if verdict != "accept" && verdict != "reject" {
			return false
		}
		var body struct {
			ChangeIDs []string `json:"changeIds"`
			All       bool     `json:"all"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return true
		}
		changeIDs := body.ChangeIDs
		if body.All {
			changeIDs = nil // every pending change
		} else if len(changeIDs) == 0 {
			writeError(w, http.StatusUnprocessableEntity, "VALIDATION_ERROR", "changeIds is required unless all is true", nil)
			return true
		}
		payload, err := s.service.ResolveChanges(r.Context(), blockID, changeIDs, verdict == "accept", session)
		s.respond(w, payload, err)
		return true
	}

	// /api/content-blocks/{id}/diff
	if action == "diff" && r.Method == http.MethodGet && len(parts) == 4 {
		payload, err := s.service.DiffBlock(r.Context(), blockID)
		s.respond(w, payload, err)
		return true
	}

	return false
}

func (s *HTTPServer) respond(w http.ResponseWriter, payload any, err error) {
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusOK, payload)
}

func (s *HTTPServer) respondCreated(w http.ResponseWriter, payload any, err error) {
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return
	}
	writeJSON(w, http.StatusCreated, payload)
}
