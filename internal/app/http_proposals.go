package app

import (
	"net/http"
	"strings"

	"propdesk/api/internal/export"
	"propdesk/api/internal/store"
)

// routeProposals dispatches proposal assembly routes: proposals,
// sections, section contents, requirements and attachments.
func (s *HTTPServer) routeProposals(w http.ResponseWriter, r *http.Request, session Session, parts []string) bool {
	if len(parts) < 2 || parts[0] != "api" {
		return false
	}

	switch parts[1] {
	case "proposals":
		return s.routeProposalRoot(w, r, session, parts)
	case "sections":
		return s.routeSections(w, r, parts)
	case "section-contents":
		return s.routeSectionContents(w, r, parts)
	case "requirements":
		return s.routeRequirements(w, r, parts)
	case "attachments":
		return s.routeAttachments(w, r, parts)
	}
	return false
}

func (s *HTTPServer) routeProposalRoot(w http.ResponseWriter, r *http.Request, session Session, parts []string) bool {
	// /api/proposals
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
			payload, err := s.service.ListProposals(r.Context(), store.ProposalFilter{
				Query:           strings.TrimSpace(r.URL.Query().Get("q")),
				Status:          strings.TrimSpace(r.URL.Query().Get("status")),
				IncludeArchived: r.URL.Query().Get("includeArchived") == "true",
				Limit:           limit,
				Offset:          offset,
			})
			s.respond(w, payload, err)
		case http.MethodPost:
			var body ProposalInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return true
			}
			proposal, err := s.service.CreateProposal(r.Context(), body, session)
			s.respondCreated(w, proposal, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return true
	}

	proposalID := parts[2]

	// /api/proposals/{id}
	if len(parts) == 3 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.GetProposal(r.Context(), proposalID)
			s.respond(w, payload, err)
		case http.MethodPut:
			var body ProposalInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return true
			}
			proposal, err := s.service.UpdateProposal(r.Context(), proposalID, body, session)
			s.respond(w, proposal, err)
		case http.MethodDelete:
			if err := s.service.DeleteProposal(r.Context(), proposalID); err != nil {
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

	// /api/proposals/{id}/sections
	if action == "sections" && r.Method == http.MethodPost && len(parts) == 4 {
		var body SectionInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return true
		}
		section, err := s.service.CreateSection(r.Context(), proposalID, body)
		s.respondCreated(w, section, err)
		return true
	}

	// /api/proposals/{id}/sections/reorder
	if action == "sections" && r.Method == http.MethodPut && len(parts) == 5 && parts[4] == "reorder" {
		var body struct {
			SectionIDs []string `json:"sectionIds"`
		}
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return true
		}
		payload, err := s.service.ReorderSections(r.Context(), proposalID, body.SectionIDs)
		s.respond(w, payload, err)
		return true
	}

	// /api/proposals/{id}/requirements
	if action == "requirements" && len(parts) == 4 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.ListRequirements(r.Context(), proposalID)
			s.respond(w, payload, err)
		case http.MethodPost:
			var body RequirementInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return true
			}
			req, err := s.service.CreateRequirement(r.Context(), proposalID, body)
			s.respondCreated(w, req, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return true
	}

	// /api/proposals/{id}/attachments
	if action == "attachments" && len(parts) == 4 {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.ListAttachments(r.Context(), proposalID)
			s.respond(w, payload, err)
		case http.MethodPost:
			s.handleAttachmentUpload(w, r, proposalID, session)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return true
	}

	return false
}

func (s *HTTPServer) handleAttachmentUpload(w http.ResponseWriter, r *http.Request, proposalID string, session Session) {
	// 32 MB in-memory cap; larger parts spill to temp files
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "expected multipart form upload", nil)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_BODY", "file field is required", nil)
		return
	}
	defer file.Close()

	contentType := header.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	att, err := s.service.UploadAttachment(r.Context(), proposalID, header.Filename, contentType,
		r.FormValue("purpose"), r.FormValue("description"), file, header.Size, session)
	s.respondCreated(w, att, err)
}

func (s *HTTPServer) routeSections(w http.ResponseWriter, r *http.Request, parts []string) bool {
	if len(parts) < 3 {
		return false
	}
	sectionID := parts[2]

	// /api/sections/{id}
	if len(parts) == 3 {
		switch r.Method {
		case http.MethodPut:
			var body SectionInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return true
			}
			section, err := s.service.UpdateSection(r.Context(), sectionID, body)
			s.respond(w, section, err)
		case http.MethodDelete:
			if err := s.service.DeleteSection(r.Context(), sectionID); err != nil {
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

	// /api/sections/{id}/contents
	if len(parts) == 4 && parts[3] == "contents" {
		switch r.Method {
		case http.MethodGet:
			payload, err := s.service.ListSectionContents(r.Context(), sectionID)
			s.respond(w, payload, err)
		case http.MethodPost:
			var body SectionContentInput
			if err := decodeBody(r, &body); err != nil {
				writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
				return true
			}
			content, err := s.service.AddSectionContent(r.Context(), sectionID, body)
			s.respondCreated(w, content, err)
		default:
			writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed", nil)
		}
		return true
	}

	return false
}

func (s *HTTPServer) routeSectionContents(w http.ResponseWriter, r *http.Request, parts []string) bool {
	if len(parts) != 3 {
		return false
	}
	contentID := parts[2]

	switch r.Method {
	case http.MethodPut:
		var body SectionContentInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return true
		}
		if err := s.service.UpdateSectionContent(r.Context(), contentID, body); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return true
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case http.MethodDelete:
		if err := s.service.DeleteSectionContent(r.Context(), contentID); err != nil {
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

func (s *HTTPServer) routeRequirements(w http.ResponseWriter, r *http.Request, parts []string) bool {
	if len(parts) != 3 {
		return false
	}
	requirementID := parts[2]

	switch r.Method {
	case http.MethodPut:
		var body RequirementInput
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "INVALID_BODY", err.Error(), nil)
			return true
		}
		if err := s.service.UpdateRequirement(r.Context(), requirementID, body); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return true
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
	case http.MethodDelete:
		if err := s.service.DeleteRequirement(r.Context(), requirementID); err != nil {
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

func (s *HTTPServer) routeAttachments(w http.ResponseWriter, r *http.Request, parts []string) bool {
	if len(parts) < 3 {
		return false
	}
	attachmentID := parts[2]

	// /api/attachments/{id}/download
	if len(parts) == 4 && parts[3] == "download" && r.Method == http.MethodGet {
		url, err := s.service.AttachmentDownloadURL(r.Context(), attachmentID)
		if err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return true
		}
		writeJSON(w, http.StatusOK, map[string]any{"url": url})
		return true
	}

	// /api/attachments/{id}
	if len(parts) == 3 && r.Method == http.MethodDelete {
		if err := s.service.DeleteAttachment(r.Context(), attachmentID); err != nil {
			status, code, message, details := mapError(err)
			writeError(w, status, code, message, details)
			return true
		}
		writeJSON(w, http.StatusOK, map[string]any{"ok": true})
		return true
	}

	return false
}

// routeExport handles /api/export/{kind}/{id}?format=docx|pdf.
func (s *HTTPServer) routeExport(w http.ResponseWriter, r *http.Request, parts []string) bool {
	if len(parts) != 4 || parts[0] != "api" || parts[1] != "export" || r.Method != http.MethodGet {
		return false
	}
	kind := export.Kind(parts[2])
	if kind != export.KindProposal && kind != export.KindSection && kind != export.KindBlock {
		return false
	}

	format := export.Format(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = export.FormatDOCX
	}

	result, err := s.service.Export(r.Context(), export.Request{Kind: kind, ID: parts[3], Format: format})
	if err != nil {
		status, code, message, details := mapError(err)
		writeError(w, status, code, message, details)
		return true
	}

	w.Header().Set("Content-Type", result.MimeType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+result.Filename+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(result.Data)
	return true
}
