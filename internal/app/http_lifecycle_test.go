package app

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func doJSON(t *testing.T, handler http.Handler, method, path, token string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	var decoded map[string]any
	if rr.Body.Len() > 0 {
		_ = json.Unmarshal(rr.Body.Bytes(), &decoded)
	}
	return rr, decoded
}

func loginToken(t *testing.T, handler http.Handler, name string) string {
	t.Helper()
	rr, body := doJSON(t, handler, http.MethodPost, "/api/session/login", "", map[string]any{"name": name})
	if rr.Code != http.StatusOK {
		t.Fatalf("login failed: %d %s", rr.Code, rr.Body.String())
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatal("login returned no token")
	}
	return token
}

func TestHealthAndReady(t *testing.T) {
	svc, _ := newTestService(newFakeStore())
	handler := NewHTTPServer(svc, "*").Handler()

	rr, body := doJSON(t, handler, http.MethodGet, "/api/health", "", nil)
	if rr.Code != http.StatusOK || body["ok"] != true {
		t.Fatalf("health: %d %s", rr.Code, rr.Body.String())
	}

	rr, body = doJSON(t, handler, http.MethodGet, "/api/ready", "", nil)
	if rr.Code != http.StatusOK || body["status"] != "ready" {
		t.Fatalf("ready: %d %s", rr.Code, rr.Body.String())
	}
}

func TestRequiresBearerToken(t *testing.T) {
	svc, _ := newTestService(newFakeStore())
	handler := NewHTTPServer(svc, "*").Handler()

	rr, body := doJSON(t, handler, http.MethodGet, "/api/content-blocks", "", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if body["code"] != "UNAUTHORIZED" {
		t.Fatalf("expected UNAUTHORIZED code, got %v", body["code"])
	}

	rr, _ = doJSON(t, handler, http.MethodGet, "/api/content-blocks", "not-a-real-token", nil)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token, got %d", rr.Code)
	}
}

func TestSessionRefreshRotatesToken(t *testing.T) {
	svc, _ := newTestService(newFakeStore())
	handler := NewHTTPServer(svc, "*").Handler()

	rr, body := doJSON(t, handler, http.MethodPost, "/api/session/login", "", map[string]any{"name": "Avery"})
	if rr.Code != http.StatusOK {
		t.Fatalf("login: %d", rr.Code)
	}
	refresh := body["refreshToken"].(string)

	rr, body = doJSON(t, handler, http.MethodPost, "/api/session/refresh", "", map[string]any{"refreshToken": refresh})
	if rr.Code != http.StatusOK {
		t.Fatalf("refresh: %d %s", rr.Code, rr.Body.String())
	}
	if body["token"] == "" {
		t.Fatal("expected new access token")
	}

	// refresh tokens are single use
	rr, _ = doJSON(t, handler, http.MethodPost, "/api/session/refresh", "", map[string]any{"refreshToken": refresh})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 reusing refresh token, got %d", rr.Code)
	}
}

func TestBlockLifecycleOverHTTP(t *testing.T) {
	svc, _ := newTestService(newFakeStore())
	handler := NewHTTPServer(svc, "*").Handler()
	token := loginToken(t, handler, "Avery")

	// create
	rr, created := doJSON(t, handler, http.MethodPost, "/api/content-blocks", token, map[string]any{
		"title":       "Technical Approach",
		"content":     "<p>We deliver quality work.</p>",
		"sectionType": "technical",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rr.Code, rr.Body.String())
	}
	blockID := created["id"].(string)
	if created["wordCount"].(float64) != 4 {
		t.Fatalf("expected wordCount 4, got %v", created["wordCount"])
	}

	// update with a checkpoint
	rr, _ = doJSON(t, handler, http.MethodPut, "/api/content-blocks/"+blockID, token, map[string]any{
		"title":             "Technical Approach",
		"content":           "<p>We deliver exceptional work.</p>",
		"sectionType":       "technical",
		"checkpoint":        true,
		"changeDescription": "stronger wording",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("update: %d %s", rr.Code, rr.Body.String())
	}

	// history: v1 initial, v2 checkpointed update
	rr, history := doJSON(t, handler, http.MethodGet, "/api/content-blocks/"+blockID+"/versions", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("versions: %d", rr.Code)
	}
	versions := history["versions"].([]any)
	if len(versions) != 2 {
		t.Fatalf("expected 2 versions, got %d", len(versions))
	}
	newest := versions[0].(map[string]any)
	if newest["versionNumber"].(float64) != 2 || newest["changeDescription"] != "stronger wording" {
		t.Fatalf("unexpected newest version: %v", newest)
	}

	// revert to v1
	rr, reverted := doJSON(t, handler, http.MethodPost, "/api/content-blocks/"+blockID+"/revert", token, map[string]any{"version": 1})
	if rr.Code != http.StatusOK {
		t.Fatalf("revert: %d %s", rr.Code, rr.Body.String())
	}
	if reverted["content"] != "<p>We deliver quality work.</p>" {
		t.Fatalf("revert content: %v", reverted["content"])
	}

	// compare v1 against current (identical after revert)
	rr, compared := doJSON(t, handler, http.MethodGet, fmt.Sprintf("/api/content-blocks/%s/compare?from=1&to=0", blockID), token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("compare: %d", rr.Code)
	}
	if compared["from"] != "v1" || compared["to"] != "current" {
		t.Fatalf("compare labels: %v -> %v", compared["from"], compared["to"])
	}

	// delete
	rr, _ = doJSON(t, handler, http.MethodDelete, "/api/content-blocks/"+blockID, token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("delete: %d", rr.Code)
	}
	rr, _ = doJSON(t, handler, http.MethodGet, "/api/content-blocks/"+blockID, token, nil)
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", rr.Code)
	}
}

func TestTrackChangesLifecycleOverHTTP(t *testing.T) {
	svc, _ := newTestService(newFakeStore())
	handler := NewHTTPServer(svc, "*").Handler()
	token := loginToken(t, handler, "Avery")

	rr, created := doJSON(t, handler, http.MethodPost, "/api/content-blocks", token, map[string]any{
		"title":       "Summary",
		"content":     "<p>The team delivers solid work.</p>",
		"sectionType": "executive_summary",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: %d", rr.Code)
	}
	blockID := created["id"].(string)

	// recording before enabling is a conflict
	rr, body := doJSON(t, handler, http.MethodPost, "/api/content-blocks/"+blockID+"/changes", token, map[string]any{
		"content": markedContent,
		"changes": []map[string]any{{"id": "chg_1", "type": "insert"}},
	})
	if rr.Code != http.StatusConflict || body["code"] != "TRACK_CHANGES_DISABLED" {
		t.Fatalf("expected 409 TRACK_CHANGES_DISABLED, got %d %v", rr.Code, body["code"])
	}

	rr, _ = doJSON(t, handler, http.MethodPut, "/api/content-blocks/"+blockID+"/track-changes", token, map[string]any{"enabled": true})
	if rr.Code != http.StatusOK {
		t.Fatalf("enable: %d", rr.Code)
	}

	rr, recorded := doJSON(t, handler, http.MethodPost, "/api/content-blocks/"+blockID+"/changes", token, map[string]any{
		"content": markedContent,
		"changes": []map[string]any{
			{"id": "chg_1", "type": "insert"},
			{"id": "chg_2", "type": "delete"},
		},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("record: %d %s", rr.Code, rr.Body.String())
	}
	if recorded["total"].(float64) != 2 {
		t.Fatalf("expected 2 pending, got %v", recorded["total"])
	}

	// reviewer diff shows both pending edits
	rr, diffBody := doJSON(t, handler, http.MethodGet, "/api/content-blocks/"+blockID+"/diff", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("diff: %d", rr.Code)
	}
	if pending := diffBody["pending"].([]any); len(pending) != 2 {
		t.Fatalf("expected 2 pending ids, got %v", pending)
	}

	// empty id list is a validation error
	rr, _ = doJSON(t, handler, http.MethodPost, "/api/content-blocks/"+blockID+"/changes/accept", token, map[string]any{"changeIds": []string{}})
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for empty changeIds, got %d", rr.Code)
	}

	rr, resolved := doJSON(t, handler, http.MethodPost, "/api/content-blocks/"+blockID+"/changes/accept", token, map[string]any{
		"changeIds": []string{"chg_1", "chg_2", "chg_stale"},
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("accept: %d %s", rr.Code, rr.Body.String())
	}
	if resolved["content"] != "<p>The team delivers exceptional work.</p>" {
		t.Fatalf("accepted content: %v", resolved["content"])
	}
	if skipped := resolved["skipped"].([]any); len(skipped) != 1 || skipped[0] != "chg_stale" {
		t.Fatalf("expected chg_stale skipped, got %v", resolved["skipped"])
	}
}

func TestAcceptAllChangesOverHTTP(t *testing.T) {
	fs := newFakeStore()
	svc, _ := newTestService(fs)
	handler := NewHTTPServer(svc, "*").Handler()
	token := loginToken(t, handler, "Blair")

	blockID := seedTrackedBlock(t, svc)
	rr, resolved := doJSON(t, handler, http.MethodPost, "/api/content-blocks/"+blockID+"/changes/accept", token, map[string]any{"all": true})
	if rr.Code != http.StatusOK {
		t.Fatalf("accept all: %d %s", rr.Code, rr.Body.String())
	}
	if resolved["content"] != "<p>The team delivers exceptional work.</p>" {
		t.Fatalf("accepted content: %v", resolved["content"])
	}
	if ids := resolved["resolved"].([]any); len(ids) != 2 {
		t.Fatalf("expected 2 resolved, got %v", ids)
	}
	if remaining := resolved["pending"].([]any); len(remaining) != 0 {
		t.Fatalf("expected nothing left pending, got %v", remaining)
	}
}

func TestCompareWithPredecessorOverHTTP(t *testing.T) {
	svc, _ := newTestService(newFakeStore())
	handler := NewHTTPServer(svc, "*").Handler()
	token := loginToken(t, handler, "Avery")

	rr, created := doJSON(t, handler, http.MethodPost, "/api/content-blocks", token, map[string]any{
		"title":       "Approach",
		"content":     "<p>quality work</p>",
		"sectionType": "technical",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: %d", rr.Code)
	}
	blockID := created["id"].(string)

	rr, _ = doJSON(t, handler, http.MethodPut, "/api/content-blocks/"+blockID, token, map[string]any{
		"title":       "Approach",
		"content":     "<p>exceptional work</p>",
		"sectionType": "technical",
		"checkpoint":  true,
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("update: %d", rr.Code)
	}

	rr, compared := doJSON(t, handler, http.MethodGet, "/api/content-blocks/"+blockID+"/versions/2/compare", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("compare: %d %s", rr.Code, rr.Body.String())
	}
	if compared["version"].(map[string]any)["versionNumber"].(float64) != 2 {
		t.Fatalf("unexpected version: %v", compared["version"])
	}
	if compared["previous"].(map[string]any)["versionNumber"].(float64) != 1 {
		t.Fatalf("unexpected previous: %v", compared["previous"])
	}

	// the oldest version has nothing to compare against
	rr, compared = doJSON(t, handler, http.MethodGet, "/api/content-blocks/"+blockID+"/versions/1/compare", token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("compare oldest: %d", rr.Code)
	}
	if compared["previous"] != nil {
		t.Fatalf("expected null previous, got %v", compared["previous"])
	}
}

func TestDiffEndpointOverHTTP(t *testing.T) {
	svc, _ := newTestService(newFakeStore())
	handler := NewHTTPServer(svc, "*").Handler()

	rr, _ := doJSON(t, handler, http.MethodPost, "/api/diff", "", map[string]any{"oldText": "a", "newText": "b"})
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rr.Code)
	}

	token := loginToken(t, handler, "Avery")
	rr, body := doJSON(t, handler, http.MethodPost, "/api/diff", token, map[string]any{
		"oldHtml": "<p>quality work</p>",
		"newHtml": "<p>exceptional work</p>",
	})
	if rr.Code != http.StatusOK {
		t.Fatalf("diff: %d %s", rr.Code, rr.Body.String())
	}
	spans := body["spans"].([]any)
	if len(spans) == 0 {
		t.Fatal("expected diff spans")
	}
	var sawInsert bool
	for _, raw := range spans {
		span := raw.(map[string]any)
		if span["op"] == "insert" && strings.Contains(span["text"].(string), "exceptional") {
			sawInsert = true
		}
	}
	if !sawInsert {
		t.Fatal("expected an insert span for the new wording")
	}
}

func TestProposalAssemblyOverHTTP(t *testing.T) {
	svc, _ := newTestService(newFakeStore())
	handler := NewHTTPServer(svc, "*").Handler()
	token := loginToken(t, handler, "Avery")

	rr, proposal := doJSON(t, handler, http.MethodPost, "/api/proposals", token, map[string]any{
		"name":       "Statewide Modernization",
		"clientName": "State DOT",
		"rfpNumber":  "RFP-2026-014",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create proposal: %d %s", rr.Code, rr.Body.String())
	}
	proposalID := proposal["id"].(string)

	rr, section := doJSON(t, handler, http.MethodPost, "/api/proposals/"+proposalID+"/sections", token, map[string]any{
		"title":       "Technical Approach",
		"sectionType": "technical",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create section: %d %s", rr.Code, rr.Body.String())
	}
	sectionID := section["id"].(string)

	rr, _ = doJSON(t, handler, http.MethodPost, "/api/sections/"+sectionID+"/contents", token, map[string]any{
		"title":   "Methodology",
		"content": "<p>Phased delivery.</p>",
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("add content: %d %s", rr.Code, rr.Body.String())
	}

	rr, detail := doJSON(t, handler, http.MethodGet, "/api/proposals/"+proposalID, token, nil)
	if rr.Code != http.StatusOK {
		t.Fatalf("get proposal: %d", rr.Code)
	}
	if sections := detail["sections"].([]any); len(sections) != 1 {
		t.Fatalf("expected 1 section, got %d", len(sections))
	}

	// invalid status rejected
	rr, body := doJSON(t, handler, http.MethodPut, "/api/proposals/"+proposalID, token, map[string]any{
		"name":   "Statewide Modernization",
		"status": "abandoned",
	})
	if rr.Code != http.StatusUnprocessableEntity || body["code"] != "VALIDATION_ERROR" {
		t.Fatalf("expected 422 VALIDATION_ERROR, got %d %v", rr.Code, body["code"])
	}
}

func TestValidationErrorsOverHTTP(t *testing.T) {
	svc, _ := newTestService(newFakeStore())
	handler := NewHTTPServer(svc, "*").Handler()
	token := loginToken(t, handler, "Avery")

	tests := []struct {
		name   string
		method string
		path   string
		body   map[string]any
		status int
	}{
		{"block without title", http.MethodPost, "/api/content-blocks", map[string]any{"content": "<p>x</p>"}, http.StatusUnprocessableEntity},
		{"block with bad section type", http.MethodPost, "/api/content-blocks", map[string]any{"title": "T", "sectionType": "poetry"}, http.StatusUnprocessableEntity},
		{"revert to version zero", http.MethodPost, "/api/content-blocks/blk_x/revert", map[string]any{"version": 0}, http.StatusUnprocessableEntity},
		{"unknown block", http.MethodGet, "/api/content-blocks/blk_missing", nil, http.StatusNotFound},
		{"unknown route", http.MethodGet, "/api/nope", nil, http.StatusNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr, _ := doJSON(t, handler, tc.method, tc.path, token, tc.body)
			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d body=%s", tc.status, rr.Code, rr.Body.String())
			}
		})
	}
}
