package ai

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestDisabledServiceReturnsNotConfigured(t *testing.T) {
	svc := NewService("", "claude-sonnet-4-5", 8192)
	if svc.Enabled() {
		t.Fatal("service without key should be disabled")
	}
	_, err := svc.Generate(context.Background(), Request{Action: ActionDraft})
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestBuildPromptDraft(t *testing.T) {
	prompt, err := buildPrompt(Request{
		Action:       ActionDraft,
		SectionType:  "technical",
		Instructions: "Cover our migration methodology.",
		RFPContext:   "State agency modernizing a legacy system.",
	})
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{"Draft a new proposal section", "technical", "migration methodology", "legacy system"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
}

func TestBuildPromptImproveRequiresContent(t *testing.T) {
	if _, err := buildPrompt(Request{Action: ActionImprove}); err == nil {
		t.Fatal("expected error for improve without content")
	}
	if _, err := buildPrompt(Request{Action: ActionExpand}); err == nil {
		t.Fatal("expected error for expand without content")
	}
}

func TestBuildPromptUnknownAction(t *testing.T) {
	if _, err := buildPrompt(Request{Action: "summarize"}); err == nil {
		t.Fatal("expected error for unknown action")
	}
}

func TestSystemPromptSectionGuidance(t *testing.T) {
	withGuidance := systemPrompt("executive_summary")
	if !strings.Contains(withGuidance, "Executive summaries") {
		t.Fatal("expected executive summary guidance")
	}
	if got := systemPrompt("unlisted"); got != basePrompt {
		t.Fatal("unknown section type should fall back to base prompt")
	}
}

func TestStripFences(t *testing.T) {
	cases := map[string]string{
		"```html\n<p>hi</p>\n```": "<p>hi</p>",
		"```\n<p>hi</p>\n```":     "<p>hi</p>",
		"<p>plain</p>":            "<p>plain</p>",
	}
	for in, want := range cases {
		if got := stripFences(in); got != want {
			t.Errorf("stripFences(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestCountWordsIgnoresTags(t *testing.T) {
	if got := countWords("<p>three little words</p>"); got != 3 {
		t.Fatalf("countWords = %d, want 3", got)
	}
}
