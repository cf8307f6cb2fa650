package ai

import (
	"fmt"
	"strings"
)

const basePrompt = `You are an experienced proposal writer for a professional services firm.
You write clear, persuasive, client-focused proposal content.

Output rules:
- Return HTML only, using <h2>, <h3>, <p>, <ul>, <li>, <strong> and <em>.
- No markdown, no code fences, no preamble or commentary.
- Never invent specific client names, dollar figures or dates unless given.`

var sectionGuidance = map[string]string{
	"executive_summary": "Executive summaries open with the client's problem, state the proposed outcome, and close with why this firm. Keep it under one page.",
	"technical":         "Technical approach sections explain methodology step by step, name concrete deliverables per phase, and address risk.",
	"management":        "Management sections cover team structure, roles, escalation paths and communication cadence.",
	"qualifications":    "Qualifications sections lead with directly relevant past work and quantify results wherever possible.",
	"pricing":           "Pricing narratives justify value rather than listing numbers, and explain assumptions behind estimates.",
}

func systemPrompt(sectionType string) string {
	guidance, ok := sectionGuidance[sectionType]
	if !ok {
		return basePrompt
	}
	return basePrompt + "\n\nSection guidance: " + guidance
}

func buildPrompt(req Request) (string, error) {
	var b strings.Builder

	switch req.Action {
	case ActionDraft:
		b.WriteString("Draft a new proposal section.\n")
	case ActionImprove:
		if req.ExistingContent == "" {
			return "", fmt.Errorf("action %q requires existing content", req.Action)
		}
		b.WriteString("Improve the following proposal content. Tighten wording, strengthen claims, keep the original structure and meaning.\n")
	case ActionExpand:
		if req.ExistingContent == "" {
			return "", fmt.Errorf("action %q requires existing content", req.Action)
		}
		b.WriteString("Expand the following proposal content with more depth and supporting detail. Keep the existing material.\n")
	default:
		return "", fmt.Errorf("unknown action %q", req.Action)
	}

	if req.SectionType != "" {
		fmt.Fprintf(&b, "\nSection type: %s\n", req.SectionType)
	}
	if req.RFPContext != "" {
		fmt.Fprintf(&b, "\nRFP context:\n%s\n", req.RFPContext)
	}
	if req.Instructions != "" {
		fmt.Fprintf(&b, "\nInstructions:\n%s\n", req.Instructions)
	}
	if req.ExistingContent != "" && req.Action != ActionDraft {
		fmt.Fprintf(&b, "\nExisting content:\n%s\n", req.ExistingContent)
	}
	return b.String(), nil
}
