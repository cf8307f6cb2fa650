// Package ai drafts and revises proposal content with Claude.
package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

var ErrNotConfigured = errors.New("ai: no API key configured")

const (
	ActionDraft   = "draft"
	ActionImprove = "improve"
	ActionExpand  = "expand"
)

// Request describes one generation call. ExistingContent is required
// for improve and expand, ignored for draft.
type Request struct {
	Action          string
	SectionType     string
	Instructions    string
	ExistingContent string
	RFPContext      string
}

type Result struct {
	Content   string
	Model     string
	WordCount int
}

type Service struct {
	client    anthropic.Client
	model     string
	maxTokens int64
	enabled   bool
}

func NewService(apiKey, model string, maxTokens int) *Service {
	if apiKey == "" {
		return &Service{}
	}
	return &Service{
		client:    anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:     model,
		maxTokens: int64(maxTokens),
		enabled:   true,
	}
}

func (s *Service) Enabled() bool {
	return s.enabled
}

func (s *Service) Generate(ctx context.Context, req Request) (Result, error) {
	if !s.enabled {
		return Result{}, ErrNotConfigured
	}

	prompt, err := buildPrompt(req)
	if err != nil {
		return Result{}, err
	}

	message, err := s.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(s.model),
		MaxTokens: s.maxTokens,
		System:    []anthropic.TextBlockParam{{Text: systemPrompt(req.SectionType)}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("claude request: %w", err)
	}

	var b strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	content := stripFences(strings.TrimSpace(b.String()))
	if content == "" {
		return Result{}, errors.New("claude returned empty content")
	}

	return Result{
		Content:   content,
		Model:     s.model,
		WordCount: countWords(content),
	}, nil
}

// stripFences removes a ```html ... ``` wrapper the model sometimes
// adds despite instructions.
func stripFences(content string) string {
	if !strings.HasPrefix(content, "```") {
		return content
	}
	lines := strings.Split(content, "\n")
	if len(lines) < 2 {
		return content
	}
	lines = lines[1:]
	if strings.TrimSpace(lines[len(lines)-1]) == "```" {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

func countWords(html string) int {
	var b strings.Builder
	inTag := false
	for _, r := range html {
		switch {
		case r == '<':
			inTag = true
			b.WriteRune(' ')
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}
	return len(strings.Fields(b.String()))
}
