// Package diff computes review-friendly text comparisons between two
// snapshots of block content.
package diff

import (
	"regexp"
	"strings"

	"github.com/sergi/go-diff/diffmatchpatch"
)

type Op string

const (
	OpEqual  Op = "equal"
	OpInsert Op = "insert"
	OpDelete Op = "delete"
)

// Span is one contiguous run of text sharing a single diff operation.
// Concatenating the equal and delete spans reproduces the old text;
// equal and insert spans reproduce the new text.
type Span struct {
	Op   Op     `json:"op"`
	Text string `json:"text"`
}

// Compare diffs two plain-text snapshots. Runs semantic cleanup so
// spans break on human-meaningful boundaries rather than minimal edits.
func Compare(oldText, newText string) []Span {
	if oldText == newText {
		if oldText == "" {
			return []Span{}
		}
		return []Span{{Op: OpEqual, Text: oldText}}
	}

	dmp := diffmatchpatch.New()
	diffs := dmp.DiffMain(oldText, newText, false)
	diffs = dmp.DiffCleanupSemantic(diffs)

	spans := make([]Span, 0, len(diffs))
	for _, d := range diffs {
		if d.Text == "" {
			continue
		}
		spans = append(spans, Span{Op: opFor(d.Type), Text: d.Text})
	}
	return spans
}

// CompareHTML strips markup from both sides before diffing, so the
// result reflects visible content rather than tag churn.
func CompareHTML(oldHTML, newHTML string) []Span {
	return Compare(StripHTML(oldHTML), StripHTML(newHTML))
}

func opFor(t diffmatchpatch.Operation) Op {
	switch t {
	case diffmatchpatch.DiffInsert:
		return OpInsert
	case diffmatchpatch.DiffDelete:
		return OpDelete
	default:
		return OpEqual
	}
}

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	spacePattern = regexp.MustCompile(`[ \t]+`)
)

// StripHTML reduces markup to its visible text. Block-level closers
// become newlines so paragraph boundaries survive.
func StripHTML(html string) string {
	text := html
	for _, closer := range []string{"</p>", "</div>", "</li>", "</h1>", "</h2>", "</h3>", "</h4>", "<br>", "<br/>", "<br />"} {
		text = strings.ReplaceAll(text, closer, closer+"\n")
	}
	text = tagPattern.ReplaceAllString(text, "")
	text = strings.ReplaceAll(text, "&nbsp;", " ")
	text = strings.ReplaceAll(text, "&amp;", "&")
	text = strings.ReplaceAll(text, "&lt;", "<")
	text = strings.ReplaceAll(text, "&gt;", ">")
	text = strings.ReplaceAll(text, "&quot;", `"`)
	text = strings.ReplaceAll(text, "&#39;", "'")
	text = spacePattern.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	out := []string{}
	for _, line := range lines {
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}

// Reconstruct rebuilds one side of the comparison from its spans.
// Side "old" keeps equal and delete spans; "new" keeps equal and insert.
func Reconstruct(spans []Span, side string) string {
	var b strings.Builder
	for _, span := range spans {
		switch span.Op {
		case OpEqual:
			b.WriteString(span.Text)
		case OpDelete:
			if side == "old" {
				b.WriteString(span.Text)
			}
		case OpInsert:
			if side == "new" {
				b.WriteString(span.Text)
			}
		}
	}
	return b.String()
}
