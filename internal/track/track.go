// Package track resolves tracked-change markup embedded in block HTML.
//
// While track changes is on, the editor records edits as wrapped runs:
//
//	<ins data-change-id="chg_x">added text</ins>
//	<del data-change-id="chg_x">removed text</del>
//
// Accepting an insert keeps its text and drops the wrapper; accepting a
// delete removes text and wrapper. Rejecting is the inverse.
package track

import (
	"fmt"
	"regexp"
	"strings"
)

const (
	TypeInsert = "insert"
	TypeDelete = "delete"
)

// Decision is the verdict for one change. Decisions are applied in the
// order given, which callers keep as recorded order.
type Decision struct {
	ChangeID string
	Type     string
	Accept   bool
}

var changeIDPattern = regexp.MustCompile(`<(?:ins|del)\b[^>]*\bdata-change-id="([^"]+)"`)

// ActiveChangeIDs lists the change IDs still marked up in the HTML, in
// document order, deduplicated.
func ActiveChangeIDs(html string) []string {
	seen := map[string]bool{}
	ids := []string{}
	for _, match := range changeIDPattern.FindAllStringSubmatch(html, -1) {
		if !seen[match[1]] {
			seen[match[1]] = true
			ids = append(ids, match[1])
		}
	}
	return ids
}

// Apply resolves the given decisions against the HTML. Decisions whose
// markers are absent from the document are skipped, so a stale ID is
// harmless.
func Apply(html string, decisions []Decision) (string, error) {
	out := html
	for _, d := range decisions {
		var err error
		out, err = applyOne(out, d)
		if err != nil {
			return "", err
		}
	}
	return out, nil
}

func applyOne(html string, d Decision) (string, error) {
	var tag string
	switch d.Type {
	case TypeInsert:
		tag = "ins"
	case TypeDelete:
		tag = "del"
	default:
		return "", fmt.Errorf("unknown change type %q", d.Type)
	}

	pattern, err := markerPattern(tag, d.ChangeID)
	if err != nil {
		return "", err
	}

	// keep the wrapped text when an insert is accepted or a delete is
	// rejected; drop it otherwise
	keepText := (d.Type == TypeInsert) == d.Accept
	return pattern.ReplaceAllStringFunc(html, func(match string) string {
		if !keepText {
			return ""
		}
		sub := pattern.FindStringSubmatch(match)
		return sub[1]
	}), nil
}

func markerPattern(tag, changeID string) (*regexp.Regexp, error) {
	expr := fmt.Sprintf(`(?s)<%s\b[^>]*\bdata-change-id="%s"[^>]*>(.*?)</%s>`,
		tag, regexp.QuoteMeta(changeID), tag)
	pattern, err := regexp.Compile(expr)
	if err != nil {
		return nil, fmt.Errorf("compile marker pattern: %w", err)
	}
	return pattern, nil
}

// ResolveAll accepts or rejects every marker in the document regardless
// of ID, used when track changes is switched off with edits pending.
func ResolveAll(html string, accept bool) string {
	out := html
	for _, tag := range []string{"ins", "del"} {
		keepText := (tag == "ins") == accept
		pattern := regexp.MustCompile(fmt.Sprintf(`(?s)<%s\b[^>]*\bdata-change-id="[^"]*"[^>]*>(.*?)</%s>`, tag, tag))
		out = pattern.ReplaceAllStringFunc(out, func(match string) string {
			if !keepText {
				return ""
			}
			return pattern.FindStringSubmatch(match)[1]
		})
	}
	return out
}

// HasMarkup reports whether any change markers remain.
func HasMarkup(html string) bool {
	return changeIDPattern.MatchString(html)
}

// CleanView renders the document as if every pending change were
// accepted, without touching the stored content.
func CleanView(html string) string {
	return ResolveAll(html, true)
}

// OriginalView renders the document as if every pending change were
// rejected.
func OriginalView(html string) string {
	return ResolveAll(html, false)
}

// Strip removes wrapper tags but keeps all text, insertions and
// deletions alike. Only used for word counting.
func Strip(html string) string {
	out := html
	for _, tag := range []string{"ins", "del"} {
		pattern := regexp.MustCompile(fmt.Sprintf(`(?s)<%s\b[^>]*\bdata-change-id="[^"]*"[^>]*>(.*?)</%s>`, tag, tag))
		out = pattern.ReplaceAllString(out, "$1")
	}
	return out
}

// WordCount counts words in the accepted view of the HTML.
func WordCount(html string) int {
	text := regexp.MustCompile(`<[^>]*>`).ReplaceAllString(CleanView(html), " ")
	return len(strings.Fields(text))
}
