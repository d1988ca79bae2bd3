// Package automation decides whether a comment triggers a user's auto-reply rule.
package automation

import (
	"strings"
	"unicode/utf8"

	"github.com/sakif/comment-autoreply/internal/model"
)

// SnippetLength is the rune budget for the comment excerpt stored in the reply log.
const SnippetLength = 140

// Match is the outcome of evaluating one comment against one rule.
type Match struct {
	Matched bool
	Keyword string
	Reply   string
}

// Evaluate reports whether text triggers settings. A nil or disabled rule
// never matches. Matching is a case-insensitive substring test against the
// single configured keyword; an empty keyword never matches.
func Evaluate(settings *model.AutomationSettings, text string) Match {
	if settings.RuleState() != model.RuleEnabled {
		return Match{}
	}

	keyword := strings.TrimSpace(settings.Keyword)
	if keyword == "" {
		return Match{}
	}

	if !strings.Contains(strings.ToLower(text), strings.ToLower(keyword)) {
		return Match{}
	}

	return Match{
		Matched: true,
		Keyword: settings.Keyword,
		Reply:   settings.AutoReplyMessage,
	}
}

// Snippet truncates text to at most n runes, ending in an ellipsis when cut.
func Snippet(text string, n int) string {
	text = strings.TrimSpace(text)
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(text) <= n {
		return text
	}

	runes := []rune(text)
	if n == 1 {
		return "…"
	}
	return strings.TrimSpace(string(runes[:n-1])) + "…"
}
