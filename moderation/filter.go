package moderation

import (
	"regexp"
	"strings"
)

// ContentFilter matches banned terms as whole words, ignoring case.
// It is immutable and safe for concurrent use.
type ContentFilter struct {
	pattern *regexp.Regexp
}

func NewContentFilter(terms []string) *ContentFilter {
	quoted := make([]string, 0, len(terms))
	for _, term := range terms {
		term = strings.TrimSpace(term)
		if term == "" {
			continue
		}
		quoted = append(quoted, regexp.QuoteMeta(term))
	}
	if len(quoted) == 0 {
		return &ContentFilter{}
	}
	return &ContentFilter{pattern: regexp.MustCompile(`(?i)\b(` + strings.Join(quoted, "|") + `)\b`)}
}

func (f *ContentFilter) Matches(text string) bool {
	return f.pattern != nil && f.pattern.MatchString(text)
}

// Match returns the first banned term found in text, lower-cased, or "".
func (f *ContentFilter) Match(text string) string {
	if f.pattern == nil {
		return ""
	}
	return strings.ToLower(f.pattern.FindString(text))
}
