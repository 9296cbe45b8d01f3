package filter

import (
	"fmt"
	"strings"

	"github.com/blogforge/blogforge/config"
	"github.com/blogforge/blogforge/internal/crawler"
)

// KeywordFilter rejects items containing an excluded keyword and, when
// required keywords are configured, items missing them. Matching is substring
// over title plus body, case-insensitive unless configured otherwise.
type KeywordFilter struct {
	required      []string
	excluded      []string
	matchAll      bool
	caseSensitive bool
}

func NewKeywordFilter(cfg config.KeywordFilterConfig) *KeywordFilter {
	f := &KeywordFilter{
		matchAll:      cfg.MatchAll,
		caseSensitive: cfg.CaseSensitive,
	}
	f.required = f.foldAll(cfg.Required)
	f.excluded = f.foldAll(cfg.Excluded)
	return f
}

func (f *KeywordFilter) Name() string { return "keywords" }

func (f *KeywordFilter) Apply(item crawler.Content) (bool, string) {
	text := f.fold(item.Title + " " + item.Body)

	for _, kw := range f.excluded {
		if strings.Contains(text, kw) {
			return false, fmt.Sprintf("excluded keyword %q present", kw)
		}
	}

	if len(f.required) == 0 {
		return true, ""
	}
	if f.matchAll {
		for _, kw := range f.required {
			if !strings.Contains(text, kw) {
				return false, fmt.Sprintf("required keyword %q missing", kw)
			}
		}
		return true, ""
	}
	for _, kw := range f.required {
		if strings.Contains(text, kw) {
			return true, ""
		}
	}
	return false, "no required keyword present"
}

func (f *KeywordFilter) fold(s string) string {
	if f.caseSensitive {
		return s
	}
	return strings.ToLower(s)
}

func (f *KeywordFilter) foldAll(keywords []string) []string {
	out := make([]string, 0, len(keywords))
	for _, kw := range keywords {
		kw = strings.TrimSpace(kw)
		if kw == "" {
			continue
		}
		out = append(out, f.fold(kw))
	}
	return out
}
