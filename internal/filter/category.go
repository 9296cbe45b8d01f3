package filter

import (
	"fmt"
	"strings"

	"github.com/blogforge/blogforge/config"
	"github.com/blogforge/blogforge/internal/crawler"
)

// CategoryFilter classifies items into configured categories and rejects
// excluded ones. A category with a keyword definition matches on those
// keywords; without one it matches on item tags.
type CategoryFilter struct {
	allowed     []string
	excluded    []string
	definitions map[string][]string
}

func NewCategoryFilter(cfg config.CategoryFilterConfig) *CategoryFilter {
	definitions := make(map[string][]string, len(cfg.Definitions))
	for category, keywords := range cfg.Definitions {
		lowered := make([]string, 0, len(keywords))
		for _, kw := range keywords {
			kw = strings.ToLower(strings.TrimSpace(kw))
			if kw != "" {
				lowered = append(lowered, kw)
			}
		}
		definitions[strings.ToLower(category)] = lowered
	}
	return &CategoryFilter{
		allowed:     cfg.Allowed,
		excluded:    cfg.Excluded,
		definitions: definitions,
	}
}

func (f *CategoryFilter) Name() string { return "categories" }

func (f *CategoryFilter) Apply(item crawler.Content) (bool, string) {
	for _, category := range f.excluded {
		if f.matches(item, category) {
			return false, fmt.Sprintf("matches excluded category %q", category)
		}
	}
	if len(f.allowed) == 0 {
		return true, ""
	}
	for _, category := range f.allowed {
		if f.matches(item, category) {
			return true, ""
		}
	}
	return false, "no allowed category matched"
}

// matches prefers the category's keyword definition; tags are consulted only
// for categories without one.
func (f *CategoryFilter) matches(item crawler.Content, category string) bool {
	category = strings.ToLower(category)
	if keywords, ok := f.definitions[category]; ok {
		text := strings.ToLower(item.Title + " " + item.Body)
		for _, kw := range keywords {
			if strings.Contains(text, kw) {
				return true
			}
		}
		return false
	}
	for _, tag := range item.Tags {
		if strings.EqualFold(tag, category) {
			return true
		}
	}
	return false
}
