package filter

import (
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/blogforge/blogforge/config"
	"github.com/blogforge/blogforge/internal/crawler"
)

// LengthFilter bounds content and title length in characters. A zero bound
// is unenforced.
type LengthFilter struct {
	cfg config.LengthFilterConfig
}

func NewLengthFilter(cfg config.LengthFilterConfig) *LengthFilter {
	return &LengthFilter{cfg: cfg}
}

func (f *LengthFilter) Name() string { return "length" }

func (f *LengthFilter) Apply(item crawler.Content) (bool, string) {
	contentLen := utf8.RuneCountInString(item.Body)
	titleLen := utf8.RuneCountInString(item.Title)

	if contentLen < f.cfg.MinContent {
		return false, fmt.Sprintf("content length %d below minimum %d", contentLen, f.cfg.MinContent)
	}
	if f.cfg.MaxContent > 0 && contentLen > f.cfg.MaxContent {
		return false, fmt.Sprintf("content length %d above maximum %d", contentLen, f.cfg.MaxContent)
	}
	if titleLen < f.cfg.MinTitle {
		return false, fmt.Sprintf("title length %d below minimum %d", titleLen, f.cfg.MinTitle)
	}
	if f.cfg.MaxTitle > 0 && titleLen > f.cfg.MaxTitle {
		return false, fmt.Sprintf("title length %d above maximum %d", titleLen, f.cfg.MaxTitle)
	}
	return true, ""
}

const defaultMinSentenceLength = 10

var sentenceBoundary = regexp.MustCompile(`[.!?]+`)

// QualityFilter enforces minimum word, sentence and paragraph counts. A
// sentence counts only when longer than the minimum sentence length, which
// keeps fragments like list bullets from padding the total.
type QualityFilter struct {
	cfg config.QualityFilterConfig
}

func NewQualityFilter(cfg config.QualityFilterConfig) *QualityFilter {
	if cfg.MinSentenceLength <= 0 {
		cfg.MinSentenceLength = defaultMinSentenceLength
	}
	return &QualityFilter{cfg: cfg}
}

func (f *QualityFilter) Name() string { return "quality" }

func (f *QualityFilter) Apply(item crawler.Content) (bool, string) {
	if f.cfg.MinWords > 0 {
		words := len(strings.Fields(item.Body))
		if words < f.cfg.MinWords {
			return false, fmt.Sprintf("%d words below minimum %d", words, f.cfg.MinWords)
		}
	}

	if f.cfg.MinSentences > 0 {
		sentences := 0
		for _, segment := range sentenceBoundary.Split(item.Body, -1) {
			segment = strings.TrimSpace(segment)
			if segment != "" && utf8.RuneCountInString(segment) > f.cfg.MinSentenceLength {
				sentences++
			}
		}
		if sentences < f.cfg.MinSentences {
			return false, fmt.Sprintf("%d sentences below minimum %d", sentences, f.cfg.MinSentences)
		}
	}

	if f.cfg.MinParagraphs > 0 {
		paragraphs := 0
		for _, p := range strings.Split(item.Body, "\n\n") {
			if strings.TrimSpace(p) != "" {
				paragraphs++
			}
		}
		if paragraphs < f.cfg.MinParagraphs {
			return false, fmt.Sprintf("%d paragraphs below minimum %d", paragraphs, f.cfg.MinParagraphs)
		}
	}

	return true, ""
}
