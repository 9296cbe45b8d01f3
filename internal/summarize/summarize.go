// Package summarize enriches crawled content with model-generated summaries,
// key points, titles, categories and translations. Every operation declares a
// canned fallback, so a failing model degrades the output instead of aborting
// the crawl batch.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"log"
	"regexp"
	"strings"

	"github.com/blogforge/blogforge/config"
	"github.com/blogforge/blogforge/internal/helpers"
	"github.com/blogforge/blogforge/internal/llm"
)

const (
	// maxInputChars bounds how much source text a single prompt carries.
	maxInputChars = 12000

	defaultCategory   = "general"
	fallbackSentences = 2
)

const summarizeSystemPrompt = `You are an editorial assistant for a technical content pipeline. You produce concise, accurate output for a technical audience and reply with exactly what is asked for, nothing more.`

const (
	summaryPromptTemplate = `Summarize the following content in at most %d sentences. Focus on the main points and key technical insights.

Content:
%s`

	keyPointsPromptTemplate = `Extract the key points from the following content. Respond with a JSON array of strings, most important first.

Content:
%s`

	titlePromptTemplate = `Write one clear, descriptive title (under 100 characters) for the following content. Respond with the title only.

Content:
%s`

	categorizePromptTemplate = `Categorize the following content into exactly one of these categories: %s

Respond with the category name only.

Content:
%s`

	translatePromptTemplate = `Translate the following content to %s. Preserve the meaning and technical accuracy.

Content:
%s`
)

// fallbackNotes documents the substitute each operation uses when the model
// fails, mirroring the agents' per-site fallback table.
var fallbackNotes = map[string]string{
	"summarize":  "lead sentences of the source text",
	"keypoints":  "empty key point list",
	"title":      `"Untitled"`,
	"categorize": `"` + defaultCategory + `"`,
	"translate":  "untranslated source text",
}

var errEmptyReply = errors.New("empty model reply")

// Summarizer runs the enrichment operations against one configured model.
type Summarizer struct {
	provider llm.Provider
	model    string
	cfg      config.SummarizerConfig
	logger   *log.Logger
}

func New(provider llm.Provider, model string, cfg config.SummarizerConfig, logger *log.Logger) *Summarizer {
	if logger == nil {
		logger = log.New(log.Writer(), "[SUMMARIZE] ", log.LstdFlags)
	}
	return &Summarizer{provider: provider, model: model, cfg: cfg, logger: logger}
}

// Summarize condenses text to at most the configured sentence count. On
// model failure it falls back to the text's lead sentences.
func (s *Summarizer) Summarize(ctx context.Context, text string) (string, error) {
	text = prepare(text)
	if text == "" {
		return "", nil
	}

	prompt := fmt.Sprintf(summaryPromptTemplate, s.cfg.MaxSentences, text)
	reply, _, err := s.provider.Generate(ctx, summarizeSystemPrompt, prompt, s.model, llm.Options{})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		s.fallback("summarize", err)
		return firstSentences(text, fallbackSentences), nil
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		s.fallback("summarize", errEmptyReply)
		return firstSentences(text, fallbackSentences), nil
	}
	return reply, nil
}

type keyPointsPayload struct {
	KeyPoints []string `json:"key_points"`
	Points    []string `json:"points"`
}

// KeyPoints extracts up to ten key points as a JSON array. Unparseable or
// failed replies fall back to an empty list.
func (s *Summarizer) KeyPoints(ctx context.Context, text string) ([]string, error) {
	text = prepare(text)
	if text == "" {
		return nil, nil
	}

	prompt := fmt.Sprintf(keyPointsPromptTemplate, text)
	reply, _, err := s.provider.Generate(ctx, summarizeSystemPrompt, prompt, s.model, llm.Options{})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.fallback("keypoints", err)
		return nil, nil
	}

	var points []string
	if err := helpers.DecodeInto(reply, &points); err != nil {
		var payload keyPointsPayload
		if err := helpers.DecodeInto(reply, &payload); err != nil {
			s.fallback("keypoints", err)
			return nil, nil
		}
		points = payload.KeyPoints
		if len(points) == 0 {
			points = payload.Points
		}
	}

	out := points[:0]
	for _, p := range points {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) > 10 {
		out = out[:10]
	}
	return out, nil
}

// Title generates a title for text, falling back to "Untitled".
func (s *Summarizer) Title(ctx context.Context, text string) (string, error) {
	text = prepare(text)
	if text == "" {
		return "Untitled", nil
	}

	prompt := fmt.Sprintf(titlePromptTemplate, text)
	reply, _, err := s.provider.Generate(ctx, summarizeSystemPrompt, prompt, s.model, llm.Options{})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		s.fallback("title", err)
		return "Untitled", nil
	}
	title := strings.Trim(strings.TrimSpace(reply), `"'`)
	if title == "" {
		s.fallback("title", errEmptyReply)
		return "Untitled", nil
	}
	return title, nil
}

// Categorize assigns text to one of the configured categories. Replies that
// match no category, and failed calls, fall back to the default category.
func (s *Summarizer) Categorize(ctx context.Context, text string) (string, error) {
	text = prepare(text)
	if text == "" {
		return defaultCategory, nil
	}

	prompt := fmt.Sprintf(categorizePromptTemplate, strings.Join(s.cfg.Categories, ", "), text)
	reply, _, err := s.provider.Generate(ctx, summarizeSystemPrompt, prompt, s.model, llm.Options{})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		s.fallback("categorize", err)
		return defaultCategory, nil
	}
	return s.resolveCategory(reply), nil
}

// Translate renders text in the target language, falling back to the
// original text.
func (s *Summarizer) Translate(ctx context.Context, text, targetLanguage string) (string, error) {
	text = prepare(text)
	if text == "" {
		return "", nil
	}
	if targetLanguage == "" {
		targetLanguage = s.cfg.Language
	}

	prompt := fmt.Sprintf(translatePromptTemplate, targetLanguage, text)
	reply, _, err := s.provider.Generate(ctx, summarizeSystemPrompt, prompt, s.model, llm.Options{})
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		s.fallback("translate", err)
		return text, nil
	}
	reply = strings.TrimSpace(reply)
	if reply == "" {
		s.fallback("translate", errEmptyReply)
		return text, nil
	}
	return reply, nil
}

func (s *Summarizer) fallback(op string, err error) {
	s.logger.Printf("WARN: %s failed (%v); falling back: %s", op, err, fallbackNotes[op])
}

// resolveCategory maps a model reply onto the configured category list:
// exact match first, then containment either way, then the default.
func (s *Summarizer) resolveCategory(reply string) string {
	reply = strings.Trim(strings.TrimSpace(reply), `"'`)
	if reply == "" {
		return defaultCategory
	}
	for _, cat := range s.cfg.Categories {
		if strings.EqualFold(cat, reply) {
			return cat
		}
	}
	lowered := strings.ToLower(reply)
	for _, cat := range s.cfg.Categories {
		lc := strings.ToLower(cat)
		if strings.Contains(lowered, lc) || strings.Contains(lc, lowered) {
			return cat
		}
	}
	return defaultCategory
}

// prepare trims and bounds source text before it goes into a prompt.
func prepare(text string) string {
	return helpers.Truncate(strings.TrimSpace(text), maxInputChars)
}

var sentenceEnd = regexp.MustCompile(`[.!?]+`)

// firstSentences returns the first n sentences of text, or all of it when
// there are fewer.
func firstSentences(text string, n int) string {
	matches := sentenceEnd.FindAllStringIndex(text, n)
	if len(matches) < n {
		return text
	}
	return strings.TrimSpace(text[:matches[n-1][1]])
}
