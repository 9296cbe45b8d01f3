package agents

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/blogforge/blogforge/config"
	"github.com/blogforge/blogforge/internal/fetch"
	"github.com/blogforge/blogforge/internal/helpers"
	"github.com/blogforge/blogforge/internal/llm"
	"github.com/blogforge/blogforge/internal/tone"
)

const writerSystemPrompt = `You are a technical blog writer. You write clear, accurate prose in markdown, grounded in the provided research. Never invent facts the research does not support.`

const introPromptTemplate = `Write the introduction for a blog post titled "%s" about %s.

The post covers these sections:
%s
Write 150-200 words. Hook the reader and preview what the post delivers. Respond with only the introduction text, no heading.`

const keyPointsPromptTemplate = `From the research below, list the key points to make in a section titled "%s" for a post about %s.

Research:
%s
Respond with only a JSON array of short strings.`

const sectionPromptTemplate = `Write the section "%s" for a blog post titled "%s".

Audience: %s. Target length: about %d words.

%sCover these points:
%s
Respond with only the section text in markdown, no section heading.`

const conclusionPromptTemplate = `Write the conclusion for a blog post titled "%s" about %s.

The post covered:
%s
Write 100-150 words. Summarize the takeaways and end with a concrete next step for the reader. Respond with only the conclusion text, no heading.`

// Draft is the writer's output: the assembled markdown plus its metadata.
type Draft struct {
	Markdown string
	Metadata BlogMetadata
}

// Writer turns a plan and source articles into a full markdown draft.
type Writer struct {
	provider llm.Provider
	cfg      *config.Config
	logger   *log.Logger
}

// NewWriter builds a writer on the shared provider.
func NewWriter(provider llm.Provider, cfg *config.Config, logger *log.Logger) *Writer {
	if logger == nil {
		logger = log.New(log.Writer(), "[WRITER] ", log.LstdFlags)
	}
	return &Writer{provider: provider, cfg: cfg, logger: logger}
}

// Write drafts the post section by section. Any failed generation call fails
// the whole step; a post with silently missing sections is worse than a
// failed run.
func (w *Writer) Write(ctx context.Context, plan Plan, items []fetch.Item, profile *tone.Profile) (Draft, StepUsage, error) {
	var usage StepUsage
	model := w.cfg.LLM.Routing.Model("writing")
	system := writerSystemPrompt
	if profile != nil {
		system += "\n\nMatch this voice:\n" + profile.Describe()
	}

	headings := make([]string, 0, len(plan.Sections))
	for _, s := range plan.Sections {
		headings = append(headings, "- "+s.Heading)
	}
	outlineList := strings.Join(headings, "\n")

	intro, err := w.generate(ctx, system, fmt.Sprintf(introPromptTemplate, plan.Title, plan.Topic, outlineList), model, &usage)
	if err != nil {
		return Draft{}, usage, fmt.Errorf("write introduction: %w", err)
	}

	var body strings.Builder
	sectionCount := 0
	for _, section := range plan.Sections {
		// The writer owns the introduction and conclusion; outline sections
		// that duplicate them are skipped.
		if isIntroOrConclusion(section.Heading) {
			continue
		}

		points := section.KeyPoints
		if len(points) == 0 {
			points = w.extractKeyPoints(ctx, system, section.Heading, plan.Topic, items, model, &usage)
		}

		focus := ""
		if section.Summary != "" {
			focus = "Section focus: " + section.Summary + "\n\n"
		}
		prompt := fmt.Sprintf(sectionPromptTemplate, section.Heading, plan.Title, plan.AudienceLevel,
			section.EstimatedWords, focus, "- "+strings.Join(points, "\n- "))
		content, err := w.generate(ctx, system, prompt, model, &usage)
		if err != nil {
			return Draft{}, usage, fmt.Errorf("write section %q: %w", section.Heading, err)
		}
		fmt.Fprintf(&body, "## %s\n\n%s\n\n", section.Heading, content)
		sectionCount++
	}

	conclusion, err := w.generate(ctx, system, fmt.Sprintf(conclusionPromptTemplate, plan.Title, plan.Topic, outlineList), model, &usage)
	if err != nil {
		return Draft{}, usage, fmt.Errorf("write conclusion: %w", err)
	}

	generatedAt := time.Now().UTC()
	sources := make([]string, 0, len(items))
	for _, item := range items {
		if item.URL != "" {
			sources = append(sources, item.URL)
		}
	}

	var md strings.Builder
	fmt.Fprintf(&md, "# %s\n\n%s\n\n%s## Conclusion\n\n%s\n", plan.Title, intro, body.String(), conclusion)
	if len(sources) > 0 {
		md.WriteString("\n## References\n\n")
		for _, url := range sources {
			fmt.Fprintf(&md, "- %s\n", url)
		}
	}
	fmt.Fprintf(&md, "\n---\n\n*Generated on %s*\n", generatedAt.Format("January 2, 2006"))
	markdown := md.String()

	return Draft{
		Markdown: markdown,
		Metadata: BlogMetadata{
			Title:        plan.Title,
			Slug:         helpers.Slugify(plan.Title),
			Topic:        plan.Topic,
			WordCount:    helpers.CountWords(markdown),
			Sections:     sectionCount,
			Sources:      sources,
			Model:        model,
			TokensUsed:   usage.Tokens,
			CostEstimate: usage.Cost,
			GeneratedAt:  generatedAt,
		},
	}, usage, nil
}

func (w *Writer) generate(ctx context.Context, system, prompt, model string, usage *StepUsage) (string, error) {
	text, llmUsage, err := w.provider.Generate(ctx, system, prompt, model, llm.Options{})
	if err != nil {
		return "", err
	}
	usage.add(model, llmUsage, w.provider.CalculateCost(model, llmUsage))
	return strings.TrimSpace(text), nil
}

// extractKeyPoints asks for section talking points grounded in the research.
// On failure the declared fallback uses the heading itself.
func (w *Writer) extractKeyPoints(ctx context.Context, system, heading, topic string, items []fetch.Item, model string, usage *StepUsage) []string {
	var digest strings.Builder
	for _, item := range items {
		fmt.Fprintf(&digest, "%s\n%s\n\n", item.Title, helpers.Truncate(item.Content, 1000))
	}

	text, llmUsage, err := w.provider.Generate(ctx, system, fmt.Sprintf(keyPointsPromptTemplate, heading, topic, digest.String()), model, llm.Options{})
	if err != nil {
		w.logger.Printf("WARN: key-point call for %q failed: %v", heading, err)
		return []string{heading}
	}
	usage.add(model, llmUsage, w.provider.CalculateCost(model, llmUsage))

	points, err := parseKeyPoints(text)
	if err != nil || len(points) == 0 {
		recoverable("write.keypoints", err, w.logger)
		return []string{heading}
	}
	return points
}

// parseKeyPoints accepts either a bare JSON array of strings or an object
// wrapping one under a conventional key.
func parseKeyPoints(text string) ([]string, error) {
	var direct []string
	if err := helpers.DecodeInto(text, &direct); err == nil {
		return direct, nil
	}

	var wrapped map[string]json.RawMessage
	if err := helpers.DecodeInto(text, &wrapped); err != nil {
		return nil, err
	}
	for _, key := range []string{"key_points", "points", "items", "results"} {
		raw, ok := wrapped[key]
		if !ok {
			continue
		}
		var list []string
		if err := json.Unmarshal(raw, &list); err == nil && len(list) > 0 {
			return list, nil
		}
	}
	return nil, fmt.Errorf("no key-point list in reply")
}

func isIntroOrConclusion(heading string) bool {
	h := strings.ToLower(strings.TrimSpace(heading))
	return h == "conclusion" || h == "introduction" || strings.HasPrefix(h, "introduction to ")
}
