package agents

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/blogforge/blogforge/config"
	"github.com/blogforge/blogforge/internal/fetch"
	"github.com/blogforge/blogforge/internal/helpers"
	"github.com/blogforge/blogforge/internal/llm"
)

const analysisSystemPrompt = `You are a content strategist. You study source articles and report what they collectively cover and what they miss.`

const analysisPromptTemplate = `Topic: %s

Source articles:
%s
Respond with only a JSON object with keys:
- "common_themes": array of themes every source touches
- "unique_perspectives": array of angles only one source takes
- "content_gaps": array of aspects the sources fail to cover
- "key_concepts": array of concepts a post on this topic must explain
- "audience_level": one of "beginner", "intermediate", "advanced"`

const outlineSystemPrompt = `You are an editor planning a technical blog post. You produce tight outlines that cover the topic without padding.`

const outlinePromptTemplate = `Plan a blog post about: %s

Target length: %d words. Audience: %s.
Use between %d and %d sections.

Research analysis:
%s
Respond with only a JSON object with keys:
- "title": the post title
- "sections": array of objects with "heading", "key_points" (array of strings) and "estimated_words" (integer)`

// Planner analyzes the gathered articles and produces the post outline.
type Planner struct {
	provider llm.Provider
	cfg      *config.Config
	logger   *log.Logger
}

// NewPlanner builds a planner on the shared provider.
func NewPlanner(provider llm.Provider, cfg *config.Config, logger *log.Logger) *Planner {
	if logger == nil {
		logger = log.New(log.Writer(), "[PLANNER] ", log.LstdFlags)
	}
	return &Planner{provider: provider, cfg: cfg, logger: logger}
}

// Plan derives the outline for a topic from the fetched source articles.
func (p *Planner) Plan(ctx context.Context, topic string, items []fetch.Item) (Plan, StepUsage, error) {
	var usage StepUsage

	analysis := p.analyze(ctx, topic, items, &usage)
	plan := p.outline(ctx, topic, analysis, &usage)
	plan.Topic = topic
	plan.AudienceLevel = analysis.AudienceLevel
	plan.Analysis = analysis
	return plan, usage, nil
}

// analyze summarizes the source set. On extraction failure the declared
// fallback substitutes a generic analysis so planning can continue.
func (p *Planner) analyze(ctx context.Context, topic string, items []fetch.Item, usage *StepUsage) Analysis {
	fallback := Analysis{
		KeyConcepts:   []string{topic},
		AudienceLevel: "intermediate",
	}

	var digest strings.Builder
	for _, item := range items {
		fmt.Fprintf(&digest, "## %s\n%s\n\n", item.Title, helpers.Truncate(item.Content, 1500))
	}

	model := p.cfg.LLM.Routing.Model("analysis")
	text, llmUsage, err := p.provider.Generate(ctx, analysisSystemPrompt, fmt.Sprintf(analysisPromptTemplate, topic, digest.String()), model, llm.Options{})
	if err != nil {
		p.logger.Printf("WARN: analysis call failed, using generic analysis: %v", err)
		return fallback
	}
	usage.add(model, llmUsage, p.provider.CalculateCost(model, llmUsage))

	var analysis Analysis
	if err := helpers.DecodeInto(text, &analysis); err != nil {
		recoverable("plan.analysis", err, p.logger)
		return fallback
	}
	if analysis.AudienceLevel == "" {
		analysis.AudienceLevel = "intermediate"
	}
	if len(analysis.KeyConcepts) == 0 {
		analysis.KeyConcepts = []string{topic}
	}
	return analysis
}

// outline asks for the section plan. A reply without usable sections falls
// back to the canned outline; sections beyond MaxSections are dropped.
func (p *Planner) outline(ctx context.Context, topic string, analysis Analysis, usage *StepUsage) Plan {
	pipeline := p.cfg.Pipeline

	analysisJSON := fmt.Sprintf("Themes: %s\nGaps: %s\nKey concepts: %s",
		strings.Join(analysis.CommonThemes, "; "),
		strings.Join(analysis.ContentGaps, "; "),
		strings.Join(analysis.KeyConcepts, "; "))

	model := p.cfg.LLM.Routing.Model("outline")
	prompt := fmt.Sprintf(outlinePromptTemplate, topic, pipeline.TargetBlogLength, analysis.AudienceLevel,
		pipeline.MinSections, pipeline.MaxSections, analysisJSON)
	text, llmUsage, err := p.provider.Generate(ctx, outlineSystemPrompt, prompt, model, llm.Options{})
	if err != nil {
		p.logger.Printf("WARN: outline call failed, using canned outline: %v", err)
		return p.defaultOutline(topic)
	}
	usage.add(model, llmUsage, p.provider.CalculateCost(model, llmUsage))

	var plan Plan
	if err := helpers.DecodeInto(text, &plan); err != nil {
		recoverable("plan.outline", err, p.logger)
		return p.defaultOutline(topic)
	}
	if len(plan.Sections) == 0 {
		recoverable("plan.outline", fmt.Errorf("outline has no sections"), p.logger)
		return p.defaultOutline(topic)
	}

	if plan.Title == "" {
		plan.Title = topic
	}
	if len(plan.Sections) > pipeline.MaxSections {
		plan.Sections = plan.Sections[:pipeline.MaxSections]
	}
	for i := range plan.Sections {
		if plan.Sections[i].EstimatedWords <= 0 {
			plan.Sections[i].EstimatedWords = pipeline.SectionWordTarget
		}
		if len(plan.Sections[i].KeyPoints) == 0 {
			plan.Sections[i].KeyPoints = []string{plan.Sections[i].Heading}
		}
	}
	return plan
}

// defaultOutline is the declared substitute when no outline can be recovered.
func (p *Planner) defaultOutline(topic string) Plan {
	pipeline := p.cfg.Pipeline
	words := pipeline.TargetBlogLength / pipeline.MinSections
	headings := []string{"Introduction to " + topic, "Key Concepts", "Best Practices", "Conclusion"}

	sections := make([]Section, 0, len(headings))
	for _, heading := range headings {
		sections = append(sections, Section{
			Heading:        heading,
			KeyPoints:      []string{heading},
			EstimatedWords: words,
		})
	}
	return Plan{Title: topic, Sections: sections}
}
