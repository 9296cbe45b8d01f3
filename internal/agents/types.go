// Package agents implements the pipeline's four specialists: a searcher that
// gathers source articles, a planner that outlines the post, a writer that
// drafts it and a reviewer that scores and corrects the draft. Every agent
// talks to the text-generation backend through the shared provider and
// recovers structured output with the extraction cascade.
package agents

import (
	"time"

	"github.com/blogforge/blogforge/internal/llm"
)

// Analysis summarizes what the gathered source articles collectively cover.
type Analysis struct {
	CommonThemes       []string `json:"common_themes"`
	UniquePerspectives []string `json:"unique_perspectives"`
	ContentGaps        []string `json:"content_gaps"`
	KeyConcepts        []string `json:"key_concepts"`
	AudienceLevel      string   `json:"audience_level"`
}

// Section is one planned part of the post.
type Section struct {
	Heading        string   `json:"heading"`
	Summary        string   `json:"summary,omitempty"`
	KeyPoints      []string `json:"key_points"`
	EstimatedWords int      `json:"estimated_words"`
}

// Plan is the outline the writer follows.
type Plan struct {
	Title         string    `json:"title"`
	Topic         string    `json:"topic"`
	AudienceLevel string    `json:"audience_level"`
	Sections      []Section `json:"sections"`
	Analysis      Analysis  `json:"analysis"`
}

// BlogMetadata describes a finished draft.
type BlogMetadata struct {
	Title        string    `json:"title"`
	Slug         string    `json:"slug"`
	Topic        string    `json:"topic"`
	WordCount    int       `json:"word_count"`
	Sections     int       `json:"sections"`
	Sources      []string  `json:"sources,omitempty"`
	Model        string    `json:"model"`
	TokensUsed   int64     `json:"tokens_used"`
	CostEstimate float64   `json:"cost_estimate"`
	GeneratedAt  time.Time `json:"generated_at"`
}

// ReviewReport accumulates the reviewer's findings across its sub-steps.
type ReviewReport struct {
	Corrections      []string `json:"corrections"`
	ReliabilityScore float64  `json:"reliability_score"`
	ReliabilityNotes []string `json:"reliability_notes"`
	ToneMatchScore   float64  `json:"tone_match_score,omitempty"`
	ToneRevised      bool     `json:"tone_revised,omitempty"`
	Learnings        []string `json:"learnings,omitempty"`
}

// StepUsage aggregates token spend across all generation calls of one step.
type StepUsage struct {
	Model  string
	Tokens int64
	Cost   float64
}

func (u *StepUsage) add(model string, usage llm.Usage, cost float64) {
	u.Model = model
	u.Tokens += usage.Total()
	u.Cost += cost
}
