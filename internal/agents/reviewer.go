package agents

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/blogforge/blogforge/config"
	"github.com/blogforge/blogforge/internal/helpers"
	"github.com/blogforge/blogforge/internal/llm"
	"github.com/blogforge/blogforge/internal/tone"
)

const reviewSystemPrompt = `You are a meticulous technical editor. You verify drafts against their plan and report problems directly.`

const correctionPromptTemplate = `Proofread this draft of "%s". Fix typos, grammar and awkward phrasing. Do not change the structure, headings, facts or approximate length.

Draft:
%s
Respond with only a JSON object with keys:
- "corrected_text": the full corrected markdown
- "corrections": array of short descriptions of each change (empty if none)`

const reliabilityPromptTemplate = `Assess this draft of "%s" (topic: %s) against its planned sections:
%s

Draft:
%s
Check factual soundness, internal consistency and coverage of the planned sections. Respond with only a JSON object with keys:
- "reliability_score": number between 0 and 1
- "reliability_notes": array of short remarks explaining the score`

const toneScorePromptTemplate = `Rate how well this draft matches the target voice.

Target voice:
%s

Draft:
%s
Respond with only a number between 0 and 1.`

const toneRevisePromptTemplate = `Rewrite this draft to match the target voice. Keep the structure, headings, facts and approximate length; change only the prose style.

Target voice:
%s

Draft:
%s
Respond with only the rewritten markdown.`

const learningsPromptTemplate = `Based on this draft about %s, list reusable insights a future post on the topic should keep in mind. Not a summary; think lessons and pitfalls.

Draft:
%s
Respond with only a JSON array of short strings (empty if nothing stands out).`

// Reviewer runs the post-draft passes: proofread correction, reliability
// scoring, tone adherence with optional revision, and learning extraction.
// Every pass has a declared fallback; none of them can fail the run.
type Reviewer struct {
	provider llm.Provider
	cfg      *config.Config
	logger   *log.Logger
}

// NewReviewer builds a reviewer on the shared provider.
func NewReviewer(provider llm.Provider, cfg *config.Config, logger *log.Logger) *Reviewer {
	if logger == nil {
		logger = log.New(log.Writer(), "[REVIEWER] ", log.LstdFlags)
	}
	return &Reviewer{provider: provider, cfg: cfg, logger: logger}
}

// Review returns the report and the final content: the corrected draft,
// further revised when the tone score fell below the configured threshold.
func (r *Reviewer) Review(ctx context.Context, content string, plan Plan, profile *tone.Profile) (ReviewReport, string, StepUsage, error) {
	var usage StepUsage
	var report ReviewReport
	model := r.cfg.LLM.Routing.Model("review")

	finalContent, corrections := r.correct(ctx, content, plan, model, &usage)
	report.Corrections = corrections

	report.ReliabilityScore, report.ReliabilityNotes = r.scoreReliability(ctx, finalContent, plan, model, &usage)

	if profile != nil {
		score := r.scoreTone(ctx, finalContent, profile, model, &usage)
		report.ToneMatchScore = score

		if score < r.cfg.Tone.MatchThreshold {
			r.logger.Printf("tone score %.2f below threshold %.2f, revising", score, r.cfg.Tone.MatchThreshold)
			revised, err := r.revise(ctx, finalContent, profile, model, &usage)
			if err != nil {
				r.logger.Printf("WARN: tone revision failed, keeping draft as corrected: %v", err)
				report.ReliabilityNotes = append(report.ReliabilityNotes, "tone revision failed; corrected draft kept")
			} else {
				finalContent = revised
				report.ToneRevised = true
			}
		}
	}

	report.Learnings = r.extractLearnings(ctx, finalContent, plan, model, &usage)

	return report, finalContent, usage, nil
}

type correctionDoc struct {
	CorrectedText string   `json:"corrected_text"`
	Corrections   []string `json:"corrections"`
}

// correct runs the proofread pass over the full draft. On any failure the
// original text survives untouched; the draft must never be lost to a bad
// correction reply.
func (r *Reviewer) correct(ctx context.Context, content string, plan Plan, model string, usage *StepUsage) (string, []string) {
	prompt := fmt.Sprintf(correctionPromptTemplate, plan.Title, content)
	text, llmUsage, err := r.provider.Generate(ctx, reviewSystemPrompt, prompt, model, llm.Options{})
	if err != nil {
		r.logger.Printf("WARN: correction call failed, keeping original draft: %v", err)
		return content, nil
	}
	usage.add(model, llmUsage, r.provider.CalculateCost(model, llmUsage))

	var doc correctionDoc
	if err := helpers.DecodeInto(text, &doc); err != nil {
		recoverable("review.correct", err, r.logger)
		return content, nil
	}
	if strings.TrimSpace(doc.CorrectedText) == "" {
		return content, doc.Corrections
	}
	return doc.CorrectedText, doc.Corrections
}

type reliabilityDoc struct {
	ReliabilityScore *float64 `json:"reliability_score"`
	ReliabilityNotes []string `json:"reliability_notes"`
}

// scoreReliability runs the factual review. An unparseable reply accepts the
// draft with the declared default score rather than failing the run.
func (r *Reviewer) scoreReliability(ctx context.Context, content string, plan Plan, model string, usage *StepUsage) (float64, []string) {
	const fallbackScore = 0.8
	fallbackNotes := []string{"review reply was not parseable; draft accepted with default score"}

	headings := make([]string, 0, len(plan.Sections))
	for _, s := range plan.Sections {
		headings = append(headings, "- "+s.Heading)
	}

	prompt := fmt.Sprintf(reliabilityPromptTemplate, plan.Title, plan.Topic,
		strings.Join(headings, "\n"), helpers.Truncate(content, 12000))
	text, llmUsage, err := r.provider.Generate(ctx, reviewSystemPrompt, prompt, model, llm.Options{})
	if err != nil {
		r.logger.Printf("WARN: reliability call failed, accepting draft: %v", err)
		return fallbackScore, fallbackNotes
	}
	usage.add(model, llmUsage, r.provider.CalculateCost(model, llmUsage))

	var doc reliabilityDoc
	if err := helpers.DecodeInto(text, &doc); err != nil {
		recoverable("review.reliability", err, r.logger)
		return fallbackScore, fallbackNotes
	}

	score := fallbackScore
	if doc.ReliabilityScore != nil {
		score = clamp01(*doc.ReliabilityScore)
	}
	return score, doc.ReliabilityNotes
}

// scoreTone rates voice adherence in [0,1]. The reply is usually a bare
// number but an object with a "score" key is tolerated.
func (r *Reviewer) scoreTone(ctx context.Context, content string, profile *tone.Profile, model string, usage *StepUsage) float64 {
	const fallbackScore = 0.8

	prompt := fmt.Sprintf(toneScorePromptTemplate, profile.Describe(), helpers.Truncate(content, 12000))
	text, llmUsage, err := r.provider.Generate(ctx, reviewSystemPrompt, prompt, model, llm.Options{})
	if err != nil {
		r.logger.Printf("WARN: tone scoring failed, assuming %.2f: %v", fallbackScore, err)
		return fallbackScore
	}
	usage.add(model, llmUsage, r.provider.CalculateCost(model, llmUsage))

	var score float64
	if err := helpers.DecodeInto(text, &score); err == nil {
		return clamp01(score)
	}

	var wrapped struct {
		Score *float64 `json:"score"`
	}
	if err := helpers.DecodeInto(text, &wrapped); err == nil && wrapped.Score != nil {
		return clamp01(*wrapped.Score)
	}

	recoverable("review.tone", fmt.Errorf("no score in reply %q", helpers.Truncate(text, 80)), r.logger)
	return fallbackScore
}

func (r *Reviewer) revise(ctx context.Context, content string, profile *tone.Profile, model string, usage *StepUsage) (string, error) {
	prompt := fmt.Sprintf(toneRevisePromptTemplate, profile.Describe(), content)
	text, llmUsage, err := r.provider.Generate(ctx, reviewSystemPrompt, prompt, model, llm.Options{})
	if err != nil {
		return "", err
	}
	usage.add(model, llmUsage, r.provider.CalculateCost(model, llmUsage))
	return text, nil
}

// extractLearnings collects optional reusable insights. Failure is fine; the
// payload is advisory and defaults to empty.
func (r *Reviewer) extractLearnings(ctx context.Context, content string, plan Plan, model string, usage *StepUsage) []string {
	prompt := fmt.Sprintf(learningsPromptTemplate, plan.Topic, helpers.Truncate(content, 12000))
	text, llmUsage, err := r.provider.Generate(ctx, reviewSystemPrompt, prompt, model, llm.Options{})
	if err != nil {
		r.logger.Printf("WARN: learning extraction failed: %v", err)
		return nil
	}
	usage.add(model, llmUsage, r.provider.CalculateCost(model, llmUsage))

	var learnings []string
	if err := helpers.DecodeInto(text, &learnings); err != nil {
		recoverable("review.learnings", err, r.logger)
		return nil
	}
	return learnings
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
