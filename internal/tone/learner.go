package tone

import (
	"context"
	"fmt"
	"log"

	"github.com/blogforge/blogforge/internal/helpers"
	"github.com/blogforge/blogforge/internal/llm"
)

const learnerSystemPrompt = `You are a writing style analyst. Study the provided reference text and describe its voice precisely enough that another writer could imitate it.`

const learnerPromptTemplate = `Analyze the writing style of the following reference text.

Respond with only a JSON object with these keys:
- "characteristics": overall voice traits (e.g. conversational, authoritative, playful)
- "vocabulary": typical word choices and jargon level
- "patterns": recurring sentence and paragraph structures
- "style": a one-paragraph summary of how to write in this voice

Reference text:
%s`

// Learner derives tone profiles with a text-generation call. It is the
// ComputeFunc handed to the cache.
type Learner struct {
	provider llm.Provider
	model    string
	logger   *log.Logger
}

// NewLearner builds a learner bound to one configured model.
func NewLearner(provider llm.Provider, model string, logger *log.Logger) *Learner {
	if logger == nil {
		logger = log.New(log.Writer(), "[TONE] ", log.LstdFlags)
	}
	return &Learner{provider: provider, model: model, logger: logger}
}

// Analyze runs the style analysis and validates the recovered profile.
func (l *Learner) Analyze(ctx context.Context, referenceText string) (Profile, error) {
	// Long samples add cost without adding signal.
	sample := helpers.Truncate(referenceText, 8000)

	text, usage, err := l.provider.Generate(ctx, learnerSystemPrompt, fmt.Sprintf(learnerPromptTemplate, sample), l.model, llm.Options{})
	if err != nil {
		return Profile{}, fmt.Errorf("generate tone analysis: %w", err)
	}
	l.logger.Printf("analyzed tone sample (%d tokens)", usage.Total())

	var profile Profile
	if err := helpers.DecodeInto(text, &profile); err != nil {
		return Profile{}, fmt.Errorf("parse tone analysis: %w", err)
	}
	if err := profile.Validate(); err != nil {
		return Profile{}, err
	}
	return profile, nil
}
