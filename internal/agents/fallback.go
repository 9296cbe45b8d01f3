package agents

import "log"

// FallbackKind says what a call site does when structured extraction fails.
type FallbackKind int

const (
	// FallbackPropagate turns the extraction failure into a step failure.
	FallbackPropagate FallbackKind = iota
	// FallbackSubstitute replaces the missing value with a declared default.
	FallbackSubstitute
)

// FallbackRule pairs the kind with a description of the substitute, so the
// recovery behavior of every generation call site is visible in one place.
type FallbackRule struct {
	Kind FallbackKind
	Note string
}

var fallbackRules = map[string]FallbackRule{
	"search.rank":        {FallbackSubstitute, "keep fetch order"},
	"plan.analysis":      {FallbackSubstitute, "generic analysis with topic as key concept"},
	"plan.outline":       {FallbackSubstitute, "canned four-section outline"},
	"write.keypoints":    {FallbackSubstitute, "section heading as the only point"},
	"review.correct":     {FallbackSubstitute, "keep the original draft text"},
	"review.reliability": {FallbackSubstitute, "accept draft with score 0.8"},
	"review.tone":        {FallbackSubstitute, "assume tone match score 0.8"},
	"review.learnings":   {FallbackSubstitute, "empty learnings payload"},
}

// recoverable logs the failure and reports whether the site substitutes a
// default. Sites without a rule propagate.
func recoverable(site string, err error, logger *log.Logger) bool {
	rule, ok := fallbackRules[site]
	if !ok || rule.Kind == FallbackPropagate {
		return false
	}
	logger.Printf("WARN: %s extraction failed (%v); falling back: %s", site, err, rule.Note)
	return true
}
