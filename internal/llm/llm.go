// Package llm provides the text-generation providers behind every agent
// call: an OpenAI-compatible REST client, an Anthropic REST client and a
// Gemini client. All transport runs through the retry policy so transient
// API failures never reach the agents.
package llm

import (
	"context"
	"fmt"
	"log"
	"sort"

	"github.com/blogforge/blogforge/config"
)

// Usage reports token accounting for one generation call. Cache counters are
// zero for providers that do not expose them.
type Usage struct {
	PromptTokens       int64
	CompletionTokens   int64
	CacheCreatedTokens int64
	CacheReadTokens    int64
}

// Total returns all tokens billed for the call.
func (u Usage) Total() int64 {
	return u.PromptTokens + u.CompletionTokens + u.CacheCreatedTokens + u.CacheReadTokens
}

// Options tune a single generation call. Zero values defer to the model's
// configured defaults.
type Options struct {
	Temperature float64
	MaxTokens   int
}

// Provider generates text from a system and user prompt with a configured
// model. Implementations retry transient failures internally and return the
// raw response text; structured-output recovery happens at the call site.
type Provider interface {
	Generate(ctx context.Context, systemPrompt, userPrompt, model string, opts Options) (string, Usage, error)

	// CalculateCost estimates the dollar cost of a call from the model's
	// configured per-1K rates.
	CalculateCost(model string, usage Usage) float64

	// AvailableModels lists the logical model names this provider accepts.
	AvailableModels() []string
}

// New builds a provider from configuration. When several providers are
// configured the lexicographically first name wins, which keeps selection
// deterministic across runs.
func New(cfg config.LLMConfig, logger *log.Logger) (Provider, error) {
	if len(cfg.Providers) == 0 {
		return nil, fmt.Errorf("no LLM providers configured")
	}
	if logger == nil {
		logger = log.New(log.Writer(), "[LLM] ", log.LstdFlags)
	}

	names := make([]string, 0, len(cfg.Providers))
	for name := range cfg.Providers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		provider := cfg.Providers[name]
		switch provider.Type {
		case "openai":
			return NewOpenAIProvider(provider, logger), nil
		case "anthropic":
			return NewAnthropicProvider(provider, logger), nil
		case "gemini":
			return NewGeminiProvider(provider, logger)
		default:
			return nil, fmt.Errorf("unsupported LLM provider type: %s", provider.Type)
		}
	}
	return nil, fmt.Errorf("no valid LLM providers found")
}

// resolveModel looks up the logical model name and returns its API name plus
// the effective generation parameters after applying call options.
func resolveModel(models map[string]config.LLMModel, model string, opts Options) (apiName string, temperature float64, maxTokens int, err error) {
	m, ok := models[model]
	if !ok {
		return "", 0, 0, fmt.Errorf("model %s not configured", model)
	}
	apiName = m.APIName
	if apiName == "" {
		apiName = m.Name
	}
	temperature = m.Temperature
	if opts.Temperature > 0 {
		temperature = opts.Temperature
	}
	maxTokens = m.MaxTokens
	if opts.MaxTokens > 0 {
		maxTokens = opts.MaxTokens
	}
	return apiName, temperature, maxTokens, nil
}

// costFor computes the dollar estimate shared by every provider.
func costFor(models map[string]config.LLMModel, model string, usage Usage) float64 {
	m, ok := models[model]
	if !ok {
		return 0
	}
	inputTokens := usage.PromptTokens + usage.CacheCreatedTokens + usage.CacheReadTokens
	return float64(inputTokens)/1000.0*m.CostPer1K + float64(usage.CompletionTokens)/1000.0*m.CostPer1KOutput
}

func modelNames(models map[string]config.LLMModel) []string {
	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
