package llm

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"

	"google.golang.org/genai"

	"github.com/blogforge/blogforge/config"
	"github.com/blogforge/blogforge/internal/retry"
)

// GeminiProvider generates text through the Google GenAI SDK.
type GeminiProvider struct {
	client *genai.Client
	models map[string]config.LLMModel
	policy retry.Policy
	logger *log.Logger
}

// NewGeminiProvider builds a provider from one configured provider block.
func NewGeminiProvider(cfg config.LLMProvider, logger *log.Logger) (*GeminiProvider, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("gemini provider requires an API key")
	}
	client, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey: cfg.APIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	policy := retry.Default()
	if cfg.MaxRetries > 0 {
		policy.MaxAttempts = cfg.MaxRetries
	}
	policy.Retryable = retryableGeminiError
	policy.Logger = logger
	return &GeminiProvider{
		client: client,
		models: cfg.Models,
		policy: policy,
		logger: logger,
	}, nil
}

// retryableGeminiError mirrors the HTTP classification: rate limits, server
// errors and transport failures retry, other API rejections do not.
func retryableGeminiError(err error) bool {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= 500
	}
	return true
}

// Generate sends one GenerateContent call and returns the response text.
func (p *GeminiProvider) Generate(ctx context.Context, systemPrompt, userPrompt, model string, opts Options) (string, Usage, error) {
	apiName, temperature, maxTokens, err := resolveModel(p.models, model, opts)
	if err != nil {
		return "", Usage{}, err
	}

	genCfg := &genai.GenerateContentConfig{}
	if systemPrompt != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(systemPrompt, genai.RoleUser)
	}
	if temperature > 0 {
		genCfg.Temperature = genai.Ptr(float32(temperature))
	}
	if maxTokens > 0 {
		genCfg.MaxOutputTokens = int32(maxTokens)
	}

	type result struct {
		text  string
		usage Usage
	}
	res, err := retry.DoValue(ctx, p.policy, func(ctx context.Context) (result, error) {
		resp, err := p.client.Models.GenerateContent(ctx, apiName, genai.Text(userPrompt), genCfg)
		if err != nil {
			return result{}, fmt.Errorf("gemini request: %w", err)
		}
		text := resp.Text()
		if text == "" {
			return result{}, fmt.Errorf("gemini response contained no text")
		}
		var usage Usage
		if resp.UsageMetadata != nil {
			usage = Usage{
				PromptTokens:     int64(resp.UsageMetadata.PromptTokenCount),
				CompletionTokens: int64(resp.UsageMetadata.CandidatesTokenCount),
				CacheReadTokens:  int64(resp.UsageMetadata.CachedContentTokenCount),
			}
		}
		return result{text: text, usage: usage}, nil
	})
	if err != nil {
		return "", Usage{}, err
	}
	return res.text, res.usage, nil
}

func (p *GeminiProvider) CalculateCost(model string, usage Usage) float64 {
	return costFor(p.models, model, usage)
}

func (p *GeminiProvider) AvailableModels() []string {
	return modelNames(p.models)
}
