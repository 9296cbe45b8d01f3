package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/blogforge/blogforge/config"
	"github.com/blogforge/blogforge/internal/helpers"
	"github.com/blogforge/blogforge/internal/retry"
)

const (
	defaultAnthropicBaseURL = "https://api.anthropic.com/v1"
	anthropicVersion        = "2023-06-01"
)

// AnthropicProvider talks to the Anthropic messages API.
type AnthropicProvider struct {
	apiKey  string
	baseURL string
	models  map[string]config.LLMModel
	client  *http.Client
	policy  retry.Policy
	logger  *log.Logger
}

// NewAnthropicProvider builds a provider from one configured provider block.
func NewAnthropicProvider(cfg config.LLMProvider, logger *log.Logger) *AnthropicProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	policy := retry.Default()
	if cfg.MaxRetries > 0 {
		policy.MaxAttempts = cfg.MaxRetries
	}
	policy.Retryable = retryableAPIError
	policy.Logger = logger
	return &AnthropicProvider{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		models:  cfg.Models,
		client:  &http.Client{Timeout: timeout},
		policy:  policy,
		logger:  logger,
	}
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	System      string             `json:"system,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Temperature float64            `json:"temperature,omitempty"`
	MaxTokens   int                `json:"max_tokens"`
}

type anthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type anthropicResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	Usage struct {
		InputTokens         int64 `json:"input_tokens"`
		OutputTokens        int64 `json:"output_tokens"`
		CacheCreationTokens int64 `json:"cache_creation_input_tokens"`
		CacheReadTokens     int64 `json:"cache_read_input_tokens"`
	} `json:"usage"`
}

// Generate sends one messages request and returns the concatenated text
// blocks of the reply.
func (p *AnthropicProvider) Generate(ctx context.Context, systemPrompt, userPrompt, model string, opts Options) (string, Usage, error) {
	apiName, temperature, maxTokens, err := resolveModel(p.models, model, opts)
	if err != nil {
		return "", Usage{}, err
	}
	// The messages API requires max_tokens.
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	body, err := json.Marshal(anthropicRequest{
		Model:       apiName,
		System:      systemPrompt,
		Messages:    []anthropicMessage{{Role: "user", Content: userPrompt}},
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", Usage{}, fmt.Errorf("marshal messages request: %w", err)
	}

	type result struct {
		text  string
		usage Usage
	}
	res, err := retry.DoValue(ctx, p.policy, func(ctx context.Context) (result, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/messages", bytes.NewReader(body))
		if err != nil {
			return result{}, retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("x-api-key", p.apiKey)
		req.Header.Set("anthropic-version", anthropicVersion)

		resp, err := p.client.Do(req)
		if err != nil {
			return result{}, fmt.Errorf("anthropic request: %w", err)
		}
		data, err := helpers.ReadAllAndClose(resp.Body)
		if err != nil {
			return result{}, fmt.Errorf("read anthropic response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return result{}, &apiError{Provider: "anthropic", Status: resp.StatusCode, Body: string(data)}
		}

		var msg anthropicResponse
		if err := json.Unmarshal(data, &msg); err != nil {
			return result{}, fmt.Errorf("decode anthropic response: %w", err)
		}
		var sb strings.Builder
		for _, block := range msg.Content {
			if block.Type == "text" {
				sb.WriteString(block.Text)
			}
		}
		if sb.Len() == 0 {
			return result{}, fmt.Errorf("anthropic response contained no text blocks")
		}
		return result{
			text: sb.String(),
			usage: Usage{
				PromptTokens:       msg.Usage.InputTokens,
				CompletionTokens:   msg.Usage.OutputTokens,
				CacheCreatedTokens: msg.Usage.CacheCreationTokens,
				CacheReadTokens:    msg.Usage.CacheReadTokens,
			},
		}, nil
	})
	if err != nil {
		return "", Usage{}, err
	}
	return res.text, res.usage, nil
}

func (p *AnthropicProvider) CalculateCost(model string, usage Usage) float64 {
	return costFor(p.models, model, usage)
}

func (p *AnthropicProvider) AvailableModels() []string {
	return modelNames(p.models)
}
