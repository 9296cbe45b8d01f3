package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/blogforge/blogforge/config"
	"github.com/blogforge/blogforge/internal/helpers"
	"github.com/blogforge/blogforge/internal/retry"
)

const defaultOpenAIBaseURL = "https://api.openai.com/v1"

// apiError is a non-2xx response from a provider API. Status decides whether
// the retry policy tries again.
type apiError struct {
	Provider string
	Status   int
	Body     string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("%s API error (status %d): %s", e.Provider, e.Status, helpers.Truncate(e.Body, 200))
}

// retryableAPIError retries rate limits, server errors and transport
// failures. Other 4xx responses are caller mistakes and fail immediately.
func retryableAPIError(err error) bool {
	var apiErr *apiError
	if errors.As(err, &apiErr) {
		return apiErr.Status == http.StatusTooManyRequests || apiErr.Status >= 500
	}
	return true
}

// OpenAIProvider talks to the OpenAI chat completions API, or any endpoint
// that speaks the same protocol when BaseURL is overridden.
type OpenAIProvider struct {
	apiKey  string
	baseURL string
	models  map[string]config.LLMModel
	client  *http.Client
	policy  retry.Policy
	logger  *log.Logger
}

// NewOpenAIProvider builds a provider from one configured provider block.
func NewOpenAIProvider(cfg config.LLMProvider, logger *log.Logger) *OpenAIProvider {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultOpenAIBaseURL
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
	return &OpenAIProvider{
		apiKey:  cfg.APIKey,
		baseURL: baseURL,
		models:  cfg.Models,
		client:  &http.Client{Timeout: timeout},
		policy:  policy,
		logger:  logger,
	}
}

type openaiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type openaiChatRequest struct {
	Model       string          `json:"model"`
	Messages    []openaiMessage `json:"messages"`
	Temperature float64         `json:"temperature,omitempty"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
}

type openaiChatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		PromptTokens        int64 `json:"prompt_tokens"`
		CompletionTokens    int64 `json:"completion_tokens"`
		PromptTokensDetails struct {
			CachedTokens int64 `json:"cached_tokens"`
		} `json:"prompt_tokens_details"`
	} `json:"usage"`
}

// Generate sends one chat completion request and returns the assistant text.
func (p *OpenAIProvider) Generate(ctx context.Context, systemPrompt, userPrompt, model string, opts Options) (string, Usage, error) {
	apiName, temperature, maxTokens, err := resolveModel(p.models, model, opts)
	if err != nil {
		return "", Usage{}, err
	}

	messages := make([]openaiMessage, 0, 2)
	if systemPrompt != "" {
		messages = append(messages, openaiMessage{Role: "system", Content: systemPrompt})
	}
	messages = append(messages, openaiMessage{Role: "user", Content: userPrompt})

	body, err := json.Marshal(openaiChatRequest{
		Model:       apiName,
		Messages:    messages,
		Temperature: temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", Usage{}, fmt.Errorf("marshal chat request: %w", err)
	}

	type result struct {
		text  string
		usage Usage
	}
	res, err := retry.DoValue(ctx, p.policy, func(ctx context.Context) (result, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return result{}, retry.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+p.apiKey)

		resp, err := p.client.Do(req)
		if err != nil {
			return result{}, fmt.Errorf("openai request: %w", err)
		}
		data, err := helpers.ReadAllAndClose(resp.Body)
		if err != nil {
			return result{}, fmt.Errorf("read openai response: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			return result{}, &apiError{Provider: "openai", Status: resp.StatusCode, Body: string(data)}
		}

		var chat openaiChatResponse
		if err := json.Unmarshal(data, &chat); err != nil {
			return result{}, fmt.Errorf("decode openai response: %w", err)
		}
		if len(chat.Choices) == 0 {
			return result{}, fmt.Errorf("openai response contained no choices")
		}
		return result{
			text: chat.Choices[0].Message.Content,
			usage: Usage{
				PromptTokens:     chat.Usage.PromptTokens,
				CompletionTokens: chat.Usage.CompletionTokens,
				CacheReadTokens:  chat.Usage.PromptTokensDetails.CachedTokens,
			},
		}, nil
	})
	if err != nil {
		return "", Usage{}, err
	}
	return res.text, res.usage, nil
}

func (p *OpenAIProvider) CalculateCost(model string, usage Usage) float64 {
	return costFor(p.models, model, usage)
}

func (p *OpenAIProvider) AvailableModels() []string {
	return modelNames(p.models)
}
