package server

import (
	"time"

	"github.com/blogforge/blogforge/internal/store"
)

// HTTPError is the error envelope every failed request returns.
type HTTPError struct {
	Error string `json:"error"`
}

// AuthSignupRequest represents the signup payload.
type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthLoginRequest represents the login payload.
type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse carries a bearer token.
type TokenResponse struct {
	Token string `json:"token"`
}

// MeResponse returns the current authenticated user id.
type MeResponse struct {
	UserID string `json:"user_id"`
}

// GenerateRequest triggers a blog generation run.
type GenerateRequest struct {
	Topic string `json:"topic"`
}

// IDResponse is a generic id response wrapper.
type IDResponse struct {
	ID string `json:"id"`
}

// RunStatusResponse combines the stored run record with the live checkpoint.
type RunStatusResponse struct {
	Run        *store.Run          `json:"run,omitempty"`
	Checkpoint *CheckpointResponse `json:"checkpoint,omitempty"`
	Reviews    []store.Review      `json:"reviews,omitempty"`
}

// CheckpointResponse is the wire view of a run checkpoint.
type CheckpointResponse struct {
	RunID          string    `json:"run_id"`
	Topic          string    `json:"topic"`
	CurrentStep    string    `json:"current_step"`
	CompletedSteps []string  `json:"completed_steps,omitempty"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// CrawlRequest selects which sources one crawl pass covers.
type CrawlRequest struct {
	Source string `json:"source"`
}

// CrawlAcceptedResponse acknowledges a crawl trigger.
type CrawlAcceptedResponse struct {
	Source string `json:"source"`
	Status string `json:"status"`
}

// ToneAnalyzeRequest carries reference text for tone analysis.
type ToneAnalyzeRequest struct {
	Text string `json:"text"`
}
