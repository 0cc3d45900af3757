// Package trace records LLM interactions and orchestration decisions for
// post-hoc diagnosis and A/B comparison of prompt versions. Recording is
// best-effort: failures are logged, never propagated into request handling.
package trace

import (
	"context"
	"log/slog"
)

// Decision types.
const (
	DecisionCacheHit      = "cache_hit"
	DecisionCacheMiss     = "cache_miss"
	DecisionRaceWinner    = "race_winner"
	DecisionRaceLoser     = "race_loser"
	DecisionModeration    = "moderation_verdict"
	DecisionRetryAttempt  = "retry_attempt"
	DecisionPlainTextWrap = "plain_text_wrap"
	DecisionCacheRepair   = "cache_repair"
)

// LLM call statuses.
const (
	StatusOK        = "ok"
	StatusError     = "error"
	StatusCancelled = "cancelled"
)

// LLMCall is one provider round trip.
type LLMCall struct {
	SessionID     string
	Resource      string
	Provider      string
	Model         string
	PromptVersion string
	InputTokens   int
	OutputTokens  int
	CostUSD       float64
	DurationMs    int64
	Status        string
	ErrorMessage  string

	// PromptText and ResponseText are only populated when prompt logging is
	// enabled in configuration.
	PromptText   string
	ResponseText string
}

// Decision is one orchestration decision worth auditing: cache hit/miss,
// race winner and loser, moderation verdict, retry attempt, plain-text wrap.
type Decision struct {
	SessionID string
	Type      string
	Detail    map[string]any
}

// Recorder receives trace records.
type Recorder interface {
	RecordLLMCall(ctx context.Context, call LLMCall)
	RecordDecision(ctx context.Context, d Decision)
}

// SlogRecorder writes trace records to the structured log. Used in tests and
// deployments without a database-backed audit trail.
type SlogRecorder struct{}

// RecordLLMCall logs one provider round trip.
func (SlogRecorder) RecordLLMCall(_ context.Context, call LLMCall) {
	slog.Info("LLM call",
		"session_id", call.SessionID,
		"resource", call.Resource,
		"provider", call.Provider,
		"model", call.Model,
		"prompt_version", call.PromptVersion,
		"input_tokens", call.InputTokens,
		"output_tokens", call.OutputTokens,
		"cost_usd", call.CostUSD,
		"duration_ms", call.DurationMs,
		"status", call.Status,
		"error", call.ErrorMessage)
}

// RecordDecision logs one orchestration decision.
func (SlogRecorder) RecordDecision(_ context.Context, d Decision) {
	slog.Info("Decision",
		"session_id", d.SessionID,
		"type", d.Type,
		"detail", d.Detail)
}

// NopRecorder discards all records.
type NopRecorder struct{}

func (NopRecorder) RecordLLMCall(context.Context, LLMCall) {}
func (NopRecorder) RecordDecision(context.Context, Decision) {}
