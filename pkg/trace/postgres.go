package trace

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"

	"github.com/google/uuid"
)

// PostgresRecorder persists trace records into llm_interactions and
// decision_events. Write failures are logged and swallowed so tracing never
// fails a request.
type PostgresRecorder struct {
	db *sql.DB
}

// NewPostgresRecorder wraps an open database handle.
func NewPostgresRecorder(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

// RecordLLMCall persists one provider round trip.
func (r *PostgresRecorder) RecordLLMCall(ctx context.Context, call LLMCall) {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO llm_interactions
			(id, session_id, resource, provider, model, prompt_version,
			 input_tokens, output_tokens, cost_usd, duration_ms, status,
			 error_message, prompt_text, response_text)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		uuid.NewString(), call.SessionID, nullable(call.Resource), call.Provider,
		call.Model, nullable(call.PromptVersion), call.InputTokens, call.OutputTokens,
		call.CostUSD, call.DurationMs, call.Status, nullable(call.ErrorMessage),
		nullable(call.PromptText), nullable(call.ResponseText))
	if err != nil {
		slog.Warn("Failed to record LLM interaction",
			"session_id", call.SessionID, "error", err)
	}
}

// RecordDecision persists one orchestration decision.
func (r *PostgresRecorder) RecordDecision(ctx context.Context, d Decision) {
	detail, err := json.Marshal(d.Detail)
	if err != nil {
		detail = []byte("{}")
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO decision_events (id, session_id, decision_type, detail)
		VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), d.SessionID, d.Type, detail)
	if err != nil {
		slog.Warn("Failed to record decision event",
			"session_id", d.SessionID, "type", d.Type, "error", err)
	}
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}
