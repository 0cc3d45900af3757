// Package reply generates the suggested-reply candidate set: a bounded retry
// loop around one LLM call per attempt, each attempt parsed, structurally
// validated, and cleared by the moderation service before it may commit to
// the session cache. Nothing from a failed attempt is ever cached.
package reply

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/chatcoach/coachd/pkg/cache"
	"github.com/chatcoach/coachd/pkg/coacherr"
	"github.com/chatcoach/coachd/pkg/config"
	"github.com/chatcoach/coachd/pkg/llm"
	"github.com/chatcoach/coachd/pkg/models"
	"github.com/chatcoach/coachd/pkg/moderation"
	"github.com/chatcoach/coachd/pkg/normalize"
	"github.com/chatcoach/coachd/pkg/prompt"
	"github.com/chatcoach/coachd/pkg/trace"
)

const component = "reply"

// Input is everything reply generation needs from the analysis stage. The
// orchestrator assembles it from the nearest image's triple, or from neutral
// defaults for text-only requests.
type Input struct {
	Summary           string
	RelationshipState string
	Scenario          string
	IntimacyLevel     int
	Dialogs           []models.Dialog
	ReplySentence     string
	Strategies        []string
	Language          string
}

// Pipeline generates and commits reply sets.
type Pipeline struct {
	store    cache.Store
	prompts  *prompt.Store
	client   llm.Client
	checker  moderation.Checker
	recorder trace.Recorder
	features *config.Features
}

// New wires a pipeline from its collaborators.
func New(
	store cache.Store,
	prompts *prompt.Store,
	client llm.Client,
	checker moderation.Checker,
	recorder trace.Recorder,
	features *config.Features,
) *Pipeline {
	return &Pipeline{
		store:    store,
		prompts:  prompts,
		client:   client,
		checker:  checker,
		recorder: recorder,
		features: features,
	}
}

// Generate resolves a reply set for the request: from the session cache when
// a live entry exists, otherwise through the retry loop. Every attempt that
// fails parsing, validation, or moderation consumes one slot of the retry
// budget.
func (p *Pipeline) Generate(ctx context.Context, req *models.AnalyzeRequest, input *Input) ([]models.ReplyCandidate, error) {
	key := cache.Key{
		SessionID: req.SessionID,
		Scene:     req.Scene,
		Category:  cache.CategoryReply,
		Resource:  input.ReplySentence,
	}

	if !req.ForceRegenerate {
		if cached, ok := p.probeCache(ctx, key); ok {
			p.recorder.RecordDecision(ctx, trace.Decision{
				SessionID: req.SessionID,
				Type:      trace.DecisionCacheHit,
				Detail:    map[string]any{"category": cache.CategoryReply},
			})
			return cached, nil
		}
	}

	attempts := p.features.MaxRetries
	if attempts <= 0 {
		attempts = config.DefaultMaxRetries
	}

	candidates, err := retry.DoWithData(
		func() ([]models.ReplyCandidate, error) {
			return p.attempt(ctx, req, input)
		},
		retry.Context(ctx),
		retry.Attempts(uint(attempts)),
		retry.LastErrorOnly(true),
		retry.Delay(100*time.Millisecond),
		retry.OnRetry(func(n uint, err error) {
			p.recorder.RecordDecision(ctx, trace.Decision{
				SessionID: req.SessionID,
				Type:      trace.DecisionRetryAttempt,
				Detail:    map[string]any{"attempt": n + 1, "error": err.Error()},
			})
		}),
	)
	if err != nil {
		if ctx.Err() != nil {
			return nil, coacherr.Wrap(coacherr.KindTimeout, component,
				"reply generation abandoned", ctx.Err())
		}
		return nil, coacherr.Wrap(coacherr.KindRetryExhausted, component,
			fmt.Sprintf("reply generation failed after %d attempts", attempts), err)
	}

	p.commit(ctx, req, key, input, candidates)
	return candidates, nil
}

// attempt runs one generation round: LLM call, parse (with the plain-text
// wrap fallback), structural validation, then moderation.
func (p *Pipeline) attempt(ctx context.Context, req *models.AnalyzeRequest, input *Input) ([]models.ReplyCandidate, error) {
	rendered, err := p.prompts.Render(prompt.NameReply, map[string]any{
		"Language":          input.Language,
		"Summary":           input.Summary,
		"RelationshipState": input.RelationshipState,
		"Scenario":          input.Scenario,
		"IntimacyLevel":     input.IntimacyLevel,
		"Dialogs":           input.Dialogs,
		"ReplySentence":     input.ReplySentence,
		"Strategies":        input.Strategies,
	})
	if err != nil {
		return nil, coacherr.Wrap(coacherr.KindInternal, component, "failed to render reply prompt", err)
	}

	start := time.Now()
	resp, err := p.client.Complete(ctx, &llm.Request{Prompt: rendered.Text})
	call := trace.LLMCall{
		SessionID:     req.SessionID,
		Resource:      input.ReplySentence,
		Provider:      p.client.Provider(),
		Model:         p.client.Model(),
		PromptVersion: rendered.Version,
	}
	if p.features.PromptLogEnabled {
		call.PromptText = rendered.Text
		if resp != nil {
			call.ResponseText = resp.Text
		}
	}
	if err != nil {
		call.Status = trace.StatusError
		call.ErrorMessage = err.Error()
		call.DurationMs = time.Since(start).Milliseconds()
		p.recorder.RecordLLMCall(ctx, call)
		return nil, err
	}
	call.Status = trace.StatusOK
	call.InputTokens = resp.InputTokens
	call.OutputTokens = resp.OutputTokens
	call.CostUSD = resp.CostUSD
	call.DurationMs = resp.Duration.Milliseconds()
	p.recorder.RecordLLMCall(ctx, call)

	candidates, err := p.parse(ctx, req, resp.Text)
	if err != nil {
		return nil, err
	}
	return p.moderate(ctx, req, input, candidates)
}

// parse runs the ladder over the raw answer, falling back to the plain-text
// wrap for short non-JSON replies.
func (p *Pipeline) parse(ctx context.Context, req *models.AnalyzeRequest, raw string) ([]models.ReplyCandidate, error) {
	obj, err := normalize.ExtractJSON(raw)
	if err != nil {
		threshold := p.features.PlainTextWrapThreshold
		if threshold <= 0 {
			threshold = config.DefaultPlainTextWrapThreshold
		}
		wrapped, ok := normalize.WrapPlainText(raw, threshold)
		if !ok {
			return nil, err
		}
		p.recorder.RecordDecision(ctx, trace.Decision{
			SessionID: req.SessionID,
			Type:      trace.DecisionPlainTextWrap,
			Detail:    map[string]any{"length": len(raw)},
		})
		obj = wrapped
	}
	return normalize.ParseReplySet(obj)
}

// moderate clears a candidate set with the intimacy check. A verdict other
// than pass rejects the attempt; an unreachable service follows the
// fail-open policy.
func (p *Pipeline) moderate(ctx context.Context, req *models.AnalyzeRequest, input *Input, candidates []models.ReplyCandidate) ([]models.ReplyCandidate, error) {
	if !p.features.IntimacyCheck() {
		return candidates, nil
	}

	stage := models.IntimacyStage(input.IntimacyLevel)
	verdict, err := p.checker.Check(ctx, candidates, stage)
	if err != nil {
		if p.features.ModerationFailOpen {
			slog.Warn("Intimacy check unavailable, accepting candidates fail-open",
				"session_id", req.SessionID, "error", err)
			return candidates, nil
		}
		return nil, err
	}

	p.recorder.RecordDecision(ctx, trace.Decision{
		SessionID: req.SessionID,
		Type:      trace.DecisionModeration,
		Detail:    map[string]any{"decision": verdict.Decision, "stage": stage},
	})
	if !verdict.Passed() {
		return nil, coacherr.New(coacherr.KindModerationReject, component,
			fmt.Sprintf("moderation verdict %q at stage %d", verdict.Decision, stage))
	}
	return candidates, nil
}

func (p *Pipeline) probeCache(ctx context.Context, key cache.Key) ([]models.ReplyCandidate, bool) {
	ev, err := p.store.GetLast(ctx, key)
	if err != nil {
		return nil, false
	}
	var set models.ReplySet
	if err := json.Unmarshal(ev.Payload, &set); err != nil {
		slog.Warn("Failed to decode cached reply set, treating as miss",
			"session_id", key.SessionID, "error", err)
		return nil, false
	}
	candidates, err := normalize.ValidateReplySet(set.Replies)
	if err != nil {
		return nil, false
	}
	return candidates, true
}

// commit appends the accepted set to the session cache. Skipped once the
// request context is dead.
func (p *Pipeline) commit(ctx context.Context, req *models.AnalyzeRequest, key cache.Key, input *Input, candidates []models.ReplyCandidate) {
	if ctx.Err() != nil {
		return
	}
	payload, err := json.Marshal(models.ReplySet{Replies: candidates})
	if err != nil {
		slog.Error("Failed to encode reply set", "session_id", req.SessionID, "error", err)
		return
	}
	meta := cache.Meta{
		Model:    p.client.Model(),
		Strategy: strings.Join(input.Strategies, ","),
	}
	if _, err := p.store.Append(ctx, key, payload, meta); err != nil {
		slog.Error("Failed to append reply cache event",
			"session_id", req.SessionID, "error", err)
	}
}
