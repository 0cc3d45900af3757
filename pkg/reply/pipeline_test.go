package reply

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatcoach/coachd/pkg/cache"
	"github.com/chatcoach/coachd/pkg/coacherr"
	"github.com/chatcoach/coachd/pkg/config"
	"github.com/chatcoach/coachd/pkg/llm"
	"github.com/chatcoach/coachd/pkg/models"
	"github.com/chatcoach/coachd/pkg/moderation"
	"github.com/chatcoach/coachd/pkg/prompt"
	"github.com/chatcoach/coachd/pkg/trace"
)

const validReplyJSON = `{"replies": [
	{"text": "回复一", "strategy": "light_humor"},
	{"text": "回复二", "strategy": "open_question"},
	{"text": "回复三", "strategy": "empathetic_ack"}
]}`

// stubLLM returns canned answers in sequence, repeating the last one.
type stubLLM struct {
	outputs []string
	calls   int
}

func (s *stubLLM) Complete(_ context.Context, _ *llm.Request) (*llm.Response, error) {
	i := s.calls
	s.calls++
	if i >= len(s.outputs) {
		i = len(s.outputs) - 1
	}
	return &llm.Response{Text: s.outputs[i], Model: "stub-model"}, nil
}

func (s *stubLLM) Provider() string { return "stub" }
func (s *stubLLM) Model() string    { return "stub-model" }

// stubChecker returns canned verdicts in sequence, repeating the last one.
// A nil verdict entry simulates an unreachable service.
type stubChecker struct {
	verdicts []*moderation.Verdict
	calls    int
	stages   []int
}

func (s *stubChecker) Check(_ context.Context, _ []models.ReplyCandidate, stage int) (*moderation.Verdict, error) {
	i := s.calls
	s.calls++
	s.stages = append(s.stages, stage)
	if i >= len(s.verdicts) {
		i = len(s.verdicts) - 1
	}
	if s.verdicts[i] == nil {
		return nil, coacherr.New(coacherr.KindModerationUnavailable, "moderation", "service unreachable")
	}
	return s.verdicts[i], nil
}

func boolPtr(b bool) *bool { return &b }

func newTestPipeline(t *testing.T, client llm.Client, checker moderation.Checker, features *config.Features) (*Pipeline, *cache.MemoryStore) {
	t.Helper()
	prompts, err := prompt.New("")
	require.NoError(t, err)
	store := cache.NewMemoryStore(time.Hour)
	return New(store, prompts, client, checker, trace.NopRecorder{}, features), store
}

func testInput() *Input {
	return &Input{
		Summary:           "对方在试探约会",
		RelationshipState: "升温",
		Scenario:          models.ScenarioBalanced,
		IntimacyLevel:     55,
		ReplySentence:     "周末有空吗",
		Strategies:        []string{"light_humor", "open_question", "empathetic_ack"},
		Language:          "zh",
	}
}

func testRequest() *models.AnalyzeRequest {
	return &models.AnalyzeRequest{UserID: "u1", SessionID: "s1", Scene: 1, Reply: true}
}

func TestGenerate_FirstAttemptPasses(t *testing.T) {
	client := &stubLLM{outputs: []string{validReplyJSON}}
	checker := &stubChecker{verdicts: []*moderation.Verdict{{Decision: moderation.DecisionPass}}}
	p, store := newTestPipeline(t, client, checker, &config.Features{MaxRetries: 3})

	candidates, err := p.Generate(context.Background(), testRequest(), testInput())
	require.NoError(t, err)
	require.Len(t, candidates, 3)
	assert.Equal(t, "回复一", candidates[0].Text)
	assert.Equal(t, 1, client.calls)

	// The intimacy stage for level 55 is 3.
	require.Len(t, checker.stages, 1)
	assert.Equal(t, 3, checker.stages[0])

	// The accepted set was committed.
	_, err = store.GetLast(context.Background(), cache.Key{
		SessionID: "s1", Scene: 1, Category: cache.CategoryReply, Resource: "周末有空吗",
	})
	assert.NoError(t, err)
}

func TestGenerate_RetriesUntilPass(t *testing.T) {
	client := &stubLLM{outputs: []string{validReplyJSON}}
	checker := &stubChecker{verdicts: []*moderation.Verdict{
		{Decision: moderation.DecisionWarn},
		{Decision: moderation.DecisionWarn},
		{Decision: moderation.DecisionPass},
	}}
	p, _ := newTestPipeline(t, client, checker, &config.Features{MaxRetries: 3})

	candidates, err := p.Generate(context.Background(), testRequest(), testInput())
	require.NoError(t, err)
	assert.Len(t, candidates, 3)
	assert.Equal(t, 3, client.calls)
}

func TestGenerate_BudgetExhausted(t *testing.T) {
	client := &stubLLM{outputs: []string{validReplyJSON}}
	checker := &stubChecker{verdicts: []*moderation.Verdict{{Decision: moderation.DecisionReject}}}
	p, store := newTestPipeline(t, client, checker, &config.Features{MaxRetries: 2})

	_, err := p.Generate(context.Background(), testRequest(), testInput())
	require.Error(t, err)
	assert.Equal(t, coacherr.KindRetryExhausted, coacherr.KindOf(err))
	assert.Equal(t, 2, client.calls)

	// Nothing from failed attempts is cached.
	_, err = store.GetLast(context.Background(), cache.Key{
		SessionID: "s1", Scene: 1, Category: cache.CategoryReply, Resource: "周末有空吗",
	})
	assert.ErrorIs(t, err, cache.ErrNotFound)
}

func TestGenerate_PlainTextWrap(t *testing.T) {
	client := &stubLLM{outputs: []string{"那就周六晚上见吧"}}
	checker := &stubChecker{verdicts: []*moderation.Verdict{{Decision: moderation.DecisionPass}}}
	p, _ := newTestPipeline(t, client, checker, &config.Features{MaxRetries: 3})

	candidates, err := p.Generate(context.Background(), testRequest(), testInput())
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, "那就周六晚上见吧", candidates[0].Text)
	assert.Equal(t, models.StrategyDirectResponse, candidates[0].Strategy)
}

func TestGenerate_ModerationUnavailable(t *testing.T) {
	t.Run("fail open accepts", func(t *testing.T) {
		client := &stubLLM{outputs: []string{validReplyJSON}}
		checker := &stubChecker{verdicts: []*moderation.Verdict{nil}}
		p, _ := newTestPipeline(t, client, checker, &config.Features{MaxRetries: 3, ModerationFailOpen: true})

		candidates, err := p.Generate(context.Background(), testRequest(), testInput())
		require.NoError(t, err)
		assert.Len(t, candidates, 3)
		assert.Equal(t, 1, client.calls)
	})

	t.Run("fail closed exhausts the budget", func(t *testing.T) {
		client := &stubLLM{outputs: []string{validReplyJSON}}
		checker := &stubChecker{verdicts: []*moderation.Verdict{nil}}
		p, _ := newTestPipeline(t, client, checker, &config.Features{MaxRetries: 2})

		_, err := p.Generate(context.Background(), testRequest(), testInput())
		require.Error(t, err)
		assert.Equal(t, coacherr.KindRetryExhausted, coacherr.KindOf(err))
	})
}

func TestGenerate_IntimacyCheckDisabled(t *testing.T) {
	client := &stubLLM{outputs: []string{validReplyJSON}}
	checker := &stubChecker{verdicts: []*moderation.Verdict{{Decision: moderation.DecisionReject}}}
	p, _ := newTestPipeline(t, client, checker, &config.Features{
		MaxRetries:           3,
		IntimacyCheckEnabled: boolPtr(false),
	})

	candidates, err := p.Generate(context.Background(), testRequest(), testInput())
	require.NoError(t, err)
	assert.Len(t, candidates, 3)
	assert.Equal(t, 0, checker.calls)
}

func TestGenerate_CacheHitSkipsLLM(t *testing.T) {
	client := &stubLLM{outputs: []string{validReplyJSON}}
	checker := &stubChecker{verdicts: []*moderation.Verdict{{Decision: moderation.DecisionPass}}}
	p, _ := newTestPipeline(t, client, checker, &config.Features{MaxRetries: 3})

	_, err := p.Generate(context.Background(), testRequest(), testInput())
	require.NoError(t, err)
	require.Equal(t, 1, client.calls)

	candidates, err := p.Generate(context.Background(), testRequest(), testInput())
	require.NoError(t, err)
	assert.Len(t, candidates, 3)
	assert.Equal(t, 1, client.calls, "cache hit must not call the LLM again")
}

func TestGenerate_ForceRegenerateBypassesCache(t *testing.T) {
	client := &stubLLM{outputs: []string{validReplyJSON}}
	checker := &stubChecker{verdicts: []*moderation.Verdict{{Decision: moderation.DecisionPass}}}
	p, _ := newTestPipeline(t, client, checker, &config.Features{MaxRetries: 3})

	_, err := p.Generate(context.Background(), testRequest(), testInput())
	require.NoError(t, err)

	req := testRequest()
	req.ForceRegenerate = true
	_, err = p.Generate(context.Background(), req, testInput())
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls)
}

// captureRecorder collects LLM call records for assertions.
type captureRecorder struct {
	trace.NopRecorder
	calls []trace.LLMCall
}

func (r *captureRecorder) RecordLLMCall(_ context.Context, c trace.LLMCall) {
	r.calls = append(r.calls, c)
}

func TestGenerate_PromptLogging(t *testing.T) {
	run := func(t *testing.T, features *config.Features) *captureRecorder {
		prompts, err := prompt.New("")
		require.NoError(t, err)
		client := &stubLLM{outputs: []string{validReplyJSON}}
		checker := &stubChecker{verdicts: []*moderation.Verdict{{Decision: moderation.DecisionPass}}}
		recorder := &captureRecorder{}
		p := New(cache.NewMemoryStore(time.Hour), prompts, client, checker, recorder, features)

		_, err = p.Generate(context.Background(), testRequest(), testInput())
		require.NoError(t, err)
		return recorder
	}

	t.Run("enabled records prompt and response text", func(t *testing.T) {
		recorder := run(t, &config.Features{MaxRetries: 1, PromptLogEnabled: true})

		require.Len(t, recorder.calls, 1)
		assert.NotEmpty(t, recorder.calls[0].PromptText)
		assert.Contains(t, recorder.calls[0].PromptText, "周末有空吗")
		assert.Equal(t, validReplyJSON, recorder.calls[0].ResponseText)
	})

	t.Run("disabled leaves both empty", func(t *testing.T) {
		recorder := run(t, &config.Features{MaxRetries: 1})

		require.Len(t, recorder.calls, 1)
		assert.Empty(t, recorder.calls[0].PromptText)
		assert.Empty(t, recorder.calls[0].ResponseText)
	})
}

func TestGenerate_UnparseableAnswerConsumesBudget(t *testing.T) {
	long := make([]rune, 600)
	for i := range long {
		long[i] = '字'
	}
	client := &stubLLM{outputs: []string{string(long)}}
	checker := &stubChecker{verdicts: []*moderation.Verdict{{Decision: moderation.DecisionPass}}}
	p, _ := newTestPipeline(t, client, checker, &config.Features{MaxRetries: 2})

	_, err := p.Generate(context.Background(), testRequest(), testInput())
	require.Error(t, err)
	assert.Equal(t, coacherr.KindRetryExhausted, coacherr.KindOf(err))
	assert.Equal(t, 2, client.calls)
	assert.Equal(t, 0, checker.calls)
}
