package analyzer

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatcoach/coachd/pkg/cache"
	"github.com/chatcoach/coachd/pkg/coacherr"
	"github.com/chatcoach/coachd/pkg/config"
	"github.com/chatcoach/coachd/pkg/imagefetch"
	"github.com/chatcoach/coachd/pkg/llm"
	"github.com/chatcoach/coachd/pkg/models"
	"github.com/chatcoach/coachd/pkg/prompt"
	"github.com/chatcoach/coachd/pkg/strategy"
	"github.com/chatcoach/coachd/pkg/trace"
)

const mergeStepJSON = `{
	"bubbles": [
		{"id": "1", "text": "最近在忙什么呀", "bbox": [0.08, 0.17, 0.55, 0.23], "speaker": "other", "column": "left"},
		{"id": "2", "text": "在准备一个新项目", "bbox": [0.40, 0.26, 0.92, 0.32], "speaker": "self", "column": "right"}
	],
	"conversation_summary": "对方主动关心近况",
	"emotion_state": "positive",
	"current_intimacy_level": 45,
	"relationship_state": "升温",
	"current_scenario": "SAFE",
	"recommended_scenario": "SAFE",
	"intimacy_level": 45,
	"risk_flags": []
}`

// stubFetcher serves one canned image and counts fetches.
type stubFetcher struct {
	img   *imagefetch.Image
	err   error
	calls int
}

func (f *stubFetcher) Fetch(_ context.Context, _ string) (*imagefetch.Image, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.img, nil
}

// countingLLM returns canned answers in sequence and counts completed calls.
// Calls that lose the race and get cancelled do not consume an answer.
type countingLLM struct {
	mu      sync.Mutex
	outputs []string
	calls   int
	name    string
}

func (c *countingLLM) Complete(ctx context.Context, _ *llm.Request) (*llm.Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls
	c.calls++
	if i >= len(c.outputs) {
		i = len(c.outputs) - 1
	}
	return &llm.Response{Text: c.outputs[i], Model: c.name}, nil
}

func (c *countingLLM) Provider() string { return "stub" }
func (c *countingLLM) Model() string    { return c.name }

func (c *countingLLM) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func testSelector() *strategy.Selector {
	return strategy.NewSelector(map[string][]string{
		models.ScenarioSafe: {"light_humor", "empathetic_ack", "shared_interest", "open_question"},
	})
}

func testImage() *imagefetch.Image {
	return &imagefetch.Image{
		URL: "https://img.example.com/a.png", Data: []byte{0x89}, Width: 750, Height: 1334, MediaType: "image/png",
	}
}

func newTestAnalyzer(t *testing.T, fetcher imagefetch.Fetcher, multimodal, premium llm.Client, features *config.Features) (*Analyzer, *cache.MemoryStore) {
	t.Helper()
	prompts, err := prompt.New("")
	require.NoError(t, err)
	store := cache.NewMemoryStore(time.Hour)
	a := New(store, fetcher, prompts, multimodal, premium, testSelector(), trace.NopRecorder{}, features, 5*time.Second)
	return a, store
}

func analyzeRequest() *models.AnalyzeRequest {
	return &models.AnalyzeRequest{UserID: "u1", SessionID: "s1", Scene: 1}
}

func TestAnalyzeImage_MergeStepFlow(t *testing.T) {
	fetcher := &stubFetcher{img: testImage()}
	multimodal := &countingLLM{outputs: []string{mergeStepJSON}, name: "mm"}
	premium := &countingLLM{outputs: []string{mergeStepJSON}, name: "prem"}
	a, store := newTestAnalyzer(t, fetcher, multimodal, premium, &config.Features{})

	triple, err := a.AnalyzeImage(context.Background(), analyzeRequest(), testImage().URL, models.DispatchSerial)
	require.NoError(t, err)

	assert.Equal(t, 1, fetcher.calls)
	assert.Len(t, triple.Image.Bubbles, 2)
	assert.Equal(t, "对方主动关心近况", triple.Context.ConversationSummary)
	assert.Equal(t, models.ScenarioSafe, triple.Scene.RecommendedScenario)
	assert.Len(t, triple.Scene.RecommendedStrategies, 3)

	// All four categories were committed for this resource.
	ctx := context.Background()
	for _, category := range []string{
		cache.CategoryImageResult,
		cache.CategoryImageDimensions,
		cache.CategoryContextAnalysis,
		cache.CategorySceneAnalysis,
	} {
		_, err := store.GetLast(ctx, cache.Key{
			SessionID: "s1", Scene: 1, Category: category, Resource: testImage().URL,
		})
		assert.NoError(t, err, "category %s missing", category)
	}
}

func TestAnalyzeImage_CacheHitSkipsFetchAndLLM(t *testing.T) {
	fetcher := &stubFetcher{img: testImage()}
	multimodal := &countingLLM{outputs: []string{mergeStepJSON}, name: "mm"}
	premium := &countingLLM{outputs: []string{mergeStepJSON}, name: "prem"}
	a, _ := newTestAnalyzer(t, fetcher, multimodal, premium, &config.Features{})

	_, err := a.AnalyzeImage(context.Background(), analyzeRequest(), testImage().URL, models.DispatchSerial)
	require.NoError(t, err)

	fetchesAfterFirst := fetcher.calls
	callsAfterFirst := multimodal.count() + premium.count()

	triple, err := a.AnalyzeImage(context.Background(), analyzeRequest(), testImage().URL, models.DispatchSerial)
	require.NoError(t, err)
	assert.NotNil(t, triple.Image)
	assert.Equal(t, fetchesAfterFirst, fetcher.calls, "cache hit must not refetch")
	assert.Equal(t, callsAfterFirst, multimodal.count()+premium.count(), "cache hit must not call the LLM")
}

func TestAnalyzeImage_ForceRegenerateBypassesCache(t *testing.T) {
	fetcher := &stubFetcher{img: testImage()}
	multimodal := &countingLLM{outputs: []string{mergeStepJSON}, name: "mm"}
	premium := &countingLLM{outputs: []string{mergeStepJSON}, name: "prem"}
	a, _ := newTestAnalyzer(t, fetcher, multimodal, premium, &config.Features{})

	_, err := a.AnalyzeImage(context.Background(), analyzeRequest(), testImage().URL, models.DispatchSerial)
	require.NoError(t, err)

	req := analyzeRequest()
	req.ForceRegenerate = true
	_, err = a.AnalyzeImage(context.Background(), req, testImage().URL, models.DispatchSerial)
	require.NoError(t, err)
	assert.Equal(t, 2, fetcher.calls)
}

func TestAnalyzeImage_LegacyFlow(t *testing.T) {
	off := false
	fetcher := &stubFetcher{img: testImage()}
	multimodal := &countingLLM{name: "mm", outputs: []string{
		`{"bubbles": [{"id": "1", "text": "最近在忙什么呀", "bbox": [0.08, 0.17, 0.55, 0.23], "speaker": "other", "column": "left"}]}`,
		`{"conversation_summary": "对方主动关心近况", "emotion_state": "positive", "current_intimacy_level": 45, "risk_flags": []}`,
		`{"relationship_state": "升温", "current_scenario": "SAFE", "recommended_scenario": "SAFE", "intimacy_level": 45, "risk_flags": []}`,
	}}
	premium := &countingLLM{outputs: []string{mergeStepJSON}, name: "prem"}
	a, _ := newTestAnalyzer(t, fetcher, multimodal, premium, &config.Features{MergeStepEnabled: &off})

	triple, err := a.AnalyzeImage(context.Background(), analyzeRequest(), testImage().URL, models.DispatchSerial)
	require.NoError(t, err)

	assert.Equal(t, 3, multimodal.count(), "legacy flow runs three serial calls")
	assert.Equal(t, 0, premium.count(), "legacy flow never touches the premium arm")
	assert.Equal(t, "升温", triple.Scene.RelationshipState)
	assert.Len(t, triple.Scene.RecommendedStrategies, 3)
	// Dialogs are derived from bubbles when the answer omits them.
	require.Len(t, triple.Image.Dialogs, 1)
	assert.Equal(t, models.SpeakerOther, triple.Image.Dialogs[0].Speaker)
}

// captureRecorder collects trace records for assertions. Race arms record
// concurrently, so access is locked.
type captureRecorder struct {
	mu        sync.Mutex
	calls     []trace.LLMCall
	decisions []trace.Decision
}

func (r *captureRecorder) RecordLLMCall(_ context.Context, c trace.LLMCall) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, c)
}

func (r *captureRecorder) RecordDecision(_ context.Context, d trace.Decision) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, d)
}

func (r *captureRecorder) llmCalls() []trace.LLMCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]trace.LLMCall(nil), r.calls...)
}

func (r *captureRecorder) decisionsOfType(dt string) []trace.Decision {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []trace.Decision
	for _, d := range r.decisions {
		if d.Type == dt {
			out = append(out, d)
		}
	}
	return out
}

func TestAnalyzeImage_RaceDecisionsRecorded(t *testing.T) {
	prompts, err := prompt.New("")
	require.NoError(t, err)
	fetcher := &stubFetcher{img: testImage()}
	multimodal := &countingLLM{outputs: []string{mergeStepJSON}, name: "mm"}
	premium := &countingLLM{outputs: []string{mergeStepJSON}, name: "prem"}
	recorder := &captureRecorder{}
	a := New(cache.NewMemoryStore(time.Hour), fetcher, prompts, multimodal, premium,
		testSelector(), recorder, &config.Features{}, 5*time.Second)

	_, err = a.AnalyzeImage(context.Background(), analyzeRequest(), testImage().URL, models.DispatchSerial)
	require.NoError(t, err)

	winners := recorder.decisionsOfType(trace.DecisionRaceWinner)
	losers := recorder.decisionsOfType(trace.DecisionRaceLoser)
	require.Len(t, winners, 1)
	require.Len(t, losers, 1)

	winner := winners[0].Detail["arm"].(string)
	loser := losers[0].Detail["arm"].(string)
	assert.NotEqual(t, winner, loser)
	assert.Contains(t, []string{ArmMultimodal, ArmPremium}, winner)
	assert.Contains(t, []string{ArmMultimodal, ArmPremium}, loser)
	assert.Equal(t, testImage().URL, losers[0].Detail["resource"])
}

func TestAnalyzeImage_PromptLogging(t *testing.T) {
	run := func(t *testing.T, features *config.Features) *captureRecorder {
		prompts, err := prompt.New("")
		require.NoError(t, err)
		fetcher := &stubFetcher{img: testImage()}
		multimodal := &countingLLM{outputs: []string{mergeStepJSON}, name: "mm"}
		premium := &countingLLM{outputs: []string{mergeStepJSON}, name: "prem"}
		recorder := &captureRecorder{}
		a := New(cache.NewMemoryStore(time.Hour), fetcher, prompts, multimodal, premium,
			testSelector(), recorder, features, 5*time.Second)

		_, err = a.AnalyzeImage(context.Background(), analyzeRequest(), testImage().URL, models.DispatchSerial)
		require.NoError(t, err)
		return recorder
	}

	t.Run("enabled records prompt and response text", func(t *testing.T) {
		recorder := run(t, &config.Features{PromptLogEnabled: true})

		var sawOK bool
		for _, call := range recorder.llmCalls() {
			assert.NotEmpty(t, call.PromptText)
			if call.Status == trace.StatusOK {
				sawOK = true
				assert.Equal(t, mergeStepJSON, call.ResponseText)
			}
		}
		assert.True(t, sawOK)
	})

	t.Run("disabled leaves both empty", func(t *testing.T) {
		recorder := run(t, &config.Features{})

		calls := recorder.llmCalls()
		require.NotEmpty(t, calls)
		for _, call := range calls {
			assert.Empty(t, call.PromptText)
			assert.Empty(t, call.ResponseText)
		}
	})
}

func TestAnalyzeImage_FetchErrorPropagates(t *testing.T) {
	fetchErr := coacherr.New(coacherr.KindImageFetch, "imagefetch", "image fetch returned status 404")
	fetcher := &stubFetcher{err: fetchErr}
	multimodal := &countingLLM{outputs: []string{mergeStepJSON}, name: "mm"}
	premium := &countingLLM{outputs: []string{mergeStepJSON}, name: "prem"}
	a, _ := newTestAnalyzer(t, fetcher, multimodal, premium, &config.Features{})

	_, err := a.AnalyzeImage(context.Background(), analyzeRequest(), testImage().URL, models.DispatchSerial)
	require.Error(t, err)
	assert.Equal(t, coacherr.KindImageFetch, coacherr.KindOf(err))
	assert.Equal(t, 0, multimodal.count())
}
