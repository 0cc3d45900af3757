// Package analyzer turns one screenshot into its analysis triple: the parsed
// image, the conversational context, and the scene classification. The
// default flow is the merge step, a single multimodal LLM call raced across
// two providers; the legacy three-call flow remains available behind a
// feature flag. Both flows read and write the same session cache categories.
package analyzer

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/chatcoach/coachd/pkg/cache"
	"github.com/chatcoach/coachd/pkg/coacherr"
	"github.com/chatcoach/coachd/pkg/config"
	"github.com/chatcoach/coachd/pkg/imagefetch"
	"github.com/chatcoach/coachd/pkg/llm"
	"github.com/chatcoach/coachd/pkg/models"
	"github.com/chatcoach/coachd/pkg/normalize"
	"github.com/chatcoach/coachd/pkg/prompt"
	"github.com/chatcoach/coachd/pkg/race"
	"github.com/chatcoach/coachd/pkg/strategy"
	"github.com/chatcoach/coachd/pkg/trace"
)

const component = "analyzer"

// Race arm labels, recorded in decision events.
const (
	ArmMultimodal = "multimodal"
	ArmPremium    = "premium"
)

// Analyzer produces the analysis triple for one screenshot.
type Analyzer struct {
	store      cache.Store
	fetcher    imagefetch.Fetcher
	prompts    *prompt.Store
	multimodal llm.Client
	premium    llm.Client
	selector   *strategy.Selector
	recorder   trace.Recorder
	features   *config.Features
	armTimeout time.Duration
}

// New wires an analyzer from its collaborators.
func New(
	store cache.Store,
	fetcher imagefetch.Fetcher,
	prompts *prompt.Store,
	multimodal, premium llm.Client,
	selector *strategy.Selector,
	recorder trace.Recorder,
	features *config.Features,
	armTimeout time.Duration,
) *Analyzer {
	return &Analyzer{
		store:      store,
		fetcher:    fetcher,
		prompts:    prompts,
		multimodal: multimodal,
		premium:    premium,
		selector:   selector,
		recorder:   recorder,
		features:   features,
		armTimeout: armTimeout,
	}
}

// Triple is the full analysis of one screenshot.
type Triple struct {
	Image   *models.ImageResult
	Context *models.ContextResult
	Scene   *models.SceneAnalysisResult
}

// AnalyzeImage resolves the triple for one image URL: from the session cache
// when all three parts are present, otherwise by running the configured
// analysis flow. The dispatch mode is observability metadata only.
func (a *Analyzer) AnalyzeImage(ctx context.Context, req *models.AnalyzeRequest, url string, mode models.DispatchMode) (*Triple, error) {
	if !req.ForceRegenerate {
		if triple, ok := a.probeCache(ctx, req, url); ok {
			a.recorder.RecordDecision(ctx, trace.Decision{
				SessionID: req.SessionID,
				Type:      trace.DecisionCacheHit,
				Detail:    map[string]any{"resource": url},
			})
			return triple, nil
		}
		a.recorder.RecordDecision(ctx, trace.Decision{
			SessionID: req.SessionID,
			Type:      trace.DecisionCacheMiss,
			Detail:    map[string]any{"resource": url},
		})
	}

	img, err := a.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	var triple *Triple
	var flow string
	if a.features.MergeStep() {
		triple, err = a.mergeStep(ctx, req, img)
		flow = models.FlowMergeStep
	} else {
		triple, err = a.legacyFlow(ctx, req, img)
		flow = models.FlowNonMergeStep
	}
	if err != nil {
		return nil, err
	}

	a.commit(ctx, req, url, triple, flow, mode)
	return triple, nil
}

// mergeStep races the multimodal and premium arms over the merge-step prompt
// and normalizes the winner.
func (a *Analyzer) mergeStep(ctx context.Context, req *models.AnalyzeRequest, img *imagefetch.Image) (*Triple, error) {
	rendered, err := a.prompts.Render(prompt.NameMergeStep, map[string]any{
		"Language": language(req),
	})
	if err != nil {
		return nil, coacherr.Wrap(coacherr.KindInternal, component, "failed to render merge-step prompt", err)
	}

	llmReq := &llm.Request{
		Prompt: rendered.Text,
		Images: []*imagefetch.Image{img},
	}

	result, err := race.Race(ctx,
		a.arm(ArmMultimodal, a.multimodal, req, rendered, llmReq),
		a.arm(ArmPremium, a.premium, req, rendered, llmReq),
		normalize.ValidateMergeStepRaw,
	)
	if err != nil {
		return nil, err
	}

	loser := ArmPremium
	if result.Winner == ArmPremium {
		loser = ArmMultimodal
	}
	a.recorder.RecordDecision(ctx, trace.Decision{
		SessionID: req.SessionID,
		Type:      trace.DecisionRaceWinner,
		Detail:    map[string]any{"arm": result.Winner, "resource": img.URL},
	})
	a.recorder.RecordDecision(ctx, trace.Decision{
		SessionID: req.SessionID,
		Type:      trace.DecisionRaceLoser,
		Detail:    map[string]any{"arm": loser, "resource": img.URL},
	})

	image, ctxRes, scene, err := normalize.ParseMergeStep(result.Output, img.URL, img.Width, img.Height)
	if err != nil {
		return nil, err
	}

	if err := a.fillStrategies(scene); err != nil {
		return nil, err
	}
	return &Triple{Image: image, Context: ctxRes, Scene: scene}, nil
}

// arm wraps one provider call as a race competitor with its own deadline and
// trace record.
func (a *Analyzer) arm(label string, client llm.Client, req *models.AnalyzeRequest, rendered *prompt.Rendered, llmReq *llm.Request) race.Arm {
	return race.Arm{
		Label: label,
		Run: func(ctx context.Context) (string, error) {
			armCtx := ctx
			if a.armTimeout > 0 {
				var cancel context.CancelFunc
				armCtx, cancel = context.WithTimeout(ctx, a.armTimeout)
				defer cancel()
			}

			resp, err := client.Complete(armCtx, llmReq)
			call := trace.LLMCall{
				SessionID:     req.SessionID,
				Resource:      firstImageURL(llmReq),
				Provider:      client.Provider(),
				Model:         client.Model(),
				PromptVersion: rendered.Version,
			}
			if a.features.PromptLogEnabled {
				call.PromptText = llmReq.Prompt
				if resp != nil {
					call.ResponseText = resp.Text
				}
			}
			if err != nil {
				call.Status = trace.StatusError
				if errors.Is(err, context.Canceled) {
					call.Status = trace.StatusCancelled
				}
				call.ErrorMessage = err.Error()
				a.recorder.RecordLLMCall(ctx, call)
				return "", err
			}
			call.Status = trace.StatusOK
			call.InputTokens = resp.InputTokens
			call.OutputTokens = resp.OutputTokens
			call.CostUSD = resp.CostUSD
			call.DurationMs = resp.Duration.Milliseconds()
			a.recorder.RecordLLMCall(ctx, call)
			return resp.Text, nil
		},
	}
}

// fillStrategies draws the recommended strategy codes for the scene. The LLM
// never chooses strategies.
func (a *Analyzer) fillStrategies(scene *models.SceneAnalysisResult) error {
	codes, err := a.selector.Select(scene.RecommendedScenario, nil)
	if err != nil {
		return coacherr.Wrap(coacherr.KindInternal, component, "strategy selection failed", err)
	}
	scene.RecommendedStrategies = codes
	return nil
}

// probeCache returns the cached triple when all three categories have a live
// entry for this resource.
func (a *Analyzer) probeCache(ctx context.Context, req *models.AnalyzeRequest, url string) (*Triple, bool) {
	image, err := cache.ReadImageResult(ctx, a.store, cache.Key{
		SessionID: req.SessionID, Scene: req.Scene,
		Category: cache.CategoryImageResult, Resource: url,
	})
	if err != nil {
		return nil, false
	}

	var ctxRes models.ContextResult
	if !a.readCached(ctx, req, cache.CategoryContextAnalysis, url, &ctxRes) {
		return nil, false
	}
	var scene models.SceneAnalysisResult
	if !a.readCached(ctx, req, cache.CategorySceneAnalysis, url, &scene) {
		return nil, false
	}
	return &Triple{Image: image, Context: &ctxRes, Scene: &scene}, true
}

func (a *Analyzer) readCached(ctx context.Context, req *models.AnalyzeRequest, category, resource string, out any) bool {
	ev, err := a.store.GetLast(ctx, cache.Key{
		SessionID: req.SessionID, Scene: req.Scene,
		Category: category, Resource: resource,
	})
	if err != nil {
		return false
	}
	if err := json.Unmarshal(ev.Payload, out); err != nil {
		slog.Warn("Failed to decode cached payload, treating as miss",
			"session_id", req.SessionID, "category", category, "error", err)
		return false
	}
	return true
}

// commit appends the triple to the session cache. Appends are skipped once
// the request context is dead so an abandoned request cannot publish partial
// work.
func (a *Analyzer) commit(ctx context.Context, req *models.AnalyzeRequest, url string, triple *Triple, flow string, mode models.DispatchMode) {
	if ctx.Err() != nil {
		return
	}
	meta := cache.Meta{Model: flow, Strategy: string(mode)}

	a.append(ctx, req, cache.CategoryImageResult, url, triple.Image, meta)
	a.append(ctx, req, cache.CategoryImageDimensions, url, models.ImageDimensions{
		Width:  triple.Image.Width,
		Height: triple.Image.Height,
	}, meta)
	a.append(ctx, req, cache.CategoryContextAnalysis, url, triple.Context, meta)
	a.append(ctx, req, cache.CategorySceneAnalysis, url, triple.Scene, meta)
}

func (a *Analyzer) append(ctx context.Context, req *models.AnalyzeRequest, category, resource string, payload any, meta cache.Meta) {
	raw, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to encode cache payload",
			"session_id", req.SessionID, "category", category, "error", err)
		return
	}
	if _, err := a.store.Append(ctx, cache.Key{
		SessionID: req.SessionID, Scene: req.Scene,
		Category: category, Resource: resource,
	}, raw, meta); err != nil {
		slog.Error("Failed to append cache event",
			"session_id", req.SessionID, "category", category, "error", err)
	}
}

func language(req *models.AnalyzeRequest) string {
	if req.Language == "" {
		return "zh"
	}
	return req.Language
}

func firstImageURL(req *llm.Request) string {
	if len(req.Images) == 0 {
		return ""
	}
	return req.Images[0].URL
}
