// Package orchestrator dispatches one coaching request across its content
// items: images are analyzed (in parallel when the merge step allows it),
// text passes through untouched, and results come back in the request's
// original content order. Reply generation runs after analysis, fed by the
// nearest image's triple.
package orchestrator

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/chatcoach/coachd/pkg/analyzer"
	"github.com/chatcoach/coachd/pkg/coacherr"
	"github.com/chatcoach/coachd/pkg/config"
	"github.com/chatcoach/coachd/pkg/models"
	"github.com/chatcoach/coachd/pkg/reply"
	"github.com/chatcoach/coachd/pkg/strategy"
	"github.com/chatcoach/coachd/pkg/trace"
)

const component = "orchestrator"

// QuotaChecker admits or rejects a request before any work starts. The check
// and the admission are one decision: a rejected request performs no LLM
// calls and no cache writes.
type QuotaChecker interface {
	Check(ctx context.Context, userID string) error
}

// NopQuota admits everything.
type NopQuota struct{}

// Check always admits.
func (NopQuota) Check(context.Context, string) error { return nil }

// Result is the fully assembled outcome of one request.
type Result struct {
	Items   []models.ItemResult
	Replies []models.ReplyCandidate
}

// Dispatcher coordinates analysis and reply generation for one request.
type Dispatcher struct {
	analyzer *analyzer.Analyzer
	replies  *reply.Pipeline
	selector *strategy.Selector
	quota    QuotaChecker
	recorder trace.Recorder
	features *config.Features
}

// New wires a dispatcher from its collaborators.
func New(
	a *analyzer.Analyzer,
	r *reply.Pipeline,
	selector *strategy.Selector,
	quota QuotaChecker,
	recorder trace.Recorder,
	features *config.Features,
) *Dispatcher {
	return &Dispatcher{
		analyzer: a,
		replies:  r,
		selector: selector,
		quota:    quota,
		recorder: recorder,
		features: features,
	}
}

// Dispatch runs one request end to end. Content ordering is preserved: the
// i-th result always corresponds to the i-th content entry, regardless of
// which items finished first.
func (d *Dispatcher) Dispatch(ctx context.Context, req *models.AnalyzeRequest) (*Result, error) {
	if err := d.quota.Check(ctx, req.UserID); err != nil {
		return nil, err
	}

	items := classify(req.Content)
	if len(items) == 0 {
		return &Result{Items: []models.ItemResult{}}, nil
	}

	mode := d.dispatchMode(items)

	var results []models.ItemResult
	var err error
	if mode == models.DispatchParallel {
		results, err = d.dispatchParallel(ctx, req, items)
	} else {
		results, err = d.dispatchSerial(ctx, req, items)
	}
	if err != nil {
		return nil, err
	}

	out := &Result{Items: results}
	if req.Reply {
		candidates, err := d.generateReplies(ctx, req, results)
		if err != nil {
			return nil, err
		}
		out.Replies = candidates
	}
	return out, nil
}

// dispatchMode decides per-item scheduling: parallel requires the merge step
// (one call per image), the parallel flag, and at least one image.
func (d *Dispatcher) dispatchMode(items []models.ContentItem) models.DispatchMode {
	hasImage := false
	for _, it := range items {
		if it.Kind == models.ContentImage {
			hasImage = true
			break
		}
	}
	if hasImage && d.features.MergeStep() && d.features.Parallel() {
		return models.DispatchParallel
	}
	return models.DispatchSerial
}

// dispatchParallel analyzes all image items concurrently and reassembles
// results by original index. Any failure cancels the remaining work and
// fails the whole request.
func (d *Dispatcher) dispatchParallel(ctx context.Context, req *models.AnalyzeRequest, items []models.ContentItem) ([]models.ItemResult, error) {
	results := make([]models.ItemResult, len(items))
	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex

	for _, it := range items {
		if it.Kind == models.ContentText {
			results[it.Index] = textResult(it)
			continue
		}
		it := it
		g.Go(func() error {
			triple, err := d.analyzer.AnalyzeImage(gctx, req, it.Value, models.DispatchParallel)
			if err != nil {
				return err
			}
			mu.Lock()
			results[it.Index] = imageResult(it, triple)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// dispatchSerial analyzes items one at a time in content order.
func (d *Dispatcher) dispatchSerial(ctx context.Context, req *models.AnalyzeRequest, items []models.ContentItem) ([]models.ItemResult, error) {
	results := make([]models.ItemResult, len(items))
	for _, it := range items {
		if it.Kind == models.ContentText {
			results[it.Index] = textResult(it)
			continue
		}
		triple, err := d.analyzer.AnalyzeImage(ctx, req, it.Value, models.DispatchSerial)
		if err != nil {
			return nil, err
		}
		results[it.Index] = imageResult(it, triple)
	}
	return results, nil
}

// generateReplies assembles the reply input from the analysis results and
// runs the pipeline.
func (d *Dispatcher) generateReplies(ctx context.Context, req *models.AnalyzeRequest, results []models.ItemResult) ([]models.ReplyCandidate, error) {
	input, err := d.replyInput(req, results)
	if err != nil {
		return nil, err
	}
	return d.replies.Generate(ctx, req, input)
}

// replyInput derives the sentence to reply to and its surrounding context.
// The sentence follows the last content item: a text item is itself the
// sentence, an image item contributes the counterpart's last utterance from
// its dialogs. Context and scene come from the last image's triple; text-only
// requests fall back to neutral defaults with strategies drawn from the SAFE
// pool.
func (d *Dispatcher) replyInput(req *models.AnalyzeRequest, results []models.ItemResult) (*reply.Input, error) {
	input := &reply.Input{
		RelationshipState: models.DefaultRelationshipState,
		Scenario:          models.ScenarioSafe,
		IntimacyLevel:     50,
		Language:          req.Language,
	}
	if input.Language == "" {
		input.Language = "zh"
	}

	var lastImage *models.ItemResult
	for i := len(results) - 1; i >= 0; i-- {
		if results[i].Kind == models.ContentImage {
			lastImage = &results[i]
			break
		}
	}

	if lastImage != nil {
		input.Summary = lastImage.Context.ConversationSummary
		input.RelationshipState = lastImage.Scene.RelationshipState
		input.Scenario = lastImage.Scene.RecommendedScenario
		input.IntimacyLevel = lastImage.Scene.IntimacyLevel
		input.Dialogs = lastImage.Image.Dialogs
		input.Strategies = lastImage.Scene.RecommendedStrategies
	}

	last := results[len(results)-1]
	if last.Kind == models.ContentText {
		input.ReplySentence = last.Content
	} else {
		for i := len(last.Image.Dialogs) - 1; i >= 0; i-- {
			if last.Image.Dialogs[i].Speaker == models.SpeakerOther {
				input.ReplySentence = last.Image.Dialogs[i].Text
				break
			}
		}
	}
	if input.ReplySentence == "" {
		return nil, coacherr.New(coacherr.KindInvalidRequest, component,
			"reply requested but no sentence to reply to could be derived")
	}

	if len(input.Strategies) == 0 {
		codes, err := d.selector.Select(input.Scenario, nil)
		if err != nil {
			return nil, coacherr.Wrap(coacherr.KindInternal, component,
				"strategy selection failed", err)
		}
		input.Strategies = codes
	}
	return input, nil
}

func classify(content []string) []models.ContentItem {
	items := make([]models.ContentItem, 0, len(content))
	for i, c := range content {
		items = append(items, models.ContentItem{
			Index: i,
			Kind:  models.ClassifyContent(c),
			Value: c,
		})
	}
	return items
}

func textResult(it models.ContentItem) models.ItemResult {
	return models.ItemResult{Index: it.Index, Kind: models.ContentText, Content: it.Value}
}

func imageResult(it models.ContentItem, triple *analyzer.Triple) models.ItemResult {
	return models.ItemResult{
		Index:   it.Index,
		Kind:    models.ContentImage,
		Content: it.Value,
		Image:   triple.Image,
		Context: triple.Context,
		Scene:   triple.Scene,
	}
}
