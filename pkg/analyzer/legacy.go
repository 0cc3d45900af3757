package analyzer

import (
	"context"

	"github.com/chatcoach/coachd/pkg/coacherr"
	"github.com/chatcoach/coachd/pkg/imagefetch"
	"github.com/chatcoach/coachd/pkg/llm"
	"github.com/chatcoach/coachd/pkg/models"
	"github.com/chatcoach/coachd/pkg/normalize"
	"github.com/chatcoach/coachd/pkg/prompt"
)

// legacyFlow runs the pre-merge-step analysis: three sequential LLM calls
// (screenshot parse, context analysis, scene analysis) on the multimodal
// provider. Outputs land in the same cache categories as the merge step, so
// a deployment can toggle flows without losing prior work.
func (a *Analyzer) legacyFlow(ctx context.Context, req *models.AnalyzeRequest, img *imagefetch.Image) (*Triple, error) {
	image, err := a.legacyScreenshot(ctx, req, img)
	if err != nil {
		return nil, err
	}

	ctxRes, err := a.legacyContext(ctx, req, image)
	if err != nil {
		return nil, err
	}

	scene, err := a.legacyScene(ctx, req, image, ctxRes)
	if err != nil {
		return nil, err
	}

	if err := a.fillStrategies(scene); err != nil {
		return nil, err
	}
	return &Triple{Image: image, Context: ctxRes, Scene: scene}, nil
}

func (a *Analyzer) legacyScreenshot(ctx context.Context, req *models.AnalyzeRequest, img *imagefetch.Image) (*models.ImageResult, error) {
	rendered, err := a.prompts.Render(prompt.NameScreenshotParse, nil)
	if err != nil {
		return nil, coacherr.Wrap(coacherr.KindInternal, component, "failed to render screenshot prompt", err)
	}

	raw, err := a.callOnce(ctx, req, rendered, &llm.Request{
		Prompt: rendered.Text,
		Images: []*imagefetch.Image{img},
	})
	if err != nil {
		return nil, err
	}
	return normalize.ParseScreenshot(raw, img.URL, img.Width, img.Height)
}

func (a *Analyzer) legacyContext(ctx context.Context, req *models.AnalyzeRequest, image *models.ImageResult) (*models.ContextResult, error) {
	rendered, err := a.prompts.Render(prompt.NameContextAnalysis, map[string]any{
		"Dialogs": image.Dialogs,
	})
	if err != nil {
		return nil, coacherr.Wrap(coacherr.KindInternal, component, "failed to render context prompt", err)
	}

	raw, err := a.callOnce(ctx, req, rendered, &llm.Request{Prompt: rendered.Text})
	if err != nil {
		return nil, err
	}
	return normalize.ParseContext(raw)
}

func (a *Analyzer) legacyScene(ctx context.Context, req *models.AnalyzeRequest, image *models.ImageResult, ctxRes *models.ContextResult) (*models.SceneAnalysisResult, error) {
	rendered, err := a.prompts.Render(prompt.NameSceneAnalysis, map[string]any{
		"Summary": ctxRes.ConversationSummary,
		"Dialogs": image.Dialogs,
	})
	if err != nil {
		return nil, coacherr.Wrap(coacherr.KindInternal, component, "failed to render scene prompt", err)
	}

	raw, err := a.callOnce(ctx, req, rendered, &llm.Request{Prompt: rendered.Text})
	if err != nil {
		return nil, err
	}
	return normalize.ParseScene(raw)
}

// callOnce runs a single provider call on the multimodal arm with the arm
// deadline applied.
func (a *Analyzer) callOnce(ctx context.Context, req *models.AnalyzeRequest, rendered *prompt.Rendered, llmReq *llm.Request) (string, error) {
	arm := a.arm(ArmMultimodal, a.multimodal, req, rendered, llmReq)
	return arm.Run(ctx)
}
