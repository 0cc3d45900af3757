package normalize

import (
	"encoding/json"

	"github.com/chatcoach/coachd/pkg/coacherr"
	"github.com/chatcoach/coachd/pkg/models"
)

// Parsers for the legacy three-call flow. Each call answers one slice of what
// the merge step produces in one shot; the outputs land under the same cache
// categories either way.

type screenshotPayload struct {
	Bubbles      []models.Bubble     `json:"bubbles"`
	Dialogs      []models.Dialog     `json:"dialogs"`
	Participants models.Participants `json:"participants"`
	Layout       models.Layout       `json:"layout"`
}

// ParseScreenshot builds an ImageResult from a screenshot-parse answer.
func ParseScreenshot(raw, url string, width, height int) (*models.ImageResult, error) {
	obj, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}
	var payload screenshotPayload
	if err := json.Unmarshal(obj, &payload); err != nil {
		return nil, coacherr.Wrap(coacherr.KindParseExhausted, component,
			"screenshot payload does not match expected shape", err)
	}
	merged := &mergeStepPayload{
		Bubbles:      payload.Bubbles,
		Dialogs:      payload.Dialogs,
		Participants: payload.Participants,
		Layout:       payload.Layout,
	}
	return buildImageResult(merged, url, width, height)
}

// ParseContext builds a ContextResult from a context-analysis answer.
func ParseContext(raw string) (*models.ContextResult, error) {
	obj, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}
	var payload models.ContextResult
	if err := json.Unmarshal(obj, &payload); err != nil {
		return nil, coacherr.Wrap(coacherr.KindParseExhausted, component,
			"context payload does not match expected shape", err)
	}
	payload.EmotionState = normalizeEmotion(payload.EmotionState)
	payload.CurrentIntimacyLevel = models.ClampIntimacy(payload.CurrentIntimacyLevel)
	payload.RiskFlags = emptyIfNil(payload.RiskFlags)
	return &payload, nil
}

// ParseScene builds a SceneAnalysisResult from a scene-analysis answer.
func ParseScene(raw string) (*models.SceneAnalysisResult, error) {
	obj, err := ExtractJSON(raw)
	if err != nil {
		return nil, err
	}
	var payload models.SceneAnalysisResult
	if err := json.Unmarshal(obj, &payload); err != nil {
		return nil, coacherr.Wrap(coacherr.KindParseExhausted, component,
			"scene payload does not match expected shape", err)
	}
	payload.RelationshipState = normalizeRelationshipState(payload.RelationshipState)
	payload.RecommendedScenario = NormalizeScenario(payload.RecommendedScenario)
	payload.IntimacyLevel = models.ClampIntimacy(payload.IntimacyLevel)
	payload.RiskFlags = emptyIfNil(payload.RiskFlags)
	return &payload, nil
}
