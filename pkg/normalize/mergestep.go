package normalize

import (
	"encoding/json"
	"fmt"

	"github.com/chatcoach/coachd/pkg/coacherr"
	"github.com/chatcoach/coachd/pkg/models"
)

// mergeStepPayload is the raw shape of a merge-step LLM answer. Every field
// is best-effort; missing or invalid values are synthesized afterwards.
type mergeStepPayload struct {
	Bubbles      []models.Bubble     `json:"bubbles"`
	Dialogs      []models.Dialog     `json:"dialogs"`
	Participants models.Participants `json:"participants"`
	Layout       models.Layout       `json:"layout"`

	ConversationSummary  string   `json:"conversation_summary"`
	EmotionState         string   `json:"emotion_state"`
	CurrentIntimacyLevel int      `json:"current_intimacy_level"`
	RelationshipState    string   `json:"relationship_state"`
	CurrentScenario      string   `json:"current_scenario"`
	RecommendedScenario  string   `json:"recommended_scenario"`
	IntimacyLevel        int      `json:"intimacy_level"`
	RiskFlags            []string `json:"risk_flags"`
}

// ParseMergeStep runs the ladder over a raw merge-step answer and builds the
// validated (ImageResult, ContextResult, SceneAnalysisResult) triple.
// RecommendedStrategies is left empty; the strategy selector fills it.
func ParseMergeStep(raw, url string, width, height int) (*models.ImageResult, *models.ContextResult, *models.SceneAnalysisResult, error) {
	obj, err := ExtractJSON(raw)
	if err != nil {
		return nil, nil, nil, err
	}

	var payload mergeStepPayload
	if err := json.Unmarshal(obj, &payload); err != nil {
		return nil, nil, nil, coacherr.Wrap(coacherr.KindParseExhausted, component,
			"merge-step payload does not match expected shape", err)
	}

	img, err := buildImageResult(&payload, url, width, height)
	if err != nil {
		return nil, nil, nil, err
	}

	ctxRes := &models.ContextResult{
		ConversationSummary:  payload.ConversationSummary,
		EmotionState:         normalizeEmotion(payload.EmotionState),
		CurrentIntimacyLevel: models.ClampIntimacy(payload.CurrentIntimacyLevel),
		RiskFlags:            emptyIfNil(payload.RiskFlags),
	}

	scene := &models.SceneAnalysisResult{
		RelationshipState:   normalizeRelationshipState(payload.RelationshipState),
		CurrentScenario:     payload.CurrentScenario,
		RecommendedScenario: NormalizeScenario(payload.RecommendedScenario),
		IntimacyLevel:       models.ClampIntimacy(payload.IntimacyLevel),
		RiskFlags:           emptyIfNil(payload.RiskFlags),
	}

	return img, ctxRes, scene, nil
}

// ValidateMergeStepRaw is the race validator for merge-step arms: the answer
// must survive the ladder, decode to the merge-step shape, and carry at least
// one bubble or dialog.
func ValidateMergeStepRaw(raw string) error {
	obj, err := ExtractJSON(raw)
	if err != nil {
		return err
	}
	var payload mergeStepPayload
	if err := json.Unmarshal(obj, &payload); err != nil {
		return fmt.Errorf("merge-step shape mismatch: %w", err)
	}
	if len(payload.Bubbles) == 0 && len(payload.Dialogs) == 0 {
		return fmt.Errorf("merge-step answer has no bubbles and no dialogs")
	}
	return nil
}

func buildImageResult(payload *mergeStepPayload, url string, width, height int) (*models.ImageResult, error) {
	bubbles, err := NormalizeBubbles(payload.Bubbles, width, height)
	if err != nil {
		return nil, err
	}

	dialogs := payload.Dialogs
	if len(dialogs) == 0 {
		dialogs = dialogsFromBubbles(bubbles)
	}
	for i := range dialogs {
		if dialogs[i].Speaker != models.SpeakerSelf && dialogs[i].Speaker != models.SpeakerOther {
			dialogs[i].Speaker = models.SpeakerOther
		}
	}

	layout := payload.Layout
	if layout.LeftRole == "" || layout.RightRole == "" {
		layout.LeftRole, layout.RightRole = inferColumnRoles(bubbles)
	}
	if layout.Type == "" {
		layout.Type = "two_column"
	}

	return &models.ImageResult{
		URL:          url,
		Width:        width,
		Height:       height,
		Dialogs:      dialogs,
		Bubbles:      bubbles,
		Participants: payload.Participants,
		Layout:       layout,
	}, nil
}

// dialogsFromBubbles derives an utterance list from bubbles in vertical order.
func dialogsFromBubbles(bubbles []models.Bubble) []models.Dialog {
	dialogs := make([]models.Dialog, 0, len(bubbles))
	for _, b := range bubbles {
		if b.Text == "" {
			continue
		}
		dialogs = append(dialogs, models.Dialog{Speaker: b.Speaker, Text: b.Text})
	}
	return dialogs
}

// inferColumnRoles assigns left/right roles by majority speaker per column.
func inferColumnRoles(bubbles []models.Bubble) (left, right string) {
	counts := map[string]map[string]int{
		models.ColumnLeft:  {},
		models.ColumnRight: {},
	}
	for _, b := range bubbles {
		counts[b.Column][b.Speaker]++
	}

	left = majoritySpeaker(counts[models.ColumnLeft], models.SpeakerOther)
	right = majoritySpeaker(counts[models.ColumnRight], models.SpeakerSelf)
	return left, right
}

func majoritySpeaker(counts map[string]int, fallback string) string {
	if counts[models.SpeakerSelf] > counts[models.SpeakerOther] {
		return models.SpeakerSelf
	}
	if counts[models.SpeakerOther] > counts[models.SpeakerSelf] {
		return models.SpeakerOther
	}
	return fallback
}

func normalizeEmotion(s string) string {
	switch s {
	case models.EmotionPositive, models.EmotionNeutral, models.EmotionNegative:
		return s
	}
	return models.EmotionNeutral
}

// NormalizeScenario maps unknown scenario classifications to SAFE.
func NormalizeScenario(s string) string {
	if models.IsKnownScenario(s) {
		return s
	}
	return models.ScenarioSafe
}

func normalizeRelationshipState(s string) string {
	if s == "" {
		return models.DefaultRelationshipState
	}
	return s
}

func emptyIfNil(flags []string) []string {
	if flags == nil {
		return []string{}
	}
	return flags
}
