package models

// Emotion states recognized in context analysis. Unknown values from the LLM
// default to EmotionNeutral.
const (
	EmotionPositive = "positive"
	EmotionNeutral  = "neutral"
	EmotionNegative = "negative"
)

// Recommended scenario classifications. Unknown values default to ScenarioSafe.
const (
	ScenarioSafe     = "SAFE"
	ScenarioBalanced = "BALANCED"
	ScenarioRisky    = "RISKY"
	ScenarioRecovery = "RECOVERY"
	ScenarioNegative = "NEGATIVE"
)

// DefaultRelationshipState is used when the LLM emits a relationship state
// outside the known vocabulary.
const DefaultRelationshipState = "维持"

// KnownScenarios lists the valid recommended_scenario values.
var KnownScenarios = []string{
	ScenarioSafe, ScenarioBalanced, ScenarioRisky, ScenarioRecovery, ScenarioNegative,
}

// IsKnownScenario reports whether s is a recognized scenario classification.
func IsKnownScenario(s string) bool {
	for _, k := range KnownScenarios {
		if s == k {
			return true
		}
	}
	return false
}

// ContextResult summarizes the conversational context of one screenshot.
type ContextResult struct {
	ConversationSummary  string   `json:"conversation_summary"`
	EmotionState         string   `json:"emotion_state"`
	CurrentIntimacyLevel int      `json:"current_intimacy_level"`
	RiskFlags            []string `json:"risk_flags"`
}

// SceneAnalysisResult classifies the conversational situation and carries the
// strategy codes chosen for it. RecommendedStrategies is filled by the
// strategy selector, never by the LLM.
type SceneAnalysisResult struct {
	RelationshipState     string   `json:"relationship_state"`
	CurrentScenario       string   `json:"current_scenario"`
	RecommendedScenario   string   `json:"recommended_scenario"`
	IntimacyLevel         int      `json:"intimacy_level"`
	RiskFlags             []string `json:"risk_flags"`
	RecommendedStrategies []string `json:"recommended_strategies"`
}

// ClampIntimacy clamps an intimacy level into [0,100].
func ClampIntimacy(level int) int {
	if level < 0 {
		return 0
	}
	if level > 100 {
		return 100
	}
	return level
}

// IntimacyStage bins an intimacy level into the 1..5 stage used by the
// moderation service. Level 100 belongs to stage 5.
func IntimacyStage(level int) int {
	stage := ClampIntimacy(level)/20 + 1
	if stage > 5 {
		stage = 5
	}
	return stage
}
