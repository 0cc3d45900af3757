package config

import "time"

// Builtin defaults. User YAML overrides these; anything unset falls back here.

// Default feature values.
const (
	DefaultMaxRetries             = 3
	DefaultPlainTextWrapThreshold = 500
)

// Default deadlines and bounds.
const (
	DefaultRequestTimeout    = 90 * time.Second
	DefaultArmTimeout        = 30 * time.Second
	DefaultModerationTimeout = 5 * time.Second
	DefaultCacheTTL          = 24 * time.Hour
	DefaultImageMaxBytes     = 10 << 20
	DefaultImageFetchTimeout = 15 * time.Second
)

// builtinProviders are the provider entries available without any
// llm-providers.yaml. API keys always come from the environment.
func builtinProviders() map[string]*LLMProviderConfig {
	return map[string]*LLMProviderConfig{
		"openai-multimodal": {
			Type:      ProviderOpenAI,
			Model:     "gpt-4o",
			APIKeyEnv: "OPENAI_API_KEY",
			MaxTokens: 4096,
		},
		"anthropic-premium": {
			Type:      ProviderAnthropic,
			Model:     "claude-sonnet-4-20250514",
			APIKeyEnv: "ANTHROPIC_API_KEY",
			MaxTokens: 4096,
		},
		"openai-reply": {
			Type:      ProviderOpenAI,
			Model:     "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
			MaxTokens: 2048,
		},
	}
}

// builtinArms binds the default provider entry to each LLM role.
func builtinArms() ArmsConfig {
	return ArmsConfig{
		Multimodal: "openai-multimodal",
		Premium:    "anthropic-premium",
		Reply:      "openai-reply",
	}
}

// builtinStrategyPools maps each scenario to its pool of strategy codes.
// The selector draws exactly three distinct codes from the active pool.
func builtinStrategyPools() map[string][]string {
	return map[string][]string{
		"SAFE": {
			"light_humor", "empathetic_ack", "shared_interest",
			"open_question", "playful_callback",
		},
		"BALANCED": {
			"gentle_tease", "curious_probe", "warm_validation",
			"light_humor", "future_hint",
		},
		"RISKY": {
			"bold_compliment", "push_pull", "direct_invite",
			"playful_challenge", "escalating_tease",
		},
		"RECOVERY": {
			"sincere_apology", "light_redirect", "empathetic_ack",
			"low_pressure_checkin", "self_deprecating_humor",
		},
		"NEGATIVE": {
			"space_respect", "neutral_acknowledge", "topic_reset",
			"low_pressure_checkin", "graceful_exit",
		},
	}
}
