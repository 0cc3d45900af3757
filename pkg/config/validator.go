package config

import (
	"fmt"

	"github.com/chatcoach/coachd/pkg/models"
)

// validate checks the resolved configuration for internal consistency.
func validate(cfg *Config) error {
	for role, name := range map[string]string{
		"multimodal": cfg.Arms.Multimodal,
		"premium":    cfg.Arms.Premium,
		"reply":      cfg.Arms.Reply,
	} {
		if name == "" {
			return fmt.Errorf("%w: llm_arms.%s is required", ErrInvalidConfig, role)
		}
		p, err := cfg.LLMProviders.Get(name)
		if err != nil {
			return fmt.Errorf("%w: llm_arms.%s references %q: %v", ErrInvalidConfig, role, name, err)
		}
		if p.Type != ProviderOpenAI && p.Type != ProviderAnthropic {
			return fmt.Errorf("%w: provider %q has unknown type %q", ErrInvalidConfig, name, p.Type)
		}
		if p.Model == "" {
			return fmt.Errorf("%w: provider %q has no model", ErrInvalidConfig, name)
		}
	}

	for scenario, pool := range cfg.StrategyPools {
		if !models.IsKnownScenario(scenario) {
			return fmt.Errorf("%w: unknown scenario %q in strategies", ErrInvalidConfig, scenario)
		}
		if len(pool) < models.ReplyCount {
			return fmt.Errorf("%w: scenario %q pool has %d codes, need at least %d",
				ErrInvalidConfig, scenario, len(pool), models.ReplyCount)
		}
	}
	for _, scenario := range models.KnownScenarios {
		if _, ok := cfg.StrategyPools[scenario]; !ok {
			return fmt.Errorf("%w: scenario %q has no strategy pool", ErrInvalidConfig, scenario)
		}
	}

	if cfg.Features.MaxRetries < 1 {
		return fmt.Errorf("%w: max_retries must be >= 1", ErrInvalidConfig)
	}
	if cfg.Features.PlainTextWrapThreshold < 0 {
		return fmt.Errorf("%w: plain_text_wrap_threshold must be >= 0", ErrInvalidConfig)
	}

	return nil
}
