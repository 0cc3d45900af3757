package config

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// coachdYAML is the file structure of coachd.yaml.
type coachdYAML struct {
	Features   *Features          `yaml:"features"`
	Arms       *ArmsConfig        `yaml:"llm_arms"`
	Moderation *ModerationConfig  `yaml:"moderation"`
	Cache      *CacheConfig       `yaml:"cache"`
	Images     *ImagesConfig      `yaml:"images"`
	Timeouts   *TimeoutsConfig    `yaml:"timeouts"`
	Strategies map[string][]string `yaml:"strategies"`
	PromptsDir string             `yaml:"prompts_dir"`
}

// providersYAML is the file structure of llm-providers.yaml.
type providersYAML struct {
	LLMProviders map[string]*LLMProviderConfig `yaml:"llm_providers"`
}

// Initialize loads, merges with builtin defaults, validates, and returns
// ready-to-use configuration. Missing files are not an error: the builtin
// configuration alone is a valid deployment.
func Initialize(_ context.Context, configDir string) (*Config, error) {
	log := slog.With("config_dir", configDir)
	log.Info("Initializing configuration")

	cfg, err := load(configDir)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	stats := cfg.Stats()
	log.Info("Configuration initialized",
		"llm_providers", stats.LLMProviders,
		"strategy_pools", stats.StrategyPools,
		"merge_step_enabled", cfg.Features.MergeStep(),
		"parallel_enabled", cfg.Features.Parallel())

	return cfg, nil
}

func load(configDir string) (*Config, error) {
	main, err := loadCoachdYAML(configDir)
	if err != nil {
		return nil, NewLoadError("coachd.yaml", err)
	}

	userProviders, err := loadProvidersYAML(configDir)
	if err != nil {
		return nil, NewLoadError("llm-providers.yaml", err)
	}

	// User-defined providers override builtin entries of the same name.
	providers := builtinProviders()
	for name, p := range userProviders {
		providers[name] = p
	}

	pools := builtinStrategyPools()
	for scenario, codes := range main.Strategies {
		pools[scenario] = codes
	}

	cfg := &Config{
		LLMProviders:  NewLLMProviderRegistry(providers),
		StrategyPools: pools,
		PromptsDir:    main.PromptsDir,
	}

	if main.Features != nil {
		cfg.Features = *main.Features
	}
	if cfg.Features.MaxRetries == 0 {
		cfg.Features.MaxRetries = DefaultMaxRetries
	}
	if cfg.Features.PlainTextWrapThreshold == 0 {
		cfg.Features.PlainTextWrapThreshold = DefaultPlainTextWrapThreshold
	}

	arms := builtinArms()
	if main.Arms != nil {
		if err := mergo.Merge(&arms, *main.Arms, mergo.WithOverride); err != nil {
			return nil, fmt.Errorf("failed to merge llm_arms: %w", err)
		}
	}
	cfg.Arms = arms

	if main.Moderation != nil {
		cfg.Moderation = *main.Moderation
	}
	if cfg.Moderation.Timeout == 0 {
		cfg.Moderation.Timeout = DefaultModerationTimeout
	}

	if main.Cache != nil {
		cfg.Cache = *main.Cache
	}
	if cfg.Cache.TTL == 0 {
		cfg.Cache.TTL = DefaultCacheTTL
	}

	if main.Images != nil {
		cfg.Images = *main.Images
	}
	if cfg.Images.MaxBytes == 0 {
		cfg.Images.MaxBytes = DefaultImageMaxBytes
	}
	if cfg.Images.FetchTimeout == 0 {
		cfg.Images.FetchTimeout = DefaultImageFetchTimeout
	}

	if main.Timeouts != nil {
		cfg.Timeouts = *main.Timeouts
	}
	if cfg.Timeouts.Request == 0 {
		cfg.Timeouts.Request = DefaultRequestTimeout
	}
	if cfg.Timeouts.Arm == 0 {
		cfg.Timeouts.Arm = DefaultArmTimeout
	}

	return cfg, nil
}

func loadCoachdYAML(configDir string) (*coachdYAML, error) {
	path := filepath.Join(configDir, "coachd.yaml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return &coachdYAML{}, nil
	}
	if err != nil {
		return nil, err
	}

	var out coachdYAML
	if err := yaml.Unmarshal(ExpandEnv(data), &out); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &out, nil
}

func loadProvidersYAML(configDir string) (map[string]*LLMProviderConfig, error) {
	path := filepath.Join(configDir, "llm-providers.yaml")
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var out providersYAML
	if err := yaml.Unmarshal(ExpandEnv(data), &out); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return out.LLMProviders, nil
}
