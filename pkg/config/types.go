// Package config loads, merges, and validates the coachd configuration:
// YAML files with environment expansion, builtin defaults, and in-memory
// registries handed to the rest of the system.
package config

import (
	"fmt"
	"sync"
	"time"
)

// LLMProviderType identifies which SDK adapter serves a provider entry.
type LLMProviderType string

// Supported provider types.
const (
	ProviderOpenAI    LLMProviderType = "openai"
	ProviderAnthropic LLMProviderType = "anthropic"
)

// LLMProviderConfig defines one LLM provider entry from llm-providers.yaml.
type LLMProviderConfig struct {
	Type        LLMProviderType `yaml:"type"`
	Model       string          `yaml:"model"`
	APIKeyEnv   string          `yaml:"api_key_env,omitempty"`
	BaseURL     string          `yaml:"base_url,omitempty"`
	MaxTokens   int             `yaml:"max_tokens,omitempty"`
	Temperature *float32        `yaml:"temperature,omitempty"`
	Timeout     time.Duration   `yaml:"timeout,omitempty"`
}

// LLMProviderRegistry stores provider configurations with thread-safe access.
type LLMProviderRegistry struct {
	mu        sync.RWMutex
	providers map[string]*LLMProviderConfig
}

// NewLLMProviderRegistry copies the given map into a registry.
func NewLLMProviderRegistry(providers map[string]*LLMProviderConfig) *LLMProviderRegistry {
	copied := make(map[string]*LLMProviderConfig, len(providers))
	for k, v := range providers {
		copied[k] = v
	}
	return &LLMProviderRegistry{providers: copied}
}

// Get retrieves a provider configuration by name.
func (r *LLMProviderRegistry) Get(name string) (*LLMProviderConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrLLMProviderNotFound, name)
	}
	return p, nil
}

// Names returns the registered provider names.
func (r *LLMProviderRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	return names
}

// Len returns the number of registered providers.
func (r *LLMProviderRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

// Features holds the request-orchestration feature flags. Pointer fields
// distinguish "unset" from an explicit false so builtin defaults can apply.
type Features struct {
	MergeStepEnabled       *bool `yaml:"merge_step_enabled,omitempty"`
	ParallelEnabled        *bool `yaml:"parallel_enabled,omitempty"`
	MaxRetries             int   `yaml:"max_retries,omitempty"`
	IntimacyCheckEnabled   *bool `yaml:"intimacy_check_enabled,omitempty"`
	ModerationFailOpen     bool  `yaml:"moderation_fail_open,omitempty"`
	PromptLogEnabled       bool  `yaml:"prompt_log_enabled,omitempty"`
	PlainTextWrapThreshold int   `yaml:"plain_text_wrap_threshold,omitempty"`
}

// MergeStep resolves the merge_step_enabled flag (default true).
func (f *Features) MergeStep() bool { return f.MergeStepEnabled == nil || *f.MergeStepEnabled }

// Parallel resolves the parallel_enabled flag (default true).
func (f *Features) Parallel() bool { return f.ParallelEnabled == nil || *f.ParallelEnabled }

// IntimacyCheck resolves the intimacy_check_enabled flag (default true).
func (f *Features) IntimacyCheck() bool {
	return f.IntimacyCheckEnabled == nil || *f.IntimacyCheckEnabled
}

// ArmsConfig names the provider entries used for each LLM role.
type ArmsConfig struct {
	Multimodal string `yaml:"multimodal"`
	Premium    string `yaml:"premium"`
	Reply      string `yaml:"reply"`
}

// ModerationConfig configures the intimacy-check collaborator.
type ModerationConfig struct {
	URL     string        `yaml:"url"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// CacheConfig configures the session cache.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl,omitempty"`
}

// ImagesConfig bounds the image fetcher.
type ImagesConfig struct {
	MaxBytes     int64         `yaml:"max_bytes,omitempty"`
	FetchTimeout time.Duration `yaml:"fetch_timeout,omitempty"`
}

// TimeoutsConfig holds the scope deadlines.
type TimeoutsConfig struct {
	Request time.Duration `yaml:"request,omitempty"`
	Arm     time.Duration `yaml:"arm,omitempty"`
}

// Config is the fully resolved runtime configuration.
type Config struct {
	Features      Features
	Arms          ArmsConfig
	Moderation    ModerationConfig
	Cache         CacheConfig
	Images        ImagesConfig
	Timeouts      TimeoutsConfig
	LLMProviders  *LLMProviderRegistry
	StrategyPools map[string][]string
	PromptsDir    string
}

// Stats summarizes the loaded configuration for the health endpoint.
type Stats struct {
	LLMProviders  int `json:"llm_providers"`
	StrategyPools int `json:"strategy_pools"`
}

// Stats returns counts of loaded configuration items.
func (c *Config) Stats() Stats {
	return Stats{
		LLMProviders:  c.LLMProviders.Len(),
		StrategyPools: len(c.StrategyPools),
	}
}
