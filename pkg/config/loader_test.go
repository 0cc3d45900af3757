package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func TestInitialize_BuiltinsOnly(t *testing.T) {
	cfg, err := Initialize(context.Background(), t.TempDir())
	require.NoError(t, err)

	assert.Equal(t, DefaultMaxRetries, cfg.Features.MaxRetries)
	assert.Equal(t, DefaultPlainTextWrapThreshold, cfg.Features.PlainTextWrapThreshold)
	assert.True(t, cfg.Features.MergeStep())
	assert.True(t, cfg.Features.Parallel())
	assert.True(t, cfg.Features.IntimacyCheck())

	assert.Equal(t, DefaultCacheTTL, cfg.Cache.TTL)
	assert.Equal(t, int64(DefaultImageMaxBytes), cfg.Images.MaxBytes)
	assert.Equal(t, DefaultRequestTimeout, cfg.Timeouts.Request)
	assert.Equal(t, DefaultArmTimeout, cfg.Timeouts.Arm)

	assert.Equal(t, "openai-multimodal", cfg.Arms.Multimodal)
	assert.Equal(t, "anthropic-premium", cfg.Arms.Premium)
	assert.Equal(t, "openai-reply", cfg.Arms.Reply)

	stats := cfg.Stats()
	assert.Equal(t, 3, stats.LLMProviders)
	assert.Equal(t, 5, stats.StrategyPools)
}

func TestInitialize_MissingDirUsesBuiltins(t *testing.T) {
	cfg, err := Initialize(context.Background(), filepath.Join(t.TempDir(), "nope"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.LLMProviders.Len())
}

func TestInitialize_UserOverrides(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "coachd.yaml", `
features:
  merge_step_enabled: false
  max_retries: 5
llm_arms:
  premium: my-premium
cache:
  ttl: 1h
strategies:
  SAFE:
    - code_a
    - code_b
    - code_c
`)
	writeConfig(t, dir, "llm-providers.yaml", `
llm_providers:
  my-premium:
    type: anthropic
    model: claude-3-5-haiku-latest
    api_key_env: ANTHROPIC_API_KEY
`)

	cfg, err := Initialize(context.Background(), dir)
	require.NoError(t, err)

	assert.False(t, cfg.Features.MergeStep())
	assert.True(t, cfg.Features.Parallel(), "unset flags keep their defaults")
	assert.Equal(t, 5, cfg.Features.MaxRetries)
	assert.Equal(t, time.Hour, cfg.Cache.TTL)

	// The premium arm resolves to the user provider; other arms keep builtins.
	assert.Equal(t, "my-premium", cfg.Arms.Premium)
	assert.Equal(t, "openai-multimodal", cfg.Arms.Multimodal)
	p, err := cfg.LLMProviders.Get("my-premium")
	require.NoError(t, err)
	assert.Equal(t, ProviderAnthropic, p.Type)
	assert.Equal(t, "claude-3-5-haiku-latest", p.Model)

	// The SAFE pool is replaced; the other pools stay builtin.
	assert.Equal(t, []string{"code_a", "code_b", "code_c"}, cfg.StrategyPools["SAFE"])
	assert.Len(t, cfg.StrategyPools["RISKY"], 5)
}

func TestInitialize_UnknownArmProvider(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "coachd.yaml", `
llm_arms:
  reply: no-such-provider
`)

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestInitialize_PoolTooSmall(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "coachd.yaml", `
strategies:
  NEGATIVE:
    - only_one
`)

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestInitialize_UnknownScenarioPool(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "coachd.yaml", `
strategies:
  WILD:
    - a
    - b
    - c
`)

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestInitialize_MalformedYAML(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "coachd.yaml", "features: [not a map")

	_, err := Initialize(context.Background(), dir)
	require.Error(t, err)
	var loadErr *LoadError
	assert.ErrorAs(t, err, &loadErr)
}

func TestExpandEnv(t *testing.T) {
	t.Setenv("COACHD_TEST_KEY", "sekrit")

	out := ExpandEnv([]byte("api_key: {{.COACHD_TEST_KEY}}"))
	assert.Equal(t, "api_key: sekrit", string(out))

	// Missing variables expand to empty, dollar signs pass through.
	out = ExpandEnv([]byte("pattern: $1 key: {{.COACHD_TEST_MISSING}}"))
	assert.Equal(t, "pattern: $1 key: ", string(out))
}
