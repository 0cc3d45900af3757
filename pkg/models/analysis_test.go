package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClampIntimacy(t *testing.T) {
	assert.Equal(t, 0, ClampIntimacy(-5))
	assert.Equal(t, 0, ClampIntimacy(0))
	assert.Equal(t, 55, ClampIntimacy(55))
	assert.Equal(t, 100, ClampIntimacy(100))
	assert.Equal(t, 100, ClampIntimacy(140))
}

func TestIntimacyStage(t *testing.T) {
	cases := []struct {
		level int
		stage int
	}{
		{0, 1},
		{19, 1},
		{20, 2},
		{39, 2},
		{55, 3},
		{79, 4},
		{80, 5},
		{99, 5},
		{100, 5},
		{140, 5},
		{-10, 1},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.stage, IntimacyStage(tc.level), "level %d", tc.level)
	}
}

func TestIsKnownScenario(t *testing.T) {
	for _, s := range []string{ScenarioSafe, ScenarioBalanced, ScenarioRisky, ScenarioRecovery, ScenarioNegative} {
		assert.True(t, IsKnownScenario(s), s)
	}
	assert.False(t, IsKnownScenario("WILD"))
	assert.False(t, IsKnownScenario("safe"))
	assert.False(t, IsKnownScenario(""))
}
