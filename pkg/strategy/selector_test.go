package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatcoach/coachd/pkg/models"
)

func testPools() map[string][]string {
	return map[string][]string{
		models.ScenarioSafe:     {"light_humor", "empathetic_ack", "shared_interest", "open_question", "playful_callback"},
		models.ScenarioBalanced: {"gentle_tease", "curious_probe", "warm_validation"},
		models.ScenarioNegative: {"space_respect", "neutral_acknowledge"},
	}
}

func TestSelect_ExactlyThreeDistinct(t *testing.T) {
	s := NewSelector(testPools())

	for i := 0; i < 20; i++ {
		codes, err := s.Select(models.ScenarioSafe, nil)
		require.NoError(t, err)
		require.Len(t, codes, 3)

		seen := make(map[string]bool)
		for _, c := range codes {
			assert.True(t, s.Contains(models.ScenarioSafe, c))
			assert.False(t, seen[c], "duplicate code %s", c)
			seen[c] = true
		}
	}
}

func TestSelect_SeededDeterminism(t *testing.T) {
	s := NewSelector(testPools())

	seed := uint64(42)
	first, err := s.Select(models.ScenarioSafe, &seed)
	require.NoError(t, err)
	second, err := s.Select(models.ScenarioSafe, &seed)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSelect_UnknownScenarioFallsBackToSafe(t *testing.T) {
	s := NewSelector(testPools())

	codes, err := s.Select("NO_SUCH_SCENARIO", nil)
	require.NoError(t, err)
	for _, c := range codes {
		assert.True(t, s.Contains(models.ScenarioSafe, c))
	}
}

func TestSelect_PoolTooSmall(t *testing.T) {
	s := NewSelector(testPools())

	_, err := s.Select(models.ScenarioNegative, nil)
	assert.Error(t, err)
}

func TestSelect_PoolOfExactlyThreeUsesAll(t *testing.T) {
	s := NewSelector(testPools())

	codes, err := s.Select(models.ScenarioBalanced, nil)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"gentle_tease", "curious_probe", "warm_validation"}, codes)
}
