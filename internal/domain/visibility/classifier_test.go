package visibility

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/stellar-map/internal/domain/shared"
)

func scenarioClassifier(t *testing.T) *Classifier {
	t.Helper()
	c, err := NewClassifier(map[Core]Thresholds{"A": {0, 100, 200, 300}})
	require.NoError(t, err)
	return c
}

func TestClassifyScenario(t *testing.T) {
	c := scenarioClassifier(t)

	got := c.Classify("A", 150)
	assert.Equal(t, Lens, got.Tier)
	assert.Equal(t, DifficultyRange{Min: 3, Max: 5}, got.Range)
	assert.True(t, got.Known)

	assert.True(t, c.IsVisible("A", 4, 150))
	assert.False(t, c.IsVisible("A", 7, 150))
}

func TestClassifyBoundariesAreInclusive(t *testing.T) {
	c := scenarioClassifier(t)

	tests := []struct {
		xp   int64
		want Tier
	}{
		{0, Fog},
		{99, Fog},
		{100, Lens},
		{199, Lens},
		{200, Prism},
		{299, Prism},
		{300, Beam},
		{1_000_000, Beam},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, c.Classify("A", tt.xp).Tier, "xp=%d", tt.xp)
	}
}

func TestClassifyIsMonotonic(t *testing.T) {
	c := DefaultClassifier()
	for _, core := range c.Cores() {
		prev := Fog
		for xp := int64(0); xp <= 100_000; xp += 250 {
			tier := c.Classify(core, xp).Tier
			require.GreaterOrEqual(t, int(tier), int(prev), "core=%s xp=%d", core, xp)
			prev = tier
		}
	}
}

func TestClassifyUnknownCoreDefaultsToFog(t *testing.T) {
	c := DefaultClassifier()
	got := c.Classify("God Mode", 1_000_000)
	assert.Equal(t, Fog, got.Tier)
	assert.Equal(t, Fog.Range(), got.Range)
	assert.False(t, got.Known)
}

func TestClassifyBelowFogThresholdStillFog(t *testing.T) {
	c := DefaultClassifier()
	got := c.Classify(Insight, 0)
	assert.Equal(t, Fog, got.Tier)
}

func TestDefaultTable(t *testing.T) {
	c := DefaultClassifier()
	assert.Equal(t, []Core{Ignition, Insight, Transformation}, c.Cores())
	assert.Equal(t, Lens, c.Classify(Ignition, 3750).Tier)
	assert.Equal(t, Beam, c.Classify(Insight, 30750).Tier)
	assert.Equal(t, Prism, c.Classify(Transformation, 68000).Tier)
	assert.Equal(t, Transformation, c.HighestCore())
}

func TestTierRangesPartitionDifficulty(t *testing.T) {
	for d := MinDifficulty; d <= MaxDifficulty; d++ {
		hits := 0
		for _, tier := range Tiers {
			if tier.Range().Contains(d) {
				hits++
			}
		}
		assert.Equal(t, 1, hits, "difficulty %d", d)
	}
	_, ok := TierForDifficulty(11)
	assert.False(t, ok)
}

func TestUnlockThreshold(t *testing.T) {
	c := DefaultClassifier()

	xp, ok := c.UnlockThreshold(Ignition, 7)
	require.True(t, ok)
	assert.EqualValues(t, 7500, xp)

	xp, ok = c.UnlockThreshold(Transformation, 9)
	require.True(t, ok)
	assert.EqualValues(t, 84000, xp)

	_, ok = c.UnlockThreshold("nope", 1)
	assert.False(t, ok)
}

func TestParseCore(t *testing.T) {
	c := DefaultClassifier()

	core, ok := c.ParseCore("TRANSFORMATION")
	require.True(t, ok)
	assert.Equal(t, Transformation, core)

	_, ok = c.ParseCore("GOD_MODE")
	assert.False(t, ok)
}

func TestNewClassifierRejectsUnorderedThresholds(t *testing.T) {
	_, err := NewClassifier(map[Core]Thresholds{"A": {0, 100, 100, 300}})
	require.Error(t, err)
	assert.True(t, shared.IsValidation(err))
	assert.ErrorIs(t, err, shared.ErrInvalidThresholdTable)

	_, err = NewClassifier(nil)
	assert.Error(t, err)
}

func TestLoadTable(t *testing.T) {
	doc := `
cores:
  - name: Alpha
    thresholds: {fog: 0, lens: 10, prism: 20, beam: 30}
  - name: Beta
    thresholds: {fog: 40, lens: 50, prism: 60, beam: 70}
`
	c, err := LoadTable(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, []Core{"Alpha", "Beta"}, c.Cores())
	assert.Equal(t, Prism, c.Classify("Beta", 65).Tier)
}

func TestLoadTableRejectsMissingTier(t *testing.T) {
	doc := `
cores:
  - name: Alpha
    thresholds: {fog: 0, lens: 10, prism: 20}
`
	_, err := LoadTable(strings.NewReader(doc))
	assert.ErrorIs(t, err, shared.ErrInvalidThresholdTable)
}

func TestLoadTableFileEmptyPathUsesDefaults(t *testing.T) {
	c, err := LoadTableFile("")
	require.NoError(t, err)
	assert.Len(t, c.Cores(), 3)
}
