package visibility

import (
	"fmt"
	"sort"
	"strings"

	"github.com/alem-hub/stellar-map/internal/domain/shared"
)

// Core names a top-level content tier with its own thresholds and scene.
type Core string

const (
	Ignition       Core = "Ignition"
	Insight        Core = "Insight"
	Transformation Core = "Transformation"
)

func (c Core) String() string { return string(c) }

// Thresholds holds the minimum experience points for each tier, indexed by Tier.
type Thresholds [4]int64

// For returns the threshold of tier t.
func (th Thresholds) For(t Tier) int64 {
	if !t.Valid() {
		return th[Fog]
	}
	return th[t]
}

func (th Thresholds) validate() error {
	for i := 1; i < len(th); i++ {
		if th[i] <= th[i-1] {
			return fmt.Errorf("%s threshold %d must exceed %s threshold %d",
				Tier(i), th[i], Tier(i-1), th[i-1])
		}
	}
	if th[Fog] < 0 {
		return fmt.Errorf("Fog threshold %d is negative", th[Fog])
	}
	return nil
}

// DefaultTable is the production threshold table.
var DefaultTable = map[Core]Thresholds{
	Ignition:       {0, 3750, 7500, 11250},
	Insight:        {15000, 20250, 25500, 30750},
	Transformation: {36000, 52000, 68000, 84000},
}

// Classification is the result of classifying a learner within a core.
type Classification struct {
	Core  Core            `json:"core"`
	Tier  Tier            `json:"tier"`
	Range DifficultyRange `json:"range"`
	XP    int64           `json:"xp"`
	Known bool            `json:"known"`
}

// Classifier maps (core, experience points) to a visibility tier.
// It is immutable after construction and safe for concurrent use.
type Classifier struct {
	table map[Core]Thresholds
	cores []Core
}

// NewClassifier validates table and builds a Classifier.
// Thresholds within a core must be non-negative and strictly increasing.
func NewClassifier(table map[Core]Thresholds) (*Classifier, error) {
	if len(table) == 0 {
		return nil, shared.WrapError("visibility", "NewClassifier", shared.ErrInvalidInput,
			"threshold table is empty", shared.ErrInvalidThresholdTable)
	}

	c := &Classifier{table: make(map[Core]Thresholds, len(table))}
	for core, th := range table {
		if strings.TrimSpace(string(core)) == "" {
			return nil, shared.WrapError("visibility", "NewClassifier", shared.ErrInvalidInput,
				"core name is empty", shared.ErrInvalidThresholdTable)
		}
		if err := th.validate(); err != nil {
			return nil, shared.WrapError("visibility", "NewClassifier", shared.ErrInvalidInput,
				fmt.Sprintf("core %q: %v", core, err), shared.ErrInvalidThresholdTable)
		}
		c.table[core] = th
		c.cores = append(c.cores, core)
	}

	// Cores are ordered by entry threshold so listings follow progression.
	sort.Slice(c.cores, func(i, j int) bool {
		a, b := c.table[c.cores[i]][Fog], c.table[c.cores[j]][Fog]
		if a != b {
			return a < b
		}
		return c.cores[i] < c.cores[j]
	})
	return c, nil
}

// DefaultClassifier returns a Classifier over DefaultTable.
func DefaultClassifier() *Classifier {
	c, err := NewClassifier(DefaultTable)
	if err != nil {
		panic(err)
	}
	return c
}

// Cores returns the known cores ordered by their Fog threshold.
func (c *Classifier) Cores() []Core {
	out := make([]Core, len(c.cores))
	copy(out, c.cores)
	return out
}

// Thresholds returns the table row for core.
func (c *Classifier) Thresholds(core Core) (Thresholds, bool) {
	th, ok := c.table[core]
	return th, ok
}

// ParseCore resolves a core name case-insensitively against the table.
// Underscores and spaces are ignored, so "TRANSFORMATION" and "transformation" match.
func (c *Classifier) ParseCore(s string) (Core, bool) {
	norm := normalizeCoreName(s)
	for _, core := range c.cores {
		if normalizeCoreName(string(core)) == norm {
			return core, true
		}
	}
	return "", false
}

func normalizeCoreName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, "_", "")
	return strings.ReplaceAll(s, " ", "")
}

// Classify returns the learner's tier and difficulty range in core.
// Tiers are checked highest-first; the first threshold met wins. An unknown
// core or an experience total below every threshold yields Fog.
func (c *Classifier) Classify(core Core, xp int64) Classification {
	th, ok := c.table[core]
	result := Classification{Core: core, Tier: Fog, Range: Fog.Range(), XP: xp, Known: ok}
	if !ok {
		return result
	}

	for i := len(Tiers) - 1; i > 0; i-- {
		t := Tiers[i]
		if xp >= th[t] {
			result.Tier = t
			result.Range = t.Range()
			return result
		}
	}
	return result
}

// IsVisible reports whether a node of the given difficulty falls inside the
// learner's current range for core. Per-node unlock thresholds are not consulted.
func (c *Classifier) IsVisible(core Core, difficulty int, xp int64) bool {
	return c.Classify(core, xp).Range.Contains(difficulty)
}

// UnlockThreshold returns the experience points needed to see a node of the
// given difficulty in core: the threshold of the tier whose range contains it.
func (c *Classifier) UnlockThreshold(core Core, difficulty int) (int64, bool) {
	th, ok := c.table[core]
	if !ok {
		return 0, false
	}
	t, ok := TierForDifficulty(difficulty)
	if !ok {
		return 0, false
	}
	return th[t], true
}

// HighestCore returns the core with the largest entry threshold.
func (c *Classifier) HighestCore() Core {
	return c.cores[len(c.cores)-1]
}
