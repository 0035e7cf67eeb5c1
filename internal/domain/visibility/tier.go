// Package visibility decides which content difficulties a learner may see in a
// core, given their accumulated experience points.
//
// Classification is a pure function over a static threshold table. Each core has
// four ordered tiers (Fog, Lens, Prism, Beam); a learner sits at the highest tier
// whose threshold they meet. Every tier maps to a fixed inclusive difficulty
// range, and the four ranges partition 0-10.
package visibility

import "strings"

// Tier is one of the four ordered visibility bands of a core.
type Tier int

const (
	Fog Tier = iota
	Lens
	Prism
	Beam
)

// Tiers lists every tier from lowest to highest.
var Tiers = [...]Tier{Fog, Lens, Prism, Beam}

func (t Tier) String() string {
	switch t {
	case Fog:
		return "Fog"
	case Lens:
		return "Lens"
	case Prism:
		return "Prism"
	case Beam:
		return "Beam"
	default:
		return "Unknown"
	}
}

// Valid reports whether t is one of the four tiers.
func (t Tier) Valid() bool {
	return t >= Fog && t <= Beam
}

// ParseTier parses a tier name case-insensitively.
func ParseTier(s string) (Tier, bool) {
	for _, t := range Tiers {
		if strings.EqualFold(strings.TrimSpace(s), t.String()) {
			return t, true
		}
	}
	return Fog, false
}

// Difficulty bounds for content nodes.
const (
	MinDifficulty = 0
	MaxDifficulty = 10
)

// DifficultyRange is an inclusive range of node difficulties.
type DifficultyRange struct {
	Min int `json:"min" yaml:"min"`
	Max int `json:"max" yaml:"max"`
}

// Contains reports whether d lies within the range, bounds included.
func (r DifficultyRange) Contains(d int) bool {
	return d >= r.Min && d <= r.Max
}

var tierRanges = [...]DifficultyRange{
	Fog:   {Min: 0, Max: 2},
	Lens:  {Min: 3, Max: 5},
	Prism: {Min: 6, Max: 8},
	Beam:  {Min: 9, Max: 10},
}

// Range returns the difficulty range unlocked at tier t.
// An invalid tier yields the Fog range.
func (t Tier) Range() DifficultyRange {
	if !t.Valid() {
		return tierRanges[Fog]
	}
	return tierRanges[t]
}

// TierForDifficulty returns the tier whose range contains d.
func TierForDifficulty(d int) (Tier, bool) {
	for _, t := range Tiers {
		if tierRanges[t].Contains(d) {
			return t, true
		}
	}
	return Fog, false
}
