// Package hierarchy turns flat content records into the validated
// family → constellation → node tree shown on the Stellar Map.
//
// Grouping never fails. Records that break the hierarchy are excluded and
// described in a Report, so one malformed row cannot take down a whole map.
package hierarchy

import (
	"github.com/alem-hub/stellar-map/internal/domain/visibility"
)

// Family is a named top-level grouping scoped to one core.
type Family struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	Core         visibility.Core `json:"core"`
	DisplayOrder int             `json:"display_order"`
}

// Constellation belongs to exactly one Family and shares its core.
type Constellation struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	FamilyID     string          `json:"family_id"`
	Core         visibility.Core `json:"core"`
	DisplayOrder int             `json:"display_order"`
	Color        string          `json:"color,omitempty"`
}

// RawNode is a node row as stored. Its alias fields are denormalized copies and
// are never trusted.
type RawNode struct {
	ID                 string
	Title              string
	Link               string
	Difficulty         int
	DifficultyLabel    string
	ConstellationID    string
	FamilyAlias        string
	ConstellationAlias string
	XPThreshold        int64
	XPReward           int64
	Skills             []string
}

// DefaultReward is granted for a node that does not carry its own reward.
const DefaultReward int64 = 50

// Reward returns the stored reward, or fallback when none is set.
func (n RawNode) Reward(fallback int64) int64 {
	if n.XPReward > 0 {
		return n.XPReward
	}
	return fallback
}

// Node is an accepted node with aliases taken from its true parents.
type Node struct {
	ID                 string     `json:"id"`
	Title              string     `json:"title"`
	Link               string     `json:"link,omitempty"`
	Content            ContentRef `json:"content"`
	Difficulty         int        `json:"difficulty"`
	DifficultyLabel    string     `json:"difficulty_label,omitempty"`
	ConstellationID    string     `json:"constellation_id"`
	FamilyID           string     `json:"family_id"`
	FamilyAlias        string     `json:"family_alias"`
	ConstellationAlias string     `json:"constellation_alias"`
	XPThreshold        int64      `json:"xp_threshold"`
	XPReward           int64      `json:"xp_reward"`
	Skills             []string   `json:"skills,omitempty"`
}

// Reward returns the node's reward, falling back to DefaultReward.
func (n Node) Reward() int64 {
	if n.XPReward > 0 {
		return n.XPReward
	}
	return DefaultReward
}

// ConstellationGroup is a constellation with its accepted nodes, ordered by difficulty.
type ConstellationGroup struct {
	Constellation
	Nodes []Node `json:"nodes"`
}

// FamilyGroup is a family with its non-empty constellations in display order.
type FamilyGroup struct {
	Family
	Constellations []ConstellationGroup `json:"constellations"`
}

// Tree is the grouped map for one core. Families and constellations without
// accepted nodes are omitted.
type Tree struct {
	Core     visibility.Core `json:"core"`
	Families []FamilyGroup   `json:"families"`
}

// AsMap returns the tree as family name → constellation name → nodes.
// Families or constellations that share a name are merged.
func (t Tree) AsMap() map[string]map[string][]Node {
	out := make(map[string]map[string][]Node, len(t.Families))
	for _, f := range t.Families {
		cm, ok := out[f.Name]
		if !ok {
			cm = make(map[string][]Node, len(f.Constellations))
			out[f.Name] = cm
		}
		for _, c := range f.Constellations {
			cm[c.Name] = append(cm[c.Name], c.Nodes...)
		}
	}
	return out
}

// NodeCount returns the number of nodes in the tree.
func (t Tree) NodeCount() int {
	n := 0
	for _, f := range t.Families {
		for _, c := range f.Constellations {
			n += len(c.Nodes)
		}
	}
	return n
}

// Node finds a node by id.
func (t Tree) Node(id string) (Node, bool) {
	for _, f := range t.Families {
		for _, c := range f.Constellations {
			for _, n := range c.Nodes {
				if n.ID == id {
					return n, true
				}
			}
		}
	}
	return Node{}, false
}

// Empty reports whether the tree has no nodes.
func (t Tree) Empty() bool {
	return len(t.Families) == 0
}
