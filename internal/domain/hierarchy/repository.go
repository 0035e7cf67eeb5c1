package hierarchy

import (
	"context"

	"github.com/alem-hub/stellar-map/internal/domain/visibility"
)

// NodeQuery selects raw nodes for one core.
type NodeQuery struct {
	Core  visibility.Core
	Range visibility.DifficultyRange

	// MaxUnlockXP, when set, drops nodes whose own unlock threshold exceeds it.
	MaxUnlockXP *int64
}

// ContentStore is the read side of the content catalog.
//
// Families and constellations are small tables and are returned for every
// core, so the grouper can tell a level mismatch from a missing parent.
// Nodes are filtered by their stored core and difficulty and ordered by
// difficulty.
type ContentStore interface {
	ListFamilies(ctx context.Context) ([]Family, error)
	ListConstellations(ctx context.Context) ([]Constellation, error)
	ListNodes(ctx context.Context, q NodeQuery) ([]RawNode, error)
}

// NodeFinder looks up one stored node.
type NodeFinder interface {
	// FindNode returns shared.ErrNodeNotFound when absent.
	FindNode(ctx context.Context, id string) (RawNode, error)
}

// NewNode is a node to be inserted by the importer.
type NewNode struct {
	Title           string
	Link            string
	ConstellationID string
	Core            visibility.Core
	Difficulty      int
	DifficultyLabel string
	XPThreshold     int64
	XPReward        int64
	Skills          []string
}

// ContentWriter is the write side used by imports.
type ContentWriter interface {
	// FindConstellation resolves a constellation by name within a core.
	// Returns shared.ErrConstellationNotFound when absent.
	FindConstellation(ctx context.Context, name string, core visibility.Core) (Constellation, error)
	InsertNode(ctx context.Context, n NewNode) (string, error)
}

// CatalogWriter creates families and constellations. An empty ID asks the
// store to assign one; the stored id is returned.
type CatalogWriter interface {
	CreateFamily(ctx context.Context, f Family) (string, error)
	CreateConstellation(ctx context.Context, c Constellation) (string, error)
}

// Grouped is a tree together with the report produced while grouping it.
type Grouped struct {
	Tree   Tree   `json:"tree"`
	Report Report `json:"report"`
}

// TreeCache holds grouped trees per core and tier.
type TreeCache interface {
	// Get reports false on a miss.
	Get(ctx context.Context, core visibility.Core, tier visibility.Tier) (Grouped, bool, error)
	Set(ctx context.Context, core visibility.Core, tier visibility.Tier, g Grouped) error

	// Invalidate drops every tier of core, or everything when core is empty.
	Invalidate(ctx context.Context, core visibility.Core) error
}
