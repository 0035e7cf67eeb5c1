package hierarchy

import (
	"fmt"
	"sort"
	"strings"

	"github.com/alem-hub/stellar-map/internal/domain/visibility"
)

type familyEntry struct {
	family Family
	index  int
}

type constellationEntry struct {
	constellation Constellation
	family        Family
	index         int
}

// lookup holds the authoritative parents for a grouping pass.
type lookup struct {
	families       map[string]familyEntry
	constellations map[string]constellationEntry
	rejected       map[string]IssueKind
}

func buildLookup(families []Family, constellations []Constellation, core visibility.Core, report *Report) lookup {
	lk := lookup{
		families:       make(map[string]familyEntry, len(families)),
		constellations: make(map[string]constellationEntry, len(constellations)),
		rejected:       make(map[string]IssueKind),
	}

	for i, f := range families {
		if _, dup := lk.families[f.ID]; dup {
			if f.Core == core {
				report.add(Issue{
					Kind: IssueDuplicateGroup, Severity: SeverityWarning, FamilyID: f.ID,
					Message: fmt.Sprintf("family %q repeats an id; first occurrence kept", f.Name),
				})
			}
			continue
		}
		lk.families[f.ID] = familyEntry{family: f, index: i}
	}

	for i, c := range constellations {
		if _, dup := lk.constellations[c.ID]; dup {
			if c.Core == core {
				report.add(Issue{
					Kind: IssueDuplicateGroup, Severity: SeverityWarning, ConstellationID: c.ID,
					Message: fmt.Sprintf("constellation %q repeats an id; first occurrence kept", c.Name),
				})
			}
			continue
		}

		fe, ok := lk.families[c.FamilyID]
		if !ok {
			lk.rejected[c.ID] = IssueOrphanedConstellation
			if c.Core == core {
				report.add(Issue{
					Kind: IssueOrphanedConstellation, Severity: SeverityError, ConstellationID: c.ID,
					FamilyID: c.FamilyID,
					Message:  fmt.Sprintf("constellation %q references unknown family %q", c.Name, c.FamilyID),
				})
			}
			continue
		}
		if fe.family.Core != c.Core {
			lk.rejected[c.ID] = IssueFamilyLevelMismatch
			if c.Core == core || fe.family.Core == core {
				report.add(Issue{
					Kind: IssueFamilyLevelMismatch, Severity: SeverityError, ConstellationID: c.ID,
					FamilyID: fe.family.ID,
					Message: fmt.Sprintf("constellation %q is in core %q but family %q is in core %q",
						c.Name, c.Core, fe.family.Name, fe.family.Core),
				})
			}
			continue
		}
		lk.constellations[c.ID] = constellationEntry{constellation: c, family: fe.family, index: i}
	}

	return lk
}

// Group validates raw nodes against their parents and builds the tree for core.
//
// A node is excluded when it lacks an id, title or constellation reference,
// repeats an id, has a difficulty outside 0-10, references an unknown or
// rejected constellation, or sits in a constellation of another core. Accepted
// nodes take their aliases from the authoritative family and constellation;
// a differing raw alias is reported as a warning.
//
// Families and constellations follow their display order (input order breaks
// ties); nodes follow difficulty, then input order.
func Group(families []Family, constellations []Constellation, nodes []RawNode, core visibility.Core) (Tree, Report) {
	var report Report
	lk := buildLookup(families, constellations, core, &report)

	seen := make(map[string]struct{}, len(nodes))
	buckets := make(map[string][]Node)

	reject := func(i Issue) {
		i.Severity = SeverityError
		report.add(i)
		report.Rejected++
	}

	for _, raw := range nodes {
		id := strings.TrimSpace(raw.ID)
		if id == "" || strings.TrimSpace(raw.Title) == "" || strings.TrimSpace(raw.ConstellationID) == "" {
			reject(Issue{
				Kind: IssueInvalidNode, NodeID: raw.ID, ConstellationID: raw.ConstellationID,
				Message: "node requires id, title and constellation",
			})
			continue
		}

		if _, dup := seen[id]; dup {
			reject(Issue{
				Kind: IssueDuplicateNode, NodeID: id,
				Message: "node id already accepted; first accepted copy kept",
			})
			continue
		}

		if raw.Difficulty < visibility.MinDifficulty || raw.Difficulty > visibility.MaxDifficulty {
			reject(Issue{
				Kind: IssueDifficultyOutOfRange, NodeID: id,
				Message: fmt.Sprintf("difficulty %d outside %d-%d", raw.Difficulty, visibility.MinDifficulty, visibility.MaxDifficulty),
			})
			continue
		}

		ce, ok := lk.constellations[raw.ConstellationID]
		if !ok {
			msg := fmt.Sprintf("constellation %q not found", raw.ConstellationID)
			if kind, wasRejected := lk.rejected[raw.ConstellationID]; wasRejected {
				msg = fmt.Sprintf("constellation %q rejected (%s)", raw.ConstellationID, kind)
			}
			reject(Issue{Kind: IssueOrphanedNode, NodeID: id, ConstellationID: raw.ConstellationID, Message: msg})
			continue
		}

		if ce.constellation.Core != core {
			reject(Issue{
				Kind: IssueLevelMismatch, NodeID: id, ConstellationID: ce.constellation.ID,
				Message: fmt.Sprintf("constellation %q belongs to core %q, not %q", ce.constellation.Name, ce.constellation.Core, core),
			})
			continue
		}

		if mismatch := aliasMismatch(raw, ce); mismatch != "" {
			report.add(Issue{
				Kind: IssueAliasMismatch, Severity: SeverityWarning, NodeID: id,
				ConstellationID: ce.constellation.ID, FamilyID: ce.family.ID,
				Message: mismatch,
			})
		}

		seen[id] = struct{}{}
		buckets[ce.constellation.ID] = append(buckets[ce.constellation.ID], Node{
			ID:                 id,
			Title:              strings.TrimSpace(raw.Title),
			Link:               raw.Link,
			Content:            ResolveContent(raw.Link),
			Difficulty:         raw.Difficulty,
			DifficultyLabel:    raw.DifficultyLabel,
			ConstellationID:    ce.constellation.ID,
			FamilyID:           ce.family.ID,
			FamilyAlias:        ce.family.Name,
			ConstellationAlias: ce.constellation.Name,
			XPThreshold:        raw.XPThreshold,
			XPReward:           raw.XPReward,
			Skills:             raw.Skills,
		})
		report.Accepted++
	}

	return assemble(core, lk, buckets), report
}

// Validate runs Group and returns only the report.
func Validate(families []Family, constellations []Constellation, nodes []RawNode, core visibility.Core) Report {
	_, report := Group(families, constellations, nodes, core)
	return report
}

func aliasMismatch(raw RawNode, ce constellationEntry) string {
	var parts []string
	if raw.FamilyAlias != "" && raw.FamilyAlias != ce.family.Name {
		parts = append(parts, fmt.Sprintf("family alias %q, expected %q", raw.FamilyAlias, ce.family.Name))
	}
	if raw.ConstellationAlias != "" && raw.ConstellationAlias != ce.constellation.Name {
		parts = append(parts, fmt.Sprintf("constellation alias %q, expected %q", raw.ConstellationAlias, ce.constellation.Name))
	}
	return strings.Join(parts, "; ")
}

func assemble(core visibility.Core, lk lookup, buckets map[string][]Node) Tree {
	byFamily := make(map[string][]constellationEntry)
	for cid := range buckets {
		ce := lk.constellations[cid]
		byFamily[ce.family.ID] = append(byFamily[ce.family.ID], ce)
	}

	familyIDs := make([]string, 0, len(byFamily))
	for fid := range byFamily {
		familyIDs = append(familyIDs, fid)
	}
	sort.Slice(familyIDs, func(i, j int) bool {
		a, b := lk.families[familyIDs[i]], lk.families[familyIDs[j]]
		if a.family.DisplayOrder != b.family.DisplayOrder {
			return a.family.DisplayOrder < b.family.DisplayOrder
		}
		return a.index < b.index
	})

	tree := Tree{Core: core, Families: make([]FamilyGroup, 0, len(familyIDs))}
	for _, fid := range familyIDs {
		entries := byFamily[fid]
		sort.Slice(entries, func(i, j int) bool {
			a, b := entries[i], entries[j]
			if a.constellation.DisplayOrder != b.constellation.DisplayOrder {
				return a.constellation.DisplayOrder < b.constellation.DisplayOrder
			}
			return a.index < b.index
		})

		fg := FamilyGroup{Family: lk.families[fid].family}
		for _, ce := range entries {
			nodes := buckets[ce.constellation.ID]
			sort.SliceStable(nodes, func(i, j int) bool { return nodes[i].Difficulty < nodes[j].Difficulty })
			fg.Constellations = append(fg.Constellations, ConstellationGroup{
				Constellation: ce.constellation,
				Nodes:         nodes,
			})
		}
		tree.Families = append(tree.Families, fg)
	}
	return tree
}
