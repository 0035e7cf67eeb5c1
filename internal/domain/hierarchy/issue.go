package hierarchy

import (
	"fmt"
	"sort"
)

// IssueKind classifies a data-integrity problem found while grouping.
type IssueKind string

const (
	IssueInvalidNode           IssueKind = "invalid_node"
	IssueOrphanedNode          IssueKind = "orphaned_node"
	IssueLevelMismatch         IssueKind = "level_mismatch"
	IssueAliasMismatch         IssueKind = "alias_mismatch"
	IssueDuplicateNode         IssueKind = "duplicate_node"
	IssueDifficultyOutOfRange  IssueKind = "difficulty_out_of_range"
	IssueOrphanedConstellation IssueKind = "orphaned_constellation"
	IssueFamilyLevelMismatch   IssueKind = "family_level_mismatch"
	IssueDuplicateGroup        IssueKind = "duplicate_group"
)

// Severity says whether the offending record was excluded.
type Severity string

const (
	// SeverityError issues exclude the record from the tree.
	SeverityError Severity = "error"
	// SeverityWarning issues keep the record, corrected.
	SeverityWarning Severity = "warning"
)

// Issue describes one problem with one record.
type Issue struct {
	Kind            IssueKind `json:"kind"`
	Severity        Severity  `json:"severity"`
	NodeID          string    `json:"node_id,omitempty"`
	ConstellationID string    `json:"constellation_id,omitempty"`
	FamilyID        string    `json:"family_id,omitempty"`
	Message         string    `json:"message"`
}

func (i Issue) String() string {
	subject := i.NodeID
	if subject == "" {
		subject = i.ConstellationID
	}
	if subject == "" {
		subject = i.FamilyID
	}
	return fmt.Sprintf("[%s] %s %s: %s", i.Severity, i.Kind, subject, i.Message)
}

// Report is the outcome of a grouping pass.
type Report struct {
	Issues   []Issue `json:"issues"`
	Accepted int     `json:"accepted"`
	Rejected int     `json:"rejected"`
}

func (r *Report) add(i Issue) {
	r.Issues = append(r.Issues, i)
}

// Count returns how many issues of kind were recorded.
func (r Report) Count(kind IssueKind) int {
	n := 0
	for _, i := range r.Issues {
		if i.Kind == kind {
			n++
		}
	}
	return n
}

// HasErrors reports whether any record was excluded.
func (r Report) HasErrors() bool {
	for _, i := range r.Issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

// Summary counts issues per kind.
func (r Report) Summary() map[string]int {
	out := make(map[string]int)
	for _, i := range r.Issues {
		out[string(i.Kind)]++
	}
	return out
}

// Kinds returns the distinct issue kinds, sorted.
func (r Report) Kinds() []IssueKind {
	seen := make(map[IssueKind]struct{})
	for _, i := range r.Issues {
		seen[i.Kind] = struct{}{}
	}
	out := make([]IssueKind, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Slice(out, func(a, b int) bool { return out[a] < out[b] })
	return out
}
