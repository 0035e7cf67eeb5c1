package commands

import (
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/fatih/color"

	"github.com/alem-hub/stellar-map/internal/application/query"
)

var (
	okColor   = color.New(color.FgGreen)
	warnColor = color.New(color.FgYellow)
	failColor = color.New(color.FgRed, color.Bold)
)

// printAuditSummary writes one colored line per core. NO_COLOR disables colors.
func printAuditSummary(w io.Writer, result *query.ValidateHierarchyResult) {
	for _, cr := range result.Cores {
		r := cr.Report
		switch {
		case r.HasErrors():
			failColor.Fprintf(w, "✗ %s: %d accepted, %d rejected (%s)\n", cr.Core, r.Accepted, r.Rejected, issueCounts(r.Summary()))
		case len(r.Issues) > 0:
			warnColor.Fprintf(w, "! %s: %d accepted (%s)\n", cr.Core, r.Accepted, issueCounts(r.Summary()))
		default:
			okColor.Fprintf(w, "✓ %s: %d accepted\n", cr.Core, r.Accepted)
		}
	}
}

func issueCounts(summary map[string]int) string {
	kinds := make([]string, 0, len(summary))
	for k := range summary {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	parts := make([]string, 0, len(kinds))
	for _, k := range kinds {
		parts = append(parts, k+"="+strconv.Itoa(summary[k]))
	}
	return strings.Join(parts, ", ")
}
