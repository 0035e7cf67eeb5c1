package query

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/stellar-map/internal/domain/hierarchy"
	"github.com/alem-hub/stellar-map/internal/domain/shared"
	"github.com/alem-hub/stellar-map/internal/domain/visibility"
	"github.com/alem-hub/stellar-map/internal/infrastructure/observability"
	"github.com/alem-hub/stellar-map/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// VALIDATE HIERARCHY QUERY
// Checks every stored node of one or all cores against the family and
// constellation catalog without building a tree.
// ══════════════════════════════════════════════════════════════════════════════

// fullRange covers every difficulty a node may legally have.
var fullRange = visibility.DifficultyRange{Min: 0, Max: 10}

// ValidateHierarchyQuery selects the cores to audit. Empty Core audits all.
type ValidateHierarchyQuery struct {
	Core string
}

// CoreReport is the audit result for one core.
type CoreReport struct {
	Core   visibility.Core  `json:"core"`
	Report hierarchy.Report `json:"report"`
}

// ValidateHierarchyResult lists one report per audited core.
type ValidateHierarchyResult struct {
	Cores     []CoreReport `json:"cores"`
	CheckedAt time.Time    `json:"checked_at"`
}

// HasErrors reports whether any core has error-level issues.
func (r *ValidateHierarchyResult) HasErrors() bool {
	for _, c := range r.Cores {
		if c.Report.HasErrors() {
			return true
		}
	}
	return false
}

// TotalIssues counts issues across all cores.
func (r *ValidateHierarchyResult) TotalIssues() int {
	n := 0
	for _, c := range r.Cores {
		n += len(c.Report.Issues)
	}
	return n
}

// ValidateHierarchyHandler serves ValidateHierarchyQuery.
type ValidateHierarchyHandler struct {
	classifier *visibility.Classifier
	content    hierarchy.ContentStore
	log        *logger.Logger
	now        func() time.Time
}

// NewValidateHierarchyHandler creates the handler.
func NewValidateHierarchyHandler(classifier *visibility.Classifier, content hierarchy.ContentStore, log *logger.Logger) *ValidateHierarchyHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &ValidateHierarchyHandler{
		classifier: classifier,
		content:    content,
		log:        log.With(logger.Component("validate_hierarchy")),
		now:        time.Now,
	}
}

// Handle audits the requested cores. Families and constellations are loaded
// once and shared by every core.
func (h *ValidateHierarchyHandler) Handle(ctx context.Context, q ValidateHierarchyQuery) (result *ValidateHierarchyResult, err error) {
	ctx, span := observability.StartSpan(ctx, "stellar.validate_hierarchy", attribute.String("core", q.Core))
	defer func() { observability.EndSpan(span, err) }()

	cores := h.classifier.Cores()
	if strings.TrimSpace(q.Core) != "" {
		core, ok := h.classifier.ParseCore(q.Core)
		if !ok {
			return nil, shared.NewDomainError("query", "ValidateHierarchy", shared.ErrInvalidInput, "unknown core "+q.Core)
		}
		cores = []visibility.Core{core}
	}

	var (
		families       []hierarchy.Family
		constellations []hierarchy.Constellation
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		families, err = h.content.ListFamilies(gctx)
		return err
	})
	g.Go(func() (err error) {
		constellations, err = h.content.ListConstellations(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, shared.WrapError("query", "ValidateHierarchy", shared.ErrExternalService, "load catalog", err)
	}

	reports := make([]CoreReport, len(cores))
	g, gctx = errgroup.WithContext(ctx)
	for i, core := range cores {
		i, core := i, core
		g.Go(func() error {
			nodes, err := h.content.ListNodes(gctx, hierarchy.NodeQuery{Core: core, Range: fullRange})
			if err != nil {
				return err
			}
			reports[i] = CoreReport{
				Core:   core,
				Report: hierarchy.Validate(families, constellations, nodes, core),
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, shared.WrapError("query", "ValidateHierarchy", shared.ErrExternalService, "load nodes", err)
	}

	for _, r := range reports {
		h.log.Info("hierarchy audited",
			logger.Core(string(r.Core)),
			logger.Int("accepted", r.Report.Accepted),
			logger.Int("rejected", r.Report.Rejected),
			logger.Int("issues", len(r.Report.Issues)),
		)
	}

	return &ValidateHierarchyResult{Cores: reports, CheckedAt: h.now().UTC()}, nil
}
