// Package query contains read operations following CQRS pattern.
// Queries never modify state - they only read and return data.
// Each query is a self-contained use case with its own request/response types.
package query

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/alem-hub/stellar-map/internal/domain/completion"
	"github.com/alem-hub/stellar-map/internal/domain/hierarchy"
	"github.com/alem-hub/stellar-map/internal/domain/shared"
	"github.com/alem-hub/stellar-map/internal/domain/visibility"
	"github.com/alem-hub/stellar-map/internal/infrastructure/observability"
	"github.com/alem-hub/stellar-map/pkg/circuitbreaker"
	"github.com/alem-hub/stellar-map/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET STELLAR MAP QUERY
// Loads the grouped hierarchy a learner may see in one core, together with
// the learner's tier and completed nodes.
// ══════════════════════════════════════════════════════════════════════════════

// GetStellarMapQuery selects the map to load.
type GetStellarMapQuery struct {
	// LearnerID is used for experience and completions. Empty loads an
	// anonymous map at XP (or 0).
	LearnerID string

	// Core is matched case-insensitively. An unknown core yields the Fog tier.
	Core string

	// XP overrides the stored experience total when set.
	XP *int64
}

// Validate checks the query.
func (q GetStellarMapQuery) Validate() error {
	if strings.TrimSpace(q.Core) == "" {
		return shared.NewDomainError("query", "GetStellarMap", shared.ErrEmptyValue, "core is required")
	}
	if q.XP != nil && *q.XP < 0 {
		return shared.NewDomainError("query", "GetStellarMap", shared.ErrNegativeValue, "xp cannot be negative")
	}
	return nil
}

// GetStellarMapResult is the data needed to render one core.
type GetStellarMapResult struct {
	Classification visibility.Classification `json:"classification"`
	Tree           hierarchy.Tree            `json:"tree"`
	Report         hierarchy.Report          `json:"report"`
	Completed      []string                  `json:"completed"`
	FromCache      bool                      `json:"from_cache"`
	GeneratedAt    time.Time                 `json:"generated_at"`
}

// IsCompleted reports whether nodeID is among the learner's completions.
func (r *GetStellarMapResult) IsCompleted(nodeID string) bool {
	for _, id := range r.Completed {
		if id == nodeID {
			return true
		}
	}
	return false
}

// MapOptions tunes GetStellarMapHandler.
type MapOptions struct {
	// EnforceNodeUnlockXP also hides nodes whose own unlock threshold exceeds
	// the learner's experience. Such maps are per learner and bypass the
	// tree cache.
	EnforceNodeUnlockXP bool

	// SharedLoadTimeout bounds a store load shared by concurrent callers.
	// It runs detached from any single caller's cancellation. Zero means
	// DefaultSharedLoadTimeout.
	SharedLoadTimeout time.Duration
}

// DefaultSharedLoadTimeout is used when MapOptions.SharedLoadTimeout is zero.
const DefaultSharedLoadTimeout = 30 * time.Second

// GetStellarMapHandler serves GetStellarMapQuery.
type GetStellarMapHandler struct {
	classifier  *visibility.Classifier
	content     hierarchy.ContentStore
	profiles    completion.ProfileStore
	ledger      *completion.Ledger
	trees       hierarchy.TreeCache
	completions completion.Cache
	breaker     *circuitbreaker.CircuitBreaker
	log         *logger.Logger
	opts        MapOptions
	group       singleflight.Group
	now         func() time.Time
}

// NewGetStellarMapHandler creates the handler. trees, completions and
// breaker may be nil.
func NewGetStellarMapHandler(
	classifier *visibility.Classifier,
	content hierarchy.ContentStore,
	profiles completion.ProfileStore,
	ledger *completion.Ledger,
	trees hierarchy.TreeCache,
	completions completion.Cache,
	breaker *circuitbreaker.CircuitBreaker,
	log *logger.Logger,
	opts MapOptions,
) *GetStellarMapHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &GetStellarMapHandler{
		classifier:  classifier,
		content:     content,
		profiles:    profiles,
		ledger:      ledger,
		trees:       trees,
		completions: completions,
		breaker:     breaker,
		log:         log.With(logger.Component("get_stellar_map")),
		opts:        opts,
		now:         time.Now,
	}
}

// Handle loads the map. A content store failure is returned as an
// ExternalService error; cache failures are logged and bypassed.
func (h *GetStellarMapHandler) Handle(ctx context.Context, q GetStellarMapQuery) (result *GetStellarMapResult, err error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	ctx, span := observability.StartSpan(ctx, "stellar.get_map",
		attribute.String("core", q.Core),
		attribute.String("learner_id", q.LearnerID),
	)
	defer func() { observability.EndSpan(span, err) }()

	core, ok := h.classifier.ParseCore(q.Core)
	if !ok {
		core = visibility.Core(strings.TrimSpace(q.Core))
		h.log.Warn("unknown core, using lowest tier", logger.Core(string(core)))
	}

	var xp int64
	var completed []string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		v, err := h.experience(gctx, q)
		xp = v
		return err
	})
	g.Go(func() error {
		ids, err := h.completed(gctx, q.LearnerID)
		completed = ids
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	cls := h.classifier.Classify(core, xp)
	span.SetAttributes(attribute.String("tier", cls.Tier.String()), attribute.Int64("xp", xp))

	grouped, cached, err := h.grouped(ctx, cls)
	if err != nil {
		return nil, err
	}

	if n := len(grouped.Report.Issues); n > 0 {
		h.log.Warn("hierarchy issues",
			logger.Core(string(core)),
			logger.Int("issues", n),
			logger.Any("summary", grouped.Report.Summary()),
		)
	}

	return &GetStellarMapResult{
		Classification: cls,
		Tree:           grouped.Tree,
		Report:         grouped.Report,
		Completed:      completed,
		FromCache:      cached,
		GeneratedAt:    h.now().UTC(),
	}, nil
}

func (h *GetStellarMapHandler) experience(ctx context.Context, q GetStellarMapQuery) (int64, error) {
	if q.XP != nil {
		return *q.XP, nil
	}
	if q.LearnerID == "" || h.profiles == nil {
		return 0, nil
	}
	var xp int64
	err := h.guard(ctx, func(ctx context.Context) error {
		v, err := h.profiles.GetExperience(ctx, q.LearnerID)
		xp = v
		return err
	})
	switch {
	case err == nil:
		return xp, nil
	case shared.IsNotFound(err):
		return 0, nil
	default:
		return 0, shared.WrapError("query", "GetStellarMap", shared.ErrExternalService, "load experience", err)
	}
}

func (h *GetStellarMapHandler) completed(ctx context.Context, learnerID string) ([]string, error) {
	if learnerID == "" || h.ledger == nil {
		return nil, nil
	}
	if h.completions != nil {
		ids, ok, err := h.completions.Load(ctx, learnerID)
		if err != nil {
			h.log.Warn("completion cache read failed", logger.LearnerID(learnerID), logger.Err(err))
		} else if ok {
			return ids, nil
		}
	}

	ids, err := h.ledger.Completed(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	if h.completions != nil {
		if err := h.completions.Store(ctx, learnerID, ids); err != nil {
			h.log.Warn("completion cache write failed", logger.LearnerID(learnerID), logger.Err(err))
		}
	}
	return ids, nil
}

// grouped returns the tree for a classification, sharing one store load
// between concurrent callers of the same core and tier.
func (h *GetStellarMapHandler) grouped(ctx context.Context, cls visibility.Classification) (hierarchy.Grouped, bool, error) {
	if h.opts.EnforceNodeUnlockXP {
		xp := cls.XP
		g, err := h.load(ctx, cls, &xp)
		return g, false, err
	}

	if h.trees != nil {
		g, ok, err := h.trees.Get(ctx, cls.Core, cls.Tier)
		if err != nil {
			h.log.Warn("tree cache read failed", logger.Core(string(cls.Core)), logger.Err(err))
		} else if ok {
			return g, true, nil
		}
	}

	timeout := h.opts.SharedLoadTimeout
	if timeout <= 0 {
		timeout = DefaultSharedLoadTimeout
	}
	key := string(cls.Core) + ":" + cls.Tier.String()
	ch := h.group.DoChan(key, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()

		g, err := h.load(ctx, cls, nil)
		if err != nil {
			return hierarchy.Grouped{}, err
		}
		if h.trees != nil {
			if err := h.trees.Set(ctx, cls.Core, cls.Tier, g); err != nil {
				h.log.Warn("tree cache write failed", logger.Core(string(cls.Core)), logger.Err(err))
			}
		}
		return g, nil
	})

	select {
	case <-ctx.Done():
		return hierarchy.Grouped{}, false, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return hierarchy.Grouped{}, false, res.Err
		}
		return res.Val.(hierarchy.Grouped), false, nil
	}
}

func (h *GetStellarMapHandler) load(ctx context.Context, cls visibility.Classification, maxUnlock *int64) (hierarchy.Grouped, error) {
	ctx, span := observability.StartSpan(ctx, "stellar.load_hierarchy",
		attribute.String("core", string(cls.Core)),
		attribute.String("tier", cls.Tier.String()),
	)
	start := time.Now()

	var (
		families       []hierarchy.Family
		constellations []hierarchy.Constellation
		nodes          []hierarchy.RawNode
	)
	err := h.guard(ctx, func(ctx context.Context) error {
		g, gctx := errgroup.WithContext(ctx)
		g.Go(func() (err error) {
			families, err = h.content.ListFamilies(gctx)
			return err
		})
		g.Go(func() (err error) {
			constellations, err = h.content.ListConstellations(gctx)
			return err
		})
		g.Go(func() (err error) {
			nodes, err = h.content.ListNodes(gctx, hierarchy.NodeQuery{
				Core:        cls.Core,
				Range:       cls.Range,
				MaxUnlockXP: maxUnlock,
			})
			return err
		})
		return g.Wait()
	})
	if err != nil {
		err = shared.WrapError("query", "GetStellarMap", shared.ErrExternalService, "load hierarchy", err)
		observability.EndSpan(span, err)
		return hierarchy.Grouped{}, err
	}

	tree, report := hierarchy.Group(families, constellations, nodes, cls.Core)
	span.SetAttributes(attribute.Int("accepted", report.Accepted), attribute.Int("rejected", report.Rejected))
	observability.EndSpan(span, nil)

	h.log.Debug("hierarchy loaded",
		logger.Core(string(cls.Core)),
		logger.Tier(cls.Tier.String()),
		logger.Int("nodes", tree.NodeCount()),
		logger.Latency(time.Since(start)),
	)
	return hierarchy.Grouped{Tree: tree, Report: report}, nil
}

func (h *GetStellarMapHandler) guard(ctx context.Context, fn func(context.Context) error) error {
	if h.breaker == nil {
		return fn(ctx)
	}
	return h.breaker.Execute(ctx, fn)
}
