package query_test

import (
	"context"
	"errors"
	"sync"

	"github.com/alem-hub/stellar-map/internal/domain/completion"
	"github.com/alem-hub/stellar-map/internal/domain/hierarchy"
	"github.com/alem-hub/stellar-map/internal/domain/shared"
	"github.com/alem-hub/stellar-map/internal/domain/visibility"
)

var errStoreDown = errors.New("connection refused")

type fakeContent struct {
	mu             sync.Mutex
	families       []hierarchy.Family
	constellations []hierarchy.Constellation
	nodes          map[visibility.Core][]hierarchy.RawNode
	queries        []hierarchy.NodeQuery
	err            error

	// When gate is set, ListNodes reports on entered and waits for gate.
	gate    chan struct{}
	entered chan struct{}
}

func newFakeContent() *fakeContent {
	return &fakeContent{
		families: []hierarchy.Family{
			{ID: "f1", Name: "Foundations", Core: visibility.Ignition},
			{ID: "f2", Name: "Systems", Core: visibility.Insight},
		},
		constellations: []hierarchy.Constellation{
			{ID: "c1", Name: "Shell", FamilyID: "f1", Core: visibility.Ignition},
			{ID: "c2", Name: "Networks", FamilyID: "f2", Core: visibility.Insight},
		},
		nodes: map[visibility.Core][]hierarchy.RawNode{
			visibility.Ignition: {
				{ID: "n1", Title: "Intro", Difficulty: 1, ConstellationID: "c1"},
				{ID: "n4", Title: "Pipes", Difficulty: 4, ConstellationID: "c1", XPThreshold: 3750},
				{ID: "n5", Title: "Jobs", Difficulty: 5, ConstellationID: "c1", XPThreshold: 9000},
				{ID: "n7", Title: "Signals", Difficulty: 7, ConstellationID: "c1", XPThreshold: 7500},
				{ID: "bad", Title: "Lost", Difficulty: 2, ConstellationID: "c2"},
			},
			visibility.Insight: {
				{ID: "i1", Title: "Sockets", Difficulty: 0, ConstellationID: "c2"},
			},
		},
	}
}

func (f *fakeContent) ListFamilies(ctx context.Context) ([]hierarchy.Family, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.families, nil
}

func (f *fakeContent) ListConstellations(ctx context.Context) ([]hierarchy.Constellation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.constellations, nil
}

func (f *fakeContent) ListNodes(ctx context.Context, q hierarchy.NodeQuery) ([]hierarchy.RawNode, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	gate, entered := f.gate, f.entered
	f.mu.Unlock()
	if gate != nil {
		select {
		case entered <- struct{}{}:
		default:
		}
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	var out []hierarchy.RawNode
	for _, n := range f.nodes[q.Core] {
		if !q.Range.Contains(n.Difficulty) {
			continue
		}
		if q.MaxUnlockXP != nil && n.XPThreshold > *q.MaxUnlockXP {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeContent) nodeQueries() []hierarchy.NodeQuery {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]hierarchy.NodeQuery(nil), f.queries...)
}

type fakeTreeCache struct {
	mu      sync.Mutex
	entries map[string]hierarchy.Grouped
}

func newFakeTreeCache() *fakeTreeCache {
	return &fakeTreeCache{entries: make(map[string]hierarchy.Grouped)}
}

func (c *fakeTreeCache) Get(ctx context.Context, core visibility.Core, tier visibility.Tier) (hierarchy.Grouped, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.entries[string(core)+":"+tier.String()]
	return g, ok, nil
}

func (c *fakeTreeCache) Set(ctx context.Context, core visibility.Core, tier visibility.Tier, g hierarchy.Grouped) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[string(core)+":"+tier.String()] = g
	return nil
}

func (c *fakeTreeCache) Invalidate(ctx context.Context, core visibility.Core) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]hierarchy.Grouped)
	return nil
}

type fakeProfiles struct {
	mu  sync.Mutex
	xp  map[string]int64
	err error
}

func (p *fakeProfiles) GetExperience(ctx context.Context, learnerID string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	v, ok := p.xp[learnerID]
	if !ok {
		return 0, shared.ErrProfileNotFound
	}
	return v, nil
}

func (p *fakeProfiles) AddExperience(ctx context.Context, learnerID string, delta int64, reason, nodeID string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return 0, p.err
	}
	if p.xp == nil {
		p.xp = make(map[string]int64)
	}
	p.xp[learnerID] += delta
	return p.xp[learnerID], nil
}

type fakeCompletions struct {
	mu      sync.Mutex
	records []completion.Record
	lists   int
}

func (s *fakeCompletions) Find(ctx context.Context, learnerID, nodeID string) (*completion.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.LearnerID == learnerID && r.NodeID == nodeID {
			rec := r
			return &rec, nil
		}
	}
	return nil, shared.ErrCompletionNotFound
}

func (s *fakeCompletions) Insert(ctx context.Context, rec completion.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.records {
		if r.LearnerID == rec.LearnerID && r.NodeID == rec.NodeID {
			return shared.ErrCompletionExists
		}
	}
	s.records = append(s.records, rec)
	return nil
}

func (s *fakeCompletions) ListByLearner(ctx context.Context, learnerID string) ([]completion.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lists++
	var out []completion.Record
	for _, r := range s.records {
		if r.LearnerID == learnerID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeCompletionCache struct {
	mu   sync.Mutex
	sets map[string][]string
}

func (c *fakeCompletionCache) Load(ctx context.Context, learnerID string) ([]string, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids, ok := c.sets[learnerID]
	return ids, ok, nil
}

func (c *fakeCompletionCache) Store(ctx context.Context, learnerID string, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sets == nil {
		c.sets = make(map[string][]string)
	}
	c.sets[learnerID] = append([]string{}, ids...)
	return nil
}

func (c *fakeCompletionCache) Add(ctx context.Context, learnerID, nodeID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ids, ok := c.sets[learnerID]; ok {
		c.sets[learnerID] = append(ids, nodeID)
	}
	return nil
}
