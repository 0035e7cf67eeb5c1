package command_test

import (
	"context"
	"errors"
	"sync"

	"github.com/alem-hub/stellar-map/internal/domain/completion"
	"github.com/alem-hub/stellar-map/internal/domain/hierarchy"
	"github.com/alem-hub/stellar-map/internal/domain/shared"
	"github.com/alem-hub/stellar-map/internal/domain/visibility"
)

var errStoreDown = errors.New("connection reset by peer")

type fakeCompletions struct {
	mu        sync.Mutex
	records   []completion.Record
	findFails int
	finds     int
}

func (s *fakeCompletions) Find(ctx context.Context, learnerID, nodeID string) (*completion.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds++
	if s.findFails > 0 {
		s.findFails--
		return nil, shared.WrapError("completion", "Find", shared.ErrExternalService, "fake", errStoreDown)
	}
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
	var out []completion.Record
	for _, r := range s.records {
		if r.LearnerID == learnerID {
			out = append(out, r)
		}
	}
	return out, nil
}

type fakeProfiles struct {
	mu     sync.Mutex
	xp     map[string]int64
	addErr error
	adds   int
}

func (p *fakeProfiles) GetExperience(ctx context.Context, learnerID string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	v, ok := p.xp[learnerID]
	if !ok {
		return 0, shared.ErrProfileNotFound
	}
	return v, nil
}

func (p *fakeProfiles) AddExperience(ctx context.Context, learnerID string, delta int64, reason, nodeID string) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.adds++
	if p.addErr != nil {
		return 0, p.addErr
	}
	if p.xp == nil {
		p.xp = make(map[string]int64)
	}
	p.xp[learnerID] += delta
	return p.xp[learnerID], nil
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

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) types() []shared.EventType {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]shared.EventType, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.EventType())
	}
	return out
}

type fakeTreeCache struct {
	mu          sync.Mutex
	invalidated []visibility.Core
}

func (c *fakeTreeCache) Get(ctx context.Context, core visibility.Core, tier visibility.Tier) (hierarchy.Grouped, bool, error) {
	return hierarchy.Grouped{}, false, nil
}

func (c *fakeTreeCache) Set(ctx context.Context, core visibility.Core, tier visibility.Tier, g hierarchy.Grouped) error {
	return nil
}

func (c *fakeTreeCache) Invalidate(ctx context.Context, core visibility.Core) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, core)
	return nil
}

type fakeNodes struct {
	mu      sync.Mutex
	nodes   map[string]hierarchy.RawNode
	fails   int
	lookups int
}

func (n *fakeNodes) FindNode(ctx context.Context, id string) (hierarchy.RawNode, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.lookups++
	if n.fails > 0 {
		n.fails--
		return hierarchy.RawNode{}, shared.WrapError("content", "FindNode", shared.ErrExternalService, "fake", errStoreDown)
	}
	node, ok := n.nodes[id]
	if !ok {
		return hierarchy.RawNode{}, shared.ErrNodeNotFound
	}
	return node, nil
}
