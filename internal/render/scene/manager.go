// Package scene owns the per-core 3D scenes of the Stellar Map: their
// lifecycle, the layout of grouped nodes into a headless scene graph, and the
// single animation clock that drives every open scene.
package scene

import (
	"context"
	"sync"
	"time"

	"github.com/alem-hub/stellar-map/internal/domain/hierarchy"
	"github.com/alem-hub/stellar-map/internal/domain/shared"
	"github.com/alem-hub/stellar-map/internal/domain/visibility"
	"github.com/alem-hub/stellar-map/pkg/logger"
)

// Presenter receives frames from the manager. Implementations upload frame
// data to a real renderer; the manager never calls a rendering library itself.
type Presenter interface {
	Present(core visibility.Core, frame Frame)
	Release(core visibility.Core)
}

// Frame is what a Presenter gets for one scene on one tick.
type Frame struct {
	Time       float64
	Camera     Camera
	Target     Vec3
	Generation uint64
	// Objects are copies; the presenter may keep them after Present returns.
	Objects []MeshState
}

// TickStats reports what one Tick did.
type TickStats struct {
	Updated []visibility.Core
	Skipped []visibility.Core
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithLogger sets the manager logger.
func WithLogger(log *logger.Logger) ManagerOption {
	return func(m *Manager) { m.log = log.With(logger.Component("scene")) }
}

// WithPresenter sets where frames are sent after each tick.
func WithPresenter(p Presenter) ManagerOption {
	return func(m *Manager) { m.presenter = p }
}

// WithLinks toggles the white links between nodes of a constellation.
func WithLinks(show bool) ManagerOption {
	return func(m *Manager) { m.showLinks = show }
}

// WithClock replaces the time source used by Run.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) { m.now = now }
}

// Manager holds at most one active scene per core. OpenScene and CloseScene
// are the only calls that change which scenes exist.
type Manager struct {
	mu        sync.Mutex
	scenes    map[visibility.Core]*Scene
	presenter Presenter
	showLinks bool
	log       *logger.Logger
	now       func() time.Time
	started   time.Time
	closed    bool
}

// NewManager creates an empty Manager.
func NewManager(opts ...ManagerOption) *Manager {
	m := &Manager{
		scenes:    make(map[visibility.Core]*Scene),
		showLinks: true,
		log:       logger.Nop(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.started = m.now()
	return m
}

// OpenScene creates the scene for core on surface. When the surface has a
// zero dimension it returns a nil handle and ErrSurfaceNotReady; the caller
// may retry once the surface is laid out. Opening a core that already has an
// active scene returns that scene.
func (m *Manager) OpenScene(core visibility.Core, surface Surface) (*Scene, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, shared.WrapError("scene", "OpenScene", shared.ErrInvalidState, "manager closed", shared.ErrSceneDisposed)
	}
	if s, ok := m.scenes[core]; ok {
		return s, nil
	}
	if surface == nil {
		return nil, shared.ErrSurfaceNotReady
	}
	w, h := surface.Size()
	if w <= 0 || h <= 0 {
		m.log.Debug("surface not ready", logger.Core(string(core)), logger.Int("width", w), logger.Int("height", h))
		return nil, shared.ErrSurfaceNotReady
	}

	s := &Scene{
		core:     core,
		surface:  surface,
		width:    w,
		height:   h,
		camera:   newCamera(w, h),
		controls: newControls(),
		state:    StateActive,
	}
	s.build()
	m.scenes[core] = s

	m.log.Info("scene opened", logger.Core(string(core)), logger.Int("width", w), logger.Int("height", h))
	return s, nil
}

// Scene returns the active scene for core.
func (m *Manager) Scene(core visibility.Core) (*Scene, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scenes[core]
	return s, ok
}

// Open returns the cores with an active scene.
func (m *Manager) Open() []visibility.Core {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]visibility.Core, 0, len(m.scenes))
	for c := range m.scenes {
		out = append(out, c)
	}
	return out
}

// RenderNodes replaces the node representation of core's scene with tree.
func (m *Manager) RenderNodes(core visibility.Core, tree hierarchy.Tree) (RenderResult, error) {
	s, err := m.active(core, "RenderNodes")
	if err != nil {
		return RenderResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkActive("RenderNodes"); err != nil {
		return RenderResult{}, err
	}
	res := s.replaceNodes(tree, m.showLinks)

	m.log.Debug("nodes rendered",
		logger.Core(string(core)),
		logger.Int("nodes", len(res.Meshes)),
		logger.Int("constellations", len(res.AnchorsByID)),
		logger.Any("generation", res.Generation),
	)
	return res, nil
}

// CloseScene releases every resource of core's scene. Closing a core with no
// active scene is a no-op.
func (m *Manager) CloseScene(core visibility.Core) {
	m.mu.Lock()
	s, ok := m.scenes[core]
	delete(m.scenes, core)
	m.mu.Unlock()
	if !ok {
		return
	}

	s.mu.Lock()
	s.dispose()
	s.mu.Unlock()

	if m.presenter != nil {
		m.presenter.Release(core)
	}
	m.log.Info("scene closed", logger.Core(string(core)))
}

// Resize updates core's surface size and camera aspect. Non-positive sizes
// are ignored.
func (m *Manager) Resize(core visibility.Core, width, height int) error {
	s, err := m.active(core, "Resize")
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.checkActive("Resize"); err != nil {
		return err
	}
	s.resize(width, height)
	return nil
}

// Tick advances every open scene to time t, in seconds. Scenes whose surface
// is hidden are skipped but keep their resources.
func (m *Manager) Tick(t float64) TickStats {
	m.mu.Lock()
	scenes := make([]*Scene, 0, len(m.scenes))
	for _, s := range m.scenes {
		scenes = append(scenes, s)
	}
	m.mu.Unlock()

	var stats TickStats
	for _, s := range scenes {
		if !s.surface.Visible() {
			stats.Skipped = append(stats.Skipped, s.core)
			continue
		}

		s.mu.Lock()
		if s.state != StateActive {
			s.mu.Unlock()
			continue
		}
		s.tick(t)
		var frame Frame
		if m.presenter != nil {
			frame = Frame{
				Time:       t,
				Camera:     s.camera,
				Target:     s.controls.Target,
				Generation: s.generation,
				Objects:    s.snapshot(),
			}
		}
		s.mu.Unlock()

		if m.presenter != nil {
			m.presenter.Present(s.core, frame)
		}
		stats.Updated = append(stats.Updated, s.core)
	}
	return stats
}

// Run ticks all scenes every interval until ctx is done or the manager is
// closed.
func (m *Manager) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = 16 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.log.Info("render loop started", logger.Duration("interval", interval))
	for {
		select {
		case <-ctx.Done():
			m.log.Info("render loop stopped")
			return nil
		case <-ticker.C:
			m.mu.Lock()
			closed := m.closed
			m.mu.Unlock()
			if closed {
				return nil
			}
			m.Tick(m.now().Sub(m.started).Seconds())
		}
	}
}

// Close disposes every scene. The manager cannot open scenes afterwards.
func (m *Manager) Close() {
	m.mu.Lock()
	cores := make([]visibility.Core, 0, len(m.scenes))
	for c := range m.scenes {
		cores = append(cores, c)
	}
	m.closed = true
	m.mu.Unlock()

	for _, c := range cores {
		m.CloseScene(c)
	}
}

func (m *Manager) active(core visibility.Core, op string) (*Scene, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.scenes[core]
	if !ok {
		return nil, shared.WrapError("scene", op, shared.ErrNotFound, string(core), shared.ErrSceneNotFound)
	}
	return s, nil
}
