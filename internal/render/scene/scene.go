package scene

import (
	"math"
	"sync"

	"github.com/alem-hub/stellar-map/internal/domain/hierarchy"
	"github.com/alem-hub/stellar-map/internal/domain/shared"
	"github.com/alem-hub/stellar-map/internal/domain/visibility"
)

// State is the lifecycle state of a scene.
type State int

const (
	StateUninitialized State = iota
	StateActive
	StateDisposed
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateActive:
		return "active"
	case StateDisposed:
		return "disposed"
	default:
		return "unknown"
	}
}

// Surface is the host area a scene draws into.
type Surface interface {
	// Size returns the drawable size in pixels.
	Size() (width, height int)
	// Visible reports whether the surface is currently shown.
	Visible() bool
}

// Scene is the handle for one core's 3D context. It is created by
// Manager.OpenScene and stays valid until CloseScene; after that every
// method is a no-op or reports ErrSceneDisposed.
type Scene struct {
	mu sync.Mutex

	core    visibility.Core
	surface Surface
	state   State

	width, height int
	camera        Camera
	controls      Controls

	sun, corona, flares *Mesh
	furniture           []*Mesh

	objects    []*Mesh
	nodes      []*Mesh
	anchors    map[string]Vec3
	anchorByID map[string]Vec3
	nodeIndex  map[string]*Mesh
	generation uint64

	resources Resources
	time      float64
	frames    uint64
}

// Core returns the core the scene renders.
func (s *Scene) Core() visibility.Core { return s.core }

// State returns the scene lifecycle state.
func (s *Scene) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Generation increments every time RenderNodes replaces the node set.
func (s *Scene) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Resources returns the live resource counts.
func (s *Scene) Resources() Resources {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.resources
}

// Frames returns how many ticks have updated this scene.
func (s *Scene) Frames() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.frames
}

// Objects returns every mesh currently in the scene, furniture included.
func (s *Scene) Objects() []*Mesh {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Mesh, 0, len(s.furniture)+len(s.objects))
	out = append(out, s.furniture...)
	return append(out, s.objects...)
}

// Pose is the camera state needed to cast pointer rays.
type Pose struct {
	Camera     Camera
	Target     Vec3
	Width      int
	Height     int
	Generation uint64
}

// Pose returns the current camera pose, or false if the scene is not active.
func (s *Scene) Pose() (Pose, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return Pose{}, false
	}
	return Pose{
		Camera:     s.camera,
		Target:     s.controls.Target,
		Width:      s.width,
		Height:     s.height,
		Generation: s.generation,
	}, true
}

// Pickables returns the pickable node meshes of the current render and its
// generation, or false if the scene is not active.
func (s *Scene) Pickables() ([]*Mesh, uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return nil, 0, false
	}
	out := make([]*Mesh, 0, len(s.nodes))
	for _, m := range s.nodes {
		if m.pickable {
			out = append(out, m)
		}
	}
	return out, s.generation, true
}

// Pick returns the nearest titled, live mesh among candidates that ray hits,
// and a copy of its payload. It reports false when nothing is hit or the
// scene is no longer active.
func (s *Scene) Pick(ray Ray, candidates []*Mesh) (*Mesh, NodePayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return nil, NodePayload{}, false
	}

	var best *Mesh
	bestDist := math.Inf(1)
	for _, m := range candidates {
		if m == nil || m.payload == nil || m.payload.Title == "" || m.disposed() {
			continue
		}
		if d, hit := ray.IntersectSphere(m.position, m.radius()); hit && d < bestDist {
			best, bestDist = m, d
		}
	}
	if best == nil {
		return nil, NodePayload{}, false
	}
	return best, *best.payload, true
}

// Anchor returns the center of the named constellation from the last render.
func (s *Scene) Anchor(constellation string) (Vec3, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.anchors[constellation]
	return p, ok
}

// NodePosition returns the position of a rendered node.
func (s *Scene) NodePosition(nodeID string) (Vec3, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.nodeIndex[nodeID]
	if !ok {
		return Vec3{}, false
	}
	return m.position, true
}

// SetEmphasis sets a node mesh's scale and opacity. It reports false, and
// changes nothing, when the mesh is not part of the scene's current node set.
func (s *Scene) SetEmphasis(m *Mesh, scale, opacity float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive || m == nil || m.generation != s.generation || m.kind != KindNode || m.disposed() {
		return false
	}
	m.scale = scale
	if m.material != nil {
		m.material.Opacity = opacity
	}
	return true
}

// Focus places the camera at distance from target along its current view
// direction and makes target the orbit center. It returns the resulting
// camera position, or false when the scene is not active.
func (s *Scene) Focus(target Vec3, distance float64) (Vec3, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateActive {
		return Vec3{}, false
	}
	s.controls.Target = target
	PlaceCamera(&s.camera, target, distance)
	s.controls.Update(&s.camera)
	return s.camera.Position, true
}

// Camera returns a copy of the camera and the orbit target.
func (s *Scene) Camera() (Camera, Vec3) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.camera, s.controls.Target
}

// RenderResult is what RenderNodes hands back to the caller.
type RenderResult struct {
	Generation uint64
	Meshes     []*Mesh
	// Anchors maps constellation name to its center.
	Anchors map[string]Vec3
	// AnchorsByID maps constellation id to its center.
	AnchorsByID map[string]Vec3
}

func (s *Scene) build() {
	style := StyleForCore(s.core)
	seen := make(map[*Material]struct{})

	s.sun = newMesh(KindSun, Vec3{},
		&Geometry{Kind: GeometrySphere, Radius: 1},
		&Material{Color: style.SurfaceColor, Opacity: 1, Uniforms: map[string]float64{"time": 0}})
	s.corona = newMesh(KindCorona, Vec3{},
		&Geometry{Kind: GeometrySphere, Radius: 1.25},
		&Material{Color: style.CoronaColor, Opacity: 0.7, Transparent: true, Uniforms: map[string]float64{"time": 0}})

	points, sizes := flarePoints(s.core, style.FlareCount)
	s.flares = newMesh(KindFlares, Vec3{},
		&Geometry{Kind: GeometryPoints, Points: points, Sizes: sizes},
		&Material{Color: style.SurfaceColor, Opacity: 0.9, Transparent: true})

	s.furniture = []*Mesh{s.sun, s.corona, s.flares}
	for _, m := range s.furniture {
		m.owner = &s.mu
		s.resources.track(m, seen)
	}
	s.resources.Surfaces = 1
}

// replaceNodes disposes the previous node set and lays out tree in its place.
func (s *Scene) replaceNodes(tree hierarchy.Tree, showLinks bool) RenderResult {
	for _, m := range s.objects {
		m.dispose(&s.resources)
	}
	s.objects = nil
	s.nodes = nil
	s.anchors = make(map[string]Vec3)
	s.anchorByID = make(map[string]Vec3)
	s.nodeIndex = make(map[string]*Mesh)
	s.generation++

	layoutTree(s, tree, showLinks)

	seen := make(map[*Material]struct{})
	for _, m := range s.objects {
		m.generation = s.generation
		s.resources.track(m, seen)
	}

	meshes := make([]*Mesh, len(s.nodes))
	copy(meshes, s.nodes)
	return RenderResult{
		Generation:  s.generation,
		Meshes:      meshes,
		Anchors:     copyAnchors(s.anchors),
		AnchorsByID: copyAnchors(s.anchorByID),
	}
}

// snapshot copies every mesh. Called with s.mu held.
func (s *Scene) snapshot() []MeshState {
	out := make([]MeshState, 0, len(s.furniture)+len(s.objects))
	for _, m := range s.furniture {
		out = append(out, m.snapshot())
	}
	for _, m := range s.objects {
		out = append(out, m.snapshot())
	}
	return out
}

func (s *Scene) add(m *Mesh) {
	m.owner = &s.mu
	s.objects = append(s.objects, m)
}

// tick advances animation state. Called with s.mu held.
func (s *Scene) tick(t float64) {
	s.time = t
	s.sun.material.Uniforms["time"] = t
	s.corona.material.Uniforms["time"] = t
	s.flares.rotationY += flareSpin
	s.controls.Update(&s.camera)
	s.frames++
}

func (s *Scene) resize(width, height int) bool {
	if width <= 0 || height <= 0 {
		return false
	}
	s.width, s.height = width, height
	s.camera.Aspect = float64(width) / float64(height)
	return true
}

func (s *Scene) dispose() {
	for _, m := range s.objects {
		m.dispose(&s.resources)
	}
	for _, m := range s.furniture {
		m.dispose(&s.resources)
	}
	s.resources.Surfaces = 0
	s.objects, s.nodes, s.furniture = nil, nil, nil
	s.anchors, s.anchorByID, s.nodeIndex = nil, nil, nil
	s.state = StateDisposed
}

func (s *Scene) checkActive(op string) error {
	switch s.state {
	case StateActive:
		return nil
	case StateDisposed:
		return shared.WrapError("scene", op, shared.ErrInvalidState, string(s.core), shared.ErrSceneDisposed)
	default:
		return shared.WrapError("scene", op, shared.ErrNotFound, string(s.core), shared.ErrSceneNotFound)
	}
}

func copyAnchors(in map[string]Vec3) map[string]Vec3 {
	out := make(map[string]Vec3, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

const flareSpin = 0.005
