package scene

import (
	"sync"

	"github.com/alem-hub/stellar-map/internal/domain/hierarchy"
)

// ObjectKind tags what a mesh represents.
type ObjectKind int

const (
	KindSun ObjectKind = iota
	KindCorona
	KindFlares
	KindFamilyHalo
	KindConstellationHalo
	KindNode
	KindNodeRim
	KindGoldLink
	KindWhiteLink
)

func (k ObjectKind) String() string {
	switch k {
	case KindSun:
		return "sun"
	case KindCorona:
		return "corona"
	case KindFlares:
		return "flares"
	case KindFamilyHalo:
		return "family_halo"
	case KindConstellationHalo:
		return "constellation_halo"
	case KindNode:
		return "node"
	case KindNodeRim:
		return "node_rim"
	case KindGoldLink:
		return "gold_link"
	case KindWhiteLink:
		return "white_link"
	default:
		return "unknown"
	}
}

// GeometryKind is the primitive behind a mesh.
type GeometryKind int

const (
	GeometrySphere GeometryKind = iota
	GeometryLine
	GeometryPoints
)

// Geometry is a disposable vertex resource.
type Geometry struct {
	Kind   GeometryKind
	Radius float64
	Points []Vec3
	Sizes  []float64

	disposed bool
}

// Material is a disposable shading resource.
type Material struct {
	Color       uint32
	Opacity     float64
	Transparent bool
	Uniforms    map[string]float64

	disposed bool
}

// NodePayload is the plain data attached to a pickable node.
type NodePayload struct {
	ID                 string               `json:"id"`
	Title              string               `json:"title"`
	Link               string               `json:"link,omitempty"`
	Content            hierarchy.ContentRef `json:"content"`
	Difficulty         int                  `json:"difficulty"`
	DifficultyLabel    string               `json:"difficulty_label,omitempty"`
	FamilyAlias        string               `json:"family_alias"`
	ConstellationAlias string               `json:"constellation_alias"`
	XPReward           int64                `json:"xp_reward"`
}

func payloadFor(n hierarchy.Node) *NodePayload {
	return &NodePayload{
		ID:                 n.ID,
		Title:              n.Title,
		Link:               n.Link,
		Content:            n.Content,
		Difficulty:         n.Difficulty,
		DifficultyLabel:    n.DifficultyLabel,
		FamilyAlias:        n.FamilyAlias,
		ConstellationAlias: n.ConstellationAlias,
		XPReward:           n.Reward(),
	}
}

// Mesh is one object in a scene. Meshes are created and mutated only by the
// scene that owns them, under the scene lock; the accessors for mutable state
// take that lock too.
type Mesh struct {
	owner         *sync.Mutex
	kind          ObjectKind
	position      Vec3
	scale         float64
	rotationY     float64
	geometry      *Geometry
	material      *Material
	pickable      bool
	payload       *NodePayload
	family        string
	constellation string
	generation    uint64
}

func newMesh(kind ObjectKind, pos Vec3, geo *Geometry, mat *Material) *Mesh {
	return &Mesh{kind: kind, position: pos, scale: 1, geometry: geo, material: mat}
}

func (m *Mesh) Kind() ObjectKind           { return m.kind }
func (m *Mesh) Position() Vec3             { return m.position }
func (m *Mesh) Pickable() bool             { return m.pickable }
func (m *Mesh) Payload() *NodePayload      { return m.payload }
func (m *Mesh) FamilyAlias() string        { return m.family }
func (m *Mesh) ConstellationAlias() string { return m.constellation }
func (m *Mesh) Generation() uint64         { return m.generation }

func (m *Mesh) lock() func() {
	if m.owner == nil {
		return func() {}
	}
	m.owner.Lock()
	return m.owner.Unlock
}

// Scale returns the current scale.
func (m *Mesh) Scale() float64 {
	defer m.lock()()
	return m.scale
}

// RotationY returns the rotation around the vertical axis.
func (m *Mesh) RotationY() float64 {
	defer m.lock()()
	return m.rotationY
}

// Opacity returns the material opacity, or 1 for meshes without a material.
func (m *Mesh) Opacity() float64 {
	defer m.lock()()
	return m.opacity()
}

// Radius returns the bounding radius of a sphere mesh, including its scale.
func (m *Mesh) Radius() float64 {
	defer m.lock()()
	return m.radius()
}

// Disposed reports whether the mesh's resources have been released.
func (m *Mesh) Disposed() bool {
	defer m.lock()()
	return m.disposed()
}

func (m *Mesh) opacity() float64 {
	if m.material == nil {
		return 1
	}
	return m.material.Opacity
}

func (m *Mesh) radius() float64 {
	if m.geometry == nil {
		return 0
	}
	return m.geometry.Radius * m.scale
}

func (m *Mesh) disposed() bool {
	return m.geometry != nil && m.geometry.disposed
}

// MeshState is a copy of a mesh taken under the scene lock.
type MeshState struct {
	Kind       ObjectKind
	Position   Vec3
	Scale      float64
	RotationY  float64
	Radius     float64
	Color      uint32
	Opacity    float64
	Uniforms   map[string]float64
	Points     []Vec3
	Generation uint64
	Payload    *NodePayload
}

func (m *Mesh) snapshot() MeshState {
	st := MeshState{
		Kind:       m.kind,
		Position:   m.position,
		Scale:      m.scale,
		RotationY:  m.rotationY,
		Radius:     m.radius(),
		Opacity:    m.opacity(),
		Generation: m.generation,
		Payload:    m.payload,
	}
	if m.geometry != nil {
		st.Points = m.geometry.Points
	}
	if m.material != nil {
		st.Color = m.material.Color
		if len(m.material.Uniforms) > 0 {
			st.Uniforms = make(map[string]float64, len(m.material.Uniforms))
			for k, v := range m.material.Uniforms {
				st.Uniforms[k] = v
			}
		}
	}
	return st
}

func (m *Mesh) dispose(stats *Resources) {
	if m.geometry != nil && !m.geometry.disposed {
		m.geometry.disposed = true
		stats.Geometries--
	}
	if m.material != nil && !m.material.disposed {
		m.material.disposed = true
		stats.Materials--
	}
}

// Resources counts live GPU-side allocations of a scene.
type Resources struct {
	Geometries int
	Materials  int
	Surfaces   int
}

// track records a mesh's resources as live. Shared materials are counted once.
func (r *Resources) track(m *Mesh, seen map[*Material]struct{}) {
	if m.geometry != nil {
		r.Geometries++
	}
	if m.material != nil {
		if _, ok := seen[m.material]; !ok {
			seen[m.material] = struct{}{}
			r.Materials++
		}
	}
}
