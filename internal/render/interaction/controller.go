// Package interaction resolves pointer input against one scene: hover and
// click picking over rendered nodes, and camera focus on constellations and
// nodes.
package interaction

import (
	"sync"
	"time"

	"github.com/alem-hub/stellar-map/internal/domain/hierarchy"
	"github.com/alem-hub/stellar-map/internal/domain/shared"
	"github.com/alem-hub/stellar-map/internal/render/scene"
	"github.com/alem-hub/stellar-map/pkg/logger"
)

// Emphasis applied to the hovered node.
const (
	HoverScale   = 1.35
	HoverOpacity = 1.0
)

// Camera standoff distances.
const (
	ConstellationDistance = 15.0
	NodeDistance          = 10.0
	ResetDistance         = 15.0
)

// DefaultCacheWindow is how long a pickable list is reused within one
// render generation.
const DefaultCacheWindow = 100 * time.Millisecond

// HoverEvent is returned while the pointer is over a node.
type HoverEvent struct {
	Node scene.NodePayload
	// Changed is true when this move switched the hover to Node.
	Changed bool
}

// ClickEvent reports the clicked node and what its content is.
type ClickEvent struct {
	Node    scene.NodePayload
	Content hierarchy.ContentRef
}

// FocusEvent reports where a focus moved the camera.
type FocusEvent struct {
	Target   scene.Vec3
	Camera   scene.Vec3
	Distance float64
	// Name is the constellation name or node id that was focused.
	Name string
}

// Hooks are optional callbacks fired in addition to the returned events.
// They run after the controller releases its lock.
type Hooks struct {
	OnHover   func(scene.NodePayload)
	OnUnhover func(scene.NodePayload)
	OnClick   func(ClickEvent)
	OnFocus   func(FocusEvent)
}

// Option configures a Controller.
type Option func(*Controller)

// WithHooks sets the controller callbacks.
func WithHooks(h Hooks) Option {
	return func(c *Controller) { c.hooks = h }
}

// WithCacheWindow sets how long the pickable list is reused.
func WithCacheWindow(d time.Duration) Option {
	return func(c *Controller) { c.window = d }
}

// WithClock replaces the time source for the pick cache.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// WithLogger sets the controller logger.
func WithLogger(log *logger.Logger) Option {
	return func(c *Controller) { c.log = log.With(logger.Component("interaction")) }
}

type pickCache struct {
	meshes     []*scene.Mesh
	generation uint64
	at         time.Time
	valid      bool
}

// Controller handles pointer input for one scene. A Controller keeps working
// after its scene is closed: every call then returns nil.
type Controller struct {
	mu      sync.Mutex
	scene   *scene.Scene
	hooks   Hooks
	window  time.Duration
	now     func() time.Time
	log     *logger.Logger
	hovered *scene.Mesh
	cache   pickCache

	hoveredPayload scene.NodePayload
	refresh int
}

// NewController binds a controller to s.
func NewController(s *scene.Scene, opts ...Option) *Controller {
	c := &Controller{
		scene:  s,
		window: DefaultCacheWindow,
		now:    time.Now,
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// OnPointerMove picks at pixel (px, py). It returns the hovered node, or nil
// when the pointer is over nothing. Leaving a node resets its emphasis once.
func (c *Controller) OnPointerMove(px, py float64) *HoverEvent {
	c.mu.Lock()
	hit, payload := c.pick(px, py)

	var left, entered *scene.NodePayload
	if hit != c.hovered {
		if c.hovered != nil {
			c.scene.SetEmphasis(c.hovered, scene.NodeBaseScale, scene.NodeBaseOpacity)
			prev := c.hoveredPayload
			left = &prev
		}
		if hit != nil {
			c.scene.SetEmphasis(hit, HoverScale, HoverOpacity)
			entered = &payload
		}
		c.hovered, c.hoveredPayload = hit, payload
	}
	c.mu.Unlock()

	if left != nil && c.hooks.OnUnhover != nil {
		c.hooks.OnUnhover(*left)
	}
	if entered != nil && c.hooks.OnHover != nil {
		c.hooks.OnHover(*entered)
	}
	if hit == nil {
		return nil
	}
	return &HoverEvent{Node: payload, Changed: entered != nil}
}

// OnPointerClick picks at pixel (px, py) and reports the node under it.
func (c *Controller) OnPointerClick(px, py float64) *ClickEvent {
	c.mu.Lock()
	hit, p := c.pick(px, py)
	c.mu.Unlock()
	if hit == nil {
		return nil
	}

	ev := ClickEvent{Node: p, Content: p.Content}
	if ev.Content.Kind == "" {
		ev.Content = hierarchy.ResolveContent(p.Link)
	}
	if c.hooks.OnClick != nil {
		c.hooks.OnClick(ev)
	}
	return &ev
}

// Hovered returns the currently hovered node, if any.
func (c *Controller) Hovered() (scene.NodePayload, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.hovered == nil {
		return scene.NodePayload{}, false
	}
	return c.hoveredPayload, true
}

// FocusConstellation moves the camera to the named constellation. A closed
// scene yields (nil, nil); an unknown name is ErrNotFound.
func (c *Controller) FocusConstellation(name string) (*FocusEvent, error) {
	if c.scene.State() != scene.StateActive {
		return nil, nil
	}
	target, ok := c.scene.Anchor(name)
	if !ok {
		return nil, shared.NewDomainError("interaction", "FocusConstellation", shared.ErrNotFound, "unknown constellation "+name)
	}
	return c.focus(name, target, ConstellationDistance), nil
}

// FocusNode moves the camera to a rendered node.
func (c *Controller) FocusNode(nodeID string) (*FocusEvent, error) {
	if c.scene.State() != scene.StateActive {
		return nil, nil
	}
	target, ok := c.scene.NodePosition(nodeID)
	if !ok {
		return nil, shared.NewDomainError("interaction", "FocusNode", shared.ErrNotFound, "unknown node "+nodeID)
	}
	return c.focus(nodeID, target, NodeDistance), nil
}

// ResetCamera looks back at the core from the default distance.
func (c *Controller) ResetCamera() *FocusEvent {
	return c.focus("", scene.Vec3{}, ResetDistance)
}

func (c *Controller) focus(name string, target scene.Vec3, distance float64) *FocusEvent {
	pos, ok := c.scene.Focus(target, distance)
	if !ok {
		return nil
	}
	ev := FocusEvent{Target: target, Camera: pos, Distance: pos.Sub(target).Len(), Name: name}
	c.log.Debug("camera focused", logger.String("name", name), logger.Float64("distance", ev.Distance))
	if c.hooks.OnFocus != nil {
		c.hooks.OnFocus(ev)
	}
	return &ev
}

// pick returns the nearest titled node under the pointer and a copy of its
// payload. Called with c.mu held.
func (c *Controller) pick(px, py float64) (*scene.Mesh, scene.NodePayload) {
	pose, ok := c.scene.Pose()
	if !ok || pose.Width <= 0 || pose.Height <= 0 {
		c.cache = pickCache{}
		return nil, scene.NodePayload{}
	}
	meshes := c.pickables(pose.Generation)
	if len(meshes) == 0 {
		return nil, scene.NodePayload{}
	}

	ndcX := px/float64(pose.Width)*2 - 1
	ndcY := -(py/float64(pose.Height))*2 + 1
	ray := pose.Camera.RayThrough(ndcX, ndcY, pose.Target)

	hit, payload, ok := c.scene.Pick(ray, meshes)
	if !ok {
		return nil, scene.NodePayload{}
	}
	return hit, payload
}

func (c *Controller) pickables(generation uint64) []*scene.Mesh {
	now := c.now()
	if c.cache.valid && c.cache.generation == generation && now.Sub(c.cache.at) < c.window {
		return c.cache.meshes
	}
	meshes, gen, ok := c.scene.Pickables()
	if !ok {
		c.cache = pickCache{}
		return nil
	}
	c.cache = pickCache{meshes: meshes, generation: gen, at: now, valid: true}
	c.refresh++
	return meshes
}
