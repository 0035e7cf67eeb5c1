package interaction

import (
	"sync"
	"testing"
	"time"

	"github.com/go-gl/mathgl/mgl64"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/stellar-map/internal/domain/hierarchy"
	"github.com/alem-hub/stellar-map/internal/domain/shared"
	"github.com/alem-hub/stellar-map/internal/domain/visibility"
	"github.com/alem-hub/stellar-map/internal/render/scene"
)

const (
	width  = 800
	height = 600
)

type surface struct{}

func (surface) Size() (int, int) { return width, height }
func (surface) Visible() bool    { return true }

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

type hookLog struct {
	hovers, unhovers []string
	clicks           []ClickEvent
	focuses          []FocusEvent
}

func (h *hookLog) hooks() Hooks {
	return Hooks{
		OnHover:   func(p scene.NodePayload) { h.hovers = append(h.hovers, p.ID) },
		OnUnhover: func(p scene.NodePayload) { h.unhovers = append(h.unhovers, p.ID) },
		OnClick:   func(e ClickEvent) { h.clicks = append(h.clicks, e) },
		OnFocus:   func(e FocusEvent) { h.focuses = append(h.focuses, e) },
	}
}

func tree(links ...string) hierarchy.Tree {
	group := hierarchy.ConstellationGroup{
		Constellation: hierarchy.Constellation{ID: "c1", Name: "C1", FamilyID: "f1", Core: visibility.Ignition},
	}
	for i, link := range links {
		group.Nodes = append(group.Nodes, hierarchy.Node{
			ID:                 string(rune('a' + i)),
			Title:              "Node " + string(rune('A'+i)),
			Link:               link,
			Content:            hierarchy.ResolveContent(link),
			Difficulty:         i,
			ConstellationID:    "c1",
			FamilyID:           "f1",
			FamilyAlias:        "F1",
			ConstellationAlias: "C1",
		})
	}
	return hierarchy.Tree{
		Core: visibility.Ignition,
		Families: []hierarchy.FamilyGroup{{
			Family:         hierarchy.Family{ID: "f1", Name: "F1", Core: visibility.Ignition},
			Constellations: []hierarchy.ConstellationGroup{group},
		}},
	}
}

func setup(t *testing.T, links ...string) (*scene.Manager, *scene.Scene, scene.RenderResult) {
	t.Helper()
	m := scene.NewManager(scene.WithLinks(false))
	s, err := m.OpenScene(visibility.Ignition, surface{})
	require.NoError(t, err)
	res, err := m.RenderNodes(visibility.Ignition, tree(links...))
	require.NoError(t, err)
	return m, s, res
}

// project returns the pixel a world point lands on.
func project(t *testing.T, s *scene.Scene, p scene.Vec3) (float64, float64) {
	t.Helper()
	pose, ok := s.Pose()
	require.True(t, ok)
	clip := pose.Camera.Projection().Mul4(pose.Camera.View(pose.Target)).Mul4x1(mgl64.Vec4{p.X(), p.Y(), p.Z(), 1})
	ndc := clip.Vec3().Mul(1 / clip.W())
	return (ndc.X() + 1) / 2 * width, (1 - ndc.Y()) / 2 * height
}

func TestHoverThenMissResetsOnce(t *testing.T) {
	_, s, res := setup(t, "")
	log := &hookLog{}
	c := NewController(s, WithHooks(log.hooks()))

	_, err := c.FocusNode("a")
	require.NoError(t, err)

	ev := c.OnPointerMove(width/2, height/2)
	require.NotNil(t, ev)
	assert.Equal(t, "a", ev.Node.ID)
	assert.True(t, ev.Changed)
	node := res.Meshes[0]
	assert.InDelta(t, HoverScale, node.Scale(), 1e-9)
	assert.InDelta(t, HoverOpacity, node.Opacity(), 1e-9)

	ev = c.OnPointerMove(width/2+1, height/2)
	require.NotNil(t, ev)
	assert.False(t, ev.Changed)

	assert.Nil(t, c.OnPointerMove(0, 0))
	assert.Nil(t, c.OnPointerMove(1, 1))

	assert.Equal(t, []string{"a"}, log.hovers)
	assert.Equal(t, []string{"a"}, log.unhovers)
	assert.InDelta(t, scene.NodeBaseScale, node.Scale(), 1e-9)
	assert.InDelta(t, scene.NodeBaseOpacity, node.Opacity(), 1e-9)

	_, hovered := c.Hovered()
	assert.False(t, hovered)
}

func TestHoverMovesBetweenNodes(t *testing.T) {
	_, s, res := setup(t, "", "")
	log := &hookLog{}
	c := NewController(s, WithHooks(log.hooks()))

	_, err := c.FocusConstellation("C1")
	require.NoError(t, err)

	ax, ay := project(t, s, res.Meshes[0].Position())
	bx, by := project(t, s, res.Meshes[1].Position())

	require.NotNil(t, c.OnPointerMove(ax, ay))
	ev := c.OnPointerMove(bx, by)
	require.NotNil(t, ev)
	assert.Equal(t, "b", ev.Node.ID)

	assert.Equal(t, []string{"a", "b"}, log.hovers)
	assert.Equal(t, []string{"a"}, log.unhovers)
	assert.InDelta(t, scene.NodeBaseScale, res.Meshes[0].Scale(), 1e-9)
	assert.InDelta(t, HoverScale, res.Meshes[1].Scale(), 1e-9)
}

func TestClickReportsContent(t *testing.T) {
	_, s, _ := setup(t, "https://youtu.be/dQw4w9WgXcQ")
	log := &hookLog{}
	c := NewController(s, WithHooks(log.hooks()))

	_, err := c.FocusNode("a")
	require.NoError(t, err)

	assert.Nil(t, c.OnPointerClick(0, 0))

	ev := c.OnPointerClick(width/2, height/2)
	require.NotNil(t, ev)
	assert.Equal(t, "a", ev.Node.ID)
	assert.Equal(t, hierarchy.ContentMedia, ev.Content.Kind)
	assert.Equal(t, "dQw4w9WgXcQ", ev.Content.MediaID)
	require.Len(t, log.clicks, 1)
}

func TestStaleSceneIsTolerated(t *testing.T) {
	m, s, _ := setup(t, "")
	log := &hookLog{}
	c := NewController(s, WithHooks(log.hooks()))

	_, err := c.FocusNode("a")
	require.NoError(t, err)
	require.NotNil(t, c.OnPointerMove(width/2, height/2))

	m.CloseScene(visibility.Ignition)

	assert.Nil(t, c.OnPointerMove(width/2, height/2))
	assert.Nil(t, c.OnPointerClick(width/2, height/2))
	assert.Equal(t, []string{"a"}, log.unhovers)

	ev, err := c.FocusNode("a")
	assert.NoError(t, err)
	assert.Nil(t, ev)
	ev, err = c.FocusConstellation("C1")
	assert.NoError(t, err)
	assert.Nil(t, ev)
	assert.Nil(t, c.ResetCamera())
}

func TestPickCacheWindowAndGeneration(t *testing.T) {
	m, s, _ := setup(t, "")
	clk := &clock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	log := &hookLog{}
	c := NewController(s, WithClock(clk.now), WithHooks(log.hooks()))

	_, err := c.FocusNode("a")
	require.NoError(t, err)

	c.OnPointerMove(width/2, height/2)
	clk.advance(50 * time.Millisecond)
	c.OnPointerMove(width/2, height/2)
	assert.Equal(t, 1, c.refresh)

	clk.advance(60 * time.Millisecond)
	c.OnPointerMove(width/2, height/2)
	assert.Equal(t, 2, c.refresh)

	_, err = m.RenderNodes(visibility.Ignition, tree(""))
	require.NoError(t, err)
	ev := c.OnPointerMove(width/2, height/2)
	assert.Equal(t, 3, c.refresh)

	require.NotNil(t, ev)
	assert.True(t, ev.Changed, "a re-render produces new handles")
	assert.Equal(t, []string{"a"}, log.unhovers)
	assert.Equal(t, []string{"a", "a"}, log.hovers)
}

func TestFocusDistances(t *testing.T) {
	_, s, res := setup(t, "", "")
	log := &hookLog{}
	c := NewController(s, WithHooks(log.hooks()))

	ev, err := c.FocusConstellation("C1")
	require.NoError(t, err)
	require.NotNil(t, ev)
	assert.InDelta(t, ConstellationDistance, ev.Distance, 1e-9)
	assert.Equal(t, res.Anchors["C1"], ev.Target)
	_, target := s.Camera()
	assert.Equal(t, res.Anchors["C1"], target)

	ev, err = c.FocusNode("b")
	require.NoError(t, err)
	assert.InDelta(t, NodeDistance, ev.Distance, 1e-9)
	assert.Equal(t, res.Meshes[1].Position(), ev.Target)

	ev = c.ResetCamera()
	require.NotNil(t, ev)
	cam, target := s.Camera()
	assert.Equal(t, scene.Vec3{}, target)
	assert.InDelta(t, ResetDistance, cam.Position.Len(), 1e-9)

	assert.Len(t, log.focuses, 3)
}

func TestFocusUnknownTargets(t *testing.T) {
	_, s, _ := setup(t, "")
	c := NewController(s)

	_, err := c.FocusConstellation("missing")
	assert.True(t, shared.IsNotFound(err))

	_, err = c.FocusNode("missing")
	assert.True(t, shared.IsNotFound(err))
}

func TestPickingSurvivesConcurrentRenderAndClose(t *testing.T) {
	m, s, _ := setup(t, "", "")
	c := NewController(s, WithCacheWindow(0))

	_, err := c.FocusConstellation("C1")
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 2000; i++ {
			c.OnPointerMove(float64(i%width), height/2)
			c.OnPointerClick(width/2, float64(i%height))
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			_, _ = m.RenderNodes(visibility.Ignition, tree("", ""))
			m.Tick(float64(i) / 60)
		}
		m.CloseScene(visibility.Ignition)
	}()
	wg.Wait()

	assert.Nil(t, c.OnPointerMove(width/2, height/2))
	assert.Equal(t, scene.StateDisposed, s.State())
}
