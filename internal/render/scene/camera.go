package scene

import (
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Vec3 is the vector type used for all scene positions.
type Vec3 = mgl64.Vec3

// Camera is a perspective camera. FOV is vertical, in degrees.
type Camera struct {
	FOV      float64
	Aspect   float64
	Near     float64
	Far      float64
	Position Vec3
	Up       Vec3
}

const (
	defaultFOV     = 60
	defaultNear    = 0.1
	defaultFar     = 1000
	defaultCameraZ = 8
)

func newCamera(width, height int) Camera {
	return Camera{
		FOV:      defaultFOV,
		Aspect:   float64(width) / float64(height),
		Near:     defaultNear,
		Far:      defaultFar,
		Position: Vec3{0, 0, defaultCameraZ},
		Up:       Vec3{0, 1, 0},
	}
}

// Projection returns the perspective projection matrix.
func (c Camera) Projection() mgl64.Mat4 {
	return mgl64.Perspective(mgl64.DegToRad(c.FOV), c.Aspect, c.Near, c.Far)
}

// View returns the view matrix for a camera looking at target.
func (c Camera) View(target Vec3) mgl64.Mat4 {
	return mgl64.LookAtV(c.Position, target, c.Up)
}

// Ray is a half-line with a unit direction.
type Ray struct {
	Origin Vec3
	Dir    Vec3
}

// RayThrough casts a ray from the camera through normalized device
// coordinates (x right, y up, both in [-1, 1]) while looking at target.
func (c Camera) RayThrough(ndcX, ndcY float64, target Vec3) Ray {
	inv := c.Projection().Mul4(c.View(target)).Inv()

	near := inv.Mul4x1(mgl64.Vec4{ndcX, ndcY, -1, 1})
	far := inv.Mul4x1(mgl64.Vec4{ndcX, ndcY, 1, 1})
	np := near.Vec3().Mul(1 / near.W())
	fp := far.Vec3().Mul(1 / far.W())

	return Ray{Origin: c.Position, Dir: fp.Sub(np).Normalize()}
}

// IntersectSphere returns the distance along r to the nearest intersection
// with the sphere, if any lies in front of the origin.
func (r Ray) IntersectSphere(center Vec3, radius float64) (float64, bool) {
	oc := r.Origin.Sub(center)
	b := oc.Dot(r.Dir)
	c := oc.Dot(oc) - radius*radius
	disc := b*b - c
	if disc < 0 {
		return 0, false
	}
	sq := math.Sqrt(disc)
	t := -b - sq
	if t < 0 {
		t = -b + sq
	}
	if t < 0 {
		return 0, false
	}
	return t, true
}

// Controls is an orbit controller: a target point and a distance clamp.
type Controls struct {
	Target      Vec3
	MinDistance float64
	MaxDistance float64
}

const (
	defaultMinDistance = 10
	defaultMaxDistance = 350
)

func newControls() Controls {
	return Controls{MinDistance: defaultMinDistance, MaxDistance: defaultMaxDistance}
}

// Update keeps the camera within [MinDistance, MaxDistance] of the target
// along its current direction.
func (o Controls) Update(cam *Camera) {
	offset := cam.Position.Sub(o.Target)
	dist := offset.Len()
	if dist == 0 {
		offset = Vec3{0, 0, 1}
	} else {
		offset = offset.Mul(1 / dist)
	}
	clamped := math.Min(math.Max(dist, o.MinDistance), o.MaxDistance)
	if clamped != dist {
		cam.Position = o.Target.Add(offset.Mul(clamped))
	}
}

// PlaceCamera moves cam onto the line from target through its current
// position, at distance from target. A camera sitting on the target looks
// down the +Z axis.
func PlaceCamera(cam *Camera, target Vec3, distance float64) {
	dir := cam.Position.Sub(target)
	if dir.Len() == 0 {
		dir = Vec3{0, 0, 1}
	}
	cam.Position = target.Add(dir.Normalize().Mul(distance))
}
