package scene

import (
	"encoding/binary"
	"math"
	"strconv"

	"golang.org/x/crypto/blake2b"

	"github.com/alem-hub/stellar-map/internal/domain/visibility"
)

// Layout constants.
const (
	familyRadiusBase  = 4.0
	familyRadiusScale = 2.0
	constRadiusBase   = 4.0
	constRadiusScale  = 1.6
	constMargin       = 0.5
	nodeMargin        = 0.25
	rimScale          = 1.05
)

// metatronCube holds the 13 slot directions used to pack nodes into shells.
var metatronCube = [...]Vec3{
	{1, 0, 0}, {-1, 0, 0},
	{0, 1, 0}, {0, -1, 0},
	{0, 0, 1}, {0, 0, -1},
	{0.5, 0.5, 0.5}, {-0.5, 0.5, 0.5},
	{0.5, -0.5, 0.5}, {-0.5, -0.5, 0.5},
	{0.5, 0.5, -0.5}, {-0.5, 0.5, -0.5},
	{0.5, -0.5, -0.5},
}

// AngularDirection spreads count directions over the unit sphere using the
// golden angle and returns the index-th one.
func AngularDirection(index, count int) Vec3 {
	if count <= 0 {
		return Vec3{0, 0, 1}
	}
	goldenAngle := math.Pi * (3 - math.Sqrt(5))
	t := float64(index) + 0.5
	phi := math.Acos(1 - 2*t/float64(count))
	theta := goldenAngle * float64(index)
	return Vec3{
		math.Cos(theta) * math.Sin(phi),
		math.Sin(theta) * math.Sin(phi),
		math.Cos(phi),
	}.Normalize()
}

// FamilyRadius is the halo radius of a family holding n nodes.
func FamilyRadius(n int) float64 {
	if n <= 0 {
		return 0
	}
	return familyRadiusBase + familyRadiusScale*math.Sqrt(float64(n))
}

// ConstellationRadius is the halo radius of a constellation holding n nodes.
func ConstellationRadius(n int) float64 {
	if n <= 0 {
		return 0
	}
	return constRadiusBase + constRadiusScale*math.Sqrt(float64(n))
}

// SafeConstellationDistance is how far a constellation center sits from its
// family center.
func SafeConstellationDistance(familyRadius, constellationRadius float64) float64 {
	return math.Max(familyRadius-constellationRadius-constMargin, constellationRadius)
}

// FamilyPlacementRadius is the distance of every family center from the core.
func FamilyPlacementRadius(maxFamilyRadius float64, families int) float64 {
	r := maxFamilyRadius * float64(families) * 0.5
	if r == 0 {
		return 1
	}
	return r
}

// NodePosition places the index-th of total nodes inside a constellation.
// Nodes fill the 13 Metatron slots shell by shell, each shell one step
// further from the center.
func NodePosition(index, total int, center Vec3, constellationRadius, nodeRadius float64) Vec3 {
	slots := len(metatronCube)
	shells := (total + slots - 1) / slots
	if shells == 0 {
		shells = 1
	}
	step := (constellationRadius - nodeRadius - nodeMargin) / float64(shells)
	shell := index / slots
	slot := index % slots
	return center.Add(metatronCube[slot].Mul(step * float64(shell+1)))
}

// DifficultyStyle is the look of a node of a given difficulty.
type DifficultyStyle struct {
	Color uint32
	Size  float64
}

var difficultyColors = [...]uint32{
	0x2A3E66, 0x3A527A, 0x4B668E, 0x5C7AA2, 0x6D8EB6, 0x7EA2CA,
	0x8FB6DE, 0xA0CAEE, 0xB1DEFF, 0xC2F2FF, 0xFFFFFF,
}

// StyleForDifficulty returns the node style; out-of-range values use difficulty 0.
func StyleForDifficulty(d int) DifficultyStyle {
	if d < visibility.MinDifficulty || d > visibility.MaxDifficulty {
		d = 0
	}
	return DifficultyStyle{Color: difficultyColors[d], Size: 0.3 + 0.1*float64(d)}
}

// CoreStyle colors the sun of a core.
type CoreStyle struct {
	CoreColor    uint32
	Layer2Color  uint32
	Layer3Color  uint32
	SurfaceColor uint32
	CoronaColor  uint32
	FlareCount   int
}

var coreStyles = map[visibility.Core]CoreStyle{
	visibility.Ignition: {
		CoreColor: 0x220901, Layer2Color: 0x220901, Layer3Color: 0x220901,
		SurfaceColor: 0xF6AA1C, CoronaColor: 0xF6AA1C, FlareCount: 10,
	},
	visibility.Insight: {
		CoreColor: 0x0F084B, Layer2Color: 0x3D60A7, Layer3Color: 0x44BBA4,
		SurfaceColor: 0xE7BB41, CoronaColor: 0x44BBA4, FlareCount: 20,
	},
	visibility.Transformation: {
		CoreColor: 0x3A0C2E, Layer2Color: 0x7B2D4F, Layer3Color: 0xE15554,
		SurfaceColor: 0xE1BC29, CoronaColor: 0xE15554, FlareCount: 30,
	},
}

var neutralStyle = CoreStyle{
	CoreColor: 0x101020, Layer2Color: 0x303050, Layer3Color: 0x606080,
	SurfaceColor: 0xC0C0D0, CoronaColor: 0x8080A0, FlareCount: 10,
}

// StyleForCore returns the sun style for core, or a neutral style.
func StyleForCore(core visibility.Core) CoreStyle {
	if s, ok := coreStyles[core]; ok {
		return s
	}
	return neutralStyle
}

// flareJitter returns a stable value in [0, 1) for the given core, flare and channel.
func flareJitter(core visibility.Core, index int, channel string) float64 {
	sum := blake2b.Sum256([]byte(string(core) + "/" + strconv.Itoa(index) + "/" + channel))
	return float64(binary.BigEndian.Uint64(sum[:8])>>11) / (1 << 53)
}

// flarePoints lays count flares on a golden spiral around the sun, each at a
// distance in [2, 3) and with a size in [0.2, 0.5).
func flarePoints(core visibility.Core, count int) ([]Vec3, []float64) {
	golden := (1 + math.Sqrt(5)) / 2
	points := make([]Vec3, count)
	sizes := make([]float64, count)
	for i := 0; i < count; i++ {
		y := 1.0
		if count > 1 {
			y = 1 - float64(i)/float64(count-1)*2
		}
		radius := math.Sqrt(1 - y*y)
		theta := 2 * math.Pi * float64(i) / golden
		dist := 2 + flareJitter(core, i, "distance")
		points[i] = Vec3{math.Cos(theta) * radius * dist, y * dist, math.Sin(theta) * radius * dist}
		sizes[i] = 0.2 + flareJitter(core, i, "size")*0.3
	}
	return points, sizes
}
