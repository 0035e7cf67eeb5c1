package scene

import (
	"strconv"
	"strings"

	"github.com/alem-hub/stellar-map/internal/domain/hierarchy"
)

// Node appearance at rest. Hover emphasis is applied on top of these.
const (
	NodeBaseScale   = 1.0
	NodeBaseOpacity = 0.9
)

const (
	familyHaloColor        = 0x333333
	familyHaloPeak         = 0.15
	constellationHaloColor = 0x666666
	constellationHaloPeak  = 0.20
	rimColor               = 0x000000
	rimOpacity             = 0.35
	goldLinkColor          = 0xffd700
	goldLinkOpacity        = 0.75
	whiteLinkColor         = 0xffffff
	whiteLinkOpacity       = 0.4
)

// layoutTree adds halos, nodes, rims and links for tree to s.
// Called with s.mu held.
func layoutTree(s *Scene, tree hierarchy.Tree, showLinks bool) {
	families := tree.Families
	if len(families) == 0 {
		return
	}

	radii := make([]float64, len(families))
	maxRadius := 0.0
	for i, f := range families {
		n := 0
		for _, c := range f.Constellations {
			n += len(c.Nodes)
		}
		radii[i] = FamilyRadius(n)
		if radii[i] > maxRadius {
			maxRadius = radii[i]
		}
	}
	placement := FamilyPlacementRadius(maxRadius, len(families))

	for fi, f := range families {
		center := AngularDirection(fi, len(families)).Mul(placement)
		s.add(halo(KindFamilyHalo, center, radii[fi], familyHaloColor, familyHaloPeak, f.Name, ""))

		for ci, c := range f.Constellations {
			constR := ConstellationRadius(len(c.Nodes))
			dist := SafeConstellationDistance(radii[fi], constR)
			cc := center.Add(AngularDirection(ci, len(f.Constellations)).Mul(dist))

			color := parseColor(c.Color, constellationHaloColor)
			s.add(halo(KindConstellationHalo, cc, constR, color, constellationHaloPeak, f.Name, c.Name))
			s.anchors[c.Name] = cc
			s.anchorByID[c.ID] = cc

			positions := make([]Vec3, len(c.Nodes))
			for ni, n := range c.Nodes {
				style := StyleForDifficulty(n.Difficulty)
				pos := NodePosition(ni, len(c.Nodes), cc, constR, style.Size)
				positions[ni] = pos

				m := newMesh(KindNode, pos,
					&Geometry{Kind: GeometrySphere, Radius: style.Size},
					&Material{Color: style.Color, Opacity: NodeBaseOpacity, Transparent: true})
				m.scale = NodeBaseScale
				m.pickable = true
				m.payload = payloadFor(n)
				m.family, m.constellation = f.Name, c.Name
				s.add(m)
				s.nodes = append(s.nodes, m)
				s.nodeIndex[n.ID] = m

				rim := newMesh(KindNodeRim, pos,
					&Geometry{Kind: GeometrySphere, Radius: style.Size * rimScale},
					&Material{Color: rimColor, Opacity: rimOpacity, Transparent: true})
				rim.family, rim.constellation = f.Name, c.Name
				s.add(rim)
			}

			if showLinks && len(positions) > 0 {
				addLinks(s, center, positions, f.Name, c.Name)
			}
		}
	}
}

// addLinks joins the family center to the easiest node of a constellation
// and every pair of nodes inside it.
func addLinks(s *Scene, familyCenter Vec3, positions []Vec3, family, constellation string) {
	gold := newMesh(KindGoldLink, familyCenter,
		&Geometry{Kind: GeometryLine, Points: []Vec3{familyCenter, positions[0]}},
		&Material{Color: goldLinkColor, Opacity: goldLinkOpacity, Transparent: true})
	gold.family, gold.constellation = family, constellation
	s.add(gold)

	if len(positions) < 2 {
		return
	}
	white := &Material{Color: whiteLinkColor, Opacity: whiteLinkOpacity, Transparent: true}
	for i := 0; i < len(positions); i++ {
		for j := i + 1; j < len(positions); j++ {
			line := newMesh(KindWhiteLink, positions[i],
				&Geometry{Kind: GeometryLine, Points: []Vec3{positions[i], positions[j]}},
				white)
			line.family, line.constellation = family, constellation
			s.add(line)
		}
	}
}

func halo(kind ObjectKind, center Vec3, radius float64, color uint32, peak float64, family, constellation string) *Mesh {
	m := newMesh(kind, center,
		&Geometry{Kind: GeometrySphere, Radius: radius},
		&Material{Color: color, Opacity: peak, Transparent: true, Uniforms: map[string]float64{"peak": peak}})
	m.family, m.constellation = family, constellation
	return m
}

// parseColor reads "#rrggbb", "0xrrggbb" or "rrggbb", returning fallback otherwise.
func parseColor(s string, fallback uint32) uint32 {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "#")
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s) != 6 {
		return fallback
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return fallback
	}
	return uint32(v)
}
