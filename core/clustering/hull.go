package clustering

import (
	"sort"

	"gonum.org/v1/gonum/spatial/r2"

	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/planstore"
)

// ConvexHull returns the counter-clockwise hull of pts using the monotone
// chain algorithm. It returns nil when fewer than three non-collinear points
// exist.
func ConvexHull(pts []geo.Position) []geo.Position {
	vs := make([]r2.Vec, 0, len(pts))
	seen := make(map[r2.Vec]bool, len(pts))
	for _, p := range pts {
		v := r2.Vec{X: p.Lon, Y: p.Lat}
		if !seen[v] {
			seen[v] = true
			vs = append(vs, v)
		}
	}
	if len(vs) < 3 {
		return nil
	}
	sort.Slice(vs, func(i, j int) bool {
		if vs[i].X != vs[j].X {
			return vs[i].X < vs[j].X
		}
		return vs[i].Y < vs[j].Y
	})
	cross := func(o, a, b r2.Vec) float64 { return r2.Cross(r2.Sub(a, o), r2.Sub(b, o)) }

	hull := make([]r2.Vec, 0, 2*len(vs))
	for _, v := range vs {
		for len(hull) >= 2 && cross(hull[len(hull)-2], hull[len(hull)-1], v) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, v)
	}
	lower := len(hull) + 1
	for i := len(vs) - 2; i >= 0; i-- {
		v := vs[i]
		for len(hull) >= lower && cross(hull[len(hull)-2], hull[len(hull)-1], v) <= 0 {
			hull = hull[:len(hull)-1]
		}
		hull = append(hull, v)
	}
	hull = hull[:len(hull)-1]
	if len(hull) < 3 {
		return nil
	}
	out := make([]geo.Position, len(hull))
	for i, v := range hull {
		out[i] = geo.Position{Lon: v.X, Lat: v.Y}
	}
	return out
}

// boxPolygon returns the bounding box corners counter-clockwise.
func boxPolygon(b planstore.BBox) []geo.Position {
	return []geo.Position{
		{Lon: b.MinLng, Lat: b.MinLat},
		{Lon: b.MaxLng, Lat: b.MinLat},
		{Lon: b.MaxLng, Lat: b.MaxLat},
		{Lon: b.MinLng, Lat: b.MaxLat},
	}
}
