// Package routing defines the road routing contract used by vehicles to
// navigate between stops.
package routing

import (
	"context"

	"github.com/kilianp07/fleetsim/core/geo"
)

// DefaultSpeedKmh is the cruise speed used when a route has no duration.
const DefaultSpeedKmh = 30.0

// Route is a driving path between two positions.
type Route struct {
	Coordinates     []geo.Position `json:"coordinates"`
	DistanceMeters  float64        `json:"distance"`
	DurationSeconds float64        `json:"duration"`
}

// Router computes driving routes.
type Router interface {
	Route(ctx context.Context, from, to geo.Position) (Route, error)
}

// StraightLine routes along the great circle at a constant speed. It is used
// offline and in tests.
type StraightLine struct {
	SpeedKmh float64
}

func (s StraightLine) Route(ctx context.Context, from, to geo.Position) (Route, error) {
	if err := ctx.Err(); err != nil {
		return Route{}, err
	}
	speed := s.SpeedKmh
	if speed <= 0 {
		speed = DefaultSpeedKmh
	}
	d := geo.Distance(from, to)
	return Route{
		Coordinates:     []geo.Position{from, to},
		DistanceMeters:  d,
		DurationSeconds: d / (speed / 3.6),
	}, nil
}

// PositionAt returns the point reached after elapsed seconds on r, assuming
// constant speed along the polyline. It also reports whether the end was
// reached.
func (r Route) PositionAt(elapsed float64) (geo.Position, bool) {
	if len(r.Coordinates) == 0 {
		return geo.Position{}, true
	}
	last := r.Coordinates[len(r.Coordinates)-1]
	if r.DurationSeconds <= 0 || elapsed >= r.DurationSeconds {
		return last, true
	}
	total := geo.PathLength(r.Coordinates)
	if total == 0 {
		return last, true
	}
	target := total * elapsed / r.DurationSeconds
	for i := 1; i < len(r.Coordinates); i++ {
		a, b := r.Coordinates[i-1], r.Coordinates[i]
		seg := geo.Distance(a, b)
		if target <= seg {
			if seg == 0 {
				return b, false
			}
			return geo.Interpolate(a, b, target/seg), false
		}
		target -= seg
	}
	return last, true
}
