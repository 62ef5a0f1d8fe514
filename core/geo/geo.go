// Package geo provides the canonical Position type and the haversine based
// helpers used throughout the simulation.
package geo

import (
	"encoding/json"
	"math"
	"strconv"
)

// EarthRadiusMeters is the mean Earth radius used by all distance helpers.
const EarthRadiusMeters = 6371000.0

// Position is a WGS84 coordinate stored as (lon, lat).
type Position struct {
	Lon float64 `json:"lon"`
	Lat float64 `json:"lat"`
}

// IsValid reports whether the position lies within the WGS84 ranges.
func (p Position) IsValid() bool {
	if math.IsNaN(p.Lon) || math.IsNaN(p.Lat) {
		return false
	}
	return p.Lon >= -180 && p.Lon <= 180 && p.Lat >= -90 && p.Lat <= 90
}

// Equal reports whether both coordinates match exactly.
func (p Position) Equal(o Position) bool { return p.Lon == o.Lon && p.Lat == o.Lat }

// UnmarshalJSON accepts {lat,lng}, {lat,lon}, {Lat,Lng} objects as well as
// [lon,lat] tuples. Missing values default to 0.
func (p *Position) UnmarshalJSON(b []byte) error {
	var raw any
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*p = FromAny(raw)
	return nil
}

// FromAny normalizes an arbitrary decoded coordinate shape into a Position.
// It never fails; callers check IsValid.
func FromAny(v any) Position {
	switch t := v.(type) {
	case Position:
		return t
	case *Position:
		if t == nil {
			return Position{}
		}
		return *t
	case []float64:
		return fromSlice(len(t), func(i int) any { return t[i] })
	case [2]float64:
		return Position{Lon: t[0], Lat: t[1]}
	case []any:
		return fromSlice(len(t), func(i int) any { return t[i] })
	case map[string]any:
		var p Position
		p.Lat = pick(t, "lat", "Lat", "latitude")
		p.Lon = pick(t, "lng", "lon", "Lng", "Lon", "longitude")
		return p
	}
	return Position{}
}

func fromSlice(n int, at func(int) any) Position {
	var p Position
	if n > 0 {
		p.Lon = toFloat(at(0))
	}
	if n > 1 {
		p.Lat = toFloat(at(1))
	}
	return p
}

func pick(m map[string]any, keys ...string) float64 {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			return toFloat(v)
		}
	}
	return 0
}

func toFloat(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int:
		return float64(n)
	case int64:
		return float64(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		f, err := strconv.ParseFloat(n, 64)
		if err != nil {
			return 0
		}
		return f
	}
	return 0
}

func rad(deg float64) float64 { return deg * math.Pi / 180 }

func deg(r float64) float64 { return r * 180 / math.Pi }

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b Position) float64 {
	dLat := rad(b.Lat - a.Lat)
	dLon := rad(b.Lon - a.Lon)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(a.Lat))*math.Cos(rad(b.Lat))*math.Sin(dLon/2)*math.Sin(dLon/2)
	if h > 1 {
		h = 1
	}
	return EarthRadiusMeters * 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}

// Haversine returns the great-circle distance in whole meters.
func Haversine(a, b Position) int {
	return int(math.Round(Distance(a, b)))
}

// Bearing returns the initial bearing from a to b in degrees in [0, 360).
func Bearing(a, b Position) int {
	phi1, phi2 := rad(a.Lat), rad(b.Lat)
	dLon := rad(b.Lon - a.Lon)
	y := math.Sin(dLon) * math.Cos(phi2)
	x := math.Cos(phi1)*math.Sin(phi2) - math.Sin(phi1)*math.Cos(phi2)*math.Cos(dLon)
	brng := math.Mod(deg(math.Atan2(y, x))+360, 360)
	return int(math.Round(brng)) % 360
}

// AddMeters offsets p east by x meters and north by y meters using an
// equirectangular approximation.
func AddMeters(p Position, x, y float64) Position {
	lat := p.Lat + deg(y/EarthRadiusMeters)
	lon := p.Lon + deg(x/(EarthRadiusMeters*math.Cos(rad(p.Lat))))
	return Position{Lon: lon, Lat: lat}
}

// Interpolate returns the point at fraction f along the straight segment a-b.
func Interpolate(a, b Position, f float64) Position {
	if f <= 0 {
		return a
	}
	if f >= 1 {
		return b
	}
	return Position{Lon: a.Lon + (b.Lon-a.Lon)*f, Lat: a.Lat + (b.Lat-a.Lat)*f}
}

// PathLength sums the haversine distance along a polyline.
func PathLength(path []Position) float64 {
	var total float64
	for i := 1; i < len(path); i++ {
		total += Distance(path[i-1], path[i])
	}
	return total
}
