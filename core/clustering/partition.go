package clustering

import (
	"math"

	"gonum.org/v1/gonum/stat"

	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/planstore"
)

// Partition is a spatial group of bookings. Bookings are referenced, not
// owned.
type Partition struct {
	ID             string
	Bookings       []*model.Booking
	Centroid       geo.Position
	BBox           planstore.BBox
	Polygon        []geo.Position
	RecyclingTypes []string
	Count          int

	// labels holds the DBSCAN label of each booking, index aligned.
	labels []int
}

func newPartition(id string, bookings []*model.Booking, labels []int) *Partition {
	p := &Partition{ID: id, Bookings: bookings, labels: labels}
	p.recompute()
	return p
}

func (p *Partition) recompute() {
	n := len(p.Bookings)
	p.Count = n
	if n == 0 {
		return
	}
	lons := make([]float64, n)
	lats := make([]float64, n)
	box := planstore.BBox{MinLat: math.Inf(1), MaxLat: math.Inf(-1), MinLng: math.Inf(1), MaxLng: math.Inf(-1)}
	pts := make([]geo.Position, n)
	seen := make(map[string]bool)
	p.RecyclingTypes = p.RecyclingTypes[:0]
	for i, b := range p.Bookings {
		pos := b.Pickup
		pts[i] = pos
		lons[i], lats[i] = pos.Lon, pos.Lat
		box.MinLat = math.Min(box.MinLat, pos.Lat)
		box.MaxLat = math.Max(box.MaxLat, pos.Lat)
		box.MinLng = math.Min(box.MinLng, pos.Lon)
		box.MaxLng = math.Max(box.MaxLng, pos.Lon)
		if b.RecyclingType != "" && !seen[b.RecyclingType] {
			seen[b.RecyclingType] = true
			p.RecyclingTypes = append(p.RecyclingTypes, b.RecyclingType)
		}
	}
	p.Centroid = geo.Position{Lon: stat.Mean(lons, nil), Lat: stat.Mean(lats, nil)}
	p.BBox = box
	if hull := ConvexHull(pts); hull != nil {
		p.Polygon = hull
	} else {
		p.Polygon = boxPolygon(box)
	}
}

// absorb moves every booking of o into p.
func (p *Partition) absorb(o *Partition) {
	p.Bookings = append(p.Bookings, o.Bookings...)
	p.labels = append(p.labels, o.labels...)
	p.recompute()
}

// majorityLabel returns the most common DBSCAN label, smallest on ties, or
// Noise when the partition only holds noise.
func (p *Partition) majorityLabel() int {
	counts := make(map[int]int)
	for _, l := range p.labels {
		if l != Noise {
			counts[l]++
		}
	}
	best, bestN := Noise, 0
	for l, n := range counts {
		if n > bestN || (n == bestN && l < best) {
			best, bestN = l, n
		}
	}
	return best
}

func diagonal(b planstore.BBox) float64 {
	return geo.Distance(geo.Position{Lon: b.MinLng, Lat: b.MinLat}, geo.Position{Lon: b.MaxLng, Lat: b.MaxLat})
}

func union(a, b planstore.BBox) planstore.BBox {
	return planstore.BBox{
		MinLat: math.Min(a.MinLat, b.MinLat),
		MaxLat: math.Max(a.MaxLat, b.MaxLat),
		MinLng: math.Min(a.MinLng, b.MinLng),
		MaxLng: math.Max(a.MaxLng, b.MaxLng),
	}
}

// Summary converts the partition to its persisted form.
func (p *Partition) Summary(experimentID, truckID string) planstore.PartitionSummary {
	ids := make([]string, len(p.Bookings))
	for i, b := range p.Bookings {
		ids[i] = b.ID
	}
	return planstore.PartitionSummary{
		ExperimentID:   experimentID,
		TruckID:        truckID,
		ID:             p.ID,
		Count:          p.Count,
		Centroid:       p.Centroid,
		BBox:           p.BBox,
		Polygon:        append([]geo.Position(nil), p.Polygon...),
		RecyclingTypes: append([]string(nil), p.RecyclingTypes...),
		BookingIDs:     ids,
	}
}

// OrderByProximity reorders partitions with a greedy nearest neighbour walk
// over centroids starting at the first partition. Ties keep input order.
func OrderByProximity(parts []*Partition) []*Partition {
	if len(parts) < 2 {
		return parts
	}
	remaining := append([]*Partition(nil), parts...)
	out := make([]*Partition, 0, len(parts))
	cur := remaining[0]
	remaining = remaining[1:]
	out = append(out, cur)
	for len(remaining) > 0 {
		best, bestD := 0, math.Inf(1)
		for i, p := range remaining {
			if d := geo.Distance(cur.Centroid, p.Centroid); d < bestD {
				best, bestD = i, d
			}
		}
		cur = remaining[best]
		out = append(out, cur)
		remaining = append(remaining[:best], remaining[best+1:]...)
	}
	return out
}
