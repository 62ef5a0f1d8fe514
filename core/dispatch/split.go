package dispatch

import (
	"encoding/json"
	"sort"

	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/vrp"
)

// SimpleGeographicSplit halves bookings along their widest axis until every
// chunk holds at most maxSize bookings. Every booking appears in exactly one
// chunk.
func SimpleGeographicSplit(bookings []*model.Booking, maxSize int) [][]*model.Booking {
	if len(bookings) == 0 {
		return nil
	}
	if maxSize <= 0 || len(bookings) <= maxSize {
		return [][]*model.Booking{bookings}
	}
	sorted := append([]*model.Booking(nil), bookings...)
	minLon, maxLon := sorted[0].Pickup.Lon, sorted[0].Pickup.Lon
	minLat, maxLat := sorted[0].Pickup.Lat, sorted[0].Pickup.Lat
	for _, b := range sorted[1:] {
		minLon, maxLon = min(minLon, b.Pickup.Lon), max(maxLon, b.Pickup.Lon)
		minLat, maxLat = min(minLat, b.Pickup.Lat), max(maxLat, b.Pickup.Lat)
	}
	byLon := maxLon-minLon >= maxLat-minLat
	sort.SliceStable(sorted, func(i, j int) bool {
		if byLon {
			return sorted[i].Pickup.Lon < sorted[j].Pickup.Lon
		}
		return sorted[i].Pickup.Lat < sorted[j].Pickup.Lat
	})
	mid := len(sorted) / 2
	return append(SimpleGeographicSplit(sorted[:mid], maxSize), SimpleGeographicSplit(sorted[mid:], maxSize)...)
}

// SubResult is a solved sub-problem and the bookings indexed by its
// shipments.
type SubResult struct {
	Response *vrp.Response
	Bookings []*model.Booking
}

// CombineSubResults merges independently solved sub-problems of one truck
// into a single route. Step ids of each sub-result are shifted by twice the
// number of shipments before it, so the returned booking slice resolves
// every merged id. Only the first start and the last end step are kept.
func CombineSubResults(subs []SubResult) (*vrp.Response, []*model.Booking) {
	combined := &vrp.Response{}
	var route vrp.Route
	var bookings []*model.Booking
	var timeOffset int64
	offset := 0
	for i, sub := range subs {
		if sub.Response != nil && len(sub.Response.Routes) > 0 {
			r := sub.Response.Routes[0]
			var last int64
			for _, st := range r.Steps {
				switch st.Type {
				case vrp.StepStart:
					if i > 0 {
						continue
					}
				case vrp.StepEnd:
					if i < len(subs)-1 {
						last = max(last, st.Arrival)
						continue
					}
				case vrp.StepPickup, vrp.StepDelivery, vrp.StepJob:
					st.ID += offset
				}
				st.Arrival += timeOffset
				if st.Departure != 0 {
					st.Departure += timeOffset
				}
				last = max(last, st.Arrival)
				route.Steps = append(route.Steps, st)
			}
			route.Distance += r.Distance
			route.Duration += r.Duration
			route.Cost += r.Cost
			timeOffset += last
		}
		if sub.Response != nil {
			for _, u := range sub.Response.Unassigned {
				u.ID += offset
				combined.Unassigned = append(combined.Unassigned, u)
			}
		}
		bookings = append(bookings, sub.Bookings...)
		offset += 2 * len(sub.Bookings)
	}
	combined.Routes = []vrp.Route{route}
	if raw, err := json.Marshal(combined); err == nil {
		combined.Raw = raw
	}
	return combined, bookings
}

// GroupByPostalCode keeps one group per booking up to threshold bookings.
// Larger batches are grouped by postal code in order of first appearance;
// bookings without postal code stay alone.
func GroupByPostalCode(bookings []*model.Booking, threshold int) [][]*model.Booking {
	groups := make([][]*model.Booking, 0, len(bookings))
	if len(bookings) <= threshold {
		for _, b := range bookings {
			groups = append(groups, []*model.Booking{b})
		}
		return groups
	}
	index := make(map[string]int)
	for _, b := range bookings {
		if b.PostalCode == "" {
			groups = append(groups, []*model.Booking{b})
			continue
		}
		i, ok := index[b.PostalCode]
		if !ok {
			i = len(groups)
			index[b.PostalCode] = i
			groups = append(groups, nil)
		}
		groups[i] = append(groups[i], b)
	}
	return groups
}

// jobsFromGroups turns groups into solver jobs, splitting groups larger
// than maxSize. The returned slice maps job id to its bookings.
func jobsFromGroups(groups [][]*model.Booking, maxSize int, dims []string, amount func(*model.Booking, []string) []int) ([]vrp.Job, [][]*model.Booking) {
	var jobs []vrp.Job
	var members [][]*model.Booking
	for _, g := range groups {
		for start := 0; start < len(g); start += max(maxSize, 1) {
			end := min(len(g), start+max(maxSize, 1))
			chunk := g[start:end]
			total := make([]int, len(dims))
			pts := make([]geo.Position, len(chunk))
			for i, b := range chunk {
				for d, v := range amount(b, dims) {
					total[d] += v
				}
				pts[i] = b.Pickup
			}
			jobs = append(jobs, vrp.Job{
				ID:       len(jobs),
				Location: vrp.ToLocation(centroid(pts)),
				Service:  vrp.ServiceSeconds * len(chunk),
				Pickup:   total,
			})
			members = append(members, chunk)
		}
	}
	return jobs, members
}

func centroid(pts []geo.Position) geo.Position {
	var c geo.Position
	for _, p := range pts {
		c.Lon += p.Lon
		c.Lat += p.Lat
	}
	n := float64(len(pts))
	return geo.Position{Lon: c.Lon / n, Lat: c.Lat / n}
}

// assignmentsFromRoutes expands job steps of every route back into
// bookings, keyed by vehicle id. A booking is assigned once.
func assignmentsFromRoutes(res *vrp.Response, members [][]*model.Booking) map[int][]*model.Booking {
	out := make(map[int][]*model.Booking)
	seen := make(map[*model.Booking]bool)
	for _, r := range res.Routes {
		for _, st := range r.Steps {
			if st.Type != vrp.StepJob || st.ID < 0 || st.ID >= len(members) {
				continue
			}
			for _, b := range members[st.ID] {
				if seen[b] {
					continue
				}
				seen[b] = true
				out[r.Vehicle] = append(out[r.Vehicle], b)
			}
		}
	}
	return out
}
