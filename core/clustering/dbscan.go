package clustering

import (
	"sort"

	"gonum.org/v1/gonum/spatial/vptree"

	"github.com/kilianp07/fleetsim/core/geo"
)

// Noise labels points that belong to no cluster.
const Noise = -1

const unvisited = -2

// site is a point indexed in the vantage point tree. Great-circle distance
// is a metric, which the tree requires.
type site struct {
	idx int
	pos geo.Position
}

func (s site) Distance(c vptree.Comparable) float64 {
	return geo.Distance(s.pos, c.(site).pos)
}

// DBSCAN labels every point with a cluster id starting at 0 or Noise.
// Points are visited in input order so labels are deterministic.
func DBSCAN(points []geo.Position, epsMeters float64, minPts int) ([]int, error) {
	labels := make([]int, len(points))
	if len(points) == 0 {
		return labels, nil
	}
	sites := make([]site, len(points))
	comps := make([]vptree.Comparable, len(points))
	for i, p := range points {
		sites[i] = site{idx: i, pos: p}
		comps[i] = sites[i]
	}
	tree, err := vptree.New(comps, 0, nil)
	if err != nil {
		return nil, err
	}
	region := func(i int) []int {
		k := vptree.NewDistKeeper(epsMeters)
		tree.NearestSet(k, sites[i])
		out := make([]int, 0, len(k.Heap))
		for _, cd := range k.Heap {
			if cd.Comparable == nil {
				continue
			}
			out = append(out, cd.Comparable.(site).idx)
		}
		sort.Ints(out)
		return out
	}

	for i := range labels {
		labels[i] = unvisited
	}
	cluster := 0
	for i := range points {
		if labels[i] != unvisited {
			continue
		}
		neighbors := region(i)
		if len(neighbors) < minPts {
			labels[i] = Noise
			continue
		}
		labels[i] = cluster
		queue := append([]int(nil), neighbors...)
		for q := 0; q < len(queue); q++ {
			j := queue[q]
			if labels[j] == Noise {
				labels[j] = cluster
			}
			if labels[j] != unvisited {
				continue
			}
			labels[j] = cluster
			if nb := region(j); len(nb) >= minPts {
				queue = append(queue, nb...)
			}
		}
		cluster++
	}
	return labels, nil
}
