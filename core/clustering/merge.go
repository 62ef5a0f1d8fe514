package clustering

import (
	"math"

	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/settings"
)

// mergeSmall folds undersized partitions into nearby ones. It runs at most
// cfg.MaxMergeRounds rounds and stops early when a round merges nothing.
func mergeSmall(parts []*Partition, cfg settings.Clustering) []*Partition {
	minSize := cfg.MinPartitionSize
	if minSize <= 1 {
		return parts
	}
	maxDist := cfg.EpsilonMeters * cfg.MergeDistanceMultiplier
	for round := 0; round < cfg.MaxMergeRounds; round++ {
		merged := false
		for i := 0; i < len(parts); {
			src := parts[i]
			if src.Count >= minSize {
				i++
				continue
			}
			j := mergeTarget(parts, i, maxDist, cfg)
			if j < 0 {
				i++
				continue
			}
			parts[j].absorb(src)
			parts = append(parts[:i], parts[i+1:]...)
			merged = true
		}
		if !merged {
			break
		}
	}
	return parts
}

// mergeTarget ranks candidates: partitions already large enough first, then
// small partitions larger than the source, then any other small partition.
// Within a tier the nearest centroid wins.
func mergeTarget(parts []*Partition, i int, maxDist float64, cfg settings.Clustering) int {
	src := parts[i]
	srcLabel := Noise
	if cfg.RespectOriginalClusters {
		srcLabel = src.majorityLabel()
	}
	best, bestTier, bestD := -1, math.MaxInt, math.Inf(1)
	for j, c := range parts {
		if j == i {
			continue
		}
		d := geo.Distance(src.Centroid, c.Centroid)
		if d > maxDist {
			continue
		}
		if cfg.MaxMergedDiagonalMeters > 0 && diagonal(union(src.BBox, c.BBox)) > cfg.MaxMergedDiagonalMeters {
			continue
		}
		if cfg.RespectOriginalClusters {
			if cl := c.majorityLabel(); srcLabel != Noise && cl != Noise && cl != srcLabel {
				continue
			}
		}
		tier := 2
		switch {
		case c.Count >= cfg.MinPartitionSize:
			tier = 0
		case c.Count > src.Count:
			tier = 1
		}
		if tier < bestTier || (tier == bestTier && d < bestD) {
			best, bestTier, bestD = j, tier, d
		}
	}
	return best
}
