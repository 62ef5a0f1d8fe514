// Package clustering groups bookings into spatial partitions using DBSCAN,
// noise reassignment and a small partition merge pass.
package clustering

import (
	"context"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/logger"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/planstore"
	"github.com/kilianp07/fleetsim/core/settings"
)

// PartitionSaver persists partition summaries.
type PartitionSaver interface {
	SavePartitions(ctx context.Context, parts []planstore.PartitionSummary) error
}

// Clusterer computes spatial partitions for one fleet configuration.
type Clusterer struct {
	cfg   settings.Clustering
	log   logger.Logger
	saver PartitionSaver
	wg    sync.WaitGroup
}

// New returns a Clusterer. saver may be nil.
func New(cfg settings.Clustering, log logger.Logger, saver PartitionSaver) *Clusterer {
	return &Clusterer{cfg: cfg, log: log, saver: saver}
}

// Wait blocks until pending partition writes finish.
func (c *Clusterer) Wait() { c.wg.Wait() }

// CreateSpatialChunks partitions bookings. Invalid coordinates are dropped.
// Noise that cannot be reassigned becomes a singleton partition so every
// valid booking lands in exactly one partition.
func (c *Clusterer) CreateSpatialChunks(ctx context.Context, bookings []*model.Booking, experimentID, truckID string) []*Partition {
	if len(bookings) == 0 {
		return nil
	}
	valid := make([]*model.Booking, 0, len(bookings))
	for _, b := range bookings {
		p := b.Pickup
		if !p.IsValid() || math.IsInf(p.Lon, 0) || math.IsInf(p.Lat, 0) {
			c.log.Warnf("dropping booking %s: invalid coordinates %v", b.ID, p)
			continue
		}
		valid = append(valid, b)
	}
	if len(valid) == 0 {
		return nil
	}
	points := make([]geo.Position, len(valid))
	for i, b := range valid {
		points[i] = b.Pickup
	}
	labels, err := DBSCAN(points, c.cfg.EpsilonMeters, c.cfg.MinPoints)
	if err != nil {
		c.log.Errorf("dbscan: %v", err)
		labels = make([]int, len(valid))
		for i := range labels {
			labels[i] = Noise
		}
	}
	assigned := labels
	if c.cfg.ReassignNoise {
		c.reassignNoise(points, assigned)
	}

	prefix := "area-"
	if truckID != "" {
		prefix = fmt.Sprintf("truck-%s-area-", truckID)
	}
	parts := buildPartitions(valid, assigned, prefix)
	if c.cfg.MergeEnabled {
		before := len(parts)
		parts = mergeSmall(parts, c.cfg)
		if len(parts) != before {
			c.log.Debugf("merged %d small partitions", before-len(parts))
		}
	}
	parts = OrderByProximity(parts)
	c.log.Debugw("partitions computed", map[string]any{
		"bookings":   len(valid),
		"partitions": len(parts),
		"truck_id":   truckID,
	})
	if experimentID != "" && c.saver != nil {
		c.persist(experimentID, truckID, parts)
	}
	return parts
}

// reassignNoise attaches noise points to the nearest cluster centroid within
// MaxNoiseDistanceMeters.
func (c *Clusterer) reassignNoise(points []geo.Position, labels []int) {
	type acc struct{ lon, lat, n float64 }
	sums := map[int]*acc{}
	maxLabel := -1
	for i, l := range labels {
		if l == Noise {
			continue
		}
		a := sums[l]
		if a == nil {
			a = &acc{}
			sums[l] = a
		}
		a.lon += points[i].Lon
		a.lat += points[i].Lat
		a.n++
		if l > maxLabel {
			maxLabel = l
		}
	}
	if len(sums) == 0 {
		return
	}
	centroids := make([]*geo.Position, maxLabel+1)
	for l, a := range sums {
		centroids[l] = &geo.Position{Lon: a.lon / a.n, Lat: a.lat / a.n}
	}
	for i, l := range labels {
		if l != Noise {
			continue
		}
		best, bestD := Noise, math.Inf(1)
		for cl, ctr := range centroids {
			if ctr == nil {
				continue
			}
			if d := float64(geo.Haversine(points[i], *ctr)); d < bestD {
				best, bestD = cl, d
			}
		}
		if best != Noise && bestD <= c.cfg.MaxNoiseDistanceMeters {
			labels[i] = best
		}
	}
}

// buildPartitions groups bookings per assigned label in label order, then
// one singleton per remaining noise booking in input order.
func buildPartitions(bookings []*model.Booking, assigned []int, prefix string) []*Partition {
	maxLabel := -1
	for _, l := range assigned {
		if l > maxLabel {
			maxLabel = l
		}
	}
	buckets := make([][]int, maxLabel+1)
	var noise []int
	for i, l := range assigned {
		if l == Noise {
			noise = append(noise, i)
			continue
		}
		buckets[l] = append(buckets[l], i)
	}
	var parts []*Partition
	add := func(idx []int) {
		bs := make([]*model.Booking, len(idx))
		ls := make([]int, len(idx))
		for k, i := range idx {
			bs[k] = bookings[i]
			ls[k] = assigned[i]
		}
		parts = append(parts, newPartition(fmt.Sprintf("%s%d", prefix, len(parts)), bs, ls))
	}
	for _, idx := range buckets {
		if len(idx) > 0 {
			add(idx)
		}
	}
	for _, i := range noise {
		add([]int{i})
	}
	return parts
}

func (c *Clusterer) persist(experimentID, truckID string, parts []*Partition) {
	summaries := make([]planstore.PartitionSummary, len(parts))
	now := time.Now()
	for i, p := range parts {
		summaries[i] = p.Summary(experimentID, truckID)
		summaries[i].CreatedAt = now
	}
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := c.saver.SavePartitions(ctx, summaries); err != nil {
			c.log.Warnf("save partitions for %s: %v", experimentID, err)
		}
	}()
}
