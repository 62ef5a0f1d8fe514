// Package planstore persists raw solver plans for replay and partition
// summaries for observability.
package planstore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/kilianp07/fleetsim/core/factory"
	"github.com/kilianp07/fleetsim/core/geo"
)

// ErrNotFound is returned when no plan exists for the requested key.
var ErrNotFound = errors.New("plan not found")

// PlanRecord is the raw solver response computed for one truck.
type PlanRecord struct {
	ExperimentID string          `json:"experiment_id"`
	TruckID      string          `json:"truck_id"`
	Plan         json.RawMessage `json:"plan"`
	// BookingIDs maps shipment index to booking id.
	BookingIDs []string  `json:"booking_ids"`
	CreatedAt  time.Time `json:"created_at"`
}

// BBox is a lat/lng bounding box.
type BBox struct {
	MinLat float64 `json:"min_lat"`
	MaxLat float64 `json:"max_lat"`
	MinLng float64 `json:"min_lng"`
	MaxLng float64 `json:"max_lng"`
}

// PartitionSummary is the persisted view of a spatial partition.
type PartitionSummary struct {
	ExperimentID   string         `json:"experiment_id"`
	TruckID        string         `json:"truck_id,omitempty"`
	ID             string         `json:"id"`
	Count          int            `json:"count"`
	Centroid       geo.Position   `json:"centroid"`
	BBox           BBox           `json:"bbox"`
	Polygon        []geo.Position `json:"polygon"`
	RecyclingTypes []string       `json:"recycling_types"`
	BookingIDs     []string       `json:"booking_ids"`
	CreatedAt      time.Time      `json:"created_at"`
}

// Store persists plans and partitions. Get-by-id, upsert and delete are the
// only operations the simulation relies on.
type Store interface {
	SavePlan(ctx context.Context, rec PlanRecord) error
	LoadPlan(ctx context.Context, experimentID, truckID string) (PlanRecord, error)
	SavePartitions(ctx context.Context, parts []PartitionSummary) error
	ListPartitions(ctx context.Context, experimentID string) ([]PartitionSummary, error)
	Delete(ctx context.Context, experimentID string) error
	Close() error
}

var registry = factory.NewRegistry[Store]()

func init() {
	_ = Register("memory", func(map[string]any) (Store, error) { return NewMemoryStore(), nil })
	_ = Register("jsonl", func(conf map[string]any) (Store, error) {
		var c struct {
			Path string `json:"path"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			c.Path = "plans.jsonl"
		}
		return NewJSONLStore(c.Path)
	})
	_ = Register("sqlite", func(conf map[string]any) (Store, error) {
		var c struct {
			Path string `json:"path"`
		}
		if err := factory.Decode(conf, &c); err != nil {
			return nil, err
		}
		if c.Path == "" {
			c.Path = "plans.db"
		}
		return NewSQLiteStore(c.Path)
	})
}

// Register adds a store backend.
func Register(name string, f factory.Factory[Store]) error {
	return registry.Register(name, f)
}

// New builds the configured backend; an empty type yields a memory store.
func New(cfg factory.ModuleConfig) (Store, error) {
	if cfg.Type == "" {
		return NewMemoryStore(), nil
	}
	return registry.Create(cfg)
}
