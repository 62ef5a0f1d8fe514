package planstore

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetsim/core/factory"
	"github.com/kilianp07/fleetsim/core/geo"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	dir := t.TempDir()
	jsonl, err := NewJSONLStore(filepath.Join(dir, "plans.jsonl"))
	require.NoError(t, err)
	sqlite, err := NewSQLiteStore(filepath.Join(dir, "plans.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Store{"memory": NewMemoryStore(), "jsonl": jsonl, "sqlite": sqlite}
}

func TestPlanUpsertAndLoad(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.LoadPlan(ctx, "exp", "t1")
			if !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound got %v", err)
			}
			first := PlanRecord{ExperimentID: "exp", TruckID: "t1", Plan: json.RawMessage(`{"routes":[]}`), CreatedAt: time.Unix(10, 0)}
			second := PlanRecord{ExperimentID: "exp", TruckID: "t1", Plan: json.RawMessage(`{"routes":[{"vehicle":0}]}`), BookingIDs: []string{"b1"}, CreatedAt: time.Unix(20, 0)}
			require.NoError(t, s.SavePlan(ctx, first))
			require.NoError(t, s.SavePlan(ctx, second))
			got, err := s.LoadPlan(ctx, "exp", "t1")
			require.NoError(t, err)
			assert.JSONEq(t, `{"routes":[{"vehicle":0}]}`, string(got.Plan))
			assert.Equal(t, []string{"b1"}, got.BookingIDs)

			require.NoError(t, s.Delete(ctx, "exp"))
			_, err = s.LoadPlan(ctx, "exp", "t1")
			assert.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestPartitions(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			parts := []PartitionSummary{
				{ExperimentID: "exp", ID: "area-0", Count: 2, Centroid: geo.Position{Lon: 18, Lat: 59}},
				{ExperimentID: "exp", ID: "area-1", Count: 1},
				{ExperimentID: "other", ID: "area-0", Count: 5},
			}
			require.NoError(t, s.SavePartitions(ctx, parts))
			got, err := s.ListPartitions(ctx, "exp")
			require.NoError(t, err)
			require.Len(t, got, 2)
			assert.Equal(t, "area-0", got[0].ID)
			assert.Equal(t, 18.0, got[0].Centroid.Lon)

			require.NoError(t, s.Delete(ctx, "exp"))
			got, err = s.ListPartitions(ctx, "exp")
			require.NoError(t, err)
			assert.Empty(t, got)
			other, err := s.ListPartitions(ctx, "other")
			require.NoError(t, err)
			assert.Len(t, other, 1)
		})
	}
}

func TestFactory(t *testing.T) {
	s, err := New(factory.ModuleConfig{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	path := filepath.Join(t.TempDir(), "p.jsonl")
	s, err = New(factory.ModuleConfig{Type: "jsonl", Conf: map[string]any{"path": path}})
	require.NoError(t, err)
	assert.IsType(t, &JSONLStore{}, s)

	_, err = New(factory.ModuleConfig{Type: "nope"})
	assert.Error(t, err)
}
