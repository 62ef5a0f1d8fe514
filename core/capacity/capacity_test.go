package capacity

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/settings"
)

func ptr(v float64) *float64 { return &v }

func TestCreateCompartments(t *testing.T) {
	def := CreateCompartments(nil)
	require.Len(t, def, 1)
	assert.True(t, def[0].Accepts("anything"))
	assert.Nil(t, def[0].CapacityLiters)
	assert.Nil(t, def[0].CapacityKg)

	n := 7
	cs := CreateCompartments([]Spec{
		{FackNumber: &n, VolumeM3: 8, WeightLimit: 2000, WasteTypes: []string{"HUSHSORT"}},
		{VolumeM3: 0, WeightLimit: -1},
	})
	require.Len(t, cs, 2)
	assert.Equal(t, 7, cs[0].Index)
	assert.Equal(t, 8000.0, *cs[0].CapacityLiters)
	assert.Equal(t, 2000.0, *cs[0].CapacityKg)
	assert.False(t, cs[0].Accepts("GLAS"))
	assert.Equal(t, 2, cs[1].Index)
	assert.Nil(t, cs[1].CapacityLiters)
	assert.Nil(t, cs[1].CapacityKg)
	assert.True(t, cs[1].Accepts("GLAS"))
}

func TestSelectBestCompartmentPrefersEmptier(t *testing.T) {
	cs := []*Compartment{
		{Index: 1, AllowedTypes: []string{"HUSHSORT"}, CapacityLiters: ptr(1000), FillLiters: 500},
		{Index: 2, AllowedTypes: []string{"HUSHSORT"}, CapacityLiters: ptr(1000), FillLiters: 200},
	}
	best := SelectBestCompartment(cs, "HUSHSORT", model.Load{VolumeLiters: 100})
	require.NotNil(t, best)
	assert.Equal(t, 2, best.Index)
}

func TestSelectBestCompartmentFilteringAndTies(t *testing.T) {
	cs := []*Compartment{
		{Index: 1, AllowedTypes: []string{"GLAS"}},
		{Index: 2, AllowedTypes: []string{Wildcard}, CapacityLiters: ptr(500)},
		{Index: 3, AllowedTypes: []string{"MATAVF"}, CapacityLiters: ptr(500)},
	}
	assert.Nil(t, SelectBestCompartment(cs[:1], "MATAVF", model.Load{VolumeLiters: 1}))
	best := SelectBestCompartment(cs, "MATAVF", model.Load{VolumeLiters: 10})
	require.NotNil(t, best)
	assert.Equal(t, 2, best.Index, "ties keep first-seen order")
}

func TestSelectBestCompartmentWeight(t *testing.T) {
	cs := []*Compartment{
		{Index: 1, AllowedTypes: []string{Wildcard}, CapacityLiters: ptr(1000), CapacityKg: ptr(100), FillKg: 90},
		{Index: 2, AllowedTypes: []string{Wildcard}, CapacityLiters: ptr(1000), CapacityKg: ptr(100), FillLiters: 400},
	}
	best := SelectBestCompartment(cs, "X", model.Load{VolumeLiters: 100, WeightKg: ptr(20)})
	require.NotNil(t, best)
	assert.Equal(t, 2, best.Index)
}

func TestFillNeverNegative(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	c := &Compartment{CapacityLiters: ptr(300), CapacityKg: ptr(50)}
	for i := 0; i < 500; i++ {
		l := model.Load{VolumeLiters: rng.Intn(120), WeightKg: ptr(float64(rng.Intn(30)))}
		if rng.Intn(2) == 0 {
			ApplyLoad(c, l)
		} else {
			ReleaseLoad(c, l)
		}
		if c.FillLiters < 0 || c.FillKg < 0 {
			t.Fatalf("negative fill after step %d: %+v", i, c)
		}
		want := c.FillLiters >= 300 || c.FillKg >= 50
		if IsCompartmentFull(c) != want {
			t.Fatalf("full mismatch at step %d: %+v", i, c)
		}
	}
}

func TestIsCompartmentFullUnlimited(t *testing.T) {
	c := &Compartment{FillLiters: 1e9, FillKg: 1e9}
	assert.False(t, IsCompartmentFull(c))
	c.CapacityLiters = ptr(0)
	assert.False(t, IsCompartmentFull(c))
}

func TestReleaseWithoutWeight(t *testing.T) {
	c := &Compartment{FillLiters: 50, FillKg: 10}
	ReleaseLoad(c, model.Load{VolumeLiters: 80})
	assert.Equal(t, 0.0, c.FillLiters)
	assert.Equal(t, 10.0, c.FillKg)
}

func TestEstimateBookingLoad(t *testing.T) {
	s := settings.Default()
	s.ServiceTypes = map[string]settings.ServiceType{"KRL140": {VolumeLiters: 140, FillPercent: 80}}
	s.WasteTypes = map[string]settings.WasteType{"HUSHSORT": {DensityKgM3: 100}}

	b := &model.Booking{Tjtyp: "KRL140", RecyclingType: "HUSHSORT"}
	load := EstimateBookingLoad(b, s)
	assert.Equal(t, 112, load.VolumeLiters)
	require.NotNil(t, load.WeightKg)
	assert.InDelta(t, 11.2, *load.WeightKg, 1e-9)

	unknown := EstimateBookingLoad(&model.Booking{Tjtyp: "NOPE", RecyclingType: "GLAS"}, s)
	assert.Equal(t, 140, unknown.VolumeLiters)
	assert.Nil(t, unknown.WeightKg)

	s.VolumeCompressionFactor = 0.001
	tiny := EstimateBookingLoad(b, s)
	assert.Equal(t, 1, tiny.VolumeLiters)
}

func TestDimensions(t *testing.T) {
	cs := []*Compartment{
		{CapacityLiters: ptr(1000), FillLiters: 250.6},
		{CapacityLiters: ptr(500), FillLiters: 600, CapacityKg: ptr(300), FillKg: 20},
		{},
	}
	names, values := Dimensions(cs, 10, 2)
	assert.Equal(t, []string{DimVolume, DimWeight}, names)
	assert.Equal(t, []int{649, 280}, values)

	names, values = Dimensions(CreateCompartments(nil), 10, 3)
	assert.Equal(t, []string{DimCount}, names)
	assert.Equal(t, []int{7}, values)

	_, values = Dimensions(CreateCompartments(nil), 2, 5)
	assert.Equal(t, []int{0}, values)
}
