package capacity

import (
	"math"

	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/settings"
)

// Dimension names of the solver capacity vector, in canonical order.
const (
	DimVolume = "volumeLiters"
	DimWeight = "weightKg"
	DimCount  = "count"
)

// EstimateBookingLoad derives the booking load from the service type and
// waste type tables.
func EstimateBookingLoad(b *model.Booking, s *settings.Settings) model.Load {
	volume := float64(settings.DefaultVolumeLiters)
	fill := float64(settings.DefaultFillPercent)
	if st, ok := s.ServiceTypes[b.ServiceTypeCode()]; ok {
		if st.VolumeLiters > 0 && !math.IsNaN(st.VolumeLiters) {
			volume = st.VolumeLiters
		}
		if st.FillPercent > 0 && !math.IsNaN(st.FillPercent) {
			fill = st.FillPercent
		}
	}
	compression := s.VolumeCompressionFactor
	if compression <= 0 || math.IsNaN(compression) {
		compression = 1
	}
	liters := int(math.Max(1, math.Round(volume*fill/100*compression)))
	load := model.Load{VolumeLiters: liters}
	if wt, ok := s.WasteTypes[b.RecyclingType]; ok && wt.DensityKgM3 > 0 {
		kg := float64(liters) / 1000 * wt.DensityKgM3
		load.WeightKg = &kg
	}
	return load
}

// LoadOf returns the booking's stored load or estimates it.
func LoadOf(b *model.Booking, s *settings.Settings) model.Load {
	if b.Load != nil {
		return *b.Load
	}
	return EstimateBookingLoad(b, s)
}

// Dimensions sums remaining capacity per declared dimension. When no
// compartment declares a capacity, a single count dimension derived from the
// parcel capacity is returned.
func Dimensions(cs []*Compartment, parcelCapacity, cargo int) ([]string, []int) {
	var liters, kg float64
	var hasLiters, hasKg bool
	for _, c := range cs {
		if c.CapacityLiters != nil {
			hasLiters = true
			liters += *c.CapacityLiters - c.FillLiters
		}
		if c.CapacityKg != nil {
			hasKg = true
			kg += *c.CapacityKg - c.FillKg
		}
	}
	var names []string
	var values []int
	if hasLiters {
		names = append(names, DimVolume)
		values = append(values, clampFloor(liters))
	}
	if hasKg {
		names = append(names, DimWeight)
		values = append(values, clampFloor(kg))
	}
	if len(names) == 0 {
		names = append(names, DimCount)
		values = append(values, max(0, parcelCapacity-cargo))
	}
	return names, values
}

func clampFloor(v float64) int {
	if v <= 0 {
		return 0
	}
	return int(math.Floor(v))
}
