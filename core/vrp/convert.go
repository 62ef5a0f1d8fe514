package vrp

import (
	"math"
	"time"

	"github.com/kilianp07/fleetsim/core/capacity"
	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/model"
	"github.com/kilianp07/fleetsim/core/settings"
)

// ServiceSeconds is the fixed service time per stop.
const ServiceSeconds = 60

// Truck is the view of a vehicle needed to build a solver vehicle.
type Truck interface {
	ID() string
	Position() geo.Position
	// Destination returns the end position of the current trip or nil.
	Destination() *geo.Position
	CapacityDimensions() ([]string, []int)
}

// ToLocation converts a position to a solver location.
func ToLocation(p geo.Position) Location { return Location{p.Lon, p.Lat} }

func workdayWindow(s *settings.Settings, now time.Time) TimeWindow {
	start, end := s.WorkdayWindow(now)
	return TimeWindow{int64(start.Sub(now).Seconds()), int64(end.Sub(now).Seconds())}
}

// BookingToShipment builds the shipment of booking index. The pickup step id
// is 2*index and the delivery step id 2*index+1. dims must be the dimension
// order returned by TruckToVehicle so amounts line up with capacities.
func BookingToShipment(b *model.Booking, index int, dims []string, s *settings.Settings, now time.Time) Shipment {
	tw := []TimeWindow{workdayWindow(s, now)}
	amount := Amount(b, dims, s)
	return Shipment{
		Pickup: ShipmentStep{
			ID:          2 * index,
			Location:    ToLocation(b.Pickup),
			Service:     ServiceSeconds,
			TimeWindows: tw,
		},
		Delivery: ShipmentStep{
			ID:          2*index + 1,
			Location:    ToLocation(b.DeliveryPosition()),
			Service:     ServiceSeconds,
			TimeWindows: tw,
		},
		Amount: amount,
	}
}

// Amount returns the load of b along dims, scaled by its group multiplier.
func Amount(b *model.Booking, dims []string, s *settings.Settings) []int {
	load := capacity.LoadOf(b, s)
	mult := b.GroupMultiplier()
	amount := make([]int, 0, len(dims))
	for _, d := range dims {
		switch d {
		case capacity.DimVolume:
			amount = append(amount, load.VolumeLiters*mult)
		case capacity.DimWeight:
			kg := 0
			if load.WeightKg != nil {
				kg = int(math.Max(0, math.Round(*load.WeightKg*float64(mult))))
			}
			amount = append(amount, kg)
		default:
			amount = append(amount, mult)
		}
	}
	return amount
}

// TruckToVehicle builds the solver vehicle for t and returns the capacity
// dimension order used for its capacity vector. start overrides the truck
// position when set.
func TruckToVehicle(t Truck, index int, start *geo.Position, s *settings.Settings, now time.Time) (Vehicle, []string) {
	dims, values := t.CapacityDimensions()
	from := t.Position()
	to := from
	if start != nil {
		from = *start
	}
	if d := t.Destination(); d != nil {
		to = *d
	}
	startLoc, endLoc := ToLocation(from), ToLocation(to)
	tw := workdayWindow(s, now)
	return Vehicle{
		ID:         index,
		Start:      &startLoc,
		End:        &endLoc,
		Capacity:   values,
		TimeWindow: &tw,
		Breaks:     breaks(s, now),
	}, dims
}

// breaks converts the configured breaks into windows relative to now.
// Breaks with no duration, an unparseable time or already over are dropped.
func breaks(s *settings.Settings, now time.Time) []Break {
	var out []Break
	day := settings.Midnight(now)
	for _, b := range s.Breaks {
		if b.DurationMinutes <= 0 {
			continue
		}
		mins, err := settings.ParseClock(b.DesiredTime)
		if err != nil {
			continue
		}
		dur := int64(b.DurationMinutes) * 60
		offset := int64(day.Add(time.Duration(mins) * time.Minute).Sub(now).Seconds())
		if offset+dur <= 0 {
			continue
		}
		start := max(offset, 0)
		out = append(out, Break{
			ID:          b.ID,
			TimeWindows: []TimeWindow{{start, offset + dur}},
			Service:     int(dur),
		})
	}
	return out
}
