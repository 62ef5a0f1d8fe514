// Package eco aggregates per truck and day the distance, emissions and
// pickups of a simulation.
package eco

import "time"

// Record aggregates ecological KPIs for a truck and day.
type Record struct {
	TruckID    string
	Date       time.Time
	DistanceKm float64
	CO2Kg      float64
	Pickups    int
}

// CO2PerPickup returns the emitted kg of CO2 per collected booking.
func (r Record) CO2PerPickup() float64 {
	if r.Pickups == 0 {
		return 0
	}
	return r.CO2Kg / float64(r.Pickups)
}

// KmPerPickup returns the driven distance per collected booking.
func (r Record) KmPerPickup() float64 {
	if r.Pickups == 0 {
		return 0
	}
	return r.DistanceKm / float64(r.Pickups)
}
