// Package vrp converts bookings and trucks into vehicle routing problems,
// runs them through an external solver and maps solutions back to plans.
package vrp

import "encoding/json"

// Location is a [lon, lat] pair.
type Location [2]float64

// TimeWindow is a [start, end] pair of seconds relative to the planning
// instant.
type TimeWindow [2]int64

// ShipmentStep is the pickup or delivery half of a shipment.
type ShipmentStep struct {
	ID          int          `json:"id"`
	Location    Location     `json:"location"`
	Service     int          `json:"service,omitempty"`
	TimeWindows []TimeWindow `json:"time_windows,omitempty"`
}

// Shipment is a paired pickup and delivery.
type Shipment struct {
	Pickup   ShipmentStep `json:"pickup"`
	Delivery ShipmentStep `json:"delivery"`
	Amount   []int        `json:"amount,omitempty"`
}

// Job is a single stop task.
type Job struct {
	ID          int          `json:"id"`
	Location    Location     `json:"location"`
	Service     int          `json:"service,omitempty"`
	Delivery    []int        `json:"delivery,omitempty"`
	Pickup      []int        `json:"pickup,omitempty"`
	TimeWindows []TimeWindow `json:"time_windows,omitempty"`
}

// Break is a driver break.
type Break struct {
	ID          int          `json:"id"`
	TimeWindows []TimeWindow `json:"time_windows,omitempty"`
	Service     int          `json:"service,omitempty"`
}

// Vehicle is a solver vehicle.
type Vehicle struct {
	ID         int         `json:"id"`
	Profile    string      `json:"profile,omitempty"`
	Start      *Location   `json:"start,omitempty"`
	End        *Location   `json:"end,omitempty"`
	Capacity   []int       `json:"capacity,omitempty"`
	TimeWindow *TimeWindow `json:"time_window,omitempty"`
	Breaks     []Break     `json:"breaks,omitempty"`
}

// Options are solver options.
type Options struct {
	Plan bool `json:"plan"`
}

// Request is the solver request body.
type Request struct {
	Jobs      []Job      `json:"jobs,omitempty"`
	Shipments []Shipment `json:"shipments,omitempty"`
	Vehicles  []Vehicle  `json:"vehicles"`
	Options   Options    `json:"options"`
}

// Step types returned by the solver.
const (
	StepStart    = "start"
	StepJob      = "job"
	StepPickup   = "pickup"
	StepDelivery = "delivery"
	StepBreak    = "break"
	StepEnd      = "end"
)

// Step is one stop of a solved route.
type Step struct {
	Type        string   `json:"type"`
	ID          int      `json:"id"`
	Location    Location `json:"location"`
	Arrival     int64    `json:"arrival"`
	Departure   int64    `json:"departure,omitempty"`
	Service     int64    `json:"service,omitempty"`
	WaitingTime int64    `json:"waiting_time,omitempty"`
	Duration    int64    `json:"duration,omitempty"`
}

// DepartureTime returns the departure offset, derived from arrival, waiting
// and service when the solver omits it.
func (s Step) DepartureTime() int64 {
	if s.Departure != 0 {
		return s.Departure
	}
	return s.Arrival + s.WaitingTime + s.Service
}

// Route is the solved route of one vehicle.
type Route struct {
	Vehicle  int    `json:"vehicle"`
	Steps    []Step `json:"steps"`
	Cost     int64  `json:"cost,omitempty"`
	Distance int64  `json:"distance,omitempty"`
	Duration int64  `json:"duration,omitempty"`
}

// Unassigned is a task the solver could not place.
type Unassigned struct {
	ID   int    `json:"id"`
	Type string `json:"type"`
}

// Response is the decoded solver response. Raw keeps the original bytes.
type Response struct {
	Code       int             `json:"code"`
	Routes     []Route         `json:"routes"`
	Unassigned []Unassigned    `json:"unassigned"`
	Raw        json.RawMessage `json:"-"`
}

// Decode parses a raw solver body.
func Decode(raw []byte) (*Response, error) {
	var r Response
	if err := json.Unmarshal(raw, &r); err != nil {
		return nil, err
	}
	r.Raw = append(json.RawMessage(nil), raw...)
	return &r, nil
}

// ShipmentIndex maps a pickup or delivery step id back to its shipment.
func ShipmentIndex(stepID int) int { return stepID / 2 }
