// Package export writes truck plans in JSON or CSV.
package export

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/kilianp07/fleetsim/core/geo"
	"github.com/kilianp07/fleetsim/core/model"
)

// Step is the exported view of a plan instruction.
type Step struct {
	TruckID   string        `json:"truck_id"`
	Action    string        `json:"action"`
	BookingID string        `json:"booking_id,omitempty"`
	Position  *geo.Position `json:"position,omitempty"`
	Arrival   int64         `json:"arrival"`
	Departure int64         `json:"departure"`
}

// Steps flattens plan. Pickups are located at the booking pickup,
// deliveries at its destination when it has one.
func Steps(truckID string, plan []model.Instruction) []Step {
	out := make([]Step, len(plan))
	for i, in := range plan {
		out[i] = Step{
			TruckID:   truckID,
			Action:    string(in.Action),
			BookingID: in.BookingID(),
			Arrival:   in.Arrival,
			Departure: in.Departure,
		}
		if b := in.Booking; b != nil {
			switch {
			case in.Action == model.ActionPickup:
				p := b.Pickup
				out[i].Position = &p
			case in.Action == model.ActionDelivery && b.Destination != nil:
				p := *b.Destination
				out[i].Position = &p
			}
		}
	}
	return out
}

// WriteJSON writes steps to w as an indented JSON array.
func WriteJSON(w io.Writer, steps []Step) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(steps)
}

// WriteCSV writes steps to w with a header row. Steps without a position
// leave lon and lat empty.
func WriteCSV(w io.Writer, steps []Step) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"truck_id", "step", "action", "booking_id", "lon", "lat", "arrival_s", "departure_s"}); err != nil {
		return err
	}
	for i, s := range steps {
		lon, lat := "", ""
		if s.Position != nil {
			lon = strconv.FormatFloat(s.Position.Lon, 'f', -1, 64)
			lat = strconv.FormatFloat(s.Position.Lat, 'f', -1, 64)
		}
		rec := []string{
			s.TruckID,
			strconv.Itoa(i),
			s.Action,
			s.BookingID,
			lon,
			lat,
			strconv.FormatInt(s.Arrival, 10),
			strconv.FormatInt(s.Departure, 10),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// Write dispatches on format: "json" or "csv".
func Write(w io.Writer, format string, steps []Step) error {
	switch format {
	case "", "json":
		return WriteJSON(w, steps)
	case "csv":
		return WriteCSV(w, steps)
	}
	return fmt.Errorf("unknown export format %q", format)
}
