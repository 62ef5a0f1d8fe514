package model

// Action is the kind of a plan instruction.
type Action string

const (
	ActionStart    Action = "start"
	ActionPickup   Action = "pickup"
	ActionDelivery Action = "delivery"
	ActionEnd      Action = "end"
)

// Instruction is one step of a vehicle plan. Arrival and Departure are
// offsets in seconds from the moment the plan was computed.
type Instruction struct {
	Action    Action   `json:"action"`
	Arrival   int64    `json:"arrival"`
	Departure int64    `json:"departure"`
	Booking   *Booking `json:"-"`
}

// BookingID returns the id of the associated booking or "".
func (i Instruction) BookingID() string {
	if i.Booking == nil {
		return ""
	}
	return i.Booking.ID
}
