package dispatch

import (
	"context"
	"sync"

	"github.com/kilianp07/fleetsim/core/logger"
	"github.com/kilianp07/fleetsim/core/model"
)

// Standard hands bookings to vehicles in a rotation that persists across
// batches: the vehicle served last moves to the back of the ring.
type Standard struct {
	mu   sync.Mutex
	ring []Vehicle
	log  logger.Logger
}

// NewStandard returns a round-robin dispatcher over vehicles.
func NewStandard(vehicles []Vehicle, log logger.Logger) *Standard {
	return &Standard{ring: append([]Vehicle(nil), vehicles...), log: log}
}

func (s *Standard) Name() string { return TypeStandard }

func (s *Standard) Dispatch(ctx context.Context, batch []*model.Booking) ([]*model.Booking, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ring) == 0 {
		return nil, nil
	}
	var out []*model.Booking
	for _, b := range batch {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		if b.Status() != model.BookingNew {
			continue
		}
		v := s.ring[0]
		s.ring = append(s.ring[1:], v)
		if err := v.HandleBooking(b); err != nil {
			s.log.Warnf("truck %s refused booking %s: %v", v.ID(), b.ID, err)
			continue
		}
		out = append(out, b)
	}
	return out, nil
}
