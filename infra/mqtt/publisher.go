package mqtt

import (
	"context"
	"sync"

	"github.com/kilianp07/fleetsim/core/events"
	"github.com/kilianp07/fleetsim/infra/logger"
	"github.com/kilianp07/fleetsim/internal/eventbus"
)

// Publisher sends a single event to the broker. PahoClient implements it.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// StartPublisher forwards every event of bus to pub until ctx is done or
// the bus is closed. Publish errors are logged and the event is dropped.
func StartPublisher(ctx context.Context, bus *eventbus.Bus[events.Event], pub Publisher) *sync.WaitGroup {
	log := logger.New("mqtt_publisher")
	sub := bus.SubscribeBuffered(1024)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		defer bus.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-sub:
				if !ok {
					return
				}
				if err := pub.Publish(ctx, ev); err != nil {
					log.Warnf("drop %s event for %s: %v", ev.Kind(), ev.Subject(), err)
				}
			}
		}
	}()
	return &wg
}

// MockPublisher records published events. It is used in tests and when no
// broker is configured.
type MockPublisher struct {
	mu     sync.Mutex
	Events []events.Event
	Err    error
}

func (m *MockPublisher) Publish(_ context.Context, ev events.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.Events = append(m.Events, ev)
	return nil
}

// Published returns a copy of the recorded events.
func (m *MockPublisher) Published() []events.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]events.Event(nil), m.Events...)
}
