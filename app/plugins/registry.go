// Package plugins maps dispatcher type names from configuration to their
// constructors.
package plugins

import (
	"fmt"
	"sort"

	"github.com/kilianp07/fleetsim/core/clustering"
	"github.com/kilianp07/fleetsim/core/dispatch"
	"github.com/kilianp07/fleetsim/core/events"
	"github.com/kilianp07/fleetsim/core/logger"
	"github.com/kilianp07/fleetsim/core/settings"
	"github.com/kilianp07/fleetsim/core/vrp"
)

// Deps carries everything a dispatcher of one fleet may need.
type Deps struct {
	ExperimentID string
	FleetID      string
	Vehicles     []dispatch.Vehicle
	Settings     *settings.Settings
	Planner      *vrp.Planner
	Clusterer    *clustering.Clusterer
	Plans        dispatch.PlanLoader
	// ReplayExperiment is the experiment whose plans are replayed.
	ReplayExperiment string
	Events           events.Publisher
	ShouldAbort      func() bool
	Logger           logger.Logger
}

// DispatcherFactory builds a dispatcher for one fleet.
type DispatcherFactory func(d Deps) (dispatch.Dispatcher, error)

var Dispatchers = map[string]DispatcherFactory{}

func RegisterDispatcher(name string, f DispatcherFactory) { Dispatchers[name] = f }

// NewDispatcher builds the dispatcher registered as name.
func NewDispatcher(name string, d Deps) (dispatch.Dispatcher, error) {
	f, ok := Dispatchers[name]
	if !ok {
		known := make([]string, 0, len(Dispatchers))
		for k := range Dispatchers {
			known = append(known, k)
		}
		sort.Strings(known)
		return nil, fmt.Errorf("unknown dispatcher %q (known: %v)", name, known)
	}
	if d.Logger == nil {
		d.Logger = logger.Nop{}
	}
	return f(d)
}
