package plugins

import (
	"errors"

	"github.com/kilianp07/fleetsim/core/dispatch"
)

func init() {
	RegisterDispatcher(dispatch.TypeStandard, func(d Deps) (dispatch.Dispatcher, error) {
		return dispatch.NewStandard(d.Vehicles, d.Logger), nil
	})
	RegisterDispatcher(dispatch.TypeVroom, func(d Deps) (dispatch.Dispatcher, error) {
		if d.Planner == nil {
			return nil, errors.New("vroom dispatcher requires a planner")
		}
		return dispatch.NewVroom(dispatch.VroomConfig{
			ExperimentID: d.ExperimentID,
			FleetID:      d.FleetID,
			Settings:     d.Settings,
			Planner:      d.Planner,
			Clusterer:    d.Clusterer,
			Events:       d.Events,
			ShouldAbort:  d.ShouldAbort,
		}, d.Vehicles, d.Logger), nil
	})
	RegisterDispatcher(dispatch.TypeReplay, func(d Deps) (dispatch.Dispatcher, error) {
		if d.Plans == nil {
			return nil, errors.New("replay dispatcher requires a plan store")
		}
		return dispatch.NewReplay(d.ReplayExperiment, d.FleetID, d.Vehicles, d.Plans, d.Events, d.Logger), nil
	})
}
