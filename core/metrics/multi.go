package metrics

// MultiSink fans records out to multiple sinks. Optional recorders are only
// forwarded to sinks implementing them.
type MultiSink struct {
	Sinks []MetricsSink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...MetricsSink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordVehicleState forwards the snapshot to all sinks, returning the first
// error encountered.
func (m *MultiSink) RecordVehicleState(ev VehicleStateEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordVehicleState(ev); err != nil {
			return err
		}
	}
	return nil
}

func (m *MultiSink) RecordBooking(ev BookingEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(BookingRecorder); ok {
			if err := rec.RecordBooking(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MultiSink) RecordPlan(ev PlanEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(PlanRecorder); ok {
			if err := rec.RecordPlan(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MultiSink) RecordDispatchError(ev DispatchErrorEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(DispatchErrorRecorder); ok {
			if err := rec.RecordDispatchError(ev); err != nil {
				return err
			}
		}
	}
	return nil
}

func (m *MultiSink) RecordPartitions(ev PartitionEvent) error {
	for _, s := range m.Sinks {
		if rec, ok := s.(PartitionRecorder); ok {
			if err := rec.RecordPartitions(ev); err != nil {
				return err
			}
		}
	}
	return nil
}
