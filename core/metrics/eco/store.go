package eco

import "time"

// Store persists ecological KPI records. Add accumulates into the record of
// the same truck and day.
type Store interface {
	Add(Record) error
	Query(truckID string, start, end time.Time) ([]Record, error)
}

// Day aligns t to the start of its day in UTC.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
