package vrp

import (
	"errors"
	"fmt"
)

var (
	// ErrPlanningCancelled is returned once the abort predicate reports true.
	// It takes precedence over any solver failure.
	ErrPlanningCancelled = errors.New("planning cancelled")
	ErrNoVehicles        = errors.New("vrp: at least one vehicle is required")
	ErrTooManyJobs       = errors.New("vrp: too many jobs")
	ErrTooManyShipments  = errors.New("vrp: too many shipments")
	ErrTooManyVehicles   = errors.New("vrp: too many vehicles")
)

// StatusError is a non-2xx solver response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("solver responded %d: %s", e.Code, e.Body)
}
