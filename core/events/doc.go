// Package events defines the simulation events published on the event bus.
//
// Available event types:
//   - VehicleMoved: truck position and odometer update
//   - VehicleStatusChanged: truck state machine transition
//   - CargoChanged: cargo, queue and compartment fill update
//   - BookingStatusChanged: booking lifecycle transition
//   - DispatchError: a truck plan failed for this dispatch cycle
//   - PartitionsComputed: spatial partitions computed for a batch
//   - PlanComputed: a solver plan was assigned to a truck
package events
