// Package capacity implements compartment accounting and booking load
// estimation for collection vehicles.
package capacity

import (
	"math"

	"github.com/kilianp07/fleetsim/core/model"
)

// Wildcard accepts every waste type.
const Wildcard = "*"

// Spec is the raw definition of a compartment.
type Spec struct {
	FackNumber  *int     `json:"fackNumber,omitempty" yaml:"fackNumber,omitempty"`
	VolumeM3    float64  `json:"volume" yaml:"volume"`
	WeightLimit float64  `json:"weightLimit" yaml:"weightLimit"`
	WasteTypes  []string `json:"wasteTypes" yaml:"wasteTypes"`
}

// Compartment is one capacity bin of a vehicle. Nil capacities are unlimited.
type Compartment struct {
	Index          int      `json:"index"`
	AllowedTypes   []string `json:"allowed_types"`
	CapacityLiters *float64 `json:"capacity_liters,omitempty"`
	CapacityKg     *float64 `json:"capacity_kg,omitempty"`
	FillLiters     float64  `json:"fill_liters"`
	FillKg         float64  `json:"fill_kg"`
}

// CreateCompartments builds compartments from specs. Without specs a single
// unlimited wildcard compartment is returned.
func CreateCompartments(specs []Spec) []*Compartment {
	if len(specs) == 0 {
		return []*Compartment{{Index: 1, AllowedTypes: []string{Wildcard}}}
	}
	out := make([]*Compartment, 0, len(specs))
	for i, s := range specs {
		c := &Compartment{Index: i + 1}
		if s.FackNumber != nil {
			c.Index = *s.FackNumber
		}
		if s.VolumeM3 > 0 {
			l := s.VolumeM3 * 1000
			c.CapacityLiters = &l
		}
		if s.WeightLimit > 0 {
			kg := s.WeightLimit
			c.CapacityKg = &kg
		}
		if len(s.WasteTypes) == 0 {
			c.AllowedTypes = []string{Wildcard}
		} else {
			c.AllowedTypes = append([]string(nil), s.WasteTypes...)
		}
		out = append(out, c)
	}
	return out
}

// Accepts reports whether the compartment allows the waste type.
func (c *Compartment) Accepts(code string) bool {
	for _, t := range c.AllowedTypes {
		if t == Wildcard || t == code {
			return true
		}
	}
	return false
}

// RemainingLiters returns the free volume or +Inf when unlimited.
func (c *Compartment) RemainingLiters() float64 {
	if c.CapacityLiters == nil {
		return math.Inf(1)
	}
	return *c.CapacityLiters - c.FillLiters
}

// RemainingKg returns the free weight or +Inf when unlimited.
func (c *Compartment) RemainingKg() float64 {
	if c.CapacityKg == nil {
		return math.Inf(1)
	}
	return *c.CapacityKg - c.FillKg
}

// SelectBestCompartment returns the accepting compartment with the most
// headroom relative to load, or nil when none accepts the waste type. Ties
// keep the first compartment.
func SelectBestCompartment(cs []*Compartment, code string, load model.Load) *Compartment {
	var best *Compartment
	bestScore := math.Inf(-1)
	for _, c := range cs {
		if !c.Accepts(code) {
			continue
		}
		volume := float64(load.VolumeLiters)
		if volume <= 0 {
			volume = 1
		}
		weight := 1.0
		if load.WeightKg != nil && *load.WeightKg > 0 {
			weight = *load.WeightKg
		}
		score := math.Min(c.RemainingLiters()/volume, c.RemainingKg()/weight)
		if best == nil || score > bestScore {
			best, bestScore = c, score
		}
	}
	return best
}

// IsCompartmentFull reports whether any declared capacity is reached.
func IsCompartmentFull(c *Compartment) bool {
	if c.CapacityLiters != nil && *c.CapacityLiters > 0 && c.FillLiters >= *c.CapacityLiters {
		return true
	}
	if c.CapacityKg != nil && *c.CapacityKg > 0 && c.FillKg >= *c.CapacityKg {
		return true
	}
	return false
}

// ApplyLoad adds load to the compartment.
func ApplyLoad(c *Compartment, load model.Load) {
	c.FillLiters += float64(load.VolumeLiters)
	if load.WeightKg != nil {
		c.FillKg += *load.WeightKg
	}
}

// ReleaseLoad removes load from the compartment, never going below zero.
func ReleaseLoad(c *Compartment, load model.Load) {
	c.FillLiters = math.Max(0, c.FillLiters-float64(load.VolumeLiters))
	if load.WeightKg != nil {
		c.FillKg = math.Max(0, c.FillKg-*load.WeightKg)
	}
}

// FindByIndex returns the compartment with the given index.
func FindByIndex(cs []*Compartment, idx int) *Compartment {
	for _, c := range cs {
		if c.Index == idx {
			return c
		}
	}
	return nil
}

// AnyFull reports whether at least one compartment is full.
func AnyFull(cs []*Compartment) bool {
	for _, c := range cs {
		if IsCompartmentFull(c) {
			return true
		}
	}
	return false
}

// Clone deep copies compartments for snapshots.
func Clone(cs []*Compartment) []Compartment {
	out := make([]Compartment, len(cs))
	for i, c := range cs {
		out[i] = *c
		out[i].AllowedTypes = append([]string(nil), c.AllowedTypes...)
	}
	return out
}
