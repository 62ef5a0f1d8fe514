// Package settings holds the per-fleet tables and tunables consumed by the
// capacity, clustering and routing packages.
package settings

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidTime is returned for malformed HH:MM strings.
var ErrInvalidTime = errors.New("invalid time of day")

// Default service type values used when a booking's code is unknown.
const (
	DefaultVolumeLiters = 140
	DefaultFillPercent  = 100
)

// Workday is the operating window in minutes after midnight.
type Workday struct {
	StartMinutes int `json:"start_minutes" yaml:"start_minutes"`
	EndMinutes   int `json:"end_minutes" yaml:"end_minutes"`
}

// Break is a driver break requested at a given time of day.
type Break struct {
	ID              int    `json:"id" yaml:"id"`
	DesiredTime     string `json:"desired_time" yaml:"desired_time"`
	DurationMinutes int    `json:"duration_minutes" yaml:"duration_minutes"`
}

// ServiceType is the nominal container size of a service type code.
type ServiceType struct {
	VolumeLiters float64 `json:"volume_liters" yaml:"volume_liters"`
	FillPercent  float64 `json:"fill_percent" yaml:"fill_percent"`
}

// WasteType describes a waste fraction.
type WasteType struct {
	DensityKgM3 float64 `json:"density_kg_m3" yaml:"density_kg_m3"`
}

// Clustering tunes DBSCAN and the partition merge pass.
type Clustering struct {
	EpsilonMeters           float64 `json:"epsilon_meters" yaml:"epsilon_meters"`
	MinPoints               int     `json:"min_points" yaml:"min_points"`
	ReassignNoise           bool    `json:"reassign_noise" yaml:"reassign_noise"`
	MaxNoiseDistanceMeters  float64 `json:"max_noise_distance_meters" yaml:"max_noise_distance_meters"`
	MergeEnabled            bool    `json:"merge_enabled" yaml:"merge_enabled"`
	MinPartitionSize        int     `json:"min_partition_size" yaml:"min_partition_size"`
	MergeDistanceMultiplier float64 `json:"merge_distance_multiplier" yaml:"merge_distance_multiplier"`
	MaxMergedDiagonalMeters float64 `json:"max_merged_diagonal_meters" yaml:"max_merged_diagonal_meters"`
	RespectOriginalClusters bool    `json:"respect_original_clusters" yaml:"respect_original_clusters"`
	MaxMergeRounds          int     `json:"max_merge_rounds" yaml:"max_merge_rounds"`
}

// Solver bounds the requests a fleet sends to the solver. The planner's own
// limits still apply: dispatchers use the smaller of the two.
type Solver struct {
	MaxJobs      int `json:"max_jobs" yaml:"max_jobs"`
	MaxShipments int `json:"max_shipments" yaml:"max_shipments"`
	MaxVehicles  int `json:"max_vehicles" yaml:"max_vehicles"`
	// MaxClusterSize caps the number of bookings merged into one solver job.
	MaxClusterSize int `json:"max_cluster_size" yaml:"max_cluster_size"`
	// PostalCodeThreshold is the batch size above which bookings are grouped
	// by postal code before optimisation.
	PostalCodeThreshold int `json:"postal_code_threshold" yaml:"postal_code_threshold"`
}

// Settings is the complete configuration surface of one fleet.
type Settings struct {
	Workday                 Workday                `json:"workday" yaml:"workday"`
	Breaks                  []Break                `json:"breaks" yaml:"breaks"`
	ServiceTypes            map[string]ServiceType `json:"service_types" yaml:"service_types"`
	WasteTypes              map[string]WasteType   `json:"waste_types" yaml:"waste_types"`
	Clustering              Clustering             `json:"clustering" yaml:"clustering"`
	Solver                  Solver                 `json:"solver" yaml:"solver"`
	VolumeCompressionFactor float64                `json:"volume_compression_factor" yaml:"volume_compression_factor"`
}

// Default returns settings with every default applied.
func Default() *Settings {
	s := &Settings{}
	s.SetDefaults()
	return s
}

// SetDefaults fills zero values.
func (s *Settings) SetDefaults() {
	if s.Workday.StartMinutes == 0 && s.Workday.EndMinutes == 0 {
		s.Workday = Workday{StartMinutes: 6 * 60, EndMinutes: 18 * 60}
	}
	if s.VolumeCompressionFactor <= 0 {
		s.VolumeCompressionFactor = 1
	}
	c := &s.Clustering
	if c.EpsilonMeters <= 0 {
		c.EpsilonMeters = 500
	}
	if c.MinPoints <= 0 {
		c.MinPoints = 3
	}
	if c.MaxNoiseDistanceMeters <= 0 {
		c.MaxNoiseDistanceMeters = 2000
	}
	if c.MergeDistanceMultiplier <= 0 {
		c.MergeDistanceMultiplier = 3
	}
	if c.MaxMergeRounds <= 0 {
		c.MaxMergeRounds = 5
	}
	v := &s.Solver
	if v.MaxJobs <= 0 {
		v.MaxJobs = 200
	}
	if v.MaxShipments <= 0 {
		v.MaxShipments = 200
	}
	if v.MaxVehicles <= 0 {
		v.MaxVehicles = 200
	}
	if v.MaxClusterSize <= 0 {
		v.MaxClusterSize = 10
	}
	if v.PostalCodeThreshold <= 0 {
		v.PostalCodeThreshold = 50
	}
}

// Validate checks table values and break times.
func (s *Settings) Validate() error {
	if s.Workday.StartMinutes < 0 || s.Workday.StartMinutes >= 24*60 {
		return fmt.Errorf("workday start %d out of range", s.Workday.StartMinutes)
	}
	if s.Workday.EndMinutes < 0 || s.Workday.EndMinutes > 24*60 {
		return fmt.Errorf("workday end %d out of range", s.Workday.EndMinutes)
	}
	for code, st := range s.ServiceTypes {
		if st.VolumeLiters < 0 || st.FillPercent < 0 {
			return fmt.Errorf("service type %s: negative value", code)
		}
	}
	for code, wt := range s.WasteTypes {
		if wt.DensityKgM3 < 0 {
			return fmt.Errorf("waste type %s: negative density", code)
		}
	}
	return nil
}

// ParseClock parses "HH:MM" into minutes after midnight.
func ParseClock(v string) (int, error) {
	parts := strings.Split(strings.TrimSpace(v), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, v)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, v)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("%w: %q", ErrInvalidTime, v)
	}
	return h*60 + m, nil
}

// Midnight returns the start of the day containing t, in t's location.
func Midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// WorkdayWindow resolves the workday against now. The window never starts
// before now and the end rolls to the next day when it is not after the start.
func (s *Settings) WorkdayWindow(now time.Time) (start, end time.Time) {
	day := Midnight(now)
	start = day.Add(time.Duration(s.Workday.StartMinutes) * time.Minute)
	if start.Before(now) {
		start = now
	}
	end = day.Add(time.Duration(s.Workday.EndMinutes) * time.Minute)
	if !end.After(start) {
		end = end.Add(24 * time.Hour)
	}
	return start, end
}
