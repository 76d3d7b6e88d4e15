// Measurement engine configuration
//
// All tunables live in one [auto_offset] config section. Sensor identity
// is the only hard requirement; everything else has a working default.
//
// Copyright (C) 2025
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package calibrate

import (
	"auto-offset-go/pkg/config"
)

// Config holds the static engine tunables loaded at setup. Distances are
// mm, speeds mm/s, temperatures degrees C.
type Config struct {
	// Sensor identity. Both names are required; inversion flips an
	// active-low sensor's polarity.
	ProbeName    string
	SensorName   string
	ProbeInvert  bool
	SensorInvert bool

	// Park position used before and after a run.
	ParkX, ParkY, ParkZ float64

	// Measurement position above the reference surface.
	MeasureX, MeasureY, MeasureZ float64

	// Preheat targets. Heating runs when enabled and at least one
	// target is positive; a non-positive target leaves that heater
	// cold.
	NozzleTemp float64
	BedTemp    float64

	// Accuracy check sampling.
	ProbeSamples   int
	ProbeTolerance float64

	// Speeds.
	ProbeSpeed  float64
	TravelSpeed float64
	LiftSpeed   float64

	// RetractDistance lifts the head clear of the surface between probe
	// samples and after cleaning.
	RetractDistance float64

	// Search bounds.
	TriggerDistanceMax float64
	OffsetSearchMax    float64
	ProbeSearchMax     float64

	// SafetyMarginPercent widens the trigger distance when computing the
	// sensor-offset search floor.
	SafetyMarginPercent float64

	// Optional phases.
	EnableHeating         bool
	EnableLeveling        bool
	EnableCleaning        bool
	EnableAccuracyCheck   bool
	EnableTriggerDistance bool
	EnableSensorOffset    bool

	// MilestoneInterval controls how often the run counter produces a
	// milestone notification. Zero disables milestones.
	MilestoneInterval int64

	// HistoryPath is the CSV file completed runs are appended to. Empty
	// disables history recording.
	HistoryPath string
}

// FromSection loads the engine configuration from an [auto_offset]
// section. Missing or malformed sensor identity is a fatal setup error.
func FromSection(sec *config.Section) (Config, error) {
	var cfg Config
	var err error

	if cfg.ProbeName, err = sec.Get("probe"); err != nil {
		return Config{}, err
	}
	if cfg.SensorName, err = sec.Get("sensor"); err != nil {
		return Config{}, err
	}

	type floatOpt struct {
		dst      *float64
		name     string
		min      float64
		fallback float64
	}
	floats := []floatOpt{
		{&cfg.ParkX, "park_x", 0, 175},
		{&cfg.ParkY, "park_y", 0, 350},
		{&cfg.ParkZ, "park_z", 0, 20},
		{&cfg.MeasureX, "measure_x", 0, 175},
		{&cfg.MeasureY, "measure_y", 0, 175},
		{&cfg.MeasureZ, "measure_z", 0.5, 5},
		{&cfg.NozzleTemp, "preheat_nozzle_temp", 0, 150},
		{&cfg.BedTemp, "preheat_bed_temp", 0, 110},
		{&cfg.ProbeTolerance, "probe_tolerance", 0.001, 0.020},
		{&cfg.ProbeSpeed, "probe_speed", 0.1, 15},
		{&cfg.TravelSpeed, "travel_speed", 1, 150},
		{&cfg.LiftSpeed, "lift_speed", 0.1, 15},
		{&cfg.RetractDistance, "retract_distance", 0.1, 2.5},
		{&cfg.TriggerDistanceMax, "trigger_distance_max", 0.01, 0.15},
		{&cfg.OffsetSearchMax, "offset_search_max", 0.1, 5.0},
		{&cfg.ProbeSearchMax, "probe_search_max", 0.5, 10.0},
		{&cfg.SafetyMarginPercent, "safety_margin_percent", 0, 25},
	}
	for _, o := range floats {
		if *o.dst, err = sec.GetFloatMin(o.name, o.min, o.fallback); err != nil {
			return Config{}, err
		}
	}

	if cfg.ProbeSamples, err = sec.GetInt("probe_samples", 5); err != nil {
		return Config{}, err
	}
	if cfg.ProbeSamples < 1 {
		return Config{}, config.NewError(sec.Name(), "probe_samples", "must be at least 1")
	}

	type boolOpt struct {
		dst      *bool
		name     string
		fallback bool
	}
	bools := []boolOpt{
		{&cfg.ProbeInvert, "probe_invert", false},
		{&cfg.SensorInvert, "sensor_invert", false},
		{&cfg.EnableHeating, "enable_heating", true},
		{&cfg.EnableLeveling, "enable_leveling", true},
		{&cfg.EnableCleaning, "enable_cleaning", true},
		{&cfg.EnableAccuracyCheck, "enable_accuracy_check", true},
		{&cfg.EnableTriggerDistance, "enable_trigger_distance", true},
		{&cfg.EnableSensorOffset, "enable_sensor_offset", true},
	}
	for _, o := range bools {
		if *o.dst, err = sec.GetBool(o.name, o.fallback); err != nil {
			return Config{}, err
		}
	}

	milestone, err := sec.GetInt("milestone_interval", 10)
	if err != nil {
		return Config{}, err
	}
	if milestone < 0 {
		return Config{}, config.NewError(sec.Name(), "milestone_interval", "must not be negative")
	}
	cfg.MilestoneInterval = int64(milestone)

	if cfg.HistoryPath, err = sec.Get("history_file", ""); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// RunOptions carries per-invocation overrides of the static config. Nil
// fields keep the configured value.
type RunOptions struct {
	EnableHeating         *bool
	EnableLeveling        *bool
	EnableCleaning        *bool
	EnableAccuracyCheck   *bool
	EnableTriggerDistance *bool
	EnableSensorOffset    *bool

	NozzleTemp *float64
	BedTemp    *float64

	// DebugLevel adjusts log verbosity for this run only (0..2, the
	// DEBUG= scale). Nil keeps the host's level.
	DebugLevel *int
}

// Bool is a convenience for RunOptions pointer fields.
func Bool(v bool) *bool { return &v }

// Float is a convenience for RunOptions pointer fields.
func Float(v float64) *float64 { return &v }

// Int is a convenience for RunOptions pointer fields.
func Int(v int) *int { return &v }

// apply produces the effective per-run configuration.
func (o RunOptions) apply(cfg Config) Config {
	set := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	set(&cfg.EnableHeating, o.EnableHeating)
	set(&cfg.EnableLeveling, o.EnableLeveling)
	set(&cfg.EnableCleaning, o.EnableCleaning)
	set(&cfg.EnableAccuracyCheck, o.EnableAccuracyCheck)
	set(&cfg.EnableTriggerDistance, o.EnableTriggerDistance)
	set(&cfg.EnableSensorOffset, o.EnableSensorOffset)
	if o.NozzleTemp != nil {
		cfg.NozzleTemp = *o.NozzleTemp
	}
	if o.BedTemp != nil {
		cfg.BedTemp = *o.BedTemp
	}
	return cfg
}
