package gps

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Data-driven thresholds observed on RUTOS and Starlink receivers.
// RUTOS typically reports 0.4-0.5m with 0.1m jitter; Starlink about 5m with
// 2.5m average jitter.
const (
	RUTOSAccuracyThresholdM     = 1.0
	StarlinkAccuracyThresholdM  = 7.0
	PositionAccuracyThresholdM  = 6.0
	AltitudeDifferenceThreshold = 18.0
	MovementSpeedThreshold      = 2.0 // reserved, not used by the detectors
	StabilityThresholdM         = 6.0

	DataCollectionInterval = 30 * time.Second
	AccuracyCheckInterval  = 300 * time.Second

	ExcellentAccuracyM   = 1.0
	GoodAccuracyM        = 8.0
	FrequentSwitchWindow = 2 * time.Minute
	MinStabilityReadings = 10

	EarthRadiusM = 6371000.0
)

// Config holds the decision thresholds. It is built once at startup and
// not modified afterwards.
type Config struct {
	RUTOSAccuracyM              float64       `json:"rutos_accuracy" yaml:"rutos_accuracy"`
	StarlinkAccuracyM           float64       `json:"starlink_accuracy" yaml:"starlink_accuracy"`
	PositionAccuracyM           float64       `json:"gps_position_accuracy" yaml:"gps_position_accuracy"`
	AltitudeDifferenceThreshold float64       `json:"altitude_difference_threshold" yaml:"altitude_difference_threshold"`
	MovementSpeedThreshold      float64       `json:"movement_speed_threshold" yaml:"movement_speed_threshold"`
	StabilityThresholdM         float64       `json:"gps_stability_threshold" yaml:"gps_stability_threshold"`
	DataCollectionInterval      time.Duration `json:"data_collection_interval" yaml:"data_collection_interval"`
	AccuracyCheckInterval       time.Duration `json:"accuracy_check_interval" yaml:"accuracy_check_interval"`

	ExcellentAccuracyM   float64       `json:"excellent_accuracy" yaml:"excellent_accuracy"`
	GoodAccuracyM        float64       `json:"good_accuracy" yaml:"good_accuracy"`
	FrequentSwitchWindow time.Duration `json:"frequent_switch_window" yaml:"frequent_switch_window"`
	MinStabilityReadings int           `json:"min_stability_readings" yaml:"min_stability_readings"`
}

// DefaultConfig returns the built-in thresholds
func DefaultConfig() Config {
	return Config{
		RUTOSAccuracyM:              RUTOSAccuracyThresholdM,
		StarlinkAccuracyM:           StarlinkAccuracyThresholdM,
		PositionAccuracyM:           PositionAccuracyThresholdM,
		AltitudeDifferenceThreshold: AltitudeDifferenceThreshold,
		MovementSpeedThreshold:      MovementSpeedThreshold,
		StabilityThresholdM:         StabilityThresholdM,
		DataCollectionInterval:      DataCollectionInterval,
		AccuracyCheckInterval:       AccuracyCheckInterval,
		ExcellentAccuracyM:          ExcellentAccuracyM,
		GoodAccuracyM:               GoodAccuracyM,
		FrequentSwitchWindow:        FrequentSwitchWindow,
		MinStabilityReadings:        MinStabilityReadings,
	}
}

// ErrInvalidThreshold is wrapped by Validate
var ErrInvalidThreshold = errors.New("invalid threshold")

// Validate checks that every threshold and cadence is usable
func (c Config) Validate() error {
	positive := []struct {
		name  string
		value float64
	}{
		{"rutos_accuracy", c.RUTOSAccuracyM},
		{"starlink_accuracy", c.StarlinkAccuracyM},
		{"gps_position_accuracy", c.PositionAccuracyM},
		{"altitude_difference_threshold", c.AltitudeDifferenceThreshold},
		{"gps_stability_threshold", c.StabilityThresholdM},
		{"excellent_accuracy", c.ExcellentAccuracyM},
		{"good_accuracy", c.GoodAccuracyM},
	}
	for _, p := range positive {
		if math.IsNaN(p.value) || math.IsInf(p.value, 0) || p.value <= 0 {
			return fmt.Errorf("%w: %s must be positive, got %g", ErrInvalidThreshold, p.name, p.value)
		}
	}

	if math.IsNaN(c.MovementSpeedThreshold) || c.MovementSpeedThreshold < 0 {
		return fmt.Errorf("%w: movement_speed_threshold must not be negative", ErrInvalidThreshold)
	}
	if c.GoodAccuracyM < c.ExcellentAccuracyM {
		return fmt.Errorf("%w: good_accuracy (%g) below excellent_accuracy (%g)",
			ErrInvalidThreshold, c.GoodAccuracyM, c.ExcellentAccuracyM)
	}
	if c.DataCollectionInterval <= 0 || c.AccuracyCheckInterval <= 0 {
		return fmt.Errorf("%w: collection and accuracy intervals must be positive", ErrInvalidThreshold)
	}
	// uptime is counted in whole seconds per collection tick
	if c.DataCollectionInterval%time.Second != 0 {
		return fmt.Errorf("%w: data_collection_interval must be whole seconds, got %s",
			ErrInvalidThreshold, c.DataCollectionInterval)
	}
	if c.FrequentSwitchWindow < 0 {
		return fmt.Errorf("%w: frequent_switch_window must not be negative", ErrInvalidThreshold)
	}
	if c.MinStabilityReadings < 2 {
		return fmt.Errorf("%w: min_stability_readings must be at least 2", ErrInvalidThreshold)
	}

	return nil
}
