package gps

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestConfig_Validate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	tests := []struct {
		name    string
		mutate  func(*Config)
		message string
	}{
		{"zero rutos accuracy", func(c *Config) { c.RUTOSAccuracyM = 0 }, "rutos_accuracy"},
		{"NaN starlink accuracy", func(c *Config) { c.StarlinkAccuracyM = math.NaN() }, "starlink_accuracy"},
		{"infinite stability threshold", func(c *Config) { c.StabilityThresholdM = math.Inf(1) }, "gps_stability_threshold"},
		{"NaN movement speed", func(c *Config) { c.MovementSpeedThreshold = math.NaN() }, "movement_speed_threshold"},
		{"good below excellent", func(c *Config) { c.GoodAccuracyM = 0.5 }, "good_accuracy"},
		{"fractional cadence", func(c *Config) { c.DataCollectionInterval = 1500 * time.Millisecond }, "whole seconds"},
		{"sub-second cadence", func(c *Config) { c.DataCollectionInterval = 500 * time.Millisecond }, "whole seconds"},
		{"too few stability readings", func(c *Config) { c.MinStabilityReadings = 1 }, "min_stability_readings"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			assert.ErrorIs(t, err, ErrInvalidThreshold)
			assert.Contains(t, err.Error(), tt.message)
		})
	}
}

func TestConfig_ValidateReportsFirstFieldInOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.RUTOSAccuracyM = -1
	cfg.StarlinkAccuracyM = -1
	cfg.GoodAccuracyM = -1

	for i := 0; i < 20; i++ {
		err := cfg.Validate()
		assert.Contains(t, err.Error(), "rutos_accuracy")
	}
}
