package gps

import "time"

// Evaluator binds the decision functions to a fixed Config and clock. It
// carries no state between calls; the monitor state is passed in and
// returned explicitly, so one Evaluator can serve any number of source pairs.
type Evaluator struct {
	cfg Config
	now func() time.Time
}

// Option customizes an Evaluator
type Option func(*Evaluator)

// WithClock replaces the wall clock used for alert timestamps and switch timing
func WithClock(now func() time.Time) Option {
	return func(e *Evaluator) {
		e.now = now
	}
}

// NewEvaluator creates an evaluator for cfg
func NewEvaluator(cfg Config, opts ...Option) *Evaluator {
	e := &Evaluator{
		cfg: cfg,
		now: time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Config returns a copy of the evaluator's thresholds
func (e *Evaluator) Config() Config {
	return e.cfg
}

var defaultEvaluator = NewEvaluator(DefaultConfig())

// SelectGPSSource picks the source to trust using the default thresholds
func SelectGPSSource(rutos, starlink *Fix) SelectionResult {
	return defaultEvaluator.SelectSource(rutos, starlink)
}

// IsSignificantPositionChange reports, with the default thresholds, whether
// newPos moved far enough from oldPos to be acted upon
func IsSignificantPositionChange(oldPos, newPos *Fix) bool {
	return defaultEvaluator.IsSignificantPositionChange(oldPos, newPos)
}

// CheckGPSStability checks the spread of recent fixes with the default thresholds
func CheckGPSStability(recent []Fix, source Source) StabilityResult {
	return defaultEvaluator.CheckStability(recent, source)
}

// CalculateHaversineDistance is HaversineDistance
func CalculateHaversineDistance(lat1, lon1, lat2, lon2 float64) float64 {
	return HaversineDistance(lat1, lon1, lat2, lon2)
}

// HandleGPSAlert classifies a condition code into an alert, or nil for
// codes without a table entry
func HandleGPSAlert(code ConditionCode, result SelectionResult, ctx AlertContext) *Alert {
	return defaultEvaluator.HandleAlert(code, result, ctx)
}

// MonitorGPSSources runs one monitor tick with the default thresholds
func MonitorGPSSources(rutos, starlink *Fix, previous MonitorState) MonitorResult {
	return defaultEvaluator.Tick(rutos, starlink, previous)
}
