package gps

import "math"

// IsSignificantPositionChange reports whether newPos differs from oldPos by
// more than jitter. A missing fix on either side always counts as a change.
// Calls are not debounced.
func (e *Evaluator) IsSignificantPositionChange(oldPos, newPos *Fix) bool {
	if oldPos == nil || newPos == nil {
		return true
	}

	distance := distanceBetween(*oldPos, *newPos)
	altitudeDiff := math.Abs(newPos.altitude() - oldPos.altitude())

	return distance > e.cfg.PositionAccuracyM || altitudeDiff > e.cfg.AltitudeDifferenceThreshold
}
