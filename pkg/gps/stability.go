package gps

import (
	"fmt"
	"math"
)

// CheckStability decides whether a window of same-source fixes is clustered
// tightly enough to trust. Windows shorter than MinStabilityReadings are
// reported stable.
//
// The spread is the maximum pairwise distance, which is quadratic in the
// window length; callers keep windows around 10-30 fixes.
func (e *Evaluator) CheckStability(recent []Fix, source Source) StabilityResult {
	if len(recent) < e.cfg.MinStabilityReadings {
		return StabilityResult{
			Stable: true,
			Reason: "Insufficient data",
		}
	}

	maxSpread := 0.0
	for i := 0; i < len(recent)-1; i++ {
		for j := i + 1; j < len(recent); j++ {
			maxSpread = math.Max(maxSpread, distanceBetween(recent[i], recent[j]))
		}
	}

	stable := maxSpread <= e.cfg.StabilityThresholdM

	var reason string
	if stable {
		reason = fmt.Sprintf("%s stable (%.1fm spread ≤ %gm)", source, maxSpread, e.cfg.StabilityThresholdM)
	} else {
		reason = fmt.Sprintf("%s unstable (%.1fm spread > %gm)", source, maxSpread, e.cfg.StabilityThresholdM)
	}

	return StabilityResult{
		Stable:    stable,
		MaxSpread: &maxSpread,
		Reason:    reason,
	}
}
