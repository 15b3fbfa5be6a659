package gps

import (
	"math"
	"time"
)

// Tick runs one monitoring cycle. It selects a source, classifies the
// selection's condition code, detects a change of active source and returns
// the next state. The previous state is never modified.
//
// Switches are never suppressed: a switch inside FrequentSwitchWindow of the
// last one is only raised to a warning. Ticks for one source pair must be
// applied strictly in sequence.
func (e *Evaluator) Tick(rutos, starlink *Fix, previous MonitorState) MonitorResult {
	now := e.now()
	nowMs := now.UnixMilli()

	result := e.SelectSource(rutos, starlink)

	previousSource := previous.ActiveSource
	sourceChanged := previousSource.IsActive() && previousSource != result.Source

	switchCount := previous.SwitchCount
	if sourceChanged {
		switchCount++
	}

	sinceLastSwitchMs := int64(math.MaxInt64)
	if previous.LastSwitchTimeMs != nil {
		sinceLastSwitchMs = nowMs - *previous.LastSwitchTimeMs
	}
	frequent := sourceChanged && sinceLastSwitchMs < e.cfg.FrequentSwitchWindow.Milliseconds()

	alerts := make([]Alert, 0, 2)

	if result.ConditionCode != CodeNone {
		ctx := AlertContext{
			RUTOSAccuracy:    rutos.accuracy(),
			StarlinkAccuracy: starlink.accuracy(),
		}
		switch result.Source {
		case SourceRUTOS:
			ctx.AlternativeAccuracy = starlink.accuracy()
		case SourceStarlink:
			ctx.AlternativeAccuracy = rutos.accuracy()
		}
		if alert := classify(result.ConditionCode, result, ctx, now); alert != nil {
			alerts = append(alerts, *alert)
		}
	}

	if sourceChanged {
		alerts = append(alerts, switchAlert(previousSource, result, switchCount, frequent, now))
	}

	next := MonitorState{
		ActiveSource: result.Source,
		SwitchCount:  switchCount,
		IsStable:     !frequent,
		Uptime:       previous.Uptime,
	}
	switch {
	case sourceChanged:
		next.LastSwitchTimeMs = &nowMs
	case previous.LastSwitchTimeMs != nil:
		last := *previous.LastSwitchTimeMs
		next.LastSwitchTimeMs = &last
	}

	// uptime counts time active, degraded or not
	cadence := int64(e.cfg.DataCollectionInterval / time.Second)
	switch result.Source {
	case SourceRUTOS:
		next.Uptime.RUTOS += cadence
	case SourceStarlink:
		next.Uptime.Starlink += cadence
	}

	return MonitorResult{
		GPSResult:  result,
		Alerts:     alerts,
		Monitoring: next,
	}
}
