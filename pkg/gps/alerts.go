package gps

import (
	"fmt"
	"time"
)

// HandleAlert maps a condition code to an alert. Codes without a table
// entry, including CodeNone and the monitor's own CodeSourceSwitch, yield nil.
func (e *Evaluator) HandleAlert(code ConditionCode, result SelectionResult, ctx AlertContext) *Alert {
	return classify(code, result, ctx, e.now())
}

func classify(code ConditionCode, result SelectionResult, ctx AlertContext, now time.Time) *Alert {
	selected := formatMeters(result.Data.accuracy())

	var (
		level   AlertLevel
		message string
		action  string
	)

	switch code {
	case CodeRUTOSDegraded:
		degraded := selected
		if ctx.RUTOSAccuracy != nil {
			degraded = formatMeters(ctx.RUTOSAccuracy)
		}
		level = LevelInfo
		message = fmt.Sprintf("RUTOS GPS accuracy degraded to %s (normally ≤1m), but still more accurate than Starlink (%s).",
			degraded, formatMeters(ctx.StarlinkAccuracy))
		action = "Monitor RUTOS performance, continue using most accurate source"

	case CodeSourceSwitched:
		level = LevelWarning
		message = fmt.Sprintf("GPS source switched to %s (%s) as it became more accurate than the alternative (%s).",
			result.Source.Label(), selected, formatMeters(ctx.AlternativeAccuracy))
		action = "Normal operation - using most accurate GPS source"

	case CodeBothDegraded:
		level = LevelError
		message = fmt.Sprintf("Both GPS sources degraded (RUTOS: %s, Starlink: %s). Using best available: %s.",
			formatMeters(ctx.RUTOSAccuracy), formatMeters(ctx.StarlinkAccuracy), result.Source.Label())
		action = "Investigate GPS issues, consider reduced operational envelope if accuracy >10m"

	case CodeRUTOSDegradedOnlySource:
		level = LevelWarning
		message = fmt.Sprintf("RUTOS GPS degraded to %s (normally ≤1m) and Starlink unavailable.", selected)
		action = "Attempt to restore Starlink backup, monitor RUTOS closely"

	case CodeStarlinkDegradedOnlySource:
		level = LevelWarning
		message = fmt.Sprintf("Starlink GPS degraded to %s (normally ≤8m) and RUTOS unavailable.", selected)
		action = "Attempt to restore RUTOS primary, monitor Starlink closely"

	case CodeGPSFailure:
		level = LevelCritical
		message = "Complete GPS failure - no sources available"
		action = "Emergency protocol: maintain last known position, attempt GPS recovery"

	default:
		return nil
	}

	return &Alert{
		Timestamp:         now.UTC(),
		Type:              code,
		Level:             level,
		Message:           message,
		RecommendedAction: action,
		GPSState: &GPSState{
			ActiveSource: result.Source,
			Reason:       result.Reason,
			Priority:     result.Priority,
		},
	}
}

// switchAlert is synthesized by the monitor whenever the active source changes
func switchAlert(from Source, result SelectionResult, switchCount int, frequent bool, now time.Time) Alert {
	level := LevelInfo
	action := "Normal operation"
	if frequent {
		level = LevelWarning
		action = "Investigate GPS instability - frequent switching detected"
	}

	return Alert{
		Timestamp:         now.UTC(),
		Type:              CodeSourceSwitch,
		Level:             level,
		Message:           fmt.Sprintf("GPS source switched: %s → %s. Reason: %s", from, result.Source, result.Reason),
		RecommendedAction: action,
		PreviousSource:    from,
		NewSource:         result.Source,
		SwitchCount:       &switchCount,
	}
}
