package gps

import "fmt"

// SelectSource picks the fix to trust this cycle. An unavailable source is
// either a nil fix or one without an accuracy figure. When both are available
// the smaller accuracy wins; ties go to RUTOS.
func (e *Evaluator) SelectSource(rutos, starlink *Fix) SelectionResult {
	rutosAvailable := rutos.Available()
	starlinkAvailable := starlink.Available()

	switch {
	case !rutosAvailable && !starlinkAvailable:
		return SelectionResult{
			Source:        SourceNone,
			Reason:        "No GPS sources available",
			Priority:      PriorityNoSource,
			ConditionCode: CodeGPSFailure,
		}

	case rutosAvailable && !starlinkAvailable:
		return e.onlySource(SourceRUTOS, rutos, e.cfg.RUTOSAccuracyM, PriorityExcellent, CodeRUTOSDegradedOnlySource)

	case starlinkAvailable && !rutosAvailable:
		return e.onlySource(SourceStarlink, starlink, e.cfg.StarlinkAccuracyM, PriorityGood, CodeStarlinkDegradedOnlySource)
	}

	rutosAcc, starlinkAcc := *rutos.Accuracy, *starlink.Accuracy

	source, better, worse := SourceRUTOS, rutos, starlink
	if rutosAcc > starlinkAcc {
		source, better, worse = SourceStarlink, starlink, rutos
	}

	rutosDegraded := rutosAcc > e.cfg.RUTOSAccuracyM
	starlinkDegraded := starlinkAcc > e.cfg.StarlinkAccuracyM

	result := SelectionResult{
		Source: source,
		Data:   better,
		Reason: fmt.Sprintf("%s more accurate (%s vs %s)",
			source.Label(), formatMeters(better.Accuracy), formatMeters(worse.Accuracy)),
	}

	switch best := *better.Accuracy; {
	case best <= e.cfg.ExcellentAccuracyM:
		result.Priority = PriorityExcellent
	case best <= e.cfg.GoodAccuracyM:
		result.Priority = PriorityGood
		if rutosDegraded && starlinkDegraded {
			result.ConditionCode = CodeBothDegraded
		} else if rutosDegraded {
			result.ConditionCode = CodeRUTOSDegraded
		}
	default:
		result.Priority = PriorityDegraded
		result.ConditionCode = CodeBothDegraded
	}

	return result
}

// onlySource builds the result for the case where exactly one sensor reports.
// The healthy priority differs per source: a lone Starlink fix is never rated
// as highly as a lone RUTOS fix.
func (e *Evaluator) onlySource(source Source, fix *Fix, threshold float64, healthy Priority, degraded ConditionCode) SelectionResult {
	result := SelectionResult{
		Source:   source,
		Data:     fix,
		Reason:   fmt.Sprintf("%s only source available (%s)", source.DisplayName(), formatMeters(fix.Accuracy)),
		Priority: healthy,
	}
	if *fix.Accuracy > threshold {
		result.Priority = PriorityOnlyPoor
		result.ConditionCode = degraded
	}
	return result
}
