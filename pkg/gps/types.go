package gps

import (
	"strconv"
	"strings"
	"time"
)

// Source identifies one of the two positioning sensors competing for trust
type Source string

const (
	SourceRUTOS    Source = "rutos"
	SourceStarlink Source = "starlink"
	SourceNone     Source = "none"
)

// IsActive reports whether s names a real sensor. SourceNone and the empty
// value both mean that no source is active.
func (s Source) IsActive() bool {
	return s == SourceRUTOS || s == SourceStarlink
}

// Label returns the upper-case display form used in operator messages
func (s Source) Label() string {
	if !s.IsActive() {
		return "NONE"
	}
	return strings.ToUpper(string(s))
}

// DisplayName returns the name used in selection reasons
func (s Source) DisplayName() string {
	switch s {
	case SourceRUTOS:
		return "RUTOS"
	case SourceStarlink:
		return "Starlink"
	default:
		return "none"
	}
}

// Fix is one sensor sample. A nil Accuracy means the source is unavailable
// this cycle; a nil Altitude is treated as 0 by the detectors.
type Fix struct {
	Latitude  float64  `json:"latitude" yaml:"latitude"`
	Longitude float64  `json:"longitude" yaml:"longitude"`
	Altitude  *float64 `json:"altitude,omitempty" yaml:"altitude,omitempty"`
	Accuracy  *float64 `json:"accuracy,omitempty" yaml:"accuracy,omitempty"`
}

// Available reports whether the fix carries an accuracy figure
func (f *Fix) Available() bool {
	return f != nil && f.Accuracy != nil
}

func (f *Fix) altitude() float64 {
	if f == nil || f.Altitude == nil {
		return 0
	}
	return *f.Altitude
}

func (f *Fix) accuracy() *float64 {
	if f == nil {
		return nil
	}
	return f.Accuracy
}

// Float returns a pointer to v, for building fixes inline
func Float(v float64) *float64 {
	return &v
}

// Priority is the ordinal confidence tier of a selection, 1 best and 5 worst.
// It is a rank, not a quantity.
type Priority int

const (
	PriorityExcellent Priority = 1
	PriorityGood      Priority = 2
	PriorityDegraded  Priority = 3
	PriorityOnlyPoor  Priority = 4
	PriorityNoSource  Priority = 5
)

// ConditionCode is the symbolic reason a selection cycle needs operator attention
type ConditionCode string

const (
	CodeNone                       ConditionCode = ""
	CodeRUTOSDegraded              ConditionCode = "RUTOS_DEGRADED"
	CodeSourceSwitched             ConditionCode = "GPS_SOURCE_SWITCHED"
	CodeBothDegraded               ConditionCode = "BOTH_GPS_DEGRADED"
	CodeRUTOSDegradedOnlySource    ConditionCode = "RUTOS_DEGRADED_ONLY_SOURCE"
	CodeStarlinkDegradedOnlySource ConditionCode = "STARLINK_DEGRADED_ONLY_SOURCE"
	CodeGPSFailure                 ConditionCode = "GPS_FAILURE"

	// CodeSourceSwitch is the type of the switch alert synthesized by the
	// monitor. It has no classifier table entry.
	CodeSourceSwitch ConditionCode = "GPS_SOURCE_SWITCH"
)

// AlertLevel is the severity of an alert
type AlertLevel string

const (
	LevelInfo     AlertLevel = "info"
	LevelWarning  AlertLevel = "warning"
	LevelError    AlertLevel = "error"
	LevelCritical AlertLevel = "critical"
)

// SelectionResult is the outcome of one selection cycle
type SelectionResult struct {
	Source        Source        `json:"source"`
	Data          *Fix          `json:"data,omitempty"`
	Reason        string        `json:"reason"`
	Priority      Priority      `json:"priority"`
	ConditionCode ConditionCode `json:"condition_code,omitempty"`
}

// GPSState is the selection snapshot attached to classified alerts
type GPSState struct {
	ActiveSource Source   `json:"active_source"`
	Reason       string   `json:"reason"`
	Priority     Priority `json:"priority"`
}

// Alert is an operator-facing record. It is output only.
type Alert struct {
	Timestamp         time.Time     `json:"timestamp"`
	Type              ConditionCode `json:"type"`
	Level             AlertLevel    `json:"level"`
	Message           string        `json:"message"`
	RecommendedAction string        `json:"recommended_action"`
	GPSState          *GPSState     `json:"gps_state,omitempty"`

	// Set on source switch alerts only
	PreviousSource Source `json:"previous_source,omitempty"`
	NewSource      Source `json:"new_source,omitempty"`
	SwitchCount    *int   `json:"switch_count,omitempty"`
}

// AlertContext carries the accuracy figures a message template may quote
type AlertContext struct {
	RUTOSAccuracy       *float64 `json:"rutos_accuracy,omitempty"`
	StarlinkAccuracy    *float64 `json:"starlink_accuracy,omitempty"`
	AlternativeAccuracy *float64 `json:"alternative_accuracy,omitempty"`
}

// Uptime is the accumulated active time per source, in seconds
type Uptime struct {
	RUTOS    int64 `json:"rutos"`
	Starlink int64 `json:"starlink"`
}

// MonitorState is owned by the caller and threaded through successive ticks.
// SwitchCount and both Uptime fields never decrease within a session.
type MonitorState struct {
	ActiveSource     Source `json:"active_source,omitempty"`
	SwitchCount      int    `json:"switch_count"`
	LastSwitchTimeMs *int64 `json:"last_switch_time_ms,omitempty"`
	IsStable         bool   `json:"is_stable"`
	Uptime           Uptime `json:"uptime"`
}

// MonitorResult is the output of one monitor tick
type MonitorResult struct {
	GPSResult  SelectionResult `json:"gps_result"`
	Alerts     []Alert         `json:"alerts"`
	Monitoring MonitorState    `json:"monitoring"`
}

// StabilityResult reports the spatial spread of a window of fixes.
// MaxSpread is nil when the window was too small to judge.
type StabilityResult struct {
	Stable    bool     `json:"stable"`
	MaxSpread *float64 `json:"max_spread,omitempty"`
	Reason    string   `json:"reason"`
}

// formatMeters renders a meter figure such as "0.5m", or "n/a" when it is missing
func formatMeters(v *float64) string {
	if v == nil {
		return "n/a"
	}
	return strconv.FormatFloat(*v, 'f', -1, 64) + "m"
}
