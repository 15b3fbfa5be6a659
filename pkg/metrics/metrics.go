// Package metrics exposes the selection outcome and monitor state as
// Prometheus collectors.
package metrics

import (
	"math"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/markus-lassfolk/gpsselect/pkg/gps"
)

// Metrics holds the collectors registered on a private registry
type Metrics struct {
	registry *prometheus.Registry

	activeSource  *prometheus.GaugeVec
	priority      prometheus.Gauge
	accuracy      *prometheus.GaugeVec
	switches      prometheus.Gauge
	uptime        *prometheus.GaugeVec
	stable        prometheus.Gauge
	alerts        *prometheus.CounterVec
	ticks         prometheus.Counter
	spread        *prometheus.GaugeVec
	sourceStable  *prometheus.GaugeVec
	droppedFixes  prometheus.Counter
	positionMoves prometheus.Counter
}

// New creates and registers the collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		activeSource: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gpsselect_active_source",
			Help: "1 for the GPS source selected in the last tick, 0 otherwise.",
		}, []string{"source"}),
		priority: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gpsselect_selection_priority",
			Help: "Priority tier of the last selection (1 best, 5 no source).",
		}),
		accuracy: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gpsselect_source_accuracy_meters",
			Help: "Reported accuracy per source in the last tick; NaN when unavailable.",
		}, []string{"source"}),
		switches: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gpsselect_source_switches",
			Help: "Source switches counted in this session.",
		}),
		uptime: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gpsselect_source_uptime_seconds",
			Help: "Accumulated time each source has been the active source.",
		}, []string{"source"}),
		stable: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "gpsselect_switching_stable",
			Help: "0 when the last tick switched source inside the frequent switching window.",
		}),
		alerts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "gpsselect_alerts_total",
			Help: "Alerts raised, by type and level.",
		}, []string{"type", "level"}),
		ticks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gpsselect_ticks_total",
			Help: "Monitor ticks executed.",
		}),
		spread: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gpsselect_stability_spread_meters",
			Help: "Maximum pairwise distance of the last stability window.",
		}, []string{"source"}),
		sourceStable: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "gpsselect_source_stable",
			Help: "1 when the last stability check passed.",
		}, []string{"source"}),
		droppedFixes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gpsselect_dropped_fixes_total",
			Help: "Fix payloads that could not be used.",
		}),
		positionMoves: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "gpsselect_significant_moves_total",
			Help: "Selected positions that moved past the position or altitude threshold.",
		}),
	}

	m.registry.MustRegister(
		m.activeSource, m.priority, m.accuracy, m.switches, m.uptime, m.stable,
		m.alerts, m.ticks, m.spread, m.sourceStable, m.droppedFixes, m.positionMoves,
	)
	return m
}

// Registry returns the registry the collectors live on
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveTick records the outcome of one monitor tick
func (m *Metrics) ObserveTick(rutos, starlink *gps.Fix, out gps.MonitorResult) {
	m.ticks.Inc()

	for _, source := range []gps.Source{gps.SourceRUTOS, gps.SourceStarlink, gps.SourceNone} {
		v := 0.0
		if out.GPSResult.Source == source {
			v = 1
		}
		m.activeSource.WithLabelValues(string(source)).Set(v)
	}

	m.priority.Set(float64(out.GPSResult.Priority))
	m.accuracy.WithLabelValues(string(gps.SourceRUTOS)).Set(accuracyValue(rutos))
	m.accuracy.WithLabelValues(string(gps.SourceStarlink)).Set(accuracyValue(starlink))

	state := out.Monitoring
	m.switches.Set(float64(state.SwitchCount))
	m.uptime.WithLabelValues(string(gps.SourceRUTOS)).Set(float64(state.Uptime.RUTOS))
	m.uptime.WithLabelValues(string(gps.SourceStarlink)).Set(float64(state.Uptime.Starlink))
	if state.IsStable {
		m.stable.Set(1)
	} else {
		m.stable.Set(0)
	}

	for _, alert := range out.Alerts {
		m.alerts.WithLabelValues(string(alert.Type), string(alert.Level)).Inc()
	}
}

// ObserveStability records a stability check for source
func (m *Metrics) ObserveStability(source gps.Source, result gps.StabilityResult) {
	if result.MaxSpread != nil {
		m.spread.WithLabelValues(string(source)).Set(*result.MaxSpread)
	}
	if result.Stable {
		m.sourceStable.WithLabelValues(string(source)).Set(1)
	} else {
		m.sourceStable.WithLabelValues(string(source)).Set(0)
	}
}

// DroppedFix counts an unusable fix payload
func (m *Metrics) DroppedFix() {
	m.droppedFixes.Inc()
}

// SignificantMove counts a published position update
func (m *Metrics) SignificantMove() {
	m.positionMoves.Inc()
}

func accuracyValue(fix *gps.Fix) float64 {
	if !fix.Available() {
		return math.NaN()
	}
	return *fix.Accuracy
}
