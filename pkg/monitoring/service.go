// Package monitoring runs the GPS monitor on the host's cadence. One
// goroutine owns the monitor state; fixes and state queries reach it over
// channels, so ticks for the source pair are applied strictly in sequence.
package monitoring

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/markus-lassfolk/gpsselect/pkg/gps"
	"github.com/markus-lassfolk/gpsselect/pkg/logx"
	"github.com/markus-lassfolk/gpsselect/pkg/telem"
)

// ErrUnknownSource is returned by Submit for a source other than RUTOS or Starlink
var ErrUnknownSource = errors.New("unknown GPS source")

// ErrStopped is returned once Run has exited
var ErrStopped = errors.New("monitoring service stopped")

// Publisher delivers the service's output. mqtt.Client implements it.
type Publisher interface {
	PublishSelection(result gps.SelectionResult) error
	PublishAlert(alert gps.Alert) error
	PublishStability(source gps.Source, result gps.StabilityResult) error
	PublishState(state gps.MonitorState) error
	PublishPosition(source gps.Source, fix gps.Fix) error
}

// Recorder receives observations for metrics. metrics.Metrics implements it.
type Recorder interface {
	ObserveTick(rutos, starlink *gps.Fix, out gps.MonitorResult)
	ObserveStability(source gps.Source, result gps.StabilityResult)
	SignificantMove()
	DroppedFix()
}

type fixUpdate struct {
	source gps.Source
	fix    gps.Fix
}

// Service ticks the monitor for one RUTOS/Starlink pair
type Service struct {
	evaluator  *gps.Evaluator
	cfg        gps.Config
	history    *telem.History
	publisher  Publisher
	recorder   Recorder
	logger     *logx.Logger
	staleAfter time.Duration
	now        func() time.Time

	fixes     chan fixUpdate
	snapshots chan chan gps.MonitorState
	done      chan struct{}

	// owned by the Run goroutine
	state        gps.MonitorState
	lastPosition *gps.Fix
}

// Option customizes a Service
type Option func(*Service)

// WithClock replaces the wall clock, for tests
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithInitialState starts the service from a previously saved state
func WithInitialState(state gps.MonitorState) Option {
	return func(s *Service) {
		s.state = state
	}
}

// WithRecorder attaches a metrics recorder
func WithRecorder(r Recorder) Option {
	return func(s *Service) {
		s.recorder = r
	}
}

// NewService creates a monitoring service. A source whose newest fix is
// older than staleAfter is treated as unavailable; zero disables the check.
func NewService(cfg gps.Config, staleAfter time.Duration, history *telem.History, publisher Publisher, logger *logx.Logger, opts ...Option) *Service {
	s := &Service{
		cfg:        cfg,
		history:    history,
		publisher:  publisher,
		recorder:   nopRecorder{},
		logger:     logger,
		staleAfter: staleAfter,
		now:        time.Now,
		fixes:      make(chan fixUpdate, 16),
		snapshots:  make(chan chan gps.MonitorState),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.evaluator = gps.NewEvaluator(cfg, gps.WithClock(s.now))
	return s
}

// Submit hands a fix to the service. It blocks until the service accepts
// it, ctx is done or the service stops.
func (s *Service) Submit(ctx context.Context, source gps.Source, fix gps.Fix) error {
	if !source.IsActive() {
		s.recorder.DroppedFix()
		return fmt.Errorf("%w: %q", ErrUnknownSource, source)
	}

	// the fix channel is buffered and would accept after Run has exited
	select {
	case <-s.done:
		return ErrStopped
	default:
	}

	select {
	case s.fixes <- fixUpdate{source: source, fix: fix}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
		return ErrStopped
	}
}

// Snapshot returns a copy of the current monitor state
func (s *Service) Snapshot(ctx context.Context) (gps.MonitorState, error) {
	reply := make(chan gps.MonitorState, 1)
	select {
	case s.snapshots <- reply:
	case <-ctx.Done():
		return gps.MonitorState{}, ctx.Err()
	case <-s.done:
		return gps.MonitorState{}, ErrStopped
	}
	return <-reply, nil
}

// Run processes fixes and ticks until ctx is cancelled
func (s *Service) Run(ctx context.Context) error {
	defer close(s.done)

	collect := time.NewTicker(s.cfg.DataCollectionInterval)
	defer collect.Stop()
	accuracy := time.NewTicker(s.cfg.AccuracyCheckInterval)
	defer accuracy.Stop()

	s.logger.Info("GPS monitoring started",
		"collection_interval", s.cfg.DataCollectionInterval.String(),
		"accuracy_check_interval", s.cfg.AccuracyCheckInterval.String(),
		"stale_after", s.staleAfter.String(),
	)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("GPS monitoring stopped", "switch_count", s.state.SwitchCount)
			return nil
		case u := <-s.fixes:
			s.record(u)
		case reply := <-s.snapshots:
			reply <- s.snapshot()
		case <-collect.C:
			s.tick()
		case <-accuracy.C:
			s.checkStability()
		}
	}
}

func (s *Service) record(u fixUpdate) {
	s.history.Add(u.source, u.fix, s.now())
}

func (s *Service) snapshot() gps.MonitorState {
	state := s.state
	if state.LastSwitchTimeMs != nil {
		last := *state.LastSwitchTimeMs
		state.LastSwitchTimeMs = &last
	}
	return state
}

// currentFix returns the newest fix for source, stripped of its accuracy
// when it has gone stale
func (s *Service) currentFix(source gps.Source) *gps.Fix {
	sample, ok := s.history.Latest(source)
	if !ok {
		return nil
	}

	fix := sample.Fix
	if s.staleAfter > 0 && s.now().Sub(sample.ReceivedAt) > s.staleAfter {
		fix.Accuracy = nil
	}
	return &fix
}

// tick runs one monitor cycle and delivers its output
func (s *Service) tick() gps.MonitorResult {
	rutos := s.currentFix(gps.SourceRUTOS)
	starlink := s.currentFix(gps.SourceStarlink)

	previous := s.state
	out := s.evaluator.Tick(rutos, starlink, previous)
	s.state = out.Monitoring

	result := out.GPSResult
	s.logger.Debug("GPS selection",
		"source", result.Source,
		"priority", result.Priority,
		"condition", result.ConditionCode,
		"reason", result.Reason,
	)

	if stateName(previous.ActiveSource) != stateName(result.Source) {
		s.logger.LogStateChange("gps_monitor", stateName(previous.ActiveSource), stateName(result.Source), result.Reason)
	}

	for _, alert := range out.Alerts {
		s.logAlert(alert)
		s.publish("alert", s.publisher.PublishAlert(alert))
	}

	s.publish("selection", s.publisher.PublishSelection(result))
	s.publish("state", s.publisher.PublishState(out.Monitoring))

	if result.Data != nil && s.evaluator.IsSignificantPositionChange(s.lastPosition, result.Data) {
		position := *result.Data
		s.lastPosition = &position
		s.recorder.SignificantMove()
		s.publish("position", s.publisher.PublishPosition(result.Source, position))
	}

	s.recorder.ObserveTick(rutos, starlink, out)
	return out
}

// checkStability runs the stability detector over each source's history
func (s *Service) checkStability() map[gps.Source]gps.StabilityResult {
	results := make(map[gps.Source]gps.StabilityResult, 2)

	for _, source := range []gps.Source{gps.SourceRUTOS, gps.SourceStarlink} {
		result := s.evaluator.CheckStability(s.history.Fixes(source), source)
		results[source] = result

		if result.Stable {
			s.logger.Debug("GPS stability check", "source", source, "reason", result.Reason)
		} else {
			s.logger.Warn("GPS source unstable", "source", source, "reason", result.Reason, "max_spread_m", *result.MaxSpread)
		}

		s.recorder.ObserveStability(source, result)
		s.publish("stability", s.publisher.PublishStability(source, result))
	}
	return results
}

func (s *Service) logAlert(alert gps.Alert) {
	if alert.Type == gps.CodeSourceSwitch {
		s.logger.LogSwitch(string(alert.PreviousSource), string(alert.NewSource), alert.Message, *alert.SwitchCount)
	}

	fields := []interface{}{
		"type", alert.Type,
		"level", alert.Level,
		"action", alert.RecommendedAction,
	}
	switch alert.Level {
	case gps.LevelInfo:
		s.logger.Info(alert.Message, fields...)
	case gps.LevelWarning:
		s.logger.Warn(alert.Message, fields...)
	default:
		s.logger.Error(alert.Message, fields...)
	}
}

func (s *Service) publish(what string, err error) {
	if err != nil {
		s.logger.Warn("Failed to publish", "what", what, "error", err)
	}
}

func stateName(source gps.Source) string {
	if !source.IsActive() {
		return "NO_ACTIVE_SOURCE"
	}
	return fmt.Sprintf("ACTIVE(%s)", source)
}

type nopRecorder struct{}

func (nopRecorder) ObserveTick(*gps.Fix, *gps.Fix, gps.MonitorResult) {}
func (nopRecorder) ObserveStability(gps.Source, gps.StabilityResult)  {}
func (nopRecorder) SignificantMove()                                  {}
func (nopRecorder) DroppedFix()                                       {}
