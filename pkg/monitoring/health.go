package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/markus-lassfolk/gpsselect/pkg/gps"
)

// Link reports the state of the transport. mqtt.Client implements it.
type Link interface {
	IsConnected() bool
	LastPublish() time.Time
}

// Health is the document served on /health
type Health struct {
	Status          string             `json:"status"` // ok|degraded
	ActiveSource    gps.Source         `json:"active_source"`
	SwitchCount     int                `json:"switch_count"`
	IsStable        bool               `json:"is_stable"`
	MQTTConnected   bool               `json:"mqtt_connected"`
	LastPublish     *time.Time         `json:"last_publish,omitempty"`
	History         map[gps.Source]int `json:"history"`
	HistoryCapacity int                `json:"history_capacity"`
}

// Health reports the service state. The status is degraded while no source is
// active or while link is set but disconnected. A nil link means the service
// runs without a transport.
func (s *Service) Health(ctx context.Context, link Link) (Health, error) {
	state, err := s.Snapshot(ctx)
	if err != nil {
		return Health{}, err
	}

	h := Health{
		Status:       "ok",
		ActiveSource: state.ActiveSource,
		SwitchCount:  state.SwitchCount,
		IsStable:     state.IsStable,
		History: map[gps.Source]int{
			gps.SourceRUTOS:    s.history.Size(gps.SourceRUTOS),
			gps.SourceStarlink: s.history.Size(gps.SourceStarlink),
		},
		HistoryCapacity: s.history.Capacity(),
	}

	if link != nil {
		h.MQTTConnected = link.IsConnected()
		if last := link.LastPublish(); !last.IsZero() {
			last = last.UTC()
			h.LastPublish = &last
		}
	}

	if !state.ActiveSource.IsActive() || (link != nil && !h.MQTTConnected) {
		h.Status = "degraded"
	}
	return h, nil
}

// HealthHandler serves Health as JSON, with 503 while degraded
func (s *Service) HealthHandler(link Link) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		h, err := s.Health(ctx, link)
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		if h.Status != "ok" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		if err := json.NewEncoder(w).Encode(h); err != nil {
			s.logger.Warn("Failed to write health response", "error", err)
		}
	})
}
