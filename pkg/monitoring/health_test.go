package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markus-lassfolk/gpsselect/pkg/gps"
)

type fakeLink struct {
	connected bool
	last      time.Time
}

func (l fakeLink) IsConnected() bool      { return l.connected }
func (l fakeLink) LastPublish() time.Time { return l.last }

// startService runs svc until the test ends
func startService(t *testing.T, svc *Service) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestService_Health(t *testing.T) {
	svc, _, _ := newTestService(t, WithInitialState(gps.MonitorState{ActiveSource: gps.SourceRUTOS, SwitchCount: 2, IsStable: true}))
	svc.record(fixUpdate{source: gps.SourceRUTOS, fix: fix(59.33, 18.07, 0.5)})
	svc.record(fixUpdate{source: gps.SourceRUTOS, fix: fix(59.33, 18.07, 0.6)})
	svc.record(fixUpdate{source: gps.SourceStarlink, fix: fix(59.33, 18.07, 4)})
	startService(t, svc)

	published := time.Date(2026, 3, 1, 11, 59, 30, 0, time.UTC)
	h, err := svc.Health(context.Background(), fakeLink{connected: true, last: published})
	require.NoError(t, err)

	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, gps.SourceRUTOS, h.ActiveSource)
	assert.Equal(t, 2, h.SwitchCount)
	assert.True(t, h.MQTTConnected)
	require.NotNil(t, h.LastPublish)
	assert.Equal(t, published, *h.LastPublish)
	assert.Equal(t, map[gps.Source]int{gps.SourceRUTOS: 2, gps.SourceStarlink: 1}, h.History)
	assert.Equal(t, 20, h.HistoryCapacity)
}

func TestService_HealthDegraded(t *testing.T) {
	svc, _, _ := newTestService(t, WithInitialState(gps.MonitorState{ActiveSource: gps.SourceStarlink}))
	startService(t, svc)

	h, err := svc.Health(context.Background(), fakeLink{connected: false})
	require.NoError(t, err)
	assert.Equal(t, "degraded", h.Status, "broker link is down")
	assert.Nil(t, h.LastPublish)

	idle, _, _ := newTestService(t)
	startService(t, idle)

	h, err = idle.Health(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, "degraded", h.Status, "no active source")
	assert.False(t, h.MQTTConnected)
}

func TestService_HealthHandler(t *testing.T) {
	svc, _, _ := newTestService(t, WithInitialState(gps.MonitorState{ActiveSource: gps.SourceRUTOS}))
	startService(t, svc)

	rec := httptest.NewRecorder()
	svc.HealthHandler(fakeLink{connected: true}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var h Health
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &h))
	assert.Equal(t, gps.SourceRUTOS, h.ActiveSource)

	rec = httptest.NewRecorder()
	svc.HealthHandler(fakeLink{connected: false}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestService_HealthHandlerAfterStop(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = svc.Run(ctx)
	}()
	cancel()
	<-done

	rec := httptest.NewRecorder()
	svc.HealthHandler(nil).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), ErrStopped.Error())
}
