package telem

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markus-lassfolk/gpsselect/pkg/gps"
)

func TestNewHistory_Bounds(t *testing.T) {
	_, err := NewHistory(0)
	assert.Error(t, err)
	_, err = NewHistory(1001)
	assert.Error(t, err)

	h, err := NewHistory(30)
	require.NoError(t, err)
	assert.Equal(t, 0, h.Size(gps.SourceRUTOS))
	assert.Equal(t, 30, h.Capacity())
	assert.Nil(t, h.Fixes(gps.SourceRUTOS))
}

func TestRingBuffer_Overwrite(t *testing.T) {
	rb := NewRingBuffer(3)
	base := time.Unix(1700000000, 0)

	for i := 0; i < 5; i++ {
		rb.Add(Sample{ReceivedAt: base.Add(time.Duration(i) * time.Second), Fix: gps.Fix{Latitude: float64(i)}})
	}

	items := rb.Items()
	require.Len(t, items, 3)
	assert.Equal(t, []float64{2, 3, 4}, []float64{items[0].Fix.Latitude, items[1].Fix.Latitude, items[2].Fix.Latitude})

	latest, ok := rb.Latest()
	require.True(t, ok)
	assert.Equal(t, 4.0, latest.Fix.Latitude)

	assert.Equal(t, 3, rb.Size())
}

func TestHistory_PerSource(t *testing.T) {
	h, err := NewHistory(10)
	require.NoError(t, err)
	now := time.Now()

	h.Add(gps.SourceRUTOS, gps.Fix{Latitude: 59, Accuracy: gps.Float(0.5)}, now)
	h.Add(gps.SourceRUTOS, gps.Fix{Latitude: 60}, now.Add(time.Second))
	h.Add(gps.SourceStarlink, gps.Fix{Latitude: 61, Accuracy: gps.Float(5)}, now)

	assert.Equal(t, 2, h.Size(gps.SourceRUTOS))
	assert.Equal(t, 1, h.Size(gps.SourceStarlink))

	// the unavailable reading is kept as latest but left out of the fix window
	fixes := h.Fixes(gps.SourceRUTOS)
	require.Len(t, fixes, 1)
	assert.Equal(t, 59.0, fixes[0].Latitude)

	latest, ok := h.Latest(gps.SourceRUTOS)
	require.True(t, ok)
	assert.False(t, latest.Fix.Available())
	assert.Equal(t, gps.SourceRUTOS, latest.Source)

	_, ok = h.Latest("other")
	assert.False(t, ok)
}

func TestHistory_FeedsStabilityCheck(t *testing.T) {
	h, err := NewHistory(30)
	require.NoError(t, err)
	now := time.Now()

	for i := 0; i < 12; i++ {
		h.Add(gps.SourceRUTOS, gps.Fix{Latitude: 59.0, Longitude: 18.0, Accuracy: gps.Float(0.4)}, now.Add(time.Duration(i)*30*time.Second))
	}

	result := gps.CheckGPSStability(h.Fixes(gps.SourceRUTOS), gps.SourceRUTOS)
	assert.True(t, result.Stable)
	require.NotNil(t, result.MaxSpread)
	assert.Equal(t, 0.0, *result.MaxSpread)
}
