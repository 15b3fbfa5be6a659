// Package telem keeps the recent fix history per GPS source in RAM. It is
// the buffered history the stability and position-change detectors run on.
package telem

import (
	"fmt"
	"sync"
	"time"

	"github.com/markus-lassfolk/gpsselect/pkg/gps"
)

// Sample is one fix as received, with its arrival time
type Sample struct {
	Source     gps.Source `json:"source"`
	ReceivedAt time.Time  `json:"received_at"`
	Fix        gps.Fix    `json:"fix"`
}

// History holds a bounded ring buffer of samples per source
type History struct {
	mu       sync.RWMutex
	capacity int
	buffers  map[gps.Source]*RingBuffer
}

// NewHistory creates a history keeping up to capacity samples per source
func NewHistory(capacity int) (*History, error) {
	if capacity < 1 || capacity > 1000 {
		return nil, fmt.Errorf("history capacity must be between 1 and 1000, got %d", capacity)
	}
	return &History{
		capacity: capacity,
		buffers:  make(map[gps.Source]*RingBuffer),
	}, nil
}

// Add records a fix for source
func (h *History) Add(source gps.Source, fix gps.Fix, at time.Time) {
	h.mu.Lock()
	rb, ok := h.buffers[source]
	if !ok {
		rb = NewRingBuffer(h.capacity)
		h.buffers[source] = rb
	}
	h.mu.Unlock()

	rb.Add(Sample{Source: source, ReceivedAt: at, Fix: fix})
}

// Latest returns the newest sample for source
func (h *History) Latest(source gps.Source) (Sample, bool) {
	rb := h.buffer(source)
	if rb == nil {
		return Sample{}, false
	}
	return rb.Latest()
}

// Fixes returns the buffered fixes for source, oldest first. Only fixes with
// an accuracy figure are included, since an unavailable reading carries no
// meaningful position.
func (h *History) Fixes(source gps.Source) []gps.Fix {
	rb := h.buffer(source)
	if rb == nil {
		return nil
	}

	samples := rb.Items()
	fixes := make([]gps.Fix, 0, len(samples))
	for _, s := range samples {
		if s.Fix.Available() {
			fixes = append(fixes, s.Fix)
		}
	}
	return fixes
}

// Size returns the number of buffered samples for source
func (h *History) Size(source gps.Source) int {
	rb := h.buffer(source)
	if rb == nil {
		return 0
	}
	return rb.Size()
}

// Capacity returns the number of samples kept per source
func (h *History) Capacity() int {
	return h.capacity
}

func (h *History) buffer(source gps.Source) *RingBuffer {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.buffers[source]
}

// RingBuffer is a fixed-capacity FIFO of samples that overwrites the oldest
// entry when full
type RingBuffer struct {
	mu       sync.RWMutex
	data     []Sample
	capacity int
	head     int
	size     int
}

// NewRingBuffer creates a ring buffer with the given capacity
func NewRingBuffer(capacity int) *RingBuffer {
	return &RingBuffer{
		data:     make([]Sample, capacity),
		capacity: capacity,
	}
}

// Add appends a sample
func (rb *RingBuffer) Add(s Sample) {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	tail := (rb.head + rb.size) % rb.capacity
	rb.data[tail] = s

	if rb.size < rb.capacity {
		rb.size++
	} else {
		rb.head = (rb.head + 1) % rb.capacity
	}
}

// Items returns a copy of the buffered samples, oldest first
func (rb *RingBuffer) Items() []Sample {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	out := make([]Sample, rb.size)
	for i := 0; i < rb.size; i++ {
		out[i] = rb.data[(rb.head+i)%rb.capacity]
	}
	return out
}

// Latest returns the newest sample
func (rb *RingBuffer) Latest() (Sample, bool) {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if rb.size == 0 {
		return Sample{}, false
	}
	return rb.data[(rb.head+rb.size-1)%rb.capacity], true
}

// Size returns the current number of samples
func (rb *RingBuffer) Size() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.size
}
