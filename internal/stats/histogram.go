package stats

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// MaxTrackableMs is the largest response time the histogram keeps exact.
// Larger values are clamped so a stuck request still lands in the top bucket.
const MaxTrackableMs = int64(10 * time.Minute / time.Millisecond)

// SafeHistogram is a thread-safe wrapper around hdrhistogram
type SafeHistogram struct {
	hist *hdrhistogram.Histogram
	mu   sync.Mutex
}

func NewSafeHistogram() *SafeHistogram {
	// 1ms to 10min, 3 significant figures
	h := hdrhistogram.New(1, MaxTrackableMs, 3)
	return &SafeHistogram{hist: h}
}

// RecordMs records a response time in milliseconds
func (h *SafeHistogram) RecordMs(v int64) {
	if v < 0 {
		v = 0
	}
	if v > MaxTrackableMs {
		v = MaxTrackableMs
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	_ = h.hist.RecordValue(v)
}

// ValueAtQuantile returns the recorded value at q (0-100), 0 when empty.
func (h *SafeHistogram) ValueAtQuantile(q float64) int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.ValueAtQuantile(q)
}

func (h *SafeHistogram) TotalCount() int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.hist.TotalCount()
}
