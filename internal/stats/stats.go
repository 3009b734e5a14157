// Package stats aggregates the outcomes of a single load test run and derives
// point-in-time snapshots (throughput, latency distribution, status histogram).
package stats

import (
	"math"
	"slices"
	"sync"
	"time"
)

// Sample is one finished request attempt. StatusCode is 0 when no HTTP
// response was received.
type Sample struct {
	ResponseTimeMs int64
	StatusCode     int
	Success        bool
	Err            string
}

// Running holds the accumulated totals of a run.
type Running struct {
	SentRequests       int64         `json:"sentRequests"`
	ReceivedResponses  int64         `json:"receivedResponses"`
	TotalRequests      int64         `json:"totalRequests"`
	SuccessfulRequests int64         `json:"successfulRequests"`
	FailedRequests     int64         `json:"failedRequests"`
	ResponseTimes      []int64       `json:"responseTimes"`
	StatusCodes        map[int]int64 `json:"statusCodes"`
	MinResponseTime    int64         `json:"minResponseTime"`
	MaxResponseTime    int64         `json:"maxResponseTime"`
	Errors             []string      `json:"errors"`
}

// Snapshot is Running plus the derived figures, recomputed on every call to
// Aggregator.Snapshot. It owns its StatusCodes map. ResponseTimes and Errors
// share backing arrays with the aggregator and must be treated as read-only;
// their capacity is capped so appending to them never reaches later samples.
type Snapshot struct {
	Running

	AvgResponseTime   float64 `json:"avgResponseTime"`
	TP90              float64 `json:"tp90"`
	TP95              float64 `json:"tp95"`
	P50               int64   `json:"p50"`
	P99               int64   `json:"p99"`
	ElapsedSeconds    float64 `json:"elapsedTime"`
	RequestsPerSecond float64 `json:"requestsPerSecond"`
	ResponseRate      float64 `json:"responseRate"`
	SuccessRate       float64 `json:"successRate"`
}

// Aggregator is safe for concurrent use by all workers of one run.
type Aggregator struct {
	mu      sync.Mutex
	running Running
	sum     int64
	// sorted mirrors running.ResponseTimes in ascending order.
	sorted []int64
	hist   *SafeHistogram
}

func NewAggregator() *Aggregator {
	return &Aggregator{
		running: Running{
			ResponseTimes: make([]int64, 0, 64),
			StatusCodes:   make(map[int]int64),
			Errors:        make([]string, 0),
		},
		sorted: make([]int64, 0, 64),
		hist:   NewSafeHistogram(),
	}
}

// MarkSent counts a request that has been dispatched but not yet answered.
func (a *Aggregator) MarkSent() {
	a.mu.Lock()
	a.running.SentRequests++
	a.mu.Unlock()
}

// Record folds a finished attempt into the running totals.
func (a *Aggregator) Record(s Sample) {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := &a.running
	r.ReceivedResponses++
	r.TotalRequests++
	if s.Success {
		r.SuccessfulRequests++
	} else {
		r.FailedRequests++
	}

	if s.StatusCode != 0 {
		r.StatusCodes[s.StatusCode]++
	}
	if s.Err != "" {
		r.Errors = append(r.Errors, s.Err)
	}

	if len(r.ResponseTimes) == 0 || s.ResponseTimeMs < r.MinResponseTime {
		r.MinResponseTime = s.ResponseTimeMs
	}
	if s.ResponseTimeMs > r.MaxResponseTime {
		r.MaxResponseTime = s.ResponseTimeMs
	}
	r.ResponseTimes = append(r.ResponseTimes, s.ResponseTimeMs)
	a.sum += s.ResponseTimeMs

	i, _ := slices.BinarySearch(a.sorted, s.ResponseTimeMs)
	a.sorted = slices.Insert(a.sorted, i, s.ResponseTimeMs)

	a.hist.RecordMs(s.ResponseTimeMs)
}

// Snapshot derives the current statistics relative to start.
func (a *Aggregator) Snapshot(now, start time.Time) Snapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	r := a.running
	nt, ne := len(r.ResponseTimes), len(r.Errors)
	snap := Snapshot{
		Running: Running{
			SentRequests:       r.SentRequests,
			ReceivedResponses:  r.ReceivedResponses,
			TotalRequests:      r.TotalRequests,
			SuccessfulRequests: r.SuccessfulRequests,
			FailedRequests:     r.FailedRequests,
			ResponseTimes:      r.ResponseTimes[:nt:nt],
			StatusCodes:        make(map[int]int64, len(r.StatusCodes)),
			MinResponseTime:    r.MinResponseTime,
			MaxResponseTime:    r.MaxResponseTime,
			Errors:             r.Errors[:ne:ne],
		},
		TP90: Percentile(a.sorted, 90),
		TP95: Percentile(a.sorted, 95),
		P50:  a.hist.ValueAtQuantile(50),
		P99:  a.hist.ValueAtQuantile(99),
	}
	for code, n := range r.StatusCodes {
		snap.StatusCodes[code] = n
	}

	if nt > 0 {
		snap.AvgResponseTime = float64(a.sum) / float64(nt)
	}

	elapsed := now.Sub(start).Seconds()
	if elapsed > 0 {
		snap.ElapsedSeconds = elapsed
		snap.RequestsPerSecond = float64(r.TotalRequests) / elapsed
		snap.ResponseRate = float64(r.ReceivedResponses) / elapsed
	}

	if r.TotalRequests > 0 {
		snap.SuccessRate = float64(r.SuccessfulRequests) / float64(r.TotalRequests) * 100
	}

	return snap
}

// Percentile interpolates linearly between the two closest ranks of an
// ascending slice. p is clamped to [0, 100]; an empty slice yields 0.
func Percentile(sorted []int64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n == 1 {
		return float64(sorted[0])
	}

	p = math.Max(0, math.Min(100, p))
	idx := p / 100 * float64(n-1)
	lo := int(math.Floor(idx))
	hi := int(math.Ceil(idx))
	if lo == hi {
		return float64(sorted[lo])
	}

	w := idx - float64(lo)
	return float64(sorted[lo])*(1-w) + float64(sorted[hi])*w
}
