// Package traffic keeps sliding windows of /getweather outcomes. The health
// handler reads the error rate to decide when the service is degraded.
package traffic

import (
	"sync"
	"time"
)

// maxAge bounds how long outcomes are retained regardless of query window.
const maxAge = 5 * time.Minute

type Tracker struct {
	mu           sync.Mutex
	now          func() time.Time
	successTimes []time.Time
	errorTimes   []time.Time
	deniedTimes  []time.Time
}

func NewTracker() *Tracker {
	return &Tracker{now: time.Now}
}

// RecordSuccess records a lookup that returned 200.
func (t *Tracker) RecordSuccess() {
	t.record(&t.successTimes)
}

// RecordError records a lookup that failed on the upstream side (5xx).
func (t *Tracker) RecordError() {
	t.record(&t.errorTimes)
}

// RecordDenied records a per-client rate limit denial (429).
func (t *Tracker) RecordDenied() {
	t.record(&t.deniedTimes)
}

func (t *Tracker) record(slice *[]time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	*slice = append(*slice, now)
	t.pruneLocked(now)
}

// RequestCount returns successes, errors and denials within the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	return countSince(t.successTimes, cutoff) +
		countSince(t.errorTimes, cutoff) +
		countSince(t.deniedTimes, cutoff)
}

func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.deniedTimes, t.now().Add(-window))
}

// ErrorRate returns (errors, total) within the window. Denials are not part of total.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	errors = countSince(t.errorTimes, cutoff)
	return errors, errors + countSince(t.successTimes, cutoff)
}

// ErrorPct is ErrorRate as a percentage; 0 when nothing was recorded.
func (t *Tracker) ErrorPct(window time.Duration) float64 {
	errors, total := t.ErrorRate(window)
	if total == 0 {
		return 0
	}
	return float64(errors) * 100 / float64(total)
}

func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successTimes = nil
	t.errorTimes = nil
	t.deniedTimes = nil
}

func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops outcomes older than maxAge. Timestamps are appended in order.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-maxAge)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for i < len(times) && times[i].Before(cutoff) {
			i++
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.successTimes)
	prune(&t.errorTimes)
	prune(&t.deniedTimes)
}
