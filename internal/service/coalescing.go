package service

import (
	"context"
	"sync"
	"time"

	"github.com/kjstillabower/weather-lookup/internal/models"
)

// call is one upstream fetch that any number of callers may wait on.
type call struct {
	done   chan struct{}
	result models.Payload
	err    error
}

// requestCoalescer collapses concurrent cache misses for the same key into
// one upstream call.
type requestCoalescer struct {
	mu       sync.Mutex
	inFlight map[string]*call
	timeout  time.Duration
}

func newRequestCoalescer(timeout time.Duration) *requestCoalescer {
	return &requestCoalescer{
		inFlight: make(map[string]*call),
		timeout:  timeout,
	}
}

// GetOrDo joins the in-flight call for key or starts one. fn runs detached from
// the first caller's cancellation, bounded by the coalescer timeout, so one
// impatient caller cannot fail the others. shared reports whether this caller
// joined an existing call.
func (rc *requestCoalescer) GetOrDo(ctx context.Context, key string, fn func(context.Context) (models.Payload, error)) (result models.Payload, shared bool, err error) {
	rc.mu.Lock()
	c, exists := rc.inFlight[key]
	if !exists {
		c = &call{done: make(chan struct{})}
		rc.inFlight[key] = c
		go rc.run(ctx, key, c, fn)
	}
	rc.mu.Unlock()

	select {
	case <-c.done:
		return c.result, exists, c.err
	case <-ctx.Done():
		return models.Payload{}, exists, ctx.Err()
	}
}

func (rc *requestCoalescer) run(ctx context.Context, key string, c *call, fn func(context.Context) (models.Payload, error)) {
	fnCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), rc.timeout)
	defer cancel()

	c.result, c.err = fn(fnCtx)

	rc.mu.Lock()
	delete(rc.inFlight, key)
	rc.mu.Unlock()
	close(c.done)
}
