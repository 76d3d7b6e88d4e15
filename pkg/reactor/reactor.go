// Package reactor provides the cooperative scheduling primitives used by
// the measurement engine: a monotonic clock, async completions, and a
// suspend-on-condition wait used by software-polled sensors.
package reactor

import (
	"context"
	"errors"
	"sync"
	"time"
)

// Common errors
var (
	ErrTimeout = errors.New("reactor: wait timed out")
	ErrClosed  = errors.New("reactor: reactor closed")
)

// Reactor owns the clock and completion machinery for one host process.
type Reactor struct {
	ctx       context.Context
	cancel    context.CancelFunc
	startTime time.Time
	wg        sync.WaitGroup
}

// New creates a new Reactor.
func New() *Reactor {
	ctx, cancel := context.WithCancel(context.Background())
	return &Reactor{
		ctx:       ctx,
		cancel:    cancel,
		startTime: time.Now(),
	}
}

// Monotonic returns the time in seconds since the reactor was created.
func (r *Reactor) Monotonic() float64 {
	return time.Since(r.startTime).Seconds()
}

// Pause sleeps for the given duration, returning early if the reactor
// shuts down.
func (r *Reactor) Pause(d time.Duration) {
	if d <= 0 {
		return
	}
	select {
	case <-time.After(d):
	case <-r.ctx.Done():
	}
}

// WaitCondition polls pred every pollInterval until it reports true or the
// timeout expires. It returns the elapsed time on success and ErrTimeout
// otherwise. The predicate is checked once immediately before any sleep.
func (r *Reactor) WaitCondition(pred func() bool, pollInterval, timeout time.Duration) (time.Duration, error) {
	start := time.Now()
	deadline := start.Add(timeout)
	for {
		if pred() {
			return time.Since(start), nil
		}
		if !time.Now().Before(deadline) {
			return time.Since(start), ErrTimeout
		}
		select {
		case <-time.After(pollInterval):
		case <-r.ctx.Done():
			return time.Since(start), ErrClosed
		}
	}
}

// Completion creates a new Completion bound to this reactor.
func (r *Reactor) Completion() *Completion {
	return &Completion{reactor: r, done: make(chan struct{})}
}

// RegisterCallback runs fn on its own goroutine and returns a Completion
// holding its result. This is the single asynchronous entry point used to
// launch a measurement run.
func (r *Reactor) RegisterCallback(fn func() interface{}) *Completion {
	c := r.Completion()
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		c.Complete(fn())
	}()
	return c
}

// End shuts the reactor down and waits for outstanding callbacks.
func (r *Reactor) End() {
	r.cancel()
	r.wg.Wait()
}

// Completion represents an async operation that completes with a result.
type Completion struct {
	reactor *Reactor
	result  interface{}
	done    chan struct{}
	once    sync.Once
}

// Test reports whether the completion has a result.
func (c *Completion) Test() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Complete sets the result and wakes any waiters. Only the first call
// has an effect.
func (c *Completion) Complete(result interface{}) {
	c.once.Do(func() {
		c.result = result
		close(c.done)
	})
}

// Wait blocks until completion or timeout, returning the result or
// timeoutResult.
func (c *Completion) Wait(timeout time.Duration, timeoutResult interface{}) interface{} {
	select {
	case <-c.done:
		return c.result
	case <-time.After(timeout):
		return timeoutResult
	case <-c.reactor.ctx.Done():
		return timeoutResult
	}
}
