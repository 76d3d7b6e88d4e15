// Package event decouples calibration progress from its consumers.
// The sequencer publishes phase transitions and run outcomes; observers
// (metrics, websocket clients, milestone feedback) subscribe without
// influencing engine control flow.
package event

import (
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Event is anything published on the Bus.
type Event interface {
	Kind() string
}

// PhaseStarted marks the sequencer entering a phase.
type PhaseStarted struct {
	Phase string    `json:"phase"`
	When  time.Time `json:"when"`
}

func (PhaseStarted) Kind() string { return "phase_started" }

// RunCompleted is published by Finalize after a successful run.
type RunCompleted struct {
	Count           int64     `json:"count"`
	Offset          float64   `json:"offset"`
	TriggerDistance float64   `json:"trigger_distance"`
	TriggerDelta    float64   `json:"trigger_delta"`
	AccuracyRange   float64   `json:"accuracy_range"`
	NozzleTemp      float64   `json:"nozzle_temp"`
	BedTemp         float64   `json:"bed_temp"`
	Duration        float64   `json:"duration_s"`
	When            time.Time `json:"when"`
}

func (RunCompleted) Kind() string { return "run_completed" }

// RunFailed is published when a run ends in a reported-failure state.
type RunFailed struct {
	Phase   string    `json:"phase"`
	Reason  string    `json:"reason"`
	Aborted bool      `json:"aborted"`
	When    time.Time `json:"when"`
}

func (RunFailed) Kind() string { return "run_failed" }

// Handler receives published events.
type Handler func(Event)

// Bus is a fan-out publisher. Publishing with no subscribers is a no-op;
// handlers run synchronously in publish order.
type Bus struct {
	subs   *xsync.MapOf[uint64, Handler]
	nextID atomic.Uint64
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{subs: xsync.NewMapOf[uint64, Handler]()}
}

// Subscribe registers a handler and returns its subscription id.
func (b *Bus) Subscribe(h Handler) uint64 {
	id := b.nextID.Add(1)
	b.subs.Store(id, h)
	return id
}

// Unsubscribe removes a handler.
func (b *Bus) Unsubscribe(id uint64) {
	b.subs.Delete(id)
}

// Publish delivers ev to every subscriber.
func (b *Bus) Publish(ev Event) {
	b.subs.Range(func(_ uint64, h Handler) bool {
		h(ev)
		return true
	})
}
