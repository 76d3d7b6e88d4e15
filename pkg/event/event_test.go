package event

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPublishFanOut(t *testing.T) {
	bus := NewBus()

	var got []string
	bus.Subscribe(func(ev Event) { got = append(got, "a:"+ev.Kind()) })
	bus.Subscribe(func(ev Event) { got = append(got, "b:"+ev.Kind()) })

	bus.Publish(PhaseStarted{Phase: "homing", When: time.Now()})
	assert.ElementsMatch(t, []string{"a:phase_started", "b:phase_started"}, got)
}

func TestUnsubscribe(t *testing.T) {
	bus := NewBus()

	count := 0
	id := bus.Subscribe(func(Event) { count++ })
	bus.Publish(RunFailed{Reason: "x"})
	bus.Unsubscribe(id)
	bus.Publish(RunFailed{Reason: "y"})
	assert.Equal(t, 1, count)
}

func TestPublishWithoutSubscribers(t *testing.T) {
	bus := NewBus()
	assert.NotPanics(t, func() {
		bus.Publish(RunCompleted{Count: 1})
	})
}

func TestEventKinds(t *testing.T) {
	assert.Equal(t, "phase_started", PhaseStarted{}.Kind())
	assert.Equal(t, "run_completed", RunCompleted{}.Kind())
	assert.Equal(t, "run_failed", RunFailed{}.Kind())
}
