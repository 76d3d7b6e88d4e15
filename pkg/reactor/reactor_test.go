package reactor

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWaitConditionImmediate(t *testing.T) {
	r := New()
	defer r.End()

	calls := 0
	elapsed, err := r.WaitCondition(func() bool {
		calls++
		return true
	}, time.Millisecond, time.Second)
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Less(t, elapsed, 100*time.Millisecond)
}

func TestWaitConditionEventually(t *testing.T) {
	r := New()
	defer r.End()

	var flag atomic.Bool
	go func() {
		time.Sleep(5 * time.Millisecond)
		flag.Store(true)
	}()

	_, err := r.WaitCondition(flag.Load, time.Millisecond, time.Second)
	assert.NoError(t, err)
}

func TestWaitConditionTimeout(t *testing.T) {
	r := New()
	defer r.End()

	_, err := r.WaitCondition(func() bool { return false }, time.Millisecond, 10*time.Millisecond)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestRegisterCallback(t *testing.T) {
	r := New()
	defer r.End()

	comp := r.RegisterCallback(func() interface{} { return 42 })
	result := comp.Wait(time.Second, nil)
	assert.Equal(t, 42, result)
	assert.True(t, comp.Test())
}

func TestCompletionTimeout(t *testing.T) {
	r := New()
	defer r.End()

	comp := r.Completion()
	result := comp.Wait(5*time.Millisecond, "timed out")
	assert.Equal(t, "timed out", result)
	assert.False(t, comp.Test())

	comp.Complete("done")
	comp.Complete("ignored")
	assert.Equal(t, "done", comp.Wait(time.Second, nil))
}

func TestMonotonicAdvances(t *testing.T) {
	r := New()
	defer r.End()

	a := r.Monotonic()
	time.Sleep(2 * time.Millisecond)
	assert.Greater(t, r.Monotonic(), a)
}
