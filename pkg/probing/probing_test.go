// Copyright (C) 2025
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package probing

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auto-offset-go/pkg/log"
	"auto-offset-go/pkg/motion"
	"auto-offset-go/pkg/reactor"
	"auto-offset-go/pkg/sensor"
)

func newTestProber(t *testing.T) (*Prober, *motion.SimBench, *reactor.Reactor) {
	t.Helper()
	r := reactor.New()
	t.Cleanup(r.End)
	bench := motion.NewSimBench()
	return New(bench, log.New("test")), bench, r
}

func probeEndstop(bench *motion.SimBench, r *reactor.Reactor) sensor.Endstop {
	return sensor.Resolve(sensor.Source{Name: "tap_probe", Query: bench.ProbeQuery},
		func() float64 { return bench.Position().Z() }, r, log.New("test"))
}

func TestSteppedMoveFindsContact(t *testing.T) {
	p, bench, r := newTestProber(t)
	es := probeEndstop(bench, r)

	require.NoError(t, bench.Move(motion.Position{175, 175, 5}, 100))
	before := bench.MoveCount()

	z, err := p.ProbingMove(es, Move{
		TargetZ:      -5,
		Speed:        15,
		Desired:      sensor.Triggered,
		RequireStart: RequireStarting(sensor.Open),
	})
	require.NoError(t, err)

	// Contact is at Z0; the result must land within one coarse step.
	assert.LessOrEqual(t, z, 1e-9)
	assert.GreaterOrEqual(t, z, -CoarseStep-1e-9)

	// Never more steps than distance/step, rounded up.
	maxSteps := int(math.Ceil(10 / CoarseStep))
	assert.LessOrEqual(t, bench.MoveCount()-before, maxSteps)
}

func TestSteppedMoveFineStepCount(t *testing.T) {
	p, bench, r := newTestProber(t)
	es := probeEndstop(bench, r)

	// Latch the probe by touching the bed, then lift in fine steps until
	// it releases at the 0.083 hysteresis height.
	require.NoError(t, bench.Move(motion.Position{175, 175, 0}, 100))
	before := bench.MoveCount()

	z, err := p.ProbingMove(es, Move{
		TargetZ:      0.15,
		Speed:        5,
		Desired:      sensor.Open,
		StepSize:     FineStep,
		RequireStart: RequireStarting(sensor.Triggered),
	})
	require.NoError(t, err)

	assert.GreaterOrEqual(t, z, 0.083-1e-9)
	assert.Less(t, z, 0.083+FineStep+1e-9)
	// ceil(0.083 / 0.00125) = 67 increments.
	assert.Equal(t, 67, bench.MoveCount()-before)
}

func TestZeroDisplacementWhenAlreadyDesired(t *testing.T) {
	p, bench, r := newTestProber(t)
	es := probeEndstop(bench, r)

	require.NoError(t, bench.Move(motion.Position{175, 175, 0}, 100))
	before := bench.MoveCount()

	z, err := p.ProbingMove(es, Move{TargetZ: -5, Speed: 15, Desired: sensor.Triggered})
	require.NoError(t, err)
	assert.Equal(t, bench.Position().Z(), z)
	assert.Equal(t, before, bench.MoveCount())
}

func TestTriggerNotFound(t *testing.T) {
	p, bench, r := newTestProber(t)
	es := probeEndstop(bench, r)

	require.NoError(t, bench.Move(motion.Position{175, 175, 5}, 100))

	// Target stops well above the bed, so no trigger can occur.
	_, err := p.ProbingMove(es, Move{TargetZ: 4, Speed: 15, Desired: sensor.Triggered})
	assert.ErrorIs(t, err, ErrTriggerNotFound)
}

func TestStartPrecondition(t *testing.T) {
	p, bench, r := newTestProber(t)
	es := probeEndstop(bench, r)

	require.NoError(t, bench.Move(motion.Position{175, 175, 5}, 100))
	before := bench.MoveCount()

	_, err := p.ProbingMove(es, Move{
		TargetZ:      -5,
		Speed:        15,
		Desired:      sensor.Open,
		RequireStart: RequireStarting(sensor.Triggered),
	})
	assert.ErrorIs(t, err, ErrPrecondition)
	assert.Equal(t, before, bench.MoveCount())
}

func TestInterruptBetweenIncrements(t *testing.T) {
	p, bench, r := newTestProber(t)
	es := probeEndstop(bench, r)

	require.NoError(t, bench.Move(motion.Position{175, 175, 5}, 100))

	calls := 0
	_, err := p.ProbingMove(es, Move{
		TargetZ: -5,
		Speed:   15,
		Desired: sensor.Triggered,
		Interrupt: func() bool {
			calls++
			return calls > 3
		},
	})
	assert.ErrorIs(t, err, ErrInterrupted)
}

func TestMonitoredMoveHaltsAtTrigger(t *testing.T) {
	p, bench, r := newTestProber(t)

	native := &haltingNative{bench: bench, haltZ: 0.5}
	es := sensor.Resolve(sensor.Source{Name: "hw_probe", Native: native},
		func() float64 { return bench.Position().Z() }, r, log.New("test"))
	require.True(t, es.Monitored())

	require.NoError(t, bench.Move(motion.Position{175, 175, 5}, 100))
	z, err := p.ProbingMove(es, Move{TargetZ: -5, Speed: 15, Desired: sensor.Triggered})
	require.NoError(t, err)
	assert.Equal(t, 0.5, z)
}

// haltingNative pretends the controller stopped the move at haltZ.
type haltingNative struct {
	bench *motion.SimBench
	haltZ float64
	armed bool
}

func (n *haltingNative) QueryState() (bool, error) {
	return n.bench.Position().Z() <= n.haltZ, nil
}

func (n *haltingNative) StartWait(desired bool, timeout time.Duration) error {
	n.armed = true
	return nil
}

func (n *haltingNative) WaitTrigger() (float64, error) {
	return n.haltZ, nil
}

func TestSearchFloor(t *testing.T) {
	assert.InDelta(t, 0.10, SearchFloor(0.08, 25), 1e-12)
	assert.Equal(t, 0.0, SearchFloor(0, 25))
	assert.Equal(t, 0.0, SearchFloor(-0.5, 25))
	assert.InDelta(t, 0.083, SearchFloor(0.083, 0), 1e-12)
}
