// Directed probe moves
//
// A directed probe move drives the Z axis toward a target position and
// stops at the first qualifying sensor state transition. Sensors with a
// native endstop handle get one continuous hardware-monitored move; all
// others are advanced in bounded increments with a sensor query after
// each increment. The returned position is always sensor-confirmed:
// reaching the target without the expected transition is an error, never
// a result.
//
// Copyright (C) 2025
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package probing

import (
	"errors"
	"fmt"
	"math"
	"time"

	"auto-offset-go/pkg/log"
	"auto-offset-go/pkg/motion"
	"auto-offset-go/pkg/sensor"
)

// Common errors
var (
	// ErrTriggerNotFound reports that the target was reached without the
	// desired sensor transition.
	ErrTriggerNotFound = errors.New("probing: no trigger before target position")

	// ErrPrecondition reports that the sensor was not in the required
	// starting state.
	ErrPrecondition = errors.New("probing: sensor not in required starting state")

	// ErrInterrupted reports that the move was cancelled between
	// increments.
	ErrInterrupted = errors.New("probing: move interrupted")
)

// Step sizes in mm. Coarse steps serve searches; fine steps serve the
// final high-precision trigger-distance measurement.
const (
	CoarseStep = 0.05    // 50 um
	FineStep   = 0.00125 // 1.25 um
)

// positionEps treats positions this close as equal when checking whether
// the target has been reached.
const positionEps = 1e-9

// Move describes one directed probe move on the Z axis.
type Move struct {
	// TargetZ bounds the search; direction is the sign of
	// TargetZ - current.
	TargetZ float64

	// Speed in mm/s.
	Speed float64

	// Desired is the terminal sensor state that stops the move.
	Desired sensor.TriggerState

	// StepSize for the software-polled strategy. Zero selects
	// CoarseStep.
	StepSize float64

	// RequireStart, when non-nil, is the state the sensor must be in
	// before any motion; a mismatch fails fast with ErrPrecondition.
	RequireStart *sensor.TriggerState

	// Interrupt is polled between increments; returning true cancels
	// the move. An in-flight increment is not interruptible.
	Interrupt func() bool
}

// RequireStarting is a convenience for Move.RequireStart.
func RequireStarting(s sensor.TriggerState) *sensor.TriggerState {
	return &s
}

// Prober executes directed probe moves against a toolhead.
type Prober struct {
	th motion.Toolhead
	lg *log.Logger
}

// New creates a Prober.
func New(th motion.Toolhead, lg *log.Logger) *Prober {
	return &Prober{th: th, lg: lg}
}

// ProbingMove runs one directed move and returns the Z position at which
// the sensor reached the desired state.
func (p *Prober) ProbingMove(es sensor.Endstop, mv Move) (float64, error) {
	startZ := p.th.Position().Z()

	if mv.RequireStart != nil {
		state := sensor.QueryState(es, p.lg)
		if state != *mv.RequireStart {
			return 0, fmt.Errorf("%w: sensor '%s' is %s, need %s",
				ErrPrecondition, es.Name(), state, *mv.RequireStart)
		}
	}

	// Already in the desired state: succeed with zero displacement.
	if state := sensor.QueryState(es, p.lg); state == mv.Desired {
		p.lg.Debugf("sensor '%s' already %s, no motion needed", es.Name(), mv.Desired)
		return startZ, nil
	}

	if es.Monitored() {
		return p.monitoredMove(es, mv, startZ)
	}
	return p.steppedMove(es, mv, startZ)
}

// monitoredMove issues one continuous move with the hardware endstop
// armed to halt it at the state change.
func (p *Prober) monitoredMove(es sensor.Endstop, mv Move, startZ float64) (float64, error) {
	distance := math.Abs(mv.TargetZ - startZ)
	timeout := moveTimeout(distance, mv.Speed)

	p.lg.Debugf("hardware probing move on '%s': Z%.6f -> Z%.6f until %s (%.1f mm/s)",
		es.Name(), startZ, mv.TargetZ, mv.Desired, mv.Speed)

	if err := es.BeginWait(mv.Desired, timeout); err != nil {
		return 0, err
	}
	if err := p.th.Move(p.th.Position().WithZ(mv.TargetZ), mv.Speed); err != nil {
		return 0, fmt.Errorf("probing: move failed: %w", err)
	}

	triggerZ, err := es.Wait()
	if werr := p.th.WaitMoves(); werr != nil {
		return 0, fmt.Errorf("probing: wait moves: %w", werr)
	}
	if err != nil {
		if errors.Is(err, sensor.ErrWaitTimeout) {
			return 0, fmt.Errorf("%w: '%s' still %s at Z%.6f",
				ErrTriggerNotFound, es.Name(), mv.Desired.Invert(), mv.TargetZ)
		}
		return 0, err
	}

	p.lg.Debugf("sensor '%s' %s at Z%.6f", es.Name(), mv.Desired, triggerZ)
	return triggerZ, nil
}

// steppedMove advances in fixed increments, blocking on each increment's
// completion before querying the sensor.
func (p *Prober) steppedMove(es sensor.Endstop, mv Move, startZ float64) (float64, error) {
	step := mv.StepSize
	if step <= 0 {
		step = CoarseStep
	}
	dir := 1.0
	if mv.TargetZ < startZ {
		dir = -1.0
	}

	p.lg.Debugf("stepped probing move on '%s': Z%.6f -> Z%.6f until %s (step %.5f)",
		es.Name(), startZ, mv.TargetZ, mv.Desired, step)

	currentZ := startZ
	steps := 0
	for {
		if mv.Interrupt != nil && mv.Interrupt() {
			return 0, ErrInterrupted
		}

		currentZ += dir * step
		if (dir > 0 && currentZ > mv.TargetZ) || (dir < 0 && currentZ < mv.TargetZ) {
			currentZ = mv.TargetZ
		}

		if err := p.th.Move(p.th.Position().WithZ(currentZ), mv.Speed); err != nil {
			return 0, fmt.Errorf("probing: move failed: %w", err)
		}
		if err := p.th.WaitMoves(); err != nil {
			return 0, fmt.Errorf("probing: wait moves: %w", err)
		}
		steps++

		if state := sensor.QueryState(es, p.lg); state == mv.Desired {
			z := p.th.Position().Z()
			p.lg.Debugf("sensor '%s' %s at Z%.6f after %d steps", es.Name(), mv.Desired, z, steps)
			return z, nil
		}

		if math.Abs(currentZ-mv.TargetZ) < positionEps {
			return 0, fmt.Errorf("%w: '%s' still %s at Z%.6f after %d steps",
				ErrTriggerNotFound, es.Name(), mv.Desired.Invert(), mv.TargetZ, steps)
		}
	}
}

// moveTimeout derives a hardware wait timeout from distance and speed
// with generous margin.
func moveTimeout(distance, speed float64) time.Duration {
	if speed <= 0 {
		speed = 1
	}
	seconds := distance/speed*2 + 5
	return time.Duration(seconds * float64(time.Second))
}

// SearchFloor computes the clamped lower bound for the sensor-offset
// search: the current trigger distance plus the configured safety margin,
// never below the zero reference. With no trigger distance measured the
// bound collapses to zero.
func SearchFloor(triggerDistance, safetyMarginPercent float64) float64 {
	if triggerDistance <= 0 {
		return 0
	}
	limit := triggerDistance * (1 + safetyMarginPercent/100)
	return math.Max(limit, 0)
}
