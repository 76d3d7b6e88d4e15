// Endstop variants: hardware-backed, inverted, software-polled
//
// Copyright (C) 2025
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package sensor

import (
	"errors"
	"fmt"
	"time"

	"auto-offset-go/pkg/reactor"
)

// HardwareEndstop is backed by the motion controller's native endstop
// query and supports hardware-monitored moves.
type HardwareEndstop struct {
	name    string
	native  NativeEndstop
	waiting bool
}

func (h *HardwareEndstop) Name() string    { return h.name }
func (h *HardwareEndstop) Kind() Kind      { return KindHardware }
func (h *HardwareEndstop) Monitored() bool { return true }

func (h *HardwareEndstop) Query() (TriggerState, error) {
	raw, err := h.native.QueryState()
	if err != nil {
		return Open, fmt.Errorf("%w: %s: %v", ErrHardwareQuery, h.name, err)
	}
	return TriggerState(raw), nil
}

func (h *HardwareEndstop) BeginWait(desired TriggerState, timeout time.Duration) error {
	if err := h.native.StartWait(bool(desired), timeout); err != nil {
		return fmt.Errorf("sensor '%s': arm wait: %w", h.name, err)
	}
	h.waiting = true
	return nil
}

func (h *HardwareEndstop) Wait() (float64, error) {
	if !h.waiting {
		return 0, ErrNoWait
	}
	h.waiting = false
	return h.native.WaitTrigger()
}

// InvertedEndstop wraps another endstop and reports the logical
// complement, so a wait for "triggered" stops on the wrapped sensor's
// release. Inverting twice yields the original behavior.
type InvertedEndstop struct {
	wrapped Endstop
}

// Invert returns an endstop reporting the complement of e. Wrapping an
// InvertedEndstop unwraps it instead of stacking.
func Invert(e Endstop) Endstop {
	if inv, ok := e.(*InvertedEndstop); ok {
		return inv.wrapped
	}
	return &InvertedEndstop{wrapped: e}
}

func (i *InvertedEndstop) Name() string    { return i.wrapped.Name() }
func (i *InvertedEndstop) Kind() Kind      { return KindInverted }
func (i *InvertedEndstop) Monitored() bool { return i.wrapped.Monitored() }

func (i *InvertedEndstop) Query() (TriggerState, error) {
	state, err := i.wrapped.Query()
	if err != nil {
		return Open, err
	}
	return state.Invert(), nil
}

func (i *InvertedEndstop) BeginWait(desired TriggerState, timeout time.Duration) error {
	return i.wrapped.BeginWait(desired.Invert(), timeout)
}

func (i *InvertedEndstop) Wait() (float64, error) {
	return i.wrapped.Wait()
}

// SoftwareEndstop wraps an arbitrary state-check function and implements
// the wait contract with a cooperative poll loop. Precision is bounded
// by the polling cadence.
type SoftwareEndstop struct {
	name     string
	query    func() (bool, error)
	position func() float64
	interval time.Duration
	reactor  *reactor.Reactor

	waitDesired TriggerState
	waitTimeout time.Duration
	waiting     bool
}

func (s *SoftwareEndstop) Name() string    { return s.name }
func (s *SoftwareEndstop) Kind() Kind      { return KindSoftware }
func (s *SoftwareEndstop) Monitored() bool { return false }

func (s *SoftwareEndstop) Query() (TriggerState, error) {
	raw, err := s.query()
	if err != nil {
		return Open, fmt.Errorf("%w: %s: %v", ErrHardwareQuery, s.name, err)
	}
	return TriggerState(raw), nil
}

func (s *SoftwareEndstop) BeginWait(desired TriggerState, timeout time.Duration) error {
	s.waitDesired = desired
	s.waitTimeout = timeout
	s.waiting = true
	return nil
}

func (s *SoftwareEndstop) Wait() (float64, error) {
	if !s.waiting {
		return 0, ErrNoWait
	}
	s.waiting = false

	_, err := s.reactor.WaitCondition(func() bool {
		state, qerr := s.Query()
		if qerr != nil {
			// Degrade to open; a wait for open still terminates.
			state = Open
		}
		return state == s.waitDesired
	}, s.interval, s.waitTimeout)
	if err != nil {
		if errors.Is(err, reactor.ErrTimeout) {
			return s.position(), ErrWaitTimeout
		}
		return s.position(), err
	}
	return s.position(), nil
}
