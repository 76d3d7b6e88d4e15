// Trigger sensor abstraction for probing moves
//
// A calibration sensor is either backed by a native endstop handle on the
// motion controller (microsecond-class trigger timing, able to halt an
// in-flight move) or by a software query function polled at millisecond
// cadence. Both are exposed through the same Endstop contract so the
// probing code does not care which one it got.
//
// Copyright (C) 2025
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package sensor

import (
	"errors"
	"time"

	"auto-offset-go/pkg/log"
	"auto-offset-go/pkg/reactor"
)

// Common errors
var (
	// ErrHardwareQuery reports that the underlying sensor query could not
	// be performed. Callers fall back to Open and log the degradation.
	ErrHardwareQuery = errors.New("sensor: hardware query failed")

	// ErrWaitTimeout reports that a wait ended without the desired state
	// transition.
	ErrWaitTimeout = errors.New("sensor: wait timed out without trigger")

	// ErrNoWait reports Wait without a preceding BeginWait.
	ErrNoWait = errors.New("sensor: no wait in progress")
)

// TriggerState is the normalized sensor state. All variants report true
// for "in contact / beam broken" regardless of underlying polarity.
type TriggerState bool

const (
	Triggered TriggerState = true
	Open      TriggerState = false
)

func (s TriggerState) String() string {
	if s == Triggered {
		return "triggered"
	}
	return "open"
}

// Invert returns the logical complement.
func (s TriggerState) Invert() TriggerState {
	return !s
}

// Kind identifies the resolved sensor variant.
type Kind int

const (
	KindHardware Kind = iota
	KindInverted
	KindSoftware
)

func (k Kind) String() string {
	switch k {
	case KindHardware:
		return "hardware"
	case KindInverted:
		return "inverted"
	case KindSoftware:
		return "software"
	default:
		return "unknown"
	}
}

// Endstop is the capability every sensor variant provides.
//
// BeginWait arms a wait for the desired state; Wait blocks until the
// state change and returns the axis position at which it occurred, or
// ErrWaitTimeout when the timeout elapses first.
type Endstop interface {
	Name() string
	Kind() Kind

	// Monitored reports whether the motion controller can halt an
	// in-flight move on this sensor's state change.
	Monitored() bool

	Query() (TriggerState, error)
	BeginWait(desired TriggerState, timeout time.Duration) error
	Wait() (float64, error)
}

// NativeEndstop is the handle the motion controller exposes for sensors
// wired as real endstops.
type NativeEndstop interface {
	// QueryState reads the raw sensor state.
	QueryState() (bool, error)

	// StartWait arms the controller to halt motion when the sensor
	// reaches the desired raw state.
	StartWait(desired bool, timeout time.Duration) error

	// WaitTrigger blocks until the armed wait fires and returns the
	// halt position of the monitored axis.
	WaitTrigger() (float64, error)
}

// Source describes a configured sensor before variant resolution.
type Source struct {
	Name string

	// Native is the controller endstop handle, nil when the sensor has
	// no hardware path.
	Native NativeEndstop

	// Query is the logical state function used for the software path.
	Query func() (bool, error)

	// Inverted flips the polarity: a raw low reading reports Triggered.
	Inverted bool

	// PollInterval is the software polling cadence. Zero selects the
	// default of 1ms.
	PollInterval time.Duration
}

// Resolve selects the sensor variant for one directed move. Hardware
// endstops are preferred whenever a native handle exists; otherwise the
// logical query function is wrapped in a software-polled endstop. The
// result must not be cached across moves: hardware availability depends
// on which stepper axes are currently bound to the endstop.
func Resolve(src Source, position func() float64, r *reactor.Reactor, lg *log.Logger) Endstop {
	var es Endstop
	if src.Native != nil {
		es = &HardwareEndstop{name: src.Name, native: src.Native}
	} else {
		interval := src.PollInterval
		if interval <= 0 {
			interval = time.Millisecond
		}
		lg.Debugf("sensor '%s' has no native endstop handle, using software polling (%v)",
			src.Name, interval)
		es = &SoftwareEndstop{
			name:     src.Name,
			query:    src.Query,
			position: position,
			interval: interval,
			reactor:  r,
		}
	}
	if src.Inverted {
		es = Invert(es)
	}
	return es
}

// QueryState reads an endstop, degrading to Open with a logged warning
// when the query fails. It never silently reports Triggered.
func QueryState(e Endstop, lg *log.Logger) TriggerState {
	state, err := e.Query()
	if err != nil {
		lg.Warnf("sensor '%s' query failed, assuming open: %v", e.Name(), err)
		return Open
	}
	return state
}
