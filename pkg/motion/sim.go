// Simulated bench machine
//
// A deterministic toolhead plus contact-probe and proximity-sensor
// models, used by the test suite and the bench run mode. The probe has
// trigger hysteresis: it closes on contact and stays closed until the
// head retracts past the release height.
//
// Copyright (C) 2025
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package motion

import (
	"strings"
	"sync"
)

// SimBench is an in-memory machine. It implements Toolhead and the
// homing/thermal/leveling/cleaning collaborators the calibration
// sequencer drives.
type SimBench struct {
	mu sync.Mutex

	x, y     float64
	machineZ float64
	zShift   float64 // logical Z = machineZ - zShift

	// BedHeight is the physical height at which the contact probe
	// closes on approach.
	BedHeight float64

	// ReleaseDistance is the probe hysteresis: retracting, the probe
	// opens at BedHeight+ReleaseDistance.
	ReleaseDistance float64

	// SensorHeight is the physical height at or below which the
	// secondary sensor reads triggered.
	SensorHeight float64

	probeLatched bool
	homedAxes    string
	moveCount    int
	moveTrace    []Position

	nozzleTemp float64
	bedTemp    float64
}

// NewSimBench creates a bench with the head parked well above the bed.
func NewSimBench() *SimBench {
	return &SimBench{
		x:               175,
		y:               175,
		machineZ:        20,
		BedHeight:       0,
		ReleaseDistance: 0.083,
		SensorHeight:    0.25,
	}
}

func (b *SimBench) updateProbeLocked() {
	switch {
	case b.machineZ <= b.BedHeight:
		b.probeLatched = true
	case b.machineZ >= b.BedHeight+b.ReleaseDistance:
		b.probeLatched = false
	}
}

// Position implements Toolhead.
func (b *SimBench) Position() Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Position{b.x, b.y, b.machineZ - b.zShift}
}

// Move implements Toolhead. Motion is instantaneous.
func (b *SimBench) Move(pos Position, speed float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.x, b.y = pos.X(), pos.Y()
	b.machineZ = pos.Z() + b.zShift
	b.moveCount++
	b.moveTrace = append(b.moveTrace, pos)
	b.updateProbeLocked()
	return nil
}

// WaitMoves implements Toolhead.
func (b *SimBench) WaitMoves() error { return nil }

// SetZPosition implements Toolhead.
func (b *SimBench) SetZPosition(z float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.zShift = b.machineZ - z
	return nil
}

// MoveCount returns the number of issued moves.
func (b *SimBench) MoveCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.moveCount
}

// Moves returns the commanded move targets in order.
func (b *SimBench) Moves() []Position {
	b.mu.Lock()
	defer b.mu.Unlock()
	trace := make([]Position, len(b.moveTrace))
	copy(trace, b.moveTrace)
	return trace
}

// MachineZ returns the physical head height.
func (b *SimBench) MachineZ() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.machineZ
}

// ProbeQuery reads the contact probe.
func (b *SimBench) ProbeQuery() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.updateProbeLocked()
	return b.probeLatched, nil
}

// SensorQuery reads the secondary proximity sensor.
func (b *SimBench) SensorQuery() (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.machineZ <= b.SensorHeight, nil
}

// Home homes the given axes.
func (b *SimBench) Home(axes string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, a := range strings.Split(strings.ToLower(axes), "") {
		if !strings.Contains(b.homedAxes, a) {
			b.homedAxes += a
		}
	}
	if strings.Contains(strings.ToLower(axes), "z") {
		b.machineZ = 20
		b.zShift = 0
		b.updateProbeLocked()
	}
	return nil
}

// HomedAxes reports the homed axes, e.g. "xyz".
func (b *SimBench) HomedAxes() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.homedAxes
}

// SetTargets sets heater targets without waiting.
func (b *SimBench) SetTargets(nozzle, bed float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nozzleTemp, b.bedTemp = nozzle, bed
	return nil
}

// WaitTargets blocks until targets are reached. The bench heats
// instantly.
func (b *SimBench) WaitTargets(nozzle, bed float64) error {
	return b.SetTargets(nozzle, bed)
}

// Current returns the current nozzle and bed temperatures.
func (b *SimBench) Current() (float64, float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.nozzleTemp, b.bedTemp
}

// Off switches all heaters off.
func (b *SimBench) Off() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nozzleTemp, b.bedTemp = 0, 0
}

// Level runs gantry leveling. The bench is always level.
func (b *SimBench) Level() error { return nil }

// Clean runs the nozzle cleaning routine.
func (b *SimBench) Clean() error { return nil }
