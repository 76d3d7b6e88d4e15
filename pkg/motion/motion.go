// Motion collaborator boundary
//
// The calibration engine never plans trajectories itself; it issues move
// requests and position queries against the host's toolhead and waits
// for completion.
//
// Copyright (C) 2025
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package motion

import "fmt"

// Position is a 3-tuple of axis coordinates. The calibration engine only
// mutates Z directly and preserves X/Y.
type Position [3]float64

func (p Position) X() float64 { return p[0] }
func (p Position) Y() float64 { return p[1] }
func (p Position) Z() float64 { return p[2] }

// WithZ returns a copy of p with the Z coordinate replaced.
func (p Position) WithZ(z float64) Position {
	return Position{p[0], p[1], z}
}

func (p Position) String() string {
	return fmt.Sprintf("X%.6f Y%.6f Z%.6f", p[0], p[1], p[2])
}

// Toolhead is the motion subsystem the engine drives. Moves complete
// asynchronously; WaitMoves blocks until the queue drains.
type Toolhead interface {
	Position() Position
	Move(pos Position, speed float64) error
	WaitMoves() error

	// SetZPosition re-declares the current physical height as the given
	// logical Z without motion. Tap-contact uses it to establish the
	// zero reference.
	SetZPosition(z float64) error
}
