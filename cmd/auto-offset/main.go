// auto-offset measures and maintains the Z offset between a nozzle
// contact probe and a secondary trigger sensor.
//
// Usage:
//
//	auto-offset run [--config auto_offset.cfg] [measurement flags]
//	auto-offset serve [--config auto_offset.cfg] [--addr :7130]
//
// The run command executes one measurement against the built-in bench
// machine and prints the results. The serve command exposes the engine
// over HTTP with a websocket event stream and Prometheus metrics.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
