// Copyright (C) 2025
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package calibrate

import (
	"bytes"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"auto-offset-go/pkg/config"
	"auto-offset-go/pkg/event"
	"auto-offset-go/pkg/log"
	"auto-offset-go/pkg/motion"
	"auto-offset-go/pkg/reactor"
	"auto-offset-go/pkg/sensor"
	"auto-offset-go/pkg/vars"
)

const testConfig = `
[auto_offset]
probe: tap_probe
sensor: bed_sensor
`

func testSection(t *testing.T, extra string) *config.Section {
	t.Helper()
	cfg, err := config.LoadString(testConfig + extra)
	require.NoError(t, err)
	sec, err := cfg.Section("auto_offset")
	require.NoError(t, err)
	return sec
}

type testRig struct {
	engine  *Calibrator
	bench   *motion.SimBench
	store   *vars.Store
	reactor *reactor.Reactor
	lg      *log.Logger
}

func newTestRig(t *testing.T, extraConfig string, mod func(*Collaborators)) *testRig {
	t.Helper()
	cfg, err := FromSection(testSection(t, extraConfig))
	require.NoError(t, err)

	lg := log.New("test")
	store, err := vars.Open(filepath.Join(t.TempDir(), "vars.cfg"), lg)
	require.NoError(t, err)

	r := reactor.New()
	t.Cleanup(r.End)

	bench := motion.NewSimBench()
	col := Collaborators{
		Toolhead: bench,
		Homer:    bench,
		Thermal:  bench,
		Leveler:  bench,
		Cleaner:  bench,
		Probe:    sensor.Source{Query: bench.ProbeQuery},
		Sensor:   sensor.Source{Query: bench.SensorQuery},
		Store:    store,
		Events:   event.NewBus(),
	}
	if mod != nil {
		mod(&col)
	}

	engine, err := New(cfg, col, r, lg)
	require.NoError(t, err)
	return &testRig{engine: engine, bench: bench, store: store, reactor: r, lg: lg}
}

func TestFullMeasurementRun(t *testing.T) {
	rig := newTestRig(t, "", nil)

	var completed []event.RunCompleted
	rig.engine.Events().Subscribe(func(ev event.Event) {
		if e, ok := ev.(event.RunCompleted); ok {
			completed = append(completed, e)
		}
	})

	res, err := rig.engine.Run(RunOptions{})
	require.NoError(t, err)

	assert.Equal(t, int64(1), res.Count)

	// The bench probe releases 0.083 above contact; the measured trigger
	// distance must land within one fine step above it.
	assert.GreaterOrEqual(t, res.TriggerDistance, 0.083-1e-9)
	assert.Less(t, res.TriggerDistance, 0.085)

	// The sensor switches at 0.25; the offset is reported nozzle-relative
	// (negated) and resolved to within one coarse step.
	assert.LessOrEqual(t, res.Offset, -0.19)
	assert.GreaterOrEqual(t, res.Offset, -0.26)

	assert.True(t, res.Accuracy.WithinTolerance(0.020))
	assert.Len(t, res.Accuracy.Samples, 5)

	// Persisted state.
	assert.InDelta(t, res.TriggerDistance, rig.store.GetFloat("tap_last_distance"), 1e-9)
	assert.InDelta(t, -res.Offset, rig.store.GetFloat("sensor_offset_value"), 1e-9)
	assert.Greater(t, rig.store.GetFloat("sensor_offset_start_z"), 0.25)
	assert.Equal(t, int64(1), rig.store.GetInt("macro_execution_count"))
	assert.InDelta(t, res.Offset, rig.store.GetFloat("probe_z_offset"), 1e-9)

	// Head parked, heaters off.
	pos := rig.bench.Position()
	assert.Equal(t, 175.0, pos.X())
	assert.Equal(t, 350.0, pos.Y())
	nozzle, bed := rig.bench.Current()
	assert.Equal(t, 0.0, nozzle)
	assert.Equal(t, 0.0, bed)

	require.Len(t, completed, 1)
	assert.Equal(t, int64(1), completed[0].Count)

	st := rig.engine.Status()
	assert.False(t, st.Running)
	assert.Equal(t, PhaseIdle, st.Phase)
	require.NotNil(t, st.LastResult)
}

func TestRunCounterAccumulates(t *testing.T) {
	rig := newTestRig(t, "", nil)

	for i := 1; i <= 3; i++ {
		res, err := rig.engine.Run(RunOptions{})
		require.NoError(t, err)
		assert.Equal(t, int64(i), res.Count)
	}
	assert.Equal(t, int64(3), rig.store.GetInt("macro_execution_count"))
}

func TestSafetyViolationBlocksMotion(t *testing.T) {
	rig := newTestRig(t, "", func(col *Collaborators) {
		col.Probe = sensor.Source{Name: "tap_probe", Query: func() (bool, error) { return true, nil }}
	})
	before := rig.bench.MoveCount()

	_, err := rig.engine.Run(RunOptions{})
	assert.ErrorIs(t, err, ErrSafetyViolation)
	assert.Equal(t, before, rig.bench.MoveCount())
}

func TestTriggeredSensorFailsSafetyCheck(t *testing.T) {
	rig := newTestRig(t, "", func(col *Collaborators) {
		col.Sensor = sensor.Source{Name: "bed_sensor", Query: func() (bool, error) { return true, nil }}
	})
	before := rig.bench.MoveCount()

	// The secondary sensor guards the run even when its measurement
	// phase is disabled for this invocation.
	_, err := rig.engine.Run(RunOptions{EnableSensorOffset: Bool(false)})
	assert.ErrorIs(t, err, ErrSafetyViolation)
	assert.Contains(t, err.Error(), "bed_sensor")
	assert.Equal(t, before, rig.bench.MoveCount())
}

func TestDebugLevelScopedToRun(t *testing.T) {
	rig := newTestRig(t, "", nil)

	var buf bytes.Buffer
	rig.lg.SetWriter(&buf)
	rig.lg.SetColorize(false)
	rig.lg.SetLevel(log.WARN)

	_, err := rig.engine.Run(RunOptions{DebugLevel: Int(2)})
	require.NoError(t, err)

	// Debug output appears during the run, and the host level is
	// restored afterwards.
	assert.Contains(t, buf.String(), "phase: tap_contact")
	assert.Equal(t, log.WARN, rig.lg.GetLevel())
}

func TestHeatingSingleTarget(t *testing.T) {
	rig := newTestRig(t, "", nil)

	var phases []string
	rig.engine.Events().Subscribe(func(ev event.Event) {
		if e, ok := ev.(event.PhaseStarted); ok {
			phases = append(phases, e.Phase)
		}
	})

	res, err := rig.engine.Run(RunOptions{NozzleTemp: Float(170), BedTemp: Float(0)})
	require.NoError(t, err)

	// A cold bed target does not skip nozzle preheating.
	assert.Contains(t, phases, string(PhaseHeating))
	assert.Equal(t, 170.0, res.NozzleTemp)
	assert.Equal(t, 0.0, res.BedTemp)
}

func TestTravelSeparatesZFromXY(t *testing.T) {
	rig := newTestRig(t, "", nil)

	_, err := rig.engine.Run(RunOptions{})
	require.NoError(t, err)

	// Leave the homed head low and off to the side; the next run must
	// lift before it travels.
	require.NoError(t, rig.bench.Move(motion.Position{50, 50, 5}, 100))
	n := len(rig.bench.Moves())

	_, err = rig.engine.Run(RunOptions{})
	require.NoError(t, err)

	prev := motion.Position{50, 50, 5}
	for _, m := range rig.bench.Moves()[n:] {
		xy := m.X() != prev.X() || m.Y() != prev.Y()
		z := m.Z() != prev.Z()
		assert.False(t, xy && z, "combined XY and Z move to %s", m)
		prev = m
	}
}

func TestAccuracyToleranceFailure(t *testing.T) {
	var bench *motion.SimBench

	// The probe reports contact at a per-descent height: the third
	// descent (second accuracy sample) triggers 0.07 high, blowing the
	// 0.020 tolerance.
	heights := []float64{0, 0, 0.07, 0, 0, 0, 0, 0}
	idx := 0
	last := false
	query := func() (bool, error) {
		h := heights[len(heights)-1]
		if idx < len(heights) {
			h = heights[idx]
		}
		trig := bench.Position().Z() <= h+1e-9
		if last && !trig {
			idx++
		}
		last = trig
		return trig, nil
	}

	rig := newTestRig(t, "", func(col *Collaborators) {
		col.Probe = sensor.Source{Name: "tap_probe", Query: query}
	})
	bench = rig.bench

	var failed []event.RunFailed
	rig.engine.Events().Subscribe(func(ev event.Event) {
		if e, ok := ev.(event.RunFailed); ok {
			failed = append(failed, e)
		}
	})

	_, err := rig.engine.Run(RunOptions{})
	assert.ErrorIs(t, err, ErrAccuracyTolerance)

	require.Len(t, failed, 1)
	assert.Equal(t, string(PhaseAccuracyCheck), failed[0].Phase)
	assert.False(t, failed[0].Aborted)

	// No run is recorded for a rejected measurement.
	assert.Equal(t, int64(0), rig.store.GetInt("macro_execution_count"))
}

func TestAbortDuringMeasurement(t *testing.T) {
	rig := newTestRig(t, "", nil)

	rig.engine.Events().Subscribe(func(ev event.Event) {
		if e, ok := ev.(event.PhaseStarted); ok && e.Phase == string(PhaseTapContact) {
			rig.engine.Abort()
		}
	})

	_, err := rig.engine.Run(RunOptions{})
	assert.ErrorIs(t, err, ErrAborted)
	assert.Equal(t, int64(0), rig.store.GetInt("macro_execution_count"))
}

func TestDisabledMeasurementsCarryForward(t *testing.T) {
	rig := newTestRig(t, "", nil)

	var mu sync.Mutex
	var phases []string
	rig.engine.Events().Subscribe(func(ev event.Event) {
		if e, ok := ev.(event.PhaseStarted); ok {
			mu.Lock()
			phases = append(phases, e.Phase)
			mu.Unlock()
		}
	})

	// Seed previous values.
	require.NoError(t, rig.store.Set("tap_last_distance", 0.080))
	require.NoError(t, rig.store.Set("sensor_offset_value", 0.246))

	res, err := rig.engine.Run(RunOptions{
		EnableAccuracyCheck:   Bool(false),
		EnableTriggerDistance: Bool(false),
		EnableSensorOffset:    Bool(false),
	})
	require.NoError(t, err)

	assert.InDelta(t, 0.080, res.TriggerDistance, 1e-9)
	assert.InDelta(t, 0.0, res.TriggerDelta, 1e-9)
	assert.InDelta(t, -0.246, res.Offset, 1e-9)
	assert.Empty(t, res.Accuracy.Samples)

	// With every measurement disabled the head never approaches the
	// surface: the run ends after preparation.
	mu.Lock()
	defer mu.Unlock()
	assert.NotContains(t, phases, string(PhaseMoveToMeasure))
	assert.NotContains(t, phases, string(PhaseTapContact))
	assert.Contains(t, phases, string(PhaseFinalize))
}

func TestStartRejectsConcurrentRun(t *testing.T) {
	rig := newTestRig(t, "", nil)

	release := make(chan struct{})
	rig.engine.Events().Subscribe(func(ev event.Event) {
		if e, ok := ev.(event.PhaseStarted); ok && e.Phase == string(PhaseSafetyCheck) {
			<-release
		}
	})

	comp, err := rig.engine.Start(RunOptions{})
	require.NoError(t, err)

	_, err = rig.engine.Start(RunOptions{})
	assert.ErrorIs(t, err, ErrBusy)
	_, err = rig.engine.Run(RunOptions{})
	assert.ErrorIs(t, err, ErrBusy)

	close(release)
	result := comp.Wait(10*time.Second, nil)
	res, ok := result.(*Result)
	require.True(t, ok, "expected *Result, got %T", result)
	assert.Equal(t, int64(1), res.Count)
}

func TestRunOptionOverrides(t *testing.T) {
	rig := newTestRig(t, "", nil)

	res, err := rig.engine.Run(RunOptions{
		NozzleTemp: Float(180),
		BedTemp:    Float(60),
	})
	require.NoError(t, err)
	assert.Equal(t, 180.0, res.NozzleTemp)
	assert.Equal(t, 60.0, res.BedTemp)
}

func TestConfigRequiresSensorIdentity(t *testing.T) {
	cfg, err := config.LoadString("[auto_offset]\nsensor: bed_sensor\n")
	require.NoError(t, err)
	sec, err := cfg.Section("auto_offset")
	require.NoError(t, err)

	_, err = FromSection(sec)
	require.Error(t, err)
	var cerr *config.Error
	assert.ErrorAs(t, err, &cerr)
	assert.Equal(t, "probe", cerr.Option)
}

func TestConfigDefaults(t *testing.T) {
	cfg, err := FromSection(testSection(t, ""))
	require.NoError(t, err)

	assert.Equal(t, 5, cfg.ProbeSamples)
	assert.Equal(t, 0.020, cfg.ProbeTolerance)
	assert.Equal(t, 25.0, cfg.SafetyMarginPercent)
	assert.Equal(t, 0.15, cfg.TriggerDistanceMax)
	assert.True(t, cfg.EnableAccuracyCheck)
	assert.Equal(t, int64(10), cfg.MilestoneInterval)
}

func TestConfigRejectsBadValues(t *testing.T) {
	_, err := FromSection(testSection(t, "probe_samples: 0\n"))
	require.Error(t, err)

	_, err = FromSection(testSection(t, "probe_tolerance: 0.0001\n"))
	require.Error(t, err)

	_, err = FromSection(testSection(t, "milestone_interval: -1\n"))
	require.Error(t, err)
}
