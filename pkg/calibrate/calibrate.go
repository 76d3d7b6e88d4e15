// Z-offset measurement engine
//
// The engine walks a fixed phase sequence: safety check, homing and
// optional preparation (heating, leveling, cleaning), a tap-contact
// reference measurement, then the optional accuracy, trigger-distance
// and sensor-offset measurements, and a finalize step that persists and
// reports the results. One run is active at a time; an abort request
// takes effect at phase boundaries and between probe increments, never
// mid-increment.
//
// Copyright (C) 2025
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package calibrate

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"auto-offset-go/pkg/event"
	"auto-offset-go/pkg/log"
	"auto-offset-go/pkg/motion"
	"auto-offset-go/pkg/probing"
	"auto-offset-go/pkg/reactor"
	"auto-offset-go/pkg/sensor"
	"auto-offset-go/pkg/vars"
)

// Common errors
var (
	// ErrBusy reports a start request while a run is already active.
	ErrBusy = errors.New("calibrate: measurement already running")

	// ErrAborted reports an operator abort.
	ErrAborted = errors.New("calibrate: measurement aborted")

	// ErrSafetyViolation reports a sensor already triggered before any
	// motion was commanded.
	ErrSafetyViolation = errors.New("calibrate: sensor triggered before start")

	// ErrAccuracyTolerance reports a repeatability spread above the
	// configured tolerance.
	ErrAccuracyTolerance = errors.New("calibrate: probe accuracy outside tolerance")
)

// Persisted variable names.
const (
	varTriggerDistance = "tap_last_distance"
	varSensorOffset    = "sensor_offset_value"
	varSensorStartZ    = "sensor_offset_start_z"
	varExecutionCount  = "macro_execution_count"
	varAppliedOffset   = "probe_z_offset"
)

// Phase identifies one step of the measurement sequence.
type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseSafetyCheck     Phase = "safety_check"
	PhaseHoming          Phase = "homing"
	PhaseHeating         Phase = "heating"
	PhaseLeveling        Phase = "leveling"
	PhaseCleaning        Phase = "cleaning"
	PhaseMoveToMeasure   Phase = "move_to_measure"
	PhaseTapContact      Phase = "tap_contact"
	PhaseAccuracyCheck   Phase = "accuracy_check"
	PhaseTriggerDistance Phase = "trigger_distance"
	PhaseSensorOffset    Phase = "sensor_offset"
	PhaseFinalize        Phase = "finalize"
)

// Homer homes axes and reports which are homed.
type Homer interface {
	Home(axes string) error
	HomedAxes() string
}

// Thermal drives the nozzle and bed heaters.
type Thermal interface {
	SetTargets(nozzle, bed float64) error
	WaitTargets(nozzle, bed float64) error
	Current() (nozzle, bed float64)
	Off()
}

// Leveler runs the gantry leveling routine.
type Leveler interface {
	Level() error
}

// Cleaner runs the nozzle cleaning routine.
type Cleaner interface {
	Clean() error
}

// Collaborators are the host subsystems the engine drives. Toolhead,
// Homer, the probe source and the measurement store are required;
// Thermal, Leveler and Cleaner may be nil when the matching phase is
// disabled, and the secondary sensor source may be empty when the
// sensor-offset measurement is disabled.
type Collaborators struct {
	Toolhead motion.Toolhead
	Homer    Homer
	Thermal  Thermal
	Leveler  Leveler
	Cleaner  Cleaner

	Probe  sensor.Source
	Sensor sensor.Source

	Store  *vars.Store
	Events *event.Bus
}

// Result summarizes one completed run.
type Result struct {
	Offset          float64     `json:"offset"`
	TriggerDistance float64     `json:"trigger_distance"`
	TriggerDelta    float64     `json:"trigger_delta"`
	GcodeDelta      float64     `json:"gcode_delta"`
	Accuracy        SampleStats `json:"accuracy"`
	Count           int64       `json:"count"`
	NozzleTemp      float64     `json:"nozzle_temp"`
	BedTemp         float64     `json:"bed_temp"`
	Duration        float64     `json:"duration_s"`
	When            time.Time   `json:"when"`
}

// Status is the externally visible engine state.
type Status struct {
	Running    bool    `json:"running"`
	Phase      Phase   `json:"phase"`
	LastResult *Result `json:"last_result,omitempty"`
	LastError  string  `json:"last_error,omitempty"`
}

// Calibrator is the measurement engine.
type Calibrator struct {
	cfg     Config
	col     Collaborators
	reactor *reactor.Reactor
	lg      *log.Logger
	prober  *probing.Prober

	running atomic.Bool
	abort   atomic.Bool

	mu         sync.Mutex
	phase      Phase
	lastResult *Result
	lastErr    error
}

// New creates a Calibrator. The collaborator set is validated once here;
// a missing required collaborator is a setup error.
func New(cfg Config, col Collaborators, r *reactor.Reactor, lg *log.Logger) (*Calibrator, error) {
	if col.Toolhead == nil || col.Homer == nil || col.Store == nil {
		return nil, fmt.Errorf("calibrate: toolhead, homer and store are required")
	}
	if col.Probe.Query == nil && col.Probe.Native == nil {
		return nil, fmt.Errorf("calibrate: probe '%s' has neither endstop nor query", cfg.ProbeName)
	}
	if col.Events == nil {
		col.Events = event.NewBus()
	}
	if col.Probe.Name == "" {
		col.Probe.Name = cfg.ProbeName
	}
	if col.Sensor.Name == "" {
		col.Sensor.Name = cfg.SensorName
	}
	if cfg.ProbeInvert {
		col.Probe.Inverted = true
	}
	if cfg.SensorInvert {
		col.Sensor.Inverted = true
	}
	return &Calibrator{
		cfg:     cfg,
		col:     col,
		reactor: r,
		lg:      lg,
		prober:  probing.New(col.Toolhead, lg),
		phase:   PhaseIdle,
	}, nil
}

// Events returns the engine's event bus.
func (c *Calibrator) Events() *event.Bus { return c.col.Events }

// Status returns a snapshot of the engine state.
func (c *Calibrator) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	st := Status{Running: c.running.Load(), Phase: c.phase, LastResult: c.lastResult}
	if c.lastErr != nil {
		st.LastError = c.lastErr.Error()
	}
	return st
}

// Start launches a run asynchronously. The returned completion holds the
// run's *Result on success or error on failure. ErrBusy is returned when
// a run is already active.
func (c *Calibrator) Start(opts RunOptions) (*reactor.Completion, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	comp := c.reactor.RegisterCallback(func() interface{} {
		res, err := c.run(opts)
		if err != nil {
			return err
		}
		return res
	})
	return comp, nil
}

// Run executes one measurement synchronously.
func (c *Calibrator) Run(opts RunOptions) (*Result, error) {
	if !c.running.CompareAndSwap(false, true) {
		return nil, ErrBusy
	}
	return c.run(opts)
}

// Abort requests that the active run stop at the next safe point. It has
// no effect when no run is active.
func (c *Calibrator) Abort() {
	if c.running.Load() {
		c.abort.Store(true)
		c.lg.Infof("abort requested")
	}
}

type runContext struct {
	cfg      Config
	startPos motion.Position

	// anyMeasurement gates the contact phases: with every measurement
	// disabled the run ends after preparation, never touching the
	// surface.
	anyMeasurement bool

	triggerPrev float64
	triggerCurr float64
	offsetZ     float64
	accuracy    SampleStats

	nozzleTemp float64
	bedTemp    float64
}

func (c *Calibrator) run(opts RunOptions) (res *Result, err error) {
	defer c.running.Store(false)
	c.abort.Store(false)

	if opts.DebugLevel != nil {
		prev := c.lg.GetLevel()
		c.lg.SetLevel(log.FromVerbosity(*opts.DebugLevel))
		defer c.lg.SetLevel(prev)
	}

	start := time.Now()
	rc := &runContext{
		cfg:         opts.apply(c.cfg),
		startPos:    c.col.Toolhead.Position(),
		triggerPrev: c.col.Store.GetFloat(varTriggerDistance),
	}
	rc.anyMeasurement = rc.cfg.EnableAccuracyCheck ||
		rc.cfg.EnableTriggerDistance || rc.cfg.EnableSensorOffset

	c.lg.Infof("measurement run starting (heat=%v level=%v clean=%v accuracy=%v trigger=%v offset=%v)",
		rc.cfg.EnableHeating, rc.cfg.EnableLeveling, rc.cfg.EnableCleaning,
		rc.cfg.EnableAccuracyCheck, rc.cfg.EnableTriggerDistance, rc.cfg.EnableSensorOffset)

	err = c.sequence(rc)

	c.mu.Lock()
	failed := string(c.phase)
	c.phase = PhaseIdle
	c.lastErr = err
	c.mu.Unlock()

	if err != nil {
		c.recover(rc)
		c.lg.Errorf("measurement run failed: %v", err)
		c.col.Events.Publish(event.RunFailed{
			Phase:   failed,
			Reason:  err.Error(),
			Aborted: errors.Is(err, ErrAborted),
			When:    time.Now(),
		})
		return nil, err
	}

	res = &Result{
		Offset:          -rc.offsetZ,
		TriggerDistance: rc.triggerCurr,
		TriggerDelta:    rc.triggerCurr - rc.triggerPrev,
		Accuracy:        rc.accuracy,
		Count:           c.col.Store.GetInt(varExecutionCount),
		NozzleTemp:      rc.nozzleTemp,
		BedTemp:         rc.bedTemp,
		Duration:        time.Since(start).Seconds(),
		When:            time.Now(),
	}
	prevApplied := c.col.Store.GetFloat(varAppliedOffset)
	res.GcodeDelta = -(res.Offset - prevApplied)
	c.col.Store.Set(varAppliedOffset, res.Offset)

	c.mu.Lock()
	c.lastResult = res
	c.mu.Unlock()

	c.lg.Infof("run %d complete: offset %.6f (gcode delta %.6f), trigger distance %.6f (delta %+.6f), %.1fs",
		res.Count, res.Offset, res.GcodeDelta, res.TriggerDistance, res.TriggerDelta, res.Duration)
	c.col.Events.Publish(event.RunCompleted{
		Count:           res.Count,
		Offset:          res.Offset,
		TriggerDistance: res.TriggerDistance,
		TriggerDelta:    res.TriggerDelta,
		AccuracyRange:   res.Accuracy.Range,
		NozzleTemp:      res.NozzleTemp,
		BedTemp:         res.BedTemp,
		Duration:        res.Duration,
		When:            res.When,
	})
	return res, nil
}

func (c *Calibrator) enterPhase(rc *runContext, p Phase) error {
	if c.abort.Load() {
		return ErrAborted
	}
	c.mu.Lock()
	c.phase = p
	c.mu.Unlock()
	c.lg.Debugf("phase: %s", p)
	c.col.Events.Publish(event.PhaseStarted{Phase: string(p), When: time.Now()})
	return nil
}

func (c *Calibrator) interrupt() bool { return c.abort.Load() }

// mapAbort folds a between-increment interruption into the abort error.
func mapAbort(err error) error {
	if errors.Is(err, probing.ErrInterrupted) {
		return ErrAborted
	}
	return err
}

func (c *Calibrator) sequence(rc *runContext) error {
	steps := []func(*runContext) error{
		c.safetyCheck,
		c.homing,
		c.heating,
		c.leveling,
		c.cleaning,
		c.moveToMeasure,
		c.tapContact,
		c.accuracyCheck,
		c.triggerDistance,
		c.sensorOffset,
		c.finalize,
	}
	for _, step := range steps {
		if err := step(rc); err != nil {
			return err
		}
	}
	return nil
}

// safetyCheck verifies both sensors read open before any motion. A
// failing hardware query counts as open; a triggered reading here means
// the head is resting on something and movement would be destructive.
// The secondary sensor is checked whenever it is configured, even when
// the sensor-offset measurement is disabled for this run.
func (c *Calibrator) safetyCheck(rc *runContext) error {
	if err := c.enterPhase(rc, PhaseSafetyCheck); err != nil {
		return err
	}
	probes := []sensor.Source{c.col.Probe}
	if c.sensorAvailable() {
		probes = append(probes, c.col.Sensor)
	}
	for _, src := range probes {
		es := c.resolve(src)
		if state := sensor.QueryState(es, c.lg); state == sensor.Triggered {
			return fmt.Errorf("%w: '%s'", ErrSafetyViolation, src.Name)
		}
	}
	return nil
}

func (c *Calibrator) homing(rc *runContext) error {
	if err := c.enterPhase(rc, PhaseHoming); err != nil {
		return err
	}
	homed := strings.ToLower(c.col.Homer.HomedAxes())
	needed := ""
	for _, a := range "xyz" {
		if !strings.ContainsRune(homed, a) {
			needed += string(a)
		}
	}
	if needed != "" {
		c.lg.Infof("homing axes '%s'", needed)
		if err := c.col.Homer.Home(needed); err != nil {
			return fmt.Errorf("calibrate: homing failed: %w", err)
		}
	}
	// Z first, then XY, same as every other travel in the run.
	return c.park(rc)
}

// heating preheats whichever targets are positive. A non-positive
// target leaves that heater cold without disabling the phase.
func (c *Calibrator) heating(rc *runContext) error {
	if !rc.cfg.EnableHeating || (rc.cfg.NozzleTemp <= 0 && rc.cfg.BedTemp <= 0) {
		if c.col.Thermal != nil {
			rc.nozzleTemp, rc.bedTemp = c.col.Thermal.Current()
		}
		return nil
	}
	if c.col.Thermal == nil {
		return fmt.Errorf("calibrate: heating enabled but no heater control available")
	}
	if err := c.enterPhase(rc, PhaseHeating); err != nil {
		return err
	}
	c.lg.Infof("preheating nozzle to %.0fC, bed to %.0fC", rc.cfg.NozzleTemp, rc.cfg.BedTemp)
	if err := c.col.Thermal.WaitTargets(rc.cfg.NozzleTemp, rc.cfg.BedTemp); err != nil {
		return fmt.Errorf("calibrate: preheat failed: %w", err)
	}
	rc.nozzleTemp, rc.bedTemp = c.col.Thermal.Current()
	return nil
}

func (c *Calibrator) leveling(rc *runContext) error {
	if !rc.cfg.EnableLeveling || c.col.Leveler == nil {
		return nil
	}
	if err := c.enterPhase(rc, PhaseLeveling); err != nil {
		return err
	}
	if err := c.col.Leveler.Level(); err != nil {
		return fmt.Errorf("calibrate: leveling failed: %w", err)
	}
	// Leveling can shift the Z reference; re-home before measuring.
	if err := c.col.Homer.Home("z"); err != nil {
		return fmt.Errorf("calibrate: z re-home failed: %w", err)
	}
	return nil
}

func (c *Calibrator) cleaning(rc *runContext) error {
	if !rc.cfg.EnableCleaning || c.col.Cleaner == nil {
		return nil
	}
	if err := c.enterPhase(rc, PhaseCleaning); err != nil {
		return err
	}
	if err := c.col.Cleaner.Clean(); err != nil {
		return fmt.Errorf("calibrate: nozzle cleaning failed: %w", err)
	}
	pos := c.col.Toolhead.Position()
	return c.moveTo(pos.WithZ(pos.Z()+rc.cfg.RetractDistance), rc.cfg.LiftSpeed)
}

func (c *Calibrator) moveToMeasure(rc *runContext) error {
	if !rc.anyMeasurement {
		c.lg.Infof("all measurements disabled, skipping contact phases")
		return nil
	}
	if err := c.enterPhase(rc, PhaseMoveToMeasure); err != nil {
		return err
	}
	pos := c.col.Toolhead.Position()
	if pos.Z() < rc.cfg.MeasureZ {
		if err := c.moveTo(pos.WithZ(rc.cfg.MeasureZ), rc.cfg.LiftSpeed); err != nil {
			return err
		}
	}
	if err := c.moveTo(motion.Position{rc.cfg.MeasureX, rc.cfg.MeasureY, c.col.Toolhead.Position().Z()}, rc.cfg.TravelSpeed); err != nil {
		return err
	}
	return c.moveTo(motion.Position{rc.cfg.MeasureX, rc.cfg.MeasureY, rc.cfg.MeasureZ}, rc.cfg.LiftSpeed)
}

// tapContact drives the nozzle down until the contact probe closes, then
// declares that height the logical zero. The head is left at contact.
func (c *Calibrator) tapContact(rc *runContext) error {
	if !rc.anyMeasurement {
		return nil
	}
	if err := c.enterPhase(rc, PhaseTapContact); err != nil {
		return err
	}
	if _, err := c.probeDown(rc); err != nil {
		return err
	}
	if err := c.col.Toolhead.SetZPosition(0); err != nil {
		return fmt.Errorf("calibrate: set z position: %w", err)
	}
	c.lg.Infof("tap contact established, zero reference set")
	return nil
}

// probeDown runs one downward contact probe from the current position.
func (c *Calibrator) probeDown(rc *runContext) (float64, error) {
	es := c.resolve(c.col.Probe)
	z, err := c.prober.ProbingMove(es, probing.Move{
		TargetZ:      c.col.Toolhead.Position().Z() - rc.cfg.ProbeSearchMax,
		Speed:        rc.cfg.ProbeSpeed,
		Desired:      sensor.Triggered,
		RequireStart: probing.RequireStarting(sensor.Open),
		Interrupt:    c.interrupt,
	})
	return z, mapAbort(err)
}

func (c *Calibrator) retract(rc *runContext) error {
	pos := c.col.Toolhead.Position()
	return c.moveTo(pos.WithZ(pos.Z()+rc.cfg.RetractDistance), rc.cfg.LiftSpeed)
}

// accuracyCheck probes the same spot repeatedly and rejects the run when
// the spread exceeds the configured tolerance.
func (c *Calibrator) accuracyCheck(rc *runContext) error {
	if !rc.cfg.EnableAccuracyCheck {
		return nil
	}
	if err := c.enterPhase(rc, PhaseAccuracyCheck); err != nil {
		return err
	}
	samples := make([]float64, 0, rc.cfg.ProbeSamples)
	for i := 0; i < rc.cfg.ProbeSamples; i++ {
		if c.abort.Load() {
			return ErrAborted
		}
		if err := c.retract(rc); err != nil {
			return err
		}
		z, err := c.probeDown(rc)
		if err != nil {
			return err
		}
		c.lg.Debugf("accuracy sample %d/%d: Z%.6f", i+1, rc.cfg.ProbeSamples, z)
		samples = append(samples, z)
	}
	rc.accuracy = computeStats(samples)
	c.lg.Infof("accuracy: mean %.6f median %.6f range %.6f stddev %.6f over %d samples",
		rc.accuracy.Mean, rc.accuracy.Median, rc.accuracy.Range, rc.accuracy.StdDev, len(samples))
	if !rc.accuracy.WithinTolerance(rc.cfg.ProbeTolerance) {
		return fmt.Errorf("%w: range %.6f exceeds %.6f",
			ErrAccuracyTolerance, rc.accuracy.Range, rc.cfg.ProbeTolerance)
	}
	// Sampling ends retracted; re-establish the contact reference for
	// the measurements that follow.
	if _, err := c.probeDown(rc); err != nil {
		return err
	}
	if err := c.col.Toolhead.SetZPosition(0); err != nil {
		return fmt.Errorf("calibrate: set z position: %w", err)
	}
	return nil
}

// triggerDistance lifts the head in fine steps from contact until the
// probe releases. The release height is the probe's trigger distance.
// When disabled, the previously stored value carries forward.
func (c *Calibrator) triggerDistance(rc *runContext) error {
	if !rc.cfg.EnableTriggerDistance {
		rc.triggerCurr = rc.triggerPrev
		return nil
	}
	if err := c.enterPhase(rc, PhaseTriggerDistance); err != nil {
		return err
	}
	es := c.resolve(c.col.Probe)
	z, err := c.prober.ProbingMove(es, probing.Move{
		TargetZ:      rc.cfg.TriggerDistanceMax,
		Speed:        rc.cfg.LiftSpeed,
		Desired:      sensor.Open,
		StepSize:     probing.FineStep,
		RequireStart: probing.RequireStarting(sensor.Triggered),
		Interrupt:    c.interrupt,
	})
	if err != nil {
		return mapAbort(err)
	}
	rc.triggerCurr = z
	c.col.Store.Set(varTriggerDistance, rc.triggerCurr)
	c.lg.Infof("trigger distance: %.6f (previous %.6f)", rc.triggerCurr, rc.triggerPrev)
	return nil
}

func (c *Calibrator) sensorAvailable() bool {
	return c.col.Sensor.Query != nil || c.col.Sensor.Native != nil
}

// sensorOffset measures the height at which the secondary sensor
// switches to triggered. The search descends from a known-open start
// height and is floored at the trigger distance plus safety margin so
// the nozzle can never be driven into the surface chasing a dead sensor.
func (c *Calibrator) sensorOffset(rc *runContext) error {
	if !rc.cfg.EnableSensorOffset {
		rc.offsetZ = c.col.Store.GetFloat(varSensorOffset)
		return nil
	}
	if !c.sensorAvailable() {
		return fmt.Errorf("calibrate: sensor-offset enabled but sensor '%s' is not available",
			c.col.Sensor.Name)
	}
	if err := c.enterPhase(rc, PhaseSensorOffset); err != nil {
		return err
	}
	es := c.resolve(c.col.Sensor)

	startZ := c.col.Store.GetFloat(varSensorStartZ)
	if startZ > 0 {
		// Fast path: reuse the cached known-open start height.
		if err := c.moveTo(c.col.Toolhead.Position().WithZ(startZ), rc.cfg.LiftSpeed); err != nil {
			return err
		}
	}
	if state := sensor.QueryState(es, c.lg); state == sensor.Triggered {
		z, err := c.prober.ProbingMove(es, probing.Move{
			TargetZ:   c.col.Toolhead.Position().Z() + rc.cfg.OffsetSearchMax,
			Speed:     rc.cfg.LiftSpeed,
			Desired:   sensor.Open,
			Interrupt: c.interrupt,
		})
		if err != nil {
			return mapAbort(err)
		}
		// One coarse step of headroom keeps the cached start clear of
		// the switching point.
		startZ = z + probing.CoarseStep
		if err := c.moveTo(c.col.Toolhead.Position().WithZ(startZ), rc.cfg.LiftSpeed); err != nil {
			return err
		}
	} else if startZ <= 0 {
		startZ = c.col.Toolhead.Position().Z()
	}
	c.col.Store.Set(varSensorStartZ, startZ)

	floor := probing.SearchFloor(rc.triggerCurr, rc.cfg.SafetyMarginPercent)
	z, err := c.prober.ProbingMove(es, probing.Move{
		TargetZ:      floor,
		Speed:        rc.cfg.ProbeSpeed,
		Desired:      sensor.Triggered,
		RequireStart: probing.RequireStarting(sensor.Open),
		Interrupt:    c.interrupt,
	})
	if err != nil {
		return mapAbort(err)
	}
	rc.offsetZ = z
	c.col.Store.Set(varSensorOffset, rc.offsetZ)
	c.lg.Infof("sensor offset: triggered at Z%.6f (search floor %.6f)", rc.offsetZ, floor)

	return c.moveTo(c.col.Toolhead.Position().WithZ(startZ), rc.cfg.LiftSpeed)
}

// finalize bumps the run counter, parks the head and shuts heaters off.
func (c *Calibrator) finalize(rc *runContext) error {
	if err := c.enterPhase(rc, PhaseFinalize); err != nil {
		return err
	}
	count := c.col.Store.GetInt(varExecutionCount) + 1
	c.col.Store.Set(varExecutionCount, count)

	if err := c.park(rc); err != nil {
		return err
	}
	if rc.cfg.EnableHeating && c.col.Thermal != nil {
		c.col.Thermal.Off()
	}
	return nil
}

func (c *Calibrator) park(rc *runContext) error {
	pos := c.col.Toolhead.Position()
	if pos.Z() < rc.cfg.ParkZ {
		if err := c.moveTo(pos.WithZ(rc.cfg.ParkZ), rc.cfg.LiftSpeed); err != nil {
			return err
		}
	}
	return c.moveTo(motion.Position{rc.cfg.ParkX, rc.cfg.ParkY, c.col.Toolhead.Position().Z()}, rc.cfg.TravelSpeed)
}

// recover lifts the head clear and returns it to where the run began.
// Errors here are logged only; the original failure is what gets
// reported. Variables committed by completed phases are deliberately
// kept.
func (c *Calibrator) recover(rc *runContext) {
	pos := c.col.Toolhead.Position()
	if pos.Z() < rc.cfg.ParkZ {
		if err := c.moveTo(pos.WithZ(rc.cfg.ParkZ), rc.cfg.LiftSpeed); err != nil {
			c.lg.Warnf("recovery lift failed: %v", err)
			return
		}
	}
	cur := c.col.Toolhead.Position()
	if cur.X() != rc.startPos.X() || cur.Y() != rc.startPos.Y() {
		restore := motion.Position{rc.startPos.X(), rc.startPos.Y(), cur.Z()}
		if err := c.moveTo(restore, rc.cfg.TravelSpeed); err != nil {
			c.lg.Warnf("recovery move failed: %v", err)
		}
	}
	if rc.cfg.EnableHeating && c.col.Thermal != nil {
		c.col.Thermal.Off()
	}
}

func (c *Calibrator) moveTo(pos motion.Position, speed float64) error {
	if err := c.col.Toolhead.Move(pos, speed); err != nil {
		return fmt.Errorf("calibrate: move to %s failed: %w", pos, err)
	}
	if err := c.col.Toolhead.WaitMoves(); err != nil {
		return fmt.Errorf("calibrate: wait moves: %w", err)
	}
	return nil
}

// resolve picks the sensor variant for one move. Resolution is
// per-move: hardware availability can change between moves.
func (c *Calibrator) resolve(src sensor.Source) sensor.Endstop {
	return sensor.Resolve(src, func() float64 {
		return c.col.Toolhead.Position().Z()
	}, c.reactor, c.lg)
}
