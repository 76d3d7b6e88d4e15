package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"auto-offset-go/pkg/calibrate"
	"auto-offset-go/pkg/config"
	"auto-offset-go/pkg/event"
	"auto-offset-go/pkg/log"
	"auto-offset-go/pkg/motion"
	"auto-offset-go/pkg/reactor"
	"auto-offset-go/pkg/sensor"
	"auto-offset-go/pkg/vars"
)

// defaultConfig serves when no config file is given: a bench setup with
// both sensors available and every phase enabled.
const defaultConfig = `
[auto_offset]
probe: tap_probe
sensor: bed_sensor
`

type rootOptions struct {
	configFile string
	varsFile   string
	verbosity  int
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "auto-offset",
		Short:         "Z offset auto-calibration engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configFile, "config", "c", "", "configuration file with an [auto_offset] section")
	cmd.PersistentFlags().StringVar(&opts.varsFile, "vars", "auto_offset_vars.cfg", "measurement variable store file")
	cmd.PersistentFlags().CountVarP(&opts.verbosity, "verbose", "v", "increase log verbosity (-v info, -vv debug)")

	cmd.AddCommand(newRunCmd(opts))
	cmd.AddCommand(newServeCmd(opts))
	return cmd
}

// host bundles everything a command needs to drive the engine.
type host struct {
	lg      *log.Logger
	reactor *reactor.Reactor
	bench   *motion.SimBench
	engine  *calibrate.Calibrator
	cfg     calibrate.Config
	store   *vars.Store
}

// setup builds a bench-backed engine from the root options.
func setup(opts *rootOptions) (*host, error) {
	lg := log.New("auto-offset")
	lg.SetLevel(log.FromVerbosity(opts.verbosity))

	var cfgFile *config.Config
	var err error
	if opts.configFile != "" {
		cfgFile, err = config.Load(opts.configFile)
	} else {
		cfgFile, err = config.LoadString(defaultConfig)
	}
	if err != nil {
		return nil, err
	}
	sec, err := cfgFile.Section("auto_offset")
	if err != nil {
		return nil, err
	}
	cfg, err := calibrate.FromSection(sec)
	if err != nil {
		return nil, err
	}

	store, err := vars.Open(opts.varsFile, lg.Child("vars"))
	if err != nil {
		return nil, err
	}

	r := reactor.New()
	bench := motion.NewSimBench()
	engine, err := calibrate.New(cfg, calibrate.Collaborators{
		Toolhead: bench,
		Homer:    bench,
		Thermal:  bench,
		Leveler:  bench,
		Cleaner:  bench,
		Probe:    sensor.Source{Name: cfg.ProbeName, Query: bench.ProbeQuery},
		Sensor:   sensor.Source{Name: cfg.SensorName, Query: bench.SensorQuery},
		Store:    store,
		Events:   event.NewBus(),
	}, r, lg.Child("engine"))
	if err != nil {
		r.End()
		return nil, err
	}

	if cfg.MilestoneInterval > 0 {
		interval := cfg.MilestoneInterval
		engine.Events().Subscribe(func(ev event.Event) {
			e, ok := ev.(event.RunCompleted)
			if !ok || e.Count == 0 || e.Count%interval != 0 {
				return
			}
			lg.Infof("milestone: %d measurement runs completed", e.Count)
			fmt.Fprintf(os.Stdout, "Milestone reached: %d runs completed. Consider inspecting the probe for wear.\n", e.Count)
		})
	}

	return &host{
		lg:      lg,
		reactor: r,
		bench:   bench,
		engine:  engine,
		cfg:     cfg,
		store:   store,
	}, nil
}

func (h *host) close() {
	h.reactor.End()
}
