package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"auto-offset-go/pkg/calibrate"
)

func newRunCmd(root *rootOptions) *cobra.Command {
	var (
		heat            bool
		level           bool
		clean           bool
		accuracy        bool
		triggerDistance bool
		sensorOffset    bool
		nozzleTemp      float64
		bedTemp         float64
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Execute one measurement run and print the results",
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := setup(root)
			if err != nil {
				return err
			}
			defer h.close()

			// Only flags the operator actually set override the config.
			var opts calibrate.RunOptions
			flagBool := func(name string, v bool) *bool {
				if cmd.Flags().Changed(name) {
					return calibrate.Bool(v)
				}
				return nil
			}
			opts.EnableHeating = flagBool("heat", heat)
			opts.EnableLeveling = flagBool("level", level)
			opts.EnableCleaning = flagBool("clean", clean)
			opts.EnableAccuracyCheck = flagBool("accuracy-check", accuracy)
			opts.EnableTriggerDistance = flagBool("trigger-distance", triggerDistance)
			opts.EnableSensorOffset = flagBool("sensor-offset", sensorOffset)
			if cmd.Flags().Changed("nozzle-temp") {
				opts.NozzleTemp = calibrate.Float(nozzleTemp)
			}
			if cmd.Flags().Changed("bed-temp") {
				opts.BedTemp = calibrate.Float(bedTemp)
			}

			res, err := h.engine.Run(opts)
			if err != nil {
				return err
			}

			fmt.Printf("Run %d completed in %.1fs\n", res.Count, res.Duration)
			fmt.Printf("  sensor offset:    %.6f mm (gcode delta %+.6f)\n", res.Offset, res.GcodeDelta)
			fmt.Printf("  trigger distance: %.6f mm (delta %+.6f)\n", res.TriggerDistance, res.TriggerDelta)
			if len(res.Accuracy.Samples) > 0 {
				fmt.Printf("  accuracy:         range %.6f, stddev %.6f over %d samples\n",
					res.Accuracy.Range, res.Accuracy.StdDev, len(res.Accuracy.Samples))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&heat, "heat", true, "preheat nozzle and bed before measuring")
	cmd.Flags().BoolVar(&level, "level", true, "run gantry leveling before measuring")
	cmd.Flags().BoolVar(&clean, "clean", true, "clean the nozzle before measuring")
	cmd.Flags().BoolVar(&accuracy, "accuracy-check", true, "verify probe repeatability")
	cmd.Flags().BoolVar(&triggerDistance, "trigger-distance", true, "measure the probe trigger distance")
	cmd.Flags().BoolVar(&sensorOffset, "sensor-offset", true, "measure the secondary sensor offset")
	cmd.Flags().Float64Var(&nozzleTemp, "nozzle-temp", 0, "override the preheat nozzle temperature")
	cmd.Flags().Float64Var(&bedTemp, "bed-temp", 0, "override the preheat bed temperature")
	return cmd
}
