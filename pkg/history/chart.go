// Copyright (C) 2025
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package history

import (
	"fmt"
	"io"
	"time"

	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/components"
	"github.com/go-echarts/go-echarts/v2/opts"
)

// RenderChart writes an HTML page visualizing the given run records:
// offset and trigger distance trends plus run durations.
func RenderChart(w io.Writer, records []Record) error {
	if len(records) == 0 {
		_, err := io.WriteString(w, "<html><body>no runs recorded yet</body></html>")
		return err
	}

	labels := make([]string, len(records))
	offsets := make([]opts.LineData, len(records))
	triggers := make([]opts.LineData, len(records))
	nozzles := make([]opts.LineData, len(records))
	beds := make([]opts.LineData, len(records))
	durations := make([]opts.BarData, len(records))
	for i, r := range records {
		labels[i] = fmt.Sprintf("#%d %s", r.Count, r.When.Local().Format("01-02 15:04"))
		offsets[i] = opts.LineData{Value: r.Offset}
		triggers[i] = opts.LineData{Value: r.TriggerDistance}
		nozzles[i] = opts.LineData{Value: r.NozzleTemp}
		beds[i] = opts.LineData{Value: r.BedTemp}
		durations[i] = opts.BarData{Value: r.Duration}
	}

	offsetLine := charts.NewLine()
	offsetLine.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Sensor offset",
			Subtitle: "mm, per completed run",
		}),
	)
	offsetLine.SetXAxis(labels).AddSeries("offset", offsets)

	triggerLine := charts.NewLine()
	triggerLine.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Trigger distance",
			Subtitle: "mm, per completed run",
		}),
	)
	triggerLine.SetXAxis(labels).AddSeries("trigger distance", triggers)

	tempLine := charts.NewLine()
	tempLine.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Measurement temperatures",
			Subtitle: "degrees C",
		}),
	)
	tempLine.SetXAxis(labels).
		AddSeries("nozzle", nozzles).
		AddSeries("bed", beds)

	durationBar := charts.NewBar()
	durationBar.SetGlobalOptions(
		charts.WithTitleOpts(opts.Title{
			Title:    "Run duration",
			Subtitle: "seconds",
		}),
	)
	durationBar.SetXAxis(labels).AddSeries("duration", durations)

	page := components.NewPage()
	page.PageTitle = "Measurement history " + time.Now().Format("2006-01-02")
	page.AddCharts(offsetLine, triggerLine, tempLine, durationBar)
	return page.Render(w)
}
