// Prometheus instrumentation for the measurement engine
//
// Metrics are fed from the engine's event bus so the engine itself stays
// free of instrumentation concerns.
//
// Copyright (C) 2025
//
// This file may be distributed under the terms of the GNU GPLv3 license.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"auto-offset-go/pkg/event"
)

// Collector holds the engine metrics and updates them from bus events.
type Collector struct {
	runsTotal       *prometheus.CounterVec
	lastOffset      prometheus.Gauge
	lastTriggerDist prometheus.Gauge
	lastTriggerDelt prometheus.Gauge
	lastAccuracy    prometheus.Gauge
	runDuration     prometheus.Histogram
	executionCount  prometheus.Gauge
}

// New creates a Collector and registers its metrics with reg.
func New(reg prometheus.Registerer) *Collector {
	c := &Collector{
		runsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "auto_offset",
			Name:      "runs_total",
			Help:      "Measurement runs by result.",
		}, []string{"result"}),
		lastOffset: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "auto_offset",
			Name:      "last_offset_mm",
			Help:      "Sensor offset from the most recent successful run.",
		}),
		lastTriggerDist: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "auto_offset",
			Name:      "last_trigger_distance_mm",
			Help:      "Probe trigger distance from the most recent successful run.",
		}),
		lastTriggerDelt: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "auto_offset",
			Name:      "last_trigger_delta_mm",
			Help:      "Trigger distance change versus the previous run.",
		}),
		lastAccuracy: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "auto_offset",
			Name:      "last_accuracy_range_mm",
			Help:      "Probe repeatability spread from the most recent successful run.",
		}),
		runDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "auto_offset",
			Name:      "run_duration_seconds",
			Help:      "Wall time of successful measurement runs.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		executionCount: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "auto_offset",
			Name:      "execution_count",
			Help:      "Lifetime count of completed measurement runs.",
		}),
	}
	reg.MustRegister(c.runsTotal, c.lastOffset, c.lastTriggerDist,
		c.lastTriggerDelt, c.lastAccuracy, c.runDuration, c.executionCount)
	return c
}

// Observe subscribes the collector to the given bus and returns the
// subscription id.
func (c *Collector) Observe(bus *event.Bus) uint64 {
	return bus.Subscribe(c.handle)
}

func (c *Collector) handle(ev event.Event) {
	switch e := ev.(type) {
	case event.RunCompleted:
		c.runsTotal.WithLabelValues("success").Inc()
		c.lastOffset.Set(e.Offset)
		c.lastTriggerDist.Set(e.TriggerDistance)
		c.lastTriggerDelt.Set(e.TriggerDelta)
		c.lastAccuracy.Set(e.AccuracyRange)
		c.runDuration.Observe(e.Duration)
		c.executionCount.Set(float64(e.Count))
	case event.RunFailed:
		result := "failure"
		if e.Aborted {
			result = "aborted"
		}
		c.runsTotal.WithLabelValues(result).Inc()
	}
}
