package worker

import (
	"github.com/prometheus/client_golang/prometheus"

	"sttworker/internal/manager"
)

var (
	tasksTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sttworker",
			Subsystem: "worker",
			Name:      "tasks_total",
			Help:      "Task attempts by outcome",
		},
		[]string{"outcome"},
	)

	taskDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "sttworker",
			Subsystem: "worker",
			Name:      "task_duration_seconds",
			Help:      "Wall time of a task attempt, from acquisition to final report",
			Buckets:   []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		},
		[]string{"outcome"},
	)

	pollErrorsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "sttworker",
			Subsystem: "worker",
			Name:      "poll_errors_total",
			Help:      "Failed next-task calls",
		},
	)

	reportErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sttworker",
			Subsystem: "worker",
			Name:      "report_errors_total",
			Help:      "Failed calls reporting results or progress",
		},
		[]string{"kind"},
	)

	modelLoadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "sttworker",
			Subsystem: "models",
			Name:      "loads_total",
			Help:      "Model cache loads by result",
		},
		[]string{"model", "result"},
	)

	waitIntervalSeconds = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sttworker",
			Subsystem: "worker",
			Name:      "wait_interval_seconds",
			Help:      "Current base idle wait interval",
		},
	)

	enabledGauge = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "sttworker",
			Subsystem: "worker",
			Name:      "enabled",
			Help:      "1 when the worker is enabled to take tasks",
		},
	)
)

func init() {
	prometheus.MustRegister(tasksTotal, taskDuration, pollErrorsTotal, reportErrorsTotal,
		modelLoadsTotal, waitIntervalSeconds, enabledGauge)
}

// MetricsPublisher counts model cache events. Install it on the cache next
// to any other publisher.
type MetricsPublisher struct{}

func (MetricsPublisher) Publish(e manager.Event) {
	switch e.Name {
	case "load_done":
		modelLoadsTotal.WithLabelValues(e.ModelID, "ok").Inc()
	case "load_error":
		modelLoadsTotal.WithLabelValues(e.ModelID, "error").Inc()
	}
}

func boolGauge(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
