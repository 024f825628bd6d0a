package metrics

import (
	"context"

	"github.com/RezaEskandarii/taskfire/internal/notify"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	OutcomeSucceeded = "succeeded"
	OutcomeRetried   = "retried"
	OutcomeRequeued  = "requeued"
	OutcomePermanent = "permanent"
)

// Collector turns task events and worker pool sizes into Prometheus series.
type Collector struct {
	// TaskOutcomesTotal counts finished executions by queue and outcome.
	TaskOutcomesTotal *prometheus.CounterVec

	// DependentsRemovedTotal counts direct dependents dropped with a permanently failed task.
	DependentsRemovedTotal *prometheus.CounterVec

	// LiveWorkers is the current worker pool size per queue.
	LiveWorkers *prometheus.GaugeVec
}

// NewCollector registers the collector's series on reg. Pass prometheus.DefaultRegisterer to
// expose them on the default /metrics handler.
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		TaskOutcomesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskfire_task_outcomes_total",
				Help: "Total number of task executions by outcome.",
			},
			[]string{"queue", "outcome"},
		),
		DependentsRemovedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "taskfire_dependents_removed_total",
				Help: "Total number of dependents removed with a permanently failed task.",
			},
			[]string{"queue"},
		),
		LiveWorkers: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "taskfire_live_workers",
				Help: "Number of live worker goroutines per queue.",
			},
			[]string{"queue"},
		),
	}
}

func (c *Collector) Notify(ctx context.Context, event notify.Event) error {
	c.TaskOutcomesTotal.WithLabelValues(event.Queue, Outcome(event)).Inc()
	if n := len(event.RemovedDependents); n > 0 {
		c.DependentsRemovedTotal.WithLabelValues(event.Queue).Add(float64(n))
	}
	return nil
}

// ObserveWorkers records the live worker count of a queue.
func (c *Collector) ObserveWorkers(queue string, live int) {
	c.LiveWorkers.WithLabelValues(queue).Set(float64(live))
}

func Outcome(event notify.Event) string {
	switch {
	case event.Kind == notify.KindSucceeded:
		return OutcomeSucceeded
	case event.Permanent:
		return OutcomePermanent
	case event.Requeued:
		return OutcomeRequeued
	default:
		return OutcomeRetried
	}
}
