package browser

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/nextlevelbuilder/qabrowser/pkg/events"
)

var (
	metricSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qabrowser",
		Subsystem: "browser",
		Name:      "steps_total",
		Help:      "Browser steps by action type and outcome (ok, action_error, timeout, unavailable, failed).",
	}, []string{"action", "outcome"})

	metricStepDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "qabrowser",
		Subsystem: "browser",
		Name:      "step_duration_seconds",
		Help:      "Wall time of browser steps.",
		Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"action"})

	metricScreenshots = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "qabrowser",
		Subsystem: "browser",
		Name:      "screenshots_saved_total",
		Help:      "Screenshot persistence attempts by result.",
	}, []string{"result"})
)

func recordStep(action events.ActionType, d time.Duration, err error, res *EngineResult) {
	metricStepDuration.WithLabelValues(string(action)).Observe(d.Seconds())
	metricSteps.WithLabelValues(string(action), stepOutcomeLabel(err, res)).Inc()
}

func stepOutcomeLabel(err error, res *EngineResult) string {
	switch {
	case err == nil && res != nil && res.Error != "":
		return "action_error"
	case err == nil:
		return "ok"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	default:
		return "failed"
	}
}

func recordScreenshotSave(ok bool) {
	if ok {
		metricScreenshots.WithLabelValues("ok").Inc()
		return
	}
	metricScreenshots.WithLabelValues("error").Inc()
}
