package engine

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/gkobilansky/cashloop/internal/logger"
)

type StepStatus string

const (
	StepSucceeded StepStatus = "succeeded"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Step is the outcome of one job inside a cycle.
type Step struct {
	Name   string     `json:"name"`
	Status StepStatus `json:"status"`
	Detail string     `json:"detail,omitempty"`
	Error  string     `json:"error,omitempty"`
}

// Report describes one cycle. It is produced even when every step failed.
type Report struct {
	RunID    string    `json:"run_id"`
	Started  time.Time `json:"started"`
	Finished time.Time `json:"finished"`
	Steps    []Step    `json:"steps"`
}

func (r *Report) add(name string, status StepStatus, detail string, err error) {
	s := Step{Name: name, Status: status, Detail: detail}
	if err != nil {
		s.Error = err.Error()
	}
	r.Steps = append(r.Steps, s)
}

func (r *Report) succeeded(name, detail string)         { r.add(name, StepSucceeded, detail, nil) }
func (r *Report) skipped(name, detail string)           { r.add(name, StepSkipped, detail, nil) }
func (r *Report) failed(name, detail string, err error) { r.add(name, StepFailed, detail, err) }

// Totals counts steps by status.
func (r *Report) Totals() (succeeded, failed, skipped int) {
	for _, s := range r.Steps {
		switch s.Status {
		case StepSucceeded:
			succeeded++
		case StepFailed:
			failed++
		case StepSkipped:
			skipped++
		}
	}
	return succeeded, failed, skipped
}

// Step returns the named step, or false.
func (r *Report) Step(name string) (Step, bool) {
	for _, s := range r.Steps {
		if s.Name == name {
			return s, true
		}
	}
	return Step{}, false
}

var (
	cycleTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cashloop_cycle_total",
		Help: "Optimization cycles by outcome",
	}, []string{"result"})

	cycleSteps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cashloop_cycle_step_total",
		Help: "Cycle steps by step name and status",
	}, []string{"step", "status"})

	cycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "cashloop_cycle_duration_seconds",
		Help:    "Cycle duration in seconds",
		Buckets: prometheus.ExponentialBuckets(0.01, 4, 8), // 10ms to ~3m
	})

	winnersApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cashloop_ab_winners_applied_total",
		Help: "A/B tests completed with a winner",
	})

	templatesOptimized = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cashloop_templates_optimized_total",
		Help: "Templates revised by the optimizer",
	})
)

func (r *Report) observe(log *logger.Logger) {
	ok, failed, skipped := r.Totals()
	result := "ok"
	if failed > 0 {
		result = "partial"
		if ok == 0 {
			result = "failed"
		}
	}
	cycleTotal.WithLabelValues(result).Inc()
	cycleDuration.Observe(r.Finished.Sub(r.Started).Seconds())
	for _, s := range r.Steps {
		cycleSteps.WithLabelValues(s.Name, string(s.Status)).Inc()
		if s.Status == StepFailed {
			log.Warn("Cycle step failed", "run_id", r.RunID, "step", s.Name, "error", s.Error)
		}
	}
	log.Info("Cycle finished",
		"run_id", r.RunID,
		"succeeded", ok,
		"failed", failed,
		"skipped", skipped,
		"duration", r.Finished.Sub(r.Started).String(),
	)
}
