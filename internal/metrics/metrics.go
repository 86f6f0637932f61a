// Package metrics holds the Prometheus collectors for the training workflows.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/ikatan-anggota/backend/internal/apperr"
)

// Workflow names used as label values.
const (
	WorkflowRegister    = "register"
	WorkflowComplete    = "complete"
	WorkflowUncompleted = "uncompleted"
	WorkflowExport      = "export"
)

// Metrics groups the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	workflows    *prometheus.CounterVec
	codeAttempts prometheus.Histogram
	exportJobs   *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		workflows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "anggota",
			Subsystem: "pelatihan",
			Name:      "workflow_total",
			Help:      "Training workflow invocations by outcome.",
		}, []string{"workflow", "result"}),
		codeAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "anggota",
			Subsystem: "pelatihan",
			Name:      "code_attempts",
			Help:      "Candidate codes tried per issued registration code.",
			Buckets:   []float64{1, 2, 3, 5, 10},
		}),
		exportJobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "anggota",
			Subsystem: "pelatihan",
			Name:      "export_jobs_total",
			Help:      "Asynchronous roster export jobs by final status.",
		}, []string{"status"}),
	}
	reg.MustRegister(m.workflows, m.codeAttempts, m.exportJobs)
	return m
}

// Observe counts one workflow invocation. The result label is "ok" or the error kind.
func (m *Metrics) Observe(workflow string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = string(apperr.KindOf(err))
	}
	m.workflows.WithLabelValues(workflow, result).Inc()
}

// CodeAttempts records how many candidates one code needed.
func (m *Metrics) CodeAttempts(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.codeAttempts.Observe(float64(n))
}

// ExportJob counts a finished export job.
func (m *Metrics) ExportJob(status string) {
	if m == nil {
		return
	}
	m.exportJobs.WithLabelValues(status).Inc()
}
