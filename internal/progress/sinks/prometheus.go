package sinks

import (
	"context"
	"fmt"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/JakeFAU/web-archive-agent/internal/metrics"
	"github.com/JakeFAU/web-archive-agent/internal/progress"
)

// Result labels used by the task counters.
const (
	resultDone       = "done"
	resultFailed     = "failed"
	resultReconciled = "reconciled"
)

// PrometheusSink exports task lifecycle metrics.
type PrometheusSink struct {
	tasksCreated   prometheus.Counter
	tasksCompleted *prometheus.CounterVec
	tasksRunning   prometheus.Gauge
	taskRuntime    *prometheus.HistogramVec
	scrapeDuration prometheus.Histogram
	capturedBytes  *prometheus.CounterVec

	running *runningSet
}

// NewPrometheusSink registers the collectors against reg (the default
// registerer when nil).
func NewPrometheusSink(reg prometheus.Registerer) (*PrometheusSink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PrometheusSink{
		tasksCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "archive_tasks_created_total",
			Help: "Capture tasks created.",
		}),
		tasksCompleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archive_tasks_completed_total",
			Help: "Capture tasks that reached a terminal state, by result.",
		}, []string{"result"}),
		tasksRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "archive_tasks_running",
			Help: "Capture tasks currently scraping or uploading.",
		}),
		taskRuntime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "archive_task_runtime_seconds",
			Help:    "Wall time per finished task.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		}, []string{"result"}),
		scrapeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "archive_scrape_duration_seconds",
			Help:    "Time spent capturing a tab's HTML.",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60},
		}),
		capturedBytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "archive_captured_bytes_total",
			Help: "Bytes of serialized HTML captured, by site.",
		}, []string{"site"}),
		running: &runningSet{ids: make(map[string]struct{})},
	}
	for _, collector := range []prometheus.Collector{
		s.tasksCreated,
		s.tasksCompleted,
		s.tasksRunning,
		s.taskRuntime,
		s.scrapeDuration,
		s.capturedBytes,
	} {
		if err := reg.Register(collector); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return s, nil
}

// Consume updates collectors from the batch.
func (s *PrometheusSink) Consume(_ context.Context, batch []progress.Event) error {
	for _, evt := range batch {
		s.consumeEvent(evt)
	}
	return nil
}

func (s *PrometheusSink) consumeEvent(evt progress.Event) {
	switch evt.Stage {
	case progress.StageTaskCreated:
		s.tasksCreated.Inc()
		if s.running.add(evt.TaskID) {
			s.tasksRunning.Inc()
		}
	case progress.StageUploadStart:
		if evt.Dur > 0 {
			s.scrapeDuration.Observe(evt.Dur.Seconds())
		}
		if evt.Bytes > 0 {
			s.capturedBytes.WithLabelValues(metrics.SanitizeSite(evt.URL)).Add(float64(evt.Bytes))
		}
	case progress.StageTaskDone:
		s.complete(evt, resultDone)
	case progress.StageTaskFailed:
		s.complete(evt, resultFailed)
	case progress.StageTaskReconciled:
		s.tasksCompleted.WithLabelValues(resultReconciled).Inc()
	}
}

func (s *PrometheusSink) complete(evt progress.Event, result string) {
	s.tasksCompleted.WithLabelValues(result).Inc()
	if evt.Dur > 0 {
		s.taskRuntime.WithLabelValues(result).Observe(evt.Dur.Seconds())
	}
	if s.running.remove(evt.TaskID) {
		s.tasksRunning.Dec()
	}
}

// Close implements the Sink interface; it performs no action.
func (s *PrometheusSink) Close(context.Context) error {
	return nil
}

type runningSet struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func (r *runningSet) add(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; ok {
		return false
	}
	r.ids[id] = struct{}{}
	return true
}

func (r *runningSet) remove(id string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.ids[id]; !ok {
		return false
	}
	delete(r.ids, id)
	return true
}
