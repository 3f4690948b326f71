package metrics

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Config carries the constant labels applied to every metric.
type Config struct {
	ServiceName string
	Environment string
}

// SchedulerMetrics captures scheduler and pipeline health signals.
type SchedulerMetrics struct {
	jobRuns          *prometheus.CounterVec
	jobErrors        *prometheus.CounterVec
	jobDuration      *prometheus.HistogramVec
	ordersSynced     prometheus.Counter
	orderFailures    prometheus.Counter
	ordersReconciled prometheus.Counter
}

var (
	schedulerMetricsOnce sync.Once
	schedulerMetrics     *SchedulerMetrics
)

// Scheduler returns the singleton scheduler metrics registry.
func Scheduler() *SchedulerMetrics {
	return SchedulerWithConfig(Config{})
}

// SchedulerWithConfig returns the singleton scheduler metrics registry using config labels.
func SchedulerWithConfig(cfg Config) *SchedulerMetrics {
	schedulerMetricsOnce.Do(func() {
		schedulerMetrics = newSchedulerMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return schedulerMetrics
}

// ResetSchedulerMetricsForTest resets the scheduler metrics singleton for tests.
func ResetSchedulerMetricsForTest() {
	schedulerMetricsOnce = sync.Once{}
	schedulerMetrics = nil
}

func newSchedulerMetrics(registerer prometheus.Registerer, cfg Config) *SchedulerMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "kaspisync"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &SchedulerMetrics{
		jobRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "kaspisync_scheduler_job_runs_total",
			Help:        "Number of scheduler job executions.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "kaspisync_scheduler_job_errors_total",
			Help:        "Number of scheduler job executions that returned an error.",
			ConstLabels: constLabels,
		}, []string{"job"}),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "kaspisync_scheduler_job_duration_seconds",
			Help:        "Scheduler job duration.",
			ConstLabels: constLabels,
			Buckets:     prometheus.DefBuckets,
		}, []string{"job"}),
		ordersSynced: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "kaspisync_orders_synced_total",
			Help:        "Orders committed to amoCRM by the sync pipeline.",
			ConstLabels: constLabels,
		}),
		orderFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "kaspisync_order_sync_failures_total",
			Help:        "Per-order failures in the sync pipeline and the reconciler.",
			ConstLabels: constLabels,
		}),
		ordersReconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "kaspisync_orders_reconciled_total",
			Help:        "Orders touched by the reconciliation sweep.",
			ConstLabels: constLabels,
		}),
	}

	registerer.MustRegister(
		m.jobRuns,
		m.jobErrors,
		m.jobDuration,
		m.ordersSynced,
		m.orderFailures,
		m.ordersReconciled,
	)
	return m
}

func (m *SchedulerMetrics) IncJobRun(job string) {
	if m == nil {
		return
	}
	m.jobRuns.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) IncJobError(job string) {
	if m == nil {
		return
	}
	m.jobErrors.WithLabelValues(job).Inc()
}

func (m *SchedulerMetrics) ObserveJobDuration(job string, d time.Duration) {
	if m == nil {
		return
	}
	m.jobDuration.WithLabelValues(job).Observe(d.Seconds())
}

func (m *SchedulerMetrics) IncOrdersSynced(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.ordersSynced.Add(float64(count))
}

func (m *SchedulerMetrics) IncOrderFailures(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.orderFailures.Add(float64(count))
}

func (m *SchedulerMetrics) IncOrdersReconciled(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.ordersReconciled.Add(float64(count))
}
