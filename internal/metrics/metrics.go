// Package metrics собирает метрики Prometheus для задач анализа и входа пользователей
// и отдаёт их по /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Причины неуспешного завершения задачи.
const (
	ReasonAnalyzer = "analyzer"
	ReasonInvalid  = "invalid_result"
	ReasonDispatch = "dispatch"
)

// Collector регистрирует и обновляет метрики сервиса.
type Collector struct {
	jobsSubmitted   prometheus.Counter
	jobsCompleted   prometheus.Counter
	jobsFailed      *prometheus.CounterVec
	analyzerLatency prometheus.Histogram
	logins          *prometheus.CounterVec
}

// NewCollector создаёт Collector и регистрирует метрики в reg.
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		jobsSubmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zdravscan_jobs_submitted_total",
			Help: "Число принятых задач анализа",
		}),
		jobsCompleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "zdravscan_jobs_completed_total",
			Help: "Число успешно завершённых задач анализа",
		}),
		jobsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zdravscan_jobs_failed_total",
			Help: "Число задач анализа, завершённых с ошибкой",
		}, []string{"reason"}),
		analyzerLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "zdravscan_analyzer_latency_seconds",
			Help:    "Время работы анализатора (секунды)",
			Buckets: prometheus.DefBuckets,
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "zdravscan_logins_total",
			Help: "Попытки входа по initData",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.jobsSubmitted,
		c.jobsCompleted,
		c.jobsFailed,
		c.analyzerLatency,
		c.logins,
	)
	return c
}

func (c *Collector) RecordJobSubmitted() { c.jobsSubmitted.Inc() }

func (c *Collector) RecordJobCompleted() { c.jobsCompleted.Inc() }

func (c *Collector) RecordJobFailed(reason string) {
	c.jobsFailed.WithLabelValues(reason).Inc()
}

func (c *Collector) RecordAnalyzerLatency(d time.Duration) {
	c.analyzerLatency.Observe(d.Seconds())
}

// RecordLogin учитывает попытку входа: ok=false для отклонённой подписи.
func (c *Collector) RecordLogin(ok bool) {
	result := "success"
	if !ok {
		result = "rejected"
	}
	c.logins.WithLabelValues(result).Inc()
}

// Handler возвращает обработчик для сбора метрик Prometheus.
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// Noop ничего не записывает. Используется в тестах.
type Noop struct{}

func (Noop) RecordJobSubmitted()                 {}
func (Noop) RecordJobCompleted()                 {}
func (Noop) RecordJobFailed(string)              {}
func (Noop) RecordAnalyzerLatency(time.Duration) {}
func (Noop) RecordLogin(bool)                    {}
