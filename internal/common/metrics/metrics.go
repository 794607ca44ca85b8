// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	QueriesRouted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "query_pipelines_routed_total",
			Help: "Total number of queries routed per pipeline",
		},
		[]string{"pipeline"},
	)

	GeoResolutions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "geo_resolutions_total",
			Help: "Total number of geo context resolutions per source",
		},
		[]string{"source"},
	)

	FetchTasksExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_tasks_executed_total",
			Help: "Total number of fetch tasks executed per capability",
		},
		[]string{"capability"},
	)

	FetchTasksFailed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fetch_tasks_failed_total",
			Help: "Total number of fetch tasks failed per capability",
		},
		[]string{"capability"},
	)

	AnswerDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name: "answer_duration_seconds",
			Help: "Duration of full answer pipeline in seconds",
		},
		[]string{"prompt_key"},
	)

	SessionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sessions_active",
			Help: "Number of sessions currently pending or completed but unconsumed",
		},
	)
)
