package api

import (
	"database/sql"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/zombar/linkhub"
)

var (
	analysisTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkhub_analysis_total",
		Help: "Total URL analyses by outcome. Failures are labeled with the pipeline stage that failed.",
	}, []string{"outcome"})

	analysisDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "linkhub_analysis_duration_seconds",
		Help:    "End-to-end URL analysis duration.",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
	})

	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "linkhub_http_requests_total",
		Help: "Total HTTP requests by method and status class.",
	}, []string{"method", "status"})

	dbOpenConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "linkhub_db_open_connections",
		Help: "Open connections in the database pool.",
	})

	dbInUseConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "linkhub_db_in_use_connections",
		Help: "Connections currently in use.",
	})

	dbIdleConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "linkhub_db_idle_connections",
		Help: "Idle connections in the database pool.",
	})
)

// observeAnalysis records one analysis attempt. Failed analyses are counted
// under the stage that failed so dashboards can tell fetch trouble from model
// trouble.
func observeAnalysis(start time.Time, err error) {
	analysisDuration.Observe(time.Since(start).Seconds())

	if err == nil {
		analysisTotal.WithLabelValues("success").Inc()
		return
	}

	var stageErr *linkhub.StageError
	if errors.As(err, &stageErr) {
		analysisTotal.WithLabelValues("failed_" + string(stageErr.Stage)).Inc()
		return
	}
	analysisTotal.WithLabelValues("failed_other").Inc()
}

// UpdateDBStats publishes pool statistics; called periodically from cmd.
func UpdateDBStats(conn *sql.DB) {
	stats := conn.Stats()
	dbOpenConnections.Set(float64(stats.OpenConnections))
	dbInUseConnections.Set(float64(stats.InUse))
	dbIdleConnections.Set(float64(stats.Idle))
}
