package database

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	poolAcquiredConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pgx_pool_acquired_connections",
			Help: "Number of currently acquired connections in the pool",
		},
		[]string{"service"},
	)

	poolIdleConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pgx_pool_idle_connections",
			Help: "Number of idle connections in the pool",
		},
		[]string{"service"},
	)

	poolTotalConns = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pgx_pool_total_connections",
			Help: "Total number of connections in the pool",
		},
		[]string{"service"},
	)
)

// CollectPoolMetrics periodically exports pgx pool stats as Prometheus gauges
// until the context is cancelled.
func CollectPoolMetrics(ctx context.Context, pool *pgxpool.Pool, serviceName string) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := pool.Stat()
			poolAcquiredConns.WithLabelValues(serviceName).Set(float64(stats.AcquiredConns()))
			poolIdleConns.WithLabelValues(serviceName).Set(float64(stats.IdleConns()))
			poolTotalConns.WithLabelValues(serviceName).Set(float64(stats.TotalConns()))
		}
	}
}
