package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// MQ 消费延迟（毫秒）
	MQConsumeLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "mq_consume_latency_ms",
			Help:    "MQ message consumption latency in milliseconds",
			Buckets: prometheus.ExponentialBuckets(10, 2, 10), // 10ms to ~10s
		},
		[]string{"routing_key", "queue"},
	)

	// Gateway 调用延迟（秒）
	GatewayCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_call_duration_seconds",
			Help:    "Persistence gateway call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		},
		[]string{"method", "endpoint", "status"},
	)

	// 数据库查询延迟（秒）
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"operation", "table"},
	)

	// 慢查询计数
	SlowQueryCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "db_slow_query_count",
			Help: "Total number of queries slower than the configured threshold",
		},
		[]string{"table"},
	)

	// HTTP 请求延迟（秒）
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 12), // 1ms to ~4s
		},
		[]string{"method", "path", "status"},
	)

	// 进度重算计数
	ProgressRecomputeCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "progress_recompute_count",
			Help: "Total number of progress rollups computed",
		},
		[]string{"level", "origin"}, // level: module, milestone, project; origin: client, server, worker
	)

	// 乐观更新补偿计数
	MutationRevertCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "mutation_revert_count",
			Help: "Total number of optimistic mutations reverted after a failed write",
		},
		[]string{"op"},
	)

	// 概览扇出结果计数
	OverviewFetchCount = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "overview_project_fetch_count",
			Help: "Per-project overview fetches by outcome",
		},
		[]string{"status"}, // status: success, failed
	)
)

// RecordMQConsumeLatency 记录 MQ 消费延迟
func RecordMQConsumeLatency(routingKey, queue string, duration time.Duration) {
	MQConsumeLatency.WithLabelValues(routingKey, queue).Observe(float64(duration.Milliseconds()))
}

// RecordGatewayCall 记录 Gateway 调用延迟
func RecordGatewayCall(method, endpoint, status string, duration time.Duration) {
	GatewayCallDuration.WithLabelValues(method, endpoint, status).Observe(duration.Seconds())
}

// RecordDBQueryDuration 记录数据库查询延迟
func RecordDBQueryDuration(operation, table string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// IncrementSlowQuery 记录一次慢查询
func IncrementSlowQuery(table string, _ time.Duration) {
	SlowQueryCount.WithLabelValues(table).Inc()
}

// RecordHTTPRequestDuration 记录 HTTP 请求延迟
func RecordHTTPRequestDuration(method, path, status string, duration time.Duration) {
	HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// IncrementRecompute 增加进度重算计数
func IncrementRecompute(level, origin string) {
	ProgressRecomputeCount.WithLabelValues(level, origin).Inc()
}

// IncrementMutationRevert 增加补偿计数
func IncrementMutationRevert(op string) {
	MutationRevertCount.WithLabelValues(op).Inc()
}

// IncrementOverviewFetch 增加概览扇出计数
func IncrementOverviewFetch(status string) {
	OverviewFetchCount.WithLabelValues(status).Inc()
}
