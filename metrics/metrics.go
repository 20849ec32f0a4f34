// Package metrics 定义 Prometheus 指标。
// 指标为包级变量，通过 promauto 注册到默认 Registry，/metrics 由 server 暴露。
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecommendRequests 推荐请求数，operation: for_you / complete_the_look，outcome: ok / degraded / invalid / not_found
	RecommendRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookbook_recommend_requests_total",
			Help: "Total number of recommendation requests",
		},
		[]string{"operation", "outcome"},
	)

	RecommendDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lookbook_recommend_duration_seconds",
			Help:    "Duration of recommendation requests in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5},
		},
		[]string{"operation"},
	)

	// CacheLookups 结果缓存查询，result: hit / miss
	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookbook_result_cache_lookups_total",
			Help: "Total number of result cache lookups",
		},
		[]string{"operation", "result"},
	)

	// StrategyFailures 召回策略失败（含超时）
	StrategyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookbook_recall_strategy_failures_total",
			Help: "Total number of candidate strategy failures",
		},
		[]string{"strategy"},
	)

	StrategyCandidates = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lookbook_recall_strategy_candidates",
			Help:    "Number of candidates returned per strategy call",
			Buckets: []float64{0, 1, 5, 10, 25, 50},
		},
		[]string{"strategy"},
	)

	// LedgerEvents 写入 Ledger 的事件，kind 为交互类型
	LedgerEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookbook_ledger_events_total",
			Help: "Total number of interaction events recorded",
		},
		[]string{"kind"},
	)

	LedgerSwept = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lookbook_ledger_swept_events_total",
			Help: "Total number of events removed by retention sweeps",
		},
	)

	// FeatureErrors 特征读取失败，reason: timeout / breaker_open / error
	FeatureErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookbook_feature_errors_total",
			Help: "Total number of feature store failures",
		},
		[]string{"store", "reason"},
	)

	// CircuitBreakerState 熔断器状态：0 closed，1 half-open，2 open
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lookbook_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	PopularityRefreshes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookbook_popularity_refresh_total",
			Help: "Total number of popularity index refreshes",
		},
		[]string{"outcome"},
	)

	PopularityLastSuccess = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lookbook_popularity_last_success_timestamp_seconds",
			Help: "Unix timestamp of the last successful popularity refresh",
		},
	)

	// BundleRejections 搭配候选被淘汰的次数，reason: missing / out_of_stock / rule / incompatible / category
	BundleRejections = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookbook_bundle_rejections_total",
			Help: "Total number of bundle complement candidates rejected",
		},
		[]string{"reason"},
	)
)

var (
	// PipelineNodeDuration 排序链路各 Node 耗时
	PipelineNodeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lookbook_rank_node_duration_seconds",
			Help:    "Duration of each ranking pipeline node in seconds",
			Buckets: []float64{.0005, .001, .005, .01, .025, .05, .1, .25},
		},
		[]string{"kind", "node"},
	)

	// CandidatesFiltered 被约束过滤移除的候选，filter 为过滤器名称
	CandidatesFiltered = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lookbook_rank_candidates_filtered_total",
			Help: "Total number of candidates removed by ranking constraints",
		},
		[]string{"filter"},
	)
)
