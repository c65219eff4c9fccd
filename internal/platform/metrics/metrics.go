package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// once 用来保证指标只注册一次。
	// Prometheus 的 registry 不允许重复注册同名指标，否则会直接 panic。
	once sync.Once

	// LinksCreatedTotal：成功创建的短链数。
	LinksCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "krat_links_created_total",
			Help: "Short links created.",
		},
	)

	// ResolvesTotal：解析结果分布。
	//
	// labels：
	// - result：ok / not_found / limit_exceeded / expired
	ResolvesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "krat_resolves_total",
			Help: "Short link resolutions by result.",
		},
		[]string{"result"},
	)

	// LinksRemovedTotal：从存储中移除的短链数。
	//
	// labels：
	// - reason：scheduler / resolve / owner
	LinksRemovedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "krat_links_removed_total",
			Help: "Short links removed from the store by reason.",
		},
		[]string{"reason"},
	)

	// LiveLinks：当前存储中的短链数量（Gauge）。
	LiveLinks = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "krat_live_links",
			Help: "Short links currently held in the store.",
		},
	)

	// ExpiryQueueDepth：调度器中等待触发的过期命令数。
	ExpiryQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "krat_expiry_queue_depth",
			Help: "Expiry commands waiting in the scheduler.",
		},
	)

	// CodeGenerationAttempts：生成一个可用短码所用的尝试次数。
	CodeGenerationAttempts = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "krat_code_generation_attempts",
			Help:    "Attempts needed to find an unused short code.",
			Buckets: []float64{1, 2, 3, 5, 8, 16},
		},
	)

	// EventsTotal：事件收集情况。
	//
	// labels：
	// - kind：created / resolved / expired / deleted
	// - outcome：queued / dropped / published / failed
	EventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "krat_events_total",
			Help: "Lifecycle events by kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)

	// SnapshotDurationSeconds：快照保存/加载耗时。
	SnapshotDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "krat_snapshot_duration_seconds",
			Help:    "Snapshot save and load latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"backend", "op"},
	)
)

// Init 注册指标：只允许注册一次（否则 panic: duplicate metrics collector registration）
func Init() {
	once.Do(func() {
		prometheus.MustRegister(
			LinksCreatedTotal,
			ResolvesTotal,
			LinksRemovedTotal,
			LiveLinks,
			ExpiryQueueDepth,
			CodeGenerationAttempts,
			EventsTotal,
			SnapshotDurationSeconds,
		)
	})
}
