// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 同期エンジンやワーカーから利用する。
type MetricsCollector interface {
	RecordSyncSuccess(operation string)
	RecordSyncFailure(operation string)
	RecordSyncLatency(operation string, duration time.Duration)
	RecordEntitiesPushed(count int)
	RecordEntitiesApplied(count int)
	RecordConflictResolved(resolution string)
	RecordMalformedDocuments(count int)
	RecordRemindersDispatched(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	syncSuccess     *prometheus.CounterVec
	syncFailure     *prometheus.CounterVec
	syncLatency     *prometheus.HistogramVec
	entitiesPushed  prometheus.Counter
	entitiesApplied prometheus.Counter
	conflicts       *prometheus.CounterVec
	malformedDocs   prometheus.Counter
	reminders       prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		syncSuccess: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tasksync_sync_success_total",
			Help: "同期操作成功の合計数（操作別）",
		}, []string{"operation"}),
		syncFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tasksync_sync_failure_total",
			Help: "同期操作失敗の合計数（操作別）",
		}, []string{"operation"}),
		syncLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tasksync_sync_latency_seconds",
			Help:    "同期操作のレイテンシ（秒、操作別）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		entitiesPushed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tasksync_entities_pushed_total",
			Help: "リモートへpushされたエンティティの合計数",
		}),
		entitiesApplied: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tasksync_entities_applied_total",
			Help: "pullでローカルへ適用されたエンティティの合計数",
		}),
		conflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tasksync_conflicts_resolved_total",
			Help: "LWWで解決された競合の合計数（解決方法別）",
		}, []string{"resolution"}),
		malformedDocs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tasksync_malformed_documents_total",
			Help: "pullでスキップされた不正ドキュメントの合計数",
		}),
		reminders: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tasksync_reminders_dispatched_total",
			Help: "通知スケジューラへ引き渡されたリマインダーの合計数",
		}),
	}

	reg.MustRegister(
		c.syncSuccess,
		c.syncFailure,
		c.syncLatency,
		c.entitiesPushed,
		c.entitiesApplied,
		c.conflicts,
		c.malformedDocs,
		c.reminders,
	)

	return c
}

// RecordSyncSuccess は同期操作の成功を記録する。
func (c *Collector) RecordSyncSuccess(operation string) {
	c.syncSuccess.WithLabelValues(operation).Inc()
}

// RecordSyncFailure は同期操作の失敗を記録する。
func (c *Collector) RecordSyncFailure(operation string) {
	c.syncFailure.WithLabelValues(operation).Inc()
}

// RecordSyncLatency は同期操作のレイテンシを記録する。
func (c *Collector) RecordSyncLatency(operation string, duration time.Duration) {
	c.syncLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordEntitiesPushed はpushされたエンティティ数を記録する。
func (c *Collector) RecordEntitiesPushed(count int) {
	c.entitiesPushed.Add(float64(count))
}

// RecordEntitiesApplied はローカルへ適用されたエンティティ数を記録する。
func (c *Collector) RecordEntitiesApplied(count int) {
	c.entitiesApplied.Add(float64(count))
}

// RecordConflictResolved は競合解決を記録する。
func (c *Collector) RecordConflictResolved(resolution string) {
	c.conflicts.WithLabelValues(resolution).Inc()
}

// RecordMalformedDocuments は不正ドキュメントのスキップ数を記録する。
func (c *Collector) RecordMalformedDocuments(count int) {
	c.malformedDocs.Add(float64(count))
}

// RecordRemindersDispatched は引き渡されたリマインダー数を記録する。
func (c *Collector) RecordRemindersDispatched(count int) {
	c.reminders.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// compile-time interface check
var _ MetricsCollector = (*Collector)(nil)
