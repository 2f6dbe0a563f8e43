// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordSyncPass(collection string, result string)
	RecordSyncDuration(collection string, duration time.Duration)
	RecordPagesCreated(collection string, count int)
	RecordPagesUpdated(collection string, count int)
	RecordPagesSkipped(collection string, count int)
	RecordPagesSoftDeleted(collection string, count int)
	RecordCoverResult(result string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	syncPass         *prometheus.CounterVec
	syncDuration     *prometheus.HistogramVec
	pagesCreated     *prometheus.CounterVec
	pagesUpdated     *prometheus.CounterVec
	pagesSkipped     *prometheus.CounterVec
	pagesSoftDeleted *prometheus.CounterVec
	coverResult      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		syncPass: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notionmirror_sync_pass_total",
			Help: "同期パスの実行回数（コレクション・結果別）",
		}, []string{"collection", "result"}),
		syncDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "notionmirror_sync_duration_seconds",
			Help:    "同期パスの所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"collection"}),
		pagesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notionmirror_pages_created_total",
			Help: "新規作成されたページの合計数",
		}, []string{"collection"}),
		pagesUpdated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notionmirror_pages_updated_total",
			Help: "更新されたページの合計数",
		}, []string{"collection"}),
		pagesSkipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notionmirror_pages_skipped_total",
			Help: "変更なしでスキップされたページの合計数",
		}, []string{"collection"}),
		pagesSoftDeleted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notionmirror_pages_soft_deleted_total",
			Help: "ソフト削除されたページの合計数",
		}, []string{"collection"}),
		coverResult: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "notionmirror_cover_result_total",
			Help: "カバー取得パイプラインの結果数（結果別）",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.syncPass,
		c.syncDuration,
		c.pagesCreated,
		c.pagesUpdated,
		c.pagesSkipped,
		c.pagesSoftDeleted,
		c.coverResult,
	)

	return c
}

// RecordSyncPass は同期パスの完了を結果付きで記録する。
func (c *Collector) RecordSyncPass(collection string, result string) {
	c.syncPass.WithLabelValues(collection, result).Inc()
}

// RecordSyncDuration は同期パスの所要時間を記録する。
func (c *Collector) RecordSyncDuration(collection string, duration time.Duration) {
	c.syncDuration.WithLabelValues(collection).Observe(duration.Seconds())
}

// RecordPagesCreated は新規作成されたページ数を記録する。
func (c *Collector) RecordPagesCreated(collection string, count int) {
	c.pagesCreated.WithLabelValues(collection).Add(float64(count))
}

// RecordPagesUpdated は更新されたページ数を記録する。
func (c *Collector) RecordPagesUpdated(collection string, count int) {
	c.pagesUpdated.WithLabelValues(collection).Add(float64(count))
}

// RecordPagesSkipped はスキップされたページ数を記録する。
func (c *Collector) RecordPagesSkipped(collection string, count int) {
	c.pagesSkipped.WithLabelValues(collection).Add(float64(count))
}

// RecordPagesSoftDeleted はソフト削除されたページ数を記録する。
func (c *Collector) RecordPagesSoftDeleted(collection string, count int) {
	c.pagesSoftDeleted.WithLabelValues(collection).Add(float64(count))
}

// RecordCoverResult はカバー取得パイプラインの結果を記録する。
func (c *Collector) RecordCoverResult(result string) {
	c.coverResult.WithLabelValues(result).Inc()
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
