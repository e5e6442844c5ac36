// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ワーカーやサービス層から利用する。
type MetricsCollector interface {
	RecordScanSuccess(clanID string)
	RecordScanFailure(clanID string, reason string)
	RecordGamesRecorded(count int)
	RecordBungieStatus(statusCode int)
	RecordScanLatency(duration time.Duration)
	RecordHistoryPages(count int)
}

// NopCollector は何も記録しないMetricsCollector実装。
// メトリクスが不要な構成（テストなど）で使用する。
type NopCollector struct{}

func (NopCollector) RecordScanSuccess(clanID string)           {}
func (NopCollector) RecordScanFailure(clanID string, r string) {}
func (NopCollector) RecordGamesRecorded(count int)             {}
func (NopCollector) RecordBungieStatus(statusCode int)         {}
func (NopCollector) RecordScanLatency(duration time.Duration)  {}
func (NopCollector) RecordHistoryPages(count int)              {}

var _ MetricsCollector = NopCollector{}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	scanSuccess   prometheus.Counter
	scanFail      prometheus.Counter
	gamesRecorded prometheus.Counter
	bungieStatus  *prometheus.CounterVec
	scanLatency   prometheus.Histogram
	historyPages  prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		scanSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trentsix_scan_success_total",
			Help: "クランスキャン成功の合計数",
		}),
		scanFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trentsix_scan_fail_total",
			Help: "クランスキャン失敗の合計数",
		}),
		gamesRecorded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trentsix_games_recorded_total",
			Help: "記録されたゲームセッションの合計数",
		}),
		bungieStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "trentsix_bungie_status_total",
			Help: "Bungie APIのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		scanLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "trentsix_scan_latency_seconds",
			Help:    "クランスキャンのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		historyPages: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "trentsix_history_pages_total",
			Help: "取得したアクティビティ履歴ページの合計数",
		}),
	}

	reg.MustRegister(
		c.scanSuccess,
		c.scanFail,
		c.gamesRecorded,
		c.bungieStatus,
		c.scanLatency,
		c.historyPages,
	)

	return c
}

// RecordScanSuccess はスキャン成功を記録する。
func (c *Collector) RecordScanSuccess(clanID string) {
	c.scanSuccess.Inc()
}

// RecordScanFailure はスキャン失敗を記録する。
func (c *Collector) RecordScanFailure(clanID string, reason string) {
	c.scanFail.Inc()
}

// RecordGamesRecorded は記録されたゲーム数を記録する。
func (c *Collector) RecordGamesRecorded(count int) {
	c.gamesRecorded.Add(float64(count))
}

// RecordBungieStatus はBungie APIのHTTPステータスコードを記録する。
func (c *Collector) RecordBungieStatus(statusCode int) {
	c.bungieStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordScanLatency はスキャンのレイテンシを記録する。
func (c *Collector) RecordScanLatency(duration time.Duration) {
	c.scanLatency.Observe(duration.Seconds())
}

// RecordHistoryPages は取得した履歴ページ数を記録する。
func (c *Collector) RecordHistoryPages(count int) {
	c.historyPages.Add(float64(count))
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
