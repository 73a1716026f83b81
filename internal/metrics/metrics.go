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
// Discordクライアント、ハンドラー、ワーカーから利用する。
type MetricsCollector interface {
	RecordDiscordRequest(endpoint, outcome string, duration time.Duration)
	RecordLogin(outcome string)
	RecordHTTPRequest(method, route string, statusCode int, duration time.Duration)
	RecordSettingsUpdate(section string)
	RecordAuditPurged(count int64)
}

// ログイン結果のラベル
const (
	LoginSuccess      = "success"
	LoginDenied       = "denied"
	LoginMissingCode  = "missing_code"
	LoginOAuthError   = "oauth_error"
	LoginExchangeFail = "exchange_failed"
)

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	discordRequests *prometheus.CounterVec
	discordLatency  *prometheus.HistogramVec
	logins          *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpLatency     *prometheus.HistogramVec
	settingsUpdates *prometheus.CounterVec
	auditPurged     prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		discordRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "luny_discord_requests_total",
			Help: "Discord APIへのリクエスト数（エンドポイント・結果別）",
		}, []string{"endpoint", "outcome"}),
		discordLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "luny_discord_request_duration_seconds",
			Help:    "Discord APIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"endpoint"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "luny_logins_total",
			Help: "OAuthコールバックの結果別件数",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "luny_http_requests_total",
			Help: "HTTPリクエスト数（ルート・ステータス別）",
		}, []string{"method", "route", "status_code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "luny_http_request_duration_seconds",
			Help:    "HTTPリクエストの処理時間（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		settingsUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "luny_settings_updates_total",
			Help: "ギルド設定の更新件数（セクション別）",
		}, []string{"section"}),
		auditPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "luny_audit_purged_total",
			Help: "保持期間切れで削除された監査ログの件数",
		}),
	}

	reg.MustRegister(
		c.discordRequests,
		c.discordLatency,
		c.logins,
		c.httpRequests,
		c.httpLatency,
		c.settingsUpdates,
		c.auditPurged,
	)

	return c
}

// RecordDiscordRequest はDiscord APIリクエストの結果とレイテンシを記録する。
func (c *Collector) RecordDiscordRequest(endpoint, outcome string, duration time.Duration) {
	c.discordRequests.WithLabelValues(endpoint, outcome).Inc()
	c.discordLatency.WithLabelValues(endpoint).Observe(duration.Seconds())
}

// RecordLogin はOAuthコールバックの結果を記録する。
func (c *Collector) RecordLogin(outcome string) {
	c.logins.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest はHTTPリクエストを記録する。routeはchiのルートパターン。
func (c *Collector) RecordHTTPRequest(method, route string, statusCode int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(statusCode)).Inc()
	c.httpLatency.WithLabelValues(route).Observe(duration.Seconds())
}

// RecordSettingsUpdate は設定更新を記録する。
func (c *Collector) RecordSettingsUpdate(section string) {
	c.settingsUpdates.WithLabelValues(section).Inc()
}

// RecordAuditPurged は削除された監査ログ件数を記録する。
func (c *Collector) RecordAuditPurged(count int64) {
	c.auditPurged.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// workerプロセスはAPIルーターを持たないため、これを単独で公開する。
// healthがnilでなければ/healthも公開する（コンテナのヘルスチェック用）。
func SetupMetricsRoute(gatherer prometheus.Gatherer, health http.Handler) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	if health != nil {
		mux.Handle("/health", health)
	}
	return mux
}
