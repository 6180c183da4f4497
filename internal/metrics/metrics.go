// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// 認証サービスとジャニターから利用する。
type MetricsCollector interface {
	RecordOTPIssued()
	RecordOTPRejected()
	RecordOTPVerifyFailure()
	RecordSessionCreated()
	RecordSessionRevoked()
	RecordJanitorSweep(otpsDeleted, sessionsDeleted int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	otpIssued       prometheus.Counter
	otpRejected     prometheus.Counter
	otpVerifyFail   prometheus.Counter
	sessionsCreated prometheus.Counter
	sessionsRevoked prometheus.Counter
	janitorOTPs     prometheus.Counter
	janitorSessions prometheus.Counter
	janitorSweeps   prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		otpIssued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediagate_otp_issued_total",
			Help: "発行されたワンタイムコードの合計数",
		}),
		otpRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediagate_otp_rejected_total",
			Help: "許可リスト外等で拒否されたコード発行要求の合計数",
		}),
		otpVerifyFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediagate_otp_verify_fail_total",
			Help: "ワンタイムコード検証失敗の合計数",
		}),
		sessionsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediagate_sessions_created_total",
			Help: "作成されたセッションの合計数",
		}),
		sessionsRevoked: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediagate_sessions_revoked_total",
			Help: "ログアウトにより失効したセッションの合計数",
		}),
		janitorOTPs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediagate_janitor_otps_deleted_total",
			Help: "ジャニターが削除した期限切れコードの合計数",
		}),
		janitorSessions: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediagate_janitor_sessions_deleted_total",
			Help: "ジャニターが削除した期限切れセッションの合計数",
		}),
		janitorSweeps: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mediagate_janitor_sweeps_total",
			Help: "ジャニターの掃除実行回数",
		}),
	}

	reg.MustRegister(
		c.otpIssued,
		c.otpRejected,
		c.otpVerifyFail,
		c.sessionsCreated,
		c.sessionsRevoked,
		c.janitorOTPs,
		c.janitorSessions,
		c.janitorSweeps,
	)

	return c
}

// RecordOTPIssued はワンタイムコードの発行を記録する。
func (c *Collector) RecordOTPIssued() {
	c.otpIssued.Inc()
}

// RecordOTPRejected はコード発行要求の拒否を記録する。
func (c *Collector) RecordOTPRejected() {
	c.otpRejected.Inc()
}

// RecordOTPVerifyFailure はコード検証の失敗を記録する。
func (c *Collector) RecordOTPVerifyFailure() {
	c.otpVerifyFail.Inc()
}

// RecordSessionCreated はセッションの作成を記録する。
func (c *Collector) RecordSessionCreated() {
	c.sessionsCreated.Inc()
}

// RecordSessionRevoked はセッションの失効を記録する。
func (c *Collector) RecordSessionRevoked() {
	c.sessionsRevoked.Inc()
}

// RecordJanitorSweep はジャニターの掃除結果を記録する。
func (c *Collector) RecordJanitorSweep(otpsDeleted, sessionsDeleted int64) {
	c.janitorSweeps.Inc()
	c.janitorOTPs.Add(float64(otpsDeleted))
	c.janitorSessions.Add(float64(sessionsDeleted))
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
