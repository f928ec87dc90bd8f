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
	RecordAttempt(action, resultCode string)
	RecordFaceVerification(duration time.Duration, similarity float64)
	RecordEnrollmentCheck(status string)
	RecordAttemptsPurged(count int64)
	SetOpenRecords(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	attempts         *prometheus.CounterVec
	faceDuration     prometheus.Histogram
	faceSimilarity   prometheus.Histogram
	enrollmentChecks *prometheus.CounterVec
	attemptsPurged   prometheus.Counter
	openRecords      prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dakoku_attendance_attempts_total",
			Help: "打刻種別・結果コード別の打刻試行数",
		}, []string{"action", "result"}),
		faceDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dakoku_face_verify_duration_seconds",
			Help:    "顔照合APIの呼び出し所要時間（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		faceSimilarity: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dakoku_face_verify_similarity",
			Help:    "顔照合の類似度スコア分布",
			Buckets: prometheus.LinearBuckets(0.5, 0.05, 11),
		}),
		enrollmentChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dakoku_enrollment_checks_total",
			Help: "顔登録確認バッチの結果別実行数",
		}, []string{"status"}),
		attemptsPurged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dakoku_attempts_purged_total",
			Help: "保持期限で削除された打刻試行ログの合計数",
		}),
		openRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dakoku_open_attendance_records",
			Help: "過去日の未退勤レコード数",
		}),
	}

	reg.MustRegister(
		c.attempts,
		c.faceDuration,
		c.faceSimilarity,
		c.enrollmentChecks,
		c.attemptsPurged,
		c.openRecords,
	)

	return c
}

// RecordAttempt は打刻試行の結果を記録する。
func (c *Collector) RecordAttempt(action, resultCode string) {
	c.attempts.WithLabelValues(action, resultCode).Inc()
}

// RecordFaceVerification は顔照合の所要時間と類似度を記録する。
func (c *Collector) RecordFaceVerification(duration time.Duration, similarity float64) {
	c.faceDuration.Observe(duration.Seconds())
	c.faceSimilarity.Observe(similarity)
}

// RecordEnrollmentCheck は顔登録確認の結果を記録する。
func (c *Collector) RecordEnrollmentCheck(status string) {
	c.enrollmentChecks.WithLabelValues(status).Inc()
}

// RecordAttemptsPurged は削除された試行ログ数を記録する。
func (c *Collector) RecordAttemptsPurged(count int64) {
	c.attemptsPurged.Add(float64(count))
}

// SetOpenRecords は未退勤レコード数を記録する。
func (c *Collector) SetOpenRecords(count int) {
	c.openRecords.Set(float64(count))
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
