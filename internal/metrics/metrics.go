// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// 外部呼び出し結果のラベル値
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Recorder はメトリクス記録のインターフェース。
// 外部API呼び出し、ステータス遷移、リマインダー送信から利用する。
type Recorder interface {
	RecordUpstream(upstream, outcome string, latency time.Duration)
	RecordStatusTransition(to string)
	RecordReminder(channel, outcome string)
	RecordSearchResults(source string, count int)
	RecordAnalysis(kind, outcome string)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	upstreamRequests  *prometheus.CounterVec
	upstreamLatency   *prometheus.HistogramVec
	statusTransitions *prometheus.CounterVec
	remindersSent     *prometheus.CounterVec
	searchResults     *prometheus.CounterVec
	analysisRuns      *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		upstreamRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobtrail_upstream_requests_total",
			Help: "外部API呼び出しの合計数",
		}, []string{"upstream", "outcome"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jobtrail_upstream_latency_seconds",
			Help:    "外部API呼び出しのレイテンシ（秒）",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		}, []string{"upstream"}),
		statusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobtrail_status_transitions_total",
			Help: "遷移先ステータス別の応募ステータス変更数",
		}, []string{"to"}),
		remindersSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobtrail_reminders_sent_total",
			Help: "配信チャネル別のリマインダー送信数",
		}, []string{"channel", "outcome"}),
		searchResults: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobtrail_search_results_total",
			Help: "検索ソース別の求人検索結果件数",
		}, []string{"source"}),
		analysisRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobtrail_analysis_runs_total",
			Help: "バックグラウンドで実行した解析の件数",
		}, []string{"kind", "outcome"}),
	}

	reg.MustRegister(
		c.upstreamRequests,
		c.upstreamLatency,
		c.statusTransitions,
		c.remindersSent,
		c.searchResults,
		c.analysisRuns,
	)
	return c
}

// RecordUpstream は外部API呼び出しの結果とレイテンシを記録する。
func (c *Collector) RecordUpstream(upstream, outcome string, latency time.Duration) {
	c.upstreamRequests.WithLabelValues(upstream, outcome).Inc()
	c.upstreamLatency.WithLabelValues(upstream).Observe(latency.Seconds())
}

// RecordStatusTransition はステータス遷移を記録する。
func (c *Collector) RecordStatusTransition(to string) {
	c.statusTransitions.WithLabelValues(to).Inc()
}

// RecordReminder はリマインダー配信結果を記録する。
func (c *Collector) RecordReminder(channel, outcome string) {
	c.remindersSent.WithLabelValues(channel, outcome).Inc()
}

// RecordSearchResults は検索ソースが返した件数を加算する。
func (c *Collector) RecordSearchResults(source string, count int) {
	c.searchResults.WithLabelValues(source).Add(float64(count))
}

// RecordAnalysis はバックグラウンド解析の結果を記録する。
func (c *Collector) RecordAnalysis(kind, outcome string) {
	c.analysisRuns.WithLabelValues(kind, outcome).Inc()
}

// Nop は何も記録しないRecorder。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordUpstream(string, string, time.Duration) {}
func (Nop) RecordStatusTransition(string)                {}
func (Nop) RecordReminder(string, string)                {}
func (Nop) RecordSearchResults(string, int)              {}
func (Nop) RecordAnalysis(string, string)                {}

// Outcome はエラー有無からラベル値を返す。
func Outcome(err error) string {
	if err != nil {
		return OutcomeFailure
	}
	return OutcomeSuccess
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

var (
	_ Recorder = (*Collector)(nil)
	_ Recorder = Nop{}
)
