// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層、ストア、ワーカーから利用する。
type MetricsCollector interface {
	RecordAuthzDenied(action string)
	RecordRoleMutation(operation, result string)
	RecordLeadOverride()
	RecordRequestTransition(status string)
	RecordTxRetry()
	RecordClaimsSync(result string)
	RecordErrorEvent(code string)
	RecordHTTPStatus(statusCode int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	authzDenied        *prometheus.CounterVec
	roleMutations      *prometheus.CounterVec
	leadOverrides      prometheus.Counter
	requestTransitions *prometheus.CounterVec
	txRetries          prometheus.Counter
	claimsSync         *prometheus.CounterVec
	errorEvents        *prometheus.CounterVec
	httpStatus         *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authzDenied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accessportal_authz_denied_total",
			Help: "認可ゲートで拒否された操作の数",
		}, []string{"action"}),
		roleMutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accessportal_role_mutations_total",
			Help: "ロール変更操作の数（操作・結果別）",
		}, []string{"operation", "result"}),
		leadOverrides: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accessportal_lead_override_total",
			Help: "チームから参照中のテックリードを管理者が直接降格した回数",
		}),
		requestTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accessportal_request_transitions_total",
			Help: "アクセス申請の状態遷移数（遷移先別）",
		}, []string{"status"}),
		txRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "accessportal_tx_retries_total",
			Help: "直列化失敗によるトランザクション再試行の数",
		}),
		claimsSync: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accessportal_claims_sync_total",
			Help: "プロフィールからクレームへの同期結果",
		}, []string{"result"}),
		errorEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accessportal_error_events_total",
			Help: "API境界で発行されたエラーイベントの数（コード別）",
		}, []string{"code"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "accessportal_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
	}

	reg.MustRegister(
		c.authzDenied,
		c.roleMutations,
		c.leadOverrides,
		c.requestTransitions,
		c.txRetries,
		c.claimsSync,
		c.errorEvents,
		c.httpStatus,
	)

	return c
}

// RecordAuthzDenied は認可拒否を記録する。
func (c *Collector) RecordAuthzDenied(action string) {
	c.authzDenied.WithLabelValues(action).Inc()
}

// RecordRoleMutation はロール変更操作の結果を記録する。
func (c *Collector) RecordRoleMutation(operation, result string) {
	c.roleMutations.WithLabelValues(operation, result).Inc()
}

// RecordLeadOverride は参照中リードの直接降格を記録する。
func (c *Collector) RecordLeadOverride() {
	c.leadOverrides.Inc()
}

// RecordRequestTransition は申請の状態遷移を記録する。
func (c *Collector) RecordRequestTransition(status string) {
	c.requestTransitions.WithLabelValues(status).Inc()
}

// RecordTxRetry はトランザクション再試行を記録する。
func (c *Collector) RecordTxRetry() {
	c.txRetries.Inc()
}

// RecordClaimsSync はクレーム同期結果を記録する。
func (c *Collector) RecordClaimsSync(result string) {
	c.claimsSync.WithLabelValues(result).Inc()
}

// RecordErrorEvent はエラーイベントを記録する。
func (c *Collector) RecordErrorEvent(code string) {
	c.errorEvents.WithLabelValues(code).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordAuthzDenied(string)          {}
func (Nop) RecordRoleMutation(string, string) {}
func (Nop) RecordLeadOverride()               {}
func (Nop) RecordRequestTransition(string)    {}
func (Nop) RecordTxRetry()                    {}
func (Nop) RecordClaimsSync(string)           {}
func (Nop) RecordErrorEvent(string)           {}
func (Nop) RecordHTTPStatus(int)              {}

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

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
