package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetric はレジストリから指定名・指定ラベルのメトリクスを探す。
func findMetric(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) *dto.Metric {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if labelsMatch(m, labels) {
				return m
			}
		}
	}
	return nil
}

func labelsMatch(m *dto.Metric, labels map[string]string) bool {
	if len(m.GetLabel()) != len(labels) {
		return false
	}
	for _, lp := range m.GetLabel() {
		if labels[lp.GetName()] != lp.GetValue() {
			return false
		}
	}
	return true
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string, labels map[string]string) float64 {
	t.Helper()
	m := findMetric(t, reg, name, labels)
	if m == nil {
		t.Fatalf("metric %s%v not found", name, labels)
	}
	return m.GetCounter().GetValue()
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	if NewCollector(reg) == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordAuthzDenied_LabelsByAction は認可拒否が操作別に集計されることを検証する。
func TestRecordAuthzDenied_LabelsByAction(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuthzDenied("set-claims")
	c.RecordAuthzDenied("set-claims")
	c.RecordAuthzDenied("approve-request")

	if v := counterValue(t, reg, "accessportal_authz_denied_total", map[string]string{"action": "set-claims"}); v != 2 {
		t.Errorf("set-claims denied = %v, want 2", v)
	}
	if v := counterValue(t, reg, "accessportal_authz_denied_total", map[string]string{"action": "approve-request"}); v != 1 {
		t.Errorf("approve-request denied = %v, want 1", v)
	}
}

// TestRecordRoleMutation_LabelsByOperationAndResult はロール変更が操作・結果別に集計されることを検証する。
func TestRecordRoleMutation_LabelsByOperationAndResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRoleMutation("update_team", "success")
	c.RecordRoleMutation("update_team", "aborted")
	c.RecordRoleMutation("update_team", "success")

	if v := counterValue(t, reg, "accessportal_role_mutations_total", map[string]string{"operation": "update_team", "result": "success"}); v != 2 {
		t.Errorf("update_team success = %v, want 2", v)
	}
	if v := counterValue(t, reg, "accessportal_role_mutations_total", map[string]string{"operation": "update_team", "result": "aborted"}); v != 1 {
		t.Errorf("update_team aborted = %v, want 1", v)
	}
}

// TestUnlabeledCounters は単純カウンタが増加することを検証する。
func TestUnlabeledCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTxRetry()
	c.RecordTxRetry()
	c.RecordLeadOverride()

	if v := counterValue(t, reg, "accessportal_tx_retries_total", map[string]string{}); v != 2 {
		t.Errorf("tx_retries_total = %v, want 2", v)
	}
	if v := counterValue(t, reg, "accessportal_lead_override_total", map[string]string{}); v != 1 {
		t.Errorf("lead_override_total = %v, want 1", v)
	}
}

// TestLabeledCounters は状態遷移・同期結果・エラーイベント・HTTPステータスの集計を検証する。
func TestLabeledCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRequestTransition("approved")
	c.RecordClaimsSync("synced")
	c.RecordClaimsSync("synced")
	c.RecordErrorEvent("INVALID_STATE")
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(404)
	c.RecordHTTPStatus(404)

	tests := []struct {
		name   string
		labels map[string]string
		want   float64
	}{
		{"accessportal_request_transitions_total", map[string]string{"status": "approved"}, 1},
		{"accessportal_claims_sync_total", map[string]string{"result": "synced"}, 2},
		{"accessportal_error_events_total", map[string]string{"code": "INVALID_STATE"}, 1},
		{"accessportal_http_status_total", map[string]string{"status_code": "200"}, 1},
		{"accessportal_http_status_total", map[string]string{"status_code": "404"}, 2},
	}
	for _, tt := range tests {
		if v := counterValue(t, reg, tt.name, tt.labels); v != tt.want {
			t.Errorf("%s%v = %v, want %v", tt.name, tt.labels, v, tt.want)
		}
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordAuthzDenied("manage-team")
	c.RecordRoleMutation("create_team", "success")
	c.RecordRequestTransition("rejected")
	c.RecordTxRetry()
	c.RecordClaimsSync("error")

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	for _, metric := range []string{
		"accessportal_authz_denied_total",
		"accessportal_role_mutations_total",
		"accessportal_request_transitions_total",
		"accessportal_tx_retries_total",
		"accessportal_claims_sync_total",
	} {
		if !strings.Contains(string(body), metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestMultipleCollectors_IndependentRegistries は異なるレジストリで独立に動作することを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	c2 := NewCollector(reg2)

	c1.RecordTxRetry()
	c2.RecordTxRetry()
	c2.RecordTxRetry()

	if v := counterValue(t, reg1, "accessportal_tx_retries_total", map[string]string{}); v != 1 {
		t.Errorf("reg1 tx_retries = %v, want 1", v)
	}
	if v := counterValue(t, reg2, "accessportal_tx_retries_total", map[string]string{}); v != 2 {
		t.Errorf("reg2 tx_retries = %v, want 2", v)
	}
}
