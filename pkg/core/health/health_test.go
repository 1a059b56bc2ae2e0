package health

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestRegistryCheck(t *testing.T) {
	tests := []struct {
		name   string
		checks map[string]CheckResult
		want   Status
	}{
		{"empty", nil, StatusHealthy},
		{"all healthy", map[string]CheckResult{"a": Healthy("ok"), "b": Healthy("ok")}, StatusHealthy},
		{"degraded", map[string]CheckResult{"a": Healthy("ok"), "b": Degraded("slow")}, StatusDegraded},
		{"unhealthy wins", map[string]CheckResult{"a": Degraded("slow"), "b": Unhealthy("down")}, StatusUnhealthy},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry("speechrec", "1.0.0")
			for name, result := range tt.checks {
				result := result
				r.Register(name, func(context.Context) CheckResult { return result })
			}

			report := r.Check(context.Background())
			if report.Status != tt.want {
				t.Errorf("Check().Status = %v, want %v", report.Status, tt.want)
			}
			if len(report.Checks) != len(tt.checks) {
				t.Errorf("Check() returned %d results, want %d", len(report.Checks), len(tt.checks))
			}
		})
	}
}

func TestRegistryCheckNamesAndOrder(t *testing.T) {
	r := NewRegistry("speechrec", "1.0.0")
	r.Register("zeta", func(context.Context) CheckResult { return Healthy("") })
	r.Register("alpha", func(context.Context) CheckResult { return Healthy("") })

	report := r.Check(context.Background())
	if report.Checks[0].Name != "alpha" || report.Checks[1].Name != "zeta" {
		t.Errorf("check order = %s, %s, want alpha, zeta", report.Checks[0].Name, report.Checks[1].Name)
	}
	if report.Service != "speechrec" || report.Version != "1.0.0" {
		t.Errorf("report = %s", report)
	}
}

func TestRegistryReplace(t *testing.T) {
	r := NewRegistry("speechrec", "1.0.0")
	r.Register("recorder", func(context.Context) CheckResult { return Unhealthy("stopped") })
	r.Register("recorder", func(context.Context) CheckResult { return Healthy("running") })

	if report := r.Check(context.Background()); report.Status != StatusHealthy || len(report.Checks) != 1 {
		t.Errorf("Check() = %s, want one healthy check", report)
	}
}

func TestHandler(t *testing.T) {
	tests := []struct {
		name     string
		result   CheckResult
		wantCode int
	}{
		{"healthy", Healthy("running"), http.StatusOK},
		{"degraded", Degraded("no clients"), http.StatusOK},
		{"unhealthy", Unhealthy("stopped"), http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRegistry("speechrec", "1.0.0")
			r.Register("recorder", func(context.Context) CheckResult { return tt.result })

			rec := httptest.NewRecorder()
			r.Handler(time.Second).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("status code = %d, want %d", rec.Code, tt.wantCode)
			}
			var report Report
			if err := json.NewDecoder(rec.Body).Decode(&report); err != nil {
				t.Fatalf("decode report: %v", err)
			}
			if report.Status != tt.result.Status {
				t.Errorf("report status = %v, want %v", report.Status, tt.result.Status)
			}
		})
	}
}
