package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestSetupMetricsRoute(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordAuthAttempt("sign_in", "domain_rejected")
	c.RecordSessionsPurged(4)
	c.RecordProfileRequest("save", "success", 120*time.Millisecond)

	handler := SetupMetricsRoute(reg)

	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
		wantBody   []string
	}{
		{
			name:       "metrics exposition",
			method:     http.MethodGet,
			path:       "/metrics",
			wantStatus: http.StatusOK,
			wantBody: []string{
				`uniconnect_auth_attempts_total{operation="sign_in",outcome="domain_rejected"} 1`,
				`uniconnect_sessions_purged_total 4`,
				`uniconnect_profile_requests_total{operation="save",outcome="success"} 1`,
			},
		},
		{name: "health", method: http.MethodGet, path: "/health", wantStatus: http.StatusOK, wantBody: []string{"ok"}},
		{name: "unknown path", method: http.MethodGet, path: "/debug/pprof", wantStatus: http.StatusNotFound},
		{name: "write method", method: http.MethodPost, path: "/metrics", wantStatus: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(tt.method, tt.path, nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			for _, want := range tt.wantBody {
				if !strings.Contains(w.Body.String(), want) {
					t.Errorf("body should contain %q, got:\n%s", want, w.Body.String())
				}
			}
		})
	}
}
