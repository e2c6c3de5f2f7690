package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
)

func TestNormalizePath(t *testing.T) {
	var got string
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			next.ServeHTTP(w, req)
			got = normalizePath(req)
		})
	})
	r.Get("/api/v1/evidence/{evidence_id}", func(w http.ResponseWriter, _ *http.Request) {})
	r.Get("/api/v1/scopes/{scope_id}/bundle", func(w http.ResponseWriter, _ *http.Request) {})

	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/evidence/a1b2c3d4-0000-0000-0000-000000000001", "/api/v1/evidence/{evidence_id}"},
		{"/api/v1/scopes/claim-42/bundle", "/api/v1/scopes/{scope_id}/bundle"},
		{"/api/v1/unknown/123", "unmatched"},
		{"/favicon.ico", "other"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))
			if got != tt.want {
				t.Errorf("normalizePath(%s) = %q, ожидается %q", tt.path, got, tt.want)
			}
		})
	}
}

func TestNormalizePath_HealthRoute(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	if got := normalizePath(req); got != "/health/live" {
		t.Errorf("normalizePath = %q, ожидается /health/live", got)
	}
}

func TestRequestLogger_Levels(t *testing.T) {
	tests := []struct {
		name      string
		path      string
		status    int
		wantLevel string
		wantRoute string
	}{
		{"успех", "/api/v1/evidence", http.StatusOK, "level=INFO", "route=unmatched"},
		{"клиентская ошибка", "/api/v1/evidence", http.StatusBadRequest, "level=WARN", "route=unmatched"},
		{"серверная ошибка", "/api/v1/evidence", http.StatusServiceUnavailable, "level=ERROR", "route=unmatched"},
		{"health", "/health/live", http.StatusOK, "level=DEBUG", "route=/health/live"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
			handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte("body"))
			}))

			handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, tt.path, nil))

			out := buf.String()
			if !strings.Contains(out, tt.wantLevel) {
				t.Errorf("лог %q не содержит %s", out, tt.wantLevel)
			}
			if !strings.Contains(out, tt.wantRoute) {
				t.Errorf("лог %q не содержит %s", out, tt.wantRoute)
			}
			if !strings.Contains(out, "bytes=4") {
				t.Errorf("лог %q не содержит bytes=4", out)
			}
		})
	}
}
