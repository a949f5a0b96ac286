package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func probe(t *testing.T, h *HealthChecker, path string) (int, DetailedHealthResponse) {
	t.Helper()
	r := gin.New()
	h.Register(r)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	var body DetailedHealthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode %s response: %v", path, err)
	}
	return rec.Code, body
}

func TestHealthChecker(t *testing.T) {
	gin.SetMode(gin.TestMode)

	down := pingerFunc(func(context.Context) error { return errors.New("connection refused") })
	up := pingerFunc(func(context.Context) error { return nil })

	tests := []struct {
		name       string
		checker    func() *HealthChecker
		path       string
		wantCode   int
		wantStatus string
		wantDB     string
	}{
		{
			name:       "liveness ignores dependencies",
			checker:    func() *HealthChecker { return NewHealthChecker(down) },
			path:       "/healthz",
			wantCode:   http.StatusOK,
			wantStatus: healthStatusOK,
		},
		{
			name:       "ready",
			checker:    func() *HealthChecker { return NewHealthChecker(up) },
			path:       "/readyz",
			wantCode:   http.StatusOK,
			wantStatus: healthStatusOK,
			wantDB:     healthStatusOK,
		},
		{
			name:       "database down",
			checker:    func() *HealthChecker { return NewHealthChecker(down) },
			path:       "/readyz",
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: healthStatusNotReady,
			wantDB:     healthStatusUnavailable,
		},
		{
			name: "not ready",
			checker: func() *HealthChecker {
				h := NewHealthChecker(nil)
				h.SetReady(false)
				return h
			},
			path:       "/readyz",
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: healthStatusNotReady,
		},
		{
			name: "shutting down",
			checker: func() *HealthChecker {
				h := NewHealthChecker(up)
				h.SetShuttingDown()
				return h
			},
			path:       "/healthz/detailed",
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: healthStatusShuttingDown,
			wantDB:     healthStatusOK,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := probe(t, tt.checker(), tt.path)
			if code != tt.wantCode {
				t.Errorf("status code = %d, want %d", code, tt.wantCode)
			}
			if body.Status != tt.wantStatus {
				t.Errorf("status = %q, want %q", body.Status, tt.wantStatus)
			}
			if body.Checks["database"] != tt.wantDB {
				t.Errorf("database check = %q, want %q", body.Checks["database"], tt.wantDB)
			}
		})
	}
}
