package server

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
)

const (
	healthStatusOK           = "ok"
	healthStatusNotReady     = "not ready"
	healthStatusShuttingDown = "shutting down"
	healthStatusUnavailable  = "unavailable"

	pingTimeout = 2 * time.Second
)

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthChecker serves liveness and readiness probes.
type HealthChecker struct {
	ready        atomic.Bool
	shuttingDown atomic.Bool
	db           Pinger
	startTime    time.Time
}

// NewHealthChecker creates a checker that starts ready. db may be nil.
func NewHealthChecker(db Pinger) *HealthChecker {
	h := &HealthChecker{
		db:        db,
		startTime: time.Now(),
	}
	h.ready.Store(true)
	return h
}

func (h *HealthChecker) SetReady(ready bool) {
	h.ready.Store(ready)
}

func (h *HealthChecker) IsReady() bool {
	return h.ready.Load()
}

// SetShuttingDown fails readiness so load balancers drain the instance.
func (h *HealthChecker) SetShuttingDown() {
	h.shuttingDown.Store(true)
}

type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

type DetailedHealthResponse struct {
	Status string            `json:"status"`
	Uptime string            `json:"uptime"`
	Checks map[string]string `json:"checks"`
}

// checks runs every readiness check. ok is false if any failed.
func (h *HealthChecker) checks(ctx context.Context) (checks map[string]string, status string, ok bool) {
	checks = make(map[string]string, 3)
	status = healthStatusOK
	ok = true

	checks["ready"] = healthStatusOK
	if !h.ready.Load() {
		checks["ready"] = healthStatusNotReady
		status, ok = healthStatusNotReady, false
	}

	checks["shutdown"] = healthStatusOK
	if h.shuttingDown.Load() {
		checks["shutdown"] = healthStatusShuttingDown
		status, ok = healthStatusShuttingDown, false
	}

	if h.db != nil {
		ctx, cancel := context.WithTimeout(ctx, pingTimeout)
		defer cancel()
		checks["database"] = healthStatusOK
		if err := h.db.Ping(ctx); err != nil {
			checks["database"] = healthStatusUnavailable
			if ok {
				status = healthStatusNotReady
			}
			ok = false
		}
	}
	return checks, status, ok
}

// Liveness answers /healthz. It only proves the process is serving.
func (h *HealthChecker) Liveness(c *gin.Context) {
	c.JSON(http.StatusOK, HealthResponse{Status: healthStatusOK})
}

// Readiness answers /readyz.
func (h *HealthChecker) Readiness(c *gin.Context) {
	checks, status, ok := h.checks(c.Request.Context())
	code := http.StatusOK
	if !ok {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, HealthResponse{Status: status, Checks: checks})
}

// Detailed answers /healthz/detailed with uptime and every check.
func (h *HealthChecker) Detailed(c *gin.Context) {
	checks, status, ok := h.checks(c.Request.Context())
	code := http.StatusOK
	if !ok {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, DetailedHealthResponse{
		Status: status,
		Uptime: time.Since(h.startTime).Truncate(time.Second).String(),
		Checks: checks,
	})
}

// Register mounts the probe endpoints.
func (h *HealthChecker) Register(r gin.IRoutes) {
	r.GET("/healthz", h.Liveness)
	r.GET("/readyz", h.Readiness)
	r.GET("/healthz/detailed", h.Detailed)
}
