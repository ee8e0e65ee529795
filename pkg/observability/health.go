package observability

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"runtime"
	"sync"
	"time"

	"github.com/gorilla/mux"
)

// HealthStatus represents the health status of a component
type HealthStatus string

const (
	HealthStatusHealthy   HealthStatus = "healthy"
	HealthStatusUnhealthy HealthStatus = "unhealthy"
	HealthStatusDegraded  HealthStatus = "degraded"
	HealthStatusUnknown   HealthStatus = "unknown"
)

// HealthCheck probes one component.
type HealthCheck func(ctx context.Context) HealthCheckResult

// HealthCheckResult is the outcome of a single probe.
type HealthCheckResult struct {
	Status  HealthStatus           `json:"status"`
	Message string                 `json:"message,omitempty"`
	Details map[string]interface{} `json:"details,omitempty"`
	Error   string                 `json:"error,omitempty"`
}

// HealthService runs registered checks and serves the probe endpoints on the
// ops mux. The checks are cheap in-process probes (listener state, book
// depth, batch freshness), so they run sequentially under one deadline.
type HealthService struct {
	mu        sync.RWMutex
	checks    map[string]HealthCheck
	timeout   time.Duration
	service   string
	version   string
	startTime time.Time
	logger    *Logger
}

// NewHealthService creates the health service.
func NewHealthService(service, version string, logger *Logger) *HealthService {
	return &HealthService{
		checks:    make(map[string]HealthCheck),
		timeout:   5 * time.Second,
		service:   service,
		version:   version,
		startTime: time.Now(),
		logger:    logger,
	}
}

// RegisterCheck registers a named probe.
func (hs *HealthService) RegisterCheck(name string, check HealthCheck) {
	hs.mu.Lock()
	defer hs.mu.Unlock()
	hs.checks[name] = check
}

// RunChecks executes every registered probe and reduces the results to an
// overall status: any unhealthy probe wins, then degraded, then healthy.
// With nothing registered the status is unknown.
func (hs *HealthService) RunChecks(ctx context.Context) (HealthStatus, map[string]HealthCheckResult) {
	hs.mu.RLock()
	checks := make(map[string]HealthCheck, len(hs.checks))
	for name, check := range hs.checks {
		checks[name] = check
	}
	hs.mu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, hs.timeout)
	defer cancel()

	overall := HealthStatusUnknown
	results := make(map[string]HealthCheckResult, len(checks))
	for name, check := range checks {
		result := hs.runCheck(ctx, check)
		results[name] = result

		switch {
		case result.Status == HealthStatusUnhealthy:
			overall = HealthStatusUnhealthy
		case result.Status == HealthStatusDegraded && overall != HealthStatusUnhealthy:
			overall = HealthStatusDegraded
		case overall == HealthStatusUnknown:
			overall = result.Status
		}
	}

	return overall, results
}

// runCheck shields the loop from a panicking or expired probe.
func (hs *HealthService) runCheck(ctx context.Context, check HealthCheck) (result HealthCheckResult) {
	defer func() {
		if r := recover(); r != nil {
			hs.logger.Error(ctx, "Health check panicked", fmt.Errorf("panic: %v", r))
			result = HealthCheckResult{
				Status:  HealthStatusUnhealthy,
				Message: "Health check panicked",
			}
		}
	}()

	if err := ctx.Err(); err != nil {
		return HealthCheckResult{
			Status:  HealthStatusUnhealthy,
			Message: "Health check timed out",
			Error:   err.Error(),
		}
	}
	return check(ctx)
}

// RegisterRoutes mounts the probe endpoints.
func (hs *HealthService) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", hs.handleHealth).Methods("GET")
	router.HandleFunc("/health/live", hs.handleLive).Methods("GET")
	router.HandleFunc("/health/ready", hs.handleReady).Methods("GET")
}

// healthResponse is the /health payload.
type healthResponse struct {
	Status     HealthStatus                 `json:"status"`
	Service    string                       `json:"service"`
	Version    string                       `json:"version"`
	Uptime     string                       `json:"uptime"`
	Goroutines int                          `json:"goroutines"`
	Timestamp  time.Time                    `json:"timestamp"`
	Checks     map[string]HealthCheckResult `json:"checks,omitempty"`
}

func (hs *HealthService) handleHealth(w http.ResponseWriter, r *http.Request) {
	status, results := hs.RunChecks(r.Context())

	hs.writeJSON(w, statusCode(status), healthResponse{
		Status:     status,
		Service:    hs.service,
		Version:    hs.version,
		Uptime:     time.Since(hs.startTime).String(),
		Goroutines: runtime.NumGoroutine(),
		Timestamp:  time.Now(),
		Checks:     results,
	})
}

func (hs *HealthService) handleLive(w http.ResponseWriter, r *http.Request) {
	hs.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "alive",
		"service":   hs.service,
		"timestamp": time.Now(),
	})
}

func (hs *HealthService) handleReady(w http.ResponseWriter, r *http.Request) {
	status, _ := hs.RunChecks(r.Context())

	code := http.StatusOK
	if status != HealthStatusHealthy {
		code = http.StatusServiceUnavailable
	}
	hs.writeJSON(w, code, map[string]interface{}{
		"status":    status,
		"service":   hs.service,
		"ready":     status == HealthStatusHealthy,
		"timestamp": time.Now(),
	})
}

func (hs *HealthService) writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

func statusCode(status HealthStatus) int {
	if status == HealthStatusUnhealthy {
		return http.StatusServiceUnavailable
	}
	return http.StatusOK
}

// Engine health checks

// ListenerHealthCheck reports whether the order-entry listener is accepting
// connections.
func ListenerHealthCheck(accepting func() bool) HealthCheck {
	return func(ctx context.Context) HealthCheckResult {
		if !accepting() {
			return HealthCheckResult{
				Status:  HealthStatusUnhealthy,
				Message: "Listener is not accepting connections",
			}
		}
		return HealthCheckResult{
			Status:  HealthStatusHealthy,
			Message: "Listener accepting connections",
		}
	}
}

// BatchFreshnessCheck reports unhealthy when no batch has completed within
// staleAfter, and degraded before the first batch has run. A stalled tick
// loop is the first thing this catches.
func BatchFreshnessCheck(lastBatch func() time.Time, staleAfter time.Duration) HealthCheck {
	return func(ctx context.Context) HealthCheckResult {
		last := lastBatch()
		if last.IsZero() {
			return HealthCheckResult{
				Status:  HealthStatusDegraded,
				Message: "No batch has run yet",
			}
		}

		age := time.Since(last)
		if age > staleAfter {
			return HealthCheckResult{
				Status:  HealthStatusUnhealthy,
				Message: "Batch loop is stale",
				Details: map[string]interface{}{
					"last_batch_age": age.String(),
					"stale_after":    staleAfter.String(),
				},
			}
		}
		return HealthCheckResult{
			Status:  HealthStatusHealthy,
			Message: "Batch loop is ticking",
			Details: map[string]interface{}{
				"last_batch_age": age.String(),
			},
		}
	}
}

// BookHealthCheck reports book depth and resting volume so operators can see
// the state of both sides at a glance.
func BookHealthCheck(depth func() (bids, asks int), restingQty func() (bidQty, askQty uint64)) HealthCheck {
	return func(ctx context.Context) HealthCheckResult {
		bids, asks := depth()
		bidQty, askQty := restingQty()
		return HealthCheckResult{
			Status:  HealthStatusHealthy,
			Message: "Order book reachable",
			Details: map[string]interface{}{
				"resting_bids":    bids,
				"resting_asks":    asks,
				"resting_bid_qty": bidQty,
				"resting_ask_qty": askQty,
			},
		}
	}
}
