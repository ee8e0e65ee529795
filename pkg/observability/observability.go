package observability

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/frequent-batch-auction/internal/config"
)

// Provider bundles the logger, metrics, tracing and health components and
// serves the operational HTTP endpoints (/metrics, /health*) on one port.
type Provider struct {
	Logger  *Logger
	Metrics *MetricsProvider
	Tracing *TracingProvider
	Health  *HealthService

	opsServer *http.Server
}

// NewProvider wires up all observability components from configuration.
func NewProvider(cfg *config.Config) (*Provider, error) {
	logger := NewLogger(cfg.Observability)

	metrics, err := NewMetricsProvider(MetricsConfig{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: "1.0.0",
		Namespace:      "fba",
		Enabled:        cfg.Ops.MetricsEnabled,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics provider: %w", err)
	}

	tracing, err := NewTracingProvider(cfg.Observability)
	if err != nil {
		return nil, fmt.Errorf("failed to create tracing provider: %w", err)
	}

	health := NewHealthService(cfg.Observability.ServiceName, "1.0.0", logger)

	router := mux.NewRouter()
	health.RegisterRoutes(router)
	if handler := metrics.Handler(); handler != nil {
		router.Handle("/metrics", handler).Methods("GET")
	}

	return &Provider{
		Logger:  logger,
		Metrics: metrics,
		Tracing: tracing,
		Health:  health,
		opsServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Ops.Port),
			Handler:      router,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
	}, nil
}

// Start serves the operational endpoints in the background.
func (p *Provider) Start(ctx context.Context) {
	go func() {
		if err := p.opsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			p.Logger.Error(ctx, "Ops server failed", err)
		}
	}()

	p.Logger.Info(ctx, "Observability provider started", map[string]interface{}{
		"ops_addr": p.opsServer.Addr,
	})
}

// Stop shuts down the operational endpoints and flushes exporters.
func (p *Provider) Stop(ctx context.Context) error {
	var firstErr error

	if err := p.opsServer.Shutdown(ctx); err != nil {
		firstErr = err
	}
	if err := p.Tracing.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := p.Metrics.Shutdown(ctx); err != nil && firstErr == nil {
		firstErr = err
	}

	return firstErr
}
