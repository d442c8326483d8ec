// Package monitoring wires the engine's OpenTelemetry instruments to a
// Prometheus exporter. When disabled the service hands out a no-op meter,
// so call sites instrument unconditionally.
package monitoring

import (
	"context"
	"fmt"
	"net/http"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/roundslab/rounds/pkg/config"
	"github.com/roundslab/rounds/pkg/logger"
)

const meterName = "rounds"

// Service owns the meter provider and the Prometheus registry backing it.
type Service struct {
	meter       metric.Meter
	provider    *sdkmetric.MeterProvider
	registry    *prom.Registry
	initialized bool
}

// NewService builds the monitoring service from configuration. A disabled
// config yields a working service whose meter discards everything.
func NewService(ctx context.Context, cfg *config.MonitoringConfig) (*Service, error) {
	log := logger.FromContext(ctx)
	if cfg == nil || !cfg.Enabled {
		log.Debug("monitoring disabled, using no-op meter")
		return &Service{meter: noop.NewMeterProvider().Meter(meterName)}, nil
	}
	registry := prom.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to initialize prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	service := &Service{
		meter:       provider.Meter(meterName),
		provider:    provider,
		registry:    registry,
		initialized: true,
	}
	log.Info("monitoring service initialized", "addr", cfg.Addr, "path", cfg.Path)
	return service, nil
}

// Meter returns the meter for engine instrumentation.
func (s *Service) Meter() metric.Meter {
	return s.meter
}

// IsInitialized reports whether a real exporter is behind the meter.
func (s *Service) IsInitialized() bool {
	return s.initialized
}

// ExporterHandler returns the scrape handler, or a 404 handler when
// monitoring is disabled.
func (s *Service) ExporterHandler() http.Handler {
	if !s.initialized {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{})
}

// Shutdown flushes and stops the meter provider.
func (s *Service) Shutdown(ctx context.Context) error {
	if s.provider == nil {
		return nil
	}
	return s.provider.Shutdown(ctx)
}
