package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"bookmylawn/internal/config"
	"bookmylawn/internal/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// StartMetrics registers the collectors and, when enabled, serves /metrics
// on the monitoring port until ctx ends.
func StartMetrics(ctx context.Context, cfg config.MonitoringConfig, logger *zerolog.Logger) {
	metrics.Register()
	if !cfg.PrometheusEnabled {
		return
	}

	port := cfg.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go serveMetrics(ctx, port, logger)
}

func serveMetrics(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
