package cli

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/harun/doctalk/internal/observability"
	"github.com/rs/zerolog"
)

// metricsServer exposes the Prometheus registry while a chat runs.
type metricsServer struct {
	srv    *http.Server
	addr   string
	logger zerolog.Logger
}

func startMetricsServer(addr string, logger zerolog.Logger) (*metricsServer, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.MetricsHandler())

	m := &metricsServer{
		srv:    &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		addr:   ln.Addr().String(),
		logger: logger,
	}
	go func() {
		if err := m.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			m.logger.Error().Err(err).Msg("Metrics server stopped")
		}
	}()
	m.logger.Info().Str("addr", m.addr).Msg("Metrics server listening")
	return m, nil
}

func (m *metricsServer) Addr() string {
	return m.addr
}

func (m *metricsServer) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return m.srv.Shutdown(ctx)
}
