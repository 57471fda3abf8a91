package observability

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/tphakala/interpro-loader/internal/logger"
	metricspkg "github.com/tphakala/interpro-loader/internal/observability/metrics"
)

// Endpoint serves /metrics for scrapers while a run is in progress.
type Endpoint struct {
	server        *http.Server
	listenAddress string
	metrics       *Metrics
	log           logger.Logger

	mu   sync.Mutex
	addr net.Addr
}

// NewEndpoint creates an endpoint for listenAddress. It does not listen
// until Start is called.
func NewEndpoint(listenAddress string, metrics *Metrics, log logger.Logger) *Endpoint {
	if log == nil {
		log = logger.NewDiscardLogger()
	}
	return &Endpoint{
		listenAddress: listenAddress,
		metrics:       metrics,
		log:           log.Module("telemetry"),
	}
}

// Start binds the listen address and serves in the background until ctx
// is cancelled. The returned wait function blocks until the server has
// shut down.
func (e *Endpoint) Start(ctx context.Context) (wait func(), err error) {
	mux := http.NewServeMux()
	e.metrics.RegisterHandlers(mux)

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", e.listenAddress)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.addr = ln.Addr()
	e.mu.Unlock()

	e.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: metricspkg.ShutdownTimeout,
	}

	var wg sync.WaitGroup
	wg.Go(func() {
		e.log.Info("metrics endpoint starting", logger.String("address", ln.Addr().String()))
		if err := e.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.log.Error("metrics HTTP server error", logger.Error(err))
		}
	})
	wg.Go(func() {
		e.gracefulShutdown(ctx)
	})

	return wg.Wait, nil
}

// gracefulShutdown waits for ctx and shuts down the server.
func (e *Endpoint) gracefulShutdown(ctx context.Context) {
	<-ctx.Done()
	e.log.Info("stopping metrics endpoint")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), metricspkg.ShutdownTimeout)
	defer cancel()
	if err := e.server.Shutdown(shutdownCtx); err != nil {
		e.log.Error("metrics server shutdown error", logger.Error(err))
	}
}

// Addr returns the bound address once Start has succeeded.
func (e *Endpoint) Addr() net.Addr {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addr
}

// GetMetrics returns the Metrics instance associated with this Endpoint.
func (e *Endpoint) GetMetrics() *Metrics {
	return e.metrics
}
