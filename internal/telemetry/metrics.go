// Package telemetry exposes Prometheus metrics for the EmySound client.
package telemetry

import (
	"context"
	"errors"
	"net/http"
	"path"
	"strconv"
	"time"

	"emysound/pkg/emysound"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// Watch outcomes recorded by ObserveFile.
const (
	FileInserted  = "inserted"
	FileDuplicate = "duplicate"
	FileSkipped   = "skipped"
	FileFailed    = "failed"
)

// Metrics holds the client's collectors on a private registry, so several
// instances (and tests) never collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	watchFiles      *prometheus.CounterVec
}

// New creates and registers the client metrics.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emysound_client_requests_total",
				Help: "Total number of requests sent to the EmySound service",
			},
			[]string{"endpoint", "status"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "emysound_client_request_duration_seconds",
				Help:    "Duration of requests to the EmySound service in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"endpoint"},
		),
		watchFiles: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "emysound_watch_files_total",
				Help: "Audio files seen by watch mode, by outcome",
			},
			[]string{"result"},
		),
	}
}

// Handler returns an HTTP handler for exposing metrics.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Transport wraps next so every request is counted and timed. Requests that
// fail before a response arrives are counted with status "error".
func (m *Metrics) Transport(next emysound.HTTPDoer) emysound.HTTPDoer {
	return &instrumentedDoer{next: next, metrics: m}
}

// ObserveFile counts one watch mode outcome.
func (m *Metrics) ObserveFile(result string) {
	m.watchFiles.WithLabelValues(result).Inc()
}

type instrumentedDoer struct {
	next    emysound.HTTPDoer
	metrics *Metrics
}

func (d *instrumentedDoer) Do(req *http.Request) (*http.Response, error) {
	endpoint := path.Base(req.URL.Path)
	start := time.Now()

	resp, err := d.next.Do(req)

	d.metrics.requestDuration.WithLabelValues(endpoint).Observe(time.Since(start).Seconds())
	status := "error"
	if err == nil {
		status = strconv.Itoa(resp.StatusCode)
	}
	d.metrics.requestsTotal.WithLabelValues(endpoint, status).Inc()

	return resp, err
}

// Serve exposes /metrics on addr until ctx is done.
func (m *Metrics) Serve(ctx context.Context, addr string, logger logrus.FieldLogger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.WithField("addr", addr).Info("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}
