// Package telemetry counts and times the calls the service makes to the
// hypervisor and exposes them in Prometheus format.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"torrentstore/internal/logging"
	"torrentstore/internal/vmutils"
)

const (
	KindXenAPI = "xenapi"
	KindPlugin = "plugin"
)

type Metrics struct {
	calls    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		calls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "torrentstore_remote_calls_total",
			Help: "Calls made to the hypervisor, by outcome.",
		}, []string{"kind", "name", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "torrentstore_remote_call_duration_seconds",
			Help: "Latency of calls made to the hypervisor.",
			// image downloads run for minutes
			Buckets: []float64{.01, .05, .25, 1, 5, 30, 120, 600, 1800},
		}, []string{"kind", "name"}),
	}
	reg.MustRegister(m.calls, m.duration)
	return m
}

func (m *Metrics) observe(kind, name string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.calls.WithLabelValues(kind, name, outcome).Inc()
	m.duration.WithLabelValues(kind, name).Observe(time.Since(start).Seconds())
}

// InstrumentSession records every call made through s. Results and errors
// pass through untouched.
func (m *Metrics) InstrumentSession(s vmutils.Session) vmutils.Session {
	return &instrumented{Session: s, m: m}
}

type instrumented struct {
	vmutils.Session
	m *Metrics
}

func (i *instrumented) CallXenAPI(ctx context.Context, method string, out any, args ...any) error {
	start := time.Now()
	err := i.Session.CallXenAPI(ctx, method, out, args...)
	i.m.observe(KindXenAPI, method, start, err)
	return err
}

func (i *instrumented) CallPluginSerialized(ctx context.Context, plugin, fn string, params map[string]any, out any) error {
	start := time.Now()
	err := i.Session.CallPluginSerialized(ctx, plugin, fn, params, out)
	i.m.observe(KindPlugin, plugin+"."+fn, start, err)
	return err
}

// Expose serves g on :port/metrics in the background. The caller owns
// shutdown of the returned server.
func Expose(port int, g prometheus.Gatherer) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(g, promhttp.HandlerOpts{}))
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", port),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.L().Error("metrics endpoint stopped", "addr", srv.Addr, "err", err)
		}
	}()
	return srv
}
