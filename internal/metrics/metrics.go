// Package metrics exposes prometheus counters for deployment passes, updates and triggers.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

const namespace = "autodeploy"

var (
	// Passes counts orchestration passes. Labels: status (success, error)
	Passes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "passes_total",
		Help:      "Total orchestration passes",
	}, []string{"status"})

	// PassDuration measures a full orchestration pass.
	PassDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "pass_duration_seconds",
		Help:      "Duration of an orchestration pass in seconds",
		Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
	})

	// Payloads counts processed payloads by outcome.
	// Labels: action (install, update, repair, none, declined, error)
	Payloads = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "payloads_total",
		Help:      "Total payloads processed by outcome",
	}, []string{"action"})

	// Rollbacks counts staged updates that were rolled back.
	Rollbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stage",
		Name:      "rollbacks_total",
		Help:      "Total staged updates rolled back",
	})

	// DownloadedBytes counts bytes written by the staged executor.
	DownloadedBytes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "stage",
		Name:      "downloaded_bytes_total",
		Help:      "Total bytes of artifacts, dependencies and assets written",
	})

	// Triggers counts monitor firings. Labels: kind (event, timer), outcome (processed, suppressed, error)
	Triggers = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "monitor",
		Name:      "triggers_total",
		Help:      "Total monitor triggers",
	}, []string{"kind", "outcome"})
)

// Server serves /metrics.
type Server struct {
	srv      *http.Server
	listener net.Listener
}

// Listen binds addr and starts serving /metrics in the background.
func Listen(addr string) (*Server, error) {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(prometheus.DefaultGatherer, promhttp.HandlerOpts{EnableOpenMetrics: true}))

	s := &Server{
		srv:      &http.Server{Handler: mux, ReadHeaderTimeout: 10 * time.Second},
		listener: ln,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorf("metrics server stopped: %v", err)
		}
	}()
	log.Infof("serving metrics on %s/metrics", ln.Addr())
	return s, nil
}

// Addr returns the bound address.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
