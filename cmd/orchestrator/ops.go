package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/epicwp/translation-orchestrator/internal/store"
	"github.com/epicwp/translation-orchestrator/pkg/log"
	"github.com/epicwp/translation-orchestrator/pkg/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const gracefulShutdownTimeout = 5 * time.Second

// opsServer exposes /metrics and /healthz.
type opsServer struct {
	httpServer *http.Server
	listener   net.Listener
}

func newOpsServer(address, logLevel string, s store.Store) (*opsServer, error) {
	if err := prometheus.Register(metrics.NewJobStatsCollector(s)); err != nil {
		return nil, err
	}
	requests := metrics.NewMiddleware("ops")
	if err := requests.Register(prometheus.DefaultRegisterer); err != nil {
		return nil, err
	}

	router := chi.NewRouter()
	router.Use(
		middleware.RequestID,
		log.ConditionalLogger(logLevel, zap.L(), "ops"),
		requests.Handler,
	)
	router.Handle("/metrics", promhttp.Handler())
	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := s.Ping(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	if address == "" {
		address = "localhost:0"
	}
	listener, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}

	return &opsServer{
		httpServer: &http.Server{Handler: router, ReadHeaderTimeout: 10 * time.Second},
		listener:   listener,
	}, nil
}

func (o *opsServer) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		ctxTimeout, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
		defer cancel()

		o.httpServer.SetKeepAlivesEnabled(false)
		_ = o.httpServer.Shutdown(ctxTimeout)
		zap.S().Named("ops_server").Info("ops server terminated")
	}()

	zap.S().Named("ops_server").Infof("serving ops endpoint: %s", o.listener.Addr())
	if err := o.httpServer.Serve(o.listener); err != nil && !errors.Is(err, http.ErrServerClosed) && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}
