package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nsqio/go-nsq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/austindbirch/harbor_mail/internal/api"
	"github.com/austindbirch/harbor_mail/internal/config"
	"github.com/austindbirch/harbor_mail/internal/db"
	"github.com/austindbirch/harbor_mail/internal/health"
	"github.com/austindbirch/harbor_mail/internal/logging"
	"github.com/austindbirch/harbor_mail/internal/metrics"
	"github.com/austindbirch/harbor_mail/internal/queue"
	"github.com/austindbirch/harbor_mail/internal/tracing"
)

func main() {
	cfg := config.FromEnv()
	ctx := context.Background()

	logger := logging.New("harbormail-apiserver")

	// Initialize OpenTelemetry tracing
	shutdown, err := tracing.InitTracing(ctx, "harbormail-apiserver")
	if err != nil {
		logger.Plain().WithError(err).Fatal("Failed to initialize tracing")
	}
	defer shutdown()

	// DB connect
	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		logger.Plain().WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()

	// NSQ producer for delivery outcome events
	var prod *nsq.Producer
	if cfg.NSQ.PublishEvents {
		prod, err = nsq.NewProducer(cfg.NSQ.NsqdTCPAddr, nsq.NewConfig())
		if err != nil {
			logger.Plain().WithError(err).Fatal("nsq producer creation failed")
		}
		defer prod.Stop()
	}

	// Prom metrics
	reg := prometheus.NewRegistry()
	metrics.MustRegister(reg)

	// Gateway starts unattached; the probe works, everything else answers
	// not-ready until the engine is in place.
	gw := api.New(cfg.API)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.HTTPHandler(pool, gw.Ready))
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	mux.Handle("/", gw.Handler())

	srv := api.NewServer(cfg.ListenAddr(), mux, cfg.API.ReadTimeout, cfg.API.WriteTimeout)
	if err := srv.Start(); err != nil {
		logger.Plain().WithError(err).Fatal("api server bind failed")
	}

	// Attach the queue engine and message store; this flips readiness.
	store, err := queue.NewFSStore(cfg.Store.Dir)
	if err != nil {
		logger.Plain().WithError(err).Fatal("spool dir init failed")
	}
	engine := queue.NewPGQueue(pool, prod, cfg.NSQ.OutcomesTopic)
	gw.Attach(engine, store)
	logger.Plain().WithField("instance", engine.InstanceID()).Info("queue attached, serving")

	// Graceful stop
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)
	<-stop

	logger.Plain().Info("Shutting down apiserver")
	gw.Close()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Plain().WithError(err).Error("shutdown did not drain cleanly")
	}
	logger.Plain().Info("apiserver stopped")
}
