// Reference delivery worker: pulls leased jobs from the apiserver, relays
// the raw message bytes to an HTTP relay endpoint, and resolves each lease
// with release or defer. Real deployments run many of these concurrently;
// the protocol tolerates that, and redelivery after a lease timeout means
// every step here has to be idempotent.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/austindbirch/harbor_mail/internal/codec"
	"github.com/austindbirch/harbor_mail/internal/config"
	"github.com/austindbirch/harbor_mail/internal/delivery"
	"github.com/austindbirch/harbor_mail/internal/logging"
)

var (
	pullsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "harbormail_worker_pulls_total",
		Help: "Pull attempts by result (leased, empty, error).",
	}, []string{"result"})

	resolutionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "harbormail_worker_resolutions_total",
		Help: "Lease resolutions by outcome (released, deferred).",
	}, []string{"outcome"})
)

type worker struct {
	cfg      config.Worker
	instance string
	client   *http.Client
	logger   *logging.Logger
}

func main() {
	cfg := config.FromEnv()
	logger := logging.New("harbormail-worker")

	instance := os.Getenv("WORKER_INSTANCE_ID")
	if instance == "" {
		logger.Plain().Fatal("WORKER_INSTANCE_ID is required; take it from the apiserver startup log")
	}

	// Prom metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(pullsTotal, resolutionsTotal)

	// HTTP health/metrics
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"ok":true}`))
	})
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: cfg.Worker.HTTPPort, Handler: mux}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("worker HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("worker HTTP server failed")
		}
	}()

	w := &worker{
		cfg:      cfg.Worker,
		instance: instance,
		client:   &http.Client{Timeout: 60 * time.Second},
		logger:   logger,
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGTERM, syscall.SIGINT)

	logger.Plain().
		WithZone(cfg.Worker.Zone).
		WithClient(cfg.Worker.ClientID).
		Info("worker started")

	for {
		select {
		case <-stop:
			logger.Plain().Info("Shutting down worker")
			_ = httpSrv.Close()
			return
		default:
		}

		worked, err := w.pullOne()
		if err != nil {
			pullsTotal.WithLabelValues("error").Inc()
			logger.Plain().WithError(err).Error("pull failed")
			time.Sleep(cfg.Worker.PollInterval)
			continue
		}
		if !worked {
			pullsTotal.WithLabelValues("empty").Inc()
			time.Sleep(cfg.Worker.PollInterval)
		}
	}
}

// pullOne acquires at most one delivery and resolves it. Returns false
// when the zone had nothing eligible.
func (w *worker) pullOne() (bool, error) {
	url := fmt.Sprintf("%s/get/%s/%s/%s", w.cfg.APIBase, w.instance, w.cfg.ClientID, w.cfg.Zone)
	resp, err := w.client.Get(url)
	if err != nil {
		return false, fmt.Errorf("acquire request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone {
		// Our instance identifier predates the current server incarnation.
		// Nothing we leased is trustworthy anymore; bail and let the
		// supervisor restart us with a fresh one.
		w.logger.Plain().Fatal("server instance changed, restart with a fresh WORKER_INSTANCE_ID")
	}
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("acquire: unexpected status %s", resp.Status)
	}

	var rec delivery.Record
	if err := json.NewDecoder(resp.Body).Decode(&rec); err != nil {
		return false, fmt.Errorf("acquire: bad response body: %w", err)
	}
	if id, ok := rec[delivery.FieldID].(bool); ok && !id {
		return false, nil
	}

	rec, err = codec.DecodeFields(rec)
	if err != nil {
		return false, fmt.Errorf("acquire: %w", err)
	}
	pullsTotal.WithLabelValues("leased").Inc()

	log := w.logger.Plain().WithZone(w.cfg.Zone).WithClient(w.cfg.ClientID).WithMessage(rec.ID()).WithSeq(rec.Seq())

	ok, relayErr := w.relay(rec.ID())
	if ok {
		if err := w.resolve("release-delivery", rec, 0); err != nil {
			return true, err
		}
		resolutionsTotal.WithLabelValues("released").Inc()
		log.Info("delivery released")
		return true, nil
	}

	ttl := w.deferTTL(rec)
	if err := w.resolve("defer-delivery", rec, ttl); err != nil {
		return true, err
	}
	resolutionsTotal.WithLabelValues("deferred").Inc()
	log.WithField("ttl", ttl.String()).WithError(relayErr).Info("delivery deferred")
	return true, nil
}

// relay streams the message body from the apiserver into the relay
// endpoint. A 2xx from the relay counts as delivered.
func (w *worker) relay(id string) (bool, error) {
	url := fmt.Sprintf("%s/fetch/%s/%s/%s", w.cfg.APIBase, w.instance, w.cfg.ClientID, id)
	resp, err := w.client.Get(url)
	if err != nil {
		return false, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("fetch: unexpected status %s", resp.Status)
	}

	req, err := http.NewRequest(http.MethodPost, w.cfg.RelayURL, resp.Body)
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "message/rfc822")
	relayResp, err := w.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("relay: %w", err)
	}
	defer relayResp.Body.Close()
	_, _ = io.Copy(io.Discard, relayResp.Body)

	return relayResp.StatusCode >= 200 && relayResp.StatusCode < 300, nil
}

// resolve posts the lease resolution back. The record goes through the
// same field encoding the server used on the way out.
func (w *worker) resolve(op string, rec delivery.Record, ttl time.Duration) error {
	body := map[string]any{"delivery": codec.EncodeFields(rec)}
	if ttl > 0 {
		body["ttl"] = ttl.Seconds()
	}
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	url := fmt.Sprintf("%s/%s/%s/%s/%s", w.cfg.APIBase, op, w.instance, w.cfg.ClientID, w.cfg.Zone)
	resp, err := w.client.Post(url, "application/json", bytes.NewReader(b))
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusAccepted {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s: status %s: %s", op, resp.Status, msg)
	}
	return nil
}

// deferTTL picks the retry delay for a failed attempt from the configured
// schedule. seq is 1-based; attempts past the end of the schedule keep
// its last entry.
func (w *worker) deferTTL(rec delivery.Record) time.Duration {
	idx := 0
	if seq, err := strconv.Atoi(rec.Seq()); err == nil {
		idx = seq - 1
	}
	if idx < 0 {
		idx = 0
	}
	if idx >= len(w.cfg.DeferSchedule) {
		idx = len(w.cfg.DeferSchedule) - 1
	}
	return w.cfg.DeferSchedule[idx]
}
