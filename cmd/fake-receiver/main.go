// fake-receiver is a stand-in relay target for exercising the worker's
// release and defer paths: it accepts message payloads on /relay and can
// be told to fail the first N requests.
package main

import (
	"io"
	"log"
	"net/http"
	"time"

	"github.com/austindbirch/harbor_mail/internal/config"
)

var (
	failFirstN    = 0
	responseDelay = time.Duration(0)
	reqCount      = 0
)

func main() {
	cfg := config.FromEnv().FakeReceiver
	failFirstN = cfg.FailFirstN
	responseDelay = time.Duration(cfg.ResponseDelayMS) * time.Millisecond

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) { _, _ = w.Write([]byte(`{"ok":true}`)) })
	mux.HandleFunc("/relay", handleRelay)

	srv := &http.Server{
		Addr:         cfg.Port,
		Handler:      mux,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	log.Printf("fake-receiver listening on %s", cfg.Port)
	log.Fatal(srv.ListenAndServe())
}

func handleRelay(w http.ResponseWriter, r *http.Request) {
	reqCount++
	n, _ := io.Copy(io.Discard, r.Body)
	defer r.Body.Close()

	if responseDelay > 0 {
		time.Sleep(responseDelay)
	}

	// Simulate flakiness: first N requests -> 500, so the worker defers
	if reqCount <= failFirstN {
		log.Printf("FAILING (%d/%d) %s bytes=%d", reqCount, failFirstN, r.URL.Path, n)
		http.Error(w, "temporary failure", http.StatusInternalServerError)
		return
	}

	log.Printf("fake-receiver OK %s bytes=%d content-type=%q", r.URL.Path, n, r.Header.Get("Content-Type"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`ok`))
}
