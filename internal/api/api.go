// Package api is the HTTP boundary of the delivery queue: the lease
// protocol (get/release/defer), message body streaming, zone statistics,
// and the diagnostic auth probe. Handlers validate preconditions in a
// fixed order (readiness, instance fencing, zone existence) and otherwise
// stay a thin pass-through to the queue engine.
package api

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/austindbirch/harbor_mail/internal/codec"
	"github.com/austindbirch/harbor_mail/internal/config"
	"github.com/austindbirch/harbor_mail/internal/delivery"
	"github.com/austindbirch/harbor_mail/internal/logging"
	"github.com/austindbirch/harbor_mail/internal/metrics"
	"github.com/austindbirch/harbor_mail/internal/queue"
	"github.com/austindbirch/harbor_mail/internal/tracing"
)

// Timestamps in JSON bodies use a fixed, sortable form.
const timeFormat = time.RFC3339

// Wire-visible rejection texts.
const (
	msgNotReady      = "Queue not yet initialized"
	msgClosing       = "Service is shutting down"
	msgStaleInstance = "Selected server instance is not available"
	msgAuthFailed    = "Authentication failed"
)

// attachment pairs the engine with its message store; both arrive together
// when the queue finishes initializing.
type attachment struct {
	engine queue.Engine
	store  queue.MessageStore
}

// Gateway holds the process-wide state every handler reads: the attached
// queue engine, the message store, and the closing flag. It is built once
// at startup and injected into the mux, so tests can drive it without a
// network listener.
type Gateway struct {
	cfg    config.API
	logger *logging.Logger

	// Written once by Attach/Close, read on every request.
	att     atomic.Pointer[attachment]
	closing atomic.Bool
}

// New returns a Gateway with no queue attached; every endpoint except the
// auth probe answers 500 until Attach is called.
func New(cfg config.API) *Gateway {
	return &Gateway{
		cfg:    cfg,
		logger: logging.New("harbormail-api"),
	}
}

// Attach hands the gateway its queue engine and message store, flipping
// the server to ready.
func (g *Gateway) Attach(e queue.Engine, s queue.MessageStore) {
	g.att.Store(&attachment{engine: e, store: s})
}

// Close flips the gateway to its closing state; in-flight requests finish,
// new ones get a shutdown rejection instead of "not yet initialized".
func (g *Gateway) Close() {
	g.closing.Store(true)
}

// Ready reports whether a queue engine is attached.
func (g *Gateway) Ready() bool {
	return g.att.Load() != nil
}

// Handler builds the route table.
func (g *Gateway) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /test-auth", g.handleTestAuth)
	mux.HandleFunc("GET /queue/{zone}", g.handleQueueStats)
	mux.HandleFunc("GET /fetch/{instance}/{client}/{id}", g.handleFetch)
	mux.HandleFunc("GET /get/{instance}/{client}/{zone}", g.handleAcquire)
	mux.HandleFunc("POST /release-delivery/{instance}/{client}/{zone}", g.handleRelease)
	mux.HandleFunc("POST /defer-delivery/{instance}/{client}/{zone}", g.handleDefer)
	return mux
}

// ready returns the current attachment, or writes the not-ready rejection
// and returns nil. Every endpoint except the auth probe goes through here
// first.
func (g *Gateway) ready(w http.ResponseWriter) *attachment {
	att := g.att.Load()
	if att != nil {
		return att
	}
	if g.closing.Load() {
		writeError(w, http.StatusInternalServerError, msgClosing)
		return nil
	}
	writeError(w, http.StatusInternalServerError, msgNotReady)
	return nil
}

// fence rejects callers whose instance identifier predates this process
// incarnation. Applied to acquire and fetch only: completion reports must
// be honored even from workers holding pre-restart leases.
func (g *Gateway) fence(w http.ResponseWriter, att *attachment, instance string) bool {
	if instance == att.engine.InstanceID() {
		return true
	}
	metrics.RecordStaleInstance()
	writeError(w, http.StatusGone, msgStaleInstance)
	return false
}

// zoneKnown rejects operations on zones the engine has never heard of.
func (g *Gateway) zoneKnown(w http.ResponseWriter, r *http.Request, att *attachment, zone string) bool {
	exists, err := att.engine.ZoneExists(r.Context(), zone)
	if err != nil {
		g.logger.WithContext(r.Context()).WithZone(zone).WithError(err).Error("zone lookup failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return false
	}
	if !exists {
		writeError(w, http.StatusNotFound, queue.ErrUnknownZone.Error())
		return false
	}
	return true
}

// handleTestAuth is the diagnostic probe: fixed basic credentials, no
// queue involvement, usable before the engine attaches.
func (g *Gateway) handleTestAuth(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC().Format(timeFormat)
	user, pass, ok := r.BasicAuth()
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(g.cfg.User)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(g.cfg.Pass)) == 1
	if !ok || !userOK || !passOK {
		w.Header().Set("WWW-Authenticate", `Basic realm="harbormail"`)
		writeJSON(w, http.StatusUnauthorized, map[string]any{
			"time":  now,
			"error": msgAuthFailed,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"time": now,
		"user": user,
	})
}

// handleQueueStats serves a read-only counter snapshot for one zone. Any
// zone name is accepted; unseen zones report zeros and an empty domain
// list, which is indistinguishable here from "exists but idle".
func (g *Gateway) handleQueueStats(w http.ResponseWriter, r *http.Request) {
	att := g.ready(w)
	if att == nil {
		return
	}
	zone := r.PathValue("zone")

	st, err := att.engine.ZoneStats(r.Context(), zone)
	if err != nil {
		g.logger.WithContext(r.Context()).WithZone(zone).WithError(err).Error("zone stats failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	domains := st.Domains
	if domains == nil {
		domains = []queue.DomainStats{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"time":      time.Now().UTC().Format(timeFormat),
		"started":   st.Started.UTC().Format(timeFormat),
		"processed": st.Processed,
		"queued":    st.Queued,
		"deferred":  st.Deferred,
		"domains":   domains,
	})
}

// handleFetch streams the raw bytes of a stored message body. Existence is
// checked before the stream opens; the body is forwarded as-is, unbuffered,
// with a message content type rather than JSON.
func (g *Gateway) handleFetch(w http.ResponseWriter, r *http.Request) {
	att := g.ready(w)
	if att == nil {
		return
	}
	if !g.fence(w, att, r.PathValue("instance")) {
		return
	}
	id := r.PathValue("id")

	ctx, span := tracing.StartSpan(r.Context(), "api.fetch", attribute.String("message_id", id))
	defer span.End()

	exists, err := att.store.Exists(ctx, id)
	if err != nil {
		g.logger.WithContext(ctx).WithMessage(id).WithError(err).Error("message existence check failed")
		metrics.RecordFetch("error", 0)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !exists {
		metrics.RecordFetch("missing", 0)
		writeError(w, http.StatusNotFound, queue.ErrNoMessage.Error())
		return
	}

	src, err := att.store.Open(ctx, id)
	if err != nil {
		g.logger.WithContext(ctx).WithMessage(id).WithError(err).Error("message open failed")
		metrics.RecordFetch("error", 0)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	defer src.Close()

	w.Header().Set("Content-Type", "message/rfc822")
	n, err := io.Copy(w, src)
	if err != nil {
		// Almost always the worker going away mid-stream; closing src is
		// all the cleanup there is.
		g.logger.WithContext(ctx).WithMessage(id).WithError(err).Warn("message stream aborted")
		metrics.RecordFetch("error", n)
		return
	}
	metrics.RecordFetch("ok", n)
}

// handleAcquire leases the next eligible job in the zone to the calling
// client. "No job available" is a normal response, not an error.
func (g *Gateway) handleAcquire(w http.ResponseWriter, r *http.Request) {
	att := g.ready(w)
	if att == nil {
		return
	}
	if !g.fence(w, att, r.PathValue("instance")) {
		return
	}
	zone := r.PathValue("zone")
	client := r.PathValue("client")
	if !g.zoneKnown(w, r, att, zone) {
		return
	}

	rec, err := att.engine.AcquireNext(r.Context(), zone, client)
	if err != nil {
		g.logger.WithContext(r.Context()).WithZone(zone).WithClient(client).WithError(err).Error("acquire failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if rec == nil {
		metrics.RecordAcquire(zone, false)
		writeJSON(w, http.StatusOK, map[string]any{"id": false})
		return
	}

	metrics.RecordAcquire(zone, true)
	writeJSON(w, http.StatusOK, codec.EncodeFields(rec))
}

// releaseBody is the payload workers post back when resolving a lease.
// ttl only matters for defer and is coerced, never validated; if the
// engine dislikes the number, that is the engine's error to surface.
type releaseBody struct {
	Delivery delivery.Record `json:"delivery"`
	TTL      any             `json:"ttl"`
}

// handleRelease finalizes a leased job as delivered (or definitively
// bounced; the distinction rides inside the record). No instance fencing:
// losing a completion ack after a restart would cause duplicate sends,
// which is worse than honoring a late one.
func (g *Gateway) handleRelease(w http.ResponseWriter, r *http.Request) {
	g.resolve(w, r, false)
}

// handleDefer postpones a leased job for the posted ttl seconds. Same
// fencing exemption as release.
func (g *Gateway) handleDefer(w http.ResponseWriter, r *http.Request) {
	g.resolve(w, r, true)
}

func (g *Gateway) resolve(w http.ResponseWriter, r *http.Request, deferring bool) {
	att := g.ready(w)
	if att == nil {
		return
	}
	zone := r.PathValue("zone")
	client := r.PathValue("client")
	if !g.zoneKnown(w, r, att, zone) {
		return
	}

	var body releaseBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusInternalServerError, "Invalid request body: "+err.Error())
		return
	}
	rec, err := codec.DecodeFields(body.Delivery)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if deferring {
		ttl := time.Duration(coerceSeconds(body.TTL) * float64(time.Second))
		err = att.engine.Defer(r.Context(), zone, rec, ttl)
	} else {
		err = att.engine.Release(r.Context(), zone, rec)
	}
	if err != nil {
		g.logger.WithContext(r.Context()).
			WithZone(zone).WithClient(client).
			WithMessage(rec.ID()).WithSeq(rec.Seq()).
			WithError(err).Error("lease resolution failed")
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	if deferring {
		metrics.RecordResolution("deferred", zone)
	} else {
		metrics.RecordResolution("released", zone)
	}
	writeJSON(w, http.StatusAccepted, rec.Ack())
}

// coerceSeconds turns whatever arrived in the ttl field into a number.
// Unparseable input becomes zero and the engine gets to complain.
func coerceSeconds(v any) float64 {
	switch t := v.(type) {
	case float64:
		return t
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case json.Number:
		f, _ := t.Float64()
		return f
	default:
		return 0
	}
}

// writeError writes the structured error body every rejection uses.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{"error": message})
}

// writeJSON writes a JSON response with the given status and data.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil && !errors.Is(err, http.ErrBodyNotAllowed) {
		// Headers are gone; nothing left to do but note it.
		logging.Plain().WithError(err).Error("encode response")
	}
}
