package delivery

import "time"

const (
	OutcomeReleased = "delivery.released"
	OutcomeDeferred = "delivery.deferred"
)

// Outcome is the event envelope published to the outcomes topic whenever a
// worker resolves a lease. Downstream consumers (billing, reputation
// tracking) read these instead of polling the queue tables.
type Outcome struct {
	Type       string `json:"type"`    // "delivery.released" or "delivery.deferred"
	Version    string `json:"version"` // schema version
	At         string `json:"at"`      // RFC3339 time the outcome was recorded
	Zone       string `json:"zone"`
	Client     string `json:"client,omitempty"`
	MessageID  string `json:"message_id"`
	Seq        string `json:"seq"`
	TTLSeconds int64  `json:"ttl_seconds,omitempty"` // defer only
	Record     Record `json:"record"`                // full delivery snapshot
}

func NewOutcome(typ, zone, client string, rec Record, ttl time.Duration) Outcome {
	return Outcome{
		Type:       typ,
		Version:    "v1",
		At:         time.Now().UTC().Format(time.RFC3339Nano),
		Zone:       zone,
		Client:     client,
		MessageID:  rec.ID(),
		Seq:        rec.Seq(),
		TTLSeconds: int64(ttl.Seconds()),
		Record:     rec,
	}
}
