// Package queue defines the contracts the HTTP boundary holds against the
// queue engine: job scheduling per sending zone, lease resolution, zone
// statistics, and raw message-body storage. The engine owns job lifecycle
// and retry scheduling; this API only transports records across it.
package queue

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/austindbirch/harbor_mail/internal/delivery"
)

var (
	// ErrUnknownZone marks operations against a sending zone the engine
	// has never heard of. The text is wire-visible in error bodies.
	ErrUnknownZone = errors.New("Selected Sending Zone does not exist")

	// ErrNoMessage marks a message body fetch for an id with no stored
	// bytes. The text is wire-visible in error bodies.
	ErrNoMessage = errors.New("Selected message does not exist")
)

// DomainStats is the per-destination-domain slice of a zone's backlog.
type DomainStats struct {
	Domain   string `json:"domain"`
	Queued   int64  `json:"queued"`
	Deferred int64  `json:"deferred"`
}

// ZoneStats is a read-only snapshot of one zone's queue counters. Zones
// with no recorded activity report zeros and an empty domain list.
type ZoneStats struct {
	Started   time.Time
	Processed int64
	Queued    int64
	Deferred  int64
	Domains   []DomainStats
}

// Engine is the queue engine as seen from the HTTP boundary. Implementations
// must serialize AcquireNext per zone so that no two concurrent callers
// receive the same id+seq pair, and must observe a job as locked before
// AcquireNext returns. Lease expiry for callers that never resolve is the
// engine's business; workers have to tolerate redelivery.
type Engine interface {
	// InstanceID is the identifier minted once per process incarnation.
	// Requests fenced on it get rejected when the caller's copy is stale.
	InstanceID() string

	// ZoneExists reports whether the named sending zone is configured.
	ZoneExists(ctx context.Context, zone string) (bool, error)

	// AcquireNext selects and locks the next eligible job in the zone for
	// the given client. A nil record with a nil error means no job is
	// available; that is an ordinary result, not a failure.
	AcquireNext(ctx context.Context, zone, client string) (delivery.Record, error)

	// Release finalizes a leased job as done. Honored regardless of which
	// server incarnation issued the lease.
	Release(ctx context.Context, zone string, rec delivery.Record) error

	// Defer reschedules a leased job to become eligible again after ttl.
	Defer(ctx context.Context, zone string, rec delivery.Record, ttl time.Duration) error

	// ZoneStats snapshots the zone's counters without mutating anything.
	ZoneStats(ctx context.Context, zone string) (ZoneStats, error)
}

// MessageStore holds raw message bodies keyed by job id.
type MessageStore interface {
	// Exists reports whether bytes are stored for id. Absence is a normal
	// false result, not an error.
	Exists(ctx context.Context, id string) (bool, error)

	// Open returns a lazy byte stream of the stored body. The caller owns
	// closing it; implementations return ErrNoMessage when id is unknown.
	Open(ctx context.Context, id string) (io.ReadCloser, error)
}
