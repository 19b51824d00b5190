package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/nsqio/go-nsq"

	"github.com/austindbirch/harbor_mail/internal/delivery"
	"github.com/austindbirch/harbor_mail/internal/logging"
	"github.com/austindbirch/harbor_mail/internal/metrics"
	"github.com/austindbirch/harbor_mail/internal/tracing"

	"go.opentelemetry.io/otel/attribute"
)

// PGQueue is the reference Engine backed by Postgres. Jobs live in
// harbormail.jobs with a status machine (queued, inflight, deferred,
// delivered); acquisition locks a row with FOR UPDATE SKIP LOCKED so
// concurrent pulls never share a job. Lease resolutions optionally fan out
// to an NSQ outcomes topic.
type PGQueue struct {
	pool     *pgxpool.Pool
	prod     *nsq.Producer
	topic    string
	instance string
	started  time.Time
	logger   *logging.Logger
}

// NewPGQueue inits a PGQueue on an existing pool. prod may be nil when
// outcome publishing is disabled.
func NewPGQueue(pool *pgxpool.Pool, prod *nsq.Producer, topic string) *PGQueue {
	return &PGQueue{
		pool:     pool,
		prod:     prod,
		topic:    topic,
		instance: uuid.NewString(),
		started:  time.Now().UTC(),
		logger:   logging.New("harbormail-queue"),
	}
}

func (q *PGQueue) InstanceID() string {
	return q.instance
}

func (q *PGQueue) ZoneExists(ctx context.Context, zone string) (bool, error) {
	var exists bool
	err := q.pool.QueryRow(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM harbormail.zones
			WHERE name = $1)`,
		zone,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("zone lookup: %w", err)
	}
	return exists, nil
}

// AcquireNext locks the oldest eligible job in the zone and returns its
// record. The UPDATE commits before we return, so the lock is visible to
// every other puller by the time the caller sees the response.
func (q *PGQueue) AcquireNext(ctx context.Context, zone, client string) (delivery.Record, error) {
	ctx, span := tracing.StartSpan(ctx, "queue.AcquireNext",
		attribute.String("zone", zone),
		attribute.String("client", client),
	)
	defer span.End()

	start := time.Now()
	defer func() { metrics.RecordEngineLatency("acquire", time.Since(start)) }()

	var (
		id     string
		seq    int64
		domain string
		fields map[string]any
	)
	err := q.pool.QueryRow(ctx, `
		WITH next AS (
			SELECT id, seq FROM harbormail.jobs
			WHERE zone = $1
			  AND status IN ('queued', 'deferred')
			  AND not_before <= now()
			ORDER BY not_before, created_at
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		UPDATE harbormail.jobs j
		SET status = 'inflight', client = $2, locked_at = now(), updated_at = now()
		FROM next
		WHERE j.id = next.id AND j.seq = next.seq
		RETURNING j.id, j.seq, j.domain, j.fields`,
		zone, client,
	).Scan(&id, &seq, &domain, &fields)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return nil, fmt.Errorf("acquire next: %w", err)
	}

	rec := delivery.Record{
		delivery.FieldID:     id,
		delivery.FieldSeq:    seq,
		delivery.FieldZone:   zone,
		delivery.FieldClient: client,
		delivery.FieldDomain: domain,
	}
	for k, v := range fields {
		rec[k] = v
	}
	span.SetAttributes(attribute.String("message_id", id))
	return rec, nil
}

// Release marks a leased job delivered. A job that is no longer inflight
// was resolved by someone else; that surfaces as an error for the caller
// to report, not to retry.
func (q *PGQueue) Release(ctx context.Context, zone string, rec delivery.Record) error {
	ctx, span := tracing.StartSpan(ctx, "queue.Release",
		attribute.String("zone", zone),
		attribute.String("message_id", rec.ID()),
	)
	defer span.End()

	start := time.Now()
	defer func() { metrics.RecordEngineLatency("release", time.Since(start)) }()

	ct, err := q.pool.Exec(ctx, `
		UPDATE harbormail.jobs
		SET status = 'delivered', delivered_at = now(), updated_at = now()
		WHERE zone = $1 AND id = $2 AND seq = $3::bigint AND status = 'inflight'`,
		zone, rec.ID(), rec.Seq(),
	)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return fmt.Errorf("release: %w", err)
	}
	if ct.RowsAffected() == 0 {
		err := fmt.Errorf("job %s already resolved or not leased", rec.Ack())
		tracing.SetSpanError(ctx, err)
		return err
	}

	q.publishOutcome(ctx, delivery.NewOutcome(delivery.OutcomeReleased, zone, rec.Client(), rec, 0))
	return nil
}

// Defer reschedules a leased job to become eligible after ttl.
func (q *PGQueue) Defer(ctx context.Context, zone string, rec delivery.Record, ttl time.Duration) error {
	ctx, span := tracing.StartSpan(ctx, "queue.Defer",
		attribute.String("zone", zone),
		attribute.String("message_id", rec.ID()),
		attribute.Int64("ttl_seconds", int64(ttl.Seconds())),
	)
	defer span.End()

	start := time.Now()
	defer func() { metrics.RecordEngineLatency("defer", time.Since(start)) }()

	ct, err := q.pool.Exec(ctx, `
		UPDATE harbormail.jobs
		SET status = 'deferred', not_before = now() + $4 * interval '1 second', updated_at = now()
		WHERE zone = $1 AND id = $2 AND seq = $3::bigint AND status = 'inflight'`,
		zone, rec.ID(), rec.Seq(), ttl.Seconds(),
	)
	if err != nil {
		tracing.SetSpanError(ctx, err)
		return fmt.Errorf("defer: %w", err)
	}
	if ct.RowsAffected() == 0 {
		err := fmt.Errorf("job %s already resolved or not leased", rec.Ack())
		tracing.SetSpanError(ctx, err)
		return err
	}

	q.publishOutcome(ctx, delivery.NewOutcome(delivery.OutcomeDeferred, zone, rec.Client(), rec, ttl))
	return nil
}

// ZoneStats aggregates the zone's counters. Zones with no rows come back
// as all zeros with an empty domain list.
func (q *PGQueue) ZoneStats(ctx context.Context, zone string) (ZoneStats, error) {
	start := time.Now()
	defer func() { metrics.RecordEngineLatency("stats", time.Since(start)) }()

	st := ZoneStats{Started: q.started}
	err := q.pool.QueryRow(ctx, `
		SELECT
			COUNT(*) FILTER (WHERE status IN ('queued', 'inflight')),
			COUNT(*) FILTER (WHERE status = 'deferred'),
			COUNT(*) FILTER (WHERE status = 'delivered')
		FROM harbormail.jobs
		WHERE zone = $1`,
		zone,
	).Scan(&st.Queued, &st.Deferred, &st.Processed)
	if err != nil {
		return ZoneStats{}, fmt.Errorf("zone stats: %w", err)
	}

	rows, err := q.pool.Query(ctx, `
		SELECT domain,
			COUNT(*) FILTER (WHERE status IN ('queued', 'inflight')),
			COUNT(*) FILTER (WHERE status = 'deferred')
		FROM harbormail.jobs
		WHERE zone = $1 AND status <> 'delivered'
		GROUP BY domain
		ORDER BY domain`,
		zone,
	)
	if err != nil {
		return ZoneStats{}, fmt.Errorf("domain stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var d DomainStats
		if err := rows.Scan(&d.Domain, &d.Queued, &d.Deferred); err != nil {
			return ZoneStats{}, err
		}
		st.Domains = append(st.Domains, d)
	}
	if err := rows.Err(); err != nil {
		return ZoneStats{}, err
	}

	metrics.UpdateQueueBacklog(zone, float64(st.Queued))
	return st, nil
}

func (q *PGQueue) publishOutcome(ctx context.Context, ev delivery.Outcome) {
	if q.prod == nil {
		return
	}
	b, err := json.Marshal(ev)
	if err != nil {
		q.logger.WithContext(ctx).WithError(err).Error("marshal outcome event")
		return
	}
	if err := q.prod.Publish(q.topic, b); err != nil {
		// Outcome events are advisory; the lease resolution already
		// committed, so a publish failure must not fail the request.
		q.logger.WithContext(ctx).WithZone(ev.Zone).WithMessage(ev.MessageID).WithError(err).Error("publish outcome event")
	}
}
