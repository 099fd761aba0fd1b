package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/ehr/clinic/internal/platform/auth"
	"github.com/ehr/clinic/internal/platform/db"
	"github.com/ehr/clinic/internal/platform/middleware"
	"github.com/ehr/clinic/internal/platform/telemetry"
)

// RecorderConfig sizes the recorder's queue and worker pool.
type RecorderConfig struct {
	QueueSize     int
	Workers       int
	WriteRetries  int
	RetryInterval time.Duration
	WriteTimeout  time.Duration
	DefaultTenant string
}

func (c RecorderConfig) withDefaults() RecorderConfig {
	if c.QueueSize < 1 {
		c.QueueSize = 1024
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.WriteRetries < 0 {
		c.WriteRetries = 0
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = 100 * time.Millisecond
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 5 * time.Second
	}
	if c.DefaultTenant == "" {
		c.DefaultTenant = "default"
	}
	return c
}

// AsyncRecorder queues entries and writes them to every sink from a fixed
// pool of workers, so Record returns immediately. A full queue drops the
// entry with a warning instead of blocking the request.
type AsyncRecorder struct {
	cfg     RecorderConfig
	sinks   []Sink
	logger  zerolog.Logger
	metrics *telemetry.Metrics
	now     func() time.Time

	queue  chan *Record
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewAsyncRecorder(cfg RecorderConfig, logger zerolog.Logger, metrics *telemetry.Metrics, sinks ...Sink) *AsyncRecorder {
	cfg = cfg.withDefaults()
	r := &AsyncRecorder{
		cfg:     cfg,
		sinks:   sinks,
		logger:  logger.With().Str("component", "audit").Logger(),
		metrics: metrics,
		now:     func() time.Time { return time.Now().UTC() },
		queue:   make(chan *Record, cfg.QueueSize),
	}
	for i := 0; i < cfg.Workers; i++ {
		r.wg.Add(1)
		go r.work()
	}
	return r
}

// Record captures actor, tenant and request id from ctx and enqueues the
// entry. It never blocks and never fails.
func (r *AsyncRecorder) Record(ctx context.Context, e Entry) {
	rec, ok := r.build(ctx, e)
	if !ok {
		return
	}

	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		r.drop(rec, "recorder closed")
		return
	}
	select {
	case r.queue <- rec:
		r.metrics.AuditEnqueued()
	default:
		r.drop(rec, "queue full")
	}
}

func (r *AsyncRecorder) build(ctx context.Context, e Entry) (*Record, bool) {
	if !e.Verb.Valid() {
		r.logger.Error().Str("action", string(e.Verb)).Str("object_type", e.ObjectType).
			Str("object_id", e.ObjectID).Msg("audit entry with unknown action discarded")
		return nil, false
	}

	now := r.now()
	rec := &Record{
		EventID:    newEventID(now),
		TenantID:   db.TenantFromContext(ctx),
		Action:     e.Verb,
		ObjectType: e.ObjectType,
		ObjectID:   e.ObjectID,
		RequestID:  middleware.RequestIDFromContext(ctx),
		CreatedAt:  now,
	}
	if rec.TenantID == "" {
		rec.TenantID = r.cfg.DefaultTenant
	}
	if actor, ok := auth.ActorFromContext(ctx); ok {
		if actor.ID != uuid.Nil {
			id := actor.ID
			rec.ActorID = &id
		}
		rec.ActorRole = actor.Role.String()
	}
	if e.Payload != nil {
		b, err := json.Marshal(e.Payload)
		if err != nil {
			r.logger.Warn().Err(err).Str("event_id", rec.EventID).Msg("audit payload not serializable")
		} else {
			rec.Changes = b
		}
	}
	return rec, true
}

func (r *AsyncRecorder) drop(rec *Record, reason string) {
	r.metrics.AuditDropped()
	r.logEntry(r.logger.Warn(), rec).Str("reason", reason).Msg("audit entry dropped")
}

func (r *AsyncRecorder) work() {
	defer r.wg.Done()
	for rec := range r.queue {
		r.deliver(rec)
	}
}

func (r *AsyncRecorder) deliver(rec *Record) {
	for _, sink := range r.sinks {
		if err := r.writeWithRetry(sink, rec); err != nil {
			r.metrics.AuditFailed(sink.Name())
			r.logEntry(r.logger.Error().Err(err), rec).Str("sink", sink.Name()).Msg("audit write failed")
			continue
		}
		r.metrics.AuditWritten(sink.Name())
	}
}

func (r *AsyncRecorder) writeWithRetry(sink Sink, rec *Record) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.RetryInterval
	b.MaxElapsedTime = 0
	policy := backoff.WithMaxRetries(b, uint64(r.cfg.WriteRetries))

	return backoff.Retry(func() error {
		ctx, cancel := context.WithTimeout(context.Background(), r.cfg.WriteTimeout)
		defer cancel()
		return sink.Write(ctx, rec)
	}, policy)
}

func (r *AsyncRecorder) logEntry(ev *zerolog.Event, rec *Record) *zerolog.Event {
	ev = ev.Str("event_id", rec.EventID).
		Str("tenant_id", rec.TenantID).
		Str("action", string(rec.Action)).
		Str("object_type", rec.ObjectType).
		Str("object_id", rec.ObjectID).
		Str("request_id", rec.RequestID).
		Str("actor_role", rec.ActorRole).
		Time("created_at", rec.CreatedAt)
	if rec.ActorID != nil {
		ev = ev.Str("actor_id", rec.ActorID.String())
	}
	if len(rec.Changes) > 0 {
		ev = ev.RawJSON("changes", rec.Changes)
	}
	return ev
}

// Close stops accepting entries and waits for queued ones to be written or
// for ctx to expire.
func (r *AsyncRecorder) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		r.logger.Warn().Int("pending", len(r.queue)).Msg("audit drain interrupted")
		return ctx.Err()
	}
}
