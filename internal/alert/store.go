package alert

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
)

// ErrStale reports that the in-memory queue changed but the durable copy
// could not be rewritten, so the two now disagree until the next
// successful mutation.
var ErrStale = errors.New("alert store: durable copy is stale")

const tracerName = "github.com/linnemanlabs/triaged/internal/alert"

// Hooks are optional callbacks fired by the Store. Nil fields are skipped.
type Hooks struct {
	OnSubmit       func(e *Entry)
	OnClear        func()
	OnPersistError func()
	OnDepth        func(n int)
}

// Store is the in-memory priority queue backed by a Persister. Submit and
// Clear take the write lock and rewrite the durable copy before releasing
// it, so the stored order always matches List.
type Store struct {
	mu    sync.RWMutex
	queue queue
	seq   uint64

	persister Persister
	notifier  Notifier
	logger    log.Logger
	hooks     Hooks
	now       func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithNotifier sends every queued entry to n in the background.
func WithNotifier(n Notifier) Option {
	return func(s *Store) { s.notifier = n }
}

// WithHooks installs metric callbacks.
func WithHooks(h Hooks) Option {
	return func(s *Store) { s.hooks = h }
}

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty Store over p. Call Load to restore a previous
// queue.
func NewStore(p Persister, logger log.Logger, opts ...Option) *Store {
	if p == nil {
		panic(xerrors.New("alert.NewStore: persister is nil"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	s := &Store{
		persister: p,
		logger:    logger,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Load replaces the in-memory queue with the durable copy. Entries keep
// the relative order they were stored in. An absent durable copy yields an
// empty queue.
func (s *Store) Load(ctx context.Context) error {
	ctx, span := otel.Tracer(tracerName).Start(ctx, "alert.load")
	defer span.End()

	entries, err := s.persister.Load(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return fmt.Errorf("load alerts: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.queue = make(queue, 0, len(entries))
	s.seq = 0
	for _, e := range entries {
		s.seq++
		s.queue.push(e, s.seq)
	}
	s.depth()

	span.SetAttributes(attribute.Int("triaged.alerts.count", len(entries)))
	s.logger.Info(ctx, "alerts loaded", "count", len(entries))
	return nil
}

// Submit queues a copy of e. A missing timestamp is filled in on e before
// it is stored. If the durable rewrite fails the entry stays queued and
// the returned error wraps ErrStale.
func (s *Store) Submit(ctx context.Context, e *Entry) error {
	if e.Timestamp == "" {
		e.Timestamp = s.now().Format(TimestampLayout)
	}
	cp := *e

	s.mu.Lock()
	s.seq++
	s.queue.push(cp, s.seq)
	snapshot := s.queue.sorted()
	s.depth()
	err := s.persist(ctx, "submit", snapshot)
	s.mu.Unlock()

	if s.hooks.OnSubmit != nil {
		s.hooks.OnSubmit(&cp)
	}
	s.logger.Info(ctx, "alert queued",
		"patient_id", cp.PatientID,
		"score", cp.Score,
		"priority", cp.Priority,
		"depth", len(snapshot),
	)

	if s.notifier != nil {
		go s.notify(context.WithoutCancel(ctx), cp)
	}

	return err
}

// List returns the queued entries, highest score first and equal scores in
// submission order.
func (s *Store) List(_ context.Context) []Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queue.sorted()
}

// Len returns the number of queued entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.queue)
}

// Clear empties the queue and its durable copy. As with Submit, a failed
// rewrite leaves memory cleared and wraps ErrStale.
func (s *Store) Clear(ctx context.Context) error {
	s.mu.Lock()
	n := len(s.queue)
	s.queue = nil
	s.depth()
	err := s.persist(ctx, "clear", []Entry{})
	s.mu.Unlock()

	if s.hooks.OnClear != nil {
		s.hooks.OnClear()
	}
	s.logger.Info(ctx, "alerts cleared", "count", n)
	return err
}

// persist rewrites the durable copy. Must be called with mu held.
func (s *Store) persist(ctx context.Context, op string, entries []Entry) error {
	// the in-memory mutation already happened; don't let a cancelled
	// request leave the durable copy behind
	ctx = context.WithoutCancel(ctx)

	ctx, span := otel.Tracer(tracerName).Start(ctx, "alert.persist", trace.WithAttributes(
		attribute.String("triaged.alerts.op", op),
		attribute.Int("triaged.alerts.count", len(entries)),
	))
	defer span.End()

	if err := s.persister.Save(ctx, entries); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		if s.hooks.OnPersistError != nil {
			s.hooks.OnPersistError()
		}
		s.logger.Error(ctx, err, "alert persist failed", "op", op)
		return fmt.Errorf("%w: %w", ErrStale, err)
	}
	return nil
}

func (s *Store) depth() {
	if s.hooks.OnDepth != nil {
		s.hooks.OnDepth(len(s.queue))
	}
}

func (s *Store) notify(ctx context.Context, e Entry) {
	if err := s.notifier.Notify(ctx, &e); err != nil {
		s.logger.Warn(ctx, "alert notification failed", "patient_id", e.PatientID, "err", err)
	}
}
