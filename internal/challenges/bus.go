package challenges

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"challengesAPI/internal/types/event"

	"github.com/google/uuid"
)

// Listeners maps event kinds to the processors interested in them. It is
// built once at startup; a Bus works on its own copy.
type Listeners struct {
	byKind map[event.Kind][]Processor
}

func NewListeners() *Listeners {
	return &Listeners{byKind: make(map[event.Kind][]Processor)}
}

// Register adds p for kind. Registering the same challenge twice for a kind
// is a no-op.
func (l *Listeners) Register(kind event.Kind, p Processor) {
	for _, existing := range l.byKind[kind] {
		if existing == p || existing.ChallengeID() == p.ChallengeID() {
			return
		}
	}
	l.byKind[kind] = append(l.byKind[kind], p)
}

func (l *Listeners) Processors(kind event.Kind) []Processor {
	return append([]Processor(nil), l.byKind[kind]...)
}

func (l *Listeners) snapshot() map[event.Kind][]Processor {
	out := make(map[event.Kind][]Processor, len(l.byKind))
	for kind, ps := range l.byKind {
		out[kind] = append([]Processor(nil), ps...)
	}
	return out
}

// Bus buffers the events of one unit of work until Flush.
type Bus struct {
	id        uuid.UUID
	listeners map[event.Kind][]Processor
	logger    *slog.Logger

	mu      sync.Mutex
	pending []event.Event
}

func NewBus(listeners *Listeners, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	id := uuid.New()
	return &Bus{
		id:        id,
		listeners: listeners.snapshot(),
		logger:    logger.With("component", "event_bus", "unit_of_work", id.String()),
	}
}

func (b *Bus) ID() uuid.UUID {
	return b.id
}

// Dispatch buffers e. Nothing happens until Flush.
func (b *Bus) Dispatch(e event.Event) {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	b.mu.Lock()
	b.pending = append(b.pending, e)
	b.mu.Unlock()
	eventsDispatched.WithLabelValues(string(e.Kind)).Inc()
}

func (b *Bus) Pending() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.pending)
}

// Discard drops every buffered event.
func (b *Bus) Discard() {
	b.mu.Lock()
	b.pending = nil
	b.mu.Unlock()
}

// Flush hands each kind's ordered batch to every processor registered for
// it, kinds taken in order of first arrival. The first failure aborts the
// flush and leaves the buffer untouched so the caller can retry the unit of
// work. Events dispatched while flushing stay buffered for the next flush.
func (b *Bus) Flush(ctx context.Context, scope Scope) (err error) {
	start := time.Now()
	defer func() {
		outcome := "ok"
		if err != nil {
			outcome = "error"
		}
		flushDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}()

	b.mu.Lock()
	flushing := append([]event.Event(nil), b.pending...)
	b.mu.Unlock()

	if len(flushing) == 0 {
		return nil
	}

	var kinds []event.Kind
	batches := make(map[event.Kind][]event.Event)
	for _, e := range flushing {
		if _, ok := batches[e.Kind]; !ok {
			kinds = append(kinds, e.Kind)
		}
		batches[e.Kind] = append(batches[e.Kind], e)
	}

	for _, kind := range kinds {
		if err := ctx.Err(); err != nil {
			return err
		}
		processors := b.listeners[kind]
		if len(processors) == 0 {
			b.logger.Debug("No listeners for event kind", slog.String("kind", string(kind)))
			continue
		}
		for _, p := range processors {
			if err := p.Process(ctx, scope, kind, batches[kind]); err != nil {
				b.logger.Error("Challenge processing failed",
					slog.String("kind", string(kind)),
					slog.String("challenge_id", p.ChallengeID()),
					slog.Any("error", err))
				return fmt.Errorf("failed to process %s events for %s: %w", kind, p.ChallengeID(), err)
			}
		}
	}

	b.mu.Lock()
	b.pending = b.pending[len(flushing):]
	if len(b.pending) == 0 {
		b.pending = nil
	}
	b.mu.Unlock()

	b.logger.Info("Flushed challenge events",
		slog.Int("events", len(flushing)),
		slog.Int("kinds", len(kinds)),
		slog.Duration("took", time.Since(start)))
	return nil
}
