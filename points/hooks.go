/*
hooks.go - Explicit extension points: adjusters, predicates, renderers, bus

PURPOSE:
  Everything here replaces what would otherwise be ambient global
  registries with explicit, injectable objects. The Service owns one of
  each; collaborators register themselves against those instances, so
  the whole extension surface is visible in the Service's dependencies
  and trivially replaceable in tests.

EXTENSION POINTS:
  AdjusterPipeline: Ordered callbacks that may rewrite a requested
    delta, force it to zero ("abort, report success, write nothing"),
    or veto it outright (ErrAdjustmentRejected).
  LogPredicate:     Decides whether a mutation is logged. Default true.
  TextRenderers:    Per-kind log text rendering with a fixed fallback.
  Bus:              Fire-and-forget lifecycle notifications. Subscribers
    cannot block or fail the transaction; panics are recovered.
*/
package points

import (
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// ADJUSTMENT PIPELINE
// =============================================================================

// Adjuster inspects a pending mutation and returns the delta that
// should actually apply. Returning 0 aborts the transaction as a
// successful no-op. Returning an error vetoes it; the Service surfaces
// that as ErrAdjustmentRejected and writes nothing.
type Adjuster interface {
	AdjustDelta(delta int64, req AlterRequest) (int64, error)
}

// AdjusterFunc adapts a function to the Adjuster interface.
type AdjusterFunc func(delta int64, req AlterRequest) (int64, error)

func (f AdjusterFunc) AdjustDelta(delta int64, req AlterRequest) (int64, error) {
	return f(delta, req)
}

type adjusterEntry struct {
	adjuster Adjuster

	// category restricts the entry to one category; "" means global.
	// Category-scoped entries are dropped when the category is deleted.
	category Category
}

// AdjusterPipeline runs registered adjusters in registration order,
// feeding each one the previous result.
type AdjusterPipeline struct {
	mu      sync.RWMutex
	entries []adjusterEntry
}

func NewAdjusterPipeline() *AdjusterPipeline {
	return &AdjusterPipeline{}
}

// Use registers a global adjuster.
func (p *AdjusterPipeline) Use(a Adjuster) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, adjusterEntry{adjuster: a})
}

// UseForCategory registers an adjuster that only sees mutations of one
// category. It is deregistered automatically when that category is
// deleted.
func (p *AdjusterPipeline) UseForCategory(category Category, a Adjuster) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.entries = append(p.entries, adjusterEntry{adjuster: a, category: category})
}

// RemoveCategory drops every adjuster scoped to the category.
func (p *AdjusterPipeline) RemoveCategory(category Category) {
	p.mu.Lock()
	defer p.mu.Unlock()
	kept := p.entries[:0]
	for _, e := range p.entries {
		if e.category != category {
			kept = append(kept, e)
		}
	}
	p.entries = kept
}

// Run threads delta through the pipeline. The first error stops the
// run; a zero result stops it too, since no later adjuster can see a
// transaction that has been aborted.
func (p *AdjusterPipeline) Run(delta int64, req AlterRequest) (int64, error) {
	p.mu.RLock()
	entries := make([]adjusterEntry, len(p.entries))
	copy(entries, p.entries)
	p.mu.RUnlock()

	var err error
	for _, e := range entries {
		if e.category != "" && e.category != req.Category {
			continue
		}
		delta, err = e.adjuster.AdjustDelta(delta, req)
		if err != nil {
			return 0, &RejectionError{Request: req, Reason: err}
		}
		if delta == 0 {
			return 0, nil
		}
	}
	return delta, nil
}

// =============================================================================
// LOGGING PREDICATE
// =============================================================================

// LogPredicate decides whether a completed mutation is written to the
// transaction log. The delta it sees is the one actually applied.
type LogPredicate func(req AlterRequest, delta int64) bool

// =============================================================================
// TEXT RENDERERS
// =============================================================================

// NoDescriptionText is the placeholder stored when neither the caller
// nor a renderer produced log text.
const NoDescriptionText = "(no description)"

// TextRenderer produces the human-readable log text for a mutation.
// defaultText is the caller-supplied text, which the renderer may keep,
// replace, or embellish. An empty result falls through to the next
// fallback.
type TextRenderer func(req AlterRequest, delta int64, defaultText string) string

// TextRenderers maps transaction kinds to their renderer. Rendering
// happens at write time; the result is immutable afterwards except via
// Service.RegenerateLogText, which re-runs the same renderer.
type TextRenderers struct {
	mu     sync.RWMutex
	byKind map[Kind]TextRenderer
}

func NewTextRenderers() *TextRenderers {
	return &TextRenderers{byKind: make(map[Kind]TextRenderer)}
}

// Register installs the renderer for a kind, replacing any previous one.
func (t *TextRenderers) Register(kind Kind, fn TextRenderer) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byKind[kind] = fn
}

// Render resolves the log text for a mutation: the kind's renderer
// first, then the caller's text, then NoDescriptionText.
func (t *TextRenderers) Render(req AlterRequest, delta int64, defaultText string) string {
	t.mu.RLock()
	fn := t.byKind[req.Kind]
	t.mu.RUnlock()

	text := defaultText
	if fn != nil {
		text = fn(req, delta, defaultText)
	}
	if text == "" {
		return NoDescriptionText
	}
	return text
}

// =============================================================================
// NOTIFICATION BUS
// =============================================================================

// EventType identifies a lifecycle notification.
type EventType string

const (
	// EventAltered is broadcast after every successful balance change,
	// logged or not.
	EventAltered EventType = "points.altered"

	// EventLogged is broadcast only when a mutation produced a log
	// record; its LogID is always set.
	EventLogged EventType = "points.logged"

	// EventCategoryDeleting is broadcast before a category's data is
	// cascaded away.
	EventCategoryDeleting EventType = "points.category-deleting"

	// EventUserAdded / EventUserRemoved track the user population for
	// leaderboard invalidation.
	EventUserAdded   EventType = "users.added"
	EventUserRemoved EventType = "users.removed"
)

// Event is the payload delivered to subscribers.
type Event struct {
	ID       string // unique per broadcast, assigned by the bus
	Type     EventType
	At       time.Time
	User     UserID
	Category Category
	Delta    int64
	Kind     Kind
	Metadata map[string]string
	LogID    LogID // 0 when the mutation was not logged
}

// Subscriber receives events. Subscribers run synchronously on the
// publishing goroutine but are isolated: they cannot return errors, and
// a panic is recovered and logged rather than propagated.
type Subscriber func(Event)

// Bus is the lifecycle notification mechanism. Publishing is
// fire-and-forget by contract: no subscriber can affect the outcome of
// the transaction that triggered the event.
type Bus struct {
	mu     sync.RWMutex
	subs   map[EventType][]Subscriber
	logger *slog.Logger
}

// NewBus creates a bus. A nil logger falls back to slog.Default.
func NewBus(logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{subs: make(map[EventType][]Subscriber), logger: logger}
}

// Subscribe registers fn for one event type. Delivery order follows
// subscription order.
func (b *Bus) Subscribe(t EventType, fn Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[t] = append(b.subs[t], fn)
}

// Publish delivers ev to every subscriber of its type, assigning the
// event ID and timestamp.
func (b *Bus) Publish(ev Event) {
	ev.ID = uuid.NewString()
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	b.mu.RLock()
	subs := make([]Subscriber, len(b.subs[ev.Type]))
	copy(subs, b.subs[ev.Type])
	b.mu.RUnlock()

	for _, fn := range subs {
		b.deliver(fn, ev)
	}
}

func (b *Bus) deliver(fn Subscriber, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Warn("event subscriber panicked",
				"event", string(ev.Type), "event_id", ev.ID, "panic", r)
		}
	}()
	fn(ev)
}
