// Package events reports cache lifecycle changes (fills and evictions) to interested
// parties: the log, or a Pub/Sub topic watched by other new-tab instances.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Type names a cache lifecycle change.
type Type string

const (
	TypeFilled         Type = "cache.filled"
	TypeEvicted        Type = "cache.evicted"
	TypeEvictionFailed Type = "cache.eviction_failed"
)

// Event is one cache lifecycle change.
type Event struct {
	ID        string    `json:"id"`
	Type      Type      `json:"type"`
	Partition string    `json:"partition"`
	Keys      []string  `json:"keys,omitempty"`
	Time      time.Time `json:"time"`
	Error     string    `json:"error,omitempty"`
}

// New builds an Event with a fresh id.
func New(t Type, partition string, keys []string, at time.Time) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      t,
		Partition: partition,
		Keys:      keys,
		Time:      at,
	}
}

// Notifier receives cache lifecycle events. Notify must not block the caller for
// long and never fails the operation that produced the event.
type Notifier interface {
	Notify(ctx context.Context, ev Event)
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, ev Event)

func (f NotifierFunc) Notify(ctx context.Context, ev Event) { f(ctx, ev) }

// LogNotifier writes events to a zerolog logger.
type LogNotifier struct {
	logger zerolog.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger.With().Str("component", "LogNotifier").Logger()}
}

// Notify logs the event; eviction failures are logged at error level.
func (n *LogNotifier) Notify(_ context.Context, ev Event) {
	e := n.logger.Debug()
	if ev.Type == TypeEvictionFailed {
		e = n.logger.Error()
	}
	e.Str("event_id", ev.ID).
		Str("type", string(ev.Type)).
		Str("partition", ev.Partition).
		Strs("keys", ev.Keys).
		Str("error", ev.Error).
		Msg("Cache event.")
}

// Multi fans an event out to several notifiers in order.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, ev Event) {
	for _, n := range m {
		if n != nil {
			n.Notify(ctx, ev)
		}
	}
}
