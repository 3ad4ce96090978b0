package credential

import (
	"context"
	"log/slog"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/roach88/soulbound/internal/ir"
)

// EventSink receives events after the mutation that produced them commits.
type EventSink interface {
	Emit(ctx context.Context, ev ir.Event) error
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(ctx context.Context, ev ir.Event) error

// Emit implements EventSink.
func (f SinkFunc) Emit(ctx context.Context, ev ir.Event) error {
	return f(ctx, ev)
}

// Discard drops every event.
var Discard EventSink = SinkFunc(func(context.Context, ir.Event) error { return nil })

// Collector stores events in memory in emission order.
// Safe for concurrent use.
type Collector struct {
	mu     sync.Mutex
	events []ir.Event
}

// Emit implements EventSink.
func (c *Collector) Emit(_ context.Context, ev ir.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

// Events returns a copy of the collected events.
func (c *Collector) Events() []ir.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ir.Event, len(c.events))
	copy(out, c.events)
	return out
}

// Reset discards collected events.
func (c *Collector) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = nil
}

// MultiSink fans an event out to every sink. All sinks are called even
// when one fails; failures are combined into one error.
type MultiSink []EventSink

// Emit implements EventSink.
func (m MultiSink) Emit(ctx context.Context, ev ir.Event) error {
	var result *multierror.Error
	for _, s := range m {
		if err := s.Emit(ctx, ev); err != nil {
			result = multierror.Append(result, err)
		}
	}
	return result.ErrorOrNil()
}

// LogSink writes each event as a structured log line at Info level.
type LogSink struct {
	Logger *slog.Logger
}

// Emit implements EventSink.
func (l LogSink) Emit(ctx context.Context, ev ir.Event) error {
	l.Logger.InfoContext(ctx, "event",
		"kind", string(ev.Kind),
		"record_id", ev.RecordID.String(),
		"owner", string(ev.Owner),
		"seq", ev.Seq,
	)
	return nil
}
