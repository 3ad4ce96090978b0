package engine

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/soulbound/internal/credential"
	"github.com/roach88/soulbound/internal/ir"
	"github.com/roach88/soulbound/internal/kv"
	"github.com/roach88/soulbound/internal/store"
)

// Journal persists applied calls. Implemented by *store.Store.
type Journal interface {
	AppendCall(ctx context.Context, entry store.JournalEntry) error
	LastSeq(ctx context.Context) (int64, error)
}

// Outcome is the result of one applied call.
type Outcome struct {
	// Call is the call as applied, with ID and Seq filled in.
	Call ir.Call

	// RecordID is the created id for create calls, else Call.RecordID.
	RecordID ir.RecordID

	// Err is the domain rejection, or nil. A rejected call changed nothing.
	Err error

	// Events are the events the call emitted, stamped with Call.Seq.
	Events []ir.Event
}

// Code returns the rejection code, or "" on success.
func (o Outcome) Code() ir.ErrorCode {
	return ir.CodeOf(o.Err)
}

// Engine serialises calls to one credential.Service.
//
// Thread-safety model:
//   - Apply and the Create/Update/Delete helpers: safe from any goroutine;
//     calls are processed one at a time in arrival order
//   - Service(): returns the query surface; reads do not take the engine lock
type Engine struct {
	mu      sync.Mutex
	backend kv.Backend
	svc     *credential.Service
	clock   *Clock
	ids     CallIDGenerator
	journal Journal
	logger  *slog.Logger

	sink    credential.EventSink
	svcOpts []credential.Option

	// current, inflight, journaled and pending are only touched while mu
	// is held.
	current   int64
	inflight  ir.Call
	journaled bool
	pending   []ir.Event
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock sets the logical clock. Use NewClockAt to resume a journal.
func WithClock(c *Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithCallIDGenerator sets how journal call ids are made.
// Default: UUIDv7Generator.
func WithCallIDGenerator(g CallIDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// WithJournal records every applied call.
func WithJournal(j Journal) Option {
	return func(e *Engine) { e.journal = j }
}

// WithLogger sets the logger for the engine and its service.
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithEventSink forwards stamped events to sink after each call commits.
func WithEventSink(sink credential.EventSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithServiceOptions passes options through to the credential service.
// WithEventSink and WithLogger on the engine take precedence.
func WithServiceOptions(opts ...credential.Option) Option {
	return func(e *Engine) { e.svcOpts = append(e.svcOpts, opts...) }
}

// New creates an Engine over backend.
func New(backend kv.Backend, opts ...Option) *Engine {
	e := &Engine{
		backend: backend,
		clock:   NewClock(),
		ids:     UUIDv7Generator{},
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		sink:    credential.Discard,
	}
	for _, opt := range opts {
		opt(e)
	}

	svcOpts := append([]credential.Option{}, e.svcOpts...)
	svcOpts = append(svcOpts,
		credential.WithLogger(e.logger),
		credential.WithEventSink(credential.SinkFunc(e.stamp)),
		credential.WithPrecommit(e.journalInTx),
	)
	e.svc = credential.New(backend, svcOpts...)
	return e
}

// Service returns the underlying service for queries.
func (e *Engine) Service() *credential.Service {
	return e.svc
}

// Backend returns the state store the engine writes to.
func (e *Engine) Backend() kv.Backend {
	return e.backend
}

// Clock returns the engine's logical clock.
func (e *Engine) Clock() *Clock {
	return e.clock
}

// stamp is the service's sink: it sets the current seq, buffers the
// event for the Outcome and forwards it.
func (e *Engine) stamp(ctx context.Context, ev ir.Event) error {
	ev.Seq = e.current
	e.pending = append(e.pending, ev)
	return e.sink.Emit(ctx, ev)
}

// journalInTx appends the in-flight call inside the mutation's own
// transaction when the journal is the backend being written. A seq that
// another writer already took then rolls the mutation back instead of
// leaving it unjournaled.
func (e *Engine) journalInTx(ctx context.Context, tx kv.Tx) error {
	if e.journal == nil || any(e.journal) != any(e.backend) {
		return nil
	}
	jtx, ok := tx.(store.JournalTx)
	if !ok {
		return nil
	}
	if err := jtx.AppendCall(ctx, store.JournalEntry{Call: e.inflight}); err != nil {
		return err
	}
	e.journaled = true
	return nil
}

// Apply processes one call.
//
// A domain rejection is reported in Outcome.Err with a nil error.
// A non-nil error means the call could not be processed at all: the call
// shape was invalid, the backend failed, or the journal write failed.
// When the journal is the backend's own store, a successful mutation and
// its journal row commit in one transaction, so a failed journal write
// leaves state unchanged.
func (e *Engine) Apply(ctx context.Context, call ir.Call) (Outcome, error) {
	if err := call.Validate(); err != nil {
		return Outcome{}, fmt.Errorf("apply: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	// Other processes may have journaled calls since this engine started.
	if e.journal != nil {
		last, err := e.journal.LastSeq(ctx)
		if err != nil {
			return Outcome{}, fmt.Errorf("apply: %w", err)
		}
		e.clock.AdvanceTo(last)
	}

	call.Seq = e.clock.Next()
	call.ID = e.ids.Generate()
	e.current = call.Seq
	e.inflight = call
	e.journaled = false
	e.pending = nil

	out := Outcome{Call: call, RecordID: call.RecordID}
	var err error
	switch call.Kind {
	case ir.CallCreate:
		out.RecordID, err = e.svc.Create(ctx, call.Caller, call.Payload)
	case ir.CallUpdate:
		err = e.svc.Update(ctx, call.Caller, call.RecordID, call.Payload)
	case ir.CallDelete:
		err = e.svc.Delete(ctx, call.Caller, call.RecordID)
	}
	out.Events = e.pending
	e.pending = nil

	if err != nil {
		if ir.CodeOf(err) == "" {
			return out, fmt.Errorf("apply %s seq=%d: %w", call.Kind, call.Seq, err)
		}
		out.Err = err
	}

	if e.journal != nil && !e.journaled {
		entry := store.JournalEntry{Call: call, ResultCode: out.Code()}
		if err := e.journal.AppendCall(ctx, entry); err != nil {
			return out, fmt.Errorf("journal seq=%d: %w", call.Seq, err)
		}
	}

	e.logger.DebugContext(ctx, "call applied",
		"seq", call.Seq,
		"id", call.ID,
		"kind", string(call.Kind),
		"caller", string(call.Caller),
		"result", resultLabel(out.Code()),
	)
	return out, nil
}

func resultLabel(code ir.ErrorCode) string {
	if code == "" {
		return "ok"
	}
	return string(code)
}

// Create applies a create call and returns the new id.
func (e *Engine) Create(ctx context.Context, caller ir.OwnerID, payload []byte) (ir.RecordID, error) {
	out, err := e.Apply(ctx, ir.Call{Kind: ir.CallCreate, Caller: caller, Payload: payload})
	if err != nil {
		return ir.RecordID{}, err
	}
	return out.RecordID, out.Err
}

// Update applies an update call.
func (e *Engine) Update(ctx context.Context, caller ir.OwnerID, id ir.RecordID, payload []byte) error {
	out, err := e.Apply(ctx, ir.Call{Kind: ir.CallUpdate, Caller: caller, RecordID: id, Payload: payload})
	if err != nil {
		return err
	}
	return out.Err
}

// Delete applies a delete call.
func (e *Engine) Delete(ctx context.Context, caller ir.OwnerID, id ir.RecordID) error {
	out, err := e.Apply(ctx, ir.Call{Kind: ir.CallDelete, Caller: caller, RecordID: id})
	if err != nil {
		return err
	}
	return out.Err
}
