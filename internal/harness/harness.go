package harness

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/soulbound/internal/credential"
	"github.com/roach88/soulbound/internal/engine"
	"github.com/roach88/soulbound/internal/ir"
	"github.com/roach88/soulbound/internal/kv/memory"
	"github.com/roach88/soulbound/internal/testutil"
)

// Harness holds the state of one scenario run.
type Harness struct {
	engine *engine.Engine
	events *credential.Collector
	hasher ir.Hasher
	logger *slog.Logger

	// refs maps bound names to ids; names is the reverse.
	refs  map[string]ir.RecordID
	names map[ir.RecordID]string
}

// Run executes a scenario on a fresh in-memory backend.
//
// Execution flow:
//  1. Create an engine with deterministic call ids
//  2. Apply setup steps, failing the run if any is rejected
//  3. Apply flow steps, comparing each result to its expect value
//  4. Evaluate assertions and compute the final digest
//
// A returned error means the scenario could not be executed. Failed
// expectations are reported in Result.Errors.
func Run(scenario *Scenario) (*Result, error) {
	return RunContext(context.Background(), scenario, nil)
}

// RunContext is Run with a context and logger. A nil logger discards.
func RunContext(ctx context.Context, scenario *Scenario, logger *slog.Logger) (*Result, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	hasher, err := ir.NewHasher(scenario.Hash)
	if err != nil {
		return nil, err
	}

	backend := memory.New()
	defer backend.Close()

	events := &credential.Collector{}
	h := &Harness{
		events: events,
		hasher: hasher,
		logger: logger,
		refs:   make(map[string]ir.RecordID),
		names:  make(map[ir.RecordID]string),
	}
	h.engine = engine.New(backend,
		engine.WithCallIDGenerator(testutil.NewSeqIDs("scenario")),
		engine.WithEventSink(events),
		engine.WithLogger(logger),
		engine.WithServiceOptions(credential.WithHasher(hasher)),
	)

	result := NewResult()
	for i, step := range scenario.Setup {
		if err := h.executeStep(ctx, step, nil); err != nil {
			return nil, fmt.Errorf("setup[%d]: %w", i, err)
		}
	}
	setupEvents := len(events.Events())

	for i, step := range scenario.Flow {
		if err := h.executeStep(ctx, step, func(ts TraceStep, code ir.ErrorCode) {
			result.Trace = append(result.Trace, ts)
			if want := expectedCode(step.Expect); want != code {
				result.AddError(fmt.Sprintf("flow[%d] %s as %s (seq %d): expected %s, got %s",
					i, step.Op, step.As, ts.Seq, resultLabel(want), resultLabel(code)))
			}
		}); err != nil {
			return nil, fmt.Errorf("flow[%d]: %w", i, err)
		}
	}

	snap, err := backend.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	result.Snapshot = snap
	if result.Digest, err = snap.Digest(); err != nil {
		return nil, err
	}

	flowEvents := events.Events()[setupEvents:]
	for _, msg := range h.evaluateAssertions(ctx, scenario.Assertions, snap, flowEvents) {
		result.AddError(msg)
	}
	return result, nil
}

// executeStep applies every call a step expands to. For setup steps
// record is nil and any rejection is an error.
func (h *Harness) executeStep(ctx context.Context, step Step, record func(TraceStep, ir.ErrorCode)) error {
	calls, err := h.callsFor(step)
	if err != nil {
		return err
	}
	for _, call := range calls {
		out, err := h.engine.Apply(ctx, call)
		if err != nil {
			return err
		}
		if out.Err == nil && step.Bind != "" {
			h.refs[step.Bind] = out.RecordID
			h.names[out.RecordID] = step.Bind
		}
		if record == nil {
			if out.Err != nil {
				return out.Err
			}
			continue
		}

		target := out.RecordID
		if call.Kind == ir.CallCreate && out.Err != nil {
			target = h.hasher.Sum(call.Payload)
		}
		evs := make([]string, len(out.Events))
		for i, ev := range out.Events {
			evs[i] = string(ev.Kind) + ":" + h.name(ev.RecordID)
		}
		record(TraceStep{
			Seq:    out.Call.Seq,
			Op:     step.Op,
			Caller: step.As,
			Target: h.name(target),
			Result: resultLabel(out.Code()),
			Events: evs,
		}, out.Code())
	}
	return nil
}

// callsFor expands a step into calls.
func (h *Harness) callsFor(step Step) ([]ir.Call, error) {
	kind := ir.CallKind(step.Op)
	caller := ir.OwnerID(step.As)

	if kind == ir.CallCreate {
		var calls []ir.Call
		for _, p := range step.payloads() {
			calls = append(calls, ir.Call{Kind: kind, Caller: caller, Payload: p})
		}
		return calls, nil
	}

	id, err := h.resolve(step.Ref, step.ID)
	if err != nil {
		return nil, err
	}
	call := ir.Call{Kind: kind, Caller: caller, RecordID: id}
	if kind == ir.CallUpdate {
		call.Payload = pad([]byte(step.Payload), step.PayloadSize)
	}
	return []ir.Call{call}, nil
}

// resolve returns the id for a bound name or hex id.
func (h *Harness) resolve(ref, hexID string) (ir.RecordID, error) {
	if ref != "" {
		id, ok := h.refs[ref]
		if !ok {
			return ir.RecordID{}, fmt.Errorf("ref %q was never bound (did its create fail?)", ref)
		}
		return id, nil
	}
	return ir.ParseRecordID(hexID)
}

// name returns the bound name for id, or its hex form.
func (h *Harness) name(id ir.RecordID) string {
	if n, ok := h.names[id]; ok {
		return n
	}
	return id.String()
}

func expectedCode(expect string) ir.ErrorCode {
	if expect == "" || expect == "ok" {
		return ""
	}
	return ir.ErrorCode(expect)
}

func resultLabel(code ir.ErrorCode) string {
	if code == "" {
		return "ok"
	}
	return string(code)
}
