package harness

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/roach88/soulbound/internal/ir"
	"github.com/roach88/soulbound/internal/kv"
)

// AssertionError is returned when an assertion fails.
type AssertionError struct {
	Index    int
	Type     string
	Expected string
	Actual   string
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	return fmt.Sprintf("assertions[%d] %s: expected %s, got %s", e.Index, e.Type, e.Expected, e.Actual)
}

// evaluateAssertions checks every assertion and returns one message per
// failure. Flow events are the events emitted after setup.
func (h *Harness) evaluateAssertions(ctx context.Context, assertions []Assertion, snap *kv.Snapshot, flowEvents []ir.Event) []string {
	var msgs []string
	for i, a := range assertions {
		if err := h.evaluate(ctx, i, a, snap, flowEvents); err != nil {
			msgs = append(msgs, err.Error())
		}
	}
	return msgs
}

func (h *Harness) evaluate(ctx context.Context, i int, a Assertion, snap *kv.Snapshot, flowEvents []ir.Event) error {
	fail := func(expected, actual string) error {
		return &AssertionError{Index: i, Type: a.Type, Expected: expected, Actual: actual}
	}
	svc := h.engine.Service()

	switch a.Type {
	case AssertExists, AssertAbsent:
		id, err := h.resolve(a.Ref, a.ID)
		if err != nil {
			return err
		}
		exists, err := svc.Exists(ctx, id)
		if err != nil {
			return err
		}
		if want := a.Type == AssertExists; exists != want {
			return fail(fmt.Sprintf("exists(%s) == %t", h.name(id), want), fmt.Sprintf("%t", exists))
		}

	case AssertOwner:
		id, err := h.resolve(a.Ref, a.ID)
		if err != nil {
			return err
		}
		owner, ok, err := svc.OwnerOf(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fail("owner "+a.Owner, "no record")
		}
		if string(owner) != a.Owner {
			return fail("owner "+a.Owner, "owner "+string(owner))
		}

	case AssertPayload:
		id, err := h.resolve(a.Ref, a.ID)
		if err != nil {
			return err
		}
		rec, ok, err := svc.Get(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fail(fmt.Sprintf("payload %q", a.Payload), "no record")
		}
		if !bytes.Equal(rec.Payload, []byte(a.Payload)) {
			return fail(fmt.Sprintf("payload %q", a.Payload), fmt.Sprintf("payload %q", rec.Payload))
		}

	case AssertList:
		records, err := svc.ListByOwner(ctx, ir.OwnerID(a.Owner))
		if err != nil {
			return err
		}
		got := make([]string, len(records))
		for j, rec := range records {
			got[j] = h.name(rec.ID)
		}
		if strings.Join(got, ",") != strings.Join(a.Refs, ",") {
			return fail(fmt.Sprintf("%v", a.Refs), fmt.Sprintf("%v", got))
		}

	case AssertCount:
		n, err := svc.CountByOwner(ctx, ir.OwnerID(a.Owner))
		if err != nil {
			return err
		}
		if n != a.Count {
			return fail(fmt.Sprintf("%d records for %s", a.Count, a.Owner), fmt.Sprintf("%d", n))
		}

	case AssertEvents:
		got := make([]string, len(flowEvents))
		for j, ev := range flowEvents {
			got[j] = string(ev.Kind) + ":" + h.name(ev.RecordID)
		}
		if strings.Join(got, ",") != strings.Join(a.Events, ",") {
			return fail(fmt.Sprintf("%v", a.Events), fmt.Sprintf("%v", got))
		}

	case AssertConsistent:
		if err := snap.CheckConsistency(); err != nil {
			return fail("consistent state", err.Error())
		}

	default:
		return fmt.Errorf("assertions[%d]: unknown type %q", i, a.Type)
	}
	return nil
}
