package engine

import (
	"context"
	"fmt"

	"github.com/google/go-cmp/cmp"

	"github.com/roach88/soulbound/internal/credential"
	"github.com/roach88/soulbound/internal/ir"
	"github.com/roach88/soulbound/internal/kv"
	"github.com/roach88/soulbound/internal/kv/memory"
)

// ReplayResult is the state after applying a call list to an empty store.
type ReplayResult struct {
	Snapshot *kv.Snapshot
	Digest   string
	Outcomes []Outcome
}

// Codes returns the result code of every call, "" for successes.
func (r *ReplayResult) Codes() []ir.ErrorCode {
	codes := make([]ir.ErrorCode, len(r.Outcomes))
	for i, o := range r.Outcomes {
		codes[i] = o.Code()
	}
	return codes
}

// Replay applies calls in order to a fresh in-memory backend.
//
// Seq and ID on the input calls are ignored: replay assigns seqs from 1 and
// ids from a counter, so it never reads the system clock. The calls are
// replayed in slice order, which must be the original seq order.
func Replay(ctx context.Context, calls []ir.Call, hasher ir.Hasher) (*ReplayResult, error) {
	backend := memory.New()
	defer backend.Close()

	e := New(backend,
		WithCallIDGenerator(&SeqGenerator{}),
		WithServiceOptions(credential.WithHasher(hasher)),
	)

	res := &ReplayResult{Outcomes: make([]Outcome, 0, len(calls))}
	for i, call := range calls {
		call.ID, call.Seq = "", 0
		out, err := e.Apply(ctx, call)
		if err != nil {
			return nil, fmt.Errorf("replay call %d: %w", i, err)
		}
		res.Outcomes = append(res.Outcomes, out)
	}

	snap, err := backend.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("replay snapshot: %w", err)
	}
	if err := snap.CheckConsistency(); err != nil {
		return nil, fmt.Errorf("replay consistency: %w", err)
	}
	digest, err := snap.Digest()
	if err != nil {
		return nil, fmt.Errorf("replay digest: %w", err)
	}
	res.Snapshot = snap
	res.Digest = digest
	return res, nil
}

// VerifyDeterminism replays calls on two independent backends and returns
// the first result if both runs agree. If they disagree it returns a
// *DeterminismError describing the divergence.
func VerifyDeterminism(ctx context.Context, calls []ir.Call, hasher ir.Hasher) (*ReplayResult, error) {
	first, err := Replay(ctx, calls, hasher)
	if err != nil {
		return nil, err
	}
	second, err := Replay(ctx, calls, hasher)
	if err != nil {
		return nil, err
	}

	if divergences := Compare(first, second); len(divergences) > 0 {
		return first, &DeterminismError{
			Digests:     [2]string{first.Digest, second.Digest},
			Divergences: divergences,
		}
	}
	return first, nil
}

// Compare lists the differences between two replay results: per-call
// result codes first, then state. Empty means identical.
func Compare(a, b *ReplayResult) []string {
	var out []string
	for i := 0; i < len(a.Outcomes) && i < len(b.Outcomes); i++ {
		if ca, cb := a.Outcomes[i].Code(), b.Outcomes[i].Code(); ca != cb {
			out = append(out, fmt.Sprintf("call %d: result %q != %q", i+1, ca, cb))
		}
	}
	if len(a.Outcomes) != len(b.Outcomes) {
		out = append(out, fmt.Sprintf("outcome count %d != %d", len(a.Outcomes), len(b.Outcomes)))
	}
	if a.Digest != b.Digest {
		out = append(out, "state: "+cmp.Diff(a.Snapshot, b.Snapshot))
	}
	return out
}
