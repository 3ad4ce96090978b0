package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/soulbound/internal/engine"
	"github.com/roach88/soulbound/internal/ir"
)

// ReplayResult holds the replay verdict.
type ReplayResult struct {
	Calls         int    `json:"calls"`
	Rejected      int    `json:"rejected"`
	Digest        string `json:"digest"`
	LiveDigest    string `json:"live_digest"`
	Deterministic bool   `json:"deterministic"`
	MatchesLive   bool   `json:"matches_live"`

	// Divergences lists differences between the two replays, between
	// journaled and replayed result codes, and against the live state.
	Divergences []string `json:"divergences,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Replay the call journal and verify determinism",
		Long: `Replay the call journal and verify determinism.

The journal is applied twice, in seq order, to two fresh in-memory stores.
Both runs must produce the same result code for every call and the same
snapshot digest, and that digest must equal the digest of the live database.

Exit codes:
  0 - Replay is deterministic and matches the live state
  1 - Determinism verification failed (differences detected)
  2 - Command error (database not found, memory backend, etc.)

Examples:
  soulbound replay --db ./soulbound.db
  soulbound replay --db ./soulbound.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(cmdContext(cmd), rootOpts, cmd)
		},
	}

	addBackendFlags(cmd, rootOpts)

	return cmd
}

func runReplay(ctx context.Context, opts *RootOptions, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	return withRuntime(ctx, opts, f, func(rt *Runtime) error {
		st, err := rt.requireStore()
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeBackend, err.Error(), err)
		}

		entries, err := st.ReadCalls(ctx)
		if err != nil {
			return f.FailErr(err)
		}
		calls := make([]ir.Call, len(entries))
		for i, e := range entries {
			calls[i] = e.Call
		}
		f.VerboseLog("Replaying %d call(s) with %s", len(calls), rt.Hasher.Name())

		result := ReplayResult{Calls: len(calls), Deterministic: true}
		replayed, err := engine.VerifyDeterminism(ctx, calls, rt.Hasher)
		var detErr *engine.DeterminismError
		switch {
		case errors.As(err, &detErr):
			result.Deterministic = false
			result.Divergences = append(result.Divergences, detErr.Divergences...)
		case err != nil:
			return f.FailErr(err)
		}
		result.Digest = replayed.Digest

		for i, e := range entries {
			got := replayed.Outcomes[i].Code()
			if got != "" {
				result.Rejected++
			}
			if got != e.ResultCode {
				result.Divergences = append(result.Divergences,
					fmt.Sprintf("seq %d: journaled %s, replayed %s", e.Call.Seq, resultLabel(e.ResultCode), resultLabel(got)))
			}
		}

		live, err := st.Snapshot(ctx)
		if err != nil {
			return f.FailErr(err)
		}
		if result.LiveDigest, err = live.Digest(); err != nil {
			return f.FailErr(err)
		}
		result.MatchesLive = result.LiveDigest == result.Digest
		if !result.MatchesLive {
			result.Divergences = append(result.Divergences,
				fmt.Sprintf("live digest %s != replayed %s", result.LiveDigest, result.Digest))
		}

		return outputReplay(f, result)
	})
}

func resultLabel(code ir.ErrorCode) string {
	if code == "" {
		return "ok"
	}
	return string(code)
}

func outputReplay(f *OutputFormatter, result ReplayResult) error {
	ok := result.Deterministic && result.MatchesLive && len(result.Divergences) == 0
	if f.Format == "json" {
		resp := CLIResponse{Status: "ok", Data: result}
		if !ok {
			resp.Status = "error"
			resp.Error = &CLIError{Code: ErrCodeDeterminism, Message: "determinism verification failed"}
		}
		if err := f.encode(resp); err != nil {
			return err
		}
	} else {
		writeReplayText(f.Writer, result, f.Verbose)
	}
	if !ok {
		return &ExitError{Code: ExitFailure, Message: "determinism verification failed", reported: true}
	}
	return nil
}

func writeReplayText(w io.Writer, result ReplayResult, verbose bool) {
	fmt.Fprintf(w, "Replay Summary: %d call(s), %d rejected\n", result.Calls, result.Rejected)
	fmt.Fprintf(w, "  Replayed digest: %s\n", result.Digest)
	if verbose || !result.MatchesLive {
		fmt.Fprintf(w, "  Live digest:     %s\n", result.LiveDigest)
	}
	for _, d := range result.Divergences {
		fmt.Fprintf(w, "  ✗ %s\n", d)
	}
	fmt.Fprintln(w)

	if result.Deterministic && result.MatchesLive && len(result.Divergences) == 0 {
		fmt.Fprintln(w, "✓ Replay verified deterministic")
		return
	}
	fmt.Fprintln(w, "✗ Determinism verification failed")
}
