package cli

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/roach88/soulbound/internal/ir"
)

// TraceResult holds the event history of one record id.
type TraceResult struct {
	RecordID string      `json:"record_id"`
	Events   []EventView `json:"events"`
	Stats    TraceStats  `json:"stats"`
}

// TraceStats summarises a trace.
type TraceStats struct {
	Created int  `json:"created"`
	Updated int  `json:"updated"`
	Deleted int  `json:"deleted"`
	Live    bool `json:"live"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "trace <record-id>",
		Short: "Show the event history of a record id",
		Long: `Show every event recorded for a record id, in seq order.

Because ids are content hashes, an id can be created, deleted and created
again, possibly by a different owner. The trace shows all of it.

Examples:
  soulbound trace --db ./soulbound.db 3f2a...c9
  soulbound trace --db ./soulbound.db 3f2a...c9 --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(cmdContext(cmd), rootOpts, args[0], cmd)
		},
	}

	addBackendFlags(cmd, rootOpts)

	return cmd
}

func runTrace(ctx context.Context, opts *RootOptions, rawID string, cmd *cobra.Command) error {
	f := newFormatter(opts, cmd.OutOrStdout(), cmd.ErrOrStderr())
	id, err := ir.ParseRecordID(rawID)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeArgs, err.Error(), err)
	}

	return withRuntime(ctx, opts, f, func(rt *Runtime) error {
		st, err := rt.requireStore()
		if err != nil {
			return f.Fail(ExitCommandError, ErrCodeBackend, err.Error(), err)
		}
		events, err := st.ReadEvents(ctx, id)
		if err != nil {
			return f.FailErr(err)
		}
		if len(events) == 0 {
			return f.Fail(ExitFailure, ErrCodeNotFound, "no events for "+id.String(), nil)
		}

		result := TraceResult{RecordID: id.String(), Events: make([]EventView, len(events))}
		for i, ev := range events {
			result.Events[i] = newEventView(ev)
			switch ev.Kind {
			case ir.EventRecordCreated:
				result.Stats.Created++
				result.Stats.Live = true
			case ir.EventRecordUpdated:
				result.Stats.Updated++
			case ir.EventRecordDeleted:
				result.Stats.Deleted++
				result.Stats.Live = false
			}
		}

		return f.Success(result, func(w io.Writer) {
			fmt.Fprintf(w, "Trace: %s\n\n", result.RecordID)
			for _, ev := range result.Events {
				fmt.Fprintf(w, "  [seq=%d] %-13s owner=%s\n", ev.Seq, ev.Kind, ev.Owner)
			}
			fmt.Fprintln(w)
			state := "deleted"
			if result.Stats.Live {
				state = "live"
			}
			fmt.Fprintf(w, "%d created, %d updated, %d deleted (%s)\n",
				result.Stats.Created, result.Stats.Updated, result.Stats.Deleted, state)
		})
	})
}
