package cli

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/soulbound/internal/engine"
	"github.com/roach88/soulbound/internal/ir"
)

// InvokeOptions holds flags shared by create, update and delete.
type InvokeOptions struct {
	*RootOptions
	As          string // caller identity
	PayloadFile string // read payload from file ("-" for stdin)
	Hex         bool   // payload argument is hex encoded
}

// CallView is the printed result of one applied call.
type CallView struct {
	Seq      int64       `json:"seq"`
	CallID   string      `json:"call_id"`
	Op       string      `json:"op"`
	Caller   string      `json:"caller"`
	RecordID string      `json:"record_id"`
	Result   string      `json:"result"`
	Events   []EventView `json:"events"`
}

// EventView is the printed form of an event.
type EventView struct {
	Seq      int64  `json:"seq"`
	Kind     string `json:"kind"`
	RecordID string `json:"record_id"`
	Owner    string `json:"owner"`
}

func newEventView(ev ir.Event) EventView {
	return EventView{
		Seq:      ev.Seq,
		Kind:     string(ev.Kind),
		RecordID: ev.RecordID.String(),
		Owner:    string(ev.Owner),
	}
}

func newCallView(out engine.Outcome) CallView {
	v := CallView{
		Seq:      out.Call.Seq,
		CallID:   out.Call.ID,
		Op:       string(out.Call.Kind),
		Caller:   string(out.Call.Caller),
		RecordID: out.RecordID.String(),
		Result:   "ok",
		Events:   make([]EventView, len(out.Events)),
	}
	if code := out.Code(); code != "" {
		v.Result = string(code)
	}
	for i, ev := range out.Events {
		v.Events[i] = newEventView(ev)
	}
	return v
}

// NewCreateCommand creates the create command.
func NewCreateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "create [payload]",
		Short: "Create a record owned by the caller",
		Long: `Create a record whose id is the hash of its payload.

The payload is taken from the argument, or from --file. With --hex the
argument is decoded from hex first.

Exit codes:
  0 - Record created
  1 - Call rejected (PAYLOAD_TOO_LARGE, DUPLICATE_RECORD, CAPACITY_EXCEEDED, ...)
  2 - Command error

Examples:
  soulbound create --as alice '{"degree":"BSc"}'
  soulbound create --as alice --file ./credential.json --db ./soulbound.db`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
			payload, err := opts.payload(args, cmd.InOrStdin())
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeArgs, err.Error(), err)
			}
			return invoke(cmdContext(cmd), opts, f, ir.Call{Kind: ir.CallCreate, Caller: ir.OwnerID(opts.As), Payload: payload})
		},
	}

	addBackendFlags(cmd, rootOpts)
	addCallerFlag(cmd, opts)
	cmd.Flags().StringVar(&opts.PayloadFile, "file", "", "read payload from file (- for stdin)")
	cmd.Flags().BoolVar(&opts.Hex, "hex", false, "payload argument is hex encoded")

	return cmd
}

// NewUpdateCommand creates the update command.
func NewUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "update <record-id> [payload]",
		Short: "Replace the payload of a record the caller owns",
		Long: `Replace the payload of an existing record. The record keeps its id.

Examples:
  soulbound update --as alice 3f2a...c9 '{"degree":"MSc"}'`,
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
			id, err := ir.ParseRecordID(args[0])
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeArgs, err.Error(), err)
			}
			payload, err := opts.payload(args[1:], cmd.InOrStdin())
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeArgs, err.Error(), err)
			}
			return invoke(cmdContext(cmd), opts, f, ir.Call{Kind: ir.CallUpdate, Caller: ir.OwnerID(opts.As), RecordID: id, Payload: payload})
		},
	}

	addBackendFlags(cmd, rootOpts)
	addCallerFlag(cmd, opts)
	cmd.Flags().StringVar(&opts.PayloadFile, "file", "", "read payload from file (- for stdin)")
	cmd.Flags().BoolVar(&opts.Hex, "hex", false, "payload argument is hex encoded")

	return cmd
}

// NewDeleteCommand creates the delete command.
func NewDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "delete <record-id>",
		Short: "Delete a record the caller owns",
		Long: `Delete a record and remove it from its owner's list. The id becomes
free, so the same payload can be created again.

Examples:
  soulbound delete --as alice 3f2a...c9`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())
			id, err := ir.ParseRecordID(args[0])
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeArgs, err.Error(), err)
			}
			return invoke(cmdContext(cmd), opts, f, ir.Call{Kind: ir.CallDelete, Caller: ir.OwnerID(opts.As), RecordID: id})
		},
	}

	addBackendFlags(cmd, rootOpts)
	addCallerFlag(cmd, opts)

	return cmd
}

func addCallerFlag(cmd *cobra.Command, opts *InvokeOptions) {
	cmd.Flags().StringVar(&opts.As, "as", "", "caller identity (required)")
	_ = cmd.MarkFlagRequired("as")
}

// payload reads the call payload from args or --file.
func (o *InvokeOptions) payload(args []string, stdin io.Reader) ([]byte, error) {
	var raw []byte
	switch {
	case o.PayloadFile != "" && len(args) > 0:
		return nil, fmt.Errorf("payload given both as argument and --file")
	case o.PayloadFile == "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return nil, fmt.Errorf("read stdin: %w", err)
		}
		raw = data
	case o.PayloadFile != "":
		data, err := os.ReadFile(o.PayloadFile)
		if err != nil {
			return nil, fmt.Errorf("read payload file: %w", err)
		}
		raw = data
	case len(args) == 1:
		raw = []byte(args[0])
	default:
		return nil, fmt.Errorf("payload required (argument or --file)")
	}
	if !o.Hex {
		return raw, nil
	}
	decoded, err := hex.DecodeString(string(raw))
	if err != nil {
		return nil, fmt.Errorf("decode hex payload: %w", err)
	}
	return decoded, nil
}

// invoke applies one call and prints its outcome. A rejected call exits 1
// with the rejection code.
func invoke(ctx context.Context, opts *InvokeOptions, f *OutputFormatter, call ir.Call) error {
	return withRuntime(ctx, opts.RootOptions, f, func(rt *Runtime) error {
		out, err := rt.Engine.Apply(ctx, call)
		if err != nil {
			return f.FailErr(err)
		}
		view := newCallView(out)
		if out.Err != nil {
			if werr := f.Error(view.Result, out.Err.Error(), view); werr != nil {
				return werr
			}
			return &ExitError{Code: ExitFailure, Message: out.Err.Error(), Err: out.Err, reported: true}
		}
		return f.Success(view, func(w io.Writer) {
			fmt.Fprintf(w, "✓ %s %s (seq %d)\n", view.Op, view.RecordID, view.Seq)
			for _, ev := range view.Events {
				fmt.Fprintf(w, "  %s owner=%s\n", ev.Kind, ev.Owner)
			}
		})
	})
}
