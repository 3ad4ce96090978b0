package cli

import (
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/roach88/soulbound/internal/ir"
)

// RecordView is the printed form of a record.
type RecordView struct {
	RecordID string `json:"record_id"`
	Owner    string `json:"owner"`
	Size     int    `json:"size"`

	// Payload is the payload as text when it is valid UTF-8, else empty.
	Payload    string `json:"payload,omitempty"`
	PayloadHex string `json:"payload_hex"`
}

func newRecordView(rec ir.Record) RecordView {
	v := RecordView{
		RecordID:   rec.ID.String(),
		Owner:      string(rec.Owner),
		Size:       len(rec.Payload),
		PayloadHex: hex.EncodeToString(rec.Payload),
	}
	if utf8.Valid(rec.Payload) {
		v.Payload = string(rec.Payload)
	}
	return v
}

// ListResult is the output of the list command.
type ListResult struct {
	Owner   string       `json:"owner"`
	Count   int          `json:"count"`
	Records []RecordView `json:"records"`
}

// NewListCommand creates the list command.
func NewListCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "list <owner>",
		Short: "List an owner's records in creation order",
		Example: `  soulbound list alice
  soulbound list alice --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			return withRuntime(cmdContext(cmd), rootOpts, f, func(rt *Runtime) error {
				records, err := rt.Engine.Service().ListByOwner(cmdContext(cmd), ir.OwnerID(args[0]))
				if err != nil {
					return f.FailErr(err)
				}
				res := ListResult{Owner: args[0], Count: len(records), Records: make([]RecordView, len(records))}
				for i, rec := range records {
					res.Records[i] = newRecordView(rec)
				}
				return f.Success(res, func(w io.Writer) {
					fmt.Fprintf(w, "%s: %d record(s)\n", res.Owner, res.Count)
					for _, r := range res.Records {
						fmt.Fprintf(w, "  %s (%d bytes)\n", r.RecordID, r.Size)
					}
				})
			})
		},
	}
	addBackendFlags(cmd, rootOpts)
	return cmd
}

// ExistsResult is the output of the exists command.
type ExistsResult struct {
	RecordID string `json:"record_id"`
	Exists   bool   `json:"exists"`
}

// NewExistsCommand creates the exists command. It exits 0 either way;
// the answer is in the output.
func NewExistsCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "exists <record-id>",
		Short:         "Report whether a record id is in use",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			id, err := ir.ParseRecordID(args[0])
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeArgs, err.Error(), err)
			}
			return withRuntime(cmdContext(cmd), rootOpts, f, func(rt *Runtime) error {
				ok, err := rt.Engine.Service().Exists(cmdContext(cmd), id)
				if err != nil {
					return f.FailErr(err)
				}
				return f.Success(ExistsResult{RecordID: id.String(), Exists: ok}, func(w io.Writer) {
					fmt.Fprintln(w, ok)
				})
			})
		},
	}
	addBackendFlags(cmd, rootOpts)
	return cmd
}

// OwnerResult is the output of the owner command.
type OwnerResult struct {
	RecordID string `json:"record_id"`
	Owner    string `json:"owner"`
}

// NewOwnerCommand creates the owner command. An unknown id exits 1.
func NewOwnerCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "owner <record-id>",
		Short:         "Print the owner of a record",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			id, err := ir.ParseRecordID(args[0])
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeArgs, err.Error(), err)
			}
			return withRuntime(cmdContext(cmd), rootOpts, f, func(rt *Runtime) error {
				owner, ok, err := rt.Engine.Service().OwnerOf(cmdContext(cmd), id)
				if err != nil {
					return f.FailErr(err)
				}
				if !ok {
					return f.Fail(ExitFailure, ErrCodeNotFound, "no record "+id.String(), nil)
				}
				return f.Success(OwnerResult{RecordID: id.String(), Owner: string(owner)}, func(w io.Writer) {
					fmt.Fprintln(w, owner)
				})
			})
		},
	}
	addBackendFlags(cmd, rootOpts)
	return cmd
}

// NewGetCommand creates the get command. An unknown id exits 1.
func NewGetCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "get <record-id>",
		Short:         "Print a record",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f := newFormatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			id, err := ir.ParseRecordID(args[0])
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeArgs, err.Error(), err)
			}
			return withRuntime(cmdContext(cmd), rootOpts, f, func(rt *Runtime) error {
				rec, ok, err := rt.Engine.Service().Get(cmdContext(cmd), id)
				if err != nil {
					return f.FailErr(err)
				}
				if !ok {
					return f.Fail(ExitFailure, ErrCodeNotFound, "no record "+id.String(), nil)
				}
				view := newRecordView(rec)
				return f.Success(view, func(w io.Writer) {
					fmt.Fprintf(w, "id:      %s\n", view.RecordID)
					fmt.Fprintf(w, "owner:   %s\n", view.Owner)
					fmt.Fprintf(w, "size:    %d\n", view.Size)
					if view.Payload != "" || view.Size == 0 {
						fmt.Fprintf(w, "payload: %s\n", view.Payload)
					} else {
						fmt.Fprintf(w, "payload: 0x%s\n", view.PayloadHex)
					}
				})
			})
		},
	}
	addBackendFlags(cmd, rootOpts)
	return cmd
}

// cmdContext returns the command's context, or Background when the
// command was executed without one.
func cmdContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
