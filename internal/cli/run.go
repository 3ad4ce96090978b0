package cli

import (
	"bytes"
	"context"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/roach88/soulbound/internal/ir"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Strict bool // exit 1 when any call is rejected
}

// Batch is a YAML file of calls applied in order.
//
//	calls:
//	  - op: create
//	    as: alice
//	    payload: '{"degree":"BSc"}'
//	    bind: degree
//	  - op: delete
//	    as: alice
//	    ref: degree
type Batch struct {
	Calls []BatchCall `yaml:"calls"`
}

// BatchCall is one call of a batch. Targets are given by ref (a name bound
// by an earlier create) or id (hex).
type BatchCall struct {
	Op         string `yaml:"op"`
	As         string `yaml:"as"`
	Payload    string `yaml:"payload,omitempty"`
	PayloadHex string `yaml:"payload_hex,omitempty"`
	Ref        string `yaml:"ref,omitempty"`
	ID         string `yaml:"id,omitempty"`
	Bind       string `yaml:"bind,omitempty"`
}

// RunResult is the output of the run command.
type RunResult struct {
	Calls    []CallView `json:"calls"`
	Applied  int        `json:"applied"`
	Rejected int        `json:"rejected"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <batch.yaml>",
		Short: "Apply a batch of calls in order",
		Long: `Apply a YAML batch of create, update and delete calls in order.

Rejected calls are reported and the batch continues. Names bound with
"bind" can be used as "ref" by later calls. When metrics.enabled is set
the operation metrics are written to stderr at the end.

Example:
  soulbound run --db ./soulbound.db ./batch.yaml
  soulbound run --backend memory ./batch.yaml --strict`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBatch(cmdContext(cmd), opts, args[0], cmd)
		},
	}

	addBackendFlags(cmd, rootOpts)
	cmd.Flags().BoolVar(&opts.Strict, "strict", false, "exit 1 if any call is rejected")

	return cmd
}

// LoadBatch reads and strictly decodes a batch file.
func LoadBatch(path string) (*Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch file: %w", err)
	}
	var b Batch
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&b); err != nil {
		return nil, fmt.Errorf("parse batch: %w", err)
	}
	if len(b.Calls) == 0 {
		return nil, fmt.Errorf("batch has no calls")
	}
	return &b, nil
}

func runBatch(ctx context.Context, opts *RunOptions, path string, cmd *cobra.Command) error {
	f := newFormatter(opts.RootOptions, cmd.OutOrStdout(), cmd.ErrOrStderr())

	batch, err := LoadBatch(path)
	if err != nil {
		return f.Fail(ExitCommandError, ErrCodeArgs, err.Error(), err)
	}

	return withRuntime(ctx, opts.RootOptions, f, func(rt *Runtime) error {
		refs := make(map[string]ir.RecordID)
		result := RunResult{Calls: make([]CallView, 0, len(batch.Calls))}

		for i, bc := range batch.Calls {
			call, err := bc.toCall(refs)
			if err != nil {
				return f.Fail(ExitCommandError, ErrCodeArgs, fmt.Sprintf("calls[%d]: %v", i, err), err)
			}
			out, err := rt.Engine.Apply(ctx, call)
			if err != nil {
				return f.FailErr(err)
			}
			if out.Err == nil && bc.Bind != "" {
				refs[bc.Bind] = out.RecordID
			}
			if out.Err != nil {
				result.Rejected++
			} else {
				result.Applied++
			}
			result.Calls = append(result.Calls, newCallView(out))
		}

		if err := rt.WriteMetrics(f.errWriter()); err != nil {
			rt.Logger.Warn("metrics output failed", "error", err)
		}

		if err := f.Success(result, func(w io.Writer) { writeRunText(w, result) }); err != nil {
			return err
		}
		if opts.Strict && result.Rejected > 0 {
			return &ExitError{Code: ExitFailure, Message: fmt.Sprintf("%d call(s) rejected", result.Rejected), reported: true}
		}
		return nil
	})
}

// toCall resolves refs and payload encoding.
func (bc BatchCall) toCall(refs map[string]ir.RecordID) (ir.Call, error) {
	call := ir.Call{Kind: ir.CallKind(bc.Op), Caller: ir.OwnerID(bc.As)}
	if !call.Kind.Valid() {
		return ir.Call{}, fmt.Errorf("unknown op %q", bc.Op)
	}

	switch {
	case bc.Payload != "" && bc.PayloadHex != "":
		return ir.Call{}, fmt.Errorf("payload and payload_hex are mutually exclusive")
	case bc.PayloadHex != "":
		p, err := hex.DecodeString(bc.PayloadHex)
		if err != nil {
			return ir.Call{}, fmt.Errorf("decode payload_hex: %w", err)
		}
		call.Payload = p
	default:
		call.Payload = []byte(bc.Payload)
	}

	if call.Kind == ir.CallCreate {
		if bc.Ref != "" || bc.ID != "" {
			return ir.Call{}, fmt.Errorf("create takes no ref or id")
		}
		return call, nil
	}
	if bc.Bind != "" {
		return ir.Call{}, fmt.Errorf("bind applies to create only")
	}
	if call.Kind == ir.CallDelete {
		call.Payload = nil
	}
	switch {
	case bc.Ref != "" && bc.ID != "":
		return ir.Call{}, fmt.Errorf("ref and id are mutually exclusive")
	case bc.Ref != "":
		id, ok := refs[bc.Ref]
		if !ok {
			return ir.Call{}, fmt.Errorf("ref %q is not bound by an earlier successful create", bc.Ref)
		}
		call.RecordID = id
	case bc.ID != "":
		id, err := ir.ParseRecordID(bc.ID)
		if err != nil {
			return ir.Call{}, err
		}
		call.RecordID = id
	default:
		return ir.Call{}, fmt.Errorf("%s requires ref or id", bc.Op)
	}
	return call, nil
}

func writeRunText(w io.Writer, result RunResult) {
	for _, c := range result.Calls {
		status := "✓"
		if c.Result != "ok" {
			status = "✗"
		}
		fmt.Fprintf(w, "%s seq=%d %s as %s %s %s\n", status, c.Seq, c.Op, c.Caller, c.RecordID, c.Result)
	}
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Run Summary: %d applied, %d rejected\n", result.Applied, result.Rejected)
}
