package harness

import (
	"github.com/hashicorp/go-multierror"

	"github.com/roach88/soulbound/internal/ir"
	"github.com/roach88/soulbound/internal/kv"
)

// TraceStep records one applied flow call.
type TraceStep struct {
	Seq    int64  `json:"seq"`
	Op     string `json:"op"`
	Caller string `json:"caller"`

	// Target is the bound name or hex id of the affected record.
	Target string `json:"target"`

	// Result is "ok" or the rejection code.
	Result string `json:"result"`

	// Events are the step's events as "Kind:target".
	Events []string `json:"events"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every expect value and assertion held.
	Pass bool `json:"pass"`

	// Trace contains every flow call in order.
	Trace []TraceStep `json:"trace"`

	// Errors contains one message per failed expectation or assertion.
	Errors []string `json:"errors,omitempty"`

	// Digest is the canonical snapshot digest of the final state.
	Digest string `json:"digest"`

	// Snapshot is the final state.
	Snapshot *kv.Snapshot `json:"-"`
}

// NewResult creates a passing result.
func NewResult() *Result {
	return &Result{
		Pass:   true,
		Trace:  []TraceStep{},
		Errors: []string{},
	}
}

// AddError records a failure and marks the result as failed.
func (r *Result) AddError(msg string) {
	r.Errors = append(r.Errors, msg)
	r.Pass = false
}

// Err combines all failures into one error, or returns nil.
func (r *Result) Err() error {
	var merr *multierror.Error
	for _, msg := range r.Errors {
		merr = multierror.Append(merr, errorString(msg))
	}
	return merr.ErrorOrNil()
}

type errorString string

func (e errorString) Error() string { return string(e) }

// canonical returns the trace and digest as a canonical-JSON-ready map.
func (r *Result) canonical(name string) map[string]any {
	trace := make([]any, len(r.Trace))
	for i, step := range r.Trace {
		events := make([]string, len(step.Events))
		copy(events, step.Events)
		trace[i] = map[string]any{
			"seq":    step.Seq,
			"op":     step.Op,
			"caller": step.Caller,
			"target": step.Target,
			"result": step.Result,
			"events": events,
		}
	}
	return map[string]any{
		"scenario": name,
		"trace":    trace,
		"digest":   r.Digest,
	}
}

// Golden returns the canonical JSON compared against golden files.
func (r *Result) Golden(name string) ([]byte, error) {
	return ir.MarshalCanonical(r.canonical(name))
}
