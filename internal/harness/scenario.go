package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/roach88/soulbound/internal/ir"
)

// Scenario is one executable credential scenario.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description,omitempty"`

	// Hash selects the record id algorithm. Empty means blake2b-256.
	Hash string `yaml:"hash,omitempty"`

	// Setup steps must all succeed. They are not part of the trace.
	Setup []Step `yaml:"setup,omitempty"`

	// Flow steps are traced and checked against their expect value.
	Flow []Step `yaml:"flow"`

	// Assertions validate the final state and emitted events.
	Assertions []Assertion `yaml:"assertions,omitempty"`
}

// Step is one call.
type Step struct {
	// Op is create, update or delete.
	Op string `yaml:"op"`

	// As is the caller identity.
	As string `yaml:"as"`

	// Payload is the record content for create and update.
	Payload string `yaml:"payload,omitempty"`

	// PayloadSize pads Payload with '.' to exactly this many bytes.
	PayloadSize int `yaml:"payload_size,omitempty"`

	// Ref targets a record bound by an earlier step (update, delete).
	Ref string `yaml:"ref,omitempty"`

	// ID targets a record by hex id (update, delete).
	ID string `yaml:"id,omitempty"`

	// Bind names the id returned by a create.
	Bind string `yaml:"bind,omitempty"`

	// Repeat issues a create this many times, suffixing "#i" to Payload.
	Repeat int `yaml:"repeat,omitempty"`

	// Expect is "ok" or an error code. Empty means "ok".
	Expect string `yaml:"expect,omitempty"`
}

// Assertion type constants.
const (
	AssertExists     = "exists"
	AssertAbsent     = "absent"
	AssertOwner      = "owner"
	AssertPayload    = "payload"
	AssertList       = "list"
	AssertCount      = "count"
	AssertEvents     = "events"
	AssertConsistent = "consistent"
)

// Assertion validates final state.
type Assertion struct {
	Type    string   `yaml:"type"`
	Ref     string   `yaml:"ref,omitempty"`
	ID      string   `yaml:"id,omitempty"`
	Owner   string   `yaml:"owner,omitempty"`
	Payload string   `yaml:"payload,omitempty"`
	Refs    []string `yaml:"refs,omitempty"`
	Count   int      `yaml:"count,omitempty"`

	// Events lists every emitted event in order as "Kind:ref".
	Events []string `yaml:"events,omitempty"`
}

// LoadScenario reads, schema-checks and strictly decodes a scenario file.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario file: %w", err)
	}
	s, err := ParseScenario(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filepath.Base(path), err)
	}
	return s, nil
}

// ParseScenario schema-checks and strictly decodes scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	if err := ValidateSchema(data); err != nil {
		return nil, err
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true) // Reject unknown fields
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// LoadScenarios loads every *.yaml file in dir, sorted by file name.
func LoadScenarios(dir string) ([]*Scenario, error) {
	paths, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("glob scenarios: %w", err)
	}
	sort.Strings(paths)

	scenarios := make([]*Scenario, 0, len(paths))
	for _, p := range paths {
		s, err := LoadScenario(p)
		if err != nil {
			return nil, err
		}
		scenarios = append(scenarios, s)
	}
	return scenarios, nil
}

// validateScenario checks cross-field rules the schema cannot express.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if len(s.Flow) == 0 {
		return fmt.Errorf("flow list is required and must be non-empty")
	}
	if _, err := ir.NewHasher(s.Hash); err != nil {
		return err
	}

	bound := make(map[string]bool)
	check := func(section string, steps []Step) error {
		for i, step := range steps {
			if err := validateStep(step, bound); err != nil {
				return fmt.Errorf("%s[%d]: %w", section, i, err)
			}
			if step.Bind != "" {
				bound[step.Bind] = true
			}
		}
		return nil
	}
	if err := check("setup", s.Setup); err != nil {
		return err
	}
	if err := check("flow", s.Flow); err != nil {
		return err
	}

	for i, a := range s.Assertions {
		if err := validateAssertion(a, bound); err != nil {
			return fmt.Errorf("assertions[%d]: %w", i, err)
		}
	}
	return nil
}

func validateStep(step Step, bound map[string]bool) error {
	targeted := step.Ref != "" || step.ID != ""
	switch ir.CallKind(step.Op) {
	case ir.CallCreate:
		if targeted {
			return fmt.Errorf("create takes no ref or id")
		}
		if step.Repeat > 0 && step.Bind != "" {
			return fmt.Errorf("repeat and bind are mutually exclusive")
		}
	case ir.CallUpdate, ir.CallDelete:
		if step.Ref != "" && step.ID != "" {
			return fmt.Errorf("%s takes ref or id, not both", step.Op)
		}
		if !targeted {
			return fmt.Errorf("%s requires ref or id", step.Op)
		}
		if step.Bind != "" || step.Repeat > 0 {
			return fmt.Errorf("bind and repeat apply to create only")
		}
		if step.Op == string(ir.CallDelete) && (step.Payload != "" || step.PayloadSize > 0) {
			return fmt.Errorf("delete takes no payload")
		}
	default:
		return fmt.Errorf("unknown op %q", step.Op)
	}
	if step.Ref != "" && !bound[step.Ref] {
		return fmt.Errorf("ref %q is not bound by an earlier step", step.Ref)
	}
	if step.PayloadSize > 0 && len(step.Payload) > step.PayloadSize {
		return fmt.Errorf("payload is longer than payload_size")
	}
	return nil
}

func validateAssertion(a Assertion, bound map[string]bool) error {
	refs := a.Refs
	if a.Ref != "" {
		refs = append([]string{a.Ref}, refs...)
	}
	for _, ev := range a.Events {
		_, ref, _ := strings.Cut(ev, ":")
		refs = append(refs, ref)
	}
	for _, r := range refs {
		if !bound[r] {
			return fmt.Errorf("ref %q is not bound", r)
		}
	}

	needTarget := func() error {
		if a.Ref == "" && a.ID == "" {
			return fmt.Errorf("%s requires ref or id", a.Type)
		}
		return nil
	}
	switch a.Type {
	case AssertExists, AssertAbsent:
		return needTarget()
	case AssertOwner:
		if a.Owner == "" {
			return fmt.Errorf("owner assertion requires owner")
		}
		return needTarget()
	case AssertPayload:
		return needTarget()
	case AssertList, AssertCount:
		if a.Owner == "" {
			return fmt.Errorf("%s assertion requires owner", a.Type)
		}
	case AssertEvents, AssertConsistent:
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
	return nil
}

// payloads expands a create step into the payloads it issues.
func (s Step) payloads() [][]byte {
	n := s.Repeat
	if n == 0 {
		n = 1
	}
	out := make([][]byte, 0, n)
	for i := 0; i < n; i++ {
		p := s.Payload
		if s.Repeat > 0 {
			p = fmt.Sprintf("%s#%d", p, i)
		}
		out = append(out, pad([]byte(p), s.PayloadSize))
	}
	return out
}

func pad(p []byte, size int) []byte {
	if size <= len(p) {
		return p
	}
	return append(p, bytes.Repeat([]byte{'.'}, size-len(p))...)
}
