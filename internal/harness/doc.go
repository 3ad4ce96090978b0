// Package harness runs credential scenarios as executable contract tests.
//
// A scenario is a YAML file of calls with expected results, followed by
// assertions on the final state. Scenarios run through engine.Engine on a
// fresh in-memory backend, so every run is isolated and deterministic.
//
// # Scenario Format
//
//	name: lifecycle
//	description: "Create, update and delete one record"
//	hash: blake2b-256            # optional, blake2b-256 (default) or sha256
//	setup:                       # calls that must succeed
//	  - op: create
//	    as: alice
//	    payload: "seed"
//	flow:
//	  - op: create
//	    as: A
//	    payload: '{"x":1}'
//	    bind: h1                 # name the created id for later steps
//	  - op: create
//	    as: A
//	    payload: '{"x":1}'
//	    expect: DUPLICATE_RECORD # "ok" when omitted
//	  - op: delete
//	    as: B
//	    ref: h1
//	    expect: NOT_OWNER
//	assertions:
//	  - type: owner
//	    ref: h1
//	    owner: A
//	  - type: list
//	    owner: A
//	    refs: [h1]
//
// Steps may set payload_size to pad the payload to an exact length, and
// repeat to issue the same create N times with a "#i" suffix on the payload.
//
// Files are checked against an embedded CUE schema before decoding, then
// decoded strictly: unknown fields are errors.
//
// # Golden Files
//
// RunWithGolden compares a scenario's trace and final state digest against
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/harness -update
package harness
