// Package ir provides the core vocabulary for soulbound credential records.
//
// This package contains type definitions, hashing and canonical encoding
// only. All other internal packages import ir; ir imports nothing internal.
// This keeps ir the foundational layer with no circular dependencies.
//
// Key design constraints:
//   - Record identity is content-derived: RecordID = Hash(payload) at creation
//   - Identity is never recomputed; updates replace the payload in place
//   - Ownership is fixed at creation and never transferred
//   - Logical clocks (seq) only, never wall-clock timestamps
//   - All JSON tags use snake_case
package ir
