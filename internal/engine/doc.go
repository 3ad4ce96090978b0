// Package engine is the single writer in front of the credential service.
//
// ARCHITECTURE:
//
// Single-Writer Call Processing:
// Every mutating call goes through Engine.Apply, which holds one mutex for
// the whole call. This gives:
//   - A fixed, total order of calls
//   - A monotonic logical seq per call (Clock), never wall-clock time
//   - Events stamped with the seq of the call that produced them
//
// Call Processing Flow:
//  1. Apply validates the call shape and takes the next seq
//  2. The call is routed to credential.Service
//  3. Domain rejections become Outcome.Err; state is unchanged
//  4. The call and its result code are appended to the journal, if any
//
// Replay:
// Replay applies an ordered call list to a fresh in-memory backend.
// VerifyDeterminism does that twice and compares the canonical snapshot
// digests and per-call result codes. Identical input must give identical
// bytes.
package engine
