// Package export writes canonical snapshots of the credential state to a
// local directory or an S3-compatible bucket.
package export

import (
	"context"
	"fmt"

	"github.com/roach88/soulbound/internal/kv"
)

// Sink stores one exported document under a key.
type Sink interface {
	Put(ctx context.Context, key string, data []byte) error

	// Location describes where key is stored, for display.
	Location(key string) string
}

// Result describes a completed export.
type Result struct {
	Location string `json:"location"`
	Digest   string `json:"digest"`
	Size     int    `json:"size"`
	Records  int    `json:"records"`
	Owners   int    `json:"owners"`
}

// DefaultKey names a snapshot by its digest prefix.
func DefaultKey(digest string) string {
	if len(digest) > 16 {
		digest = digest[:16]
	}
	return "snapshot-" + digest + ".json"
}

// Snapshot takes a snapshot of backend and writes its canonical form to
// sink. An empty key means DefaultKey.
func Snapshot(ctx context.Context, backend kv.Backend, sink Sink, key string) (*Result, error) {
	snap, err := backend.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("snapshot: %w", err)
	}
	data, err := snap.Canonical()
	if err != nil {
		return nil, err
	}
	digest, err := snap.Digest()
	if err != nil {
		return nil, err
	}
	if key == "" {
		key = DefaultKey(digest)
	}
	if err := sink.Put(ctx, key, data); err != nil {
		return nil, fmt.Errorf("export %s: %w", key, err)
	}
	return &Result{
		Location: sink.Location(key),
		Digest:   digest,
		Size:     len(data),
		Records:  len(snap.Records),
		Owners:   len(snap.Owners),
	}, nil
}
