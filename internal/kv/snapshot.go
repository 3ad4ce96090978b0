package kv

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/roach88/soulbound/internal/ir"
)

// OwnerEntry is one owner's index entry.
type OwnerEntry struct {
	Owner ir.OwnerID    `json:"owner"`
	IDs   []ir.RecordID `json:"record_ids"`
}

// Snapshot is the complete state of a backend.
//
// Records are sorted by id, owners by owner string. Owners with an empty
// list are omitted so that a lazily created empty entry and a missing
// entry produce the same digest.
type Snapshot struct {
	Records []ir.Record  `json:"records"`
	Owners  []OwnerEntry `json:"owners"`
}

// NewSnapshot builds a snapshot from unordered maps.
func NewSnapshot(records map[ir.RecordID]ir.Record, owners map[ir.OwnerID][]ir.RecordID) *Snapshot {
	s := &Snapshot{
		Records: make([]ir.Record, 0, len(records)),
		Owners:  make([]OwnerEntry, 0, len(owners)),
	}
	for _, rec := range records {
		s.Records = append(s.Records, rec.Clone())
	}
	for owner, ids := range owners {
		if len(ids) == 0 {
			continue
		}
		s.Owners = append(s.Owners, OwnerEntry{Owner: owner, IDs: append([]ir.RecordID(nil), ids...)})
	}
	s.sort()
	return s
}

func (s *Snapshot) sort() {
	sort.Slice(s.Records, func(i, j int) bool {
		return bytes.Compare(s.Records[i].ID[:], s.Records[j].ID[:]) < 0
	})
	sort.Slice(s.Owners, func(i, j int) bool {
		return s.Owners[i].Owner < s.Owners[j].Owner
	})
}

// Canonical encodes the snapshot as RFC 8785 JSON. Payloads are hex.
func (s *Snapshot) Canonical() ([]byte, error) {
	records := make([]any, len(s.Records))
	for i, rec := range s.Records {
		records[i] = map[string]any{
			"record_id": rec.ID.String(),
			"owner":     string(rec.Owner),
			"payload":   hex.EncodeToString(rec.Payload),
		}
	}
	owners := make([]any, len(s.Owners))
	for i, entry := range s.Owners {
		ids := make([]string, len(entry.IDs))
		for j, id := range entry.IDs {
			ids[j] = id.String()
		}
		owners[i] = map[string]any{
			"owner":      string(entry.Owner),
			"record_ids": ids,
		}
	}
	out, err := ir.MarshalCanonical(map[string]any{
		"version": ir.StateFormatVersion,
		"records": records,
		"owners":  owners,
	})
	if err != nil {
		return nil, fmt.Errorf("canonical snapshot: %w", err)
	}
	return out, nil
}

// Digest returns the SHA-256 of the canonical encoding as hex.
func (s *Snapshot) Digest() (string, error) {
	canonical, err := s.Canonical()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Owner returns the ids held by owner, or nil.
func (s *Snapshot) Owner(owner ir.OwnerID) []ir.RecordID {
	for _, entry := range s.Owners {
		if entry.Owner == owner {
			return entry.IDs
		}
	}
	return nil
}

// CheckConsistency verifies the index/store bijection: every indexed id
// resolves to a record with the indexing owner, every record is indexed
// exactly once, and no list exceeds capacity.
func (s *Snapshot) CheckConsistency() error {
	byID := make(map[ir.RecordID]ir.OwnerID, len(s.Records))
	for _, rec := range s.Records {
		byID[rec.ID] = rec.Owner
	}
	seen := make(map[ir.RecordID]bool, len(s.Records))
	for _, entry := range s.Owners {
		if len(entry.IDs) > ir.MaxRecordsPerOwner {
			return fmt.Errorf("owner %s holds %d ids, capacity is %d", entry.Owner, len(entry.IDs), ir.MaxRecordsPerOwner)
		}
		for _, id := range entry.IDs {
			owner, ok := byID[id]
			if !ok {
				return fmt.Errorf("owner %s indexes missing record %s", entry.Owner, id)
			}
			if owner != entry.Owner {
				return fmt.Errorf("owner %s indexes record %s owned by %s", entry.Owner, id, owner)
			}
			if seen[id] {
				return fmt.Errorf("record %s indexed more than once", id)
			}
			seen[id] = true
		}
	}
	for _, rec := range s.Records {
		if !seen[rec.ID] {
			return fmt.Errorf("record %s is not indexed under owner %s", rec.ID, rec.Owner)
		}
	}
	return nil
}
