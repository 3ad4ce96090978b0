package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/roach88/soulbound/internal/ir"
)

// JournalEntry is one applied call and the error code it produced.
// ResultCode is empty for calls that succeeded.
type JournalEntry struct {
	Call       ir.Call
	ResultCode ir.ErrorCode
}

// ErrSeqTaken is returned when a call is journaled at a seq (or with a call
// id) that is already in the journal, typically because another process
// wrote to the same database since this one read LastSeq.
var ErrSeqTaken = errors.New("store: journal seq already taken")

// JournalTx is implemented by the kv.Tx that Update hands out. A call
// appended through it commits or rolls back with the transaction's other
// writes.
type JournalTx interface {
	AppendCall(ctx context.Context, entry JournalEntry) error
}

var _ JournalTx = (*tx)(nil)

const insertCall = `
	INSERT INTO calls (seq, id, kind, caller, record_id, payload, result_code)
	VALUES (?, ?, ?, ?, ?, ?, ?)
`

// AppendCall records an applied call in the journal. A seq that is already
// journaled fails with ErrSeqTaken.
func (s *Store) AppendCall(ctx context.Context, entry JournalEntry) error {
	_, err := s.db.ExecContext(ctx, s.rebind(insertCall), callArgs(entry)...)
	return appendErr(entry, err)
}

// AppendCall journals entry inside the transaction.
func (t *tx) AppendCall(ctx context.Context, entry JournalEntry) error {
	return appendErr(entry, t.exec(ctx, insertCall, callArgs(entry)...))
}

func callArgs(entry JournalEntry) []any {
	c := entry.Call
	recordID := ""
	if !c.RecordID.IsZero() {
		recordID = c.RecordID.String()
	}
	return []any{c.Seq, c.ID, string(c.Kind), string(c.Caller), recordID, c.Payload, string(entry.ResultCode)}
}

func appendErr(entry JournalEntry, err error) error {
	switch {
	case err == nil:
		return nil
	case isUniqueViolation(err):
		return fmt.Errorf("append call seq=%d: %w", entry.Call.Seq, ErrSeqTaken)
	default:
		return fmt.Errorf("append call: %w", err)
	}
}

// ReadCalls returns the journal in seq order.
// Returns an empty slice (not nil) when the journal is empty.
func (s *Store) ReadCalls(ctx context.Context) ([]JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT seq, id, kind, caller, record_id, payload, result_code
		FROM calls
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query calls: %w", err)
	}
	defer rows.Close()

	entries := []JournalEntry{}
	for rows.Next() {
		var (
			e        JournalEntry
			kind     string
			caller   string
			recordID string
			code     string
		)
		if err := rows.Scan(&e.Call.Seq, &e.Call.ID, &kind, &caller, &recordID, &e.Call.Payload, &code); err != nil {
			return nil, fmt.Errorf("scan call: %w", err)
		}
		e.Call.Kind = ir.CallKind(kind)
		e.Call.Caller = ir.OwnerID(caller)
		e.ResultCode = ir.ErrorCode(code)
		if recordID != "" {
			if e.Call.RecordID, err = ir.ParseRecordID(recordID); err != nil {
				return nil, fmt.Errorf("scan call %d: %w", e.Call.Seq, err)
			}
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate calls: %w", err)
	}
	return entries, nil
}

// LastSeq returns the highest journaled seq, or 0 for an empty journal.
// The engine resumes its logical clock from this value.
func (s *Store) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	if err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM calls`).Scan(&seq); err != nil {
		return 0, fmt.Errorf("last seq: %w", err)
	}
	return seq, nil
}
