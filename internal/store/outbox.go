package store

import (
	"context"
	"fmt"

	"github.com/roach88/soulbound/internal/ir"
)

// Outbox persists emitted events to the events table.
// It satisfies credential.EventSink.
type Outbox struct {
	s *Store
}

// Outbox returns an event sink writing to this store.
func (s *Store) Outbox() *Outbox {
	return &Outbox{s: s}
}

// Emit appends ev to the events table.
func (o *Outbox) Emit(ctx context.Context, ev ir.Event) error {
	_, err := o.s.db.ExecContext(ctx, o.s.rebind(`
		INSERT INTO events (seq, kind, record_id, owner)
		VALUES (?, ?, ?, ?)
	`), ev.Seq, string(ev.Kind), ev.RecordID.String(), string(ev.Owner))
	if err != nil {
		return fmt.Errorf("emit event: %w", err)
	}
	return nil
}

// ReadEvents returns every event for a record in emission order.
// Returns an empty slice (not nil) if none exist.
func (s *Store) ReadEvents(ctx context.Context, id ir.RecordID) ([]ir.Event, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(`
		SELECT seq, kind, record_id, owner
		FROM events
		WHERE record_id = ?
		ORDER BY id ASC
	`), id.String())
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []ir.Event{}
	for rows.Next() {
		var (
			ev          ir.Event
			kind, idHex string
			owner       string
		)
		if err := rows.Scan(&ev.Seq, &kind, &idHex, &owner); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		if ev.RecordID, err = ir.ParseRecordID(idHex); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.Kind = ir.EventKind(kind)
		ev.Owner = ir.OwnerID(owner)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}
