package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/roach88/soulbound/internal/ir"
	"github.com/roach88/soulbound/internal/kv"
)

// ErrReadOnly is returned by writes attempted inside View.
var ErrReadOnly = errors.New("store: write in read-only view")

var _ kv.Backend = (*Store)(nil)

// View implements kv.Backend.
func (s *Store) View(ctx context.Context, fn func(kv.Tx) error) error {
	return s.inTx(ctx, true, fn)
}

// Update implements kv.Backend. The function runs inside one database
// transaction which is rolled back if fn or the commit fails.
func (s *Store) Update(ctx context.Context, fn func(kv.Tx) error) error {
	return s.inTx(ctx, false, fn)
}

// inTx runs fn in one transaction. On Postgres the transaction is
// SERIALIZABLE, so the existence and capacity checks a mutation makes
// still hold when it commits; a concurrent writer that breaks them aborts
// with ErrConflict. SQLite already serialises writers.
func (s *Store) inTx(ctx context.Context, readOnly bool, fn func(kv.Tx) error) error {
	var opts *sql.TxOptions
	if s.dialect == dialectPostgres {
		opts = &sql.TxOptions{Isolation: sql.LevelSerializable, ReadOnly: readOnly}
	}
	sqlTx, err := s.db.BeginTx(ctx, opts)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&tx{s: s, tx: sqlTx, readOnly: readOnly}); err != nil {
		return conflictErr(err)
	}

	if readOnly {
		return nil
	}
	if err := sqlTx.Commit(); err != nil {
		return conflictErr(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// conflictErr marks Postgres serialization failures with ErrConflict.
// Other errors, including credential rejections, pass through unchanged.
func conflictErr(err error) error {
	if isSerializationFailure(err) {
		return fmt.Errorf("%w: %w", ErrConflict, err)
	}
	return err
}

// Snapshot implements kv.Backend.
func (s *Store) Snapshot(ctx context.Context) (*kv.Snapshot, error) {
	records, err := s.readAllRecords(ctx)
	if err != nil {
		return nil, err
	}
	owners, err := s.readAllOwners(ctx)
	if err != nil {
		return nil, err
	}
	return kv.NewSnapshot(records, owners), nil
}

func (s *Store) readAllRecords(ctx context.Context) (map[ir.RecordID]ir.Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT record_id, owner, payload
		FROM records
		ORDER BY record_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	records := make(map[ir.RecordID]ir.Record)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records[rec.ID] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return records, nil
}

func (s *Store) readAllOwners(ctx context.Context) (map[ir.OwnerID][]ir.RecordID, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT owner, record_id
		FROM owner_index
		ORDER BY owner ASC, position ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query owner index: %w", err)
	}
	defer rows.Close()

	owners := make(map[ir.OwnerID][]ir.RecordID)
	for rows.Next() {
		var owner, idHex string
		if err := rows.Scan(&owner, &idHex); err != nil {
			return nil, fmt.Errorf("scan owner index: %w", err)
		}
		id, err := ir.ParseRecordID(idHex)
		if err != nil {
			return nil, fmt.Errorf("scan owner index: %w", err)
		}
		owners[ir.OwnerID(owner)] = append(owners[ir.OwnerID(owner)], id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate owner index: %w", err)
	}
	return owners, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (ir.Record, error) {
	var (
		idHex, owner string
		payload      []byte
	)
	if err := row.Scan(&idHex, &owner, &payload); err != nil {
		return ir.Record{}, err
	}
	id, err := ir.ParseRecordID(idHex)
	if err != nil {
		return ir.Record{}, fmt.Errorf("scan record: %w", err)
	}
	if payload == nil {
		payload = []byte{}
	}
	return ir.Record{ID: id, Owner: ir.OwnerID(owner), Payload: payload}, nil
}

type tx struct {
	s        *Store
	tx       *sql.Tx
	readOnly bool
}

func (t *tx) Records() kv.RecordStore { return recordStore{t} }
func (t *tx) Index() kv.OwnerIndex    { return ownerIndex{t} }

func (t *tx) exec(ctx context.Context, query string, args ...any) error {
	if t.readOnly {
		return ErrReadOnly
	}
	_, err := t.tx.ExecContext(ctx, t.s.rebind(query), args...)
	return err
}

func (t *tx) queryRow(ctx context.Context, query string, args ...any) *sql.Row {
	return t.tx.QueryRowContext(ctx, t.s.rebind(query), args...)
}

type recordStore struct{ t *tx }

func (r recordStore) Exists(ctx context.Context, id ir.RecordID) (bool, error) {
	var n int
	err := r.t.queryRow(ctx, `SELECT COUNT(*) FROM records WHERE record_id = ?`, id.String()).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("record exists: %w", err)
	}
	return n > 0, nil
}

func (r recordStore) Get(ctx context.Context, id ir.RecordID) (ir.Record, bool, error) {
	row := r.t.queryRow(ctx, `
		SELECT record_id, owner, payload
		FROM records
		WHERE record_id = ?
	`, id.String())
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ir.Record{}, false, nil
	}
	if err != nil {
		return ir.Record{}, false, fmt.Errorf("get record: %w", err)
	}
	return rec, true, nil
}

func (r recordStore) Put(ctx context.Context, rec ir.Record) error {
	payload := rec.Payload
	if payload == nil {
		payload = []byte{}
	}
	err := r.t.exec(ctx, `
		INSERT INTO records (record_id, owner, payload)
		VALUES (?, ?, ?)
		ON CONFLICT (record_id) DO UPDATE SET owner = excluded.owner, payload = excluded.payload
	`, rec.ID.String(), string(rec.Owner), payload)
	if err != nil {
		return fmt.Errorf("put record: %w", err)
	}
	return nil
}

func (r recordStore) Remove(ctx context.Context, id ir.RecordID) error {
	if err := r.t.exec(ctx, `DELETE FROM records WHERE record_id = ?`, id.String()); err != nil {
		return fmt.Errorf("remove record: %w", err)
	}
	return nil
}

type ownerIndex struct{ t *tx }

func (o ownerIndex) List(ctx context.Context, owner ir.OwnerID) ([]ir.RecordID, error) {
	rows, err := o.t.tx.QueryContext(ctx, o.t.s.rebind(`
		SELECT record_id
		FROM owner_index
		WHERE owner = ?
		ORDER BY position ASC
	`), string(owner))
	if err != nil {
		return nil, fmt.Errorf("list owner index: %w", err)
	}
	defer rows.Close()

	ids := []ir.RecordID{}
	for rows.Next() {
		var idHex string
		if err := rows.Scan(&idHex); err != nil {
			return nil, fmt.Errorf("scan owner index: %w", err)
		}
		id, err := ir.ParseRecordID(idHex)
		if err != nil {
			return nil, fmt.Errorf("scan owner index: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate owner index: %w", err)
	}
	return ids, nil
}

func (o ownerIndex) TryAppend(ctx context.Context, owner ir.OwnerID, id ir.RecordID) error {
	if o.t.readOnly {
		return ErrReadOnly
	}
	var (
		count   int
		lastPos int64
	)
	err := o.t.queryRow(ctx, `
		SELECT COUNT(*), COALESCE(MAX(position), 0)
		FROM owner_index
		WHERE owner = ?
	`, string(owner)).Scan(&count, &lastPos)
	if err != nil {
		return fmt.Errorf("count owner index: %w", err)
	}
	if count >= ir.MaxRecordsPerOwner {
		return ir.NewCapacityExceeded(owner)
	}
	err = o.t.exec(ctx, `
		INSERT INTO owner_index (owner, position, record_id)
		VALUES (?, ?, ?)
	`, string(owner), lastPos+1, id.String())
	if err != nil {
		return fmt.Errorf("append owner index: %w", err)
	}
	return nil
}

func (o ownerIndex) Remove(ctx context.Context, owner ir.OwnerID, id ir.RecordID) error {
	err := o.t.exec(ctx, `
		DELETE FROM owner_index
		WHERE owner = ? AND position = (
			SELECT MIN(position) FROM owner_index WHERE owner = ? AND record_id = ?
		)
	`, string(owner), string(owner), id.String())
	if err != nil {
		return fmt.Errorf("remove owner index: %w", err)
	}
	return nil
}
