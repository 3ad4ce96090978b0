package credential

import (
	"context"
	"io"
	"log/slog"
	"time"

	"github.com/roach88/soulbound/internal/ir"
	"github.com/roach88/soulbound/internal/kv"
)

// Operation names reported to the Observer and in logs.
const (
	OpCreate       = "create"
	OpUpdate       = "update"
	OpDelete       = "delete"
	OpListByOwner  = "list_by_owner"
	OpExists       = "exists"
	OpOwnerOf      = "owner_of"
	OpGet          = "get"
	OpCountByOwner = "count_by_owner"
)

// Service orchestrates record lifecycle operations across the record store
// and owner index of one backend.
//
// Service is not a serialiser: the backend's Update is atomic, but callers
// that need a fixed global order (replay) must submit calls one at a time,
// as engine.Engine does.
type Service struct {
	backend  kv.Backend
	hasher   ir.Hasher
	sink     EventSink
	observer Observer
	logger   *slog.Logger

	// precommit runs as the last step of every mutation's Update.
	precommit func(ctx context.Context, tx kv.Tx) error
}

// Option configures a Service.
type Option func(*Service)

// WithHasher sets the record id hash. Default: ir.Blake2b256.
func WithHasher(h ir.Hasher) Option {
	return func(s *Service) { s.hasher = h }
}

// WithEventSink sets where committed events are delivered. Default: Discard.
func WithEventSink(sink EventSink) Option {
	return func(s *Service) { s.sink = sink }
}

// WithObserver sets the operation observer.
func WithObserver(o Observer) Option {
	return func(s *Service) { s.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) { s.logger = l }
}

// WithPrecommit sets a hook that runs inside each successful mutation's
// transaction, after its writes. A hook error rolls the mutation back and
// is returned unchanged.
func WithPrecommit(fn func(ctx context.Context, tx kv.Tx) error) Option {
	return func(s *Service) { s.precommit = fn }
}

// New creates a Service over backend.
func New(backend kv.Backend, opts ...Option) *Service {
	s := &Service{
		backend:  backend,
		hasher:   ir.DefaultHasher(),
		sink:     Discard,
		observer: nopObserver{},
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Hasher returns the configured record id hash.
func (s *Service) Hasher() ir.Hasher {
	return s.hasher
}

// Create stores payload as a new record owned by caller and returns its
// content-derived id.
//
// Errors: INVALID_OWNER, PAYLOAD_TOO_LARGE, DUPLICATE_RECORD (any owner),
// CAPACITY_EXCEEDED.
func (s *Service) Create(ctx context.Context, caller ir.OwnerID, payload []byte) (id ir.RecordID, err error) {
	defer s.observe(ctx, OpCreate, time.Now(), &err)

	if err := caller.Validate(); err != nil {
		return ir.RecordID{}, err
	}
	if len(payload) > ir.MaxPayloadBytes {
		return ir.RecordID{}, ir.NewPayloadTooLarge(len(payload))
	}
	id = s.hasher.Sum(payload)

	err = s.backend.Update(ctx, func(tx kv.Tx) error {
		exists, err := tx.Records().Exists(ctx, id)
		if err != nil {
			return err
		}
		if exists {
			return ir.NewDuplicateRecord(id)
		}

		ids, err := tx.Index().List(ctx, caller)
		if err != nil {
			return err
		}
		if len(ids) >= ir.MaxRecordsPerOwner {
			return ir.NewCapacityExceeded(caller)
		}

		if err := tx.Records().Put(ctx, ir.Record{ID: id, Owner: caller, Payload: payload}); err != nil {
			return err
		}
		// A failure here discards the Put above.
		if err := tx.Index().TryAppend(ctx, caller, id); err != nil {
			return err
		}
		return s.beforeCommit(ctx, tx)
	})
	if err != nil {
		return ir.RecordID{}, err
	}

	s.emit(ctx, ir.Event{Kind: ir.EventRecordCreated, RecordID: id, Owner: caller})
	return id, nil
}

// Update replaces the payload of an existing record. The id is not
// recomputed and no duplicate check is made, so after an update a record's
// payload may no longer hash to its id.
//
// Errors: RECORD_NOT_FOUND, NOT_OWNER, PAYLOAD_TOO_LARGE.
func (s *Service) Update(ctx context.Context, caller ir.OwnerID, id ir.RecordID, payload []byte) (err error) {
	defer s.observe(ctx, OpUpdate, time.Now(), &err)

	var owner ir.OwnerID
	err = s.backend.Update(ctx, func(tx kv.Tx) error {
		rec, err := s.authorize(ctx, tx, caller, id)
		if err != nil {
			return err
		}
		if len(payload) > ir.MaxPayloadBytes {
			return ir.NewPayloadTooLarge(len(payload))
		}
		owner = rec.Owner
		if err := tx.Records().Put(ctx, ir.Record{ID: id, Owner: owner, Payload: payload}); err != nil {
			return err
		}
		return s.beforeCommit(ctx, tx)
	})
	if err != nil {
		return err
	}

	s.emit(ctx, ir.Event{Kind: ir.EventRecordUpdated, RecordID: id, Owner: owner})
	return nil
}

// Delete removes a record and its owner index entry together.
//
// Errors: RECORD_NOT_FOUND, NOT_OWNER.
func (s *Service) Delete(ctx context.Context, caller ir.OwnerID, id ir.RecordID) (err error) {
	defer s.observe(ctx, OpDelete, time.Now(), &err)

	var owner ir.OwnerID
	err = s.backend.Update(ctx, func(tx kv.Tx) error {
		rec, err := s.authorize(ctx, tx, caller, id)
		if err != nil {
			return err
		}
		owner = rec.Owner
		if err := tx.Records().Remove(ctx, id); err != nil {
			return err
		}
		if err := tx.Index().Remove(ctx, owner, id); err != nil {
			return err
		}
		return s.beforeCommit(ctx, tx)
	})
	if err != nil {
		return err
	}

	s.emit(ctx, ir.Event{Kind: ir.EventRecordDeleted, RecordID: id, Owner: owner})
	return nil
}

func (s *Service) beforeCommit(ctx context.Context, tx kv.Tx) error {
	if s.precommit == nil {
		return nil
	}
	return s.precommit(ctx, tx)
}

// authorize loads the record and checks caller owns it.
func (s *Service) authorize(ctx context.Context, tx kv.Tx, caller ir.OwnerID, id ir.RecordID) (ir.Record, error) {
	rec, ok, err := tx.Records().Get(ctx, id)
	if err != nil {
		return ir.Record{}, err
	}
	if !ok {
		return ir.Record{}, ir.NewRecordNotFound(id)
	}
	if rec.Owner != caller {
		return ir.Record{}, ir.NewNotOwner(id, caller)
	}
	return rec, nil
}

// ListByOwner returns the owner's records in creation order. Index entries
// whose record cannot be found are skipped.
func (s *Service) ListByOwner(ctx context.Context, owner ir.OwnerID) (records []ir.Record, err error) {
	defer s.observe(ctx, OpListByOwner, time.Now(), &err)

	records = []ir.Record{}
	err = s.backend.View(ctx, func(tx kv.Tx) error {
		ids, err := tx.Index().List(ctx, owner)
		if err != nil {
			return err
		}
		for _, id := range ids {
			rec, ok, err := tx.Records().Get(ctx, id)
			if err != nil {
				return err
			}
			if !ok {
				s.logger.WarnContext(ctx, "owner index references missing record",
					"owner", string(owner), "record_id", id.String())
				continue
			}
			records = append(records, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// Exists reports whether a record with id exists.
func (s *Service) Exists(ctx context.Context, id ir.RecordID) (exists bool, err error) {
	defer s.observe(ctx, OpExists, time.Now(), &err)

	err = s.backend.View(ctx, func(tx kv.Tx) error {
		exists, err = tx.Records().Exists(ctx, id)
		return err
	})
	return exists, err
}

// OwnerOf returns the owner of id and true, or "" and false.
func (s *Service) OwnerOf(ctx context.Context, id ir.RecordID) (owner ir.OwnerID, ok bool, err error) {
	defer s.observe(ctx, OpOwnerOf, time.Now(), &err)

	err = s.backend.View(ctx, func(tx kv.Tx) error {
		rec, found, err := tx.Records().Get(ctx, id)
		owner, ok = rec.Owner, found
		return err
	})
	return owner, ok, err
}

// Get returns the record with id and true, or the zero record and false.
func (s *Service) Get(ctx context.Context, id ir.RecordID) (rec ir.Record, ok bool, err error) {
	defer s.observe(ctx, OpGet, time.Now(), &err)

	err = s.backend.View(ctx, func(tx kv.Tx) error {
		rec, ok, err = tx.Records().Get(ctx, id)
		return err
	})
	return rec, ok, err
}

// CountByOwner returns the number of ids in the owner's index entry.
func (s *Service) CountByOwner(ctx context.Context, owner ir.OwnerID) (n int, err error) {
	defer s.observe(ctx, OpCountByOwner, time.Now(), &err)

	err = s.backend.View(ctx, func(tx kv.Tx) error {
		ids, err := tx.Index().List(ctx, owner)
		n = len(ids)
		return err
	})
	return n, err
}

// emit delivers ev to the sink. The mutation has already committed, so a
// sink failure is logged and not returned to the caller.
func (s *Service) emit(ctx context.Context, ev ir.Event) {
	if err := s.sink.Emit(ctx, ev); err != nil {
		s.logger.ErrorContext(ctx, "event delivery failed",
			"kind", string(ev.Kind), "record_id", ev.RecordID.String(), "error", err)
	}
}

func (s *Service) observe(ctx context.Context, op string, start time.Time, errp *error) {
	result := "ok"
	if err := *errp; err != nil {
		if code := ir.CodeOf(err); code != "" {
			result = string(code)
		} else {
			result = "error"
		}
		s.logger.DebugContext(ctx, "operation rejected", "op", op, "error", err)
	} else if op == OpCreate || op == OpUpdate || op == OpDelete {
		s.logger.DebugContext(ctx, "operation committed", "op", op)
	}
	s.observer.Observe(op, result, time.Since(start))
}
