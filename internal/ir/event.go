package ir

// EventKind names a state change notification.
type EventKind string

const (
	EventRecordCreated EventKind = "RecordCreated"
	EventRecordUpdated EventKind = "RecordUpdated"
	EventRecordDeleted EventKind = "RecordDeleted"
)

// Event is emitted exactly once per successful mutation and never on failure.
//
// Seq is the logical clock value of the call that produced the event.
// It is zero when the service is used without an engine.
type Event struct {
	Kind     EventKind `json:"kind"`
	RecordID RecordID  `json:"record_id"`
	Owner    OwnerID   `json:"owner"`
	Seq      int64     `json:"seq"`
}

// Canonical returns the event as a canonical-JSON-ready object.
func (e Event) Canonical() map[string]any {
	return map[string]any{
		"kind":      string(e.Kind),
		"record_id": e.RecordID.String(),
		"owner":     string(e.Owner),
		"seq":       e.Seq,
	}
}
