package audit

import (
	"context"
	"errors"
	"sync"
)

// ErrDuplicateEvent mirrors the primary key on audit_events.id.
var ErrDuplicateEvent = errors.New("audit: duplicate event id")

// MemoryRepo keeps audit events in process and stands in for PostgresRepo in
// handler and billing tests. Like the table, it only ever appends.
type MemoryRepo struct {
	mu     sync.Mutex
	events []Event
	ids    map[string]struct{}
}

func NewMemoryRepo() *MemoryRepo { return &MemoryRepo{ids: map[string]struct{}{}} }

func (r *MemoryRepo) Append(ctx context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if e.ID != "" {
		if _, dup := r.ids[e.ID]; dup {
			return ErrDuplicateEvent
		}
		r.ids[e.ID] = struct{}{}
	}
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of every event in append order.
func (r *MemoryRepo) Events() []Event {
	return r.filter(func(Event) bool { return true })
}

// EventsOfType returns the events of one category, e.g. every share anomaly.
func (r *MemoryRepo) EventsOfType(t EventType) []Event {
	return r.filter(func(e Event) bool { return e.Type == t })
}

// ForTransaction returns the events recorded against one call transaction.
func (r *MemoryRepo) ForTransaction(transactionID string) []Event {
	return r.filter(func(e Event) bool { return transactionID != "" && e.TransactionID == transactionID })
}

func (r *MemoryRepo) filter(keep func(Event) bool) []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, 0, len(r.events))
	for _, e := range r.events {
		if keep(e) {
			out = append(out, e)
		}
	}
	return out
}
