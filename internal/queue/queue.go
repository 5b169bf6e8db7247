package queue

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Record is one attendance attempt awaiting transmission. Immutable
// after creation.
type Record struct {
	ID          string
	DNI         string
	FullName    string
	Method      string
	SubmittedAt time.Time
}

// NewRecord stamps an attempt with an id and submission time.
func NewRecord(dni, fullName, method string) Record {
	return Record{
		ID:          uuid.NewString(),
		DNI:         dni,
		FullName:    fullName,
		Method:      method,
		SubmittedAt: time.Now().UTC(),
	}
}

// Pending is the in-memory buffer of attempts made while offline.
// Insertion-ordered, safe for multiple producers. It is deliberately
// volatile: a process restart loses all pending items (best-effort
// semantics, the remote server stays the system of record). Records
// are retried on every reconnect with no backoff and no expiry.
type Pending struct {
	mu    sync.Mutex
	items []Record
}

// NewPending creates an empty buffer.
func NewPending() *Pending {
	return &Pending{}
}

// Enqueue appends a record.
func (p *Pending) Enqueue(rec Record) {
	p.mu.Lock()
	p.items = append(p.items, rec)
	p.mu.Unlock()
}

// Len returns the number of buffered records.
func (p *Pending) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.items)
}

// Snapshot returns a copy of the current contents, oldest first.
// Records enqueued after the snapshot are not part of it.
func (p *Pending) Snapshot() []Record {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Record, len(p.items))
	copy(out, p.items)
	return out
}

// Remove deletes the record with the given id, if still present.
func (p *Pending) Remove(id string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, rec := range p.items {
		if rec.ID == id {
			p.items = append(p.items[:i], p.items[i+1:]...)
			return
		}
	}
}
