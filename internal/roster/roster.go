package roster

import (
	"context"
	"strings"
	"sync"

	"checkin/internal/edutec"
)

// Entry is one cached roster row, used for local search and to attach
// display names to manual check-ins. The remote server stays the
// system of record; this is a throwaway cache of /get-all-registrations.
type Entry struct {
	ID       string `json:"id"`
	FullName string `json:"fullName"`
	DNI      string `json:"dni"`
	Position string `json:"position,omitempty"`
	Company  string `json:"company,omitempty"`
}

// Store is the abstraction over cache backends.
type Store interface {
	ReplaceAll(ctx context.Context, entries []Entry) error
	Search(ctx context.Context, dniQuery string) ([]Entry, error)
	FindByDNI(ctx context.Context, dni string) (*Entry, error)
	UpdateDNI(ctx context.Context, id, dni string) error
}

// Memory is the default in-process cache.
type Memory struct {
	mu      sync.RWMutex
	entries []Entry
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{}
}

// ReplaceAll swaps the full cache contents.
func (m *Memory) ReplaceAll(_ context.Context, entries []Entry) error {
	m.mu.Lock()
	m.entries = append([]Entry(nil), entries...)
	m.mu.Unlock()
	return nil
}

// Search returns entries whose DNI contains dniQuery. An empty query
// returns everything, matching the app's search screen.
func (m *Memory) Search(_ context.Context, dniQuery string) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []Entry
	for _, e := range m.entries {
		if dniQuery == "" || strings.Contains(e.DNI, dniQuery) {
			out = append(out, e)
		}
	}
	return out, nil
}

// FindByDNI returns the entry with an exact DNI match, or nil.
func (m *Memory) FindByDNI(_ context.Context, dni string) (*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, e := range m.entries {
		if e.DNI == dni {
			found := e
			return &found, nil
		}
	}
	return nil, nil
}

// UpdateDNI rewrites the DNI of a cached entry after a successful
// correction on the server.
func (m *Memory) UpdateDNI(_ context.Context, id, dni string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.entries {
		if m.entries[i].ID == id {
			m.entries[i].DNI = dni
			return nil
		}
	}
	return nil
}

// FromRegistrations maps the backend DTOs into cache entries.
func FromRegistrations(regs []edutec.Registration) []Entry {
	out := make([]Entry, 0, len(regs))
	for _, r := range regs {
		out = append(out, Entry{
			ID:       r.ID,
			FullName: r.FullName,
			DNI:      r.DNI,
			Position: r.Position,
			Company:  r.Company,
		})
	}
	return out
}

// Refresh pulls the roster from the backend into the store. Returns the
// number of entries loaded.
func Refresh(ctx context.Context, api *edutec.Client, store Store) (int, error) {
	regs, err := api.Registrations(ctx)
	if err != nil {
		return 0, err
	}
	entries := FromRegistrations(regs)
	if err := store.ReplaceAll(ctx, entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}
