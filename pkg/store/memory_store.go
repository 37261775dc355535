package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/BillK181/wedding-website/pkg/domain"
)

// MemoryStore keeps guests in-process. Selected with databaseURL "memory"; the
// guest list is reseeded on every start.
type MemoryStore struct {
	mu     sync.RWMutex
	guests map[string]domain.Guest // key: guest ID
	names  map[string]string       // normalized name -> guest ID
}

// NewMemoryStore initializes an empty in-memory guest store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		guests: make(map[string]domain.Guest),
		names:  make(map[string]string),
	}
}

// Seed adds guests whose names are not present yet.
func (m *MemoryStore) Seed(ctx context.Context, names []string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	added := 0
	for _, raw := range names {
		name := strings.TrimSpace(raw)
		key := domain.NormalizeName(name)
		if key == "" {
			continue
		}
		if _, ok := m.names[key]; ok {
			continue
		}
		g := domain.Guest{
			ID:        uuid.NewString(),
			Name:      name,
			CreatedAt: now,
			UpdatedAt: now,
		}
		m.guests[g.ID] = g
		m.names[key] = g.ID
		added++
	}
	return added, nil
}

// FindByName looks up a guest case-insensitively.
func (m *MemoryStore) FindByName(ctx context.Context, name string) (domain.Guest, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Guest{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.names[domain.NormalizeName(name)]
	if !ok {
		return domain.Guest{}, false, nil
	}
	g, ok := m.guests[id]
	return g, ok, nil
}

// FindByID returns a guest by ID.
func (m *MemoryStore) FindByID(ctx context.Context, id string) (domain.Guest, bool, error) {
	if err := ctx.Err(); err != nil {
		return domain.Guest{}, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	g, ok := m.guests[id]
	return g, ok, nil
}

// SetRSVP updates the status of an existing guest.
func (m *MemoryStore) SetRSVP(ctx context.Context, id string, status domain.RSVPStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.guests[id]
	if !ok {
		return ErrNotFound
	}
	g.RSVPStatus = status
	g.UpdatedAt = time.Now().UTC()
	m.guests[id] = g
	return nil
}

// ListGuests returns all guests ordered by name.
func (m *MemoryStore) ListGuests(ctx context.Context) ([]domain.Guest, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	res := make([]domain.Guest, 0, len(m.guests))
	for _, g := range m.guests {
		res = append(res, g)
	}
	sort.Slice(res, func(i, j int) bool { return res[i].Name < res[j].Name })
	return res, nil
}

// RemoveGuest deletes a guest record, as an operator editing the database
// by hand would. Sessions bound to it become invalid.
func (m *MemoryStore) RemoveGuest(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.guests[id]
	if !ok {
		return
	}
	delete(m.guests, id)
	delete(m.names, domain.NormalizeName(g.Name))
}
