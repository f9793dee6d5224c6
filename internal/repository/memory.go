package repository

import (
	"context"
	"sync"
	"time"

	"github.com/spec-kit/support-engine/internal/domain"
)

// MemoryTicketRepository is a map-backed TicketRepository used by tests and
// DSN-less development runs. Tickets are deep-copied on the way in and out
// so callers never share mutable state with the store.
type MemoryTicketRepository struct {
	mu      sync.RWMutex
	byID    map[string]*domain.Ticket
	saves   int
	nowFunc func() time.Time
}

// NewMemoryTicketRepository builds an empty in-memory repository.
func NewMemoryTicketRepository() *MemoryTicketRepository {
	return &MemoryTicketRepository{
		byID:    map[string]*domain.Ticket{},
		nowFunc: time.Now,
	}
}

func (r *MemoryTicketRepository) FindOpenByCustomer(_ context.Context, customerID string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var newest *domain.Ticket
	for _, ticket := range r.byID {
		if ticket.CustomerID != customerID || ticket.Status == domain.TicketStatusResolved {
			continue
		}
		if newest == nil || ticket.CreatedAt.After(newest.CreatedAt) {
			newest = ticket
		}
	}
	if newest == nil {
		return nil, ErrNotFound
	}
	return copyTicket(newest), nil
}

func (r *MemoryTicketRepository) GetByRef(_ context.Context, ref string) (*domain.Ticket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, ticket := range r.byID {
		if ticket.Ref == ref {
			return copyTicket(ticket), nil
		}
	}
	return nil, ErrNotFound
}

func (r *MemoryTicketRepository) Save(_ context.Context, ticket *domain.Ticket) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored := copyTicket(ticket)
	stored.UpdatedAt = r.nowFunc().UTC()
	r.byID[stored.ID] = stored
	r.saves++
	return nil
}

// SaveCount reports how many times Save has been called; tests use it to
// assert the single-write-per-turn property.
func (r *MemoryTicketRepository) SaveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.saves
}

func copyTicket(t *domain.Ticket) *domain.Ticket {
	copied := *t
	copied.KnownFields = make(map[string]string, len(t.KnownFields))
	for k, v := range t.KnownFields {
		copied.KnownFields[k] = v
	}
	if t.ResolvedAt != nil {
		resolved := *t.ResolvedAt
		copied.ResolvedAt = &resolved
	}
	return &copied
}
