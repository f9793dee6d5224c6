package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/support-engine/internal/domain"
)

func TestMemoryRepositoryRoundTrip(t *testing.T) {
	repo := NewMemoryTicketRepository()
	ctx := context.Background()

	ticket := domain.NewTicket("john@example.com")
	ticket.Intent = "order_status"
	ticket.KnownFields["order_id"] = "1001"
	require.NoError(t, repo.Save(ctx, ticket))

	byRef, err := repo.GetByRef(ctx, ticket.Ref)
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, byRef.ID)
	assert.Equal(t, "order_status", byRef.Intent)
	assert.Equal(t, "1001", byRef.KnownFields["order_id"])

	open, err := repo.FindOpenByCustomer(ctx, "john@example.com")
	require.NoError(t, err)
	assert.Equal(t, ticket.ID, open.ID)
}

func TestMemoryRepositoryNotFound(t *testing.T) {
	repo := NewMemoryTicketRepository()
	ctx := context.Background()

	_, err := repo.GetByRef(ctx, "TCK-DEADBEEF")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = repo.FindOpenByCustomer(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryRepositorySkipsResolvedTickets(t *testing.T) {
	repo := NewMemoryTicketRepository()
	ctx := context.Background()

	resolved := domain.NewTicket("john@example.com")
	resolved.Resolve(time.Now())
	require.NoError(t, repo.Save(ctx, resolved))

	_, err := repo.FindOpenByCustomer(ctx, "john@example.com")
	assert.ErrorIs(t, err, ErrNotFound)

	open := domain.NewTicket("john@example.com")
	open.CreatedAt = resolved.CreatedAt.Add(time.Second)
	require.NoError(t, repo.Save(ctx, open))

	found, err := repo.FindOpenByCustomer(ctx, "john@example.com")
	require.NoError(t, err)
	assert.Equal(t, open.ID, found.ID)
}

func TestMemoryRepositoryReturnsCopies(t *testing.T) {
	repo := NewMemoryTicketRepository()
	ctx := context.Background()

	ticket := domain.NewTicket("john@example.com")
	require.NoError(t, repo.Save(ctx, ticket))

	// Mutating the caller's copy after save must not leak into the store.
	ticket.KnownFields["order_id"] = "tampered"
	stored, err := repo.GetByRef(ctx, ticket.Ref)
	require.NoError(t, err)
	assert.Empty(t, stored.KnownFields["order_id"])

	// Mutating a fetched copy must not leak either.
	stored.KnownFields["order_id"] = "tampered"
	again, err := repo.GetByRef(ctx, ticket.Ref)
	require.NoError(t, err)
	assert.Empty(t, again.KnownFields["order_id"])
}

func TestMemoryRepositorySaveIsUpsert(t *testing.T) {
	repo := NewMemoryTicketRepository()
	ctx := context.Background()

	ticket := domain.NewTicket("john@example.com")
	require.NoError(t, repo.Save(ctx, ticket))

	ticket.TurnCount = 2
	require.NoError(t, repo.Save(ctx, ticket))

	stored, err := repo.GetByRef(ctx, ticket.Ref)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.TurnCount)
	assert.Equal(t, 2, repo.SaveCount())
}
