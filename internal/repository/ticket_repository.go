package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/support-engine/internal/domain"
)

// ErrNotFound is returned when no ticket matches a lookup.
var ErrNotFound = errors.New("ticket not found")

// TicketRepository encapsulates ticket persistence. The flow engine calls
// Save exactly once per turn; Save is an atomic upsert so readers never see
// a partially written turn.
type TicketRepository interface {
	FindOpenByCustomer(ctx context.Context, customerID string) (*domain.Ticket, error)
	GetByRef(ctx context.Context, ref string) (*domain.Ticket, error)
	Save(ctx context.Context, ticket *domain.Ticket) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates the Postgres-backed repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `
        id, ref, customer_id, intent, known_fields, mood, severity, status,
        escalated, human_review, system_error, draft, turn_count,
        created_at, updated_at, resolved_at`

// FindOpenByCustomer returns the customer's open ticket, or ErrNotFound when
// every ticket for the customer is resolved.
func (r *ticketRepository) FindOpenByCustomer(ctx context.Context, customerID string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`
        SELECT %s FROM tickets
        WHERE customer_id=$1 AND status <> $2
        ORDER BY created_at DESC
        LIMIT 1`, ticketColumns)
	return r.fetchSingle(ctx, query, customerID, domain.TicketStatusResolved)
}

func (r *ticketRepository) GetByRef(ctx context.Context, ref string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE ref=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, ref)
}

// Save upserts the full ticket row in a single statement.
func (r *ticketRepository) Save(ctx context.Context, ticket *domain.Ticket) error {
	fields, err := json.Marshal(ticket.KnownFields)
	if err != nil {
		return fmt.Errorf("encode known fields: %w", err)
	}
	const query = `
        INSERT INTO tickets (id, ref, customer_id, intent, known_fields, mood, severity, status,
                             escalated, human_review, system_error, draft, turn_count,
                             created_at, updated_at, resolved_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,NOW(),$15)
        ON CONFLICT (id) DO UPDATE SET
            intent=EXCLUDED.intent,
            known_fields=EXCLUDED.known_fields,
            mood=EXCLUDED.mood,
            severity=EXCLUDED.severity,
            status=EXCLUDED.status,
            escalated=EXCLUDED.escalated,
            human_review=EXCLUDED.human_review,
            system_error=EXCLUDED.system_error,
            draft=EXCLUDED.draft,
            turn_count=EXCLUDED.turn_count,
            updated_at=NOW(),
            resolved_at=EXCLUDED.resolved_at`
	_, err = r.pool.Exec(ctx, query,
		ticket.ID,
		ticket.Ref,
		ticket.CustomerID,
		ticket.Intent,
		fields,
		ticket.Mood,
		ticket.Severity,
		ticket.Status,
		ticket.Flags.Escalated,
		ticket.Flags.HumanReview,
		ticket.Flags.SystemError,
		ticket.Draft,
		ticket.TurnCount,
		ticket.CreatedAt,
		ticket.ResolvedAt,
	)
	return err
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	var (
		ticket domain.Ticket
		fields []byte
	)
	err := r.pool.QueryRow(ctx, query, args...).Scan(
		&ticket.ID,
		&ticket.Ref,
		&ticket.CustomerID,
		&ticket.Intent,
		&fields,
		&ticket.Mood,
		&ticket.Severity,
		&ticket.Status,
		&ticket.Flags.Escalated,
		&ticket.Flags.HumanReview,
		&ticket.Flags.SystemError,
		&ticket.Draft,
		&ticket.TurnCount,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.ResolvedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal(fields, &ticket.KnownFields); err != nil {
		return nil, fmt.Errorf("decode known fields: %w", err)
	}
	return &ticket, nil
}
