package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/repairdesk/internal/domain"
)

// ErrNotFound is returned when a keyed row does not exist.
var ErrNotFound = pgx.ErrNoRows

// createAttempts bounds retries when two creations race for the same id.
const createAttempts = 5

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	// Create assigns the next id (max+1, starting at domain.FirstTicketID)
	// and the creation timestamps.
	Create(ctx context.Context, ticket *domain.Ticket) error
	GetByID(ctx context.Context, id int64) (*domain.Ticket, error)
	// CompareAndSwap applies next only if the row still matches expect. It
	// reports false when the row changed underneath the caller.
	CompareAndSwap(ctx context.Context, id int64, expect domain.Guard, next domain.Transition) (bool, error)
	SetManagementRef(ctx context.Context, id int64, ref domain.MessageRef) error
	SetReporterRef(ctx context.Context, id int64, ref domain.MessageRef) error
	CountByStatus(ctx context.Context) (map[domain.TicketStatus]int, error)
	DeleteAll(ctx context.Context) error
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `ticket_id, created_at, updated_at, location_id, reporter_id, reporter_name,
               equipment, description, urgency, photo_ref, status, executor_id, executor_name,
               mgmt_chat_id, mgmt_msg_id, mgmt_has_image, reporter_chat_id, reporter_msg_id`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (ticket_id, location_id, reporter_id, reporter_name, equipment, description,
                             urgency, photo_ref, status, executor_id, executor_name)
        SELECT COALESCE(MAX(ticket_id), $1 - 1) + 1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11 FROM tickets
        RETURNING ticket_id, created_at, updated_at`

	var err error
	for attempt := 0; attempt < createAttempts; attempt++ {
		err = r.pool.QueryRow(ctx, query,
			domain.FirstTicketID,
			ticket.LocationID,
			ticket.ReporterID,
			ticket.ReporterName,
			ticket.Equipment,
			ticket.Description,
			ticket.Urgency,
			ticket.PhotoRef,
			ticket.Status,
			ticket.ExecutorID,
			ticket.ExecutorName,
		).Scan(&ticket.ID, &ticket.CreatedAt, &ticket.UpdatedAt)
		if !isUniqueViolation(err) {
			return err
		}
	}
	return err
}

func (r *ticketRepository) GetByID(ctx context.Context, id int64) (*domain.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets WHERE ticket_id=$1`
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, id).Scan(
		&ticket.ID,
		&ticket.CreatedAt,
		&ticket.UpdatedAt,
		&ticket.LocationID,
		&ticket.ReporterID,
		&ticket.ReporterName,
		&ticket.Equipment,
		&ticket.Description,
		&ticket.Urgency,
		&ticket.PhotoRef,
		&ticket.Status,
		&ticket.ExecutorID,
		&ticket.ExecutorName,
		&ticket.ManagementRef.ChatID,
		&ticket.ManagementRef.MessageID,
		&ticket.ManagementRef.HasImage,
		&ticket.ReporterRef.ChatID,
		&ticket.ReporterRef.MessageID,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

// CompareAndSwap is a single conditional UPDATE, so Postgres serializes two
// concurrent claims on the same row and only one of them matches.
func (r *ticketRepository) CompareAndSwap(ctx context.Context, id int64, expect domain.Guard, next domain.Transition) (bool, error) {
	const query = `
        UPDATE tickets SET status=$1, executor_id=$2, executor_name=$3, updated_at=NOW()
        WHERE ticket_id=$4 AND status=$5 AND executor_id=$6`
	cmd, err := r.pool.Exec(ctx, query,
		next.Status,
		next.ExecutorID,
		next.ExecutorName,
		id,
		expect.Status,
		expect.ExecutorID,
	)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() == 1, nil
}

func (r *ticketRepository) SetManagementRef(ctx context.Context, id int64, ref domain.MessageRef) error {
	const query = `
        UPDATE tickets SET mgmt_chat_id=$1, mgmt_msg_id=$2, mgmt_has_image=$3
        WHERE ticket_id=$4`
	cmd, err := r.pool.Exec(ctx, query, ref.ChatID, ref.MessageID, ref.HasImage, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) SetReporterRef(ctx context.Context, id int64, ref domain.MessageRef) error {
	const query = `UPDATE tickets SET reporter_chat_id=$1, reporter_msg_id=$2 WHERE ticket_id=$3`
	cmd, err := r.pool.Exec(ctx, query, ref.ChatID, ref.MessageID, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) CountByStatus(ctx context.Context) (map[domain.TicketStatus]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM tickets GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.TicketStatus]int, len(domain.AllTicketStatuses))
	for _, status := range domain.AllTicketStatuses {
		counts[status] = 0
	}
	for rows.Next() {
		var status domain.TicketStatus
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

func (r *ticketRepository) DeleteAll(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM tickets`)
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
