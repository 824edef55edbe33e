package repository

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/repairdesk/internal/domain"
)

// TechnicianRepository stores technician display names. Roster membership is
// owned by the registry, not by this table.
type TechnicianRepository interface {
	SetName(ctx context.Context, userID int64, name string) error
	Get(ctx context.Context, userID int64) (*domain.Technician, error)
	List(ctx context.Context) ([]domain.Technician, error)
	Count(ctx context.Context) (int, error)
	DeleteAll(ctx context.Context) error
}

type technicianRepository struct {
	pool *pgxpool.Pool
}

// NewTechnicianRepository instantiates the repository.
func NewTechnicianRepository(pool *pgxpool.Pool) TechnicianRepository {
	return &technicianRepository{pool: pool}
}

func (r *technicianRepository) SetName(ctx context.Context, userID int64, name string) error {
	const query = `
        INSERT INTO technicians (user_id, display_name)
        VALUES ($1,$2)
        ON CONFLICT (user_id) DO UPDATE SET display_name=EXCLUDED.display_name`
	_, err := r.pool.Exec(ctx, query, userID, name)
	return err
}

func (r *technicianRepository) Get(ctx context.Context, userID int64) (*domain.Technician, error) {
	const query = `SELECT user_id, display_name FROM technicians WHERE user_id=$1`
	tech := domain.Technician{HasRecord: true}
	if err := r.pool.QueryRow(ctx, query, userID).Scan(&tech.UserID, &tech.DisplayName); err != nil {
		return nil, err
	}
	return &tech, nil
}

func (r *technicianRepository) List(ctx context.Context) ([]domain.Technician, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id, display_name FROM technicians ORDER BY user_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.Technician
	for rows.Next() {
		tech := domain.Technician{HasRecord: true}
		if err := rows.Scan(&tech.UserID, &tech.DisplayName); err != nil {
			return nil, err
		}
		result = append(result, tech)
	}
	return result, rows.Err()
}

func (r *technicianRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM technicians`).Scan(&n)
	return n, err
}

func (r *technicianRepository) DeleteAll(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM technicians`)
	return err
}
