package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/repairdesk/internal/domain"
)

// ReporterRepository stores reporter profiles.
type ReporterRepository interface {
	// Upsert creates the profile or overwrites name and location, keeping the
	// original registration time.
	Upsert(ctx context.Context, profile *domain.ReporterProfile) error
	Get(ctx context.Context, userID int64) (*domain.ReporterProfile, error)
	// SetName changes only the display name; a missing profile is created
	// with an empty location.
	SetName(ctx context.Context, userID int64, name string) error
	// List returns the most recent registrations first; limit <= 0 means all.
	List(ctx context.Context, limit int) ([]domain.ReporterProfile, error)
	Delete(ctx context.Context, userID int64) (bool, error)
	Count(ctx context.Context) (int, error)
	DeleteAll(ctx context.Context) error
}

type reporterRepository struct {
	pool *pgxpool.Pool
}

// NewReporterRepository instantiates the repository.
func NewReporterRepository(pool *pgxpool.Pool) ReporterRepository {
	return &reporterRepository{pool: pool}
}

func (r *reporterRepository) Upsert(ctx context.Context, profile *domain.ReporterProfile) error {
	const query = `
        INSERT INTO reporters (user_id, display_name, location_id)
        VALUES ($1,$2,$3)
        ON CONFLICT (user_id) DO UPDATE SET display_name=EXCLUDED.display_name, location_id=EXCLUDED.location_id
        RETURNING registered_at`
	return r.pool.QueryRow(ctx, query,
		profile.UserID,
		profile.DisplayName,
		profile.LocationID,
	).Scan(&profile.RegisteredAt)
}

func (r *reporterRepository) Get(ctx context.Context, userID int64) (*domain.ReporterProfile, error) {
	const query = `SELECT user_id, display_name, location_id, registered_at FROM reporters WHERE user_id=$1`
	var profile domain.ReporterProfile
	if err := r.pool.QueryRow(ctx, query, userID).Scan(
		&profile.UserID,
		&profile.DisplayName,
		&profile.LocationID,
		&profile.RegisteredAt,
	); err != nil {
		return nil, err
	}
	return &profile, nil
}

func (r *reporterRepository) SetName(ctx context.Context, userID int64, name string) error {
	const query = `
        INSERT INTO reporters (user_id, display_name, location_id)
        VALUES ($1,$2,'')
        ON CONFLICT (user_id) DO UPDATE SET display_name=EXCLUDED.display_name`
	_, err := r.pool.Exec(ctx, query, userID, name)
	return err
}

func (r *reporterRepository) List(ctx context.Context, limit int) ([]domain.ReporterProfile, error) {
	query := `SELECT user_id, display_name, location_id, registered_at FROM reporters ORDER BY registered_at DESC`
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.ReporterProfile
	for rows.Next() {
		var profile domain.ReporterProfile
		if err := rows.Scan(
			&profile.UserID,
			&profile.DisplayName,
			&profile.LocationID,
			&profile.RegisteredAt,
		); err != nil {
			return nil, err
		}
		result = append(result, profile)
	}
	return result, rows.Err()
}

func (r *reporterRepository) Delete(ctx context.Context, userID int64) (bool, error) {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM reporters WHERE user_id=$1`, userID)
	if err != nil {
		return false, err
	}
	return cmd.RowsAffected() > 0, nil
}

func (r *reporterRepository) Count(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM reporters`).Scan(&n)
	return n, err
}

func (r *reporterRepository) DeleteAll(ctx context.Context) error {
	_, err := r.pool.Exec(ctx, `DELETE FROM reporters`)
	return err
}
