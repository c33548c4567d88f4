package tasks

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/starpoints/backend/internal/models"
)

type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) List(ctx context.Context) ([]*models.Task, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, title, url, signature, reward, created_at
		FROM tasks ORDER BY id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var list []*models.Task
	for rows.Next() {
		var t models.Task
		if err := rows.Scan(&t.ID, &t.Title, &t.URL, &t.Signature, &t.Reward, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, &t)
	}
	return list, rows.Err()
}

// GetByID returns the task or nil if it does not exist.
func (r *Repository) GetByID(ctx context.Context, id int64) (*models.Task, error) {
	var t models.Task
	err := r.pool.QueryRow(ctx, `
		SELECT id, title, url, signature, reward, created_at
		FROM tasks WHERE id = $1
	`, id).Scan(&t.ID, &t.Title, &t.URL, &t.Signature, &t.Reward, &t.CreatedAt)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &t, nil
}
