package branches

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brioche-erp/brioche-erp/internal/shared"
)

// Repository persists branch master data.
type Repository interface {
	List(ctx context.Context, filters shared.ListFilters) ([]Branch, int, error)
	Get(ctx context.Context, id int64) (Branch, error)
	Create(ctx context.Context, branch Branch) (Branch, error)
	Update(ctx context.Context, id int64, branch Branch) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL-backed Repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) List(ctx context.Context, filters shared.ListFilters) ([]Branch, int, error) {
	filters = filters.Normalize()

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM branches`).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, `SELECT id, name, address, uses_central_stock, is_outlet, created_at, updated_at
FROM branches ORDER BY name ASC LIMIT $1 OFFSET $2`, filters.Limit, filters.Offset())
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var list []Branch
	for rows.Next() {
		var b Branch
		if err := rows.Scan(&b.ID, &b.Name, &b.Address, &b.UsesCentralStock, &b.IsOutlet, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, 0, err
		}
		list = append(list, b)
	}
	return list, total, rows.Err()
}

func (r *repository) Get(ctx context.Context, id int64) (Branch, error) {
	var b Branch
	err := r.pool.QueryRow(ctx, `SELECT id, name, address, uses_central_stock, is_outlet, created_at, updated_at
FROM branches WHERE id=$1`, id).Scan(&b.ID, &b.Name, &b.Address, &b.UsesCentralStock, &b.IsOutlet, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Branch{}, shared.ErrNotFound
		}
		return Branch{}, err
	}
	return b, nil
}

func (r *repository) Create(ctx context.Context, branch Branch) (Branch, error) {
	now := time.Now().UTC()
	err := r.pool.QueryRow(ctx, `INSERT INTO branches (name, address, uses_central_stock, is_outlet, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$5) RETURNING id`, branch.Name, branch.Address, branch.UsesCentralStock, branch.IsOutlet, now).Scan(&branch.ID)
	if err != nil {
		return Branch{}, err
	}
	branch.CreatedAt = now
	branch.UpdatedAt = now
	return branch, nil
}

func (r *repository) Update(ctx context.Context, id int64, branch Branch) error {
	tag, err := r.pool.Exec(ctx, `UPDATE branches SET name=$1, address=$2, uses_central_stock=$3, is_outlet=$4, updated_at=NOW()
WHERE id=$5`, branch.Name, branch.Address, branch.UsesCentralStock, branch.IsOutlet, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
