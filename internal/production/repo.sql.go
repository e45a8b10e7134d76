package production

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brioche-erp/brioche-erp/internal/ledger"
	"github.com/brioche-erp/brioche-erp/internal/shared"
)

// Repository persists production batches in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by Service.
type TxRepository interface {
	InsertBatch(ctx context.Context, batch Batch) (int64, error)
	InsertLine(ctx context.Context, line Line) (int64, error)
	AppendMovement(ctx context.Context, m ledger.Movement) error
}

type txRepository struct {
	tx     pgx.Tx
	writer *ledger.TxWriter
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("production repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx, writer: ledger.NewTxWriter(tx)}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// Get loads a batch with its lines.
func (r *Repository) Get(ctx context.Context, id int64) (Batch, error) {
	var batch Batch
	err := r.pool.QueryRow(ctx, `SELECT id, date, note, created_by, created_at
FROM production_batches WHERE id=$1`, id).Scan(&batch.ID, &batch.Date, &batch.Note, &batch.CreatedBy, &batch.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Batch{}, shared.ErrNotFound
		}
		return Batch{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, batch_id, product_id, qty
FROM production_lines WHERE batch_id=$1 ORDER BY id`, id)
	if err != nil {
		return Batch{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.BatchID, &line.ProductID, &line.Qty); err != nil {
			return Batch{}, err
		}
		batch.Lines = append(batch.Lines, line)
	}
	return batch, rows.Err()
}

// List returns batch headers, newest first.
func (r *Repository) List(ctx context.Context, filter shared.ListFilters) ([]Batch, error) {
	f := filter.Normalize()
	query := `SELECT id, date, note, created_by, created_at FROM production_batches
ORDER BY date DESC, id DESC LIMIT $1 OFFSET $2`
	rows, err := r.pool.Query(ctx, query, f.Limit, f.Offset())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Batch
	for rows.Next() {
		var batch Batch
		if err := rows.Scan(&batch.ID, &batch.Date, &batch.Note, &batch.CreatedBy, &batch.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, batch)
	}
	return list, rows.Err()
}

func (t *txRepository) InsertBatch(ctx context.Context, batch Batch) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO production_batches (date, note, created_by, created_at)
VALUES ($1,$2,$3,now()) RETURNING id`,
		batch.Date, batch.Note, batch.CreatedBy).Scan(&id)
	return id, err
}

func (t *txRepository) InsertLine(ctx context.Context, line Line) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO production_lines (batch_id, product_id, qty)
VALUES ($1,$2,$3) RETURNING id`,
		line.BatchID, line.ProductID, line.Qty).Scan(&id)
	return id, err
}

func (t *txRepository) AppendMovement(ctx context.Context, m ledger.Movement) error {
	_, err := t.writer.Append(ctx, m)
	return err
}
