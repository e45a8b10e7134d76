package sales

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brioche-erp/brioche-erp/internal/ledger"
	"github.com/brioche-erp/brioche-erp/internal/shared"
)

// Repository persists sales in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by Service. The
// stock check reads through the same transaction that posts the sale, so
// the checked figure cannot go stale before the OUT entries land.
type TxRepository interface {
	InsertSale(ctx context.Context, sale Sale) (int64, error)
	InsertItem(ctx context.Context, item Item) (int64, error)
	SetTotal(ctx context.Context, id int64, total float64) error
	CurrentStock(ctx context.Context, productID int64, loc ledger.LogicalLocation) (float64, error)
	AppendMovement(ctx context.Context, m ledger.Movement) error
}

type txRepository struct {
	tx     pgx.Tx
	writer *ledger.TxWriter
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("sales repository not initialised")
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

// ListFilter narrows sale listings.
type ListFilter struct {
	shared.ListFilters
	BranchID int64
}

// Get loads a sale with its items.
func (r *Repository) Get(ctx context.Context, id int64) (Sale, error) {
	var sale Sale
	err := r.pool.QueryRow(ctx, `SELECT id, branch_id, date, total_amount, created_by, created_at
FROM sales WHERE id=$1`, id).Scan(&sale.ID, &sale.BranchID, &sale.Date, &sale.TotalAmount, &sale.CreatedBy, &sale.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Sale{}, shared.ErrNotFound
		}
		return Sale{}, err
	}
	rows, err := r.pool.Query(ctx, `SELECT id, sale_id, product_id, qty, unit_price
FROM sale_items WHERE sale_id=$1 ORDER BY id`, id)
	if err != nil {
		return Sale{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.SaleID, &item.ProductID, &item.Qty, &item.UnitPrice); err != nil {
			return Sale{}, err
		}
		sale.Items = append(sale.Items, item)
	}
	return sale, rows.Err()
}

// List returns sale headers matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Sale, error) {
	f := filter.Normalize()
	query := `SELECT id, branch_id, date, total_amount, created_by, created_at FROM sales WHERE 1=1`
	args := []any{}
	if filter.BranchID > 0 {
		args = append(args, filter.BranchID)
		query += ` AND branch_id = $` + strconv.Itoa(len(args))
	}
	args = append(args, f.Limit)
	query += ` ORDER BY date DESC, id DESC LIMIT $` + strconv.Itoa(len(args))
	args = append(args, f.Offset())
	query += ` OFFSET $` + strconv.Itoa(len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Sale
	for rows.Next() {
		var sale Sale
		if err := rows.Scan(&sale.ID, &sale.BranchID, &sale.Date, &sale.TotalAmount, &sale.CreatedBy, &sale.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, sale)
	}
	return list, rows.Err()
}

func (t *txRepository) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO sales (branch_id, date, total_amount, created_by, created_at)
VALUES ($1,$2,$3,$4,now()) RETURNING id`,
		sale.BranchID, sale.Date, sale.TotalAmount, sale.CreatedBy).Scan(&id)
	return id, err
}

func (t *txRepository) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO sale_items (sale_id, product_id, qty, unit_price)
VALUES ($1,$2,$3,$4) RETURNING id`,
		item.SaleID, item.ProductID, item.Qty, item.UnitPrice).Scan(&id)
	return id, err
}

func (t *txRepository) SetTotal(ctx context.Context, id int64, total float64) error {
	_, err := t.tx.Exec(ctx, `UPDATE sales SET total_amount=$1 WHERE id=$2`, total, id)
	return err
}

func (t *txRepository) CurrentStock(ctx context.Context, productID int64, loc ledger.LogicalLocation) (float64, error) {
	return ledger.CurrentStock(ctx, t.tx, productID, loc)
}

func (t *txRepository) AppendMovement(ctx context.Context, m ledger.Movement) error {
	_, err := t.writer.Append(ctx, m)
	return err
}
