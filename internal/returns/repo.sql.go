package returns

import (
	"context"
	"errors"
	"strconv"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brioche-erp/brioche-erp/internal/ledger"
	"github.com/brioche-erp/brioche-erp/internal/shared"
)

// Repository persists returns in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by Service. The
// approval's movement appends share the transaction with the status flip.
type TxRepository interface {
	InsertReturn(ctx context.Context, ret Return) (int64, error)
	InsertItem(ctx context.Context, item Item) (int64, error)
	GetForUpdate(ctx context.Context, id int64) (Return, error)
	Items(ctx context.Context, returnID int64) ([]Item, error)
	SetStatus(ctx context.Context, id int64, from, to Status) (bool, error)
	AppendMovement(ctx context.Context, m ledger.Movement) error
}

type txRepository struct {
	tx     pgx.Tx
	writer *ledger.TxWriter
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("returns repository not initialised")
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

// ListFilter narrows return listings.
type ListFilter struct {
	shared.ListFilters
	Status   Status
	BranchID int64
}

// Get loads a return with its items.
func (r *Repository) Get(ctx context.Context, id int64) (Return, error) {
	var ret Return
	err := r.pool.QueryRow(ctx, `SELECT id, branch_id, date, status, comment, created_by, created_at
FROM returns WHERE id=$1`, id).Scan(&ret.ID, &ret.BranchID, &ret.Date, &ret.Status, &ret.Comment, &ret.CreatedBy, &ret.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Return{}, shared.ErrNotFound
		}
		return Return{}, err
	}
	items, err := queryItems(ctx, r.pool, id)
	if err != nil {
		return Return{}, err
	}
	ret.Items = items
	return ret, nil
}

// List returns headers matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Return, error) {
	f := filter.Normalize()
	query := `SELECT id, branch_id, date, status, comment, created_by, created_at FROM returns WHERE 1=1`
	args := []any{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
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

	var list []Return
	for rows.Next() {
		var ret Return
		if err := rows.Scan(&ret.ID, &ret.BranchID, &ret.Date, &ret.Status, &ret.Comment, &ret.CreatedBy, &ret.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, ret)
	}
	return list, rows.Err()
}

func queryItems(ctx context.Context, q ledger.Querier, returnID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT id, return_id, product_id, qty, unit, reason
FROM return_items WHERE return_id=$1 ORDER BY id`, returnID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.ReturnID, &item.ProductID, &item.Qty, &item.Unit, &item.Reason); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (t *txRepository) InsertReturn(ctx context.Context, ret Return) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO returns (branch_id, date, status, comment, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,now()) RETURNING id`,
		ret.BranchID, ret.Date, string(ret.Status), ret.Comment, ret.CreatedBy).Scan(&id)
	return id, err
}

func (t *txRepository) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO return_items (return_id, product_id, qty, unit, reason)
VALUES ($1,$2,$3,$4,$5) RETURNING id`,
		item.ReturnID, item.ProductID, item.Qty, item.Unit, item.Reason).Scan(&id)
	return id, err
}

func (t *txRepository) GetForUpdate(ctx context.Context, id int64) (Return, error) {
	var ret Return
	err := t.tx.QueryRow(ctx, `SELECT id, branch_id, date, status, comment, created_by, created_at
FROM returns WHERE id=$1 FOR UPDATE`, id).Scan(&ret.ID, &ret.BranchID, &ret.Date, &ret.Status, &ret.Comment, &ret.CreatedBy, &ret.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Return{}, shared.ErrNotFound
		}
		return Return{}, err
	}
	return ret, nil
}

func (t *txRepository) Items(ctx context.Context, returnID int64) ([]Item, error) {
	return queryItems(ctx, t.tx, returnID)
}

// SetStatus flips the header status only when it still holds the expected
// value, so two concurrent approvals cannot both win.
func (t *txRepository) SetStatus(ctx context.Context, id int64, from, to Status) (bool, error) {
	tag, err := t.tx.Exec(ctx, `UPDATE returns SET status=$1 WHERE id=$2 AND status=$3`,
		string(to), id, string(from))
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (t *txRepository) AppendMovement(ctx context.Context, m ledger.Movement) error {
	_, err := t.writer.Append(ctx, m)
	return err
}
