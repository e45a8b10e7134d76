package transfers

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brioche-erp/brioche-erp/internal/ledger"
	"github.com/brioche-erp/brioche-erp/internal/shared"
)

// Repository persists transfers in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// TxRepository exposes the transactional operations used by Service. Ledger
// appends go through the same transaction so an operation's header, item
// and movement writes commit as one unit.
type TxRepository interface {
	InsertTransfer(ctx context.Context, t Transfer) (int64, error)
	InsertItem(ctx context.Context, item Item) (int64, error)
	GetForUpdate(ctx context.Context, id int64) (Transfer, error)
	GetItem(ctx context.Context, transferID, itemID int64) (Item, error)
	Items(ctx context.Context, transferID int64) ([]Item, error)
	MarkItem(ctx context.Context, itemID int64, to ItemStatus) (bool, error)
	MarkAllItems(ctx context.Context, transferID int64, to ItemStatus) error
	DeleteItems(ctx context.Context, transferID int64) error
	UpdateHeader(ctx context.Context, id int64, date time.Time, toLocationID int64, note string) error
	SetStatus(ctx context.Context, id int64, status Status) error
	AppendMovement(ctx context.Context, m ledger.Movement) error
}

type txRepository struct {
	tx     pgx.Tx
	writer *ledger.TxWriter
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("transfers repository not initialised")
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

// ListFilter narrows transfer listings.
type ListFilter struct {
	shared.ListFilters
	Status       Status
	ToLocationID int64
}

// Get loads a transfer with its items.
func (r *Repository) Get(ctx context.Context, id int64) (Transfer, error) {
	var t Transfer
	err := r.pool.QueryRow(ctx, `SELECT id, date, to_location_id, status, note, created_by, created_at
FROM transfers WHERE id=$1`, id).Scan(&t.ID, &t.Date, &t.ToLocationID, &t.Status, &t.Note, &t.CreatedBy, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, shared.ErrNotFound
		}
		return Transfer{}, err
	}
	items, err := queryItems(ctx, r.pool, id)
	if err != nil {
		return Transfer{}, err
	}
	t.Items = items
	return t, nil
}

// List returns transfer headers matching the filter, newest first.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Transfer, error) {
	f := filter.Normalize()
	query := `SELECT id, date, to_location_id, status, note, created_by, created_at FROM transfers WHERE 1=1`
	args := []any{}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filter.ToLocationID > 0 {
		args = append(args, filter.ToLocationID)
		query += ` AND to_location_id = $` + strconv.Itoa(len(args))
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

	var list []Transfer
	for rows.Next() {
		var t Transfer
		if err := rows.Scan(&t.ID, &t.Date, &t.ToLocationID, &t.Status, &t.Note, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	return list, rows.Err()
}

// ListIncoming returns transfers destined for the given location that still
// have unresolved items.
func (r *Repository) ListIncoming(ctx context.Context, locationID int64) ([]Transfer, error) {
	rows, err := r.pool.Query(ctx, `SELECT id, date, to_location_id, status, note, created_by, created_at
FROM transfers WHERE to_location_id=$1 AND status IN ('PENDING','PARTIAL') ORDER BY date DESC, id DESC`, locationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Transfer
	for rows.Next() {
		var t Transfer
		if err := rows.Scan(&t.ID, &t.Date, &t.ToLocationID, &t.Status, &t.Note, &t.CreatedBy, &t.CreatedAt); err != nil {
			return nil, err
		}
		list = append(list, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range list {
		items, err := queryItems(ctx, r.pool, list[i].ID)
		if err != nil {
			return nil, err
		}
		list[i].Items = items
	}
	return list, nil
}

func queryItems(ctx context.Context, q ledger.Querier, transferID int64) ([]Item, error) {
	rows, err := q.Query(ctx, `SELECT id, transfer_id, product_id, qty, status
FROM transfer_items WHERE transfer_id=$1 ORDER BY id ASC`, transferID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Item
	for rows.Next() {
		var item Item
		if err := rows.Scan(&item.ID, &item.TransferID, &item.ProductID, &item.Qty, &item.Status); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *txRepository) InsertTransfer(ctx context.Context, t Transfer) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO transfers (date, to_location_id, status, note, created_by, created_at)
VALUES ($1,$2,$3,$4,$5,NOW()) RETURNING id`, t.Date, t.ToLocationID, string(t.Status), t.Note, t.CreatedBy).Scan(&id)
	return id, err
}

func (r *txRepository) InsertItem(ctx context.Context, item Item) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx, `INSERT INTO transfer_items (transfer_id, product_id, qty, status)
VALUES ($1,$2,$3,$4) RETURNING id`, item.TransferID, item.ProductID, item.Qty, string(item.Status)).Scan(&id)
	return id, err
}

// GetForUpdate locks the header row, serialising mutations per aggregate.
func (r *txRepository) GetForUpdate(ctx context.Context, id int64) (Transfer, error) {
	var t Transfer
	err := r.tx.QueryRow(ctx, `SELECT id, date, to_location_id, status, note, created_by, created_at
FROM transfers WHERE id=$1 FOR UPDATE`, id).Scan(&t.ID, &t.Date, &t.ToLocationID, &t.Status, &t.Note, &t.CreatedBy, &t.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Transfer{}, shared.ErrNotFound
		}
		return Transfer{}, err
	}
	return t, nil
}

func (r *txRepository) GetItem(ctx context.Context, transferID, itemID int64) (Item, error) {
	var item Item
	err := r.tx.QueryRow(ctx, `SELECT id, transfer_id, product_id, qty, status
FROM transfer_items WHERE id=$1 AND transfer_id=$2`, itemID, transferID).Scan(&item.ID, &item.TransferID, &item.ProductID, &item.Qty, &item.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, shared.ErrNotFound
		}
		return Item{}, err
	}
	return item, nil
}

func (r *txRepository) Items(ctx context.Context, transferID int64) ([]Item, error) {
	return queryItems(ctx, r.tx, transferID)
}

// MarkItem flips a PENDING item to a terminal status. The status predicate
// makes the transition a compare-and-set: of two concurrent calls exactly
// one observes a row.
func (r *txRepository) MarkItem(ctx context.Context, itemID int64, to ItemStatus) (bool, error) {
	tag, err := r.tx.Exec(ctx, `UPDATE transfer_items SET status=$1 WHERE id=$2 AND status='PENDING'`, string(to), itemID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (r *txRepository) MarkAllItems(ctx context.Context, transferID int64, to ItemStatus) error {
	_, err := r.tx.Exec(ctx, `UPDATE transfer_items SET status=$1 WHERE transfer_id=$2 AND status='PENDING'`, string(to), transferID)
	return err
}

func (r *txRepository) DeleteItems(ctx context.Context, transferID int64) error {
	_, err := r.tx.Exec(ctx, `DELETE FROM transfer_items WHERE transfer_id=$1`, transferID)
	return err
}

func (r *txRepository) UpdateHeader(ctx context.Context, id int64, date time.Time, toLocationID int64, note string) error {
	_, err := r.tx.Exec(ctx, `UPDATE transfers SET date=$1, to_location_id=$2, note=$3 WHERE id=$4`, date, toLocationID, note, id)
	return err
}

func (r *txRepository) SetStatus(ctx context.Context, id int64, status Status) error {
	_, err := r.tx.Exec(ctx, `UPDATE transfers SET status=$1 WHERE id=$2`, string(status), id)
	return err
}

func (r *txRepository) AppendMovement(ctx context.Context, m ledger.Movement) error {
	_, err := r.writer.Append(ctx, m)
	return err
}
