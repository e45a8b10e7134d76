package ledger

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// logicalExpr computes the logical branch id (0 = central) of a movement
// row inside SQL, so folding happens before any grouping or filtering.
const logicalExpr = `COALESCE(CASE WHEN b.uses_central_stock OR b.is_outlet THEN NULL ELSE m.location_id END, 0)`

const deltaExpr = `SUM(CASE WHEN m.direction = 'IN' THEN m.qty ELSE -m.qty END)`

// TxWriter appends movements inside a caller-owned transaction, so the
// append commits or rolls back together with the producer's header and
// item writes.
type TxWriter struct {
	tx pgx.Tx
}

// NewTxWriter binds a writer to the transaction.
func NewTxWriter(tx pgx.Tx) *TxWriter {
	return &TxWriter{tx: tx}
}

// Append inserts one movement. There is no update or delete counterpart
// anywhere in this package.
func (w *TxWriter) Append(ctx context.Context, m Movement) (int64, error) {
	if err := m.Validate(); err != nil {
		return 0, err
	}
	var id int64
	err := w.tx.QueryRow(ctx, `INSERT INTO stock_movements (product_id, location_id, direction, qty, source_type, source_id, ref, occurred_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,COALESCE($8, NOW())) RETURNING id`,
		m.ProductID, nullInt(m.LocationID), string(m.Direction), m.Qty, string(m.Source), m.SourceID, m.Ref, nullTime(m.OccurredAt)).Scan(&id)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return 0, ErrDuplicateMovement
		}
		return 0, err
	}
	if movementObserver != nil {
		movementObserver(string(m.Source), string(m.Direction))
	}
	return id, nil
}

var movementObserver func(source, direction string)

// SetMovementObserver registers a process-wide callback invoked once per
// appended movement. Set during startup, before any writes.
func SetMovementObserver(fn func(source, direction string)) {
	movementObserver = fn
}

// Querier is satisfied by both *pgxpool.Pool and pgx.Tx, so aggregation can
// run standalone or inside a producer's transaction.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CurrentStock replays the ledger for one (product, logical location) pair.
func CurrentStock(ctx context.Context, q Querier, productID int64, loc LogicalLocation) (float64, error) {
	if productID <= 0 {
		return 0, ErrProductRequired
	}
	var qty float64
	err := q.QueryRow(ctx, `SELECT COALESCE(`+deltaExpr+`, 0)
FROM stock_movements m
LEFT JOIN branches b ON b.id = m.location_id
WHERE m.product_id = $1 AND `+logicalExpr+` = $2`, productID, loc.BranchID()).Scan(&qty)
	if err != nil {
		return 0, err
	}
	return qty, nil
}

// Repository reads ledger aggregates from PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CurrentStock implements RepositoryPort.
func (r *Repository) CurrentStock(ctx context.Context, productID int64, loc LogicalLocation) (float64, error) {
	if r == nil {
		return 0, errors.New("ledger repository not initialised")
	}
	return CurrentStock(ctx, r.pool, productID, loc)
}

// CurrentStockAll replays the whole ledger grouped by (product, logical
// location). Zero-net rows are omitted: fully-depleted pairs are not
// "current stock".
func (r *Repository) CurrentStockAll(ctx context.Context, filter StockFilter) ([]StockRow, error) {
	if r == nil {
		return nil, errors.New("ledger repository not initialised")
	}
	query := `SELECT m.product_id, ` + logicalExpr + ` AS logical_id, ` + deltaExpr + ` AS qty
FROM stock_movements m
LEFT JOIN branches b ON b.id = m.location_id
WHERE 1=1`
	args := []any{}
	if filter.ProductID > 0 {
		args = append(args, filter.ProductID)
		query += ` AND m.product_id = $1`
	}
	if filter.Location != nil {
		args = append(args, filter.Location.BranchID())
		query += ` AND ` + logicalExpr + ` = $` + strconv.Itoa(len(args))
	}
	query += `
GROUP BY 1, 2
HAVING ` + deltaExpr + ` <> 0
ORDER BY 1, 2`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	result := []StockRow{}
	for rows.Next() {
		var productID, logicalID int64
		var qty float64
		if err := rows.Scan(&productID, &logicalID, &qty); err != nil {
			return nil, err
		}
		loc := Central()
		if logicalID != 0 {
			loc = AtBranch(logicalID)
		}
		result = append(result, StockRow{ProductID: productID, Location: loc, Qty: qty})
	}
	return result, rows.Err()
}

// History lists raw movements for a product, newest first.
func (r *Repository) History(ctx context.Context, productID int64, limit int) ([]Movement, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, product_id, COALESCE(location_id, 0), direction, qty, source_type, source_id, ref, occurred_at
FROM stock_movements WHERE product_id = $1 ORDER BY occurred_at DESC, id DESC LIMIT $2`, productID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var list []Movement
	for rows.Next() {
		var m Movement
		var direction, source string
		if err := rows.Scan(&m.ID, &m.ProductID, &m.LocationID, &direction, &m.Qty, &source, &m.SourceID, &m.Ref, &m.OccurredAt); err != nil {
			return nil, err
		}
		m.Direction = Direction(direction)
		m.Source = SourceType(source)
		list = append(list, m)
	}
	return list, rows.Err()
}

func nullInt(value int64) any {
	if value == 0 {
		return nil
	}
	return value
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
