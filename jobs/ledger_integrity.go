package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"math"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brioche-erp/brioche-erp/internal/ledger"
)

// IntegrityJob recomputes current stock from the ledger and compares it
// against the most recent snapshot. Drift means a snapshot was written
// outside a ledger commit, which should be impossible, so any hit is
// logged loudly for investigation.
type IntegrityJob struct {
	pool   *pgxpool.Pool
	ledger *ledger.Repository
	logger *slog.Logger
}

// NewIntegrityJob constructs IntegrityJob.
func NewIntegrityJob(pool *pgxpool.Pool, repo *ledger.Repository, logger *slog.Logger) *IntegrityJob {
	return &IntegrityJob{pool: pool, ledger: repo, logger: logger}
}

type snapshotKey struct {
	productID  int64
	locationID int64
}

// Handle processes TaskLedgerIntegrity tasks.
func (j *IntegrityJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload IntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	rows, err := j.pool.Query(ctx, `SELECT product_id, location_id, qty
FROM stock_snapshots
WHERE snapshot_date = (SELECT MAX(snapshot_date) FROM stock_snapshots)`)
	if err != nil {
		return err
	}
	defer rows.Close()

	snapshot := make(map[snapshotKey]float64)
	for rows.Next() {
		var key snapshotKey
		var qty float64
		if err := rows.Scan(&key.productID, &key.locationID, &qty); err != nil {
			return err
		}
		snapshot[key] = qty
	}
	if err := rows.Err(); err != nil {
		return err
	}
	if len(snapshot) == 0 {
		j.logger.Info("ledger integrity: no snapshot to compare against")
		return nil
	}

	current, err := j.ledger.CurrentStockAll(ctx, ledger.StockFilter{})
	if err != nil {
		return err
	}
	live := make(map[snapshotKey]float64, len(current))
	for _, row := range current {
		live[snapshotKey{productID: row.ProductID, locationID: row.Location.BranchID()}] = row.Qty
	}

	// A live figure below its snapshot is normal (sales happened since);
	// what must never happen is stock appearing without a movement.
	var drift int
	for key, was := range snapshot {
		now := live[key]
		if math.Abs(now-was) > 1e-9 && now > was {
			hasNewIn, err := j.hasMovementsSinceSnapshot(ctx, key)
			if err != nil {
				return err
			}
			if !hasNewIn {
				drift++
				j.logger.Error("ledger integrity drift",
					slog.Int64("product_id", key.productID),
					slog.Int64("location_id", key.locationID),
					slog.Float64("snapshot_qty", was),
					slog.Float64("current_qty", now))
			}
		}
	}
	j.logger.Info("ledger integrity check finished",
		slog.Int("compared", len(snapshot)),
		slog.Int("drift", drift))
	return nil
}

func (j *IntegrityJob) hasMovementsSinceSnapshot(ctx context.Context, key snapshotKey) (bool, error) {
	var count int
	err := j.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_movements m
LEFT JOIN branches b ON b.id = m.location_id
WHERE m.product_id = $1
  AND COALESCE(CASE WHEN b.uses_central_stock OR b.is_outlet THEN NULL ELSE m.location_id END, 0) = $2
  AND m.occurred_at > (SELECT MAX(snapshot_date) FROM stock_snapshots)`,
		key.productID, key.locationID).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
