package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/brioche-erp/brioche-erp/internal/ledger"
)

// SnapshotJob writes the daily stock snapshot. The snapshot is strictly
// derived from the movement ledger; it exists for reporting and for the
// integrity check, never as a source of truth.
type SnapshotJob struct {
	pool   *pgxpool.Pool
	ledger *ledger.Repository
	logger *slog.Logger
}

// NewSnapshotJob constructs SnapshotJob.
func NewSnapshotJob(pool *pgxpool.Pool, repo *ledger.Repository, logger *slog.Logger) *SnapshotJob {
	return &SnapshotJob{pool: pool, ledger: repo, logger: logger}
}

// Handle processes TaskStockSnapshot tasks.
func (j *SnapshotJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload SnapshotPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	day := payload.ScheduledFor
	if day.IsZero() {
		day = time.Now().UTC()
	}
	date := day.Truncate(24 * time.Hour)

	rows, err := j.ledger.CurrentStockAll(ctx, ledger.StockFilter{})
	if err != nil {
		return err
	}

	tx, err := j.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	// Re-running the task for the same day replaces that day's snapshot.
	if _, err := tx.Exec(ctx, `DELETE FROM stock_snapshots WHERE snapshot_date=$1`, date); err != nil {
		return err
	}
	for _, row := range rows {
		if _, err := tx.Exec(ctx, `INSERT INTO stock_snapshots (snapshot_date, product_id, location_id, qty)
VALUES ($1,$2,$3,$4)`, date, row.ProductID, row.Location.BranchID(), row.Qty); err != nil {
			return err
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return err
	}

	j.logger.Info("stock snapshot written",
		slog.Time("date", date),
		slog.Int("rows", len(rows)))
	return nil
}
