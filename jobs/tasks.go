package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskStockSnapshot writes the daily ledger-derived stock snapshot.
	TaskStockSnapshot = "stock:snapshot"
	// TaskLedgerIntegrity compares recomputed stock against the latest
	// snapshot and reports drift.
	TaskLedgerIntegrity = "stock:integrity"
)

// SnapshotPayload carries scheduling metadata for the snapshot task.
type SnapshotPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewStockSnapshotTask constructs an Asynq task for the daily snapshot.
func NewStockSnapshotTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(SnapshotPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskStockSnapshot, body, asynq.Queue(QueueDefault)), nil
}

// IntegrityPayload carries scheduling metadata for the integrity task.
type IntegrityPayload struct {
	ScheduledFor time.Time `json:"scheduled_for"`
}

// NewLedgerIntegrityTask constructs an Asynq task for the integrity check.
func NewLedgerIntegrityTask(at time.Time) (*asynq.Task, error) {
	body, err := json.Marshal(IntegrityPayload{ScheduledFor: at})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLedgerIntegrity, body, asynq.Queue(QueueDefault)), nil
}
