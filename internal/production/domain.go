package production

import (
	"errors"
	"time"
)

// Batch is a posted production run. Posting is the only operation: each
// output line becomes an IN entry at central, and a batch is never edited
// afterwards.
type Batch struct {
	ID        int64     `json:"id"`
	Date      time.Time `json:"date"`
	Note      string    `json:"note,omitempty"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	Lines     []Line    `json:"lines,omitempty"`
}

// Line is one produced product quantity.
type Line struct {
	ID        int64   `json:"id"`
	BatchID   int64   `json:"batch_id"`
	ProductID int64   `json:"product_id"`
	Qty       float64 `json:"qty"`
}

// ErrValidation indicates bad or missing input.
var ErrValidation = errors.New("production: invalid input")
