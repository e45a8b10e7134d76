package returns

import (
	"errors"
	"time"
)

// Status is the return header status. PENDING is the only non-terminal
// state, and approval is all-or-nothing at the header level.
type Status string

const (
	StatusPending  Status = "PENDING"
	StatusApproved Status = "APPROVED"
	StatusCanceled Status = "CANCELED"
)

// Return is a branch's proposal to send stock back to central. Creating
// one has no stock effect; only approval posts ledger entries.
type Return struct {
	ID        int64     `json:"id"`
	BranchID  int64     `json:"branch_id"`
	Date      time.Time `json:"date"`
	Status    Status    `json:"status"`
	Comment   string    `json:"comment,omitempty"`
	CreatedBy int64     `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
	Items     []Item    `json:"items,omitempty"`
}

// Item is one returned product line. Items carry no independent status.
type Item struct {
	ID        int64   `json:"id"`
	ReturnID  int64   `json:"return_id"`
	ProductID int64   `json:"product_id"`
	Qty       float64 `json:"qty"`
	Unit      string  `json:"unit,omitempty"`
	Reason    string  `json:"reason,omitempty"`
}

var (
	// ErrValidation indicates bad or missing input.
	ErrValidation = errors.New("returns: invalid input")
	// ErrNotPending indicates the header already left PENDING.
	ErrNotPending = errors.New("returns: return is not pending")
	// ErrNoItems indicates an approval attempt on an empty return.
	ErrNoItems = errors.New("returns: return has no items")
)
