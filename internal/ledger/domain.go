package ledger

import (
	"errors"
	"time"
)

// Direction enumerates the sign of a stock movement.
type Direction string

const (
	// DirectionIn increases stock at the movement's location.
	DirectionIn Direction = "IN"
	// DirectionOut decreases stock at the movement's location.
	DirectionOut Direction = "OUT"
)

// SourceType names the business event that produced a movement.
type SourceType string

const (
	SourceProduction     SourceType = "production"
	SourceSale           SourceType = "sale"
	SourceTransfer       SourceType = "transfer"
	SourceTransferEdit   SourceType = "transfer_edit"
	SourceTransferCancel SourceType = "transfer_cancel"
	SourceReturn         SourceType = "return"
	SourceExpense        SourceType = "expense"
	SourceManual         SourceType = "manual"
)

// Movement is one immutable stock-quantity delta. Movements are only ever
// appended; corrections are modeled as new offsetting entries, so the log
// replays to the current stock at any time.
type Movement struct {
	ID         int64
	ProductID  int64
	LocationID int64 // physical branch id, 0 = central warehouse
	Direction  Direction
	Qty        float64
	Source     SourceType
	SourceID   int64
	Ref        string // stable reference for idempotent producers
	OccurredAt time.Time
}

var (
	// ErrInvalidQuantity indicates a non-positive movement quantity.
	ErrInvalidQuantity = errors.New("ledger: quantity must be > 0")
	// ErrInvalidDirection indicates an unrecognised direction.
	ErrInvalidDirection = errors.New("ledger: direction must be IN or OUT")
	// ErrInvalidSource indicates an unrecognised source type.
	ErrInvalidSource = errors.New("ledger: unknown source type")
	// ErrProductRequired indicates a missing product reference.
	ErrProductRequired = errors.New("ledger: product required")
	// ErrDuplicateMovement indicates a replayed posting: the deterministic
	// ref already exists in the ledger.
	ErrDuplicateMovement = errors.New("ledger: movement already recorded")
)

// Validate checks the append preconditions. Nothing beyond these is
// enforced here: the ledger records physical events, it does not judge them.
func (m Movement) Validate() error {
	if m.ProductID <= 0 {
		return ErrProductRequired
	}
	if m.Qty <= 0 {
		return ErrInvalidQuantity
	}
	switch m.Direction {
	case DirectionIn, DirectionOut:
	default:
		return ErrInvalidDirection
	}
	switch m.Source {
	case SourceProduction, SourceSale, SourceTransfer, SourceTransferEdit,
		SourceTransferCancel, SourceReturn, SourceExpense, SourceManual:
	default:
		return ErrInvalidSource
	}
	return nil
}

// Delta returns the signed quantity contribution of the movement.
func (m Movement) Delta() float64 {
	if m.Direction == DirectionOut {
		return -m.Qty
	}
	return m.Qty
}

// StockRow is one aggregated (product, logical location) balance.
type StockRow struct {
	ProductID int64           `json:"product_id"`
	Location  LogicalLocation `json:"location"`
	Qty       float64         `json:"qty"`
}

// StockFilter narrows aggregation results. A nil Location means all
// locations; ProductID zero means all products.
type StockFilter struct {
	ProductID int64
	Location  *LogicalLocation
}
