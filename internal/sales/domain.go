package sales

import (
	"errors"
	"fmt"
	"time"
)

// Sale is a posted point-of-sale transaction. TotalAmount is always the
// sum of its line totals, fixed up server-side at creation.
type Sale struct {
	ID          int64     `json:"id"`
	BranchID    int64     `json:"branch_id"`
	Date        time.Time `json:"date"`
	TotalAmount float64   `json:"total_amount"`
	CreatedBy   int64     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	Items       []Item    `json:"items,omitempty"`
}

// Item is one sold product line.
type Item struct {
	ID        int64   `json:"id"`
	SaleID    int64   `json:"sale_id"`
	ProductID int64   `json:"product_id"`
	Qty       float64 `json:"qty"`
	UnitPrice float64 `json:"unit_price"`
}

// Total is the line amount.
func (i Item) Total() float64 {
	return i.Qty * i.UnitPrice
}

// Shortage is one product's deficit at the selling location.
type Shortage struct {
	ProductID int64   `json:"product_id"`
	Required  float64 `json:"required"`
	Available float64 `json:"available"`
}

// ShortageError carries every shortage found during the stock check, so a
// caller sees the full list in one response and can retry with the
// override set.
type ShortageError struct {
	Shortages []Shortage
}

func (e *ShortageError) Error() string {
	return fmt.Sprintf("sales: stock not enough for %d product(s)", len(e.Shortages))
}

// ErrValidation indicates bad or missing input.
var ErrValidation = errors.New("sales: invalid input")
