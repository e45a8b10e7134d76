package transfers

import (
	"errors"
	"time"
)

// Status is the transfer header status. It is always derived from the item
// statuses via DeriveStatus and persisted in the same transaction as the
// item transition that changed it; nothing sets it directly.
type Status string

const (
	StatusPending   Status = "PENDING"
	StatusPartial   Status = "PARTIAL"
	StatusCompleted Status = "COMPLETED"
	StatusCancelled Status = "CANCELLED"
)

// ItemStatus is the per-line state. PENDING transitions once, to ACCEPTED
// or REJECTED, both terminal.
type ItemStatus string

const (
	ItemPending  ItemStatus = "PENDING"
	ItemAccepted ItemStatus = "ACCEPTED"
	ItemRejected ItemStatus = "REJECTED"
)

// Transfer models a shipment of line items from the central warehouse to
// one destination branch.
type Transfer struct {
	ID           int64     `json:"id"`
	Date         time.Time `json:"date"`
	ToLocationID int64     `json:"to_location_id"`
	Status       Status    `json:"status"`
	Note         string    `json:"note"`
	CreatedBy    int64     `json:"created_by"`
	CreatedAt    time.Time `json:"created_at"`
	Items        []Item    `json:"items,omitempty"`
}

// Item is one product line of a transfer. Each line resolves independently
// at the destination.
type Item struct {
	ID         int64      `json:"id"`
	TransferID int64      `json:"transfer_id"`
	ProductID  int64      `json:"product_id"`
	Qty        float64    `json:"qty"`
	Status     ItemStatus `json:"status"`
}

var (
	// ErrValidation indicates bad or missing input.
	ErrValidation = errors.New("transfers: invalid input")
	// ErrItemProcessed indicates the item already left PENDING.
	ErrItemProcessed = errors.New("transfers: item already processed")
	// ErrHasProcessedItems blocks edit/cancel once any item resolved.
	ErrHasProcessedItems = errors.New("transfers: transfer has processed items")
	// ErrNotDestination indicates the acting location does not own the
	// transfer's destination.
	ErrNotDestination = errors.New("transfers: acting location is not the destination")
)

// DeriveStatus computes the header status from the item multiset. The
// result depends only on the counts, never on transition order.
func DeriveStatus(items []Item) Status {
	var accepted, rejected, pending int
	for _, item := range items {
		switch item.Status {
		case ItemAccepted:
			accepted++
		case ItemRejected:
			rejected++
		default:
			pending++
		}
	}
	switch {
	case pending > 0 && accepted == 0 && rejected == 0:
		return StatusPending
	case pending > 0:
		return StatusPartial
	case accepted > 0 && rejected > 0:
		return StatusPartial
	case accepted > 0:
		return StatusCompleted
	case rejected > 0:
		return StatusCancelled
	default:
		return StatusPending
	}
}
