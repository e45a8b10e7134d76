package transfers

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/brioche-erp/brioche-erp/internal/ledger"
	"github.com/brioche-erp/brioche-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Transfer, error)
	List(ctx context.Context, filter ListFilter) ([]Transfer, error)
	ListIncoming(ctx context.Context, locationID int64) ([]Transfer, error)
}

// BranchDirectory validates transfer destinations.
type BranchDirectory interface {
	Get(ctx context.Context, id int64) (BranchInfo, error)
}

// BranchInfo is the destination detail the service needs.
type BranchInfo struct {
	ID       int64
	IsOutlet bool
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates the transfer state machine. Every mutating operation
// runs as one transaction covering header, items and ledger appends, so a
// transfer's OUT entries and their eventual INs always net to zero once all
// items are terminal.
type Service struct {
	repo  RepositoryPort
	dir   BranchDirectory
	audit AuditPort
	locks *shared.AggregateLock
}

// NewService constructs Service.
func NewService(repo RepositoryPort, dir BranchDirectory, audit AuditPort, locks *shared.AggregateLock) *Service {
	return &Service{repo: repo, dir: dir, audit: audit, locks: locks}
}

// ItemInput is one requested line.
type ItemInput struct {
	ProductID int64
	Qty       float64
}

// CreateInput describes a new transfer.
type CreateInput struct {
	Date         time.Time
	ToLocationID int64
	Items        []ItemInput
	Note         string
	Actor        shared.Actor
}

// UpdateInput rewrites a still-pending transfer.
type UpdateInput struct {
	Date         time.Time
	ToLocationID int64
	Items        []ItemInput
	Note         string
	Actor        shared.Actor
}

// Create posts the transfer header, one PENDING item per valid line, and
// one OUT movement from central per item.
func (s *Service) Create(ctx context.Context, input CreateInput) (Transfer, error) {
	if !input.Actor.IsAdmin() {
		return Transfer{}, shared.ErrForbidden
	}
	items, err := s.validateInput(ctx, input.ToLocationID, input.Items)
	if err != nil {
		return Transfer{}, err
	}
	date := input.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}

	var created Transfer
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		header := Transfer{
			Date:         date,
			ToLocationID: input.ToLocationID,
			Status:       StatusPending,
			Note:         input.Note,
			CreatedBy:    input.Actor.ID,
		}
		id, err := tx.InsertTransfer(ctx, header)
		if err != nil {
			return err
		}
		header.ID = id
		if err := s.postItems(ctx, tx, id, items, &header); err != nil {
			return err
		}
		created = header
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.recordAudit(ctx, input.Actor.ID, "TRANSFER_CREATE", created.ID, map[string]any{
		"to_location": created.ToLocationID,
		"items":       len(created.Items),
	})
	return created, nil
}

// postItems inserts PENDING items and their OUT-from-central movements.
// Shared by Create and Update so an edit re-runs exactly the create logic.
func (s *Service) postItems(ctx context.Context, tx TxRepository, transferID int64, items []ItemInput, header *Transfer) error {
	for _, input := range items {
		item := Item{TransferID: transferID, ProductID: input.ProductID, Qty: input.Qty, Status: ItemPending}
		itemID, err := tx.InsertItem(ctx, item)
		if err != nil {
			return err
		}
		item.ID = itemID
		if err := tx.AppendMovement(ctx, ledger.Movement{
			ProductID: input.ProductID,
			Direction: ledger.DirectionOut,
			Qty:       input.Qty,
			Source:    ledger.SourceTransfer,
			SourceID:  transferID,
			Ref:       movementRef(transferID, itemID, "out"),
		}); err != nil {
			return err
		}
		header.Items = append(header.Items, item)
	}
	return nil
}

// Get loads a hydrated transfer.
func (s *Service) Get(ctx context.Context, id int64) (Transfer, error) {
	if id <= 0 {
		return Transfer{}, fmt.Errorf("%w: invalid transfer id", ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

// List returns transfers matching the filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Transfer, error) {
	return s.repo.List(ctx, filter)
}

// ListIncoming returns open transfers destined for a location.
func (s *Service) ListIncoming(ctx context.Context, locationID int64) ([]Transfer, error) {
	if locationID <= 0 {
		return nil, fmt.Errorf("%w: location required", ErrValidation)
	}
	return s.repo.ListIncoming(ctx, locationID)
}

// AcceptItem books the item into the destination. The destination check is
// ownership-based: only the receiving location may resolve its own lines.
func (s *Service) AcceptItem(ctx context.Context, transferID, itemID int64, actor shared.Actor) (Transfer, error) {
	return s.resolveItem(ctx, transferID, itemID, actor, ItemAccepted)
}

// RejectItem sends the item's quantity back to central.
func (s *Service) RejectItem(ctx context.Context, transferID, itemID int64, actor shared.Actor) (Transfer, error) {
	return s.resolveItem(ctx, transferID, itemID, actor, ItemRejected)
}

func (s *Service) resolveItem(ctx context.Context, transferID, itemID int64, actor shared.Actor, to ItemStatus) (Transfer, error) {
	if transferID <= 0 || itemID <= 0 {
		return Transfer{}, fmt.Errorf("%w: transfer and item required", ErrValidation)
	}
	key := shared.TransferLockKey(transferID)
	if err := s.locks.Acquire(ctx, key); err != nil {
		return Transfer{}, err
	}
	defer func() { _ = s.locks.Release(ctx, key) }()

	var result Transfer
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		transfer, err := tx.GetForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		item, err := tx.GetItem(ctx, transferID, itemID)
		if err != nil {
			return err
		}
		if transfer.ToLocationID != actor.BranchID {
			return ErrNotDestination
		}
		ok, err := tx.MarkItem(ctx, itemID, to)
		if err != nil {
			return err
		}
		if !ok {
			return ErrItemProcessed
		}

		movement := ledger.Movement{
			ProductID: item.ProductID,
			Direction: ledger.DirectionIn,
			Qty:       item.Qty,
			Source:    ledger.SourceTransfer,
			SourceID:  transferID,
		}
		if to == ItemAccepted {
			movement.LocationID = transfer.ToLocationID
			movement.Ref = movementRef(transferID, itemID, "accept")
		} else {
			// Rejected goods go back onto the central shelf.
			movement.Ref = movementRef(transferID, itemID, "reject")
		}
		if err := tx.AppendMovement(ctx, movement); err != nil {
			return err
		}

		items, err := tx.Items(ctx, transferID)
		if err != nil {
			return err
		}
		transfer.Status = DeriveStatus(items)
		if err := tx.SetStatus(ctx, transferID, transfer.Status); err != nil {
			return err
		}
		transfer.Items = items
		result = transfer
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.recordAudit(ctx, actor.ID, "TRANSFER_ITEM_"+string(to), transferID, map[string]any{
		"item_id": itemID,
		"status":  string(result.Status),
	})
	return result, nil
}

// Update rewrites a transfer that has no processed items: every original
// OUT is reversed by a compensating IN at central tagged transfer_edit, the
// old items are dropped, and the new item set is posted exactly as Create
// would post it.
func (s *Service) Update(ctx context.Context, transferID int64, input UpdateInput) (Transfer, error) {
	if !input.Actor.IsAdmin() {
		return Transfer{}, shared.ErrForbidden
	}
	items, err := s.validateInput(ctx, input.ToLocationID, input.Items)
	if err != nil {
		return Transfer{}, err
	}
	key := shared.TransferLockKey(transferID)
	if err := s.locks.Acquire(ctx, key); err != nil {
		return Transfer{}, err
	}
	defer func() { _ = s.locks.Release(ctx, key) }()

	var result Transfer
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		header, err := tx.GetForUpdate(ctx, transferID)
		if err != nil {
			return err
		}
		existing, err := tx.Items(ctx, transferID)
		if err != nil {
			return err
		}
		for _, item := range existing {
			if item.Status != ItemPending {
				return ErrHasProcessedItems
			}
		}
		for _, item := range existing {
			if err := tx.AppendMovement(ctx, ledger.Movement{
				ProductID: item.ProductID,
				Direction: ledger.DirectionIn,
				Qty:       item.Qty,
				Source:    ledger.SourceTransferEdit,
				SourceID:  transferID,
				Ref:       movementRef(transferID, item.ID, "edit"),
			}); err != nil {
				return err
			}
		}
		if err := tx.DeleteItems(ctx, transferID); err != nil {
			return err
		}

		date := input.Date
		if date.IsZero() {
			date = header.Date
		}
		if err := tx.UpdateHeader(ctx, transferID, date, input.ToLocationID, input.Note); err != nil {
			return err
		}
		if err := tx.SetStatus(ctx, transferID, StatusPending); err != nil {
			return err
		}

		header = Transfer{
			ID:           transferID,
			Date:         date,
			ToLocationID: input.ToLocationID,
			Status:       StatusPending,
			Note:         input.Note,
			CreatedBy:    header.CreatedBy,
			CreatedAt:    header.CreatedAt,
		}
		if err := s.postItems(ctx, tx, transferID, items, &header); err != nil {
			return err
		}
		result = header
		return nil
	})
	if err != nil {
		return Transfer{}, err
	}
	s.recordAudit(ctx, input.Actor.ID, "TRANSFER_EDIT", transferID, map[string]any{
		"to_location": result.ToLocationID,
		"items":       len(result.Items),
	})
	return result, nil
}

// Cancel reverses a transfer that has no processed items. Each original OUT
// gets a compensating IN at central tagged transfer_cancel; items end
// REJECTED and the header CANCELLED.
func (s *Service) Cancel(ctx context.Context, transferID int64, actor shared.Actor) error {
	if !actor.IsAdmin() {
		return shared.ErrForbidden
	}
	key := shared.TransferLockKey(transferID)
	if err := s.locks.Acquire(ctx, key); err != nil {
		return err
	}
	defer func() { _ = s.locks.Release(ctx, key) }()

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if _, err := tx.GetForUpdate(ctx, transferID); err != nil {
			return err
		}
		items, err := tx.Items(ctx, transferID)
		if err != nil {
			return err
		}
		for _, item := range items {
			if item.Status != ItemPending {
				return ErrHasProcessedItems
			}
		}
		for _, item := range items {
			if err := tx.AppendMovement(ctx, ledger.Movement{
				ProductID: item.ProductID,
				Direction: ledger.DirectionIn,
				Qty:       item.Qty,
				Source:    ledger.SourceTransferCancel,
				SourceID:  transferID,
				Ref:       movementRef(transferID, item.ID, "cancel"),
			}); err != nil {
				return err
			}
		}
		if err := tx.MarkAllItems(ctx, transferID, ItemRejected); err != nil {
			return err
		}
		return tx.SetStatus(ctx, transferID, StatusCancelled)
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actor.ID, "TRANSFER_CANCEL", transferID, nil)
	return nil
}

// validateInput checks the destination and filters the item lines, keeping
// only those with a product and positive quantity. No valid lines fails
// the whole request.
func (s *Service) validateInput(ctx context.Context, toLocationID int64, items []ItemInput) ([]ItemInput, error) {
	if toLocationID <= 0 {
		return nil, fmt.Errorf("%w: destination required", ErrValidation)
	}
	if _, err := s.dir.Get(ctx, toLocationID); err != nil {
		return nil, fmt.Errorf("%w: unknown destination %d", ErrValidation, toLocationID)
	}
	valid := make([]ItemInput, 0, len(items))
	for _, item := range items {
		if item.ProductID > 0 && item.Qty > 0 {
			valid = append(valid, item)
		}
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("%w: at least one valid item required", ErrValidation)
	}
	return valid, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, transferID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "transfer",
		EntityID: fmt.Sprintf("%d", transferID),
		Meta:     meta,
	})
}

// movementRef builds a deterministic reference so a replayed request cannot
// double-post the same movement.
func movementRef(transferID, itemID int64, step string) string {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("transfer:%d:item:%d:%s", transferID, itemID, step))).String()
}
