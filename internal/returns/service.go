package returns

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
	Get(ctx context.Context, id int64) (Return, error)
	List(ctx context.Context, filter ListFilter) ([]Return, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates the return state machine. A return is a request: no
// stock moves at creation, and approval posts the branch-to-central pair
// for every item in one transaction.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
	locks *shared.AggregateLock
}

// NewService constructs Service.
func NewService(repo RepositoryPort, audit AuditPort, locks *shared.AggregateLock) *Service {
	return &Service{repo: repo, audit: audit, locks: locks}
}

// ItemInput is one proposed return line.
type ItemInput struct {
	ProductID int64
	Qty       float64
	Unit      string
	Reason    string
}

// CreateInput describes a new return request.
type CreateInput struct {
	BranchID int64
	Date     time.Time
	Items    []ItemInput
	Comment  string
	Actor    shared.Actor
}

// Create inserts the PENDING header and its items. Nothing is posted to
// the ledger until an admin approves.
func (s *Service) Create(ctx context.Context, input CreateInput) (Return, error) {
	if input.BranchID <= 0 {
		return Return{}, fmt.Errorf("%w: branch required", ErrValidation)
	}
	if !input.Actor.ActsFor(input.BranchID) {
		return Return{}, shared.ErrForbidden
	}
	valid := make([]ItemInput, 0, len(input.Items))
	for _, item := range input.Items {
		if item.ProductID > 0 && item.Qty > 0 {
			valid = append(valid, item)
		}
	}
	if len(valid) == 0 {
		return Return{}, fmt.Errorf("%w: at least one valid item required", ErrValidation)
	}
	date := input.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}

	var created Return
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		header := Return{
			BranchID:  input.BranchID,
			Date:      date,
			Status:    StatusPending,
			Comment:   input.Comment,
			CreatedBy: input.Actor.ID,
		}
		id, err := tx.InsertReturn(ctx, header)
		if err != nil {
			return err
		}
		header.ID = id
		for _, item := range valid {
			line := Item{
				ReturnID:  id,
				ProductID: item.ProductID,
				Qty:       item.Qty,
				Unit:      item.Unit,
				Reason:    item.Reason,
			}
			lineID, err := tx.InsertItem(ctx, line)
			if err != nil {
				return err
			}
			line.ID = lineID
			header.Items = append(header.Items, line)
		}
		created = header
		return nil
	})
	if err != nil {
		return Return{}, err
	}
	s.recordAudit(ctx, input.Actor.ID, "RETURN_CREATE", created.ID, map[string]any{
		"branch_id": created.BranchID,
		"items":     len(created.Items),
	})
	return created, nil
}

// Get loads a hydrated return.
func (s *Service) Get(ctx context.Context, id int64) (Return, error) {
	if id <= 0 {
		return Return{}, fmt.Errorf("%w: invalid return id", ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

// List returns headers matching the filter. Branch actors only see their
// own branch.
func (s *Service) List(ctx context.Context, filter ListFilter, actor shared.Actor) ([]Return, error) {
	if !actor.IsAdmin() {
		filter.BranchID = actor.BranchID
	}
	return s.repo.List(ctx, filter)
}

// Approve posts OUT-from-branch plus IN-to-central for every item and
// flips the header to APPROVED, all in one transaction. Only the status
// compare-and-set wins the ledger writes, so a concurrent approval fails
// with no effect.
func (s *Service) Approve(ctx context.Context, returnID int64, actor shared.Actor) (Return, error) {
	if !actor.IsAdmin() {
		return Return{}, shared.ErrForbidden
	}
	key := shared.ReturnLockKey(returnID)
	if err := s.locks.Acquire(ctx, key); err != nil {
		return Return{}, err
	}
	defer func() { _ = s.locks.Release(ctx, key) }()

	var result Return
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		header, err := tx.GetForUpdate(ctx, returnID)
		if err != nil {
			return err
		}
		items, err := tx.Items(ctx, returnID)
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return ErrNoItems
		}
		ok, err := tx.SetStatus(ctx, returnID, StatusPending, StatusApproved)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotPending
		}
		for _, item := range items {
			if err := tx.AppendMovement(ctx, ledger.Movement{
				ProductID:  item.ProductID,
				LocationID: header.BranchID,
				Direction:  ledger.DirectionOut,
				Qty:        item.Qty,
				Source:     ledger.SourceReturn,
				SourceID:   returnID,
				Ref:        movementRef(returnID, item.ID, "out"),
			}); err != nil {
				return err
			}
			if err := tx.AppendMovement(ctx, ledger.Movement{
				ProductID: item.ProductID,
				Direction: ledger.DirectionIn,
				Qty:       item.Qty,
				Source:    ledger.SourceReturn,
				SourceID:  returnID,
				Ref:       movementRef(returnID, item.ID, "in"),
			}); err != nil {
				return err
			}
		}
		header.Status = StatusApproved
		header.Items = items
		result = header
		return nil
	})
	if err != nil {
		return Return{}, err
	}
	s.recordAudit(ctx, actor.ID, "RETURN_APPROVE", returnID, map[string]any{
		"branch_id": result.BranchID,
		"items":     len(result.Items),
	})
	return result, nil
}

// Cancel marks a PENDING return CANCELED. Rows are kept for audit; there
// was never a ledger effect to reverse.
func (s *Service) Cancel(ctx context.Context, returnID int64, actor shared.Actor) error {
	key := shared.ReturnLockKey(returnID)
	if err := s.locks.Acquire(ctx, key); err != nil {
		return err
	}
	defer func() { _ = s.locks.Release(ctx, key) }()

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		header, err := tx.GetForUpdate(ctx, returnID)
		if err != nil {
			return err
		}
		if !actor.ActsFor(header.BranchID) {
			return shared.ErrForbidden
		}
		ok, err := tx.SetStatus(ctx, returnID, StatusPending, StatusCanceled)
		if err != nil {
			return err
		}
		if !ok {
			return ErrNotPending
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.recordAudit(ctx, actor.ID, "RETURN_CANCEL", returnID, nil)
	return nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action string, returnID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "return",
		EntityID: fmt.Sprintf("%d", returnID),
		Meta:     meta,
	})
}

func movementRef(returnID, itemID int64, step string) string {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("return:%d:item:%d:%s", returnID, itemID, step))).String()
}
