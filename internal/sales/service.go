package sales

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/brioche-erp/brioche-erp/internal/ledger"
	"github.com/brioche-erp/brioche-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id int64) (Sale, error)
	List(ctx context.Context, filter ListFilter) ([]Sale, error)
}

// LocationResolver maps a physical branch id to its logical stock location.
type LocationResolver interface {
	Resolve(ctx context.Context, physicalID int64) (ledger.LogicalLocation, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service posts sales against the ledger. The stock check and the OUT
// entries run in one transaction, so two sales cannot both pass the check
// on the same last units.
type Service struct {
	repo     RepositoryPort
	resolver LocationResolver
	audit    AuditPort
	printer  *message.Printer
}

// NewService constructs Service.
func NewService(repo RepositoryPort, resolver LocationResolver, audit AuditPort) *Service {
	return &Service{
		repo:     repo,
		resolver: resolver,
		audit:    audit,
		printer:  message.NewPrinter(language.English),
	}
}

// ItemInput is one requested sale line.
type ItemInput struct {
	ProductID int64
	Qty       float64
	UnitPrice float64
}

// CreateInput describes a sale to post. AllowNegativeStock skips the
// sufficiency check and lets the branch's stock go below zero.
type CreateInput struct {
	BranchID           int64
	Date               time.Time
	Items              []ItemInput
	AllowNegativeStock bool
	Actor              shared.Actor
}

// Create validates stock for every line, then posts header, lines and one
// OUT entry per line. Shortages are collected across all lines and
// returned together as a ShortageError so the caller can resubmit with
// the override once, not once per product.
func (s *Service) Create(ctx context.Context, input CreateInput) (Sale, error) {
	if input.BranchID <= 0 {
		return Sale{}, fmt.Errorf("%w: branch required", ErrValidation)
	}
	if !input.Actor.ActsFor(input.BranchID) {
		return Sale{}, shared.ErrForbidden
	}
	valid := make([]ItemInput, 0, len(input.Items))
	for _, item := range input.Items {
		if item.ProductID > 0 && item.Qty > 0 {
			valid = append(valid, item)
		}
	}
	if len(valid) == 0 {
		return Sale{}, fmt.Errorf("%w: at least one valid item required", ErrValidation)
	}
	loc, err := s.resolver.Resolve(ctx, input.BranchID)
	if err != nil {
		return Sale{}, fmt.Errorf("%w: unknown branch %d", ErrValidation, input.BranchID)
	}
	date := input.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}

	var created Sale
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		if !input.AllowNegativeStock {
			var shortages []Shortage
			for _, item := range valid {
				available, err := tx.CurrentStock(ctx, item.ProductID, loc)
				if err != nil {
					return err
				}
				if available < item.Qty {
					shortages = append(shortages, Shortage{
						ProductID: item.ProductID,
						Required:  item.Qty,
						Available: available,
					})
				}
			}
			if len(shortages) > 0 {
				return &ShortageError{Shortages: shortages}
			}
		}

		header := Sale{
			BranchID:  input.BranchID,
			Date:      date,
			CreatedBy: input.Actor.ID,
		}
		id, err := tx.InsertSale(ctx, header)
		if err != nil {
			return err
		}
		header.ID = id

		var total float64
		for _, item := range valid {
			line := Item{SaleID: id, ProductID: item.ProductID, Qty: item.Qty, UnitPrice: item.UnitPrice}
			lineID, err := tx.InsertItem(ctx, line)
			if err != nil {
				return err
			}
			line.ID = lineID
			if err := tx.AppendMovement(ctx, ledger.Movement{
				ProductID:  item.ProductID,
				LocationID: input.BranchID,
				Direction:  ledger.DirectionOut,
				Qty:        item.Qty,
				Source:     ledger.SourceSale,
				SourceID:   id,
				Ref:        movementRef(id, lineID),
			}); err != nil {
				return err
			}
			total += line.Total()
			header.Items = append(header.Items, line)
		}
		if err := tx.SetTotal(ctx, id, total); err != nil {
			return err
		}
		header.TotalAmount = total
		created = header
		return nil
	})
	if err != nil {
		return Sale{}, err
	}
	s.recordAudit(ctx, input.Actor.ID, created)
	return created, nil
}

// Get loads a hydrated sale.
func (s *Service) Get(ctx context.Context, id int64) (Sale, error) {
	if id <= 0 {
		return Sale{}, fmt.Errorf("%w: invalid sale id", ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

// List returns sales matching the filter. Branch actors only see their
// own branch.
func (s *Service) List(ctx context.Context, filter ListFilter, actor shared.Actor) ([]Sale, error) {
	if !actor.IsAdmin() {
		filter.BranchID = actor.BranchID
	}
	return s.repo.List(ctx, filter)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, sale Sale) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   "SALE_CREATE",
		Entity:   "sale",
		EntityID: fmt.Sprintf("%d", sale.ID),
		Meta: map[string]any{
			"branch_id": sale.BranchID,
			"items":     len(sale.Items),
			"total":     s.printer.Sprintf("%.2f", sale.TotalAmount),
		},
	})
}

func movementRef(saleID, itemID int64) string {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("sale:%d:item:%d", saleID, itemID))).String()
}
