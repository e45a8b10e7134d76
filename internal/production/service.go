package production

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
	Get(ctx context.Context, id int64) (Batch, error)
	List(ctx context.Context, filter shared.ListFilters) ([]Batch, error)
}

// AuditPort abstracts audit logging.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service posts production batches. Finished goods always land at central;
// branches receive them via transfers.
type Service struct {
	repo  RepositoryPort
	audit AuditPort
}

// NewService constructs Service.
func NewService(repo RepositoryPort, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// LineInput is one produced quantity.
type LineInput struct {
	ProductID int64
	Qty       float64
}

// PostInput describes a production batch to post.
type PostInput struct {
	Date  time.Time
	Lines []LineInput
	Note  string
	Actor shared.Actor
}

// Post writes the batch and one IN entry at central per line.
func (s *Service) Post(ctx context.Context, input PostInput) (Batch, error) {
	if !input.Actor.IsAdmin() {
		return Batch{}, shared.ErrForbidden
	}
	valid := make([]LineInput, 0, len(input.Lines))
	for _, line := range input.Lines {
		if line.ProductID > 0 && line.Qty > 0 {
			valid = append(valid, line)
		}
	}
	if len(valid) == 0 {
		return Batch{}, fmt.Errorf("%w: at least one valid line required", ErrValidation)
	}
	date := input.Date
	if date.IsZero() {
		date = time.Now().UTC()
	}

	var created Batch
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		header := Batch{Date: date, Note: input.Note, CreatedBy: input.Actor.ID}
		id, err := tx.InsertBatch(ctx, header)
		if err != nil {
			return err
		}
		header.ID = id
		for _, input := range valid {
			line := Line{BatchID: id, ProductID: input.ProductID, Qty: input.Qty}
			lineID, err := tx.InsertLine(ctx, line)
			if err != nil {
				return err
			}
			line.ID = lineID
			if err := tx.AppendMovement(ctx, ledger.Movement{
				ProductID: input.ProductID,
				Direction: ledger.DirectionIn,
				Qty:       input.Qty,
				Source:    ledger.SourceProduction,
				SourceID:  id,
				Ref:       movementRef(id, lineID),
			}); err != nil {
				return err
			}
			header.Lines = append(header.Lines, line)
		}
		created = header
		return nil
	})
	if err != nil {
		return Batch{}, err
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.Actor.ID,
			Action:   "PRODUCTION_POST",
			Entity:   "production_batch",
			EntityID: fmt.Sprintf("%d", created.ID),
			Meta:     map[string]any{"lines": len(created.Lines)},
		})
	}
	return created, nil
}

// Get loads a hydrated batch.
func (s *Service) Get(ctx context.Context, id int64) (Batch, error) {
	if id <= 0 {
		return Batch{}, fmt.Errorf("%w: invalid batch id", ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

// List returns batch headers.
func (s *Service) List(ctx context.Context, filter shared.ListFilters) ([]Batch, error) {
	return s.repo.List(ctx, filter)
}

func movementRef(batchID, lineID int64) string {
	return uuid.NewSHA1(uuid.Nil, []byte(fmt.Sprintf("production:%d:line:%d", batchID, lineID))).String()
}
