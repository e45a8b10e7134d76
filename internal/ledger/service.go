package ledger

import (
	"context"
	"fmt"
	"strconv"
	"strings"
)

// RepositoryPort abstracts the aggregate reads used by Service.
type RepositoryPort interface {
	CurrentStock(ctx context.Context, productID int64, loc LogicalLocation) (float64, error)
	CurrentStockAll(ctx context.Context, filter StockFilter) ([]StockRow, error)
	History(ctx context.Context, productID int64, limit int) ([]Movement, error)
}

// Service answers current-stock questions. It is read-only: every quantity
// it reports is recomputed from the movement log, never cached.
type Service struct {
	repo     RepositoryPort
	resolver *Resolver
}

// NewService constructs Service.
func NewService(repo RepositoryPort, resolver *Resolver) *Service {
	return &Service{repo: repo, resolver: resolver}
}

// StockQuery is the caller-facing filter. Location accepts "", "central",
// or a branch id; a branch that folds into central resolves to central
// before filtering, so asking for that branch returns central's aggregate.
type StockQuery struct {
	ProductID int64
	Location  string
}

// CurrentStock returns the on-hand quantity for one product at one
// logical location.
func (s *Service) CurrentStock(ctx context.Context, productID int64, loc LogicalLocation) (float64, error) {
	return s.repo.CurrentStock(ctx, productID, loc)
}

// CurrentStockAt resolves a physical location reference first, then
// aggregates at the resulting logical location.
func (s *Service) CurrentStockAt(ctx context.Context, productID int64, physicalID int64) (float64, error) {
	loc, err := s.resolver.Resolve(ctx, physicalID)
	if err != nil {
		return 0, err
	}
	return s.repo.CurrentStock(ctx, productID, loc)
}

// Stock lists non-zero balances matching the query.
func (s *Service) Stock(ctx context.Context, query StockQuery) ([]StockRow, error) {
	filter := StockFilter{ProductID: query.ProductID}
	if token := strings.TrimSpace(query.Location); token != "" {
		loc, err := s.resolveToken(ctx, token)
		if err != nil {
			return nil, err
		}
		filter.Location = &loc
	}
	return s.repo.CurrentStockAll(ctx, filter)
}

// Movements lists the raw ledger entries for one product, newest first.
// Entries keep their physical location ids: the stock card shows where
// goods actually moved, not the folded aggregate view.
func (s *Service) Movements(ctx context.Context, productID int64, limit int) ([]Movement, error) {
	if productID <= 0 {
		return nil, ErrProductRequired
	}
	return s.repo.History(ctx, productID, limit)
}

func (s *Service) resolveToken(ctx context.Context, token string) (LogicalLocation, error) {
	if token == "central" {
		return Central(), nil
	}
	id, err := strconv.ParseInt(token, 10, 64)
	if err != nil || id <= 0 {
		return LogicalLocation{}, fmt.Errorf("ledger: unknown location token %q", token)
	}
	return s.resolver.Resolve(ctx, id)
}
