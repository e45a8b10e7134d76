package products

import (
	"context"
	"errors"

	"github.com/brioche-erp/brioche-erp/internal/shared"
)

// Service exposes product catalog operations.
type Service struct {
	repo Repository
}

// NewService constructs Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) List(ctx context.Context, filters shared.ListFilters) ([]Product, int, error) {
	return s.repo.List(ctx, filters)
}

func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, errors.New("invalid product ID")
	}
	return s.repo.Get(ctx, id)
}

func (s *Service) Create(ctx context.Context, product Product) (Product, error) {
	if err := s.validate(product); err != nil {
		return Product{}, err
	}
	return s.repo.Create(ctx, product)
}

// UpdateDisplay changes only display attributes. Unit and category are
// immutable once a product exists so ledger history keeps its meaning.
func (s *Service) UpdateDisplay(ctx context.Context, id int64, name string, price float64) error {
	if id <= 0 {
		return errors.New("invalid product ID")
	}
	if name == "" {
		return errors.New("product name is required")
	}
	if price < 0 {
		return errors.New("product price must be >= 0")
	}
	return s.repo.UpdateDisplay(ctx, id, name, price)
}
