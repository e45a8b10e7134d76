package products

import (
	"errors"
	"strings"
)

func (s *Service) validate(p Product) error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("product name is required")
	}
	switch p.Unit {
	case UnitMass, UnitCount:
	default:
		return errors.New("product unit must be mass or count")
	}
	switch p.Category {
	case CategorySellable, CategoryIngredient, CategoryDecoration, CategoryUtility:
	default:
		return errors.New("unknown product category")
	}
	if p.Price < 0 {
		return errors.New("product price must be >= 0")
	}
	return nil
}
