package products

import "time"

// Unit enumerates how product quantities are measured.
type Unit string

const (
	UnitMass  Unit = "mass"
	UnitCount Unit = "count"
)

// Category enumerates what a product is used for.
type Category string

const (
	CategorySellable   Category = "sellable"
	CategoryIngredient Category = "ingredient"
	CategoryDecoration Category = "decoration"
	CategoryUtility    Category = "utility"
)

// Product is catalog master data. Identity fields (unit, category) stay
// fixed once movements reference the product; display attributes remain
// editable.
type Product struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Unit      Unit      `json:"unit"`
	Category  Category  `json:"category"`
	Price     float64   `json:"price"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
