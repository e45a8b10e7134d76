package branches

import "time"

// Branch represents a selling location. A branch with UsesCentralStock set
// has no stock identity of its own: every movement it produces is folded
// into the central warehouse at read time. Outlets never hold stock either.
type Branch struct {
	ID               int64     `json:"id"`
	Name             string    `json:"name"`
	Address          string    `json:"address"`
	UsesCentralStock bool      `json:"uses_central_stock"`
	IsOutlet         bool      `json:"is_outlet"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// HoldsOwnStock reports whether the branch aggregates as its own logical
// location.
func (b Branch) HoldsOwnStock() bool {
	return !b.UsesCentralStock && !b.IsOutlet
}
