package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/brioche-erp/brioche-erp/internal/masterdata/branches"
)

// LogicalLocation is the resolved warehouse identity used for every stock
// aggregation and ownership check: either the central warehouse or one
// specific branch. It is produced only by Resolver so the central-fold rule
// lives in exactly one place.
type LogicalLocation struct {
	branchID int64
}

// Central returns the central warehouse location.
func Central() LogicalLocation {
	return LogicalLocation{}
}

// AtBranch returns the location of a branch holding its own stock.
func AtBranch(branchID int64) LogicalLocation {
	return LogicalLocation{branchID: branchID}
}

// IsCentral reports whether the location is the central warehouse.
func (l LogicalLocation) IsCentral() bool {
	return l.branchID == 0
}

// BranchID returns the branch id, or zero for central.
func (l LogicalLocation) BranchID() int64 {
	return l.branchID
}

// String renders the query/filter token for the location.
func (l LogicalLocation) String() string {
	if l.IsCentral() {
		return "central"
	}
	return strconv.FormatInt(l.branchID, 10)
}

// MarshalJSON renders "central" or the branch id as a string token.
func (l LogicalLocation) MarshalJSON() ([]byte, error) {
	return json.Marshal(l.String())
}

// BranchDirectory is the slice of the location directory the resolver needs.
type BranchDirectory interface {
	Get(ctx context.Context, id int64) (branches.Branch, error)
}

// Resolver maps a physical location reference to its logical location,
// folding uses-central-stock branches and outlets into Central.
type Resolver struct {
	dir BranchDirectory
}

// NewResolver constructs Resolver.
func NewResolver(dir BranchDirectory) *Resolver {
	return &Resolver{dir: dir}
}

// Resolve returns the logical location for a physical location id. A zero
// physical id is the central warehouse itself.
func (r *Resolver) Resolve(ctx context.Context, physicalID int64) (LogicalLocation, error) {
	if physicalID == 0 {
		return Central(), nil
	}
	branch, err := r.dir.Get(ctx, physicalID)
	if err != nil {
		return LogicalLocation{}, fmt.Errorf("ledger: resolve location %d: %w", physicalID, err)
	}
	if !branch.HoldsOwnStock() {
		return Central(), nil
	}
	return AtBranch(physicalID), nil
}
