package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/brioche-erp/brioche-erp/internal/masterdata/branches"
	"github.com/brioche-erp/brioche-erp/internal/shared"
)

// memoryStockRepo replays an in-memory movement list with the same fold
// rule the SQL aggregation applies: entries at folded branches count as
// central, and zero-net rows are dropped.
type memoryStockRepo struct {
	dir       *memoryBranchDirectory
	movements []Movement
}

func (r *memoryStockRepo) logical(physicalID int64) LogicalLocation {
	if physicalID == 0 {
		return Central()
	}
	branch, ok := r.dir.branches[physicalID]
	if ok && !branch.HoldsOwnStock() {
		return Central()
	}
	return AtBranch(physicalID)
}

func (r *memoryStockRepo) CurrentStock(ctx context.Context, productID int64, loc LogicalLocation) (float64, error) {
	var total float64
	for _, m := range r.movements {
		if m.ProductID == productID && r.logical(m.LocationID) == loc {
			total += m.Delta()
		}
	}
	return total, nil
}

func (r *memoryStockRepo) CurrentStockAll(ctx context.Context, filter StockFilter) ([]StockRow, error) {
	type key struct {
		productID int64
		loc       LogicalLocation
	}
	sums := make(map[key]float64)
	for _, m := range r.movements {
		k := key{productID: m.ProductID, loc: r.logical(m.LocationID)}
		if filter.ProductID > 0 && k.productID != filter.ProductID {
			continue
		}
		if filter.Location != nil && k.loc != *filter.Location {
			continue
		}
		sums[k] += m.Delta()
	}
	var rows []StockRow
	for k, qty := range sums {
		if qty == 0 {
			continue
		}
		rows = append(rows, StockRow{ProductID: k.productID, Location: k.loc, Qty: qty})
	}
	return rows, nil
}

func (r *memoryStockRepo) History(ctx context.Context, productID int64, limit int) ([]Movement, error) {
	var list []Movement
	for i := len(r.movements) - 1; i >= 0; i-- {
		if r.movements[i].ProductID != productID {
			continue
		}
		list = append(list, r.movements[i])
		if limit > 0 && len(list) == limit {
			break
		}
	}
	return list, nil
}

type memoryBranchDirectory struct {
	branches map[int64]branches.Branch
}

func (d *memoryBranchDirectory) Get(ctx context.Context, id int64) (branches.Branch, error) {
	b, ok := d.branches[id]
	if !ok {
		return branches.Branch{}, shared.ErrNotFound
	}
	return b, nil
}

func newStockFixture() (*Service, *memoryStockRepo) {
	dir := &memoryBranchDirectory{branches: map[int64]branches.Branch{
		2: {ID: 2, Name: "Uptown"},
		3: {ID: 3, Name: "Depot Cafe", UsesCentralStock: true},
		4: {ID: 4, Name: "Kiosk", UsesCentralStock: true, IsOutlet: true},
	}}
	repo := &memoryStockRepo{dir: dir}
	return NewService(repo, NewResolver(dir)), repo
}

func TestMovementValidate(t *testing.T) {
	valid := Movement{ProductID: 1, Direction: DirectionIn, Qty: 5, Source: SourceManual}
	require.NoError(t, valid.Validate())

	cases := []struct {
		name string
		mut  func(*Movement)
		want error
	}{
		{"zero qty", func(m *Movement) { m.Qty = 0 }, ErrInvalidQuantity},
		{"negative qty", func(m *Movement) { m.Qty = -2 }, ErrInvalidQuantity},
		{"bad direction", func(m *Movement) { m.Direction = "SIDEWAYS" }, ErrInvalidDirection},
		{"bad source", func(m *Movement) { m.Source = "wishes" }, ErrInvalidSource},
		{"no product", func(m *Movement) { m.ProductID = 0 }, ErrProductRequired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := valid
			tc.mut(&m)
			require.ErrorIs(t, m.Validate(), tc.want)
		})
	}
}

func TestCurrentStockIsReplayOfMovements(t *testing.T) {
	svc, repo := newStockFixture()
	ctx := context.Background()

	repo.movements = []Movement{
		{ProductID: 1, Direction: DirectionIn, Qty: 100, Source: SourceProduction},
		{ProductID: 1, LocationID: 2, Direction: DirectionIn, Qty: 10, Source: SourceTransfer},
		{ProductID: 1, Direction: DirectionOut, Qty: 10, Source: SourceTransfer},
		{ProductID: 1, LocationID: 2, Direction: DirectionOut, Qty: 4, Source: SourceSale},
	}

	central, err := svc.CurrentStock(ctx, 1, Central())
	require.NoError(t, err)
	require.InDelta(t, 90, central, 0.001)

	branch, err := svc.CurrentStock(ctx, 1, AtBranch(2))
	require.NoError(t, err)
	require.InDelta(t, 6, branch, 0.001)
}

func TestFoldedBranchAggregatesIntoCentral(t *testing.T) {
	svc, repo := newStockFixture()
	ctx := context.Background()

	// Entries recorded against branch 3 (uses central stock) and outlet 4
	// must count toward central, and central only.
	repo.movements = []Movement{
		{ProductID: 1, Direction: DirectionIn, Qty: 50, Source: SourceProduction},
		{ProductID: 1, LocationID: 3, Direction: DirectionIn, Qty: 7, Source: SourceTransfer},
		{ProductID: 1, LocationID: 4, Direction: DirectionOut, Qty: 2, Source: SourceSale},
	}

	central, err := svc.CurrentStock(ctx, 1, Central())
	require.NoError(t, err)
	require.InDelta(t, 55, central, 0.001)

	// Asking for the folded branch by physical id returns the central
	// aggregate, not zero.
	atFolded, err := svc.CurrentStockAt(ctx, 1, 3)
	require.NoError(t, err)
	require.InDelta(t, 55, atFolded, 0.001)

	// As a distinct logical branch it has no rows at all.
	rows, err := svc.Stock(ctx, StockQuery{ProductID: 1})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.True(t, rows[0].Location.IsCentral())
}

func TestStockFilterTokens(t *testing.T) {
	svc, repo := newStockFixture()
	ctx := context.Background()

	repo.movements = []Movement{
		{ProductID: 1, Direction: DirectionIn, Qty: 20, Source: SourceProduction},
		{ProductID: 1, LocationID: 2, Direction: DirectionIn, Qty: 5, Source: SourceTransfer},
		{ProductID: 2, LocationID: 3, Direction: DirectionIn, Qty: 9, Source: SourceTransfer},
	}

	central, err := svc.Stock(ctx, StockQuery{Location: "central"})
	require.NoError(t, err)
	require.Len(t, central, 2)
	for _, row := range central {
		require.True(t, row.Location.IsCentral())
	}

	// A folded branch token filters as central.
	folded, err := svc.Stock(ctx, StockQuery{Location: "3"})
	require.NoError(t, err)
	require.Len(t, folded, 2)

	own, err := svc.Stock(ctx, StockQuery{Location: "2"})
	require.NoError(t, err)
	require.Len(t, own, 1)
	require.Equal(t, int64(2), own[0].Location.BranchID())

	_, err = svc.Stock(ctx, StockQuery{Location: "bogus"})
	require.Error(t, err)
}

func TestZeroNetRowsAreOmitted(t *testing.T) {
	svc, repo := newStockFixture()
	ctx := context.Background()

	repo.movements = []Movement{
		{ProductID: 1, Direction: DirectionIn, Qty: 10, Source: SourceProduction},
		{ProductID: 1, Direction: DirectionOut, Qty: 10, Source: SourceSale},
		{ProductID: 2, Direction: DirectionIn, Qty: 3, Source: SourceProduction},
	}

	rows, err := svc.Stock(ctx, StockQuery{})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, int64(2), rows[0].ProductID)
}

func TestResolver(t *testing.T) {
	_, repo := newStockFixture()
	resolver := NewResolver(repo.dir)
	ctx := context.Background()

	loc, err := resolver.Resolve(ctx, 0)
	require.NoError(t, err)
	require.True(t, loc.IsCentral())

	loc, err = resolver.Resolve(ctx, 2)
	require.NoError(t, err)
	require.Equal(t, int64(2), loc.BranchID())

	loc, err = resolver.Resolve(ctx, 3)
	require.NoError(t, err)
	require.True(t, loc.IsCentral())

	loc, err = resolver.Resolve(ctx, 4)
	require.NoError(t, err)
	require.True(t, loc.IsCentral())

	_, err = resolver.Resolve(ctx, 99)
	require.Error(t, err)
}

func TestLogicalLocationTokens(t *testing.T) {
	require.Equal(t, "central", Central().String())
	require.Equal(t, "7", AtBranch(7).String())

	data, err := Central().MarshalJSON()
	require.NoError(t, err)
	require.Equal(t, `"central"`, string(data))
}

func TestMovementHistoryNewestFirst(t *testing.T) {
	svc, repo := newStockFixture()
	ctx := context.Background()

	repo.movements = []Movement{
		{ID: 1, ProductID: 1, Direction: DirectionIn, Qty: 100, Source: SourceProduction},
		{ID: 2, ProductID: 2, Direction: DirectionIn, Qty: 5, Source: SourceProduction},
		{ID: 3, ProductID: 1, LocationID: 2, Direction: DirectionIn, Qty: 10, Source: SourceTransfer},
	}

	list, err := svc.Movements(ctx, 1, 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.Equal(t, int64(3), list[0].ID)
	require.Equal(t, int64(1), list[1].ID)

	list, err = svc.Movements(ctx, 1, 1)
	require.NoError(t, err)
	require.Len(t, list, 1)

	_, err = svc.Movements(ctx, 0, 0)
	require.ErrorIs(t, err, ErrProductRequired)
}
