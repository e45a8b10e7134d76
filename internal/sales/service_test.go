package sales

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brioche-erp/brioche-erp/internal/ledger"
	"github.com/brioche-erp/brioche-erp/internal/shared"
)

type stockKey struct {
	productID int64
	location  string
}

type memorySaleRepo struct {
	sales     map[int64]Sale
	items     map[int64][]Item
	movements []ledger.Movement
	stock     map[stockKey]float64
	nextID    int64
}

type memorySaleTx struct {
	repo *memorySaleRepo
}

func newMemorySaleRepo() *memorySaleRepo {
	return &memorySaleRepo{
		sales: make(map[int64]Sale),
		items: make(map[int64][]Item),
		stock: make(map[stockKey]float64),
	}
}

func (r *memorySaleRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memorySaleTx{repo: r})
}

func (r *memorySaleRepo) Get(ctx context.Context, id int64) (Sale, error) {
	sale, ok := r.sales[id]
	if !ok {
		return Sale{}, shared.ErrNotFound
	}
	sale.Items = append([]Item(nil), r.items[id]...)
	return sale, nil
}

func (r *memorySaleRepo) List(ctx context.Context, filter ListFilter) ([]Sale, error) {
	var list []Sale
	for id, sale := range r.sales {
		if filter.BranchID > 0 && sale.BranchID != filter.BranchID {
			continue
		}
		hydrated, _ := r.Get(ctx, id)
		list = append(list, hydrated)
	}
	return list, nil
}

func (tx *memorySaleTx) InsertSale(ctx context.Context, sale Sale) (int64, error) {
	tx.repo.nextID++
	sale.ID = tx.repo.nextID
	sale.CreatedAt = time.Now()
	tx.repo.sales[sale.ID] = sale
	return sale.ID, nil
}

func (tx *memorySaleTx) InsertItem(ctx context.Context, item Item) (int64, error) {
	tx.repo.nextID++
	item.ID = tx.repo.nextID
	tx.repo.items[item.SaleID] = append(tx.repo.items[item.SaleID], item)
	return item.ID, nil
}

func (tx *memorySaleTx) SetTotal(ctx context.Context, id int64, total float64) error {
	sale := tx.repo.sales[id]
	sale.TotalAmount = total
	tx.repo.sales[id] = sale
	return nil
}

func (tx *memorySaleTx) CurrentStock(ctx context.Context, productID int64, loc ledger.LogicalLocation) (float64, error) {
	total := tx.repo.stock[stockKey{productID: productID, location: loc.String()}]
	for _, m := range tx.repo.movements {
		if m.ProductID != productID {
			continue
		}
		if loc.IsCentral() && m.LocationID == 0 || !loc.IsCentral() && m.LocationID == loc.BranchID() {
			total += m.Delta()
		}
	}
	return total, nil
}

func (tx *memorySaleTx) AppendMovement(ctx context.Context, m ledger.Movement) error {
	if err := m.Validate(); err != nil {
		return err
	}
	tx.repo.movements = append(tx.repo.movements, m)
	return nil
}

type fakeResolver struct {
	folded map[int64]bool
}

func (r *fakeResolver) Resolve(ctx context.Context, physicalID int64) (ledger.LogicalLocation, error) {
	if physicalID == 0 || r.folded[physicalID] {
		return ledger.Central(), nil
	}
	return ledger.AtBranch(physicalID), nil
}

var branchActor = shared.Actor{ID: 7, Role: shared.RoleBranch, BranchID: 2}

func newSaleService(repo *memorySaleRepo) *Service {
	return NewService(repo, &fakeResolver{}, nil)
}

func TestSaleCreatePostsOutAndFixesTotal(t *testing.T) {
	repo := newMemorySaleRepo()
	repo.stock[stockKey{productID: 31, location: "2"}] = 50
	repo.stock[stockKey{productID: 32, location: "2"}] = 10
	svc := newSaleService(repo)
	ctx := context.Background()

	sale, err := svc.Create(ctx, CreateInput{
		BranchID: 2,
		Items: []ItemInput{
			{ProductID: 31, Qty: 3, UnitPrice: 2.5},
			{ProductID: 32, Qty: 2, UnitPrice: 10},
		},
		Actor: branchActor,
	})
	require.NoError(t, err)
	require.NotZero(t, sale.ID)
	require.InDelta(t, 27.5, sale.TotalAmount, 0.001)
	require.Len(t, sale.Items, 2)

	require.Len(t, repo.movements, 2)
	for _, m := range repo.movements {
		require.Equal(t, ledger.DirectionOut, m.Direction)
		require.Equal(t, ledger.SourceSale, m.Source)
		require.Equal(t, int64(2), m.LocationID)
		require.Equal(t, sale.ID, m.SourceID)
	}
}

func TestSaleShortageListsEveryDeficit(t *testing.T) {
	repo := newMemorySaleRepo()
	repo.stock[stockKey{productID: 31, location: "2"}] = 12
	repo.stock[stockKey{productID: 32, location: "2"}] = 1
	svc := newSaleService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{
		BranchID: 2,
		Items: []ItemInput{
			{ProductID: 31, Qty: 20, UnitPrice: 1},
			{ProductID: 32, Qty: 5, UnitPrice: 1},
		},
		Actor: branchActor,
	})
	var shortage *ShortageError
	require.ErrorAs(t, err, &shortage)
	require.Len(t, shortage.Shortages, 2)
	require.Equal(t, Shortage{ProductID: 31, Required: 20, Available: 12}, shortage.Shortages[0])
	require.Equal(t, Shortage{ProductID: 32, Required: 5, Available: 1}, shortage.Shortages[1])

	// Nothing was written.
	require.Empty(t, repo.sales)
	require.Empty(t, repo.movements)
}

func TestSaleOverrideAllowsNegativeStock(t *testing.T) {
	repo := newMemorySaleRepo()
	repo.stock[stockKey{productID: 31, location: "2"}] = 12
	svc := newSaleService(repo)
	ctx := context.Background()

	sale, err := svc.Create(ctx, CreateInput{
		BranchID:           2,
		Items:              []ItemInput{{ProductID: 31, Qty: 20, UnitPrice: 1}},
		AllowNegativeStock: true,
		Actor:              branchActor,
	})
	require.NoError(t, err)
	require.Len(t, repo.movements, 1)

	available, err := (&memorySaleTx{repo: repo}).CurrentStock(ctx, 31, ledger.AtBranch(2))
	require.NoError(t, err)
	require.InDelta(t, -8, available, 0.001)
	require.InDelta(t, 20, sale.TotalAmount, 0.001)
}

func TestSaleConsecutiveSalesSeeEarlierOut(t *testing.T) {
	repo := newMemorySaleRepo()
	repo.stock[stockKey{productID: 31, location: "2"}] = 10
	svc := newSaleService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{
		BranchID: 2,
		Items:    []ItemInput{{ProductID: 31, Qty: 8, UnitPrice: 1}},
		Actor:    branchActor,
	})
	require.NoError(t, err)

	// Only 2 remain, so the second sale of 8 must report the shortage.
	_, err = svc.Create(ctx, CreateInput{
		BranchID: 2,
		Items:    []ItemInput{{ProductID: 31, Qty: 8, UnitPrice: 1}},
		Actor:    branchActor,
	})
	var shortage *ShortageError
	require.ErrorAs(t, err, &shortage)
	require.Equal(t, Shortage{ProductID: 31, Required: 8, Available: 2}, shortage.Shortages[0])
}

func TestSaleFoldedBranchChecksCentralStock(t *testing.T) {
	repo := newMemorySaleRepo()
	repo.stock[stockKey{productID: 31, location: "central"}] = 5
	svc := NewService(repo, &fakeResolver{folded: map[int64]bool{4: true}}, nil)
	ctx := context.Background()

	actor := shared.Actor{ID: 8, Role: shared.RoleBranch, BranchID: 4}
	sale, err := svc.Create(ctx, CreateInput{
		BranchID: 4,
		Items:    []ItemInput{{ProductID: 31, Qty: 5, UnitPrice: 2}},
		Actor:    actor,
	})
	require.NoError(t, err)
	require.InDelta(t, 10, sale.TotalAmount, 0.001)

	// The entry still records the physical branch; folding happens at
	// read time.
	require.Equal(t, int64(4), repo.movements[0].LocationID)
}

func TestSaleAuthorizationAndValidation(t *testing.T) {
	repo := newMemorySaleRepo()
	svc := newSaleService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{
		BranchID: 3,
		Items:    []ItemInput{{ProductID: 31, Qty: 1, UnitPrice: 1}},
		Actor:    branchActor,
	})
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.Create(ctx, CreateInput{
		BranchID: 2,
		Items:    []ItemInput{{ProductID: 0, Qty: 0}},
		Actor:    branchActor,
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestSaleListScopesBranchActors(t *testing.T) {
	repo := newMemorySaleRepo()
	repo.stock[stockKey{productID: 31, location: "2"}] = 10
	repo.stock[stockKey{productID: 31, location: "3"}] = 10
	svc := newSaleService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{
		BranchID: 2,
		Items:    []ItemInput{{ProductID: 31, Qty: 1, UnitPrice: 1}},
		Actor:    branchActor,
	})
	require.NoError(t, err)

	other := shared.Actor{ID: 9, Role: shared.RoleBranch, BranchID: 3}
	_, err = svc.Create(ctx, CreateInput{
		BranchID: 3,
		Items:    []ItemInput{{ProductID: 31, Qty: 1, UnitPrice: 1}},
		Actor:    other,
	})
	require.NoError(t, err)

	mine, err := svc.List(ctx, ListFilter{}, branchActor)
	require.NoError(t, err)
	require.Len(t, mine, 1)
	require.Equal(t, int64(2), mine[0].BranchID)

	all, err := svc.List(ctx, ListFilter{}, shared.Actor{ID: 1, Role: shared.RoleAdmin})
	require.NoError(t, err)
	require.Len(t, all, 2)
}
