package transfers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/brioche-erp/brioche-erp/internal/ledger"
	"github.com/brioche-erp/brioche-erp/internal/shared"
)

type memoryTransferRepo struct {
	transfers map[int64]Transfer
	items     map[int64][]Item
	movements []ledger.Movement
	nextID    int64
}

type memoryTransferTx struct {
	repo *memoryTransferRepo
}

func newMemoryTransferRepo() *memoryTransferRepo {
	return &memoryTransferRepo{
		transfers: make(map[int64]Transfer),
		items:     make(map[int64][]Item),
	}
}

func (r *memoryTransferRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTransferTx{repo: r})
}

func (r *memoryTransferRepo) Get(ctx context.Context, id int64) (Transfer, error) {
	t, ok := r.transfers[id]
	if !ok {
		return Transfer{}, shared.ErrNotFound
	}
	t.Items = append([]Item(nil), r.items[id]...)
	return t, nil
}

func (r *memoryTransferRepo) List(ctx context.Context, filter ListFilter) ([]Transfer, error) {
	list := make([]Transfer, 0, len(r.transfers))
	for id := range r.transfers {
		t, _ := r.Get(ctx, id)
		list = append(list, t)
	}
	return list, nil
}

func (r *memoryTransferRepo) ListIncoming(ctx context.Context, locationID int64) ([]Transfer, error) {
	var list []Transfer
	for id, t := range r.transfers {
		if t.ToLocationID == locationID && (t.Status == StatusPending || t.Status == StatusPartial) {
			hydrated, _ := r.Get(ctx, id)
			list = append(list, hydrated)
		}
	}
	return list, nil
}

// netDelta sums the signed movement quantities for a product at one
// physical location id, 0 meaning central.
func (r *memoryTransferRepo) netDelta(productID, locationID int64) float64 {
	var total float64
	for _, m := range r.movements {
		if m.ProductID != productID || m.LocationID != locationID {
			continue
		}
		total += m.Delta()
	}
	return total
}

func (tx *memoryTransferTx) next() int64 {
	tx.repo.nextID++
	return tx.repo.nextID
}

func (tx *memoryTransferTx) InsertTransfer(ctx context.Context, t Transfer) (int64, error) {
	id := tx.next()
	t.ID = id
	t.CreatedAt = time.Now()
	tx.repo.transfers[id] = t
	return id, nil
}

func (tx *memoryTransferTx) InsertItem(ctx context.Context, item Item) (int64, error) {
	item.ID = tx.next()
	tx.repo.items[item.TransferID] = append(tx.repo.items[item.TransferID], item)
	return item.ID, nil
}

func (tx *memoryTransferTx) GetForUpdate(ctx context.Context, id int64) (Transfer, error) {
	t, ok := tx.repo.transfers[id]
	if !ok {
		return Transfer{}, shared.ErrNotFound
	}
	return t, nil
}

func (tx *memoryTransferTx) GetItem(ctx context.Context, transferID, itemID int64) (Item, error) {
	for _, item := range tx.repo.items[transferID] {
		if item.ID == itemID {
			return item, nil
		}
	}
	return Item{}, shared.ErrNotFound
}

func (tx *memoryTransferTx) Items(ctx context.Context, transferID int64) ([]Item, error) {
	return append([]Item(nil), tx.repo.items[transferID]...), nil
}

func (tx *memoryTransferTx) MarkItem(ctx context.Context, itemID int64, to ItemStatus) (bool, error) {
	for transferID, items := range tx.repo.items {
		for i, item := range items {
			if item.ID != itemID {
				continue
			}
			if item.Status != ItemPending {
				return false, nil
			}
			tx.repo.items[transferID][i].Status = to
			return true, nil
		}
	}
	return false, nil
}

func (tx *memoryTransferTx) MarkAllItems(ctx context.Context, transferID int64, to ItemStatus) error {
	for i := range tx.repo.items[transferID] {
		tx.repo.items[transferID][i].Status = to
	}
	return nil
}

func (tx *memoryTransferTx) DeleteItems(ctx context.Context, transferID int64) error {
	delete(tx.repo.items, transferID)
	return nil
}

func (tx *memoryTransferTx) UpdateHeader(ctx context.Context, id int64, date time.Time, toLocationID int64, note string) error {
	t := tx.repo.transfers[id]
	t.Date = date
	t.ToLocationID = toLocationID
	t.Note = note
	tx.repo.transfers[id] = t
	return nil
}

func (tx *memoryTransferTx) SetStatus(ctx context.Context, id int64, status Status) error {
	t := tx.repo.transfers[id]
	t.Status = status
	tx.repo.transfers[id] = t
	return nil
}

func (tx *memoryTransferTx) AppendMovement(ctx context.Context, m ledger.Movement) error {
	if err := m.Validate(); err != nil {
		return err
	}
	tx.repo.movements = append(tx.repo.movements, m)
	return nil
}

type memoryDirectory struct {
	branches map[int64]BranchInfo
}

func (d *memoryDirectory) Get(ctx context.Context, id int64) (BranchInfo, error) {
	b, ok := d.branches[id]
	if !ok {
		return BranchInfo{}, shared.ErrNotFound
	}
	return b, nil
}

func newTransferService(repo *memoryTransferRepo) *Service {
	dir := &memoryDirectory{branches: map[int64]BranchInfo{
		2: {ID: 2},
		3: {ID: 3},
	}}
	return NewService(repo, dir, nil, nil)
}

var (
	adminActor  = shared.Actor{ID: 1, Role: shared.RoleAdmin}
	branchActor = shared.Actor{ID: 7, Role: shared.RoleBranch, BranchID: 2}
)

func TestTransferCreatePostsCentralOut(t *testing.T) {
	repo := newMemoryTransferRepo()
	svc := newTransferService(repo)
	ctx := context.Background()

	transfer, err := svc.Create(ctx, CreateInput{
		ToLocationID: 2,
		Items: []ItemInput{
			{ProductID: 11, Qty: 10},
			{ProductID: 12, Qty: 4},
		},
		Actor: adminActor,
	})
	require.NoError(t, err)
	require.NotZero(t, transfer.ID)
	require.Equal(t, StatusPending, transfer.Status)
	require.Len(t, transfer.Items, 2)

	require.Len(t, repo.movements, 2)
	for _, m := range repo.movements {
		require.Equal(t, ledger.DirectionOut, m.Direction)
		require.Equal(t, ledger.SourceTransfer, m.Source)
		require.Zero(t, m.LocationID)
		require.Equal(t, transfer.ID, m.SourceID)
	}
	require.InDelta(t, -10, repo.netDelta(11, 0), 0.001)
}

func TestTransferCreateFiltersInvalidItems(t *testing.T) {
	repo := newMemoryTransferRepo()
	svc := newTransferService(repo)
	ctx := context.Background()

	transfer, err := svc.Create(ctx, CreateInput{
		ToLocationID: 2,
		Items: []ItemInput{
			{ProductID: 11, Qty: 10},
			{ProductID: 0, Qty: 5},
			{ProductID: 12, Qty: -3},
		},
		Actor: adminActor,
	})
	require.NoError(t, err)
	require.Len(t, transfer.Items, 1)
	require.Len(t, repo.movements, 1)

	_, err = svc.Create(ctx, CreateInput{
		ToLocationID: 2,
		Items:        []ItemInput{{ProductID: 0, Qty: 0}},
		Actor:        adminActor,
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestTransferCreateRequiresAdminAndKnownDestination(t *testing.T) {
	repo := newMemoryTransferRepo()
	svc := newTransferService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{
		ToLocationID: 2,
		Items:        []ItemInput{{ProductID: 11, Qty: 1}},
		Actor:        branchActor,
	})
	require.ErrorIs(t, err, shared.ErrForbidden)

	_, err = svc.Create(ctx, CreateInput{
		ToLocationID: 99,
		Items:        []ItemInput{{ProductID: 11, Qty: 1}},
		Actor:        adminActor,
	})
	require.ErrorIs(t, err, ErrValidation)
}

func TestTransferAcceptAllCompletes(t *testing.T) {
	repo := newMemoryTransferRepo()
	svc := newTransferService(repo)
	ctx := context.Background()

	transfer, err := svc.Create(ctx, CreateInput{
		ToLocationID: 2,
		Items: []ItemInput{
			{ProductID: 11, Qty: 10},
			{ProductID: 12, Qty: 4},
		},
		Actor: adminActor,
	})
	require.NoError(t, err)

	updated, err := svc.AcceptItem(ctx, transfer.ID, transfer.Items[0].ID, branchActor)
	require.NoError(t, err)
	require.Equal(t, StatusPartial, updated.Status)

	updated, err = svc.AcceptItem(ctx, transfer.ID, transfer.Items[1].ID, branchActor)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, updated.Status)

	// Stock is conserved: everything that left central arrived at branch 2.
	require.InDelta(t, -10, repo.netDelta(11, 0), 0.001)
	require.InDelta(t, 10, repo.netDelta(11, 2), 0.001)
	require.InDelta(t, -4, repo.netDelta(12, 0), 0.001)
	require.InDelta(t, 4, repo.netDelta(12, 2), 0.001)
}

func TestTransferRejectReturnsStockToCentral(t *testing.T) {
	repo := newMemoryTransferRepo()
	svc := newTransferService(repo)
	ctx := context.Background()

	transfer, err := svc.Create(ctx, CreateInput{
		ToLocationID: 2,
		Items: []ItemInput{
			{ProductID: 11, Qty: 10},
			{ProductID: 12, Qty: 4},
		},
		Actor: adminActor,
	})
	require.NoError(t, err)

	updated, err := svc.AcceptItem(ctx, transfer.ID, transfer.Items[0].ID, branchActor)
	require.NoError(t, err)
	require.Equal(t, StatusPartial, updated.Status)

	updated, err = svc.RejectItem(ctx, transfer.ID, transfer.Items[1].ID, branchActor)
	require.NoError(t, err)
	require.Equal(t, StatusPartial, updated.Status)

	// The rejected line nets to zero at central and never reaches the branch.
	require.InDelta(t, 0, repo.netDelta(12, 0), 0.001)
	require.InDelta(t, 0, repo.netDelta(12, 2), 0.001)
	require.InDelta(t, 10, repo.netDelta(11, 2), 0.001)
}

func TestTransferRejectAllCancels(t *testing.T) {
	repo := newMemoryTransferRepo()
	svc := newTransferService(repo)
	ctx := context.Background()

	transfer, err := svc.Create(ctx, CreateInput{
		ToLocationID: 2,
		Items:        []ItemInput{{ProductID: 11, Qty: 10}},
		Actor:        adminActor,
	})
	require.NoError(t, err)

	updated, err := svc.RejectItem(ctx, transfer.ID, transfer.Items[0].ID, branchActor)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, updated.Status)
	require.InDelta(t, 0, repo.netDelta(11, 0), 0.001)
}

func TestTransferItemResolvesOnce(t *testing.T) {
	repo := newMemoryTransferRepo()
	svc := newTransferService(repo)
	ctx := context.Background()

	transfer, err := svc.Create(ctx, CreateInput{
		ToLocationID: 2,
		Items:        []ItemInput{{ProductID: 11, Qty: 10}},
		Actor:        adminActor,
	})
	require.NoError(t, err)
	itemID := transfer.Items[0].ID

	_, err = svc.AcceptItem(ctx, transfer.ID, itemID, branchActor)
	require.NoError(t, err)

	_, err = svc.AcceptItem(ctx, transfer.ID, itemID, branchActor)
	require.ErrorIs(t, err, ErrItemProcessed)
	_, err = svc.RejectItem(ctx, transfer.ID, itemID, branchActor)
	require.ErrorIs(t, err, ErrItemProcessed)

	// The duplicate attempts must not double-book stock.
	require.InDelta(t, 10, repo.netDelta(11, 2), 0.001)
}

func TestTransferOnlyDestinationResolvesItems(t *testing.T) {
	repo := newMemoryTransferRepo()
	svc := newTransferService(repo)
	ctx := context.Background()

	transfer, err := svc.Create(ctx, CreateInput{
		ToLocationID: 2,
		Items:        []ItemInput{{ProductID: 11, Qty: 10}},
		Actor:        adminActor,
	})
	require.NoError(t, err)

	other := shared.Actor{ID: 9, Role: shared.RoleBranch, BranchID: 3}
	_, err = svc.AcceptItem(ctx, transfer.ID, transfer.Items[0].ID, other)
	require.ErrorIs(t, err, ErrNotDestination)

	_, err = svc.AcceptItem(ctx, transfer.ID, transfer.Items[0].ID, adminActor)
	require.ErrorIs(t, err, ErrNotDestination)
}

func TestTransferUpdateReversesAndReposts(t *testing.T) {
	repo := newMemoryTransferRepo()
	svc := newTransferService(repo)
	ctx := context.Background()

	transfer, err := svc.Create(ctx, CreateInput{
		ToLocationID: 2,
		Items:        []ItemInput{{ProductID: 11, Qty: 10}},
		Actor:        adminActor,
	})
	require.NoError(t, err)

	updated, err := svc.Update(ctx, transfer.ID, UpdateInput{
		ToLocationID: 3,
		Items:        []ItemInput{{ProductID: 12, Qty: 6}},
		Actor:        adminActor,
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, updated.Status)
	require.Equal(t, int64(3), updated.ToLocationID)
	require.Len(t, updated.Items, 1)
	require.Equal(t, int64(12), updated.Items[0].ProductID)

	// The old line nets to zero at central via the compensating entry.
	require.InDelta(t, 0, repo.netDelta(11, 0), 0.001)
	require.InDelta(t, -6, repo.netDelta(12, 0), 0.001)

	var edits int
	for _, m := range repo.movements {
		if m.Source == ledger.SourceTransferEdit {
			edits++
			require.Equal(t, ledger.DirectionIn, m.Direction)
			require.Zero(t, m.LocationID)
		}
	}
	require.Equal(t, 1, edits)
}

func TestTransferUpdateBlockedAfterProcessing(t *testing.T) {
	repo := newMemoryTransferRepo()
	svc := newTransferService(repo)
	ctx := context.Background()

	transfer, err := svc.Create(ctx, CreateInput{
		ToLocationID: 2,
		Items: []ItemInput{
			{ProductID: 11, Qty: 10},
			{ProductID: 12, Qty: 4},
		},
		Actor: adminActor,
	})
	require.NoError(t, err)

	_, err = svc.AcceptItem(ctx, transfer.ID, transfer.Items[0].ID, branchActor)
	require.NoError(t, err)

	_, err = svc.Update(ctx, transfer.ID, UpdateInput{
		ToLocationID: 2,
		Items:        []ItemInput{{ProductID: 12, Qty: 1}},
		Actor:        adminActor,
	})
	require.ErrorIs(t, err, ErrHasProcessedItems)

	err = svc.Cancel(ctx, transfer.ID, adminActor)
	require.ErrorIs(t, err, ErrHasProcessedItems)
}

func TestTransferCancelCompensates(t *testing.T) {
	repo := newMemoryTransferRepo()
	svc := newTransferService(repo)
	ctx := context.Background()

	transfer, err := svc.Create(ctx, CreateInput{
		ToLocationID: 2,
		Items: []ItemInput{
			{ProductID: 11, Qty: 10},
			{ProductID: 12, Qty: 4},
		},
		Actor: adminActor,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Cancel(ctx, transfer.ID, adminActor))

	got, err := svc.Get(ctx, transfer.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, got.Status)
	for _, item := range got.Items {
		require.Equal(t, ItemRejected, item.Status)
	}
	require.InDelta(t, 0, repo.netDelta(11, 0), 0.001)
	require.InDelta(t, 0, repo.netDelta(12, 0), 0.001)

	var cancels int
	for _, m := range repo.movements {
		if m.Source == ledger.SourceTransferCancel {
			cancels++
		}
	}
	require.Equal(t, 2, cancels)
}

func TestDeriveStatusTable(t *testing.T) {
	mk := func(statuses ...ItemStatus) []Item {
		items := make([]Item, len(statuses))
		for i, s := range statuses {
			items[i] = Item{Status: s}
		}
		return items
	}

	cases := []struct {
		name  string
		items []Item
		want  Status
	}{
		{"empty", nil, StatusPending},
		{"all pending", mk(ItemPending, ItemPending), StatusPending},
		{"some resolved", mk(ItemAccepted, ItemPending), StatusPartial},
		{"mixed terminal", mk(ItemAccepted, ItemRejected), StatusPartial},
		{"all accepted", mk(ItemAccepted, ItemAccepted), StatusCompleted},
		{"all rejected", mk(ItemRejected, ItemRejected), StatusCancelled},
		{"reject then pending", mk(ItemRejected, ItemPending), StatusPartial},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DeriveStatus(tc.items))
		})
	}
}
