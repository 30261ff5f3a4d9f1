package conversion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lumbung-erp/lumbung-erp/internal/inventory"
	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

// memStore is an in-memory inventory.TxStore doubling as the TxRunner.
type memStore struct {
	items    map[int64]inventory.Item
	txns     []inventory.ItemTransaction
	nextItem int64
	nextTxn  int64
}

func newMemStore() *memStore {
	return &memStore{items: map[int64]inventory.Item{}}
}

func (m *memStore) addItem(item inventory.Item) inventory.Item {
	m.nextItem++
	item.ID = m.nextItem
	if item.Multiplier == 0 {
		item.Multiplier = 1
	}
	m.items[item.ID] = item
	return item
}

func (m *memStore) WithTx(ctx context.Context, fn func(context.Context, inventory.TxStore) error) error {
	return fn(ctx, m)
}

func (m *memStore) GetItemForUpdate(ctx context.Context, id int64) (inventory.Item, error) {
	item, ok := m.items[id]
	if !ok {
		return inventory.Item{}, shared.ErrNotFound
	}
	return item, nil
}

func (m *memStore) InsertItem(ctx context.Context, item inventory.Item) (inventory.Item, error) {
	m.nextItem++
	item.ID = m.nextItem
	m.items[item.ID] = item
	return item, nil
}

func (m *memStore) UpdateItemStock(ctx context.Context, id, stock int64) error {
	item, ok := m.items[id]
	if !ok {
		return shared.ErrNotFound
	}
	item.Stock = stock
	m.items[id] = item
	return nil
}

func (m *memStore) SetItemReference(ctx context.Context, id, referenceItemID int64) error {
	item, ok := m.items[id]
	if !ok {
		return shared.ErrNotFound
	}
	item.ReferenceItemID = &referenceItemID
	m.items[id] = item
	return nil
}

func (m *memStore) FindDivisionCounterpart(ctx context.Context, divisionID, mainReferenceItemID int64) (inventory.Item, error) {
	for _, item := range m.items {
		if item.DivisionID != nil && *item.DivisionID == divisionID &&
			item.MainReferenceItemID != nil && *item.MainReferenceItemID == mainReferenceItemID {
			return item, nil
		}
	}
	return inventory.Item{}, shared.ErrNotFound
}

func (m *memStore) ListPacksReferencing(ctx context.Context, referenceItemID int64) ([]inventory.Item, error) {
	result := []inventory.Item{}
	for _, item := range m.items {
		if item.DivisionID == nil && item.ReferenceItemID != nil && *item.ReferenceItemID == referenceItemID {
			result = append(result, item)
		}
	}
	return result, nil
}

func (m *memStore) InsertTransaction(ctx context.Context, txn inventory.ItemTransaction) (inventory.ItemTransaction, error) {
	m.nextTxn++
	txn.ID = m.nextTxn
	m.txns = append(m.txns, txn)
	return txn, nil
}

func TestConvertPackToBaseUnit(t *testing.T) {
	store := newMemStore()
	bottle := store.addItem(inventory.Item{Name: "Water Bottle", Unit: "btl", Stock: 100})
	box := store.addItem(inventory.Item{Name: "Water Box", Unit: "box", Stock: 10, Multiplier: 12, ReferenceItemID: &bottle.ID})
	svc := NewService(store, nil)

	result, err := svc.Convert(context.Background(), ConvertInput{
		ItemID:   box.ID,
		Quantity: 4,
		Actor:    shared.Actor{ID: 2},
	})
	require.NoError(t, err)
	require.Equal(t, int64(6), result.Source.Stock)
	require.Equal(t, int64(148), result.Target.Stock, "4 boxes * 12 bottles credited")
	require.False(t, result.TargetCreated)

	require.Equal(t, inventory.TransactionTypeConversionOut, result.OutTransaction.Type)
	require.Equal(t, int64(4), result.OutTransaction.Quantity)
	require.Equal(t, inventory.TransactionTypeConversionIn, result.InTransaction.Type)
	require.Equal(t, int64(48), result.InTransaction.Quantity)
	require.Len(t, store.txns, 2)
}

func TestConvertInsufficientStock(t *testing.T) {
	store := newMemStore()
	bottle := store.addItem(inventory.Item{Name: "Water Bottle", Unit: "btl", Stock: 100})
	box := store.addItem(inventory.Item{Name: "Water Box", Unit: "box", Stock: 3, Multiplier: 12, ReferenceItemID: &bottle.ID})
	svc := NewService(store, nil)

	_, err := svc.Convert(context.Background(), ConvertInput{ItemID: box.ID, Quantity: 4, Actor: shared.Actor{ID: 2}})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
	require.Equal(t, int64(3), store.items[box.ID].Stock)
	require.Empty(t, store.txns)
}

func TestConvertRejectsNonPack(t *testing.T) {
	store := newMemStore()
	bottle := store.addItem(inventory.Item{Name: "Water Bottle", Unit: "btl", Stock: 100})
	svc := NewService(store, nil)

	_, err := svc.Convert(context.Background(), ConvertInput{ItemID: bottle.ID, Quantity: 1, Actor: shared.Actor{ID: 2}})
	require.ErrorIs(t, err, shared.ErrMissingReference)
}

func TestConvertRejectsZeroQuantity(t *testing.T) {
	svc := NewService(newMemStore(), nil)
	_, err := svc.Convert(context.Background(), ConvertInput{ItemID: 1, Quantity: 0, Actor: shared.Actor{ID: 2}})
	require.ErrorIs(t, err, shared.ErrInvalidQuantity)
}

func TestConvertScopeGuard(t *testing.T) {
	store := newMemStore()
	div := int64(1)
	bottle := store.addItem(inventory.Item{Name: "Water Bottle", Unit: "btl", Stock: 10, DivisionID: &div})
	box := store.addItem(inventory.Item{Name: "Water Box", Unit: "box", Stock: 5, Multiplier: 12, DivisionID: &div, ReferenceItemID: &bottle.ID})
	svc := NewService(store, nil)

	other := int64(2)
	_, err := svc.Convert(context.Background(), ConvertInput{ItemID: box.ID, Quantity: 1, Actor: shared.Actor{ID: 7, DivisionID: &other}})
	require.ErrorIs(t, err, shared.ErrUnauthorizedScope)

	// Warehouse staff hold no division membership and do not convert
	// division stock either.
	_, err = svc.Convert(context.Background(), ConvertInput{ItemID: box.ID, Quantity: 1, Actor: shared.Actor{ID: 1}})
	require.ErrorIs(t, err, shared.ErrUnauthorizedScope)
	require.Equal(t, int64(5), store.items[box.ID].Stock)
}

func TestConvertClonesMissingDivisionBaseUnit(t *testing.T) {
	store := newMemStore()
	div := int64(1)

	// Warehouse hierarchy: box -> bottle.
	whBottle := store.addItem(inventory.Item{Name: "Water Bottle", Unit: "btl", Stock: 500})
	whBox := store.addItem(inventory.Item{Name: "Water Box", Unit: "box", Stock: 40, Multiplier: 12, ReferenceItemID: &whBottle.ID})

	// The division holds the pack clone only; its base unit never arrived.
	divBox := store.addItem(inventory.Item{Name: "Water Box", Unit: "box", Stock: 5, Multiplier: 12, DivisionID: &div, MainReferenceItemID: &whBox.ID})

	svc := NewService(store, nil)
	actor := shared.Actor{ID: 7, DivisionID: &div}

	result, err := svc.Convert(context.Background(), ConvertInput{ItemID: divBox.ID, Quantity: 2, Actor: actor})
	require.NoError(t, err)
	require.True(t, result.TargetCreated)
	require.Equal(t, int64(3), result.Source.Stock)
	require.Equal(t, int64(24), result.Target.Stock)
	require.Equal(t, "Water Bottle", result.Target.Name)
	require.NotNil(t, result.Target.DivisionID)
	require.Equal(t, div, *result.Target.DivisionID)
	require.NotNil(t, result.Target.MainReferenceItemID)
	require.Equal(t, whBottle.ID, *result.Target.MainReferenceItemID)

	// The link is persisted: a second conversion resolves directly.
	source := store.items[divBox.ID]
	require.NotNil(t, source.ReferenceItemID)
	require.Equal(t, result.Target.ID, *source.ReferenceItemID)

	again, err := svc.Convert(context.Background(), ConvertInput{ItemID: divBox.ID, Quantity: 1, Actor: actor})
	require.NoError(t, err)
	require.False(t, again.TargetCreated)
	require.Equal(t, int64(36), again.Target.Stock)
}

func TestConvertWithoutResolvableReference(t *testing.T) {
	store := newMemStore()
	div := int64(1)
	orphan := store.addItem(inventory.Item{Name: "Orphan Box", Unit: "box", Stock: 5, Multiplier: 12, DivisionID: &div})
	svc := NewService(store, nil)

	_, err := svc.Convert(context.Background(), ConvertInput{ItemID: orphan.ID, Quantity: 1, Actor: shared.Actor{ID: 7, DivisionID: &div}})
	require.ErrorIs(t, err, shared.ErrMissingReference)
}
