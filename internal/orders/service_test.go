package orders

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lumbung-erp/lumbung-erp/internal/inventory"
	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

// memRepo is an in-memory Repository and TxRepository for service tests.
// WithTx runs the callback directly, so tests exercise guard ordering rather
// than rollback behaviour.
type memRepo struct {
	items     map[int64]inventory.Item
	txns      []inventory.ItemTransaction
	orders    map[int64]*WarehouseOrder
	rejects   []Reject
	nextItem  int64
	nextOrder int64
	nextCart  int64
	nextTxn   int64
}

func newMemRepo() *memRepo {
	return &memRepo{
		items:  map[int64]inventory.Item{},
		orders: map[int64]*WarehouseOrder{},
	}
}

func (m *memRepo) addItem(item inventory.Item) inventory.Item {
	if item.ID == 0 {
		m.nextItem++
		item.ID = m.nextItem
	} else if item.ID > m.nextItem {
		m.nextItem = item.ID
	}
	if item.Multiplier == 0 {
		item.Multiplier = 1
	}
	m.items[item.ID] = item
	return item
}

func (m *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, m)
}

func (m *memRepo) GetOrder(ctx context.Context, id int64) (*WarehouseOrder, error) {
	return m.GetOrderForUpdate(ctx, id)
}

func (m *memRepo) List(ctx context.Context, filter ListFilter) ([]WarehouseOrder, int, error) {
	result := []WarehouseOrder{}
	for _, order := range m.orders {
		if filter.DivisionID != nil && order.DivisionID != *filter.DivisionID {
			continue
		}
		if filter.Status != "" && order.Status != filter.Status {
			continue
		}
		result = append(result, *order)
	}
	return result, len(result), nil
}

func (m *memRepo) NextOrderNumber(ctx context.Context, date time.Time) (string, error) {
	day := date.Format("20060102")
	seq := 1
	for _, order := range m.orders {
		if strings.HasPrefix(order.OrderNumber, "WO-"+day) {
			seq++
		}
	}
	return fmt.Sprintf("WO-%s-%04d", day, seq), nil
}

func (m *memRepo) GetOrderForUpdate(ctx context.Context, id int64) (*WarehouseOrder, error) {
	order, ok := m.orders[id]
	if !ok {
		return nil, fmt.Errorf("order %d: %w", id, shared.ErrNotFound)
	}
	copied := *order
	copied.Carts = append([]Cart{}, order.Carts...)
	return &copied, nil
}

func (m *memRepo) InsertOrder(ctx context.Context, order WarehouseOrder) (int64, error) {
	m.nextOrder++
	order.ID = m.nextOrder
	order.CreatedAt = time.Now()
	order.UpdatedAt = order.CreatedAt
	m.orders[order.ID] = &order
	return order.ID, nil
}

func (m *memRepo) UpdateOrder(ctx context.Context, id int64, updates map[string]any) error {
	order, ok := m.orders[id]
	if !ok {
		return fmt.Errorf("order %d: %w", id, shared.ErrNotFound)
	}
	for field, value := range updates {
		switch field {
		case "status":
			order.Status = value.(Status)
		case "description":
			order.Description = value.(*string)
		case "notes":
			order.Notes = value.(*string)
		case "accepted_date":
			t := value.(time.Time)
			order.AcceptedDate = &t
		case "delivery_date":
			t := value.(time.Time)
			order.DeliveryDate = &t
		case "delivered_by":
			v := value.(int64)
			order.DeliveredBy = &v
		case "delivery_images":
			order.DeliveryImages = value.([]string)
		case "receipt_date":
			t := value.(time.Time)
			order.ReceiptDate = &t
		case "received_by":
			v := value.(int64)
			order.ReceivedBy = &v
		case "receipt_images":
			order.ReceiptImages = value.([]string)
		}
	}
	order.UpdatedAt = time.Now()
	return nil
}

func (m *memRepo) DeleteOrder(ctx context.Context, id int64) error {
	if _, ok := m.orders[id]; !ok {
		return fmt.Errorf("order %d: %w", id, shared.ErrNotFound)
	}
	delete(m.orders, id)
	return nil
}

func (m *memRepo) InsertCart(ctx context.Context, cart Cart) (int64, error) {
	order, ok := m.orders[cart.OrderID]
	if !ok {
		return 0, fmt.Errorf("order %d: %w", cart.OrderID, shared.ErrNotFound)
	}
	m.nextCart++
	cart.ID = m.nextCart
	order.Carts = append(order.Carts, cart)
	return cart.ID, nil
}

func (m *memRepo) DeleteCarts(ctx context.Context, orderID int64) error {
	if order, ok := m.orders[orderID]; ok {
		order.Carts = nil
	}
	return nil
}

func (m *memRepo) SetCartDelivered(ctx context.Context, cartID, quantity int64) error {
	return m.setCart(cartID, func(cart *Cart) { cart.DeliveredQuantity = &quantity })
}

func (m *memRepo) SetCartReceived(ctx context.Context, cartID, quantity int64) error {
	return m.setCart(cartID, func(cart *Cart) { cart.ReceivedQuantity = &quantity })
}

func (m *memRepo) setCart(cartID int64, fn func(*Cart)) error {
	for _, order := range m.orders {
		for i := range order.Carts {
			if order.Carts[i].ID == cartID {
				fn(&order.Carts[i])
				return nil
			}
		}
	}
	return fmt.Errorf("cart %d: %w", cartID, shared.ErrNotFound)
}

func (m *memRepo) InsertReject(ctx context.Context, reject Reject) (int64, error) {
	reject.ID = int64(len(m.rejects) + 1)
	reject.CreatedAt = time.Now()
	m.rejects = append(m.rejects, reject)
	return reject.ID, nil
}

func (m *memRepo) GetItemForUpdate(ctx context.Context, id int64) (inventory.Item, error) {
	item, ok := m.items[id]
	if !ok {
		return inventory.Item{}, shared.ErrNotFound
	}
	return item, nil
}

func (m *memRepo) InsertItem(ctx context.Context, item inventory.Item) (inventory.Item, error) {
	m.nextItem++
	item.ID = m.nextItem
	item.CreatedAt = time.Now()
	item.UpdatedAt = item.CreatedAt
	m.items[item.ID] = item
	return item, nil
}

func (m *memRepo) UpdateItemStock(ctx context.Context, id, stock int64) error {
	item, ok := m.items[id]
	if !ok {
		return shared.ErrNotFound
	}
	item.Stock = stock
	m.items[id] = item
	return nil
}

func (m *memRepo) SetItemReference(ctx context.Context, id, referenceItemID int64) error {
	item, ok := m.items[id]
	if !ok {
		return shared.ErrNotFound
	}
	item.ReferenceItemID = &referenceItemID
	m.items[id] = item
	return nil
}

func (m *memRepo) FindDivisionCounterpart(ctx context.Context, divisionID, mainReferenceItemID int64) (inventory.Item, error) {
	for _, item := range m.items {
		if item.DivisionID != nil && *item.DivisionID == divisionID &&
			item.MainReferenceItemID != nil && *item.MainReferenceItemID == mainReferenceItemID {
			return item, nil
		}
	}
	return inventory.Item{}, shared.ErrNotFound
}

func (m *memRepo) ListPacksReferencing(ctx context.Context, referenceItemID int64) ([]inventory.Item, error) {
	result := []inventory.Item{}
	for _, item := range m.items {
		if item.DivisionID == nil && item.ReferenceItemID != nil && *item.ReferenceItemID == referenceItemID {
			result = append(result, item)
		}
	}
	return result, nil
}

func (m *memRepo) InsertTransaction(ctx context.Context, txn inventory.ItemTransaction) (inventory.ItemTransaction, error) {
	m.nextTxn++
	txn.ID = m.nextTxn
	txn.CreatedAt = time.Now()
	m.txns = append(m.txns, txn)
	return txn, nil
}

type memIdem struct {
	keys map[string]bool
}

func newMemIdem() *memIdem { return &memIdem{keys: map[string]bool{}} }

func (m *memIdem) CheckAndInsert(ctx context.Context, key, module string) error {
	if m.keys[key] {
		return shared.ErrIdempotencyConflict
	}
	m.keys[key] = true
	return nil
}

func (m *memIdem) Delete(ctx context.Context, key string) error {
	delete(m.keys, key)
	return nil
}

func divisionActor(actorID, divisionID int64) shared.Actor {
	return shared.Actor{ID: actorID, DivisionID: &divisionID}
}

func warehouseActor(actorID int64) shared.Actor {
	return shared.Actor{ID: actorID}
}

func TestCreateReservesStockWithoutLedgerRow(t *testing.T) {
	repo := newMemRepo()
	rice := repo.addItem(inventory.Item{Name: "Rice", Unit: "kg", Stock: 100})
	svc := NewService(repo, nil, nil)

	order, err := svc.Create(context.Background(), CreateInput{
		DivisionID: 1,
		Actor:      divisionActor(7, 1),
		Lines:      []LineInput{{ItemID: rice.ID, Quantity: 30}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusPending, order.Status)
	require.Len(t, order.Carts, 1)
	require.Equal(t, int64(70), repo.items[rice.ID].Stock)
	require.Empty(t, repo.txns, "reservation must not write ledger rows")
}

func TestCreateInsufficientStock(t *testing.T) {
	repo := newMemRepo()
	rice := repo.addItem(inventory.Item{Name: "Rice", Unit: "kg", Stock: 5})
	svc := NewService(repo, nil, nil)

	_, err := svc.Create(context.Background(), CreateInput{
		DivisionID: 1,
		Actor:      divisionActor(7, 1),
		Lines:      []LineInput{{ItemID: rice.ID, Quantity: 6}},
	})
	require.ErrorIs(t, err, shared.ErrInsufficientStock)
}

func TestCreateRejectsDivisionScopedItem(t *testing.T) {
	repo := newMemRepo()
	div := int64(1)
	local := repo.addItem(inventory.Item{Name: "Local Rice", Unit: "kg", Stock: 10, DivisionID: &div})
	svc := NewService(repo, nil, nil)

	_, err := svc.Create(context.Background(), CreateInput{
		DivisionID: 1,
		Actor:      divisionActor(7, 1),
		Lines:      []LineInput{{ItemID: local.ID, Quantity: 2}},
	})
	require.ErrorIs(t, err, shared.ErrInvalidQuantity)
}

func TestCreateForeignDivision(t *testing.T) {
	repo := newMemRepo()
	rice := repo.addItem(inventory.Item{Name: "Rice", Unit: "kg", Stock: 10})
	svc := NewService(repo, nil, nil)

	_, err := svc.Create(context.Background(), CreateInput{
		DivisionID: 2,
		Actor:      divisionActor(7, 1),
		Lines:      []LineInput{{ItemID: rice.ID, Quantity: 2}},
	})
	require.ErrorIs(t, err, shared.ErrUnauthorizedScope)
}

func TestEditKeepsRevisionStatus(t *testing.T) {
	repo := newMemRepo()
	rice := repo.addItem(inventory.Item{Name: "Rice", Unit: "kg", Stock: 100})
	svc := NewService(repo, nil, nil)
	requester := divisionActor(7, 1)

	order, err := svc.Create(context.Background(), CreateInput{
		DivisionID: 1,
		Actor:      requester,
		Lines:      []LineInput{{ItemID: rice.ID, Quantity: 30}},
	})
	require.NoError(t, err)

	_, err = svc.Revise(context.Background(), order.ID, ReviseInput{Actor: warehouseActor(2)})
	require.NoError(t, err)

	edited, err := svc.Edit(context.Background(), order.ID, EditInput{
		Actor: requester,
		Lines: []LineInput{{ItemID: rice.ID, Quantity: 20}},
	})
	require.NoError(t, err)
	require.Equal(t, StatusRevision, edited.Status, "editing replaces lines without changing status")
	require.Equal(t, int64(80), repo.items[rice.ID].Stock)
}

func TestRejectRequiresReason(t *testing.T) {
	repo := newMemRepo()
	rice := repo.addItem(inventory.Item{Name: "Rice", Unit: "kg", Stock: 100})
	svc := NewService(repo, nil, nil)

	order, err := svc.Create(context.Background(), CreateInput{
		DivisionID: 1,
		Actor:      divisionActor(7, 1),
		Lines:      []LineInput{{ItemID: rice.ID, Quantity: 10}},
	})
	require.NoError(t, err)

	_, err = svc.Reject(context.Background(), order.ID, RejectInput{Actor: warehouseActor(2)})
	require.ErrorIs(t, err, shared.ErrValidation)
	require.Equal(t, int64(90), repo.items[rice.ID].Stock, "reservation stays until a valid reject")
}

func TestEditReplacesReservation(t *testing.T) {
	repo := newMemRepo()
	rice := repo.addItem(inventory.Item{Name: "Rice", Unit: "kg", Stock: 100})
	oil := repo.addItem(inventory.Item{Name: "Oil", Unit: "ltr", Stock: 50})
	svc := NewService(repo, nil, nil)
	requester := divisionActor(7, 1)

	order, err := svc.Create(context.Background(), CreateInput{
		DivisionID: 1,
		Actor:      requester,
		Lines:      []LineInput{{ItemID: rice.ID, Quantity: 30}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(70), repo.items[rice.ID].Stock)

	edited, err := svc.Edit(context.Background(), order.ID, EditInput{
		Actor: requester,
		Lines: []LineInput{{ItemID: rice.ID, Quantity: 10}, {ItemID: oil.ID, Quantity: 5}},
	})
	require.NoError(t, err)
	require.Len(t, edited.Carts, 2)
	require.Equal(t, int64(90), repo.items[rice.ID].Stock)
	require.Equal(t, int64(45), repo.items[oil.ID].Stock)
	require.Empty(t, repo.txns)
}

func TestEditRequiresRequester(t *testing.T) {
	repo := newMemRepo()
	rice := repo.addItem(inventory.Item{Name: "Rice", Unit: "kg", Stock: 100})
	svc := NewService(repo, nil, nil)

	order, err := svc.Create(context.Background(), CreateInput{
		DivisionID: 1,
		Actor:      divisionActor(7, 1),
		Lines:      []LineInput{{ItemID: rice.ID, Quantity: 10}},
	})
	require.NoError(t, err)

	_, err = svc.Edit(context.Background(), order.ID, EditInput{
		Actor: divisionActor(8, 1),
		Lines: []LineInput{{ItemID: rice.ID, Quantity: 5}},
	})
	require.ErrorIs(t, err, shared.ErrUnauthorizedScope)
	require.Equal(t, int64(90), repo.items[rice.ID].Stock)
}

func TestDeleteRestoresReservation(t *testing.T) {
	repo := newMemRepo()
	rice := repo.addItem(inventory.Item{Name: "Rice", Unit: "kg", Stock: 100})
	svc := NewService(repo, nil, nil)
	requester := divisionActor(7, 1)

	order, err := svc.Create(context.Background(), CreateInput{
		DivisionID: 1,
		Actor:      requester,
		Lines:      []LineInput{{ItemID: rice.ID, Quantity: 30}},
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), order.ID, requester))
	require.Equal(t, int64(100), repo.items[rice.ID].Stock)
	_, err = svc.Get(context.Background(), order.ID, requester)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestConfirmSetsAcceptedDate(t *testing.T) {
	repo := newMemRepo()
	rice := repo.addItem(inventory.Item{Name: "Rice", Unit: "kg", Stock: 100})
	svc := NewService(repo, nil, nil)

	order, err := svc.Create(context.Background(), CreateInput{
		DivisionID: 1,
		Actor:      divisionActor(7, 1),
		Lines:      []LineInput{{ItemID: rice.ID, Quantity: 10}},
	})
	require.NoError(t, err)

	confirmed, err := svc.Confirm(context.Background(), order.ID, warehouseActor(2))
	require.NoError(t, err)
	require.Equal(t, StatusConfirmed, confirmed.Status)
	require.NotNil(t, confirmed.AcceptedDate)

	// Stock stays at the reserved level, no ledger rows yet.
	require.Equal(t, int64(90), repo.items[rice.ID].Stock)
	require.Empty(t, repo.txns)
}

func TestConfirmRequiresWarehouseActor(t *testing.T) {
	repo := newMemRepo()
	rice := repo.addItem(inventory.Item{Name: "Rice", Unit: "kg", Stock: 100})
	svc := NewService(repo, nil, nil)

	order, err := svc.Create(context.Background(), CreateInput{
		DivisionID: 1,
		Actor:      divisionActor(7, 1),
		Lines:      []LineInput{{ItemID: rice.ID, Quantity: 10}},
	})
	require.NoError(t, err)

	_, err = svc.Confirm(context.Background(), order.ID, divisionActor(7, 1))
	require.ErrorIs(t, err, shared.ErrUnauthorizedScope)
}

func TestReviseFromPendingOnly(t *testing.T) {
	repo := newMemRepo()
	rice := repo.addItem(inventory.Item{Name: "Rice", Unit: "kg", Stock: 100})
	svc := NewService(repo, nil, nil)
	wh := warehouseActor(2)

	order, err := svc.Create(context.Background(), CreateInput{
		DivisionID: 1,
		Actor:      divisionActor(7, 1),
		Lines:      []LineInput{{ItemID: rice.ID, Quantity: 10}},
	})
	require.NoError(t, err)

	notes := "wrong quantities"
	revised, err := svc.Revise(context.Background(), order.ID, ReviseInput{Actor: wh, Notes: &notes})
	require.NoError(t, err)
	require.Equal(t, StatusRevision, revised.Status)

	_, err = svc.Revise(context.Background(), order.ID, ReviseInput{Actor: wh})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestRejectRestoresStockAndKeepsReason(t *testing.T) {
	repo := newMemRepo()
	rice := repo.addItem(inventory.Item{Name: "Rice", Unit: "kg", Stock: 100})
	svc := NewService(repo, nil, nil)
	wh := warehouseActor(2)

	order, err := svc.Create(context.Background(), CreateInput{
		DivisionID: 1,
		Actor:      divisionActor(7, 1),
		Lines:      []LineInput{{ItemID: rice.ID, Quantity: 40}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(60), repo.items[rice.ID].Stock)

	rejected, err := svc.Reject(context.Background(), order.ID, RejectInput{Actor: wh, Reason: "budget freeze"})
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.Equal(t, int64(100), repo.items[rice.ID].Stock)
	require.Len(t, repo.rejects, 1)
	require.Equal(t, "budget freeze", repo.rejects[0].Reason)

	// Terminal: rejecting twice would double-release the reservation.
	_, err = svc.Reject(context.Background(), order.ID, RejectInput{Actor: wh, Reason: "again"})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
	require.Equal(t, int64(100), repo.items[rice.ID].Stock)
}

func TestRejectAfterDeliveryBooksReturn(t *testing.T) {
	repo := newMemRepo()
	rice := repo.addItem(inventory.Item{Name: "Rice", Unit: "kg", Stock: 100})
	idem := newMemIdem()
	svc := NewService(repo, nil, idem)
	wh := warehouseActor(2)

	order, err := svc.Create(context.Background(), CreateInput{
		DivisionID: 1,
		Actor:      divisionActor(7, 1),
		Lines:      []LineInput{{ItemID: rice.ID, Quantity: 30}},
	})
	require.NoError(t, err)
	_, err = svc.Confirm(context.Background(), order.ID, wh)
	require.NoError(t, err)
	_, err = svc.Deliver(context.Background(), order.ID, DeliverInput{Actor: wh})
	require.NoError(t, err)
	require.Equal(t, int64(70), repo.items[rice.ID].Stock)

	rejected, err := svc.Reject(context.Background(), order.ID, RejectInput{Actor: wh, Reason: "wrong goods"})
	require.NoError(t, err)
	require.Equal(t, StatusRejected, rejected.Status)
	require.Equal(t, int64(100), repo.items[rice.ID].Stock)

	// The delivery OUT row stands; the return is a matching IN row.
	require.Len(t, repo.txns, 2)
	require.Equal(t, inventory.TransactionTypeOut, repo.txns[0].Type)
	require.Equal(t, inventory.TransactionTypeIn, repo.txns[1].Type)
	require.Equal(t, int64(30), repo.txns[1].Quantity)
}

func TestDeliverLogsOutWithoutStockChange(t *testing.T) {
	repo := newMemRepo()
	rice := repo.addItem(inventory.Item{Name: "Rice", Unit: "kg", Stock: 100})
	idem := newMemIdem()
	svc := NewService(repo, nil, idem)
	wh := warehouseActor(2)

	order, err := svc.Create(context.Background(), CreateInput{
		DivisionID: 1,
		Actor:      divisionActor(7, 1),
		Lines:      []LineInput{{ItemID: rice.ID, Quantity: 25}},
	})
	require.NoError(t, err)
	_, err = svc.Confirm(context.Background(), order.ID, wh)
	require.NoError(t, err)

	delivered, err := svc.Deliver(context.Background(), order.ID, DeliverInput{Actor: wh})
	require.NoError(t, err)
	require.Equal(t, StatusDelivered, delivered.Status)
	require.NotNil(t, delivered.DeliveryDate)
	require.Equal(t, int64(75), repo.items[rice.ID].Stock, "stock was debited at creation")

	require.Len(t, repo.txns, 1)
	require.Equal(t, inventory.TransactionTypeOut, repo.txns[0].Type)
	require.Equal(t, int64(25), repo.txns[0].Quantity)
	require.NotNil(t, delivered.Carts[0].DeliveredQuantity)
	require.Equal(t, int64(25), *delivered.Carts[0].DeliveredQuantity)

	_, err = svc.Deliver(context.Background(), order.ID, DeliverInput{Actor: wh})
	require.ErrorIs(t, err, shared.ErrIdempotencyConflict)
}

func TestDeliverOnlyFromConfirmed(t *testing.T) {
	repo := newMemRepo()
	rice := repo.addItem(inventory.Item{Name: "Rice", Unit: "kg", Stock: 100})
	svc := NewService(repo, nil, nil)

	order, err := svc.Create(context.Background(), CreateInput{
		DivisionID: 1,
		Actor:      divisionActor(7, 1),
		Lines:      []LineInput{{ItemID: rice.ID, Quantity: 10}},
	})
	require.NoError(t, err)

	_, err = svc.Deliver(context.Background(), order.ID, DeliverInput{Actor: warehouseActor(2)})
	require.ErrorIs(t, err, shared.ErrInvalidTransition)
}

func TestReceiveCreatesCounterpartAndCredits(t *testing.T) {
	repo := newMemRepo()
	rice := repo.addItem(inventory.Item{Name: "Rice", Unit: "kg", Stock: 100})
	svc := NewService(repo, nil, nil)
	wh := warehouseActor(2)
	requester := divisionActor(7, 1)

	order, err := svc.Create(context.Background(), CreateInput{
		DivisionID: 1,
		Actor:      requester,
		Lines:      []LineInput{{ItemID: rice.ID, Quantity: 25}},
	})
	require.NoError(t, err)
	_, err = svc.Confirm(context.Background(), order.ID, wh)
	require.NoError(t, err)
	_, err = svc.Deliver(context.Background(), order.ID, DeliverInput{Actor: wh})
	require.NoError(t, err)

	finished, err := svc.Receive(context.Background(), order.ID, ReceiveInput{Actor: requester})
	require.NoError(t, err)
	require.Equal(t, StatusFinished, finished.Status)
	require.NotNil(t, finished.ReceiptDate)
	require.NotNil(t, finished.Carts[0].ReceivedQuantity)
	require.Equal(t, int64(25), *finished.Carts[0].ReceivedQuantity)

	divisionItem, err := repo.FindDivisionCounterpart(context.Background(), 1, rice.ID)
	require.NoError(t, err)
	require.Equal(t, int64(25), divisionItem.Stock)
	require.Equal(t, "Rice", divisionItem.Name)

	var inRows int
	for _, txn := range repo.txns {
		if txn.Type == inventory.TransactionTypeIn {
			inRows++
			require.Equal(t, divisionItem.ID, txn.ItemID)
			require.Equal(t, int64(25), txn.Quantity)
		}
	}
	require.Equal(t, 1, inRows)
}

func TestReceivePartialQuantityOverride(t *testing.T) {
	repo := newMemRepo()
	rice := repo.addItem(inventory.Item{Name: "Rice", Unit: "kg", Stock: 100})
	svc := NewService(repo, nil, nil)
	wh := warehouseActor(2)
	requester := divisionActor(7, 1)

	order, err := svc.Create(context.Background(), CreateInput{
		DivisionID: 1,
		Actor:      requester,
		Lines:      []LineInput{{ItemID: rice.ID, Quantity: 25}},
	})
	require.NoError(t, err)
	_, err = svc.Confirm(context.Background(), order.ID, wh)
	require.NoError(t, err)
	delivered, err := svc.Deliver(context.Background(), order.ID, DeliverInput{Actor: wh})
	require.NoError(t, err)

	finished, err := svc.Receive(context.Background(), order.ID, ReceiveInput{
		Actor: requester,
		Lines: []ReceiveLine{{CartID: delivered.Carts[0].ID, Quantity: 20}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(20), *finished.Carts[0].ReceivedQuantity)

	divisionItem, err := repo.FindDivisionCounterpart(context.Background(), 1, rice.ID)
	require.NoError(t, err)
	require.Equal(t, int64(20), divisionItem.Stock)
}

func TestReceiveRequiresDivisionMembership(t *testing.T) {
	repo := newMemRepo()
	rice := repo.addItem(inventory.Item{Name: "Rice", Unit: "kg", Stock: 100})
	svc := NewService(repo, nil, nil)
	wh := warehouseActor(2)

	order, err := svc.Create(context.Background(), CreateInput{
		DivisionID: 1,
		Actor:      divisionActor(7, 1),
		Lines:      []LineInput{{ItemID: rice.ID, Quantity: 10}},
	})
	require.NoError(t, err)
	_, err = svc.Confirm(context.Background(), order.ID, wh)
	require.NoError(t, err)
	_, err = svc.Deliver(context.Background(), order.ID, DeliverInput{Actor: wh})
	require.NoError(t, err)

	_, err = svc.Receive(context.Background(), order.ID, ReceiveInput{Actor: divisionActor(9, 2)})
	require.ErrorIs(t, err, shared.ErrUnauthorizedScope)
}

func TestReceiveRepairsPackHierarchy(t *testing.T) {
	repo := newMemRepo()
	base := repo.addItem(inventory.Item{Name: "Water Bottle", Unit: "btl", Stock: 500})
	pack := repo.addItem(inventory.Item{Name: "Water Box", Unit: "box", Stock: 40, Multiplier: 12, ReferenceItemID: &base.ID})

	// Division already holds the base unit counterpart from a prior order.
	div := int64(1)
	divBase := repo.addItem(inventory.Item{Name: "Water Bottle", Unit: "btl", DivisionID: &div, MainReferenceItemID: &base.ID})

	svc := NewService(repo, nil, nil)
	wh := warehouseActor(2)
	requester := divisionActor(7, 1)

	order, err := svc.Create(context.Background(), CreateInput{
		DivisionID: 1,
		Actor:      requester,
		Lines:      []LineInput{{ItemID: pack.ID, Quantity: 3}},
	})
	require.NoError(t, err)
	_, err = svc.Confirm(context.Background(), order.ID, wh)
	require.NoError(t, err)
	_, err = svc.Deliver(context.Background(), order.ID, DeliverInput{Actor: wh})
	require.NoError(t, err)
	_, err = svc.Receive(context.Background(), order.ID, ReceiveInput{Actor: requester})
	require.NoError(t, err)

	divPack, err := repo.FindDivisionCounterpart(context.Background(), 1, pack.ID)
	require.NoError(t, err)
	require.Equal(t, int64(3), divPack.Stock)
	require.NotNil(t, divPack.ReferenceItemID, "received pack must link to the division base unit")
	require.Equal(t, divBase.ID, *divPack.ReferenceItemID)
}

func TestStateMachineClosure(t *testing.T) {
	cases := []struct {
		from    Status
		to      Status
		allowed bool
	}{
		{StatusPending, StatusConfirmed, true},
		{StatusPending, StatusRevision, true},
		{StatusPending, StatusDelivered, false},
		{StatusPending, StatusFinished, false},
		{StatusRevision, StatusConfirmed, true},
		{StatusRevision, StatusDelivered, false},
		{StatusConfirmed, StatusDelivered, true},
		{StatusConfirmed, StatusFinished, false},
		{StatusConfirmed, StatusRevision, false},
		{StatusDelivered, StatusFinished, true},
		{StatusDelivered, StatusConfirmed, false},
		{StatusFinished, StatusPending, false},
		{StatusFinished, StatusDelivered, false},
		{StatusRejected, StatusConfirmed, false},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%s_to_%s", tc.from, tc.to), func(t *testing.T) {
			require.Equal(t, tc.allowed, tc.from.CanTransition(tc.to))
		})
	}
	for _, from := range []Status{StatusPending, StatusRevision, StatusConfirmed, StatusDelivered} {
		require.True(t, from.CanTransition(StatusRejected), "reject allowed from %s", from)
	}
}

func TestReservationRoundTrip(t *testing.T) {
	repo := newMemRepo()
	rice := repo.addItem(inventory.Item{Name: "Rice", Unit: "kg", Stock: 100})
	oil := repo.addItem(inventory.Item{Name: "Oil", Unit: "ltr", Stock: 40})
	svc := NewService(repo, nil, nil)
	requester := divisionActor(7, 1)

	order, err := svc.Create(context.Background(), CreateInput{
		DivisionID: 1,
		Actor:      requester,
		Lines:      []LineInput{{ItemID: rice.ID, Quantity: 15}, {ItemID: oil.ID, Quantity: 8}},
	})
	require.NoError(t, err)
	require.Equal(t, int64(85), repo.items[rice.ID].Stock)
	require.Equal(t, int64(32), repo.items[oil.ID].Stock)

	_, err = svc.Reject(context.Background(), order.ID, RejectInput{Actor: warehouseActor(2), Reason: "not needed"})
	require.NoError(t, err)
	require.Equal(t, int64(100), repo.items[rice.ID].Stock)
	require.Equal(t, int64(40), repo.items[oil.ID].Stock)
	require.Empty(t, repo.txns, "reject must not write ledger rows")
}
