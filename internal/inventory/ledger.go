package inventory

import (
	"context"
	"fmt"
	"time"

	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

// Adjustment describes one signed stock mutation routed through the ledger.
// Delta carries the direction; the ledger row stores the absolute quantity
// with a directional type.
type Adjustment struct {
	ItemID      int64
	Delta       int64
	Type        TransactionType
	ActorID     int64
	Description string
	Date        time.Time
}

// Apply mutates item stock and appends the matching ledger row inside the
// caller's transaction. Stock below zero is refused before anything is
// written, so a failed call leaves both the item and the ledger untouched.
func Apply(ctx context.Context, store TxStore, adj Adjustment) (Item, ItemTransaction, error) {
	if adj.Delta == 0 {
		return Item{}, ItemTransaction{}, shared.ErrInvalidQuantity
	}

	item, err := store.GetItemForUpdate(ctx, adj.ItemID)
	if err != nil {
		return Item{}, ItemTransaction{}, err
	}

	newStock := item.Stock + adj.Delta
	if newStock < 0 {
		return Item{}, ItemTransaction{}, fmt.Errorf("item %q: %w", item.Name, shared.ErrInsufficientStock)
	}

	if err := store.UpdateItemStock(ctx, item.ID, newStock); err != nil {
		return Item{}, ItemTransaction{}, err
	}
	item.Stock = newStock

	quantity := adj.Delta
	if quantity < 0 {
		quantity = -quantity
	}
	txn, err := LogMovement(ctx, store, ItemTransaction{
		ItemID:      item.ID,
		Type:        adj.Type,
		Quantity:    quantity,
		ActorID:     adj.ActorID,
		Description: adj.Description,
		Date:        adj.Date,
	})
	if err != nil {
		return Item{}, ItemTransaction{}, err
	}

	return item, txn, nil
}

// LogMovement appends a ledger row without touching stock. Order delivery
// uses this: the warehouse debit already happened at order creation.
func LogMovement(ctx context.Context, store TxStore, txn ItemTransaction) (ItemTransaction, error) {
	if txn.Quantity <= 0 {
		return ItemTransaction{}, shared.ErrInvalidQuantity
	}
	if txn.Date.IsZero() {
		txn.Date = time.Now().UTC()
	}
	return store.InsertTransaction(ctx, txn)
}

// Reserve debits item stock without a ledger row. Warehouse orders reserve
// stock at submission time; the OUT row is written later at delivery.
func Reserve(ctx context.Context, store TxStore, itemID, quantity int64) (Item, error) {
	if quantity <= 0 {
		return Item{}, shared.ErrInvalidQuantity
	}
	return shiftStock(ctx, store, itemID, -quantity)
}

// Release restores stock previously taken by Reserve.
func Release(ctx context.Context, store TxStore, itemID, quantity int64) (Item, error) {
	if quantity <= 0 {
		return Item{}, shared.ErrInvalidQuantity
	}
	return shiftStock(ctx, store, itemID, quantity)
}

func shiftStock(ctx context.Context, store TxStore, itemID, delta int64) (Item, error) {
	item, err := store.GetItemForUpdate(ctx, itemID)
	if err != nil {
		return Item{}, err
	}
	newStock := item.Stock + delta
	if newStock < 0 {
		return Item{}, fmt.Errorf("item %q: %w", item.Name, shared.ErrInsufficientStock)
	}
	if err := store.UpdateItemStock(ctx, item.ID, newStock); err != nil {
		return Item{}, err
	}
	item.Stock = newStock
	return item, nil
}

// Reconcile converts an opname variance into a ledger row and overwrites the
// stock with the physical count. Reconciliation overwrites, it does not
// delta-adjust: the difference was computed against the session snapshot, the
// final stock is the counted value regardless of movements since.
func Reconcile(ctx context.Context, store TxStore, itemID, physicalStock, difference int64, actorID int64, description string, date time.Time) (Item, *ItemTransaction, error) {
	if physicalStock < 0 {
		return Item{}, nil, shared.ErrInvalidQuantity
	}

	item, err := store.GetItemForUpdate(ctx, itemID)
	if err != nil {
		return Item{}, nil, err
	}

	var txn *ItemTransaction
	if difference != 0 {
		txType := TransactionTypeOpnameMore
		quantity := difference
		if difference < 0 {
			txType = TransactionTypeOpnameLess
			quantity = -difference
		}
		logged, err := LogMovement(ctx, store, ItemTransaction{
			ItemID:      item.ID,
			Type:        txType,
			Quantity:    quantity,
			ActorID:     actorID,
			Description: description,
			Date:        date,
		})
		if err != nil {
			return Item{}, nil, err
		}
		txn = &logged
	}

	if err := store.UpdateItemStock(ctx, item.ID, physicalStock); err != nil {
		return Item{}, nil, err
	}
	item.Stock = physicalStock

	return item, txn, nil
}
