package orders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/lumbung-erp/lumbung-erp/internal/inventory"
	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

type txRepository struct {
	inventory.TxStore
	tx pgx.Tx
}

func (t *txRepository) GetOrderForUpdate(ctx context.Context, id int64) (*WarehouseOrder, error) {
	row := t.tx.QueryRow(ctx, orderSelect+` WHERE id=$1 FOR UPDATE`, id)
	order, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	carts, err := loadCarts(ctx, t.tx, id)
	if err != nil {
		return nil, err
	}
	order.Carts = carts
	return order, nil
}

func (t *txRepository) InsertOrder(ctx context.Context, order WarehouseOrder) (int64, error) {
	query := `
		INSERT INTO warehouse_orders (
			order_number, division_id, requester_id, status, description, notes
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		order.OrderNumber, order.DivisionID, order.RequesterID, order.Status,
		order.Description, order.Notes,
	).Scan(&id)
	return id, err
}

func (t *txRepository) UpdateOrder(ctx context.Context, id int64, updates map[string]any) error {
	if len(updates) == 0 {
		return nil
	}

	var setClauses []string
	var args []any
	argPos := 1

	for field, value := range updates {
		setClauses = append(setClauses, fmt.Sprintf("%s = $%d", field, argPos))
		args = append(args, value)
		argPos++
	}

	setClauses = append(setClauses, fmt.Sprintf("updated_at = $%d", argPos))
	args = append(args, time.Now())
	argPos++

	args = append(args, id)

	query := fmt.Sprintf(`
		UPDATE warehouse_orders
		SET %s
		WHERE id = $%d
	`, strings.Join(setClauses, ", "), argPos)

	cmdTag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("warehouse order %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (t *txRepository) DeleteOrder(ctx context.Context, id int64) error {
	cmdTag, err := t.tx.Exec(ctx, `DELETE FROM warehouse_orders WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("warehouse order %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (t *txRepository) InsertCart(ctx context.Context, cart Cart) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO warehouse_order_carts (order_id, item_id, quantity)
VALUES ($1, $2, $3) RETURNING id`, cart.OrderID, cart.ItemID, cart.Quantity).Scan(&id)
	return id, err
}

func (t *txRepository) DeleteCarts(ctx context.Context, orderID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM warehouse_order_carts WHERE order_id=$1`, orderID)
	return err
}

func (t *txRepository) SetCartDelivered(ctx context.Context, cartID, quantity int64) error {
	return t.setCartQuantity(ctx, cartID, "delivered_quantity", quantity)
}

func (t *txRepository) SetCartReceived(ctx context.Context, cartID, quantity int64) error {
	return t.setCartQuantity(ctx, cartID, "received_quantity", quantity)
}

func (t *txRepository) setCartQuantity(ctx context.Context, cartID int64, column string, quantity int64) error {
	query := fmt.Sprintf(`UPDATE warehouse_order_carts SET %s = $1 WHERE id = $2`, column)
	cmdTag, err := t.tx.Exec(ctx, query, quantity, cartID)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("cart %d: %w", cartID, shared.ErrNotFound)
	}
	return nil
}

func (t *txRepository) InsertReject(ctx context.Context, reject Reject) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO warehouse_order_rejects (order_id, actor_id, reason, created_at)
VALUES ($1, $2, $3, NOW()) RETURNING id`, reject.OrderID, reject.ActorID, reject.Reason).Scan(&id)
	return id, err
}
