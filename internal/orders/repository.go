package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumbung-erp/lumbung-erp/internal/inventory"
	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

// Repository abstracts order persistence for the service.
type Repository interface {
	GetOrder(ctx context.Context, id int64) (*WarehouseOrder, error)
	List(ctx context.Context, filter ListFilter) ([]WarehouseOrder, int, error)
	NextOrderNumber(ctx context.Context, date time.Time) (string, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository exposes transactional order operations together with the
// inventory store, so reservations and ledger rows commit with the order.
type TxRepository interface {
	inventory.TxStore
	GetOrderForUpdate(ctx context.Context, id int64) (*WarehouseOrder, error)
	InsertOrder(ctx context.Context, order WarehouseOrder) (int64, error)
	UpdateOrder(ctx context.Context, id int64, updates map[string]any) error
	DeleteOrder(ctx context.Context, id int64) error
	InsertCart(ctx context.Context, cart Cart) (int64, error)
	DeleteCarts(ctx context.Context, orderID int64) error
	SetCartDelivered(ctx context.Context, cartID, quantity int64) error
	SetCartReceived(ctx context.Context, cartID, quantity int64) error
	InsertReject(ctx context.Context, reject Reject) (int64, error)
}

// PgRepository persists warehouse orders in PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PgRepository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const orderSelect = `SELECT id, order_number, division_id, requester_id, status, description, notes,
accepted_date, delivery_date, delivered_by, delivery_images,
receipt_date, received_by, receipt_images, created_at, updated_at
FROM warehouse_orders`

// WithTx executes the callback inside a repeatable-read transaction.
func (r *PgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("orders repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	wrapper := &txRepository{tx: tx, TxStore: inventory.NewTxStore(tx)}
	if err := fn(ctx, wrapper); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// GetOrder fetches one order with its cart lines.
func (r *PgRepository) GetOrder(ctx context.Context, id int64) (*WarehouseOrder, error) {
	row := r.pool.QueryRow(ctx, orderSelect+` WHERE id=$1`, id)
	order, err := scanOrder(row)
	if err != nil {
		return nil, err
	}
	carts, err := loadCarts(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	order.Carts = carts
	return order, nil
}

// List returns orders matching the filter, newest first, with a total count.
func (r *PgRepository) List(ctx context.Context, filter ListFilter) ([]WarehouseOrder, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM warehouse_orders
WHERE ($1::BIGINT IS NULL OR division_id=$1) AND ($2 = '' OR status=$2)`,
		filter.DivisionID, string(filter.Status)).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, orderSelect+` WHERE ($1::BIGINT IS NULL OR division_id=$1) AND ($2 = '' OR status=$2)
ORDER BY created_at DESC, id DESC
LIMIT $3 OFFSET $4`, filter.DivisionID, string(filter.Status), limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	result := []WarehouseOrder{}
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *order)
	}
	return result, total, rows.Err()
}

// NextOrderNumber builds a WO-YYYYMMDD-NNNN document number from a per-day
// sequence.
func (r *PgRepository) NextOrderNumber(ctx context.Context, date time.Time) (string, error) {
	var seq int64
	day := date.Format("20060102")
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) + 1 FROM warehouse_orders WHERE order_number LIKE 'WO-' || $1 || '-%'`, day).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("WO-%s-%04d", day, seq), nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadCarts(ctx context.Context, q querier, orderID int64) ([]Cart, error) {
	rows, err := q.Query(ctx, `SELECT id, order_id, item_id, quantity, delivered_quantity, received_quantity
FROM warehouse_order_carts WHERE order_id=$1 ORDER BY id ASC`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	carts := []Cart{}
	for rows.Next() {
		var cart Cart
		if err := rows.Scan(&cart.ID, &cart.OrderID, &cart.ItemID, &cart.Quantity, &cart.DeliveredQuantity, &cart.ReceivedQuantity); err != nil {
			return nil, err
		}
		carts = append(carts, cart)
	}
	return carts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*WarehouseOrder, error) {
	var o WarehouseOrder
	err := row.Scan(&o.ID, &o.OrderNumber, &o.DivisionID, &o.RequesterID, &o.Status, &o.Description, &o.Notes,
		&o.AcceptedDate, &o.DeliveryDate, &o.DeliveredBy, &o.DeliveryImages,
		&o.ReceiptDate, &o.ReceivedBy, &o.ReceiptImages, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("warehouse order: %w", shared.ErrNotFound)
		}
		return nil, err
	}
	return &o, nil
}
