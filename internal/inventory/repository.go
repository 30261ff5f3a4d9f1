package inventory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

// TxStore exposes the transactional item and ledger operations. Every stock
// mutation in orders, conversion and opname goes through this interface so
// their rows and the ledger commit or roll back together.
type TxStore interface {
	GetItemForUpdate(ctx context.Context, id int64) (Item, error)
	InsertItem(ctx context.Context, item Item) (Item, error)
	UpdateItemStock(ctx context.Context, id, stock int64) error
	SetItemReference(ctx context.Context, id, referenceItemID int64) error
	// FindDivisionCounterpart locates the division clone of a warehouse item.
	FindDivisionCounterpart(ctx context.Context, divisionID, mainReferenceItemID int64) (Item, error)
	// ListPacksReferencing returns warehouse pack items whose reference item
	// is the given base unit.
	ListPacksReferencing(ctx context.Context, referenceItemID int64) ([]Item, error)
	InsertTransaction(ctx context.Context, txn ItemTransaction) (ItemTransaction, error)
}

// Repository persists items and ledger rows in PostgreSQL.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error {
	if r == nil {
		return errors.New("inventory repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	if err := fn(ctx, NewTxStore(tx)); err != nil {
		_ = tx.Rollback(ctx)
		return err
	}
	return tx.Commit(ctx)
}

// GetItem fetches one item.
func (r *Repository) GetItem(ctx context.Context, id int64) (Item, error) {
	row := r.pool.QueryRow(ctx, itemSelect+` WHERE id=$1`, id)
	return scanItem(row)
}

// ListItems lists items matching the filter, newest first.
func (r *Repository) ListItems(ctx context.Context, filter ItemFilter) ([]Item, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query := itemSelect + ` WHERE ($1::BIGINT IS NULL OR division_id=$1)
AND (NOT $2 OR division_id IS NULL)
AND ($3 = '' OR name ILIKE '%' || $3 || '%')
ORDER BY name ASC
LIMIT $4 OFFSET $5`
	rows, err := r.pool.Query(ctx, query, filter.DivisionID, filter.WarehouseOnly, filter.Search, limit, filter.Offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// ListTransactions returns the ledger card for one item, oldest first.
func (r *Repository) ListTransactions(ctx context.Context, filter TransactionFilter) ([]ItemTransaction, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.pool.Query(ctx, `SELECT id, item_id, tx_type, quantity, actor_id, description, tx_date, created_at
FROM item_transactions
WHERE item_id=$1 AND tx_date BETWEEN COALESCE($2, '-infinity') AND COALESCE($3, 'infinity')
ORDER BY tx_date ASC, id ASC
LIMIT $4`, filter.ItemID, nullTime(filter.From), nullTime(filter.To), limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	txns := []ItemTransaction{}
	for rows.Next() {
		var txn ItemTransaction
		if err := rows.Scan(&txn.ID, &txn.ItemID, &txn.Type, &txn.Quantity, &txn.ActorID, &txn.Description, &txn.Date, &txn.CreatedAt); err != nil {
			return nil, err
		}
		txns = append(txns, txn)
	}
	return txns, rows.Err()
}

// StockSummary aggregates item count and total stock per division scope.
func (r *Repository) StockSummary(ctx context.Context) ([]DivisionStockSummary, error) {
	rows, err := r.pool.Query(ctx, `SELECT division_id, COUNT(*), COALESCE(SUM(stock), 0)
FROM items
GROUP BY division_id
ORDER BY division_id NULLS FIRST`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	summaries := []DivisionStockSummary{}
	for rows.Next() {
		var s DivisionStockSummary
		if err := rows.Scan(&s.DivisionID, &s.ItemCount, &s.TotalStock); err != nil {
			return nil, err
		}
		summaries = append(summaries, s)
	}
	return summaries, rows.Err()
}

// NewTxStore wraps a pgx transaction so sibling modules can compose item and
// ledger writes into their own transactions.
func NewTxStore(tx pgx.Tx) TxStore {
	return &txStore{tx: tx}
}

type txStore struct {
	tx pgx.Tx
}

const itemSelect = `SELECT id, division_id, category_id, name, unit, description, stock, multiplier, reference_item_id, main_reference_item_id, created_at, updated_at
FROM items`

func (s *txStore) GetItemForUpdate(ctx context.Context, id int64) (Item, error) {
	row := s.tx.QueryRow(ctx, itemSelect+` WHERE id=$1 FOR UPDATE`, id)
	return scanItem(row)
}

func (s *txStore) InsertItem(ctx context.Context, item Item) (Item, error) {
	err := s.tx.QueryRow(ctx, `INSERT INTO items (division_id, category_id, name, unit, description, stock, multiplier, reference_item_id, main_reference_item_id, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,NOW(),NOW()) RETURNING id, created_at, updated_at`,
		item.DivisionID, item.CategoryID, item.Name, item.Unit, item.Description, item.Stock, item.Multiplier, item.ReferenceItemID, item.MainReferenceItemID).
		Scan(&item.ID, &item.CreatedAt, &item.UpdatedAt)
	return item, err
}

func (s *txStore) UpdateItemStock(ctx context.Context, id, stock int64) error {
	tag, err := s.tx.Exec(ctx, `UPDATE items SET stock=$1, updated_at=NOW() WHERE id=$2`, stock, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("item %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (s *txStore) SetItemReference(ctx context.Context, id, referenceItemID int64) error {
	tag, err := s.tx.Exec(ctx, `UPDATE items SET reference_item_id=$1, updated_at=NOW() WHERE id=$2`, referenceItemID, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("item %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (s *txStore) FindDivisionCounterpart(ctx context.Context, divisionID, mainReferenceItemID int64) (Item, error) {
	row := s.tx.QueryRow(ctx, itemSelect+` WHERE division_id=$1 AND main_reference_item_id=$2 FOR UPDATE`, divisionID, mainReferenceItemID)
	return scanItem(row)
}

func (s *txStore) ListPacksReferencing(ctx context.Context, referenceItemID int64) ([]Item, error) {
	rows, err := s.tx.Query(ctx, itemSelect+` WHERE division_id IS NULL AND reference_item_id=$1`, referenceItemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	items := []Item{}
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *txStore) InsertTransaction(ctx context.Context, txn ItemTransaction) (ItemTransaction, error) {
	err := s.tx.QueryRow(ctx, `INSERT INTO item_transactions (item_id, tx_type, quantity, actor_id, description, tx_date, created_at)
VALUES ($1,$2,$3,$4,$5,$6,NOW()) RETURNING id, created_at`,
		txn.ItemID, string(txn.Type), txn.Quantity, txn.ActorID, txn.Description, txn.Date).
		Scan(&txn.ID, &txn.CreatedAt)
	return txn, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (Item, error) {
	var item Item
	err := row.Scan(&item.ID, &item.DivisionID, &item.CategoryID, &item.Name, &item.Unit, &item.Description, &item.Stock, &item.Multiplier, &item.ReferenceItemID, &item.MainReferenceItemID, &item.CreatedAt, &item.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Item{}, shared.ErrNotFound
		}
		return Item{}, err
	}
	return item, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
