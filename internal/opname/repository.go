package opname

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

// Repository abstracts opname persistence for the service.
type Repository interface {
	GetOpname(ctx context.Context, id int64) (*StockOpname, error)
	List(ctx context.Context, filter ListFilter) ([]StockOpname, int, error)
	NextOpnameNumber(ctx context.Context, date time.Time) (string, error)
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
}

// TxRepository combines opname writes with the inventory store so variance
// ledger rows and stock corrections commit with the session.
type TxRepository interface {
	inventory.TxStore
	GetOpnameForUpdate(ctx context.Context, id int64) (*StockOpname, error)
	InsertOpname(ctx context.Context, opname StockOpname) (int64, error)
	UpdateOpname(ctx context.Context, id int64, updates map[string]any) error
	DeleteOpname(ctx context.Context, id int64) error
	InsertLine(ctx context.Context, line Line) (int64, error)
	DeleteLines(ctx context.Context, opnameID int64) error
}

// PgRepository persists opname sessions in PostgreSQL.
type PgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs PgRepository.
func NewRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const opnameSelect = `SELECT id, opname_number, division_id, creator_id, status, opname_date, notes, confirmed_at, created_at, updated_at
FROM stock_opnames`

// WithTx executes the callback inside a repeatable-read transaction.
func (r *PgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil {
		return errors.New("opname repository not initialised")
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

// GetOpname fetches one session with its lines.
func (r *PgRepository) GetOpname(ctx context.Context, id int64) (*StockOpname, error) {
	row := r.pool.QueryRow(ctx, opnameSelect+` WHERE id=$1`, id)
	opname, err := scanOpname(row)
	if err != nil {
		return nil, err
	}
	lines, err := loadLines(ctx, r.pool, id)
	if err != nil {
		return nil, err
	}
	opname.Lines = lines
	return opname, nil
}

// List returns sessions matching the filter, newest first, with a total count.
func (r *PgRepository) List(ctx context.Context, filter ListFilter) ([]StockOpname, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	var total int
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM stock_opnames
WHERE ($1::BIGINT IS NULL OR division_id=$1) AND (NOT $2 OR division_id IS NULL) AND ($3 = '' OR status=$3)`,
		filter.DivisionID, filter.WarehouseOnly, string(filter.Status)).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.pool.Query(ctx, opnameSelect+` WHERE ($1::BIGINT IS NULL OR division_id=$1) AND (NOT $2 OR division_id IS NULL) AND ($3 = '' OR status=$3)
ORDER BY opname_date DESC, id DESC
LIMIT $4 OFFSET $5`, filter.DivisionID, filter.WarehouseOnly, string(filter.Status), limit, filter.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	result := []StockOpname{}
	for rows.Next() {
		opname, err := scanOpname(rows)
		if err != nil {
			return nil, 0, err
		}
		result = append(result, *opname)
	}
	return result, total, rows.Err()
}

// NextOpnameNumber builds an SO-YYYYMMDD-NNNN document number from a per-day
// sequence.
func (r *PgRepository) NextOpnameNumber(ctx context.Context, date time.Time) (string, error) {
	var seq int64
	day := date.Format("20060102")
	err := r.pool.QueryRow(ctx, `SELECT COUNT(*) + 1 FROM stock_opnames WHERE opname_number LIKE 'SO-' || $1 || '-%'`, day).Scan(&seq)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("SO-%s-%04d", day, seq), nil
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func loadLines(ctx context.Context, q querier, opnameID int64) ([]Line, error) {
	rows, err := q.Query(ctx, `SELECT id, opname_id, item_id, system_stock, physical_stock, difference, notes
FROM stock_opname_lines WHERE opname_id=$1 ORDER BY id ASC`, opnameID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	lines := []Line{}
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.ID, &line.OpnameID, &line.ItemID, &line.SystemStock, &line.PhysicalStock, &line.Difference, &line.Notes); err != nil {
			return nil, err
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOpname(row rowScanner) (*StockOpname, error) {
	var o StockOpname
	err := row.Scan(&o.ID, &o.OpnameNumber, &o.DivisionID, &o.CreatorID, &o.Status, &o.OpnameDate, &o.Notes, &o.ConfirmedAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("stock opname: %w", shared.ErrNotFound)
		}
		return nil, err
	}
	return &o, nil
}
