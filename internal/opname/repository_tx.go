package opname

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

func (t *txRepository) GetOpnameForUpdate(ctx context.Context, id int64) (*StockOpname, error) {
	row := t.tx.QueryRow(ctx, opnameSelect+` WHERE id=$1 FOR UPDATE`, id)
	opname, err := scanOpname(row)
	if err != nil {
		return nil, err
	}
	lines, err := loadLines(ctx, t.tx, id)
	if err != nil {
		return nil, err
	}
	opname.Lines = lines
	return opname, nil
}

func (t *txRepository) InsertOpname(ctx context.Context, opname StockOpname) (int64, error) {
	query := `
		INSERT INTO stock_opnames (
			opname_number, division_id, creator_id, status, opname_date, notes
		) VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`
	var id int64
	err := t.tx.QueryRow(ctx, query,
		opname.OpnameNumber, opname.DivisionID, opname.CreatorID, opname.Status,
		opname.OpnameDate, opname.Notes,
	).Scan(&id)
	return id, err
}

func (t *txRepository) UpdateOpname(ctx context.Context, id int64, updates map[string]any) error {
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
		UPDATE stock_opnames
		SET %s
		WHERE id = $%d
	`, strings.Join(setClauses, ", "), argPos)

	cmdTag, err := t.tx.Exec(ctx, query, args...)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("stock opname %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (t *txRepository) DeleteOpname(ctx context.Context, id int64) error {
	cmdTag, err := t.tx.Exec(ctx, `DELETE FROM stock_opnames WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmdTag.RowsAffected() == 0 {
		return fmt.Errorf("stock opname %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (t *txRepository) InsertLine(ctx context.Context, line Line) (int64, error) {
	var id int64
	err := t.tx.QueryRow(ctx, `INSERT INTO stock_opname_lines (opname_id, item_id, system_stock, physical_stock, difference, notes)
VALUES ($1, $2, $3, $4, $5, $6) RETURNING id`,
		line.OpnameID, line.ItemID, line.SystemStock, line.PhysicalStock, line.Difference, line.Notes).Scan(&id)
	return id, err
}

func (t *txRepository) DeleteLines(ctx context.Context, opnameID int64) error {
	_, err := t.tx.Exec(ctx, `DELETE FROM stock_opname_lines WHERE opname_id=$1`, opnameID)
	return err
}
