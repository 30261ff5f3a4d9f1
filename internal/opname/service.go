package opname

import (
	"context"
	"fmt"
	"time"

	"github.com/lumbung-erp/lumbung-erp/internal/inventory"
	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service owns the stock opname lifecycle: draft counts snapshot the recorded
// stock, confirmation turns variances into ledger rows and overwrites the
// stock with the counted values.
type Service struct {
	repo  Repository
	audit AuditPort
}

// NewService builds Service.
func NewService(repo Repository, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// LineInput is one counted item.
type LineInput struct {
	ItemID        int64   `json:"item_id" validate:"required"`
	PhysicalStock int64   `json:"physical_stock" validate:"gte=0"`
	Notes         *string `json:"notes"`
}

// CreateInput describes a new count session.
type CreateInput struct {
	DivisionID *int64
	Actor      shared.Actor
	OpnameDate time.Time
	Notes      *string
	Lines      []LineInput
}

// UpdateInput replaces the lines of a draft session, re-snapshotting the
// system stock.
type UpdateInput struct {
	Actor      shared.Actor
	OpnameDate *time.Time
	Notes      *string
	Lines      []LineInput
}

// Get returns one session if the actor may see it.
func (s *Service) Get(ctx context.Context, id int64, actor shared.Actor) (*StockOpname, error) {
	opname, err := s.repo.GetOpname(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanView(*opname, actor) {
		return nil, fmt.Errorf("opname %d: %w", id, shared.ErrUnauthorizedScope)
	}
	return opname, nil
}

// List returns sessions visible to the actor. Division actors are pinned to
// their own division.
func (s *Service) List(ctx context.Context, filter ListFilter, actor shared.Actor) ([]StockOpname, int, error) {
	if !actor.IsWarehouse() && !filter.WarehouseOnly {
		filter.DivisionID = actor.DivisionID
	}
	return s.repo.List(ctx, filter)
}

// Create opens a draft session, snapshotting the current stock of every
// counted item into the line's system stock.
func (s *Service) Create(ctx context.Context, in CreateInput) (*StockOpname, error) {
	if err := validateLines(in.Lines); err != nil {
		return nil, err
	}
	if !canManageScope(in.Actor, in.DivisionID) {
		return nil, fmt.Errorf("opname scope: %w", shared.ErrUnauthorizedScope)
	}
	if in.OpnameDate.IsZero() {
		in.OpnameDate = time.Now().UTC()
	}

	number, err := s.repo.NextOpnameNumber(ctx, in.OpnameDate)
	if err != nil {
		return nil, err
	}

	var opnameID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		opnameID, err = tx.InsertOpname(ctx, StockOpname{
			OpnameNumber: number,
			DivisionID:   in.DivisionID,
			CreatorID:    in.Actor.ID,
			Status:       StatusDraft,
			OpnameDate:   in.OpnameDate,
			Notes:        in.Notes,
		})
		if err != nil {
			return err
		}
		return s.snapshotLines(ctx, tx, opnameID, in.DivisionID, in.Lines)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, in.Actor.ID, "opname:CREATE", opnameID, map[string]any{"opname_number": number, "lines": len(in.Lines)})
	return s.repo.GetOpname(ctx, opnameID)
}

// Update replaces the lines of a draft session. System stock is snapshotted
// again so the difference reflects the stock at the latest save, not at the
// original creation.
func (s *Service) Update(ctx context.Context, id int64, in UpdateInput) (*StockOpname, error) {
	if err := validateLines(in.Lines); err != nil {
		return nil, err
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		opname, err := tx.GetOpnameForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := manageGuard(*opname, in.Actor); err != nil {
			return err
		}

		if err := tx.DeleteLines(ctx, id); err != nil {
			return err
		}
		if err := s.snapshotLines(ctx, tx, id, opname.DivisionID, in.Lines); err != nil {
			return err
		}

		updates := map[string]any{}
		if in.OpnameDate != nil {
			updates["opname_date"] = *in.OpnameDate
		}
		if in.Notes != nil {
			updates["notes"] = in.Notes
		}
		return tx.UpdateOpname(ctx, id, updates)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, in.Actor.ID, "opname:UPDATE", id, map[string]any{"lines": len(in.Lines)})
	return s.repo.GetOpname(ctx, id)
}

// Delete removes a draft session. Confirmed sessions are immutable history.
func (s *Service) Delete(ctx context.Context, id int64, actor shared.Actor) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		opname, err := tx.GetOpnameForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := manageGuard(*opname, actor); err != nil {
			return err
		}
		if err := tx.DeleteLines(ctx, id); err != nil {
			return err
		}
		return tx.DeleteOpname(ctx, id)
	})
	if err != nil {
		return err
	}

	s.record(ctx, actor.ID, "opname:DELETE", id, nil)
	return nil
}

// Confirm finalises a draft session. Every line with a non-zero difference
// emits a variance ledger row, then the item stock is overwritten with the
// counted value. Confirming twice is refused before any row is written.
func (s *Service) Confirm(ctx context.Context, id int64, actor shared.Actor) (*StockOpname, error) {
	var variances int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		opname, err := tx.GetOpnameForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if err := manageGuard(*opname, actor); err != nil {
			return err
		}

		description := fmt.Sprintf("Stock opname %s", opname.OpnameNumber)
		for _, line := range opname.Lines {
			_, txn, err := inventory.Reconcile(ctx, tx, line.ItemID, line.PhysicalStock, line.Difference, actor.ID, description, opname.OpnameDate)
			if err != nil {
				return err
			}
			if txn != nil {
				variances++
			}
		}

		now := time.Now().UTC()
		return tx.UpdateOpname(ctx, id, map[string]any{
			"status":       StatusConfirmed,
			"confirmed_at": now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, actor.ID, "opname:CONFIRM", id, map[string]any{"variances": variances})
	return s.repo.GetOpname(ctx, id)
}

// snapshotLines reads each counted item under lock and inserts the line with
// the current stock as system stock.
func (s *Service) snapshotLines(ctx context.Context, tx TxRepository, opnameID int64, divisionID *int64, lines []LineInput) error {
	for _, line := range lines {
		item, err := tx.GetItemForUpdate(ctx, line.ItemID)
		if err != nil {
			return err
		}
		if !sameScope(item.DivisionID, divisionID) {
			return fmt.Errorf("item %q outside opname scope: %w", item.Name, shared.ErrInvalidQuantity)
		}
		if _, err := tx.InsertLine(ctx, Line{
			OpnameID:      opnameID,
			ItemID:        line.ItemID,
			SystemStock:   item.Stock,
			PhysicalStock: line.PhysicalStock,
			Difference:    line.PhysicalStock - item.Stock,
			Notes:         line.Notes,
		}); err != nil {
			return err
		}
	}
	return nil
}

func validateLines(lines []LineInput) error {
	if len(lines) == 0 {
		return fmt.Errorf("at least one line required: %w", shared.ErrInvalidQuantity)
	}
	seen := make(map[int64]struct{}, len(lines))
	for i, line := range lines {
		if line.PhysicalStock < 0 {
			return fmt.Errorf("line %d: %w", i+1, shared.ErrInvalidQuantity)
		}
		if _, dup := seen[line.ItemID]; dup {
			return fmt.Errorf("line %d: duplicate item %d: %w", i+1, line.ItemID, shared.ErrInvalidQuantity)
		}
		seen[line.ItemID] = struct{}{}
	}
	return nil
}

// canManageScope is stricter than viewing: a warehouse-scoped session needs a
// warehouse actor, a division-scoped one a member or a warehouse actor.
func canManageScope(actor shared.Actor, divisionID *int64) bool {
	if divisionID == nil {
		return actor.IsWarehouse()
	}
	return actor.IsWarehouse() || actor.InDivision(*divisionID)
}

func manageGuard(opname StockOpname, actor shared.Actor) error {
	if opname.CreatorID != actor.ID || !canManageScope(actor, opname.DivisionID) {
		return fmt.Errorf("opname %d: %w", opname.ID, shared.ErrUnauthorizedScope)
	}
	if !opname.Status.CanManage() {
		return fmt.Errorf("opname %d is %s: %w", opname.ID, opname.Status, shared.ErrInvalidTransition)
	}
	return nil
}

func sameScope(a, b *int64) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return *a == *b
}

func (s *Service) record(ctx context.Context, actorID int64, action string, opnameID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "stock_opname",
		EntityID: fmt.Sprintf("%d", opnameID),
		Meta:     meta,
	})
}
