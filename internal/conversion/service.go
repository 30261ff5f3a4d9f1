package conversion

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lumbung-erp/lumbung-erp/internal/inventory"
	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

// TxRunner opens an atomic unit of work over the item store.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(context.Context, inventory.TxStore) error) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service performs pack-to-unit stock conversions.
type Service struct {
	repo  TxRunner
	audit AuditPort
}

// NewService builds Service.
func NewService(repo TxRunner, audit AuditPort) *Service {
	return &Service{repo: repo, audit: audit}
}

// ConvertInput describes a conversion request.
type ConvertInput struct {
	ItemID   int64
	Quantity int64
	Actor    shared.Actor
	Date     time.Time
}

// ConvertResult carries both sides of a completed conversion.
type ConvertResult struct {
	Source         inventory.Item
	Target         inventory.Item
	OutTransaction inventory.ItemTransaction
	InTransaction  inventory.ItemTransaction
	TargetCreated  bool
}

// Convert breaks quantity units of a pack item into its base unit. The
// target receives quantity * multiplier base units. When a division pack has
// no reference yet, the warehouse hierarchy is walked and the missing
// division counterpart of the base unit is cloned with zero stock; the new
// link is persisted so later conversions resolve directly.
func (s *Service) Convert(ctx context.Context, in ConvertInput) (ConvertResult, error) {
	if in.Quantity <= 0 {
		return ConvertResult{}, shared.ErrInvalidQuantity
	}
	if in.Date.IsZero() {
		in.Date = time.Now().UTC()
	}

	var result ConvertResult
	err := s.repo.WithTx(ctx, func(ctx context.Context, store inventory.TxStore) error {
		source, err := store.GetItemForUpdate(ctx, in.ItemID)
		if err != nil {
			return err
		}
		// Division stock converts only by its own division; warehouse items
		// (nil division) are open to everyone.
		if source.DivisionID != nil && !in.Actor.InDivision(*source.DivisionID) {
			return fmt.Errorf("item %d: %w", source.ID, shared.ErrUnauthorizedScope)
		}
		if !source.IsPack() {
			return fmt.Errorf("item %q is not a pack: %w", source.Name, shared.ErrMissingReference)
		}
		if source.Stock < in.Quantity {
			return fmt.Errorf("item %q: %w", source.Name, shared.ErrInsufficientStock)
		}

		target, created, err := s.resolveTarget(ctx, store, source)
		if err != nil {
			return err
		}

		quantityToAdd := in.Quantity * source.Multiplier

		source, outTxn, err := inventory.Apply(ctx, store, inventory.Adjustment{
			ItemID:      source.ID,
			Delta:       -in.Quantity,
			Type:        inventory.TransactionTypeConversionOut,
			ActorID:     in.Actor.ID,
			Description: fmt.Sprintf("Converted to %s", target.Name),
			Date:        in.Date,
		})
		if err != nil {
			return err
		}

		target, inTxn, err := inventory.Apply(ctx, store, inventory.Adjustment{
			ItemID:      target.ID,
			Delta:       quantityToAdd,
			Type:        inventory.TransactionTypeConversionIn,
			ActorID:     in.Actor.ID,
			Description: fmt.Sprintf("Converted from %s", source.Name),
			Date:        in.Date,
		})
		if err != nil {
			return err
		}

		result = ConvertResult{
			Source:         source,
			Target:         target,
			OutTransaction: outTxn,
			InTransaction:  inTxn,
			TargetCreated:  created,
		}
		return nil
	})
	if err != nil {
		return ConvertResult{}, err
	}

	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  in.Actor.ID,
			Action:   "inventory:CONVERT",
			Entity:   "item",
			EntityID: fmt.Sprintf("%d", in.ItemID),
			Meta: map[string]any{
				"quantity":  in.Quantity,
				"target_id": result.Target.ID,
				"credited":  result.InTransaction.Quantity,
			},
		})
	}
	return result, nil
}

// resolveTarget returns the base unit item receiving converted stock,
// cloning the division counterpart when it does not exist yet.
func (s *Service) resolveTarget(ctx context.Context, store inventory.TxStore, source inventory.Item) (inventory.Item, bool, error) {
	if source.ReferenceItemID != nil {
		target, err := store.GetItemForUpdate(ctx, *source.ReferenceItemID)
		if err != nil {
			return inventory.Item{}, false, err
		}
		return target, false, nil
	}

	if source.DivisionID == nil || source.MainReferenceItemID == nil {
		return inventory.Item{}, false, fmt.Errorf("item %q: %w", source.Name, shared.ErrMissingReference)
	}

	warehousePack, err := store.GetItemForUpdate(ctx, *source.MainReferenceItemID)
	if err != nil {
		return inventory.Item{}, false, err
	}
	if warehousePack.ReferenceItemID == nil {
		return inventory.Item{}, false, fmt.Errorf("item %q: %w", warehousePack.Name, shared.ErrMissingReference)
	}
	warehouseBase, err := store.GetItemForUpdate(ctx, *warehousePack.ReferenceItemID)
	if err != nil {
		return inventory.Item{}, false, err
	}

	created := false
	target, err := store.FindDivisionCounterpart(ctx, *source.DivisionID, warehouseBase.ID)
	if errors.Is(err, shared.ErrNotFound) {
		target, err = store.InsertItem(ctx, inventory.Item{
			DivisionID:          source.DivisionID,
			CategoryID:          warehouseBase.CategoryID,
			Name:                warehouseBase.Name,
			Unit:                warehouseBase.Unit,
			Description:         warehouseBase.Description,
			Stock:               0,
			Multiplier:          warehouseBase.Multiplier,
			MainReferenceItemID: &warehouseBase.ID,
		})
		created = true
	}
	if err != nil {
		return inventory.Item{}, false, err
	}

	if err := store.SetItemReference(ctx, source.ID, target.ID); err != nil {
		return inventory.Item{}, false, err
	}

	return target, created, nil
}
