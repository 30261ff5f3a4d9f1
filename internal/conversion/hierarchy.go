// Package conversion converts stock between pack items and their base units
// and keeps the pack/unit reference graph consistent across division clones.
package conversion

import (
	"context"
	"errors"

	"github.com/lumbung-erp/lumbung-erp/internal/inventory"
	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

// ReferenceUpdate records one reference link set by RepairHierarchy.
type ReferenceUpdate struct {
	ItemID          int64
	ReferenceItemID int64
}

// RepairHierarchy relinks pack/unit references inside a division after a
// warehouse item arrives there. Pack and unit clones can be created in either
// order depending on which order line is received first, so the repair runs
// in both directions and is idempotent.
//
//   - source is a pack: link the division clone to the division counterpart
//     of the warehouse base unit, if that counterpart already exists.
//   - source is a base unit: every warehouse pack converting into it gets its
//     division counterpart pointed at the freshly arrived division base unit.
func RepairHierarchy(ctx context.Context, store inventory.TxStore, divisionID int64, source, divisionItem inventory.Item) ([]ReferenceUpdate, error) {
	updates := []ReferenceUpdate{}

	if source.IsPack() && source.ReferenceItemID != nil && divisionItem.ReferenceItemID == nil {
		counterpart, err := store.FindDivisionCounterpart(ctx, divisionID, *source.ReferenceItemID)
		switch {
		case err == nil:
			updates = append(updates, ReferenceUpdate{ItemID: divisionItem.ID, ReferenceItemID: counterpart.ID})
		case errors.Is(err, shared.ErrNotFound):
			// The base unit has not reached this division yet; the reverse
			// pass links it once it arrives.
		default:
			return nil, err
		}
	}

	if source.Multiplier == 1 {
		packs, err := store.ListPacksReferencing(ctx, source.ID)
		if err != nil {
			return nil, err
		}
		for _, pack := range packs {
			divisionPack, err := store.FindDivisionCounterpart(ctx, divisionID, pack.ID)
			if errors.Is(err, shared.ErrNotFound) {
				continue
			}
			if err != nil {
				return nil, err
			}
			if divisionPack.ReferenceItemID != nil {
				continue
			}
			updates = append(updates, ReferenceUpdate{ItemID: divisionPack.ID, ReferenceItemID: divisionItem.ID})
		}
	}

	for _, update := range updates {
		if err := store.SetItemReference(ctx, update.ItemID, update.ReferenceItemID); err != nil {
			return nil, err
		}
	}
	return updates, nil
}
