// Package opname captures periodic physical stock counts and reconciles the
// recorded stock against the counted values.
package opname

import (
	"time"

	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

// Status represents the lifecycle of a stock opname session.
type Status string

const (
	// StatusDraft is an open count; lines can still be replaced.
	StatusDraft Status = "DRAFT"
	// StatusConfirmed is a finalised count whose variances hit the ledger.
	StatusConfirmed Status = "CONFIRMED"
)

// CanManage checks if the session can still be edited or deleted.
func (s Status) CanManage() bool {
	return s == StatusDraft
}

// CanConfirm checks if the session can be finalised.
func (s Status) CanConfirm() bool {
	return s == StatusDraft
}

// StockOpname is one physical-count session, scoped to the warehouse (nil
// division) or to a division.
type StockOpname struct {
	ID           int64      `json:"id" db:"id"`
	OpnameNumber string     `json:"opname_number" db:"opname_number"`
	DivisionID   *int64     `json:"division_id,omitempty" db:"division_id"`
	CreatorID    int64      `json:"creator_id" db:"creator_id"`
	Status       Status     `json:"status" db:"status"`
	OpnameDate   time.Time  `json:"opname_date" db:"opname_date"`
	Notes        *string    `json:"notes,omitempty" db:"notes"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
	Lines        []Line     `json:"lines,omitempty" db:"-"`
	ConfirmedAt  *time.Time `json:"confirmed_at,omitempty" db:"confirmed_at"`
}

// Line is one counted item. SystemStock is snapshotted from the item at
// creation and on every update; Difference is PhysicalStock - SystemStock.
type Line struct {
	ID            int64   `json:"id" db:"id"`
	OpnameID      int64   `json:"opname_id" db:"opname_id"`
	ItemID        int64   `json:"item_id" db:"item_id"`
	SystemStock   int64   `json:"system_stock" db:"system_stock"`
	PhysicalStock int64   `json:"physical_stock" db:"physical_stock"`
	Difference    int64   `json:"difference" db:"difference"`
	Notes         *string `json:"notes,omitempty" db:"notes"`
}

// CanManage reports whether the actor may edit, delete or confirm the
// session: only the creator, with matching scope, while still draft.
func CanManage(o StockOpname, actor shared.Actor) bool {
	return o.Status.CanManage() && o.CreatorID == actor.ID && actor.CanAccessScope(o.DivisionID)
}

// CanView reports whether the actor may see the session.
func CanView(o StockOpname, actor shared.Actor) bool {
	return actor.CanAccessScope(o.DivisionID)
}

// ListFilter narrows opname listings.
type ListFilter struct {
	DivisionID    *int64
	WarehouseOnly bool
	Status        Status
	Limit         int
	Offset        int
}
