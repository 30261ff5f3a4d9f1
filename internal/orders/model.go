// Package orders drives the warehouse fulfillment workflow: reservation at
// submission, approval, delivery and division-side receipt.
package orders

import (
	"time"

	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

// Status represents the lifecycle of a warehouse order.
type Status string

const (
	StatusPending   Status = "PENDING"   // Submitted, stock reserved
	StatusRevision  Status = "REVISION"  // Sent back to the requester for changes
	StatusConfirmed Status = "CONFIRMED" // Approved, awaiting delivery
	StatusDelivered Status = "DELIVERED" // Goods left the warehouse
	StatusFinished  Status = "FINISHED"  // Goods received by the division
	StatusRejected  Status = "REJECTED"  // Refused, stock restored
)

// transitions is the closed transition table. Reject is handled outside the
// table: it is permitted from any status.
var transitions = map[Status][]Status{
	StatusPending:   {StatusConfirmed, StatusRevision},
	StatusRevision:  {StatusConfirmed},
	StatusConfirmed: {StatusDelivered},
	StatusDelivered: {StatusFinished},
	StatusFinished:  {},
	StatusRejected:  {},
}

// IsValid checks if the status is valid.
func (s Status) IsValid() bool {
	_, ok := transitions[s]
	return ok
}

// CanTransition reports whether the table permits moving to the target status.
func (s Status) CanTransition(to Status) bool {
	if to == StatusRejected {
		return true
	}
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// CanEdit checks if the order lines can still be replaced in this status.
func (s Status) CanEdit() bool {
	return s == StatusPending || s == StatusRevision
}

// CanConfirm checks if the order can be approved.
func (s Status) CanConfirm() bool {
	return s == StatusPending || s == StatusRevision
}

// CanDeliver checks if the order can be marked delivered.
func (s Status) CanDeliver() bool {
	return s == StatusConfirmed
}

// CanReceive checks if the order can be received by the division.
func (s Status) CanReceive() bool {
	return s == StatusDelivered
}

// WarehouseOrder is a fulfillment request from a division against warehouse
// stock. Stock for every cart line is reserved the moment the order is
// created, not at delivery.
type WarehouseOrder struct {
	ID             int64      `json:"id" db:"id"`
	OrderNumber    string     `json:"order_number" db:"order_number"`
	DivisionID     int64      `json:"division_id" db:"division_id"`
	RequesterID    int64      `json:"requester_id" db:"requester_id"`
	Status         Status     `json:"status" db:"status"`
	Description    *string    `json:"description,omitempty" db:"description"`
	Notes          *string    `json:"notes,omitempty" db:"notes"`
	AcceptedDate   *time.Time `json:"accepted_date,omitempty" db:"accepted_date"`
	DeliveryDate   *time.Time `json:"delivery_date,omitempty" db:"delivery_date"`
	DeliveredBy    *int64     `json:"delivered_by,omitempty" db:"delivered_by"`
	DeliveryImages []string   `json:"delivery_images,omitempty" db:"delivery_images"`
	ReceiptDate    *time.Time `json:"receipt_date,omitempty" db:"receipt_date"`
	ReceivedBy     *int64     `json:"received_by,omitempty" db:"received_by"`
	ReceiptImages  []string   `json:"receipt_images,omitempty" db:"receipt_images"`
	CreatedAt      time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
	Carts          []Cart     `json:"carts,omitempty" db:"-"`
}

// Cart is one requested item line.
type Cart struct {
	ID                int64  `json:"id" db:"id"`
	OrderID           int64  `json:"order_id" db:"order_id"`
	ItemID            int64  `json:"item_id" db:"item_id"`
	Quantity          int64  `json:"quantity" db:"quantity"`
	DeliveredQuantity *int64 `json:"delivered_quantity,omitempty" db:"delivered_quantity"`
	ReceivedQuantity  *int64 `json:"received_quantity,omitempty" db:"received_quantity"`
}

// Reject is the audit record of a rejection.
type Reject struct {
	ID        int64     `json:"id" db:"id"`
	OrderID   int64     `json:"order_id" db:"order_id"`
	ActorID   int64     `json:"actor_id" db:"actor_id"`
	Reason    string    `json:"reason" db:"reason"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// CanEdit reports whether the actor may edit the order: only the requester,
// and only while the lines are still replaceable.
func CanEdit(o WarehouseOrder, actor shared.Actor) bool {
	return o.Status.CanEdit() && o.RequesterID == actor.ID
}

// CanConfirm reports whether the actor may approve the order. Approval is a
// warehouse-side action.
func CanConfirm(o WarehouseOrder, actor shared.Actor) bool {
	return o.Status.CanConfirm() && actor.IsWarehouse()
}

// CanDeliver reports whether the actor may mark the order delivered.
func CanDeliver(o WarehouseOrder, actor shared.Actor) bool {
	return o.Status.CanDeliver() && actor.IsWarehouse()
}

// CanReceive reports whether the actor may receive the order into its
// destination division.
func CanReceive(o WarehouseOrder, actor shared.Actor) bool {
	return o.Status.CanReceive() && actor.InDivision(o.DivisionID)
}

// CanView reports whether the actor may see the order: warehouse actors see
// everything, division actors see their own division's orders.
func CanView(o WarehouseOrder, actor shared.Actor) bool {
	return actor.IsWarehouse() || actor.InDivision(o.DivisionID)
}

// ListFilter narrows order listings.
type ListFilter struct {
	DivisionID *int64
	Status     Status
	Limit      int
	Offset     int
}
