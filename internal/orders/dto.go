package orders

import (
	"time"

	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

// LineInput is one requested item line on create or edit.
type LineInput struct {
	ItemID   int64 `json:"item_id" validate:"required"`
	Quantity int64 `json:"quantity" validate:"required,gt=0"`
}

// CreateInput describes a new warehouse order.
type CreateInput struct {
	DivisionID  int64
	Actor       shared.Actor
	Description *string
	Lines       []LineInput
}

// EditInput replaces the lines and metadata of a Pending or Revision order.
type EditInput struct {
	Actor       shared.Actor
	Description *string
	Notes       *string
	Lines       []LineInput
}

// ReviseInput sends a pending order back to the requester.
type ReviseInput struct {
	Actor shared.Actor
	Notes *string
}

// RejectInput refuses an order and restores reserved stock.
type RejectInput struct {
	Actor  shared.Actor
	Reason string
}

// DeliverInput marks a confirmed order as delivered.
type DeliverInput struct {
	Actor          shared.Actor
	DeliveryDate   time.Time
	DeliveryImages []string
}

// ReceiveLine overrides the received quantity for one cart line; lines not
// listed default to the delivered quantity.
type ReceiveLine struct {
	CartID   int64
	Quantity int64
}

// ReceiveInput finishes a delivered order at the destination division.
type ReceiveInput struct {
	Actor         shared.Actor
	ReceiptDate   time.Time
	ReceiptImages []string
	Lines         []ReceiveLine
}
