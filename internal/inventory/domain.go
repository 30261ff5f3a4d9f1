package inventory

import "time"

// TransactionType enumerates supported stock movements. Quantity on a ledger
// row is always positive; direction is carried by the type.
type TransactionType string

const (
	// TransactionTypeIn represents an inbound movement.
	TransactionTypeIn TransactionType = "IN"
	// TransactionTypeOut represents an outbound movement.
	TransactionTypeOut TransactionType = "OUT"
	// TransactionTypeConversionIn credits a base unit item from a pack conversion.
	TransactionTypeConversionIn TransactionType = "CONVERSION_IN"
	// TransactionTypeConversionOut debits a pack item during conversion.
	TransactionTypeConversionOut TransactionType = "CONVERSION_OUT"
	// TransactionTypeOpnameMore records a positive physical-count variance.
	TransactionTypeOpnameMore TransactionType = "OPNAME_MORE"
	// TransactionTypeOpnameLess records a negative physical-count variance.
	TransactionTypeOpnameLess TransactionType = "OPNAME_LESS"
	// TransactionTypeOpname marks an opname event without direction.
	TransactionTypeOpname TransactionType = "OPNAME"
)

// Direction returns +1 for inbound types, -1 for outbound types and 0 for
// the directionless OPNAME marker.
func (t TransactionType) Direction() int {
	switch t {
	case TransactionTypeIn, TransactionTypeConversionIn, TransactionTypeOpnameMore:
		return 1
	case TransactionTypeOut, TransactionTypeConversionOut, TransactionTypeOpnameLess:
		return -1
	default:
		return 0
	}
}

// Item is a stock-keeping unit scoped either to the warehouse (nil division)
// or to a division.
type Item struct {
	ID          int64      `json:"id" db:"id"`
	DivisionID  *int64     `json:"division_id,omitempty" db:"division_id"`
	CategoryID  *int64     `json:"category_id,omitempty" db:"category_id"`
	Name        string     `json:"name" db:"name"`
	Unit        string     `json:"unit" db:"unit"`
	Description *string    `json:"description,omitempty" db:"description"`
	Stock       int64      `json:"stock" db:"stock"`
	Multiplier  int64      `json:"multiplier" db:"multiplier"`
	// ReferenceItemID points at the base unit item this pack converts into,
	// within the same scope.
	ReferenceItemID *int64 `json:"reference_item_id,omitempty" db:"reference_item_id"`
	// MainReferenceItemID points from a division clone back to the warehouse
	// item it mirrors.
	MainReferenceItemID *int64    `json:"main_reference_item_id,omitempty" db:"main_reference_item_id"`
	CreatedAt           time.Time `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time `json:"updated_at" db:"updated_at"`
}

// IsPack reports whether the item bundles more than one base unit.
func (i Item) IsPack() bool {
	return i.Multiplier > 1
}

// IsWarehouse reports whether the item is warehouse scoped.
func (i Item) IsWarehouse() bool {
	return i.DivisionID == nil
}

// ItemTransaction is one append-only ledger entry. Rows are never updated or
// deleted.
type ItemTransaction struct {
	ID          int64           `json:"id" db:"id"`
	ItemID      int64           `json:"item_id" db:"item_id"`
	Type        TransactionType `json:"type" db:"tx_type"`
	Quantity    int64           `json:"quantity" db:"quantity"`
	ActorID     int64           `json:"actor_id" db:"actor_id"`
	Description string          `json:"description" db:"description"`
	Date        time.Time       `json:"date" db:"tx_date"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// ItemFilter narrows item listings.
type ItemFilter struct {
	DivisionID    *int64
	WarehouseOnly bool
	Search        string
	Limit         int
	Offset        int
}

// TransactionFilter narrows ledger listings for one item.
type TransactionFilter struct {
	ItemID int64
	From   time.Time
	To     time.Time
	Limit  int
}

// DivisionStockSummary aggregates stock per division for the dashboard layer.
type DivisionStockSummary struct {
	DivisionID *int64 `json:"division_id"`
	ItemCount  int64  `json:"item_count"`
	TotalStock int64  `json:"total_stock"`
}
