package shared

import "errors"

// Domain error kinds shared by the inventory core. Callers distinguish them
// with errors.Is; packages wrap them with context via fmt.Errorf("…: %w").
var (
	// ErrNotFound indicates a referenced item, order or opname does not exist.
	ErrNotFound = errors.New("not found")
	// ErrInvalidQuantity indicates a zero or negative quantity.
	ErrInvalidQuantity = errors.New("quantity must be greater than zero")
	// ErrInsufficientStock indicates a debit exceeding current stock.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidTransition indicates an operation not permitted by the current status.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrUnauthorizedScope indicates the actor's division does not match the resource.
	ErrUnauthorizedScope = errors.New("actor division does not match resource scope")
	// ErrMissingReference indicates a conversion with no resolvable base-unit reference.
	ErrMissingReference = errors.New("no base unit reference resolvable")
	// ErrValidation indicates a malformed request field outside the quantity rules.
	ErrValidation = errors.New("invalid request field")
)
