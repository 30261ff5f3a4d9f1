package orders

import (
	"fmt"

	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

func validateLines(lines []LineInput) error {
	if len(lines) == 0 {
		return fmt.Errorf("at least one line required: %w", shared.ErrInvalidQuantity)
	}
	seen := make(map[int64]struct{}, len(lines))
	for i, line := range lines {
		if line.Quantity <= 0 {
			return fmt.Errorf("line %d: %w", i+1, shared.ErrInvalidQuantity)
		}
		if _, dup := seen[line.ItemID]; dup {
			return fmt.Errorf("line %d: duplicate item %d: %w", i+1, line.ItemID, shared.ErrInvalidQuantity)
		}
		seen[line.ItemID] = struct{}{}
	}
	return nil
}

func validateReceiveLines(order *WarehouseOrder, lines []ReceiveLine) error {
	carts := make(map[int64]Cart, len(order.Carts))
	for _, cart := range order.Carts {
		carts[cart.ID] = cart
	}
	for i, line := range lines {
		if _, ok := carts[line.CartID]; !ok {
			return fmt.Errorf("receive line %d: cart %d: %w", i+1, line.CartID, shared.ErrNotFound)
		}
		if line.Quantity <= 0 {
			return fmt.Errorf("receive line %d: %w", i+1, shared.ErrInvalidQuantity)
		}
	}
	return nil
}
