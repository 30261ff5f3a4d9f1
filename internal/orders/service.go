package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lumbung-erp/lumbung-erp/internal/conversion"
	"github.com/lumbung-erp/lumbung-erp/internal/inventory"
	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// IdempotencyPort guards delivery and receipt against duplicate submission.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Service owns the warehouse order lifecycle. Warehouse stock is debited the
// moment an order is created and restored whenever the order is edited,
// deleted or rejected; the ledger row for the outflow is written at delivery.
type Service struct {
	repo  Repository
	audit AuditPort
	idem  IdempotencyPort
}

// NewService builds Service.
func NewService(repo Repository, audit AuditPort, idem IdempotencyPort) *Service {
	return &Service{repo: repo, audit: audit, idem: idem}
}

// Get returns one order if the actor may see it.
func (s *Service) Get(ctx context.Context, id int64, actor shared.Actor) (*WarehouseOrder, error) {
	order, err := s.repo.GetOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	if !CanView(*order, actor) {
		return nil, fmt.Errorf("order %d: %w", id, shared.ErrUnauthorizedScope)
	}
	return order, nil
}

// List returns orders visible to the actor. Division actors are pinned to
// their own division.
func (s *Service) List(ctx context.Context, filter ListFilter, actor shared.Actor) ([]WarehouseOrder, int, error) {
	if !actor.IsWarehouse() {
		filter.DivisionID = actor.DivisionID
	}
	return s.repo.List(ctx, filter)
}

// Create submits a new order and reserves warehouse stock for every line.
func (s *Service) Create(ctx context.Context, in CreateInput) (*WarehouseOrder, error) {
	if err := validateLines(in.Lines); err != nil {
		return nil, err
	}
	if !in.Actor.InDivision(in.DivisionID) {
		return nil, fmt.Errorf("division %d: %w", in.DivisionID, shared.ErrUnauthorizedScope)
	}

	number, err := s.repo.NextOrderNumber(ctx, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	var orderID int64
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		orderID, err = tx.InsertOrder(ctx, WarehouseOrder{
			OrderNumber: number,
			DivisionID:  in.DivisionID,
			RequesterID: in.Actor.ID,
			Status:      StatusPending,
			Description: in.Description,
		})
		if err != nil {
			return err
		}
		return s.reserveLines(ctx, tx, orderID, in.Lines)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, in.Actor.ID, "orders:CREATE", orderID, map[string]any{"order_number": number, "lines": len(in.Lines)})
	return s.repo.GetOrder(ctx, orderID)
}

// Edit replaces the lines of a Pending or Revision order. The old reservation
// is released in full before the new lines are reserved, so a failed edit
// rolls back to the original reservation.
func (s *Service) Edit(ctx context.Context, id int64, in EditInput) (*WarehouseOrder, error) {
	if err := validateLines(in.Lines); err != nil {
		return nil, err
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order.RequesterID != in.Actor.ID {
			return fmt.Errorf("order %d: %w", id, shared.ErrUnauthorizedScope)
		}
		if !order.Status.CanEdit() {
			return fmt.Errorf("order %d is %s: %w", id, order.Status, shared.ErrInvalidTransition)
		}

		if err := s.releaseCarts(ctx, tx, order.Carts); err != nil {
			return err
		}
		if err := tx.DeleteCarts(ctx, id); err != nil {
			return err
		}
		if err := s.reserveLines(ctx, tx, id, in.Lines); err != nil {
			return err
		}

		updates := map[string]any{}
		if in.Description != nil {
			updates["description"] = in.Description
		}
		if in.Notes != nil {
			updates["notes"] = in.Notes
		}
		return tx.UpdateOrder(ctx, id, updates)
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, in.Actor.ID, "orders:EDIT", id, map[string]any{"lines": len(in.Lines)})
	return s.repo.GetOrder(ctx, id)
}

// Delete removes a Pending or Revision order and restores its reservation.
func (s *Service) Delete(ctx context.Context, id int64, actor shared.Actor) error {
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if order.RequesterID != actor.ID {
			return fmt.Errorf("order %d: %w", id, shared.ErrUnauthorizedScope)
		}
		if !order.Status.CanEdit() {
			return fmt.Errorf("order %d is %s: %w", id, order.Status, shared.ErrInvalidTransition)
		}
		if err := s.releaseCarts(ctx, tx, order.Carts); err != nil {
			return err
		}
		if err := tx.DeleteCarts(ctx, id); err != nil {
			return err
		}
		return tx.DeleteOrder(ctx, id)
	})
	if err != nil {
		return err
	}

	s.record(ctx, actor.ID, "orders:DELETE", id, nil)
	return nil
}

// Confirm approves a Pending or Revision order.
func (s *Service) Confirm(ctx context.Context, id int64, actor shared.Actor) (*WarehouseOrder, error) {
	err := s.transition(ctx, id, func(order *WarehouseOrder) (map[string]any, error) {
		if !CanConfirm(*order, actor) {
			return nil, transitionErr(order, actor, order.Status.CanConfirm())
		}
		now := time.Now().UTC()
		return map[string]any{"status": StatusConfirmed, "accepted_date": now}, nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, actor.ID, "orders:CONFIRM", id, nil)
	return s.repo.GetOrder(ctx, id)
}

// Revise sends a Pending order back to the requester for changes.
func (s *Service) Revise(ctx context.Context, id int64, in ReviseInput) (*WarehouseOrder, error) {
	err := s.transition(ctx, id, func(order *WarehouseOrder) (map[string]any, error) {
		if !in.Actor.IsWarehouse() || !order.Status.CanTransition(StatusRevision) {
			return nil, transitionErr(order, in.Actor, order.Status.CanTransition(StatusRevision))
		}
		updates := map[string]any{"status": StatusRevision}
		if in.Notes != nil {
			updates["notes"] = in.Notes
		}
		return updates, nil
	})
	if err != nil {
		return nil, err
	}
	s.record(ctx, in.Actor.ID, "orders:REVISE", id, nil)
	return s.repo.GetOrder(ctx, id)
}

// Reject refuses an order from any non-terminal status and restores the
// reserved stock. A rejection record keeps the reason.
func (s *Service) Reject(ctx context.Context, id int64, in RejectInput) (*WarehouseOrder, error) {
	if in.Reason == "" {
		return nil, fmt.Errorf("reject reason required: %w", shared.ErrValidation)
	}
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !in.Actor.IsWarehouse() {
			return fmt.Errorf("order %d: %w", id, shared.ErrUnauthorizedScope)
		}
		if order.Status == StatusFinished || order.Status == StatusRejected {
			return fmt.Errorf("order %d is %s: %w", id, order.Status, shared.ErrInvalidTransition)
		}
		if order.Status == StatusDelivered {
			// Goods already left the warehouse and the OUT rows stand, so
			// the return is booked as IN movements rather than a release.
			if err := s.returnCarts(ctx, tx, order, in.Actor.ID); err != nil {
				return err
			}
		} else if err := s.releaseCarts(ctx, tx, order.Carts); err != nil {
			return err
		}
		if _, err := tx.InsertReject(ctx, Reject{OrderID: id, ActorID: in.Actor.ID, Reason: in.Reason}); err != nil {
			return err
		}
		return tx.UpdateOrder(ctx, id, map[string]any{"status": StatusRejected})
	})
	if err != nil {
		return nil, err
	}

	s.record(ctx, in.Actor.ID, "orders:REJECT", id, map[string]any{"reason": in.Reason})
	return s.repo.GetOrder(ctx, id)
}

// Deliver marks a Confirmed order as delivered and writes the OUT ledger row
// for every line. Stock was already debited at creation, so delivery only
// records the movement.
func (s *Service) Deliver(ctx context.Context, id int64, in DeliverInput) (*WarehouseOrder, error) {
	key := fmt.Sprintf("orders:deliver:%d", id)
	if s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, key, "orders"); err != nil {
			return nil, err
		}
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !CanDeliver(*order, in.Actor) {
			return transitionErr(order, in.Actor, order.Status.CanDeliver())
		}

		date := in.DeliveryDate
		if date.IsZero() {
			date = time.Now().UTC()
		}
		for _, cart := range order.Carts {
			if _, err := inventory.LogMovement(ctx, tx, inventory.ItemTransaction{
				ItemID:      cart.ItemID,
				Type:        inventory.TransactionTypeOut,
				Quantity:    cart.Quantity,
				ActorID:     in.Actor.ID,
				Description: fmt.Sprintf("Delivered for %s", order.OrderNumber),
				Date:        date,
			}); err != nil {
				return err
			}
			if err := tx.SetCartDelivered(ctx, cart.ID, cart.Quantity); err != nil {
				return err
			}
		}

		return tx.UpdateOrder(ctx, id, map[string]any{
			"status":          StatusDelivered,
			"delivery_date":   date,
			"delivered_by":    in.Actor.ID,
			"delivery_images": in.DeliveryImages,
		})
	})
	if err != nil {
		if s.idem != nil {
			_ = s.idem.Delete(ctx, key)
		}
		return nil, err
	}

	s.record(ctx, in.Actor.ID, "orders:DELIVER", id, nil)
	return s.repo.GetOrder(ctx, id)
}

// Receive finishes a Delivered order at the destination division. Each line
// credits the division counterpart of the warehouse item, cloning it with
// zero stock when it does not exist yet, and repairs the pack hierarchy so
// conversions on the division side resolve.
func (s *Service) Receive(ctx context.Context, id int64, in ReceiveInput) (*WarehouseOrder, error) {
	key := fmt.Sprintf("orders:receive:%d", id)
	if s.idem != nil {
		if err := s.idem.CheckAndInsert(ctx, key, "orders"); err != nil {
			return nil, err
		}
	}

	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		if !CanReceive(*order, in.Actor) {
			return transitionErr(order, in.Actor, order.Status.CanReceive())
		}
		if err := validateReceiveLines(order, in.Lines); err != nil {
			return err
		}

		overrides := make(map[int64]int64, len(in.Lines))
		for _, line := range in.Lines {
			overrides[line.CartID] = line.Quantity
		}

		date := in.ReceiptDate
		if date.IsZero() {
			date = time.Now().UTC()
		}
		for _, cart := range order.Carts {
			quantity := cart.Quantity
			if cart.DeliveredQuantity != nil {
				quantity = *cart.DeliveredQuantity
			}
			if override, ok := overrides[cart.ID]; ok {
				quantity = override
			}

			if err := s.receiveLine(ctx, tx, order, cart, quantity, in.Actor, date); err != nil {
				return err
			}
			if err := tx.SetCartReceived(ctx, cart.ID, quantity); err != nil {
				return err
			}
		}

		return tx.UpdateOrder(ctx, id, map[string]any{
			"status":         StatusFinished,
			"receipt_date":   date,
			"received_by":    in.Actor.ID,
			"receipt_images": in.ReceiptImages,
		})
	})
	if err != nil {
		if s.idem != nil {
			_ = s.idem.Delete(ctx, key)
		}
		return nil, err
	}

	s.record(ctx, in.Actor.ID, "orders:RECEIVE", id, nil)
	return s.repo.GetOrder(ctx, id)
}

// receiveLine credits one cart line into the division scope.
func (s *Service) receiveLine(ctx context.Context, tx TxRepository, order *WarehouseOrder, cart Cart, quantity int64, actor shared.Actor, date time.Time) error {
	warehouseItem, err := tx.GetItemForUpdate(ctx, cart.ItemID)
	if err != nil {
		return err
	}

	divisionItem, err := tx.FindDivisionCounterpart(ctx, order.DivisionID, warehouseItem.ID)
	if err != nil {
		if !errors.Is(err, shared.ErrNotFound) {
			return err
		}
		divisionItem, err = tx.InsertItem(ctx, inventory.Item{
			DivisionID:          &order.DivisionID,
			CategoryID:          warehouseItem.CategoryID,
			Name:                warehouseItem.Name,
			Unit:                warehouseItem.Unit,
			Description:         warehouseItem.Description,
			Stock:               0,
			Multiplier:          warehouseItem.Multiplier,
			MainReferenceItemID: &warehouseItem.ID,
		})
		if err != nil {
			return err
		}
	}

	divisionItem, _, err = inventory.Apply(ctx, tx, inventory.Adjustment{
		ItemID:      divisionItem.ID,
		Delta:       quantity,
		Type:        inventory.TransactionTypeIn,
		ActorID:     actor.ID,
		Description: fmt.Sprintf("Received from %s", order.OrderNumber),
		Date:        date,
	})
	if err != nil {
		return err
	}

	_, err = conversion.RepairHierarchy(ctx, tx, order.DivisionID, warehouseItem, divisionItem)
	return err
}

// reserveLines debits warehouse stock for every line and inserts the carts.
func (s *Service) reserveLines(ctx context.Context, tx TxRepository, orderID int64, lines []LineInput) error {
	for _, line := range lines {
		item, err := tx.GetItemForUpdate(ctx, line.ItemID)
		if err != nil {
			return err
		}
		if !item.IsWarehouse() {
			return fmt.Errorf("item %q is not warehouse stock: %w", item.Name, shared.ErrInvalidQuantity)
		}
		if _, err := inventory.Reserve(ctx, tx, line.ItemID, line.Quantity); err != nil {
			return err
		}
		if _, err := tx.InsertCart(ctx, Cart{OrderID: orderID, ItemID: line.ItemID, Quantity: line.Quantity}); err != nil {
			return err
		}
	}
	return nil
}

// releaseCarts restores the reserved stock of every cart line.
func (s *Service) releaseCarts(ctx context.Context, tx TxRepository, carts []Cart) error {
	for _, cart := range carts {
		if _, err := inventory.Release(ctx, tx, cart.ItemID, cart.Quantity); err != nil {
			return err
		}
	}
	return nil
}

// returnCarts credits delivered goods back into warehouse stock with IN rows
// so the ledger keeps matching the stock level.
func (s *Service) returnCarts(ctx context.Context, tx TxRepository, order *WarehouseOrder, actorID int64) error {
	for _, cart := range order.Carts {
		quantity := cart.Quantity
		if cart.DeliveredQuantity != nil {
			quantity = *cart.DeliveredQuantity
		}
		if quantity == 0 {
			continue
		}
		if _, _, err := inventory.Apply(ctx, tx, inventory.Adjustment{
			ItemID:      cart.ItemID,
			Delta:       quantity,
			Type:        inventory.TransactionTypeIn,
			ActorID:     actorID,
			Description: fmt.Sprintf("Returned on rejection of %s", order.OrderNumber),
		}); err != nil {
			return err
		}
	}
	return nil
}

// transition runs a simple status change inside a transaction.
func (s *Service) transition(ctx context.Context, id int64, fn func(*WarehouseOrder) (map[string]any, error)) error {
	return s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		order, err := tx.GetOrderForUpdate(ctx, id)
		if err != nil {
			return err
		}
		updates, err := fn(order)
		if err != nil {
			return err
		}
		return tx.UpdateOrder(ctx, id, updates)
	})
}

// transitionErr distinguishes a forbidden actor from an impossible status
// move.
func transitionErr(order *WarehouseOrder, actor shared.Actor, statusAllows bool) error {
	if statusAllows {
		return fmt.Errorf("order %d: %w", order.ID, shared.ErrUnauthorizedScope)
	}
	return fmt.Errorf("order %d is %s: %w", order.ID, order.Status, shared.ErrInvalidTransition)
}

func (s *Service) record(ctx context.Context, actorID int64, action string, orderID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "warehouse_order",
		EntityID: fmt.Sprintf("%d", orderID),
		Meta:     meta,
	})
}
