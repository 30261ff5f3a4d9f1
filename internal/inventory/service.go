package inventory

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

// RepositoryPort abstracts repository usage for the read surface.
type RepositoryPort interface {
	GetItem(ctx context.Context, id int64) (Item, error)
	ListItems(ctx context.Context, filter ItemFilter) ([]Item, error)
	ListTransactions(ctx context.Context, filter TransactionFilter) ([]ItemTransaction, error)
	StockSummary(ctx context.Context) ([]DivisionStockSummary, error)
}

// Service exposes the inventory read surface. Stock mutations never go
// through here; they run inside the owning workflow's transaction via the
// ledger primitives.
type Service struct {
	repo     RepositoryPort
	cache    *SummaryCache
	inflight singleflight.Group
}

// NewService builds Service.
func NewService(repo RepositoryPort, cache *SummaryCache) *Service {
	return &Service{repo: repo, cache: cache}
}

// GetItem fetches one item the actor is allowed to see.
func (s *Service) GetItem(ctx context.Context, id int64, actor shared.Actor) (Item, error) {
	item, err := s.repo.GetItem(ctx, id)
	if err != nil {
		return Item{}, err
	}
	if !actor.CanAccessScope(item.DivisionID) {
		return Item{}, fmt.Errorf("item %d: %w", id, shared.ErrUnauthorizedScope)
	}
	return item, nil
}

// ListItems lists items within the actor's scope. Division actors are pinned
// to their own division unless they ask for warehouse items.
func (s *Service) ListItems(ctx context.Context, filter ItemFilter, actor shared.Actor) ([]Item, error) {
	if !actor.IsWarehouse() && !filter.WarehouseOnly {
		filter.DivisionID = actor.DivisionID
	}
	return s.repo.ListItems(ctx, filter)
}

// ListTransactions returns the ledger card for an item.
func (s *Service) ListTransactions(ctx context.Context, filter TransactionFilter, actor shared.Actor) ([]ItemTransaction, error) {
	if _, err := s.GetItem(ctx, filter.ItemID, actor); err != nil {
		return nil, err
	}
	return s.repo.ListTransactions(ctx, filter)
}

// StockSummary returns per-division totals, cached and collapsed so a burst
// of dashboard requests issues at most one aggregate query.
func (s *Service) StockSummary(ctx context.Context) ([]DivisionStockSummary, error) {
	if cached, ok, err := s.cache.Get(ctx); err == nil && ok {
		return cached, nil
	}

	result, err, _ := s.inflight.Do(summaryCacheKey, func() (any, error) {
		summaries, err := s.repo.StockSummary(ctx)
		if err != nil {
			return nil, err
		}
		if err := s.cache.Set(ctx, summaries); err != nil {
			return summaries, nil
		}
		return summaries, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]DivisionStockSummary), nil
}
