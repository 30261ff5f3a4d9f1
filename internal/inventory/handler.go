package inventory

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/lumbung-erp/lumbung-erp/internal/platform/httpx"
	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

// Handler wires HTTP endpoints for the inventory read surface.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/items", h.handleListItems)
	r.Get("/items/{id}", h.handleGetItem)
	r.Get("/items/{id}/transactions", h.handleListTransactions)
	r.Get("/summary", h.handleStockSummary)
}

type itemListResponse struct {
	Items []Item `json:"items"`
}

type transactionListResponse struct {
	Transactions []ItemTransaction `json:"transactions"`
}

type summaryResponse struct {
	Summaries []DivisionStockSummary `json:"summaries"`
}

func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor identity")
		return
	}
	q := r.URL.Query()
	filter := ItemFilter{
		Search:        q.Get("search"),
		WarehouseOnly: q.Get("warehouse") == "true",
	}
	if v := q.Get("division_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.DivisionID = &id
		}
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))
	filter.Offset, _ = strconv.Atoi(q.Get("offset"))

	items, err := h.service.ListItems(r.Context(), filter, actor)
	if err != nil {
		h.logger.Error("list items", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, itemListResponse{Items: items})
}

func (h *Handler) handleGetItem(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	item, err := h.service.GetItem(r.Context(), id, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, item)
}

func (h *Handler) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	filter := TransactionFilter{ItemID: id}
	if v := q.Get("from"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			filter.From = t
		} else {
			httpx.Problem(w, http.StatusBadRequest, "Invalid request", "from must be YYYY-MM-DD")
			return
		}
	}
	if v := q.Get("to"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			filter.To = t.Add(24*time.Hour - time.Nanosecond)
		} else {
			httpx.Problem(w, http.StatusBadRequest, "Invalid request", "to must be YYYY-MM-DD")
			return
		}
	}
	filter.Limit, _ = strconv.Atoi(q.Get("limit"))

	txns, err := h.service.ListTransactions(r.Context(), filter, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, transactionListResponse{Transactions: txns})
}

func (h *Handler) handleStockSummary(w http.ResponseWriter, r *http.Request) {
	if _, ok := shared.ActorFromContext(r.Context()); !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor identity")
		return
	}
	summaries, err := h.service.StockSummary(r.Context())
	if err != nil {
		h.logger.Error("stock summary", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, summaryResponse{Summaries: summaries})
}

func (h *Handler) actorAndID(w http.ResponseWriter, r *http.Request) (shared.Actor, int64, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor identity")
		return shared.Actor{}, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "item id must be numeric")
		return shared.Actor{}, 0, false
	}
	return actor, id, true
}
