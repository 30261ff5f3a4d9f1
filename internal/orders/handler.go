package orders

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/lumbung-erp/lumbung-erp/internal/platform/httpx"
	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

// Handler wires HTTP endpoints for the warehouse order module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs orders handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers order routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}", h.handleEdit)
	r.Delete("/{id}", h.handleDelete)
	r.Post("/{id}/confirm", h.handleConfirm)
	r.Post("/{id}/revise", h.handleRevise)
	r.Post("/{id}/reject", h.handleReject)
	r.Post("/{id}/deliver", h.handleDeliver)
	r.Post("/{id}/receive", h.handleReceive)
}

type createRequest struct {
	DivisionID  int64       `json:"division_id" validate:"required"`
	Description *string     `json:"description"`
	Lines       []LineInput `json:"lines" validate:"required,min=1,dive"`
}

type editRequest struct {
	Description *string     `json:"description"`
	Notes       *string     `json:"notes"`
	Lines       []LineInput `json:"lines" validate:"required,min=1,dive"`
}

type reviseRequest struct {
	Notes *string `json:"notes"`
}

type rejectRequest struct {
	Reason string `json:"reason" validate:"required"`
}

type deliverRequest struct {
	DeliveryDate   *time.Time `json:"delivery_date"`
	DeliveryImages []string   `json:"delivery_images"`
}

type receiveRequest struct {
	ReceiptDate   *time.Time `json:"receipt_date"`
	ReceiptImages []string   `json:"receipt_images"`
	Lines         []struct {
		CartID   int64 `json:"cart_id" validate:"required"`
		Quantity int64 `json:"quantity" validate:"required,gt=0"`
	} `json:"lines" validate:"dive"`
}

type listResponse struct {
	Orders []WarehouseOrder `json:"orders"`
	Total  int              `json:"total"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor identity")
		return
	}
	filter := ListFilter{Status: Status(r.URL.Query().Get("status"))}
	if v := r.URL.Query().Get("division_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			filter.DivisionID = &id
		}
	}
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	filter.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	orders, total, err := h.service.List(r.Context(), filter, actor)
	if err != nil {
		h.logger.Error("list orders", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Orders: orders, Total: total})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Get(r.Context(), id, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor identity")
		return
	}
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	order, err := h.service.Create(r.Context(), CreateInput{
		DivisionID:  req.DivisionID,
		Actor:       actor,
		Description: req.Description,
		Lines:       req.Lines,
	})
	if err != nil {
		h.logger.Error("create order", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("order created", slog.String("order_number", order.OrderNumber), slog.Int64("actor_id", actor.ID))
	httpx.JSON(w, http.StatusCreated, order)
}

func (h *Handler) handleEdit(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req editRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	order, err := h.service.Edit(r.Context(), id, EditInput{
		Actor:       actor,
		Description: req.Description,
		Notes:       req.Notes,
		Lines:       req.Lines,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), id, actor); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) handleConfirm(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	order, err := h.service.Confirm(r.Context(), id, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleRevise(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req reviseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	order, err := h.service.Revise(r.Context(), id, ReviseInput{Actor: actor, Notes: req.Notes})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req rejectRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	order, err := h.service.Reject(r.Context(), id, RejectInput{Actor: actor, Reason: req.Reason})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleDeliver(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req deliverRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	in := DeliverInput{Actor: actor, DeliveryImages: req.DeliveryImages}
	if req.DeliveryDate != nil {
		in.DeliveryDate = *req.DeliveryDate
	}
	order, err := h.service.Deliver(r.Context(), id, in)
	if err != nil {
		h.logger.Error("deliver order", slog.Int64("order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req receiveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}
	in := ReceiveInput{Actor: actor, ReceiptImages: req.ReceiptImages}
	if req.ReceiptDate != nil {
		in.ReceiptDate = *req.ReceiptDate
	}
	for _, line := range req.Lines {
		in.Lines = append(in.Lines, ReceiveLine{CartID: line.CartID, Quantity: line.Quantity})
	}
	order, err := h.service.Receive(r.Context(), id, in)
	if err != nil {
		h.logger.Error("receive order", slog.Int64("order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) actorAndID(w http.ResponseWriter, r *http.Request) (shared.Actor, int64, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor identity")
		return shared.Actor{}, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "order id must be numeric")
		return shared.Actor{}, 0, false
	}
	return actor, id, true
}
