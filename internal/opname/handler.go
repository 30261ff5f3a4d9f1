package opname

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

// Handler wires HTTP endpoints for the stock opname module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs opname handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers opname routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}", h.handleUpdate)
	r.Delete("/{id}", h.handleDelete)
	r.Post("/{id}/confirm", h.handleConfirm)
}

type createRequest struct {
	DivisionID *int64      `json:"division_id"`
	OpnameDate *time.Time  `json:"opname_date"`
	Notes      *string     `json:"notes"`
	Lines      []LineInput `json:"lines" validate:"required,min=1,dive"`
}

type updateRequest struct {
	OpnameDate *time.Time  `json:"opname_date"`
	Notes      *string     `json:"notes"`
	Lines      []LineInput `json:"lines" validate:"required,min=1,dive"`
}

type listResponse struct {
	Opnames []StockOpname `json:"opnames"`
	Total   int           `json:"total"`
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
	filter.WarehouseOnly = r.URL.Query().Get("warehouse") == "true"
	filter.Limit, _ = strconv.Atoi(r.URL.Query().Get("limit"))
	filter.Offset, _ = strconv.Atoi(r.URL.Query().Get("offset"))

	opnames, total, err := h.service.List(r.Context(), filter, actor)
	if err != nil {
		h.logger.Error("list opnames", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, listResponse{Opnames: opnames, Total: total})
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	opname, err := h.service.Get(r.Context(), id, actor)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, opname)
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

	in := CreateInput{DivisionID: req.DivisionID, Actor: actor, Notes: req.Notes, Lines: req.Lines}
	if req.OpnameDate != nil {
		in.OpnameDate = *req.OpnameDate
	}
	opname, err := h.service.Create(r.Context(), in)
	if err != nil {
		h.logger.Error("create opname", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("opname created", slog.String("opname_number", opname.OpnameNumber), slog.Int64("actor_id", actor.ID))
	httpx.JSON(w, http.StatusCreated, opname)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.actorAndID(w, r)
	if !ok {
		return
	}
	var req updateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	opname, err := h.service.Update(r.Context(), id, UpdateInput{
		Actor:      actor,
		OpnameDate: req.OpnameDate,
		Notes:      req.Notes,
		Lines:      req.Lines,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, opname)
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
	opname, err := h.service.Confirm(r.Context(), id, actor)
	if err != nil {
		h.logger.Error("confirm opname", slog.Int64("opname_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, opname)
}

func (h *Handler) actorAndID(w http.ResponseWriter, r *http.Request) (shared.Actor, int64, bool) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor identity")
		return shared.Actor{}, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "opname id must be numeric")
		return shared.Actor{}, 0, false
	}
	return actor, id, true
}
