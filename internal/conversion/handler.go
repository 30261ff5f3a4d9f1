package conversion

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/lumbung-erp/lumbung-erp/internal/platform/httpx"
	"github.com/lumbung-erp/lumbung-erp/internal/shared"
)

// Handler wires HTTP endpoints for the conversion module.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs conversion handler.
func NewHandler(logger *slog.Logger, service *Service, validate *validator.Validate) *Handler {
	return &Handler{logger: logger, service: service, validate: validate}
}

// MountRoutes registers conversion routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.handleConvert)
}

type convertRequest struct {
	ItemID   int64      `json:"item_id" validate:"required"`
	Quantity int64      `json:"quantity" validate:"required,gt=0"`
	Date     *time.Time `json:"date"`
}

func (h *Handler) handleConvert(w http.ResponseWriter, r *http.Request) {
	actor, ok := shared.ActorFromContext(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "missing actor identity")
		return
	}
	var req convertRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation failed", err.Error())
		return
	}

	in := ConvertInput{ItemID: req.ItemID, Quantity: req.Quantity, Actor: actor}
	if req.Date != nil {
		in.Date = *req.Date
	}
	result, err := h.service.Convert(r.Context(), in)
	if err != nil {
		h.logger.Error("convert item", slog.Int64("item_id", req.ItemID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.logger.Info("item converted",
		slog.Int64("item_id", result.Source.ID),
		slog.Int64("target_id", result.Target.ID),
		slog.Int64("credited", result.InTransaction.Quantity))
	httpx.JSON(w, http.StatusOK, result)
}
