package transfers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/brioche-erp/brioche-erp/internal/platform/httpx"
	"github.com/brioche-erp/brioche-erp/internal/shared"
)

// Handler wires HTTP endpoints for stock transfers.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs the transfer handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers transfer routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/incoming", h.incoming)
	r.Get("/{id}", h.show)
	r.Put("/{id}", h.update)
	r.Post("/{id}/cancel", h.cancel)
	r.Post("/{id}/items/{itemID}/accept", h.acceptItem)
	r.Post("/{id}/items/{itemID}/reject", h.rejectItem)
}

type transferItemRequest struct {
	ProductID int64   `json:"product_id" validate:"required,gt=0"`
	Qty       float64 `json:"qty" validate:"required,gt=0"`
}

type transferRequest struct {
	Date         string                `json:"date"`
	ToLocationID int64                 `json:"to_location_id" validate:"required,gt=0"`
	Note         string                `json:"note"`
	Items        []transferItemRequest `json:"items" validate:"required,min=1,dive"`
}

func (req transferRequest) toItems() []ItemInput {
	items := make([]ItemInput, 0, len(req.Items))
	for _, item := range req.Items {
		items = append(items, ItemInput{ProductID: item.ProductID, Qty: item.Qty})
	}
	return items
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	toLocation, _ := strconv.ParseInt(r.URL.Query().Get("to_location_id"), 10, 64)

	filter := ListFilter{
		ListFilters:  shared.ListFilters{Page: page, Limit: limit},
		Status:       Status(r.URL.Query().Get("status")),
		ToLocationID: toLocation,
	}
	list, err := h.service.List(r.Context(), filter)
	if err != nil {
		h.logger.Error("list transfers failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transfers": list})
}

func (h *Handler) incoming(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor.ID == 0 {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
		return
	}
	list, err := h.service.ListIncoming(r.Context(), actor.BranchID)
	if err != nil {
		h.respondError(w, "list incoming transfers", err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transfers": list})
}

func (h *Handler) show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid transfer id")
		return
	}
	transfer, err := h.service.Get(r.Context(), id)
	if err != nil {
		h.respondError(w, "get transfer", err)
		return
	}
	httpx.JSON(w, http.StatusOK, transfer)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor.ID == 0 {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
		return
	}
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid date, expected YYYY-MM-DD")
		return
	}
	transfer, err := h.service.Create(r.Context(), CreateInput{
		Date:         date,
		ToLocationID: req.ToLocationID,
		Items:        req.toItems(),
		Note:         req.Note,
		Actor:        actor,
	})
	if err != nil {
		h.respondError(w, "create transfer", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, transfer)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor.ID == 0 {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid transfer id")
		return
	}
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := parseDate(req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid date, expected YYYY-MM-DD")
		return
	}
	transfer, err := h.service.Update(r.Context(), id, UpdateInput{
		Date:         date,
		ToLocationID: req.ToLocationID,
		Items:        req.toItems(),
		Note:         req.Note,
		Actor:        actor,
	})
	if err != nil {
		h.respondError(w, "update transfer", err)
		return
	}
	httpx.JSON(w, http.StatusOK, transfer)
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	actor := shared.ActorFromContext(r.Context())
	if actor.ID == 0 {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid transfer id")
		return
	}
	if err := h.service.Cancel(r.Context(), id, actor); err != nil {
		h.respondError(w, "cancel transfer", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) acceptItem(w http.ResponseWriter, r *http.Request) {
	h.resolveItem(w, r, h.service.AcceptItem, "accept transfer item")
}

func (h *Handler) rejectItem(w http.ResponseWriter, r *http.Request) {
	h.resolveItem(w, r, h.service.RejectItem, "reject transfer item")
}

func (h *Handler) resolveItem(
	w http.ResponseWriter,
	r *http.Request,
	op func(ctx context.Context, transferID, itemID int64, actor shared.Actor) (Transfer, error),
	action string,
) {
	actor := shared.ActorFromContext(r.Context())
	if actor.ID == 0 {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "actor required")
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid transfer id")
		return
	}
	itemID, err := strconv.ParseInt(chi.URLParam(r, "itemID"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid item id")
		return
	}
	transfer, err := op(r.Context(), id, itemID, actor)
	if err != nil {
		h.respondError(w, action, err)
		return
	}
	httpx.JSON(w, http.StatusOK, transfer)
}

func (h *Handler) respondError(w http.ResponseWriter, action string, err error) {
	switch {
	case errors.Is(err, shared.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", "transfer not found")
	case errors.Is(err, shared.ErrForbidden), errors.Is(err, ErrNotDestination):
		httpx.Problem(w, http.StatusForbidden, "Forbidden", err.Error())
	case errors.Is(err, ErrItemProcessed), errors.Is(err, ErrHasProcessedItems), errors.Is(err, shared.ErrLockHeld):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error(action+" failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func parseDate(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", raw)
}
