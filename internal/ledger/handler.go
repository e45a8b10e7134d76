package ledger

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/brioche-erp/brioche-erp/internal/platform/httpx"
)

// Handler wires HTTP endpoints for stock queries.
type Handler struct {
	logger  *slog.Logger
	service *Service
}

// NewHandler constructs the stock handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service}
}

// MountRoutes registers stock routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.stock)
	r.Get("/movements", h.movements)
}

func (h *Handler) stock(w http.ResponseWriter, r *http.Request) {
	query := StockQuery{Location: r.URL.Query().Get("location")}
	if productStr := r.URL.Query().Get("product_id"); productStr != "" {
		id, err := strconv.ParseInt(productStr, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "invalid product id")
			return
		}
		query.ProductID = id
	}

	rows, err := h.service.Stock(r.Context(), query)
	if err != nil {
		h.logger.Error("stock query failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"stock": rows})
}

func (h *Handler) movements(w http.ResponseWriter, r *http.Request) {
	productID, err := strconv.ParseInt(r.URL.Query().Get("product_id"), 10, 64)
	if err != nil || productID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "product_id is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	list, err := h.service.Movements(r.Context(), productID, limit)
	if err != nil {
		h.logger.Error("movement history failed", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "could not load movements")
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": list})
}
