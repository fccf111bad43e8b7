package procurement

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler exposes the purchase order bridge over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers purchase order bridge routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/purchase-orders/{id}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Put("/status", h.transition)
		r.Post("/post-accounts", h.postAccounts)
		r.Post("/reverse-accounts", h.reverseAccounts)
	})
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}

	order, err := h.service.Get(r.Context(), tenant.CompanyID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

type transitionRequest struct {
	Status Status `json:"status" validate:"required"`
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}

	var req transitionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	order, err := h.service.TransitionStatus(r.Context(), tenant.CompanyID, id, req.Status, tenant.ActorID)
	if err != nil {
		if errors.Is(err, ErrUnknownStatus) {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		h.logger.Error("purchase order transition", slog.Int64("purchase_order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) postAccounts(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}

	order, err := h.service.PostAccounts(r.Context(), tenant.CompanyID, id, tenant.ActorID)
	if err != nil {
		h.logger.Error("post purchase accounts", slog.Int64("purchase_order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}

func (h *Handler) reverseAccounts(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}

	order, err := h.service.ReverseAccounts(r.Context(), tenant.CompanyID, id, tenant.ActorID)
	if err != nil {
		if errors.Is(err, ErrNotPosted) {
			httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
			return
		}
		h.logger.Error("reverse purchase accounts", slog.Int64("purchase_order_id", id), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, order)
}
