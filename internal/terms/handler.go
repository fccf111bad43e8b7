package terms

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler exposes the payment term catalog over HTTP.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers payment term routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/payment-terms", h.list)
	r.Post("/payment-terms", h.create)
	r.Get("/payment-terms/{id}", h.get)
	r.Put("/payment-terms/{id}", h.update)
	r.Delete("/payment-terms/{id}", h.delete)
	r.Get("/payment-types", h.listTypes)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	includeInactive := r.URL.Query().Get("include_inactive") == "true"

	out, err := h.service.List(r.Context(), tenant.CompanyID, includeInactive)
	if err != nil {
		h.logger.Error("list payment terms", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())

	var req CreatePaymentTermRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	term, err := h.service.Create(r.Context(), tenant.CompanyID, req)
	if err != nil {
		h.logger.Error("create payment term", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, term)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}

	term, err := h.service.Get(r.Context(), tenant.CompanyID, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, term)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}

	var req UpdatePaymentTermRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	term, err := h.service.Update(r.Context(), tenant.CompanyID, id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, term)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}

	if err := h.service.Delete(r.Context(), tenant.CompanyID, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listTypes(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())

	out, err := h.service.ListPaymentTypes(r.Context(), tenant.CompanyID)
	if err != nil {
		h.logger.Error("list payment types", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}
