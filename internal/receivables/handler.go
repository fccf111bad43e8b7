package receivables

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/money"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler exposes the receivable lifecycle over HTTP.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	dashboard *DashboardCache
	validate  *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service, dashboard *DashboardCache) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		dashboard: dashboard,
		validate:  validator.New(),
	}
}

// MountRoutes registers the receivable routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/receivables", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.createManual)
		r.Get("/dashboard", h.getDashboard)
		r.Get("/installments", h.listInstallments)
		r.Put("/installments/{id}", h.updateInstallment)
		r.Delete("/installments/{id}", h.deleteInstallment)
		r.Get("/payments/{id}", h.getPayment)
		r.Post("/payments/{id}/reverse", h.reversePayment)
		r.Post("/sweep", h.sweep)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.get)
			r.Post("/payments", h.recordPayment)
			r.Post("/cancel", h.cancel)
			r.Post("/reopen", h.reopen)
			r.Post("/recreate-installments", h.recreateInstallments)
		})
	})
}

// respondError maps lifecycle preconditions to 409 before falling back
// to the shared mapper.
func (h *Handler) respondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrEntryCancelled),
		errors.Is(err, ErrEntryNotCancelled),
		errors.Is(err, ErrHasPayments),
		errors.Is(err, ErrInstallmentPaid),
		errors.Is(err, ErrReversalTooLarge),
		errors.Is(err, ErrNoPaymentTerm):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrInstallmentNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	default:
		httpx.RespondError(w, err)
	}
}

func pathID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	return id, err == nil && id > 0
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	q := r.URL.Query()

	req := ListReceivablesRequest{
		CompanyID: tenant.CompanyID,
		Status:    money.Status(q.Get("status")),
		IsOverdue: q.Get("overdue") == "true",
	}
	req.CustomerID, _ = strconv.ParseInt(q.Get("customer_id"), 10, 64)
	req.Limit, _ = strconv.Atoi(q.Get("limit"))
	req.Offset, _ = strconv.Atoi(q.Get("offset"))

	out, err := h.service.List(r.Context(), req)
	if err != nil {
		h.logger.Error("list receivables", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) createManual(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())

	var req CreateManualRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	entry, err := h.service.CreateManual(r.Context(), tenant.CompanyID, req)
	if err != nil {
		h.logger.Error("create receivable", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	h.dashboard.Invalidate(r.Context(), tenant.CompanyID)
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}

	out, err := h.service.GetWithDetails(r.Context(), tenant.CompanyID, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) listInstallments(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	q := r.URL.Query()

	req := ListInstallmentsRequest{
		CompanyID: tenant.CompanyID,
		Status:    money.Status(q.Get("status")),
		IsOverdue: q.Get("overdue") == "true",
	}
	req.CustomerID, _ = strconv.ParseInt(q.Get("customer_id"), 10, 64)
	if v := q.Get("due_from"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			req.DueFrom = t
		}
	}
	if v := q.Get("due_to"); v != "" {
		if t, err := time.Parse("2006-01-02", v); err == nil {
			req.DueTo = t
		}
	}

	out, err := h.service.ListInstallments(r.Context(), req)
	if err != nil {
		h.logger.Error("list installments", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}

	var req RecordPaymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.ReceivedBy == 0 {
		req.ReceivedBy = tenant.ActorID
	}

	payment, err := h.service.RecordPayment(r.Context(), tenant.CompanyID, id, req)
	if err != nil {
		h.logger.Error("record payment", slog.Int64("receivable_id", id), slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	h.dashboard.Invalidate(r.Context(), tenant.CompanyID)
	httpx.JSON(w, http.StatusCreated, payment)
}

type cancelRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

func (h *Handler) cancel(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}

	var req cancelRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	entry, err := h.service.Cancel(r.Context(), tenant.CompanyID, id, req.Reason, tenant.ActorID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.dashboard.Invalidate(r.Context(), tenant.CompanyID)
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) reopen(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}

	entry, err := h.service.Reopen(r.Context(), tenant.CompanyID, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.dashboard.Invalidate(r.Context(), tenant.CompanyID)
	httpx.JSON(w, http.StatusOK, entry)
}

type recreateRequest struct {
	PaymentTermID int64 `json:"payment_term_id" validate:"required,gt=0"`
}

func (h *Handler) recreateInstallments(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}

	var req recreateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	result, err := h.service.RecreateInstallments(r.Context(), tenant.CompanyID, id, req.PaymentTermID)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.dashboard.Invalidate(r.Context(), tenant.CompanyID)
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) updateInstallment(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}

	var req UpdateInstallmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	result, err := h.service.UpdateInstallment(r.Context(), tenant.CompanyID, id, req)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.dashboard.Invalidate(r.Context(), tenant.CompanyID)
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) deleteInstallment(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}

	result, err := h.service.DeleteInstallment(r.Context(), tenant.CompanyID, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	h.dashboard.Invalidate(r.Context(), tenant.CompanyID)
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) getPayment(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}

	out, err := h.service.GetPaymentDetails(r.Context(), tenant.CompanyID, id)
	if err != nil {
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, out)
}

type reverseRequest struct {
	Amount *int64 `json:"amount_cents,omitempty" validate:"omitempty,gt=0"`
}

func (h *Handler) reversePayment(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())
	id, ok := pathID(r)
	if !ok {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid id")
		return
	}

	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid JSON body")
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	result, err := h.service.ReversePayment(r.Context(), tenant.CompanyID, id, req.Amount)
	if err != nil {
		h.logger.Error("reverse payment", slog.Int64("payment_id", id), slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	h.dashboard.Invalidate(r.Context(), tenant.CompanyID)
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) getDashboard(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())

	dash, err := h.dashboard.Get(r.Context(), tenant.CompanyID)
	if err != nil {
		h.logger.Error("dashboard", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, dash)
}

func (h *Handler) sweep(w http.ResponseWriter, r *http.Request) {
	tenant := shared.TenantFromContext(r.Context())

	summary, err := h.service.SweepOverdue(r.Context(), h.logger)
	if err != nil {
		h.logger.Error("manual sweep", slog.Any("error", err))
		h.respondError(w, err)
		return
	}
	h.dashboard.Invalidate(r.Context(), tenant.CompanyID)
	httpx.JSON(w, http.StatusOK, summary)
}
