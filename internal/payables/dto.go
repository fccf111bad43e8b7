package payables

import (
	"time"

	"github.com/meridian-erp/meridian-erp/internal/money"
)

// ListPayablesRequest filters the entry listing. Results are newest first.
type ListPayablesRequest struct {
	CompanyID  int64
	Status     money.Status
	SupplierID int64
	IsOverdue  bool
	Limit      int
	Offset     int
}

// ListInstallmentsRequest filters the enriched installment listing.
type ListInstallmentsRequest struct {
	CompanyID  int64
	Status     money.Status
	SupplierID int64
	IsOverdue  bool
	DueFrom    time.Time
	DueTo      time.Time
}

// CreateManualRequest creates an entry not tied to a purchase order.
type CreateManualRequest struct {
	SupplierID       int64      `json:"supplier_id" validate:"required,gt=0"`
	Amount           int64      `json:"amount_cents" validate:"required,gt=0"`
	PaymentTermID    *int64     `json:"payment_term_id,omitempty"`
	InstallmentCount int        `json:"installment_count" validate:"omitempty,gte=1,lte=120"`
	IntervalDays     int        `json:"interval_days" validate:"gte=0"`
	FirstDueDate     time.Time  `json:"first_due_date" validate:"required"`
	IssueDate        *time.Time `json:"issue_date,omitempty"`
	Notes            string     `json:"notes,omitempty"`
}

// RecordPaymentRequest posts a disbursement against an entry.
type RecordPaymentRequest struct {
	InstallmentID *int64    `json:"installment_id,omitempty"`
	Amount        int64     `json:"amount_cents" validate:"required,gt=0"`
	Method        string    `json:"method" validate:"required,max=50"`
	PaymentDate   time.Time `json:"payment_date" validate:"required"`
	PaidBy        int64     `json:"paid_by"`
	Reference     string    `json:"reference,omitempty"`
	Notes         string    `json:"notes,omitempty"`
}

// UpdateInstallmentRequest adjusts a single installment.
type UpdateInstallmentRequest struct {
	Amount  *int64     `json:"amount_cents,omitempty" validate:"omitempty,gt=0"`
	DueDate *time.Time `json:"due_date,omitempty"`
	Notes   *string    `json:"notes,omitempty"`
}

// UpdateInstallmentResult reports the outcome plus the advisory signal
// that the total now diverges from the linked purchase order.
type UpdateInstallmentResult struct {
	Updated          Installment `json:"updated"`
	DiffersFromOrder bool        `json:"differs_from_order"`
	OrderTotal       int64       `json:"order_total_cents,omitempty"`
}

// RecreateResult summarises an installment regeneration.
type RecreateResult struct {
	InstallmentCount int       `json:"installment_count"`
	Total            int64     `json:"total_cents"`
	FirstDueDate     time.Time `json:"first_due_date"`
}

// DeleteInstallmentResult reports what the delete cascaded into.
type DeleteInstallmentResult struct {
	Deleted      bool `json:"deleted"`
	EntryDeleted bool `json:"entry_deleted"`
}

// ReversePaymentResult reports a payment reversal.
type ReversePaymentResult struct {
	Reversed       bool  `json:"reversed"`
	AmountReversed int64 `json:"amount_reversed_cents"`
	PaymentDeleted bool  `json:"payment_deleted"`
}

// PaymentDetails is a payment with its owning entry and installment.
type PaymentDetails struct {
	Payment
	Entry       Payable      `json:"entry"`
	Installment *Installment `json:"installment,omitempty"`
}

// DashboardOverview aggregates entry totals for a company.
type DashboardOverview struct {
	TotalAmount  int64 `json:"total_amount_cents"`
	TotalPaid    int64 `json:"total_paid_cents"`
	TotalPending int64 `json:"total_pending_cents"`
	TotalOverdue int64 `json:"total_overdue_cents"`
}

// Dashboard is the payables dashboard view.
type Dashboard struct {
	Overview             DashboardOverview `json:"overview"`
	UpcomingInstallments []InstallmentRow  `json:"upcoming_installments"`
	OverdueInstallments  []InstallmentRow  `json:"overdue_installments"`
}

// SweepSummary reports one overdue sweep run.
type SweepSummary struct {
	MarkedOverdue int `json:"marked_overdue"`
	MarkedPaid    int `json:"marked_paid"`
	Errors        int `json:"errors,omitempty"`
}
