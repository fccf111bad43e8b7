// Package receivables implements the accounts receivable ledger: entries
// tied to sales orders, their installment schedules, and the payments
// and reversals posted against them.
package receivables

import (
	"time"

	"github.com/meridian-erp/meridian-erp/internal/money"
)

// Receivable is one accounts receivable ledger entry. The invariant
// Amount == AmountPaid + AmountRemaining holds after every mutation.
type Receivable struct {
	ID              int64        `json:"id"`
	CompanyID       int64        `json:"company_id"`
	Number          string       `json:"number"`
	CustomerID      int64        `json:"customer_id"`
	OrderID         *int64       `json:"order_id,omitempty"`
	PaymentTermID   *int64       `json:"payment_term_id,omitempty"`
	Amount          int64        `json:"amount_cents"`
	AmountPaid      int64        `json:"amount_paid_cents"`
	AmountRemaining int64        `json:"amount_remaining_cents"`
	Status          money.Status `json:"status"`
	IssueDate       time.Time    `json:"issue_date"`
	DueDate         time.Time    `json:"due_date"`
	PaidAt          *time.Time   `json:"paid_at,omitempty"`
	CancelReason    *string      `json:"cancel_reason,omitempty"`
	CancelledAt     *time.Time   `json:"cancelled_at,omitempty"`
	CancelledBy     *int64       `json:"cancelled_by,omitempty"`
	Notes           string       `json:"notes,omitempty"`
	CreatedAt       time.Time    `json:"created_at"`
	UpdatedAt       time.Time    `json:"updated_at"`
}

// InstallmentSource tags whether an installment row exists in the store
// or was synthesized for a legacy entry that predates installment
// tracking. Synthesized rows are read-only projections.
type InstallmentSource string

const (
	InstallmentPersisted   InstallmentSource = "PERSISTED"
	InstallmentSynthesized InstallmentSource = "SYNTHESIZED"
)

// Installment is one scheduled partial due amount of a receivable.
type Installment struct {
	ID              int64             `json:"id"`
	ReceivableID    int64             `json:"receivable_id"`
	Number          int               `json:"number"`
	Amount          int64             `json:"amount_cents"`
	AmountPaid      int64             `json:"amount_paid_cents"`
	AmountRemaining int64             `json:"amount_remaining_cents"`
	DueDate         time.Time         `json:"due_date"`
	Status          money.Status      `json:"status"`
	PaidAt          *time.Time        `json:"paid_at,omitempty"`
	Notes           *string           `json:"notes,omitempty"`
	Source          InstallmentSource `json:"source"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Payment records one settlement against a receivable, optionally
// targeting a single installment. Full reversal deletes the row; partial
// reversal shrinks Amount. OriginalAmount, when set, is the gross amount
// settling the installment while Amount is the net value received.
type Payment struct {
	ID             int64      `json:"id"`
	CompanyID      int64      `json:"company_id"`
	ReceivableID   int64      `json:"receivable_id"`
	InstallmentID  *int64     `json:"installment_id,omitempty"`
	Amount         int64      `json:"amount_cents"`
	OriginalAmount *int64     `json:"original_amount_cents,omitempty"`
	Interest       int64      `json:"interest_cents,omitempty"`
	Discount       int64      `json:"discount_cents,omitempty"`
	Fine           int64      `json:"fine_cents,omitempty"`
	Fee            int64      `json:"fee_cents,omitempty"`
	Method         string     `json:"method"`
	PaymentDate    time.Time  `json:"payment_date"`
	ReceivedAt     time.Time  `json:"received_at"`
	ReceivedBy     int64      `json:"received_by"`
	Reference      string     `json:"reference,omitempty"`
	Notes          string     `json:"notes,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// OrderInfo is the sales order read model consumed by the ledger.
type OrderInfo struct {
	ID             int64
	CompanyID      int64
	Number         string
	CustomerID     int64
	SalespersonID  int64
	Total          int64
	PaymentTypeID  *int64
	PaymentTermID  *int64
	AccountsPosted bool
}

// ReceivableWithDetails bundles an entry with its installments and payments.
type ReceivableWithDetails struct {
	Receivable
	CustomerName string        `json:"customer_name,omitempty"`
	Installments []Installment `json:"installments"`
	Payments     []Payment     `json:"payments"`
}

// EntryInstallments pairs an entry with its persisted installments plus
// the order/customer context needed for enriched listings.
type EntryInstallments struct {
	Entry           Receivable
	Installments    []Installment
	OrderNumber     string
	SalespersonID   int64
	SalespersonName string
	CustomerName    string
}

// InstallmentRow is one flattened row of the enriched installment listing.
type InstallmentRow struct {
	Installment
	DisplayNumber   string `json:"display_number"`
	ReceivableNum   string `json:"receivable_number"`
	CustomerID      int64  `json:"customer_id"`
	CustomerName    string `json:"customer_name,omitempty"`
	OrderID         *int64 `json:"order_id,omitempty"`
	OrderNumber     string `json:"order_number,omitempty"`
	SalespersonID   int64  `json:"salesperson_id,omitempty"`
	SalespersonName string `json:"salesperson_name,omitempty"`
}
