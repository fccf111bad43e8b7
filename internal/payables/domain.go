// Package payables implements the accounts payable ledger: entries tied
// to purchase orders, their installment schedules, and the payments made
// against them. It mirrors the receivable lifecycle from the supplier side.
package payables

import (
	"time"

	"github.com/meridian-erp/meridian-erp/internal/money"
)

// Payable is one accounts payable ledger entry. The invariant
// Amount == AmountPaid + AmountRemaining holds after every mutation.
type Payable struct {
	ID              int64        `json:"id"`
	CompanyID       int64        `json:"company_id"`
	Number          string       `json:"number"`
	SupplierID      int64        `json:"supplier_id"`
	PurchaseOrderID *int64       `json:"purchase_order_id,omitempty"`
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

// InstallmentSource tags persisted rows apart from the virtual row
// synthesized for legacy entries without installment tracking.
type InstallmentSource string

const (
	InstallmentPersisted   InstallmentSource = "PERSISTED"
	InstallmentSynthesized InstallmentSource = "SYNTHESIZED"
)

// Installment is one scheduled partial due amount of a payable.
type Installment struct {
	ID              int64             `json:"id"`
	PayableID       int64             `json:"payable_id"`
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

// Payment records one disbursement against a payable. Outbound payments
// carry no gateway adjustments, only the value actually paid.
type Payment struct {
	ID            int64     `json:"id"`
	CompanyID     int64     `json:"company_id"`
	PayableID     int64     `json:"payable_id"`
	InstallmentID *int64    `json:"installment_id,omitempty"`
	Amount        int64     `json:"amount_cents"`
	Method        string    `json:"method"`
	PaymentDate   time.Time `json:"payment_date"`
	PaidBy        int64     `json:"paid_by"`
	Reference     string    `json:"reference,omitempty"`
	Notes         string    `json:"notes,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// PurchaseOrderInfo is the purchase order read model consumed by the ledger.
type PurchaseOrderInfo struct {
	ID             int64
	CompanyID      int64
	Number         string
	SupplierID     int64
	Total          int64
	PaymentTypeID  *int64
	PaymentTermID  *int64
	AccountsPosted bool
}

// PayableWithDetails bundles an entry with its installments and payments.
type PayableWithDetails struct {
	Payable
	SupplierName string        `json:"supplier_name,omitempty"`
	Installments []Installment `json:"installments"`
	Payments     []Payment     `json:"payments"`
}

// EntryInstallments pairs an entry with its persisted installments plus
// supplier and order context for enriched listings.
type EntryInstallments struct {
	Entry        Payable
	Installments []Installment
	OrderNumber  string
	SupplierName string
}

// InstallmentRow is one flattened row of the enriched installment listing.
type InstallmentRow struct {
	Installment
	DisplayNumber string `json:"display_number"`
	PayableNumber string `json:"payable_number"`
	SupplierID    int64  `json:"supplier_id"`
	SupplierName  string `json:"supplier_name,omitempty"`
	OrderID       *int64 `json:"purchase_order_id,omitempty"`
	OrderNumber   string `json:"purchase_order_number,omitempty"`
}
