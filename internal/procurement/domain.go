// Package procurement holds the purchase order read model and the
// bridge that keeps payables in step with order status transitions.
package procurement

import "time"

// Status is the purchase order lifecycle state.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusConfirmed Status = "CONFIRMED"
	StatusReceived  Status = "RECEIVED"
	StatusCancelled Status = "CANCELLED"
)

// ValidStatus reports whether s is a known purchase order status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusDraft, StatusConfirmed, StatusReceived, StatusCancelled:
		return true
	}
	return false
}

// PurchaseOrder is the order header as the financial bridge sees it.
type PurchaseOrder struct {
	ID             int64      `json:"id"`
	CompanyID      int64      `json:"company_id"`
	Number         string     `json:"number"`
	SupplierID     int64      `json:"supplier_id"`
	Total          int64      `json:"total_cents"`
	Status         Status     `json:"status"`
	PaymentTypeID  *int64     `json:"payment_type_id,omitempty"`
	PaymentTermID  *int64     `json:"payment_term_id,omitempty"`
	AccountsPosted bool       `json:"accounts_posted"`
	PostedAt       *time.Time `json:"posted_at,omitempty"`
	PostedBy       *int64     `json:"posted_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
