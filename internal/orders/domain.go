// Package orders holds the sales order read model and the bridge that
// keeps receivables in step with order status transitions.
package orders

import "time"

// Status is the sales order lifecycle state.
type Status string

const (
	StatusQuote     Status = "QUOTE"
	StatusConfirmed Status = "CONFIRMED"
	StatusInvoiced  Status = "INVOICED"
	StatusCancelled Status = "CANCELLED"
)

// ValidStatus reports whether s is a known order status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusQuote, StatusConfirmed, StatusInvoiced, StatusCancelled:
		return true
	}
	return false
}

// SalesOrder is the order header as the financial bridge sees it.
type SalesOrder struct {
	ID             int64     `json:"id"`
	CompanyID      int64     `json:"company_id"`
	Number         string    `json:"number"`
	CustomerID     int64     `json:"customer_id"`
	SalespersonID  *int64    `json:"salesperson_id,omitempty"`
	Total          int64     `json:"total_cents"`
	Status         Status    `json:"status"`
	PaymentTypeID  *int64     `json:"payment_type_id,omitempty"`
	PaymentTermID  *int64     `json:"payment_term_id,omitempty"`
	AccountsPosted bool       `json:"accounts_posted"`
	PostedAt       *time.Time `json:"posted_at,omitempty"`
	PostedBy       *int64     `json:"posted_by,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}
