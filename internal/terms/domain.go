// Package terms manages the reusable installment templates (payment
// terms) and the payment type catalog consumed by the receivable and
// payable ledgers.
package terms

import "time"

// TermType flags whether a payment type settles immediately or on terms.
type TermType string

const (
	TermTypeCash TermType = "CASH"
	TermTypeTerm TermType = "TERM"
)

// PaymentTerm is a reusable installment template. Deleting one only
// flips Active because historical ledger entries keep referencing it.
type PaymentTerm struct {
	ID               int64     `json:"id"`
	CompanyID        int64     `json:"company_id"`
	Name             string    `json:"name"`
	InstallmentCount int       `json:"installment_count"`
	FirstPaymentDays int       `json:"first_payment_days"`
	IntervalDays     int       `json:"interval_days"`
	SortOrder        int       `json:"sort_order"`
	Active           bool      `json:"active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// PaymentType is a company's configured payment method. TERM types
// optionally carry a default payment term used when an order does not
// pick its own.
type PaymentType struct {
	ID            int64     `json:"id"`
	CompanyID     int64     `json:"company_id"`
	Name          string    `json:"name"`
	TermType      TermType  `json:"term_type"`
	PaymentTermID *int64    `json:"payment_term_id,omitempty"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
