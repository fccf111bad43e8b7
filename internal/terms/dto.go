package terms

type CreatePaymentTermRequest struct {
	Name             string `json:"name" validate:"required,max=100"`
	InstallmentCount int    `json:"installment_count" validate:"required,gte=1,lte=120"`
	FirstPaymentDays int    `json:"first_payment_days" validate:"gte=0"`
	IntervalDays     int    `json:"interval_days" validate:"gte=0"`
	SortOrder        int    `json:"sort_order" validate:"gte=0"`
}

type UpdatePaymentTermRequest struct {
	Name             *string `json:"name,omitempty" validate:"omitempty,max=100"`
	InstallmentCount *int    `json:"installment_count,omitempty" validate:"omitempty,gte=1,lte=120"`
	FirstPaymentDays *int    `json:"first_payment_days,omitempty" validate:"omitempty,gte=0"`
	IntervalDays     *int    `json:"interval_days,omitempty" validate:"omitempty,gte=0"`
	SortOrder        *int    `json:"sort_order,omitempty" validate:"omitempty,gte=0"`
}
