package terms

import (
	"context"
	"fmt"
)

// Repository defines payment term and payment type data access.
type Repository interface {
	CreateTerm(ctx context.Context, term PaymentTerm) (PaymentTerm, error)
	GetTerm(ctx context.Context, companyID, id int64) (PaymentTerm, error)
	ListTerms(ctx context.Context, companyID int64, includeInactive bool) ([]PaymentTerm, error)
	UpdateTerm(ctx context.Context, term PaymentTerm) (PaymentTerm, error)
	DeactivateTerm(ctx context.Context, companyID, id int64) error

	GetPaymentType(ctx context.Context, companyID, id int64) (PaymentType, error)
	ListPaymentTypes(ctx context.Context, companyID int64) ([]PaymentType, error)
}

// Service handles payment term catalog logic.
type Service struct {
	repo Repository
}

// NewService builds a Service instance.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) Create(ctx context.Context, companyID int64, req CreatePaymentTermRequest) (PaymentTerm, error) {
	term := PaymentTerm{
		CompanyID:        companyID,
		Name:             req.Name,
		InstallmentCount: req.InstallmentCount,
		FirstPaymentDays: req.FirstPaymentDays,
		IntervalDays:     req.IntervalDays,
		SortOrder:        req.SortOrder,
		Active:           true,
	}
	created, err := s.repo.CreateTerm(ctx, term)
	if err != nil {
		return PaymentTerm{}, fmt.Errorf("create payment term: %w", err)
	}
	return created, nil
}

func (s *Service) Get(ctx context.Context, companyID, id int64) (PaymentTerm, error) {
	return s.repo.GetTerm(ctx, companyID, id)
}

func (s *Service) List(ctx context.Context, companyID int64, includeInactive bool) ([]PaymentTerm, error) {
	return s.repo.ListTerms(ctx, companyID, includeInactive)
}

func (s *Service) Update(ctx context.Context, companyID, id int64, req UpdatePaymentTermRequest) (PaymentTerm, error) {
	term, err := s.repo.GetTerm(ctx, companyID, id)
	if err != nil {
		return PaymentTerm{}, err
	}
	if req.Name != nil {
		term.Name = *req.Name
	}
	if req.InstallmentCount != nil {
		term.InstallmentCount = *req.InstallmentCount
	}
	if req.FirstPaymentDays != nil {
		term.FirstPaymentDays = *req.FirstPaymentDays
	}
	if req.IntervalDays != nil {
		term.IntervalDays = *req.IntervalDays
	}
	if req.SortOrder != nil {
		term.SortOrder = *req.SortOrder
	}
	updated, err := s.repo.UpdateTerm(ctx, term)
	if err != nil {
		return PaymentTerm{}, fmt.Errorf("update payment term: %w", err)
	}
	return updated, nil
}

// Delete soft-deletes a term. Historical ledger entries keep referencing
// it, so the row itself is never removed.
func (s *Service) Delete(ctx context.Context, companyID, id int64) error {
	if _, err := s.repo.GetTerm(ctx, companyID, id); err != nil {
		return err
	}
	return s.repo.DeactivateTerm(ctx, companyID, id)
}

func (s *Service) GetPaymentType(ctx context.Context, companyID, id int64) (PaymentType, error) {
	return s.repo.GetPaymentType(ctx, companyID, id)
}

func (s *Service) ListPaymentTypes(ctx context.Context, companyID int64) ([]PaymentType, error) {
	return s.repo.ListPaymentTypes(ctx, companyID)
}
