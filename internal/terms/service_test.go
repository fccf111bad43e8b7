package terms

import (
	"context"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

type memoryRepo struct {
	nextID int64
	terms  map[int64]PaymentTerm
	types  map[int64]PaymentType
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{terms: map[int64]PaymentTerm{}, types: map[int64]PaymentType{}}
}

func (r *memoryRepo) CreateTerm(ctx context.Context, term PaymentTerm) (PaymentTerm, error) {
	r.nextID++
	term.ID = r.nextID
	r.terms[term.ID] = term
	return term, nil
}

func (r *memoryRepo) GetTerm(ctx context.Context, companyID, id int64) (PaymentTerm, error) {
	t, ok := r.terms[id]
	if !ok || t.CompanyID != companyID {
		return PaymentTerm{}, shared.ErrNotFound
	}
	return t, nil
}

func (r *memoryRepo) ListTerms(ctx context.Context, companyID int64, includeInactive bool) ([]PaymentTerm, error) {
	var out []PaymentTerm
	for _, t := range r.terms {
		if t.CompanyID != companyID {
			continue
		}
		if !includeInactive && !t.Active {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortOrder < out[j].SortOrder })
	return out, nil
}

func (r *memoryRepo) UpdateTerm(ctx context.Context, term PaymentTerm) (PaymentTerm, error) {
	if _, ok := r.terms[term.ID]; !ok {
		return PaymentTerm{}, shared.ErrNotFound
	}
	r.terms[term.ID] = term
	return term, nil
}

func (r *memoryRepo) DeactivateTerm(ctx context.Context, companyID, id int64) error {
	t, ok := r.terms[id]
	if !ok || t.CompanyID != companyID {
		return shared.ErrNotFound
	}
	t.Active = false
	r.terms[id] = t
	return nil
}

func (r *memoryRepo) GetPaymentType(ctx context.Context, companyID, id int64) (PaymentType, error) {
	pt, ok := r.types[id]
	if !ok || pt.CompanyID != companyID {
		return PaymentType{}, shared.ErrNotFound
	}
	return pt, nil
}

func (r *memoryRepo) ListPaymentTypes(ctx context.Context, companyID int64) ([]PaymentType, error) {
	var out []PaymentType
	for _, pt := range r.types {
		if pt.CompanyID == companyID {
			out = append(out, pt)
		}
	}
	return out, nil
}

func TestCreateActivatesTerm(t *testing.T) {
	svc := NewService(newMemoryRepo())

	term, err := svc.Create(context.Background(), 1, CreatePaymentTermRequest{
		Name:             "30/60/90",
		InstallmentCount: 3,
		FirstPaymentDays: 30,
		IntervalDays:     30,
	})
	require.NoError(t, err)
	require.True(t, term.Active)
	require.Equal(t, int64(1), term.CompanyID)
	require.Equal(t, 3, term.InstallmentCount)
}

func TestUpdateAppliesOnlyProvidedFields(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	term, err := svc.Create(context.Background(), 1, CreatePaymentTermRequest{
		Name:             "Net 30",
		InstallmentCount: 1,
		FirstPaymentDays: 30,
	})
	require.NoError(t, err)

	count := 2
	updated, err := svc.Update(context.Background(), 1, term.ID, UpdatePaymentTermRequest{
		InstallmentCount: &count,
	})
	require.NoError(t, err)
	require.Equal(t, 2, updated.InstallmentCount)
	require.Equal(t, "Net 30", updated.Name)
	require.Equal(t, 30, updated.FirstPaymentDays)
}

func TestDeleteOnlyDeactivates(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	term, err := svc.Create(context.Background(), 1, CreatePaymentTermRequest{
		Name:             "Net 15",
		InstallmentCount: 1,
		FirstPaymentDays: 15,
	})
	require.NoError(t, err)

	require.NoError(t, svc.Delete(context.Background(), 1, term.ID))

	// The row survives so ledger entries keep resolving it.
	kept, err := svc.Get(context.Background(), 1, term.ID)
	require.NoError(t, err)
	require.False(t, kept.Active)

	active, err := svc.List(context.Background(), 1, false)
	require.NoError(t, err)
	require.Empty(t, active)

	all, err := svc.List(context.Background(), 1, true)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestTermsAreScopedByCompany(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo)
	term, err := svc.Create(context.Background(), 1, CreatePaymentTermRequest{
		Name:             "Net 30",
		InstallmentCount: 1,
		FirstPaymentDays: 30,
	})
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), 2, term.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)

	err = svc.Delete(context.Background(), 2, term.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
}
