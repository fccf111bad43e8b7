package receivables

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-erp/meridian-erp/internal/money"
	"github.com/meridian-erp/meridian-erp/internal/shared"
	"github.com/meridian-erp/meridian-erp/internal/terms"
)

type memoryRepo struct {
	entries      map[int64]Receivable
	installments map[int64]Installment
	payments     map[int64]Payment
	orders       map[int64]OrderInfo
	nextID       int64
	numberCursor int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		entries:      make(map[int64]Receivable),
		installments: make(map[int64]Installment),
		payments:     make(map[int64]Payment),
		orders:       make(map[int64]OrderInfo),
	}
}

func (r *memoryRepo) id() int64 {
	r.nextID++
	return r.nextID
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return fn(ctx, &memoryTx{repo: r})
}

func (r *memoryRepo) GetReceivable(ctx context.Context, companyID, id int64) (Receivable, error) {
	e, ok := r.entries[id]
	if !ok || e.CompanyID != companyID {
		return Receivable{}, shared.ErrNotFound
	}
	return e, nil
}

func (r *memoryRepo) entryInstallments(entryID int64) []Installment {
	var out []Installment
	for _, inst := range r.installments {
		if inst.ReceivableID == entryID {
			out = append(out, inst)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Number < out[j].Number })
	return out
}

func (r *memoryRepo) entryPayments(entryID int64) []Payment {
	var out []Payment
	for _, p := range r.payments {
		if p.ReceivableID == entryID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *memoryRepo) GetReceivableWithDetails(ctx context.Context, companyID, id int64) (ReceivableWithDetails, error) {
	e, err := r.GetReceivable(ctx, companyID, id)
	if err != nil {
		return ReceivableWithDetails{}, err
	}
	return ReceivableWithDetails{
		Receivable:   e,
		Installments: r.entryInstallments(id),
		Payments:     r.entryPayments(id),
	}, nil
}

func (r *memoryRepo) ListReceivables(ctx context.Context, req ListReceivablesRequest) ([]Receivable, error) {
	var out []Receivable
	for _, e := range r.entries {
		if e.CompanyID != req.CompanyID {
			continue
		}
		if req.Status != "" && e.Status != req.Status {
			continue
		}
		if req.CustomerID != 0 && e.CustomerID != req.CustomerID {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *memoryRepo) ListEntriesWithInstallments(ctx context.Context, req ListInstallmentsRequest) ([]EntryInstallments, error) {
	var out []EntryInstallments
	for _, e := range r.entries {
		if e.CompanyID != req.CompanyID {
			continue
		}
		if req.CustomerID != 0 && e.CustomerID != req.CustomerID {
			continue
		}
		item := EntryInstallments{Entry: e, Installments: r.entryInstallments(e.ID)}
		if e.OrderID != nil {
			if o, ok := r.orders[*e.OrderID]; ok {
				item.OrderNumber = o.Number
				item.SalespersonID = o.SalespersonID
			}
		}
		out = append(out, item)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Entry.ID > out[j].Entry.ID })
	return out, nil
}

func (r *memoryRepo) GetOrderInfo(ctx context.Context, companyID, orderID int64) (OrderInfo, error) {
	o, ok := r.orders[orderID]
	if !ok || o.CompanyID != companyID {
		return OrderInfo{}, shared.ErrNotFound
	}
	return o, nil
}

func (r *memoryRepo) GetPaymentDetails(ctx context.Context, companyID, paymentID int64) (PaymentDetails, error) {
	p, ok := r.payments[paymentID]
	if !ok || p.CompanyID != companyID {
		return PaymentDetails{}, shared.ErrNotFound
	}
	e := r.entries[p.ReceivableID]
	details := PaymentDetails{Payment: p, Entry: e}
	if p.InstallmentID != nil {
		if inst, ok := r.installments[*p.InstallmentID]; ok {
			details.Installment = &inst
		}
	}
	return details, nil
}

func (r *memoryRepo) ListOverdueCandidates(ctx context.Context, asOf time.Time) ([]Receivable, error) {
	var out []Receivable
	for _, e := range r.entries {
		if e.Status == money.StatusOpen && money.BeforeDay(e.DueDate, asOf) {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *memoryRepo) ListSettleCandidates(ctx context.Context) ([]Receivable, error) {
	var out []Receivable
	for _, e := range r.entries {
		if e.Status == money.StatusPaid || e.Status == money.StatusCancelled {
			continue
		}
		installments := r.entryInstallments(e.ID)
		if len(installments) == 0 {
			continue
		}
		allPaid := true
		for _, inst := range installments {
			if inst.Status != money.StatusPaid {
				allPaid = false
				break
			}
		}
		if allPaid {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) GetEntryForUpdate(ctx context.Context, id int64) (Receivable, error) {
	e, ok := t.repo.entries[id]
	if !ok {
		return Receivable{}, shared.ErrNotFound
	}
	return e, nil
}

func (t *memoryTx) GetInstallmentForUpdate(ctx context.Context, id int64) (Installment, error) {
	inst, ok := t.repo.installments[id]
	if !ok {
		return Installment{}, shared.ErrNotFound
	}
	return inst, nil
}

func (t *memoryTx) GetPaymentForUpdate(ctx context.Context, id int64) (Payment, error) {
	p, ok := t.repo.payments[id]
	if !ok {
		return Payment{}, shared.ErrNotFound
	}
	return p, nil
}

func (t *memoryTx) ListByOrder(ctx context.Context, orderID int64) ([]Receivable, error) {
	var out []Receivable
	for _, e := range t.repo.entries {
		if e.OrderID != nil && *e.OrderID == orderID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (t *memoryTx) ListInstallments(ctx context.Context, entryID int64) ([]Installment, error) {
	return t.repo.entryInstallments(entryID), nil
}

func (t *memoryTx) ListPayments(ctx context.Context, entryID int64) ([]Payment, error) {
	return t.repo.entryPayments(entryID), nil
}

func (t *memoryTx) CountPayments(ctx context.Context, entryID int64) (int, error) {
	return len(t.repo.entryPayments(entryID)), nil
}

func (t *memoryTx) CountInstallmentPayments(ctx context.Context, installmentID int64) (int, error) {
	count := 0
	for _, p := range t.repo.payments {
		if p.InstallmentID != nil && *p.InstallmentID == installmentID {
			count++
		}
	}
	return count, nil
}

func (t *memoryTx) NextDocumentNumber(ctx context.Context, companyID int64) (string, error) {
	t.repo.numberCursor++
	return fmt.Sprintf("REC-%d-%06d", time.Now().Year(), t.repo.numberCursor), nil
}

func (t *memoryTx) CreateEntry(ctx context.Context, entry Receivable) (Receivable, error) {
	entry.ID = t.repo.id()
	entry.CreatedAt = time.Now()
	entry.UpdatedAt = entry.CreatedAt
	t.repo.entries[entry.ID] = entry
	return entry, nil
}

func (t *memoryTx) UpdateEntry(ctx context.Context, entry Receivable) error {
	if _, ok := t.repo.entries[entry.ID]; !ok {
		return shared.ErrNotFound
	}
	entry.UpdatedAt = time.Now()
	t.repo.entries[entry.ID] = entry
	return nil
}

func (t *memoryTx) DeleteEntry(ctx context.Context, id int64) error {
	if _, ok := t.repo.entries[id]; !ok {
		return shared.ErrNotFound
	}
	delete(t.repo.entries, id)
	return nil
}

func (t *memoryTx) CreateInstallments(ctx context.Context, entryID int64, batch []Installment) ([]Installment, error) {
	out := make([]Installment, 0, len(batch))
	for _, inst := range batch {
		inst.ID = t.repo.id()
		inst.ReceivableID = entryID
		inst.Source = InstallmentPersisted
		t.repo.installments[inst.ID] = inst
		out = append(out, inst)
	}
	return out, nil
}

func (t *memoryTx) UpdateInstallment(ctx context.Context, inst Installment) error {
	if _, ok := t.repo.installments[inst.ID]; !ok {
		return shared.ErrNotFound
	}
	t.repo.installments[inst.ID] = inst
	return nil
}

func (t *memoryTx) DeleteInstallment(ctx context.Context, id int64) error {
	if _, ok := t.repo.installments[id]; !ok {
		return shared.ErrNotFound
	}
	delete(t.repo.installments, id)
	return nil
}

func (t *memoryTx) DeleteInstallments(ctx context.Context, entryID int64) error {
	for id, inst := range t.repo.installments {
		if inst.ReceivableID == entryID {
			delete(t.repo.installments, id)
		}
	}
	return nil
}

func (t *memoryTx) CreatePayment(ctx context.Context, payment Payment) (Payment, error) {
	payment.ID = t.repo.id()
	payment.CreatedAt = time.Now()
	t.repo.payments[payment.ID] = payment
	return payment, nil
}

func (t *memoryTx) UpdatePayment(ctx context.Context, payment Payment) error {
	if _, ok := t.repo.payments[payment.ID]; !ok {
		return shared.ErrNotFound
	}
	t.repo.payments[payment.ID] = payment
	return nil
}

func (t *memoryTx) DeletePayment(ctx context.Context, id int64) error {
	if _, ok := t.repo.payments[id]; !ok {
		return shared.ErrNotFound
	}
	delete(t.repo.payments, id)
	return nil
}

func (t *memoryTx) ClearOrderPosted(ctx context.Context, orderID int64) error {
	if o, ok := t.repo.orders[orderID]; ok {
		o.AccountsPosted = false
		t.repo.orders[orderID] = o
	}
	return nil
}

type memoryTermsRepo struct {
	terms map[int64]terms.PaymentTerm
	types map[int64]terms.PaymentType
}

func newMemoryTermsRepo() *memoryTermsRepo {
	return &memoryTermsRepo{
		terms: make(map[int64]terms.PaymentTerm),
		types: make(map[int64]terms.PaymentType),
	}
}

func (r *memoryTermsRepo) CreateTerm(ctx context.Context, term terms.PaymentTerm) (terms.PaymentTerm, error) {
	term.ID = int64(len(r.terms) + 1)
	r.terms[term.ID] = term
	return term, nil
}

func (r *memoryTermsRepo) GetTerm(ctx context.Context, companyID, id int64) (terms.PaymentTerm, error) {
	term, ok := r.terms[id]
	if !ok || term.CompanyID != companyID {
		return terms.PaymentTerm{}, shared.ErrNotFound
	}
	return term, nil
}

func (r *memoryTermsRepo) ListTerms(ctx context.Context, companyID int64, includeInactive bool) ([]terms.PaymentTerm, error) {
	var out []terms.PaymentTerm
	for _, term := range r.terms {
		if term.CompanyID != companyID {
			continue
		}
		if !includeInactive && !term.Active {
			continue
		}
		out = append(out, term)
	}
	return out, nil
}

func (r *memoryTermsRepo) UpdateTerm(ctx context.Context, term terms.PaymentTerm) (terms.PaymentTerm, error) {
	r.terms[term.ID] = term
	return term, nil
}

func (r *memoryTermsRepo) DeactivateTerm(ctx context.Context, companyID, id int64) error {
	term, ok := r.terms[id]
	if !ok || term.CompanyID != companyID {
		return shared.ErrNotFound
	}
	term.Active = false
	r.terms[id] = term
	return nil
}

func (r *memoryTermsRepo) GetPaymentType(ctx context.Context, companyID, id int64) (terms.PaymentType, error) {
	pt, ok := r.types[id]
	if !ok || pt.CompanyID != companyID {
		return terms.PaymentType{}, shared.ErrNotFound
	}
	return pt, nil
}

func (r *memoryTermsRepo) ListPaymentTypes(ctx context.Context, companyID int64) ([]terms.PaymentType, error) {
	var out []terms.PaymentType
	for _, pt := range r.types {
		if pt.CompanyID == companyID {
			out = append(out, pt)
		}
	}
	return out, nil
}

type fixture struct {
	repo      *memoryRepo
	termsRepo *memoryTermsRepo
	service   *Service
}

const testCompanyID = int64(1)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	repo := newMemoryRepo()
	termsRepo := newMemoryTermsRepo()
	return &fixture{
		repo:      repo,
		termsRepo: termsRepo,
		service:   NewService(repo, terms.NewService(termsRepo)),
	}
}

// thirtySixtyNinety seeds the canonical 3x net-30 term plus a term-based
// payment type pointing at it.
func (f *fixture) thirtySixtyNinety() (terms.PaymentTerm, terms.PaymentType) {
	term, _ := f.termsRepo.CreateTerm(context.Background(), terms.PaymentTerm{
		CompanyID:        testCompanyID,
		Name:             "30/60/90",
		InstallmentCount: 3,
		FirstPaymentDays: 30,
		IntervalDays:     30,
		Active:           true,
	})
	pt := terms.PaymentType{
		ID:            int64(len(f.termsRepo.types) + 1),
		CompanyID:     testCompanyID,
		Name:          "Boleto Parcelado",
		TermType:      terms.TermTypeTerm,
		PaymentTermID: &term.ID,
		Active:        true,
	}
	f.termsRepo.types[pt.ID] = pt
	return term, pt
}

func (f *fixture) cashType() terms.PaymentType {
	pt := terms.PaymentType{
		ID:        int64(len(f.termsRepo.types) + 1),
		CompanyID: testCompanyID,
		Name:      "Cash",
		TermType:  terms.TermTypeCash,
		Active:    true,
	}
	f.termsRepo.types[pt.ID] = pt
	return pt
}

func (f *fixture) addOrder(o OrderInfo) OrderInfo {
	if o.ID == 0 {
		o.ID = f.repo.id()
	}
	if o.CompanyID == 0 {
		o.CompanyID = testCompanyID
	}
	f.repo.orders[o.ID] = o
	return o
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestCreateFromOrderSplitsTotal(t *testing.T) {
	f := newFixture(t)
	_, pt := f.thirtySixtyNinety()
	order := f.addOrder(OrderInfo{Number: "SO-1001", CustomerID: 7, Total: 90400, PaymentTypeID: &pt.ID})

	entry, err := f.service.CreateFromOrder(context.Background(), testCompanyID, order.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, int64(90400), entry.Amount)
	require.Equal(t, int64(90400), entry.AmountRemaining)
	require.Equal(t, money.StatusOpen, entry.Status)
	require.NotEmpty(t, entry.Number)

	installments := f.repo.entryInstallments(entry.ID)
	require.Len(t, installments, 3)
	require.Equal(t, int64(30134), installments[0].Amount)
	require.Equal(t, int64(30133), installments[1].Amount)
	require.Equal(t, int64(30133), installments[2].Amount)

	var sum int64
	for _, inst := range installments {
		sum += inst.Amount
	}
	require.Equal(t, entry.Amount, sum)

	// 30/60/90 day offsets from the issue date.
	require.Equal(t, entry.IssueDate.AddDate(0, 0, 30).Truncate(24*time.Hour), installments[0].DueDate.Truncate(24*time.Hour))
	require.Equal(t, entry.IssueDate.AddDate(0, 0, 60).Truncate(24*time.Hour), installments[1].DueDate.Truncate(24*time.Hour))
	require.Equal(t, entry.IssueDate.AddDate(0, 0, 90).Truncate(24*time.Hour), installments[2].DueDate.Truncate(24*time.Hour))
	require.Equal(t, installments[0].DueDate, entry.DueDate)
}

func TestCreateFromOrderCashIsNoOp(t *testing.T) {
	f := newFixture(t)
	cash := f.cashType()
	order := f.addOrder(OrderInfo{Number: "SO-1002", CustomerID: 7, Total: 50000, PaymentTypeID: &cash.ID})

	entry, err := f.service.CreateFromOrder(context.Background(), testCompanyID, order.ID, 1)
	require.NoError(t, err)
	require.Nil(t, entry)
	require.Empty(t, f.repo.entries)
}

func TestCreateFromOrderWithoutPaymentTypeIsNoOp(t *testing.T) {
	f := newFixture(t)
	order := f.addOrder(OrderInfo{Number: "SO-1003", CustomerID: 7, Total: 50000})

	entry, err := f.service.CreateFromOrder(context.Background(), testCompanyID, order.ID, 1)
	require.NoError(t, err)
	require.Nil(t, entry)
}

func TestCreateFromOrderMissingOrderFails(t *testing.T) {
	f := newFixture(t)

	_, err := f.service.CreateFromOrder(context.Background(), testCompanyID, 999, 1)
	require.Error(t, err)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateFromOrderIdempotent(t *testing.T) {
	f := newFixture(t)
	_, pt := f.thirtySixtyNinety()
	order := f.addOrder(OrderInfo{Number: "SO-1004", CustomerID: 7, Total: 90400, PaymentTypeID: &pt.ID})

	first, err := f.service.CreateFromOrder(context.Background(), testCompanyID, order.ID, 1)
	require.NoError(t, err)
	second, err := f.service.CreateFromOrder(context.Background(), testCompanyID, order.ID, 1)
	require.NoError(t, err)

	require.Equal(t, first.ID, second.ID)
	require.Len(t, f.repo.entries, 1)
	require.Len(t, f.repo.entryInstallments(first.ID), 3)
}

func TestCreateFromOrderRegeneratesStaleSchedule(t *testing.T) {
	f := newFixture(t)
	_, pt := f.thirtySixtyNinety()
	order := f.addOrder(OrderInfo{Number: "SO-1005", CustomerID: 7, Total: 90400, PaymentTypeID: &pt.ID})

	entry, err := f.service.CreateFromOrder(context.Background(), testCompanyID, order.ID, 1)
	require.NoError(t, err)

	// Simulate a drifted schedule: drop one installment row.
	installments := f.repo.entryInstallments(entry.ID)
	delete(f.repo.installments, installments[2].ID)

	again, err := f.service.CreateFromOrder(context.Background(), testCompanyID, order.ID, 1)
	require.NoError(t, err)
	require.Equal(t, entry.ID, again.ID)

	regenerated := f.repo.entryInstallments(entry.ID)
	require.Len(t, regenerated, 3)
	var sum int64
	for _, inst := range regenerated {
		sum += inst.Amount
	}
	require.Equal(t, entry.Amount, sum)
}

func TestCreateFromOrderKeepsPaidScheduleUntouched(t *testing.T) {
	f := newFixture(t)
	_, pt := f.thirtySixtyNinety()
	order := f.addOrder(OrderInfo{Number: "SO-1006", CustomerID: 7, Total: 90400, PaymentTypeID: &pt.ID})

	entry, err := f.service.CreateFromOrder(context.Background(), testCompanyID, order.ID, 1)
	require.NoError(t, err)
	installments := f.repo.entryInstallments(entry.ID)

	_, err = f.service.RecordPayment(context.Background(), testCompanyID, entry.ID, RecordPaymentRequest{
		InstallmentID: &installments[0].ID,
		Amount:        installments[0].Amount,
		Method:        "pix",
		PaymentDate:   time.Now(),
	})
	require.NoError(t, err)

	// Drop a row to force a mismatch; payments must block regeneration.
	delete(f.repo.installments, installments[2].ID)

	_, err = f.service.CreateFromOrder(context.Background(), testCompanyID, order.ID, 1)
	require.NoError(t, err)
	require.Len(t, f.repo.entryInstallments(entry.ID), 2)
}

func TestRecordPaymentPartialThenFull(t *testing.T) {
	f := newFixture(t)
	_, pt := f.thirtySixtyNinety()
	order := f.addOrder(OrderInfo{Number: "SO-2001", CustomerID: 7, Total: 90000, PaymentTypeID: &pt.ID})
	entry, err := f.service.CreateFromOrder(context.Background(), testCompanyID, order.ID, 1)
	require.NoError(t, err)
	installments := f.repo.entryInstallments(entry.ID)

	_, err = f.service.RecordPayment(context.Background(), testCompanyID, entry.ID, RecordPaymentRequest{
		InstallmentID: &installments[0].ID,
		Amount:        10000,
		Method:        "pix",
		PaymentDate:   time.Now(),
	})
	require.NoError(t, err)

	got := f.repo.installments[installments[0].ID]
	require.Equal(t, money.StatusPartial, got.Status)
	require.Equal(t, int64(10000), got.AmountPaid)
	require.Equal(t, int64(20000), got.AmountRemaining)

	updated := f.repo.entries[entry.ID]
	require.Equal(t, money.StatusPartial, updated.Status)
	require.Equal(t, updated.Amount, updated.AmountPaid+updated.AmountRemaining)

	_, err = f.service.RecordPayment(context.Background(), testCompanyID, entry.ID, RecordPaymentRequest{
		InstallmentID: &installments[0].ID,
		Amount:        20000,
		Method:        "pix",
		PaymentDate:   time.Now(),
	})
	require.NoError(t, err)

	got = f.repo.installments[installments[0].ID]
	require.Equal(t, money.StatusPaid, got.Status)
	require.NotNil(t, got.PaidAt)
	require.Zero(t, got.AmountRemaining)
}

func TestRecordPaymentFullSettlesEntry(t *testing.T) {
	f := newFixture(t)
	_, pt := f.thirtySixtyNinety()
	order := f.addOrder(OrderInfo{Number: "SO-2002", CustomerID: 7, Total: 90000, PaymentTypeID: &pt.ID})
	entry, err := f.service.CreateFromOrder(context.Background(), testCompanyID, order.ID, 1)
	require.NoError(t, err)

	for _, inst := range f.repo.entryInstallments(entry.ID) {
		instID := inst.ID
		_, err := f.service.RecordPayment(context.Background(), testCompanyID, entry.ID, RecordPaymentRequest{
			InstallmentID: &instID,
			Amount:        inst.Amount,
			Method:        "transfer",
			PaymentDate:   time.Now(),
		})
		require.NoError(t, err)
	}

	settled := f.repo.entries[entry.ID]
	require.Equal(t, money.StatusPaid, settled.Status)
	require.NotNil(t, settled.PaidAt)
	require.Zero(t, settled.AmountRemaining)
}

func TestRecordPaymentPrefersOriginalAmount(t *testing.T) {
	f := newFixture(t)
	_, pt := f.thirtySixtyNinety()
	order := f.addOrder(OrderInfo{Number: "SO-2003", CustomerID: 7, Total: 90000, PaymentTypeID: &pt.ID})
	entry, err := f.service.CreateFromOrder(context.Background(), testCompanyID, order.ID, 1)
	require.NoError(t, err)
	installments := f.repo.entryInstallments(entry.ID)

	// Gateway fee: 300 cents withheld, gross 30000 settles the balance.
	gross := int64(30000)
	_, err = f.service.RecordPayment(context.Background(), testCompanyID, entry.ID, RecordPaymentRequest{
		InstallmentID:  &installments[0].ID,
		Amount:         29700,
		OriginalAmount: &gross,
		Fee:            300,
		Method:         "card",
		PaymentDate:    time.Now(),
	})
	require.NoError(t, err)

	got := f.repo.installments[installments[0].ID]
	require.Equal(t, money.StatusPaid, got.Status)
	require.Equal(t, gross, got.AmountPaid)

	updated := f.repo.entries[entry.ID]
	require.Equal(t, gross, updated.AmountPaid)
}

func TestRecordPaymentRejectsCancelledEntry(t *testing.T) {
	f := newFixture(t)
	_, pt := f.thirtySixtyNinety()
	order := f.addOrder(OrderInfo{Number: "SO-2004", CustomerID: 7, Total: 90000, PaymentTypeID: &pt.ID})
	entry, err := f.service.CreateFromOrder(context.Background(), testCompanyID, order.ID, 1)
	require.NoError(t, err)

	_, err = f.service.Cancel(context.Background(), testCompanyID, entry.ID, "customer returned goods", 1)
	require.NoError(t, err)

	_, err = f.service.RecordPayment(context.Background(), testCompanyID, entry.ID, RecordPaymentRequest{
		Amount:      1000,
		Method:      "pix",
		PaymentDate: time.Now(),
	})
	require.ErrorIs(t, err, ErrEntryCancelled)
}

func TestRecordPaymentCompanyMismatchHidden(t *testing.T) {
	f := newFixture(t)
	_, pt := f.thirtySixtyNinety()
	order := f.addOrder(OrderInfo{Number: "SO-2005", CustomerID: 7, Total: 90000, PaymentTypeID: &pt.ID})
	entry, err := f.service.CreateFromOrder(context.Background(), testCompanyID, order.ID, 1)
	require.NoError(t, err)

	_, err = f.service.RecordPayment(context.Background(), 42, entry.ID, RecordPaymentRequest{
		Amount:      1000,
		Method:      "pix",
		PaymentDate: time.Now(),
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestReversePaymentFull(t *testing.T) {
	f := newFixture(t)
	_, pt := f.thirtySixtyNinety()
	order := f.addOrder(OrderInfo{Number: "SO-3001", CustomerID: 7, Total: 90000, PaymentTypeID: &pt.ID})
	entry, err := f.service.CreateFromOrder(context.Background(), testCompanyID, order.ID, 1)
	require.NoError(t, err)
	installments := f.repo.entryInstallments(entry.ID)

	payment, err := f.service.RecordPayment(context.Background(), testCompanyID, entry.ID, RecordPaymentRequest{
		InstallmentID: &installments[0].ID,
		Amount:        30000,
		Method:        "pix",
		PaymentDate:   time.Now(),
	})
	require.NoError(t, err)

	result, err := f.service.ReversePayment(context.Background(), testCompanyID, payment.ID, nil)
	require.NoError(t, err)
	require.True(t, result.Reversed)
	require.True(t, result.PaymentDeleted)
	require.Equal(t, int64(30000), result.AmountReversed)

	_, exists := f.repo.payments[payment.ID]
	require.False(t, exists)

	inst := f.repo.installments[installments[0].ID]
	require.Equal(t, money.StatusOpen, inst.Status)
	require.Zero(t, inst.AmountPaid)
	require.Nil(t, inst.PaidAt)

	restored := f.repo.entries[entry.ID]
	require.Equal(t, money.StatusOpen, restored.Status)
	require.Zero(t, restored.AmountPaid)
	require.Equal(t, restored.Amount, restored.AmountRemaining)
}

func TestReversePaymentFullRestoresGrossAmount(t *testing.T) {
	f := newFixture(t)
	_, pt := f.thirtySixtyNinety()
	order := f.addOrder(OrderInfo{Number: "SO-3002", CustomerID: 7, Total: 90000, PaymentTypeID: &pt.ID})
	entry, err := f.service.CreateFromOrder(context.Background(), testCompanyID, order.ID, 1)
	require.NoError(t, err)
	installments := f.repo.entryInstallments(entry.ID)

	gross := int64(30000)
	payment, err := f.service.RecordPayment(context.Background(), testCompanyID, entry.ID, RecordPaymentRequest{
		InstallmentID:  &installments[0].ID,
		Amount:         29700,
		OriginalAmount: &gross,
		Fee:            300,
		Method:         "card",
		PaymentDate:    time.Now(),
	})
	require.NoError(t, err)

	result, err := f.service.ReversePayment(context.Background(), testCompanyID, payment.ID, nil)
	require.NoError(t, err)
	require.Equal(t, gross, result.AmountReversed)
	require.Zero(t, f.repo.entries[entry.ID].AmountPaid)
}

func TestReversePaymentPartial(t *testing.T) {
	f := newFixture(t)
	_, pt := f.thirtySixtyNinety()
	order := f.addOrder(OrderInfo{Number: "SO-3003", CustomerID: 7, Total: 90000, PaymentTypeID: &pt.ID})
	entry, err := f.service.CreateFromOrder(context.Background(), testCompanyID, order.ID, 1)
	require.NoError(t, err)
	installments := f.repo.entryInstallments(entry.ID)

	payment, err := f.service.RecordPayment(context.Background(), testCompanyID, entry.ID, RecordPaymentRequest{
		InstallmentID: &installments[0].ID,
		Amount:        30000,
		Method:        "pix",
		PaymentDate:   time.Now(),
	})
	require.NoError(t, err)

	partial := int64(10000)
	result, err := f.service.ReversePayment(context.Background(), testCompanyID, payment.ID, &partial)
	require.NoError(t, err)
	require.True(t, result.Reversed)
	require.False(t, result.PaymentDeleted)
	require.Equal(t, partial, result.AmountReversed)

	kept := f.repo.payments[payment.ID]
	require.Equal(t, int64(20000), kept.Amount)

	inst := f.repo.installments[installments[0].ID]
	require.Equal(t, money.StatusPartial, inst.Status)
	require.Equal(t, int64(20000), inst.AmountPaid)
	require.Nil(t, inst.PaidAt)
}

func TestReversePaymentRejectsExcessAmount(t *testing.T) {
	f := newFixture(t)
	_, pt := f.thirtySixtyNinety()
	order := f.addOrder(OrderInfo{Number: "SO-3004", CustomerID: 7, Total: 90000, PaymentTypeID: &pt.ID})
	entry, err := f.service.CreateFromOrder(context.Background(), testCompanyID, order.ID, 1)
	require.NoError(t, err)

	payment, err := f.service.RecordPayment(context.Background(), testCompanyID, entry.ID, RecordPaymentRequest{
		Amount:      5000,
		Method:      "pix",
		PaymentDate: time.Now(),
	})
	require.NoError(t, err)

	excess := int64(6000)
	_, err = f.service.ReversePayment(context.Background(), testCompanyID, payment.ID, &excess)
	require.ErrorIs(t, err, ErrReversalTooLarge)
}

func TestReversePaymentCompanyMismatchHidden(t *testing.T) {
	f := newFixture(t)
	_, pt := f.thirtySixtyNinety()
	order := f.addOrder(OrderInfo{Number: "SO-3005", CustomerID: 7, Total: 90000, PaymentTypeID: &pt.ID})
	entry, err := f.service.CreateFromOrder(context.Background(), testCompanyID, order.ID, 1)
	require.NoError(t, err)

	payment, err := f.service.RecordPayment(context.Background(), testCompanyID, entry.ID, RecordPaymentRequest{
		Amount:      5000,
		Method:      "pix",
		PaymentDate: time.Now(),
	})
	require.NoError(t, err)

	_, err = f.service.ReversePayment(context.Background(), 42, payment.ID, nil)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCancelByOrderReversesPaymentsFirst(t *testing.T) {
	f := newFixture(t)
	_, pt := f.thirtySixtyNinety()
	order := f.addOrder(OrderInfo{Number: "SO-4001", CustomerID: 7, Total: 90000, PaymentTypeID: &pt.ID})
	entry, err := f.service.CreateFromOrder(context.Background(), testCompanyID, order.ID, 1)
	require.NoError(t, err)
	installments := f.repo.entryInstallments(entry.ID)

	_, err = f.service.RecordPayment(context.Background(), testCompanyID, entry.ID, RecordPaymentRequest{
		InstallmentID: &installments[0].ID,
		Amount:        30000,
		Method:        "pix",
		PaymentDate:   time.Now(),
	})
	require.NoError(t, err)

	cancelled, err := f.service.CancelByOrder(context.Background(), testCompanyID, order.ID, "order cancelled", 1)
	require.NoError(t, err)
	require.Len(t, cancelled, 1)

	got := f.repo.entries[entry.ID]
	require.Equal(t, money.StatusCancelled, got.Status)
	require.Zero(t, got.AmountPaid)
	require.NotNil(t, got.CancelReason)
	require.Empty(t, f.repo.payments)
}

func TestReopenRederivesStatus(t *testing.T) {
	f := newFixture(t)
	_, pt := f.thirtySixtyNinety()
	order := f.addOrder(OrderInfo{Number: "SO-4002", CustomerID: 7, Total: 90000, PaymentTypeID: &pt.ID})
	entry, err := f.service.CreateFromOrder(context.Background(), testCompanyID, order.ID, 1)
	require.NoError(t, err)

	_, err = f.service.RecordPayment(context.Background(), testCompanyID, entry.ID, RecordPaymentRequest{
		Amount:      10000,
		Method:      "pix",
		PaymentDate: time.Now(),
	})
	require.NoError(t, err)

	_, err = f.service.Cancel(context.Background(), testCompanyID, entry.ID, "mistake", 1)
	require.NoError(t, err)

	reopened, err := f.service.Reopen(context.Background(), testCompanyID, entry.ID)
	require.NoError(t, err)
	require.Equal(t, money.StatusPartial, reopened.Status)
	require.Nil(t, reopened.CancelReason)
	require.Nil(t, reopened.CancelledAt)
	require.Nil(t, reopened.CancelledBy)
}

func TestReopenRequiresCancelled(t *testing.T) {
	f := newFixture(t)
	_, pt := f.thirtySixtyNinety()
	order := f.addOrder(OrderInfo{Number: "SO-4003", CustomerID: 7, Total: 90000, PaymentTypeID: &pt.ID})
	entry, err := f.service.CreateFromOrder(context.Background(), testCompanyID, order.ID, 1)
	require.NoError(t, err)

	_, err = f.service.Reopen(context.Background(), testCompanyID, entry.ID)
	require.ErrorIs(t, err, ErrEntryNotCancelled)
}

func TestRecreateInstallmentsSplitsExistingAmount(t *testing.T) {
	f := newFixture(t)
	term, pt := f.thirtySixtyNinety()
	order := f.addOrder(OrderInfo{Number: "SO-5001", CustomerID: 7, Total: 90400, PaymentTypeID: &pt.ID})
	entry, err := f.service.CreateFromOrder(context.Background(), testCompanyID, order.ID, 1)
	require.NoError(t, err)

	// Manual edit drifts the entry away from the order total.
	installments := f.repo.entryInstallments(entry.ID)
	newAmount := installments[0].Amount + 5000
	_, err = f.service.UpdateInstallment(context.Background(), testCompanyID, installments[0].ID, UpdateInstallmentRequest{Amount: &newAmount})
	require.NoError(t, err)

	result, err := f.service.RecreateInstallments(context.Background(), testCompanyID, entry.ID, term.ID)
	require.NoError(t, err)
	require.Equal(t, 3, result.InstallmentCount)
	require.Equal(t, int64(95400), result.Total)

	regenerated := f.repo.entryInstallments(entry.ID)
	require.Len(t, regenerated, 3)
	var sum int64
	for _, inst := range regenerated {
		sum += inst.Amount
	}
	require.Equal(t, int64(95400), sum)
}

func TestRecreateInstallmentsRejectsPaidEntry(t *testing.T) {
	f := newFixture(t)
	term, pt := f.thirtySixtyNinety()
	order := f.addOrder(OrderInfo{Number: "SO-5002", CustomerID: 7, Total: 90000, PaymentTypeID: &pt.ID})
	entry, err := f.service.CreateFromOrder(context.Background(), testCompanyID, order.ID, 1)
	require.NoError(t, err)

	_, err = f.service.RecordPayment(context.Background(), testCompanyID, entry.ID, RecordPaymentRequest{
		Amount:      1000,
		Method:      "pix",
		PaymentDate: time.Now(),
	})
	require.NoError(t, err)

	_, err = f.service.RecreateInstallments(context.Background(), testCompanyID, entry.ID, term.ID)
	require.ErrorIs(t, err, ErrHasPayments)
}

func TestDeleteInstallmentShrinksEntry(t *testing.T) {
	f := newFixture(t)
	_, pt := f.thirtySixtyNinety()
	order := f.addOrder(OrderInfo{Number: "SO-6001", CustomerID: 7, Total: 90000, PaymentTypeID: &pt.ID})
	entry, err := f.service.CreateFromOrder(context.Background(), testCompanyID, order.ID, 1)
	require.NoError(t, err)
	installments := f.repo.entryInstallments(entry.ID)

	result, err := f.service.DeleteInstallment(context.Background(), testCompanyID, installments[2].ID)
	require.NoError(t, err)
	require.True(t, result.Deleted)
	require.False(t, result.EntryDeleted)

	shrunk := f.repo.entries[entry.ID]
	require.Equal(t, int64(60000), shrunk.Amount)
	require.Equal(t, int64(60000), shrunk.AmountRemaining)
	require.Len(t, f.repo.entryInstallments(entry.ID), 2)
}

func TestDeleteLastInstallmentDeletesEntry(t *testing.T) {
	f := newFixture(t)
	_, pt := f.thirtySixtyNinety()
	order := f.addOrder(OrderInfo{Number: "SO-6002", CustomerID: 7, Total: 90000, PaymentTypeID: &pt.ID, AccountsPosted: true})
	entry, err := f.service.CreateFromOrder(context.Background(), testCompanyID, order.ID, 1)
	require.NoError(t, err)

	installments := f.repo.entryInstallments(entry.ID)
	for _, inst := range installments[:2] {
		_, err := f.service.DeleteInstallment(context.Background(), testCompanyID, inst.ID)
		require.NoError(t, err)
	}

	result, err := f.service.DeleteInstallment(context.Background(), testCompanyID, installments[2].ID)
	require.NoError(t, err)
	require.True(t, result.EntryDeleted)

	_, exists := f.repo.entries[entry.ID]
	require.False(t, exists)
	require.False(t, f.repo.orders[order.ID].AccountsPosted)
}

func TestDeleteInstallmentRejectsPaid(t *testing.T) {
	f := newFixture(t)
	_, pt := f.thirtySixtyNinety()
	order := f.addOrder(OrderInfo{Number: "SO-6003", CustomerID: 7, Total: 90000, PaymentTypeID: &pt.ID})
	entry, err := f.service.CreateFromOrder(context.Background(), testCompanyID, order.ID, 1)
	require.NoError(t, err)
	installments := f.repo.entryInstallments(entry.ID)

	_, err = f.service.RecordPayment(context.Background(), testCompanyID, entry.ID, RecordPaymentRequest{
		InstallmentID: &installments[0].ID,
		Amount:        100,
		Method:        "pix",
		PaymentDate:   time.Now(),
	})
	require.NoError(t, err)

	_, err = f.service.DeleteInstallment(context.Background(), testCompanyID, installments[0].ID)
	require.ErrorIs(t, err, ErrInstallmentPaid)
}

func TestUpdateInstallmentPropagatesDelta(t *testing.T) {
	f := newFixture(t)
	_, pt := f.thirtySixtyNinety()
	order := f.addOrder(OrderInfo{Number: "SO-7001", CustomerID: 7, Total: 90000, PaymentTypeID: &pt.ID})
	entry, err := f.service.CreateFromOrder(context.Background(), testCompanyID, order.ID, 1)
	require.NoError(t, err)
	installments := f.repo.entryInstallments(entry.ID)

	newAmount := int64(40000)
	result, err := f.service.UpdateInstallment(context.Background(), testCompanyID, installments[0].ID, UpdateInstallmentRequest{Amount: &newAmount})
	require.NoError(t, err)
	require.Equal(t, newAmount, result.Updated.Amount)
	require.True(t, result.DiffersFromOrder)
	require.NotNil(t, result.OriginalOrder)
	require.Equal(t, int64(90000), result.OriginalOrder.Total)

	updated := f.repo.entries[entry.ID]
	require.Equal(t, int64(100000), updated.Amount)
	require.Equal(t, updated.Amount, updated.AmountPaid+updated.AmountRemaining)
}

func TestListInstallmentsSynthesizesLegacyRow(t *testing.T) {
	f := newFixture(t)

	// Legacy entry persisted before installment tracking existed.
	err := f.repo.WithTx(context.Background(), func(ctx context.Context, tx TxRepository) error {
		_, err := tx.CreateEntry(ctx, Receivable{
			CompanyID:       testCompanyID,
			Number:          "REC-2026-000099",
			CustomerID:      7,
			Amount:          50000,
			AmountRemaining: 50000,
			Status:          money.StatusOpen,
			IssueDate:       time.Now(),
			DueDate:         time.Now().AddDate(0, 0, 30),
		})
		return err
	})
	require.NoError(t, err)

	rows, err := f.service.ListInstallments(context.Background(), ListInstallmentsRequest{CompanyID: testCompanyID})
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.Equal(t, InstallmentSynthesized, rows[0].Source)
	require.Equal(t, int64(50000), rows[0].Amount)
	require.Equal(t, 1, rows[0].Installment.Number)
}

func TestSweepMarksOverdueAndSettled(t *testing.T) {
	f := newFixture(t)
	_, pt := f.thirtySixtyNinety()
	order := f.addOrder(OrderInfo{Number: "SO-8001", CustomerID: 7, Total: 90000, PaymentTypeID: &pt.ID})
	entry, err := f.service.CreateFromOrder(context.Background(), testCompanyID, order.ID, 1)
	require.NoError(t, err)

	// Push the entry past due.
	stale := f.repo.entries[entry.ID]
	stale.DueDate = time.Now().AddDate(0, 0, -5)
	f.repo.entries[entry.ID] = stale

	// A second entry whose installments are all paid but whose status
	// was never rolled up.
	other := f.addOrder(OrderInfo{Number: "SO-8002", CustomerID: 8, Total: 30000, PaymentTypeID: &pt.ID})
	settled, err := f.service.CreateFromOrder(context.Background(), testCompanyID, other.ID, 1)
	require.NoError(t, err)
	for id, inst := range f.repo.installments {
		if inst.ReceivableID == settled.ID {
			now := time.Now()
			inst.Status = money.StatusPaid
			inst.AmountPaid = inst.Amount
			inst.AmountRemaining = 0
			inst.PaidAt = &now
			f.repo.installments[id] = inst
		}
	}

	summary, err := f.service.SweepOverdue(context.Background(), testLogger())
	require.NoError(t, err)
	require.Equal(t, 1, summary.MarkedOverdue)
	require.Equal(t, 1, summary.MarkedPaid)
	require.Equal(t, money.StatusOverdue, f.repo.entries[entry.ID].Status)
	require.Equal(t, money.StatusPaid, f.repo.entries[settled.ID].Status)
	require.NotNil(t, f.repo.entries[settled.ID].PaidAt)

	// A second run finds nothing to change.
	again, err := f.service.SweepOverdue(context.Background(), testLogger())
	require.NoError(t, err)
	require.Zero(t, again.MarkedOverdue)
	require.Zero(t, again.MarkedPaid)
}

func TestCreateManualWithAdHocSchedule(t *testing.T) {
	f := newFixture(t)

	firstDue := time.Date(2026, 2, 5, 0, 0, 0, 0, time.UTC)
	entry, err := f.service.CreateManual(context.Background(), testCompanyID, CreateManualRequest{
		CustomerID:       7,
		Amount:           90400,
		InstallmentCount: 3,
		IntervalDays:     30,
		FirstDueDate:     firstDue,
	})
	require.NoError(t, err)

	installments := f.repo.entryInstallments(entry.ID)
	require.Len(t, installments, 3)
	require.Equal(t, firstDue, installments[0].DueDate)
	require.Equal(t, firstDue.AddDate(0, 0, 30), installments[1].DueDate)
	require.Equal(t, firstDue.AddDate(0, 0, 60), installments[2].DueDate)
	require.Equal(t, int64(30134), installments[0].Amount)
}

func TestDashboardExcludesCancelled(t *testing.T) {
	f := newFixture(t)
	_, pt := f.thirtySixtyNinety()

	active := f.addOrder(OrderInfo{Number: "SO-9001", CustomerID: 7, Total: 90000, PaymentTypeID: &pt.ID})
	_, err := f.service.CreateFromOrder(context.Background(), testCompanyID, active.ID, 1)
	require.NoError(t, err)

	doomed := f.addOrder(OrderInfo{Number: "SO-9002", CustomerID: 8, Total: 50000, PaymentTypeID: &pt.ID})
	entry, err := f.service.CreateFromOrder(context.Background(), testCompanyID, doomed.ID, 1)
	require.NoError(t, err)
	_, err = f.service.Cancel(context.Background(), testCompanyID, entry.ID, "void", 1)
	require.NoError(t, err)

	dash, err := f.service.Dashboard(context.Background(), testCompanyID)
	require.NoError(t, err)
	require.Equal(t, int64(90000), dash.Overview.TotalAmount)
	require.Equal(t, int64(90000), dash.Overview.TotalPending)
	require.Len(t, dash.UpcomingInstallments, 1)
}

func TestDashboardUpcomingStopsAtThirtyDays(t *testing.T) {
	f := newFixture(t)
	_, pt := f.thirtySixtyNinety()

	order := f.addOrder(OrderInfo{Number: "SO-9003", CustomerID: 7, Total: 90000, PaymentTypeID: &pt.ID})
	entry, err := f.service.CreateFromOrder(context.Background(), testCompanyID, order.ID, 1)
	require.NoError(t, err)

	dash, err := f.service.Dashboard(context.Background(), testCompanyID)
	require.NoError(t, err)

	// The 30/60/90 schedule leaves only the first installment inside the
	// 30-day window; the later two stay off the dashboard until they near.
	require.Len(t, dash.UpcomingInstallments, 1)
	require.Equal(t, entry.ID, dash.UpcomingInstallments[0].ReceivableID)
	require.Empty(t, dash.OverdueInstallments)
}
