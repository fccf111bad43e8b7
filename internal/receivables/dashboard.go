package receivables

import (
	"context"
	"sort"
	"time"

	"github.com/meridian-erp/meridian-erp/internal/money"
)

const dashboardListLimit = 10

// Dashboard aggregates open balances and the nearest installments for a
// company. Cancelled entries are excluded from every figure, and the
// upcoming list only looks 30 days ahead.
func (s *Service) Dashboard(ctx context.Context, companyID int64) (Dashboard, error) {
	entries, err := s.repo.ListEntriesWithInstallments(ctx, ListInstallmentsRequest{CompanyID: companyID})
	if err != nil {
		return Dashboard{}, err
	}

	today := time.Now()
	horizon := today.AddDate(0, 0, 30)
	var dash Dashboard
	var upcoming, overdue []InstallmentRow
	for _, e := range entries {
		if e.Entry.Status == money.StatusCancelled {
			continue
		}
		dash.Overview.TotalAmount += e.Entry.Amount
		dash.Overview.TotalPaid += e.Entry.AmountPaid
		dash.Overview.TotalPending += e.Entry.AmountRemaining

		installments := e.Installments
		if len(installments) == 0 {
			installments = []Installment{synthesizeInstallment(e.Entry)}
		}
		for _, inst := range installments {
			if inst.Status == money.StatusPaid {
				continue
			}
			row := enrichRow(e, inst)
			if inst.DueDate.Before(today) {
				dash.Overview.TotalOverdue += inst.AmountRemaining
				overdue = append(overdue, row)
			} else if !inst.DueDate.After(horizon) {
				upcoming = append(upcoming, row)
			}
		}
	}

	sort.Slice(upcoming, func(i, j int) bool { return upcoming[i].DueDate.Before(upcoming[j].DueDate) })
	sort.Slice(overdue, func(i, j int) bool { return overdue[i].DueDate.Before(overdue[j].DueDate) })
	if len(upcoming) > dashboardListLimit {
		upcoming = upcoming[:dashboardListLimit]
	}
	if len(overdue) > dashboardListLimit {
		overdue = overdue[:dashboardListLimit]
	}
	dash.UpcomingInstallments = upcoming
	dash.OverdueInstallments = overdue
	return dash, nil
}
