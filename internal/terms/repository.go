package terms

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

var _ Repository = (*pgRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

const termColumns = `id, company_id, name, installment_count, first_payment_days, interval_days, sort_order, active, created_at, updated_at`

func (r *pgRepository) CreateTerm(ctx context.Context, term PaymentTerm) (PaymentTerm, error) {
	query := `
		INSERT INTO payment_terms (
			company_id, name, installment_count, first_payment_days,
			interval_days, sort_order, active, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, TRUE, NOW(), NOW())
		RETURNING id, created_at, updated_at`

	err := r.pool.QueryRow(ctx, query,
		term.CompanyID,
		term.Name,
		term.InstallmentCount,
		term.FirstPaymentDays,
		term.IntervalDays,
		term.SortOrder,
	).Scan(&term.ID, &term.CreatedAt, &term.UpdatedAt)
	if err != nil {
		return PaymentTerm{}, err
	}
	term.Active = true
	return term, nil
}

func (r *pgRepository) GetTerm(ctx context.Context, companyID, id int64) (PaymentTerm, error) {
	query := `SELECT ` + termColumns + ` FROM payment_terms WHERE id = $1 AND company_id = $2`

	var term PaymentTerm
	err := r.pool.QueryRow(ctx, query, id, companyID).Scan(
		&term.ID, &term.CompanyID, &term.Name, &term.InstallmentCount,
		&term.FirstPaymentDays, &term.IntervalDays, &term.SortOrder,
		&term.Active, &term.CreatedAt, &term.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return PaymentTerm{}, shared.ErrNotFound
	}
	if err != nil {
		return PaymentTerm{}, err
	}
	return term, nil
}

func (r *pgRepository) ListTerms(ctx context.Context, companyID int64, includeInactive bool) ([]PaymentTerm, error) {
	query := `SELECT ` + termColumns + ` FROM payment_terms WHERE company_id = $1`
	if !includeInactive {
		query += ` AND active`
	}
	query += ` ORDER BY sort_order, name`

	rows, err := r.pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PaymentTerm
	for rows.Next() {
		var term PaymentTerm
		if err := rows.Scan(
			&term.ID, &term.CompanyID, &term.Name, &term.InstallmentCount,
			&term.FirstPaymentDays, &term.IntervalDays, &term.SortOrder,
			&term.Active, &term.CreatedAt, &term.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, term)
	}
	return out, rows.Err()
}

func (r *pgRepository) UpdateTerm(ctx context.Context, term PaymentTerm) (PaymentTerm, error) {
	query := `
		UPDATE payment_terms
		SET name = $3, installment_count = $4, first_payment_days = $5,
			interval_days = $6, sort_order = $7, updated_at = NOW()
		WHERE id = $1 AND company_id = $2
		RETURNING updated_at`

	err := r.pool.QueryRow(ctx, query,
		term.ID, term.CompanyID, term.Name, term.InstallmentCount,
		term.FirstPaymentDays, term.IntervalDays, term.SortOrder,
	).Scan(&term.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return PaymentTerm{}, shared.ErrNotFound
	}
	if err != nil {
		return PaymentTerm{}, err
	}
	return term, nil
}

func (r *pgRepository) DeactivateTerm(ctx context.Context, companyID, id int64) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE payment_terms SET active = FALSE, updated_at = NOW() WHERE id = $1 AND company_id = $2`,
		id, companyID,
	)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func (r *pgRepository) GetPaymentType(ctx context.Context, companyID, id int64) (PaymentType, error) {
	query := `
		SELECT id, company_id, name, term_type, payment_term_id, active, created_at, updated_at
		FROM payment_types
		WHERE id = $1 AND company_id = $2`

	var pt PaymentType
	var termID pgtype.Int8
	err := r.pool.QueryRow(ctx, query, id, companyID).Scan(
		&pt.ID, &pt.CompanyID, &pt.Name, &pt.TermType, &termID,
		&pt.Active, &pt.CreatedAt, &pt.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return PaymentType{}, shared.ErrNotFound
	}
	if err != nil {
		return PaymentType{}, fmt.Errorf("get payment type: %w", err)
	}
	if termID.Valid {
		pt.PaymentTermID = &termID.Int64
	}
	return pt, nil
}

func (r *pgRepository) ListPaymentTypes(ctx context.Context, companyID int64) ([]PaymentType, error) {
	query := `
		SELECT id, company_id, name, term_type, payment_term_id, active, created_at, updated_at
		FROM payment_types
		WHERE company_id = $1 AND active
		ORDER BY name`

	rows, err := r.pool.Query(ctx, query, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PaymentType
	for rows.Next() {
		var pt PaymentType
		var termID pgtype.Int8
		if err := rows.Scan(
			&pt.ID, &pt.CompanyID, &pt.Name, &pt.TermType, &termID,
			&pt.Active, &pt.CreatedAt, &pt.UpdatedAt,
		); err != nil {
			return nil, err
		}
		if termID.Valid {
			pt.PaymentTermID = &termID.Int64
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}
