package orders

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Repository provides persistence for sales orders.
type Repository interface {
	GetOrder(ctx context.Context, companyID, id int64) (SalesOrder, error)
	UpdateStatus(ctx context.Context, companyID, id int64, status Status) error
	SetAccountsPosted(ctx context.Context, companyID, id int64, posted bool, actorID int64) error
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) GetOrder(ctx context.Context, companyID, id int64) (SalesOrder, error) {
	var o SalesOrder
	err := r.pool.QueryRow(ctx, `
		SELECT id, company_id, number, customer_id, salesperson_id,
		       total, status, payment_type_id, payment_term_id,
		       accounts_posted, posted_at, posted_by, created_at, updated_at
		FROM sales_orders WHERE id = $1 AND company_id = $2`, id, companyID,
	).Scan(
		&o.ID, &o.CompanyID, &o.Number, &o.CustomerID, &o.SalespersonID,
		&o.Total, &o.Status, &o.PaymentTypeID, &o.PaymentTermID,
		&o.AccountsPosted, &o.PostedAt, &o.PostedBy, &o.CreatedAt, &o.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return SalesOrder{}, shared.ErrNotFound
	}
	return o, err
}

func (r *pgRepository) UpdateStatus(ctx context.Context, companyID, id int64, status Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sales_orders SET status = $3, updated_at = NOW()
		WHERE id = $1 AND company_id = $2`, id, companyID, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// SetAccountsPosted flips the posting flag and keeps the audit pair in
// step: posting stamps the time and actor, reversing clears both.
func (r *pgRepository) SetAccountsPosted(ctx context.Context, companyID, id int64, posted bool, actorID int64) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE sales_orders SET accounts_posted = $3,
		       posted_at = CASE WHEN $3 THEN NOW() ELSE NULL END,
		       posted_by = CASE WHEN $3 THEN $4::bigint ELSE NULL END,
		       updated_at = NOW()
		WHERE id = $1 AND company_id = $2`, id, companyID, posted, actorID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}
