package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"pharmapos-backend/internal/db"
	"pharmapos-backend/internal/domain"
	"pharmapos-backend/internal/ports"
)

type CreditRepository struct {
	DB *db.Postgres
}

var _ ports.CreditReader = CreditRepository{}

func (r CreditRepository) GetCreditSale(ctx context.Context, scope domain.Scope, id int64) (*domain.CreditSale, error) {
	row := r.DB.Pool.QueryRow(ctx, `
		SELECT `+creditSaleColumns+`
		FROM credit_sales
		WHERE id=$1 AND business_id=$2
	`, id, scope.BusinessID)
	c, err := scanCreditSale(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrCreditSaleNotFound
		}
		return nil, err
	}
	return c, nil
}

func (r CreditRepository) ListCreditSales(ctx context.Context, scope domain.Scope, status domain.CreditStatus, limit int) ([]domain.CreditSale, error) {
	rows, err := r.DB.Pool.Query(ctx, `
		SELECT `+creditSaleColumns+`
		FROM credit_sales
		WHERE business_id=$1 AND ($2 = '' OR status = $2)
		ORDER BY id DESC
		LIMIT $3
	`, scope.BusinessID, string(status), limitArg(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.CreditSale
	for rows.Next() {
		c, err := scanCreditSale(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (r CreditRepository) ListCreditPayments(ctx context.Context, scope domain.Scope, creditSaleID int64) ([]domain.CreditPayment, error) {
	if _, err := r.GetCreditSale(ctx, scope, creditSaleID); err != nil {
		return nil, err
	}
	rows, err := r.DB.Pool.Query(ctx, `
		SELECT `+creditPaymentColumns+`
		FROM credit_payments
		WHERE credit_sale_id=$1
		ORDER BY id ASC
	`, creditSaleID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.CreditPayment
	for rows.Next() {
		p, err := scanCreditPayment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
