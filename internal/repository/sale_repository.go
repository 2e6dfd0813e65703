package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"pharmapos-backend/internal/db"
	"pharmapos-backend/internal/domain"
	"pharmapos-backend/internal/ports"
)

type SaleRepository struct {
	DB *db.Postgres
}

var _ ports.SaleReader = SaleRepository{}

func (r SaleRepository) GetSale(ctx context.Context, scope domain.Scope, id int64) (*domain.Sale, error) {
	row := r.DB.Pool.QueryRow(ctx, `
		SELECT `+saleColumns+`
		FROM `+saleFrom+`
		WHERE s.id=$1 AND s.business_id=$2
	`, id, scope.BusinessID)
	s, err := scanSale(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSaleNotFound
		}
		return nil, err
	}
	items, err := loadSaleItems(ctx, r.DB.Pool, []int64{s.ID})
	if err != nil {
		return nil, err
	}
	s.Items = items[s.ID]
	return s, nil
}

func (r SaleRepository) ListSales(ctx context.Context, scope domain.Scope, limit int) ([]domain.Sale, error) {
	rows, err := r.DB.Pool.Query(ctx, `
		SELECT `+saleColumns+`
		FROM `+saleFrom+`
		WHERE s.business_id=$1
		ORDER BY s.id DESC
		LIMIT $2
	`, scope.BusinessID, limitArg(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var (
		sales []domain.Sale
		ids   []int64
	)
	for rows.Next() {
		s, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		ids = append(ids, s.ID)
		sales = append(sales, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	items, err := loadSaleItems(ctx, r.DB.Pool, ids)
	if err != nil {
		return nil, err
	}
	for i := range sales {
		sales[i].Items = items[sales[i].ID]
	}
	return sales, nil
}
