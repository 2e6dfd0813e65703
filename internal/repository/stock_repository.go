package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"pharmapos-backend/internal/db"
	"pharmapos-backend/internal/domain"
	"pharmapos-backend/internal/ports"
)

type StockRepository struct {
	DB *db.Postgres
}

var (
	_ ports.StockReader     = StockRepository{}
	_ ports.MedicineCatalog = StockRepository{}
)

func (r StockRepository) ListMedicines(ctx context.Context, scope domain.Scope, limit int) ([]domain.MedicineStock, error) {
	rows, err := r.DB.Pool.Query(ctx, `
		SELECT `+medicineColumns+`
		FROM medicines
		WHERE business_id=$1
		ORDER BY name ASC
		LIMIT $2
	`, scope.BusinessID, limitArg(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []domain.MedicineStock
	for rows.Next() {
		m, err := scanMedicine(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *m)
	}
	return items, rows.Err()
}

func (r StockRepository) ListMovements(ctx context.Context, scope domain.Scope, medicineID int64, limit int) ([]domain.StockMovement, error) {
	rows, err := r.DB.Pool.Query(ctx, `
		SELECT `+movementColumns+`
		FROM stock_movements
		WHERE business_id=$1 AND ($2::bigint = 0 OR medicine_id = $2)
		ORDER BY id DESC
		LIMIT $3
	`, scope.BusinessID, medicineID, limitArg(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.StockMovement
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// CreateMedicine inserts a catalog row with its opening quantity.
func (r StockRepository) CreateMedicine(ctx context.Context, m domain.MedicineStock) (*domain.MedicineStock, error) {
	units, err := encodeUnits(m.Units)
	if err != nil {
		return nil, err
	}
	row := r.DB.Pool.QueryRow(ctx, `
		INSERT INTO medicines (business_id, name, base_unit, unit_price, unit_cost, quantity, reorder_level, unit_conversions, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8, now(), now())
		ON CONFLICT DO NOTHING
		RETURNING `+medicineColumns, m.BusinessID, m.Name, m.BaseUnit, m.UnitPrice, m.UnitCost, m.Quantity, m.ReorderLevel, units)
	created, err := scanMedicine(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrMedicineExists
	}
	return created, err
}

// UpdateMedicine rewrites the catalog fields; quantity is not touched.
func (r StockRepository) UpdateMedicine(ctx context.Context, m domain.MedicineStock) error {
	units, err := encodeUnits(m.Units)
	if err != nil {
		return err
	}
	tag, err := r.DB.Pool.Exec(ctx, `
		UPDATE medicines
		SET name=$3, base_unit=$4, unit_price=$5, unit_cost=$6, reorder_level=$7, unit_conversions=$8, updated_at=now()
		WHERE id=$1 AND business_id=$2
	`, m.ID, m.BusinessID, m.Name, m.BaseUnit, m.UnitPrice, m.UnitCost, m.ReorderLevel, units)
	if err != nil {
		if IsDuplicate(err) {
			return domain.ErrMedicineExists
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return &domain.MedicineNotFoundError{MedicineID: m.ID}
	}
	return nil
}
