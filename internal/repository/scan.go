package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgtype"
	"pharmapos-backend/internal/domain"
)

const medicineColumns = `id, business_id, name, base_unit, unit_price, unit_cost, quantity, reorder_level, unit_conversions, updated_at`

func scanMedicine(row scanner) (*domain.MedicineStock, error) {
	var (
		m     domain.MedicineStock
		units []byte
	)
	if err := row.Scan(
		&m.ID, &m.BusinessID, &m.Name, &m.BaseUnit, &m.UnitPrice, &m.UnitCost,
		&m.Quantity, &m.ReorderLevel, &units, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	decoded, err := decodeUnits(units)
	if err != nil {
		return nil, err
	}
	m.Units = decoded
	return &m, nil
}

const saleColumns = `s.id, s.business_id, s.transaction_code, s.cashier_id, s.cashier_name,
	s.subtotal, s.discount, s.tax, s.total, s.profit, s.cost_of_goods, s.payment_method,
	s.customer_name, s.customer_phone, s.notes, s.created_at, cs.id`

const saleFrom = `sales s LEFT JOIN credit_sales cs ON cs.sale_id = s.id`

func scanSale(row scanner) (*domain.Sale, error) {
	var (
		s         domain.Sale
		cashierID pgtype.Int8
		method    string
		creditID  pgtype.Int8
	)
	if err := row.Scan(
		&s.ID, &s.BusinessID, &s.TransactionCode, &cashierID, &s.CashierName,
		&s.Subtotal, &s.Discount, &s.Tax, &s.Total, &s.Profit, &s.CostOfGoods, &method,
		&s.CustomerName, &s.CustomerPhone, &s.Notes, &s.CreatedAt, &creditID,
	); err != nil {
		return nil, err
	}
	s.CashierID = cashierID.Int64
	s.PaymentMethod = domain.PaymentMethod(method)
	s.CreditSaleID = int8Ptr(creditID)
	return &s, nil
}

const saleItemColumns = `id, sale_id, medicine_id, medicine_name, quantity, unit_label, base_quantity,
	unit_price, unit_cost, subtotal, cost, profit`

func loadSaleItems(ctx context.Context, q querier, saleIDs []int64) (map[int64][]domain.SaleItem, error) {
	out := make(map[int64][]domain.SaleItem, len(saleIDs))
	if len(saleIDs) == 0 {
		return out, nil
	}
	rows, err := q.Query(ctx, `
		SELECT `+saleItemColumns+`
		FROM sale_items
		WHERE sale_id = ANY($1)
		ORDER BY id ASC
	`, saleIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var it domain.SaleItem
		if err := rows.Scan(
			&it.ID, &it.SaleID, &it.MedicineID, &it.MedicineName, &it.Quantity, &it.UnitLabel, &it.BaseQuantity,
			&it.UnitPrice, &it.UnitCost, &it.Subtotal, &it.Cost, &it.Profit,
		); err != nil {
			return nil, err
		}
		out[it.SaleID] = append(out[it.SaleID], it)
	}
	return out, rows.Err()
}

const creditSaleColumns = `id, business_id, sale_id, customer_name, customer_phone, total_amount, paid_amount,
	balance_amount, status, due_date, created_at, updated_at`

func scanCreditSale(row scanner) (*domain.CreditSale, error) {
	var (
		c      domain.CreditSale
		status string
		due    pgtype.Date
	)
	if err := row.Scan(
		&c.ID, &c.BusinessID, &c.SaleID, &c.CustomerName, &c.CustomerPhone, &c.TotalAmount, &c.PaidAmount,
		&c.BalanceAmount, &status, &due, &c.CreatedAt, &c.UpdatedAt,
	); err != nil {
		return nil, err
	}
	c.Status = domain.CreditStatus(status)
	if due.Valid {
		t := due.Time
		c.DueDate = &t
	}
	return &c, nil
}

func dateArg(t *time.Time) pgtype.Date {
	if t == nil {
		return pgtype.Date{}
	}
	return pgtype.Date{Time: *t, Valid: true}
}

const creditPaymentColumns = `id, credit_sale_id, amount, method, received_by_id, received_by_name, notes, created_at`

func scanCreditPayment(row scanner) (*domain.CreditPayment, error) {
	var (
		p      domain.CreditPayment
		method string
		by     pgtype.Int8
	)
	if err := row.Scan(&p.ID, &p.CreditSaleID, &p.Amount, &method, &by, &p.ReceivedByName, &p.Notes, &p.CreatedAt); err != nil {
		return nil, err
	}
	p.Method = domain.PaymentMethod(method)
	p.ReceivedByID = by.Int64
	return &p, nil
}

const movementColumns = `id, business_id, medicine_id, medicine_name, type, quantity, reference_type, reference_id,
	actor_id, actor_name, previous_stock, new_stock, note, created_at`

func scanMovement(row scanner) (*domain.StockMovement, error) {
	var (
		m       domain.StockMovement
		typ     string
		refType pgtype.Text
		refID   pgtype.Int8
		actorID pgtype.Int8
	)
	if err := row.Scan(
		&m.ID, &m.BusinessID, &m.MedicineID, &m.MedicineName, &typ, &m.Quantity, &refType, &refID,
		&actorID, &m.ActorName, &m.PreviousStock, &m.NewStock, &m.Note, &m.CreatedAt,
	); err != nil {
		return nil, err
	}
	m.Type = domain.MovementType(typ)
	m.ReferenceType = refType.String
	m.ReferenceID = int8Ptr(refID)
	m.ActorID = actorID.Int64
	return &m, nil
}

func nullInt8(v int64) pgtype.Int8 {
	return pgtype.Int8{Int64: v, Valid: v != 0}
}

func nullText(s string) pgtype.Text {
	return pgtype.Text{String: s, Valid: s != ""}
}
