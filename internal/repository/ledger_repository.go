package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"pharmapos-backend/internal/db"
	"pharmapos-backend/internal/domain"
	"pharmapos-backend/internal/ports"
)

// LedgerRepository runs ledger transactions on Postgres. Locking reads use
// SELECT ... FOR UPDATE so concurrent sales of one medicine serialise.
type LedgerRepository struct {
	DB *db.Postgres
}

var (
	_ ports.TxManager = LedgerRepository{}
	_ ports.LedgerTx  = ledgerTx{}
)

func (r LedgerRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.LedgerTx) error) error {
	tx, err := r.DB.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin ledger tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if r.DB.LockTimeout > 0 {
		if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = %d", r.DB.LockTimeout.Milliseconds())); err != nil {
			return fmt.Errorf("set lock timeout: %w", err)
		}
	}

	if err := fn(ctx, ledgerTx{tx: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit ledger tx: %w", err)
	}
	return nil
}

type ledgerTx struct {
	tx pgx.Tx
}

func (t ledgerTx) LockMedicine(ctx context.Context, scope domain.Scope, id int64) (*domain.MedicineStock, bool, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+medicineColumns+`
		FROM medicines
		WHERE id=$1 AND business_id=$2
		FOR UPDATE
	`, id, scope.BusinessID)
	m, err := scanMedicine(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return m, true, nil
}

func (t ledgerTx) SetMedicineQuantity(ctx context.Context, scope domain.Scope, id int64, quantity int64) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE medicines
		SET quantity=$1, updated_at=now()
		WHERE id=$2 AND business_id=$3
	`, quantity, id, scope.BusinessID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return &domain.MedicineNotFoundError{MedicineID: id}
	}
	return nil
}

func (t ledgerTx) InsertStockMovement(ctx context.Context, m *domain.StockMovement) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO stock_movements
		(business_id, medicine_id, medicine_name, type, quantity, reference_type, reference_id,
		 actor_id, actor_name, previous_stock, new_stock, note, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12, now())
		RETURNING id, created_at
	`, m.BusinessID, m.MedicineID, m.MedicineName, string(m.Type), m.Quantity, nullText(m.ReferenceType), m.ReferenceID,
		nullInt8(m.ActorID), m.ActorName, m.PreviousStock, m.NewStock, m.Note).Scan(&m.ID, &m.CreatedAt)
}

func (t ledgerTx) InsertSale(ctx context.Context, s *domain.Sale) error {
	err := t.tx.QueryRow(ctx, `
		INSERT INTO sales
		(business_id, transaction_code, cashier_id, cashier_name, subtotal, discount, tax, total, profit,
		 cost_of_goods, payment_method, customer_name, customer_phone, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14, now())
		RETURNING id, created_at
	`, s.BusinessID, s.TransactionCode, nullInt8(s.CashierID), s.CashierName, s.Subtotal, s.Discount, s.Tax, s.Total, s.Profit,
		s.CostOfGoods, string(s.PaymentMethod), s.CustomerName, s.CustomerPhone, s.Notes).Scan(&s.ID, &s.CreatedAt)
	if err != nil && IsDuplicate(err) {
		return fmt.Errorf("transaction code %s already used: %w", s.TransactionCode, err)
	}
	return err
}

func (t ledgerTx) InsertSaleItem(ctx context.Context, it *domain.SaleItem) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO sale_items
		(sale_id, medicine_id, medicine_name, quantity, unit_label, base_quantity, unit_price, unit_cost, subtotal, cost, profit)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		RETURNING id
	`, it.SaleID, it.MedicineID, it.MedicineName, it.Quantity, it.UnitLabel, it.BaseQuantity,
		it.UnitPrice, it.UnitCost, it.Subtotal, it.Cost, it.Profit).Scan(&it.ID)
}

func (t ledgerTx) LockSale(ctx context.Context, scope domain.Scope, id int64) (*domain.Sale, bool, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+saleColumns+`
		FROM `+saleFrom+`
		WHERE s.id=$1 AND s.business_id=$2
		FOR UPDATE OF s
	`, id, scope.BusinessID)
	s, err := scanSale(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	items, err := loadSaleItems(ctx, t.tx, []int64{s.ID})
	if err != nil {
		return nil, false, fmt.Errorf("load sale items: %w", err)
	}
	s.Items = items[s.ID]
	return s, true, nil
}

func (t ledgerTx) DeleteSale(ctx context.Context, scope domain.Scope, id int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM sale_items WHERE sale_id=$1`, id); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM sales WHERE id=$1 AND business_id=$2`, id, scope.BusinessID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSaleNotFound
	}
	return nil
}

func (t ledgerTx) InsertCreditSale(ctx context.Context, c *domain.CreditSale) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO credit_sales
		(business_id, sale_id, customer_name, customer_phone, total_amount, paid_amount, balance_amount, status, due_date, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, now(), now())
		RETURNING id, created_at, updated_at
	`, c.BusinessID, c.SaleID, c.CustomerName, c.CustomerPhone, c.TotalAmount, c.PaidAmount, c.BalanceAmount,
		string(c.Status), dateArg(c.DueDate)).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
}

func (t ledgerTx) lockCreditSale(ctx context.Context, where string, args ...any) (*domain.CreditSale, bool, error) {
	row := t.tx.QueryRow(ctx, `
		SELECT `+creditSaleColumns+`
		FROM credit_sales
		WHERE `+where+`
		FOR UPDATE
	`, args...)
	c, err := scanCreditSale(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return c, true, nil
}

func (t ledgerTx) LockCreditSale(ctx context.Context, scope domain.Scope, id int64) (*domain.CreditSale, bool, error) {
	return t.lockCreditSale(ctx, "id=$1 AND business_id=$2", id, scope.BusinessID)
}

func (t ledgerTx) LockCreditSaleBySale(ctx context.Context, scope domain.Scope, saleID int64) (*domain.CreditSale, bool, error) {
	return t.lockCreditSale(ctx, "sale_id=$1 AND business_id=$2", saleID, scope.BusinessID)
}

func (t ledgerTx) UpdateCreditSale(ctx context.Context, c *domain.CreditSale) error {
	err := t.tx.QueryRow(ctx, `
		UPDATE credit_sales
		SET paid_amount=$1, balance_amount=$2, status=$3, updated_at=now()
		WHERE id=$4 AND business_id=$5
		RETURNING updated_at
	`, c.PaidAmount, c.BalanceAmount, string(c.Status), c.ID, c.BusinessID).Scan(&c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrCreditSaleNotFound
	}
	return err
}

func (t ledgerTx) DeleteCreditSale(ctx context.Context, scope domain.Scope, id int64) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM credit_payments WHERE credit_sale_id=$1`, id); err != nil {
		return err
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM credit_sales WHERE id=$1 AND business_id=$2`, id, scope.BusinessID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrCreditSaleNotFound
	}
	return nil
}

func (t ledgerTx) InsertCreditPayment(ctx context.Context, p *domain.CreditPayment) error {
	return t.tx.QueryRow(ctx, `
		INSERT INTO credit_payments (credit_sale_id, amount, method, received_by_id, received_by_name, notes, created_at)
		VALUES ($1,$2,$3,$4,$5,$6, now())
		RETURNING id, created_at
	`, p.CreditSaleID, p.Amount, string(p.Method), nullInt8(p.ReceivedByID), p.ReceivedByName, p.Notes).Scan(&p.ID, &p.CreatedAt)
}
