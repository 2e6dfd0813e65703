package memstore

import (
	"context"
	"fmt"
	"slices"
	"time"

	"pharmapos-backend/internal/domain"
)

// ledgerTx operates on the private state copy of one WithinTx call. The store
// serialises transactions, so locking reads are plain reads here.
type ledgerTx struct {
	st  *state
	now func() time.Time
}

func (t *ledgerTx) LockMedicine(ctx context.Context, scope domain.Scope, id int64) (*domain.MedicineStock, bool, error) {
	m, ok := t.st.medicines[id]
	if !ok || m.BusinessID != scope.BusinessID {
		return nil, false, nil
	}
	m.Units = slices.Clone(m.Units)
	return &m, true, nil
}

func (t *ledgerTx) SetMedicineQuantity(ctx context.Context, scope domain.Scope, id int64, quantity int64) error {
	m, ok := t.st.medicines[id]
	if !ok || m.BusinessID != scope.BusinessID {
		return &domain.MedicineNotFoundError{MedicineID: id}
	}
	if quantity < 0 {
		return fmt.Errorf("medicine %d: negative quantity %d", id, quantity)
	}
	m.Quantity = quantity
	m.UpdatedAt = t.now()
	t.st.medicines[id] = m
	return nil
}

func (t *ledgerTx) InsertStockMovement(ctx context.Context, m *domain.StockMovement) error {
	m.ID = t.st.nextID()
	m.CreatedAt = t.now()
	t.st.movements = append(t.st.movements, *m)
	return nil
}

func (t *ledgerTx) InsertSale(ctx context.Context, s *domain.Sale) error {
	for _, existing := range t.st.sales {
		if existing.TransactionCode == s.TransactionCode {
			return fmt.Errorf("transaction code %s already used", s.TransactionCode)
		}
	}
	s.ID = t.st.nextID()
	s.CreatedAt = t.now()
	stored := *s
	stored.Items = nil
	t.st.sales[s.ID] = stored
	return nil
}

func (t *ledgerTx) InsertSaleItem(ctx context.Context, item *domain.SaleItem) error {
	sale, ok := t.st.sales[item.SaleID]
	if !ok {
		return fmt.Errorf("sale %d does not exist", item.SaleID)
	}
	item.ID = t.st.nextID()
	sale.Items = append(sale.Items, *item)
	t.st.sales[sale.ID] = sale
	return nil
}

func (t *ledgerTx) LockSale(ctx context.Context, scope domain.Scope, id int64) (*domain.Sale, bool, error) {
	sale, ok := t.st.sales[id]
	if !ok || sale.BusinessID != scope.BusinessID {
		return nil, false, nil
	}
	sale.Items = slices.Clone(sale.Items)
	return &sale, true, nil
}

func (t *ledgerTx) DeleteSale(ctx context.Context, scope domain.Scope, id int64) error {
	sale, ok := t.st.sales[id]
	if !ok || sale.BusinessID != scope.BusinessID {
		return domain.ErrSaleNotFound
	}
	delete(t.st.sales, id)
	return nil
}

func (t *ledgerTx) InsertCreditSale(ctx context.Context, c *domain.CreditSale) error {
	if _, ok := t.st.sales[c.SaleID]; !ok {
		return fmt.Errorf("sale %d does not exist", c.SaleID)
	}
	c.ID = t.st.nextID()
	c.CreatedAt = t.now()
	c.UpdatedAt = c.CreatedAt
	t.st.creditSales[c.ID] = *c

	sale := t.st.sales[c.SaleID]
	id := c.ID
	sale.CreditSaleID = &id
	t.st.sales[sale.ID] = sale
	return nil
}

func (t *ledgerTx) LockCreditSale(ctx context.Context, scope domain.Scope, id int64) (*domain.CreditSale, bool, error) {
	cs, ok := t.st.creditSales[id]
	if !ok || cs.BusinessID != scope.BusinessID {
		return nil, false, nil
	}
	return &cs, true, nil
}

func (t *ledgerTx) LockCreditSaleBySale(ctx context.Context, scope domain.Scope, saleID int64) (*domain.CreditSale, bool, error) {
	for _, cs := range t.st.creditSales {
		if cs.SaleID == saleID && cs.BusinessID == scope.BusinessID {
			return &cs, true, nil
		}
	}
	return nil, false, nil
}

func (t *ledgerTx) UpdateCreditSale(ctx context.Context, c *domain.CreditSale) error {
	if _, ok := t.st.creditSales[c.ID]; !ok {
		return domain.ErrCreditSaleNotFound
	}
	c.UpdatedAt = t.now()
	t.st.creditSales[c.ID] = *c
	return nil
}

func (t *ledgerTx) DeleteCreditSale(ctx context.Context, scope domain.Scope, id int64) error {
	cs, ok := t.st.creditSales[id]
	if !ok || cs.BusinessID != scope.BusinessID {
		return domain.ErrCreditSaleNotFound
	}
	delete(t.st.creditSales, id)
	t.st.payments = slices.DeleteFunc(t.st.payments, func(p domain.CreditPayment) bool {
		return p.CreditSaleID == id
	})
	return nil
}

func (t *ledgerTx) InsertCreditPayment(ctx context.Context, p *domain.CreditPayment) error {
	if _, ok := t.st.creditSales[p.CreditSaleID]; !ok {
		return domain.ErrCreditSaleNotFound
	}
	p.ID = t.st.nextID()
	p.CreatedAt = t.now()
	t.st.payments = append(t.st.payments, *p)
	return nil
}
