package sale

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pharmapos-backend/internal/credit"
	"pharmapos-backend/internal/domain"
	"pharmapos-backend/internal/idempotency"
	"pharmapos-backend/internal/memstore"
	"pharmapos-backend/internal/ports"
)

var scope = domain.Scope{BusinessID: 1}

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func ptr(d decimal.Decimal) *decimal.Decimal { return &d }

type fixture struct {
	store   *memstore.Store
	coord   *Coordinator
	cashier domain.User
	a, b    domain.MedicineStock
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := memstore.New()
	f := &fixture{store: store}
	f.cashier = store.AddUser(domain.User{BusinessID: 1, Name: "Kofi", Email: "kofi@pharmapos.local", Role: domain.RoleCashier})
	f.a = store.AddMedicine(domain.MedicineStock{
		BusinessID: 1, Name: "Medicine A", BaseUnit: "tablet",
		UnitPrice: dec("100"), UnitCost: dec("60"), Quantity: 10,
		Units: []domain.UnitConversion{{Label: "strip", BaseQuantity: 2}},
	})
	f.b = store.AddMedicine(domain.MedicineStock{
		BusinessID: 1, Name: "Medicine B", BaseUnit: "tablet",
		UnitPrice: dec("50"), UnitCost: dec("20"), Quantity: 5,
	})
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	guard := idempotency.NewGuard(idempotency.NewMemoryStore(), time.Minute)
	f.coord = NewCoordinator(store, store, guard, logger, true)
	return f
}

func (f *fixture) cart() []ItemInput {
	return []ItemInput{
		{MedicineID: f.a.ID, Quantity: 3},
		{MedicineID: f.b.ID, Quantity: 2},
	}
}

func (f *fixture) quantity(t *testing.T, id int64) int64 {
	t.Helper()
	m, ok := f.store.Medicine(id)
	require.True(t, ok)
	return m.Quantity
}

func TestCreateSaleCash(t *testing.T) {
	f := newFixture(t)

	res, err := f.coord.CreateSale(context.Background(), CreateInput{
		Scope: scope, CashierID: f.cashier.ID, Items: f.cart(),
		PaymentMethod: domain.PaymentCash, Discount: dec("20"), IdempotencyKey: "k-cash",
	})
	require.NoError(t, err)

	s := res.Sale
	assert.True(t, s.Subtotal.Equal(dec("400")), s.Subtotal.String())
	assert.True(t, s.Total.Equal(dec("380")), s.Total.String())
	assert.True(t, s.Profit.Equal(dec("160")), s.Profit.String())
	assert.True(t, s.CostOfGoods.Equal(dec("220")), s.CostOfGoods.String())
	assert.True(t, s.Total.Equal(s.Subtotal.Sub(s.Discount).Add(s.Tax)))
	assert.Equal(t, "Kofi", s.CashierName)
	assert.Nil(t, res.CreditSaleID)
	assert.Regexp(t, regexp.MustCompile(`^TXN-\d{8}-[0-9A-F]{8}$`), s.TransactionCode)
	require.Len(t, s.Items, 2)
	assert.Equal(t, "Medicine A", s.Items[0].MedicineName)

	assert.Equal(t, int64(7), f.quantity(t, f.a.ID))
	assert.Equal(t, int64(3), f.quantity(t, f.b.ID))

	movements := f.store.AllMovements()
	require.Len(t, movements, 2)
	for _, m := range movements {
		assert.Equal(t, domain.MovementSale, m.Type)
		assert.Equal(t, domain.ReferenceSale, m.ReferenceType)
		require.NotNil(t, m.ReferenceID)
		assert.Equal(t, s.ID, *m.ReferenceID)
		assert.Equal(t, m.PreviousStock+m.Quantity, m.NewStock)
	}

	stored, err := f.store.GetSale(context.Background(), scope, s.ID)
	require.NoError(t, err)
	assert.Len(t, stored.Items, 2)
}

func TestCreateSaleCreditThenPayments(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.coord.CreateSale(ctx, CreateInput{
		Scope: scope, CashierID: f.cashier.ID, Items: f.cart(),
		PaymentMethod: "credit", Discount: dec("20"),
		CustomerName: "Jane Doe", CustomerPhone: "0244000000",
	})
	require.NoError(t, err)
	require.NotNil(t, res.CreditSaleID)

	cs, err := f.store.GetCreditSale(ctx, scope, *res.CreditSaleID)
	require.NoError(t, err)
	assert.Equal(t, domain.CreditPending, cs.Status)
	assert.True(t, cs.BalanceAmount.Equal(dec("380")))
	assert.True(t, cs.PaidAmount.IsZero())
	assert.Equal(t, res.Sale.ID, cs.SaleID)

	ledger := credit.Ledger{Tx: f.store, Actors: f.store}
	pay, err := ledger.ApplyPayment(ctx, credit.PaymentInput{Scope: scope, CreditSaleID: cs.ID, Amount: dec("250"), Method: domain.PaymentCash})
	require.NoError(t, err)
	assert.Equal(t, domain.CreditPartial, pay.CreditSale.Status)
	assert.True(t, pay.CreditSale.BalanceAmount.Equal(dec("130")))

	pay, err = ledger.ApplyPayment(ctx, credit.PaymentInput{Scope: scope, CreditSaleID: cs.ID, Amount: dec("200"), Method: domain.PaymentCash})
	require.NoError(t, err)
	assert.Equal(t, domain.CreditPaid, pay.CreditSale.Status)
	assert.True(t, pay.Applied.Equal(dec("130")))
	assert.True(t, pay.CreditSale.BalanceAmount.IsZero())
}

func TestCreateSaleValidation(t *testing.T) {
	f := newFixture(t)
	other := f.store.AddMedicine(domain.MedicineStock{BusinessID: 2, Name: "Elsewhere", UnitPrice: dec("1"), UnitCost: dec("1"), Quantity: 100})

	var (
		notFound *domain.MedicineNotFoundError
		badUnit  *domain.InvalidUnitError
	)
	cases := []struct {
		name  string
		in    CreateInput
		check func(t *testing.T, err error)
	}{
		{"empty cart", CreateInput{Scope: scope, PaymentMethod: domain.PaymentCash},
			func(t *testing.T, err error) { assert.ErrorIs(t, err, domain.ErrEmptyCart) }},
		{"credit without customer", CreateInput{Scope: scope, Items: f.cart(), PaymentMethod: domain.PaymentCredit, CustomerName: "Jane"},
			func(t *testing.T, err error) { assert.ErrorIs(t, err, domain.ErrMissingCustomerInfo) }},
		{"unknown method", CreateInput{Scope: scope, Items: f.cart(), PaymentMethod: "CHEQUE"},
			func(t *testing.T, err error) { assert.ErrorIs(t, err, domain.ErrInvalidPaymentMethod) }},
		{"no scope", CreateInput{Items: f.cart(), PaymentMethod: domain.PaymentCash},
			func(t *testing.T, err error) { assert.ErrorIs(t, err, domain.ErrScopeRequired) }},
		{"negative discount", CreateInput{Scope: scope, Items: f.cart(), PaymentMethod: domain.PaymentCash, Discount: dec("-1")},
			func(t *testing.T, err error) { assert.ErrorIs(t, err, domain.ErrInvalidDiscount) }},
		{"discount above subtotal", CreateInput{Scope: scope, Items: f.cart(), PaymentMethod: domain.PaymentCash, Discount: dec("401")},
			func(t *testing.T, err error) { assert.ErrorIs(t, err, domain.ErrInvalidDiscount) }},
		{"sub-cent discount", CreateInput{Scope: scope, Items: f.cart(), PaymentMethod: domain.PaymentCash, Discount: dec("0.005")},
			func(t *testing.T, err error) { assert.ErrorIs(t, err, domain.ErrAmountPrecision) }},
		{"sub-cent tax", CreateInput{Scope: scope, Items: f.cart(), PaymentMethod: domain.PaymentCash, Tax: dec("1.001")},
			func(t *testing.T, err error) { assert.ErrorIs(t, err, domain.ErrAmountPrecision) }},
		{"sub-cent price override", CreateInput{Scope: scope, Items: []ItemInput{{MedicineID: f.a.ID, Quantity: 1, UnitPrice: ptr(dec("9.999"))}}, PaymentMethod: domain.PaymentCash},
			func(t *testing.T, err error) { assert.ErrorIs(t, err, domain.ErrAmountPrecision) }},
		{"quantity overflows base units", CreateInput{Scope: scope, Items: []ItemInput{{MedicineID: f.a.ID, Quantity: 1<<62 + 1, UnitLabel: "strip"}}, PaymentMethod: domain.PaymentCash},
			func(t *testing.T, err error) { assert.ErrorIs(t, err, domain.ErrInvalidQuantity) }},
		{"zero quantity", CreateInput{Scope: scope, Items: []ItemInput{{MedicineID: f.a.ID}}, PaymentMethod: domain.PaymentCash},
			func(t *testing.T, err error) { assert.ErrorIs(t, err, domain.ErrInvalidQuantity) }},
		{"missing medicine", CreateInput{Scope: scope, Items: []ItemInput{{MedicineID: 9999, Quantity: 1}}, PaymentMethod: domain.PaymentCash},
			func(t *testing.T, err error) {
				require.ErrorAs(t, err, &notFound)
				assert.Equal(t, int64(9999), notFound.MedicineID)
			}},
		{"medicine of another business", CreateInput{Scope: scope, Items: []ItemInput{{MedicineID: other.ID, Quantity: 1}}, PaymentMethod: domain.PaymentCash},
			func(t *testing.T, err error) { require.ErrorAs(t, err, &notFound) }},
		{"unknown unit", CreateInput{Scope: scope, Items: []ItemInput{{MedicineID: f.a.ID, Quantity: 1, UnitLabel: "crate"}}, PaymentMethod: domain.PaymentCash},
			func(t *testing.T, err error) {
				require.ErrorAs(t, err, &badUnit)
				assert.Equal(t, "crate", badUnit.Unit)
			}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := f.coord.CreateSale(context.Background(), tc.in)
			require.Error(t, err)
			assert.True(t, domain.IsUserError(err))
			tc.check(t, err)
		})
	}
	assert.Equal(t, 0, f.store.SaleCount())
	assert.Empty(t, f.store.AllMovements())
}

func TestCreateSaleInsufficientStockWritesNothing(t *testing.T) {
	f := newFixture(t)
	c := f.store.AddMedicine(domain.MedicineStock{BusinessID: 1, Name: "Medicine C", UnitPrice: dec("10"), UnitCost: dec("4"), Quantity: 3})

	_, err := f.coord.CreateSale(context.Background(), CreateInput{
		Scope: scope, CashierID: f.cashier.ID, PaymentMethod: domain.PaymentCash,
		Items: append(f.cart(), ItemInput{MedicineID: c.ID, Quantity: 5}),
	})
	var short *domain.InsufficientStockError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, c.ID, short.MedicineID)
	assert.Equal(t, int64(3), short.Available)
	assert.Equal(t, int64(5), short.Requested)

	assert.Equal(t, int64(10), f.quantity(t, f.a.ID))
	assert.Equal(t, int64(5), f.quantity(t, f.b.ID))
	assert.Equal(t, int64(3), f.quantity(t, c.ID))
	assert.Equal(t, 0, f.store.SaleCount())
	assert.Empty(t, f.store.AllMovements())
}

type faultyTx struct {
	ports.TxManager
	failMovement int
}

func (f faultyTx) WithinTx(ctx context.Context, fn func(ctx context.Context, tx ports.LedgerTx) error) error {
	return f.TxManager.WithinTx(ctx, func(ctx context.Context, tx ports.LedgerTx) error {
		return fn(ctx, &faultyLedger{LedgerTx: tx, failOn: f.failMovement})
	})
}

type faultyLedger struct {
	ports.LedgerTx
	failOn, n int
}

func (l *faultyLedger) InsertStockMovement(ctx context.Context, m *domain.StockMovement) error {
	l.n++
	if l.n == l.failOn {
		return errors.New("connection reset by peer")
	}
	return l.LedgerTx.InsertStockMovement(ctx, m)
}

func TestCreateSaleRollsBackOnInfrastructureFault(t *testing.T) {
	f := newFixture(t)
	healthy := f.coord.Tx
	f.coord.Tx = faultyTx{TxManager: healthy, failMovement: 2}

	in := CreateInput{Scope: scope, CashierID: f.cashier.ID, Items: f.cart(), PaymentMethod: domain.PaymentCash, IdempotencyKey: "retry-me"}
	_, err := f.coord.CreateSale(context.Background(), in)
	require.Error(t, err)
	assert.False(t, domain.IsUserError(err))

	assert.Equal(t, int64(10), f.quantity(t, f.a.ID))
	assert.Equal(t, int64(5), f.quantity(t, f.b.ID))
	assert.Equal(t, 0, f.store.SaleCount())
	assert.Empty(t, f.store.AllMovements())

	f.coord.Tx = healthy
	_, err = f.coord.CreateSale(context.Background(), in)
	require.NoError(t, err, "failed attempt must release its key")
	assert.Equal(t, 1, f.store.SaleCount())
}

func TestCreateSaleIdempotentResubmission(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := CreateInput{Scope: scope, CashierID: f.cashier.ID, Items: f.cart(), PaymentMethod: domain.PaymentCash, IdempotencyKey: "abc-123"}

	_, err := f.coord.CreateSale(ctx, in)
	require.NoError(t, err)

	_, err = f.coord.CreateSale(ctx, in)
	var dup *domain.DuplicateRequestError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, 1, f.store.SaleCount())
	assert.Equal(t, int64(7), f.quantity(t, f.a.ID))

	in.IdempotencyKey = "abc-124"
	_, err = f.coord.CreateSale(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, 2, f.store.SaleCount())
}

func TestCreateSaleDerivedKey(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	in := CreateInput{Scope: scope, CashierID: f.cashier.ID, Items: []ItemInput{{MedicineID: f.a.ID, Quantity: 1}}, PaymentMethod: domain.PaymentCash}

	first, err := f.coord.CreateSale(ctx, in)
	require.NoError(t, err)
	assert.Contains(t, first.IdempotencyKey, ":auto-")

	_, err = f.coord.CreateSale(ctx, in)
	var dup *domain.DuplicateRequestError
	require.ErrorAs(t, err, &dup)

	in.Items[0].Quantity = 2
	_, err = f.coord.CreateSale(ctx, in)
	require.NoError(t, err)
}

func TestCreateSaleUnitConversion(t *testing.T) {
	f := newFixture(t)

	res, err := f.coord.CreateSale(context.Background(), CreateInput{
		Scope: scope, CashierID: f.cashier.ID, PaymentMethod: domain.PaymentCard,
		Items: []ItemInput{{MedicineID: f.a.ID, Quantity: 2, UnitLabel: "Strip"}},
	})
	require.NoError(t, err)
	item := res.Sale.Items[0]
	assert.Equal(t, int64(4), item.BaseQuantity)
	assert.True(t, item.UnitPrice.Equal(dec("200")))
	assert.True(t, item.Subtotal.Equal(dec("400")))
	assert.True(t, item.Profit.Equal(dec("160")))
	assert.Equal(t, int64(6), f.quantity(t, f.a.ID))
}

func TestCreateSaleConcurrentCashiersNeverOverdraw(t *testing.T) {
	f := newFixture(t)
	const buyers = 25

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		short     int
	)
	for i := 0; i < buyers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := f.coord.CreateSale(context.Background(), CreateInput{
				Scope: scope, CashierID: f.cashier.ID, PaymentMethod: domain.PaymentCash,
				Items:          []ItemInput{{MedicineID: f.a.ID, Quantity: 1}},
				IdempotencyKey: "buyer-" + string(rune('A'+i)),
			})
			mu.Lock()
			defer mu.Unlock()
			var ise *domain.InsufficientStockError
			switch {
			case err == nil:
				succeeded++
			case errors.As(err, &ise):
				short++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 10, succeeded)
	assert.Equal(t, buyers-10, short)
	assert.Equal(t, int64(0), f.quantity(t, f.a.ID))
	for _, m := range f.store.AllMovements() {
		assert.GreaterOrEqual(t, m.NewStock, int64(0))
	}
}

func TestCreateSaleTotalsStayAtCentPrecision(t *testing.T) {
	f := newFixture(t)
	res, err := f.coord.CreateSale(context.Background(), CreateInput{
		Scope:         scope,
		CashierID:     f.cashier.ID,
		Items:         []ItemInput{{MedicineID: f.a.ID, Quantity: 1, UnitPrice: ptr(dec("10.000"))}},
		PaymentMethod: domain.PaymentCash,
		Discount:      dec("0.01"),
		Tax:           dec("0.50"),
	})
	require.NoError(t, err)

	s := res.Sale
	for _, amount := range []decimal.Decimal{s.Subtotal, s.Discount, s.Tax, s.Total, s.Profit, s.CostOfGoods} {
		assert.True(t, domain.WholeCents(amount), "amount %s", amount)
	}
	assert.True(t, dec("10.49").Equal(s.Total), "total %s", s.Total)
	assert.True(t, s.Subtotal.Sub(s.Discount).Add(s.Tax).Equal(s.Total))
}
