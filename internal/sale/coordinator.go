// Package sale turns a cart into a committed sale and reverses committed
// sales. Both operations run as a single ledger transaction.
package sale

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"pharmapos-backend/internal/credit"
	"pharmapos-backend/internal/domain"
	"pharmapos-backend/internal/idempotency"
	"pharmapos-backend/internal/ports"
	"pharmapos-backend/internal/pricing"
	"pharmapos-backend/internal/stock"
)

type Coordinator struct {
	Tx     ports.TxManager
	Stock  stock.Ledger
	Actors ports.ActorResolver
	// Guard is optional. Without it duplicate submissions are not detected.
	Guard  *idempotency.Guard
	Logger *slog.Logger
	// AllowVoidPaidCredit lets Void discard a credit sale that already has
	// payments recorded against it.
	AllowVoidPaidCredit bool

	now func() time.Time
}

func NewCoordinator(tx ports.TxManager, actors ports.ActorResolver, guard *idempotency.Guard, logger *slog.Logger, allowVoidPaidCredit bool) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		Tx:                  tx,
		Actors:              actors,
		Guard:               guard,
		Logger:              logger,
		AllowVoidPaidCredit: allowVoidPaidCredit,
		now:                 time.Now,
	}
}

type ItemInput struct {
	MedicineID int64            `json:"medicineId"`
	Quantity   int64            `json:"quantity"`
	UnitLabel  string           `json:"unitLabel,omitempty"`
	UnitPrice  *decimal.Decimal `json:"unitPrice,omitempty"`
}

type CreateInput struct {
	Scope         domain.Scope
	CashierID     int64
	Items         []ItemInput
	PaymentMethod domain.PaymentMethod
	Discount      decimal.Decimal
	Tax           decimal.Decimal
	CustomerName  string
	CustomerPhone string
	Notes         string
	DueDate       *time.Time
	// IdempotencyKey is the client token. When empty a key is derived from
	// the cashier and the cart.
	IdempotencyKey string
}

type Result struct {
	Sale           domain.Sale
	CreditSaleID   *int64
	IdempotencyKey string
}

// fingerprint is the part of a request that identifies it for key derivation.
type fingerprint struct {
	Items         []ItemInput          `json:"items"`
	PaymentMethod domain.PaymentMethod `json:"paymentMethod"`
	Discount      string               `json:"discount"`
	Tax           string               `json:"tax"`
	CustomerName  string               `json:"customerName"`
	CustomerPhone string               `json:"customerPhone"`
}

// CreateSale validates the cart, deducts stock for every line, and records
// the sale with its items, movements and (for CREDIT) its credit entry. Either
// all of it commits or none of it does.
func (c *Coordinator) CreateSale(ctx context.Context, in CreateInput) (res *Result, err error) {
	defer func() {
		if err != nil {
			saleFailures.WithLabelValues(domain.Reason(err)).Inc()
		}
	}()

	if err := c.validate(&in); err != nil {
		return nil, err
	}

	key, err := c.begin(ctx, in)
	if err != nil {
		return nil, err
	}
	defer func() {
		c.finish(ctx, key, err)
	}()

	cashierName := c.actorName(ctx, in.Scope, in.CashierID)
	now := c.now().UTC()
	sale := domain.Sale{
		BusinessID:      in.Scope.BusinessID,
		TransactionCode: TransactionCode(now),
		CashierID:       in.CashierID,
		CashierName:     cashierName,
		Discount:        in.Discount,
		Tax:             in.Tax,
		PaymentMethod:   in.PaymentMethod,
		CustomerName:    in.CustomerName,
		CustomerPhone:   in.CustomerPhone,
		Notes:           in.Notes,
	}

	var creditSaleID *int64
	err = c.Tx.WithinTx(ctx, func(ctx context.Context, tx ports.LedgerTx) error {
		ids := make([]int64, 0, len(in.Items))
		for _, it := range in.Items {
			ids = append(ids, it.MedicineID)
		}
		locked, err := c.Stock.LockAll(ctx, tx, in.Scope, ids)
		if err != nil {
			return err
		}

		items := make([]domain.SaleItem, 0, len(in.Items))
		subtotal, cost, lineProfit := decimal.Zero, decimal.Zero, decimal.Zero
		for _, it := range in.Items {
			m, ok := locked[it.MedicineID]
			if !ok {
				return &domain.MedicineNotFoundError{MedicineID: it.MedicineID}
			}
			line, err := pricing.Price(pricing.SnapshotOf(m), pricing.Request{
				Quantity:          it.Quantity,
				UnitLabel:         it.UnitLabel,
				UnitPriceOverride: it.UnitPrice,
			})
			if err != nil {
				return err
			}
			subtotal = subtotal.Add(line.Subtotal)
			cost = cost.Add(line.Cost)
			lineProfit = lineProfit.Add(line.Profit)
			items = append(items, domain.SaleItem{
				MedicineID:   m.ID,
				MedicineName: m.Name,
				Quantity:     line.Quantity,
				UnitLabel:    line.UnitLabel,
				BaseQuantity: line.BaseQuantity,
				UnitPrice:    line.UnitPrice,
				UnitCost:     line.UnitCost,
				Subtotal:     line.Subtotal,
				Cost:         line.Cost,
				Profit:       line.Profit,
			})
		}
		if in.Discount.GreaterThan(subtotal) {
			return fmt.Errorf("%w: discount %s exceeds subtotal %s", domain.ErrInvalidDiscount, in.Discount, subtotal)
		}

		sale.Subtotal = subtotal
		sale.CostOfGoods = cost
		sale.Total = subtotal.Sub(in.Discount).Add(in.Tax)
		sale.Profit = lineProfit.Sub(in.Discount)
		if err := tx.InsertSale(ctx, &sale); err != nil {
			return fmt.Errorf("insert sale: %w", err)
		}

		saleID := sale.ID
		for i := range items {
			item := &items[i]
			_, err := c.Stock.ReserveAndDeduct(ctx, tx, in.Scope, item.MedicineID, item.BaseQuantity, stock.Entry{
				Type:          domain.MovementSale,
				ReferenceType: domain.ReferenceSale,
				ReferenceID:   &saleID,
				ActorID:       in.CashierID,
				ActorName:     cashierName,
				Note:          sale.TransactionCode,
			})
			if err != nil {
				return err
			}
			item.SaleID = saleID
			if err := tx.InsertSaleItem(ctx, item); err != nil {
				return fmt.Errorf("insert sale item: %w", err)
			}
		}
		sale.Items = items

		if in.PaymentMethod == domain.PaymentCredit {
			cs, err := credit.OpenWithTx(ctx, tx, &sale, in.DueDate)
			if err != nil {
				return err
			}
			creditSaleID = &cs.ID
			sale.CreditSaleID = creditSaleID
		}
		return nil
	})
	if err != nil {
		if !domain.IsUserError(err) {
			c.Logger.Error("create sale failed", "businessId", in.Scope.BusinessID, "cashierId", in.CashierID, "err", err)
		}
		return nil, err
	}

	salesCreated.WithLabelValues(string(sale.PaymentMethod)).Inc()
	c.Logger.Info("sale created",
		"businessId", sale.BusinessID,
		"saleId", sale.ID,
		"code", sale.TransactionCode,
		"total", sale.Total.String(),
		"method", sale.PaymentMethod,
	)
	return &Result{Sale: sale, CreditSaleID: creditSaleID, IdempotencyKey: key}, nil
}

func (c *Coordinator) validate(in *CreateInput) error {
	if !in.Scope.Valid() {
		return domain.ErrScopeRequired
	}
	if len(in.Items) == 0 {
		return domain.ErrEmptyCart
	}
	in.PaymentMethod = domain.ParsePaymentMethod(string(in.PaymentMethod))
	if !in.PaymentMethod.Valid() {
		return domain.ErrInvalidPaymentMethod
	}
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.CustomerPhone = strings.TrimSpace(in.CustomerPhone)
	if in.PaymentMethod == domain.PaymentCredit && (in.CustomerName == "" || in.CustomerPhone == "") {
		return domain.ErrMissingCustomerInfo
	}
	if in.Discount.IsNegative() || in.Tax.IsNegative() {
		return domain.ErrInvalidDiscount
	}
	if !domain.WholeCents(in.Discount) || !domain.WholeCents(in.Tax) {
		return fmt.Errorf("%w: discount %s, tax %s", domain.ErrAmountPrecision, in.Discount, in.Tax)
	}
	for _, it := range in.Items {
		if it.Quantity <= 0 {
			return domain.ErrInvalidQuantity
		}
		if it.UnitPrice != nil && it.UnitPrice.IsNegative() {
			return domain.ErrInvalidAmount
		}
		if it.UnitPrice != nil && !domain.WholeCents(*it.UnitPrice) {
			return fmt.Errorf("%w: unit price %s", domain.ErrAmountPrecision, it.UnitPrice)
		}
	}
	return nil
}

func (c *Coordinator) begin(ctx context.Context, in CreateInput) (string, error) {
	if c.Guard == nil {
		return "", nil
	}
	var key string
	if token := strings.TrimSpace(in.IdempotencyKey); token != "" {
		key = idempotency.ScopedKey(in.Scope, in.CashierID, token)
	} else {
		derived, err := idempotency.DeriveKey(in.Scope, in.CashierID, fingerprint{
			Items:         in.Items,
			PaymentMethod: in.PaymentMethod,
			Discount:      in.Discount.String(),
			Tax:           in.Tax.String(),
			CustomerName:  in.CustomerName,
			CustomerPhone: in.CustomerPhone,
		}, c.now(), c.Guard.TTL)
		if err != nil {
			return "", err
		}
		key = derived
	}
	if err := c.Guard.Begin(ctx, key); err != nil {
		return "", err
	}
	return key, nil
}

// finish marks key completed on success and frees it otherwise, so a failed
// attempt does not block a new one.
func (c *Coordinator) finish(ctx context.Context, key string, err error) {
	if c.Guard == nil || key == "" {
		return
	}
	ctx = context.WithoutCancel(ctx)
	var ferr error
	if err == nil {
		ferr = c.Guard.Complete(ctx, key)
	} else {
		ferr = c.Guard.Release(ctx, key)
	}
	if ferr != nil {
		c.Logger.Warn("idempotency key update failed", "key", key, "err", ferr)
	}
}

func (c *Coordinator) actorName(ctx context.Context, scope domain.Scope, userID int64) string {
	if c.Actors == nil {
		return domain.UnknownActor
	}
	name, err := c.Actors.DisplayName(ctx, scope, userID)
	if err != nil || strings.TrimSpace(name) == "" {
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			c.Logger.Warn("resolve actor name", "userId", userID, "err", err)
		}
		return domain.UnknownActor
	}
	return name
}

// TransactionCode formats a human-readable sale code: TXN-YYYYMMDD-XXXXXXXX.
func TransactionCode(t time.Time) string {
	id := strings.ReplaceAll(uuid.NewString(), "-", "")
	return "TXN-" + t.Format("20060102") + "-" + strings.ToUpper(id[:8])
}
