// Package credit tracks the outstanding balance of credit sales.
//
// A credit sale moves PENDING -> PARTIAL -> PAID. Payments larger than the
// balance are clamped to it; PAID accepts no further payments.
package credit

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"pharmapos-backend/internal/domain"
	"pharmapos-backend/internal/ports"
)

type Ledger struct {
	Tx     ports.TxManager
	Reader ports.CreditReader
	Actors ports.ActorResolver
	Logger *slog.Logger
}

type PaymentInput struct {
	Scope        domain.Scope
	CreditSaleID int64
	Amount       decimal.Decimal
	Method       domain.PaymentMethod
	ActorID      int64
	Notes        string
}

type PaymentResult struct {
	CreditSale domain.CreditSale
	Payment    domain.CreditPayment
	Applied    decimal.Decimal
	// Excess is the part of the tendered amount that was not applied.
	Excess decimal.Decimal
}

// OpenWithTx creates the credit record of a freshly inserted CREDIT sale.
func OpenWithTx(ctx context.Context, tx ports.LedgerTx, sale *domain.Sale, dueDate *time.Time) (*domain.CreditSale, error) {
	cs := &domain.CreditSale{
		BusinessID:    sale.BusinessID,
		SaleID:        sale.ID,
		CustomerName:  sale.CustomerName,
		CustomerPhone: sale.CustomerPhone,
		TotalAmount:   sale.Total,
		PaidAmount:    decimal.Zero,
		BalanceAmount: sale.Total,
		Status:        domain.CreditPending,
		DueDate:       dueDate,
	}
	if err := tx.InsertCreditSale(ctx, cs); err != nil {
		return nil, fmt.Errorf("insert credit sale: %w", err)
	}
	return cs, nil
}

// DiscardWithTx deletes the credit record of saleID together with its
// payments and returns what it held. It returns nil when the sale had none.
func DiscardWithTx(ctx context.Context, tx ports.LedgerTx, scope domain.Scope, saleID int64, allowPaid bool) (*domain.CreditSale, error) {
	cs, found, err := tx.LockCreditSaleBySale(ctx, scope, saleID)
	if err != nil {
		return nil, fmt.Errorf("lock credit sale of sale %d: %w", saleID, err)
	}
	if !found {
		return nil, nil
	}
	if !allowPaid && cs.PaidAmount.IsPositive() {
		return nil, domain.ErrCreditPaymentsRecorded
	}
	if err := tx.DeleteCreditSale(ctx, scope, cs.ID); err != nil {
		return nil, fmt.Errorf("delete credit sale %d: %w", cs.ID, err)
	}
	return cs, nil
}

// ApplyPayment records a payment against a credit sale in its own transaction.
func (l Ledger) ApplyPayment(ctx context.Context, in PaymentInput) (*PaymentResult, error) {
	if !in.Scope.Valid() {
		return nil, domain.ErrScopeRequired
	}
	if !in.Amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}
	if !domain.WholeCents(in.Amount) {
		return nil, fmt.Errorf("%w: payment %s", domain.ErrAmountPrecision, in.Amount)
	}
	in.Method = domain.PaymentMethod(strings.ToUpper(string(in.Method)))
	if !in.Method.Valid() || in.Method == domain.PaymentCredit {
		return nil, domain.ErrInvalidPaymentMethod
	}

	actorName := domain.UnknownActor
	if l.Actors != nil {
		if name, err := l.Actors.DisplayName(ctx, in.Scope, in.ActorID); err == nil && name != "" {
			actorName = name
		}
	}

	var res PaymentResult
	err := l.Tx.WithinTx(ctx, func(ctx context.Context, tx ports.LedgerTx) error {
		cs, found, err := tx.LockCreditSale(ctx, in.Scope, in.CreditSaleID)
		if err != nil {
			return fmt.Errorf("lock credit sale %d: %w", in.CreditSaleID, err)
		}
		if !found {
			return domain.ErrCreditSaleNotFound
		}
		if cs.Status == domain.CreditPaid || !cs.BalanceAmount.IsPositive() {
			return domain.ErrAlreadyPaid
		}

		applied := decimal.Min(in.Amount, cs.BalanceAmount)
		p := domain.CreditPayment{
			CreditSaleID:   cs.ID,
			Amount:         applied,
			Method:         in.Method,
			ReceivedByID:   in.ActorID,
			ReceivedByName: actorName,
			Notes:          in.Notes,
		}
		if err := tx.InsertCreditPayment(ctx, &p); err != nil {
			return fmt.Errorf("insert credit payment: %w", err)
		}

		cs.PaidAmount = cs.PaidAmount.Add(applied)
		cs.BalanceAmount = cs.BalanceAmount.Sub(applied)
		if cs.BalanceAmount.IsPositive() {
			cs.Status = domain.CreditPartial
		} else {
			cs.Status = domain.CreditPaid
		}
		if err := tx.UpdateCreditSale(ctx, cs); err != nil {
			return fmt.Errorf("update credit sale %d: %w", cs.ID, err)
		}

		res = PaymentResult{
			CreditSale: *cs,
			Payment:    p,
			Applied:    applied,
			Excess:     in.Amount.Sub(applied),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	paymentsApplied.WithLabelValues(string(in.Method), string(res.CreditSale.Status)).Inc()
	if res.Excess.IsPositive() && l.Logger != nil {
		l.Logger.Warn("credit payment clamped to balance",
			"creditSaleId", res.CreditSale.ID,
			"tendered", in.Amount.String(),
			"applied", res.Applied.String(),
		)
	}
	return &res, nil
}

// Get returns a credit sale together with its payment history.
func (l Ledger) Get(ctx context.Context, scope domain.Scope, id int64) (*domain.CreditSale, []domain.CreditPayment, error) {
	if !scope.Valid() {
		return nil, nil, domain.ErrScopeRequired
	}
	cs, err := l.Reader.GetCreditSale(ctx, scope, id)
	if err != nil {
		return nil, nil, err
	}
	payments, err := l.Reader.ListCreditPayments(ctx, scope, id)
	if err != nil {
		return nil, nil, err
	}
	return cs, payments, nil
}

// List returns credit sales, newest first. An empty status matches all.
func (l Ledger) List(ctx context.Context, scope domain.Scope, status domain.CreditStatus, limit int) ([]domain.CreditSale, error) {
	if !scope.Valid() {
		return nil, domain.ErrScopeRequired
	}
	switch status {
	case "", domain.CreditPending, domain.CreditPartial, domain.CreditPaid:
	default:
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidStatus, status)
	}
	return l.Reader.ListCreditSales(ctx, scope, status, limit)
}
