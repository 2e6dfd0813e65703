package sale

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"pharmapos-backend/internal/credit"
	"pharmapos-backend/internal/domain"
	"pharmapos-backend/internal/ports"
	"pharmapos-backend/internal/stock"
)

type VoidInput struct {
	Scope   domain.Scope
	SaleID  int64
	ActorID int64
	Reason  string
}

type VoidResult struct {
	Sale     domain.Sale
	Restored []stock.Change
	// DiscardedCredit is the credit record deleted with the sale, if any.
	// Its PaidAmount is payment history that no longer exists.
	DiscardedCredit *domain.CreditSale
}

// DiscardedPaid is the amount of recorded credit payments the void removed.
func (r VoidResult) DiscardedPaid() decimal.Decimal {
	if r.DiscardedCredit == nil {
		return decimal.Zero
	}
	return r.DiscardedCredit.PaidAmount
}

// Void reverses a committed sale: every item's recorded base quantity goes
// back to stock with an ADJUSTMENT movement, the credit record and its
// payments are deleted, then the sale and its items. Nothing is applied
// unless everything is.
func (c *Coordinator) Void(ctx context.Context, in VoidInput) (*VoidResult, error) {
	if !in.Scope.Valid() {
		return nil, domain.ErrScopeRequired
	}
	actorName := c.actorName(ctx, in.Scope, in.ActorID)

	var res VoidResult
	err := c.Tx.WithinTx(ctx, func(ctx context.Context, tx ports.LedgerTx) error {
		s, found, err := tx.LockSale(ctx, in.Scope, in.SaleID)
		if err != nil {
			return fmt.Errorf("lock sale %d: %w", in.SaleID, err)
		}
		if !found {
			return domain.ErrSaleNotFound
		}

		discarded, err := credit.DiscardWithTx(ctx, tx, in.Scope, s.ID, c.AllowVoidPaidCredit)
		if err != nil {
			return err
		}

		ids := make([]int64, 0, len(s.Items))
		for _, it := range s.Items {
			ids = append(ids, it.MedicineID)
		}
		if _, err := c.Stock.LockAll(ctx, tx, in.Scope, ids); err != nil {
			return err
		}

		note := "void " + s.TransactionCode
		if r := strings.TrimSpace(in.Reason); r != "" {
			note += ": " + r
		}
		saleID := s.ID
		restored := make([]stock.Change, 0, len(s.Items))
		for _, it := range s.Items {
			ch, err := c.Stock.Restore(ctx, tx, in.Scope, it.MedicineID, it.BaseQuantity, stock.Entry{
				Type:          domain.MovementAdjustment,
				ReferenceType: domain.ReferenceSale,
				ReferenceID:   &saleID,
				ActorID:       in.ActorID,
				ActorName:     actorName,
				Note:          note,
			})
			if err != nil {
				return err
			}
			restored = append(restored, *ch)
		}

		if err := tx.DeleteSale(ctx, in.Scope, s.ID); err != nil {
			return fmt.Errorf("delete sale %d: %w", s.ID, err)
		}
		res = VoidResult{Sale: *s, Restored: restored, DiscardedCredit: discarded}
		return nil
	})
	if err != nil {
		if !domain.IsUserError(err) {
			c.Logger.Error("void sale failed", "businessId", in.Scope.BusinessID, "saleId", in.SaleID, "err", err)
		}
		return nil, err
	}

	salesVoided.Inc()
	attrs := []any{"businessId", in.Scope.BusinessID, "saleId", res.Sale.ID, "code", res.Sale.TransactionCode, "actorId", in.ActorID}
	if paid := res.DiscardedPaid(); paid.IsPositive() {
		c.Logger.Warn("sale voided with credit payments discarded", append(attrs, "discardedPaid", paid.String())...)
	} else {
		c.Logger.Info("sale voided", attrs...)
	}
	return &res, nil
}
