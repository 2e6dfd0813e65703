// Package stock owns every change to a medicine's quantity on hand. Each
// change is written together with its StockMovement row through the caller's
// transaction.
package stock

import (
	"context"
	"fmt"
	"math"
	"sort"

	"pharmapos-backend/internal/domain"
	"pharmapos-backend/internal/ports"
)

// Entry describes the movement row written alongside a quantity change.
type Entry struct {
	Type          domain.MovementType
	ReferenceType string
	ReferenceID   *int64
	ActorID       int64
	ActorName     string
	Note          string
}

// Change is the before/after snapshot of one mutation.
type Change struct {
	Medicine domain.MedicineStock
	Previous int64
	New      int64
	Movement domain.StockMovement
}

type Ledger struct{}

// LockAll takes row locks on the distinct ids in ascending order and returns
// the rows that exist in scope. Missing ids are simply absent from the map.
func (Ledger) LockAll(ctx context.Context, tx ports.LedgerTx, scope domain.Scope, ids []int64) (map[int64]domain.MedicineStock, error) {
	uniq := make([]int64, 0, len(ids))
	seen := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniq = append(uniq, id)
	}
	sort.Slice(uniq, func(i, j int) bool { return uniq[i] < uniq[j] })

	out := make(map[int64]domain.MedicineStock, len(uniq))
	for _, id := range uniq {
		m, found, err := tx.LockMedicine(ctx, scope, id)
		if err != nil {
			return nil, fmt.Errorf("lock medicine %d: %w", id, err)
		}
		if found {
			out[id] = *m
		}
	}
	return out, nil
}

// ReserveAndDeduct removes quantity base units from the medicine. It fails
// with InsufficientStockError when fewer are on hand; nothing is written then.
func (l Ledger) ReserveAndDeduct(ctx context.Context, tx ports.LedgerTx, scope domain.Scope, medicineID, quantity int64, e Entry) (*Change, error) {
	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if e.Type == "" {
		e.Type = domain.MovementSale
	}
	m, err := l.lock(ctx, tx, scope, medicineID)
	if err != nil {
		return nil, err
	}
	if m.Quantity < quantity {
		return nil, &domain.InsufficientStockError{MedicineID: medicineID, Available: m.Quantity, Requested: quantity}
	}
	return l.apply(ctx, tx, scope, *m, -quantity, e)
}

// Restore adds quantity base units back. No upper bound is enforced.
func (l Ledger) Restore(ctx context.Context, tx ports.LedgerTx, scope domain.Scope, medicineID, quantity int64, e Entry) (*Change, error) {
	if quantity <= 0 {
		return nil, domain.ErrInvalidQuantity
	}
	if e.Type == "" {
		e.Type = domain.MovementAdjustment
	}
	m, err := l.lock(ctx, tx, scope, medicineID)
	if err != nil {
		return nil, err
	}
	return l.apply(ctx, tx, scope, *m, quantity, e)
}

// Adjust applies a signed manual change. Decreases go through the same guard
// as sales.
func (l Ledger) Adjust(ctx context.Context, tx ports.LedgerTx, scope domain.Scope, medicineID, delta int64, e Entry) (*Change, error) {
	if !e.Type.Valid() || e.Type == domain.MovementSale {
		return nil, fmt.Errorf("%w: type %q", domain.ErrInvalidMovement, e.Type)
	}
	switch {
	case delta < 0:
		return l.ReserveAndDeduct(ctx, tx, scope, medicineID, -delta, e)
	case delta > 0:
		return l.Restore(ctx, tx, scope, medicineID, delta, e)
	}
	return nil, domain.ErrInvalidQuantity
}

func (Ledger) lock(ctx context.Context, tx ports.LedgerTx, scope domain.Scope, medicineID int64) (*domain.MedicineStock, error) {
	if !scope.Valid() {
		return nil, domain.ErrScopeRequired
	}
	m, found, err := tx.LockMedicine(ctx, scope, medicineID)
	if err != nil {
		return nil, fmt.Errorf("lock medicine %d: %w", medicineID, err)
	}
	if !found {
		return nil, &domain.MedicineNotFoundError{MedicineID: medicineID}
	}
	return m, nil
}

func (Ledger) apply(ctx context.Context, tx ports.LedgerTx, scope domain.Scope, m domain.MedicineStock, delta int64, e Entry) (*Change, error) {
	prev := m.Quantity
	if delta > 0 && prev > math.MaxInt64-delta {
		return nil, fmt.Errorf("%w: stock of medicine %d would overflow", domain.ErrInvalidQuantity, m.ID)
	}
	next := prev + delta
	if err := tx.SetMedicineQuantity(ctx, scope, m.ID, next); err != nil {
		return nil, fmt.Errorf("update stock of medicine %d: %w", m.ID, err)
	}
	mv := domain.StockMovement{
		BusinessID:    scope.BusinessID,
		MedicineID:    m.ID,
		MedicineName:  m.Name,
		Type:          e.Type,
		Quantity:      delta,
		ReferenceType: e.ReferenceType,
		ReferenceID:   e.ReferenceID,
		ActorID:       e.ActorID,
		ActorName:     e.ActorName,
		PreviousStock: prev,
		NewStock:      next,
		Note:          e.Note,
	}
	if err := tx.InsertStockMovement(ctx, &mv); err != nil {
		return nil, fmt.Errorf("record stock movement for medicine %d: %w", m.ID, err)
	}
	m.Quantity = next
	return &Change{Medicine: m, Previous: prev, New: next, Movement: mv}, nil
}
