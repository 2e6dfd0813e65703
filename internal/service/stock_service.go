package service

import (
	"context"
	"fmt"
	"strings"

	"pharmapos-backend/internal/domain"
	"pharmapos-backend/internal/ports"
	"pharmapos-backend/internal/pricing"
	"pharmapos-backend/internal/stock"
)

// StockService applies manual stock changes (receiving, write-offs, counts).
// Sales and voids go through the sale coordinator instead.
type StockService struct {
	Tx      ports.TxManager
	Ledger  stock.Ledger
	Actors  ports.ActorResolver
	Reader  ports.StockReader
	Catalog ports.MedicineCatalog
}

type AdjustInput struct {
	Scope      domain.Scope
	MedicineID int64
	Delta      int64
	Type       domain.MovementType
	ActorID    int64
	Note       string
}

// Adjust applies a signed change in its own transaction. A decrease that
// would take stock below zero fails with InsufficientStockError.
func (s StockService) Adjust(ctx context.Context, in AdjustInput) (*stock.Change, error) {
	if !in.Scope.Valid() {
		return nil, domain.ErrScopeRequired
	}
	in.Type = domain.MovementType(strings.ToUpper(strings.TrimSpace(string(in.Type))))
	if in.Type == "" {
		in.Type = domain.MovementAdjustment
	}

	actorName := domain.UnknownActor
	if s.Actors != nil {
		if name, err := s.Actors.DisplayName(ctx, in.Scope, in.ActorID); err == nil && name != "" {
			actorName = name
		}
	}

	var change *stock.Change
	err := s.Tx.WithinTx(ctx, func(ctx context.Context, tx ports.LedgerTx) error {
		c, err := s.Ledger.Adjust(ctx, tx, in.Scope, in.MedicineID, in.Delta, stock.Entry{
			Type:      in.Type,
			ActorID:   in.ActorID,
			ActorName: actorName,
			Note:      in.Note,
		})
		if err != nil {
			return err
		}
		change = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return change, nil
}

func (s StockService) List(ctx context.Context, scope domain.Scope, limit int) ([]domain.MedicineStock, error) {
	if !scope.Valid() {
		return nil, domain.ErrScopeRequired
	}
	return s.Reader.ListMedicines(ctx, scope, limit)
}

// History returns movements newest first; medicineID 0 means every medicine.
func (s StockService) History(ctx context.Context, scope domain.Scope, medicineID int64, limit int) ([]domain.StockMovement, error) {
	if !scope.Valid() {
		return nil, domain.ErrScopeRequired
	}
	return s.Reader.ListMovements(ctx, scope, medicineID, limit)
}

// CreateMedicine adds a catalog entry. Opening stock is booked as a
// PURCHASE movement so the ledger explains every unit on hand.
func (s StockService) CreateMedicine(ctx context.Context, scope domain.Scope, m domain.MedicineStock, actorID int64) (*domain.MedicineStock, error) {
	if !scope.Valid() {
		return nil, domain.ErrScopeRequired
	}
	if err := normalizeMedicine(&m); err != nil {
		return nil, err
	}
	if m.Quantity < 0 {
		return nil, fmt.Errorf("%w: opening quantity cannot be negative", domain.ErrInvalidMedicine)
	}
	opening := m.Quantity
	m.BusinessID = scope.BusinessID
	m.Quantity = 0
	created, err := s.Catalog.CreateMedicine(ctx, m)
	if err != nil {
		return nil, err
	}
	if opening == 0 {
		return created, nil
	}
	change, err := s.Adjust(ctx, AdjustInput{
		Scope:      scope,
		MedicineID: created.ID,
		Delta:      opening,
		Type:       domain.MovementPurchase,
		ActorID:    actorID,
		Note:       "opening stock",
	})
	if err != nil {
		return nil, err
	}
	return &change.Medicine, nil
}

// UpdateMedicine edits prices, units and the reorder level.
func (s StockService) UpdateMedicine(ctx context.Context, scope domain.Scope, m domain.MedicineStock) error {
	if !scope.Valid() {
		return domain.ErrScopeRequired
	}
	if err := normalizeMedicine(&m); err != nil {
		return err
	}
	m.BusinessID = scope.BusinessID
	return s.Catalog.UpdateMedicine(ctx, m)
}

func normalizeMedicine(m *domain.MedicineStock) error {
	m.Name = strings.TrimSpace(m.Name)
	m.BaseUnit = strings.TrimSpace(m.BaseUnit)
	if m.Name == "" {
		return fmt.Errorf("%w: name is required", domain.ErrInvalidMedicine)
	}
	if m.BaseUnit == "" {
		m.BaseUnit = "unit"
	}
	if m.UnitPrice.IsNegative() || m.UnitCost.IsNegative() {
		return fmt.Errorf("%w: prices cannot be negative", domain.ErrInvalidMedicine)
	}
	if !domain.WholeCents(m.UnitPrice) || !domain.WholeCents(m.UnitCost) {
		return fmt.Errorf("%w: price %s, cost %s", domain.ErrAmountPrecision, m.UnitPrice, m.UnitCost)
	}
	if m.ReorderLevel < 0 {
		return fmt.Errorf("%w: reorder level cannot be negative", domain.ErrInvalidMedicine)
	}
	for _, u := range m.Units {
		if u.SellPrice != nil && u.SellPrice.IsNegative() {
			return fmt.Errorf("%w: unit %q has a negative price", domain.ErrInvalidMedicine, u.Label)
		}
		if u.SellPrice != nil && !domain.WholeCents(*u.SellPrice) {
			return fmt.Errorf("%w: unit %q price %s", domain.ErrAmountPrecision, u.Label, u.SellPrice)
		}
	}
	m.Units = pricing.NormalizeUnits(m.Units)
	return nil
}
