// Package pricing derives per-line sale figures from a catalog snapshot.
// It performs no I/O.
package pricing

import (
	"math"
	"strings"

	"github.com/shopspring/decimal"
	"pharmapos-backend/internal/domain"
)

// Snapshot is the part of a medicine the calculator reads.
type Snapshot struct {
	MedicineID int64
	UnitPrice  decimal.Decimal
	UnitCost   decimal.Decimal
	BaseUnit   string
	Units      []domain.UnitConversion
}

// SnapshotOf builds a Snapshot from a catalog row.
func SnapshotOf(m domain.MedicineStock) Snapshot {
	return Snapshot{
		MedicineID: m.ID,
		UnitPrice:  m.UnitPrice,
		UnitCost:   m.UnitCost,
		BaseUnit:   m.BaseUnit,
		Units:      m.Units,
	}
}

type Request struct {
	Quantity          int64
	UnitLabel         string
	UnitPriceOverride *decimal.Decimal
}

type Line struct {
	Quantity     int64
	UnitLabel    string
	BaseQuantity int64
	UnitPrice    decimal.Decimal
	UnitCost     decimal.Decimal
	Subtotal     decimal.Decimal
	Cost         decimal.Decimal
	Profit       decimal.Decimal
}

// Price resolves the base-unit quantity for req and computes the line totals.
// Unknown unit labels are rejected rather than treated as base units.
func Price(s Snapshot, req Request) (Line, error) {
	if req.Quantity <= 0 {
		return Line{}, domain.ErrInvalidQuantity
	}

	label := strings.TrimSpace(req.UnitLabel)
	factor := int64(1)
	unitPrice := s.UnitPrice
	if label != "" && !strings.EqualFold(label, s.BaseUnit) {
		unit, ok := FindUnit(s.Units, label)
		if !ok {
			return Line{}, &domain.InvalidUnitError{MedicineID: s.MedicineID, Unit: label}
		}
		if unit.BaseQuantity <= 0 {
			return Line{}, &domain.InvalidUnitError{MedicineID: s.MedicineID, Unit: label}
		}
		factor = unit.BaseQuantity
		if unit.SellPrice != nil {
			unitPrice = *unit.SellPrice
		} else {
			unitPrice = s.UnitPrice.Mul(decimal.NewFromInt(factor))
		}
	}
	if req.UnitPriceOverride != nil {
		if req.UnitPriceOverride.IsNegative() {
			return Line{}, domain.ErrInvalidAmount
		}
		if !domain.WholeCents(*req.UnitPriceOverride) {
			return Line{}, domain.ErrAmountPrecision
		}
		unitPrice = *req.UnitPriceOverride
	}
	if req.Quantity > math.MaxInt64/factor {
		return Line{}, domain.ErrInvalidQuantity
	}

	base := req.Quantity * factor
	subtotal := unitPrice.Mul(decimal.NewFromInt(req.Quantity))
	cost := s.UnitCost.Mul(decimal.NewFromInt(base))

	return Line{
		Quantity:     req.Quantity,
		UnitLabel:    label,
		BaseQuantity: base,
		UnitPrice:    unitPrice,
		UnitCost:     s.UnitCost,
		Subtotal:     subtotal,
		Cost:         cost,
		Profit:       subtotal.Sub(cost),
	}, nil
}

// FindUnit looks up a conversion by label, case-insensitively.
func FindUnit(units []domain.UnitConversion, label string) (domain.UnitConversion, bool) {
	for _, u := range units {
		if strings.EqualFold(u.Label, label) {
			return u, true
		}
	}
	return domain.UnitConversion{}, false
}

// NormalizeUnits trims labels and drops entries that cannot be used
// (empty label or non-positive base quantity). Later duplicates lose.
func NormalizeUnits(units []domain.UnitConversion) []domain.UnitConversion {
	out := make([]domain.UnitConversion, 0, len(units))
	seen := make(map[string]struct{}, len(units))
	for _, u := range units {
		u.Label = strings.TrimSpace(u.Label)
		if u.Label == "" || u.BaseQuantity <= 0 {
			continue
		}
		key := strings.ToLower(u.Label)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, u)
	}
	return out
}
