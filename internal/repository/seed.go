package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"pharmapos-backend/internal/domain"
)

// DemoBusinessID is the business the default accounts and catalog belong to.
const DemoBusinessID int64 = 1

// SeedDefaults creates the demo manager and cashier accounts. Existing
// emails are skipped.
func (r UserRepository) SeedDefaults(ctx context.Context, managerPassword, cashierPassword string) error {
	defaults := []struct {
		name, email, password string
		role                  domain.UserRole
	}{
		{"Store Manager", "manager@pharmapos.local", managerPassword, domain.RoleManager},
		{"Front Cashier", "cashier@pharmapos.local", cashierPassword, domain.RoleCashier},
	}
	for _, d := range defaults {
		hash, err := bcrypt.GenerateFromPassword([]byte(d.password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash password for %s: %w", d.email, err)
		}
		h := string(hash)
		_, err = r.Create(ctx, CreateUserParams{
			BusinessID:   DemoBusinessID,
			Name:         d.name,
			Email:        d.email,
			Role:         d.role,
			PasswordHash: &h,
		})
		if err != nil && !IsDuplicate(err) {
			return fmt.Errorf("seed user %s: %w", d.email, err)
		}
	}
	return nil
}

// SeedDefaults creates a small demo catalog. Medicines that already exist
// keep their stock.
func (r StockRepository) SeedDefaults(ctx context.Context) error {
	boxPrice := decimal.RequireFromString("48.00")
	defaults := []domain.MedicineStock{
		{
			Name: "Paracetamol 500mg", BaseUnit: "tablet",
			UnitPrice: decimal.RequireFromString("5.00"), UnitCost: decimal.RequireFromString("2.40"),
			Quantity: 500, ReorderLevel: 100,
			Units: []domain.UnitConversion{
				{Label: "strip", BaseQuantity: 10},
				{Label: "box", BaseQuantity: 100, SellPrice: &boxPrice},
			},
		},
		{
			Name: "Amoxicillin 250mg", BaseUnit: "capsule",
			UnitPrice: decimal.RequireFromString("12.50"), UnitCost: decimal.RequireFromString("7.10"),
			Quantity: 200, ReorderLevel: 40,
			Units: []domain.UnitConversion{{Label: "pack", BaseQuantity: 21}},
		},
		{
			Name: "ORS Sachet", BaseUnit: "sachet",
			UnitPrice: decimal.RequireFromString("3.00"), UnitCost: decimal.RequireFromString("1.20"),
			Quantity: 80, ReorderLevel: 20,
		},
	}
	for _, m := range defaults {
		m.BusinessID = DemoBusinessID
		if _, err := r.CreateMedicine(ctx, m); err != nil && !errors.Is(err, domain.ErrMedicineExists) {
			return fmt.Errorf("seed %s: %w", m.Name, err)
		}
	}
	return nil
}
