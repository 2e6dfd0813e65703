package memstore

import (
	"fmt"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
	"pharmapos-backend/internal/domain"
)

// DemoBusinessID is the scope of the accounts and catalog created by Seed.
const DemoBusinessID int64 = 1

// Seed fills an empty store with a manager, a cashier and a small catalog so
// STORE_DRIVER=memory is usable without a database.
func (s *Store) Seed(managerPassword, cashierPassword string) error {
	for _, u := range []struct {
		name, email, password string
		role                  domain.UserRole
	}{
		{"Store Manager", "manager@pharmapos.local", managerPassword, domain.RoleManager},
		{"Front Cashier", "cashier@pharmapos.local", cashierPassword, domain.RoleCashier},
	} {
		hash, err := bcrypt.GenerateFromPassword([]byte(u.password), bcrypt.DefaultCost)
		if err != nil {
			return fmt.Errorf("hash seed password for %s: %w", u.email, err)
		}
		h := string(hash)
		s.AddUser(domain.User{
			BusinessID:   DemoBusinessID,
			Name:         u.name,
			Email:        u.email,
			Role:         u.role,
			PasswordHash: &h,
		})
	}

	boxPrice := decimal.RequireFromString("48.00")
	s.AddMedicine(domain.MedicineStock{
		BusinessID:   DemoBusinessID,
		Name:         "Paracetamol 500mg",
		BaseUnit:     "tablet",
		UnitPrice:    decimal.RequireFromString("5.00"),
		UnitCost:     decimal.RequireFromString("2.40"),
		Quantity:     500,
		ReorderLevel: 100,
		Units: []domain.UnitConversion{
			{Label: "strip", BaseQuantity: 10},
			{Label: "box", BaseQuantity: 100, SellPrice: &boxPrice},
		},
	})
	s.AddMedicine(domain.MedicineStock{
		BusinessID:   DemoBusinessID,
		Name:         "Amoxicillin 250mg",
		BaseUnit:     "capsule",
		UnitPrice:    decimal.RequireFromString("12.50"),
		UnitCost:     decimal.RequireFromString("7.10"),
		Quantity:     200,
		ReorderLevel: 40,
		Units: []domain.UnitConversion{
			{Label: "pack", BaseQuantity: 21},
		},
	})
	s.AddMedicine(domain.MedicineStock{
		BusinessID:   DemoBusinessID,
		Name:         "ORS Sachet",
		BaseUnit:     "sachet",
		UnitPrice:    decimal.RequireFromString("3.00"),
		UnitCost:     decimal.RequireFromString("1.20"),
		Quantity:     80,
		ReorderLevel: 20,
	})
	return nil
}
