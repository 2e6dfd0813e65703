package ports

import (
	"context"
	"time"

	"pharmapos-backend/internal/domain"
)

// HealthChecker is used to probe dependencies.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// TxManager runs fn inside one database transaction. The transaction commits
// when fn returns nil and rolls back otherwise, including on panic.
type TxManager interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, tx LedgerTx) error) error
}

// LedgerTx is the set of row operations the sale engine performs inside a
// transaction. Lock* methods take a row lock held until the transaction ends.
type LedgerTx interface {
	// LockMedicine reports false when the medicine does not exist inside scope.
	LockMedicine(ctx context.Context, scope domain.Scope, id int64) (*domain.MedicineStock, bool, error)
	SetMedicineQuantity(ctx context.Context, scope domain.Scope, id int64, quantity int64) error
	InsertStockMovement(ctx context.Context, m *domain.StockMovement) error

	InsertSale(ctx context.Context, s *domain.Sale) error
	InsertSaleItem(ctx context.Context, item *domain.SaleItem) error
	LockSale(ctx context.Context, scope domain.Scope, id int64) (*domain.Sale, bool, error)
	DeleteSale(ctx context.Context, scope domain.Scope, id int64) error

	InsertCreditSale(ctx context.Context, c *domain.CreditSale) error
	LockCreditSale(ctx context.Context, scope domain.Scope, id int64) (*domain.CreditSale, bool, error)
	LockCreditSaleBySale(ctx context.Context, scope domain.Scope, saleID int64) (*domain.CreditSale, bool, error)
	UpdateCreditSale(ctx context.Context, c *domain.CreditSale) error
	DeleteCreditSale(ctx context.Context, scope domain.Scope, id int64) error
	InsertCreditPayment(ctx context.Context, p *domain.CreditPayment) error
}

// ActorResolver returns the display name snapshotted on audit rows.
type ActorResolver interface {
	DisplayName(ctx context.Context, scope domain.Scope, userID int64) (string, error)
}

// IdempotencyStore is a TTL key store shared by every process instance.
type IdempotencyStore interface {
	// Acquire marks key in flight until ttl passes. It reports false when an
	// unexpired entry already exists.
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)
	// Complete keeps key for ttl after the request succeeded.
	Complete(ctx context.Context, key string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
	Prune(ctx context.Context) (int64, error)
}

// SaleReader serves read-only sale lookups for the HTTP layer.
type SaleReader interface {
	GetSale(ctx context.Context, scope domain.Scope, id int64) (*domain.Sale, error)
	ListSales(ctx context.Context, scope domain.Scope, limit int) ([]domain.Sale, error)
}

// CreditReader serves read-only credit lookups for the HTTP layer.
type CreditReader interface {
	GetCreditSale(ctx context.Context, scope domain.Scope, id int64) (*domain.CreditSale, error)
	ListCreditSales(ctx context.Context, scope domain.Scope, status domain.CreditStatus, limit int) ([]domain.CreditSale, error)
	ListCreditPayments(ctx context.Context, scope domain.Scope, creditSaleID int64) ([]domain.CreditPayment, error)
}

// StockReader serves the stock list and movement history.
type StockReader interface {
	ListMedicines(ctx context.Context, scope domain.Scope, limit int) ([]domain.MedicineStock, error)
	// ListMovements returns every medicine's movements when medicineID is 0.
	ListMovements(ctx context.Context, scope domain.Scope, medicineID int64, limit int) ([]domain.StockMovement, error)
}

// MedicineCatalog edits catalog fields. Quantity only changes through the
// ledger, so UpdateMedicine leaves it untouched.
type MedicineCatalog interface {
	CreateMedicine(ctx context.Context, m domain.MedicineStock) (*domain.MedicineStock, error)
	UpdateMedicine(ctx context.Context, m domain.MedicineStock) error
}

// UserFinder loads login accounts.
type UserFinder interface {
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}
