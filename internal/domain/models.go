package domain

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Enumerations
const (
	RoleAdmin   UserRole = "admin"
	RoleManager UserRole = "manager"
	RoleCashier UserRole = "cashier"

	PaymentCash        PaymentMethod = "CASH"
	PaymentCard        PaymentMethod = "CARD"
	PaymentMobileMoney PaymentMethod = "MOBILE_MONEY"
	PaymentCredit      PaymentMethod = "CREDIT"

	MovementAddition   MovementType = "ADDITION"
	MovementSale       MovementType = "SALE"
	MovementLoss       MovementType = "LOSS"
	MovementAdjustment MovementType = "ADJUSTMENT"
	MovementPurchase   MovementType = "PURCHASE"

	CreditPending CreditStatus = "PENDING"
	CreditPartial CreditStatus = "PARTIAL"
	CreditPaid    CreditStatus = "PAID"

	ReferenceSale          = "sale"
	ReferencePurchaseOrder = "purchase_order"

	UnknownActor = "Unknown"
)

type UserRole string
type PaymentMethod string
type MovementType string
type CreditStatus string

// Valid reports whether m is one of the accepted sale payment methods.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentMobileMoney, PaymentCredit:
		return true
	}
	return false
}

// ParsePaymentMethod normalises client input ("mobile_money", " cash ").
func ParsePaymentMethod(s string) PaymentMethod {
	return PaymentMethod(strings.ToUpper(strings.TrimSpace(s)))
}

func (t MovementType) Valid() bool {
	switch t {
	case MovementAddition, MovementSale, MovementLoss, MovementAdjustment, MovementPurchase:
		return true
	}
	return false
}

// Scope isolates one business (pharmacy) from another. Every ledger call takes one.
type Scope struct {
	BusinessID int64
}

func (s Scope) Valid() bool { return s.BusinessID > 0 }

type User struct {
	ID           int64
	BusinessID   int64
	Name         string
	Email        string
	Role         UserRole
	PasswordHash *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	DeletedAt    *time.Time
}

// UnitConversion maps a sellable unit label to a number of base units.
// SellPrice, when set, is the price of one such unit.
type UnitConversion struct {
	Label        string           `json:"label"`
	BaseQuantity int64            `json:"baseQuantity"`
	SellPrice    *decimal.Decimal `json:"sellPrice,omitempty"`
}

type MedicineStock struct {
	ID           int64
	BusinessID   int64
	Name         string
	BaseUnit     string
	UnitPrice    decimal.Decimal
	UnitCost     decimal.Decimal
	Quantity     int64
	ReorderLevel int64
	Units        []UnitConversion
	UpdatedAt    time.Time
}

// LowStock reports whether the medicine is at or below its reorder level.
func (m MedicineStock) LowStock() bool {
	return m.Quantity <= m.ReorderLevel
}

type Sale struct {
	ID              int64
	BusinessID      int64
	TransactionCode string
	CashierID       int64
	CashierName     string
	Items           []SaleItem
	Subtotal        decimal.Decimal
	Discount        decimal.Decimal
	Tax             decimal.Decimal
	Total           decimal.Decimal
	Profit          decimal.Decimal
	CostOfGoods     decimal.Decimal
	PaymentMethod   PaymentMethod
	CustomerName    string
	CustomerPhone   string
	Notes           string
	CreditSaleID    *int64
	CreatedAt       time.Time
}

type SaleItem struct {
	ID           int64
	SaleID       int64
	MedicineID   int64
	MedicineName string
	Quantity     int64
	UnitLabel    string
	BaseQuantity int64
	UnitPrice    decimal.Decimal
	UnitCost     decimal.Decimal
	Subtotal     decimal.Decimal
	Cost         decimal.Decimal
	Profit       decimal.Decimal
}

type StockMovement struct {
	ID            int64
	BusinessID    int64
	MedicineID    int64
	MedicineName  string
	Type          MovementType
	Quantity      int64
	ReferenceType string
	ReferenceID   *int64
	ActorID       int64
	ActorName     string
	PreviousStock int64
	NewStock      int64
	Note          string
	CreatedAt     time.Time
}

type CreditSale struct {
	ID            int64
	BusinessID    int64
	SaleID        int64
	CustomerName  string
	CustomerPhone string
	TotalAmount   decimal.Decimal
	PaidAmount    decimal.Decimal
	BalanceAmount decimal.Decimal
	Status        CreditStatus
	DueDate       *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type CreditPayment struct {
	ID             int64
	CreditSaleID   int64
	Amount         decimal.Decimal
	Method         PaymentMethod
	ReceivedByID   int64
	ReceivedByName string
	Notes          string
	CreatedAt      time.Time
}

// MoneyScale is the number of decimal places stored for every amount.
const MoneyScale = 2

// WholeCents reports whether d can be stored at MoneyScale without rounding.
func WholeCents(d decimal.Decimal) bool {
	return d.Equal(d.Round(MoneyScale))
}
