package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned by plain lookups (users, catalog rows).
var ErrNotFound = errors.New("not found")

// Input validation and business-rule errors. Anything not listed here (or not
// wrapping one of these) is an infrastructure fault.
var (
	ErrScopeRequired          = errors.New("business scope is required")
	ErrEmptyCart              = errors.New("cart is empty")
	ErrMissingCustomerInfo    = errors.New("credit sales require customer name and phone")
	ErrInvalidPaymentMethod   = errors.New("invalid payment method")
	ErrInvalidQuantity        = errors.New("quantity must be positive")
	ErrInvalidDiscount        = errors.New("invalid discount or tax")
	ErrInvalidAmount          = errors.New("amount must be positive")
	ErrInvalidMovement        = errors.New("invalid stock movement")
	ErrInvalidStatus          = errors.New("invalid credit status")
	ErrSaleNotFound           = errors.New("sale not found")
	ErrCreditSaleNotFound     = errors.New("credit sale not found")
	ErrAlreadyPaid            = errors.New("credit sale is already paid")
	ErrCreditPaymentsRecorded = errors.New("credit sale has recorded payments")
	ErrInvalidMedicine        = errors.New("invalid medicine")
	ErrMedicineExists         = errors.New("a medicine with this name already exists")
	ErrAmountPrecision        = errors.New("amounts allow at most two decimal places")
)

type MedicineNotFoundError struct {
	MedicineID int64
}

func (e *MedicineNotFoundError) Error() string {
	return fmt.Sprintf("medicine %d not found", e.MedicineID)
}

type InsufficientStockError struct {
	MedicineID int64
	Available  int64
	Requested  int64
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for medicine %d: available %d, requested %d", e.MedicineID, e.Available, e.Requested)
}

type InvalidUnitError struct {
	MedicineID int64
	Unit       string
}

func (e *InvalidUnitError) Error() string {
	return fmt.Sprintf("unit %q is not defined for medicine %d", e.Unit, e.MedicineID)
}

type DuplicateRequestError struct {
	Key string
}

func (e *DuplicateRequestError) Error() string {
	return "duplicate request " + e.Key
}

var userErrors = []error{
	ErrScopeRequired,
	ErrEmptyCart,
	ErrMissingCustomerInfo,
	ErrInvalidPaymentMethod,
	ErrInvalidQuantity,
	ErrInvalidDiscount,
	ErrInvalidAmount,
	ErrInvalidMovement,
	ErrInvalidStatus,
	ErrSaleNotFound,
	ErrCreditSaleNotFound,
	ErrAlreadyPaid,
	ErrCreditPaymentsRecorded,
	ErrInvalidMedicine,
	ErrMedicineExists,
	ErrAmountPrecision,
}

// IsUserError reports whether err is a caller-facing (4xx) failure.
func IsUserError(err error) bool {
	if err == nil {
		return false
	}
	for _, target := range userErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	var (
		notFound  *MedicineNotFoundError
		shortage  *InsufficientStockError
		badUnit   *InvalidUnitError
		duplicate *DuplicateRequestError
	)
	return errors.As(err, &notFound) || errors.As(err, &shortage) || errors.As(err, &badUnit) || errors.As(err, &duplicate)
}

// Reason is a short stable label for err, used as a metrics label.
func Reason(err error) string {
	var (
		notFound  *MedicineNotFoundError
		shortage  *InsufficientStockError
		badUnit   *InvalidUnitError
		duplicate *DuplicateRequestError
	)
	switch {
	case err == nil:
		return "none"
	case errors.As(err, &shortage):
		return "insufficient_stock"
	case errors.As(err, &notFound):
		return "medicine_not_found"
	case errors.As(err, &badUnit):
		return "invalid_unit"
	case errors.As(err, &duplicate):
		return "duplicate_request"
	case errors.Is(err, ErrEmptyCart):
		return "empty_cart"
	case errors.Is(err, ErrMissingCustomerInfo):
		return "missing_customer_info"
	case IsUserError(err):
		return "invalid_input"
	}
	return "internal"
}
