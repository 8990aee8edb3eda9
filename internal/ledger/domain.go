package ledger

import (
	"errors"
	"fmt"
	"time"
)

// RestockAction enumerates goods history entry kinds.
type RestockAction string

const (
	// RestockActionAdd marks the entry written when a product is first created.
	RestockActionAdd RestockAction = "add"
	// RestockActionRestock marks a stock/price update on an existing product.
	RestockActionRestock RestockAction = "restock"
)

// RestockEvent is one append-only entry in a product's history.
type RestockEvent struct {
	Date     time.Time     `json:"date"`
	Action   RestockAction `json:"action"`
	Quantity int           `json:"quantity"`
	Price    float64       `json:"price"`
	Note     string        `json:"note,omitempty"`
}

// Product models one goods entry. Products are keyed by case-folded name;
// Name keeps the display form as first entered.
type Product struct {
	Name        string         `json:"name"`
	Price       float64        `json:"price"`
	Quantity    int            `json:"quantity"`
	Description string         `json:"description,omitempty"`
	ImagePath   string         `json:"image_path,omitempty"`
	History     []RestockEvent `json:"history,omitempty"`
}

// Transaction is an immutable record of one completed sale. Debt is fixed at
// creation time; later debt payments never touch it.
type Transaction struct {
	ID         string    `json:"id"`
	Buyer      string    `json:"buyer"`
	Product    string    `json:"product"`
	Quantity   int       `json:"quantity"`
	UnitPrice  float64   `json:"unit_price"`
	TotalPrice float64   `json:"total_price"`
	AmountPaid float64   `json:"amount_paid"`
	Debt       float64   `json:"debt"`
	Date       time.Time `json:"date"`
}

// PaymentEvent is one append-only entry in a debt's payment history.
type PaymentEvent struct {
	Date time.Time `json:"date"`
	Paid float64   `json:"paid"`
}

// Debt tracks the outstanding balance left by a sale. Debt decreases as
// payments arrive; once it reaches zero the record leaves the active set.
type Debt struct {
	ID         string         `json:"id"`
	Buyer      string         `json:"buyer"`
	Product    string         `json:"product"`
	Quantity   int            `json:"quantity"`
	TotalPrice float64        `json:"total_price"`
	AmountPaid float64        `json:"amount_paid"`
	Debt       float64        `json:"debt"`
	Date       time.Time      `json:"date"`
	History    []PaymentEvent `json:"history,omitempty"`
}

// AddProductInput describes an add-or-restock request.
type AddProductInput struct {
	Name        string
	Price       float64
	Quantity    int
	Description string
}

// RecordSaleInput describes a sale to record against stock.
type RecordSaleInput struct {
	Buyer      string
	Product    string
	Quantity   int
	AmountPaid float64
}

// DebtPaymentInput describes a payment against an unsettled debt.
type DebtPaymentInput struct {
	Buyer   string
	Product string
	Amount  float64
}

// TransactionFilter narrows ListTransactions results. Product matches
// case-insensitively as a substring; Date matches as a plain substring of
// the RFC3339 sale timestamp.
type TransactionFilter struct {
	Product string
	Date    string
}

// Sentinel errors for the ledger error taxonomy.
var (
	// ErrValidation groups user-correctable input errors.
	ErrValidation = errors.New("ledger: invalid input")
	// ErrNotFound groups missing-entity errors.
	ErrNotFound = errors.New("ledger: not found")
	// ErrPersistence groups backing store failures.
	ErrPersistence = errors.New("ledger: persistence failure")

	// ErrProductNotFound indicates an unknown product name.
	ErrProductNotFound = fmt.Errorf("%w: unknown product", ErrNotFound)
	// ErrDebtNotFound indicates no matching unsettled debt.
	ErrDebtNotFound = fmt.Errorf("%w: no unsettled debt", ErrNotFound)
	// ErrTransactionNotFound indicates an unknown transaction id.
	ErrTransactionNotFound = fmt.Errorf("%w: unknown transaction", ErrNotFound)

	// ErrInsufficientStock indicates a sale quantity above on-hand stock.
	ErrInsufficientStock = errors.New("ledger: insufficient stock")
)

// ValidationError reports a malformed or out-of-range input field. It matches
// ErrValidation under errors.Is.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("ledger: invalid %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalidf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// PersistenceError reports a failed load or commit of one collection. It
// matches ErrPersistence under errors.Is and unwraps to the store error.
type PersistenceError struct {
	Collection string
	Op         string
	Err        error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("ledger: %s %s: %v", e.Op, e.Collection, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }
