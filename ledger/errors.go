/*
errors.go - Centralized error types for the ledger engine

PURPOSE:
  All error types in one place. Validation errors are returned before any
  state change; boundary conditions (overpayment, negative balances) are
  clamped at the write site rather than surfaced as errors.

ERROR CATEGORIES:
  1. Validation errors - rejected input, nothing was written
  2. Not-found errors  - dangling ID references
  3. Store errors      - persistence-level failures (wrapped by stores)

USAGE:
  if errors.Is(err, ledger.ErrReturnExceedsQuantity) { ... }

  var bound *ledger.ReturnBoundError
  if errors.As(err, &bound) { ... bound.Returnable ... }
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned for missing, zero, or negative amounts.
	ErrInvalidAmount = errors.New("amount must be positive")

	// ErrUnattributedDebt is returned when a sale would leave debt but no
	// customer is attached. Anonymous sales must be fully paid.
	ErrUnattributedDebt = errors.New("unattributed debt: anonymous sale must be fully paid")

	// ErrEmptySale is returned when a sale has no line items.
	ErrEmptySale = errors.New("sale has no items")

	// ErrEmptyReturn is returned when a return carries no positive quantity.
	ErrEmptyReturn = errors.New("return has no quantity")

	// ErrReturnExceedsQuantity is returned when a return asks for more units
	// than remain un-returned on a line.
	ErrReturnExceedsQuantity = errors.New("return exceeds remaining quantity")

	// ErrInvalidDirection is returned when a manual adjustment does not carry
	// an explicit charge/credit direction.
	ErrInvalidDirection = errors.New("adjustment requires an explicit direction")

	// ErrInvoiceVoided is returned when an operation targets a voided invoice.
	ErrInvoiceVoided = errors.New("invoice is voided")

	// ErrCustomerNotFound is returned when a referenced customer doesn't exist.
	ErrCustomerNotFound = errors.New("customer not found")

	// ErrInvoiceNotFound is returned when a referenced invoice doesn't exist.
	ErrInvoiceNotFound = errors.New("invoice not found")

	// ErrItemNotFound is returned when a return references a product that is
	// not a line of the invoice.
	ErrItemNotFound = errors.New("item not on invoice")

	// ErrDuplicateIdempotencyKey is returned when a sync action with the same
	// idempotency key was already queued. Expected behavior for retries.
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// ErrSnapshotShape is returned when an import archive is missing one of
	// the three collections. Partial restore would break the debt invariant,
	// so the archive is rejected wholesale.
	ErrSnapshotShape = errors.New("snapshot missing required collections")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ReturnBoundError reports a return that asked for more units than remain.
type ReturnBoundError struct {
	InvoiceID  InvoiceID
	ProductID  string
	Requested  int
	Returnable int
}

func (e *ReturnBoundError) Error() string {
	return fmt.Sprintf("return exceeds remaining quantity: product %s on invoice %s: requested %d, returnable %d",
		e.ProductID, e.InvoiceID, e.Requested, e.Returnable)
}

func (e *ReturnBoundError) Unwrap() error {
	return ErrReturnExceedsQuantity
}

// NotFoundError wraps a dangling reference with the ID that missed.
type NotFoundError struct {
	Kind string // "customer", "invoice"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	switch e.Kind {
	case "customer":
		return ErrCustomerNotFound
	case "invoice":
		return ErrInvoiceNotFound
	default:
		return nil
	}
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation returns true if the error was rejected before any state change.
func IsValidation(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrUnattributedDebt) ||
		errors.Is(err, ErrEmptySale) ||
		errors.Is(err, ErrEmptyReturn) ||
		errors.Is(err, ErrReturnExceedsQuantity) ||
		errors.Is(err, ErrInvalidDirection) ||
		errors.Is(err, ErrInvoiceVoided) ||
		errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrSnapshotShape)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrCustomerNotFound) ||
		errors.Is(err, ErrInvoiceNotFound)
}
