/*
Package ledger provides the customer financial ledger and reconciliation engine.

PURPOSE:
  This package contains the domain types and the four mutating operations that
  keep a customer's running balance consistent across sales, repayments, manual
  adjustments, and returns - plus the read-only reconstructor that answers
  "what did this customer owe right before invoice X was issued".

KEY CONCEPTS IN THIS FILE (types.go):
  - Customer: The aggregate root - cached running totals (debt, spend, points)
  - Invoice: An immutable sale record (only returns and voiding mutate it)
  - LedgerEntry: An append-only record of a non-sale financial event
  - Seq: A single global creation sequence shared by invoices and entries,
    giving one canonical ordering for FIFO allocation and historical replay

DESIGN PRINCIPLES:
  1. References by ID, never by pointer - replay stays trivially serializable
  2. Precision: decimal.Decimal for all money, never float64
  3. Nothing is physically deleted - invoices are voided, entries are forever
  4. Invariants are enforced by construction: TotalDebt and LoyaltyPoints are
     clamped at every write site, not checked after the fact

SEE ALSO:
  - engine.go: Sale settlement, repayment allocation, manual adjustments
  - returns.go: Return processing and invoice voiding
  - history.go: Point-in-time balance reconstruction
  - store.go: Persistence and collaborator interfaces
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type CustomerID string
type InvoiceID string
type EntryID string

// =============================================================================
// CUSTOMER - Aggregate root for debt and loyalty
// =============================================================================

// Customer carries the cached running totals derived from the transaction
// history. Every mutating operation updates these atomically with the
// record(s) it appends; RebuildAggregate in replay.go recomputes them from
// scratch when the cache is suspected to have diverged.
type Customer struct {
	ID    CustomerID
	Name  string
	Phone string

	// TotalSpent is the cumulative gross invoice value ever billed.
	// Monotonic except on returns, which reduce it (floored at zero).
	TotalSpent decimal.Decimal

	// TotalDebt is the current outstanding balance. Never negative.
	TotalDebt decimal.Decimal

	// LoyaltyPoints is the reward balance. Never negative.
	LoyaltyPoints int64

	// TransactionCount counts completed sales. Voiding does not decrement it.
	TransactionCount int

	// LastVisit is the timestamp of the most recent financial event.
	LastVisit time.Time

	CreatedAt time.Time
}

// =============================================================================
// INVOICE - A completed sale
// =============================================================================

type InvoiceStatus string

const (
	StatusUnpaid   InvoiceStatus = "unpaid"
	StatusPartial  InvoiceStatus = "partial"
	StatusPaid     InvoiceStatus = "paid"
	StatusVoided   InvoiceStatus = "voided"
	StatusReturned InvoiceStatus = "returned"
)

type InvoiceItem struct {
	ProductID string
	Name      string
	Quantity  int
	Price     decimal.Decimal // unit price
	Cost      decimal.Decimal // unit cost

	// ReturnedQuantity accumulates across partial returns. Never exceeds Quantity.
	ReturnedQuantity int
}

// Returnable returns how many units of this line can still be returned.
func (it InvoiceItem) Returnable() int {
	return it.Quantity - it.ReturnedQuantity
}

// ReturnedItem is one line of a return event.
type ReturnedItem struct {
	ProductID string
	Quantity  int
}

// ReturnRecord is one entry in an invoice's append-only return history.
// DebtApplied and PointsRemoved record what the return actually did to the
// customer aggregate, so that a full replay can reproduce it exactly. The
// refund ledger entry deliberately records only the gross RefundAmount.
type ReturnRecord struct {
	Date          time.Time
	Items         []ReturnedItem
	RefundAmount  decimal.Decimal
	DebtApplied   decimal.Decimal
	PointsRemoved int64
}

type Invoice struct {
	ID InvoiceID

	// Seq is the global creation sequence number, shared with ledger entries.
	// It is the canonical ordering key: the repayment allocator walks open
	// invoices oldest-first by Seq, and the reconstructor's strictly-before
	// filter compares Seq.
	Seq int64

	// CustomerID is empty for anonymous sales (allowed only when fully paid).
	CustomerID CustomerID

	Date     time.Time
	Total    decimal.Decimal // final billed amount after discount and tax
	Discount decimal.Decimal

	// PaidAmount is the live settled amount. The repayment allocator raises it;
	// it never exceeds Total.
	PaidAmount decimal.Decimal

	// PaidAtIssue is the amount settled when the sale closed, frozen forever.
	// The reconstructor sums this field - never PaidAmount - so reprinted
	// documents are stable under later allocations.
	PaidAtIssue decimal.Decimal

	Status InvoiceStatus

	// PointsEarned starts at floor(Total x loyalty rate) and only moves
	// downward, via proportional clawback on returns.
	PointsEarned int64

	Items         []InvoiceItem
	ReturnHistory []ReturnRecord

	// Voided + Deleted are set together by VoidInvoice. A voided invoice keeps
	// its recorded debt and points; only stock is reversed.
	Voided  bool
	Deleted bool
}

// Outstanding returns the unsettled portion of the invoice.
func (inv *Invoice) Outstanding() decimal.Decimal {
	return inv.Total.Sub(inv.PaidAmount)
}

// Open reports whether the invoice can still absorb repayments. A partial
// return flips a paid invoice's status back to partial, so the status check
// alone is not enough: the invoice must also carry a positive outstanding.
func (inv *Invoice) Open() bool {
	if inv.Voided {
		return false
	}
	if inv.Status != StatusUnpaid && inv.Status != StatusPartial {
		return false
	}
	return inv.Outstanding().IsPositive()
}

// FullyReturned reports whether every line has been returned in full.
func (inv *Invoice) FullyReturned() bool {
	for _, it := range inv.Items {
		if it.ReturnedQuantity < it.Quantity {
			return false
		}
	}
	return len(inv.Items) > 0
}

// =============================================================================
// LEDGER ENTRY - Append-only record of a non-sale financial event
// =============================================================================

type EntryType string

const (
	// EntryDebt records debt incurred: either the unpaid remainder of a sale
	// (InvoiceID set) or a manual charge (InvoiceID empty).
	EntryDebt EntryType = "debt"

	// EntryRepayment records a payment absorbed by outstanding invoices and/or
	// the free-floating debt pool. Amount is the reduction actually applied.
	EntryRepayment EntryType = "repayment"

	// EntryAdjustment records a signed manual correction. Direction tells
	// whether it charged or credited the customer.
	EntryAdjustment EntryType = "adjustment"

	// EntryRefund records the GROSS value of a return, not the portion applied
	// to debt. The split lives on the invoice's ReturnRecord.
	EntryRefund EntryType = "refund"

	// EntryVoidReversal marks an invoice void. Informational only: it does not
	// reverse the debt or points the sale recorded.
	EntryVoidReversal EntryType = "void_reversal"
)

// AdjustmentDirection makes the sign of an adjustment explicit instead of
// being inferred from note text.
type AdjustmentDirection string

const (
	DirectionCharge AdjustmentDirection = "charge" // increases debt
	DirectionCredit AdjustmentDirection = "credit" // decreases debt
)

type LedgerEntry struct {
	ID  EntryID
	Seq int64 // same sequence space as Invoice.Seq

	CustomerID CustomerID
	InvoiceID  InvoiceID // back-reference to the source sale, if any

	Date   time.Time
	Amount decimal.Decimal // always a non-negative magnitude
	Type   EntryType

	// Direction is meaningful for adjustment entries; debt and repayment
	// entries always carry DirectionCharge / DirectionCredit respectively.
	Direction AdjustmentDirection

	Note string
}

// =============================================================================
// HELPERS
// =============================================================================

// clampNonNegative floors a decimal at zero. Used at every write site that
// touches TotalDebt or TotalSpent.
func clampNonNegative(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return d
}

// clampPoints floors a point balance at zero.
func clampPoints(p int64) int64 {
	if p < 0 {
		return 0
	}
	return p
}

// statusForPayment derives the payment status of a non-voided invoice.
func statusForPayment(paid, total decimal.Decimal) InvoiceStatus {
	switch {
	case paid.GreaterThanOrEqual(total):
		return StatusPaid
	case paid.IsPositive():
		return StatusPartial
	default:
		return StatusUnpaid
	}
}
