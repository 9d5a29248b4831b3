/*
store.go - Persistence and collaborator interfaces

PURPOSE:
  Defines the boundary between the ledger engine and everything outside it:
  the record store, the inventory adapter, and the best-effort sync queue.

KEY INTERFACES:
  Store:    Record persistence keyed by ID (customers, invoices, entries)
  TxStore:  Store plus WithTx - one atomic commit per logical operation
  Restorer: Wholesale replacement of all collections (snapshot import)

APPEND-ONLY CONTRACT:
  Ledger entries have AppendEntry and reads, nothing else. There is no way to
  update or delete an entry. Invoices are created once; the only in-place
  field updates (PaidAmount, Status, ReturnedQuantity, Voided) are confined to
  the owning operations in engine.go / returns.go.

ATOMICITY:
  A single sale touches an invoice, a customer, and possibly a ledger entry.
  The engine performs all of it inside WithTx so a mid-operation failure
  leaves no partial record. Implementations roll back on error.

CANONICAL ORDERING:
  NextSeq hands out one global, monotonically increasing sequence shared by
  invoices and ledger entries. InvoicesByCustomer and EntriesByCustomer return
  records in ascending Seq order.

IMPLEMENTATIONS:
  - store/sqlite: production SQLite store (WAL, sql transactions)
  - ledger/store: in-memory store for tests and dev (snapshot rollback)

SEE ALSO:
  - engine.go: the only callers of the mutating methods
  - pos/export.go: uses Restorer for snapshot import
*/
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - Record persistence
// =============================================================================

type Store interface {
	// NextSeq returns the next value of the global creation sequence.
	NextSeq(ctx context.Context) (int64, error)

	// Customers.
	GetCustomer(ctx context.Context, id CustomerID) (*Customer, error)
	PutCustomer(ctx context.Context, c *Customer) error
	ListCustomers(ctx context.Context) ([]Customer, error)

	// Invoices. InvoicesByCustomer returns ascending Seq (creation order).
	GetInvoice(ctx context.Context, id InvoiceID) (*Invoice, error)
	PutInvoice(ctx context.Context, inv *Invoice) error
	InvoicesByCustomer(ctx context.Context, id CustomerID) ([]Invoice, error)
	ListInvoices(ctx context.Context) ([]Invoice, error)

	// Ledger entries are append-only. EntriesByCustomer returns ascending Seq.
	AppendEntry(ctx context.Context, e LedgerEntry) error
	EntriesByCustomer(ctx context.Context, id CustomerID) ([]LedgerEntry, error)
	ListEntries(ctx context.Context) ([]LedgerEntry, error)
}

// TxStore wraps Store with transaction support.
// If fn returns an error the transaction is rolled back; otherwise committed.
type TxStore interface {
	Store
	WithTx(ctx context.Context, fn func(Store) error) error
}

// Restorer replaces all three collections together. Partial restore would
// break the debt invariant, so there is no per-collection variant.
type Restorer interface {
	ReplaceAll(ctx context.Context, customers []Customer, invoices []Invoice, entries []LedgerEntry) error
}

// =============================================================================
// COLLABORATORS - External systems the engine notifies
// =============================================================================

// Inventory receives stock deltas on sale (negative) and return/void
// (positive). The engine does not validate availability; the caller is
// assumed to have pre-checked. Failures are logged, never propagated.
type Inventory interface {
	Adjust(ctx context.Context, productID string, delta int) error
}

// ActionKind names a committed ledger operation for replication.
type ActionKind string

const (
	ActionSale       ActionKind = "sale"
	ActionRepayment  ActionKind = "repayment"
	ActionAdjustment ActionKind = "adjustment"
	ActionReturn     ActionKind = "return"
	ActionVoid       ActionKind = "void"
)

// Action describes a committed operation for best-effort replication.
// IdempotencyKey is stable per action so a retried delivery can be
// deduplicated by whatever backend eventually consumes it.
type Action struct {
	IdempotencyKey string
	Kind           ActionKind
	OccurredAt     time.Time
	CustomerID     CustomerID
	InvoiceID      InvoiceID
	Amount         decimal.Decimal
}

// SyncQueue accepts committed actions for later replication. Enqueue never
// blocks and never fails the ledger operation; delivery is fire-and-forget
// with retry on the next flush.
type SyncQueue interface {
	Enqueue(action Action)
}
