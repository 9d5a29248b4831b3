/*
Package sqlite provides the SQLite-backed implementation of the ledger stores.

PURPOSE:
  Implements ledger.TxStore and ledger.Restorer using SQLite. The same
  patterns apply to PostgreSQL - only minor SQL dialect differences.

KEY TABLES:
  customers:      The cached per-customer aggregates
  invoices:       Sale records; nested items and return history as JSON
  ledger_entries: Append-only log of non-sale financial events
  sequence:       The single global creation sequence shared by invoices
                  and entries (the canonical ordering)

APPEND-ONLY ENFORCEMENT:
  ledger_entries sees INSERT only - no UPDATE, no DELETE - except through
  ReplaceAll, which swaps the entire snapshot wholesale.

ATOMICITY:
  WithTx wraps fn in one database transaction; every engine operation runs
  through it, so an invoice, its debt entry, and the customer rewrite commit
  or roll back together.

WAL MODE:
  Opened with WAL for better concurrency and crash recovery. A mutex
  serializes writers on top; SQLite allows a single writer at a time anyway.

SEE ALSO:
  - ledger/store.go: interface definitions
  - ledger/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/pos-ledger/ledger"
)

// Store implements ledger.TxStore and ledger.Restorer using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New opens (or creates) the database at dbPath. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS customers (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		phone TEXT,
		total_spent TEXT NOT NULL,
		total_debt TEXT NOT NULL,
		loyalty_points INTEGER NOT NULL DEFAULT 0,
		transaction_count INTEGER NOT NULL DEFAULT 0,
		last_visit TEXT,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS invoices (
		id TEXT PRIMARY KEY,
		seq INTEGER NOT NULL UNIQUE,
		customer_id TEXT,
		date TEXT NOT NULL,
		total TEXT NOT NULL,
		discount TEXT NOT NULL,
		paid_amount TEXT NOT NULL,
		paid_at_issue TEXT NOT NULL,
		status TEXT NOT NULL,
		points_earned INTEGER NOT NULL DEFAULT 0,
		items_json TEXT NOT NULL,
		returns_json TEXT NOT NULL,
		voided INTEGER NOT NULL DEFAULT 0,
		deleted INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_invoices_customer
		ON invoices(customer_id, seq);

	-- Append-only ledger of non-sale financial events.
	CREATE TABLE IF NOT EXISTS ledger_entries (
		id TEXT PRIMARY KEY,
		seq INTEGER NOT NULL UNIQUE,
		customer_id TEXT NOT NULL,
		invoice_id TEXT,
		date TEXT NOT NULL,
		amount TEXT NOT NULL,
		entry_type TEXT NOT NULL,
		direction TEXT NOT NULL,
		note TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_entries_customer
		ON ledger_entries(customer_id, seq);
	CREATE INDEX IF NOT EXISTS idx_entries_invoice
		ON ledger_entries(invoice_id) WHERE invoice_id IS NOT NULL;

	-- Single global creation sequence shared by invoices and entries.
	CREATE TABLE IF NOT EXISTS sequence (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		value INTEGER NOT NULL
	);
	INSERT OR IGNORE INTO sequence (id, value) VALUES (1, 0);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// QUERY EXECUTION - shared between the plain store and WithTx views
// =============================================================================

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// conn implements ledger.Store against either the raw DB or an open sql.Tx.
type conn struct {
	q dbtx
}

func (c conn) NextSeq(ctx context.Context) (int64, error) {
	if _, err := c.q.ExecContext(ctx, "UPDATE sequence SET value = value + 1 WHERE id = 1"); err != nil {
		return 0, fmt.Errorf("failed to advance sequence: %w", err)
	}
	var v int64
	if err := c.q.QueryRowContext(ctx, "SELECT value FROM sequence WHERE id = 1").Scan(&v); err != nil {
		return 0, fmt.Errorf("failed to read sequence: %w", err)
	}
	return v, nil
}

// ---- customers ----

const customerColumns = `id, name, phone, total_spent, total_debt, loyalty_points, transaction_count, last_visit, created_at`

func (c conn) GetCustomer(ctx context.Context, id ledger.CustomerID) (*ledger.Customer, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT `+customerColumns+` FROM customers WHERE id = ?`, string(id))
	cust, err := scanCustomer(row)
	if err == sql.ErrNoRows {
		return nil, &ledger.NotFoundError{Kind: "customer", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return cust, nil
}

func (c conn) PutCustomer(ctx context.Context, cust *ledger.Customer) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO customers (`+customerColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			phone = excluded.phone,
			total_spent = excluded.total_spent,
			total_debt = excluded.total_debt,
			loyalty_points = excluded.loyalty_points,
			transaction_count = excluded.transaction_count,
			last_visit = excluded.last_visit`,
		string(cust.ID), cust.Name, cust.Phone,
		cust.TotalSpent.String(), cust.TotalDebt.String(),
		cust.LoyaltyPoints, cust.TransactionCount,
		formatTime(cust.LastVisit), formatTime(cust.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to put customer: %w", err)
	}
	return nil
}

func (c conn) ListCustomers(ctx context.Context) ([]ledger.Customer, error) {
	rows, err := c.q.QueryContext(ctx,
		`SELECT `+customerColumns+` FROM customers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list customers: %w", err)
	}
	defer rows.Close()

	var out []ledger.Customer
	for rows.Next() {
		cust, err := scanCustomer(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *cust)
	}
	return out, rows.Err()
}

// ---- invoices ----

const invoiceColumns = `id, seq, customer_id, date, total, discount, paid_amount, paid_at_issue, status, points_earned, items_json, returns_json, voided, deleted`

func (c conn) GetInvoice(ctx context.Context, id ledger.InvoiceID) (*ledger.Invoice, error) {
	row := c.q.QueryRowContext(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = ?`, string(id))
	inv, err := scanInvoice(row)
	if err == sql.ErrNoRows {
		return nil, &ledger.NotFoundError{Kind: "invoice", ID: string(id)}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get invoice: %w", err)
	}
	return inv, nil
}

func (c conn) PutInvoice(ctx context.Context, inv *ledger.Invoice) error {
	itemsJSON, err := json.Marshal(inv.Items)
	if err != nil {
		return fmt.Errorf("failed to encode items: %w", err)
	}
	returnsJSON, err := json.Marshal(inv.ReturnHistory)
	if err != nil {
		return fmt.Errorf("failed to encode return history: %w", err)
	}

	_, err = c.q.ExecContext(ctx, `
		INSERT INTO invoices (`+invoiceColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			paid_amount = excluded.paid_amount,
			status = excluded.status,
			points_earned = excluded.points_earned,
			items_json = excluded.items_json,
			returns_json = excluded.returns_json,
			voided = excluded.voided,
			deleted = excluded.deleted`,
		string(inv.ID), inv.Seq, string(inv.CustomerID), formatTime(inv.Date),
		inv.Total.String(), inv.Discount.String(),
		inv.PaidAmount.String(), inv.PaidAtIssue.String(),
		string(inv.Status), inv.PointsEarned,
		string(itemsJSON), string(returnsJSON),
		boolInt(inv.Voided), boolInt(inv.Deleted),
	)
	if err != nil {
		return fmt.Errorf("failed to put invoice: %w", err)
	}
	return nil
}

func (c conn) InvoicesByCustomer(ctx context.Context, id ledger.CustomerID) ([]ledger.Invoice, error) {
	return c.queryInvoices(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE customer_id = ? ORDER BY seq ASC`,
		string(id))
}

func (c conn) ListInvoices(ctx context.Context) ([]ledger.Invoice, error) {
	return c.queryInvoices(ctx,
		`SELECT `+invoiceColumns+` FROM invoices ORDER BY seq ASC`)
}

func (c conn) queryInvoices(ctx context.Context, query string, args ...any) ([]ledger.Invoice, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query invoices: %w", err)
	}
	defer rows.Close()

	var out []ledger.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *inv)
	}
	return out, rows.Err()
}

// ---- ledger entries ----

const entryColumns = `id, seq, customer_id, invoice_id, date, amount, entry_type, direction, note`

// AppendEntry is the only write on ledger_entries: INSERT, never UPDATE or
// DELETE.
func (c conn) AppendEntry(ctx context.Context, e ledger.LedgerEntry) error {
	_, err := c.q.ExecContext(ctx, `
		INSERT INTO ledger_entries (`+entryColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(e.ID), e.Seq, string(e.CustomerID), nullString(string(e.InvoiceID)),
		formatTime(e.Date), e.Amount.String(), string(e.Type), string(e.Direction), e.Note,
	)
	if err != nil {
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

func (c conn) EntriesByCustomer(ctx context.Context, id ledger.CustomerID) ([]ledger.LedgerEntry, error) {
	return c.queryEntries(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries WHERE customer_id = ? ORDER BY seq ASC`,
		string(id))
}

func (c conn) ListEntries(ctx context.Context) ([]ledger.LedgerEntry, error) {
	return c.queryEntries(ctx,
		`SELECT `+entryColumns+` FROM ledger_entries ORDER BY seq ASC`)
}

func (c conn) queryEntries(ctx context.Context, query string, args ...any) ([]ledger.LedgerEntry, error) {
	rows, err := c.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var out []ledger.LedgerEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// =============================================================================
// STORE - ledger.TxStore
// =============================================================================

func (s *Store) NextSeq(ctx context.Context) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return conn{q: s.db}.NextSeq(ctx)
}

func (s *Store) GetCustomer(ctx context.Context, id ledger.CustomerID) (*ledger.Customer, error) {
	return conn{q: s.db}.GetCustomer(ctx, id)
}

func (s *Store) PutCustomer(ctx context.Context, c *ledger.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return conn{q: s.db}.PutCustomer(ctx, c)
}

func (s *Store) ListCustomers(ctx context.Context) ([]ledger.Customer, error) {
	return conn{q: s.db}.ListCustomers(ctx)
}

func (s *Store) GetInvoice(ctx context.Context, id ledger.InvoiceID) (*ledger.Invoice, error) {
	return conn{q: s.db}.GetInvoice(ctx, id)
}

func (s *Store) PutInvoice(ctx context.Context, inv *ledger.Invoice) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return conn{q: s.db}.PutInvoice(ctx, inv)
}

func (s *Store) InvoicesByCustomer(ctx context.Context, id ledger.CustomerID) ([]ledger.Invoice, error) {
	return conn{q: s.db}.InvoicesByCustomer(ctx, id)
}

func (s *Store) ListInvoices(ctx context.Context) ([]ledger.Invoice, error) {
	return conn{q: s.db}.ListInvoices(ctx)
}

func (s *Store) AppendEntry(ctx context.Context, e ledger.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return conn{q: s.db}.AppendEntry(ctx, e)
}

func (s *Store) EntriesByCustomer(ctx context.Context, id ledger.CustomerID) ([]ledger.LedgerEntry, error) {
	return conn{q: s.db}.EntriesByCustomer(ctx, id)
}

func (s *Store) ListEntries(ctx context.Context) ([]ledger.LedgerEntry, error) {
	return conn{q: s.db}.ListEntries(ctx)
}

// WithTx executes fn inside one database transaction. If fn returns an error
// the transaction is rolled back and no partial record survives.
func (s *Store) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(conn{q: tx}); err != nil {
		return err
	}
	return tx.Commit()
}

// ReplaceAll swaps in a full snapshot: all three collections together, plus
// the sequence counter reset past the highest imported Seq.
func (s *Store) ReplaceAll(ctx context.Context, customers []ledger.Customer, invoices []ledger.Invoice, entries []ledger.LedgerEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	for _, table := range []string{"customers", "invoices", "ledger_entries"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}

	c := conn{q: tx}
	var maxSeq int64
	for i := range customers {
		if err := c.PutCustomer(ctx, &customers[i]); err != nil {
			return err
		}
	}
	for i := range invoices {
		if err := c.PutInvoice(ctx, &invoices[i]); err != nil {
			return err
		}
		if invoices[i].Seq > maxSeq {
			maxSeq = invoices[i].Seq
		}
	}
	for i := range entries {
		if err := c.AppendEntry(ctx, entries[i]); err != nil {
			return err
		}
		if entries[i].Seq > maxSeq {
			maxSeq = entries[i].Seq
		}
	}

	if _, err := tx.ExecContext(ctx, "UPDATE sequence SET value = ? WHERE id = 1", maxSeq); err != nil {
		return fmt.Errorf("failed to reset sequence: %w", err)
	}
	return tx.Commit()
}

// =============================================================================
// SCANNING HELPERS
// =============================================================================

type scannable interface {
	Scan(dest ...any) error
}

func scanCustomer(row scannable) (*ledger.Customer, error) {
	var c ledger.Customer
	var id, spent, debt string
	var lastVisit, createdAt sql.NullString
	if err := row.Scan(&id, &c.Name, &c.Phone, &spent, &debt,
		&c.LoyaltyPoints, &c.TransactionCount, &lastVisit, &createdAt); err != nil {
		return nil, err
	}
	c.ID = ledger.CustomerID(id)
	var err error
	if c.TotalSpent, err = decimal.NewFromString(spent); err != nil {
		return nil, fmt.Errorf("bad total_spent for customer %s: %w", id, err)
	}
	if c.TotalDebt, err = decimal.NewFromString(debt); err != nil {
		return nil, fmt.Errorf("bad total_debt for customer %s: %w", id, err)
	}
	c.LastVisit = parseTime(lastVisit.String)
	c.CreatedAt = parseTime(createdAt.String)
	return &c, nil
}

func scanInvoice(row scannable) (*ledger.Invoice, error) {
	var inv ledger.Invoice
	var id, customerID, date, total, discount, paid, paidAtIssue, status string
	var itemsJSON, returnsJSON string
	var voided, deleted int
	if err := row.Scan(&id, &inv.Seq, &customerID, &date, &total, &discount,
		&paid, &paidAtIssue, &status, &inv.PointsEarned,
		&itemsJSON, &returnsJSON, &voided, &deleted); err != nil {
		return nil, err
	}
	inv.ID = ledger.InvoiceID(id)
	inv.CustomerID = ledger.CustomerID(customerID)
	inv.Date = parseTime(date)
	inv.Status = ledger.InvoiceStatus(status)
	inv.Voided = voided != 0
	inv.Deleted = deleted != 0

	var err error
	if inv.Total, err = decimal.NewFromString(total); err != nil {
		return nil, fmt.Errorf("bad total for invoice %s: %w", id, err)
	}
	if inv.Discount, err = decimal.NewFromString(discount); err != nil {
		return nil, fmt.Errorf("bad discount for invoice %s: %w", id, err)
	}
	if inv.PaidAmount, err = decimal.NewFromString(paid); err != nil {
		return nil, fmt.Errorf("bad paid_amount for invoice %s: %w", id, err)
	}
	if inv.PaidAtIssue, err = decimal.NewFromString(paidAtIssue); err != nil {
		return nil, fmt.Errorf("bad paid_at_issue for invoice %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(itemsJSON), &inv.Items); err != nil {
		return nil, fmt.Errorf("bad items for invoice %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(returnsJSON), &inv.ReturnHistory); err != nil {
		return nil, fmt.Errorf("bad return history for invoice %s: %w", id, err)
	}
	return &inv, nil
}

func scanEntry(row scannable) (*ledger.LedgerEntry, error) {
	var e ledger.LedgerEntry
	var id, customerID, date, amount, entryType, direction string
	var invoiceID, note sql.NullString
	if err := row.Scan(&id, &e.Seq, &customerID, &invoiceID, &date,
		&amount, &entryType, &direction, &note); err != nil {
		return nil, err
	}
	e.ID = ledger.EntryID(id)
	e.CustomerID = ledger.CustomerID(customerID)
	e.InvoiceID = ledger.InvoiceID(invoiceID.String)
	e.Date = parseTime(date)
	e.Type = ledger.EntryType(entryType)
	e.Direction = ledger.AdjustmentDirection(direction)
	e.Note = note.String

	var err error
	if e.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("bad amount for entry %s: %w", id, err)
	}
	return &e, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	if s == "" {
		return time.Time{}
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
