// Package store provides in-memory Store implementations for tests and dev.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/pos-ledger/ledger"
)

// =============================================================================
// MEMORY STORE
// =============================================================================

type Memory struct {
	mu        sync.RWMutex
	seq       int64
	customers map[ledger.CustomerID]ledger.Customer
	invoices  map[ledger.InvoiceID]ledger.Invoice
	entries   []ledger.LedgerEntry
}

func NewMemory() *Memory {
	return &Memory{
		customers: make(map[ledger.CustomerID]ledger.Customer),
		invoices:  make(map[ledger.InvoiceID]ledger.Invoice),
	}
}

func (m *Memory) NextSeq(_ context.Context) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	return m.seq, nil
}

func (m *Memory) GetCustomer(_ context.Context, id ledger.CustomerID) (*ledger.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.customers[id]
	if !ok {
		return nil, &ledger.NotFoundError{Kind: "customer", ID: string(id)}
	}
	cp := cloneCustomer(c)
	return &cp, nil
}

func (m *Memory) PutCustomer(_ context.Context, c *ledger.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.customers[c.ID] = cloneCustomer(*c)
	return nil
}

func (m *Memory) ListCustomers(_ context.Context) ([]ledger.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Customer, 0, len(m.customers))
	for _, c := range m.customers {
		out = append(out, cloneCustomer(c))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) GetInvoice(_ context.Context, id ledger.InvoiceID) (*ledger.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inv, ok := m.invoices[id]
	if !ok {
		return nil, &ledger.NotFoundError{Kind: "invoice", ID: string(id)}
	}
	cp := cloneInvoice(inv)
	return &cp, nil
}

func (m *Memory) PutInvoice(_ context.Context, inv *ledger.Invoice) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.invoices[inv.ID] = cloneInvoice(*inv)
	return nil
}

func (m *Memory) InvoicesByCustomer(_ context.Context, id ledger.CustomerID) ([]ledger.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.Invoice
	for _, inv := range m.invoices {
		if inv.CustomerID == id {
			out = append(out, cloneInvoice(inv))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *Memory) ListInvoices(_ context.Context) ([]ledger.Invoice, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.Invoice, 0, len(m.invoices))
	for _, inv := range m.invoices {
		out = append(out, cloneInvoice(inv))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// AppendEntry is append-only: there is no update or delete for entries.
func (m *Memory) AppendEntry(_ context.Context, e ledger.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, e)
	return nil
}

func (m *Memory) EntriesByCustomer(_ context.Context, id ledger.CustomerID) ([]ledger.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []ledger.LedgerEntry
	for _, e := range m.entries {
		if e.CustomerID == id {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *Memory) ListEntries(_ context.Context) ([]ledger.LedgerEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]ledger.LedgerEntry, len(m.entries))
	copy(out, m.entries)
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

// ReplaceAll swaps in all three collections together (snapshot import).
func (m *Memory) ReplaceAll(_ context.Context, customers []ledger.Customer, invoices []ledger.Invoice, entries []ledger.LedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.customers = make(map[ledger.CustomerID]ledger.Customer, len(customers))
	for _, c := range customers {
		m.customers[c.ID] = cloneCustomer(c)
	}
	m.invoices = make(map[ledger.InvoiceID]ledger.Invoice, len(invoices))
	m.entries = make([]ledger.LedgerEntry, 0, len(entries))
	maxSeq := int64(0)
	for _, inv := range invoices {
		m.invoices[inv.ID] = cloneInvoice(inv)
		if inv.Seq > maxSeq {
			maxSeq = inv.Seq
		}
	}
	for _, e := range entries {
		m.entries = append(m.entries, e)
		if e.Seq > maxSeq {
			maxSeq = e.Seq
		}
	}
	m.seq = maxSeq
	return nil
}

// =============================================================================
// DEEP COPIES - callers never share slices with the store
// =============================================================================

func cloneCustomer(c ledger.Customer) ledger.Customer {
	return c
}

func cloneInvoice(inv ledger.Invoice) ledger.Invoice {
	cp := inv
	cp.Items = append([]ledger.InvoiceItem(nil), inv.Items...)
	cp.ReturnHistory = make([]ledger.ReturnRecord, len(inv.ReturnHistory))
	for i, r := range inv.ReturnHistory {
		rc := r
		rc.Items = append([]ledger.ReturnedItem(nil), r.Items...)
		cp.ReturnHistory[i] = rc
	}
	return cp
}

// =============================================================================
// TRANSACTIONAL MEMORY STORE
// =============================================================================

// TxMemory wraps Memory with WithTx. The in-memory transaction is simulated
// with a full snapshot taken up front and restored if fn fails.
type TxMemory struct {
	*Memory
}

func NewTxMemory() *TxMemory {
	return &TxMemory{Memory: NewMemory()}
}

func (tm *TxMemory) WithTx(ctx context.Context, fn func(ledger.Store) error) error {
	snap := tm.snapshot()
	if err := fn(tm.Memory); err != nil {
		tm.restore(snap)
		return err
	}
	return nil
}

type memorySnapshot struct {
	seq       int64
	customers map[ledger.CustomerID]ledger.Customer
	invoices  map[ledger.InvoiceID]ledger.Invoice
	entries   []ledger.LedgerEntry
}

func (tm *TxMemory) snapshot() memorySnapshot {
	tm.mu.RLock()
	defer tm.mu.RUnlock()

	customers := make(map[ledger.CustomerID]ledger.Customer, len(tm.customers))
	for k, v := range tm.customers {
		customers[k] = cloneCustomer(v)
	}
	invoices := make(map[ledger.InvoiceID]ledger.Invoice, len(tm.invoices))
	for k, v := range tm.invoices {
		invoices[k] = cloneInvoice(v)
	}
	entries := make([]ledger.LedgerEntry, len(tm.entries))
	copy(entries, tm.entries)

	return memorySnapshot{seq: tm.seq, customers: customers, invoices: invoices, entries: entries}
}

func (tm *TxMemory) restore(s memorySnapshot) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	tm.seq = s.seq
	tm.customers = s.customers
	tm.invoices = s.invoices
	tm.entries = s.entries
}
