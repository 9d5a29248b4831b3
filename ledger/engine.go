/*
engine.go - The mutating entry points of the ledger

PURPOSE:
  Engine exposes the only operations allowed to mutate customers, invoices,
  and ledger entries. Each operation performs its reads and writes inside a
  single TxStore.WithTx commit, so partial application is impossible.

OPERATIONS:
  SettleSale:        draft sale -> invoice (+debt entry, aggregate update)
  AllocateRepayment: FIFO payment allocation across open invoices
  RecordAdjustment:  manual debt / repayment / signed adjustment
  ProcessReturn:     partial or full item return (returns.go)
  VoidInvoice:       trash an invoice, reversing stock only (returns.go)
  HistoricalBalance: read-only point-in-time reconstruction (history.go)
  RebuildAggregate:  recompute a customer's cached totals (replay.go)

SIDE-EFFECT ORDER:
  1. Validate (nothing written on rejection)
  2. WithTx: append records + rewrite the customer aggregate, atomically
  3. After commit: adjust inventory and enqueue a sync action - both
     best-effort, logged on failure, never rolled back

SEE ALSO:
  - store.go: TxStore, Inventory, SyncQueue contracts
  - errors.go: the validation taxonomy
*/
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine holds the store and collaborators. Inventory and Queue are optional;
// a nil collaborator is simply skipped.
type Engine struct {
	Store    TxStore
	Settings Settings

	Inventory Inventory
	Queue     SyncQueue

	Log zerolog.Logger

	// Now and NewID are injectable for tests.
	Now   func() time.Time
	NewID func() string
}

func NewEngine(store TxStore, settings Settings) *Engine {
	return &Engine{
		Store:    store,
		Settings: settings,
		Log:      zerolog.Nop(),
		Now:      time.Now,
		NewID:    uuid.NewString,
	}
}

// =============================================================================
// SALE SETTLEMENT
// =============================================================================

// SaleItem is one line of a draft sale.
type SaleItem struct {
	ProductID string
	Name      string
	Quantity  int
	Price     decimal.Decimal
	Cost      decimal.Decimal
}

// SaleInput is a draft sale ready to settle.
type SaleInput struct {
	CustomerID CustomerID // empty for an anonymous sale
	Items      []SaleItem
	Discount   decimal.Decimal
	Paid       decimal.Decimal // amount tendered now
	Note       string
}

// SettleSale converts a draft sale into an invoice: computes the total and
// debt incurred, derives the payment status, awards loyalty points, updates
// the customer aggregate, and appends a linked debt entry when the sale was
// not fully paid. An anonymous sale that would leave debt is refused before
// any state change.
func (e *Engine) SettleSale(ctx context.Context, in SaleInput) (*Invoice, error) {
	if len(in.Items) == 0 {
		return nil, ErrEmptySale
	}
	subtotal := decimal.Zero
	for _, it := range in.Items {
		if it.Quantity <= 0 || it.Price.IsNegative() {
			return nil, ErrInvalidAmount
		}
		subtotal = subtotal.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))))
	}
	if in.Discount.IsNegative() || in.Paid.IsNegative() {
		return nil, ErrInvalidAmount
	}

	base := subtotal.Sub(in.Discount)
	if base.IsNegative() {
		return nil, ErrInvalidAmount
	}
	total := base.Add(base.Mul(e.Settings.TaxRate)).Round(2)

	debtIncurred := total.Sub(in.Paid)
	if debtIncurred.IsPositive() && in.CustomerID == "" {
		return nil, ErrUnattributedDebt
	}

	now := e.Now()
	var inv *Invoice

	err := e.Store.WithTx(ctx, func(s Store) error {
		var cust *Customer
		if in.CustomerID != "" {
			c, err := s.GetCustomer(ctx, in.CustomerID)
			if err != nil {
				return err
			}
			cust = c
		}

		seq, err := s.NextSeq(ctx)
		if err != nil {
			return err
		}

		// Change handed back at the counter is not credit: the recorded
		// settlement never exceeds the total.
		recordedPaid := in.Paid
		if recordedPaid.GreaterThan(total) {
			recordedPaid = total
		}

		items := make([]InvoiceItem, len(in.Items))
		for i, it := range in.Items {
			items[i] = InvoiceItem{
				ProductID: it.ProductID,
				Name:      it.Name,
				Quantity:  it.Quantity,
				Price:     it.Price,
				Cost:      it.Cost,
			}
		}

		points := pointsFor(total, e.Settings.LoyaltyRate)

		inv = &Invoice{
			ID:           InvoiceID(e.NewID()),
			Seq:          seq,
			CustomerID:   in.CustomerID,
			Date:         now,
			Total:        total,
			Discount:     in.Discount,
			PaidAmount:   recordedPaid,
			PaidAtIssue:  recordedPaid,
			Status:       statusForPayment(recordedPaid, total),
			PointsEarned: points,
			Items:        items,
		}
		if err := s.PutInvoice(ctx, inv); err != nil {
			return err
		}

		if debtIncurred.IsPositive() {
			entrySeq, err := s.NextSeq(ctx)
			if err != nil {
				return err
			}
			entry := LedgerEntry{
				ID:         EntryID(e.NewID()),
				Seq:        entrySeq,
				CustomerID: in.CustomerID,
				InvoiceID:  inv.ID,
				Date:       now,
				Amount:     debtIncurred,
				Type:       EntryDebt,
				Direction:  DirectionCharge,
				Note:       in.Note,
			}
			if err := s.AppendEntry(ctx, entry); err != nil {
				return err
			}
		}

		if cust != nil {
			cust.TotalSpent = cust.TotalSpent.Add(total)
			if debtIncurred.IsPositive() {
				cust.TotalDebt = cust.TotalDebt.Add(debtIncurred)
			}
			cust.LoyaltyPoints += points
			cust.TransactionCount++
			cust.LastVisit = now
			if err := s.PutCustomer(ctx, cust); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, it := range in.Items {
		e.adjustStock(ctx, it.ProductID, -it.Quantity)
	}
	e.enqueue(ActionSale, in.CustomerID, inv.ID, total, now)

	return inv, nil
}

// =============================================================================
// REPAYMENT ALLOCATOR
// =============================================================================

// RepaymentResult reports what an incoming payment actually did.
type RepaymentResult struct {
	Requested decimal.Decimal
	// Applied is the reduction recorded against TotalDebt: the portion
	// absorbed by open invoices, or the full requested amount when the
	// customer has no open invoices (free-floating manual debt).
	Applied         decimal.Decimal
	InvoicesTouched []InvoiceID
	Entry           LedgerEntry
}

// AllocateRepayment distributes a payment across the customer's open invoices
// oldest-first, fully retiring each before moving to the next, then reduces
// TotalDebt by the amount actually absorbed. Overpayment is absorbed silently:
// no invoice is ever paid above its total and TotalDebt never goes negative.
func (e *Engine) AllocateRepayment(ctx context.Context, customerID CustomerID, amount decimal.Decimal, note string) (*RepaymentResult, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	now := e.Now()
	res := &RepaymentResult{Requested: amount}

	err := e.Store.WithTx(ctx, func(s Store) error {
		cust, err := s.GetCustomer(ctx, customerID)
		if err != nil {
			return err
		}

		invoices, err := s.InvoicesByCustomer(ctx, customerID)
		if err != nil {
			return err
		}

		remaining := amount
		hasOpen := false
		for i := range invoices {
			inv := &invoices[i]
			if !inv.Open() {
				continue
			}
			hasOpen = true
			if remaining.IsZero() {
				break
			}
			toPay := remaining
			if out := inv.Outstanding(); out.LessThan(toPay) {
				toPay = out
			}
			inv.PaidAmount = inv.PaidAmount.Add(toPay)
			inv.Status = statusForPayment(inv.PaidAmount, inv.Total)
			remaining = remaining.Sub(toPay)
			if err := s.PutInvoice(ctx, inv); err != nil {
				return err
			}
			res.InvoicesTouched = append(res.InvoicesTouched, inv.ID)
		}

		// A repayment against no open invoices still retires free-floating
		// manual debt in full.
		applied := amount.Sub(remaining)
		if !hasOpen {
			applied = amount
		}
		res.Applied = applied

		cust.TotalDebt = clampNonNegative(cust.TotalDebt.Sub(applied))
		cust.LastVisit = now
		if err := s.PutCustomer(ctx, cust); err != nil {
			return err
		}

		seq, err := s.NextSeq(ctx)
		if err != nil {
			return err
		}
		res.Entry = LedgerEntry{
			ID:         EntryID(e.NewID()),
			Seq:        seq,
			CustomerID: customerID,
			Date:       now,
			Amount:     applied,
			Type:       EntryRepayment,
			Direction:  DirectionCredit,
			Note:       note,
		}
		return s.AppendEntry(ctx, res.Entry)
	})
	if err != nil {
		return nil, err
	}

	e.enqueue(ActionRepayment, customerID, "", res.Applied, now)
	return res, nil
}

// =============================================================================
// MANUAL ADJUSTMENT
// =============================================================================

// AdjustmentInput is a manual ledger operation against a customer.
type AdjustmentInput struct {
	CustomerID CustomerID
	Type       EntryType // EntryDebt, EntryRepayment, or EntryAdjustment
	Amount     decimal.Decimal
	// Direction is required for EntryAdjustment and ignored otherwise.
	Direction AdjustmentDirection
	Note      string
}

// RecordAdjustment applies a manual debt, repayment, or signed adjustment.
// Repayments delegate to the allocator so manual payments follow the same
// FIFO rules as counter payments. Exactly one entry is appended and TotalDebt
// is clamped at zero.
func (e *Engine) RecordAdjustment(ctx context.Context, in AdjustmentInput) (*LedgerEntry, error) {
	if !in.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	switch in.Type {
	case EntryRepayment:
		res, err := e.AllocateRepayment(ctx, in.CustomerID, in.Amount, in.Note)
		if err != nil {
			return nil, err
		}
		return &res.Entry, nil
	case EntryDebt:
		in.Direction = DirectionCharge
	case EntryAdjustment:
		if in.Direction != DirectionCharge && in.Direction != DirectionCredit {
			return nil, ErrInvalidDirection
		}
	default:
		return nil, ErrInvalidAmount
	}

	now := e.Now()
	var entry LedgerEntry

	err := e.Store.WithTx(ctx, func(s Store) error {
		cust, err := s.GetCustomer(ctx, in.CustomerID)
		if err != nil {
			return err
		}

		if in.Direction == DirectionCharge {
			cust.TotalDebt = cust.TotalDebt.Add(in.Amount)
		} else {
			cust.TotalDebt = clampNonNegative(cust.TotalDebt.Sub(in.Amount))
		}
		cust.LastVisit = now
		if err := s.PutCustomer(ctx, cust); err != nil {
			return err
		}

		seq, err := s.NextSeq(ctx)
		if err != nil {
			return err
		}
		entry = LedgerEntry{
			ID:         EntryID(e.NewID()),
			Seq:        seq,
			CustomerID: in.CustomerID,
			Date:       now,
			Amount:     in.Amount,
			Type:       in.Type,
			Direction:  in.Direction,
			Note:       in.Note,
		}
		return s.AppendEntry(ctx, entry)
	})
	if err != nil {
		return nil, err
	}

	e.enqueue(ActionAdjustment, in.CustomerID, "", in.Amount, now)
	return &entry, nil
}

// =============================================================================
// COLLABORATOR HELPERS
// =============================================================================

// adjustStock notifies the inventory collaborator. Failures are logged and
// ignored: the ledger commit already happened and is not rolled back.
func (e *Engine) adjustStock(ctx context.Context, productID string, delta int) {
	if e.Inventory == nil {
		return
	}
	if err := e.Inventory.Adjust(ctx, productID, delta); err != nil {
		e.Log.Warn().Err(err).Str("product_id", productID).Int("delta", delta).
			Msg("inventory adjustment failed")
	}
}

// enqueue hands a committed action to the sync queue, fire-and-forget.
func (e *Engine) enqueue(kind ActionKind, customerID CustomerID, invoiceID InvoiceID, amount decimal.Decimal, at time.Time) {
	if e.Queue == nil {
		return
	}
	e.Queue.Enqueue(Action{
		IdempotencyKey: e.NewID(),
		Kind:           kind,
		OccurredAt:     at,
		CustomerID:     customerID,
		InvoiceID:      invoiceID,
		Amount:         amount,
	})
}
