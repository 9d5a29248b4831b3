/*
returns.go - Return processing and invoice voiding

PURPOSE:
  Converts a partial or full item return into a refund, reconciling invoice
  state, customer debt, and loyalty points, and records the trash/void
  lifecycle transition.

DEBT-FIRST REFUND POLICY:
  A refund's value retires outstanding debt before anything else. Whatever is
  left is not paid out anywhere explicit - it only reduces TotalSpent as a
  bookkeeping correction. The refund ledger entry records the GROSS value;
  the debt/spend split is kept on the invoice's ReturnRecord.

VOIDING:
  Trashing an invoice reverses stock but deliberately does NOT reverse the
  debt and points the sale recorded. That is the source system's policy,
  preserved as-is rather than silently corrected.

SEE ALSO:
  - engine.go: Engine definition and collaborator helpers
  - history.go: why refund entries stay out of the reconstruction formula
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// RETURN PROCESSOR
// =============================================================================

// ReturnLine asks to return Quantity units of a product on the invoice.
type ReturnLine struct {
	ProductID string
	Quantity  int
}

// ReturnResult reports what the return did.
type ReturnResult struct {
	Invoice       *Invoice
	RefundValue   decimal.Decimal
	DebtApplied   decimal.Decimal
	SpendReduced  decimal.Decimal
	PointsRemoved int64
}

// ProcessReturn returns items on an invoice. Quantities are validated against
// what remains un-returned on each line; anything beyond that bound is
// rejected before any state change. Points are clawed back proportionally,
// floored per line and capped so neither the invoice's PointsEarned nor the
// customer's balance drops below zero.
func (e *Engine) ProcessReturn(ctx context.Context, invoiceID InvoiceID, lines []ReturnLine) (*ReturnResult, error) {
	if len(lines) == 0 {
		return nil, ErrEmptyReturn
	}

	now := e.Now()
	res := &ReturnResult{}
	var restock []ReturnedItem

	err := e.Store.WithTx(ctx, func(s Store) error {
		inv, err := s.GetInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if inv.Voided {
			return ErrInvoiceVoided
		}

		itemIdx := make(map[string]int, len(inv.Items))
		for i, it := range inv.Items {
			itemIdx[it.ProductID] = i
		}

		// Validate every line before touching anything. Quantities are summed
		// per product so duplicate lines in one request cannot jointly slip
		// past the per-line bound.
		total := 0
		requested := make(map[string]int, len(lines))
		for _, ln := range lines {
			if ln.Quantity < 0 {
				return ErrInvalidAmount
			}
			i, ok := itemIdx[ln.ProductID]
			if !ok {
				return ErrItemNotFound
			}
			requested[ln.ProductID] += ln.Quantity
			if requested[ln.ProductID] > inv.Items[i].Returnable() {
				return &ReturnBoundError{
					InvoiceID:  inv.ID,
					ProductID:  ln.ProductID,
					Requested:  requested[ln.ProductID],
					Returnable: inv.Items[i].Returnable(),
				}
			}
			total += ln.Quantity
		}
		if total == 0 {
			return ErrEmptyReturn
		}

		// Apply lines: refund value and proportional points clawback, both
		// accumulated per line.
		refund := decimal.Zero
		var pointsToRemove int64
		var returned []ReturnedItem
		for _, ln := range lines {
			if ln.Quantity == 0 {
				continue
			}
			i := itemIdx[ln.ProductID]
			lineRefund := inv.Items[i].Price.Mul(decimal.NewFromInt(int64(ln.Quantity)))
			refund = refund.Add(lineRefund)
			if inv.Total.IsPositive() {
				claw := decimal.NewFromInt(inv.PointsEarned).Mul(lineRefund).Div(inv.Total).IntPart()
				pointsToRemove += claw
			}
			inv.Items[i].ReturnedQuantity += ln.Quantity
			returned = append(returned, ReturnedItem{ProductID: ln.ProductID, Quantity: ln.Quantity})
		}
		if pointsToRemove > inv.PointsEarned {
			pointsToRemove = inv.PointsEarned
		}
		inv.PointsEarned -= pointsToRemove

		if inv.FullyReturned() {
			inv.Status = StatusReturned
		} else if refund.IsPositive() {
			inv.Status = StatusPartial
		}

		// Debt-first: the refund retires outstanding debt before it becomes a
		// spend correction.
		deduction := decimal.Zero
		spendReduced := decimal.Zero
		if inv.CustomerID != "" {
			cust, err := s.GetCustomer(ctx, inv.CustomerID)
			if err != nil {
				return err
			}
			deduction = refund
			if cust.TotalDebt.LessThan(deduction) {
				deduction = cust.TotalDebt
			}
			cust.TotalDebt = cust.TotalDebt.Sub(deduction)
			leftover := refund.Sub(deduction)
			if leftover.IsPositive() {
				before := cust.TotalSpent
				cust.TotalSpent = clampNonNegative(cust.TotalSpent.Sub(leftover))
				spendReduced = before.Sub(cust.TotalSpent)
			}
			cust.LoyaltyPoints = clampPoints(cust.LoyaltyPoints - pointsToRemove)
			cust.LastVisit = now
			if err := s.PutCustomer(ctx, cust); err != nil {
				return err
			}
		}

		inv.ReturnHistory = append(inv.ReturnHistory, ReturnRecord{
			Date:          now,
			Items:         returned,
			RefundAmount:  refund,
			DebtApplied:   deduction,
			PointsRemoved: pointsToRemove,
		})
		if err := s.PutInvoice(ctx, inv); err != nil {
			return err
		}

		// The entry records the gross refund, not the debt-applied portion.
		if inv.CustomerID != "" {
			seq, err := s.NextSeq(ctx)
			if err != nil {
				return err
			}
			entry := LedgerEntry{
				ID:         EntryID(e.NewID()),
				Seq:        seq,
				CustomerID: inv.CustomerID,
				InvoiceID:  inv.ID,
				Date:       now,
				Amount:     refund,
				Type:       EntryRefund,
				Direction:  DirectionCredit,
			}
			if err := s.AppendEntry(ctx, entry); err != nil {
				return err
			}
		}

		res.Invoice = inv
		res.RefundValue = refund
		res.DebtApplied = deduction
		res.SpendReduced = spendReduced
		res.PointsRemoved = pointsToRemove
		restock = returned
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, it := range restock {
		e.adjustStock(ctx, it.ProductID, it.Quantity)
	}
	e.enqueue(ActionReturn, res.Invoice.CustomerID, invoiceID, res.RefundValue, now)

	return res, nil
}

// =============================================================================
// VOID (TRASH)
// =============================================================================

// VoidInvoice trashes an invoice: marks it voided and deleted, restocks the
// un-returned quantities, and appends an informational void_reversal entry.
// Already-recorded debt and points are NOT reversed.
func (e *Engine) VoidInvoice(ctx context.Context, invoiceID InvoiceID, note string) (*Invoice, error) {
	now := e.Now()
	var inv *Invoice
	var restock []ReturnedItem

	err := e.Store.WithTx(ctx, func(s Store) error {
		loaded, err := s.GetInvoice(ctx, invoiceID)
		if err != nil {
			return err
		}
		if loaded.Voided {
			return ErrInvoiceVoided
		}
		inv = loaded

		inv.Voided = true
		inv.Deleted = true
		inv.Status = StatusVoided
		if err := s.PutInvoice(ctx, inv); err != nil {
			return err
		}

		for _, it := range inv.Items {
			if r := it.Returnable(); r > 0 {
				restock = append(restock, ReturnedItem{ProductID: it.ProductID, Quantity: r})
			}
		}

		if inv.CustomerID != "" {
			seq, err := s.NextSeq(ctx)
			if err != nil {
				return err
			}
			entry := LedgerEntry{
				ID:         EntryID(e.NewID()),
				Seq:        seq,
				CustomerID: inv.CustomerID,
				InvoiceID:  inv.ID,
				Date:       now,
				Amount:     inv.Total,
				Type:       EntryVoidReversal,
				Direction:  DirectionCredit,
				Note:       note,
			}
			if err := s.AppendEntry(ctx, entry); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for _, it := range restock {
		e.adjustStock(ctx, it.ProductID, it.Quantity)
	}
	e.enqueue(ActionVoid, inv.CustomerID, invoiceID, inv.Total, now)

	return inv, nil
}
