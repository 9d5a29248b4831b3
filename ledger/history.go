/*
history.go - Point-in-time balance reconstruction

PURPOSE:
  Answers "what did this customer owe right before invoice X was issued" by
  replaying only the transaction records canonically before X. Reprinting an
  old receipt must never show numbers influenced by later events, so this
  module never reads the live customer aggregate and never reads any field
  the allocator mutates.

WHY PaidAtIssue:
  Invoice.PaidAmount is raised in place by the repayment allocator, so it
  reflects payments made AFTER the target invoice. The frozen PaidAtIssue is
  what was actually settled when each prior invoice closed; later repayments
  enter the formula through their own ledger entries instead.

WHAT IS DELIBERATELY EXCLUDED:
  - Refund entries: they record gross refund value, not the portion applied
    to debt, so replaying them would diverge from the live aggregate for
    returns taken while debt was partially outstanding. The source system
    leaves them out of this formula; that reconciliation gap is preserved,
    not fixed.
  - Void reversal entries: informational only.
  - Debt entries linked to an invoice: they mirror the prior invoice's
    unpaid remainder, which (priorBilled - priorPaidAtIssue) already counts.

SEE ALSO:
  - replay.go: the full clamped replay used to rebuild the live aggregate
*/
package ledger

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// HISTORICAL BALANCE
// =============================================================================

// HistoricalBalance is the customer's balance picture as of the moment an
// invoice was issued, embedded verbatim in reprinted documents.
type HistoricalBalance struct {
	InvoiceID  InvoiceID
	CustomerID CustomerID

	// DebtBefore is what the customer owed right before this invoice.
	// Exactly zero for a customer's first-ever invoice.
	DebtBefore decimal.Decimal

	// Accumulated is DebtBefore plus this invoice's total.
	Accumulated decimal.Decimal

	// NetDue is Accumulated minus what was settled at issue time.
	NetDue decimal.Decimal
}

// HistoricalBalance reconstructs the balance picture for an invoice. It is a
// pure function of the transaction history canonically before the invoice
// (Seq order - creation order, which timestamps tie-break) and is therefore
// stable under any later mutation of the customer's live totals.
func (e *Engine) HistoricalBalance(ctx context.Context, invoiceID InvoiceID) (*HistoricalBalance, error) {
	inv, err := e.Store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	debtBefore := decimal.Zero
	if inv.CustomerID != "" {
		invoices, err := e.Store.InvoicesByCustomer(ctx, inv.CustomerID)
		if err != nil {
			return nil, err
		}
		entries, err := e.Store.EntriesByCustomer(ctx, inv.CustomerID)
		if err != nil {
			return nil, err
		}
		debtBefore = debtBeforeSeq(invoices, entries, inv.Seq)
	}

	accumulated := debtBefore.Add(inv.Total)
	return &HistoricalBalance{
		InvoiceID:   inv.ID,
		CustomerID:  inv.CustomerID,
		DebtBefore:  debtBefore,
		Accumulated: accumulated,
		NetDue:      accumulated.Sub(inv.PaidAtIssue),
	}, nil
}

// debtBeforeSeq computes the outstanding balance built up by all records
// strictly before the given sequence number:
//
//	(prior billed - prior paid at issue)
//	+ prior manual debt - prior repayments + prior signed adjustments
func debtBeforeSeq(invoices []Invoice, entries []LedgerEntry, seq int64) decimal.Decimal {
	priorBilled := decimal.Zero
	priorPaid := decimal.Zero
	for _, other := range invoices {
		if other.Seq >= seq {
			continue
		}
		priorBilled = priorBilled.Add(other.Total)
		priorPaid = priorPaid.Add(other.PaidAtIssue)
	}

	manualDebt := decimal.Zero
	repayments := decimal.Zero
	adjustments := decimal.Zero
	for _, en := range entries {
		if en.Seq >= seq {
			continue
		}
		switch en.Type {
		case EntryDebt:
			if en.InvoiceID == "" {
				manualDebt = manualDebt.Add(en.Amount)
			}
		case EntryRepayment:
			repayments = repayments.Add(en.Amount)
		case EntryAdjustment:
			if en.Direction == DirectionCredit {
				adjustments = adjustments.Sub(en.Amount)
			} else {
				adjustments = adjustments.Add(en.Amount)
			}
		}
	}

	return priorBilled.Sub(priorPaid).Add(manualDebt).Sub(repayments).Add(adjustments)
}
