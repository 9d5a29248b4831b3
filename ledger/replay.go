/*
replay.go - Full-history replay and aggregate rebuild

PURPOSE:
  The Customer record is a materialized cache of the transaction history.
  ReplayAggregate recomputes that cache from scratch by walking every record
  in canonical order and applying the engine's own clamped rules - the same
  arithmetic the live operations perform, including the debt-first refund
  policy that the reconstruction formula in history.go deliberately omits.

  RebuildAggregate rewrites the stored Customer from the replay. It is the
  repair tool for a cache suspected to have diverged, and the oracle the
  conservation tests check every reachable state against.

REPLAY RULES (canonical Seq order):
  invoice           spent += total; debt += max(0, total - paidAtIssue);
                    points += points originally earned; count++
  debt entry        manual (no invoice link): debt += amount
                    invoice-linked: skipped - it mirrors the unpaid remainder
                    the invoice rule already added
  repayment entry   debt = max(0, debt - amount)
  adjustment entry  debt +-= amount by direction, clamped at zero
  refund entry      debt-first: debt -= min(debt, amount); the leftover
                    reduces spent (floored); points fall by the PointsRemoved
                    recorded on the matching ReturnRecord
  void reversal     skipped - voiding reverses stock only
*/
package ledger

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// AGGREGATE REPLAY
// =============================================================================

// Aggregate is the replayed value of a customer's cached totals.
type Aggregate struct {
	TotalSpent       decimal.Decimal
	TotalDebt        decimal.Decimal
	LoyaltyPoints    int64
	TransactionCount int
	LastVisit        time.Time
}

type replayRecord struct {
	seq     int64
	invoice *Invoice
	entry   *LedgerEntry
}

// ReplayAggregate computes a customer's totals purely from their transaction
// records. Pure function: no store access, no mutation of its inputs.
func ReplayAggregate(invoices []Invoice, entries []LedgerEntry) Aggregate {
	records := make([]replayRecord, 0, len(invoices)+len(entries))
	for i := range invoices {
		records = append(records, replayRecord{seq: invoices[i].Seq, invoice: &invoices[i]})
	}
	for i := range entries {
		records = append(records, replayRecord{seq: entries[i].Seq, entry: &entries[i]})
	}
	sort.Slice(records, func(i, j int) bool { return records[i].seq < records[j].seq })

	// Tracks which ReturnRecord the next refund entry of each invoice maps to.
	refundIdx := make(map[InvoiceID]int)
	byID := make(map[InvoiceID]*Invoice, len(invoices))
	for i := range invoices {
		byID[invoices[i].ID] = &invoices[i]
	}

	var agg Aggregate
	agg.TotalSpent = decimal.Zero
	agg.TotalDebt = decimal.Zero

	for _, rec := range records {
		if rec.invoice != nil {
			inv := rec.invoice
			agg.TotalSpent = agg.TotalSpent.Add(inv.Total)
			if out := inv.Total.Sub(inv.PaidAtIssue); out.IsPositive() {
				agg.TotalDebt = agg.TotalDebt.Add(out)
			}
			agg.LoyaltyPoints += originalPoints(inv)
			agg.TransactionCount++
			agg.LastVisit = laterOf(agg.LastVisit, inv.Date)
			continue
		}

		en := rec.entry
		switch en.Type {
		case EntryDebt:
			if en.InvoiceID == "" {
				agg.TotalDebt = agg.TotalDebt.Add(en.Amount)
			}
		case EntryRepayment:
			agg.TotalDebt = clampNonNegative(agg.TotalDebt.Sub(en.Amount))
		case EntryAdjustment:
			if en.Direction == DirectionCredit {
				agg.TotalDebt = clampNonNegative(agg.TotalDebt.Sub(en.Amount))
			} else {
				agg.TotalDebt = agg.TotalDebt.Add(en.Amount)
			}
		case EntryRefund:
			deduction := en.Amount
			if agg.TotalDebt.LessThan(deduction) {
				deduction = agg.TotalDebt
			}
			agg.TotalDebt = agg.TotalDebt.Sub(deduction)
			leftover := en.Amount.Sub(deduction)
			if leftover.IsPositive() {
				agg.TotalSpent = clampNonNegative(agg.TotalSpent.Sub(leftover))
			}
			if inv, ok := byID[en.InvoiceID]; ok {
				i := refundIdx[en.InvoiceID]
				if i < len(inv.ReturnHistory) {
					agg.LoyaltyPoints = clampPoints(agg.LoyaltyPoints - inv.ReturnHistory[i].PointsRemoved)
				}
				refundIdx[en.InvoiceID] = i + 1
			}
		case EntryVoidReversal:
			// Voiding reverses stock only; nothing to replay.
			continue
		}
		agg.LastVisit = laterOf(agg.LastVisit, en.Date)
	}

	return agg
}

// originalPoints recovers what an invoice earned at settlement: its current
// PointsEarned plus everything returns have since clawed back.
func originalPoints(inv *Invoice) int64 {
	p := inv.PointsEarned
	for _, r := range inv.ReturnHistory {
		p += r.PointsRemoved
	}
	return p
}

func laterOf(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}

// =============================================================================
// REBUILD
// =============================================================================

// RebuildAggregate replays the customer's full history and rewrites the
// cached totals, atomically. Returns the rebuilt customer.
func (e *Engine) RebuildAggregate(ctx context.Context, customerID CustomerID) (*Customer, error) {
	var rebuilt *Customer
	err := e.Store.WithTx(ctx, func(s Store) error {
		cust, err := s.GetCustomer(ctx, customerID)
		if err != nil {
			return err
		}
		invoices, err := s.InvoicesByCustomer(ctx, customerID)
		if err != nil {
			return err
		}
		entries, err := s.EntriesByCustomer(ctx, customerID)
		if err != nil {
			return err
		}

		agg := ReplayAggregate(invoices, entries)
		cust.TotalSpent = agg.TotalSpent
		cust.TotalDebt = agg.TotalDebt
		cust.LoyaltyPoints = agg.LoyaltyPoints
		cust.TransactionCount = agg.TransactionCount
		if !agg.LastVisit.IsZero() {
			cust.LastVisit = agg.LastVisit
		}
		rebuilt = cust
		return s.PutCustomer(ctx, cust)
	})
	if err != nil {
		return nil, err
	}
	return rebuilt, nil
}
