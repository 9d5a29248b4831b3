/*
printing.go - Receipt projection for (re)printing

PURPOSE:
  Builds the printable view of an invoice. The balance block comes from the
  point-in-time reconstructor, never from the live customer aggregate, so a
  receipt reprinted months later shows exactly the numbers it showed the day
  it was issued.
*/
package pos

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/pos-ledger/ledger"
)

// =============================================================================
// RECEIPT
// =============================================================================

// ReceiptLine is one printed item row.
type ReceiptLine struct {
	Name     string
	Quantity int
	Price    decimal.Decimal
	Amount   decimal.Decimal
}

// Receipt is the printable projection of an invoice.
type Receipt struct {
	InvoiceID    ledger.InvoiceID
	CustomerID   ledger.CustomerID
	CustomerName string
	Date         time.Time
	Lines        []ReceiptLine
	Discount     decimal.Decimal
	Total        decimal.Decimal
	Paid         decimal.Decimal // amount settled at issue time

	// Balance block, reconstructed as of issue time. Nil for anonymous sales.
	PreviousDebt *decimal.Decimal
	Accumulated  *decimal.Decimal
	NetDue       *decimal.Decimal

	Currency string
}

// BuildReceipt assembles the receipt for an invoice, attaching the
// reconstructed balance block when a customer is involved.
func BuildReceipt(ctx context.Context, e *ledger.Engine, invoiceID ledger.InvoiceID) (*Receipt, error) {
	inv, err := e.Store.GetInvoice(ctx, invoiceID)
	if err != nil {
		return nil, err
	}

	r := &Receipt{
		InvoiceID:  inv.ID,
		CustomerID: inv.CustomerID,
		Date:       inv.Date,
		Discount:   inv.Discount,
		Total:      inv.Total,
		Paid:       inv.PaidAtIssue,
		Currency:   e.Settings.CurrencySymbol,
	}
	for _, it := range inv.Items {
		r.Lines = append(r.Lines, ReceiptLine{
			Name:     it.Name,
			Quantity: it.Quantity,
			Price:    it.Price,
			Amount:   it.Price.Mul(decimal.NewFromInt(int64(it.Quantity))),
		})
	}

	if inv.CustomerID != "" {
		cust, err := e.Store.GetCustomer(ctx, inv.CustomerID)
		if err != nil {
			return nil, err
		}
		r.CustomerName = cust.Name

		hb, err := e.HistoricalBalance(ctx, invoiceID)
		if err != nil {
			return nil, err
		}
		r.PreviousDebt = &hb.DebtBefore
		r.Accumulated = &hb.Accumulated
		r.NetDue = &hb.NetDue
	}
	return r, nil
}

// Render formats the receipt as fixed-width text for a thermal printer.
func (r *Receipt) Render() string {
	var b strings.Builder
	line := strings.Repeat("-", 32)

	fmt.Fprintf(&b, "INVOICE %s\n", r.InvoiceID)
	fmt.Fprintf(&b, "%s\n", r.Date.Format("2006-01-02 15:04"))
	if r.CustomerName != "" {
		fmt.Fprintf(&b, "Customer: %s\n", r.CustomerName)
	}
	b.WriteString(line + "\n")

	for _, ln := range r.Lines {
		fmt.Fprintf(&b, "%-18s %3d %8s\n", truncate(ln.Name, 18), ln.Quantity, money(r.Currency, ln.Amount))
	}
	b.WriteString(line + "\n")

	if r.Discount.IsPositive() {
		fmt.Fprintf(&b, "%-22s %9s\n", "Discount", money(r.Currency, r.Discount))
	}
	fmt.Fprintf(&b, "%-22s %9s\n", "TOTAL", money(r.Currency, r.Total))
	fmt.Fprintf(&b, "%-22s %9s\n", "Paid", money(r.Currency, r.Paid))

	if r.PreviousDebt != nil {
		b.WriteString(line + "\n")
		fmt.Fprintf(&b, "%-22s %9s\n", "Previous balance", money(r.Currency, *r.PreviousDebt))
		fmt.Fprintf(&b, "%-22s %9s\n", "Accumulated", money(r.Currency, *r.Accumulated))
		fmt.Fprintf(&b, "%-22s %9s\n", "Net due", money(r.Currency, *r.NetDue))
	}
	return b.String()
}

func money(symbol string, d decimal.Decimal) string {
	return symbol + d.StringFixed(2)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
