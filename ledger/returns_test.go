package ledger_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/pos-ledger/ledger"
)

// =============================================================================
// RETURN BOUNDS
// =============================================================================

func TestProcessReturn_ExceedsRemaining_Rejected(t *testing.T) {
	// GIVEN: An invoice line of 3 units, 2 already returned
	// WHEN: A return asks for 2 more
	// THEN: Rejected with the returnable bound, nothing written

	e, st := newTestEngine(t)
	ctx := context.Background()
	seedCustomer(t, st, "cust-1", "Amal")

	inv, err := e.SettleSale(ctx, ledger.SaleInput{
		CustomerID: "cust-1",
		Items:      []ledger.SaleItem{line("rice", 3, 10)},
		Paid:       money(30),
	})
	require.NoError(t, err)

	_, err = e.ProcessReturn(ctx, inv.ID, []ledger.ReturnLine{{ProductID: "rice", Quantity: 2}})
	require.NoError(t, err)

	_, err = e.ProcessReturn(ctx, inv.ID, []ledger.ReturnLine{{ProductID: "rice", Quantity: 2}})
	assert.ErrorIs(t, err, ledger.ErrReturnExceedsQuantity)

	var bound *ledger.ReturnBoundError
	require.ErrorAs(t, err, &bound)
	assert.Equal(t, 2, bound.Requested)
	assert.Equal(t, 1, bound.Returnable)

	got, _ := st.GetInvoice(ctx, inv.ID)
	assert.Equal(t, 2, got.Items[0].ReturnedQuantity, "failed return must not change the invoice")
}

func TestProcessReturn_DuplicateLines_JointlyBounded(t *testing.T) {
	// GIVEN: An invoice line of 3 units
	// WHEN: One request carries two lines of 2 units for the same product
	// THEN: The summed quantity (4) is rejected even though each line alone
	//       would pass, and the invoice is untouched

	e, st := newTestEngine(t)
	ctx := context.Background()
	seedCustomer(t, st, "cust-1", "Amal")

	inv, err := e.SettleSale(ctx, ledger.SaleInput{
		CustomerID: "cust-1",
		Items:      []ledger.SaleItem{line("rice", 3, 10)},
		Paid:       money(30),
	})
	require.NoError(t, err)

	_, err = e.ProcessReturn(ctx, inv.ID, []ledger.ReturnLine{
		{ProductID: "rice", Quantity: 2},
		{ProductID: "rice", Quantity: 2},
	})
	assert.ErrorIs(t, err, ledger.ErrReturnExceedsQuantity)

	var bound *ledger.ReturnBoundError
	require.ErrorAs(t, err, &bound)
	assert.Equal(t, 4, bound.Requested, "bound error reports the summed quantity")
	assert.Equal(t, 3, bound.Returnable)

	got, _ := st.GetInvoice(ctx, inv.ID)
	assert.Equal(t, 0, got.Items[0].ReturnedQuantity)
	assert.LessOrEqual(t, got.Items[0].ReturnedQuantity, got.Items[0].Quantity)

	cust, _ := st.GetCustomer(ctx, "cust-1")
	assert.True(t, cust.TotalSpent.Equal(money(30)), "rejected return must not move totals")

	// Splitting a valid quantity across duplicate lines still works.
	res, err := e.ProcessReturn(ctx, inv.ID, []ledger.ReturnLine{
		{ProductID: "rice", Quantity: 1},
		{ProductID: "rice", Quantity: 2},
	})
	require.NoError(t, err)
	assert.True(t, res.RefundValue.Equal(money(30)))
	got, _ = st.GetInvoice(ctx, inv.ID)
	assert.Equal(t, 3, got.Items[0].ReturnedQuantity)
}

func TestProcessReturn_UnknownProduct_Rejected(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	seedCustomer(t, st, "cust-1", "Amal")
	inv := sellOnCredit(t, e, "cust-1", 50, 50)

	_, err := e.ProcessReturn(ctx, inv.ID, []ledger.ReturnLine{{ProductID: "nope", Quantity: 1}})
	assert.ErrorIs(t, err, ledger.ErrItemNotFound)
}

func TestProcessReturn_ZeroQuantities_Rejected(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	seedCustomer(t, st, "cust-1", "Amal")
	inv := sellOnCredit(t, e, "cust-1", 50, 50)

	_, err := e.ProcessReturn(ctx, inv.ID, nil)
	assert.ErrorIs(t, err, ledger.ErrEmptyReturn)

	_, err = e.ProcessReturn(ctx, inv.ID, []ledger.ReturnLine{{ProductID: "prod", Quantity: 0}})
	assert.ErrorIs(t, err, ledger.ErrEmptyReturn)
}

// =============================================================================
// REFUND POLICY
// =============================================================================

func TestProcessReturn_DebtFirst(t *testing.T) {
	// GIVEN: 40 outstanding debt and a 100 refund
	// WHEN: The return processes
	// THEN: Debt drops to zero first, the 60 leftover reduces TotalSpent

	e, st := newTestEngine(t)
	ctx := context.Background()
	seedCustomer(t, st, "cust-1", "Amal")

	inv, err := e.SettleSale(ctx, ledger.SaleInput{
		CustomerID: "cust-1",
		Items:      []ledger.SaleItem{line("tv", 1, 100)},
		Paid:       money(60),
	})
	require.NoError(t, err)

	res, err := e.ProcessReturn(ctx, inv.ID, []ledger.ReturnLine{{ProductID: "tv", Quantity: 1}})
	require.NoError(t, err)
	assert.True(t, res.RefundValue.Equal(money(100)))
	assert.True(t, res.DebtApplied.Equal(money(40)))
	assert.True(t, res.SpendReduced.Equal(money(60)))

	cust, _ := st.GetCustomer(ctx, "cust-1")
	assert.True(t, cust.TotalDebt.IsZero())
	assert.True(t, cust.TotalSpent.Equal(money(40)))
}

func TestProcessReturn_ProportionalPointsClawback(t *testing.T) {
	// GIVEN: A 100 invoice that earned 10 points
	// WHEN: 35 worth of items come back
	// THEN: floor(10 * 35/100) = 3 points are clawed back

	e, st := newTestEngine(t)
	ctx := context.Background()
	seedCustomer(t, st, "cust-1", "Amal")

	inv, err := e.SettleSale(ctx, ledger.SaleInput{
		CustomerID: "cust-1",
		Items:      []ledger.SaleItem{line("a", 1, 35), line("b", 1, 65)},
		Paid:       money(100),
	})
	require.NoError(t, err)
	require.Equal(t, int64(10), inv.PointsEarned)

	res, err := e.ProcessReturn(ctx, inv.ID, []ledger.ReturnLine{{ProductID: "a", Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), res.PointsRemoved)

	got, _ := st.GetInvoice(ctx, inv.ID)
	assert.Equal(t, int64(7), got.PointsEarned)

	cust, _ := st.GetCustomer(ctx, "cust-1")
	assert.Equal(t, int64(7), cust.LoyaltyPoints)
}

func TestProcessReturn_ClawbackNeverExceedsEarned(t *testing.T) {
	// Repeated partial returns sum their floors; the final claw is capped so
	// the invoice's points never go negative.
	e, st := newTestEngine(t)
	ctx := context.Background()
	seedCustomer(t, st, "cust-1", "Amal")

	inv, err := e.SettleSale(ctx, ledger.SaleInput{
		CustomerID: "cust-1",
		Items:      []ledger.SaleItem{line("a", 3, 33)},
		Paid:       money(99),
	})
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		res, err := e.ProcessReturn(ctx, inv.ID, []ledger.ReturnLine{{ProductID: "a", Quantity: 1}})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, res.PointsRemoved, int64(0))
	}

	got, _ := st.GetInvoice(ctx, inv.ID)
	assert.GreaterOrEqual(t, got.PointsEarned, int64(0))
	cust, _ := st.GetCustomer(ctx, "cust-1")
	assert.GreaterOrEqual(t, cust.LoyaltyPoints, int64(0))
}

func TestProcessReturn_FullReturn_StatusReturned(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	seedCustomer(t, st, "cust-1", "Amal")
	inv := sellOnCredit(t, e, "cust-1", 50, 50)

	res, err := e.ProcessReturn(ctx, inv.ID, []ledger.ReturnLine{{ProductID: "prod", Quantity: 1}})
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusReturned, res.Invoice.Status)
	require.Len(t, res.Invoice.ReturnHistory, 1)
	assert.True(t, res.Invoice.ReturnHistory[0].RefundAmount.Equal(money(50)))
}

func TestProcessReturn_PartiallyReturnedPaidInvoice_NotReopened(t *testing.T) {
	// A partial return flips a paid invoice back to "partial", but with zero
	// outstanding it must not absorb later repayments.
	e, st := newTestEngine(t)
	ctx := context.Background()
	seedCustomer(t, st, "cust-1", "Amal")

	paidInv, err := e.SettleSale(ctx, ledger.SaleInput{
		CustomerID: "cust-1",
		Items:      []ledger.SaleItem{line("a", 2, 25)},
		Paid:       money(50),
	})
	require.NoError(t, err)
	creditInv := sellOnCredit(t, e, "cust-1", 30, 0)

	_, err = e.ProcessReturn(ctx, paidInv.ID, []ledger.ReturnLine{{ProductID: "a", Quantity: 1}})
	require.NoError(t, err)

	got, _ := st.GetInvoice(ctx, paidInv.ID)
	require.Equal(t, ledger.StatusPartial, got.Status)

	res, err := e.AllocateRepayment(ctx, "cust-1", money(30), "")
	require.NoError(t, err)
	assert.Equal(t, []ledger.InvoiceID{creditInv.ID}, res.InvoicesTouched,
		"the returned invoice has nothing outstanding and must be skipped")
}

func TestProcessReturn_GrossRefundEntry(t *testing.T) {
	// The ledger entry records the gross refund value; the debt/spend split
	// lives on the invoice's ReturnRecord.
	e, st := newTestEngine(t)
	ctx := context.Background()
	seedCustomer(t, st, "cust-1", "Amal")
	inv := sellOnCredit(t, e, "cust-1", 100, 60)

	_, err := e.ProcessReturn(ctx, inv.ID, []ledger.ReturnLine{{ProductID: "prod", Quantity: 1}})
	require.NoError(t, err)

	entries, err := st.EntriesByCustomer(ctx, "cust-1")
	require.NoError(t, err)
	var refund *ledger.LedgerEntry
	for i := range entries {
		if entries[i].Type == ledger.EntryRefund {
			refund = &entries[i]
		}
	}
	require.NotNil(t, refund)
	assert.True(t, refund.Amount.Equal(money(100)), "entry carries gross value, not the 40 applied to debt")
}

// =============================================================================
// VOIDING
// =============================================================================

func TestVoidInvoice_KeepsDebtAndPoints(t *testing.T) {
	// Voiding reverses stock only. The debt and points the sale recorded stay.
	e, st := newTestEngine(t)
	ctx := context.Background()
	seedCustomer(t, st, "cust-1", "Amal")
	inv := sellOnCredit(t, e, "cust-1", 100, 40)

	voided, err := e.VoidInvoice(ctx, inv.ID, "cashier error")
	require.NoError(t, err)
	assert.True(t, voided.Voided)
	assert.True(t, voided.Deleted)
	assert.Equal(t, ledger.StatusVoided, voided.Status)

	cust, _ := st.GetCustomer(ctx, "cust-1")
	assert.True(t, cust.TotalDebt.Equal(money(60)), "void does not reverse debt")
	assert.Equal(t, int64(10), cust.LoyaltyPoints, "void does not reverse points")

	entries, _ := st.EntriesByCustomer(ctx, "cust-1")
	var kinds []ledger.EntryType
	for _, en := range entries {
		kinds = append(kinds, en.Type)
	}
	assert.Contains(t, kinds, ledger.EntryVoidReversal)
}

func TestVoidInvoice_Twice_Rejected(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	seedCustomer(t, st, "cust-1", "Amal")
	inv := sellOnCredit(t, e, "cust-1", 50, 50)

	_, err := e.VoidInvoice(ctx, inv.ID, "")
	require.NoError(t, err)
	_, err = e.VoidInvoice(ctx, inv.ID, "")
	assert.ErrorIs(t, err, ledger.ErrInvoiceVoided)
}

func TestProcessReturn_OnVoidedInvoice_Rejected(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	seedCustomer(t, st, "cust-1", "Amal")
	inv := sellOnCredit(t, e, "cust-1", 50, 50)

	_, err := e.VoidInvoice(ctx, inv.ID, "")
	require.NoError(t, err)
	_, err = e.ProcessReturn(ctx, inv.ID, []ledger.ReturnLine{{ProductID: "prod", Quantity: 1}})
	assert.ErrorIs(t, err, ledger.ErrInvoiceVoided)
}

func TestVoidInvoice_SkippedByAllocator(t *testing.T) {
	e, st := newTestEngine(t)
	ctx := context.Background()
	seedCustomer(t, st, "cust-1", "Amal")

	voidedInv := sellOnCredit(t, e, "cust-1", 30, 0)
	liveInv := sellOnCredit(t, e, "cust-1", 20, 0)
	_, err := e.VoidInvoice(ctx, voidedInv.ID, "")
	require.NoError(t, err)

	res, err := e.AllocateRepayment(ctx, "cust-1", money(20), "")
	require.NoError(t, err)
	assert.Equal(t, []ledger.InvoiceID{liveInv.ID}, res.InvoicesTouched)
}
