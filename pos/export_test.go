package pos_test

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/pos-ledger/ledger"
	"github.com/warp/pos-ledger/ledger/store"
	"github.com/warp/pos-ledger/pos"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newSeededEngine(t *testing.T) (*ledger.Engine, *store.TxMemory) {
	t.Helper()
	st := store.NewTxMemory()
	e := ledger.NewEngine(st, ledger.DefaultSettings())
	e.Now = func() time.Time { return time.Date(2025, time.April, 1, 12, 0, 0, 0, time.UTC) }

	require.NoError(t, st.PutCustomer(context.Background(), &ledger.Customer{
		ID: "cust-1", Name: "Amal",
		TotalSpent: decimal.Zero, TotalDebt: decimal.Zero,
		CreatedAt: time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
	}))
	return e, st
}

func settle(t *testing.T, e *ledger.Engine, total, paid float64) *ledger.Invoice {
	t.Helper()
	inv, err := e.SettleSale(context.Background(), ledger.SaleInput{
		CustomerID: "cust-1",
		Items: []ledger.SaleItem{{
			ProductID: "prod", Name: "Product", Quantity: 1,
			Price: decimal.NewFromFloat(total),
		}},
		Paid: decimal.NewFromFloat(paid),
	})
	require.NoError(t, err)
	return inv
}

// =============================================================================
// EXPORT / IMPORT ROUND TRIP
// =============================================================================

func TestSnapshot_RoundTripPreservesBalances(t *testing.T) {
	// GIVEN: A store with sales, debt, and ledger entries
	// WHEN: The state is exported and imported into a fresh store
	// THEN: Every balance and record survives exactly

	e, st := newSeededEngine(t)
	ctx := context.Background()

	settle(t, e, 100, 40)
	inv2 := settle(t, e, 50, 50)
	_, err := e.AllocateRepayment(ctx, "cust-1", decimal.NewFromInt(25), "")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, pos.WriteSnapshot(ctx, &buf, st, e.Settings))

	fresh := store.NewTxMemory()
	settings, err := pos.Import(ctx, &buf, fresh)
	require.NoError(t, err)
	assert.Equal(t, e.Settings.CurrencySymbol, settings.CurrencySymbol)

	cust, err := fresh.GetCustomer(ctx, "cust-1")
	require.NoError(t, err)
	assert.True(t, cust.TotalDebt.Equal(decimal.NewFromInt(35)), "got %s", cust.TotalDebt)
	assert.True(t, cust.TotalSpent.Equal(decimal.NewFromInt(150)))

	invoices, err := fresh.ListInvoices(ctx)
	require.NoError(t, err)
	assert.Len(t, invoices, 2)
	entries, err := fresh.ListEntries(ctx)
	require.NoError(t, err)
	assert.Len(t, entries, 2, "one linked debt entry, one repayment")

	// The imported store keeps working: the reconstructor and the allocator
	// both rely on the sequence continuing past the imported records.
	e2 := ledger.NewEngine(fresh, settings)
	hb, err := e2.HistoricalBalance(ctx, inv2.ID)
	require.NoError(t, err)
	assert.True(t, hb.DebtBefore.Equal(decimal.NewFromInt(60)))
}

func TestSnapshot_EmptyStoreRoundTrips(t *testing.T) {
	_, st := newSeededEngine(t)
	ctx := context.Background()

	var buf bytes.Buffer
	require.NoError(t, pos.WriteSnapshot(ctx, &buf, store.NewMemory(), ledger.DefaultSettings()))

	_, err := pos.Import(ctx, &buf, st)
	assert.NoError(t, err, "empty collections are valid, missing ones are not")
}

// =============================================================================
// SHAPE VALIDATION
// =============================================================================

func TestSnapshot_MissingCollection_Rejected(t *testing.T) {
	cases := map[string]string{
		"no entries":   `{"version":1,"customers":[],"invoices":[]}`,
		"no invoices":  `{"version":1,"customers":[],"entries":[]}`,
		"no customers": `{"version":1,"invoices":[],"entries":[]}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := pos.ReadSnapshot(strings.NewReader(payload))
			assert.ErrorIs(t, err, ledger.ErrSnapshotShape)
		})
	}
}

func TestSnapshot_MalformedJSON_Rejected(t *testing.T) {
	fresh := store.NewTxMemory()
	_, err := pos.Import(context.Background(), strings.NewReader("{not json"), fresh)
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ledger.ErrSnapshotShape)
}

func TestSnapshot_ImportReplacesEverything(t *testing.T) {
	// Import is wholesale: records absent from the archive are gone after.
	e, st := newSeededEngine(t)
	ctx := context.Background()
	settle(t, e, 100, 100)

	empty := `{"version":1,"settings":{"CurrencySymbol":"Rs"},"customers":[],"invoices":[],"entries":[]}`
	settings, err := pos.Import(ctx, strings.NewReader(empty), st)
	require.NoError(t, err)
	assert.Equal(t, "Rs", settings.CurrencySymbol)

	invoices, err := st.ListInvoices(ctx)
	require.NoError(t, err)
	assert.Empty(t, invoices)
}
