/*
demo.go - Seedable demo scenarios

PURPOSE:
  Loads small, named demo datasets through the real engine operations so a
  fresh install has something to show. Every record goes through SettleSale /
  AllocateRepayment / ProcessReturn - never raw store writes - so the demo
  data obeys the same invariants as production data.
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/warp/pos-ledger/ledger"
)

// ScenarioInfo describes one loadable demo dataset.
type ScenarioInfo struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var scenarios = []ScenarioInfo{
	{Name: "credit-shop", Description: "Two regulars buying on credit, one partial repayment"},
	{Name: "returns", Description: "A paid sale with a partial return and points clawback"},
}

// ListScenarios returns the available demo datasets.
// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// LoadScenario seeds the named dataset through the engine.
// POST /api/scenarios/{name}
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	ctx := r.Context()

	seedSale := func(customerID ledger.CustomerID, product string, price, paid int64) (*ledger.Invoice, error) {
		return h.Engine.SettleSale(ctx, ledger.SaleInput{
			CustomerID: customerID,
			Items: []ledger.SaleItem{{
				ProductID: product, Name: product, Quantity: 1,
				Price: decimal.NewFromInt(price),
			}},
			Paid: decimal.NewFromInt(paid),
		})
	}
	newCustomer := func(custName string) (ledger.CustomerID, error) {
		id := ledger.CustomerID(h.Engine.NewID())
		err := h.Engine.Store.PutCustomer(ctx, &ledger.Customer{
			ID: id, Name: custName,
			TotalSpent: decimal.Zero, TotalDebt: decimal.Zero,
			CreatedAt: h.Engine.Now(),
		})
		return id, err
	}

	var err error
	switch name {
	case "credit-shop":
		var amal, rifka ledger.CustomerID
		if amal, err = newCustomer("Amal"); err == nil {
			if rifka, err = newCustomer("Rifka"); err == nil {
				_, err = seedSale(amal, "Rice 5kg", 120, 50)
				if err == nil {
					_, err = seedSale(amal, "Cooking Oil", 60, 0)
				}
				if err == nil {
					_, err = seedSale(rifka, "Flour 10kg", 80, 80)
				}
				if err == nil {
					_, err = h.Engine.AllocateRepayment(ctx, amal, decimal.NewFromInt(70), "weekly settlement")
				}
			}
		}
	case "returns":
		var cust ledger.CustomerID
		var inv *ledger.Invoice
		if cust, err = newCustomer("Nuwan"); err == nil {
			if inv, err = seedSale(cust, "Kettle", 90, 90); err == nil {
				_, err = h.Engine.ProcessReturn(ctx, inv.ID, []ledger.ReturnLine{
					{ProductID: "Kettle", Quantity: 1},
				})
			}
		}
	default:
		writeError(w, http.StatusNotFound, "unknown scenario", nil)
		return
	}

	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load scenario", err)
		return
	}
	h.Log.Info().Str("scenario", name).Msg("demo scenario loaded")
	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": name})
}
