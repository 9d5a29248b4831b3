package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/pos-ledger/api"
	"github.com/warp/pos-ledger/ledger"
	"github.com/warp/pos-ledger/ledger/store"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	st := store.NewTxMemory()
	engine := ledger.NewEngine(st, ledger.DefaultSettings())
	handler := api.NewHandler(engine, st, zerolog.Nop())
	srv := httptest.NewServer(api.NewRouter(handler))
	t.Cleanup(srv.Close)
	return srv
}

func doJSON(t *testing.T, method, url string, body any) (*http.Response, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })

	var decoded map[string]any
	if strings.Contains(resp.Header.Get("Content-Type"), "application/json") {
		json.NewDecoder(resp.Body).Decode(&decoded)
	}
	return resp, decoded
}

func createCustomer(t *testing.T, srv *httptest.Server, name string) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/customers",
		map[string]any{"name": name})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	return id
}

func submitSale(t *testing.T, srv *httptest.Server, customerID string, price, paid float64) string {
	t.Helper()
	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/sales", map[string]any{
		"customer_id": customerID,
		"items": []map[string]any{
			{"product_id": "prod", "name": "Product", "quantity": 1, "price": price},
		},
		"paid": paid,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode, "sale failed: %v", body)
	id, _ := body["id"].(string)
	require.NotEmpty(t, id)
	return id
}

// =============================================================================
// END-TO-END FLOW
// =============================================================================

func TestAPI_CreditLifecycle(t *testing.T) {
	// Full counter flow: register, sell on credit, repay, inspect the ledger.
	srv := newTestServer(t)
	custID := createCustomer(t, srv, "Amal")

	submitSale(t, srv, custID, 100, 40)
	submitSale(t, srv, custID, 50, 0)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/customers/"+custID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "110", fmt.Sprint(body["total_debt"]))

	resp, body = doJSON(t, http.MethodPost, srv.URL+"/api/customers/"+custID+"/repayments",
		map[string]any{"amount": 70})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "70", fmt.Sprint(body["applied"]))
	touched, _ := body["invoices_touched"].([]any)
	assert.Len(t, touched, 2, "70 retires the first invoice and dents the second")

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/customers/"+custID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "40", fmt.Sprint(body["total_debt"]))

	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/customers/"+custID+"/entries", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_ReturnFlow(t *testing.T) {
	srv := newTestServer(t)
	custID := createCustomer(t, srv, "Amal")
	invID := submitSale(t, srv, custID, 100, 60)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/invoices/"+invID+"/returns",
		map[string]any{"lines": []map[string]any{{"product_id": "prod", "quantity": 1}}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "100", fmt.Sprint(body["refund_value"]))
	assert.Equal(t, "40", fmt.Sprint(body["debt_applied"]))

	// A second return of the same line must hit the bound.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/invoices/"+invID+"/returns",
		map[string]any{"lines": []map[string]any{{"product_id": "prod", "quantity": 1}}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_HistoryEndpoint(t *testing.T) {
	srv := newTestServer(t)
	custID := createCustomer(t, srv, "Amal")
	submitSale(t, srv, custID, 100, 40)
	invID := submitSale(t, srv, custID, 50, 10)

	resp, body := doJSON(t, http.MethodGet, srv.URL+"/api/invoices/"+invID+"/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "60", fmt.Sprint(body["debt_before"]))
	assert.Equal(t, "110", fmt.Sprint(body["accumulated"]))
	assert.Equal(t, "100", fmt.Sprint(body["net_due"]))

	// Pay everything off; the reprint must not move.
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/customers/"+custID+"/repayments",
		map[string]any{"amount": 100})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = doJSON(t, http.MethodGet, srv.URL+"/api/invoices/"+invID+"/history", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "60", fmt.Sprint(body["debt_before"]))
	assert.Equal(t, "100", fmt.Sprint(body["net_due"]))
}

func TestAPI_VoidEndpoint(t *testing.T) {
	srv := newTestServer(t)
	custID := createCustomer(t, srv, "Amal")
	invID := submitSale(t, srv, custID, 50, 50)

	resp, body := doJSON(t, http.MethodPost, srv.URL+"/api/invoices/"+invID+"/void",
		map[string]any{"note": "cashier error"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "voided", body["status"])

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/invoices/"+invID+"/void", nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestAPI_ReceiptEndpoint(t *testing.T) {
	srv := newTestServer(t)
	custID := createCustomer(t, srv, "Amal")
	invID := submitSale(t, srv, custID, 100, 40)

	resp, err := http.Get(srv.URL + "/api/invoices/" + invID + "/receipt")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	text := string(raw)
	assert.Contains(t, text, "Amal")
	assert.Contains(t, text, "Previous balance")
	assert.Contains(t, text, "Net due")
}

// =============================================================================
// VALIDATION MAPPING
// =============================================================================

func TestAPI_ErrorStatuses(t *testing.T) {
	srv := newTestServer(t)
	custID := createCustomer(t, srv, "Amal")

	// Anonymous credit sale -> 400
	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/sales", map[string]any{
		"items": []map[string]any{{"product_id": "p", "name": "P", "quantity": 1, "price": 50}},
		"paid":  10,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Unknown customer -> 404
	resp, _ = doJSON(t, http.MethodGet, srv.URL+"/api/customers/ghost", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	// Zero repayment -> 400
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/customers/"+custID+"/repayments",
		map[string]any{"amount": 0})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Adjustment without direction -> 400
	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/customers/"+custID+"/adjustments",
		map[string]any{"type": "adjustment", "amount": 10})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// Malformed body -> 400
	req, _ := http.NewRequest(http.MethodPost, srv.URL+"/api/sales", strings.NewReader("{nope"))
	req.Header.Set("Content-Type", "application/json")
	raw, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	raw.Body.Close()
	assert.Equal(t, http.StatusBadRequest, raw.StatusCode)
}

// =============================================================================
// SNAPSHOT ENDPOINTS
// =============================================================================

func TestAPI_ExportImportRoundTrip(t *testing.T) {
	srv := newTestServer(t)
	custID := createCustomer(t, srv, "Amal")
	submitSale(t, srv, custID, 100, 40)

	resp, err := http.Get(srv.URL + "/api/export")
	require.NoError(t, err)
	var archive bytes.Buffer
	_, err = archive.ReadFrom(resp.Body)
	resp.Body.Close()
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	// Import into a second, empty server.
	other := newTestServer(t)
	resp, err = http.Post(other.URL+"/api/import", "application/json", &archive)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	got, body := doJSON(t, http.MethodGet, other.URL+"/api/customers/"+custID, nil)
	require.Equal(t, http.StatusOK, got.StatusCode)
	assert.Equal(t, "60", fmt.Sprint(body["total_debt"]))
}

func TestAPI_ImportRejectsPartialArchive(t *testing.T) {
	srv := newTestServer(t)
	resp, err := http.Post(srv.URL+"/api/import", "application/json",
		strings.NewReader(`{"version":1,"customers":[],"invoices":[]}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// =============================================================================
// DEMO SCENARIOS
// =============================================================================

func TestAPI_DemoScenario(t *testing.T) {
	srv := newTestServer(t)

	resp, _ := doJSON(t, http.MethodPost, srv.URL+"/api/scenarios/credit-shop", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	raw, err := http.Get(srv.URL + "/api/customers")
	require.NoError(t, err)
	defer raw.Body.Close()
	var customers []map[string]any
	require.NoError(t, json.NewDecoder(raw.Body).Decode(&customers))
	assert.Len(t, customers, 2)

	resp, _ = doJSON(t, http.MethodPost, srv.URL+"/api/scenarios/nope", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
