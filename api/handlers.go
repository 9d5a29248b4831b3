/*
handlers.go - HTTP API handlers for the customer ledger

PURPOSE:
  Exposes the ledger engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Customers:
    GET    /api/customers                    List customers
    POST   /api/customers                    Register a customer
    GET    /api/customers/{id}               Customer with cached totals
    GET    /api/customers/{id}/invoices      Sale history (creation order)
    GET    /api/customers/{id}/entries       Ledger entries (creation order)
    POST   /api/customers/{id}/repayments    FIFO repayment allocation
    POST   /api/customers/{id}/adjustments   Manual debt/repayment/adjustment
    POST   /api/customers/{id}/rebuild       Replay history, rewrite totals

  Invoices:
    POST   /api/sales                        Settle a draft sale
    GET    /api/invoices                     List invoices
    GET    /api/invoices/{id}                Invoice detail
    GET    /api/invoices/{id}/history        Point-in-time balance block
    GET    /api/invoices/{id}/receipt        Printable receipt (text/plain)
    POST   /api/invoices/{id}/returns        Partial or full item return
    POST   /api/invoices/{id}/void           Trash an invoice

  Snapshot:
    GET    /api/export                       Full-state JSON archive
    POST   /api/import                       Restore an archive wholesale

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 409: Conflict (operation on a voided invoice)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/warp/pos-ledger/ledger"
	"github.com/warp/pos-ledger/pos"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine   *ledger.Engine
	Restorer ledger.Restorer
	Log      zerolog.Logger
}

// NewHandler creates a new handler around the engine. The restorer is usually
// the same store; it is separate so a read-only deployment can omit import.
func NewHandler(engine *ledger.Engine, restorer ledger.Restorer, log zerolog.Logger) *Handler {
	return &Handler{Engine: engine, Restorer: restorer, Log: log}
}

// =============================================================================
// CUSTOMER ENDPOINTS
// =============================================================================

// ListCustomers returns all customers.
// GET /api/customers
func (h *Handler) ListCustomers(w http.ResponseWriter, r *http.Request) {
	customers, err := h.Engine.Store.ListCustomers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list customers", err)
		return
	}
	dtos := make([]CustomerDTO, 0, len(customers))
	for _, c := range customers {
		dtos = append(dtos, toCustomerDTO(c))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCustomer registers a new customer with zeroed totals.
// POST /api/customers
func (h *Handler) CreateCustomer(w http.ResponseWriter, r *http.Request) {
	var req CreateCustomerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}

	now := h.Engine.Now()
	cust := &ledger.Customer{
		ID:         ledger.CustomerID(h.Engine.NewID()),
		Name:       req.Name,
		Phone:      req.Phone,
		TotalSpent: decimal.Zero,
		TotalDebt:  decimal.Zero,
		CreatedAt:  now,
	}
	if err := h.Engine.Store.PutCustomer(r.Context(), cust); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create customer", err)
		return
	}

	h.Log.Info().Str("customer_id", string(cust.ID)).Msg("customer created")
	writeJSON(w, http.StatusCreated, toCustomerDTO(*cust))
}

// GetCustomer returns one customer with their cached totals.
// GET /api/customers/{id}
func (h *Handler) GetCustomer(w http.ResponseWriter, r *http.Request) {
	id := ledger.CustomerID(chi.URLParam(r, "id"))
	cust, err := h.Engine.Store.GetCustomer(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCustomerDTO(*cust))
}

// GetCustomerInvoices returns the customer's sales in creation order.
// GET /api/customers/{id}/invoices
func (h *Handler) GetCustomerInvoices(w http.ResponseWriter, r *http.Request) {
	id := ledger.CustomerID(chi.URLParam(r, "id"))
	if _, err := h.Engine.Store.GetCustomer(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	invoices, err := h.Engine.Store.InvoicesByCustomer(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list invoices", err)
		return
	}
	dtos := make([]InvoiceDTO, 0, len(invoices))
	for _, inv := range invoices {
		dtos = append(dtos, toInvoiceDTO(inv))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetCustomerEntries returns the customer's ledger entries in creation order.
// GET /api/customers/{id}/entries
func (h *Handler) GetCustomerEntries(w http.ResponseWriter, r *http.Request) {
	id := ledger.CustomerID(chi.URLParam(r, "id"))
	if _, err := h.Engine.Store.GetCustomer(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	entries, err := h.Engine.Store.EntriesByCustomer(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list entries", err)
		return
	}
	dtos := make([]EntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, toEntryDTO(e))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// SubmitRepayment allocates a payment across the customer's open invoices.
// POST /api/customers/{id}/repayments
func (h *Handler) SubmitRepayment(w http.ResponseWriter, r *http.Request) {
	id := ledger.CustomerID(chi.URLParam(r, "id"))
	var req RepaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	res, err := h.Engine.AllocateRepayment(r.Context(), id, req.Amount, req.Note)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := RepaymentResponse{
		Requested:       res.Requested,
		Applied:         res.Applied,
		InvoicesTouched: make([]string, 0, len(res.InvoicesTouched)),
		Entry:           toEntryDTO(res.Entry),
	}
	for _, invID := range res.InvoicesTouched {
		resp.InvoicesTouched = append(resp.InvoicesTouched, string(invID))
	}
	writeJSON(w, http.StatusOK, resp)
}

// SubmitAdjustment records a manual ledger operation.
// POST /api/customers/{id}/adjustments
func (h *Handler) SubmitAdjustment(w http.ResponseWriter, r *http.Request) {
	id := ledger.CustomerID(chi.URLParam(r, "id"))
	var req AdjustmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	entry, err := h.Engine.RecordAdjustment(r.Context(), ledger.AdjustmentInput{
		CustomerID: id,
		Type:       ledger.EntryType(req.Type),
		Amount:     req.Amount,
		Direction:  ledger.AdjustmentDirection(req.Direction),
		Note:       req.Note,
	})
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(*entry))
}

// RebuildCustomer replays the customer's history and rewrites their totals.
// POST /api/customers/{id}/rebuild
func (h *Handler) RebuildCustomer(w http.ResponseWriter, r *http.Request) {
	id := ledger.CustomerID(chi.URLParam(r, "id"))
	cust, err := h.Engine.RebuildAggregate(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.Log.Info().Str("customer_id", string(id)).Msg("customer aggregate rebuilt")
	writeJSON(w, http.StatusOK, toCustomerDTO(*cust))
}

// =============================================================================
// SALE AND INVOICE ENDPOINTS
// =============================================================================

// SubmitSale settles a draft sale into an invoice.
// POST /api/sales
func (h *Handler) SubmitSale(w http.ResponseWriter, r *http.Request) {
	var req SaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	in := ledger.SaleInput{
		CustomerID: ledger.CustomerID(req.CustomerID),
		Discount:   req.Discount,
		Paid:       req.Paid,
		Note:       req.Note,
	}
	for _, it := range req.Items {
		in.Items = append(in.Items, ledger.SaleItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Quantity:  it.Quantity,
			Price:     it.Price,
			Cost:      it.Cost,
		})
	}

	inv, err := h.Engine.SettleSale(r.Context(), in)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toInvoiceDTO(*inv))
}

// ListInvoices returns all invoices in creation order.
// GET /api/invoices
func (h *Handler) ListInvoices(w http.ResponseWriter, r *http.Request) {
	invoices, err := h.Engine.Store.ListInvoices(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list invoices", err)
		return
	}
	dtos := make([]InvoiceDTO, 0, len(invoices))
	for _, inv := range invoices {
		dtos = append(dtos, toInvoiceDTO(inv))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetInvoice returns one invoice.
// GET /api/invoices/{id}
func (h *Handler) GetInvoice(w http.ResponseWriter, r *http.Request) {
	id := ledger.InvoiceID(chi.URLParam(r, "id"))
	inv, err := h.Engine.Store.GetInvoice(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toInvoiceDTO(*inv))
}

// GetInvoiceHistory returns the point-in-time balance block for an invoice.
// GET /api/invoices/{id}/history
func (h *Handler) GetInvoiceHistory(w http.ResponseWriter, r *http.Request) {
	id := ledger.InvoiceID(chi.URLParam(r, "id"))
	hb, err := h.Engine.HistoricalBalance(r.Context(), id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, HistoryResponse{
		InvoiceID:   string(hb.InvoiceID),
		CustomerID:  string(hb.CustomerID),
		DebtBefore:  hb.DebtBefore,
		Accumulated: hb.Accumulated,
		NetDue:      hb.NetDue,
	})
}

// GetReceipt renders the printable receipt for an invoice.
// GET /api/invoices/{id}/receipt
func (h *Handler) GetReceipt(w http.ResponseWriter, r *http.Request) {
	id := ledger.InvoiceID(chi.URLParam(r, "id"))
	receipt, err := pos.BuildReceipt(r.Context(), h.Engine, id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(receipt.Render()))
}

// SubmitReturn returns items on an invoice.
// POST /api/invoices/{id}/returns
func (h *Handler) SubmitReturn(w http.ResponseWriter, r *http.Request) {
	id := ledger.InvoiceID(chi.URLParam(r, "id"))
	var req ReturnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	lines := make([]ledger.ReturnLine, 0, len(req.Lines))
	for _, ln := range req.Lines {
		lines = append(lines, ledger.ReturnLine{ProductID: ln.ProductID, Quantity: ln.Quantity})
	}

	res, err := h.Engine.ProcessReturn(r.Context(), id, lines)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, ReturnResponse{
		Invoice:       toInvoiceDTO(*res.Invoice),
		RefundValue:   res.RefundValue,
		DebtApplied:   res.DebtApplied,
		SpendReduced:  res.SpendReduced,
		PointsRemoved: res.PointsRemoved,
	})
}

// VoidInvoice trashes an invoice, reversing stock only.
// POST /api/invoices/{id}/void
func (h *Handler) VoidInvoice(w http.ResponseWriter, r *http.Request) {
	id := ledger.InvoiceID(chi.URLParam(r, "id"))
	var req VoidRequest
	if r.Body != nil {
		json.NewDecoder(r.Body).Decode(&req) // body is optional
	}

	inv, err := h.Engine.VoidInvoice(r.Context(), id, req.Note)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.Log.Info().Str("invoice_id", string(id)).Msg("invoice voided")
	writeJSON(w, http.StatusOK, toInvoiceDTO(*inv))
}

// =============================================================================
// SNAPSHOT ENDPOINTS
// =============================================================================

// ExportSnapshot streams the full state as a JSON archive.
// GET /api/export
func (h *Handler) ExportSnapshot(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="ledger-export.json"`)
	if err := pos.WriteSnapshot(r.Context(), w, h.Engine.Store, h.Engine.Settings); err != nil {
		h.Log.Error().Err(err).Msg("snapshot export failed")
	}
}

// ImportSnapshot restores an archive, replacing all current state.
// POST /api/import
func (h *Handler) ImportSnapshot(w http.ResponseWriter, r *http.Request) {
	settings, err := pos.Import(r.Context(), r.Body, h.Restorer)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	h.Engine.Settings = settings
	h.Log.Info().Msg("snapshot imported")
	writeJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

// =============================================================================
// RESPONSE HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps a ledger error onto an HTTP status.
func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvoiceVoided):
		writeError(w, http.StatusConflict, err.Error(), nil)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case ledger.IsValidation(err):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "internal error", err)
	}
}
