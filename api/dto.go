/*
dto.go - Request/response data structures for the HTTP API

PURPOSE:
  Defines the JSON shapes exchanged with clients, separate from the domain
  types so the wire format can evolve independently.

CONVENTIONS:
  - Amounts are decimal values; shopspring/decimal accepts both JSON numbers
    and quoted strings on input and emits exact numbers on output
  - Timestamps are RFC3339 strings
  - IDs are opaque strings
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/pos-ledger/ledger"
)

// =============================================================================
// REQUESTS
// =============================================================================

// CreateCustomerRequest registers a new customer.
type CreateCustomerRequest struct {
	Name  string `json:"name"`
	Phone string `json:"phone,omitempty"`
}

// SaleItemRequest is one line of a draft sale.
type SaleItemRequest struct {
	ProductID string          `json:"product_id"`
	Name      string          `json:"name"`
	Quantity  int             `json:"quantity"`
	Price     decimal.Decimal `json:"price"`
	Cost      decimal.Decimal `json:"cost"`
}

// SaleRequest is a draft sale ready to settle.
type SaleRequest struct {
	CustomerID string            `json:"customer_id,omitempty"`
	Items      []SaleItemRequest `json:"items"`
	Discount   decimal.Decimal   `json:"discount"`
	Paid       decimal.Decimal   `json:"paid"`
	Note       string            `json:"note,omitempty"`
}

// RepaymentRequest pays down a customer's outstanding balance.
type RepaymentRequest struct {
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note,omitempty"`
}

// AdjustmentRequest records a manual ledger operation.
type AdjustmentRequest struct {
	Type      string          `json:"type"` // debt | repayment | adjustment
	Amount    decimal.Decimal `json:"amount"`
	Direction string          `json:"direction,omitempty"` // charge | credit
	Note      string          `json:"note,omitempty"`
}

// ReturnLineRequest asks to return units of one product.
type ReturnLineRequest struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// ReturnRequest returns items on an invoice.
type ReturnRequest struct {
	Lines []ReturnLineRequest `json:"lines"`
}

// VoidRequest trashes an invoice.
type VoidRequest struct {
	Note string `json:"note,omitempty"`
}

// =============================================================================
// RESPONSES
// =============================================================================

// CustomerDTO is the wire form of a customer with their cached totals.
type CustomerDTO struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Phone            string          `json:"phone,omitempty"`
	TotalSpent       decimal.Decimal `json:"total_spent"`
	TotalDebt        decimal.Decimal `json:"total_debt"`
	LoyaltyPoints    int64           `json:"loyalty_points"`
	TransactionCount int             `json:"transaction_count"`
	LastVisit        string          `json:"last_visit,omitempty"`
	CreatedAt        string          `json:"created_at,omitempty"`
}

// InvoiceItemDTO is one invoice line.
type InvoiceItemDTO struct {
	ProductID        string          `json:"product_id"`
	Name             string          `json:"name"`
	Quantity         int             `json:"quantity"`
	Price            decimal.Decimal `json:"price"`
	ReturnedQuantity int             `json:"returned_quantity,omitempty"`
}

// ReturnRecordDTO is one event in an invoice's return history.
type ReturnRecordDTO struct {
	Date          string          `json:"date"`
	RefundAmount  decimal.Decimal `json:"refund_amount"`
	DebtApplied   decimal.Decimal `json:"debt_applied"`
	PointsRemoved int64           `json:"points_removed"`
}

// InvoiceDTO is the wire form of an invoice.
type InvoiceDTO struct {
	ID            string            `json:"id"`
	Seq           int64             `json:"seq"`
	CustomerID    string            `json:"customer_id,omitempty"`
	Date          string            `json:"date"`
	Total         decimal.Decimal   `json:"total"`
	Discount      decimal.Decimal   `json:"discount"`
	PaidAmount    decimal.Decimal   `json:"paid_amount"`
	PaidAtIssue   decimal.Decimal   `json:"paid_at_issue"`
	Outstanding   decimal.Decimal   `json:"outstanding"`
	Status        string            `json:"status"`
	PointsEarned  int64             `json:"points_earned"`
	Items         []InvoiceItemDTO  `json:"items"`
	ReturnHistory []ReturnRecordDTO `json:"return_history,omitempty"`
	Voided        bool              `json:"voided,omitempty"`
}

// EntryDTO is the wire form of a ledger entry.
type EntryDTO struct {
	ID         string          `json:"id"`
	Seq        int64           `json:"seq"`
	CustomerID string          `json:"customer_id"`
	InvoiceID  string          `json:"invoice_id,omitempty"`
	Date       string          `json:"date"`
	Amount     decimal.Decimal `json:"amount"`
	Type       string          `json:"type"`
	Direction  string          `json:"direction"`
	Note       string          `json:"note,omitempty"`
}

// RepaymentResponse reports what a payment actually did.
type RepaymentResponse struct {
	Requested       decimal.Decimal `json:"requested"`
	Applied         decimal.Decimal `json:"applied"`
	InvoicesTouched []string        `json:"invoices_touched"`
	Entry           EntryDTO        `json:"entry"`
}

// ReturnResponse reports what a return did.
type ReturnResponse struct {
	Invoice       InvoiceDTO      `json:"invoice"`
	RefundValue   decimal.Decimal `json:"refund_value"`
	DebtApplied   decimal.Decimal `json:"debt_applied"`
	SpendReduced  decimal.Decimal `json:"spend_reduced"`
	PointsRemoved int64           `json:"points_removed"`
}

// HistoryResponse is the point-in-time balance picture for an invoice.
type HistoryResponse struct {
	InvoiceID   string          `json:"invoice_id"`
	CustomerID  string          `json:"customer_id,omitempty"`
	DebtBefore  decimal.Decimal `json:"debt_before"`
	Accumulated decimal.Decimal `json:"accumulated"`
	NetDue      decimal.Decimal `json:"net_due"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toCustomerDTO(c ledger.Customer) CustomerDTO {
	return CustomerDTO{
		ID:               string(c.ID),
		Name:             c.Name,
		Phone:            c.Phone,
		TotalSpent:       c.TotalSpent,
		TotalDebt:        c.TotalDebt,
		LoyaltyPoints:    c.LoyaltyPoints,
		TransactionCount: c.TransactionCount,
		LastVisit:        formatTime(c.LastVisit),
		CreatedAt:        formatTime(c.CreatedAt),
	}
}

func toInvoiceDTO(inv ledger.Invoice) InvoiceDTO {
	dto := InvoiceDTO{
		ID:           string(inv.ID),
		Seq:          inv.Seq,
		CustomerID:   string(inv.CustomerID),
		Date:         formatTime(inv.Date),
		Total:        inv.Total,
		Discount:     inv.Discount,
		PaidAmount:   inv.PaidAmount,
		PaidAtIssue:  inv.PaidAtIssue,
		Outstanding:  inv.Outstanding(),
		Status:       string(inv.Status),
		PointsEarned: inv.PointsEarned,
		Voided:       inv.Voided,
	}
	for _, it := range inv.Items {
		dto.Items = append(dto.Items, InvoiceItemDTO{
			ProductID:        it.ProductID,
			Name:             it.Name,
			Quantity:         it.Quantity,
			Price:            it.Price,
			ReturnedQuantity: it.ReturnedQuantity,
		})
	}
	for _, r := range inv.ReturnHistory {
		dto.ReturnHistory = append(dto.ReturnHistory, ReturnRecordDTO{
			Date:          formatTime(r.Date),
			RefundAmount:  r.RefundAmount,
			DebtApplied:   r.DebtApplied,
			PointsRemoved: r.PointsRemoved,
		})
	}
	return dto
}

func toEntryDTO(e ledger.LedgerEntry) EntryDTO {
	return EntryDTO{
		ID:         string(e.ID),
		Seq:        e.Seq,
		CustomerID: string(e.CustomerID),
		InvoiceID:  string(e.InvoiceID),
		Date:       formatTime(e.Date),
		Amount:     e.Amount,
		Type:       string(e.Type),
		Direction:  string(e.Direction),
		Note:       e.Note,
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
