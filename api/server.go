/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the counter frontend

ROUTE GROUPS:
  /api/customers/*      Customer accounts, repayments, adjustments
  /api/sales            Sale settlement
  /api/invoices/*       Invoice detail, returns, voiding, history
  /api/export|import    Full-state snapshot exchange

SECURITY NOTE:
  No authentication middleware. The server is meant to run on the shop's
  local network behind the counter, not on the public internet.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		// Customer routes
		r.Route("/customers", func(r chi.Router) {
			r.Get("/", h.ListCustomers)
			r.Post("/", h.CreateCustomer)
			r.Get("/{id}", h.GetCustomer)
			r.Get("/{id}/invoices", h.GetCustomerInvoices)
			r.Get("/{id}/entries", h.GetCustomerEntries)
			r.Post("/{id}/repayments", h.SubmitRepayment)
			r.Post("/{id}/adjustments", h.SubmitAdjustment)
			r.Post("/{id}/rebuild", h.RebuildCustomer)
		})

		// Sale settlement
		r.Post("/sales", h.SubmitSale)

		// Invoice routes
		r.Route("/invoices", func(r chi.Router) {
			r.Get("/", h.ListInvoices)
			r.Get("/{id}", h.GetInvoice)
			r.Get("/{id}/history", h.GetInvoiceHistory)
			r.Get("/{id}/receipt", h.GetReceipt)
			r.Post("/{id}/returns", h.SubmitReturn)
			r.Post("/{id}/void", h.VoidInvoice)
		})

		// Snapshot routes
		r.Get("/export", h.ExportSnapshot)
		r.Post("/import", h.ImportSnapshot)

		// Demo scenario routes
		r.Get("/scenarios", h.ListScenarios)
		r.Post("/scenarios/{name}", h.LoadScenario)
	})

	return r
}
