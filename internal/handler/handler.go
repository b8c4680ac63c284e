// Package handler exposes the settlement service over HTTP.
package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/xenking/oolio-settle/internal/domain/ledger"
	"github.com/xenking/oolio-settle/internal/domain/settlement"
)

// Handler serves the settlement API.
type Handler struct {
	settlements *settlement.Service
	ledger      ledger.Store
}

// NewHandler constructs a Handler with the required domain dependencies.
func NewHandler(settlements *settlement.Service, l ledger.Store) *Handler {
	return &Handler{
		settlements: settlements,
		ledger:      l,
	}
}

// Register mounts the API routes on r.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/orders/{orderID}/pending", h.OrderStatus)
		r.Post("/orders/{orderID}/settlements", h.Settle)

		r.Get("/settlements/{sessionID}", h.GetSession)
		r.Post("/settlements/{sessionID}/confirm", h.Confirm)
		r.Post("/settlements/{sessionID}/cancel", h.Cancel)

		r.Post("/intents/{intentID}/resume", h.Resume)

		r.Get("/tickets", h.SearchTickets)
		r.Delete("/tickets", h.ClearTickets)
		r.Get("/tickets/{ticketID}", h.GetTicket)
		r.Get("/tickets/{ticketID}/print", h.PrintTicket)
	})
}

// Routes returns a router serving only the API routes.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	h.Register(r)
	return r
}
