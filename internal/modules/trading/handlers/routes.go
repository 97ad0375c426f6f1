package handlers

import (
	"github.com/go-chi/chi/v5"
)

// RegisterRoutes registers all trade routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/trades/portfolios/{portfolioId}", func(r chi.Router) {
		r.Post("/buy", h.HandleBuy)
		r.Post("/sell", h.HandleSell)
		r.Get("/holdings", h.HandleHoldings)
		r.Get("/transactions", h.HandleTransactions)
		r.Get("/transactions/{transactionId}", h.HandleTransaction)
	})
}
