// Package handlers provides HTTP handlers for trade execution and history.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/papertrade/papertrade/internal/auth"
	"github.com/papertrade/papertrade/internal/domain"
	"github.com/papertrade/papertrade/internal/modules/portfolio"
	"github.com/papertrade/papertrade/internal/modules/trading"
)

// Handler handles trade HTTP requests
type Handler struct {
	trades     *trading.Service
	portfolios *portfolio.Service
	log        zerolog.Logger
}

// NewHandler creates a new trading handler
func NewHandler(trades *trading.Service, portfolios *portfolio.Service, log zerolog.Logger) *Handler {
	return &Handler{
		trades:     trades,
		portfolios: portfolios,
		log:        log.With().Str("handler", "trading").Logger(),
	}
}

type tradeRequest struct {
	Ticker string          `json:"ticker"`
	Shares decimal.Decimal `json:"shares"`
	// Price is fetched server-side, never supplied by the client
}

// HandleBuy executes a buy order against a portfolio
func (h *Handler) HandleBuy(w http.ResponseWriter, r *http.Request) {
	h.handleTrade(w, r, h.trades.Buy)
}

// HandleSell executes a sell order against a portfolio
func (h *Handler) HandleSell(w http.ResponseWriter, r *http.Request) {
	h.handleTrade(w, r, h.trades.Sell)
}

// tradeFunc is the shared shape of Service.Buy and Service.Sell
type tradeFunc func(ctx context.Context, portfolioID, userID, ticker string, shares decimal.Decimal) (*trading.Result, error)

func (h *Handler) handleTrade(w http.ResponseWriter, r *http.Request, execute tradeFunc) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req tradeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Ticker == "" {
		h.writeError(w, http.StatusBadRequest, "ticker symbol is required")
		return
	}

	result, err := execute(r.Context(), chi.URLParam(r, "portfolioId"), userID, req.Ticker, req.Shares)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeSuccess(w, http.StatusCreated, result)
}

// HandleHoldings returns a portfolio's valued holdings plus summary totals
func (h *Handler) HandleHoldings(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	holdings, summary, err := h.portfolios.ValuedHoldings(r.Context(), chi.URLParam(r, "portfolioId"), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeSuccess(w, http.StatusOK, map[string]interface{}{
		"holdings": holdings,
		"summary":  summary,
	})
}

// HandleTransactions returns a portfolio's trade history, newest first
func (h *Handler) HandleTransactions(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	transactions, err := h.trades.Transactions(r.Context(), chi.URLParam(r, "portfolioId"), userID, limit)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if transactions == nil {
		transactions = []domain.Transaction{}
	}

	h.writeSuccess(w, http.StatusOK, transactions)
}

// HandleTransaction returns one ledger row
func (h *Handler) HandleTransaction(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	t, err := h.trades.Transaction(r.Context(),
		chi.URLParam(r, "transactionId"), chi.URLParam(r, "portfolioId"), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeSuccess(w, http.StatusOK, t)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (h *Handler) writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	h.writeJSON(w, status, map[string]interface{}{"status": "success", "data": data})
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"status": "error", "message": message})
}

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	code := domain.CodeOf(err)
	if code == "" {
		h.log.Error().Err(err).Msg("Unexpected error")
		h.writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.writeJSON(w, domain.HTTPStatus(err), map[string]string{
		"status":  "error",
		"code":    string(code),
		"message": err.Error(),
	})
}
