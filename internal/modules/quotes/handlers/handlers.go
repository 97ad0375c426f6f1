// Package handlers provides HTTP handlers for stock quotes and symbol search.
// Quote routes serve public market data and require no authentication.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/papertrade/papertrade/internal/domain"
	"github.com/papertrade/papertrade/internal/modules/quotes"
)

// Handler handles quote HTTP requests
type Handler struct {
	service *quotes.Service
	log     zerolog.Logger
}

// NewHandler creates a new quotes handler
func NewHandler(service *quotes.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "quotes").Logger(),
	}
}

// RegisterRoutes registers all stock data routes
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/stocks", func(r chi.Router) {
		r.Get("/quote/{ticker}", h.HandleQuote)
		r.Get("/search", h.HandleSearch)
	})
}

// HandleQuote returns the current quote for a ticker
func (h *Handler) HandleQuote(w http.ResponseWriter, r *http.Request) {
	quote, err := h.service.GetQuote(r.Context(), chi.URLParam(r, "ticker"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeSuccess(w, http.StatusOK, quote)
}

// HandleSearch searches symbols by free text (?q=)
func (h *Handler) HandleSearch(w http.ResponseWriter, r *http.Request) {
	matches, err := h.service.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if matches == nil {
		matches = []domain.SymbolMatch{}
	}

	h.writeSuccess(w, http.StatusOK, matches)
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

func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	code := domain.CodeOf(err)
	if code == "" {
		h.log.Error().Err(err).Msg("Unexpected error")
		h.writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status": "error", "message": "internal server error",
		})
		return
	}

	h.writeJSON(w, domain.HTTPStatus(err), map[string]string{
		"status":  "error",
		"code":    string(code),
		"message": err.Error(),
	})
}
