// Package handlers provides HTTP handlers for portfolio management.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/papertrade/papertrade/internal/auth"
	"github.com/papertrade/papertrade/internal/domain"
	"github.com/papertrade/papertrade/internal/modules/portfolio"
)

// Handler handles portfolio HTTP requests
type Handler struct {
	service *portfolio.Service
	log     zerolog.Logger
}

// NewHandler creates a new portfolio handler
func NewHandler(service *portfolio.Service, log zerolog.Logger) *Handler {
	return &Handler{
		service: service,
		log:     log.With().Str("handler", "portfolio").Logger(),
	}
}

type createPortfolioRequest struct {
	Name            string          `json:"name"`
	StartingCapital decimal.Decimal `json:"startingCapital"`
}

type updatePortfolioRequest struct {
	Name string `json:"name"`
}

// HandleCreate creates a new portfolio for the authenticated user
func (h *Handler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req createPortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.service.Create(r.Context(), userID, req.Name, req.StartingCapital)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeSuccess(w, http.StatusCreated, p)
}

// HandleList returns all portfolios owned by the authenticated user
func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	portfolios, err := h.service.ListByUser(r.Context(), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	if portfolios == nil {
		portfolios = []domain.Portfolio{}
	}

	h.writeSuccess(w, http.StatusOK, portfolios)
}

// HandleGet returns one portfolio with computed totals
func (h *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	detail, err := h.service.GetDetail(r.Context(), chi.URLParam(r, "id"), userID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeSuccess(w, http.StatusOK, detail)
}

// HandleUpdate renames a portfolio
func (h *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	var req updatePortfolioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	p, err := h.service.Rename(r.Context(), chi.URLParam(r, "id"), userID, req.Name)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeSuccess(w, http.StatusOK, p)
}

// HandleDelete soft-deletes a portfolio
func (h *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserID(r.Context())
	if !ok {
		h.writeError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	if err := h.service.SoftDelete(r.Context(), chi.URLParam(r, "id"), userID); err != nil {
		h.writeDomainError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "success",
		"message": "Portfolio deleted successfully",
	})
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
