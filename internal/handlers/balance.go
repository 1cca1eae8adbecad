package handlers

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/a2sh3r/fundsledger/internal/apperrors"
	"github.com/a2sh3r/fundsledger/internal/models"
	"github.com/a2sh3r/fundsledger/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type balanceMutationRequest struct {
	Amount      decimal.Decimal       `json:"amount"`
	Currency    string                `json:"currency" validate:"required"`
	Reference   models.FundsReference `json:"reference"`
	Description string                `json:"description" validate:"max=500"`
}

type settleRequest struct {
	ToUserID    string                `json:"to_user_id" validate:"required"`
	Amount      decimal.Decimal       `json:"amount"`
	Currency    string                `json:"currency" validate:"required"`
	Reference   models.FundsReference `json:"reference"`
	Description string                `json:"description" validate:"max=500"`
}

type debitReference struct {
	ID   string         `json:"id" validate:"required"`
	Type models.RefType `json:"type" validate:"required,oneof=withdrawal payment fee"`
}

type debitRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency" validate:"required"`
	Reference   debitReference  `json:"reference"`
	Description string          `json:"description" validate:"max=500"`
}

type balanceOp func(ctx context.Context, req service.BalanceRequest) (*models.BalanceRecord, error)

func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.ledgerService.GetUserBalances(r.Context(), chi.URLParam(r, "userID"), r.URL.Query().Get("currency"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, balances)
}

func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	filters, err := parseTransactionFilters(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	history, err := h.ledgerService.GetTransactionHistory(r.Context(), chi.URLParam(r, "userID"), filters)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, history)
}

func (h *Handler) Credit(w http.ResponseWriter, r *http.Request) {
	h.mutateBalance(w, r, h.ledgerService.Credit)
}

func (h *Handler) Hold(w http.ResponseWriter, r *http.Request) {
	h.mutateBalance(w, r, h.ledgerService.Hold)
}

func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	h.mutateBalance(w, r, h.ledgerService.Release)
}

func (h *Handler) Debit(w http.ResponseWriter, r *http.Request) {
	var req debitRequest
	if err := h.decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	record, err := h.ledgerService.Debit(r.Context(), service.BalanceRequest{
		UserID:      chi.URLParam(r, "userID"),
		Amount:      req.Amount,
		Currency:    req.Currency,
		Reference:   models.FundsReference{ID: req.Reference.ID, Type: req.Reference.Type},
		Description: req.Description,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// Settle pays the held funds of the path user out to to_user_id.
func (h *Handler) Settle(w http.ResponseWriter, r *http.Request) {
	var req settleRequest
	if err := h.decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	settlement, err := h.ledgerService.Settle(r.Context(), service.SettleRequest{
		FromUserID:  chi.URLParam(r, "userID"),
		ToUserID:    req.ToUserID,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Reference:   req.Reference,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, settlement)
}

func (h *Handler) mutateBalance(w http.ResponseWriter, r *http.Request, op balanceOp) {
	var req balanceMutationRequest
	if err := h.decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	record, err := op(r.Context(), service.BalanceRequest{
		UserID:      chi.URLParam(r, "userID"),
		Amount:      req.Amount,
		Currency:    req.Currency,
		Reference:   req.Reference,
		Description: req.Description,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func parseTransactionFilters(r *http.Request) (models.TransactionFilters, error) {
	q := r.URL.Query()
	filters := models.TransactionFilters{
		Currency: q.Get("currency"),
		Type:     q.Get("type"),
	}

	var err error
	if filters.Page, err = parseIntParam(q.Get("page"), "page"); err != nil {
		return filters, err
	}
	if filters.Limit, err = parseIntParam(q.Get("limit"), "limit"); err != nil {
		return filters, err
	}
	if filters.From, err = parseDateParam(q.Get("from"), "from", false); err != nil {
		return filters, err
	}
	if filters.To, err = parseDateParam(q.Get("to"), "to", true); err != nil {
		return filters, err
	}
	return filters, nil
}

func parseIntParam(raw, name string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperrors.Validation("%s must be an integer", name)
	}
	return v, nil
}

// parseDateParam accepts a plain date or a full RFC 3339 timestamp. A plain
// date used as an upper bound becomes the next midnight, so the whole day
// is included by the exclusive bound; timestamps are kept as given.
func parseDateParam(raw, name string, upper bool) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		if upper {
			t = t.AddDate(0, 0, 1)
		}
		return &t, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	return nil, apperrors.Validation("%s must be a date (YYYY-MM-DD)", name)
}
