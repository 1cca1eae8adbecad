package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/a2sh3r/fundsledger/internal/logger"
	"github.com/a2sh3r/fundsledger/internal/models"
	"github.com/a2sh3r/fundsledger/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type initiateWithdrawalRequest struct {
	UserID           string          `json:"user_id" validate:"required"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency" validate:"required"`
	DestinationEmail string          `json:"destination_email" validate:"required"`
	Metadata         json.RawMessage `json:"metadata,omitempty"`
}

type reasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

func (h *Handler) InitiateWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req initiateWithdrawalRequest
	if err := h.decodeJSON(r, &req, false); err != nil {
		writeError(w, r, err)
		return
	}

	withdrawal, err := h.withdrawalService.Initiate(r.Context(), service.InitiateWithdrawalRequest{
		UserID:           req.UserID,
		Amount:           req.Amount,
		Currency:         req.Currency,
		DestinationEmail: req.DestinationEmail,
		Metadata:         req.Metadata,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, withdrawal)
}

func (h *Handler) GetWithdrawal(w http.ResponseWriter, r *http.Request) {
	withdrawal, err := h.withdrawalService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawal)
}

func (h *Handler) ListUserWithdrawals(w http.ResponseWriter, r *http.Request) {
	withdrawals, err := h.withdrawalService.ListByUser(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawals)
}

func (h *Handler) ProcessWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id, _ string) (*models.Withdrawal, error) {
		return h.withdrawalService.Process(ctx, id)
	})
}

func (h *Handler) RejectWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.withdrawalService.Reject)
}

func (h *Handler) CancelWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.withdrawalService.Cancel)
}

func (h *Handler) CompleteWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id, _ string) (*models.Withdrawal, error) {
		return h.withdrawalService.Complete(ctx, id)
	})
}

func (h *Handler) FailWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.withdrawalService.Fail)
}

func (h *Handler) RefundWithdrawal(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, func(ctx context.Context, id, _ string) (*models.Withdrawal, error) {
		return h.withdrawalService.Refund(ctx, id)
	})
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, op func(ctx context.Context, id, reason string) (*models.Withdrawal, error)) {
	var req reasonRequest
	if err := h.decodeJSON(r, &req, true); err != nil {
		writeError(w, r, err)
		return
	}

	withdrawal, err := op(r.Context(), chi.URLParam(r, "id"), req.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawal)
}

func (h *Handler) PayoutWebhook(w http.ResponseWriter, r *http.Request) {
	var event service.PayoutWebhookEvent
	if err := h.decodeJSON(r, &event, false); err != nil {
		writeError(w, r, err)
		return
	}

	withdrawal, err := h.withdrawalService.HandlePayoutWebhook(r.Context(), event)
	if err != nil {
		writeError(w, r, err)
		return
	}

	logger.Log.Info("payout webhook applied",
		zap.String("event_id", event.EventID),
		zap.String("event", event.Event),
		zap.String("withdrawal_id", withdrawal.ID),
		zap.String("status", string(withdrawal.Status)),
	)
	writeJSON(w, http.StatusOK, withdrawal)
}
