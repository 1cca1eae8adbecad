package events

import (
	"time"

	"github.com/a2sh3r/fundsledger/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventTypeWithdrawalStatusChanged = "withdrawal.status_changed"
	eventVersion                     = 1
)

type Envelope struct {
	EventID       string    `json:"event_id"`
	EventType     string    `json:"event_type"`
	EventVersion  int       `json:"event_version"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// WithdrawalStatusChanged is published after every persisted transition.
type WithdrawalStatusChanged struct {
	Envelope
	WithdrawalID string                  `json:"withdrawal_id"`
	UserID       string                  `json:"user_id"`
	From         models.WithdrawalStatus `json:"from"`
	To           models.WithdrawalStatus `json:"to"`
	Amount       decimal.Decimal         `json:"amount"`
	Currency     models.Currency         `json:"currency"`
	Reason       string                  `json:"reason,omitempty"`
}

func NewWithdrawalStatusChanged(w models.Withdrawal, from models.WithdrawalStatus, correlationID, reason string) WithdrawalStatusChanged {
	return WithdrawalStatusChanged{
		Envelope: Envelope{
			EventID:       uuid.NewString(),
			EventType:     EventTypeWithdrawalStatusChanged,
			EventVersion:  eventVersion,
			Timestamp:     time.Now().UTC(),
			CorrelationID: correlationID,
		},
		WithdrawalID: w.ID,
		UserID:       w.UserID,
		From:         from,
		To:           w.Status,
		Amount:       w.Amount,
		Currency:     w.Currency,
		Reason:       reason,
	}
}
