package models

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

type WithdrawalStatus string

const (
	StatusCreated             WithdrawalStatus = "CREATED"
	StatusPendingVerification WithdrawalStatus = "PENDING_VERIFICATION"
	StatusProcessing          WithdrawalStatus = "PROCESSING"
	StatusRejected            WithdrawalStatus = "REJECTED"
	StatusCanceled            WithdrawalStatus = "CANCELED"
	StatusCommitted           WithdrawalStatus = "COMMITTED"
	StatusSucceeded           WithdrawalStatus = "SUCCEEDED"
	StatusFailed              WithdrawalStatus = "FAILED"
	StatusRefunded            WithdrawalStatus = "REFUNDED"
)

// Withdrawal is treated as a value: state changes produce a new copy.
// Metadata is caller-defined and carried through untouched.
type Withdrawal struct {
	ID               string           `json:"id" db:"id"`
	Status           WithdrawalStatus `json:"status" db:"status"`
	Amount           decimal.Decimal  `json:"amount" db:"amount"`
	UserID           string           `json:"user_id" db:"user_id"`
	Currency         Currency         `json:"currency" db:"currency"`
	DestinationEmail string           `json:"destination_email" db:"destination_email"`
	ExternalPayoutID string           `json:"external_payout_id,omitempty" db:"external_payout_id"`
	FailureReason    string           `json:"failure_reason,omitempty" db:"failure_reason"`
	Metadata         json.RawMessage  `json:"metadata,omitempty" db:"metadata"`
	Version          int64            `json:"version" db:"version"`
	CreatedAt        time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at" db:"updated_at"`
}

type WithdrawalAuditLog struct {
	ID            string           `json:"id" db:"id"`
	WithdrawalID  string           `json:"withdrawal_id" db:"withdrawal_id"`
	FromStatus    WithdrawalStatus `json:"from_status" db:"from_status"`
	ToStatus      WithdrawalStatus `json:"to_status" db:"to_status"`
	CorrelationID string           `json:"correlation_id" db:"correlation_id"`
	EventID       string           `json:"event_id,omitempty" db:"event_id"`
	Reason        string           `json:"reason,omitempty" db:"reason"`
	CreatedAt     time.Time        `json:"created_at" db:"created_at"`
}
