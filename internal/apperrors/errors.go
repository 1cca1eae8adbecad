package apperrors

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation             Kind = "validation"
	KindInsufficientFunds      Kind = "insufficient_funds"
	KindBusinessLogic          Kind = "business_logic"
	KindInternal               Kind = "internal"
	KindInvalidStateTransition Kind = "invalid_state_transition"
	KindNotFound               Kind = "not_found"
	KindConflict               Kind = "conflict"
	KindUnauthorized           Kind = "unauthorized"
)

const (
	CodeInsufficientFunds       = "INSUFFICIENT_FUNDS"
	CodeInsufficientHeldFunds   = "INSUFFICIENT_HELD_FUNDS"
	CodeInvalidStateTransition  = "INVALID_STATE_TRANSITION"
	CodeWithdrawalNotFound      = "WITHDRAWAL_NOT_FOUND"
	CodeConcurrentModification  = "CONCURRENT_MODIFICATION"
	CodeInvalidWebhookSignature = "INVALID_WEBHOOK_SIGNATURE"
	CodeWebhookSecretMissing    = "WEBHOOK_SECRET_MISSING"
	CodeWithdrawalProcessing    = "WITHDRAWAL_PROCESSING_FAILED"
	CodeWithdrawalStatusUpdate  = "WITHDRAWAL_STATUS_UPDATE_FAILED"
)

// Error is the single error type returned by the ledger and withdrawal core.
// Kind is the discriminant; Code and CorrelationID are optional.
type Error struct {
	Kind          Kind
	Message       string
	Code          string
	CorrelationID string
	Err           error
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Code != "" {
		msg = fmt.Sprintf("%s [%s]", msg, e.Code)
	}
	if e.CorrelationID != "" {
		msg = fmt.Sprintf("%s (correlation_id=%s)", msg, e.CorrelationID)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches sentinels by kind, and by code when the sentinel has one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	if t.Kind != e.Kind {
		return false
	}
	return t.Code == "" || t.Code == e.Code
}

var (
	ErrValidation             = &Error{Kind: KindValidation}
	ErrInsufficientFunds      = &Error{Kind: KindInsufficientFunds}
	ErrBusinessLogic          = &Error{Kind: KindBusinessLogic}
	ErrInsufficientHeldFunds  = &Error{Kind: KindBusinessLogic, Code: CodeInsufficientHeldFunds}
	ErrInternalServer         = &Error{Kind: KindInternal}
	ErrInvalidStateTransition = &Error{Kind: KindInvalidStateTransition}
	ErrNotFound               = &Error{Kind: KindNotFound}
	ErrConflict               = &Error{Kind: KindConflict}
	ErrInvalidSignature       = &Error{Kind: KindUnauthorized, Code: CodeInvalidWebhookSignature}
	ErrWebhookSecretMissing   = &Error{Kind: KindUnauthorized, Code: CodeWebhookSecretMissing}
)

func Validation(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func InsufficientFunds(message, correlationID string) *Error {
	return &Error{
		Kind:          KindInsufficientFunds,
		Message:       message,
		Code:          CodeInsufficientFunds,
		CorrelationID: correlationID,
	}
}

func BusinessLogic(message, code string) *Error {
	return &Error{Kind: KindBusinessLogic, Message: message, Code: code}
}

func Internal(message string, err error) *Error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

func InvalidStateTransition(from, to string) *Error {
	return &Error{
		Kind:    KindInvalidStateTransition,
		Message: fmt.Sprintf("invalid state transition from '%s' to '%s'", from, to),
		Code:    CodeInvalidStateTransition,
	}
}

func NotFound(message, code string) *Error {
	return &Error{Kind: KindNotFound, Message: message, Code: code}
}

func Unauthorized(message, code string) *Error {
	return &Error{Kind: KindUnauthorized, Message: message, Code: code}
}

func Conflict(message, code string) *Error {
	return &Error{Kind: KindConflict, Message: message, Code: code}
}

// KindOf returns the kind of the first *Error in err's chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

// CorrelationIDOf returns the correlation id carried by err, if any.
func CorrelationIDOf(err error) string {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.CorrelationID
	}
	return ""
}
