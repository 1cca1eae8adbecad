package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestError_Is(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		target error
		want   bool
	}{
		{"validation matches kind", Validation("amount must be positive"), ErrValidation, true},
		{"insufficient funds matches kind", InsufficientFunds("too low", "c-1"), ErrInsufficientFunds, true},
		{"held funds matches code", BusinessLogic("held too low", CodeInsufficientHeldFunds), ErrInsufficientHeldFunds, true},
		{"business logic matches generic sentinel", BusinessLogic("held too low", CodeInsufficientHeldFunds), ErrBusinessLogic, true},
		{"other code does not match held sentinel", BusinessLogic("nope", "OTHER"), ErrInsufficientHeldFunds, false},
		{"insufficient funds is not held funds", InsufficientFunds("too low", "c-1"), ErrInsufficientHeldFunds, false},
		{"internal is not insufficient funds", Internal("boom", nil), ErrInsufficientFunds, false},
		{"wrapped error still matches", fmt.Errorf("outer: %w", InvalidStateTransition("CREATED", "PROCESSING")), ErrInvalidStateTransition, true},
		{"plain error never matches", errors.New("plain"), ErrInternalServer, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, errors.Is(tt.err, tt.target))
		})
	}
}

func TestError_Message(t *testing.T) {
	err := InsufficientFunds("insufficient available funds", "abc")
	assert.Contains(t, err.Error(), "insufficient available funds")
	assert.Contains(t, err.Error(), "abc")
	assert.Contains(t, err.Error(), CodeInsufficientFunds)

	transition := InvalidStateTransition("CREATED", "PROCESSING")
	assert.Contains(t, transition.Error(), "CREATED")
	assert.Contains(t, transition.Error(), "PROCESSING")
}

func TestInternal_Unwrap(t *testing.T) {
	cause := errors.New("connection reset")
	err := Internal("balance hold failed", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, KindInternal, KindOf(err))
}

func TestKindOf(t *testing.T) {
	assert.Equal(t, KindValidation, KindOf(Validation("x")))
	assert.Equal(t, KindInternal, KindOf(errors.New("plain")))
	assert.Equal(t, "c-1", CorrelationIDOf(fmt.Errorf("wrap: %w", InsufficientFunds("x", "c-1"))))
	assert.Equal(t, "", CorrelationIDOf(errors.New("plain")))
}
