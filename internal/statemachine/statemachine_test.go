package statemachine

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/a2sh3r/fundsledger/internal/apperrors"
	"github.com/a2sh3r/fundsledger/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var table = map[models.WithdrawalStatus][]models.WithdrawalStatus{
	models.StatusCreated:             {models.StatusPendingVerification, models.StatusCanceled},
	models.StatusPendingVerification: {models.StatusProcessing, models.StatusRejected, models.StatusCanceled},
	models.StatusProcessing:          {models.StatusCommitted},
	models.StatusCommitted:           {models.StatusSucceeded, models.StatusFailed},
	models.StatusFailed:              {models.StatusRefunded},
}

func newWithdrawal(status models.WithdrawalStatus) models.Withdrawal {
	return models.Withdrawal{
		ID:               "6f1c1a44-3a1e-4c36-9d0c-8c7b5b2a9e11",
		Status:           status,
		Amount:           decimal.RequireFromString("42.5"),
		UserID:           "0b8f6f2e-2d5c-4b8e-9a3b-1f1d2f3e4a5b",
		Currency:         models.CurrencyUSD,
		DestinationEmail: "payee@example.com",
		Metadata:         json.RawMessage(`{"source":"web","tags":["a","b"]}`),
		Version:          3,
		CreatedAt:        time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestCanTransition_Table(t *testing.T) {
	for _, from := range AllStates() {
		for _, to := range AllStates() {
			want := false
			for _, allowed := range table[from] {
				if allowed == to {
					want = true
				}
			}
			assert.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestCanTransition_NoSelfTransitions(t *testing.T) {
	for _, s := range AllStates() {
		assert.False(t, CanTransition(s, s), "self transition allowed for %s", s)
	}
}

func TestCanTransition_TerminalImmutability(t *testing.T) {
	for _, terminal := range TerminalStates() {
		for _, s := range AllStates() {
			assert.False(t, CanTransition(terminal, s), "%s -> %s", terminal, s)
		}
	}
}

func TestCanTransition_UnknownState(t *testing.T) {
	assert.False(t, CanTransition("BOGUS", models.StatusCreated))
	assert.False(t, CanTransition(models.StatusCreated, "BOGUS"))
	assert.False(t, IsValidState("BOGUS"))
}

func TestTransition_DoesNotMutateInput(t *testing.T) {
	w := newWithdrawal(models.StatusCreated)
	before := newWithdrawal(models.StatusCreated)

	got, err := Transition(w, models.StatusPendingVerification)
	require.NoError(t, err)

	assert.Equal(t, models.StatusPendingVerification, got.Status)
	assert.Equal(t, before, w)
	assert.NotSame(t, &w, &got)

	got.Status = before.Status
	assert.Equal(t, before, got, "only status may differ")
}

func TestTransition_Invalid(t *testing.T) {
	w := newWithdrawal(models.StatusCreated)

	_, err := Transition(w, models.StatusProcessing)
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrInvalidStateTransition)
	assert.Contains(t, err.Error(), "CREATED")
	assert.Contains(t, err.Error(), "PROCESSING")
	assert.Equal(t, models.StatusCreated, w.Status)
}

func TestTransition_HappyPath(t *testing.T) {
	w := newWithdrawal(models.StatusCreated)
	path := []models.WithdrawalStatus{
		models.StatusPendingVerification,
		models.StatusProcessing,
		models.StatusCommitted,
		models.StatusSucceeded,
	}

	var err error
	for _, next := range path {
		w, err = Transition(w, next)
		require.NoError(t, err)
		assert.Equal(t, next, w.Status)
	}

	_, err = Transition(w, models.StatusCommitted)
	assert.ErrorIs(t, err, apperrors.ErrInvalidStateTransition)
}

func TestTransition_FailurePath(t *testing.T) {
	w := newWithdrawal(models.StatusCommitted)

	failed, err := Transition(w, models.StatusFailed)
	require.NoError(t, err)

	refunded, err := Transition(failed, models.StatusRefunded)
	require.NoError(t, err)
	assert.Equal(t, models.StatusRefunded, refunded.Status)

	_, err = Transition(failed, models.StatusSucceeded)
	assert.ErrorIs(t, err, apperrors.ErrInvalidStateTransition)
}

func TestQueries(t *testing.T) {
	assert.True(t, IsInitialState(models.StatusCreated))
	assert.False(t, IsInitialState(models.StatusPendingVerification))

	assert.ElementsMatch(t, []models.WithdrawalStatus{
		models.StatusRejected, models.StatusCanceled, models.StatusSucceeded, models.StatusRefunded,
	}, TerminalStates())

	assert.Len(t, AllStates(), 9)
	assert.ElementsMatch(t, table[models.StatusPendingVerification], AllowedTransitions(models.StatusPendingVerification))
	assert.Empty(t, AllowedTransitions(models.StatusSucceeded))
	assert.False(t, IsTerminalState(models.StatusFailed))

	assert.True(t, CanCancel(models.StatusCreated))
	assert.True(t, CanCancel(models.StatusPendingVerification))
	assert.False(t, CanCancel(models.StatusProcessing))
	assert.True(t, CanRefund(models.StatusFailed))
	assert.False(t, CanRefund(models.StatusCommitted))
}

func TestAllowedTransitions_ReturnsCopy(t *testing.T) {
	allowed := AllowedTransitions(models.StatusCreated)
	allowed[0] = models.StatusSucceeded
	assert.False(t, CanTransition(models.StatusCreated, models.StatusSucceeded))

	states := AllStates()
	states[0] = models.StatusRefunded
	assert.Equal(t, models.StatusCreated, AllStates()[0])
}
