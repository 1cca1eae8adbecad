// Package statemachine holds the withdrawal lifecycle rules.
//
// The transition table is static and every function is pure, so the package
// needs no locking. Transition never mutates its input; callers that persist
// withdrawals must still serialise writes per withdrawal id.
package statemachine

import (
	"github.com/a2sh3r/fundsledger/internal/apperrors"
	"github.com/a2sh3r/fundsledger/internal/models"
)

var allStates = []models.WithdrawalStatus{
	models.StatusCreated,
	models.StatusPendingVerification,
	models.StatusProcessing,
	models.StatusRejected,
	models.StatusCanceled,
	models.StatusCommitted,
	models.StatusSucceeded,
	models.StatusFailed,
	models.StatusRefunded,
}

var validTransitions = map[models.WithdrawalStatus][]models.WithdrawalStatus{
	models.StatusCreated: {
		models.StatusPendingVerification,
		models.StatusCanceled,
	},
	models.StatusPendingVerification: {
		models.StatusProcessing,
		models.StatusRejected,
		models.StatusCanceled,
	},
	models.StatusProcessing: {
		models.StatusCommitted,
	},
	models.StatusCommitted: {
		models.StatusSucceeded,
		models.StatusFailed,
	},
	models.StatusFailed: {
		models.StatusRefunded,
	},
	models.StatusRejected:  {},
	models.StatusCanceled:  {},
	models.StatusSucceeded: {},
	models.StatusRefunded:  {},
}

func IsValidState(state models.WithdrawalStatus) bool {
	_, ok := validTransitions[state]
	return ok
}

// CanTransition reports whether the table allows from -> to.
// Self-transitions are never listed, so they are always refused.
func CanTransition(from, to models.WithdrawalStatus) bool {
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Transition returns a copy of w with Status set to to.
func Transition(w models.Withdrawal, to models.WithdrawalStatus) (models.Withdrawal, error) {
	if !CanTransition(w.Status, to) {
		return models.Withdrawal{}, apperrors.InvalidStateTransition(string(w.Status), string(to))
	}
	next := w
	next.Status = to
	return next, nil
}

func IsTerminalState(state models.WithdrawalStatus) bool {
	return len(validTransitions[state]) == 0
}

func IsInitialState(state models.WithdrawalStatus) bool {
	return state == models.StatusCreated
}

func AllowedTransitions(state models.WithdrawalStatus) []models.WithdrawalStatus {
	allowed := validTransitions[state]
	out := make([]models.WithdrawalStatus, len(allowed))
	copy(out, allowed)
	return out
}

func AllStates() []models.WithdrawalStatus {
	out := make([]models.WithdrawalStatus, len(allStates))
	copy(out, allStates)
	return out
}

func TerminalStates() []models.WithdrawalStatus {
	var out []models.WithdrawalStatus
	for _, state := range allStates {
		if IsTerminalState(state) {
			out = append(out, state)
		}
	}
	return out
}

func CanCancel(state models.WithdrawalStatus) bool {
	return CanTransition(state, models.StatusCanceled)
}

func CanRefund(state models.WithdrawalStatus) bool {
	return CanTransition(state, models.StatusRefunded)
}
