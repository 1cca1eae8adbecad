package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/a2sh3r/fundsledger/internal/models"
)

type memoryWithdrawalRepo struct {
	mu          sync.RWMutex
	withdrawals map[string]models.Withdrawal
	auditLogs   []models.WithdrawalAuditLog
}

func NewMemoryWithdrawalRepository() WithdrawalRepository {
	return &memoryWithdrawalRepo{withdrawals: make(map[string]models.Withdrawal)}
}

func (r *memoryWithdrawalRepo) Create(ctx context.Context, w models.Withdrawal) (*models.Withdrawal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.withdrawals[w.ID]; ok {
		return nil, ErrVersionConflict
	}
	now := time.Now().UTC()
	w.Version = 1
	w.CreatedAt = now
	w.UpdatedAt = now
	r.withdrawals[w.ID] = w
	return &w, nil
}

func (r *memoryWithdrawalRepo) GetByID(ctx context.Context, id string) (*models.Withdrawal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	w, ok := r.withdrawals[id]
	if !ok {
		return nil, ErrWithdrawalNotFound
	}
	return &w, nil
}

func (r *memoryWithdrawalRepo) ListByUser(ctx context.Context, userID string) ([]models.Withdrawal, error) {
	out := r.filter(func(w models.Withdrawal) bool { return w.UserID == userID })
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, ctx.Err()
}

func (r *memoryWithdrawalRepo) ListByStatus(ctx context.Context, status models.WithdrawalStatus, limit int) ([]models.Withdrawal, error) {
	out := r.filter(func(w models.Withdrawal) bool { return w.Status == status })
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, ctx.Err()
}

func (r *memoryWithdrawalRepo) filter(keep func(models.Withdrawal) bool) []models.Withdrawal {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.Withdrawal
	for _, w := range r.withdrawals {
		if keep(w) {
			out = append(out, w)
		}
	}
	return out
}

func (r *memoryWithdrawalRepo) UpdateStatus(ctx context.Context, w models.Withdrawal, expectedVersion int64) (*models.Withdrawal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	stored, ok := r.withdrawals[w.ID]
	if !ok {
		return nil, ErrWithdrawalNotFound
	}
	if stored.Version != expectedVersion {
		return nil, ErrVersionConflict
	}
	stored.Status = w.Status
	stored.ExternalPayoutID = w.ExternalPayoutID
	stored.FailureReason = w.FailureReason
	stored.Version++
	stored.UpdatedAt = time.Now().UTC()
	r.withdrawals[w.ID] = stored
	return &stored, nil
}

func (r *memoryWithdrawalRepo) InsertAuditLog(ctx context.Context, entry models.WithdrawalAuditLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	r.mu.Lock()
	r.auditLogs = append(r.auditLogs, entry)
	r.mu.Unlock()
	return nil
}

func (r *memoryWithdrawalRepo) HasProcessedEvent(ctx context.Context, withdrawalID, eventID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, entry := range r.auditLogs {
		if entry.WithdrawalID == withdrawalID && entry.EventID == eventID {
			return true, nil
		}
	}
	return false, nil
}
