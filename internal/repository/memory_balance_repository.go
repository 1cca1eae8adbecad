package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/a2sh3r/fundsledger/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type balanceKey struct {
	userID   string
	currency models.Currency
}

type balanceSlot struct {
	mu     sync.Mutex
	record *models.BalanceRecord
}

// memoryBalanceRepo keeps one mutex per (user, currency); there is no lock
// shared between keys other than the short slot lookup.
type memoryBalanceRepo struct {
	slots sync.Map

	txMu sync.Mutex
	txs  []models.BalanceTransaction

	now func() time.Time
}

func NewMemoryBalanceRepository() BalanceRepository {
	return &memoryBalanceRepo{now: func() time.Time { return time.Now().UTC() }}
}

func (r *memoryBalanceRepo) slot(userID string, currency models.Currency) *balanceSlot {
	v, _ := r.slots.LoadOrStore(balanceKey{userID: userID, currency: currency}, &balanceSlot{})
	return v.(*balanceSlot)
}

func (r *memoryBalanceRepo) Hold(ctx context.Context, m BalanceMutation) (*models.BalanceRecord, error) {
	return r.mutate(ctx, m, models.TransactionHold, func(rec *models.BalanceRecord) error {
		if rec.Available.LessThan(m.Amount) {
			return ErrInsufficientAvailable
		}
		rec.Available = rec.Available.Sub(m.Amount)
		rec.Held = rec.Held.Add(m.Amount)
		return nil
	})
}

func (r *memoryBalanceRepo) Release(ctx context.Context, m BalanceMutation) (*models.BalanceRecord, error) {
	return r.mutate(ctx, m, models.TransactionRelease, func(rec *models.BalanceRecord) error {
		if rec.Held.LessThan(m.Amount) {
			return ErrInsufficientHeld
		}
		rec.Held = rec.Held.Sub(m.Amount)
		rec.Available = rec.Available.Add(m.Amount)
		return nil
	})
}

func (r *memoryBalanceRepo) Capture(ctx context.Context, m BalanceMutation) (*models.BalanceRecord, error) {
	return r.mutate(ctx, m, models.TransactionCapture, func(rec *models.BalanceRecord) error {
		if rec.Held.LessThan(m.Amount) {
			return ErrInsufficientHeld
		}
		rec.Held = rec.Held.Sub(m.Amount)
		return nil
	})
}

func (r *memoryBalanceRepo) Credit(ctx context.Context, m BalanceMutation) (*models.BalanceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.slot(m.UserID, m.Currency)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.record == nil {
		s.record = &models.BalanceRecord{
			UserID:    m.UserID,
			Currency:  m.Currency,
			Available: decimal.Zero,
			Held:      decimal.Zero,
		}
	}
	next := *s.record
	next.Available = next.Available.Add(m.Amount)
	next.UpdatedAt = r.now()
	s.record = &next
	r.appendTx(m, models.TransactionCredit, next)

	out := next
	return &out, nil
}

func (r *memoryBalanceRepo) Debit(ctx context.Context, m BalanceMutation) (*models.BalanceRecord, error) {
	return r.mutate(ctx, m, models.TransactionDebit, func(rec *models.BalanceRecord) error {
		if rec.Available.LessThan(m.Amount) {
			return ErrInsufficientAvailable
		}
		rec.Available = rec.Available.Sub(m.Amount)
		return nil
	})
}

// Settle locks the two slots in user id order, so settlements running in
// opposite directions cannot deadlock.
func (r *memoryBalanceRepo) Settle(ctx context.Context, m SettleMutation) (*models.Settlement, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if m.FromUserID == m.ToUserID {
		return nil, ErrSameAccount
	}
	from := r.slot(m.FromUserID, m.Currency)
	to := r.slot(m.ToUserID, m.Currency)

	first, second := from, to
	if m.ToUserID < m.FromUserID {
		first, second = to, from
	}
	first.mu.Lock()
	defer first.mu.Unlock()
	second.mu.Lock()
	defer second.mu.Unlock()

	if from.record == nil {
		return nil, ErrBalanceNotFound
	}
	if from.record.Held.LessThan(m.Amount) {
		return nil, ErrInsufficientHeld
	}

	now := r.now()
	payer := *from.record
	payer.Held = payer.Held.Sub(m.Amount)
	payer.UpdatedAt = now

	payee := models.BalanceRecord{UserID: m.ToUserID, Currency: m.Currency, Available: decimal.Zero, Held: decimal.Zero}
	if to.record != nil {
		payee = *to.record
	}
	payee.Available = payee.Available.Add(m.Amount)
	payee.UpdatedAt = now

	from.record = &payer
	to.record = &payee
	r.appendTx(m.side(m.FromUserID), models.TransactionSettle, payer)
	r.appendTx(m.side(m.ToUserID), models.TransactionSettle, payee)

	return &models.Settlement{FromBalance: payer, ToBalance: payee}, nil
}

func (r *memoryBalanceRepo) mutate(ctx context.Context, m BalanceMutation, txType models.TransactionType, apply func(*models.BalanceRecord) error) (*models.BalanceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s := r.slot(m.UserID, m.Currency)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.record == nil {
		return nil, ErrBalanceNotFound
	}
	next := *s.record
	if err := apply(&next); err != nil {
		return nil, err
	}
	next.UpdatedAt = r.now()
	s.record = &next
	r.appendTx(m, txType, next)

	out := next
	return &out, nil
}

func (r *memoryBalanceRepo) appendTx(m BalanceMutation, txType models.TransactionType, after models.BalanceRecord) {
	r.txMu.Lock()
	defer r.txMu.Unlock()
	r.txs = append(r.txs, models.BalanceTransaction{
		ID:             uuid.NewString(),
		UserID:         m.UserID,
		Currency:       m.Currency,
		Type:           txType,
		Amount:         m.Amount,
		RefID:          m.Reference.ID,
		RefType:        m.Reference.Type,
		Description:    m.Description,
		AvailableAfter: after.Available,
		HeldAfter:      after.Held,
		CreatedAt:      after.UpdatedAt,
	})
}

func (r *memoryBalanceRepo) GetBalances(ctx context.Context, userID string, currency string) ([]models.BalanceRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []models.BalanceRecord
	r.slots.Range(func(k, v any) bool {
		key := k.(balanceKey)
		if key.userID != userID || (currency != "" && string(key.currency) != currency) {
			return true
		}
		s := v.(*balanceSlot)
		s.mu.Lock()
		if s.record != nil {
			out = append(out, *s.record)
		}
		s.mu.Unlock()
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

func (r *memoryBalanceRepo) GetTransactions(ctx context.Context, userID string, filters models.TransactionFilters) ([]models.BalanceTransaction, int, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}
	r.txMu.Lock()
	var matched []models.BalanceTransaction
	for _, tx := range r.txs {
		if tx.UserID != userID {
			continue
		}
		if filters.Currency != "" && string(tx.Currency) != filters.Currency {
			continue
		}
		if filters.Type != "" && string(tx.Type) != filters.Type {
			continue
		}
		if filters.From != nil && tx.CreatedAt.Before(*filters.From) {
			continue
		}
		if filters.To != nil && !tx.CreatedAt.Before(*filters.To) {
			continue
		}
		matched = append(matched, tx)
	}
	r.txMu.Unlock()

	// newest first; appended in time order
	for i, j := 0, len(matched)-1; i < j; i, j = i+1, j-1 {
		matched[i], matched[j] = matched[j], matched[i]
	}

	total := len(matched)
	start := (filters.Page - 1) * filters.Limit
	if start >= total || filters.Limit <= 0 {
		return []models.BalanceTransaction{}, total, nil
	}
	end := start + filters.Limit
	if end > total {
		end = total
	}
	return matched[start:end], total, nil
}
