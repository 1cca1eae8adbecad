package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/a2sh3r/fundsledger/internal/logger"
	"github.com/a2sh3r/fundsledger/internal/models"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrWithdrawalNotFound = errors.New("withdrawal not found")
	ErrVersionConflict    = errors.New("withdrawal was modified concurrently")
)

// WithdrawalRepository persists withdrawals. UpdateStatus only succeeds when
// the stored version equals expectedVersion, and bumps it by one.
type WithdrawalRepository interface {
	Create(ctx context.Context, w models.Withdrawal) (*models.Withdrawal, error)
	GetByID(ctx context.Context, id string) (*models.Withdrawal, error)
	ListByUser(ctx context.Context, userID string) ([]models.Withdrawal, error)
	ListByStatus(ctx context.Context, status models.WithdrawalStatus, limit int) ([]models.Withdrawal, error)
	UpdateStatus(ctx context.Context, w models.Withdrawal, expectedVersion int64) (*models.Withdrawal, error)
	InsertAuditLog(ctx context.Context, entry models.WithdrawalAuditLog) error
	HasProcessedEvent(ctx context.Context, withdrawalID, eventID string) (bool, error)
}

type withdrawalRepo struct {
	db *sql.DB
}

func NewWithdrawalRepository(db *sql.DB) WithdrawalRepository {
	return &withdrawalRepo{db: db}
}

const withdrawalColumns = `id, status, amount::text, user_id, currency, destination_email,
	external_payout_id, failure_reason, metadata, version, created_at, updated_at`

func (r *withdrawalRepo) Create(ctx context.Context, w models.Withdrawal) (*models.Withdrawal, error) {
	query := `INSERT INTO withdrawals (id, status, amount, user_id, currency, destination_email,
				external_payout_id, failure_reason, metadata, version, created_at, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, 1, now(), now())
			  RETURNING ` + withdrawalColumns

	row := r.db.QueryRowContext(ctx, query,
		w.ID, string(w.Status), w.Amount.String(), w.UserID, string(w.Currency), w.DestinationEmail,
		w.ExternalPayoutID, w.FailureReason, nullableJSON(w.Metadata),
	)
	created, err := scanWithdrawal(row)
	if err != nil {
		logger.Log.Error("failed to insert withdrawal", zap.String("withdrawal_id", w.ID), zap.Error(err))
		return nil, err
	}
	return created, nil
}

func (r *withdrawalRepo) GetByID(ctx context.Context, id string) (*models.Withdrawal, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals WHERE id = $1`, id)
	w, err := scanWithdrawal(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrWithdrawalNotFound
	}
	return w, err
}

func (r *withdrawalRepo) ListByUser(ctx context.Context, userID string) ([]models.Withdrawal, error) {
	return r.list(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals
			  WHERE user_id = $1 ORDER BY created_at DESC`, userID)
}

func (r *withdrawalRepo) ListByStatus(ctx context.Context, status models.WithdrawalStatus, limit int) ([]models.Withdrawal, error) {
	return r.list(ctx, `SELECT `+withdrawalColumns+` FROM withdrawals
			  WHERE status = $1 ORDER BY updated_at LIMIT $2`, string(status), limit)
}

func (r *withdrawalRepo) list(ctx context.Context, query string, args ...any) ([]models.Withdrawal, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.Log.Error("failed to initiate query", zap.Error(err))
		return nil, err
	}
	defer func(rows *sql.Rows) {
		err := rows.Close()
		if err != nil {
			logger.Log.Error("failed to close rows", zap.Error(err))
		}
	}(rows)

	var withdrawals []models.Withdrawal
	for rows.Next() {
		w, err := scanWithdrawal(rows)
		if err != nil {
			logger.Log.Error("failed to scan withdrawal row", zap.Error(err))
			return nil, err
		}
		withdrawals = append(withdrawals, *w)
	}
	return withdrawals, rows.Err()
}

func (r *withdrawalRepo) UpdateStatus(ctx context.Context, w models.Withdrawal, expectedVersion int64) (*models.Withdrawal, error) {
	query := `UPDATE withdrawals
			  SET status = $1, external_payout_id = $2, failure_reason = $3,
			      version = version + 1, updated_at = now()
			  WHERE id = $4 AND version = $5
			  RETURNING ` + withdrawalColumns

	row := r.db.QueryRowContext(ctx, query,
		string(w.Status), w.ExternalPayoutID, w.FailureReason, w.ID, expectedVersion)
	updated, err := scanWithdrawal(row)
	if err == nil {
		return updated, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		logger.Log.Error("failed to update withdrawal", zap.String("withdrawal_id", w.ID), zap.Error(err))
		return nil, err
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM withdrawals WHERE id = $1)`, w.ID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrWithdrawalNotFound
	}
	return nil, ErrVersionConflict
}

func (r *withdrawalRepo) InsertAuditLog(ctx context.Context, entry models.WithdrawalAuditLog) error {
	query := `INSERT INTO withdrawal_audit_logs
				(id, withdrawal_id, from_status, to_status, correlation_id, event_id, reason, created_at)
			  VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7, $8)`
	createdAt := entry.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, query,
		entry.ID, entry.WithdrawalID, string(entry.FromStatus), string(entry.ToStatus),
		entry.CorrelationID, entry.EventID, entry.Reason, createdAt)
	return err
}

func (r *withdrawalRepo) HasProcessedEvent(ctx context.Context, withdrawalID, eventID string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM withdrawal_audit_logs WHERE withdrawal_id = $1 AND event_id = $2)`,
		withdrawalID, eventID,
	).Scan(&exists)
	return exists, err
}

func scanWithdrawal(row interface{ Scan(dest ...any) error }) (*models.Withdrawal, error) {
	var (
		w                 models.Withdrawal
		status, currency  string
		amount            string
		payoutID, failure sql.NullString
		metadata          []byte
	)
	if err := row.Scan(&w.ID, &status, &amount, &w.UserID, &currency, &w.DestinationEmail,
		&payoutID, &failure, &metadata, &w.Version, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	w.Status = models.WithdrawalStatus(status)
	w.Currency = models.Currency(currency)
	w.ExternalPayoutID = payoutID.String
	w.FailureReason = failure.String
	if len(metadata) > 0 {
		w.Metadata = json.RawMessage(metadata)
	}

	var err error
	if w.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("parse withdrawal amount: %w", err)
	}
	return &w, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
