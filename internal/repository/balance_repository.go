package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/a2sh3r/fundsledger/internal/logger"
	"github.com/a2sh3r/fundsledger/internal/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var (
	ErrBalanceNotFound       = errors.New("no balance record")
	ErrInsufficientAvailable = errors.New("insufficient available balance")
	ErrInsufficientHeld      = errors.New("insufficient held balance")
	ErrSameAccount           = errors.New("cannot settle balance to the same user")
)

// BalanceMutation is the input of every balance-changing call.
type BalanceMutation struct {
	UserID      string
	Currency    models.Currency
	Amount      decimal.Decimal
	Reference   models.FundsReference
	Description string
}

// SettleMutation moves Amount out of FromUserID's held balance into
// ToUserID's available balance.
type SettleMutation struct {
	FromUserID  string
	ToUserID    string
	Currency    models.Currency
	Amount      decimal.Decimal
	Reference   models.FundsReference
	Description string
}

func (m SettleMutation) side(userID string) BalanceMutation {
	return BalanceMutation{
		UserID:      userID,
		Currency:    m.Currency,
		Amount:      m.Amount,
		Reference:   m.Reference,
		Description: m.Description,
	}
}

// BalanceRepository performs each mutation as one atomic compare-and-swap and
// writes the audit transaction in the same step. A nil record with a nil
// error is never a valid result.
type BalanceRepository interface {
	Hold(ctx context.Context, m BalanceMutation) (*models.BalanceRecord, error)
	Release(ctx context.Context, m BalanceMutation) (*models.BalanceRecord, error)
	Capture(ctx context.Context, m BalanceMutation) (*models.BalanceRecord, error)
	Credit(ctx context.Context, m BalanceMutation) (*models.BalanceRecord, error)
	Debit(ctx context.Context, m BalanceMutation) (*models.BalanceRecord, error)
	Settle(ctx context.Context, m SettleMutation) (*models.Settlement, error)
	GetBalances(ctx context.Context, userID string, currency string) ([]models.BalanceRecord, error)
	GetTransactions(ctx context.Context, userID string, filters models.TransactionFilters) ([]models.BalanceTransaction, int, error)
}

type balanceRepo struct {
	db *sql.DB
}

// rowQuerier is satisfied by both *sql.DB and *sql.Tx.
type rowQuerier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func NewBalanceRepository(db *sql.DB) BalanceRepository {
	return &balanceRepo{db: db}
}

// conditionalMutation updates the balance row only when guard holds, and logs
// the transaction from the updated row, in a single statement.
const conditionalMutation = `
	WITH updated AS (
		UPDATE balances
		SET %s, updated_at = now()
		WHERE user_id = $1 AND currency = $2 AND %s
		RETURNING user_id, currency, available, held, updated_at
	), entry AS (
		INSERT INTO balance_transactions
			(id, user_id, currency, type, amount, ref_id, ref_type, description, available_after, held_after, created_at)
		SELECT $4::uuid, user_id, currency, $5::text, $3, $6::text, $7::text, $8::text, available, held, updated_at FROM updated
	)
	SELECT user_id, currency, available::text, held::text, updated_at FROM updated
`

var (
	holdQuery = fmt.Sprintf(conditionalMutation,
		"available = available - $3, held = held + $3", "available >= $3")
	releaseQuery = fmt.Sprintf(conditionalMutation,
		"held = held - $3, available = available + $3", "held >= $3")
	captureQuery = fmt.Sprintf(conditionalMutation,
		"held = held - $3", "held >= $3")
	debitQuery = fmt.Sprintf(conditionalMutation,
		"available = available - $3", "available >= $3")
)

const creditQuery = `
	WITH updated AS (
		INSERT INTO balances (user_id, currency, available, held, updated_at)
		VALUES ($1, $2, $3, 0, now())
		ON CONFLICT (user_id, currency)
		DO UPDATE SET available = balances.available + EXCLUDED.available, updated_at = now()
		RETURNING user_id, currency, available, held, updated_at
	), entry AS (
		INSERT INTO balance_transactions
			(id, user_id, currency, type, amount, ref_id, ref_type, description, available_after, held_after, created_at)
		SELECT $4::uuid, user_id, currency, $5::text, $3, $6::text, $7::text, $8::text, available, held, updated_at FROM updated
	)
	SELECT user_id, currency, available::text, held::text, updated_at FROM updated
`

func (r *balanceRepo) Hold(ctx context.Context, m BalanceMutation) (*models.BalanceRecord, error) {
	return r.mutate(ctx, holdQuery, models.TransactionHold, m, ErrInsufficientAvailable)
}

func (r *balanceRepo) Release(ctx context.Context, m BalanceMutation) (*models.BalanceRecord, error) {
	return r.mutate(ctx, releaseQuery, models.TransactionRelease, m, ErrInsufficientHeld)
}

func (r *balanceRepo) Capture(ctx context.Context, m BalanceMutation) (*models.BalanceRecord, error) {
	return r.mutate(ctx, captureQuery, models.TransactionCapture, m, ErrInsufficientHeld)
}

func (r *balanceRepo) Credit(ctx context.Context, m BalanceMutation) (*models.BalanceRecord, error) {
	return r.mutate(ctx, creditQuery, models.TransactionCredit, m, nil)
}

func (r *balanceRepo) Debit(ctx context.Context, m BalanceMutation) (*models.BalanceRecord, error) {
	return r.mutate(ctx, debitQuery, models.TransactionDebit, m, ErrInsufficientAvailable)
}

// Settle runs the payer capture and the payee credit in one transaction.
// Both rows are locked in user id order first so that two settlements in
// opposite directions cannot deadlock.
func (r *balanceRepo) Settle(ctx context.Context, m SettleMutation) (settlement *models.Settlement, err error) {
	if m.FromUserID == m.ToUserID {
		return nil, ErrSameAccount
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin settlement: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
				logger.Log.Error("failed to rollback settlement", zap.Error(rbErr))
			}
		}
	}()

	ids := []string{m.FromUserID, m.ToUserID}
	sort.Strings(ids)
	for _, id := range ids {
		var locked string
		lockErr := tx.QueryRowContext(ctx,
			`SELECT user_id FROM balances WHERE user_id = $1 AND currency = $2 FOR UPDATE`,
			id, string(m.Currency),
		).Scan(&locked)
		if lockErr != nil && !errors.Is(lockErr, sql.ErrNoRows) {
			logger.Log.Error("failed to lock balance for settlement", zap.String("user_id", id), zap.Error(lockErr))
			err = lockErr
			return nil, err
		}
	}

	from, err := mutateWith(ctx, tx, captureQuery, models.TransactionSettle, m.side(m.FromUserID), ErrInsufficientHeld)
	if err != nil {
		return nil, err
	}
	to, err := mutateWith(ctx, tx, creditQuery, models.TransactionSettle, m.side(m.ToUserID), nil)
	if err != nil {
		return nil, err
	}
	if to == nil {
		return nil, ErrBalanceNotFound
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit settlement: %w", err)
	}
	return &models.Settlement{FromBalance: *from, ToBalance: *to}, nil
}

func (r *balanceRepo) mutate(ctx context.Context, query string, txType models.TransactionType, m BalanceMutation, guardErr error) (*models.BalanceRecord, error) {
	return mutateWith(ctx, r.db, query, txType, m, guardErr)
}

func mutateWith(ctx context.Context, q rowQuerier, query string, txType models.TransactionType, m BalanceMutation, guardErr error) (*models.BalanceRecord, error) {
	row := q.QueryRowContext(ctx, query,
		m.UserID, string(m.Currency), m.Amount.String(),
		uuid.NewString(), string(txType), m.Reference.ID, string(m.Reference.Type), m.Description,
	)

	record, err := scanBalance(row)
	if err == nil {
		return record, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		logger.Log.Error("balance mutation failed", zap.String("type", string(txType)), zap.Error(err))
		return nil, err
	}

	// The guarded update touched nothing; tell a missing row from a failed guard.
	exists, err := balanceExists(ctx, q, m.UserID, m.Currency)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrBalanceNotFound
	}
	if guardErr == nil {
		return nil, nil
	}
	return nil, guardErr
}

func balanceExists(ctx context.Context, q rowQuerier, userID string, currency models.Currency) (bool, error) {
	var exists bool
	err := q.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM balances WHERE user_id = $1 AND currency = $2)`,
		userID, string(currency),
	).Scan(&exists)
	return exists, err
}

func scanBalance(row interface{ Scan(dest ...any) error }) (*models.BalanceRecord, error) {
	var (
		record                models.BalanceRecord
		currency              string
		availableStr, heldStr string
	)
	if err := row.Scan(&record.UserID, &currency, &availableStr, &heldStr, &record.UpdatedAt); err != nil {
		return nil, err
	}
	record.Currency = models.Currency(currency)

	var err error
	if record.Available, err = decimal.NewFromString(availableStr); err != nil {
		return nil, fmt.Errorf("parse available balance: %w", err)
	}
	if record.Held, err = decimal.NewFromString(heldStr); err != nil {
		return nil, fmt.Errorf("parse held balance: %w", err)
	}
	return &record, nil
}

func (r *balanceRepo) GetBalances(ctx context.Context, userID string, currency string) ([]models.BalanceRecord, error) {
	query := `SELECT user_id, currency, available::text, held::text, updated_at FROM balances WHERE user_id = $1`
	args := []any{userID}
	if currency != "" {
		query += ` AND currency = $2`
		args = append(args, currency)
	}
	query += ` ORDER BY currency`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.Log.Error("failed to query balances", zap.Error(err))
		return nil, err
	}
	defer func(rows *sql.Rows) {
		err := rows.Close()
		if err != nil {
			logger.Log.Error("failed to close rows", zap.Error(err))
		}
	}(rows)

	var balances []models.BalanceRecord
	for rows.Next() {
		record, err := scanBalance(rows)
		if err != nil {
			logger.Log.Error("failed to scan balance", zap.Error(err))
			return nil, err
		}
		balances = append(balances, *record)
	}
	return balances, rows.Err()
}

func (r *balanceRepo) GetTransactions(ctx context.Context, userID string, filters models.TransactionFilters) ([]models.BalanceTransaction, int, error) {
	where := []string{"user_id = $1"}
	args := []any{userID}

	if filters.Currency != "" {
		args = append(args, filters.Currency)
		where = append(where, fmt.Sprintf("currency = $%d", len(args)))
	}
	if filters.Type != "" {
		args = append(args, filters.Type)
		where = append(where, fmt.Sprintf("type = $%d", len(args)))
	}
	if filters.From != nil {
		args = append(args, *filters.From)
		where = append(where, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if filters.To != nil {
		args = append(args, *filters.To)
		where = append(where, fmt.Sprintf("created_at < $%d", len(args)))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM balance_transactions WHERE `+cond, args...).Scan(&total); err != nil {
		logger.Log.Error("failed to count transactions", zap.Error(err))
		return nil, 0, err
	}

	args = append(args, filters.Limit, (filters.Page-1)*filters.Limit)
	query := fmt.Sprintf(`
		SELECT id, user_id, currency, type, amount::text, ref_id, ref_type, description,
		       available_after::text, held_after::text, created_at
		FROM balance_transactions
		WHERE %s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d
	`, cond, len(args)-1, len(args))

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.Log.Error("failed to query transactions", zap.Error(err))
		return nil, 0, err
	}
	defer func(rows *sql.Rows) {
		err := rows.Close()
		if err != nil {
			logger.Log.Error("failed to close rows", zap.Error(err))
		}
	}(rows)

	var txs []models.BalanceTransaction
	for rows.Next() {
		var (
			tx                                models.BalanceTransaction
			currency, txType, refType         string
			amount, availableAfter, heldAfter string
		)
		if err := rows.Scan(&tx.ID, &tx.UserID, &currency, &txType, &amount, &tx.RefID, &refType,
			&tx.Description, &availableAfter, &heldAfter, &tx.CreatedAt); err != nil {
			logger.Log.Error("failed to scan transaction", zap.Error(err))
			return nil, 0, err
		}
		tx.Currency = models.Currency(currency)
		tx.Type = models.TransactionType(txType)
		tx.RefType = models.RefType(refType)
		if err := parseTransactionAmounts(&tx, amount, availableAfter, heldAfter); err != nil {
			logger.Log.Error("failed to parse transaction amounts", zap.String("id", tx.ID), zap.Error(err))
			return nil, 0, err
		}
		txs = append(txs, tx)
	}
	return txs, total, rows.Err()
}

func parseTransactionAmounts(tx *models.BalanceTransaction, amount, availableAfter, heldAfter string) error {
	var err error
	if tx.Amount, err = decimal.NewFromString(amount); err != nil {
		return fmt.Errorf("parse transaction amount: %w", err)
	}
	if tx.AvailableAfter, err = decimal.NewFromString(availableAfter); err != nil {
		return fmt.Errorf("parse available after: %w", err)
	}
	if tx.HeldAfter, err = decimal.NewFromString(heldAfter); err != nil {
		return fmt.Errorf("parse held after: %w", err)
	}
	return nil
}
