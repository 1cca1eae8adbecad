package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/a2sh3r/fundsledger/internal/apperrors"
	"github.com/a2sh3r/fundsledger/internal/cache"
	"github.com/a2sh3r/fundsledger/internal/logger"
	"github.com/a2sh3r/fundsledger/internal/metrics"
	"github.com/a2sh3r/fundsledger/internal/models"
	"github.com/a2sh3r/fundsledger/internal/repository"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	defaultHistoryPage  = 1
	defaultHistoryLimit = 20
	maxHistoryLimit     = 100
)

// BalanceRequest carries the arguments of a single ledger mutation.
type BalanceRequest struct {
	UserID      string
	Amount      decimal.Decimal
	Currency    string
	Reference   models.FundsReference
	Description string
}

// SettleRequest moves held funds of FromUserID to ToUserID's available
// balance. Reference must name a contract.
type SettleRequest struct {
	FromUserID  string
	ToUserID    string
	Amount      decimal.Decimal
	Currency    string
	Reference   models.FundsReference
	Description string
}

type LedgerService interface {
	Hold(ctx context.Context, req BalanceRequest) (*models.BalanceRecord, error)
	Release(ctx context.Context, req BalanceRequest) (*models.BalanceRecord, error)
	Capture(ctx context.Context, req BalanceRequest) (*models.BalanceRecord, error)
	Credit(ctx context.Context, req BalanceRequest) (*models.BalanceRecord, error)
	Debit(ctx context.Context, req BalanceRequest) (*models.BalanceRecord, error)
	Settle(ctx context.Context, req SettleRequest) (*models.Settlement, error)
	GetUserBalances(ctx context.Context, userID, currency string) ([]models.BalanceRecord, error)
	GetTransactionHistory(ctx context.Context, userID string, filters models.TransactionFilters) (*models.TransactionHistory, error)
}

type ledgerService struct {
	repo    repository.BalanceRepository
	cache   cache.BalanceCache
	metrics *metrics.Metrics
}

// NewLedgerService builds the ledger engine. cache and m may be nil.
func NewLedgerService(repo repository.BalanceRepository, balanceCache cache.BalanceCache, m *metrics.Metrics) LedgerService {
	return &ledgerService{repo: repo, cache: balanceCache, metrics: m}
}

type mutationFunc func(ctx context.Context, m repository.BalanceMutation) (*models.BalanceRecord, error)

func (s *ledgerService) Hold(ctx context.Context, req BalanceRequest) (*models.BalanceRecord, error) {
	return s.mutate(ctx, models.TransactionHold, req, s.repo.Hold, func(err error, correlationID string) error {
		if errors.Is(err, repository.ErrInsufficientAvailable) || errors.Is(err, repository.ErrBalanceNotFound) {
			return apperrors.InsufficientFunds("insufficient available funds to hold", correlationID)
		}
		return nil
	})
}

func (s *ledgerService) Release(ctx context.Context, req BalanceRequest) (*models.BalanceRecord, error) {
	return s.mutate(ctx, models.TransactionRelease, req, s.repo.Release, heldFundsError("release"))
}

func (s *ledgerService) Capture(ctx context.Context, req BalanceRequest) (*models.BalanceRecord, error) {
	return s.mutate(ctx, models.TransactionCapture, req, s.repo.Capture, heldFundsError("capture"))
}

func (s *ledgerService) Credit(ctx context.Context, req BalanceRequest) (*models.BalanceRecord, error) {
	return s.mutate(ctx, models.TransactionCredit, req, s.repo.Credit, func(error, string) error { return nil })
}

func (s *ledgerService) Debit(ctx context.Context, req BalanceRequest) (*models.BalanceRecord, error) {
	return s.mutate(ctx, models.TransactionDebit, req, s.repo.Debit, func(err error, correlationID string) error {
		if errors.Is(err, repository.ErrInsufficientAvailable) || errors.Is(err, repository.ErrBalanceNotFound) {
			return apperrors.InsufficientFunds("insufficient available funds to debit", correlationID)
		}
		return nil
	})
}

func (s *ledgerService) Settle(ctx context.Context, req SettleRequest) (*models.Settlement, error) {
	correlationID := uuid.NewString()
	op := string(models.TransactionSettle)
	log := logger.Log.With(
		zap.String("correlation_id", correlationID),
		zap.String("op", op),
		zap.String("from_user_id", req.FromUserID),
		zap.String("to_user_id", req.ToUserID),
		zap.String("currency", req.Currency),
		zap.String("amount", req.Amount.String()),
	)

	if err := validateSettleRequest(req); err != nil {
		s.metrics.ObserveLedger(op, "validation_error", 0)
		return nil, err
	}
	if req.Description == "" {
		req.Description = fmt.Sprintf("Settlement for contract %s", req.Reference.ID)
	}

	log.Info("balance operation started", zap.String("ref_id", req.Reference.ID))
	start := time.Now()

	settlement, err := s.repo.Settle(ctx, repository.SettleMutation{
		FromUserID:  req.FromUserID,
		ToUserID:    req.ToUserID,
		Currency:    models.Currency(req.Currency),
		Amount:      req.Amount,
		Reference:   req.Reference,
		Description: req.Description,
	})
	switch {
	case errors.Is(err, repository.ErrInsufficientHeld) || errors.Is(err, repository.ErrBalanceNotFound):
		s.metrics.ObserveLedger(op, string(apperrors.KindBusinessLogic), time.Since(start))
		log.Warn("balance operation refused", zap.Error(err))
		return nil, withCorrelation(apperrors.BusinessLogic("insufficient held balance to settle", apperrors.CodeInsufficientFunds), correlationID)
	case errors.Is(err, repository.ErrSameAccount):
		s.metrics.ObserveLedger(op, "validation_error", time.Since(start))
		return nil, apperrors.Validation("cannot settle balance to the same user")
	case err != nil:
		s.metrics.ObserveLedger(op, string(apperrors.KindInternal), time.Since(start))
		log.Error("balance operation failed", zap.Error(err))
		return nil, withCorrelation(apperrors.Internal(fmt.Sprintf("balance settlement failed: %v", err), err), correlationID)
	case settlement == nil:
		s.metrics.ObserveLedger(op, string(apperrors.KindInternal), time.Since(start))
		log.Error("balance operation returned no data")
		return nil, withCorrelation(apperrors.Internal("balance settlement failed: no data returned", nil), correlationID)
	}

	s.metrics.ObserveLedger(op, "ok", time.Since(start))
	s.invalidate(ctx, req.FromUserID)
	s.invalidate(ctx, req.ToUserID)
	log.Info("balance operation succeeded",
		zap.String("from_held", settlement.FromBalance.Held.String()),
		zap.String("to_available", settlement.ToBalance.Available.String()),
	)
	return settlement, nil
}

func heldFundsError(op string) func(error, string) error {
	return func(err error, correlationID string) error {
		if errors.Is(err, repository.ErrInsufficientHeld) || errors.Is(err, repository.ErrBalanceNotFound) {
			appErr := apperrors.BusinessLogic(fmt.Sprintf("insufficient held funds to %s", op), apperrors.CodeInsufficientHeldFunds)
			appErr.CorrelationID = correlationID
			return appErr
		}
		return nil
	}
}

func (s *ledgerService) mutate(ctx context.Context, op models.TransactionType, req BalanceRequest, call mutationFunc, classify func(error, string) error) (*models.BalanceRecord, error) {
	correlationID := uuid.NewString()
	log := logger.Log.With(
		zap.String("correlation_id", correlationID),
		zap.String("op", string(op)),
		zap.String("user_id", req.UserID),
		zap.String("currency", req.Currency),
		zap.String("amount", req.Amount.String()),
	)

	if err := validateBalanceRequest(op, req); err != nil {
		s.metrics.ObserveLedger(string(op), "validation_error", 0)
		return nil, err
	}

	log.Info("balance operation started", zap.String("ref_id", req.Reference.ID), zap.String("ref_type", string(req.Reference.Type)))
	start := time.Now()

	record, err := call(ctx, repository.BalanceMutation{
		UserID:      req.UserID,
		Currency:    models.Currency(req.Currency),
		Amount:      req.Amount,
		Reference:   req.Reference,
		Description: req.Description,
	})
	if err != nil {
		if mapped := classify(err, correlationID); mapped != nil {
			s.metrics.ObserveLedger(string(op), string(apperrors.KindOf(mapped)), time.Since(start))
			log.Warn("balance operation refused", zap.Error(err))
			return nil, mapped
		}
		s.metrics.ObserveLedger(string(op), string(apperrors.KindInternal), time.Since(start))
		log.Error("balance operation failed", zap.Error(err))
		return nil, withCorrelation(apperrors.Internal(fmt.Sprintf("balance %s failed: %v", op, err), err), correlationID)
	}
	if record == nil {
		s.metrics.ObserveLedger(string(op), string(apperrors.KindInternal), time.Since(start))
		log.Error("balance operation returned no data")
		return nil, withCorrelation(apperrors.Internal("balance update failed: no data returned", nil), correlationID)
	}

	s.metrics.ObserveLedger(string(op), "ok", time.Since(start))
	s.invalidate(ctx, req.UserID)
	log.Info("balance operation succeeded",
		zap.String("available", record.Available.String()),
		zap.String("held", record.Held.String()),
	)
	return record, nil
}

func withCorrelation(err *apperrors.Error, correlationID string) *apperrors.Error {
	err.CorrelationID = correlationID
	return err
}

func validateBalanceRequest(op models.TransactionType, req BalanceRequest) error {
	if err := validateUserID(req.UserID); err != nil {
		return err
	}
	if err := validateAmount(req.Amount, req.Currency); err != nil {
		return err
	}
	valid := req.Reference.Valid()
	if op == models.TransactionDebit {
		valid = req.Reference.ValidDebit()
	}
	if !valid {
		return apperrors.Validation("invalid reference data")
	}
	return nil
}

func validateSettleRequest(req SettleRequest) error {
	if _, err := uuid.Parse(req.FromUserID); err != nil {
		return apperrors.Validation("invalid fromUser ID format")
	}
	if _, err := uuid.Parse(req.ToUserID); err != nil {
		return apperrors.Validation("invalid toUser ID format")
	}
	if strings.EqualFold(req.FromUserID, req.ToUserID) {
		return apperrors.Validation("cannot settle balance to the same user")
	}
	if err := validateAmount(req.Amount, req.Currency); err != nil {
		return err
	}
	if !req.Reference.Valid() || req.Reference.Type != models.RefTypeContract {
		return apperrors.Validation("invalid reference data")
	}
	return nil
}

func validateAmount(amount decimal.Decimal, currency string) error {
	if !amount.IsPositive() {
		return apperrors.Validation("amount must be positive")
	}
	if !amount.Equal(amount.Truncate(models.AmountScale)) {
		return apperrors.Validation("amount must have at most %d fractional digits", models.AmountScale)
	}
	return validateCurrency(currency)
}

func validateUserID(userID string) error {
	if _, err := uuid.Parse(userID); err != nil {
		return apperrors.Validation("invalid user ID format")
	}
	return nil
}

func validateCurrency(currency string) error {
	if !models.IsSupportedCurrency(currency) {
		supported := make([]string, 0, len(models.SupportedCurrencies))
		for _, c := range models.SupportedCurrencies {
			supported = append(supported, string(c))
		}
		return apperrors.Validation("currency %s is not supported. Supported currencies: %s", currency, strings.Join(supported, ", "))
	}
	return nil
}

func (s *ledgerService) invalidate(ctx context.Context, userID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, userID); err != nil {
		logger.Log.Warn("failed to invalidate balance cache", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *ledgerService) GetUserBalances(ctx context.Context, userID, currency string) ([]models.BalanceRecord, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if currency != "" {
		if err := validateCurrency(currency); err != nil {
			return nil, err
		}
	}

	records, err := s.cachedBalances(ctx, userID)
	if err != nil {
		return nil, err
	}
	if currency == "" {
		return records, nil
	}

	filtered := make([]models.BalanceRecord, 0, 1)
	for _, r := range records {
		if string(r.Currency) == currency {
			filtered = append(filtered, r)
		}
	}
	return filtered, nil
}

// cachedBalances always caches the full set for the user so a single
// invalidation covers every currency filter.
func (s *ledgerService) cachedBalances(ctx context.Context, userID string) ([]models.BalanceRecord, error) {
	if s.cache != nil {
		records, err := s.cache.Get(ctx, userID)
		if err == nil {
			s.metrics.IncCacheLookup("hit")
			return records, nil
		}
		if !errors.Is(err, cache.ErrMiss) {
			logger.Log.Warn("balance cache read failed", zap.String("user_id", userID), zap.Error(err))
		}
		s.metrics.IncCacheLookup("miss")
	}

	records, err := s.repo.GetBalances(ctx, userID, "")
	if err != nil {
		return nil, apperrors.Internal(fmt.Sprintf("failed to retrieve balances: %v", err), err)
	}
	if records == nil {
		records = []models.BalanceRecord{}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, userID, records); err != nil {
			logger.Log.Warn("balance cache write failed", zap.String("user_id", userID), zap.Error(err))
		}
	}
	return records, nil
}

func (s *ledgerService) GetTransactionHistory(ctx context.Context, userID string, filters models.TransactionFilters) (*models.TransactionHistory, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	if filters.Currency != "" {
		if err := validateCurrency(filters.Currency); err != nil {
			return nil, err
		}
	}
	if filters.Type != "" && !models.IsTransactionType(filters.Type) {
		return nil, apperrors.Validation("transaction type %s is not supported", filters.Type)
	}
	if filters.From != nil && filters.To != nil && filters.From.After(*filters.To) {
		return nil, apperrors.Validation("from date must be before or equal to to date")
	}
	if filters.Page == 0 {
		filters.Page = defaultHistoryPage
	}
	if filters.Limit == 0 {
		filters.Limit = defaultHistoryLimit
	}
	if filters.Page < 1 {
		return nil, apperrors.Validation("page must be greater than or equal to 1")
	}
	if filters.Limit < 1 || filters.Limit > maxHistoryLimit {
		return nil, apperrors.Validation("limit must be between 1 and %d", maxHistoryLimit)
	}

	txs, total, err := s.repo.GetTransactions(ctx, userID, filters)
	if err != nil {
		return nil, apperrors.Internal(fmt.Sprintf("failed to retrieve transaction history: %v", err), err)
	}
	if txs == nil {
		txs = []models.BalanceTransaction{}
	}

	return &models.TransactionHistory{
		Transactions: txs,
		Pagination: models.Pagination{
			Page:  filters.Page,
			Limit: filters.Limit,
			Total: total,
			Pages: int(math.Ceil(float64(total) / float64(filters.Limit))),
		},
	}, nil
}
