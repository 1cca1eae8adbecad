package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/a2sh3r/fundsledger/internal/apperrors"
	"github.com/a2sh3r/fundsledger/internal/events"
	"github.com/a2sh3r/fundsledger/internal/locker"
	"github.com/a2sh3r/fundsledger/internal/logger"
	"github.com/a2sh3r/fundsledger/internal/metrics"
	"github.com/a2sh3r/fundsledger/internal/models"
	"github.com/a2sh3r/fundsledger/internal/payout"
	"github.com/a2sh3r/fundsledger/internal/repository"
	"github.com/a2sh3r/fundsledger/internal/statemachine"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	WebhookPayoutSuccess   = "payout.success"
	WebhookPayoutFailed    = "payout.failed"
	WebhookPayoutCancelled = "payout.cancelled"
)

type InitiateWithdrawalRequest struct {
	UserID           string
	Amount           decimal.Decimal
	Currency         string
	DestinationEmail string
	Metadata         json.RawMessage
}

type PayoutWebhookData struct {
	ReferenceID   string `json:"reference_id" validate:"required"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	FailureReason string `json:"failure_reason,omitempty"`
}

type PayoutWebhookEvent struct {
	EventID string            `json:"event_id" validate:"required"`
	Event   string            `json:"event" validate:"required"`
	Data    PayoutWebhookData `json:"data"`
}

type WithdrawalService interface {
	Initiate(ctx context.Context, req InitiateWithdrawalRequest) (*models.Withdrawal, error)
	Process(ctx context.Context, id string) (*models.Withdrawal, error)
	Reject(ctx context.Context, id, reason string) (*models.Withdrawal, error)
	Cancel(ctx context.Context, id, reason string) (*models.Withdrawal, error)
	Complete(ctx context.Context, id string) (*models.Withdrawal, error)
	Fail(ctx context.Context, id, reason string) (*models.Withdrawal, error)
	Refund(ctx context.Context, id string) (*models.Withdrawal, error)
	HandlePayoutWebhook(ctx context.Context, event PayoutWebhookEvent) (*models.Withdrawal, error)
	Get(ctx context.Context, id string) (*models.Withdrawal, error)
	ListByUser(ctx context.Context, userID string) ([]models.Withdrawal, error)
}

type WithdrawalConfig struct {
	MinAmount   decimal.Decimal
	MaxAmount   decimal.Decimal
	EventsTopic string
}

type withdrawalService struct {
	repo      repository.WithdrawalRepository
	ledger    LedgerService
	payouts   payout.ClientInterface
	locker    locker.Locker
	publisher events.Publisher
	metrics   *metrics.Metrics
	validate  *validator.Validate
	cfg       WithdrawalConfig
}

func NewWithdrawalService(
	repo repository.WithdrawalRepository,
	ledger LedgerService,
	payouts payout.ClientInterface,
	l locker.Locker,
	publisher events.Publisher,
	m *metrics.Metrics,
	cfg WithdrawalConfig,
) WithdrawalService {
	if l == nil {
		l = locker.NewKeyedMutex()
	}
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &withdrawalService{
		repo:      repo,
		ledger:    ledger,
		payouts:   payouts,
		locker:    l,
		publisher: publisher,
		metrics:   m,
		validate:  validator.New(),
		cfg:       cfg,
	}
}

// transitionContext is what ends up in the audit row of one transition.
type transitionContext struct {
	correlationID string
	eventID       string
	reason        string
}

func (s *withdrawalService) Initiate(ctx context.Context, req InitiateWithdrawalRequest) (*models.Withdrawal, error) {
	correlationID := uuid.NewString()
	log := logger.Log.With(zap.String("correlation_id", correlationID), zap.String("user_id", req.UserID))
	log.Info("initiating withdrawal", zap.String("amount", req.Amount.String()), zap.String("currency", req.Currency))

	if err := s.validateInitiate(ctx, req, correlationID); err != nil {
		log.Warn("withdrawal request rejected", zap.Error(err))
		return nil, err
	}

	created, err := s.repo.Create(ctx, models.Withdrawal{
		ID:               uuid.NewString(),
		Status:           models.StatusCreated,
		Amount:           req.Amount,
		UserID:           req.UserID,
		Currency:         models.Currency(req.Currency),
		DestinationEmail: req.DestinationEmail,
		Metadata:         req.Metadata,
	})
	if err != nil {
		log.Error("failed to create withdrawal record", zap.Error(err))
		return nil, withCorrelation(apperrors.Internal("failed to create withdrawal record", err), correlationID)
	}
	log = log.With(zap.String("withdrawal_id", created.ID))
	s.audit(ctx, *created, "", transitionContext{correlationID: correlationID})

	_, holdErr := s.ledger.Hold(ctx, BalanceRequest{
		UserID:      created.UserID,
		Amount:      created.Amount,
		Currency:    string(created.Currency),
		Reference:   withdrawalReference(created.ID),
		Description: fmt.Sprintf("Withdrawal hold for %s", created.ID),
	})
	if holdErr != nil {
		log.Warn("failed to hold withdrawal funds", zap.Error(holdErr))
		canceled, err := statemachine.Transition(*created, models.StatusCanceled)
		if err == nil {
			canceled.FailureReason = fmt.Sprintf("hold failed: %v", holdErr)
			if _, err := s.persist(ctx, *created, canceled, transitionContext{correlationID: correlationID, reason: canceled.FailureReason}); err != nil {
				log.Error("failed to cancel withdrawal after hold failure", zap.Error(err))
			}
		}
		return nil, holdErr
	}

	pending, err := statemachine.Transition(*created, models.StatusPendingVerification)
	if err != nil {
		return nil, err
	}
	updated, err := s.persist(ctx, *created, pending, transitionContext{correlationID: correlationID})
	if err != nil {
		log.Error("CRITICAL: funds held but status update failed", zap.Error(err))
		return nil, statusUpdateFailed(correlationID, err)
	}

	log.Info("withdrawal initiated")
	return updated, nil
}

// validateInitiate checks the request and then asks the provider whether the
// destination can be paid, so no record is created for an ineligible payee.
func (s *withdrawalService) validateInitiate(ctx context.Context, req InitiateWithdrawalRequest, correlationID string) error {
	if err := validateUserID(req.UserID); err != nil {
		return err
	}
	if err := s.validate.Var(req.DestinationEmail, "required,email"); err != nil {
		return apperrors.Validation("invalid destination email format")
	}
	if req.Amount.LessThan(s.cfg.MinAmount) || req.Amount.GreaterThan(s.cfg.MaxAmount) {
		return apperrors.Validation("amount must be between %s and %s", s.cfg.MinAmount, s.cfg.MaxAmount)
	}
	if !req.Amount.Equal(req.Amount.Truncate(models.AmountScale)) {
		return apperrors.Validation("amount must have at most %d fractional digits", models.AmountScale)
	}
	if err := validateCurrency(req.Currency); err != nil {
		return err
	}
	if len(req.Metadata) > 0 && !json.Valid(req.Metadata) {
		return apperrors.Validation("metadata must be valid JSON")
	}

	eligible, err := s.payouts.VerifyEligibility(ctx, req.DestinationEmail)
	if err != nil {
		return withCorrelation(apperrors.Internal(fmt.Sprintf("payout eligibility check failed: %v", err), err), correlationID)
	}
	if !eligible {
		return apperrors.Validation("user is not eligible for payout with this email")
	}
	return nil
}

// Process moves a verified withdrawal to the payout provider. A withdrawal
// left in PROCESSING by a provider failure can be processed again; a payout
// already created is reused instead of created twice.
func (s *withdrawalService) Process(ctx context.Context, id string) (*models.Withdrawal, error) {
	return s.withWithdrawal(ctx, id, func(ctx context.Context, w *models.Withdrawal, tc transitionContext) (*models.Withdrawal, error) {
		log := logger.Log.With(zap.String("correlation_id", tc.correlationID), zap.String("withdrawal_id", w.ID))

		if w.Status != models.StatusProcessing {
			next, err := statemachine.Transition(*w, models.StatusProcessing)
			if err != nil {
				return nil, err
			}
			if w, err = s.persist(ctx, *w, next, tc); err != nil {
				return nil, err
			}
		}

		if w.ExternalPayoutID == "" {
			created, err := s.payouts.CreatePayout(ctx, payout.PayoutRequest{
				WithdrawalID: w.ID,
				Amount:       w.Amount,
				Currency:     string(w.Currency),
				Email:        w.DestinationEmail,
			})
			if err != nil {
				s.metrics.IncPayoutCall("create", "error")
				log.Error("payout provider create failed", zap.Error(err))
				return nil, processingFailed(tc.correlationID, "create payout", err)
			}
			s.metrics.IncPayoutCall("create", "ok")

			withPayout := *w
			withPayout.ExternalPayoutID = created.ID
			if w, err = s.repo.UpdateStatus(ctx, withPayout, w.Version); err != nil {
				log.Error("failed to store payout id", zap.String("payout_id", created.ID), zap.Error(err))
				return nil, statusUpdateFailed(tc.correlationID, err)
			}
		}

		if _, err := s.payouts.CommitPayout(ctx, w.ExternalPayoutID); err != nil {
			s.metrics.IncPayoutCall("commit", "error")
			log.Error("payout provider commit failed", zap.String("payout_id", w.ExternalPayoutID), zap.Error(err))
			return nil, processingFailed(tc.correlationID, "commit payout", err)
		}
		s.metrics.IncPayoutCall("commit", "ok")

		next, err := statemachine.Transition(*w, models.StatusCommitted)
		if err != nil {
			return nil, err
		}
		committed, err := s.persist(ctx, *w, next, tc)
		if err != nil {
			log.Error("CRITICAL: payout committed but status update failed", zap.Error(err))
			return nil, statusUpdateFailed(tc.correlationID, err)
		}
		log.Info("withdrawal committed", zap.String("payout_id", committed.ExternalPayoutID))
		return committed, nil
	})
}

func (s *withdrawalService) Reject(ctx context.Context, id, reason string) (*models.Withdrawal, error) {
	return s.withWithdrawal(ctx, id, func(ctx context.Context, w *models.Withdrawal, tc transitionContext) (*models.Withdrawal, error) {
		tc.reason = reason
		return s.releaseAndMove(ctx, w, models.StatusRejected, tc)
	})
}

func (s *withdrawalService) Cancel(ctx context.Context, id, reason string) (*models.Withdrawal, error) {
	return s.withWithdrawal(ctx, id, func(ctx context.Context, w *models.Withdrawal, tc transitionContext) (*models.Withdrawal, error) {
		tc.reason = reason
		return s.releaseAndMove(ctx, w, models.StatusCanceled, tc)
	})
}

func (s *withdrawalService) Complete(ctx context.Context, id string) (*models.Withdrawal, error) {
	return s.withWithdrawal(ctx, id, s.complete)
}

func (s *withdrawalService) Fail(ctx context.Context, id, reason string) (*models.Withdrawal, error) {
	return s.withWithdrawal(ctx, id, func(ctx context.Context, w *models.Withdrawal, tc transitionContext) (*models.Withdrawal, error) {
		tc.reason = reason
		return s.fail(ctx, w, tc)
	})
}

func (s *withdrawalService) Refund(ctx context.Context, id string) (*models.Withdrawal, error) {
	return s.withWithdrawal(ctx, id, func(ctx context.Context, w *models.Withdrawal, tc transitionContext) (*models.Withdrawal, error) {
		return s.releaseAndMove(ctx, w, models.StatusRefunded, tc)
	})
}

func (s *withdrawalService) HandlePayoutWebhook(ctx context.Context, event PayoutWebhookEvent) (*models.Withdrawal, error) {
	if err := s.validate.Struct(event); err != nil {
		return nil, apperrors.Validation("invalid webhook payload: %v", err)
	}

	return s.withWithdrawal(ctx, event.Data.ReferenceID, func(ctx context.Context, w *models.Withdrawal, tc transitionContext) (*models.Withdrawal, error) {
		log := logger.Log.With(
			zap.String("correlation_id", tc.correlationID),
			zap.String("withdrawal_id", w.ID),
			zap.String("event_id", event.EventID),
			zap.String("event", event.Event),
		)

		processed, err := s.repo.HasProcessedEvent(ctx, w.ID, event.EventID)
		if err != nil {
			return nil, apperrors.Internal("error checking for duplicate webhook", err)
		}
		if processed {
			log.Info("duplicate webhook ignored")
			return w, nil
		}

		tc.eventID = event.EventID
		switch event.Event {
		case WebhookPayoutSuccess:
			return s.complete(ctx, w, tc)
		case WebhookPayoutFailed, WebhookPayoutCancelled:
			tc.reason = event.Data.FailureReason
			if tc.reason == "" {
				tc.reason = event.Event
			}
			return s.fail(ctx, w, tc)
		default:
			return nil, apperrors.Validation("unsupported webhook event %s", event.Event)
		}
	})
}

func (s *withdrawalService) Get(ctx context.Context, id string) (*models.Withdrawal, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.Validation("invalid withdrawal ID format")
	}
	return s.load(ctx, id)
}

func (s *withdrawalService) ListByUser(ctx context.Context, userID string) ([]models.Withdrawal, error) {
	if err := validateUserID(userID); err != nil {
		return nil, err
	}
	withdrawals, err := s.repo.ListByUser(ctx, userID)
	if err != nil {
		return nil, apperrors.Internal("failed to list withdrawals", err)
	}
	if withdrawals == nil {
		withdrawals = []models.Withdrawal{}
	}
	return withdrawals, nil
}

func (s *withdrawalService) complete(ctx context.Context, w *models.Withdrawal, tc transitionContext) (*models.Withdrawal, error) {
	next, err := statemachine.Transition(*w, models.StatusSucceeded)
	if err != nil {
		return nil, err
	}
	if _, err := s.ledger.Capture(ctx, BalanceRequest{
		UserID:      w.UserID,
		Amount:      w.Amount,
		Currency:    string(w.Currency),
		Reference:   withdrawalReference(w.ID),
		Description: fmt.Sprintf("Withdrawal %s paid out", w.ID),
	}); err != nil {
		return nil, err
	}
	return s.persistAfterLedger(ctx, *w, next, tc)
}

// fail records the provider failure and returns the funds. When the release
// fails the withdrawal stays FAILED and Refund can be retried.
func (s *withdrawalService) fail(ctx context.Context, w *models.Withdrawal, tc transitionContext) (*models.Withdrawal, error) {
	next, err := statemachine.Transition(*w, models.StatusFailed)
	if err != nil {
		return nil, err
	}
	next.FailureReason = tc.reason
	failed, err := s.persist(ctx, *w, next, tc)
	if err != nil {
		return nil, err
	}

	// the event id marks only the first row so the webhook dedupe stays unique
	tc.eventID = ""
	return s.releaseAndMove(ctx, failed, models.StatusRefunded, tc)
}

func (s *withdrawalService) releaseAndMove(ctx context.Context, w *models.Withdrawal, to models.WithdrawalStatus, tc transitionContext) (*models.Withdrawal, error) {
	next, err := statemachine.Transition(*w, to)
	if err != nil {
		return nil, err
	}
	if tc.reason != "" {
		next.FailureReason = tc.reason
	}
	if _, err := s.ledger.Release(ctx, BalanceRequest{
		UserID:      w.UserID,
		Amount:      w.Amount,
		Currency:    string(w.Currency),
		Reference:   withdrawalReference(w.ID),
		Description: fmt.Sprintf("Withdrawal %s %s", w.ID, to),
	}); err != nil {
		return nil, err
	}
	return s.persistAfterLedger(ctx, *w, next, tc)
}

func (s *withdrawalService) persistAfterLedger(ctx context.Context, prev, next models.Withdrawal, tc transitionContext) (*models.Withdrawal, error) {
	updated, err := s.persist(ctx, prev, next, tc)
	if err != nil {
		logger.Log.Error("CRITICAL: balance updated but withdrawal status update failed",
			zap.String("correlation_id", tc.correlationID),
			zap.String("withdrawal_id", prev.ID),
			zap.String("to", string(next.Status)),
			zap.Error(err),
		)
		return nil, statusUpdateFailed(tc.correlationID, err)
	}
	return updated, nil
}

// persist stores next with a compare-and-swap on prev's version, then writes
// the audit row and publishes the status event. Neither of the latter can
// fail the transition.
func (s *withdrawalService) persist(ctx context.Context, prev, next models.Withdrawal, tc transitionContext) (*models.Withdrawal, error) {
	updated, err := s.repo.UpdateStatus(ctx, next, prev.Version)
	switch {
	case errors.Is(err, repository.ErrVersionConflict):
		return nil, apperrors.Conflict(fmt.Sprintf("withdrawal %s was modified concurrently", prev.ID), apperrors.CodeConcurrentModification)
	case errors.Is(err, repository.ErrWithdrawalNotFound):
		return nil, withdrawalNotFound(prev.ID)
	case err != nil:
		return nil, apperrors.Internal(fmt.Sprintf("failed to update withdrawal status: %v", err), err)
	}

	s.metrics.IncTransition(string(prev.Status), string(updated.Status))
	s.audit(ctx, *updated, prev.Status, tc)
	s.publish(ctx, *updated, prev.Status, tc)
	return updated, nil
}

func (s *withdrawalService) audit(ctx context.Context, w models.Withdrawal, from models.WithdrawalStatus, tc transitionContext) {
	err := s.repo.InsertAuditLog(ctx, models.WithdrawalAuditLog{
		ID:            uuid.NewString(),
		WithdrawalID:  w.ID,
		FromStatus:    from,
		ToStatus:      w.Status,
		CorrelationID: tc.correlationID,
		EventID:       tc.eventID,
		Reason:        tc.reason,
		CreatedAt:     time.Now().UTC(),
	})
	if err != nil {
		logger.Log.Error("failed to create audit log",
			zap.String("correlation_id", tc.correlationID),
			zap.String("withdrawal_id", w.ID),
			zap.Error(err),
		)
	}
}

func (s *withdrawalService) publish(ctx context.Context, w models.Withdrawal, from models.WithdrawalStatus, tc transitionContext) {
	event := events.NewWithdrawalStatusChanged(w, from, tc.correlationID, tc.reason)
	if _, _, err := s.publisher.PublishJSON(ctx, s.cfg.EventsTopic, w.ID, event); err != nil {
		logger.Log.Warn("failed to publish withdrawal status event",
			zap.String("correlation_id", tc.correlationID),
			zap.String("withdrawal_id", w.ID),
			zap.Error(err),
		)
	}
}

type withdrawalOp func(ctx context.Context, w *models.Withdrawal, tc transitionContext) (*models.Withdrawal, error)

// withWithdrawal loads the withdrawal under its lock and runs op on it.
func (s *withdrawalService) withWithdrawal(ctx context.Context, id string, op withdrawalOp) (*models.Withdrawal, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, apperrors.Validation("invalid withdrawal ID format")
	}
	tc := transitionContext{correlationID: uuid.NewString()}

	var result *models.Withdrawal
	err := s.locker.WithLock(ctx, "withdrawal:"+id, func(ctx context.Context) error {
		w, err := s.load(ctx, id)
		if err != nil {
			return err
		}
		result, err = op(ctx, w, tc)
		return err
	})
	if err != nil {
		var appErr *apperrors.Error
		if !errors.As(err, &appErr) {
			return nil, withCorrelation(apperrors.Internal(fmt.Sprintf("withdrawal %s: %v", id, err), err), tc.correlationID)
		}
		return nil, err
	}
	return result, nil
}

func (s *withdrawalService) load(ctx context.Context, id string) (*models.Withdrawal, error) {
	w, err := s.repo.GetByID(ctx, id)
	if errors.Is(err, repository.ErrWithdrawalNotFound) {
		return nil, withdrawalNotFound(id)
	}
	if err != nil {
		return nil, apperrors.Internal("error fetching withdrawal", err)
	}
	return w, nil
}

func withdrawalReference(id string) models.FundsReference {
	return models.FundsReference{ID: id, Type: models.RefTypeEscrow}
}

func withdrawalNotFound(id string) *apperrors.Error {
	return apperrors.NotFound(fmt.Sprintf("withdrawal %s not found", id), apperrors.CodeWithdrawalNotFound)
}

func processingFailed(correlationID, step string, err error) *apperrors.Error {
	appErr := apperrors.Internal(fmt.Sprintf("failed to process withdrawal: %s: %v", step, err), err)
	appErr.Code = apperrors.CodeWithdrawalProcessing
	appErr.CorrelationID = correlationID
	return appErr
}

func statusUpdateFailed(correlationID string, err error) *apperrors.Error {
	appErr := apperrors.Internal("withdrawal processed but status update failed, please contact support", err)
	appErr.Code = apperrors.CodeWithdrawalStatusUpdate
	appErr.CorrelationID = correlationID
	return appErr
}
