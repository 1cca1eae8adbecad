package service

import (
	"context"
	"time"

	"github.com/a2sh3r/fundsledger/internal/logger"
	"github.com/a2sh3r/fundsledger/internal/models"
	"github.com/a2sh3r/fundsledger/internal/payout"
	"github.com/a2sh3r/fundsledger/internal/repository"
	"go.uber.org/zap"
)

const settlementBatchSize = 100

// SettlementPoller settles committed withdrawals whose webhook never arrived,
// and retries refunds left behind in FAILED.
type SettlementPoller struct {
	repo         repository.WithdrawalRepository
	withdrawals  WithdrawalService
	payoutClient payout.ClientInterface
	pollInterval time.Duration
}

func NewSettlementPoller(repo repository.WithdrawalRepository, withdrawals WithdrawalService, client payout.ClientInterface, interval time.Duration) *SettlementPoller {
	return &SettlementPoller{
		repo:         repo,
		withdrawals:  withdrawals,
		payoutClient: client,
		pollInterval: interval,
	}
}

func (p *SettlementPoller) Run(ctx context.Context) {
	ticker := time.NewTicker(p.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.settleCommitted(ctx)
			p.retryRefunds(ctx)
		}
	}
}

func (p *SettlementPoller) settleCommitted(ctx context.Context) {
	committed, err := p.repo.ListByStatus(ctx, models.StatusCommitted, settlementBatchSize)
	if err != nil {
		logger.Log.Error("failed to list committed withdrawals", zap.Error(err))
		return
	}

	for _, w := range committed {
		if w.ExternalPayoutID == "" {
			logger.Log.Warn("committed withdrawal without payout id", zap.String("withdrawal_id", w.ID))
			continue
		}

		resp, status, err := p.payoutClient.GetPayoutStatus(ctx, w.ExternalPayoutID)
		if err != nil {
			logger.Log.Warn("failed to get payout status", zap.String("withdrawal_id", w.ID), zap.Int("status", status), zap.Error(err))
			continue
		}
		if resp == nil {
			continue
		}

		switch resp.Status {
		case payout.StatusCompleted:
			if _, err := p.withdrawals.Complete(ctx, w.ID); err != nil {
				logger.Log.Error("failed to complete withdrawal", zap.String("withdrawal_id", w.ID), zap.Error(err))
			}
		case payout.StatusFailed:
			reason := resp.FailureReason
			if reason == "" {
				reason = "payout failed"
			}
			if _, err := p.withdrawals.Fail(ctx, w.ID, reason); err != nil {
				logger.Log.Error("failed to fail withdrawal", zap.String("withdrawal_id", w.ID), zap.Error(err))
			}
		}
	}
}

func (p *SettlementPoller) retryRefunds(ctx context.Context) {
	failed, err := p.repo.ListByStatus(ctx, models.StatusFailed, settlementBatchSize)
	if err != nil {
		logger.Log.Error("failed to list failed withdrawals", zap.Error(err))
		return
	}

	for _, w := range failed {
		if _, err := p.withdrawals.Refund(ctx, w.ID); err != nil {
			logger.Log.Error("failed to refund withdrawal", zap.String("withdrawal_id", w.ID), zap.Error(err))
		}
	}
}
