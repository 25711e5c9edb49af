package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/moneypay/ledger-service/internal/domain"
	"github.com/moneypay/ledger-service/internal/ledger"
	"github.com/moneypay/ledger-service/internal/store"
)

const (
	expiryBatchSize = 100
	expiredReason   = "expired"
)

// ExpiryReport counts what one sweep closed.
type ExpiryReport struct {
	Requests    int
	StatePushes int
	Failures    int
}

// ExpirePending closes pending items created more than ttl ago. Withdrawal
// requests are cancelled with reason "expired"; state pushes go through the
// regular cancel path so the sender is refunded. A zero ttl disables expiry.
func (s *Service) ExpirePending(ctx context.Context, ttl time.Duration) (ExpiryReport, error) {
	var report ExpiryReport
	if ttl <= 0 {
		return report, nil
	}
	cutoff := s.now().Add(-ttl)

	ids, err := s.repo.ListStaleWithdrawalRequests(ctx, cutoff, expiryBatchSize)
	if err != nil {
		return report, fmt.Errorf("failed to list stale withdrawal requests: %w", err)
	}
	for _, id := range ids {
		if err := s.expireWithdrawalRequest(ctx, id); err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			report.Failures++
			s.logger.Error("failed to expire withdrawal request", "request_id", id, "error", err)
			continue
		}
		report.Requests++
	}

	refs, err := s.repo.ListStalePendingStatePushes(ctx, cutoff, expiryBatchSize)
	if err != nil {
		return report, fmt.Errorf("failed to list stale state pushes: %w", err)
	}
	for _, ref := range refs {
		if _, err := s.cancelStatePush(ctx, ref, nil, expiredReason); err != nil {
			if errors.Is(err, ErrConflict) {
				continue
			}
			report.Failures++
			s.logger.Error("failed to expire state push", "transaction_id", ref, "error", err)
			continue
		}
		report.StatePushes++
	}
	return report, nil
}

func (s *Service) expireWithdrawalRequest(ctx context.Context, requestID int64) error {
	return s.repo.InTx(ctx, func(tx store.Tx) error {
		req, err := tx.LockWithdrawalRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if req.Status != domain.RequestStatusPending {
			return notPending("request", req.Status)
		}
		accs, err := ledger.Lock(ctx, tx, req.PayerID, req.RequesterID)
		if err != nil {
			return err
		}

		now := s.now()
		reason := expiredReason
		req.Status = domain.RequestStatusCancelled
		req.CancelledAt = &now
		req.Reason = &reason
		if err := tx.UpdateWithdrawalRequest(ctx, req); err != nil {
			return err
		}

		fx := newEffects()
		message := fmt.Sprintf("The pending request of %s expired and was cancelled", s.money(req.Amount))
		for _, id := range []int64{req.PayerID, req.RequesterID} {
			if acc := accs[id]; acc != nil {
				fx.notify(acc, "Request Expired", message, domain.NotificationWithdrawalRequest, nil, &req.ID)
			}
		}
		return s.flush(ctx, tx, fx)
	})
}
