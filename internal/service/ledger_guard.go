package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"giftpool/internal/ledger"
	"giftpool/internal/models"
	"giftpool/internal/observability"
	"giftpool/internal/repository"
)

// ledgerGuard runs a unit of work on one gift's ledger. The distributed lock (when
// configured) serializes API instances; the store's WithinGift serializes the writes.
type ledgerGuard struct {
	store   repository.Store
	locker  ledger.Locker
	timeout time.Duration
}

func (g ledgerGuard) run(ctx context.Context, giftID string, fn func(tx repository.Store) error) error {
	if g.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if g.locker != nil {
		start := time.Now()
		unlock, err := g.locker.Lock(ctx, ledger.GiftLockKey(giftID))
		observability.ObserveLockWait(start)
		if err != nil {
			if errors.Is(err, context.DeadlineExceeded) {
				return models.NewInternalError(fmt.Errorf("gift %s is busy: %w", giftID, err))
			}
			return models.NewInternalError(err)
		}
		defer unlock()
	}

	return g.store.WithinGift(ctx, giftID, fn)
}

// contributionOutcome classifies err for ContributionsTotal.
func contributionOutcome(err error) string {
	switch models.ErrorCode(err) {
	case "":
		if err == nil {
			return observability.OutcomeAccepted
		}
		return observability.OutcomeError
	case models.CodeValidation, models.CodeNotFound, models.CodeForbidden:
		return observability.OutcomeRejected
	default:
		return observability.OutcomeError
	}
}
