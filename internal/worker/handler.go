package worker

import (
	"context"
	"fmt"
	"log/slog"

	"giftpool/internal/models"
	"giftpool/internal/observability"
	"giftpool/internal/repository"
	"giftpool/internal/tasks"

	"github.com/hibiken/asynq"
)

// ContributionEmailHandler tells a gift's owner that someone contributed.
type ContributionEmailHandler struct {
	users  repository.UserRepository
	mailer Mailer
	from   string
}

func NewContributionEmailHandler(users repository.UserRepository, mailer Mailer, from string) *ContributionEmailHandler {
	return &ContributionEmailHandler{users: users, mailer: mailer, from: from}
}

// ProcessTask implements asynq.Handler.
func (h *ContributionEmailHandler) ProcessTask(ctx context.Context, t *asynq.Task) error {
	retry, _ := asynq.GetRetryCount(ctx)
	logger := slog.With("task_type", t.Type(), "retry", retry)

	p, err := tasks.ParseContributionReceived(t)
	if err != nil {
		observability.EmailJobsTotal.WithLabelValues("deliver", "invalid").Inc()
		logger.ErrorContext(ctx, "invalid contribution email payload", "err", err)
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	logger = logger.With("contribution_id", p.ContributionID, "gift_id", p.GiftID)

	owner, err := h.users.GetByID(ctx, p.OwnerID)
	if err != nil {
		if models.IsNotFound(err) {
			observability.EmailJobsTotal.WithLabelValues("deliver", "skipped").Inc()
			logger.WarnContext(ctx, "gift owner no longer exists")
			return fmt.Errorf("owner %s: %w", p.OwnerID, asynq.SkipRetry)
		}
		observability.EmailJobsTotal.WithLabelValues("deliver", "error").Inc()
		return fmt.Errorf("load owner %s: %w", p.OwnerID, err)
	}

	if err := h.mailer.Send(ctx, RenderContributionEmail(h.from, owner, p)); err != nil {
		observability.EmailJobsTotal.WithLabelValues("deliver", "error").Inc()
		logger.ErrorContext(ctx, "failed to send contribution email", "err", err)
		return fmt.Errorf("send contribution email: %w", err)
	}

	observability.EmailJobsTotal.WithLabelValues("deliver", "ok").Inc()
	logger.InfoContext(ctx, "contribution email delivered")
	return nil
}

// RenderContributionEmail builds the owner's notification. The contributor is not named.
func RenderContributionEmail(from string, owner *models.User, p tasks.ContributionReceivedPayload) Message {
	body := fmt.Sprintf("Hola %s,\n\nAlguien ha aportado %s€ a %s. Faltan %s€.\n",
		owner.Name,
		p.Amount.StringFixed(models.MoneyPlaces),
		p.GiftName,
		p.Remaining.StringFixed(models.MoneyPlaces),
	)
	if p.Remaining.IsZero() {
		body += "\n¡El regalo ya está completo!\n"
	}
	return Message{
		From:    from,
		To:      owner.Email,
		Subject: "¡Nueva aportación!",
		Body:    body,
	}
}
