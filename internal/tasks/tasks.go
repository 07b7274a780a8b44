// Package tasks defines the background jobs the API enqueues on asynq.
package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"giftpool/internal/cache"
	"giftpool/internal/featureflags"
	"giftpool/internal/ledger"
	"giftpool/internal/observability"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
)

// TypeContributionReceived emails a gift's owner about a new pledge.
const TypeContributionReceived = "email:contribution_received"

const (
	QueueDefault = "default"
	emailRetries = 5
)

// RedisConnOpt turns a REDIS_URL value into asynq connection options.
func RedisConnOpt(redisURL string) (asynq.RedisClientOpt, error) {
	opts, err := cache.ParseOptions(redisURL)
	if err != nil {
		return asynq.RedisClientOpt{}, fmt.Errorf("parse redis url: %w", err)
	}
	return asynq.RedisClientOpt{
		Addr:      opts.Addr,
		Username:  opts.Username,
		Password:  opts.Password,
		DB:        opts.DB,
		TLSConfig: opts.TLSConfig,
	}, nil
}

// ContributionReceivedPayload carries what the email needs. The contributor stays
// anonymous to the owner, so only their id travels for de-duplication.
type ContributionReceivedPayload struct {
	ContributionID string          `json:"contribution_id"`
	GiftID         string          `json:"gift_id"`
	GiftName       string          `json:"gift_name"`
	OwnerID        string          `json:"owner_id"`
	ContributorID  string          `json:"contributor_id"`
	Amount         decimal.Decimal `json:"amount"`
	Remaining      decimal.Decimal `json:"remaining"`
	At             time.Time       `json:"at"`
}

func NewContributionReceivedTask(p ContributionReceivedPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", TypeContributionReceived, err)
	}
	return asynq.NewTask(TypeContributionReceived, payload,
		asynq.MaxRetry(emailRetries),
		asynq.Queue(QueueDefault),
		asynq.TaskID("contribution-email:"+p.ContributionID),
	), nil
}

// ParseContributionReceived decodes and checks a task payload.
func ParseContributionReceived(t *asynq.Task) (ContributionReceivedPayload, error) {
	var p ContributionReceivedPayload
	if err := json.Unmarshal(t.Payload(), &p); err != nil {
		return p, err
	}
	if p.ContributionID == "" || p.OwnerID == "" {
		return p, fmt.Errorf("%s payload is missing ids", TypeContributionReceived)
	}
	return p, nil
}

// Enqueuer is satisfied by *asynq.Client.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// FlagEvaluator is satisfied by *featureflags.Manager.
type FlagEvaluator interface {
	Enabled(name string, userID string) bool
}

// PresenceChecker is satisfied by *notifications.Hub.
type PresenceChecker interface {
	IsOnline(ctx context.Context, userID string) bool
}

// OnlineOwnerDelay holds back the email for owners who are connected and already saw
// the realtime notice.
const OnlineOwnerDelay = 15 * time.Minute

// EmailEnqueuer queues an email to the gift's owner for every accepted pledge.
type EmailEnqueuer struct {
	client   Enqueuer
	flags    FlagEvaluator
	presence PresenceChecker
}

func NewEmailEnqueuer(client Enqueuer, flags FlagEvaluator, presence PresenceChecker) *EmailEnqueuer {
	return &EmailEnqueuer{client: client, flags: flags, presence: presence}
}

var _ ledger.Observer = (*EmailEnqueuer)(nil)

func (e *EmailEnqueuer) ContributionAdded(ctx context.Context, ev ledger.ContributionEvent) error {
	if ev.OwnerID == "" || ev.OwnerID == ev.ContributorID {
		return nil
	}
	if e.flags != nil && !e.flags.Enabled(featureflags.ContributionEmails, ev.OwnerID) {
		return nil
	}

	task, err := NewContributionReceivedTask(ContributionReceivedPayload{
		ContributionID: ev.ContributionID,
		GiftID:         ev.GiftID,
		GiftName:       ev.GiftName,
		OwnerID:        ev.OwnerID,
		ContributorID:  ev.ContributorID,
		Amount:         ev.Amount,
		Remaining:      ev.Remaining,
		At:             ev.At,
	})
	if err != nil {
		return err
	}

	var opts []asynq.Option
	if e.presence != nil && e.presence.IsOnline(ctx, ev.OwnerID) {
		opts = append(opts, asynq.ProcessIn(OnlineOwnerDelay))
	}

	if _, err := e.client.EnqueueContext(ctx, task, opts...); err != nil && !errors.Is(err, asynq.ErrTaskIDConflict) {
		observability.EmailJobsTotal.WithLabelValues("enqueue", "error").Inc()
		return fmt.Errorf("enqueue %s: %w", TypeContributionReceived, err)
	}
	observability.EmailJobsTotal.WithLabelValues("enqueue", "ok").Inc()
	return nil
}
