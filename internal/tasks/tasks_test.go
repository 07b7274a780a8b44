package tasks

import (
	"context"
	"errors"
	"testing"
	"time"

	"giftpool/internal/featureflags"
	"giftpool/internal/ledger"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type enqueuerStub struct {
	tasks []*asynq.Task
	opts  [][]asynq.Option
	err   error
}

func (s *enqueuerStub) EnqueueContext(_ context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	s.tasks = append(s.tasks, task)
	s.opts = append(s.opts, opts)
	if s.err != nil {
		return nil, s.err
	}
	return &asynq.TaskInfo{Type: task.Type(), Queue: QueueDefault}, nil
}

type onlineUsers map[string]bool

func (o onlineUsers) IsOnline(_ context.Context, userID string) bool { return o[userID] }

func event() ledger.ContributionEvent {
	return ledger.ContributionEvent{
		ContributionID: "c1",
		GiftID:         "g1",
		GiftName:       "Bicicleta",
		OwnerID:        "owner",
		ContributorID:  "friend",
		Amount:         decimal.RequireFromString("40"),
		Remaining:      decimal.RequireFromString("30"),
		At:             time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestEmailEnqueuer_EnqueuesForTheOwner(t *testing.T) {
	t.Parallel()
	client := &enqueuerStub{}
	e := NewEmailEnqueuer(client, featureflags.NewManager("contribution_emails=on"), onlineUsers{})

	require.NoError(t, e.ContributionAdded(context.Background(), event()))
	require.Len(t, client.tasks, 1)
	assert.Equal(t, TypeContributionReceived, client.tasks[0].Type())

	p, err := ParseContributionReceived(client.tasks[0])
	require.NoError(t, err)
	assert.Equal(t, "owner", p.OwnerID)
	assert.Equal(t, "Bicicleta", p.GiftName)
	assert.True(t, p.Remaining.Equal(decimal.NewFromInt(30)))
	assert.Empty(t, client.opts[0], "offline owners are emailed right away")
}

func TestEmailEnqueuer_DelaysForOnlineOwner(t *testing.T) {
	t.Parallel()
	client := &enqueuerStub{}
	e := NewEmailEnqueuer(client, nil, onlineUsers{"owner": true})

	require.NoError(t, e.ContributionAdded(context.Background(), event()))
	require.Len(t, client.opts, 1)
	require.Len(t, client.opts[0], 1)
	assert.Equal(t, asynq.ProcessInOpt, client.opts[0][0].Type())
	assert.Equal(t, OnlineOwnerDelay, client.opts[0][0].Value())
}

func TestEmailEnqueuer_Skips(t *testing.T) {
	t.Parallel()

	t.Run("flag off", func(t *testing.T) {
		t.Parallel()
		client := &enqueuerStub{}
		e := NewEmailEnqueuer(client, featureflags.NewManager(""), nil)
		require.NoError(t, e.ContributionAdded(context.Background(), event()))
		assert.Empty(t, client.tasks)
	})

	t.Run("owner contributing to their own gift", func(t *testing.T) {
		t.Parallel()
		client := &enqueuerStub{}
		e := NewEmailEnqueuer(client, nil, nil)
		ev := event()
		ev.ContributorID = ev.OwnerID
		require.NoError(t, e.ContributionAdded(context.Background(), ev))
		assert.Empty(t, client.tasks)
	})
}

func TestEmailEnqueuer_Errors(t *testing.T) {
	t.Parallel()

	boom := errors.New("redis down")
	e := NewEmailEnqueuer(&enqueuerStub{err: boom}, nil, nil)
	assert.ErrorIs(t, e.ContributionAdded(context.Background(), event()), boom)

	dup := NewEmailEnqueuer(&enqueuerStub{err: asynq.ErrTaskIDConflict}, nil, nil)
	assert.NoError(t, dup.ContributionAdded(context.Background(), event()))
}

func TestParseContributionReceived_Invalid(t *testing.T) {
	t.Parallel()
	_, err := ParseContributionReceived(asynq.NewTask(TypeContributionReceived, []byte("{not json")))
	assert.Error(t, err)

	_, err = ParseContributionReceived(asynq.NewTask(TypeContributionReceived, []byte(`{"gift_id":"g1"}`)))
	assert.Error(t, err)
}

func TestRedisConnOpt(t *testing.T) {
	t.Parallel()

	opt, err := RedisConnOpt("redis://:s3cret@cache.internal:6380/2")
	require.NoError(t, err)
	assert.Equal(t, "cache.internal:6380", opt.Addr)
	assert.Equal(t, "s3cret", opt.Password)
	assert.Equal(t, 2, opt.DB)

	opt, err = RedisConnOpt("localhost:6379")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", opt.Addr)

	_, err = RedisConnOpt("redis://host:6379/not-a-db")
	assert.Error(t, err)
}
