package notifications

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"giftpool/internal/ledger"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sentEvent struct {
	userID string
	event  Event
}

type publisherStub struct {
	sent       []sentEvent
	broadcasts []Event
	publishFn  func(userID string) error
}

func (p *publisherStub) PublishBroadcastEvent(_ context.Context, e Event) error {
	p.broadcasts = append(p.broadcasts, e)
	return nil
}

func (p *publisherStub) PublishUserEvent(_ context.Context, userID string, e Event) error {
	p.sent = append(p.sent, sentEvent{userID: userID, event: e})
	if p.publishFn != nil {
		return p.publishFn(userID)
	}
	return nil
}

func contributionEvent() ledger.ContributionEvent {
	return ledger.ContributionEvent{
		ContributionID:  "c1",
		GiftID:          "g1",
		GiftName:        "Bicicleta",
		OwnerID:         "owner",
		ContributorID:   "friend",
		ContributorName: "Lucía",
		Amount:          decimal.RequireFromString("40"),
		Remaining:       decimal.RequireFromString("30"),
		Percentage:      decimal.RequireFromString("70"),
		At:              time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestRealtimeObserver_NotifiesContributorAndOwner(t *testing.T) {
	t.Parallel()
	pub := &publisherStub{}
	obs := NewRealtimeObserver(pub)

	require.NoError(t, obs.ContributionAdded(context.Background(), contributionEvent()))
	require.Len(t, pub.sent, 2)

	mine := pub.sent[0]
	assert.Equal(t, "friend", mine.userID)
	assert.Equal(t, EventContributionAdded, mine.event.Type)
	assert.Equal(t, SeveritySuccess, mine.event.Severity)
	minePayload := mine.event.Payload.(ContributionPayload)
	assert.Equal(t, "Bicicleta", minePayload.GiftName)
	assert.True(t, minePayload.Remaining.Equal(decimal.NewFromInt(30)))

	owner := pub.sent[1]
	assert.Equal(t, "owner", owner.userID)
	assert.Equal(t, SeverityInfo, owner.event.Severity)
	ownerPayload := owner.event.Payload.(ContributionPayload)
	assert.Equal(t, "Alguien ha aportado a Bicicleta. Faltan 30.00€.", ownerPayload.Message)
	assert.NotContains(t, ownerPayload.Message, "Lucía")
}

func TestRealtimeObserver_SelfContributionSendsOnce(t *testing.T) {
	t.Parallel()
	pub := &publisherStub{}
	e := contributionEvent()
	e.ContributorID = e.OwnerID

	require.NoError(t, NewRealtimeObserver(pub).ContributionAdded(context.Background(), e))
	require.Len(t, pub.sent, 1)
	assert.Equal(t, SeveritySuccess, pub.sent[0].event.Severity)
	assert.Len(t, pub.broadcasts, 1, "other users still hear about it")
}

func TestRealtimeObserver_BroadcastsAnonymousActivity(t *testing.T) {
	t.Parallel()
	pub := &publisherStub{}

	require.NoError(t, NewRealtimeObserver(pub).ContributionAdded(context.Background(), contributionEvent()))
	require.Len(t, pub.broadcasts, 1)

	e := pub.broadcasts[0]
	assert.Equal(t, EventContributionAdded, e.Type)
	assert.Equal(t, SeverityInfo, e.Severity)
	payload := e.Payload.(GiftActivityPayload)
	assert.Equal(t, "g1", payload.GiftID)
	assert.Equal(t, "Bicicleta", payload.GiftName)
	assert.True(t, payload.Remaining.Equal(decimal.NewFromInt(30)))
	assert.Equal(t, "Alguien ha aportado a Bicicleta. Faltan 30.00€.", payload.Message)

	raw, err := json.Marshal(e)
	require.NoError(t, err)
	for _, leak := range []string{"friend", "Lucía", "c1", "contributor", "contribution_id"} {
		assert.NotContains(t, string(raw), leak)
	}
}

func TestRealtimeObserver_KeepsGoingAfterAFailure(t *testing.T) {
	t.Parallel()
	boom := errors.New("redis down")
	pub := &publisherStub{publishFn: func(userID string) error {
		if userID == "friend" {
			return boom
		}
		return nil
	}}

	err := NewRealtimeObserver(pub).ContributionAdded(context.Background(), contributionEvent())
	assert.ErrorIs(t, err, boom)
	assert.Len(t, pub.sent, 2, "the owner is still notified")
}
