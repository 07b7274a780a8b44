package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"runtime/debug"

	"giftpool/internal/observability"

	"github.com/redis/go-redis/v9"
)

const (
	userChannelPrefix = "notifications:user:"
	// BroadcastChannel reaches every connected user.
	BroadcastChannel = "notifications:broadcast"
)

// Severities tell clients how to render an event.
const (
	SeveritySuccess = "success"
	SeverityError   = "error"
	SeverityInfo    = "info"
	SeverityWarning = "warning"
)

// EventConnected is the first frame written to every notification socket.
const EventConnected = "connected"

// Event is the JSON envelope written to sockets.
type Event struct {
	Type     string `json:"type"`
	Severity string `json:"severity,omitempty"`
	Payload  any    `json:"payload"`
}

// Notifier publishes events. With Redis every API instance receives them through
// Hub.StartWiring; without Redis they go straight to the local hub.
type Notifier struct {
	rdb   *redis.Client
	local *Hub
}

func NewNotifier(rdb *redis.Client, local *Hub) *Notifier {
	return &Notifier{rdb: rdb, local: local}
}

// UserChannel is the Redis channel for one user's events.
func UserChannel(userID string) string {
	return userChannelPrefix + userID
}

// PublishUser sends payload to every socket of userID.
func (n *Notifier) PublishUser(ctx context.Context, userID string, payload string) error {
	if n.rdb == nil {
		if n.local != nil {
			n.local.Broadcast(userID, payload)
		}
		return nil
	}
	if err := n.rdb.Publish(ctx, UserChannel(userID), payload).Err(); err != nil {
		observability.RedisErrorRate.WithLabelValues("publish").Inc()
		return fmt.Errorf("publish to user %s: %w", userID, err)
	}
	return nil
}

// PublishBroadcast sends payload to every connected user.
func (n *Notifier) PublishBroadcast(ctx context.Context, payload string) error {
	if n.rdb == nil {
		if n.local != nil {
			n.local.BroadcastAll(payload)
		}
		return nil
	}
	if err := n.rdb.Publish(ctx, BroadcastChannel, payload).Err(); err != nil {
		observability.RedisErrorRate.WithLabelValues("publish").Inc()
		return fmt.Errorf("publish broadcast: %w", err)
	}
	return nil
}

// PublishUserEvent marshals e and publishes it to userID.
func (n *Notifier) PublishUserEvent(ctx context.Context, userID string, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	return n.PublishUser(ctx, userID, string(payload))
}

// PublishBroadcastEvent marshals e and publishes it to every connected user.
func (n *Notifier) PublishBroadcastEvent(ctx context.Context, e Event) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", e.Type, err)
	}
	return n.PublishBroadcast(ctx, string(payload))
}

// StartPatternSubscriber subscribes to the user and broadcast channels and calls
// onMessage for each message until ctx is done. It returns once the subscription is
// confirmed.
func (n *Notifier) StartPatternSubscriber(ctx context.Context, onMessage func(channel string, payload string)) error {
	if n.rdb == nil {
		return nil
	}
	sub := n.rdb.PSubscribe(ctx, userChannelPrefix+"*", BroadcastChannel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		observability.RedisErrorRate.WithLabelValues("psubscribe").Inc()
		return fmt.Errorf("subscribe to notifications: %w", err)
	}
	ch := sub.Channel()

	go func() {
		defer func() { _ = sub.Close() }()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				func() {
					defer func() {
						if r := recover(); r != nil {
							slog.Error("panic in notification subscriber", "panic", r, "stack", string(debug.Stack()))
						}
					}()
					onMessage(msg.Channel, msg.Payload)
				}()
			}
		}
	}()

	return nil
}
