package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"giftpool/internal/cache"
	"giftpool/internal/models"
	"giftpool/internal/notifications"
	"giftpool/internal/observability"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// localTickets holds websocket tickets when Redis is not configured.
type localTickets struct {
	mu      sync.Mutex
	tickets map[string]localTicket
}

type localTicket struct {
	userID    string
	expiresAt time.Time
}

var devTickets = &localTickets{tickets: make(map[string]localTicket)}

func (t *localTickets) put(ticket, userID string, ttl time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := time.Now()
	for k, v := range t.tickets {
		if now.After(v.expiresAt) {
			delete(t.tickets, k)
		}
	}
	t.tickets[ticket] = localTicket{userID: userID, expiresAt: now.Add(ttl)}
}

func (t *localTickets) take(ticket string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	v, ok := t.tickets[ticket]
	delete(t.tickets, ticket)
	if !ok || time.Now().After(v.expiresAt) {
		return "", false
	}
	return v.userID, true
}

// IssueWSTicket handles POST /api/ws/ticket
// @Summary Websocket ticket
// @Description Issue a single-use ticket for opening /api/ws, valid for 60 seconds
// @Tags realtime
// @Produce json
// @Security BearerAuth
// @Success 200 {object} object{ticket=string,expires_in=int}
// @Router /ws/ticket [post]
func (s *Server) IssueWSTicket(c *fiber.Ctx) error {
	userID := currentUserID(c)
	ticket := uuid.NewString()

	if s.redis != nil {
		if err := s.redis.Set(c.UserContext(), cache.WSTicketKey(ticket), userID, cache.WSTicketTTL).Err(); err != nil {
			observability.RedisErrorRate.WithLabelValues("ws_ticket").Inc()
			return respondServiceError(c, models.NewInternalError(err))
		}
	} else {
		devTickets.put(ticket, userID, cache.WSTicketTTL)
	}

	return c.JSON(fiber.Map{
		"ticket":     ticket,
		"expires_in": int(cache.WSTicketTTL.Seconds()),
	})
}

// consumeWSTicket resolves and deletes ticket in one step.
func (s *Server) consumeWSTicket(ctx context.Context, ticket string) (string, bool) {
	if s.redis == nil {
		return devTickets.take(ticket)
	}
	userID, err := s.redis.GetDel(ctx, cache.WSTicketKey(ticket)).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			observability.RedisErrorRate.WithLabelValues("ws_ticket").Inc()
		}
		return "", false
	}
	return userID, userID != ""
}

// WebsocketHandler handles GET /api/ws and streams the caller's notifications.
func (s *Server) WebsocketHandler() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		userID, _ := conn.Locals("userID").(string)
		if userID == "" {
			_ = conn.Close()
			return
		}

		client, err := s.hub.Register(userID, conn)
		if err != nil {
			slog.Warn("websocket register failed", "user_id", userID, "err", err)
			msg, _ := json.Marshal(notifications.Event{
				Type:     "error",
				Severity: notifications.SeverityError,
				Payload:  err.Error(),
			})
			_ = conn.WriteMessage(websocket.TextMessage, msg)
			_ = conn.Close()
			return
		}

		client.Serve()
	})
}
