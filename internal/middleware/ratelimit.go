package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

// FailPolicy decides what happens to a request when Redis cannot be reached.
type FailPolicy int

const (
	FailOpen FailPolicy = iota
	FailClosed
)

// Rule is one named quota, e.g. 20 contributions per minute.
type Rule struct {
	Name   string
	Limit  int
	Window time.Duration
	Policy FailPolicy
}

var fixedWindowScript = redis.NewScript(`
local count = redis.call("INCR", KEYS[1])
if count == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
return count
`)

// Limiter enforces fixed-window quotas in Redis. Windows are aligned to the clock, so
// every instance agrees on which window a request falls in.
type Limiter struct {
	rdb     *redis.Client
	enabled bool
	now     func() time.Time
}

// NewLimiter returns a limiter for env. Limits are off in development, test and stress
// environments.
func NewLimiter(rdb *redis.Client, env string) *Limiter {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "", "development", "dev", "test", "stress":
		return &Limiter{rdb: rdb, now: time.Now}
	}
	return &Limiter{rdb: rdb, enabled: true, now: time.Now}
}

// Decision is the outcome of Allow.
type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

// Allow counts one hit for id under rule.
func (l *Limiter) Allow(ctx context.Context, rule Rule, id string) (Decision, error) {
	if !l.enabled {
		return Decision{Allowed: true, Remaining: rule.Limit}, nil
	}
	if l.rdb == nil {
		return Decision{}, errors.New("rate limiter has no redis client")
	}
	windowMs := rule.Window.Milliseconds()
	if rule.Limit <= 0 || windowMs <= 0 {
		return Decision{}, fmt.Errorf("rate limit %q needs a positive limit and window", rule.Name)
	}

	nowMs := l.now().UnixMilli()
	slot := nowMs / windowMs
	key := fmt.Sprintf("rl:%s:%s:%d", rule.Name, id, slot)

	count, err := fixedWindowScript.Run(ctx, l.rdb, []string{key}, windowMs).Int64()
	if err != nil {
		return Decision{}, err
	}

	d := Decision{
		Allowed:   count <= int64(rule.Limit),
		Remaining: max(0, rule.Limit-int(count)),
	}
	if !d.Allowed {
		d.RetryAfter = time.Duration((slot+1)*windowMs-nowMs) * time.Millisecond
	}
	return d, nil
}

// Handler enforces rule per authenticated user, or per client IP before login.
func (l *Limiter) Handler(rule Rule) fiber.Handler {
	return func(c *fiber.Ctx) error {
		ctx := c.UserContext()

		id := "ip:" + c.IP()
		if uid, ok := c.Locals("userID").(string); ok && uid != "" {
			id = "user:" + uid
		}

		d, err := l.Allow(ctx, rule, id)
		if err != nil {
			Logger.WarnContext(ctx, "rate limit unavailable",
				slog.String("rule", rule.Name),
				slog.Bool("fail_closed", rule.Policy == FailClosed),
				slog.String("error", err.Error()))
			if rule.Policy == FailClosed {
				return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "rate limit unavailable"})
			}
			return c.Next()
		}

		if l.enabled {
			c.Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
			c.Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
		}
		if !d.Allowed {
			c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(math.Ceil(d.RetryAfter.Seconds()))))
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "rate limit exceeded"})
		}
		return c.Next()
	}
}
