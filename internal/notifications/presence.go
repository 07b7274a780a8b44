package notifications

import (
	"context"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"giftpool/internal/observability"

	"github.com/redis/go-redis/v9"
)

const (
	presenceKey = "notifications:presence"

	presenceTTL         = 90 * time.Second
	presenceLinger      = 5 * time.Second
	presenceSweepPeriod = time.Minute
)

// Presence answers "does this user have a notification socket open somewhere".
//
// Sockets on this instance are counted in memory. With Redis, every instance also
// writes the user into one sorted set scored by last activity, so a user counts as
// online while any instance has seen them within presenceTTL. When the last local
// socket closes the entry lingers briefly to absorb page reloads.
type Presence struct {
	rdb *redis.Client
	now func() time.Time

	mu      sync.Mutex
	local   map[string]int
	leaving map[string]*time.Timer
	linger  time.Duration

	stop     chan struct{}
	stopOnce sync.Once
}

func NewPresence(rdb *redis.Client) *Presence {
	p := &Presence{
		rdb:     rdb,
		now:     time.Now,
		local:   make(map[string]int),
		leaving: make(map[string]*time.Timer),
		linger:  presenceLinger,
		stop:    make(chan struct{}),
	}
	if rdb != nil {
		go p.sweepLoop()
	}
	return p
}

// Join records a new socket for userID.
func (p *Presence) Join(ctx context.Context, userID string) {
	p.mu.Lock()
	if t, ok := p.leaving[userID]; ok {
		t.Stop()
		delete(p.leaving, userID)
	}
	p.local[userID]++
	p.mu.Unlock()

	p.Seen(ctx, userID)
}

// Seen refreshes userID's last activity.
func (p *Presence) Seen(ctx context.Context, userID string) {
	if p.rdb == nil {
		return
	}
	score := float64(p.now().UnixMilli())
	if err := p.rdb.ZAdd(ctx, presenceKey, redis.Z{Score: score, Member: userID}).Err(); err != nil {
		observability.RedisErrorRate.WithLabelValues("presence_zadd").Inc()
		slog.WarnContext(ctx, "presence update failed", "user_id", userID, "err", err)
	}
}

// Leave drops one socket for userID. Once none are left the shared entry is removed
// after the linger period unless the user reconnects first.
func (p *Presence) Leave(userID string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	n := p.local[userID]
	if n == 0 {
		return
	}
	if n > 1 {
		p.local[userID] = n - 1
		return
	}
	delete(p.local, userID)

	if p.rdb == nil {
		return
	}
	if t, ok := p.leaving[userID]; ok {
		t.Stop()
	}
	p.leaving[userID] = time.AfterFunc(p.linger, func() { p.forget(userID) })
}

func (p *Presence) forget(userID string) {
	p.mu.Lock()
	delete(p.leaving, userID)
	back := p.local[userID] > 0
	p.mu.Unlock()
	if back {
		return
	}
	if err := p.rdb.ZRem(context.Background(), presenceKey, userID).Err(); err != nil {
		observability.RedisErrorRate.WithLabelValues("presence_zrem").Inc()
	}
}

// IsOnline reports whether userID has a live socket on this or any other instance.
func (p *Presence) IsOnline(ctx context.Context, userID string) bool {
	p.mu.Lock()
	n := p.local[userID]
	p.mu.Unlock()
	if n > 0 {
		return true
	}
	if p.rdb == nil {
		return false
	}

	score, err := p.rdb.ZScore(ctx, presenceKey, userID).Result()
	if err != nil {
		return false
	}
	return p.now().Sub(time.UnixMilli(int64(score))) < presenceTTL
}

// sweep drops entries no instance has refreshed within presenceTTL, e.g. after a crash.
func (p *Presence) sweep(ctx context.Context) (int64, error) {
	cutoff := strconv.FormatInt(p.now().Add(-presenceTTL).UnixMilli(), 10)
	n, err := p.rdb.ZRemRangeByScore(ctx, presenceKey, "-inf", cutoff).Result()
	if err != nil {
		observability.RedisErrorRate.WithLabelValues("presence_sweep").Inc()
	}
	return n, err
}

func (p *Presence) sweepLoop() {
	ticker := time.NewTicker(presenceSweepPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-p.stop:
			return
		case <-ticker.C:
			if n, err := p.sweep(context.Background()); err == nil && n > 0 {
				slog.Debug("swept stale presence", "count", n)
			}
		}
	}
}

// Close stops the sweeper and any pending linger timers.
func (p *Presence) Close() {
	p.stopOnce.Do(func() {
		close(p.stop)
		p.mu.Lock()
		for id, t := range p.leaving {
			t.Stop()
			delete(p.leaving, id)
		}
		p.mu.Unlock()
	})
}
