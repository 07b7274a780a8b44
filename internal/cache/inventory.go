package cache

import (
	"context"
	"time"
)

const (
	UserKeyPrefix      = "user:"
	WSTicketPrefix     = "ws_ticket:"
	RevokedTokenPrefix = "blacklist:"
)

const (
	UserTTL     = 5 * time.Minute
	WSTicketTTL = 60 * time.Second
)

func UserKey(userID string) string {
	return UserKeyPrefix + userID
}

func WSTicketKey(ticket string) string {
	return WSTicketPrefix + ticket
}

func RevokedTokenKey(jti string) string {
	return RevokedTokenPrefix + jti
}

func Invalidate(ctx context.Context, key string) {
	if client != nil {
		client.Del(ctx, key)
	}
}

func InvalidateUser(ctx context.Context, userID string) {
	Invalidate(ctx, UserKey(userID))
}
