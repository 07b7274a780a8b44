// Package bootstrap prepares the database and Redis for a process that serves the API.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"giftpool/internal/cache"
	"giftpool/internal/config"
	"giftpool/internal/database"
	"giftpool/internal/middleware"
	"giftpool/internal/models"
	"giftpool/internal/repository"
	"giftpool/internal/seed"
	"giftpool/internal/service"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

const demoName = "Demo"

// Options control runtime initialization behavior.
type Options struct {
	// SeedPreset names a seed preset applied in development when the database has no gifts.
	SeedPreset string
}

// InitRuntime connects to the database, applies the schema and connects Redis.
// The Redis client is nil when Redis is not configured or unreachable.
func InitRuntime(ctx context.Context, cfg *config.Config, opts Options) (*gorm.DB, *redis.Client, error) {
	db, err := database.Connect(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("database connection failed: %w", err)
	}

	if err := database.ApplySchema(ctx, db, cfg); err != nil {
		return nil, nil, fmt.Errorf("schema: %w", err)
	}

	r, err := cache.Connect(ctx, cfg.RedisURL)
	if err != nil {
		middleware.Logger.Warn("continuing without Redis", slog.String("error", err.Error()))
		r = nil
	}
	cache.Use(r)

	store := repository.NewStore(db)
	if err := EnsureDemoAccount(ctx, cfg, service.NewAuthService(store.Users())); err != nil {
		return nil, nil, fmt.Errorf("failed to bootstrap demo account: %w", err)
	}

	if opts.SeedPreset != "" && isDevelopment(cfg) {
		if err := seedIfEmpty(ctx, store, opts.SeedPreset); err != nil {
			return nil, nil, fmt.Errorf("seed preset %s: %w", opts.SeedPreset, err)
		}
	}

	return db, r, nil
}

func isDevelopment(cfg *config.Config) bool {
	return cfg != nil && (cfg.Env == "" || strings.EqualFold(cfg.Env, "development"))
}

// EnsureDemoAccount registers the DEV_DEMO_EMAIL account in development. It is a no-op
// when the account exists or the demo credentials are not set.
func EnsureDemoAccount(ctx context.Context, cfg *config.Config, auth *service.AuthService) error {
	if !isDevelopment(cfg) || auth == nil {
		return nil
	}
	email := strings.TrimSpace(cfg.DevDemoEmail)
	if email == "" {
		return nil
	}
	if cfg.DevDemoPassword == "" {
		return fmt.Errorf("DEV_DEMO_PASSWORD must be set when DEV_DEMO_EMAIL is")
	}

	user, err := auth.Register(ctx, service.RegisterInput{
		Name:     demoName,
		Email:    email,
		Password: cfg.DevDemoPassword,
	})
	switch {
	case models.ErrorCode(err) == models.CodeDuplicateEmail:
		return nil
	case err != nil:
		return err
	}

	middleware.Logger.Info("demo account created", slog.String("email", user.Email))
	return nil
}

func seedIfEmpty(ctx context.Context, store repository.Store, preset string) error {
	gifts, err := store.Gifts().List(ctx)
	if err != nil {
		return err
	}
	if len(gifts) > 0 {
		return nil
	}
	sum, err := seed.NewSeeder(store, false).ApplyPreset(ctx, preset, "")
	if err != nil {
		return err
	}
	middleware.Logger.Info("seed preset applied",
		slog.String("preset", preset),
		slog.Int("users", sum.Users),
		slog.Int("gifts", sum.Gifts),
		slog.Int("contributions", sum.Contributions))
	return nil
}
