// Command worker processes background jobs such as contribution emails.
package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"giftpool/internal/config"
	"giftpool/internal/database"
	"giftpool/internal/middleware"
	"giftpool/internal/repository"
	"giftpool/internal/tasks"
	"giftpool/internal/worker"

	"golang.org/x/sync/errgroup"
)

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}

	redisOpt, err := tasks.RedisConnOpt(cfg.RedisURL)
	if err != nil {
		return err
	}

	db, err := database.Connect(cfg)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer func() { _ = sqlDB.Close() }()
	}

	logger := middleware.Logger
	emails := worker.NewContributionEmailHandler(
		repository.NewStore(db).Users(),
		worker.NewLogMailer(logger),
		cfg.MailFrom,
	)
	ws := worker.NewWorkerServer(redisOpt, cfg.WorkerConcurrency, emails, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)
	g.Go(ws.Start)
	g.Go(func() error {
		<-ctx.Done()
		ws.Shutdown()
		return nil
	})
	return g.Wait()
}
