// Package worker runs the asynq server that processes background jobs.
package worker

import (
	"context"
	"errors"
	"log/slog"

	"giftpool/internal/tasks"

	"github.com/hibiken/asynq"
)

const defaultConcurrency = 10

// WorkerServer owns the asynq server and its handlers.
type WorkerServer struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *slog.Logger
}

func NewWorkerServer(redisOpt asynq.RedisConnOpt, concurrency int, emails *ContributionEmailHandler, logger *slog.Logger) *WorkerServer {
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	log := logger.With("component", "worker_server")

	server := asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			tasks.QueueDefault: 1,
		},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			retried, _ := asynq.GetRetryCount(ctx)
			maxRetry, _ := asynq.GetMaxRetry(ctx)
			log.ErrorContext(ctx, "task failed",
				"task_type", task.Type(),
				"retries", retried,
				"max_retry", maxRetry,
				"err", err)
		}),
	})

	return &WorkerServer{server: server, mux: NewServeMux(emails), log: log}
}

// NewServeMux routes every task type the worker understands.
func NewServeMux(emails *ContributionEmailHandler) *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(tasks.TypeContributionReceived, emails)
	return mux
}

// Start begins processing tasks in the background. Call Shutdown to stop.
func (ws *WorkerServer) Start() error {
	ws.log.Info("worker server starting")
	if err := ws.server.Start(ws.mux); err != nil && !errors.Is(err, asynq.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown waits for in-flight tasks and stops the server.
func (ws *WorkerServer) Shutdown() {
	ws.log.Info("shutting down worker server")
	ws.server.Shutdown()
	ws.log.Info("worker server stopped")
}
