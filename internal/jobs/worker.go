package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// WorkerConfig collects what the worker needs to start.
type WorkerConfig struct {
	RedisOpts   asynq.RedisClientOpt
	Queue       string
	Concurrency int
	// WeeklySpec schedules the previous-week fan-out, e.g. "0 3 * * MON".
	// Empty disables the schedule.
	WeeklySpec string
	MaxRetry   int
	Recompute  *RecomputeHandler
	Dispatcher *Dispatcher
	Logger     *zap.Logger
}

// Worker wraps the asynq server and the weekly scheduler.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	scheduler *asynq.Scheduler
	logger    *zap.Logger
}

// NewWorker builds the server, registers handlers and the weekly cron.
func NewWorker(cfg WorkerConfig) (*Worker, error) {
	if cfg.Recompute == nil || cfg.Dispatcher == nil {
		return nil, errors.New("jobs: recompute handler and dispatcher are required")
	}
	srv := asynq.NewServer(cfg.RedisOpts, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{cfg.Queue: 1},
		ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
			cfg.Logger.Warn("task failed",
				zap.String("type", task.Type()),
				zap.ByteString("payload", task.Payload()),
				zap.Error(err))
		}),
	})

	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskRecompute, cfg.Recompute.Handle)
	mux.HandleFunc(TaskRecomputeWeek, cfg.Dispatcher.HandleRecomputeWeek)

	var scheduler *asynq.Scheduler
	if cfg.WeeklySpec != "" {
		task, err := NewRecomputeWeekTask(RecomputeWeekPayload{})
		if err != nil {
			return nil, err
		}
		scheduler = asynq.NewScheduler(cfg.RedisOpts, &asynq.SchedulerOpts{Location: time.UTC})
		if _, err := scheduler.Register(cfg.WeeklySpec, task, asynq.Queue(cfg.Queue), asynq.MaxRetry(cfg.MaxRetry)); err != nil {
			return nil, err
		}
	}

	return &Worker{server: srv, mux: mux, scheduler: scheduler, logger: cfg.Logger}, nil
}

// Run processes tasks until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.server.Start(w.mux); err != nil {
		return err
	}
	if w.scheduler != nil {
		if err := w.scheduler.Start(); err != nil {
			w.server.Shutdown()
			return err
		}
	}

	<-ctx.Done()
	w.logger.Info("Stopping worker")
	if w.scheduler != nil {
		w.scheduler.Shutdown()
	}
	w.server.Shutdown()
	return nil
}
