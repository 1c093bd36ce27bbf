package worker

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/makkenzo/prospect-enrichment-api/internal/config"
	"github.com/makkenzo/prospect-enrichment-api/internal/metrics"
	"github.com/makkenzo/prospect-enrichment-api/internal/tasks"
	"go.uber.org/zap"
)

type Deps struct {
	Prospects tasks.ProspectEnricher
	PoolStats tasks.PoolStatsProvider
	Metrics   *metrics.Metrics
}

func RedisConnOpt(cfg *config.RedisConfig) asynq.RedisClientOpt {
	return asynq.RedisClientOpt{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	}
}

// NewServeMux routes every task type to its handler.
func NewServeMux(deps Deps, logger *zap.Logger) *asynq.ServeMux {
	mux := asynq.NewServeMux()

	enrichHandler := tasks.NewEnrichProspectHandler(deps.Prospects, logger)
	mux.HandleFunc(tasks.TypeProspectEnrich, enrichHandler.ProcessTask)

	reportHandler := tasks.NewPoolReportHandler(deps.PoolStats, deps.Metrics, logger)
	mux.HandleFunc(tasks.TypeAPIKeyPoolReport, reportHandler.ProcessTask)

	return mux
}

// RunWorkers runs the task server and the periodic scheduler until ctx is
// cancelled or either of them fails.
func RunWorkers(ctx context.Context, cfg *config.Config, deps Deps, logger *zap.Logger) error {
	redisConnOpts := RedisConnOpt(&cfg.Redis)
	errChan := make(chan error, 2)

	concurrency := cfg.Worker.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}

	srv := asynq.NewServer(
		redisConnOpts,
		asynq.Config{
			Concurrency: concurrency,
			Queues: map[string]int{
				tasks.QueueDefault: 3,
				tasks.QueueLow:     1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				log := logger.Named("AsynqServerErrorHandler")
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				log.Error("Asynq task processing failed",
					zap.String("task_type", task.Type()),
					zap.ByteString("payload", task.Payload()),
					zap.Int("retried", retried),
					zap.Int("max_retry", maxRetry),
					zap.Error(err),
				)
			}),
			Logger: NewAsynqLoggerAdapter(logger.Named("AsynqServer")),
		},
	)

	mux := NewServeMux(deps, logger)

	go func() {
		logger.Info("Starting Asynq Server...", zap.Int("concurrency", concurrency))
		if err := srv.Run(mux); err != nil {
			logger.Error("Asynq Server run failed", zap.Error(err))
			errChan <- fmt.Errorf("asynq server error: %w", err)
		}
	}()

	scheduler := asynq.NewScheduler(
		redisConnOpts,
		&asynq.SchedulerOpts{
			Logger: NewAsynqLoggerAdapter(logger.Named("AsynqScheduler")),
		},
	)

	reportTask, err := tasks.NewPoolReportTask()
	if err != nil {
		srv.Shutdown()
		return fmt.Errorf("scheduler task creation error: %w", err)
	}
	schedule := cfg.Worker.PoolReportSchedule
	entryID, err := scheduler.Register(schedule, reportTask)
	if err != nil {
		srv.Shutdown()
		return fmt.Errorf("scheduler registration error: %w", err)
	}
	logger.Info("Registered periodic key pool report", zap.String("entry_id", entryID), zap.String("schedule", schedule))

	go func() {
		logger.Info("Starting Asynq Scheduler...")
		if err := scheduler.Run(); err != nil {
			logger.Error("Asynq Scheduler run failed", zap.Error(err))
			errChan <- fmt.Errorf("asynq scheduler error: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errChan:
	}

	logger.Info("Shutting down Asynq Scheduler...")
	scheduler.Shutdown()
	logger.Info("Asynq Scheduler stopped.")

	logger.Info("Shutting down Asynq Server...")
	srv.Shutdown()
	logger.Info("Asynq Server stopped.")

	return runErr
}

type asynqLoggerAdapter struct {
	logger *zap.Logger
}

func NewAsynqLoggerAdapter(logger *zap.Logger) *asynqLoggerAdapter {
	return &asynqLoggerAdapter{logger: logger.WithOptions(zap.AddCallerSkip(1))}
}

func (l *asynqLoggerAdapter) Debug(args ...interface{}) {
	l.logger.Debug(fmt.Sprint(args...))
}
func (l *asynqLoggerAdapter) Info(args ...interface{}) {
	l.logger.Info(fmt.Sprint(args...))
}
func (l *asynqLoggerAdapter) Warn(args ...interface{}) {
	l.logger.Warn(fmt.Sprint(args...))
}
func (l *asynqLoggerAdapter) Error(args ...interface{}) {
	l.logger.Error(fmt.Sprint(args...))
}
func (l *asynqLoggerAdapter) Fatal(args ...interface{}) {
	l.logger.Fatal(fmt.Sprint(args...))
}
