package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

const defaultReconcileSpec = "*/5 * * * *"

type Scheduler interface {
	RegisterTasks() error
	Start() error
	Shutdown()
}

type scheduler struct {
	asynqScheduler *asynq.Scheduler
	reconcileSpec  string
	log            *slog.Logger
}

// NewScheduler builds a cron scheduler. reconcileSpec is a cron expression for the full vault
// reconciliation; empty uses every five minutes.
func NewScheduler(redisOpt asynq.RedisConnOpt, reconcileSpec string, log *slog.Logger) Scheduler {
	if log == nil {
		log = slog.Default()
	}
	if reconcileSpec == "" {
		reconcileSpec = defaultReconcileSpec
	}

	return &scheduler{
		asynqScheduler: asynq.NewScheduler(redisOpt, &asynq.SchedulerOpts{Logger: NewLogger(log)}),
		reconcileSpec:  reconcileSpec,
		log:            log,
	}
}

func (s *scheduler) RegisterTasks() error {
	task, err := NewReconcileTask()
	if err != nil {
		return err
	}

	if _, err := s.asynqScheduler.Register(s.reconcileSpec, task); err != nil {
		return fmt.Errorf("register reconcile task: %w", err)
	}

	s.log.InfoContext(context.Background(), "scheduler: registered vault reconciliation", slog.String("spec", s.reconcileSpec))
	return nil
}

func (s *scheduler) Start() error {
	s.log.InfoContext(context.Background(), "scheduler: starting")
	return s.asynqScheduler.Start()
}

func (s *scheduler) Shutdown() {
	s.log.InfoContext(context.Background(), "scheduler: shutting down")
	s.asynqScheduler.Shutdown()
}
