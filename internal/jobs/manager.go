package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"
)

// Manager describes the minimal queue operations needed by the application.
type Manager interface {
	Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	EnqueueReconcile(ctx context.Context, terminalIDs ...string) (string, error)
	Close() error
}

type manager struct {
	client *asynq.Client
	log    *slog.Logger
}

// NewManager builds a Manager backed by an asynq client.
func NewManager(redisOpt asynq.RedisConnOpt, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		client: asynq.NewClient(redisOpt),
		log:    log,
	}
}

func (m *manager) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return m.client.EnqueueContext(ctx, task, opts...)
}

// EnqueueReconcile queues a vault reconciliation and returns the task id.
func (m *manager) EnqueueReconcile(ctx context.Context, terminalIDs ...string) (string, error) {
	task, err := NewReconcileTask(terminalIDs...)
	if err != nil {
		return "", err
	}

	info, err := m.Enqueue(ctx, task)
	if err != nil {
		return "", fmt.Errorf("enqueue reconcile: %w", err)
	}

	m.log.InfoContext(ctx, "reconcile enqueued", slog.String("task_id", info.ID), slog.Int("terminals", len(terminalIDs)))
	return info.ID, nil
}

func (m *manager) Close() error {
	return m.client.Close()
}
