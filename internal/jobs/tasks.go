package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
)

const (
	TaskTypeReconcileVault = "vault:reconcile"
)

const (
	QueueCritical = "critical"
	QueueDefault  = "default"
	QueueLow      = "low"
)

// Queues maps queue names to their asynq priority weights.
var Queues = map[string]int{
	QueueCritical: 6,
	QueueDefault:  3,
	QueueLow:      1,
}

// ReconcilePayload names the terminals to reconcile; empty means every stored terminal.
type ReconcilePayload struct {
	TerminalIDs []string `json:"terminal_ids,omitempty"`
}

func NewReconcileTask(terminalIDs ...string) (*asynq.Task, error) {
	payload, err := json.Marshal(ReconcilePayload{TerminalIDs: terminalIDs})
	if err != nil {
		return nil, err
	}

	queue := QueueLow
	if len(terminalIDs) > 0 {
		queue = QueueDefault
	}

	return asynq.NewTask(TaskTypeReconcileVault, payload, asynq.Queue(queue), asynq.MaxRetry(3)), nil
}

// DecodeReconcilePayload reads a reconcile payload. Malformed payloads are never retried.
func DecodeReconcilePayload(t *asynq.Task) (ReconcilePayload, error) {
	var payload ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("decode %s payload: %v: %w", t.Type(), err, asynq.SkipRetry)
	}
	return payload, nil
}
