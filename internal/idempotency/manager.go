// Package idempotency replays the stored response of a request whose Idempotency-Key was seen before.
package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"
)

const defaultLockTTL = 30 * time.Second

// ErrRequestInProgress is returned while another request with the same key is running.
var ErrRequestInProgress = errors.New("request with this key is already in progress")

// Response is the captured reply of an executed request.
type Response struct {
	Status int         `json:"status"`
	Header http.Header `json:"header,omitempty"`
	Body   []byte      `json:"body,omitempty"`
}

// Cacheable reports whether the response may be replayed. Server errors and transient refusals
// are not stored, so a retry runs the request again.
func (r *Response) Cacheable() bool {
	if r == nil || r.Status >= http.StatusInternalServerError {
		return false
	}

	switch r.Status {
	case http.StatusRequestTimeout, http.StatusConflict, http.StatusTooEarly, http.StatusTooManyRequests:
		return false
	default:
		return true
	}
}

// Operation executes the request once.
type Operation func(ctx context.Context) (*Response, error)

// Result carries the response and whether it came from the store.
type Result struct {
	Response  *Response
	FromCache bool
}

// Manager runs an operation at most once per key within ttl.
type Manager interface {
	Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error)
}

type manager struct {
	store   Store
	log     *slog.Logger
	lockTTL time.Duration
}

// NewManager creates a Manager over store.
func NewManager(store Store, log *slog.Logger) Manager {
	if log == nil {
		log = slog.Default()
	}

	return &manager{
		store:   store,
		log:     log,
		lockTTL: defaultLockTTL,
	}
}

func (m *manager) Execute(ctx context.Context, key string, ttl time.Duration, fn Operation) (*Result, error) {
	if fn == nil {
		return nil, errors.New("operation fn cannot be nil")
	}

	if cached, err := m.replay(ctx, key); err != nil || cached != nil {
		return cached, err
	}

	token, err := m.store.Lock(ctx, key, m.lockTTL)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, ErrRequestInProgress
	}
	defer func() {
		if err := m.store.ReleaseLock(context.WithoutCancel(ctx), key, token); err != nil {
			m.log.Warn("failed to release idempotency lock", slog.String("key", key), slog.Any("error", err))
		}
	}()

	// The previous holder may have finished between the first lookup and the lock.
	if cached, err := m.replay(ctx, key); err != nil || cached != nil {
		return cached, err
	}

	response, err := fn(ctx)
	if err != nil {
		return nil, err
	}

	if response.Cacheable() {
		payload, err := json.Marshal(response)
		if err != nil {
			return nil, err
		}
		if err := m.store.Set(ctx, key, &Record{Status: StatusCompleted, Response: payload}, ttl); err != nil {
			m.log.Error("failed to store idempotent response", slog.String("key", key), slog.Any("error", err))
		}
	}

	return &Result{Response: response}, nil
}

func (m *manager) replay(ctx context.Context, key string) (*Result, error) {
	record, err := m.store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if record == nil || record.Status != StatusCompleted {
		return nil, nil
	}

	var response Response
	if err := json.Unmarshal(record.Response, &response); err != nil {
		return nil, err
	}

	return &Result{Response: &response, FromCache: true}, nil
}
