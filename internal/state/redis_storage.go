package state

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	terminalStateKeyPattern  = "teller:terminal:%s"
	terminalStateScanPattern = "teller:terminal:*"
	stateScanBatchCount      = 100
)

// RedisStorage persists terminal snapshots in Redis.
type RedisStorage struct {
	client *redis.Client
	log    *slog.Logger
	ttl    time.Duration
}

// NewRedisStorage initializes a Redis-backed Storage implementation. A zero ttl keeps states until
// they are cleared.
func NewRedisStorage(client *redis.Client, log *slog.Logger, ttl time.Duration) Storage {
	if log == nil {
		log = slog.Default()
	}

	return &RedisStorage{
		client: client,
		log:    log,
		ttl:    ttl,
	}
}

// GetState returns the stored terminal state or ErrStateNotFound when absent.
func (s *RedisStorage) GetState(ctx context.Context, terminalID string) (*TerminalState, error) {
	data, err := s.client.Get(ctx, redisTerminalStateKey(terminalID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrStateNotFound
		}

		s.log.Error("failed to get state from redis", "terminal_id", terminalID, "error", err)
		return nil, err
	}

	var state TerminalState
	if err := json.Unmarshal(data, &state); err != nil {
		s.log.Error("failed to decode terminal state", "terminal_id", terminalID, "error", err)
		return nil, err
	}

	return &state, nil
}

// SetState saves the provided terminal state and stamps its UpdatedAt.
func (s *RedisStorage) SetState(ctx context.Context, terminalID string, state *TerminalState) error {
	state.TerminalID = terminalID
	state.UpdatedAt = time.Now().UTC()

	data, err := json.Marshal(state)
	if err != nil {
		s.log.Error("failed to encode terminal state", "terminal_id", terminalID, "error", err)
		return err
	}

	if err := s.client.Set(ctx, redisTerminalStateKey(terminalID), data, s.ttl).Err(); err != nil {
		s.log.Error("failed to save state in redis", "terminal_id", terminalID, "error", err)
		return err
	}

	return nil
}

// ClearState removes the stored state for the given terminal.
func (s *RedisStorage) ClearState(ctx context.Context, terminalID string) error {
	if err := s.client.Del(ctx, redisTerminalStateKey(terminalID)).Err(); err != nil {
		s.log.Error("failed to clear terminal state", "terminal_id", terminalID, "error", err)
		return err
	}

	return nil
}

// GetAllStates retrieves every stored terminal state by scanning Redis keys.
func (s *RedisStorage) GetAllStates(ctx context.Context) ([]*TerminalState, error) {
	var (
		cursor uint64
		result []*TerminalState
	)

	for {
		keys, nextCursor, err := s.client.Scan(ctx, cursor, terminalStateScanPattern, stateScanBatchCount).Result()
		if err != nil {
			s.log.Error("failed to scan terminal states", "error", err)
			return nil, err
		}

		for _, key := range keys {
			data, err := s.client.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}

				s.log.Error("failed to fetch terminal state", "key", key, "error", err)
				return nil, err
			}

			var terminalState TerminalState
			if err := json.Unmarshal(data, &terminalState); err != nil {
				s.log.Error("failed to decode terminal state", "key", key, "error", err)
				continue
			}

			copied := terminalState
			result = append(result, &copied)
		}

		cursor = nextCursor
		if cursor == 0 {
			break
		}
	}

	return result, nil
}

func redisTerminalStateKey(terminalID string) string {
	return fmt.Sprintf(terminalStateKeyPattern, terminalID)
}
