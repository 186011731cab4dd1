package middleware

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/Proton-105/teller/internal/idempotency"
)

const (
	// IdempotencyKeyHeader carries the client-chosen key of a mutating request.
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotentReplayHeader marks a response served from the idempotency store.
	IdempotentReplayHeader = "Idempotent-Replayed"
)

// Idempotency ensures a mutating request runs at most once per Idempotency-Key within ttl;
// repeats get the stored response. Requests without the header pass through.
func Idempotency(manager idempotency.Manager, ttl time.Duration, log *slog.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = slog.Default()
	}

	return func(next http.Handler) http.Handler {
		if manager == nil {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			clientKey := r.Header.Get(IdempotencyKeyHeader)
			if clientKey == "" || r.Method == http.MethodGet || r.Method == http.MethodHead {
				next.ServeHTTP(w, r)
				return
			}

			key := idempotency.GenerateKey(r.Method, r.URL.Path, clientKey)
			result, err := manager.Execute(r.Context(), key, ttl, func(ctx context.Context) (*idempotency.Response, error) {
				rec := &bufferedResponse{header: make(http.Header)}
				next.ServeHTTP(rec, r.WithContext(ctx))
				return rec.response(), nil
			})
			if err != nil {
				if errors.Is(err, idempotency.ErrRequestInProgress) {
					writeError(w, http.StatusConflict, errorBody{Error: "request with this idempotency key is in progress", Retryable: true})
					return
				}

				log.Error("idempotent request failed", slog.String("idempotency_key", clientKey), slog.Any("error", err))
				writeError(w, http.StatusInternalServerError, errorBody{Error: "internal error", Retryable: true})
				return
			}

			resp := result.Response
			for name, values := range resp.Header {
				w.Header()[name] = values
			}
			if result.FromCache {
				w.Header().Set(IdempotentReplayHeader, "true")
			}
			w.WriteHeader(resp.Status)
			_, _ = w.Write(resp.Body)
		})
	}
}

// bufferedResponse captures a handler's reply so it can be stored before it is sent.
type bufferedResponse struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (b *bufferedResponse) Header() http.Header {
	return b.header
}

func (b *bufferedResponse) WriteHeader(status int) {
	if b.status == 0 {
		b.status = status
	}
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if b.status == 0 {
		b.status = http.StatusOK
	}
	return b.body.Write(p)
}

func (b *bufferedResponse) response() *idempotency.Response {
	status := b.status
	if status == 0 {
		status = http.StatusOK
	}

	return &idempotency.Response{
		Status: status,
		Header: b.header.Clone(),
		Body:   b.body.Bytes(),
	}
}
