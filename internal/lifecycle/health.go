package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
)

// ErrDraining is reported by readiness once shutdown has begun.
var ErrDraining = errors.New("service is shutting down")

// HealthChecker exposes liveness and readiness probes.
type HealthChecker interface {
	Liveness(ctx context.Context) error
	Readiness(ctx context.Context) error
}

// DependencyChecker reports per-component health, as health.Checker does.
type DependencyChecker interface {
	Check(ctx context.Context) (map[string]string, bool)
}

// Probes answers liveness from the process itself and readiness from its dependencies.
type Probes struct {
	log      *slog.Logger
	deps     DependencyChecker
	draining atomic.Bool
}

// NewProbes creates a new Probes instance. deps may be nil.
func NewProbes(log *slog.Logger, deps DependencyChecker) *Probes {
	if log == nil {
		log = slog.Default()
	}
	return &Probes{log: log, deps: deps}
}

// Liveness reports success while the process can serve requests at all.
func (p *Probes) Liveness(ctx context.Context) error {
	p.log.Debug("liveness probe called")
	return nil
}

// Readiness fails while draining or when a dependency is unhealthy.
func (p *Probes) Readiness(ctx context.Context) error {
	if p.draining.Load() {
		return ErrDraining
	}
	if p.deps == nil {
		return nil
	}

	results, healthy := p.deps.Check(ctx)
	if healthy {
		return nil
	}

	failed := make([]string, 0, len(results))
	for name, status := range results {
		if status != "OK" {
			failed = append(failed, fmt.Sprintf("%s: %s", name, status))
		}
	}
	return fmt.Errorf("dependencies unhealthy: %s", strings.Join(failed, "; "))
}

// Drain marks the service as not ready. It is registered as the first shutdown hook.
func (p *Probes) Drain(context.Context) error {
	if !p.draining.Swap(true) {
		p.log.Info("readiness probe draining")
	}
	return nil
}
