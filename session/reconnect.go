package session

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/ponyo877/salachat/chat"
	"github.com/ponyo877/salachat/coordinator"
)

const (
	defaultMaxAttempts = 5
	defaultBaseDelay   = time.Second
	defaultProbeWait   = 5 * time.Second
)

// Reconnector re-establishes a lost coordinator link: bounded exponential
// backoff, liveness probe, discovery lookup, then re-authentication with
// the original username and an empty credential (the original credential
// is not retained client-side).
type Reconnector struct {
	CoordinatorName string
	Resolver        coordinator.Resolver
	Connect         coordinator.ConnectFunc

	MaxAttempts int
	BaseDelay   time.Duration
	ProbeWait   time.Duration

	// Probe and Sleep are swappable for tests.
	Probe func(ctx context.Context, addr string) error
	Sleep func(d time.Duration)

	Log *zap.Logger
}

// Run retries until an authenticated link is established or the attempt
// budget is exhausted. notify receives one user-facing progress line per
// attempt.
func (r *Reconnector) Run(ctx context.Context, username string, notify func(string)) (coordinator.Coordinator, error) {
	attempts := r.MaxAttempts
	if attempts <= 0 {
		attempts = defaultMaxAttempts
	}
	base := r.BaseDelay
	if base <= 0 {
		base = defaultBaseDelay
	}
	probeWait := r.ProbeWait
	if probeWait <= 0 {
		probeWait = defaultProbeWait
	}
	sleep := r.Sleep
	if sleep == nil {
		sleep = time.Sleep
	}
	probe := r.Probe
	if probe == nil {
		probe = coordinator.Probe
	}
	log := r.Log
	if log == nil {
		log = zap.NewNop()
	}
	if notify == nil {
		notify = func(string) {}
	}

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		delay := base << (attempt - 1)
		notify(fmt.Sprintf("reintentando en %s (intento %d de %d)...", delay, attempt, attempts))
		sleep(delay)

		addr, err := r.Resolver.Resolve(ctx, r.CoordinatorName)
		if err != nil {
			log.Warn("coordinator not resolved", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		probeCtx, cancel := context.WithTimeout(ctx, probeWait)
		err = probe(probeCtx, addr)
		cancel()
		if err != nil {
			log.Warn("liveness probe failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		coord, err := r.Connect(ctx, addr, username, "")
		if err != nil {
			log.Warn("reauthentication failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		log.Info("link re-established", zap.Int("attempt", attempt), zap.String("addr", addr))
		return coord, nil
	}
	return nil, chat.ErrReconnectFailed
}
