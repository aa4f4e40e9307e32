package lock

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"studiobook/internal/domain"

	"github.com/rs/zerolog"
)

// FailoverLocker prefers the primary (distributed) locker and degrades to the fallback
// when the primary backend errors. The primary is retried after a minute.
type FailoverLocker struct {
	primary   domain.Locker
	fallback  domain.Locker
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
}

func NewFailoverLocker(primary, fallback domain.Locker, logger *zerolog.Logger) *FailoverLocker {
	return &FailoverLocker{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
	}
}

func (l *FailoverLocker) Acquire(ctx context.Context, keys ...string) (func(), error) {
	if l.isDown.Load() && time.Since(time.Unix(0, l.lastCheck.Load())) > time.Minute {
		l.isDown.Store(false)
		l.logger.Info().Msg("Retrying primary schedule locker")
	}

	if !l.isDown.Load() {
		release, err := l.primary.Acquire(ctx, keys...)
		if err == nil || !errors.Is(err, ErrBackendUnavailable) {
			return release, err
		}
		l.logger.Error().Err(err).Msg("Primary schedule locker failed, falling back to memory")
		l.isDown.Store(true)
		l.lastCheck.Store(time.Now().UnixNano())
	}

	return l.fallback.Acquire(ctx, keys...)
}

// Degraded reports whether the fallback is in use.
func (l *FailoverLocker) Degraded() bool {
	return l.isDown.Load()
}
