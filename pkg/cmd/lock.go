package cmd

import (
	"context"
	"log/slog"

	"github.com/cajasmota/zeroclaw-squads-sub001/pkg/lock"
)

// NewLocker returns a redis lock when redisURL is set, otherwise an in-process
// lock. The returned close function is never nil.
func NewLocker(ctx context.Context, logger *slog.Logger, redisURL string) (lock.Locker, func() error, error) {
	if redisURL == "" {
		logger.InfoContext(ctx, "using in-process run lock")

		return lock.NewLocal(), func() error { return nil }, nil
	}

	locker, err := lock.NewRedisFromURL(ctx, redisURL, lock.DefaultTTL)
	if err != nil {
		return nil, nil, err
	}

	logger.InfoContext(ctx, "using redis run lock")

	return locker, locker.Close, nil
}
