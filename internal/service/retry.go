package service

import (
	"context"
	"errors"
	"math/rand"
	"time"

	"github.com/fjod/storefront/internal/repository"
)

const (
	maxCartAttempts  = 5
	cartRetryBackoff = 10 * time.Millisecond
)

// retryOnConflict runs fn until it stops reporting a version conflict, with
// jittered exponential backoff between attempts. The last conflict is
// returned once attempts are used up.
func retryOnConflict(ctx context.Context, attempts int, backoff time.Duration, fn func() error) error {
	for attempt := 1; ; attempt++ {
		err := fn()
		if !errors.Is(err, repository.ErrVersionConflict) || attempt >= attempts {
			return err
		}

		if err := ctx.Err(); err != nil {
			return err
		}
		jitter := time.Duration(rand.Int63n(int64(backoff/2) + 1))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff + jitter):
		}
		backoff *= 2
	}
}
