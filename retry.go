package mirnade

import (
	"context"
	"log"
	"time"
)

// Retry calls fn up to attempts times. Only errors marked with Transient are
// retried; the wait between attempts starts at base and doubles each time. The
// last error is returned unchanged once attempts are exhausted.
func Retry(ctx context.Context, attempts int, base time.Duration, fn func() error) error {
	if attempts < 1 {
		attempts = 1
	}

	wait := base
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn()
		if err == nil || !IsTransient(err) || attempt == attempts {
			return err
		}

		log.Printf("Attempt %d/%d failed (%v). Sleeping %s before retrying\n", attempt, attempts, err, wait)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}

	return err
}
