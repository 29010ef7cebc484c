package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrUnreachable wraps the last ping error of a remote backend that
	// never answered.
	ErrUnreachable = errors.New("cache backend unreachable")

	ErrUnknownBackend = errors.New("unknown cache backend")
)

// Remote backends are pinged this many times, doubling the pause from
// dialPause after each failure.
var (
	dialAttempts = 3
	dialPause    = 500 * time.Millisecond
)

// awaitReady pings a freshly created client until it answers. It gives up
// early when ctx ends.
func awaitReady(ctx context.Context, backend string, ping func(context.Context) error) error {
	pause := dialPause
	var err error
	for attempt := 1; ; attempt++ {
		if err = ping(ctx); err == nil {
			return nil
		}
		if attempt == dialAttempts {
			break
		}
		t := time.NewTimer(pause)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-t.C:
		}
		pause *= 2
	}
	return fmt.Errorf("%w: %s after %d attempts: %v", ErrUnreachable, backend, dialAttempts, err)
}
