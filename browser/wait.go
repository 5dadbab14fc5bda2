package browser

import (
	"context"
	"strings"
	"time"
)

// DefaultPollInterval is used by the URL and readiness waits
const DefaultPollInterval = 250 * time.Millisecond

// Poll calls cond every interval until it reports true, returns an error, or
// ctx ends. The first check happens immediately.
func Poll(ctx context.Context, interval time.Duration, cond func(ctx context.Context) (bool, error)) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		ok, err := cond(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}
		if ok {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// WaitURL waits until the page location satisfies match and returns it.
// Transient location errors during navigation are retried.
func WaitURL(ctx context.Context, page Page, match func(string) bool) (string, error) {
	var last string
	err := Poll(ctx, DefaultPollInterval, func(ctx context.Context) (bool, error) {
		u, err := page.Location(ctx)
		if err != nil {
			return false, nil
		}
		last = u
		return match(u), nil
	})
	return last, err
}

// WaitURLPrefix waits for a location starting with prefix
func WaitURLPrefix(ctx context.Context, page Page, prefix string) (string, error) {
	return WaitURL(ctx, page, func(u string) bool { return strings.HasPrefix(u, prefix) })
}

// WaitReady waits for document.readyState to reach "complete"
func WaitReady(ctx context.Context, page Page) error {
	return Poll(ctx, DefaultPollInterval, func(ctx context.Context) (bool, error) {
		state, err := page.ReadyState(ctx)
		if err != nil {
			return false, nil
		}
		return state == "complete", nil
	})
}

// Settle pauses for d unless ctx ends first. Only for spots with no
// observable condition to wait on.
func Settle(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// LastLocation returns the page URL for diagnostics, using a short bound of
// its own so it still works after the caller's deadline passed.
func LastLocation(page Page) string {
	if page == nil {
		return ""
	}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	u, err := page.Location(ctx)
	if err != nil {
		return ""
	}
	return u
}
