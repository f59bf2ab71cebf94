// Package limiter provides per-account sync exclusion and request pacing.
package limiter

import (
	"context"
)

// Locker grants exclusive per-key leases.
type Locker interface {
	// TryAcquire takes the lease for key without blocking. ok=false means another holder owns it.
	TryAcquire(ctx context.Context, key string) (release func(), ok bool, err error)
}

// Chain acquires every locker in order and releases in reverse. All must grant the lease.
type Chain []Locker

// TryAcquire implements Locker.
func (c Chain) TryAcquire(ctx context.Context, key string) (func(), bool, error) {
	releases := make([]func(), 0, len(c))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, l := range c {
		rel, ok, err := l.TryAcquire(ctx, key)
		if err != nil || !ok {
			releaseAll()
			return nil, ok, err
		}
		releases = append(releases, rel)
	}
	return releaseAll, true, nil
}
