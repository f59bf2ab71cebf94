package limiter

import (
	"context"
	"sync"
)

// KeyLock is an in-process try-lock keyed by account id.
type KeyLock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewKeyLock constructs an empty key lock.
func NewKeyLock() *KeyLock { return &KeyLock{held: make(map[string]struct{})} }

// TryAcquire implements Locker.
func (k *KeyLock) TryAcquire(_ context.Context, key string) (func(), bool, error) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, busy := k.held[key]; busy {
		return nil, false, nil
	}
	k.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			k.mu.Lock()
			delete(k.held, key)
			k.mu.Unlock()
		})
	}, true, nil
}
