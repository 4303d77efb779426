package jobs

import (
	"context"
	"slices"
	"sync"
)

// keyLocks hands out one lock per dedup key. Jobs sharing a key, and
// callers of Queue.Exclusive, never overlap.
type keyLocks struct {
	mu   sync.Mutex
	held map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

func newKeyLocks() *keyLocks {
	return &keyLocks{held: map[string]*keyLock{}}
}

// acquire blocks until key is free or ctx is done.
func (k *keyLocks) acquire(ctx context.Context, key string) (func(), error) {
	k.mu.Lock()
	l, ok := k.held[key]
	if !ok {
		l = &keyLock{sem: make(chan struct{}, 1)}
		k.held[key] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.sem <- struct{}{}:
		return func() {
			<-l.sem
			k.unref(key, l)
		}, nil
	case <-ctx.Done():
		k.unref(key, l)
		return nil, ctx.Err()
	}
}

func (k *keyLocks) unref(key string, l *keyLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.held, key)
	}
}

type heldKeysCtx struct{}

func heldKeys(ctx context.Context) []string {
	keys, _ := ctx.Value(heldKeysCtx{}).([]string)
	return keys
}

func withHeldKey(ctx context.Context, key string) context.Context {
	keys := heldKeys(ctx)
	return context.WithValue(ctx, heldKeysCtx{}, append(slices.Clip(keys), key))
}

// Exclusive runs fn while holding key, the lock that keeps jobs with the
// same dedup key from overlapping. Code already running under key, such as
// the handler of a job with that key, runs fn directly.
func (q *Queue) Exclusive(ctx context.Context, key string, fn func(context.Context) error) error {
	if key == "" || slices.Contains(heldKeys(ctx), key) {
		return fn(ctx)
	}
	release, err := q.keys.acquire(ctx, key)
	if err != nil {
		return err
	}
	defer release()
	return fn(withHeldKey(ctx, key))
}
