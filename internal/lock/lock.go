// Package lock provides the per-document named lock that serializes indexing
// jobs across replicas.
//
// A Factory hands out TTL-bounded leases from a backend (Redis, PostgreSQL
// advisory locks or process memory). A Locker wraps a Factory with the
// acquisition policy: reentrancy for nested calls on the same context, release
// on every exit path, and degradation to unlocked execution when the backend
// cannot grant the lease and continueOnFailure is set.
package lock

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ErrLockUnavailable is returned when a lock cannot be acquired within the
// wait timeout or the backend cannot be reached
var ErrLockUnavailable = errors.New("lock unavailable")

const (
	releaseTimeout = 5 * time.Second
	retryInterval  = 25 * time.Millisecond
)

// Handle is an acquired lease
type Handle interface {
	// Release gives the lease back. Releasing an expired lease is not an error.
	Release(ctx context.Context) error
}

// Factory grants leases on named keys
//
//go:generate mockgen -destination=mocks/mock_lock.go -package=mocks -source=lock.go Factory,Handle
type Factory interface {
	// Acquire waits up to wait for key and holds it for at most hold
	Acquire(ctx context.Context, key string, wait, hold time.Duration) (Handle, error)
}

// Key derives the lock key of a logical document in a search index
func Key(indexName, customID string) string {
	return indexName + ":" + customID
}

// IndexOf returns the index name of a key built by Key
func IndexOf(key string) string {
	index, _, _ := strings.Cut(key, ":")
	return index
}

// Locker applies the acquisition policy around a Factory
type Locker struct {
	factory           Factory
	continueOnFailure bool
	onDegraded        func(key string, err error)
}

// Option configures a Locker
type Option func(*Locker)

// WithContinueOnFailure sets whether guarded work runs unlocked when the lock
// cannot be acquired. The default is true.
func WithContinueOnFailure(v bool) Option {
	return func(l *Locker) {
		l.continueOnFailure = v
	}
}

// WithDegradedHook is called every time work runs unlocked
func WithDegradedHook(fn func(key string, err error)) Option {
	return func(l *Locker) {
		l.onDegraded = fn
	}
}

// NewLocker creates a Locker over factory
func NewLocker(factory Factory, opts ...Option) *Locker {
	l := &Locker{
		factory:           factory,
		continueOnFailure: true,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type heldKeysCtxKey struct{}

func heldKeys(ctx context.Context) map[string]struct{} {
	held, _ := ctx.Value(heldKeysCtxKey{}).(map[string]struct{})
	return held
}

func withHeldKey(ctx context.Context, key string) context.Context {
	prev := heldKeys(ctx)
	next := make(map[string]struct{}, len(prev)+1)
	for k := range prev {
		next[k] = struct{}{}
	}
	next[key] = struct{}{}
	return context.WithValue(ctx, heldKeysCtxKey{}, next)
}

// Holds reports whether ctx was derived inside WithLock for key
func Holds(ctx context.Context, key string) bool {
	_, ok := heldKeys(ctx)[key]
	return ok
}

// WithLock runs body while holding key. Calls nested on a context that already
// holds key run body directly. The lease is released when body returns or
// panics.
func (l *Locker) WithLock(
	ctx context.Context,
	key string,
	wait, hold time.Duration,
	body func(ctx context.Context) error,
) (err error) {
	if Holds(ctx, key) {
		return body(ctx)
	}

	handle, acquireErr := l.factory.Acquire(ctx, key, wait, hold)
	if acquireErr != nil {
		if !errors.Is(acquireErr, ErrLockUnavailable) {
			acquireErr = errors.Join(ErrLockUnavailable, acquireErr)
		}
		if ctx.Err() != nil || !l.continueOnFailure {
			return fmt.Errorf("failed to acquire lock %s: %w", key, acquireErr)
		}
		slog.WarnContext(ctx, "Lock not acquired, continuing without it",
			"key", key,
			"error", acquireErr)
		if l.onDegraded != nil {
			l.onDegraded(key, acquireErr)
		}
		return body(ctx)
	}

	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if releaseErr := handle.Release(releaseCtx); releaseErr != nil {
			slog.WarnContext(ctx, "Failed to release lock", "key", key, "error", releaseErr)
		}
	}()

	return body(withHeldKey(ctx, key))
}

// poll calls try until it reports success, wait elapses or ctx is done
func poll(ctx context.Context, wait time.Duration, try func(context.Context) (bool, error)) error {
	deadline := time.Now().Add(wait)
	ticker := time.NewTicker(retryInterval)
	defer ticker.Stop()

	for {
		ok, err := try(ctx)
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if !time.Now().Before(deadline) {
			return fmt.Errorf("%w: timed out after %s", ErrLockUnavailable, wait)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
