package lock_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/mongoadmin/indexsync/internal/lock"
	"github.com/mongoadmin/indexsync/internal/lock/mocks"
)

const (
	testWait = time.Second
	testHold = 5 * time.Second
)

func TestKey(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "catalog:x1", lock.Key("catalog", "x1"))
	assert.NotEqual(t, lock.Key("catalog", "x1"), lock.Key("notes", "x1"))
	assert.Equal(t, "catalog", lock.IndexOf(lock.Key("catalog", "a:b")))
}

func TestLocker_MutualExclusion(t *testing.T) {
	t.Parallel()

	locker := lock.NewLocker(lock.NewLocal())
	ctx := context.Background()

	var inside, maxInside, runs int32
	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := locker.WithLock(ctx, "catalog:x1", 5*time.Second, testHold, func(context.Context) error {
				n := atomic.AddInt32(&inside, 1)
				for {
					m := atomic.LoadInt32(&maxInside)
					if n <= m || atomic.CompareAndSwapInt32(&maxInside, m, n) {
						break
					}
				}
				time.Sleep(5 * time.Millisecond)
				atomic.AddInt32(&inside, -1)
				atomic.AddInt32(&runs, 1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(8), runs)
	assert.Equal(t, int32(1), maxInside)
}

func TestLocker_Reentrant(t *testing.T) {
	t.Parallel()

	locker := lock.NewLocker(lock.NewLocal(), lock.WithContinueOnFailure(false))
	ctx := context.Background()

	var innerRan bool
	err := locker.WithLock(ctx, "k", testWait, testHold, func(ctx context.Context) error {
		assert.True(t, lock.Holds(ctx, "k"))
		return locker.WithLock(ctx, "k", 50*time.Millisecond, testHold, func(context.Context) error {
			innerRan = true
			return nil
		})
	})
	require.NoError(t, err)
	assert.True(t, innerRan)
	assert.False(t, lock.Holds(ctx, "k"))

	// the lease was released on exit
	err = locker.WithLock(ctx, "k", 50*time.Millisecond, testHold, func(context.Context) error { return nil })
	assert.NoError(t, err)
}

func TestLocker_Degradation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name              string
		continueOnFailure bool
		wantRan           bool
		wantErr           bool
	}{
		{name: "continue on failure runs unlocked", continueOnFailure: true, wantRan: true},
		{name: "strict policy surfaces the failure", continueOnFailure: false, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			var degraded []string
			locker := lock.NewLocker(lock.Unavailable{},
				lock.WithContinueOnFailure(tt.continueOnFailure),
				lock.WithDegradedHook(func(key string, _ error) { degraded = append(degraded, key) }),
			)

			ran := false
			err := locker.WithLock(context.Background(), "k", testWait, testHold, func(ctx context.Context) error {
				ran = true
				assert.False(t, lock.Holds(ctx, "k"))
				return nil
			})

			assert.Equal(t, tt.wantRan, ran)
			if tt.wantErr {
				assert.ErrorIs(t, err, lock.ErrLockUnavailable)
				assert.Empty(t, degraded)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, []string{"k"}, degraded)
		})
	}
}

func TestLocker_ContentionTimesOut(t *testing.T) {
	t.Parallel()

	factory := lock.NewLocal()
	holder := lock.NewLocker(factory)
	strict := lock.NewLocker(factory, lock.WithContinueOnFailure(false))
	ctx := context.Background()

	err := holder.WithLock(ctx, "k", testWait, testHold, func(context.Context) error {
		return strict.WithLock(context.Background(), "k", 60*time.Millisecond, testHold, func(context.Context) error {
			t.Error("body must not run without the lock")
			return nil
		})
	})
	assert.ErrorIs(t, err, lock.ErrLockUnavailable)
}

func TestLocker_ReleasesOnEveryExit(t *testing.T) {
	t.Parallel()

	bodyErr := errors.New("index write failed")

	tests := []struct {
		name      string
		body      func(context.Context) error
		wantErr   error
		wantPanic bool
	}{
		{name: "success", body: func(context.Context) error { return nil }},
		{name: "error", body: func(context.Context) error { return bodyErr }, wantErr: bodyErr},
		{name: "panic", body: func(context.Context) error { panic("boom") }, wantPanic: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)
			handle := mocks.NewMockHandle(ctrl)
			factory := mocks.NewMockFactory(ctrl)

			factory.EXPECT().Acquire(gomock.Any(), "k", testWait, testHold).Return(handle, nil)
			handle.EXPECT().Release(gomock.Any()).Return(nil).Times(1)

			locker := lock.NewLocker(factory)
			run := func() error {
				return locker.WithLock(context.Background(), "k", testWait, testHold, tt.body)
			}

			if tt.wantPanic {
				assert.Panics(t, func() { _ = run() })
				return
			}
			err := run()
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLocker_ReleaseFailureIsLogged(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	handle := mocks.NewMockHandle(ctrl)
	factory := mocks.NewMockFactory(ctrl)
	factory.EXPECT().Acquire(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(handle, nil)
	handle.EXPECT().Release(gomock.Any()).Return(errors.New("connection lost"))

	err := lock.NewLocker(factory).WithLock(context.Background(), "k", testWait, testHold, func(context.Context) error {
		return nil
	})
	assert.NoError(t, err)
}

func TestLocker_BackendErrorIsUnavailable(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	factory := mocks.NewMockFactory(ctrl)
	factory.EXPECT().Acquire(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("dial tcp: connection refused"))

	err := lock.NewLocker(factory, lock.WithContinueOnFailure(false)).
		WithLock(context.Background(), "k", testWait, testHold, func(context.Context) error { return nil })
	assert.ErrorIs(t, err, lock.ErrLockUnavailable)
	assert.Contains(t, err.Error(), "connection refused")
}
