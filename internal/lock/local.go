package lock

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
)

type localLease struct {
	token   string
	expires time.Time
}

// Local grants leases held in process memory. It only serializes work inside
// one replica.
type Local struct {
	leases *xsync.MapOf[string, localLease]
	now    func() time.Time
}

var _ Factory = (*Local)(nil)

// NewLocal creates an empty in-process lock table
func NewLocal() *Local {
	return &Local{
		leases: xsync.NewMapOf[string, localLease](),
		now:    time.Now,
	}
}

// Acquire implements Factory
func (l *Local) Acquire(ctx context.Context, key string, wait, hold time.Duration) (Handle, error) {
	token := uuid.NewString()
	err := poll(ctx, wait, func(context.Context) (bool, error) {
		now := l.now()
		actual, _ := l.leases.Compute(key, func(old localLease, loaded bool) (localLease, bool) {
			if loaded && now.Before(old.expires) {
				return old, false
			}
			return localLease{token: token, expires: now.Add(hold)}, false
		})
		return actual.token == token, nil
	})
	if err != nil {
		return nil, err
	}
	return &localHandle{owner: l, key: key, token: token}, nil
}

type localHandle struct {
	owner *Local
	key   string
	token string
}

func (h *localHandle) Release(context.Context) error {
	h.owner.leases.Compute(h.key, func(old localLease, loaded bool) (localLease, bool) {
		if !loaded {
			return old, true
		}
		return old, old.token == h.token
	})
	return nil
}
