package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	tryLockSQL = `SELECT pg_try_advisory_lock(hashtextextended($1, 0))`
	unlockSQL  = `SELECT pg_advisory_unlock(hashtextextended($1, 0))`
)

// Postgres grants session advisory locks. Each lease pins one pooled
// connection until it is released or its hold timeout fires.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Factory = (*Postgres)(nil)

// NewPostgres creates an advisory lock factory over pool
func NewPostgres(pool *pgxpool.Pool) *Postgres {
	return &Postgres{pool: pool}
}

// Acquire implements Factory
func (p *Postgres) Acquire(ctx context.Context, key string, wait, hold time.Duration) (Handle, error) {
	acquireCtx, cancel := context.WithTimeout(ctx, wait)
	defer cancel()

	conn, err := p.pool.Acquire(acquireCtx)
	if err != nil {
		return nil, fmt.Errorf("postgres: %w", errors.Join(ErrLockUnavailable, err))
	}

	err = poll(ctx, wait, func(ctx context.Context) (bool, error) {
		var ok bool
		if err := conn.QueryRow(ctx, tryLockSQL, key).Scan(&ok); err != nil {
			return false, fmt.Errorf("postgres: %w", errors.Join(ErrLockUnavailable, err))
		}
		return ok, nil
	})
	if err != nil {
		conn.Release()
		return nil, err
	}

	h := &postgresHandle{conn: conn, key: key}
	h.timer = time.AfterFunc(hold, func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		_ = h.release(ctx)
	})
	return h, nil
}

type postgresHandle struct {
	conn  *pgxpool.Conn
	key   string
	timer *time.Timer
	once  sync.Once
	err   error
}

func (h *postgresHandle) Release(ctx context.Context) error {
	h.timer.Stop()
	return h.release(ctx)
}

func (h *postgresHandle) release(ctx context.Context) error {
	h.once.Do(func() {
		var released bool
		if err := h.conn.QueryRow(ctx, unlockSQL, h.key).Scan(&released); err != nil {
			// The session may still hold the lock; drop the connection so it is freed.
			_ = h.conn.Conn().Close(ctx)
			h.err = fmt.Errorf("failed to release advisory lock %s: %w", h.key, err)
		}
		h.conn.Release()
	})
	return h.err
}
