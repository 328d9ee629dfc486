package lock

import (
	"context"
	"time"
)

// Unavailable is the factory used when no lock backend is configured.
// Every acquisition fails.
type Unavailable struct{}

var _ Factory = Unavailable{}

// Acquire always returns ErrLockUnavailable
func (Unavailable) Acquire(context.Context, string, time.Duration, time.Duration) (Handle, error) {
	return nil, ErrLockUnavailable
}
