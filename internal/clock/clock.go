// Package clock provides the time source used for document metadata stamps.
package clock

import (
	"sync"
	"time"
)

// Clock reports the current instant as epoch milliseconds together with the
// local UTC offset in whole hours.
type Clock interface {
	NowMillis() int64
	UTCOffsetHours() int
}

// Real is the wall clock of the host.
type Real struct{}

// NowMillis returns the current epoch time in milliseconds
func (Real) NowMillis() int64 {
	return time.Now().UnixMilli()
}

// UTCOffsetHours returns the host's current offset from UTC in hours
func (Real) UTCOffsetHours() int {
	_, offset := time.Now().Zone()
	return offset / 3600
}

// Fixed is a manually advanced clock for tests.
type Fixed struct {
	mu     sync.Mutex
	millis int64
	offset int
}

// NewFixed returns a clock frozen at millis with the given UTC offset.
func NewFixed(millis int64, offsetHours int) *Fixed {
	return &Fixed{millis: millis, offset: offsetHours}
}

// NowMillis returns the frozen instant
func (f *Fixed) NowMillis() int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.millis
}

// UTCOffsetHours returns the configured offset
func (f *Fixed) UTCOffsetHours() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.offset
}

// Advance moves the clock forward by d.
func (f *Fixed) Advance(d time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.millis += d.Milliseconds()
}
