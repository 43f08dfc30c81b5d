package domain

import (
	"sync/atomic"
	"time"
)

var lastMillis int64

// Now returns the current UTC time at millisecond precision. Successive
// calls never go backwards, even if the wall clock does.
func Now() time.Time {
	for {
		now := time.Now().UnixMilli()
		last := atomic.LoadInt64(&lastMillis)
		if now < last {
			now = last
		}
		if atomic.CompareAndSwapInt64(&lastMillis, last, now) {
			return time.UnixMilli(now).UTC()
		}
	}
}
