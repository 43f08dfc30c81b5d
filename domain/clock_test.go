package domain

import (
	"sync/atomic"
	"testing"
	"time"
)

func TestNowNeverGoesBackwards(t *testing.T) {
	t.Cleanup(func() {
		atomic.StoreInt64(&lastMillis, 0)
	})
	future := time.Now().Add(time.Hour).UnixMilli()
	atomic.StoreInt64(&lastMillis, future)

	got := Now()
	if got.UnixMilli() != future {
		t.Fatalf("expected clock to hold at %d, got %d", future, got.UnixMilli())
	}
	if got.Location() != time.UTC {
		t.Fatalf("expected UTC, got %v", got.Location())
	}
}

func TestNowMillisecondPrecision(t *testing.T) {
	got := Now()
	if got.Nanosecond()%int(time.Millisecond) != 0 {
		t.Fatalf("expected millisecond precision, got %v", got)
	}
}
