package cooldown

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newTestTracker(t *testing.T) (*RedisTracker, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return NewRedisTracker(client), mr
}

func TestRemainingWithoutMark(t *testing.T) {
	tracker, _ := newTestTracker(t)

	remaining, err := tracker.Remaining(context.Background(), 100, time.Minute)
	if err != nil {
		t.Fatalf("Remaining failed: %v", err)
	}
	if remaining != 0 {
		t.Errorf("Expected no window, got %d", remaining)
	}
}

func TestMarkStartsWindow(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	if err := tracker.Mark(ctx, 100, time.Minute); err != nil {
		t.Fatalf("Mark failed: %v", err)
	}

	remaining, err := tracker.Remaining(ctx, 100, time.Minute)
	if err != nil {
		t.Fatalf("Remaining failed: %v", err)
	}
	if remaining < 59 || remaining > 60 {
		t.Errorf("Expected ~60s remaining, got %d", remaining)
	}

	// Another principal is unaffected.
	other, _ := tracker.Remaining(ctx, 200, time.Minute)
	if other != 0 {
		t.Errorf("Expected no window for principal 200, got %d", other)
	}
}

func TestWindowExpires(t *testing.T) {
	tracker, mr := newTestTracker(t)
	ctx := context.Background()

	if err := tracker.Mark(ctx, 100, time.Minute); err != nil {
		t.Fatalf("Mark failed: %v", err)
	}

	mr.FastForward(61 * time.Second)

	remaining, err := tracker.Remaining(ctx, 100, time.Minute)
	if err != nil {
		t.Fatalf("Remaining failed: %v", err)
	}
	if remaining != 0 {
		t.Errorf("Expected expired window, got %d", remaining)
	}
}

func TestZeroWindowDisabled(t *testing.T) {
	tracker, _ := newTestTracker(t)
	ctx := context.Background()

	if err := tracker.Mark(ctx, 100, 0); err != nil {
		t.Fatalf("Mark failed: %v", err)
	}
	remaining, err := tracker.Remaining(ctx, 100, 0)
	if err != nil {
		t.Fatalf("Remaining failed: %v", err)
	}
	if remaining != 0 {
		t.Errorf("Expected disabled window, got %d", remaining)
	}
}
