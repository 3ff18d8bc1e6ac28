package limiter

import (
	"context"
	"testing"
	"time"
)

func TestMemory_BlocksAndRecovers(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	m := NewMemory(Policy{Window: time.Minute, MaxFails: 3, BlockFor: 5 * time.Minute})
	m.now = func() time.Time { return now }
	ip := HashIP("10.0.0.1")

	for i := 0; i < 2; i++ {
		if blocked, _, _ := m.Failure(ctx, "alice", ip); blocked {
			t.Fatalf("blocked too early at %d", i)
		}
	}
	blocked, dur, _ := m.Failure(ctx, "alice", ip)
	if !blocked || dur != 5*time.Minute {
		t.Fatalf("want block, got %v %v", blocked, dur)
	}
	if ok, wait, _ := m.Allow(ctx, "alice", ip); ok || wait != 5*time.Minute {
		t.Fatalf("Allow during block: %v %v", ok, wait)
	}
	if ok, _, _ := m.Allow(ctx, "alice", HashIP("10.0.0.2")); !ok {
		t.Fatalf("other address must not be blocked")
	}

	now = now.Add(6 * time.Minute)
	if ok, _, _ := m.Allow(ctx, "alice", ip); !ok {
		t.Fatalf("block must expire")
	}
}

func TestMemory_WindowResetsAndSuccessClears(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1_700_000_000, 0)
	m := NewMemory(Policy{Window: time.Minute, MaxFails: 2, BlockFor: time.Minute})
	m.now = func() time.Time { return now }
	ip := HashIP("x")

	_, _, _ = m.Failure(ctx, "bob", ip)
	now = now.Add(2 * time.Minute)
	if blocked, _, _ := m.Failure(ctx, "bob", ip); blocked {
		t.Fatalf("stale failure must not count")
	}
	_ = m.Success(ctx, "bob", ip)
	if blocked, _, _ := m.Failure(ctx, "bob", ip); blocked {
		t.Fatalf("success must reset counter")
	}
}
