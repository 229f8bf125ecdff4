package session

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func TestMemoryBlacklistHonorsTokenExpiry(t *testing.T) {
	clock := newFakeClock()
	store := NewMemory(clock.Now)
	ctx := context.Background()
	exp := clock.now.Add(time.Hour)

	if err := store.Blacklist(ctx, "jti-1", exp); err != nil {
		t.Fatalf("Blacklist: %v", err)
	}
	revoked, err := store.IsBlacklisted(ctx, "jti-1")
	if err != nil || !revoked {
		t.Fatalf("expected revoked, got %v err=%v", revoked, err)
	}

	// The entry must not outlive the token itself.
	clock.Advance(61 * time.Minute)
	revoked, err = store.IsBlacklisted(ctx, "jti-1")
	if err != nil || revoked {
		t.Fatalf("expected entry expired, got %v err=%v", revoked, err)
	}
}

func TestMemoryBlacklistIgnoresExpiredToken(t *testing.T) {
	clock := newFakeClock()
	store := NewMemory(clock.Now)
	ctx := context.Background()

	if err := store.Blacklist(ctx, "jti-old", clock.now.Add(-time.Minute)); err != nil {
		t.Fatalf("Blacklist: %v", err)
	}
	revoked, err := store.IsBlacklisted(ctx, "jti-old")
	if err != nil || revoked {
		t.Fatalf("already-expired token should not create an entry")
	}
}

func TestMemoryEnsureActivityDoesNotOverwrite(t *testing.T) {
	clock := newFakeClock()
	store := NewMemory(clock.Now)
	ctx := context.Background()
	exp := clock.now.Add(time.Hour)

	if err := store.EnsureActivity(ctx, "jti-1", exp); err != nil {
		t.Fatalf("EnsureActivity: %v", err)
	}
	first, ok, err := store.LastActivity(ctx, "jti-1")
	if err != nil || !ok {
		t.Fatalf("expected activity mark, err=%v", err)
	}

	clock.Advance(10 * time.Minute)
	if err := store.EnsureActivity(ctx, "jti-1", exp); err != nil {
		t.Fatalf("EnsureActivity: %v", err)
	}
	again, ok, err := store.LastActivity(ctx, "jti-1")
	if err != nil || !ok {
		t.Fatalf("expected activity mark, err=%v", err)
	}
	if !again.Equal(first) {
		t.Fatalf("EnsureActivity overwrote last-seen: %v -> %v", first, again)
	}

	if err := store.RecordActivity(ctx, "jti-1", exp); err != nil {
		t.Fatalf("RecordActivity: %v", err)
	}
	moved, ok, err := store.LastActivity(ctx, "jti-1")
	if err != nil || !ok {
		t.Fatalf("expected activity mark, err=%v", err)
	}
	if !moved.After(first) {
		t.Fatalf("RecordActivity should move last-seen forward: %v", moved)
	}
}

func TestIdleTimedOut(t *testing.T) {
	clock := newFakeClock()
	store := NewMemory(clock.Now)
	ctx := context.Background()
	exp := clock.now.Add(24 * time.Hour)

	if err := store.RecordActivity(ctx, "jti-1", exp); err != nil {
		t.Fatalf("RecordActivity: %v", err)
	}

	clock.Advance(10 * time.Minute)
	idle, err := IdleTimedOut(ctx, store, "jti-1", 30*time.Minute, clock.Now())
	if err != nil || idle {
		t.Fatalf("10 minutes should not be idle, got %v err=%v", idle, err)
	}

	clock.Advance(21 * time.Minute)
	idle, err = IdleTimedOut(ctx, store, "jti-1", 30*time.Minute, clock.Now())
	if err != nil || !idle {
		t.Fatalf("31 minutes should be idle, got %v err=%v", idle, err)
	}

	// Zero timeout disables the policy entirely.
	idle, err = IdleTimedOut(ctx, store, "jti-1", 0, clock.Now())
	if err != nil || idle {
		t.Fatalf("disabled policy must never report idle, got %v err=%v", idle, err)
	}

	// No activity entry means not idle.
	idle, err = IdleTimedOut(ctx, store, "jti-unknown", 30*time.Minute, clock.Now())
	if err != nil || idle {
		t.Fatalf("missing activity must not report idle, got %v err=%v", idle, err)
	}
}

// unreachableStore simulates a Redis instance that is down.
type unreachableStore struct{}

var errUnreachable = errors.New("connection refused")

func (unreachableStore) Blacklist(context.Context, string, time.Time) error { return errUnreachable }
func (unreachableStore) IsBlacklisted(context.Context, string) (bool, error) {
	return false, errUnreachable
}
func (unreachableStore) RecordActivity(context.Context, string, time.Time) error {
	return errUnreachable
}
func (unreachableStore) EnsureActivity(context.Context, string, time.Time) error {
	return errUnreachable
}
func (unreachableStore) LastActivity(context.Context, string) (time.Time, bool, error) {
	return time.Time{}, false, errUnreachable
}

func TestFailoverEquivalenceWhenPrimaryDown(t *testing.T) {
	ctx := context.Background()
	exp := time.Now().Add(time.Hour)

	degraded := NewFailover(unreachableStore{}, NewMemory(nil))
	healthy := NewFailover(nil, NewMemory(nil))

	for name, store := range map[string]*Failover{"degraded": degraded, "healthy": healthy} {
		if err := store.Blacklist(ctx, "jti-1", exp); err != nil {
			t.Fatalf("%s: Blacklist: %v", name, err)
		}
		revoked, err := store.IsBlacklisted(ctx, "jti-1")
		if err != nil || !revoked {
			t.Fatalf("%s: expected revoked, got %v err=%v", name, revoked, err)
		}

		if err := store.RecordActivity(ctx, "jti-2", exp); err != nil {
			t.Fatalf("%s: RecordActivity: %v", name, err)
		}
		_, ok, err := store.LastActivity(ctx, "jti-2")
		if err != nil || !ok {
			t.Fatalf("%s: expected last activity, err=%v", name, err)
		}
	}
}

// flappingStore accepts writes while healthy and fails every call once down.
type flappingStore struct {
	*Memory
	down bool
}

func (s *flappingStore) Blacklist(ctx context.Context, jti string, exp time.Time) error {
	if s.down {
		return errUnreachable
	}
	return s.Memory.Blacklist(ctx, jti, exp)
}

func (s *flappingStore) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	if s.down {
		return false, errUnreachable
	}
	return s.Memory.IsBlacklisted(ctx, jti)
}

func TestFailoverRevocationSurvivesPrimaryOutage(t *testing.T) {
	// A token blacklisted while the primary was healthy must stay revoked
	// for this process after the primary drops out.
	ctx := context.Background()
	primary := &flappingStore{Memory: NewMemory(nil)}
	store := NewFailover(primary, NewMemory(nil))

	if err := store.Blacklist(ctx, "jti-5", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Blacklist: %v", err)
	}

	primary.down = true
	revoked, err := store.IsBlacklisted(ctx, "jti-5")
	if err != nil {
		t.Fatalf("IsBlacklisted: %v", err)
	}
	if !revoked {
		t.Fatalf("revocation forgotten after primary outage")
	}
}

func TestFailoverReadsSeeLocalWrites(t *testing.T) {
	// A revocation that could only be written locally must hold for
	// subsequent checks in the same process.
	ctx := context.Background()
	store := NewFailover(unreachableStore{}, NewMemory(nil))

	if err := store.Blacklist(ctx, "jti-9", time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("Blacklist: %v", err)
	}
	for i := 0; i < 3; i++ {
		revoked, err := store.IsBlacklisted(ctx, "jti-9")
		if err != nil || !revoked {
			t.Fatalf("check %d: expected revoked, got %v err=%v", i, revoked, err)
		}
	}
}
