package actionlock

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/fenwick-labs/browsergate/internal/coordfs"
)

func newTestLock(t *testing.T) *Lock {
	t.Helper()
	fs, err := coordfs.New(afero.NewMemMapFs(), "/coord")
	if err != nil {
		t.Fatalf("coordfs.New: %v", err)
	}
	return New(fs, "PK1", time.Minute)
}

func TestAcquireOnEmptyLockSucceeds(t *testing.T) {
	l := newTestLock(t)

	result := l.Acquire(context.Background(), "owner-a", 30*time.Second, time.Second)
	if !result.Acquired {
		t.Fatalf("expected acquire on empty lock to succeed, got %+v", result)
	}
}

func TestAcquireSameOwnerSucceeds(t *testing.T) {
	l := newTestLock(t)

	l.Acquire(context.Background(), "owner-a", 30*time.Second, time.Second)
	result := l.Acquire(context.Background(), "owner-a", 30*time.Second, time.Second)
	if !result.Acquired {
		t.Errorf("expected re-acquire by same owner to succeed, got %+v", result)
	}
}

func TestAcquireDifferentOwnerFailsBusy(t *testing.T) {
	l := newTestLock(t)

	l.Acquire(context.Background(), "owner-a", 30*time.Second, time.Second)
	result := l.Acquire(context.Background(), "owner-b", 30*time.Second, 100*time.Millisecond)
	if result.Acquired {
		t.Fatal("expected second owner's acquire to fail while first holds the lock")
	}
	if result.Reason != "busy" {
		t.Errorf("expected reason 'busy', got %q", result.Reason)
	}
	if result.CurrentOwner != "owner-a" {
		t.Errorf("expected current_owner 'owner-a', got %q", result.CurrentOwner)
	}
}

func TestAcquireExpiredLockIsReclaimed(t *testing.T) {
	l := newTestLock(t)
	l.now = func() time.Time { return time.Unix(1000, 0) }

	l.Acquire(context.Background(), "owner-a", 5*time.Second, time.Second)

	// Advance time past expiry.
	l.now = func() time.Time { return time.Unix(1010, 0) }

	result := l.Acquire(context.Background(), "owner-b", 30*time.Second, time.Second)
	if !result.Acquired {
		t.Errorf("expected owner-b to reclaim an expired lock, got %+v", result)
	}
}

func TestRenewByOwnerExtendsExpiry(t *testing.T) {
	l := newTestLock(t)
	l.now = func() time.Time { return time.Unix(1000, 0) }

	l.Acquire(context.Background(), "owner-a", 30*time.Second, time.Second)
	ok := l.Renew("owner-a", 60*time.Second)
	if !ok {
		t.Fatal("expected renew by owner to succeed")
	}

	_, expiresAt, present := l.Peek()
	if !present {
		t.Fatal("expected lock to be present after renew")
	}
	if expiresAt != 1060 {
		t.Errorf("expected expires_at 1060 after renew with ttl=60, got %d", expiresAt)
	}
}

func TestRenewByNonOwnerFails(t *testing.T) {
	l := newTestLock(t)

	l.Acquire(context.Background(), "owner-a", 30*time.Second, time.Second)
	ok := l.Renew("owner-b", 60*time.Second)
	if ok {
		t.Error("expected renew by non-owner to fail")
	}

	owner, _, _ := l.Peek()
	if owner != "owner-a" {
		t.Errorf("non-owner renew must not mutate the softlock file, owner is now %q", owner)
	}
}

func TestReleaseByOwnerClearsLock(t *testing.T) {
	l := newTestLock(t)

	l.Acquire(context.Background(), "owner-a", 30*time.Second, time.Second)
	ok := l.Release("owner-a")
	if !ok {
		t.Fatal("expected release by owner to succeed")
	}

	_, _, present := l.Peek()
	if present {
		t.Error("expected softlock to be absent after release")
	}
}

func TestReleaseByNonOwnerIsSilentNoOp(t *testing.T) {
	l := newTestLock(t)

	l.Acquire(context.Background(), "owner-a", 30*time.Second, time.Second)
	ok := l.Release("owner-b")
	if ok {
		t.Error("expected release by non-owner to report false")
	}

	owner, _, present := l.Peek()
	if !present || owner != "owner-a" {
		t.Errorf("non-owner release must not mutate the softlock file, present=%v owner=%q", present, owner)
	}
}

func TestAcquireReleaseRoundTripLeavesLockAbsent(t *testing.T) {
	l := newTestLock(t)

	l.Acquire(context.Background(), "owner-a", 30*time.Second, time.Second)
	l.Release("owner-a")

	_, _, present := l.Peek()
	if present {
		t.Error("expected acquire-then-release to leave the softlock absent")
	}
}

func TestConsecutiveRenewsAreMonotonic(t *testing.T) {
	l := newTestLock(t)
	tick := int64(1000)
	l.now = func() time.Time { return time.Unix(tick, 0) }

	l.Acquire(context.Background(), "owner-a", 10*time.Second, time.Second)
	_, first, _ := l.Peek()

	tick += 1
	l.Renew("owner-a", 10*time.Second)
	_, second, _ := l.Peek()

	if second < first {
		t.Errorf("expected monotonically non-decreasing expires_at, got %d then %d", first, second)
	}
}

func TestTwoProcessContention(t *testing.T) {
	fs, err := coordfs.New(afero.NewMemMapFs(), "/coord")
	if err != nil {
		t.Fatal(err)
	}
	a := New(fs, "PK1", time.Minute)
	b := New(fs, "PK1", time.Minute)

	resA := a.Acquire(context.Background(), "A", 30*time.Second, time.Second)
	if !resA.Acquired {
		t.Fatal("expected A to acquire the lock")
	}

	resB := b.Acquire(context.Background(), "B", 30*time.Second, 200*time.Millisecond)
	if resB.Acquired || resB.CurrentOwner != "A" {
		t.Fatalf("expected B to observe lock_busy with current_owner=A, got %+v", resB)
	}

	if !a.Release("A") {
		t.Fatal("expected A to release successfully")
	}

	resB2 := b.Acquire(context.Background(), "B", 30*time.Second, time.Second)
	if !resB2.Acquired {
		t.Error("expected B to acquire after A released")
	}
}
