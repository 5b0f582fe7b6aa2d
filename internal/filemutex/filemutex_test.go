package filemutex

import (
	"context"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/fenwick-labs/browsergate/internal/coordfs"
)

func newTestFS(t *testing.T) *coordfs.FS {
	t.Helper()
	fs, err := coordfs.New(afero.NewMemMapFs(), "/coord")
	if err != nil {
		t.Fatalf("coordfs.New: %v", err)
	}
	return fs
}

func TestAcquireRelease(t *testing.T) {
	fs := newTestFS(t)
	m := New(fs, "pk.mutex", time.Minute)

	if !m.Acquire(context.Background(), time.Second) {
		t.Fatal("expected acquire to succeed on an unheld mutex")
	}
	if !fs.Exists("pk.mutex") {
		t.Error("expected sentinel file to exist after acquire")
	}

	m.Release()
	if fs.Exists("pk.mutex") {
		t.Error("expected sentinel file to be removed after release")
	}
}

func TestAcquireBlocksUntilHeldMutexIsReleased(t *testing.T) {
	fs := newTestFS(t)
	m1 := New(fs, "pk.mutex", time.Minute)
	m2 := New(fs, "pk.mutex", time.Minute)

	if !m1.Acquire(context.Background(), time.Second) {
		t.Fatal("expected first acquire to succeed")
	}

	done := make(chan bool, 1)
	go func() {
		done <- m2.Acquire(context.Background(), 2*time.Second)
	}()

	time.Sleep(50 * time.Millisecond)
	m1.Release()

	select {
	case ok := <-done:
		if !ok {
			t.Error("expected second acquire to succeed once first released")
		}
	case <-time.After(3 * time.Second):
		t.Fatal("timed out waiting for second acquire")
	}
}

func TestAcquireTimesOutWhenHeldAndNotStale(t *testing.T) {
	fs := newTestFS(t)
	m1 := New(fs, "pk.mutex", time.Hour) // never stale within this test
	m2 := New(fs, "pk.mutex", time.Hour)

	if !m1.Acquire(context.Background(), time.Second) {
		t.Fatal("expected first acquire to succeed")
	}

	ok := m2.Acquire(context.Background(), 100*time.Millisecond)
	if ok {
		t.Error("expected second acquire to fail while first holds a non-stale mutex")
	}
}

func TestStaleMutexIsStolen(t *testing.T) {
	fs := newTestFS(t)
	// A very short staleness threshold so the held sentinel becomes
	// immediately eligible for theft.
	m1 := New(fs, "pk.mutex", time.Millisecond)
	m2 := New(fs, "pk.mutex", time.Millisecond)

	if !m1.Acquire(context.Background(), time.Second) {
		t.Fatal("expected first acquire to succeed")
	}

	time.Sleep(10 * time.Millisecond)

	if !m2.Acquire(context.Background(), time.Second) {
		t.Error("expected second acquire to steal the stale mutex")
	}
}

func TestWithLockReleasesOnPanic(t *testing.T) {
	fs := newTestFS(t)
	m := New(fs, "pk.mutex", time.Minute)

	func() {
		defer func() { recover() }()
		m.WithLock(context.Background(), time.Second, func() error {
			panic("boom")
		})
	}()

	if fs.Exists("pk.mutex") {
		t.Error("expected mutex to be released even though fn panicked")
	}
}

func TestWithLockReleasesOnError(t *testing.T) {
	fs := newTestFS(t)
	m := New(fs, "pk.mutex", time.Minute)

	err := m.WithLock(context.Background(), time.Second, func() error {
		return context.Canceled
	})
	if err != context.Canceled {
		t.Errorf("expected fn's error to propagate, got %v", err)
	}
	if fs.Exists("pk.mutex") {
		t.Error("expected mutex to be released after fn returned an error")
	}
}

func TestAcquireRespectsContextCancellation(t *testing.T) {
	fs := newTestFS(t)
	m1 := New(fs, "pk.mutex", time.Hour)
	m2 := New(fs, "pk.mutex", time.Hour)

	if !m1.Acquire(context.Background(), time.Second) {
		t.Fatal("expected first acquire to succeed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	ok := m2.Acquire(ctx, 10*time.Second)
	if ok {
		t.Error("expected acquire to fail after context cancellation")
	}
	if time.Since(start) > time.Second {
		t.Error("expected context cancellation to abort the wait promptly")
	}
}
