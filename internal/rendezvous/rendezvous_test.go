package rendezvous

import (
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/fenwick-labs/browsergate/internal/coordfs"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	fs, err := coordfs.New(afero.NewMemMapFs(), "/coord")
	if err != nil {
		t.Fatalf("coordfs.New: %v", err)
	}
	return New(fs, "PK1")
}

func TestReadAbsentReturnsFalse(t *testing.T) {
	s := newTestStore(t)
	_, ok := s.Read(time.Hour)
	if ok {
		t.Error("expected Read on absent rendezvous to return false")
	}
}

func TestWriteThenReadReachableEndpoint(t *testing.T) {
	s := newTestStore(t)
	s.now = func() time.Time { return time.Unix(1000, 0) }
	s.probe = func(host string, port int, timeout time.Duration) bool { return true }

	if err := s.Write("127.0.0.1", 9222, 42); err != nil {
		t.Fatalf("Write: %v", err)
	}

	ep, ok := s.Read(time.Hour)
	if !ok {
		t.Fatal("expected Read to succeed for a fresh, reachable endpoint")
	}
	if ep.Host != "127.0.0.1" || ep.Port != 9222 || ep.PID != 42 {
		t.Errorf("unexpected endpoint: %+v", ep)
	}
}

func TestReadUnreachablePortFallsThrough(t *testing.T) {
	s := newTestStore(t)
	s.now = func() time.Time { return time.Unix(1000, 0) }
	s.probe = func(host string, port int, timeout time.Duration) bool { return false }

	s.Write("127.0.0.1", 9222, 42)

	_, ok := s.Read(time.Hour)
	if ok {
		t.Error("expected unreachable port to fall through to (false)")
	}
}

func TestReadExpiredTTLFallsThrough(t *testing.T) {
	s := newTestStore(t)
	s.now = func() time.Time { return time.Unix(1000, 0) }
	s.probe = func(host string, port int, timeout time.Duration) bool { return true }

	s.Write("127.0.0.1", 9222, 42)

	s.now = func() time.Time { return time.Unix(1000+1000, 0) }
	_, ok := s.Read(100 * time.Second)
	if ok {
		t.Error("expected expired rendezvous (age > ttl) to fall through")
	}
}

func TestNeverReturnsSuccessForClosedPort(t *testing.T) {
	s := newTestStore(t)
	s.now = func() time.Time { return time.Unix(1000, 0) }
	s.Write("127.0.0.1", 1, 1) // any port; probe below always fails
	s.probe = func(host string, port int, timeout time.Duration) bool { return false }

	_, ok := s.Read(time.Hour)
	if ok {
		t.Fatal("rendezvous consumers must never return success for a closed port (P8)")
	}
}

func TestFinalWriterWinsAgreesOnContents(t *testing.T) {
	s := newTestStore(t)
	s.now = func() time.Time { return time.Unix(1000, 0) }
	s.probe = func(host string, port int, timeout time.Duration) bool { return true }

	s.Write("127.0.0.1", 1111, 1)
	s.Write("127.0.0.1", 2222, 2)

	ep, ok := s.Read(time.Hour)
	if !ok {
		t.Fatal("expected read to succeed")
	}
	if ep.Port != 2222 || ep.PID != 2 {
		t.Errorf("expected final writer's contents to win, got %+v", ep)
	}
}
