package registry

import (
	"os"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/fenwick-labs/browsergate/internal/coordfs"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	fs, err := coordfs.New(afero.NewMemMapFs(), "/coord")
	if err != nil {
		t.Fatalf("coordfs.New: %v", err)
	}
	r := New(fs, "PK1", time.Minute)
	r.isLivePID = func(pid int) bool { return pid == os.Getpid() }
	return r
}

func TestRegisterThenGet(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.Register("agent:1:0:abc", "TARGET1", 7, os.Getpid()); err != nil {
		t.Fatalf("Register: %v", err)
	}

	entry, ok := r.Get("agent:1:0:abc")
	if !ok {
		t.Fatal("expected entry to exist after register")
	}
	if entry.TargetID != "TARGET1" || entry.WindowID != 7 {
		t.Errorf("unexpected entry: %+v", entry)
	}
}

func TestHeartbeatMissingEntryIsNoOp(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.Heartbeat("does-not-exist"); err != nil {
		t.Errorf("expected heartbeat on missing entry to be a silent no-op, got %v", err)
	}
	if _, ok := r.Get("does-not-exist"); ok {
		t.Error("expected heartbeat not to create an entry")
	}
}

func TestHeartbeatUpdatesTimestamp(t *testing.T) {
	r := newTestRegistry(t)
	tick := int64(1000)
	r.now = func() time.Time { return time.Unix(tick, 0) }

	r.Register("a", "T1", 1, os.Getpid())
	tick = 1050
	r.Heartbeat("a")

	entry, _ := r.Get("a")
	if entry.LastHeartbeat != 1050 {
		t.Errorf("expected last_heartbeat 1050, got %d", entry.LastHeartbeat)
	}
}

func TestRegisterThenUnregisterRoundTrip(t *testing.T) {
	r := newTestRegistry(t)

	r.Register("a", "T1", 1, os.Getpid())
	if err := r.Unregister("a"); err != nil {
		t.Fatalf("Unregister: %v", err)
	}

	snap := r.Snapshot()
	if len(snap) != 0 {
		t.Errorf("expected registry to be empty after register+unregister, got %+v", snap)
	}
}

func TestCloseWindowLeavesNoRegistryEntry(t *testing.T) {
	r := newTestRegistry(t)
	r.Register("agent:self", "T1", 1, os.Getpid())
	r.Unregister("agent:self")

	if _, ok := r.Get("agent:self"); ok {
		t.Error("expected no registry entry keyed by agent_tag after close_window equivalent")
	}
}

type fakeChecker struct {
	existing map[string]bool
	closed   []string
}

func (f *fakeChecker) TargetExists(id string) bool { return f.existing[id] }
func (f *fakeChecker) CloseTarget(id string) error {
	f.closed = append(f.closed, id)
	return nil
}

func TestScanAndCleanRemovesDeadPID(t *testing.T) {
	r := newTestRegistry(t)
	r.Register("dead-agent", "T-DEAD", 1, 999999) // not os.Getpid(), treated as dead
	r.Register("live-agent", "T-LIVE", 2, os.Getpid())

	checker := &fakeChecker{existing: map[string]bool{"T-DEAD": true, "T-LIVE": true}}
	removed := r.ScanAndClean(checker, 300*time.Second)

	if len(removed) != 1 || removed[0] != "dead-agent" {
		t.Errorf("expected only dead-agent removed, got %v", removed)
	}
	if _, ok := r.Get("live-agent"); !ok {
		t.Error("expected live-agent to remain")
	}
	if _, ok := r.Get("dead-agent"); ok {
		t.Error("expected dead-agent to be removed")
	}
}

func TestScanAndCleanRemovesStaleHeartbeat(t *testing.T) {
	r := newTestRegistry(t)
	tick := int64(10000)
	r.now = func() time.Time { return time.Unix(tick, 0) }

	r.Register("stale-agent", "T1", 1, os.Getpid())
	tick += 1000 // far beyond stale threshold

	checker := &fakeChecker{existing: map[string]bool{"T1": true}}
	removed := r.ScanAndClean(checker, 300*time.Second)

	if len(removed) != 1 || removed[0] != "stale-agent" {
		t.Errorf("expected stale-agent removed, got %v", removed)
	}
}

func TestScanAndCleanRemovesMissingTarget(t *testing.T) {
	r := newTestRegistry(t)
	r.Register("agent", "T-GONE", 1, os.Getpid())

	checker := &fakeChecker{existing: map[string]bool{}}
	removed := r.ScanAndClean(checker, 300*time.Second)

	if len(removed) != 1 || removed[0] != "agent" {
		t.Errorf("expected agent removed when target is gone, got %v", removed)
	}
}

func TestScanAndCleanClosesRemovedTargets(t *testing.T) {
	r := newTestRegistry(t)
	r.Register("dead", "T-DEAD", 1, 999999)

	checker := &fakeChecker{existing: map[string]bool{"T-DEAD": true}}
	r.ScanAndClean(checker, 300*time.Second)

	if len(checker.closed) != 1 || checker.closed[0] != "T-DEAD" {
		t.Errorf("expected best-effort close of orphaned target, got %v", checker.closed)
	}
}

func TestScanAndCleanKeepsLiveFreshEntries(t *testing.T) {
	r := newTestRegistry(t)
	r.Register("live", "T-LIVE", 1, os.Getpid())

	checker := &fakeChecker{existing: map[string]bool{"T-LIVE": true}}
	removed := r.ScanAndClean(checker, 300*time.Second)

	if len(removed) != 0 {
		t.Errorf("expected no removals for a live, fresh, existing-target entry, got %v", removed)
	}
}

func TestScanAndCleanOneFailureDoesNotBlockOthers(t *testing.T) {
	r := newTestRegistry(t)
	r.Register("dead1", "T1", 1, 999998)
	r.Register("dead2", "T2", 1, 999999)

	checker := &fakeChecker{existing: map[string]bool{"T1": true, "T2": true}}
	removed := r.ScanAndClean(checker, 300*time.Second)

	if len(removed) != 2 {
		t.Errorf("expected both orphans removed independently, got %v", removed)
	}
}
