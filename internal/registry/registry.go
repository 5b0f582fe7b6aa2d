// Package registry implements the Window Registry (spec §4.4): the
// persistent mapping from agent identity to the browser window it owns,
// with liveness heartbeats and best-effort orphan cleanup.
package registry

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rs/zerolog/log"

	"github.com/fenwick-labs/browsergate/internal/coordfs"
	"github.com/fenwick-labs/browsergate/internal/filemutex"
	"github.com/fenwick-labs/browsergate/internal/metrics"
)

const registryFile = ".window_registry.json"

// Entry is one agent's window ownership record.
type Entry struct {
	TargetID      string `json:"target_id"`
	WindowID      int    `json:"window_id"`
	PID           int    `json:"pid"`
	CreatedAt     int64  `json:"created_at"`
	LastHeartbeat int64  `json:"last_heartbeat"`
}

type table map[string]Entry

// TargetChecker is the slice of the driver that scan_and_clean needs: "does
// this target still exist" and "best-effort close it". Kept as a narrow
// interface here rather than importing internal/driver, so registry has no
// dependency on CDP specifics.
type TargetChecker interface {
	TargetExists(targetID string) bool
	CloseTarget(targetID string) error
}

// Registry is the Window Registry for a single profile key.
type Registry struct {
	fs    *coordfs.FS
	pk    string
	mutex *filemutex.Mutex
	now   func() time.Time

	// isLivePID is overridable for tests that need to simulate dead PIDs
	// without spawning and killing real processes.
	isLivePID func(pid int) bool
}

// New returns the Window Registry for pk, reusing the softlock File Mutex
// per §4.4's "or a dedicated registry mutex — implementations may reuse C2".
func New(fs *coordfs.FS, pk string, fileMutexStale time.Duration) *Registry {
	return &Registry{
		fs:        fs,
		pk:        pk,
		mutex:     filemutex.New(fs, pk+".softlock.mutex", fileMutexStale),
		now:       time.Now,
		isLivePID: processAlive,
	}
}

func (r *Registry) file() string { return r.pk + registryFile }

func (r *Registry) readTable() table {
	var t table
	present, err := r.fs.ReadJSON(r.file(), &t)
	if err != nil || !present || t == nil {
		return table{}
	}
	return t
}

// Register inserts or replaces the entry for agentTag.
func (r *Registry) Register(agentTag, targetID string, windowID, pid int) error {
	return r.mutex.WithLock(context.Background(), time.Second, func() error {
		t := r.readTable()
		now := r.now().Unix()
		t[agentTag] = Entry{
			TargetID:      targetID,
			WindowID:      windowID,
			PID:           pid,
			CreatedAt:     now,
			LastHeartbeat: now,
		}
		metrics.UpdateRegistrySize(len(t))
		return r.fs.WriteJSON(r.file(), t)
	})
}

// Heartbeat updates last_heartbeat for agentTag. A missing entry is a
// silent no-op.
func (r *Registry) Heartbeat(agentTag string) error {
	return r.mutex.WithLock(context.Background(), time.Second, func() error {
		t := r.readTable()
		entry, ok := t[agentTag]
		if !ok {
			return nil
		}
		entry.LastHeartbeat = r.now().Unix()
		t[agentTag] = entry
		return r.fs.WriteJSON(r.file(), t)
	})
}

// Unregister removes the entry for agentTag.
func (r *Registry) Unregister(agentTag string) error {
	return r.mutex.WithLock(context.Background(), time.Second, func() error {
		t := r.readTable()
		if _, ok := t[agentTag]; !ok {
			return nil
		}
		delete(t, agentTag)
		metrics.UpdateRegistrySize(len(t))
		return r.fs.WriteJSON(r.file(), t)
	})
}

// Get returns the entry for agentTag, if any.
func (r *Registry) Get(agentTag string) (Entry, bool) {
	t := r.readTable()
	e, ok := t[agentTag]
	return e, ok
}

// Snapshot returns a copy of the full registry, for diagnostics and the
// operator status CLI.
func (r *Registry) Snapshot() map[string]Entry {
	t := r.readTable()
	out := make(map[string]Entry, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}

// ScanAndClean removes orphaned (dead PID) and stale (heartbeat older than
// staleThreshold) entries, best-effort closing their targets via checker.
// A single entry's cleanup failure never prevents processing the rest.
func (r *Registry) ScanAndClean(checker TargetChecker, staleThreshold time.Duration) []string {
	var removed []string
	var toClose []string

	err := r.mutex.WithLock(context.Background(), time.Second, func() error {
		t := r.readTable()
		now := r.now().Unix()
		staleSecs := int64(staleThreshold.Seconds())

		for agentTag, entry := range t {
			dead := !r.isLivePID(entry.PID)
			stale := now-entry.LastHeartbeat > staleSecs
			targetGone := checker != nil && !checker.TargetExists(entry.TargetID)

			if dead || stale || targetGone {
				removed = append(removed, agentTag)
				toClose = append(toClose, entry.TargetID)
				delete(t, agentTag)
			}
		}

		if len(removed) == 0 {
			return nil
		}
		return r.fs.WriteJSON(r.file(), t)
	})
	if err != nil {
		log.Warn().Err(err).Str("pk", r.pk).Msg("registry scan_and_clean failed to persist removals")
		return nil
	}

	if checker != nil && len(toClose) > 0 {
		closeOrphanTargets(checker, toClose)
	}
	if len(removed) > 0 {
		metrics.RecordOrphansRemoved(len(removed))
		metrics.UpdateRegistrySize(len(r.readTable()))
	}

	return removed
}

// closeOrphanTargets best-effort closes each target concurrently; one
// failure must not block the others (§4.4).
func closeOrphanTargets(checker TargetChecker, targetIDs []string) {
	g := new(errgroup.Group)
	for _, id := range targetIDs {
		id := id
		g.Go(func() error {
			if id == "" {
				return nil
			}
			if err := checker.CloseTarget(id); err != nil {
				log.Debug().Err(err).Str("target_id", id).Msg("best-effort orphan target close failed")
			}
			return nil
		})
	}
	_ = g.Wait()
}
