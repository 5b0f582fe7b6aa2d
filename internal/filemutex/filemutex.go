// Package filemutex implements the advisory, cross-process sentinel-file
// mutex used to protect coordination-file rewrites and the Startup Arbiter
// (spec §4.2). It is best-effort exclusion, not a kernel mutex: a stale
// holder's file is stolen rather than waited on forever.
package filemutex

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"

	"github.com/fenwick-labs/browsergate/internal/coordfs"
)

const pollInterval = 25 * time.Millisecond

// Mutex is a named advisory mutex backed by a sentinel file inside a
// coordfs.FS. Name is the file's base name, e.g. "<PK>.softlock.mutex".
type Mutex struct {
	fs    *coordfs.FS
	name  string
	stale time.Duration
}

// New returns a Mutex for the given sentinel file name. stale is the age
// after which an unreleased sentinel is considered abandoned and eligible
// for theft (default 60s, per §4.2).
func New(fs *coordfs.FS, name string, stale time.Duration) *Mutex {
	if stale <= 0 {
		stale = 60 * time.Second
	}
	return &Mutex{fs: fs, name: name, stale: stale}
}

// Acquire attempts atomic creation of the sentinel file. If it already
// exists, Acquire polls until creation succeeds, the existing file is
// stale enough to steal, or wait elapses. It returns true on success.
//
// fsnotify is used opportunistically: while polling, a watch on the
// coordination directory lets Acquire wake immediately when the sentinel
// is removed or renamed, rather than only on the next poll tick. This is an
// optimization, not a correctness requirement — the poll loop still runs
// as a fallback if the watcher cannot be set up.
func (m *Mutex) Acquire(ctx context.Context, wait time.Duration) bool {
	deadline := time.Now().Add(wait)
	owner := fmt.Sprintf("pid:%d", os.Getpid())

	watcher, watchErr := fsnotify.NewWatcher()
	if watchErr == nil {
		defer watcher.Close()
		if err := watcher.Add(m.fs.Dir); err != nil {
			log.Debug().Err(err).Str("mutex", m.name).Msg("file mutex watch setup failed, falling back to polling only")
		}
	}

	for {
		if m.tryCreate(owner) {
			return true
		}

		if m.isStale() {
			if m.steal(owner) {
				return true
			}
			// Another process won the steal race; keep polling.
		}

		if time.Now().After(deadline) {
			return false
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(pollInterval):
		case <-watchEvents(watcher):
		}
	}
}

func watchEvents(w *fsnotify.Watcher) <-chan fsnotify.Event {
	if w == nil {
		return nil
	}
	return w.Events
}

func (m *Mutex) tryCreate(owner string) bool {
	if m.fs.Exists(m.name) {
		return false
	}
	// Best-effort atomic-create race: WriteBytes itself is write-temp+rename,
	// which is atomic against partial content but not against two processes
	// racing the existence check. There is no re-check after the write: two
	// processes that both pass the Exists check both report success, and the
	// later rename wins the file. True atomicity would require O_EXCL, which
	// afero's abstraction does not expose uniformly across backends.
	if err := m.fs.WriteBytes(m.name, []byte(owner)); err != nil {
		log.Debug().Err(err).Str("mutex", m.name).Msg("file mutex create failed")
		return false
	}
	return true
}

func (m *Mutex) isStale() bool {
	modUnix, err := m.fs.ModTime(m.name)
	if err != nil {
		return false
	}
	age := time.Since(time.Unix(modUnix, 0))
	return age > m.stale
}

// steal replaces a stale sentinel atomically. Because WriteBytes renames
// over the target unconditionally, two processes racing to steal the same
// stale lock both "succeed" at the filesystem level; only one holds it in
// any meaningful sense, so callers must treat the result as best-effort,
// matching the File Mutex's documented contract.
func (m *Mutex) steal(owner string) bool {
	log.Warn().Str("mutex", m.name).Msg("stealing stale file mutex")
	if err := m.fs.WriteBytes(m.name, []byte(owner)); err != nil {
		log.Debug().Err(err).Str("mutex", m.name).Msg("file mutex steal failed")
		return false
	}
	return true
}

// Release deletes the sentinel file. Deletion by another process (because
// the lock was stolen out from under us) is tolerated silently.
func (m *Mutex) Release() {
	if err := m.fs.Remove(m.name); err != nil {
		log.Debug().Err(err).Str("mutex", m.name).Msg("file mutex release failed")
	}
}

// WithLock runs fn while holding the mutex, releasing it on every exit path
// including a panic inside fn.
func (m *Mutex) WithLock(ctx context.Context, wait time.Duration, fn func() error) error {
	if !m.Acquire(ctx, wait) {
		return fmt.Errorf("file mutex %s: %w", m.name, context.DeadlineExceeded)
	}
	defer m.Release()
	return fn()
}
