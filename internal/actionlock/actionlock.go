// Package actionlock implements the durable, TTL-leased, owner-tagged lock
// on "the right to drive the browser right now" (spec §4.3). All mutations
// happen under the softlock's File Mutex so acquire/renew/release are
// totally ordered across processes.
package actionlock

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/fenwick-labs/browsergate/internal/coordfs"
	"github.com/fenwick-labs/browsergate/internal/filemutex"
	"github.com/fenwick-labs/browsergate/internal/types"
)

const (
	softlockFile = ".softlock.json"
	softlockMutex = ".softlock.mutex"
)

// state is the on-disk shape of the softlock file.
type state struct {
	Owner     string `json:"owner"`
	ExpiresAt int64  `json:"expires_at"`
}

// Lock is the Action Lock for a single profile key.
type Lock struct {
	fs    *coordfs.FS
	pk    string
	mutex *filemutex.Mutex
	now   func() time.Time
}

// New returns the Action Lock for pk, backed by fs. fileMutexStale is the
// staleness threshold for the softlock's own File Mutex.
func New(fs *coordfs.FS, pk string, fileMutexStale time.Duration) *Lock {
	return &Lock{
		fs:    fs,
		pk:    pk,
		mutex: filemutex.New(fs, pk+softlockMutex, fileMutexStale),
		now:   time.Now,
	}
}

func (l *Lock) file() string { return l.pk + softlockFile }

// AcquireResult is the outcome of Acquire.
type AcquireResult struct {
	Acquired     bool
	Reason       string // "busy", "io_error" when !Acquired
	CurrentOwner string
	ExpiresAt    int64
}

// Acquire attempts to take the lock for owner with the given ttl, polling
// under bounded wait if currently held by someone else. Matches §4.3:
// absent, expired, or same-owner softlock → acquire; otherwise poll until
// acquired or wait elapses.
func (l *Lock) Acquire(ctx context.Context, owner string, ttl, wait time.Duration) AcquireResult {
	deadline := l.now().Add(wait)
	boff := backoff.NewExponentialBackOff()
	boff.InitialInterval = 20 * time.Millisecond
	boff.MaxInterval = 250 * time.Millisecond
	boff.MaxElapsedTime = 0 // we enforce the deadline ourselves

	var lastErr error
	for {
		result, err := l.tryAcquireOnce(owner, ttl)
		lastErr = err
		if err == nil {
			if result.Acquired || l.now().After(deadline) {
				return result
			}
		} else {
			log.Warn().Err(err).Str("pk", l.pk).Msg("action lock acquire I/O error, retrying")
		}

		if l.now().After(deadline) {
			if lastErr != nil {
				return AcquireResult{Acquired: false, Reason: "io_error"}
			}
			current, _ := l.peek()
			return AcquireResult{
				Acquired:     false,
				Reason:       "busy",
				CurrentOwner: current.Owner,
				ExpiresAt:    current.ExpiresAt,
			}
		}

		select {
		case <-ctx.Done():
			return AcquireResult{Acquired: false, Reason: "io_error"}
		case <-time.After(boff.NextBackOff()):
		}
	}
}

func (l *Lock) tryAcquireOnce(owner string, ttl time.Duration) (AcquireResult, error) {
	var result AcquireResult
	err := l.mutex.WithLock(context.Background(), time.Second, func() error {
		current, present := l.readState()
		now := l.now().Unix()

		canAcquire := !present || current.ExpiresAt <= now || current.Owner == owner
		if !canAcquire {
			result = AcquireResult{
				Acquired:     false,
				Reason:       "busy",
				CurrentOwner: current.Owner,
				ExpiresAt:    current.ExpiresAt,
			}
			return nil
		}

		next := state{Owner: owner, ExpiresAt: l.now().Add(ttl).Unix()}
		if err := l.fs.WriteJSON(l.file(), next); err != nil {
			return err
		}
		result = AcquireResult{Acquired: true, ExpiresAt: next.ExpiresAt}
		return nil
	})
	return result, err
}

// Renew extends the lease for owner. Only the current owner may renew;
// anyone else's call returns false without mutating the file (P2-adjacent
// guarantee for renew as well as release).
func (l *Lock) Renew(owner string, ttl time.Duration) bool {
	var ok bool
	_ = l.mutex.WithLock(context.Background(), time.Second, func() error {
		current, present := l.readState()
		if !present || current.Owner != owner {
			ok = false
			return nil
		}
		next := state{Owner: owner, ExpiresAt: l.now().Add(ttl).Unix()}
		if err := l.fs.WriteJSON(l.file(), next); err != nil {
			return err
		}
		ok = true
		return nil
	})
	return ok
}

// Release deletes the softlock file if owner currently holds it. A
// non-owner's release is a silent no-op and never mutates the file (P2).
func (l *Lock) Release(owner string) bool {
	var ok bool
	_ = l.mutex.WithLock(context.Background(), time.Second, func() error {
		current, present := l.readState()
		if !present {
			ok = false
			return nil
		}
		if current.Owner != owner {
			ok = false
			return nil
		}
		if err := l.fs.Remove(l.file()); err != nil {
			return err
		}
		ok = true
		return nil
	})
	return ok
}

// Peek reports the current softlock state without mutating anything; used
// by diagnostics and the operator status CLI.
func (l *Lock) Peek() (owner string, expiresAt int64, present bool) {
	current, present := l.peek()
	return current.Owner, current.ExpiresAt, present
}

func (l *Lock) peek() (state, bool) {
	var s state
	present, err := l.fs.ReadJSON(l.file(), &s)
	if err != nil {
		return state{}, false
	}
	return s, present
}

func (l *Lock) readState() (state, bool) {
	return l.peek()
}

// ErrNotOwner re-exports the shared sentinel for callers that want to
// errors.Is against a non-owner operation, even though Release/Renew here
// report failure as a bool rather than an error (matching §4.3's "silent
// no-op" contract).
var ErrNotOwner = types.ErrNotOwner
