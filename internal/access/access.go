// Package access implements the Exclusive-Access Protocol (spec §4.8): the
// wrapper applied to every tool handler that serializes intra-process
// execution, acquires the cross-process Action Lock, ensures a live driver
// and window, and guarantees both locks are released on every exit path.
package access

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fenwick-labs/browsergate/internal/actionlock"
	"github.com/fenwick-labs/browsergate/internal/config"
	"github.com/fenwick-labs/browsergate/internal/driver"
	"github.com/fenwick-labs/browsergate/internal/gatewaysession"
	"github.com/fenwick-labs/browsergate/internal/metrics"
	"github.com/fenwick-labs/browsergate/internal/registry"
	"github.com/fenwick-labs/browsergate/internal/security"
	"github.com/fenwick-labs/browsergate/internal/startup"
	"github.com/fenwick-labs/browsergate/internal/types"
	"github.com/fenwick-labs/browsergate/internal/window"
)

// State names the Exclusive-Access Protocol's state machine position for a
// single wrapped call, surfaced in diagnostics and logs.
type State string

const (
	StateIdle           State = "IDLE"
	StateConfigOK       State = "CONFIG_OK"
	StateIntraLocked    State = "INTRA_LOCKED"
	StateActionLocked   State = "ACTION_LOCKED"
	StateWindowReady    State = "WINDOW_READY"
	StateRunning        State = "RUNNING"
	StateCompleted      State = "COMPLETED"
	StateLockBusy       State = "LOCK_BUSY"
	StateDriverDead     State = "DRIVER_DEAD"
	StateWindowLost     State = "WINDOW_LOST"
	StateHandlerError   State = "HANDLER_ERROR"
)

// Result is the common envelope every wrapped handler produces on failure.
// Handlers report success by returning their own payload from Handler; on
// failure, Guard synthesizes a Result carrying the reason.
type Result struct {
	OK           bool                   `json:"ok"`
	Error        string                 `json:"error,omitempty"`
	Message      string                 `json:"message,omitempty"`
	Diagnostics  map[string]interface{} `json:"diagnostics,omitempty"`
	CurrentOwner string                 `json:"current_owner,omitempty"`
	ExpiresAt    int64                  `json:"expires_at,omitempty"`
}

// Handler is a tool handler's business logic, run once the protocol has
// secured intra-process and Action Lock exclusivity and a ready window.
type Handler func(ctx context.Context, sess *gatewaysession.Context, d *driver.Driver) (interface{}, error)

// Guard is the Exclusive-Access Protocol wrapper for one profile key. One
// Guard is shared by every tool handler operating on that key.
type Guard struct {
	cfg     *config.Config
	pk      string
	sess    *gatewaysession.Context
	lock    *actionlock.Lock
	arbiter *startup.Arbiter
	wm      *window.Manager
	reg     *registry.Registry
}

// New returns a Guard wired to the coordination components for one profile
// key. Callers build this once per (config, pk) and reuse it across calls.
func New(cfg *config.Config, pk string, sess *gatewaysession.Context, lock *actionlock.Lock, arbiter *startup.Arbiter, reg *registry.Registry) *Guard {
	return &Guard{
		cfg:     cfg,
		pk:      pk,
		sess:    sess,
		lock:    lock,
		arbiter: arbiter,
		wm:      window.New(reg),
		reg:     reg,
	}
}

// renewMargin bounds how often Run renews the Action Lock while the handler
// runs, per §4.8 step 6 ("renewal interval <= TTL/2").
const renewMargin = 2

// Run executes h under the full protocol and returns the handler's payload
// on success, or a *Result describing the terminating state on failure.
func (g *Guard) Run(ctx context.Context, h Handler) (interface{}, *Result) {
	state := StateIdle

	// Step 1: early config validation.
	if g.cfg == nil {
		return nil, &Result{OK: false, Error: "config_error", Message: "configuration not loaded"}
	}
	state = StateConfigOK

	// Step 2: ensure agent tag.
	owner := g.sess.EnsureAgentTag()

	// Step 3: acquire intra-process lock.
	g.sess.IntraLock.Lock()
	state = StateIntraLocked
	intraHeld := true
	defer func() {
		if intraHeld {
			g.sess.IntraLock.Unlock()
		}
	}()

	// Step 4: acquire Action Lock.
	waitStart := time.Now()
	acquireResult := g.lock.Acquire(ctx, owner, g.cfg.ActionLockTTL, g.cfg.ActionLockWait)
	if !acquireResult.Acquired {
		state = StateLockBusy
		metrics.RecordActionLockAcquire(acquireResult.Reason, time.Since(waitStart))
		log.Warn().Str("pk", g.pk).Str("owner", owner).Str("reason", acquireResult.Reason).
			Msg("exclusive access: action lock acquire failed")
		return nil, &Result{
			OK:           false,
			Error:        "lock_busy",
			Message:      fmt.Sprintf("action lock held by %s", acquireResult.CurrentOwner),
			CurrentOwner: acquireResult.CurrentOwner,
			ExpiresAt:    acquireResult.ExpiresAt,
		}
	}
	metrics.RecordActionLockAcquire("acquired", time.Since(waitStart))
	metrics.UpdateActionLockHolderTTL(g.cfg.ActionLockTTL)
	state = StateActionLocked
	lockHeld := true
	defer func() {
		if lockHeld {
			g.lock.Release(owner)
			metrics.UpdateActionLockHolderTTL(0)
		}
	}()

	// Step 5: ensure driver and window.
	if !g.sess.IsDriverInitialized() {
		spec := startup.Spec{
			BinaryPath:      g.binaryAndDataDir(),
			UserDataDir:     g.dataDir(),
			ProfileName:     g.cfg.ProfileName,
			FixedDebugPort:  g.cfg.FixedDebugPort,
			AttachAnyProfile: g.cfg.AttachAnyProfile,
			LaunchTimeout:   g.cfg.LaunchTimeout,
			LaunchExtraArgs: g.cfg.LaunchExtraArgs,
			Headless:        g.cfg.Headless,
			ProxyURL:        g.cfg.ProxyURL,
			RendezvousTTL:   g.cfg.RendezvousTTL,
		}
		d, host, port, err := g.arbiter.Ensure(ctx, spec)
		if err != nil {
			state = StateDriverDead
			return nil, &Result{OK: false, Error: "driver_not_initialized", Message: err.Error(), Diagnostics: g.diagnostics(owner)}
		}
		g.sess.SetDriver(d, host, port)
	}

	if err := g.wm.EnsureWindow(ctx, g.sess, g.sess.Driver()); err != nil {
		state = StateWindowLost
		return nil, &Result{
			OK:          false,
			Error:       "window_lost",
			Message:     err.Error(),
			Diagnostics: g.diagnostics(owner),
		}
	}
	state = StateWindowReady

	// Step 6: invoke handler, with periodic lock renewal for long calls.
	state = StateRunning
	renewCtx, cancelRenew := context.WithCancel(ctx)
	renewInterval := g.cfg.ActionLockTTL / renewMargin
	if renewInterval <= 0 {
		renewInterval = time.Second
	}
	lockLost := make(chan struct{}, 1)
	go g.renewLoop(renewCtx, owner, renewInterval, lockLost)

	payload, err := h(ctx, g.sess, g.sess.Driver())
	cancelRenew()

	select {
	case <-lockLost:
		state = StateHandlerError
		return nil, &Result{OK: false, Error: "lock_lost", Message: "action lock renewal observed a new owner"}
	default:
	}

	if err != nil {
		state = StateHandlerError
		return nil, &Result{OK: false, Error: "handler_error", Message: err.Error()}
	}

	// Step 8: release on the successful path (deferred releases also cover
	// every early-return terminating state above).
	lockHeld = false
	g.lock.Release(owner)
	metrics.UpdateActionLockHolderTTL(0)
	intraHeld = false
	g.sess.IntraLock.Unlock()

	state = StateCompleted
	log.Debug().Str("pk", g.pk).Str("owner", owner).Str("state", string(state)).Msg("exclusive access: call completed")
	return payload, nil
}

// renewLoop periodically renews the Action Lock while a handler runs,
// piggybacking a registry heartbeat, per §4.8 step 6 and §5's TTL/2 rule. If
// a renewal observes a different owner, it signals lockLost and stops.
func (g *Guard) renewLoop(ctx context.Context, owner string, interval time.Duration, lockLost chan<- struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !g.lock.Renew(owner, g.cfg.ActionLockTTL) {
				log.Warn().Str("pk", g.pk).Str("owner", owner).Msg("exclusive access: lock_lost on renewal")
				select {
				case lockLost <- struct{}{}:
				default:
				}
				return
			}
			metrics.UpdateActionLockHolderTTL(g.cfg.ActionLockTTL)
			if g.reg != nil {
				_ = g.reg.Heartbeat(owner)
			}
		}
	}
}

// diagnostics builds an error reply's diagnostics object (spec §6), passing
// every URL it carries (rendezvous endpoint, proxy URL) through the same
// redaction get_diagnostics applies (E3.4).
func (g *Guard) diagnostics(owner string) map[string]interface{} {
	diag := map[string]interface{}{"agent_tag": owner}
	if host, port := g.sess.Endpoint(); host != "" {
		diag["rendezvous_endpoint"] = security.RedactURL(fmt.Sprintf("ws://%s:%d", host, port))
	}
	if g.cfg.ProxyURL != "" {
		diag["proxy_url"] = security.RedactProxyURL(g.cfg.ProxyURL)
	}
	return diag
}

func (g *Guard) binaryAndDataDir() string {
	bin, _ := g.cfg.BinaryAndDataDir()
	return bin
}

func (g *Guard) dataDir() string {
	_, dir := g.cfg.BinaryAndDataDir()
	return dir
}

// errInvalidConfig is a package-local alias of the shared
// types.ErrConfigInvalid sentinel; nothing in this package refers to it.
var errInvalidConfig = types.ErrConfigInvalid
