// Package window implements Window Lifecycle (spec §4.9): creating,
// validating, and tearing down the single OS browser window each agent
// owns, and keeping the Window Registry in sync with what actually exists.
package window

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fenwick-labs/browsergate/internal/gatewaysession"
	"github.com/fenwick-labs/browsergate/internal/registry"
	"github.com/fenwick-labs/browsergate/internal/types"
)

// driverHandle is the slice of *driver.Driver that Window Lifecycle needs.
// Kept narrow (and satisfying registry.TargetChecker) so this package can be
// exercised with a fake in tests without a real CDP connection.
type driverHandle interface {
	SwitchToTarget(ctx context.Context, targetID string) error
	ValidateTarget(targetID string) bool
	NewWindow(ctx context.Context) (targetID string, windowID int, err error)
	CloseTarget(targetID string) error
	TargetExists(targetID string) bool
}

// Manager runs the Window Lifecycle operations for one profile key's
// registry, against whatever driver the Session Context currently holds.
type Manager struct {
	reg *registry.Registry
}

// New returns a Window Lifecycle manager backed by reg.
func New(reg *registry.Registry) *Manager {
	return &Manager{reg: reg}
}

// EnsureWindow implements ensure_window(driver): reuse ctx's current window
// if it still validates, otherwise clean up orphans and create a fresh one.
func (m *Manager) EnsureWindow(ctx context.Context, sess *gatewaysession.Context, d driverHandle) error {
	if targetID, windowID := sess.Window(); targetID != "" {
		if err := d.SwitchToTarget(ctx, targetID); err == nil && d.ValidateTarget(targetID) {
			return nil
		}
		log.Debug().Str("target_id", targetID).Int("window_id", windowID).
			Msg("window lifecycle: bound target no longer valid, recreating")
		sess.ResetWindowState()
	}

	removed := m.reg.ScanAndClean(d, 5*time.Minute)
	if len(removed) > 0 {
		log.Info().Strs("removed_agents", removed).Msg("window lifecycle: cleaned orphaned registry entries")
	}

	targetID, windowID, err := d.NewWindow(ctx)
	if err != nil {
		return types.NewWindowLostError(sess.AgentTag(), err)
	}

	if err := d.SwitchToTarget(ctx, targetID); err != nil {
		return types.NewWindowAttachError(targetID, err)
	}
	if !d.ValidateTarget(targetID) {
		return types.NewWindowAttachError(targetID, nil)
	}

	sess.SetWindow(targetID, windowID)

	if err := m.reg.Register(sess.AgentTag(), targetID, windowID, os.Getpid()); err != nil {
		log.Warn().Err(err).Str("agent_tag", sess.AgentTag()).Msg("window lifecycle: registry registration failed, continuing")
	}

	return nil
}

// CloseWindow implements close_window(): best-effort close the agent's own
// target, unregister it, and clear the window fields in the Session Context.
// The driver and endpoint are left intact.
func (m *Manager) CloseWindow(sess *gatewaysession.Context, d driverHandle) bool {
	targetID, _ := sess.Window()
	if targetID == "" {
		return false
	}

	if err := d.CloseTarget(targetID); err != nil {
		log.Debug().Err(err).Str("target_id", targetID).Msg("window lifecycle: close_window target close failed")
	}

	if err := m.reg.Unregister(sess.AgentTag()); err != nil {
		log.Warn().Err(err).Str("agent_tag", sess.AgentTag()).Msg("window lifecycle: unregister failed")
	}

	sess.ResetWindowState()
	return true
}

// CloseExtraBlankWindows implements _close_extra_blank_windows's safety
// rule: of the candidate targets, only ones whose OS window_id equals
// agentWindowID are eligible for closing. windowIDOf resolves a target's OS
// window id; candidates that cannot be resolved are left alone rather than
// risking closing another agent's window.
func (m *Manager) CloseExtraBlankWindows(d driverHandle, agentWindowID int, candidateTargetIDs []string, windowIDOf func(targetID string) (int, bool)) {
	for _, targetID := range candidateTargetIDs {
		wid, ok := windowIDOf(targetID)
		if !ok || wid != agentWindowID {
			continue
		}
		if err := d.CloseTarget(targetID); err != nil {
			log.Debug().Err(err).Str("target_id", targetID).Msg("window lifecycle: close_extra_blank_windows failed to close a target")
		}
	}
}

// ForceCloseAll implements force_close_all(): quit the driver (which takes
// the whole shared browser process with it) and tear down the Session
// Context. It returns only an error; the Action Lock and coordination files
// are not touched here.
//
// Stray OS processes that match the browser family and user-data-dir are
// not enumerated or terminated, neither here nor by any caller in this
// module.
func (m *Manager) ForceCloseAll(sess *gatewaysession.Context) error {
	if err := sess.TearDown(); err != nil {
		return fmt.Errorf("force_close_all: quit driver: %w", err)
	}
	return nil
}
