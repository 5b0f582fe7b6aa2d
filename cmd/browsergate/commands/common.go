package commands

import (
	"time"

	"github.com/spf13/afero"

	"github.com/fenwick-labs/browsergate/internal/actionlock"
	"github.com/fenwick-labs/browsergate/internal/config"
	"github.com/fenwick-labs/browsergate/internal/coordfs"
	"github.com/fenwick-labs/browsergate/internal/coordkey"
	"github.com/fenwick-labs/browsergate/internal/gatewaysession"
	"github.com/fenwick-labs/browsergate/internal/registry"
	"github.com/fenwick-labs/browsergate/internal/startup"
	"github.com/fenwick-labs/browsergate/internal/window"
)

// coordination bundles the profile-scoped components every subcommand needs,
// built the same way regardless of whether it ends up serving HTTP or just
// peeking at coordination files.
type coordination struct {
	cfg     *config.Config
	pk      string
	fs      *coordfs.FS
	sess    *gatewaysession.Context
	lock    *actionlock.Lock
	arbiter *startup.Arbiter
	reg     *registry.Registry
	wm      *window.Manager
}

func buildCoordination() (*coordination, error) {
	cfg := config.Load()
	cfg.Validate()

	pk, err := coordkey.Compute(cfg.PrimaryUserDataDir, cfg.ProfileName, cfg.StrictProfile)
	if err != nil {
		return nil, err
	}

	fs, err := coordfs.New(afero.NewOsFs(), cfg.CoordDir)
	if err != nil {
		return nil, err
	}

	reg := registry.New(fs, pk, cfg.FileMutexStale)
	return &coordination{
		cfg:     cfg,
		pk:      pk,
		fs:      fs,
		sess:    gatewaysession.Get(pk, cfg.CoordDir),
		lock:    actionlock.New(fs, pk, cfg.FileMutexStale),
		arbiter: startup.New(fs, pk, cfg.FileMutexStale),
		reg:     reg,
		wm:      window.New(reg),
	}, nil
}

// staleThreshold is how old a registry entry's heartbeat may get before
// scan_and_clean treats it as orphaned, per §4.4.
func (c *coordination) staleThreshold() time.Duration {
	return c.cfg.RegistryStale
}
