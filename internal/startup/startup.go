// Package startup implements the Startup Arbiter (spec §4.6): the election
// algorithm that yields exactly one live, developer-mode browser process per
// profile key, with every other process attaching to it instead of racing to
// launch their own.
package startup

import (
	"context"
	"fmt"
	"os"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/rs/zerolog/log"

	"github.com/fenwick-labs/browsergate/internal/coordfs"
	"github.com/fenwick-labs/browsergate/internal/driver"
	"github.com/fenwick-labs/browsergate/internal/filemutex"
	"github.com/fenwick-labs/browsergate/internal/metrics"
	"github.com/fenwick-labs/browsergate/internal/rendezvous"
	"github.com/fenwick-labs/browsergate/internal/types"
)

// DefaultStartupWait bounds how long Arbiter.Ensure waits to acquire the
// startup mutex before falling back to a final rendezvous check.
const DefaultStartupWait = 8 * time.Second

// Spec carries everything the arbiter needs to discover or launch a browser
// for one profile key. It is intentionally independent of *config.Config so
// this package has no dependency on the config shape.
type Spec struct {
	BinaryPath      string
	UserDataDir     string
	ProfileName     string
	FixedDebugPort  int
	AttachAnyProfile bool
	LaunchTimeout   time.Duration
	LaunchExtraArgs []string
	Headless        bool
	ProxyURL        string
	RendezvousTTL   time.Duration
	StartupWait     time.Duration
}

// candidatePorts is probed during permissive attach (step 5) whenever
// AttachAnyProfile is set and no rendezvous/discovery hint led to an attach,
// regardless of FixedDebugPort. Its first entry is also the launch port when
// FixedDebugPort is 0.
var candidatePorts = []int{9222, 9223, 9224, 9229}

// Arbiter runs the Startup Arbiter algorithm for a single profile key.
// Concurrent in-process callers collapse onto a single election via
// singleflight; cross-process callers serialize via the startup File Mutex.
type Arbiter struct {
	pk         string
	fs         *coordfs.FS
	mutex      *filemutex.Mutex
	rendezvous *rendezvous.Store
	group      singleflight.Group

	// attach/launch are overridable for tests that cannot spawn a real
	// browser binary.
	attach func(host string, port int) (*driver.Driver, error)
	launch func(ctx context.Context, spec driver.LaunchSpec, timeout time.Duration) (*driver.Driver, error)
}

const startupMutexFile = ".startup.mutex"

// New returns the Startup Arbiter for pk.
func New(fs *coordfs.FS, pk string, fileMutexStale time.Duration) *Arbiter {
	return &Arbiter{
		pk:         pk,
		fs:         fs,
		mutex:      filemutex.New(fs, pk+startupMutexFile, fileMutexStale),
		rendezvous: rendezvous.New(fs, pk),
		attach:     driver.Attach,
		launch:     driver.Launch,
	}
}

// Ensure runs the 8-step algorithm and returns an attached Driver plus the
// (host, port) it attached to. Concurrent callers within this process share
// one in-flight election.
func (a *Arbiter) Ensure(ctx context.Context, spec Spec) (*driver.Driver, string, int, error) {
	type result struct {
		d    *driver.Driver
		host string
		port int
	}

	v, err, _ := a.group.Do(a.pk, func() (interface{}, error) {
		d, host, port, err := a.ensureLocked(ctx, spec)
		if err != nil {
			return nil, err
		}
		return result{d: d, host: host, port: port}, nil
	})
	if err != nil {
		return nil, "", 0, err
	}
	r := v.(result)
	return r.d, r.host, r.port, nil
}

func (a *Arbiter) ensureLocked(ctx context.Context, spec Spec) (*driver.Driver, string, int, error) {
	ttl := spec.RendezvousTTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	// Step 1: fast path.
	if ep, ok := a.rendezvous.Read(ttl); ok {
		if d, err := a.attach(ep.Host, ep.Port); err == nil {
			metrics.RecordStartupElection("rendezvous")
			log.Debug().Str("pk", a.pk).Str("host", ep.Host).Int("port", ep.Port).Msg("startup arbiter: fast-path rendezvous attach")
			return d, ep.Host, ep.Port, nil
		}
		log.Warn().Str("pk", a.pk).Msg("startup arbiter: fast-path rendezvous endpoint reachable but attach failed")
	}

	wait := spec.StartupWait
	if wait <= 0 {
		wait = DefaultStartupWait
	}

	// Step 2: acquire startup mutex, bounded wait.
	if !a.mutex.Acquire(ctx, wait) {
		if ep, ok := a.rendezvous.Read(ttl); ok {
			if d, err := a.attach(ep.Host, ep.Port); err == nil {
				metrics.RecordStartupElection("rendezvous")
				return d, ep.Host, ep.Port, nil
			}
		}
		return nil, "", 0, types.NewStartupContendedError()
	}
	defer a.mutex.Release()

	// Step 3: re-check under mutex.
	if ep, ok := a.rendezvous.Read(ttl); ok {
		if d, err := a.attach(ep.Host, ep.Port); err == nil {
			metrics.RecordStartupElection("rendezvous")
			log.Debug().Str("pk", a.pk).Msg("startup arbiter: rendezvous valid after acquiring mutex")
			return d, ep.Host, ep.Port, nil
		}
	}

	// Step 4: discovery via the <pk>.active_debug_port.json hint file.
	if host, port, ok := a.discoverActivePort(); ok {
		if d, err := a.attach(host, port); err == nil {
			metrics.RecordStartupElection("discovery")
			a.persist(host, port)
			return d, host, port, nil
		}
	}

	// Step 5: permissive attach to any live browser on a candidate port.
	if spec.AttachAnyProfile {
		for _, port := range candidatePorts {
			if d, err := a.attach("127.0.0.1", port); err == nil {
				metrics.RecordStartupElection("permissive_attach")
				log.Info().Int("port", port).Msg("startup arbiter: permissive attach to existing browser")
				a.persist("127.0.0.1", port)
				return d, "127.0.0.1", port, nil
			}
		}
	}

	// Step 6/7: launch a fresh browser and attach.
	port := spec.FixedDebugPort
	if port == 0 {
		port = candidatePorts[0]
	}
	launchSpec := driver.LaunchSpec{
		BinaryPath:  spec.BinaryPath,
		UserDataDir: spec.UserDataDir,
		ProfileName: spec.ProfileName,
		Port:        port,
		Headless:    spec.Headless,
		ProxyURL:    spec.ProxyURL,
		ExtraArgs:   spec.LaunchExtraArgs,
	}
	launchTimeout := spec.LaunchTimeout
	if launchTimeout <= 0 {
		launchTimeout = 10 * time.Second
	}

	d, err := a.launch(ctx, launchSpec, launchTimeout)
	if err != nil {
		return nil, "", 0, types.NewStartupTimeoutError(fmt.Sprintf("127.0.0.1:%d", port))
	}
	metrics.RecordStartupElection("launch")

	host, actualPort := d.Endpoint()
	a.persist(host, actualPort)
	return d, host, actualPort, nil
}

// discoverActivePort reads <pk>.active_debug_port.json ({"port": N}) from the
// coordination directory. Nothing in this module writes that file, and the
// browser's own active-port file inside the profile directory is not read.
// It is a best-effort hint: absence is not an error.
func (a *Arbiter) discoverActivePort() (host string, port int, ok bool) {
	var rec struct {
		Port int `json:"port"`
	}
	present, err := a.fs.ReadJSON(a.pk+".active_debug_port.json", &rec)
	if err != nil || !present || rec.Port == 0 {
		return "", 0, false
	}
	return "127.0.0.1", rec.Port, true
}

func (a *Arbiter) persist(host string, port int) {
	if err := a.rendezvous.Write(host, port, os.Getpid()); err != nil {
		log.Warn().Err(err).Str("pk", a.pk).Msg("startup arbiter: failed to persist rendezvous")
	}
}
