// Package gatewaysession implements the Session Context (spec §4.7): the
// process-wide singleton holding the driver handle, the current window
// binding, and the intra-process lock every tool handler serializes on.
package gatewaysession

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fenwick-labs/browsergate/internal/driver"
)

// Context is the process-wide Session Context for one profile key. Callers
// obtain it via Get and never construct it directly, so there is exactly one
// instance per process.
type Context struct {
	// IntraLock serializes in-process tool handler execution (invariant 2).
	// Holding it across suspension points is mandatory for callers; see the
	// Exclusive-Access Protocol.
	IntraLock sync.Mutex

	mu sync.Mutex

	pk        string
	coordDir  string
	driver    *driver.Driver
	debugHost string
	debugPort int
	targetID  string
	windowID  int
	agentTag  string
}

var (
	registryMu sync.Mutex
	registry   = map[string]*Context{}
)

// Get returns the singleton Context for pk, creating it lazily on first
// access within this process.
func Get(pk, coordDir string) *Context {
	registryMu.Lock()
	defer registryMu.Unlock()
	if ctx, ok := registry[pk]; ok {
		return ctx
	}
	ctx := &Context{pk: pk, coordDir: coordDir}
	registry[pk] = ctx
	return ctx
}

// ResetContext discards the singleton for pk. Used only by tests: production
// code never replaces a live Session Context, per §4.7.
func ResetContext(pk string) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(registry, pk)
}

// EnsureAgentTag lazily generates and returns this process's agent identity.
// The format agent:<pid>:<unix_ms>:<uuid> keeps it both human-diagnosable
// and collision-free across processes and restarts.
func (c *Context) EnsureAgentTag() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.agentTag == "" {
		c.agentTag = fmt.Sprintf("agent:%d:%d:%s", os.Getpid(), time.Now().UnixMilli(), uuid.NewString())
	}
	return c.agentTag
}

// AgentTag returns the current agent tag without generating one.
func (c *Context) AgentTag() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.agentTag
}

// IsDriverInitialized reports whether a driver is attached.
func (c *Context) IsDriverInitialized() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.driver != nil
}

// IsWindowReady reports whether a driver is attached and a target is bound
// (invariant 3/4).
func (c *Context) IsWindowReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.driver != nil && c.targetID != ""
}

// SetDriver records the attached driver and the endpoint it is bound to,
// invoked by the Startup Arbiter on success.
func (c *Context) SetDriver(d *driver.Driver, host string, port int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.driver = d
	c.debugHost = host
	c.debugPort = port
}

// Driver returns the currently attached driver, or nil.
func (c *Context) Driver() *driver.Driver {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.driver
}

// Endpoint returns the bound debug endpoint.
func (c *Context) Endpoint() (host string, port int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.debugHost, c.debugPort
}

// SetWindow records the window this agent owns, invoked by Window Lifecycle
// after ensure_window succeeds.
func (c *Context) SetWindow(targetID string, windowID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targetID = targetID
	c.windowID = windowID
}

// Window returns the currently bound (target_id, window_id).
func (c *Context) Window() (targetID string, windowID int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.targetID, c.windowID
}

// ResetWindowState clears target_id/window_id only, per §4.7. Used on
// voluntary close_window; the driver and endpoint remain bound.
func (c *Context) ResetWindowState() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.targetID = ""
	c.windowID = 0
}

// TearDown quits the driver if any and clears endpoint and window fields.
// Used only by the force_close_all path (§4.7); the agent tag survives so
// diagnostics can still attribute the teardown to this process.
func (c *Context) TearDown() error {
	c.mu.Lock()
	d := c.driver
	c.driver = nil
	c.debugHost = ""
	c.debugPort = 0
	c.targetID = ""
	c.windowID = 0
	c.mu.Unlock()

	if d == nil {
		return nil
	}
	return d.Close()
}

// CoordDir returns the coordination directory this context was created with.
func (c *Context) CoordDir() string { return c.coordDir }

// ProfileKey returns the profile key this context was created for.
func (c *Context) ProfileKey() string { return c.pk }
