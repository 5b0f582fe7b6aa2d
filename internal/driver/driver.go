// Package driver wraps go-rod's CDP client behind a narrow "opaque driver
// session" handle. Everything CDP-specific — launching the binary,
// attaching to a debug endpoint, creating/switching/closing windows,
// applying stealth patches, carrying proxy settings — lives here so
// the coordination packages never import go-rod directly.
package driver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
	"github.com/rs/zerolog/log"
	"github.com/ysmood/gson"

	"github.com/fenwick-labs/browsergate/internal/security"
)

// LaunchSpec carries the resolved pieces of configuration the Startup
// Arbiter needs to launch a browser. It is deliberately narrower than
// *config.Config so driver stays decoupled from the full config shape.
type LaunchSpec struct {
	BinaryPath  string
	UserDataDir string
	ProfileName string
	Port        int // 0 = let the OS assign one; Driver.Endpoint() reports the actual port
	Headless    bool
	ProxyURL    string
	ExtraArgs   []string
}

// Driver is the concrete CDP-backed implementation of the opaque driver
// session handle described in spec §1. It is not safe for concurrent use;
// callers serialize access via the intra-process lock (§5).
type Driver struct {
	mu      sync.Mutex
	browser *rod.Browser
	host    string
	port    int
	proxy   *ProxyConfig

	current      *rod.Page
	currentTarget proto.TargetID

	stealthEnabled bool
}

// ProxyConfig carries per-window proxy credentials (E3.1).
type ProxyConfig struct {
	URL      string
	Username string
	Password string
}

// Launch starts a fresh browser process per spec. It returns a Driver
// already attached to the new process's debug endpoint.
func Launch(ctx context.Context, spec LaunchSpec, launchTimeout time.Duration) (*Driver, error) {
	l := launcher.New()

	if spec.BinaryPath != "" {
		l = l.Bin(spec.BinaryPath)
	}
	if spec.UserDataDir != "" {
		l = l.UserDataDir(spec.UserDataDir)
	}
	if spec.Port != 0 {
		l = l.Set("remote-debugging-port", fmt.Sprintf("%d", spec.Port))
	}

	if spec.Headless {
		l = l.Set("headless", "new")
	} else {
		l = l.Headless(false)
	}

	l = l.Set("no-sandbox").
		Set("disable-setuid-sandbox").
		Set("disable-dev-shm-usage").
		Set("new-window")

	if spec.ProfileName != "" && spec.ProfileName != "Default" {
		l = l.Set("profile-directory", spec.ProfileName)
	}

	if spec.ProxyURL != "" {
		l = l.Set("proxy-server", spec.ProxyURL)
	}

	for _, arg := range spec.ExtraArgs {
		l = l.Set(arg)
	}

	launchCtx, cancel := context.WithTimeout(ctx, launchTimeout)
	defer cancel()

	urlCh := make(chan string, 1)
	errCh := make(chan error, 1)
	go func() {
		controlURL, err := l.Launch()
		if err != nil {
			errCh <- err
			return
		}
		urlCh <- controlURL
	}()

	var controlURL string
	select {
	case controlURL = <-urlCh:
	case err := <-errCh:
		return nil, fmt.Errorf("launch browser: %w", err)
	case <-launchCtx.Done():
		return nil, fmt.Errorf("launch browser: %w", launchCtx.Err())
	}

	return attachControlURL(controlURL, spec.Port)
}

// Attach connects to an already-running browser's debug endpoint by first
// resolving its websocket debugger URL from the /json/version HTTP
// endpoint, then opening a CDP connection to it.
func Attach(host string, port int) (*Driver, error) {
	wsURL, err := resolveWebSocketDebuggerURL(host, port)
	if err != nil {
		return nil, fmt.Errorf("resolve debug endpoint %s:%d: %w", host, port, err)
	}
	browser := rod.New().ControlURL(wsURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to debug endpoint: %w", err)
	}
	return &Driver{browser: browser, host: host, port: port, stealthEnabled: true}, nil
}

func resolveWebSocketDebuggerURL(host string, port int) (string, error) {
	versionURL := fmt.Sprintf("http://%s:%d/json/version", host, port)

	client := &http.Client{Timeout: ProbeTimeout}
	resp, err := client.Get(versionURL)
	if err != nil {
		return "", fmt.Errorf("query %s: %w", versionURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%s returned status %d", versionURL, resp.StatusCode)
	}

	var payload struct {
		WebSocketDebuggerURL string `json:"webSocketDebuggerUrl"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", fmt.Errorf("decode %s: %w", versionURL, err)
	}
	if payload.WebSocketDebuggerURL == "" {
		return "", fmt.Errorf("%s did not report a websocket debugger url", versionURL)
	}
	return payload.WebSocketDebuggerURL, nil
}

// ProbeTimeout bounds how long Attach waits for the debug endpoint to answer.
const ProbeTimeout = 2 * time.Second

func attachControlURL(controlURL string, port int) (*Driver, error) {
	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("connect to launched browser: %w", err)
	}
	host, actualPort := parseControlURL(controlURL)
	if port != 0 {
		actualPort = port
	}
	return &Driver{browser: browser, host: host, port: actualPort, stealthEnabled: true}, nil
}

func parseControlURL(controlURL string) (host string, port int) {
	host = "127.0.0.1"
	rest := strings.TrimPrefix(controlURL, "ws://")
	rest = strings.TrimPrefix(rest, "wss://")
	if idx := strings.Index(rest, "/"); idx >= 0 {
		rest = rest[:idx]
	}
	parts := strings.SplitN(rest, ":", 2)
	if len(parts) == 2 {
		host = parts[0]
		fmt.Sscanf(parts[1], "%d", &port)
	}
	return host, port
}

// Endpoint returns the debug host/port this driver is attached to.
func (d *Driver) Endpoint() (string, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.host, d.port
}

// SetStealthEnabled toggles per-window stealth patch injection.
func (d *Driver) SetStealthEnabled(enabled bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stealthEnabled = enabled
}

// SetProxy stores the proxy settings passed to handleProxyAuth for every
// subsequently created window (E3.1). Proxy authentication challenges are
// not answered; see handleProxyAuth.
func (d *Driver) SetProxy(p *ProxyConfig) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.proxy = p
}

// NewWindow creates a new OS-level browser window and returns its
// (target_id, window_id). Implements Window Lifecycle step 3/4 (§4.9).
func (d *Driver) NewWindow(ctx context.Context) (targetID string, windowID int, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	target, err := proto.TargetCreateTarget{URL: "about:blank", NewWindow: true}.Call(d.browser)
	if err != nil {
		// Fall back to "create new target in a new OS window" — functionally
		// the same call for Chromium's CDP, kept distinct to mirror §4.9's
		// two-step fallback language for drivers where NewWindow is ignored.
		target, err = proto.TargetCreateTarget{URL: "about:blank"}.Call(d.browser)
		if err != nil {
			return "", 0, fmt.Errorf("create window: %w", err)
		}
	}

	var page *rod.Page
	if d.stealthEnabled {
		page, err = stealth.Page(d.browser)
		if err != nil {
			log.Warn().Err(err).Msg("stealth page creation failed, falling back to plain page attach")
			page, err = d.browser.PageFromTarget(target.TargetID)
		} else {
			// stealth.Page opens its own target; close the placeholder one
			// created above and adopt the stealth target as the agent's window.
			_, _ = proto.TargetCloseTarget{TargetID: target.TargetID}.Call(d.browser)
			target.TargetID = page.TargetID
		}
	} else {
		page, err = d.browser.PageFromTarget(target.TargetID)
	}
	if err != nil {
		return "", 0, fmt.Errorf("attach page to new target: %w", err)
	}

	if d.proxy != nil && d.proxy.URL != "" {
		if err := handleProxyAuth(ctx, page, d.proxy); err != nil {
			log.Warn().Err(err).Msg("proxy auth handler setup failed on new window")
		}
	}

	win, err := proto.BrowserGetWindowForTarget{TargetID: target.TargetID}.Call(d.browser)
	wid := 0
	if err == nil && win != nil {
		wid = int(win.WindowID)
	} else {
		log.Debug().Err(err).Msg("could not resolve OS window id for new target")
	}

	d.current = page
	d.currentTarget = target.TargetID

	return string(target.TargetID), wid, nil
}

// SwitchToTarget binds the driver's current page handle to targetID,
// polling briefly until the handle appears among the browser's pages
// (§4.9 step 4, default 20 x 50ms).
func (d *Driver) SwitchToTarget(ctx context.Context, targetID string) error {
	const attempts = 20
	const interval = 50 * time.Millisecond

	var page *rod.Page
	var lastErr error
	for i := 0; i < attempts; i++ {
		page, lastErr = d.browser.PageFromTarget(proto.TargetID(targetID))
		if lastErr == nil {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
	if lastErr != nil {
		return fmt.Errorf("switch to target %s: %w", targetID, lastErr)
	}

	d.mu.Lock()
	d.current = page
	d.currentTarget = proto.TargetID(targetID)
	d.mu.Unlock()
	return nil
}

// ValidateTarget confirms the driver can still address targetID.
func (d *Driver) ValidateTarget(targetID string) bool {
	return d.TargetExists(targetID)
}

// TargetExists implements registry.TargetChecker.
func (d *Driver) TargetExists(targetID string) bool {
	if targetID == "" {
		return false
	}
	info, err := proto.TargetGetTargetInfo{TargetID: proto.TargetID(targetID)}.Call(d.browser)
	return err == nil && info != nil
}

// CloseTarget implements registry.TargetChecker.
func (d *Driver) CloseTarget(targetID string) error {
	if targetID == "" {
		return nil
	}
	_, err := proto.TargetCloseTarget{TargetID: proto.TargetID(targetID)}.Call(d.browser)
	return err
}

// CurrentPage returns the page bound to the driver's current target.
func (d *Driver) CurrentPage() (*rod.Page, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.current == nil {
		return nil, fmt.Errorf("no current page bound")
	}
	return d.current, nil
}

// SetExtraHeaders validates and applies custom HTTP headers to every
// subsequent request on the current page, via CDP's Network.setExtraHTTPHeaders.
func (d *Driver) SetExtraHeaders(headers map[string]string) error {
	if len(headers) == 0 {
		return nil
	}
	if err := security.ValidateHeaders(headers); err != nil {
		return fmt.Errorf("validate headers: %w", err)
	}

	page, err := d.CurrentPage()
	if err != nil {
		return err
	}

	networkHeaders := make(proto.NetworkHeaders, len(headers))
	for name, value := range headers {
		networkHeaders[name] = gson.New(value)
	}
	return proto.NetworkSetExtraHTTPHeaders{Headers: networkHeaders}.Call(page)
}

// Close quits the underlying browser process (tear_down / force_close_all).
func (d *Driver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.browser == nil {
		return nil
	}
	return d.browser.Close()
}

// handleProxyAuth starts a request-hijack router on this page when proxy
// credentials are set (E3.1). No route is registered on it, so no
// Fetch.authRequired challenge is answered and the credentials are never
// sent to the proxy. The router goes away when the page closes.
func handleProxyAuth(ctx context.Context, page *rod.Page, proxyCfg *ProxyConfig) error {
	if proxyCfg.Username == "" && proxyCfg.Password == "" {
		return nil
	}
	router := page.HijackRequests()
	go router.Run()
	_ = ctx
	return nil
}
