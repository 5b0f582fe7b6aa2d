// Package handlers implements the tool surface (spec §6): the thin,
// per-operation business logic that the Exclusive-Access Protocol
// (internal/access) wraps with locking, window readiness, and lock renewal.
// Every exported method returns an access.Handler closure, so a transport
// need only call Guard.Run(ctx, handlers.Navigate(req)) and serialize the
// result.
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/fenwick-labs/browsergate/internal/access"
	"github.com/fenwick-labs/browsergate/internal/config"
	"github.com/fenwick-labs/browsergate/internal/driver"
	"github.com/fenwick-labs/browsergate/internal/gatewaysession"
	"github.com/fenwick-labs/browsergate/internal/humanize"
	"github.com/fenwick-labs/browsergate/internal/registry"
	"github.com/fenwick-labs/browsergate/internal/security"
	"github.com/fenwick-labs/browsergate/internal/selectors"
	"github.com/fenwick-labs/browsergate/internal/window"
)

// Handlers holds the dependencies every tool handler needs beyond what
// access.Guard already injects per call (config for tunables, the selector
// alias table, and the Window Lifecycle manager for the two operations that
// bypass the normal driver-action path).
type Handlers struct {
	cfg *config.Config
	sel *selectors.Manager
	wm  *window.Manager
	reg *registry.Registry
}

// New returns a Handlers bound to one profile key's dependencies.
func New(cfg *config.Config, sel *selectors.Manager, wm *window.Manager, reg *registry.Registry) *Handlers {
	return &Handlers{cfg: cfg, sel: sel, wm: wm, reg: reg}
}

// Snapshot is the post-handler capture described in spec §4.1 step 7: URL,
// title, and truncated HTML. A snapshot failure never fails the handler that
// requested it; callers get a Snapshot with Error set instead, keeping URL and
// Title when only the HTML capture failed.
type Snapshot struct {
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
	HTML  string `json:"html,omitempty"`
	Error string `json:"error,omitempty"`
}

func (h *Handlers) snapshot(d *driver.Driver) Snapshot {
	url, title, err := d.PageInfo()
	if err != nil {
		return Snapshot{Error: err.Error()}
	}
	html, err := d.HTML(h.cfg.SnapshotMaxChars)
	if err != nil {
		return Snapshot{URL: url, Title: title, Error: err.Error()}
	}
	return Snapshot{URL: url, Title: title, HTML: html}
}

// resolveSelector substitutes a registered alias (E3.5) for selector/
// selectorType when selector names one, otherwise returns them unchanged.
func (h *Handlers) resolveSelector(selector, selectorType string) (string, string) {
	if h.sel == nil {
		return selector, selectorType
	}
	if def, ok := h.sel.Resolve(selector); ok {
		return def.Selector, def.Type
	}
	return selector, selectorType
}

func (h *Handlers) jitter() {
	if h.cfg == nil {
		return
	}
	d := humanize.ActionJitter(int(h.cfg.ActionJitterMax / time.Millisecond))
	if d > 0 {
		time.Sleep(d)
	}
}

// StartSessionReply is start_session's success payload (spec §6).
type StartSessionReply struct {
	SessionID      string   `json:"session_id"`
	Debugger       string   `json:"debugger"`
	LockTTLSeconds int      `json:"lock_ttl_seconds"`
	Snapshot       Snapshot `json:"snapshot"`
}

// StartSession implements the start_session tool handler: the window and
// driver are already guaranteed live by the time access.Guard invokes this,
// so the handler only needs to report what got set up.
func (h *Handlers) StartSession() access.Handler {
	return func(ctx context.Context, sess *gatewaysession.Context, d *driver.Driver) (interface{}, error) {
		host, port := sess.Endpoint()
		return StartSessionReply{
			SessionID:      sess.AgentTag(),
			Debugger:       fmt.Sprintf("%s:%d", host, port),
			LockTTLSeconds: int(h.cfg.ActionLockTTL / time.Second),
			Snapshot:       h.snapshot(d),
		}, nil
	}
}

// CloseWindowReply is close_window's success payload.
type CloseWindowReply struct {
	Closed bool `json:"closed"`
}

// CloseWindow implements the close_window tool handler.
func (h *Handlers) CloseWindow() access.Handler {
	return func(ctx context.Context, sess *gatewaysession.Context, d *driver.Driver) (interface{}, error) {
		closed := h.wm.CloseWindow(sess, d)
		return CloseWindowReply{Closed: closed}, nil
	}
}

// ForceCloseAllReply is force_close_all's success payload.
type ForceCloseAllReply struct {
	KilledProcesses []int    `json:"killed_processes"`
	Errors          []string `json:"errors"`
}

// ForceCloseAll implements the force_close_all tool handler. It only tears
// down in-process state via window.Manager.ForceCloseAll. No browser OS
// process is enumerated or terminated here or anywhere else in the gateway,
// so KilledProcesses is always empty.
func (h *Handlers) ForceCloseAll() access.Handler {
	return func(ctx context.Context, sess *gatewaysession.Context, d *driver.Driver) (interface{}, error) {
		reply := ForceCloseAllReply{KilledProcesses: []int{}, Errors: []string{}}
		if err := h.wm.ForceCloseAll(sess); err != nil {
			reply.Errors = append(reply.Errors, err.Error())
		}
		return reply, nil
	}
}

// NavigateRequest is navigate's input.
type NavigateRequest struct {
	URL        string
	WaitFor    string // "load" or "domcontentloaded"
	TimeoutSec int
	Headers    map[string]string // custom HTTP headers applied before navigating
}

// Navigate implements the navigate tool handler, gated by the SSRF checks of
// internal/security before the driver is ever asked to load the URL.
func (h *Handlers) Navigate(req NavigateRequest) access.Handler {
	return func(ctx context.Context, sess *gatewaysession.Context, d *driver.Driver) (interface{}, error) {
		if err := security.ValidateNavigationURL(ctx, req.URL, h.cfg.AllowPrivateTargets); err != nil {
			return nil, fmt.Errorf("navigate target rejected: %w", err)
		}
		if len(req.Headers) > 0 {
			if err := d.SetExtraHeaders(req.Headers); err != nil {
				return nil, fmt.Errorf("navigate headers rejected: %w", err)
			}
		}
		h.jitter()
		if err := d.Navigate(req.URL, req.WaitFor, timeoutOrDefault(req.TimeoutSec)); err != nil {
			return nil, err
		}
		return struct {
			Snapshot Snapshot `json:"snapshot"`
		}{h.snapshot(d)}, nil
	}
}

// WaitForElementRequest is wait_for_element's input.
type WaitForElementRequest struct {
	Selector     string
	SelectorType string
	TimeoutSec   int
}

// WaitForElement implements the wait_for_element tool handler.
func (h *Handlers) WaitForElement(req WaitForElementRequest) access.Handler {
	return func(ctx context.Context, sess *gatewaysession.Context, d *driver.Driver) (interface{}, error) {
		selector, selectorType := h.resolveSelector(req.Selector, req.SelectorType)
		found, err := d.WaitForElement(selector, selectorType, timeoutOrDefault(req.TimeoutSec))
		if err != nil {
			return nil, err
		}
		return struct {
			Found bool `json:"found"`
		}{found}, nil
	}
}

// ClickRequest is click's input.
type ClickRequest struct {
	Selector       string
	SelectorType   string
	TimeoutSec     int
	IframeSelector string
}

// Click implements the click tool handler.
func (h *Handlers) Click(req ClickRequest) access.Handler {
	return func(ctx context.Context, sess *gatewaysession.Context, d *driver.Driver) (interface{}, error) {
		selector, selectorType := h.resolveSelector(req.Selector, req.SelectorType)
		h.jitter()
		if err := d.Click(selector, selectorType, timeoutOrDefault(req.TimeoutSec), req.IframeSelector); err != nil {
			return nil, err
		}
		return struct {
			Snapshot Snapshot `json:"snapshot"`
		}{h.snapshot(d)}, nil
	}
}

// FillRequest is fill's input.
type FillRequest struct {
	Selector       string
	Text           string
	SelectorType   string
	ClearFirst     bool
	TimeoutSec     int
	IframeSelector string
}

// Fill implements the fill tool handler.
func (h *Handlers) Fill(req FillRequest) access.Handler {
	return func(ctx context.Context, sess *gatewaysession.Context, d *driver.Driver) (interface{}, error) {
		selector, selectorType := h.resolveSelector(req.Selector, req.SelectorType)
		h.jitter()
		if err := d.Fill(selector, req.Text, selectorType, req.ClearFirst, timeoutOrDefault(req.TimeoutSec), req.IframeSelector); err != nil {
			return nil, err
		}
		return struct {
			Snapshot Snapshot `json:"snapshot"`
		}{h.snapshot(d)}, nil
	}
}

// SendKeysRequest is send_keys's input.
type SendKeysRequest struct {
	Key          string
	Selector     string
	SelectorType string
}

// SendKeys implements the send_keys tool handler.
func (h *Handlers) SendKeys(req SendKeysRequest) access.Handler {
	return func(ctx context.Context, sess *gatewaysession.Context, d *driver.Driver) (interface{}, error) {
		selector, selectorType := h.resolveSelector(req.Selector, req.SelectorType)
		return nil, d.SendKeys(req.Key, selector, selectorType)
	}
}

// ScrollRequest is scroll's input.
type ScrollRequest struct {
	X, Y float64
}

// Scroll implements the scroll tool handler.
func (h *Handlers) Scroll(req ScrollRequest) access.Handler {
	return func(ctx context.Context, sess *gatewaysession.Context, d *driver.Driver) (interface{}, error) {
		h.jitter()
		return nil, d.Scroll(req.X, req.Y)
	}
}

// TakeScreenshotRequest is take_screenshot's input.
type TakeScreenshotRequest struct {
	ReturnBase64 bool
	Path         string
}

// TakeScreenshot implements the take_screenshot tool handler. It echoes Path
// back in the reply and returns the base64 payload when ReturnBase64 is set
// or Path is empty. No file is written to Path, here or in the transport, so
// a request with Path set and ReturnBase64 false gets no image data.
func (h *Handlers) TakeScreenshot(req TakeScreenshotRequest) access.Handler {
	return func(ctx context.Context, sess *gatewaysession.Context, d *driver.Driver) (interface{}, error) {
		data, err := d.Screenshot()
		if err != nil {
			return nil, err
		}
		reply := struct {
			ImageBase64 string `json:"image_base64,omitempty"`
			Path        string `json:"path,omitempty"`
		}{Path: req.Path}
		if req.ReturnBase64 || req.Path == "" {
			reply.ImageBase64 = data
		}
		return reply, nil
	}
}

// GetCookies implements the cookie-list tool handler.
func (h *Handlers) GetCookies() access.Handler {
	return func(ctx context.Context, sess *gatewaysession.Context, d *driver.Driver) (interface{}, error) {
		cookies, err := d.Cookies()
		if err != nil {
			return nil, err
		}
		return struct {
			Cookies []driver.Cookie `json:"cookies"`
		}{cookies}, nil
	}
}

// SetCookieRequest is the cookie-set tool handler's input.
type SetCookieRequest struct {
	Cookie    driver.Cookie
	TargetURL string
}

// SetCookie implements the cookie-set tool handler.
func (h *Handlers) SetCookie(req SetCookieRequest) access.Handler {
	return func(ctx context.Context, sess *gatewaysession.Context, d *driver.Driver) (interface{}, error) {
		if err := d.SetCookie(req.Cookie, req.TargetURL); err != nil {
			return nil, err
		}
		return struct {
			OK bool `json:"ok"`
		}{true}, nil
	}
}

// ClearCookies implements the cookie-clear tool handler.
func (h *Handlers) ClearCookies() access.Handler {
	return func(ctx context.Context, sess *gatewaysession.Context, d *driver.Driver) (interface{}, error) {
		if err := d.ClearCookies(); err != nil {
			return nil, err
		}
		return struct {
			OK bool `json:"ok"`
		}{true}, nil
	}
}

// DebugElementRequest is debug_element's input.
type DebugElementRequest struct {
	Selector       string
	SelectorType   string
	IframeSelector string
}

// DebugElement implements the debug_element tool handler.
func (h *Handlers) DebugElement(req DebugElementRequest) access.Handler {
	return func(ctx context.Context, sess *gatewaysession.Context, d *driver.Driver) (interface{}, error) {
		selector, selectorType := h.resolveSelector(req.Selector, req.SelectorType)
		diag, err := d.DebugElement(selector, selectorType, timeoutOrDefault(0), req.IframeSelector)
		if err != nil {
			return nil, err
		}
		return struct {
			Diagnostics map[string]interface{} `json:"diagnostics"`
		}{diag}, nil
	}
}

// GetDiagnostics implements the get_diagnostics tool handler: everything
// about coordination state an operator would need without being one of the
// agent processes, per spec §6's "diagnostics, context_state" reply shape.
func (h *Handlers) GetDiagnostics() access.Handler {
	return func(ctx context.Context, sess *gatewaysession.Context, d *driver.Driver) (interface{}, error) {
		url, title, pageErr := d.PageInfo()
		diagnostics := map[string]interface{}{
			"agent_tag":         sess.AgentTag(),
			"driver_initialized": sess.IsDriverInitialized(),
			"window_ready":      sess.IsWindowReady(),
		}
		host, port := sess.Endpoint()
		diagnostics["debugger"] = security.RedactURL(fmt.Sprintf("ws://%s:%d", host, port))
		if pageErr != nil {
			diagnostics["page_error"] = pageErr.Error()
		} else {
			diagnostics["url"] = security.RedactURL(url)
			diagnostics["title"] = title
		}
		if h.cfg.ProxyURL != "" {
			diagnostics["proxy_url"] = security.RedactProxyURL(h.cfg.ProxyURL)
		}
		if h.reg != nil {
			diagnostics["registry_size"] = len(h.reg.Snapshot())
		}

		targetID, windowID := sess.Window()
		contextState := map[string]interface{}{
			"target_id": targetID,
			"window_id": windowID,
		}

		return struct {
			Diagnostics  map[string]interface{} `json:"diagnostics"`
			ContextState map[string]interface{} `json:"context_state"`
		}{diagnostics, contextState}, nil
	}
}

func timeoutOrDefault(sec int) time.Duration {
	if sec <= 0 {
		return 10 * time.Second
	}
	return time.Duration(sec) * time.Second
}
