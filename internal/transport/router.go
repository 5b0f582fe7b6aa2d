package transport

import (
	"encoding/json"
	"fmt"

	"github.com/fenwick-labs/browsergate/internal/access"
	"github.com/fenwick-labs/browsergate/internal/driver"
	"github.com/fenwick-labs/browsergate/internal/handlers"
)

// opTable maps the tool surface's op names to a decoder+builder for that op.
// Kept as a package-level map (rather than a switch) so unknown ops are
// rejected by a single lookup.
var opTable = map[string]opHandler{
	"start_session":    func(h *handlers.Handlers, _ json.RawMessage) (access.Handler, error) { return h.StartSession(), nil },
	"close_window":     func(h *handlers.Handlers, _ json.RawMessage) (access.Handler, error) { return h.CloseWindow(), nil },
	"force_close_all":  func(h *handlers.Handlers, _ json.RawMessage) (access.Handler, error) { return h.ForceCloseAll(), nil },
	"navigate":         buildNavigate,
	"wait_for_element": buildWaitForElement,
	"click":            buildClick,
	"fill":             buildFill,
	"send_keys":        buildSendKeys,
	"scroll":           buildScroll,
	"take_screenshot":  buildTakeScreenshot,
	"get_cookies":      func(h *handlers.Handlers, _ json.RawMessage) (access.Handler, error) { return h.GetCookies(), nil },
	"set_cookie":       buildSetCookie,
	"clear_cookies":    func(h *handlers.Handlers, _ json.RawMessage) (access.Handler, error) { return h.ClearCookies(), nil },
	"debug_element":    buildDebugElement,
	"get_diagnostics":  func(h *handlers.Handlers, _ json.RawMessage) (access.Handler, error) { return h.GetDiagnostics(), nil },
}

// unlock is intercepted in Server.handleAPI before this table is consulted;
// see unlock.go for why it bypasses access.Guard.Run entirely.

func decode(params json.RawMessage, v interface{}) error {
	if len(params) == 0 {
		return nil
	}
	if err := json.Unmarshal(params, v); err != nil {
		return fmt.Errorf("decode params: %w", err)
	}
	return nil
}

func buildNavigate(h *handlers.Handlers, params json.RawMessage) (access.Handler, error) {
	var req struct {
		URL        string            `json:"url"`
		WaitFor    string            `json:"wait_for"`
		TimeoutSec int               `json:"timeout_sec"`
		Headers    map[string]string `json:"headers"`
	}
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	if req.URL == "" {
		return nil, fmt.Errorf("url is required")
	}
	return h.Navigate(handlers.NavigateRequest{URL: req.URL, WaitFor: req.WaitFor, TimeoutSec: req.TimeoutSec, Headers: req.Headers}), nil
}

func buildWaitForElement(h *handlers.Handlers, params json.RawMessage) (access.Handler, error) {
	var req struct {
		Selector     string `json:"selector"`
		SelectorType string `json:"selector_type"`
		TimeoutSec   int    `json:"timeout_sec"`
	}
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	if req.Selector == "" {
		return nil, fmt.Errorf("selector is required")
	}
	return h.WaitForElement(handlers.WaitForElementRequest{Selector: req.Selector, SelectorType: req.SelectorType, TimeoutSec: req.TimeoutSec}), nil
}

func buildClick(h *handlers.Handlers, params json.RawMessage) (access.Handler, error) {
	var req struct {
		Selector       string `json:"selector"`
		SelectorType   string `json:"selector_type"`
		TimeoutSec     int    `json:"timeout_sec"`
		IframeSelector string `json:"iframe_selector"`
	}
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	if req.Selector == "" {
		return nil, fmt.Errorf("selector is required")
	}
	return h.Click(handlers.ClickRequest{
		Selector: req.Selector, SelectorType: req.SelectorType,
		TimeoutSec: req.TimeoutSec, IframeSelector: req.IframeSelector,
	}), nil
}

func buildFill(h *handlers.Handlers, params json.RawMessage) (access.Handler, error) {
	var req struct {
		Selector       string `json:"selector"`
		Text           string `json:"text"`
		SelectorType   string `json:"selector_type"`
		ClearFirst     bool   `json:"clear_first"`
		TimeoutSec     int    `json:"timeout_sec"`
		IframeSelector string `json:"iframe_selector"`
	}
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	if req.Selector == "" {
		return nil, fmt.Errorf("selector is required")
	}
	return h.Fill(handlers.FillRequest{
		Selector: req.Selector, Text: req.Text, SelectorType: req.SelectorType,
		ClearFirst: req.ClearFirst, TimeoutSec: req.TimeoutSec, IframeSelector: req.IframeSelector,
	}), nil
}

func buildSendKeys(h *handlers.Handlers, params json.RawMessage) (access.Handler, error) {
	var req struct {
		Key          string `json:"key"`
		Selector     string `json:"selector"`
		SelectorType string `json:"selector_type"`
	}
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	if req.Key == "" {
		return nil, fmt.Errorf("key is required")
	}
	return h.SendKeys(handlers.SendKeysRequest{Key: req.Key, Selector: req.Selector, SelectorType: req.SelectorType}), nil
}

func buildScroll(h *handlers.Handlers, params json.RawMessage) (access.Handler, error) {
	var req struct {
		X float64 `json:"x"`
		Y float64 `json:"y"`
	}
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	return h.Scroll(handlers.ScrollRequest{X: req.X, Y: req.Y}), nil
}

func buildTakeScreenshot(h *handlers.Handlers, params json.RawMessage) (access.Handler, error) {
	var req struct {
		ReturnBase64 bool   `json:"return_base64"`
		Path         string `json:"path"`
	}
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	return h.TakeScreenshot(handlers.TakeScreenshotRequest{ReturnBase64: req.ReturnBase64, Path: req.Path}), nil
}

func buildSetCookie(h *handlers.Handlers, params json.RawMessage) (access.Handler, error) {
	var req struct {
		Cookie    driver.Cookie `json:"cookie"`
		TargetURL string        `json:"target_url"`
	}
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	if req.Cookie.Name == "" {
		return nil, fmt.Errorf("cookie.name is required")
	}
	return h.SetCookie(handlers.SetCookieRequest{Cookie: req.Cookie, TargetURL: req.TargetURL}), nil
}

func buildDebugElement(h *handlers.Handlers, params json.RawMessage) (access.Handler, error) {
	var req struct {
		Selector       string `json:"selector"`
		SelectorType   string `json:"selector_type"`
		IframeSelector string `json:"iframe_selector"`
	}
	if err := decode(params, &req); err != nil {
		return nil, err
	}
	if req.Selector == "" {
		return nil, fmt.Errorf("selector is required")
	}
	return h.DebugElement(handlers.DebugElementRequest{
		Selector: req.Selector, SelectorType: req.SelectorType, IframeSelector: req.IframeSelector,
	}), nil
}
