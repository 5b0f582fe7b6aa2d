package driver

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/proto"
)

// namedKeys maps the tool surface's key names to go-rod's input.Key
// constants.
var namedKeys = map[string]input.Key{
	"Enter":      input.Enter,
	"Tab":        input.Tab,
	"Escape":     input.Escape,
	"Backspace":  input.Backspace,
	"Delete":     input.Delete,
	"ArrowUp":    input.ArrowUp,
	"ArrowDown":  input.ArrowDown,
	"ArrowLeft":  input.ArrowLeft,
	"ArrowRight": input.ArrowRight,
	"Home":       input.Home,
	"End":        input.End,
	"PageUp":     input.PageUp,
	"PageDown":   input.PageDown,
	"Space":      input.Space,
}

// Cookie mirrors the fields a tool-surface cookie operation reads or writes,
// independent of go-rod's wire types.
type Cookie struct {
	Name     string
	Value    string
	Domain   string
	Path     string
	Secure   bool
	HTTPOnly bool
	SameSite string
	Expires  float64
}

// resolveFrame returns page itself, or the content frame of the iframe
// matched by iframeSelector when one is given, for reaching into elements
// nested inside embedded widgets (e.g. challenge iframes).
func resolveFrame(page *rod.Page, iframeSelector string, timeout time.Duration) (*rod.Page, error) {
	if iframeSelector == "" {
		return page, nil
	}
	iframe, err := page.Timeout(timeout).Element(iframeSelector)
	if err != nil {
		return nil, fmt.Errorf("find iframe %q: %w", iframeSelector, err)
	}
	defer iframe.Release()

	frame, err := iframe.Frame()
	if err != nil {
		return nil, fmt.Errorf("enter iframe %q: %w", iframeSelector, err)
	}
	return frame, nil
}

// resolveElement finds an element by selector within a CSS/XPath/ID
// dialect, honoring an overall timeout.
func resolveElement(page *rod.Page, selector, selectorType string, timeout time.Duration) (*rod.Element, error) {
	p := page.Timeout(timeout)
	switch selectorType {
	case "xpath":
		return p.ElementX(selector)
	case "id":
		return p.Element("#" + selector)
	default:
		return p.Element(selector)
	}
}

// Navigate loads url on the current page and waits for the requested
// readiness signal.
func (d *Driver) Navigate(url, waitFor string, timeout time.Duration) error {
	page, err := d.CurrentPage()
	if err != nil {
		return err
	}
	p := page.Timeout(timeout)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("navigate to %s: %w", url, err)
	}
	switch waitFor {
	case "domcontentloaded":
		if err := p.WaitDOMStable(300*time.Millisecond, 0); err != nil {
			return fmt.Errorf("wait domcontentloaded: %w", err)
		}
	default:
		if err := p.WaitLoad(); err != nil {
			return fmt.Errorf("wait load: %w", err)
		}
	}
	return nil
}

// WaitForElement polls for selector's presence until timeout.
func (d *Driver) WaitForElement(selector, selectorType string, timeout time.Duration) (bool, error) {
	page, err := d.CurrentPage()
	if err != nil {
		return false, err
	}
	el, err := resolveElement(page, selector, selectorType, timeout)
	if err != nil {
		return false, nil
	}
	defer el.Release()
	return true, nil
}

// Click resolves selector (optionally inside iframeSelector) and clicks it.
func (d *Driver) Click(selector, selectorType string, timeout time.Duration, iframeSelector string) error {
	page, err := d.CurrentPage()
	if err != nil {
		return err
	}
	frame, err := resolveFrame(page, iframeSelector, timeout)
	if err != nil {
		return err
	}
	el, err := resolveElement(frame, selector, selectorType, timeout)
	if err != nil {
		return fmt.Errorf("find element %q: %w", selector, err)
	}
	defer el.Release()
	if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
		return fmt.Errorf("click %q: %w", selector, err)
	}
	return nil
}

// Fill resolves selector and types text into it, optionally clearing first.
func (d *Driver) Fill(selector, text, selectorType string, clearFirst bool, timeout time.Duration, iframeSelector string) error {
	page, err := d.CurrentPage()
	if err != nil {
		return err
	}
	frame, err := resolveFrame(page, iframeSelector, timeout)
	if err != nil {
		return err
	}
	el, err := resolveElement(frame, selector, selectorType, timeout)
	if err != nil {
		return fmt.Errorf("find element %q: %w", selector, err)
	}
	defer el.Release()

	if clearFirst {
		if err := el.SelectAllText(); err == nil {
			_ = el.Input("")
		}
	}
	if err := el.Input(text); err != nil {
		return fmt.Errorf("fill %q: %w", selector, err)
	}
	return nil
}

// SendKeys dispatches a single named key (see namedKeys) to selector, or to
// the page's currently focused element if selector is empty.
func (d *Driver) SendKeys(key, selector, selectorType string) error {
	k, ok := namedKeys[key]
	if !ok {
		return fmt.Errorf("unsupported key %q", key)
	}

	page, err := d.CurrentPage()
	if err != nil {
		return err
	}

	if selector == "" {
		return page.Keyboard.Press(k)
	}

	el, err := resolveElement(page, selector, selectorType, 5*time.Second)
	if err != nil {
		return fmt.Errorf("find element %q: %w", selector, err)
	}
	defer el.Release()
	if err := el.Focus(); err != nil {
		return fmt.Errorf("focus %q: %w", selector, err)
	}
	return page.Keyboard.Press(k)
}

// Scroll scrolls the current page by the given x/y offset, as one
// mouse-wheel step relative to the current scroll position.
func (d *Driver) Scroll(x, y float64) error {
	page, err := d.CurrentPage()
	if err != nil {
		return err
	}
	return page.Mouse.Scroll(x, y, 1)
}

// Screenshot captures the current page as a PNG, base64-encoded.
func (d *Driver) Screenshot() (string, error) {
	page, err := d.CurrentPage()
	if err != nil {
		return "", err
	}
	data, err := page.Screenshot(true, &proto.PageCaptureScreenshot{
		Format: proto.PageCaptureScreenshotFormatPng,
	})
	if err != nil {
		return "", fmt.Errorf("screenshot: %w", err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// HTML returns the current page's outer HTML, truncated to maxChars.
func (d *Driver) HTML(maxChars int) (string, error) {
	page, err := d.CurrentPage()
	if err != nil {
		return "", err
	}
	html, err := page.HTML()
	if err != nil {
		return "", fmt.Errorf("read html: %w", err)
	}
	if maxChars > 0 && len(html) > maxChars {
		html = html[:maxChars]
	}
	return html, nil
}

// Cookies returns all cookies visible to the current page.
func (d *Driver) Cookies() ([]Cookie, error) {
	page, err := d.CurrentPage()
	if err != nil {
		return nil, err
	}
	cdpCookies, err := page.Cookies(nil)
	if err != nil {
		return nil, fmt.Errorf("read cookies: %w", err)
	}
	out := make([]Cookie, 0, len(cdpCookies))
	for _, c := range cdpCookies {
		out = append(out, Cookie{
			Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path,
			Secure: c.Secure, HTTPOnly: c.HTTPOnly, SameSite: string(c.SameSite), Expires: float64(c.Expires),
		})
	}
	return out, nil
}

// SetCookie writes a single cookie against the current page's browser.
func (d *Driver) SetCookie(c Cookie, targetURL string) error {
	page, err := d.CurrentPage()
	if err != nil {
		return err
	}
	param := &proto.NetworkCookieParam{
		Name: c.Name, Value: c.Value, Domain: c.Domain, Path: c.Path,
		Secure: c.Secure, HTTPOnly: c.HTTPOnly,
	}
	if param.Domain == "" && param.Path == "" {
		param.URL = targetURL
	}
	return page.SetCookies([]*proto.NetworkCookieParam{param})
}

// ClearCookies removes every cookie visible to the current page's browser.
func (d *Driver) ClearCookies() error {
	page, err := d.CurrentPage()
	if err != nil {
		return err
	}
	return proto.NetworkClearBrowserCookies{}.Call(page)
}

// DebugElement reports low-level facts about an element for diagnosis:
// bounding box, visibility, attributes, and matched text.
func (d *Driver) DebugElement(selector, selectorType string, timeout time.Duration, iframeSelector string) (map[string]interface{}, error) {
	page, err := d.CurrentPage()
	if err != nil {
		return nil, err
	}
	frame, err := resolveFrame(page, iframeSelector, timeout)
	if err != nil {
		return nil, err
	}
	el, err := resolveElement(frame, selector, selectorType, timeout)
	if err != nil {
		return map[string]interface{}{"found": false, "error": err.Error()}, nil
	}
	defer el.Release()

	diag := map[string]interface{}{"found": true}
	if visible, err := el.Visible(); err == nil {
		diag["visible"] = visible
	}
	if shape, err := el.Shape(); err == nil && shape != nil {
		diag["bounds"] = shape.Box()
	}
	if text, err := el.Text(); err == nil {
		diag["text"] = text
	}
	return diag, nil
}

// PageInfo reports the current page's URL and title for get_diagnostics.
func (d *Driver) PageInfo() (url, title string, err error) {
	page, err := d.CurrentPage()
	if err != nil {
		return "", "", err
	}
	info, err := page.Info()
	if err != nil {
		return "", "", fmt.Errorf("page info: %w", err)
	}
	return info.URL, info.Title, nil
}
