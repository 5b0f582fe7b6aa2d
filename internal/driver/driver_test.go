package driver

import (
	"testing"
)

// skipCI skips tests that require a real browser binary in short/CI runs.
func skipCI(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping real-browser test in short mode")
	}
}

func TestParseControlURLHostPort(t *testing.T) {
	cases := []struct {
		url      string
		wantHost string
		wantPort int
	}{
		{"ws://127.0.0.1:9222/devtools/browser/abc", "127.0.0.1", 9222},
		{"ws://localhost:1234/devtools/browser/xyz", "localhost", 1234},
		{"wss://example.internal:443/devtools/browser/abc", "example.internal", 443},
	}
	for _, c := range cases {
		host, port := parseControlURL(c.url)
		if host != c.wantHost || port != c.wantPort {
			t.Errorf("parseControlURL(%q) = (%q, %d), want (%q, %d)", c.url, host, port, c.wantHost, c.wantPort)
		}
	}
}

func TestEndpointReflectsAttachedValues(t *testing.T) {
	d := &Driver{host: "127.0.0.1", port: 9333}
	host, port := d.Endpoint()
	if host != "127.0.0.1" || port != 9333 {
		t.Errorf("Endpoint() = (%q, %d), want (127.0.0.1, 9333)", host, port)
	}
}

func TestSetProxyAndStealthAreStoredNotAppliedYet(t *testing.T) {
	d := &Driver{}
	d.SetStealthEnabled(false)
	if d.stealthEnabled {
		t.Error("expected stealthEnabled to be false after SetStealthEnabled(false)")
	}

	cfg := &ProxyConfig{URL: "http://proxy:8080", Username: "u", Password: "p"}
	d.SetProxy(cfg)
	if d.proxy != cfg {
		t.Error("expected SetProxy to store the provided config")
	}
}

func TestCurrentPageErrorsWithoutAWindow(t *testing.T) {
	d := &Driver{}
	if _, err := d.CurrentPage(); err == nil {
		t.Error("expected CurrentPage to fail before any window is created")
	}
}

func TestTargetExistsFalseForEmptyID(t *testing.T) {
	d := &Driver{}
	if d.TargetExists("") {
		t.Error("expected TargetExists(\"\") to be false without calling the browser")
	}
}

func TestCloseTargetNoOpForEmptyID(t *testing.T) {
	d := &Driver{}
	if err := d.CloseTarget(""); err != nil {
		t.Errorf("expected CloseTarget(\"\") to be a no-op, got %v", err)
	}
}

// TestLaunchAndNewWindow stands in for a test that needs a real
// Chromium-family binary on PATH; it is skipped in every run.
func TestLaunchAndNewWindow(t *testing.T) {
	skipCI(t)
	t.Skip("requires a real browser binary; exercised in integration environments only")
}
