package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/fenwick-labs/browsergate/internal/config"
	"github.com/fenwick-labs/browsergate/internal/selectors"
)

func TestTimeoutOrDefault(t *testing.T) {
	if got := timeoutOrDefault(0); got != 10*time.Second {
		t.Errorf("timeoutOrDefault(0) = %v, want 10s", got)
	}
	if got := timeoutOrDefault(5); got != 5*time.Second {
		t.Errorf("timeoutOrDefault(5) = %v, want 5s", got)
	}
}

func TestResolveSelectorPassesThroughWithoutManager(t *testing.T) {
	h := &Handlers{}
	selector, selectorType := h.resolveSelector("#submit", "css")
	if selector != "#submit" || selectorType != "css" {
		t.Errorf("got (%q, %q), want (\"#submit\", \"css\")", selector, selectorType)
	}
}

func TestResolveSelectorSubstitutesKnownAlias(t *testing.T) {
	mgr, err := selectors.NewManager("", false)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer mgr.Close()

	h := &Handlers{sel: mgr}
	selector, selectorType := h.resolveSelector("search_box", "")
	def, ok := mgr.Resolve("search_box")
	if !ok {
		t.Fatal("expected embedded defaults to define search_box")
	}
	if selector != def.Selector || selectorType != def.Type {
		t.Errorf("resolveSelector(%q) = (%q, %q), want (%q, %q)", "search_box", selector, selectorType, def.Selector, def.Type)
	}
}

func TestResolveSelectorLeavesUnknownNameAlone(t *testing.T) {
	mgr, err := selectors.NewManager("", false)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	defer mgr.Close()

	h := &Handlers{sel: mgr}
	selector, selectorType := h.resolveSelector("#not-an-alias", "xpath")
	if selector != "#not-an-alias" || selectorType != "xpath" {
		t.Errorf("got (%q, %q), want passthrough", selector, selectorType)
	}
}

func TestNavigateRejectsUnsafeURLBeforeTouchingDriver(t *testing.T) {
	h := &Handlers{cfg: &config.Config{AllowPrivateTargets: false}}
	handler := h.Navigate(NavigateRequest{URL: "http://169.254.169.254/latest/meta-data/", WaitFor: "load"})
	if _, err := handler(context.Background(), nil, nil); err == nil {
		t.Error("expected a cloud-metadata navigate target to be rejected")
	}
}

func TestJitterNoopWithoutConfig(t *testing.T) {
	h := &Handlers{}
	start := time.Now()
	h.jitter()
	if time.Since(start) > 10*time.Millisecond {
		t.Error("jitter() with nil cfg should return immediately")
	}
}
