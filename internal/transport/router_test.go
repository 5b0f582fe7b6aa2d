package transport

import (
	"encoding/json"
	"testing"

	"github.com/fenwick-labs/browsergate/internal/handlers"
)

func TestOpTableCoversSpecToolSurfaceMinusUnlock(t *testing.T) {
	want := []string{
		"start_session", "close_window", "force_close_all",
		"navigate", "wait_for_element", "click", "fill", "send_keys", "scroll",
		"take_screenshot", "get_cookies", "set_cookie", "clear_cookies",
		"debug_element", "get_diagnostics",
	}
	for _, op := range want {
		if _, ok := opTable[op]; !ok {
			t.Errorf("opTable missing %q", op)
		}
	}
	if _, ok := opTable["unlock"]; ok {
		t.Error("unlock should not be in opTable: it is intercepted before dispatch")
	}
}

func TestBuildNavigateRequiresURL(t *testing.T) {
	h := &handlers.Handlers{}
	if _, err := buildNavigate(h, json.RawMessage(`{"wait_for":"load"}`)); err == nil {
		t.Error("expected missing url to error")
	}
	handler, err := buildNavigate(h, json.RawMessage(`{"url":"https://example.com","wait_for":"load","timeout_sec":5}`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if handler == nil {
		t.Error("expected a non-nil handler")
	}
}

func TestBuildClickRequiresSelector(t *testing.T) {
	h := &handlers.Handlers{}
	if _, err := buildClick(h, json.RawMessage(`{"selector_type":"css"}`)); err == nil {
		t.Error("expected missing selector to error")
	}
}

func TestBuildSendKeysRequiresKey(t *testing.T) {
	h := &handlers.Handlers{}
	if _, err := buildSendKeys(h, json.RawMessage(`{"selector":"#x"}`)); err == nil {
		t.Error("expected missing key to error")
	}
}

func TestBuildSetCookieRequiresName(t *testing.T) {
	h := &handlers.Handlers{}
	if _, err := buildSetCookie(h, json.RawMessage(`{"cookie":{"value":"v"}}`)); err == nil {
		t.Error("expected missing cookie.name to error")
	}
}

func TestDecodeEmptyParamsIsNoop(t *testing.T) {
	var req struct {
		X int `json:"x"`
	}
	if err := decode(nil, &req); err != nil {
		t.Errorf("decode(nil, ...) should be a no-op, got %v", err)
	}
}

func TestDecodeRejectsMalformedJSON(t *testing.T) {
	var req struct {
		X int `json:"x"`
	}
	if err := decode(json.RawMessage(`{not json`), &req); err == nil {
		t.Error("expected malformed JSON to error")
	}
}

func TestStatusForMapsKnownErrorClasses(t *testing.T) {
	cases := map[string]int{
		"lock_busy":              409,
		"config_error":           400,
		"driver_not_initialized": 503,
		"window_lost":            503,
		"handler_error":          500,
		"":                       500,
	}
	for errClass, want := range cases {
		if got := statusFor(errClass); got != want {
			t.Errorf("statusFor(%q) = %d, want %d", errClass, got, want)
		}
	}
}
