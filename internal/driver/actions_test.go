package driver

import "testing"

func TestNamedKeysCoversCommonControlKeys(t *testing.T) {
	for _, k := range []string{"Enter", "Tab", "Escape", "ArrowDown"} {
		if _, ok := namedKeys[k]; !ok {
			t.Errorf("expected namedKeys to define %q", k)
		}
	}
}

func TestSendKeysRejectsUnknownKey(t *testing.T) {
	d := &Driver{}
	if err := d.SendKeys("Supercalifragilistic", "", ""); err == nil {
		t.Error("expected an unsupported key name to error before touching the page")
	}
}

// Navigate, Click, Fill, Scroll, Screenshot, Cookies, DebugElement, and
// PageInfo all require a real CDP connection and have no tests in this
// package; driver_test.go's TestLaunchAndNewWindow is always skipped.
