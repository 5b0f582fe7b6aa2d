package selectors

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestNewManagerEmbeddedOnly(t *testing.T) {
	m, err := NewManager("", false)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer m.Close()

	aliases := m.Get()
	if len(aliases) == 0 {
		t.Fatal("expected embedded aliases to be present")
	}
	if _, ok := m.Resolve("submit_button"); !ok {
		t.Error("expected submit_button to resolve from embedded defaults")
	}
}

func TestNewManagerExternalFileOverridesAndMerges(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "aliases.yaml")

	content := `
submit_button:
  type: xpath
  selector: "//button[@type='submit']"
custom_widget:
  type: css
  selector: "#my-widget"
`
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write temp alias file: %v", err)
	}

	m, err := NewManager(tmpFile, false)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer m.Close()

	d, ok := m.Resolve("submit_button")
	if !ok || d.Type != "xpath" {
		t.Errorf("expected external file to override submit_button, got %+v ok=%v", d, ok)
	}

	if _, ok := m.Resolve("custom_widget"); !ok {
		t.Error("expected custom_widget from external file to be present")
	}

	if _, ok := m.Resolve("login_password"); !ok {
		t.Error("expected embedded login_password to survive the merge")
	}
}

func TestNewManagerInvalidExternalFileFallsBackToEmbedded(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "aliases.yaml")

	if err := os.WriteFile(tmpFile, []byte("not: [valid"), 0644); err != nil {
		t.Fatalf("failed to write temp alias file: %v", err)
	}

	m, err := NewManager(tmpFile, false)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer m.Close()

	if _, ok := m.Resolve("submit_button"); !ok {
		t.Error("expected fallback to embedded defaults on parse failure")
	}
}

func TestReloadWithoutExternalPathErrors(t *testing.T) {
	m := GetManager()
	defer m.Close()

	if err := m.Reload(); err == nil {
		t.Error("expected Reload to error when no external file is configured")
	}
}

func TestReloadPicksUpFileChanges(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "aliases.yaml")

	if err := os.WriteFile(tmpFile, []byte("foo:\n  type: css\n  selector: \"#foo\"\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m, err := NewManager(tmpFile, false)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer m.Close()

	if err := os.WriteFile(tmpFile, []byte("foo:\n  type: css\n  selector: \"#bar\"\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := m.Reload(); err != nil {
		t.Fatalf("Reload() error = %v", err)
	}

	d, ok := m.Resolve("foo")
	if !ok || d.Selector != "#bar" {
		t.Errorf("expected reload to pick up new selector, got %+v ok=%v", d, ok)
	}

	stats := m.Stats()
	if stats.ReloadCount != 1 {
		t.Errorf("expected reload count 1, got %d", stats.ReloadCount)
	}
}

func TestHotReloadViaFileWatcher(t *testing.T) {
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "aliases.yaml")

	if err := os.WriteFile(tmpFile, []byte("foo:\n  type: css\n  selector: \"#foo\"\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	m, err := NewManager(tmpFile, true)
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	defer m.Close()

	if err := os.WriteFile(tmpFile, []byte("foo:\n  type: css\n  selector: \"#changed\"\n"), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if d, ok := m.Resolve("foo"); ok && d.Selector == "#changed" {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Fatal("expected hot-reload to observe the file change within the deadline")
}

func TestCloseIsIdempotent(t *testing.T) {
	m := GetManager()
	if err := m.Close(); err != nil {
		t.Fatalf("first Close() error = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second Close() error = %v", err)
	}
}
