package coordkey

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/fenwick-labs/browsergate/internal/types"
)

func TestComputeDeterministic(t *testing.T) {
	dir := t.TempDir()

	k1, err := Compute(dir, "Default", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	k2, err := Compute(dir, "Default", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k1 != k2 {
		t.Errorf("expected deterministic key, got %q and %q", k1, k2)
	}
	if len(k1) != 64 {
		t.Errorf("expected 64 hex chars (sha256), got %d", len(k1))
	}
}

func TestComputeDefaultsProfileName(t *testing.T) {
	dir := t.TempDir()

	withDefault, err := Compute(dir, "", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	explicit, err := Compute(dir, DefaultProfileName, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if withDefault != explicit {
		t.Error("expected empty profile name to default to 'Default'")
	}
}

func TestComputeDistinctForDifferentProfiles(t *testing.T) {
	dir := t.TempDir()

	a, _ := Compute(dir, "Alice", false)
	b, _ := Compute(dir, "Bob", false)
	if a == b {
		t.Error("expected distinct keys for distinct profile names")
	}
}

func TestComputeDistinctForDifferentDirs(t *testing.T) {
	a, _ := Compute(t.TempDir(), "Default", false)
	b, _ := Compute(t.TempDir(), "Default", false)
	if a == b {
		t.Error("expected distinct keys for distinct user-data-dirs")
	}
}

func TestComputeEmptyDirIsConfigError(t *testing.T) {
	_, err := Compute("", "Default", false)
	if err != types.ErrUserDataDirRequired {
		t.Errorf("expected ErrUserDataDirRequired, got %v", err)
	}
}

func TestComputeStrictMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "does-not-exist")
	_, err := Compute(dir, "Default", true)
	if err != types.ErrProfileDirMissing {
		t.Errorf("expected ErrProfileDirMissing, got %v", err)
	}
}

func TestComputeStrictExistingDir(t *testing.T) {
	dir := t.TempDir()
	_, err := Compute(dir, "Default", true)
	if err != nil {
		t.Errorf("unexpected error for existing dir: %v", err)
	}
}

func TestComputeNonStrictToleratesMissingDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "not-there-yet")
	_, err := Compute(dir, "Default", false)
	if err != nil {
		t.Errorf("non-strict mode should tolerate a missing dir, got %v", err)
	}
}

func TestComputeRelativeVsAbsoluteEquivalent(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	defer os.Chdir(wd)

	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}

	abs, err := Compute(dir, "Default", false)
	if err != nil {
		t.Fatal(err)
	}
	rel, err := Compute(".", "Default", false)
	if err != nil {
		t.Fatal(err)
	}
	if abs != rel {
		t.Error("expected relative and absolute paths to the same dir to normalize identically")
	}
}
