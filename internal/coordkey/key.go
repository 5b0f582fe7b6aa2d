// Package coordkey computes the deterministic identifier that namespaces
// every coordination file for a given (user-data-dir, profile-name) pair.
package coordkey

import (
	"crypto/sha256"
	"encoding/hex"
	"os"
	"path/filepath"

	"github.com/fenwick-labs/browsergate/internal/types"
)

// DefaultProfileName is used when profile_name is unspecified, per §4.1.
const DefaultProfileName = "Default"

// Compute returns the profile key (PK): a hex-encoded SHA-256 digest of
// normalize(userDataDir) + "|" + profileName. It is stable across processes
// and used as the filename stem for every coordination file.
//
// strict requires userDataDir to exist on disk; otherwise a missing
// directory is tolerated (the Startup Arbiter may create it on launch).
func Compute(userDataDir, profileName string, strict bool) (string, error) {
	if userDataDir == "" {
		return "", types.ErrUserDataDirRequired
	}
	if profileName == "" {
		profileName = DefaultProfileName
	}

	normalized := normalize(userDataDir)

	if strict {
		if _, err := os.Stat(normalized); err != nil {
			return "", types.ErrProfileDirMissing
		}
	}

	digest := sha256.Sum256([]byte(normalized + "|" + profileName))
	return hex.EncodeToString(digest[:]), nil
}

// normalize resolves userDataDir to an absolute, symlink-resolved path.
// If resolution fails (e.g. the path does not yet exist), it falls back to
// the absolute non-canonical form so the key remains computable even before
// the directory is created.
func normalize(userDataDir string) string {
	abs, err := filepath.Abs(userDataDir)
	if err != nil {
		return userDataDir
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return abs
	}
	return resolved
}
