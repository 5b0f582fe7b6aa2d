// Package coordfs provides shared atomic file I/O for coordination files:
// write-to-temp-then-rename writes, and reads that treat "missing" and
// "present but unparseable" as equivalent to "absent", per spec §6/§9.
package coordfs

import (
	"encoding/json"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// FS is the filesystem every coordination component reads and writes
// through. Production code uses afero.NewOsFs(); tests use
// afero.NewMemMapFs() so File Mutex / Action Lock / Registry / Rendezvous
// logic is exercised without touching the real disk.
type FS struct {
	afero.Fs
	Dir string
}

// New returns a coordfs.FS rooted at dir, creating dir if necessary.
func New(fs afero.Fs, dir string) (*FS, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create coord dir: %w", err)
	}
	return &FS{Fs: fs, Dir: dir}, nil
}

// Path joins name onto the coordination directory.
func (f *FS) Path(name string) string {
	return filepath.Join(f.Dir, name)
}

// WriteJSON atomically writes v as JSON to name: write to a sibling temp
// file, then rename over the target. Readers therefore never observe a
// partially written file (P6).
func (f *FS) WriteJSON(name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	return f.WriteBytes(name, data)
}

// WriteBytes atomically writes data to name via write-temp-then-rename.
func (f *FS) WriteBytes(name string, data []byte) error {
	target := f.Path(name)
	tmp := target + fmt.Sprintf(".tmp-%d-%d", os.Getpid(), rand.Int63())

	fh, err := f.Fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", name, err)
	}
	if _, err := fh.Write(data); err != nil {
		fh.Close()
		f.Fs.Remove(tmp)
		return fmt.Errorf("write temp file for %s: %w", name, err)
	}
	if err := fh.Close(); err != nil {
		f.Fs.Remove(tmp)
		return fmt.Errorf("close temp file for %s: %w", name, err)
	}
	if err := f.Fs.Rename(tmp, target); err != nil {
		f.Fs.Remove(tmp)
		return fmt.Errorf("rename temp file into %s: %w", name, err)
	}
	return nil
}

// ReadJSON reads name and unmarshals it into v. A missing file or malformed
// JSON is reported as (false, nil): "absent" per
// §6's tolerant-reader contract. Only a genuine I/O error on an existing
// file that is not a missing-file error is returned, so callers doing
// bounded retries (§7) can distinguish "absent" from "still failing".
func (f *FS) ReadJSON(name string, v interface{}) (present bool, err error) {
	data, err := afero.ReadFile(f.Fs, f.Path(name))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if jsonErr := json.Unmarshal(data, v); jsonErr != nil {
		log.Debug().Str("file", name).Err(jsonErr).Msg("coordination file parse failure treated as absent")
		return false, nil
	}
	return true, nil
}

// ModTime returns the modification time of name, or an error if it cannot
// be stat'd (including not-existing).
func (f *FS) ModTime(name string) (int64, error) {
	info, err := f.Fs.Stat(f.Path(name))
	if err != nil {
		return 0, err
	}
	return info.ModTime().Unix(), nil
}

// Remove deletes name. A missing file is not an error: callers rely on this
// to tolerate a lock that was already stolen/removed by another process.
func (f *FS) Remove(name string) error {
	err := f.Fs.Remove(f.Path(name))
	if err != nil && os.IsNotExist(err) {
		return nil
	}
	return err
}

// Exists reports whether name is currently present.
func (f *FS) Exists(name string) bool {
	_, err := f.Fs.Stat(f.Path(name))
	return err == nil
}
