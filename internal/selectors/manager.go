package selectors

import (
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// ReloadStats reports hot-reload history for diagnostics.
type ReloadStats struct {
	LastReloadTime time.Time `json:"last_reload_time,omitempty"`
	ReloadCount    int64     `json:"reload_count"`
	LastErrorStr   string    `json:"last_error,omitempty"`
	lastError      error
}

// Manager resolves selector aliases, optionally hot-reloaded from an
// external YAML file layered over the embedded defaults. Reads are
// lock-free via atomic.Value.
type Manager struct {
	embedded     Aliases
	current      atomic.Value // Aliases
	externalPath string
	watcher      *fsnotify.Watcher
	stopCh       chan struct{}
	wg           sync.WaitGroup
	mu           sync.Mutex
	stats        ReloadStats
	closed       bool
}

// NewManager builds a Manager layering externalPath (if non-empty) over the
// embedded defaults. If hotReload is true, file changes trigger a debounced
// reload.
func NewManager(externalPath string, hotReload bool) (*Manager, error) {
	m := &Manager{
		embedded: Defaults(),
		externalPath: externalPath,
		stopCh:   make(chan struct{}),
	}
	m.current.Store(m.embedded)

	if externalPath != "" {
		if err := m.loadExternal(); err != nil {
			log.Warn().Err(err).Str("path", externalPath).
				Msg("selectors: failed to load external alias file, using embedded defaults")
		} else {
			log.Info().Str("path", externalPath).Msg("selectors: loaded external alias file")
		}

		if hotReload {
			if err := m.startWatcher(); err != nil {
				log.Warn().Err(err).Str("path", externalPath).
					Msg("selectors: failed to start file watcher, hot-reload disabled")
			}
		}
	}

	return m, nil
}

// Resolve looks up name in the current alias table.
func (m *Manager) Resolve(name string) (Def, bool) {
	d, ok := m.current.Load().(Aliases)[name]
	return d, ok
}

// Get returns the full current alias table.
func (m *Manager) Get() Aliases {
	return m.current.Load().(Aliases)
}

// Reload re-reads the external alias file. No-op error if none is configured.
func (m *Manager) Reload() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.externalPath == "" {
		return fmt.Errorf("no external alias file configured")
	}
	return m.loadExternalLocked()
}

// Stats returns a snapshot of reload history.
func (m *Manager) Stats() ReloadStats {
	m.mu.Lock()
	defer m.mu.Unlock()
	stats := m.stats
	if stats.lastError != nil {
		stats.LastErrorStr = stats.lastError.Error()
	}
	return stats
}

// Close stops the file watcher. Safe to call multiple times.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	close(m.stopCh)
	m.wg.Wait()

	if m.watcher != nil {
		return m.watcher.Close()
	}
	return nil
}

func (m *Manager) loadExternal() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.loadExternalLocked()
}

func (m *Manager) loadExternalLocked() error {
	data, err := os.ReadFile(m.externalPath)
	if err != nil {
		m.stats.lastError = err
		return fmt.Errorf("read alias file: %w", err)
	}

	var external Aliases
	if err := yaml.Unmarshal(data, &external); err != nil {
		m.stats.lastError = err
		return fmt.Errorf("parse alias file: %w", err)
	}
	if err := external.Validate(); err != nil {
		m.stats.lastError = err
		return fmt.Errorf("validate alias file: %w", err)
	}

	merged := mergeAliases(m.embedded, external)
	m.current.Store(merged)

	m.stats.LastReloadTime = time.Now()
	m.stats.ReloadCount++
	m.stats.lastError = nil

	log.Info().Int64("reload_count", m.stats.ReloadCount).Msg("selectors: alias table hot-reloaded")
	return nil
}

// mergeAliases layers external over embedded: same-named entries in
// external override embedded, everything else from embedded survives.
func mergeAliases(embedded, external Aliases) Aliases {
	merged := make(Aliases, len(embedded)+len(external))
	for k, v := range embedded {
		merged[k] = v
	}
	for k, v := range external {
		merged[k] = v
	}
	return merged
}

func (m *Manager) startWatcher() error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create file watcher: %w", err)
	}
	if err := watcher.Add(m.externalPath); err != nil {
		watcher.Close()
		return fmt.Errorf("watch file: %w", err)
	}
	m.watcher = watcher
	m.wg.Add(1)
	go m.watchFile()
	return nil
}

func (m *Manager) watchFile() {
	defer m.wg.Done()

	const debounceDelay = 100 * time.Millisecond
	var debounceTimer *time.Timer
	var debouncing bool

	for {
		select {
		case event, ok := <-m.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			log.Debug().Str("event", event.Op.String()).Str("file", event.Name).
				Msg("selectors: alias file changed")

			if debouncing {
				if !debounceTimer.Stop() {
					select {
					case <-debounceTimer.C:
					default:
					}
				}
				debounceTimer.Reset(debounceDelay)
			} else {
				debouncing = true
				debounceTimer = time.AfterFunc(debounceDelay, func() {
					if err := m.Reload(); err != nil {
						log.Warn().Err(err).Str("path", m.externalPath).
							Msg("selectors: hot-reload failed, keeping previous table")
					}
					debouncing = false
				})
			}

		case err, ok := <-m.watcher.Errors:
			if !ok {
				return
			}
			log.Warn().Err(err).Msg("selectors: file watcher error")

		case <-m.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return
		}
	}
}

// GetManager returns a Manager using only embedded defaults, no external
// file, no hot-reload.
func GetManager() *Manager {
	m := &Manager{embedded: Defaults(), stopCh: make(chan struct{})}
	m.current.Store(m.embedded)
	return m
}
