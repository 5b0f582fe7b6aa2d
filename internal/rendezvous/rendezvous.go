// Package rendezvous implements the Rendezvous File (spec §4.5): a cached
// "which host:port is the shared browser's debug endpoint" hint so
// late-joining processes attach instead of relaunching.
package rendezvous

import (
	"net"
	"strconv"
	"time"

	"github.com/fenwick-labs/browsergate/internal/coordfs"
)

const rendezvousFile = ".rendezvous.json"

// Endpoint is the on-disk rendezvous record.
type Endpoint struct {
	Host      string `json:"host"`
	Port      int    `json:"port"`
	PID       int    `json:"pid"`
	WrittenAt int64  `json:"written_at"`
}

// Store manages the Rendezvous File for a single profile key.
type Store struct {
	fs  *coordfs.FS
	pk  string
	now func() time.Time

	// probe is overridable for tests: report whether host:port accepts TCP.
	probe func(host string, port int, timeout time.Duration) bool
}

// New returns the Rendezvous File store for pk.
func New(fs *coordfs.FS, pk string) *Store {
	return &Store{fs: fs, pk: pk, now: time.Now, probe: probeTCP}
}

func (s *Store) file() string { return s.pk + rendezvousFile }

// Write atomically persists the endpoint, per "write on successful endpoint
// discovery or launch" (§3).
func (s *Store) Write(host string, port, pid int) error {
	return s.fs.WriteJSON(s.file(), Endpoint{
		Host:      host,
		Port:      port,
		PID:       pid,
		WrittenAt: s.now().Unix(),
	})
}

// ProbeTimeout bounds how long Read waits for the TCP probe.
const ProbeTimeout = 500 * time.Millisecond

// Read returns a validated endpoint: present, parseable, not expired per
// ttl, and reachable by TCP probe. Any failure of those conditions falls
// through to (Endpoint{}, false) so callers proceed to the full Startup
// Arbiter, matching §4.5's fast-path contract.
func (s *Store) Read(ttl time.Duration) (Endpoint, bool) {
	var ep Endpoint
	present, err := s.fs.ReadJSON(s.file(), &ep)
	if err != nil || !present {
		return Endpoint{}, false
	}

	if ttl > 0 {
		age := s.now().Unix() - ep.WrittenAt
		if age > int64(ttl.Seconds()) {
			return Endpoint{}, false
		}
	}

	if !s.probe(ep.Host, ep.Port, ProbeTimeout) {
		return Endpoint{}, false
	}

	return ep, true
}

func probeTCP(host string, port int, timeout time.Duration) bool {
	addr := net.JoinHostPort(host, strconv.Itoa(port))
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return false
	}
	conn.Close()
	return true
}
