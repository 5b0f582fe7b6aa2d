package transport

import (
	"net/http"
	"time"

	"github.com/fenwick-labs/browsergate/internal/metrics"
)

// handleUnlock implements the unlock tool handler (spec §6, scenario S3):
// release this process's own Action Lock lease directly, without routing
// through access.Guard.Run. Unlock has no driver or window dependency, and
// running it through the normal ensure-driver/ensure-window cycle would
// make releasing a lease fail for reasons that have nothing to do with the
// lease itself.
func (s *Server) handleUnlock(w http.ResponseWriter, req Request, start time.Time) {
	owner := s.sess.AgentTag()
	released := owner != "" && s.lock.Release(owner)
	writeJSON(w, http.StatusOK, Response{OK: true, Result: struct {
		Released bool `json:"released"`
	}{released}})
	metrics.RecordRequest(req.Op, "ok", time.Since(start))
}
