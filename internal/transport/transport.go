// Package transport implements the outer HTTP/JSON surface that carries
// spec §6's tool calls to internal/handlers. It owns request decoding,
// command routing, response encoding, and the Prometheus/health endpoints —
// everything the Exclusive-Access Protocol and the coordination components
// deliberately stay blind to.
package transport

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/fenwick-labs/browsergate/internal/access"
	"github.com/fenwick-labs/browsergate/internal/actionlock"
	"github.com/fenwick-labs/browsergate/internal/config"
	"github.com/fenwick-labs/browsergate/internal/gatewaysession"
	"github.com/fenwick-labs/browsergate/internal/handlers"
	"github.com/fenwick-labs/browsergate/internal/metrics"
)

// Request is the envelope every tool call arrives in: op names the handler,
// params carries its operation-specific fields as raw JSON.
type Request struct {
	Op     string          `json:"op"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is the common reply envelope (spec §6): {ok, ...} on success, with
// error/message/diagnostics added by access.Result on failure.
type Response struct {
	OK          bool                   `json:"ok"`
	Error       string                 `json:"error,omitempty"`
	Message     string                 `json:"message,omitempty"`
	Diagnostics map[string]interface{} `json:"diagnostics,omitempty"`
	Result      interface{}            `json:"result,omitempty"`
}

// bufPool reduces per-request allocation for request/response buffering.
var bufPool = sync.Pool{New: func() interface{} { return new(bytes.Buffer) }}

func getBuffer() *bytes.Buffer {
	buf := bufPool.Get().(*bytes.Buffer)
	buf.Reset()
	return buf
}

func putBuffer(buf *bytes.Buffer) {
	const maxRetained = 64 * 1024
	if buf.Cap() > maxRetained {
		return
	}
	bufPool.Put(buf)
}

// opHandler builds the access.Handler for one op from its decoded params.
type opHandler func(h *handlers.Handlers, params json.RawMessage) (access.Handler, error)

// Server dispatches tool calls for one profile key's Guard.
type Server struct {
	cfg      *config.Config
	guard    *access.Guard
	handlers *handlers.Handlers
	lock     *actionlock.Lock
	sess     *gatewaysession.Context
}

// NewServer returns a Server wired to one profile key's Guard, Handlers, and
// the raw Action Lock + Session Context unlock needs directly (see
// handleUnlock: unlock deliberately bypasses Guard.Run rather than paying
// for a drive/window-ensure cycle just to release a lease).
func NewServer(cfg *config.Config, guard *access.Guard, h *handlers.Handlers, lock *actionlock.Lock, sess *gatewaysession.Context) *Server {
	return &Server{cfg: cfg, guard: guard, handlers: h, lock: lock, sess: sess}
}

// Mux builds the http.ServeMux for /api, /health, and /metrics, ready to be
// wrapped by the middleware chain in cmd/browsergate.
func (s *Server) Mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api", s.handleAPI)
	if s.cfg.MetricsEnabled {
		mux.Handle("/metrics", metrics.Handler())
	}
	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

func (s *Server) handleAPI(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, Response{OK: false, Error: "method_not_allowed", Message: "POST required"})
		return
	}

	const maxBodySize = 1 << 20 // 1MB
	r.Body = http.MaxBytesReader(w, r.Body, maxBodySize)
	defer r.Body.Close()

	buf := getBuffer()
	defer putBuffer(buf)
	if _, err := io.Copy(buf, r.Body); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{OK: false, Error: "invalid_request", Message: "failed to read request body"})
		return
	}

	var req Request
	if err := json.Unmarshal(buf.Bytes(), &req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{OK: false, Error: "invalid_request", Message: "invalid JSON request"})
		return
	}

	if req.Op == "unlock" {
		s.handleUnlock(w, req, start)
		return
	}

	build, ok := opTable[req.Op]
	if !ok {
		writeJSON(w, http.StatusBadRequest, Response{OK: false, Error: "unknown_op", Message: fmt.Sprintf("unknown op %q", req.Op)})
		return
	}

	h, err := build(s.handlers, req.Params)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, Response{OK: false, Error: "invalid_params", Message: err.Error()})
		return
	}

	payload, result := s.guard.Run(r.Context(), h)
	status := "ok"
	httpStatus := http.StatusOK
	if result != nil {
		status = result.Error
		httpStatus = statusFor(result.Error)
		writeJSON(w, httpStatus, Response{
			OK:          false,
			Error:       result.Error,
			Message:     result.Message,
			Diagnostics: result.Diagnostics,
		})
	} else {
		writeJSON(w, http.StatusOK, Response{OK: true, Result: payload})
	}

	metrics.RecordRequest(req.Op, status, time.Since(start))
	log.Debug().Str("op", req.Op).Str("status", status).Dur("elapsed", time.Since(start)).Msg("transport: tool call handled")
}

// statusFor maps an access.Result error class to an HTTP status code.
func statusFor(errClass string) int {
	switch errClass {
	case "lock_busy":
		return http.StatusConflict
	case "config_error", "invalid_params", "unknown_op":
		return http.StatusBadRequest
	case "driver_not_initialized", "window_lost", "lock_lost":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, v interface{}) {
	buf := getBuffer()
	defer putBuffer(buf)
	if err := json.NewEncoder(buf).Encode(v); err != nil {
		log.Error().Err(err).Msg("transport: failed to encode JSON response")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"ok":false,"error":"internal_error","message":"response encoding failed"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_, _ = w.Write(buf.Bytes())
}
