// Package control implements the message/lifecycle controller,
// re-architected from the browser service-worker's postMessage
// channel into an HTTP control plane: POST /control/init,
// POST /control/clear-cache, POST /control/clear-verification/{id}, and
// an SSE broadcast stream at GET /control/events. The effects are
// exactly the effects a service-worker message channel would apply for
// INIT_WAYFINDER, CLEAR_CACHE, and CLEAR_VERIFICATION; only the
// envelope changes.
package control

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ar-io/verifying-proxy/apps/proxy/internal/cache"
	"github.com/ar-io/verifying-proxy/apps/proxy/internal/state"
	"github.com/ar-io/verifying-proxy/apps/proxy/internal/verifier"
)

// InitRequest is the JSON body for POST /control/init, the
// re-architected INIT_WAYFINDER message.
type InitRequest struct {
	Concurrency int `json:"concurrency"`
}

// Controller owns the HTTP control plane for one proxy instance. It
// corresponds to the worker's install/activate/message-handler trio:
// installation happens at process start (main.go constructs a
// Controller and marks it initialized once the wayfinder client is
// wired up), and the message handler becomes this package's routes.
type Controller struct {
	verifier *verifier.Verifier
	cache    *cache.Cache
	state    *state.State

	mu          sync.Mutex
	initialized bool
	initCh      chan struct{}
}

// New returns a Controller wired to the shared verifier/cache/state
// singletons.
func New(v *verifier.Verifier, c *cache.Cache, st *state.State) *Controller {
	return &Controller{
		verifier: v,
		cache:    c,
		state:    st,
		initCh:   make(chan struct{}),
	}
}

// MarkInitialized is called once by main.go immediately after the
// wayfinder client is constructed, corresponding to the worker's
// install-time readiness. It is idempotent.
func (ctl *Controller) MarkInitialized() {
	ctl.mu.Lock()
	defer ctl.mu.Unlock()
	if !ctl.initialized {
		ctl.initialized = true
		close(ctl.initCh)
	}
}

// WaitInitialized blocks until the wayfinder has been initialised or
// timeout elapses, matching the dispatcher's bounded wait for readiness.
func (ctl *Controller) WaitInitialized(timeout time.Duration) bool {
	ctl.mu.Lock()
	ch := ctl.initCh
	ctl.mu.Unlock()
	select {
	case <-ch:
		return true
	case <-time.After(timeout):
		return false
	}
}

// Router mounts the control-plane routes under whatever prefix the
// caller chooses (main.go mounts it at /control).
func (ctl *Controller) Router() http.Handler {
	r := chi.NewRouter()
	r.Post("/init", ctl.handleInit)
	r.Post("/clear-cache", ctl.handleClearCache)
	r.Post("/clear-verification/{id}", ctl.handleClearVerification)
	r.Get("/events", ctl.handleEvents)
	r.Get("/state", ctl.handleState)
	r.Post("/verify-check", ctl.handleVerifyCheck)
	return r
}

// VerifyCheckRequest is the JSON body for POST /control/verify-check.
type VerifyCheckRequest struct {
	Identifier string `json:"identifier"`
}

// VerifyCheckResult reports the outcome of a synchronous, out-of-band
// verification attempt — a debug/smoke-test affordance, not part of the
// request path, standing in for a standalone verifier microservice.
type VerifyCheckResult struct {
	Identifier    string   `json:"identifier"`
	Verified      bool     `json:"verified"`
	Error         string   `json:"error,omitempty"`
	ManifestTxID  string   `json:"manifest_tx_id,omitempty"`
	IndexPath     string   `json:"index_path,omitempty"`
	ResourceCount int      `json:"resource_count,omitempty"`
	SamplePaths   []string `json:"sample_paths,omitempty"`
}

// handleVerifyCheck runs the same verification an ordinary request
// would trigger lazily, but synchronously and without serving any
// bytes back — useful for a smoke client or operator to confirm an
// identifier is well-formed before pointing real traffic at it.
func (ctl *Controller) handleVerifyCheck(w http.ResponseWriter, r *http.Request) {
	var req VerifyCheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Identifier == "" {
		writeJSON(w, http.StatusBadRequest, VerifyCheckResult{Error: "identifier is required"})
		return
	}

	result := VerifyCheckResult{Identifier: req.Identifier}
	if err := ctl.verifier.VerifyIdentifier(r.Context(), req.Identifier); err != nil {
		result.Error = err.Error()
		writeJSON(w, http.StatusOK, result)
		return
	}

	ident, ok := ctl.state.GetState(req.Identifier)
	if !ok {
		result.Error = "verification reported success but no state was recorded"
		writeJSON(w, http.StatusOK, result)
		return
	}
	result.Verified = true
	result.ManifestTxID = ident.ManifestTxID
	result.IndexPath = ident.IndexPath
	result.ResourceCount = len(ident.PathToTxID)
	result.SamplePaths = ctl.verifier.AvailablePaths(req.Identifier, 10)
	writeJSON(w, http.StatusOK, result)
}

func (ctl *Controller) handleInit(w http.ResponseWriter, r *http.Request) {
	var req InitRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	if req.Concurrency > 0 {
		ctl.verifier.SetConcurrency(req.Concurrency)
	}
	ctl.MarkInitialized()
	writeJSON(w, http.StatusOK, map[string]any{"initialized": true})
}

func (ctl *Controller) handleClearCache(w http.ResponseWriter, r *http.Request) {
	ctl.cache.Clear()
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true})
}

func (ctl *Controller) handleClearVerification(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	txIDs := ctl.verifier.ClearVerification(id)
	ctl.cache.ClearForManifest(txIDs)
	writeJSON(w, http.StatusOK, map[string]any{"cleared": true, "evicted": txIDs})
}

func (ctl *Controller) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, ctl.state.Snapshot())
}

// handleEvents streams state.Event broadcasts as Server-Sent Events,
// the re-architected equivalent of the worker's postMessage broadcast
// to its controlled clients.
func (ctl *Controller) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, unsubscribe := ctl.state.Subscribe()
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case ev, open := <-events:
			if !open {
				return
			}
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
