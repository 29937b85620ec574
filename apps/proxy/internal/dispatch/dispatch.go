// Package dispatch implements the proxy dispatcher: it classifies
// incoming requests, orchestrates the cache, state, verifier, and
// HTML patcher, and renders styled error pages when verification
// fails.
package dispatch

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ar-io/verifying-proxy/apps/proxy/internal/cache"
	"github.com/ar-io/verifying-proxy/apps/proxy/internal/control"
	"github.com/ar-io/verifying-proxy/apps/proxy/internal/htmlpatch"
	"github.com/ar-io/verifying-proxy/apps/proxy/internal/state"
	"github.com/ar-io/verifying-proxy/apps/proxy/internal/verifier"
)

// ProxyPrefix is the path prefix that addresses the verifying proxy
// directly, as opposed to an absolute-path request intercepted via the
// active identifier.
const ProxyPrefix = "/ar-proxy/"

// WayfinderReadyTimeout is how long a request waits for the wayfinder
// to be initialised before failing.
const WayfinderReadyTimeout = 10 * time.Second

// Dispatcher wires the cache, state, verifier, and HTML patcher behind
// the request-classification rules below. Fallback handles requests
// that are neither proxy-prefixed nor intercepted via the active
// identifier.
type Dispatcher struct {
	Verifier    *verifier.Verifier
	State       *state.State
	Cache       *cache.Cache
	Controller  *control.Controller
	GatewayHost string
	Fallback    http.Handler
}

// New returns a Dispatcher. A nil fallback defaults to 404.
func New(v *verifier.Verifier, st *state.State, c *cache.Cache, ctl *control.Controller, gatewayHost string, fallback http.Handler) *Dispatcher {
	if fallback == nil {
		fallback = http.NotFoundHandler()
	}
	return &Dispatcher{Verifier: v, State: st, Cache: c, Controller: ctl, GatewayHost: gatewayHost, Fallback: fallback}
}

func (d *Dispatcher) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.URL.Path, ProxyPrefix) {
		d.handleProxyRequest(w, r)
		return
	}
	if isTopLevelNavigation(r) {
		d.Fallback.ServeHTTP(w, r)
		return
	}
	if active := d.State.GetActive(); active != nil {
		if ident, ok := d.State.GetState(*active); ok && ident.Phase == state.PhaseManifestVerified {
			normalizedPath := verifier.NormalizePath(r.URL.Path, ident.IndexPath)
			if txID, found := verifier.ResolveTxID(ident.PathToTxID, normalizedPath, ident.IndexPath); found {
				d.serveResource(w, r, *active, normalizedPath, txID)
				return
			}
		}
	}
	d.Fallback.ServeHTTP(w, r)
}

// isTopLevelNavigation reports whether the request is a browser
// top-level document navigation, which is never rewritten.
// Sec-Fetch-Mode is the standard signal a fetch/service worker layer
// uses to distinguish navigations from sub-resource fetches.
func isTopLevelNavigation(r *http.Request) bool {
	return r.Header.Get("Sec-Fetch-Mode") == "navigate"
}

// handleProxyRequest implements the proxy-prefix request branch:
// parse identifier/resourcePath, wait for wayfinder readiness, then
// branch on verification state.
func (d *Dispatcher) handleProxyRequest(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, ProxyPrefix)
	identifier, resourcePath, _ := strings.Cut(rest, "/")
	if identifier == "" {
		d.renderError(w, http.StatusBadRequest, "Missing Identifier", "No identifier was supplied in the request path.", "")
		return
	}
	if err := verifier.ValidateIdentifier(identifier); err != nil {
		d.renderError(w, http.StatusBadRequest, "Invalid Identifier", err.Error(), identifier)
		return
	}

	if d.Controller != nil && !d.Controller.WaitInitialized(WayfinderReadyTimeout) {
		d.renderError(w, http.StatusInternalServerError, "Wayfinder Not Ready", "The wayfinder was not initialised in time.", identifier)
		return
	}

	downloadFilename := r.URL.Query().Get("download")

	// Ready: serve immediately. In progress or idle: VerifyIdentifier
	// either joins the existing promise or starts a fresh one — both
	// cases are handled by the same call.
	if !d.State.IsReady(identifier) {
		if err := d.Verifier.VerifyIdentifier(r.Context(), identifier); err != nil {
			d.renderVerificationFailure(w, identifier, err)
			return
		}
	}

	ident, ok := d.State.GetState(identifier)
	if !ok || ident.Phase != state.PhaseManifestVerified {
		d.renderError(w, http.StatusInternalServerError, "Verification Failed", "The identifier could not be verified.", identifier)
		return
	}

	normalizedPath := verifier.NormalizePath(resourcePath, ident.IndexPath)
	txID, found := verifier.ResolveTxID(ident.PathToTxID, normalizedPath, ident.IndexPath)
	if !found {
		d.renderNotFound(w, identifier, normalizedPath)
		return
	}

	// A top-level navigation through the proxy prefix is the server-side
	// equivalent of a service worker's client becoming "controlled":
	// subsequent absolute-path sub-resource requests for this identifier
	// get intercepted without the /ar-proxy/{id} prefix.
	if isTopLevelNavigation(r) {
		activeID := identifier
		d.State.SetActive(&activeID)
	}

	d.serveResourceWithOptions(w, r, identifier, normalizedPath, txID, downloadFilename)
}

func (d *Dispatcher) renderVerificationFailure(w http.ResponseWriter, identifier string, err error) {
	if errors.Is(err, context.Canceled) {
		d.renderError(w, http.StatusInternalServerError, "Verification Cancelled", err.Error(), identifier)
		return
	}
	d.renderError(w, http.StatusInternalServerError, "Verification Failed", err.Error(), identifier)
}

// serveResource is the absolute-path interception entry point: the
// (identifier, path) pair has already been resolved to txID by the
// active-identifier lookup, so this never triggers a manifest fetch.
func (d *Dispatcher) serveResource(w http.ResponseWriter, r *http.Request, identifier, normalizedPath, txID string) {
	d.serveResourceWithOptions(w, r, identifier, normalizedPath, txID, "")
}

// serveResourceWithOptions implements the "serve resource" pipeline:
// cache hit serves immediately (download headers or HTML patch), cache
// miss verifies the single resource on demand first.
func (d *Dispatcher) serveResourceWithOptions(w http.ResponseWriter, r *http.Request, identifier, normalizedPath, txID, downloadFilename string) {
	entry, ok := d.Cache.Get(txID)
	if !ok {
		verified, err := d.Verifier.VerifyResourceOnDemand(r.Context(), identifier, normalizedPath)
		if err != nil || !verified {
			if err == nil {
				err = errors.New("resource verification did not complete")
			}
			d.renderError(w, http.StatusInternalServerError, "Verification Failed", err.Error(), identifier)
			return
		}
		entry, ok = d.Cache.Get(txID)
		if !ok {
			d.renderError(w, http.StatusInternalServerError, "Verification Failed", "verified resource missing from cache", identifier)
			return
		}
	}

	if downloadFilename != "" {
		cache.ToResponse(w, entry, downloadFilename)
		return
	}

	if htmlpatch.IsHTMLContent(entry.ContentType) {
		patched := htmlpatch.InjectLocationPatch(string(entry.Bytes), identifier, d.GatewayHost)
		entry = cache.Entry{Bytes: []byte(patched), ContentType: entry.ContentType}
	}
	cache.ToResponse(w, entry, "")
}

func (d *Dispatcher) renderNotFound(w http.ResponseWriter, identifier, normalizedPath string) {
	available := d.Verifier.AvailablePaths(identifier, 10)
	msg := "No resource exists at path \"" + normalizedPath + "\"."
	if len(available) > 0 {
		msg += " Known paths: " + strings.Join(available, ", ") + "."
	}
	d.renderError(w, http.StatusInternalServerError, "Resource Not Found", msg, identifier)
}

// Router returns a chi.Router mounting the dispatcher as the catch-all
// handler, for callers assembling a full HTTP server.
func (d *Dispatcher) Router() http.Handler {
	r := chi.NewRouter()
	r.HandleFunc("/*", d.ServeHTTP)
	return r
}
