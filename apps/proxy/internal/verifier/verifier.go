// Package verifier drives an identifier through the
// manifest-verified handshake, verifies individual
// resources on demand, and answers "do we already have verified
// content for this path" lookups.
package verifier

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"strings"
	"sync"

	"github.com/ar-io/verifying-proxy/apps/proxy/internal/cache"
	"github.com/ar-io/verifying-proxy/apps/proxy/internal/state"
	"github.com/ar-io/verifying-proxy/sdks/go/pkg/arproxy/wayfinder"
	"github.com/ar-io/verifying-proxy/sdks/go/pkg/arproxy/wire"
)

const defaultConcurrency = 4

// identifierPattern matches a 43-char base64url content hash.
var identifierPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{43}$`)

// namePattern is the bounded character class accepted for human
// names. Violations are rejected before any network I/O.
var namePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,128}$`)

// ErrNotVerified is returned by GetVerifiedContent when the identifier
// has no ready manifest yet.
var ErrNotVerified = errors.New("identifier not verified")

// ErrNotInManifest is returned when a path has no corresponding
// manifest entry and no fallback is configured.
var ErrNotInManifest = errors.New("path not present in manifest")

// Verifier drives verification for all identifiers, sharing one
// process-wide State and Cache.
type Verifier struct {
	state  *state.State
	cache  *cache.Cache
	client wayfinder.Client

	mu           sync.Mutex
	pending      map[string]chan struct{} // identifier -> closed when verification settles
	abort        map[string]context.CancelFunc
	concurrency  int
	semaphoreMu  sync.Mutex
	semaphoreCap chan struct{}
	inflight     sync.Map // resource tx id -> chan struct{} closed when its fetch settles
}

// New returns a Verifier backed by st and c, fetching through client.
func New(st *state.State, c *cache.Cache, client wayfinder.Client) *Verifier {
	v := &Verifier{
		state:       st,
		cache:       c,
		client:      client,
		pending:     make(map[string]chan struct{}),
		abort:       make(map[string]context.CancelFunc),
		concurrency: defaultConcurrency,
	}
	v.semaphoreCap = make(chan struct{}, v.concurrency)
	return v
}

// SetConcurrency adjusts the bounded-queue width for on-demand resource
// verification (used for warm-up scenarios).
func (v *Verifier) SetConcurrency(n int) {
	if n <= 0 {
		n = defaultConcurrency
	}
	v.semaphoreMu.Lock()
	defer v.semaphoreMu.Unlock()
	v.concurrency = n
	v.semaphoreCap = make(chan struct{}, n)
}

// acquireSlot blocks until a semaphore slot is free and returns the
// channel the slot was taken from, so the release drains the same
// channel even if SetConcurrency swaps it mid-flight.
func (v *Verifier) acquireSlot(ctx context.Context) (chan struct{}, error) {
	v.semaphoreMu.Lock()
	slotCh := v.semaphoreCap
	v.semaphoreMu.Unlock()
	select {
	case slotCh <- struct{}{}:
		return slotCh, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (v *Verifier) releaseSlot(slotCh chan struct{}) {
	select {
	case <-slotCh:
	default:
	}
}

// ValidateIdentifier rejects identifiers with characters outside the
// expected classes before any network I/O.
func ValidateIdentifier(id string) error {
	if identifierPattern.MatchString(id) || namePattern.MatchString(id) {
		return nil
	}
	return fmt.Errorf("identifier %q contains characters outside the expected set", id)
}

// NormalizePath applies the manifest's path normalisation rules: strip
// a single leading slash, collapse doubled slashes, never follow "..",
// and resolve directory-style paths (empty, "/", or trailing "/") to
// "<path>indexPath".
func NormalizePath(requestPath, indexPath string) string {
	p := strings.TrimPrefix(requestPath, "/")
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	p = path.Clean("/" + p)
	p = strings.TrimPrefix(p, "/")
	if p == "." || p == "" {
		return indexPath
	}
	if strings.HasSuffix(requestPath, "/") {
		return strings.TrimSuffix(p, "/") + "/" + indexPath
	}
	return p
}

// ResolveTxID resolves a normalised path against pathToTxID: exact
// match, else directory form (path+indexPath), else fallback, else not found.
func ResolveTxID(pathToTxID map[string]string, normalizedPath, indexPath string) (txID string, ok bool) {
	if txID, ok = pathToTxID[normalizedPath]; ok {
		return txID, true
	}
	if strings.HasSuffix(normalizedPath, "/") {
		if txID, ok = pathToTxID[normalizedPath+indexPath]; ok {
			return txID, true
		}
	}
	if txID, ok = pathToTxID[wire.FallbackPath]; ok {
		return txID, true
	}
	return "", false
}

// VerifyIdentifier drives the full manifest-verified handshake for id.
// Concurrent callers for the same id share one verification via the
// pending-promise table; a caller arriving after the identifier has
// settled gets the cached outcome (ready, or the latched failure)
// without touching the network.
func (v *Verifier) VerifyIdentifier(ctx context.Context, id string) error {
	if err, settled := v.settledOutcome(id); settled {
		return err
	}

	// The verification task runs detached from the requester's context:
	// other requests may have joined it, so only ClearVerification (or
	// worker teardown) aborts it. The requester's ctx governs only how
	// long this caller waits.
	runCtx, runCancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	v.mu.Lock()
	if existing, ok := v.pending[id]; ok {
		v.mu.Unlock()
		runCancel()
		select {
		case <-existing:
		case <-ctx.Done():
			return ctx.Err()
		}
		if err, settled := v.settledOutcome(id); settled {
			return err
		}
		return errors.New("verification did not complete")
	}
	v.pending[id] = done
	v.abort[id] = runCancel
	v.mu.Unlock()
	defer func() {
		v.mu.Lock()
		delete(v.pending, id)
		delete(v.abort, id)
		v.mu.Unlock()
		runCancel()
		close(done)
	}()

	v.state.BeginVerifyingManifest(id)
	v.state.Broadcast(state.Event{Type: state.EventVerificationStarted, Identifier: id})

	if err := v.runVerification(runCtx, id); err != nil {
		if errors.Is(err, context.Canceled) {
			v.state.Clear(id)
			v.state.Broadcast(state.Event{Type: state.EventVerificationCancelled, Identifier: id})
			return err
		}
		var integrity *wayfinder.IntegrityError
		if errors.As(err, &integrity) {
			// Integrity failures latch: subsequent requests get the
			// cached failure until the identifier is cleared.
			v.state.Fail(id, err)
		} else {
			// Transient failure: leave no record, so the next request
			// restarts verification from idle.
			v.state.Clear(id)
		}
		v.state.Broadcast(state.Event{Type: state.EventVerificationFailed, Identifier: id, Error: err.Error()})
		return err
	}
	return nil
}

// settledOutcome reports whether id has already reached a terminal
// phase, and the error to return for it.
func (v *Verifier) settledOutcome(id string) (error, bool) {
	ident, ok := v.state.GetState(id)
	if !ok {
		return nil, false
	}
	switch ident.Phase {
	case state.PhaseManifestVerified:
		return nil, true
	case state.PhaseFailed:
		return errors.New(ident.Error), true
	}
	return nil, false
}

func (v *Verifier) runVerification(ctx context.Context, id string) error {
	manifestTxID := id
	if ValidateIdentifier(id) != nil {
		return fmt.Errorf("invalid identifier: %s", id)
	}
	if !identifierPattern.MatchString(id) {
		resolved, err := v.client.ResolveName(ctx, id)
		if err != nil {
			return fmt.Errorf("resolve name: %w", err)
		}
		manifestTxID = resolved
	}

	manifestBytes, err := v.client.Fetch(ctx, manifestTxID, wayfinder.FetchOptions{
		Verify:       true,
		ExpectedTxID: manifestTxID,
		MaxBytes:     wayfinder.MaxManifestBytes,
	})
	if err != nil {
		return fmt.Errorf("fetch manifest: %w", err)
	}

	manifest, err := wire.ParseManifest(manifestBytes.Bytes)
	if err != nil {
		return &wayfinder.IntegrityError{Reason: "parse manifest: " + err.Error()}
	}
	pathToTxID := manifest.PathToTxID()
	for p, txID := range pathToTxID {
		if !identifierPattern.MatchString(txID) {
			return &wayfinder.IntegrityError{Reason: fmt.Sprintf("manifest entry %q declares malformed tx id %q", p, txID)}
		}
	}

	indexTxID, ok := ResolveTxID(pathToTxID, manifest.Index.Path, manifest.Index.Path)
	if !ok {
		return &wayfinder.IntegrityError{Reason: fmt.Sprintf("manifest index path %q has no resource entry", manifest.Index.Path)}
	}

	indexFetched, err := v.client.Fetch(ctx, indexTxID, wayfinder.FetchOptions{
		Verify:       true,
		ExpectedTxID: indexTxID,
		MaxBytes:     wayfinder.MaxResourceBytes,
	})
	if err != nil {
		return fmt.Errorf("fetch index resource: %w", err)
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	v.cache.Put(indexTxID, indexFetched.Bytes, indexFetched.ContentType)
	v.state.SetManifestVerified(id, manifestTxID, manifest.Index.Path, pathToTxID, indexTxID)
	v.state.Broadcast(state.Event{
		Type:          state.EventManifestVerified,
		Identifier:    id,
		ManifestTxID:  manifestTxID,
		ResourceCount: len(pathToTxID),
	})
	v.state.Broadcast(state.Event{
		Type:       state.EventResourceVerified,
		Identifier: id,
		Path:       manifest.Index.Path,
		TxID:       indexTxID,
	})
	return nil
}

// VerifyResourceOnDemand verifies the single resource at normalizedPath
// for id. It is idempotent: a second call for an already-verified
// (id, path) performs no additional fetch.
func (v *Verifier) VerifyResourceOnDemand(ctx context.Context, id, normalizedPath string) (bool, error) {
	ident, ok := v.state.GetState(id)
	if !ok || ident.Phase != state.PhaseManifestVerified {
		return false, fmt.Errorf("identifier %s is not manifest-verified", id)
	}

	txID, found := ResolveTxID(ident.PathToTxID, normalizedPath, ident.IndexPath)
	if !found {
		return false, ErrNotInManifest
	}

	if v.cache.Has(txID) {
		v.state.MarkResourceVerified(id, txID)
		return true, nil
	}

	// Coalesce concurrent misses for the same tx id onto one fetch.
	ch := make(chan struct{})
	if existing, loaded := v.inflight.LoadOrStore(txID, ch); loaded {
		select {
		case <-existing.(chan struct{}):
		case <-ctx.Done():
			return false, ctx.Err()
		}
		return v.VerifyResourceOnDemand(ctx, id, normalizedPath)
	}
	defer func() { v.inflight.Delete(txID); close(ch) }()

	slotCh, err := v.acquireSlot(ctx)
	if err != nil {
		return false, err
	}
	defer v.releaseSlot(slotCh)

	// Re-check after acquiring the slot: another goroutine may have
	// verified this resource while we waited.
	if v.cache.Has(txID) {
		v.state.MarkResourceVerified(id, txID)
		return true, nil
	}

	fetched, err := v.client.Fetch(ctx, txID, wayfinder.FetchOptions{
		Verify:       true,
		ExpectedTxID: txID,
		MaxBytes:     wayfinder.MaxResourceBytes,
	})
	if err != nil {
		return false, fmt.Errorf("fetch resource %s: %w", normalizedPath, err)
	}

	v.cache.Put(txID, fetched.Bytes, fetched.ContentType)
	v.state.MarkResourceVerified(id, txID)
	v.state.Broadcast(state.Event{
		Type:       state.EventResourceVerified,
		Identifier: id,
		Path:       normalizedPath,
		TxID:       txID,
	})
	return true, nil
}

// GetVerifiedContent looks up path's already-verified bytes for id,
// returning ErrNotVerified or ErrNotInManifest rather than triggering a
// fetch — callers are expected to call VerifyResourceOnDemand first on
// a cache miss.
func (v *Verifier) GetVerifiedContent(id, normalizedPath string) (cache.Entry, string, error) {
	ident, ok := v.state.GetState(id)
	if !ok || ident.Phase != state.PhaseManifestVerified {
		return cache.Entry{}, "", ErrNotVerified
	}
	txID, found := ResolveTxID(ident.PathToTxID, normalizedPath, ident.IndexPath)
	if !found {
		return cache.Entry{}, "", ErrNotInManifest
	}
	entry, ok := v.cache.Get(txID)
	if !ok {
		return cache.Entry{}, txID, ErrNotVerified
	}
	return entry, txID, nil
}

// AvailablePaths returns up to limit manifest paths for id, used by the
// "not found" error page.
func (v *Verifier) AvailablePaths(id string, limit int) []string {
	ident, ok := v.state.GetState(id)
	if !ok {
		return nil
	}
	paths := make([]string, 0, limit)
	for p := range ident.PathToTxID {
		if p == wire.FallbackPath {
			continue
		}
		paths = append(paths, p)
		if len(paths) >= limit {
			break
		}
	}
	return paths
}

// ClearVerification aborts id's in-flight verification if any, waits
// for the abort to actually complete, then clears state. It returns
// the resource tx ids (plus the manifest tx id, if any) the caller
// should evict from the cache.
func (v *Verifier) ClearVerification(id string) []string {
	v.mu.Lock()
	cancel, hasCancel := v.abort[id]
	done, hasPending := v.pending[id]
	v.mu.Unlock()

	if hasCancel {
		cancel()
	}
	if hasPending {
		<-done
	}

	return v.state.Clear(id)
}
