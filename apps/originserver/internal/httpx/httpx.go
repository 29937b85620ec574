// Package httpx serves the content-addressed fixture store over HTTP
// in the shape wayfinder.GatewayClient expects: GET
// /resolve/{name} for name resolution, GET /{txid} for content (with
// optional attestation headers), and PUT endpoints for publishing new
// manifests and resources into the store.
package httpx

import (
	"errors"
	"io"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"

	"github.com/ar-io/verifying-proxy/apps/originserver/internal/store"
)

// NewRouter returns the fixture gateway's HTTP router over s.
func NewRouter(s *store.Store) http.Handler {
	r := chi.NewRouter()
	r.Get("/resolve/{name}", func(w http.ResponseWriter, req *http.Request) {
		handleResolve(w, req, s)
	})
	r.Put("/resolve/{name}", func(w http.ResponseWriter, req *http.Request) {
		handlePutName(w, req, s)
	})
	r.Get("/{txid}", func(w http.ResponseWriter, req *http.Request) {
		handleGetContent(w, req, s)
	})
	r.Put("/{txid}", func(w http.ResponseWriter, req *http.Request) {
		handlePutContent(w, req, s)
	})
	return r
}

func handleResolve(w http.ResponseWriter, r *http.Request, s *store.Store) {
	name := chi.URLParam(r, "name")
	manifestTxID, err := s.ResolveName(name)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte(manifestTxID))
}

func handlePutName(w http.ResponseWriter, r *http.Request, s *store.Store) {
	name := chi.URLParam(r, "name")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if err := s.PutName(name, string(body)); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func handleGetContent(w http.ResponseWriter, r *http.Request, s *store.Store) {
	txID := chi.URLParam(r, "txid")
	content, err := s.GetContent(txID)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			http.NotFound(w, r)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if content.ContentType != "" {
		w.Header().Set("Content-Type", content.ContentType)
	}
	if content.ManifestAttestation != "" {
		w.Header().Set("X-Manifest-Attestation", content.ManifestAttestation)
	}
	if content.ResourceAttestation != "" {
		w.Header().Set("X-Resource-Attestation", content.ResourceAttestation)
	}
	w.Header().Set("Cache-Control", "no-store")
	w.Write(content.Bytes)
}

func handlePutContent(w http.ResponseWriter, r *http.Request, s *store.Store) {
	txID := chi.URLParam(r, "txid")
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	contentType := r.Header.Get("X-Content-Type")
	manifestAttestation := r.Header.Get("X-Manifest-Attestation")
	resourceAttestation := r.Header.Get("X-Resource-Attestation")
	if err := s.PutContent(txID, body, contentType, manifestAttestation, resourceAttestation); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
