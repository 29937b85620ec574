// Package fixtures builds a minimal identifier tree — an index
// document, a couple of sub-resources, a manifest, and optional signed
// attestations — on disk for local smoke-testing and integration
// tests: WriteJSON0600/StoredKey-style helpers building this project's
// content-hash manifest shape and signed attestations.
package fixtures

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/ar-io/verifying-proxy/sdks/go/pkg/arproxy/canonical"
	"github.com/ar-io/verifying-proxy/sdks/go/pkg/arproxy/crypto"
	"github.com/ar-io/verifying-proxy/sdks/go/pkg/arproxy/wire"
)

// StoredKey is the on-disk shape of a keypair saved by keygen tooling.
type StoredKey struct {
	PrivKeyHex    string `json:"privkey_hex"`
	PubKeyXOnly   string `json:"pubkey_xonly_hex"`
	CreatedAtUnix int64  `json:"created_at"`
}

// WriteJSON0600 writes v as indented JSON to path with 0600 permissions.
func WriteJSON0600(path string, v any) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// ReadStoredKey loads a keypair previously saved with WriteJSON0600
// (e.g. by proxyctl's keygen -json-out).
func ReadStoredKey(path string) (StoredKey, error) {
	var key StoredKey
	data, err := os.ReadFile(path)
	if err != nil {
		return key, err
	}
	if err := json.Unmarshal(data, &key); err != nil {
		return key, fmt.Errorf("parse key file %s: %w", path, err)
	}
	if key.PrivKeyHex == "" {
		return key, fmt.Errorf("key file %s has no privkey_hex", path)
	}
	return key, nil
}

// SampleSiteOptions configures BuildSampleSite.
type SampleSiteOptions struct {
	// PrivKeyHex, if set, causes BuildSampleSite to also write a
	// manifest attestation and one resource attestation per file,
	// signed with this gateway key.
	PrivKeyHex string
	KID        string
	TTL        time.Duration
}

// BuiltSite describes a tree BuildSampleSite wrote to disk.
type BuiltSite struct {
	Dir          string
	IndexPath    string
	ManifestTxID string
	PathToTxID   map[string]string
}

var sampleFiles = map[string]string{
	"index.html":       "<!doctype html><html><head></head><body><h1>fixture</h1><script src=\"/assets/app.js\"></script></body></html>",
	"assets/app.js":    "console.log('fixture site loaded');\n",
	"assets/style.css": "body { font-family: sans-serif; }\n",
}

// BuildSampleSite writes sampleFiles under dir, builds the manifest
// covering them, and writes manifest.json (plus signed attestations
// when opts.PrivKeyHex is set) alongside. The result can be fed to
// apps/originserver via its PUT endpoints, or read directly by tests.
func BuildSampleSite(dir string, opts SampleSiteOptions) (*BuiltSite, error) {
	paths := make(map[string]wire.ManifestEntry, len(sampleFiles))
	for rel, content := range sampleFiles {
		p := filepath.Join(dir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
			return nil, fmt.Errorf("mkdir for %s: %w", rel, err)
		}
		if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
			return nil, fmt.Errorf("write %s: %w", rel, err)
		}
		paths[rel] = wire.ManifestEntry{ID: crypto.TxID([]byte(content))}
	}

	m := wire.Manifest{Paths: paths}
	m.Index.Path = "index.html"
	manifestJSON, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	manifestTxID := crypto.TxID(manifestJSON)
	if err := os.WriteFile(filepath.Join(dir, "manifest.json"), manifestJSON, 0o644); err != nil {
		return nil, fmt.Errorf("write manifest.json: %w", err)
	}

	pathToTxID := make(map[string]string, len(paths))
	for rel, entry := range paths {
		pathToTxID[rel] = entry.ID
	}

	if opts.PrivKeyHex != "" {
		priv, err := crypto.ParsePrivateKeyHex(opts.PrivKeyHex)
		if err != nil {
			return nil, fmt.Errorf("parse privkey: %w", err)
		}
		ttl := opts.TTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		if err := signManifestAttestation(dir, priv, opts.KID, manifestTxID, "index.html", len(paths), ttl); err != nil {
			return nil, err
		}
		for rel, entry := range paths {
			if err := signResourceAttestation(dir, priv, opts.KID, rel, entry.ID, []byte(sampleFiles[rel]), ttl); err != nil {
				return nil, err
			}
		}
	}

	return &BuiltSite{
		Dir:          dir,
		IndexPath:    "index.html",
		ManifestTxID: manifestTxID,
		PathToTxID:   pathToTxID,
	}, nil
}

func signManifestAttestation(dir string, priv *btcec.PrivateKey, kid, manifestTxID, indexPath string, resourceCount int, ttl time.Duration) error {
	now := time.Now()
	payload := wire.ManifestAttestationPayload{
		ManifestTxID:  manifestTxID,
		IndexPath:     indexPath,
		ResourceCount: resourceCount,
		IAT:           now.Unix(),
		EXP:           now.Add(ttl).Unix(),
		KID:           kid,
	}
	payloadBytes, err := canonical.MarshalManifestPayload(payload.ToCanonical())
	if err != nil {
		return err
	}
	digest := crypto.HashSHA256(payloadBytes)
	sig, err := crypto.SignSchnorrHex(priv, digest)
	if err != nil {
		return err
	}
	encoded, err := wire.EncodeManifestAttestation(wire.ManifestAttestation{
		Payload: payload,
		Key:     crypto.XOnlyPubKeyHex(priv),
		Sig:     sig,
	})
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, "manifest.attestation"), []byte(encoded), 0o644)
}

func signResourceAttestation(dir string, priv *btcec.PrivateKey, kid, rel, txID string, content []byte, ttl time.Duration) error {
	now := time.Now()
	payload := wire.ResourceAttestationPayload{
		TxID: txID,
		Path: rel,
		Hash: crypto.HashSHA256Hex(content),
		IAT:  now.Unix(),
		EXP:  now.Add(ttl).Unix(),
		KID:  kid,
	}
	payloadBytes, err := canonical.MarshalResourcePayload(payload.ToCanonical())
	if err != nil {
		return err
	}
	digest := crypto.HashSHA256(payloadBytes)
	sig, err := crypto.SignSchnorrHex(priv, digest)
	if err != nil {
		return err
	}
	encoded, err := wire.EncodeResourceAttestation(wire.ResourceAttestation{
		Payload: payload,
		Key:     crypto.XOnlyPubKeyHex(priv),
		Sig:     sig,
	})
	if err != nil {
		return err
	}
	p := filepath.Join(dir, filepath.FromSlash(rel)+".resource-attestation")
	return os.WriteFile(p, []byte(encoded), 0o644)
}
