// Package manifestbuild walks a directory tree into the manifest shape
// apps/originserver and apps/proxy consume, and signs the optional
// gateway attestations over it.
package manifestbuild

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/ar-io/verifying-proxy/sdks/go/pkg/arproxy/canonical"
	"github.com/ar-io/verifying-proxy/sdks/go/pkg/arproxy/crypto"
	"github.com/ar-io/verifying-proxy/sdks/go/pkg/arproxy/wire"
)

// Built is the result of walking a directory into a manifest.
type Built struct {
	ManifestJSON []byte
	ManifestTxID string
	IndexPath    string
	PathToTxID   map[string]string
}

// Build walks dir and returns a manifest covering every regular file
// under it, keyed by slash-separated path relative to dir. indexPath
// must name a file that exists under dir; fallbackPath is optional.
func Build(dir, indexPath, fallbackPath string) (*Built, error) {
	paths := make(map[string]wire.ManifestEntry)
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		data, err := os.ReadFile(p)
		if err != nil {
			return err
		}
		paths[rel] = wire.ManifestEntry{ID: crypto.TxID(data)}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", dir, err)
	}
	if _, ok := paths[indexPath]; !ok {
		return nil, fmt.Errorf("index path %q not found under %s", indexPath, dir)
	}

	m := wire.Manifest{Paths: paths}
	m.Index.Path = indexPath
	if fallbackPath != "" {
		entry, ok := paths[fallbackPath]
		if !ok {
			return nil, fmt.Errorf("fallback path %q not found under %s", fallbackPath, dir)
		}
		m.Fallback = &entry
	}

	manifestJSON, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}

	pathToTxID := make(map[string]string, len(paths))
	for p, entry := range paths {
		pathToTxID[p] = entry.ID
	}

	return &Built{
		ManifestJSON: manifestJSON,
		ManifestTxID: crypto.TxID(manifestJSON),
		IndexPath:    indexPath,
		PathToTxID:   pathToTxID,
	}, nil
}

// SignManifestAttestation signs a manifest attestation payload over
// built and returns the base64url(JSON) header value.
func SignManifestAttestation(priv *btcec.PrivateKey, kid string, built *Built, ttl time.Duration) (string, error) {
	now := time.Now()
	payload := wire.ManifestAttestationPayload{
		ManifestTxID:  built.ManifestTxID,
		IndexPath:     built.IndexPath,
		ResourceCount: len(built.PathToTxID),
		IAT:           now.Unix(),
		EXP:           now.Add(ttl).Unix(),
		KID:           kid,
	}
	sig, err := sign(priv, canonical.MarshalManifestPayload, payload.ToCanonical())
	if err != nil {
		return "", err
	}
	return wire.EncodeManifestAttestation(wire.ManifestAttestation{
		Payload: payload,
		Key:     crypto.XOnlyPubKeyHex(priv),
		Sig:     sig,
	})
}

// SignResourceAttestation signs a resource attestation payload over a
// single resource's bytes and returns the base64url(JSON) header value.
func SignResourceAttestation(priv *btcec.PrivateKey, kid, txID, resourcePath string, data []byte, ttl time.Duration) (string, error) {
	now := time.Now()
	payload := wire.ResourceAttestationPayload{
		TxID: txID,
		Path: resourcePath,
		Hash: crypto.HashSHA256Hex(data),
		IAT:  now.Unix(),
		EXP:  now.Add(ttl).Unix(),
		KID:  kid,
	}
	sig, err := sign(priv, canonical.MarshalResourcePayload, payload.ToCanonical())
	if err != nil {
		return "", err
	}
	return wire.EncodeResourceAttestation(wire.ResourceAttestation{
		Payload: payload,
		Key:     crypto.XOnlyPubKeyHex(priv),
		Sig:     sig,
	})
}

func sign[T any](priv *btcec.PrivateKey, marshal func(T) ([]byte, error), payload T) (string, error) {
	data, err := marshal(payload)
	if err != nil {
		return "", err
	}
	digest := crypto.HashSHA256(data)
	return crypto.SignSchnorrHex(priv, digest)
}
