// Package wire defines the JSON shapes exchanged with the wayfinder
// gateway: the manifest itself, and the optional signed attestations a
// gateway may attach to vouch for a manifest or resource.
package wire

import (
	"encoding/base64"
	"encoding/json"
	"errors"

	"github.com/ar-io/verifying-proxy/sdks/go/pkg/arproxy/canonical"
)

// FallbackPath is the reserved manifest key carrying the fallback txId
// used for client-side-routed apps.
const FallbackPath = "__fallback__"

// ManifestEntry is one path's resolved content hash.
type ManifestEntry struct {
	ID string `json:"id"`
}

// Manifest is the wire format consumed from a gateway: a JSON object with
// {index: {path}, paths: {"<path>": {"id": "<txId>"}}, fallback?: {id}}.
// Unknown additional fields are tolerated by using json.Unmarshal into
// this struct, which silently ignores unrecognized keys.
type Manifest struct {
	Index struct {
		Path string `json:"path"`
	} `json:"index"`
	Paths    map[string]ManifestEntry `json:"paths"`
	Fallback *ManifestEntry           `json:"fallback,omitempty"`
}

// ParseManifest decodes raw manifest bytes, tolerating unknown fields.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, errors.New("manifest is not valid JSON: " + err.Error())
	}
	if m.Index.Path == "" {
		return nil, errors.New("manifest missing index.path")
	}
	if m.Paths == nil {
		m.Paths = map[string]ManifestEntry{}
	}
	return &m, nil
}

// PathToTxID flattens the manifest into a plain path->txId map plus the
// reserved fallback key, the shape verification state keeps around.
func (m *Manifest) PathToTxID() map[string]string {
	out := make(map[string]string, len(m.Paths)+1)
	for path, entry := range m.Paths {
		out[path] = entry.ID
	}
	if m.Fallback != nil {
		out[FallbackPath] = m.Fallback.ID
	}
	return out
}

// ManifestAttestationPayload is the signed claim a gateway may attach to
// a manifest response, binding its content hash to a resource count and
// validity window.
type ManifestAttestationPayload struct {
	ManifestTxID  string `json:"manifest_tx_id"`
	IndexPath     string `json:"index_path"`
	ResourceCount int    `json:"resource_count"`
	IAT           int64  `json:"iat"`
	EXP           int64  `json:"exp"`
	KID           string `json:"kid"`
}

// ManifestAttestation is the decoded X-Manifest-Attestation header value.
type ManifestAttestation struct {
	Payload ManifestAttestationPayload `json:"payload"`
	Key     string                     `json:"key"`
	Sig     string                     `json:"sig"`
}

// ToCanonical transforms a ManifestAttestationPayload into its
// deterministic-encoding counterpart.
func (p ManifestAttestationPayload) ToCanonical() canonical.ManifestAttestationPayload {
	return canonical.ManifestAttestationPayload{
		ManifestTxID:  p.ManifestTxID,
		IndexPath:     p.IndexPath,
		ResourceCount: p.ResourceCount,
		IAT:           p.IAT,
		EXP:           p.EXP,
		KID:           p.KID,
	}
}

// ResourceAttestationPayload is the signed claim a gateway may attach to
// an individual resource response.
type ResourceAttestationPayload struct {
	TxID string `json:"tx_id"`
	Path string `json:"path"`
	Hash string `json:"hash"`
	IAT  int64  `json:"iat"`
	EXP  int64  `json:"exp"`
	KID  string `json:"kid"`
}

// ResourceAttestation is the decoded X-Resource-Attestation header value.
type ResourceAttestation struct {
	Payload ResourceAttestationPayload `json:"payload"`
	Key     string                     `json:"key"`
	Sig     string                     `json:"sig"`
}

// ToCanonical transforms a ResourceAttestationPayload into its
// deterministic-encoding counterpart.
func (p ResourceAttestationPayload) ToCanonical() canonical.ResourceAttestationPayload {
	return canonical.ResourceAttestationPayload{
		TxID: p.TxID,
		Path: p.Path,
		Hash: p.Hash,
		IAT:  p.IAT,
		EXP:  p.EXP,
		KID:  p.KID,
	}
}

// EncodeManifestAttestation returns base64url(JSON) for an HTTP header value.
func EncodeManifestAttestation(a ManifestAttestation) (string, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeManifestAttestation parses base64url(JSON) into a ManifestAttestation.
func DecodeManifestAttestation(value string) (ManifestAttestation, error) {
	var a ManifestAttestation
	if value == "" {
		return a, errors.New("empty manifest attestation header")
	}
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return a, err
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return a, err
	}
	return a, nil
}

// EncodeResourceAttestation returns base64url(JSON) for an HTTP header value.
func EncodeResourceAttestation(a ResourceAttestation) (string, error) {
	data, err := json.Marshal(a)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeResourceAttestation parses base64url(JSON) into a ResourceAttestation.
func DecodeResourceAttestation(value string) (ResourceAttestation, error) {
	var a ResourceAttestation
	if value == "" {
		return a, errors.New("empty resource attestation header")
	}
	data, err := base64.RawURLEncoding.DecodeString(value)
	if err != nil {
		return a, err
	}
	if err := json.Unmarshal(data, &a); err != nil {
		return a, err
	}
	return a, nil
}
