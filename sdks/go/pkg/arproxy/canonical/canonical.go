// Package canonical provides deterministic JSON encodings for the
// payloads that get Schnorr-signed, so a signature verifies against
// exactly the bytes the signer produced regardless of map ordering.
package canonical

import "encoding/json"

// ManifestAttestationPayload mirrors wire.ManifestAttestationPayload but
// locks field (and therefore JSON key) order for deterministic signing.
// Keys: manifest_tx_id, index_path, resource_count, iat, exp, kid
type ManifestAttestationPayload struct {
	ManifestTxID  string `json:"manifest_tx_id"`
	IndexPath     string `json:"index_path"`
	ResourceCount int    `json:"resource_count"`
	IAT           int64  `json:"iat"`
	EXP           int64  `json:"exp"`
	KID           string `json:"kid"`
}

// ManifestAttestation maintains key order: payload, key, sig
type ManifestAttestation struct {
	Payload ManifestAttestationPayload `json:"payload"`
	Key     string                     `json:"key"`
	Sig     string                     `json:"sig"`
}

// ResourceAttestationPayload mirrors wire.ResourceAttestationPayload.
// Keys: tx_id, path, hash, iat, exp, kid
type ResourceAttestationPayload struct {
	TxID string `json:"tx_id"`
	Path string `json:"path"`
	Hash string `json:"hash"`
	IAT  int64  `json:"iat"`
	EXP  int64  `json:"exp"`
	KID  string `json:"kid"`
}

// ResourceAttestation maintains key order: payload, key, sig
type ResourceAttestation struct {
	Payload ResourceAttestationPayload `json:"payload"`
	Key     string                     `json:"key"`
	Sig     string                     `json:"sig"`
}

// MarshalManifestPayload returns the compact deterministic JSON bytes for a
// manifest attestation payload — the bytes that get hashed and signed.
func MarshalManifestPayload(p ManifestAttestationPayload) ([]byte, error) {
	return json.Marshal(p)
}

// MarshalResourcePayload returns the compact deterministic JSON bytes for a
// resource attestation payload.
func MarshalResourcePayload(p ResourceAttestationPayload) ([]byte, error) {
	return json.Marshal(p)
}
