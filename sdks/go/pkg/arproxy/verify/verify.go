// Package verify performs the cryptographic checks a wayfinder client
// applies to manifests and resources before handing bytes to the proxy
// dispatcher: content-hash confirmation always, and Schnorr signature
// confirmation when a gateway attaches a signed attestation.
package verify

import (
	"errors"
	"fmt"
	"time"

	"github.com/ar-io/verifying-proxy/sdks/go/pkg/arproxy/canonical"
	"github.com/ar-io/verifying-proxy/sdks/go/pkg/arproxy/crypto"
	"github.com/ar-io/verifying-proxy/sdks/go/pkg/arproxy/wire"
)

// ContentHash confirms that body's sha256-derived txId matches expectedTxID.
// This check is mandatory for every manifest and resource fetch.
func ContentHash(body []byte, expectedTxID string) error {
	computed := crypto.TxID(body)
	if computed != expectedTxID {
		return fmt.Errorf("content hash mismatch: expected=%s computed=%s", expectedTxID, computed)
	}
	return nil
}

// ManifestAttestation verifies a gateway's signed claim about a manifest:
// the claimed manifest tx id matches what was actually fetched, the
// attestation has not expired, and the Schnorr signature over its
// canonical payload verifies against gatewayKeyHex.
func ManifestAttestation(att wire.ManifestAttestation, gatewayKeyHex, manifestTxID string, now time.Time) error {
	if att.Payload.ManifestTxID != manifestTxID {
		return fmt.Errorf("manifest attestation tx id mismatch: payload=%s fetched=%s", att.Payload.ManifestTxID, manifestTxID)
	}
	if att.Payload.EXP <= now.Unix() {
		return errors.New("manifest attestation expired")
	}
	bytesPayload, err := canonical.MarshalManifestPayload(att.Payload.ToCanonical())
	if err != nil {
		return err
	}
	digest := crypto.HashSHA256(bytesPayload)
	ok, err := crypto.VerifySchnorrHex(gatewayKeyHex, att.Sig, digest)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("manifest attestation signature invalid")
	}
	return nil
}

// ResourceAttestation verifies a gateway's signed claim about a single
// resource, analogous to ManifestAttestation.
func ResourceAttestation(att wire.ResourceAttestation, gatewayKeyHex, txID string, now time.Time) error {
	if att.Payload.TxID != txID {
		return fmt.Errorf("resource attestation tx id mismatch: payload=%s fetched=%s", att.Payload.TxID, txID)
	}
	if att.Payload.EXP <= now.Unix() {
		return errors.New("resource attestation expired")
	}
	bytesPayload, err := canonical.MarshalResourcePayload(att.Payload.ToCanonical())
	if err != nil {
		return err
	}
	digest := crypto.HashSHA256(bytesPayload)
	ok, err := crypto.VerifySchnorrHex(gatewayKeyHex, att.Sig, digest)
	if err != nil {
		return err
	}
	if !ok {
		return errors.New("resource attestation signature invalid")
	}
	return nil
}
