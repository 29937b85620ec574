// Copyright 2025 Jason Stonebraker
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package crypto provides the hashing and Schnorr signature primitives
// used to verify manifests and resources fetched through a wayfinder
// gateway.
package crypto

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// HashSHA256 computes the SHA-256 digest of data.
func HashSHA256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// HashSHA256Hex returns the lowercase hex encoding of data's SHA-256 digest.
func HashSHA256Hex(data []byte) string {
	digest := sha256.Sum256(data)
	return hex.EncodeToString(digest[:])
}

// TxID returns the 43-character base64url (no padding) content hash used
// as a transaction id throughout the manifest and cache layers.
func TxID(data []byte) string {
	digest := sha256.Sum256(data)
	return base64.RawURLEncoding.EncodeToString(digest[:])
}

// decodeHex32 decodes a hex string that must name exactly 32 bytes.
func decodeHex32(hexKey, what string) ([]byte, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", what, err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("%s: want 32 bytes, got %d", what, len(raw))
	}
	return raw, nil
}

// GenerateKeyPair creates a secp256k1 private key and returns it along
// with its x-only public key (64 hex chars), for a gateway that wants to
// sign manifest/resource attestations.
func GenerateKeyPair() (*btcec.PrivateKey, string, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, "", fmt.Errorf("generate key: %w", err)
	}
	return priv, XOnlyPubKeyHex(priv), nil
}

// XOnlyPubKeyHex returns the 64-hex BIP-340 x-only public key for priv.
func XOnlyPubKeyHex(priv *btcec.PrivateKey) string {
	return hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey()))
}

// ParseXOnlyPubKeyHex parses a 64-hex x-only public key.
func ParseXOnlyPubKeyHex(hexKey string) (*btcec.PublicKey, error) {
	raw, err := decodeHex32(hexKey, "x-only pubkey")
	if err != nil {
		return nil, err
	}
	return schnorr.ParsePubKey(raw)
}

// ParsePrivateKeyHex parses a 32-byte hex-encoded private key.
func ParsePrivateKeyHex(hexKey string) (*btcec.PrivateKey, error) {
	raw, err := decodeHex32(hexKey, "private key")
	if err != nil {
		return nil, err
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return priv, nil
}

// SignSchnorrHex signs a 32-byte digest and returns the hex-encoded
// 64-byte signature.
func SignSchnorrHex(priv *btcec.PrivateKey, digest [32]byte) (string, error) {
	sig, err := schnorr.Sign(priv, digest[:])
	if err != nil {
		return "", fmt.Errorf("schnorr sign: %w", err)
	}
	return hex.EncodeToString(sig.Serialize()), nil
}

// VerifySchnorrHex verifies a hex-encoded Schnorr signature against a hex
// x-only pubkey and a 32-byte digest. The signature is decoded before the
// key so a caller probing malformed inputs hears about the signature
// first, matching the order the values arrive in an attestation.
func VerifySchnorrHex(pubHex, sigHex string, digest [32]byte) (bool, error) {
	sigRaw, err := hex.DecodeString(sigHex)
	if err != nil {
		return false, fmt.Errorf("decode signature: %w", err)
	}
	sig, err := schnorr.ParseSignature(sigRaw)
	if err != nil {
		return false, fmt.Errorf("parse signature: %w", err)
	}
	pub, err := ParseXOnlyPubKeyHex(pubHex)
	if err != nil {
		return false, err
	}
	return sig.Verify(digest[:], pub), nil
}
