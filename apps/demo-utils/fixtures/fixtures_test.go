package fixtures

import (
	"encoding/hex"
	"os"
	"path/filepath"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"

	"github.com/ar-io/verifying-proxy/sdks/go/pkg/arproxy/crypto"
	"github.com/ar-io/verifying-proxy/sdks/go/pkg/arproxy/wire"
)

func TestBuildSampleSiteWritesReadableManifest(t *testing.T) {
	dir := t.TempDir()
	built, err := BuildSampleSite(dir, SampleSiteOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(built.PathToTxID) != 3 {
		t.Fatalf("expected 3 resources, got %d", len(built.PathToTxID))
	}

	data, err := os.ReadFile(filepath.Join(dir, "manifest.json"))
	if err != nil {
		t.Fatal(err)
	}
	m, err := wire.ParseManifest(data)
	if err != nil {
		t.Fatalf("manifest failed to parse: %v", err)
	}
	if m.Index.Path != "index.html" {
		t.Fatalf("unexpected index path: %s", m.Index.Path)
	}
	for rel, expected := range built.PathToTxID {
		entry, ok := m.Paths[rel]
		if !ok || entry.ID != expected {
			t.Fatalf("manifest missing or mismatched entry for %s", rel)
		}
	}
	if crypto.TxID(data) != built.ManifestTxID {
		t.Fatal("manifest tx id does not match written bytes")
	}
}

func TestBuildSampleSiteSignsWhenKeyProvided(t *testing.T) {
	dir := t.TempDir()
	priv, pubHex, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	built, err := BuildSampleSite(dir, SampleSiteOptions{PrivKeyHex: hexPriv(t, priv), KID: "k1"})
	if err != nil {
		t.Fatal(err)
	}

	attData, err := os.ReadFile(filepath.Join(dir, "manifest.attestation"))
	if err != nil {
		t.Fatal(err)
	}
	att, err := wire.DecodeManifestAttestation(string(attData))
	if err != nil {
		t.Fatal(err)
	}
	if att.Payload.ManifestTxID != built.ManifestTxID {
		t.Fatalf("attestation manifest tx id mismatch")
	}
	if att.Key != pubHex {
		t.Fatalf("attestation key = %s, want %s", att.Key, pubHex)
	}

	resAttData, err := os.ReadFile(filepath.Join(dir, "assets", "app.js.resource-attestation"))
	if err != nil {
		t.Fatal(err)
	}
	resAtt, err := wire.DecodeResourceAttestation(string(resAttData))
	if err != nil {
		t.Fatal(err)
	}
	if resAtt.Payload.TxID != built.PathToTxID["assets/app.js"] {
		t.Fatalf("resource attestation tx id mismatch")
	}
}

func TestStoredKeyRoundTrip(t *testing.T) {
	priv, pubHex, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "gateway.key.json")
	key := StoredKey{
		PrivKeyHex:    hexPriv(t, priv),
		PubKeyXOnly:   pubHex,
		CreatedAtUnix: 1700000000,
	}
	if err := WriteJSON0600(path, key); err != nil {
		t.Fatal(err)
	}

	got, err := ReadStoredKey(path)
	if err != nil {
		t.Fatal(err)
	}
	if got != key {
		t.Fatalf("round trip mismatch: %+v != %+v", got, key)
	}

	// The stored privkey must parse back to the same signing key.
	parsed, err := crypto.ParsePrivateKeyHex(got.PrivKeyHex)
	if err != nil {
		t.Fatal(err)
	}
	if crypto.XOnlyPubKeyHex(parsed) != pubHex {
		t.Fatal("stored privkey does not reproduce the stored pubkey")
	}
}

func TestReadStoredKeyRejectsMissingPrivKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	if err := WriteJSON0600(path, map[string]string{"pubkey_xonly_hex": "abc"}); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadStoredKey(path); err == nil {
		t.Fatal("expected error for key file without privkey_hex")
	}
}

func hexPriv(t *testing.T, priv *btcec.PrivateKey) string {
	t.Helper()
	return hex.EncodeToString(priv.Serialize())
}
