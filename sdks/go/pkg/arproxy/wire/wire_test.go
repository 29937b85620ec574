package wire

import "testing"

func TestParseManifestTolerantOfUnknownFields(t *testing.T) {
	raw := []byte(`{
		"index": {"path": "index.html"},
		"paths": {
			"index.html": {"id": "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa"},
			"assets/app.js": {"id": "bbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbbb"}
		},
		"fallback": {"id": "ccccccccccccccccccccccccccccccccccccccccccc"},
		"unknown_field": {"anything": true}
	}`)

	m, err := ParseManifest(raw)
	if err != nil {
		t.Fatal(err)
	}
	if m.Index.Path != "index.html" {
		t.Fatalf("unexpected index path: %s", m.Index.Path)
	}
	p2t := m.PathToTxID()
	if p2t["index.html"] != "aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa" {
		t.Fatalf("unexpected index txid mapping: %v", p2t)
	}
	if p2t[FallbackPath] != "ccccccccccccccccccccccccccccccccccccccccccc" {
		t.Fatalf("expected fallback mapped under reserved key, got %v", p2t)
	}
}

func TestParseManifestRejectsMissingIndex(t *testing.T) {
	_, err := ParseManifest([]byte(`{"paths": {}}`))
	if err == nil {
		t.Fatal("expected error for manifest missing index.path")
	}
}

func TestParseManifestRejectsMalformedJSON(t *testing.T) {
	_, err := ParseManifest([]byte(`not json`))
	if err == nil {
		t.Fatal("expected error for malformed JSON")
	}
}

func TestManifestAttestationHeaderRoundTrip(t *testing.T) {
	a := ManifestAttestation{
		Payload: ManifestAttestationPayload{
			ManifestTxID:  "aaa",
			IndexPath:     "index.html",
			ResourceCount: 2,
			IAT:           1,
			EXP:           2,
			KID:           "gw1",
		},
		Key: "keyhex",
		Sig: "sighex",
	}
	enc, err := EncodeManifestAttestation(a)
	if err != nil {
		t.Fatal(err)
	}
	out, err := DecodeManifestAttestation(enc)
	if err != nil {
		t.Fatal(err)
	}
	if out.Payload.ManifestTxID != a.Payload.ManifestTxID || out.Sig != a.Sig {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}
