package crypto

import "testing"

func TestSignAndVerifySchnorr(t *testing.T) {
	priv, pubHex, err := GenerateKeyPair()
	if err != nil {
		t.Fatal(err)
	}
	digest := HashSHA256([]byte("manifest bytes"))
	sigHex, err := SignSchnorrHex(priv, digest)
	if err != nil {
		t.Fatal(err)
	}
	ok, err := VerifySchnorrHex(pubHex, sigHex, digest)
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected signature to verify")
	}

	tampered := HashSHA256([]byte("different bytes"))
	ok, err = VerifySchnorrHex(pubHex, sigHex, tampered)
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected signature over different digest to fail")
	}
}

func TestTxIDIsFortyThreeChars(t *testing.T) {
	id := TxID([]byte("hello world"))
	if len(id) != 43 {
		t.Fatalf("expected 43-char txid, got %d: %s", len(id), id)
	}
}
