package store

import (
	"testing"
)

func TestPutAndGetContentRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.PutContent("tx1", []byte("hello"), "text/plain", "", ""); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetContent("tx1")
	if err != nil {
		t.Fatal(err)
	}
	if string(got.Bytes) != "hello" || got.ContentType != "text/plain" {
		t.Fatalf("unexpected content: %+v", got)
	}
}

func TestResolveNameRoundTrip(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.PutName("alice.ar", "manifestTx123"); err != nil {
		t.Fatal(err)
	}
	got, err := s.ResolveName("alice.ar")
	if err != nil {
		t.Fatal(err)
	}
	if got != "manifestTx123" {
		t.Fatalf("expected manifestTx123, got %s", got)
	}
}

func TestResolveRejectsPathEscape(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	if err := s.PutContent("../../etc/passwd", []byte("x"), "", "", ""); err != nil {
		// path.Clean collapses ../.. so this should resolve harmlessly
		// inside the root rather than erroring; either outcome is
		// acceptable as long as nothing is written outside root.
		t.Logf("PutContent with traversal-looking key returned: %v", err)
	}
}
