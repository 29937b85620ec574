package cache

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestPutGetHas(t *testing.T) {
	c := New(0, 0)
	if c.Has("a") {
		t.Fatal("expected empty cache to not have entry")
	}
	c.Put("a", []byte("hello"), "text/plain")
	if !c.Has("a") {
		t.Fatal("expected entry after Put")
	}
	entry, ok := c.Get("a")
	if !ok || string(entry.Bytes) != "hello" || entry.ContentType != "text/plain" {
		t.Fatalf("unexpected entry: %+v ok=%v", entry, ok)
	}
}

func TestEvictionByCount(t *testing.T) {
	c := New(2, 0)
	c.Put("a", []byte("1"), "text/plain")
	c.Put("b", []byte("2"), "text/plain")
	c.Put("c", []byte("3"), "text/plain")
	if c.Has("a") {
		t.Fatal("expected least-recently-used entry to be evicted")
	}
	if !c.Has("b") || !c.Has("c") {
		t.Fatal("expected both recent entries to survive")
	}
}

func TestGetPromotesRecency(t *testing.T) {
	c := New(2, 0)
	c.Put("a", []byte("1"), "text/plain")
	c.Put("b", []byte("2"), "text/plain")
	c.Get("a") // promote a
	c.Put("c", []byte("3"), "text/plain")
	if c.Has("b") {
		t.Fatal("expected b (least recently used) to be evicted, not a")
	}
	if !c.Has("a") {
		t.Fatal("expected promoted entry a to survive")
	}
}

func TestClearAndClearForManifest(t *testing.T) {
	c := New(0, 0)
	c.Put("a", []byte("1"), "text/plain")
	c.Put("b", []byte("2"), "text/plain")
	c.ClearForManifest([]string{"a"})
	if c.Has("a") {
		t.Fatal("expected a removed")
	}
	if !c.Has("b") {
		t.Fatal("expected b to remain")
	}
	c.Clear()
	if c.Has("b") {
		t.Fatal("expected global clear to remove everything")
	}
	stats := c.Stats()
	if stats.Entries != 0 || stats.Bytes != 0 {
		t.Fatalf("expected empty stats after clear, got %+v", stats)
	}
}

func TestToResponseSetsDownloadHeaders(t *testing.T) {
	rec := httptest.NewRecorder()
	ToResponse(rec, Entry{Bytes: []byte("data"), ContentType: "text/html"}, "report\r\n.html")
	disposition := rec.Header().Get("Content-Disposition")
	if strings.ContainsAny(disposition, "\r\n") {
		t.Fatalf("expected sanitized filename with no CR/LF, got %q", disposition)
	}
	if !strings.Contains(disposition, "attachment") {
		t.Fatalf("expected attachment disposition, got %q", disposition)
	}
	if rec.Header().Get("Content-Type") != "text/html" {
		t.Fatalf("expected content type preserved, got %q", rec.Header().Get("Content-Type"))
	}
}

func TestToResponseWithoutDownload(t *testing.T) {
	rec := httptest.NewRecorder()
	ToResponse(rec, Entry{Bytes: []byte("data"), ContentType: "application/javascript"}, "")
	if rec.Header().Get("Content-Disposition") != "" {
		t.Fatal("expected no Content-Disposition when no download filename given")
	}
}
