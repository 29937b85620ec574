package htmlpatch

import (
	"strings"
	"testing"
)

func TestIsHTMLContent(t *testing.T) {
	cases := map[string]bool{
		"text/html":                  true,
		"text/html; charset=utf-8":   true,
		"application/xhtml+xml":      true,
		"application/javascript":     false,
		"":                           false,
		"TEXT/HTML; charset=UTF-8":   true,
	}
	for ct, want := range cases {
		if got := IsHTMLContent(ct); got != want {
			t.Errorf("IsHTMLContent(%q) = %v, want %v", ct, got, want)
		}
	}
}

func TestInjectLocationPatchAfterHead(t *testing.T) {
	html := `<html><head lang="en"><title>t</title></head><body>hi</body></html>`
	out := InjectLocationPatch(html, "abc", "gateway.example")
	if !strings.Contains(out, "<script>") {
		t.Fatal("expected injected script")
	}
	headEnd := strings.Index(out, `<head lang="en">`) + len(`<head lang="en">`)
	if !strings.HasPrefix(out[headEnd:], "<script>") {
		t.Fatalf("expected script immediately after <head ...>, got: %s", out[headEnd:headEnd+40])
	}
	if strings.Count(out, "<script>") != 1 {
		t.Fatal("expected exactly one injected script")
	}
}

func TestInjectLocationPatchFallsBackToHTMLTag(t *testing.T) {
	html := `<html lang="en"><body>hi</body></html>`
	out := InjectLocationPatch(html, "abc", "gateway.example")
	tagEnd := strings.Index(out, `<html lang="en">`) + len(`<html lang="en">`)
	if !strings.HasPrefix(out[tagEnd:], "<script>") {
		t.Fatalf("expected script immediately after <html ...>, got: %s", out[tagEnd:tagEnd+40])
	}
}

func TestInjectLocationPatchPrependsWithoutHeadOrHTML(t *testing.T) {
	html := `<body>hi</body>`
	out := InjectLocationPatch(html, "abc", "gateway.example")
	if !strings.HasPrefix(out, "<script>") {
		t.Fatal("expected script prepended to document")
	}
}

func TestEscapeJSStringDefeatsScriptBreakout(t *testing.T) {
	malicious := `</script><script>alert(1)</script>`
	out := InjectLocationPatch("<html><head></head></html>", malicious, "gateway.example")

	// The only "<script>"/"</script>" pair in the output must be the one
	// this package itself wrote; the malicious identifier must appear
	// only as an escaped string literal, never as literal markup.
	if strings.Count(out, "<script>") != 1 || strings.Count(out, "</script>") != 1 {
		t.Fatalf("malicious payload broke out of its string literal: %s", out)
	}
	if !strings.Contains(out, `\u003c/script\u003e`) {
		t.Fatal("expected the malicious identifier to be escaped as unicode sequences")
	}
}

func TestEscapeJSStringHandlesQuotesAndBackslashes(t *testing.T) {
	value := `back\slash and "quote" and 'apos' and` + "\nnewline\rcr"
	escaped := escapeJSString(value)
	if strings.ContainsAny(escaped, "\n\r") {
		t.Fatal("expected literal newlines/CRs to be escaped away")
	}
	if strings.Count(escaped, `\\`) == 0 {
		t.Fatal("expected backslash to be escaped")
	}
	if strings.Contains(escaped, `"quote"`) {
		t.Fatal("expected double quotes to be escaped")
	}
}
