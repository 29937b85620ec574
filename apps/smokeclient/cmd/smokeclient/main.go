// Command smokeclient drives a running ar-proxy instance through the
// end-to-end request sequences of a cold read, a lazy sub-resource
// fetch, and an absolute-path interception, printing a pass/fail trace
// for each step. It is the manual/integration counterpart to the
// dispatch package's unit tests: a plain net/http client (chi-free)
// with a flag-driven CLI in the style of this repo's other command-line
// tools.
package main

import (
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

type step struct {
	name string
	run  func(client *http.Client, base, identifier string) error
}

var steps = []step{
	{"cold read (top-level navigation)", stepColdRead},
	{"lazy sub-resource fetch", stepLazySubResource},
	{"absolute-path interception", stepAbsolutePathInterception},
	{"verify-check diagnostic", stepVerifyCheck},
}

func main() {
	proxyBase := flag.String("proxy", "http://localhost:8090", "base URL of a running ar-proxy instance")
	identifier := flag.String("identifier", "", "manifest tx id (or resolvable name) to drive through the proxy (required)")
	timeout := flag.Duration("timeout", 10*time.Second, "HTTP timeout for each request")
	flag.Parse()

	if *identifier == "" {
		fmt.Fprintln(os.Stderr, "smokeclient: -identifier is required")
		os.Exit(2)
	}

	client := &http.Client{Timeout: *timeout}
	base := strings.TrimSuffix(*proxyBase, "/") + "/"

	failed := false
	for _, s := range steps {
		fmt.Printf("== %s ==\n", s.name)
		if err := s.run(client, base, *identifier); err != nil {
			fmt.Printf("FAIL: %v\n\n", err)
			failed = true
			continue
		}
		fmt.Printf("OK\n\n")
	}

	if failed {
		os.Exit(1)
	}
}

// stepColdRead issues a top-level navigation through the proxy prefix.
// This triggers manifest verification and serves the patched index
// document; it also marks the identifier active, which
// stepAbsolutePathInterception below depends on.
func stepColdRead(client *http.Client, base, identifier string) error {
	req, err := http.NewRequest(http.MethodGet, base+"ar-proxy/"+identifier+"/", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Sec-Fetch-Mode", "navigate")
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 300))
	}
	if !strings.Contains(string(body), "__AR_PROXY__") {
		return fmt.Errorf("response did not contain the injected __AR_PROXY__ location patch marker")
	}
	return nil
}

func stepLazySubResource(client *http.Client, base, identifier string) error {
	resp, err := client.Get(base + "ar-proxy/" + identifier + "/assets/app.js")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 300))
	}
	return nil
}

// stepAbsolutePathInterception relies on stepColdRead having already
// run in the same process and marked identifier active server-side;
// the request below carries no /ar-proxy/{id} prefix at all.
func stepAbsolutePathInterception(client *http.Client, base, identifier string) error {
	resp, err := client.Get(base + "assets/app.js")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 300))
	}
	return nil
}

func stepVerifyCheck(client *http.Client, base, identifier string) error {
	resp, err := client.Post(base+"control/verify-check", "application/json",
		strings.NewReader(fmt.Sprintf(`{"identifier":%q}`, identifier)))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("status %d: %s", resp.StatusCode, truncate(string(body), 300))
	}
	if !strings.Contains(string(body), `"verified":true`) {
		return fmt.Errorf("verify-check did not report verified:true: %s", truncate(string(body), 300))
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
