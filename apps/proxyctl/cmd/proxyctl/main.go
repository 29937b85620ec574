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

// Command proxyctl is the operator-facing counterpart to apps/proxy: it
// generates gateway keypairs, builds manifests and attestations for a
// content-addressed origin, and can fetch-and-verify a single reference
// against a running gateway without standing up the full proxy.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ar-io/verifying-proxy/apps/demo-utils/fixtures"
	"github.com/ar-io/verifying-proxy/apps/proxyctl/internal/manifestbuild"
	"github.com/ar-io/verifying-proxy/sdks/go/pkg/arproxy/crypto"
	"github.com/ar-io/verifying-proxy/sdks/go/pkg/arproxy/wayfinder"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	switch os.Args[1] {
	case "keygen":
		keygenCmd(os.Args[2:])
	case "manifest-create":
		manifestCreateCmd(os.Args[2:])
	case "resource-attest":
		resourceAttestCmd(os.Args[2:])
	case "verify-remote":
		verifyRemoteCmd(os.Args[2:])
	case "seed-fixture":
		seedFixtureCmd(os.Args[2:])
	case "help", "-h", "--help":
		usage()
	default:
		usage()
		os.Exit(2)
	}
}

func usage() {
	exe := filepath.Base(os.Args[0])
	fmt.Fprintf(os.Stderr, "Usage: %s <command> [options]\n", exe)
	fmt.Fprintf(os.Stderr, "\nCommands:\n")
	fmt.Fprintf(os.Stderr, "  keygen           Generate a secp256k1 keypair and print or append to .env\n")
	fmt.Fprintf(os.Stderr, "  manifest-create  Build a manifest for a directory tree and optionally sign it\n")
	fmt.Fprintf(os.Stderr, "  resource-attest  Create a signed resource attestation header value for a file\n")
	fmt.Fprintf(os.Stderr, "  verify-remote    Resolve/fetch a reference from a gateway and verify it locally\n")
	fmt.Fprintf(os.Stderr, "  seed-fixture     Write a small sample identifier tree for local smoke-testing\n")
}

func keygenCmd(args []string) {
	fs := flag.NewFlagSet("keygen", flag.ExitOnError)
	name := fs.String("name", "gateway", "label for the keypair (e.g. gateway)")
	out := fs.String("out", "", "optional path to write env lines (e.g. .env)")
	jsonOut := fs.String("json-out", "", "optional path to write the keypair as a JSON key file (readable by seed-fixture -key)")
	_ = fs.Parse(args)

	priv, pubHex, err := crypto.GenerateKeyPair()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	privHex := hex.EncodeToString(priv.Serialize())

	if *jsonOut != "" {
		key := fixtures.StoredKey{
			PrivKeyHex:    privHex,
			PubKeyXOnly:   pubHex,
			CreatedAtUnix: time.Now().Unix(),
		}
		if err := fixtures.WriteJSON0600(*jsonOut, key); err != nil {
			fmt.Fprintf(os.Stderr, "write %s: %v\n", *jsonOut, err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", *jsonOut)
	}

	prefix := *name
	if prefix == "" {
		prefix = "gateway"
	}
	lines := fmt.Sprintf("%s=%s\n%s=%s\n", envKey(prefix, "PRIVKEY"), privHex, envKey(prefix, "PUBKEY_XONLY"), pubHex)

	if *out == "" {
		fmt.Print(lines)
		return
	}
	f, err := os.OpenFile(*out, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *out, err)
		os.Exit(1)
	}
	defer f.Close()
	if _, err := f.WriteString(lines); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", *out, err)
		os.Exit(1)
	}
}

func envKey(prefix, key string) string {
	return fmt.Sprintf("%s_%s", toUpper(prefix), key)
}

func toUpper(s string) string {
	b := []byte(s)
	for i := range b {
		c := b[i]
		if c >= 'a' && c <= 'z' {
			b[i] = c - 32
		}
	}
	return string(b)
}

func manifestCreateCmd(args []string) {
	fs := flag.NewFlagSet("manifest-create", flag.ExitOnError)
	dir := fs.String("dir", "", "root directory of the site to build a manifest for (required)")
	index := fs.String("index", "index.html", "relative path of the index document")
	fallback := fs.String("fallback", "", "optional relative path served for unmatched client-side routes")
	out := fs.String("out", "manifest.json", "manifest JSON output path")
	privHex := fs.String("privkey", "", "optional hex-encoded gateway private key; if set, also writes a signed manifest attestation")
	kid := fs.String("kid", "", "key id embedded in the attestation payload")
	ttl := fs.Duration("ttl", 24*time.Hour, "attestation validity window")
	attestationOut := fs.String("attestation-out", "manifest.attestation", "attestation header value output path (with -privkey)")
	_ = fs.Parse(args)

	if *dir == "" {
		fmt.Fprintf(os.Stderr, "manifest-create requires -dir\n")
		fs.Usage()
		os.Exit(2)
	}

	built, err := manifestbuild.Build(*dir, *index, *fallback)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*out, built.ManifestJSON, 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d resources, manifest tx id %s)\n", *out, len(built.PathToTxID), built.ManifestTxID)

	if *privHex == "" {
		return
	}
	priv, err := crypto.ParsePrivateKeyHex(*privHex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	att, err := manifestbuild.SignManifestAttestation(priv, *kid, built, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	if err := os.WriteFile(*attestationOut, []byte(att), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", *attestationOut, err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", *attestationOut)
}

func resourceAttestCmd(args []string) {
	fs := flag.NewFlagSet("resource-attest", flag.ExitOnError)
	inPath := fs.String("in", "", "path to the resource file (required)")
	resPath := fs.String("path", "", "the resource's manifest path, e.g. assets/app.js (required)")
	txID := fs.String("txid", "", "content tx id; computed from -in if omitted")
	privHex := fs.String("privkey", "", "hex-encoded gateway private key (required)")
	kid := fs.String("kid", "", "key id embedded in the attestation payload")
	ttl := fs.Duration("ttl", 24*time.Hour, "attestation validity window")
	out := fs.String("out", "", "output path (default: <in>.resource-attestation)")
	_ = fs.Parse(args)

	if *inPath == "" || *resPath == "" || *privHex == "" {
		fmt.Fprintf(os.Stderr, "resource-attest requires -in, -path, and -privkey\n")
		fs.Usage()
		os.Exit(2)
	}

	data, err := os.ReadFile(*inPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", *inPath, err)
		os.Exit(1)
	}
	id := *txID
	if id == "" {
		id = crypto.TxID(data)
	}
	priv, err := crypto.ParsePrivateKeyHex(*privHex)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	att, err := manifestbuild.SignResourceAttestation(priv, *kid, id, *resPath, data, *ttl)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	outPath := *out
	if outPath == "" {
		outPath = *inPath + ".resource-attestation"
	}
	if err := os.WriteFile(outPath, []byte(att), 0o644); err != nil {
		fmt.Fprintf(os.Stderr, "write %s: %v\n", outPath, err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stderr, "wrote %s (tx id %s)\n", outPath, id)
}

func verifyRemoteCmd(args []string) {
	fs := flag.NewFlagSet("verify-remote", flag.ExitOnError)
	gateway := fs.String("gateway", "http://localhost:8080", "base URL of the gateway")
	name := fs.String("name", "", "name to resolve to a manifest tx id before fetching")
	ref := fs.String("ref", "", "tx id to fetch directly; required unless -name is set")
	trustedKey := fs.String("trusted-key", "", "optional gateway x-only pubkey hex to verify attestation headers")
	timeout := fs.Duration("timeout", 30*time.Second, "HTTP timeout for requests")
	_ = fs.Parse(args)

	if *name == "" && *ref == "" {
		fmt.Fprintf(os.Stderr, "verify-remote requires -name or -ref\n")
		fs.Usage()
		os.Exit(2)
	}

	client := wayfinder.NewGatewayClient(*gateway, *trustedKey)
	client.HTTPClient.Timeout = *timeout

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	reference := *ref
	if *name != "" {
		resolved, err := client.ResolveName(ctx, *name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "error resolving %s: %v\n", *name, err)
			os.Exit(1)
		}
		fmt.Fprintf(os.Stderr, "resolved %s -> %s\n", *name, resolved)
		if reference == "" {
			reference = resolved
		}
	}

	fetched, err := client.Fetch(ctx, reference, wayfinder.FetchOptions{
		Verify:       true,
		ExpectedTxID: reference,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "verification failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("verified %s: %d bytes, content-type %q, final url %s\n",
		reference, len(fetched.Bytes), fetched.ContentType, fetched.FinalURL)
}

func seedFixtureCmd(args []string) {
	fs := flag.NewFlagSet("seed-fixture", flag.ExitOnError)
	dir := fs.String("dir", "fixture-site", "directory to write the sample identifier tree into")
	privHex := fs.String("privkey", "", "optional hex-encoded gateway private key; if set, also writes signed attestations")
	keyFile := fs.String("key", "", "JSON key file written by keygen -json-out; alternative to -privkey")
	kid := fs.String("kid", "", "key id embedded in attestation payloads")
	ttl := fs.Duration("ttl", 24*time.Hour, "attestation validity window")
	_ = fs.Parse(args)

	signKey := *privHex
	if signKey == "" && *keyFile != "" {
		stored, err := fixtures.ReadStoredKey(*keyFile)
		if err != nil {
			fmt.Fprintf(os.Stderr, "read %s: %v\n", *keyFile, err)
			os.Exit(1)
		}
		signKey = stored.PrivKeyHex
	}

	if err := os.MkdirAll(*dir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mkdir %s: %v\n", *dir, err)
		os.Exit(1)
	}

	built, err := fixtures.BuildSampleSite(*dir, fixtures.SampleSiteOptions{
		PrivKeyHex: signKey,
		KID:        *kid,
		TTL:        *ttl,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "wrote sample site to %s (%d resources, manifest tx id %s, index %s)\n",
		built.Dir, len(built.PathToTxID), built.ManifestTxID, built.IndexPath)
}
