package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ar-io/verifying-proxy/apps/proxy/internal/cache"
	"github.com/ar-io/verifying-proxy/apps/proxy/internal/control"
	"github.com/ar-io/verifying-proxy/apps/proxy/internal/dispatch"
	"github.com/ar-io/verifying-proxy/apps/proxy/internal/state"
	"github.com/ar-io/verifying-proxy/apps/proxy/internal/verifier"
	"github.com/ar-io/verifying-proxy/sdks/go/pkg/arproxy/wayfinder"
)

func main() {
	addr := flag.String("addr", ":8090", "address to listen on")
	gatewayBaseURL := flag.String("gateway", "http://localhost:8080", "wayfinder gateway base URL")
	gatewayHost := flag.String("gateway-host", "localhost:8080", "gateway host the location patcher simulates as the app's origin")
	trustedGatewayKeyHex := flag.String("trusted-gateway-key", "", "hex x-only pubkey of a gateway whose manifest/resource attestations should be verified when present")
	maxCacheEntries := flag.Int("cache-max-entries", cache.DefaultMaxEntries, "max verified-cache entry count")
	maxCacheBytes := flag.Int64("cache-max-bytes", cache.DefaultMaxBytes, "max verified-cache aggregate bytes")
	concurrency := flag.Int("concurrency", 0, "max concurrent on-demand resource verifications (0 = default)")
	flag.Parse()

	st := state.New()
	c := cache.New(*maxCacheEntries, *maxCacheBytes)
	client := wayfinder.NewGatewayClient(*gatewayBaseURL, *trustedGatewayKeyHex)
	v := verifier.New(st, c, client)
	if *concurrency > 0 {
		v.SetConcurrency(*concurrency)
	}

	ctl := control.New(v, c, st)
	ctl.MarkInitialized()

	d := dispatch.New(v, st, c, ctl, *gatewayHost, nil)

	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Mount("/control", ctl.Router())
	r.Mount("/", d.Router())

	log.Printf("ar-proxy serving on %s, gateway %s", *addr, *gatewayBaseURL)
	if err := http.ListenAndServe(*addr, r); err != nil {
		log.Fatal(fmt.Errorf("server error: %w", err))
	}
}
