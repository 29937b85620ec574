package main

import (
	"flag"
	"fmt"
	"log"
	"net/http"

	"github.com/ar-io/verifying-proxy/apps/originserver/internal/httpx"
	"github.com/ar-io/verifying-proxy/apps/originserver/internal/store"
)

func main() {
	addr := flag.String("addr", ":8080", "address to listen on")
	dir := flag.String("dir", "apps/originserver/fixtures", "content-addressed store root")
	flag.Parse()

	s, err := store.New(*dir)
	if err != nil {
		log.Fatal(fmt.Errorf("store init: %w", err))
	}

	r := httpx.NewRouter(s)

	log.Printf("originserver serving %s on %s", *dir, *addr)
	if err := http.ListenAndServe(*addr, r); err != nil {
		log.Fatal(fmt.Errorf("server error: %w", err))
	}
}
