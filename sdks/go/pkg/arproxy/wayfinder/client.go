// Package wayfinder implements the trusted name-resolution and
// content-fetch collaborator: a client that resolves names to manifest
// transaction ids and fetches manifest/resource bytes from a gateway,
// honoring an integrity contract of "fetch returns verified bytes or
// throws" with a mandatory content-hash check and an optional
// Schnorr-signed gateway attestation.
package wayfinder

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ar-io/verifying-proxy/sdks/go/pkg/arproxy/verify"
	"github.com/ar-io/verifying-proxy/sdks/go/pkg/arproxy/wire"
)

// Conservative size bounds enforced before buffering a response body.
const (
	MaxManifestBytes = 16 * 1024 * 1024
	MaxResourceBytes = 512 * 1024 * 1024
)

// FetchOptions configures a single Fetch call.
type FetchOptions struct {
	// Verify enables the content-hash check and the optional
	// attestation-header check; when false, Fetch returns the bytes
	// unchecked. The proxy verifier and proxyctl always set this true.
	Verify bool
	// ExpectedTxID is the content hash the fetched bytes must match
	// when Verify is true.
	ExpectedTxID string
	// MaxBytes caps the response body size; 0 means MaxResourceBytes.
	MaxBytes int64
}

// Fetched is the result of a successful Fetch.
type Fetched struct {
	Bytes       []byte
	ContentType string
	FinalURL    string
}

// Client is the contract the proxy verifier depends on. A gateway
// requester error (DNS, timeout, non-2xx) and an integrity failure are
// both returned as plain errors; the caller distinguishes "transient"
// from "integrity" failures by inspecting the error with
// errors.As(&IntegrityError{}).
type Client interface {
	ResolveName(ctx context.Context, name string) (manifestTxID string, err error)
	Fetch(ctx context.Context, reference string, opts FetchOptions) (Fetched, error)
}

// IntegrityError marks a failure as a cryptographic integrity failure
// (content hash or signature mismatch), which is fatal for the
// identifier rather than a retryable transient error.
type IntegrityError struct {
	Reason string
}

func (e *IntegrityError) Error() string { return "integrity failure: " + e.Reason }

// GatewayClient is the concrete HTTP implementation: it resolves a
// reference against a configured gateway base URL, confirms a
// same-origin redirect policy, and checks content hash plus an
// optional attestation header.
type GatewayClient struct {
	HTTPClient     *http.Client
	GatewayBaseURL string
	// TrustedGatewayKeyHex, if set, causes Fetch to verify an
	// X-Manifest-Attestation / X-Resource-Attestation header when the
	// gateway supplies one. A missing header is not an error — the
	// content-hash check alone already satisfies the fetch contract.
	TrustedGatewayKeyHex string
}

// NewGatewayClient returns a GatewayClient with sane defaults.
func NewGatewayClient(gatewayBaseURL, trustedGatewayKeyHex string) *GatewayClient {
	return &GatewayClient{
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
			CheckRedirect: func(req *http.Request, via []*http.Request) error {
				if len(via) == 0 {
					return nil
				}
				prev := via[len(via)-1]
				if !sameOrigin(prev.URL, req.URL) {
					return fmt.Errorf("cross-origin redirect not allowed")
				}
				if len(via) > 10 {
					return fmt.Errorf("too many redirects")
				}
				return nil
			},
		},
		GatewayBaseURL:       strings.TrimRight(gatewayBaseURL, "/"),
		TrustedGatewayKeyHex: trustedGatewayKeyHex,
	}
}

// ResolveName resolves a human name to a manifest transaction id via
// the gateway's name-resolution endpoint.
func (c *GatewayClient) ResolveName(ctx context.Context, name string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.GatewayBaseURL+"/resolve/"+url.PathEscape(name), nil)
	if err != nil {
		return "", err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("resolve %s: %w", name, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("resolve %s: gateway returned HTTP %d", name, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", err
	}
	manifestTxID := strings.TrimSpace(string(body))
	if manifestTxID == "" {
		return "", fmt.Errorf("resolve %s: empty manifest tx id", name)
	}
	return manifestTxID, nil
}

// Fetch retrieves reference (a tx id path, e.g. "<txid>") from the
// gateway and verifies it per opts.
func (c *GatewayClient) Fetch(ctx context.Context, reference string, opts FetchOptions) (Fetched, error) {
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = MaxResourceBytes
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.GatewayBaseURL+"/"+strings.TrimLeft(reference, "/"), nil)
	if err != nil {
		return Fetched{}, err
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return Fetched{}, fmt.Errorf("fetch %s: %w", reference, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Fetched{}, fmt.Errorf("fetch %s: gateway returned HTTP %d", reference, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return Fetched{}, fmt.Errorf("fetch %s: %w", reference, err)
	}
	if int64(len(body)) > maxBytes {
		return Fetched{}, fmt.Errorf("fetch %s: response exceeds %d byte limit", reference, maxBytes)
	}

	finalURL := reference
	if resp.Request != nil && resp.Request.URL != nil {
		finalURL = resp.Request.URL.String()
	}

	if opts.Verify {
		if err := verify.ContentHash(body, opts.ExpectedTxID); err != nil {
			return Fetched{}, &IntegrityError{Reason: err.Error()}
		}
		if err := c.verifyAttestationHeader(resp, opts.ExpectedTxID); err != nil {
			return Fetched{}, &IntegrityError{Reason: err.Error()}
		}
	}

	return Fetched{
		Bytes:       body,
		ContentType: resp.Header.Get("Content-Type"),
		FinalURL:    finalURL,
	}, nil
}

func (c *GatewayClient) verifyAttestationHeader(resp *http.Response, expectedTxID string) error {
	if c.TrustedGatewayKeyHex == "" {
		return nil
	}
	if header := resp.Header.Get("X-Manifest-Attestation"); header != "" {
		att, err := wire.DecodeManifestAttestation(header)
		if err != nil {
			return fmt.Errorf("malformed manifest attestation: %w", err)
		}
		return verify.ManifestAttestation(att, c.TrustedGatewayKeyHex, expectedTxID, time.Now())
	}
	if header := resp.Header.Get("X-Resource-Attestation"); header != "" {
		att, err := wire.DecodeResourceAttestation(header)
		if err != nil {
			return fmt.Errorf("malformed resource attestation: %w", err)
		}
		return verify.ResourceAttestation(att, c.TrustedGatewayKeyHex, expectedTxID, time.Now())
	}
	return nil
}

func sameOrigin(a, b *url.URL) bool {
	return strings.EqualFold(a.Scheme, b.Scheme) && strings.EqualFold(a.Host, b.Host)
}
