package authmethod

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strings"
	"sync"
	"time"
)

// jwksCacheTTL is how long a fetched key set is trusted before being
// refreshed from the provider. An unknown kid forces an early refetch to
// pick up rotated keys.
const jwksCacheTTL = time.Hour

// jwksEntry stores the keys fetched from one JWKS URL and when.
type jwksEntry struct {
	keys      map[string]any // kid -> *rsa.PublicKey or *ecdsa.PublicKey
	fetchedAt time.Time
}

// jwksCache caches JSON Web Key Sets fetched from Kubernetes API servers
// and OIDC providers, keyed by JWKS URL. Safe for concurrent use.
type jwksCache struct {
	mu      sync.RWMutex
	entries map[string]*jwksEntry
	ttl     time.Duration
	client  HTTPClient
}

func newJWKSCache(ttl time.Duration, client HTTPClient) *jwksCache {
	return &jwksCache{
		entries: make(map[string]*jwksEntry),
		ttl:     ttl,
		client:  client,
	}
}

// getKey returns the public key with the given kid from the JWKS at
// jwksURL, fetching or refreshing the set as needed. A kid missing from a
// fresh cache entry triggers one refetch to handle key rotation.
func (c *jwksCache) getKey(ctx context.Context, jwksURL, kid string) (any, error) {
	c.mu.RLock()
	entry, ok := c.entries[jwksURL]
	if ok && time.Since(entry.fetchedAt) < c.ttl {
		key, exists := entry.keys[kid]
		c.mu.RUnlock()
		if exists {
			return key, nil
		}
	} else {
		c.mu.RUnlock()
	}

	keys, err := c.fetchJWKS(ctx, jwksURL)
	if err != nil {
		return nil, fmt.Errorf("authmethod: failed to fetch JWKS from %s: %w", jwksURL, err)
	}

	c.mu.Lock()
	c.entries[jwksURL] = &jwksEntry{keys: keys, fetchedAt: time.Now()}
	c.mu.Unlock()

	key, exists := keys[kid]
	if !exists {
		return nil, fmt.Errorf("authmethod: key ID %q not found in JWKS from %s", kid, jwksURL)
	}
	return key, nil
}

// jwksResponse is the JSON shape of a JWKS endpoint response.
type jwksResponse struct {
	Keys []jwkKey `json:"keys"`
}

// jwkKey is one key in a JWKS response, limited to the fields needed for
// RSA and EC key reconstruction.
type jwkKey struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	// RSA fields
	N string `json:"n"`
	E string `json:"e"`
	// EC fields
	Crv string `json:"crv"`
	X   string `json:"x"`
	Y   string `json:"y"`
}

// fetchJWKS fetches and parses a JWKS document, returning a map of kid to
// public key. Malformed keys are skipped. The response body is limited to
// 1 MB.
func (c *jwksCache) fetchJWKS(ctx context.Context, jwksURL string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("authmethod: failed to create JWKS request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("authmethod: JWKS request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("authmethod: JWKS endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("authmethod: failed to read JWKS response: %w", err)
	}

	var jwks jwksResponse
	if err := json.Unmarshal(body, &jwks); err != nil {
		return nil, fmt.Errorf("authmethod: failed to parse JWKS JSON: %w", err)
	}

	keys := make(map[string]any, len(jwks.Keys))
	for _, k := range jwks.Keys {
		if k.Kid == "" {
			continue
		}
		switch k.Kty {
		case "RSA":
			pubKey, err := parseRSAPublicKey(k.N, k.E)
			if err != nil {
				continue
			}
			keys[k.Kid] = pubKey
		case "EC":
			pubKey, err := parseECPublicKey(k.Crv, k.X, k.Y)
			if err != nil {
				continue
			}
			keys[k.Kid] = pubKey
		}
	}
	return keys, nil
}

// parseRSAPublicKey constructs an *rsa.PublicKey from base64url-encoded
// modulus and exponent values.
func parseRSAPublicKey(nBase64, eBase64 string) (*rsa.PublicKey, error) {
	nBytes, err := base64.RawURLEncoding.DecodeString(nBase64)
	if err != nil {
		return nil, fmt.Errorf("authmethod: failed to decode RSA modulus: %w", err)
	}
	eBytes, err := base64.RawURLEncoding.DecodeString(eBase64)
	if err != nil {
		return nil, fmt.Errorf("authmethod: failed to decode RSA exponent: %w", err)
	}

	n := new(big.Int).SetBytes(nBytes)
	e := new(big.Int).SetBytes(eBytes)

	return &rsa.PublicKey{N: n, E: int(e.Int64())}, nil
}

// parseECPublicKey constructs an *ecdsa.PublicKey from a curve name and
// base64url-encoded coordinates.
func parseECPublicKey(crv, xBase64, yBase64 string) (*ecdsa.PublicKey, error) {
	var curve elliptic.Curve
	switch crv {
	case "P-256":
		curve = elliptic.P256()
	case "P-384":
		curve = elliptic.P384()
	case "P-521":
		curve = elliptic.P521()
	default:
		return nil, fmt.Errorf("authmethod: unsupported EC curve %q", crv)
	}

	xBytes, err := base64.RawURLEncoding.DecodeString(xBase64)
	if err != nil {
		return nil, fmt.Errorf("authmethod: failed to decode EC x coordinate: %w", err)
	}
	yBytes, err := base64.RawURLEncoding.DecodeString(yBase64)
	if err != nil {
		return nil, fmt.Errorf("authmethod: failed to decode EC y coordinate: %w", err)
	}

	return &ecdsa.PublicKey{
		Curve: curve,
		X:     new(big.Int).SetBytes(xBytes),
		Y:     new(big.Int).SetBytes(yBytes),
	}, nil
}

// oidcDiscoveryResponse holds the relevant fields of a provider's
// .well-known/openid-configuration document.
type oidcDiscoveryResponse struct {
	Issuer  string `json:"issuer"`
	JWKSURI string `json:"jwks_uri"`
}

// fetchOIDCDiscovery resolves a provider's JWKS URI from its discovery
// document.
func fetchOIDCDiscovery(ctx context.Context, issuerURL string, client HTTPClient) (*oidcDiscoveryResponse, error) {
	discoveryURL := strings.TrimRight(issuerURL, "/") + "/.well-known/openid-configuration"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, discoveryURL, nil)
	if err != nil {
		return nil, fmt.Errorf("authmethod: failed to create OIDC discovery request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("authmethod: OIDC discovery request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("authmethod: OIDC discovery endpoint returned status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("authmethod: failed to read OIDC discovery response: %w", err)
	}

	var discovery oidcDiscoveryResponse
	if err := json.Unmarshal(body, &discovery); err != nil {
		return nil, fmt.Errorf("authmethod: failed to parse OIDC discovery JSON: %w", err)
	}

	if discovery.JWKSURI == "" {
		return nil, fmt.Errorf("authmethod: OIDC discovery document missing jwks_uri")
	}

	return &discovery, nil
}
