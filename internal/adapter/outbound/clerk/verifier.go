// Package clerk verifies Clerk-issued RS256 JWTs against a cached JWKS.
package clerk

import (
	"context"
	"crypto/rsa"
	"crypto/tls"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/sync/singleflight"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/auth"
)

// DefaultCacheTTL is how long a fetched key set is trusted.
const DefaultCacheTTL = time.Hour

// maxJWKSSize caps the JWKS response body.
const maxJWKSSize = 1 << 20

// ErrNoMatchingKey is returned when the key set has no key for the token.
var ErrNoMatchingKey = errors.New("no matching JWK")

// Verifier verifies bearer tokens as Clerk session JWTs.
type Verifier struct {
	jwksURL    string
	issuer     string
	audience   string
	ttl        time.Duration
	httpClient *http.Client
	logger     *slog.Logger
	now        func() time.Time

	mu        sync.RWMutex
	keys      *keySet
	fetchedAt time.Time
	fetches   singleflight.Group
}

// Option configures a Verifier.
type Option func(*Verifier)

// WithIssuer requires the iss claim to match.
func WithIssuer(issuer string) Option {
	return func(v *Verifier) {
		v.issuer = issuer
	}
}

// WithAudience requires aud to contain audience.
func WithAudience(audience string) Option {
	return func(v *Verifier) {
		v.audience = audience
	}
}

// WithCacheTTL sets how long a fetched key set is used before refetching.
func WithCacheTTL(ttl time.Duration) Option {
	return func(v *Verifier) {
		if ttl > 0 {
			v.ttl = ttl
		}
	}
}

// WithHTTPClient sets a custom HTTP client for JWKS fetches.
func WithHTTPClient(client *http.Client) Option {
	return func(v *Verifier) {
		v.httpClient = client
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(v *Verifier) {
		v.logger = logger
	}
}

// NewVerifier creates a verifier for the key set at jwksURL.
func NewVerifier(jwksURL string, opts ...Option) *Verifier {
	v := &Verifier{
		jwksURL: jwksURL,
		ttl:     DefaultCacheTTL,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
			Transport: &http.Transport{
				Proxy: http.ProxyFromEnvironment,
				TLSClientConfig: &tls.Config{
					MinVersion: tls.VersionTLS12,
				},
			},
		},
		logger: slog.Default(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Verify parses and validates token and returns its principal. The org is
// taken from the org_id or organization_id claim.
func (v *Verifier) Verify(ctx context.Context, token string) (*auth.Principal, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		return v.key(ctx, kid)
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", auth.ErrInvalidToken, err)
	}

	subject, _ := claims.GetSubject()
	return &auth.Principal{
		Subject: subject,
		OrgID:   auth.OrgFromClaims(claims),
		Kind:    auth.PrincipalJWT,
		Claims:  claims,
	}, nil
}

// key returns the verification key for kid, refetching the key set once
// when it is stale or does not contain kid.
func (v *Verifier) key(ctx context.Context, kid string) (*rsa.PublicKey, error) {
	keys, fresh := v.cached()
	if !fresh {
		var err error
		if keys, err = v.refresh(ctx); err != nil {
			return nil, err
		}
	}
	if k := keys.lookup(kid); k != nil {
		return k, nil
	}
	if v.fetchedRecently() {
		return nil, ErrNoMatchingKey
	}

	v.logger.Debug("unknown JWT key id, refetching JWKS", "kid", kid)
	keys, err := v.refresh(ctx)
	if err != nil {
		return nil, err
	}
	if k := keys.lookup(kid); k != nil {
		return k, nil
	}
	return nil, ErrNoMatchingKey
}

func (v *Verifier) cached() (*keySet, bool) {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.keys, v.keys != nil && v.now().Sub(v.fetchedAt) < v.ttl
}

// fetchedRecently guards against refetching on every token with an
// unknown kid.
func (v *Verifier) fetchedRecently() bool {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.now().Sub(v.fetchedAt) < time.Minute
}

func (v *Verifier) refresh(ctx context.Context) (*keySet, error) {
	res, err, _ := v.fetches.Do("jwks", func() (any, error) {
		keys, err := v.fetch(ctx)
		if err != nil {
			return nil, err
		}
		v.mu.Lock()
		v.keys = keys
		v.fetchedAt = v.now()
		v.mu.Unlock()
		return keys, nil
	})
	if err != nil {
		return nil, err
	}
	return res.(*keySet), nil
}

func (v *Verifier) fetch(ctx context.Context) (*keySet, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, v.jwksURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create JWKS request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := v.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch JWKS: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxJWKSSize))
	if err != nil {
		return nil, fmt.Errorf("read JWKS: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch JWKS: http status %d: %s", resp.StatusCode, string(body))
	}
	return parseKeySet(body)
}

// jwk is the subset of an RFC 7517 key used for RS256.
type jwk struct {
	Kid string `json:"kid"`
	Kty string `json:"kty"`
	Use string `json:"use"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// keySet keeps keys in document order so a token without kid can use the
// first one.
type keySet struct {
	byKID map[string]*rsa.PublicKey
	first *rsa.PublicKey
}

func (s *keySet) lookup(kid string) *rsa.PublicKey {
	if kid == "" {
		return s.first
	}
	return s.byKID[kid]
}

func parseKeySet(data []byte) (*keySet, error) {
	var doc struct {
		Keys []jwk `json:"keys"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode JWKS: %w", err)
	}

	set := &keySet{byKID: make(map[string]*rsa.PublicKey, len(doc.Keys))}
	for _, k := range doc.Keys {
		if k.Kty != "RSA" || (k.Use != "" && k.Use != "sig") {
			continue
		}
		pub, err := k.publicKey()
		if err != nil {
			return nil, fmt.Errorf("JWK %q: %w", k.Kid, err)
		}
		if set.first == nil {
			set.first = pub
		}
		if k.Kid != "" {
			set.byKID[k.Kid] = pub
		}
	}
	if set.first == nil {
		return nil, errors.New("JWKS contains no RSA signing keys")
	}
	return set, nil
}

func (k jwk) publicKey() (*rsa.PublicKey, error) {
	n, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, fmt.Errorf("decode modulus: %w", err)
	}
	e, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, fmt.Errorf("decode exponent: %w", err)
	}
	if len(n) == 0 || len(e) == 0 || len(e) > 4 {
		return nil, errors.New("invalid RSA parameters")
	}
	exp := 0
	for _, b := range e {
		exp = exp<<8 | int(b)
	}
	return &rsa.PublicKey{N: new(big.Int).SetBytes(n), E: exp}, nil
}

// Compile-time interface verification.
var _ auth.TokenVerifier = (*Verifier)(nil)
