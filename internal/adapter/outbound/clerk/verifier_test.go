package clerk

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/AutomatosAI/automatos-unified-adapter/internal/domain/auth"
)

type jwksServer struct {
	*httptest.Server
	mu    sync.Mutex
	keys  []jwk
	hits  atomic.Int32
	fails bool
}

func newJWKSServer(t *testing.T) *jwksServer {
	t.Helper()
	s := &jwksServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		s.hits.Add(1)
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.fails {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"keys": s.keys})
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *jwksServer) setKeys(keys ...jwk) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = keys
}

func generateKey(t *testing.T) *rsa.PrivateKey {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

func toJWK(kid string, pub *rsa.PublicKey) jwk {
	return jwk{
		Kid: kid,
		Kty: "RSA",
		Use: "sig",
		N:   base64.RawURLEncoding.EncodeToString(pub.N.Bytes()),
		E:   base64.RawURLEncoding.EncodeToString(big.NewInt(int64(pub.E)).Bytes()),
	}
}

func sign(t *testing.T, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	s, err := tok.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return s
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestVerifier_Verify(t *testing.T) {
	key := generateKey(t)
	other := generateKey(t)
	srv := newJWKSServer(t)
	srv.setKeys(toJWK("k1", &key.PublicKey))

	v := NewVerifier(srv.URL,
		WithIssuer("https://clerk.example.com"),
		WithAudience("automatos"),
		WithLogger(quietLogger()),
	)
	exp := time.Now().Add(time.Hour).Unix()
	base := func() jwt.MapClaims {
		return jwt.MapClaims{
			"sub": "user_1",
			"iss": "https://clerk.example.com",
			"aud": "automatos",
			"exp": exp,
		}
	}

	tests := []struct {
		name    string
		token   string
		wantOrg string
		wantErr bool
	}{
		{
			name: "org_id claim",
			token: sign(t, key, "k1", func() jwt.MapClaims {
				c := base()
				c["org_id"] = "org_a"
				return c
			}()),
			wantOrg: "org_a",
		},
		{
			name: "organization_id claim",
			token: sign(t, key, "k1", func() jwt.MapClaims {
				c := base()
				c["organization_id"] = "org_b"
				return c
			}()),
			wantOrg: "org_b",
		},
		{name: "no kid uses first key", token: sign(t, key, "", base())},
		{name: "wrong signing key", token: sign(t, other, "k1", base()), wantErr: true},
		{
			name: "wrong issuer",
			token: sign(t, key, "k1", func() jwt.MapClaims {
				c := base()
				c["iss"] = "https://evil.example.com"
				return c
			}()),
			wantErr: true,
		},
		{
			name: "wrong audience",
			token: sign(t, key, "k1", func() jwt.MapClaims {
				c := base()
				c["aud"] = "someone-else"
				return c
			}()),
			wantErr: true,
		},
		{
			name: "expired",
			token: sign(t, key, "k1", func() jwt.MapClaims {
				c := base()
				c["exp"] = time.Now().Add(-time.Hour).Unix()
				return c
			}()),
			wantErr: true,
		},
		{name: "garbage", token: "not.a.jwt", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := v.Verify(context.Background(), tt.token)
			if tt.wantErr {
				if err == nil {
					t.Fatal("Verify() expected error")
				}
				if !errors.Is(err, auth.ErrInvalidToken) {
					t.Errorf("error %v does not wrap ErrInvalidToken", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Verify() error = %v", err)
			}
			if p.Subject != "user_1" || p.Kind != auth.PrincipalJWT || p.OrgID != tt.wantOrg {
				t.Errorf("principal = %+v, want org %q", p, tt.wantOrg)
			}
		})
	}

	if hits := srv.hits.Load(); hits != 1 {
		t.Errorf("JWKS fetched %d times, want 1 within the cache TTL", hits)
	}
}

func TestVerifier_HMACRejected(t *testing.T) {
	srv := newJWKSServer(t)
	srv.setKeys(toJWK("k1", &generateKey(t).PublicKey))
	v := NewVerifier(srv.URL, WithLogger(quietLogger()))

	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"})
	s, err := tok.SignedString([]byte("secret"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := v.Verify(context.Background(), s); err == nil {
		t.Fatal("HS256 token accepted")
	}
}

func TestVerifier_RefetchesOnceForUnknownKID(t *testing.T) {
	oldKey, newKey := generateKey(t), generateKey(t)
	srv := newJWKSServer(t)
	srv.setKeys(toJWK("old", &oldKey.PublicKey))

	now := time.Now()
	v := NewVerifier(srv.URL, WithLogger(quietLogger()))
	v.now = func() time.Time { return now }

	if _, err := v.Verify(context.Background(), sign(t, oldKey, "old", jwt.MapClaims{"sub": "a"})); err != nil {
		t.Fatalf("Verify(old) error = %v", err)
	}

	// Key rotation: the new kid appears after the first fetch.
	srv.setKeys(toJWK("old", &oldKey.PublicKey), toJWK("new", &newKey.PublicKey))
	newToken := sign(t, newKey, "new", jwt.MapClaims{"sub": "b"})

	if _, err := v.Verify(context.Background(), newToken); err == nil {
		t.Fatal("unknown kid accepted right after a fetch")
	}
	if hits := srv.hits.Load(); hits != 1 {
		t.Fatalf("JWKS fetched %d times, want no refetch within a minute", hits)
	}

	now = now.Add(2 * time.Minute)
	p, err := v.Verify(context.Background(), newToken)
	if err != nil {
		t.Fatalf("Verify(new) after refetch error = %v", err)
	}
	if p.Subject != "b" {
		t.Errorf("Subject = %q", p.Subject)
	}
	if hits := srv.hits.Load(); hits != 2 {
		t.Errorf("JWKS fetched %d times, want 2", hits)
	}

	if _, err := v.Verify(context.Background(), sign(t, newKey, "missing", jwt.MapClaims{"sub": "c"})); !errors.Is(err, ErrNoMatchingKey) {
		t.Errorf("Verify(missing kid) error = %v, want ErrNoMatchingKey", err)
	}
}

func TestVerifier_CacheExpiry(t *testing.T) {
	key := generateKey(t)
	srv := newJWKSServer(t)
	srv.setKeys(toJWK("k1", &key.PublicKey))

	now := time.Now()
	v := NewVerifier(srv.URL, WithCacheTTL(10*time.Minute), WithLogger(quietLogger()))
	v.now = func() time.Time { return now }
	token := sign(t, key, "k1", jwt.MapClaims{"sub": "a"})

	for range 3 {
		if _, err := v.Verify(context.Background(), token); err != nil {
			t.Fatalf("Verify() error = %v", err)
		}
	}
	now = now.Add(11 * time.Minute)
	if _, err := v.Verify(context.Background(), token); err != nil {
		t.Fatalf("Verify() after expiry error = %v", err)
	}
	if hits := srv.hits.Load(); hits != 2 {
		t.Errorf("JWKS fetched %d times, want 2", hits)
	}
}

func TestVerifier_JWKSUnavailable(t *testing.T) {
	srv := newJWKSServer(t)
	srv.fails = true
	v := NewVerifier(srv.URL, WithLogger(quietLogger()))

	_, err := v.Verify(context.Background(), sign(t, generateKey(t), "k1", jwt.MapClaims{"sub": "a"}))
	if err == nil || !errors.Is(err, auth.ErrInvalidToken) {
		t.Fatalf("Verify() error = %v, want invalid token", err)
	}
}

func TestParseKeySet(t *testing.T) {
	pub := &generateKey(t).PublicKey
	good := toJWK("k1", pub)

	tests := []struct {
		name    string
		keys    []jwk
		wantErr bool
	}{
		{name: "single key", keys: []jwk{good}},
		{name: "skips non-RSA and encryption keys", keys: []jwk{{Kid: "ec", Kty: "EC"}, {Kid: "enc", Kty: "RSA", Use: "enc", N: good.N, E: good.E}, good}},
		{name: "no usable keys", keys: []jwk{{Kid: "ec", Kty: "EC"}}, wantErr: true},
		{name: "bad modulus", keys: []jwk{{Kid: "x", Kty: "RSA", N: "!!", E: good.E}}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, _ := json.Marshal(map[string]any{"keys": tt.keys})
			set, err := parseKeySet(data)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseKeySet() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			k := set.lookup("k1")
			if k == nil || k.N.Cmp(pub.N) != 0 || k.E != pub.E {
				t.Errorf("lookup(k1) = %v", k)
			}
			if set.lookup("") != k {
				t.Error("lookup without kid should return the first signing key")
			}
		})
	}
}
