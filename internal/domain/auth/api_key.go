package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/alexedwards/argon2id"
)

// ErrInvalidToken is returned when a bearer token does not match.
var ErrInvalidToken = errors.New("invalid token")

// ErrUnknownHashType is returned when a stored hash has an unrecognized format.
var ErrUnknownHashType = errors.New("unknown hash type")

// StaticTokenVerifier checks bearer tokens against the shared service
// secret. The secret may be configured in plain text or as a hash
// (argon2id PHC, "sha256:<hex>" or bare sha256 hex).
type StaticTokenVerifier struct {
	plain string
	hash  string

	// argon2id verification is slow; remember digests of tokens that
	// already matched.
	mu       sync.RWMutex
	verified map[string]struct{}
}

// NewStaticTokenVerifier creates a verifier. Either plain or hash must be
// non-empty; hash wins when both are set.
func NewStaticTokenVerifier(plain, hash string) *StaticTokenVerifier {
	return &StaticTokenVerifier{
		plain:    plain,
		hash:     hash,
		verified: make(map[string]struct{}),
	}
}

// Configured reports whether a secret is set.
func (v *StaticTokenVerifier) Configured() bool {
	return v != nil && (v.plain != "" || v.hash != "")
}

// Verify returns the static principal if token matches the secret.
func (v *StaticTokenVerifier) Verify(_ context.Context, token string) (*Principal, error) {
	if !v.Configured() || token == "" {
		return nil, ErrInvalidToken
	}

	if v.hash == "" {
		if subtle.ConstantTimeCompare([]byte(token), []byte(v.plain)) != 1 {
			return nil, ErrInvalidToken
		}
		return staticPrincipal(), nil
	}

	digest := HashKey(token)
	v.mu.RLock()
	_, ok := v.verified[digest]
	v.mu.RUnlock()
	if ok {
		return staticPrincipal(), nil
	}

	match, err := VerifyKey(token, v.hash)
	if err != nil {
		return nil, fmt.Errorf("verify static token: %w", err)
	}
	if !match {
		return nil, ErrInvalidToken
	}

	v.mu.Lock()
	v.verified[digest] = struct{}{}
	v.mu.Unlock()
	return staticPrincipal(), nil
}

func staticPrincipal() *Principal {
	return &Principal{Subject: "service", Kind: PrincipalStatic}
}

// HashKey returns the SHA-256 hex hash of the raw key.
func HashKey(rawKey string) string {
	hash := sha256.Sum256([]byte(rawKey))
	return hex.EncodeToString(hash[:])
}

// argon2idParams defines OWASP minimum parameters for Argon2id.
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024, // 47 MiB (OWASP minimum: 46 MiB)
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashKeyArgon2id returns an Argon2id hash of the raw key in PHC format.
// Format: $argon2id$v=19$m=48128,t=1,p=1$<salt>$<hash>
func HashKeyArgon2id(rawKey string) (string, error) {
	return argon2id.CreateHash(rawKey, argon2idParams)
}

// DetectHashType identifies the hash algorithm used for a stored hash.
// Returns "argon2id" for PHC format, "sha256" for prefixed or bare hex,
// "unknown" for unrecognized formats.
func DetectHashType(storedHash string) string {
	if strings.HasPrefix(storedHash, "$argon2id$") {
		return "argon2id"
	}
	if strings.HasPrefix(storedHash, "sha256:") {
		return "sha256"
	}
	if len(storedHash) == 64 && isHexString(storedHash) {
		return "sha256"
	}
	return "unknown"
}

func isHexString(s string) bool {
	for _, c := range s {
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// VerifyKey verifies a raw key against a stored hash.
// Returns (false, ErrUnknownHashType) for unrecognized hash formats.
func VerifyKey(rawKey, storedHash string) (bool, error) {
	switch DetectHashType(storedHash) {
	case "argon2id":
		return safeArgon2idCompare(rawKey, storedHash)
	case "sha256":
		expected := strings.ToLower(strings.TrimPrefix(storedHash, "sha256:"))
		computed := HashKey(rawKey)
		return subtle.ConstantTimeCompare([]byte(computed), []byte(expected)) == 1, nil
	default:
		return false, ErrUnknownHashType
	}
}

// safeArgon2idCompare converts panics from malformed argon2id parameters
// (t=0, p=0) into errors.
func safeArgon2idCompare(rawKey, storedHash string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match = false
			err = fmt.Errorf("invalid argon2id hash parameters: %v", r)
		}
	}()
	return argon2id.ComparePasswordAndHash(rawKey, storedHash)
}
