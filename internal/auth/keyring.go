// Package auth authenticates gateway callers with named API keys. Secrets
// are kept only as PBKDF2 hashes; the plaintext is discarded at load time.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	secretHashIterations = 120_000
	secretHashSaltLength = 16
	secretHashKeyLength  = 32
)

// ErrInvalidCredentials is returned when a presented secret does not match.
var ErrInvalidCredentials = errors.New("invalid credentials")

// Keyring holds the named API keys permitted to call the gateway.
type Keyring struct {
	hashes map[string]string
}

// HashSecret derives a storable hash for the secret using PBKDF2-SHA256 with
// a random salt.
func HashSecret(secret string) (string, error) {
	if secret == "" {
		return "", errors.New("secret is required")
	}
	salt := make([]byte, secretHashSaltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generate salt: %w", err)
	}
	derived := pbkdf2.Key([]byte(secret), salt, secretHashIterations, secretHashKeyLength, sha256.New)
	encodedSalt := base64.RawStdEncoding.EncodeToString(salt)
	encodedKey := base64.RawStdEncoding.EncodeToString(derived)
	return fmt.Sprintf("pbkdf2$sha256$%d$%s$%s", secretHashIterations, encodedSalt, encodedKey), nil
}

func verifySecret(encodedHash, candidate string) error {
	parts := strings.Split(encodedHash, "$")
	if len(parts) != 5 {
		return fmt.Errorf("verify secret: invalid hash format")
	}
	if parts[0] != "pbkdf2" || parts[1] != "sha256" {
		return fmt.Errorf("verify secret: unsupported hash identifier")
	}
	iterations, err := strconv.Atoi(parts[2])
	if err != nil || iterations <= 0 {
		return fmt.Errorf("verify secret: invalid iteration count")
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil {
		return fmt.Errorf("verify secret: decode salt: %w", err)
	}
	storedKey, err := base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return fmt.Errorf("verify secret: decode hash: %w", err)
	}
	derived := pbkdf2.Key([]byte(candidate), salt, iterations, len(storedKey), sha256.New)
	if len(derived) != len(storedKey) || subtle.ConstantTimeCompare(derived, storedKey) != 1 {
		return ErrInvalidCredentials
	}
	return nil
}

// ParseKeyring builds a Keyring from a comma-separated list of name:secret
// pairs, hashing each secret immediately. An empty spec yields an empty
// keyring, which rejects every caller.
func ParseKeyring(spec string) (*Keyring, error) {
	ring := &Keyring{hashes: make(map[string]string)}
	for _, entry := range strings.Split(spec, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, secret, found := strings.Cut(entry, ":")
		name = strings.TrimSpace(name)
		if !found || name == "" || secret == "" {
			return nil, fmt.Errorf("invalid api key entry %q, expected name:secret", entry)
		}
		if _, exists := ring.hashes[name]; exists {
			return nil, fmt.Errorf("duplicate api key name %q", name)
		}
		hashed, err := HashSecret(secret)
		if err != nil {
			return nil, err
		}
		ring.hashes[name] = hashed
	}
	return ring, nil
}

// Len reports the number of keys held by the ring.
func (k *Keyring) Len() int {
	if k == nil {
		return 0
	}
	return len(k.hashes)
}

// Authenticate validates a "name:secret" token and returns the key name.
func (k *Keyring) Authenticate(token string) (string, bool) {
	if k == nil || len(k.hashes) == 0 {
		return "", false
	}
	name, secret, found := strings.Cut(token, ":")
	if !found {
		return "", false
	}
	name = strings.TrimSpace(name)
	hashed, exists := k.hashes[name]
	if !exists {
		return "", false
	}
	if err := verifySecret(hashed, secret); err != nil {
		return "", false
	}
	return name, true
}

// ExtractToken pulls the caller credential from the Authorization bearer
// header, falling back to the Api-Key header.
func ExtractToken(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := strings.TrimSpace(r.Header.Get("Authorization"))
	if header != "" {
		scheme, token, found := strings.Cut(header, " ")
		if found && strings.EqualFold(scheme, "Bearer") {
			return strings.TrimSpace(token)
		}
	}
	return strings.TrimSpace(r.Header.Get("Api-Key"))
}
