package database

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// argon2Params are the Argon2id cost parameters baked into an encoded hash.
type argon2Params struct {
	memory  uint32
	time    uint32
	threads uint8
}

// defaultArgon2Params follows the OWASP recommendation. The control
// password is hashed once at configuration time, so the cost only matters
// for login attempts.
var defaultArgon2Params = argon2Params{
	memory:  64 * 1024, // KiB
	time:    3,
	threads: 4,
}

const (
	argon2KeyLen  = 32
	argon2SaltLen = 16
)

// HashPassword hashes the control API password with Argon2id, encoded as
//
//	$argon2id$v=19$m=65536,t=3,p=4$<salt>$<hash>
//
// The parameters travel inside the hash, so they can be retuned later
// without invalidating existing configs.
func HashPassword(password string) (string, error) {
	salt := make([]byte, argon2SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("generating salt: %w", err)
	}

	p := defaultArgon2Params
	hash := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, argon2KeyLen)

	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version,
		p.memory, p.time, p.threads,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(hash),
	), nil
}

// CheckPassword verifies a plaintext password against an encoded Argon2id
// hash in constant time.
func CheckPassword(password, encoded string) (bool, error) {
	salt, hash, p, err := decodeHash(encoded)
	if err != nil {
		return false, err
	}

	computed := argon2.IDKey([]byte(password), salt, p.time, p.memory, p.threads, uint32(len(hash)))
	return subtle.ConstantTimeCompare(hash, computed) == 1, nil
}

// decodeHash splits an encoded hash into salt, digest, and the cost
// parameters it was produced with.
func decodeHash(encoded string) (salt, hash []byte, p argon2Params, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 {
		return nil, nil, p, fmt.Errorf("invalid hash format: expected 6 parts, got %d", len(parts))
	}
	if parts[1] != "argon2id" {
		return nil, nil, p, fmt.Errorf("unsupported algorithm: %s", parts[1])
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return nil, nil, p, fmt.Errorf("parsing version: %w", err)
	}
	if version != argon2.Version {
		return nil, nil, p, fmt.Errorf("unsupported argon2 version: %d", version)
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.memory, &p.time, &p.threads); err != nil {
		return nil, nil, p, fmt.Errorf("parsing parameters: %w", err)
	}

	if salt, err = base64.RawStdEncoding.DecodeString(parts[4]); err != nil {
		return nil, nil, p, fmt.Errorf("decoding salt: %w", err)
	}
	if hash, err = base64.RawStdEncoding.DecodeString(parts[5]); err != nil {
		return nil, nil, p, fmt.Errorf("decoding hash: %w", err)
	}
	return salt, hash, p, nil
}
