package database

import (
	"strings"
	"testing"
)

func TestHashAndCheckPassword(t *testing.T) {
	hash, err := HashPassword("wavelink-control-secret")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("hash should start with $argon2id$, got %q", hash)
	}

	match, err := CheckPassword("wavelink-control-secret", hash)
	if err != nil {
		t.Fatalf("CheckPassword() error: %v", err)
	}
	if !match {
		t.Error("correct password should match")
	}

	match, err = CheckPassword("not-the-password", hash)
	if err != nil {
		t.Fatalf("CheckPassword() error: %v", err)
	}
	if match {
		t.Error("wrong password should not match")
	}
}

func TestHashPasswordUniqueSalts(t *testing.T) {
	hash1, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	hash2, err := HashPassword("same-password")
	if err != nil {
		t.Fatalf("HashPassword() error: %v", err)
	}
	if hash1 == hash2 {
		t.Error("hashes of the same password should differ by salt")
	}
}

func TestCheckPasswordMalformedHash(t *testing.T) {
	for _, encoded := range []string{
		"",
		"not-a-hash",
		"$bcrypt$v=19$m=65536,t=3,p=4$c2FsdA$aGFzaA",
	} {
		if _, err := CheckPassword("anything", encoded); err == nil {
			t.Errorf("CheckPassword(%q) should error", encoded)
		}
	}
}
