package auth

import (
	"errors"
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestPassword_HashAndCheck(t *testing.T) {
	hash, err := HashPassword("correct horse battery", bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if hash == "correct horse battery" {
		t.Fatal("hash must not equal the plaintext")
	}
	if err := CheckPassword(hash, "correct horse battery"); err != nil {
		t.Errorf("expected match, got %v", err)
	}
	if err := CheckPassword(hash, "wrong"); !errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("expected ErrPasswordMismatch, got %v", err)
	}
}

func TestPassword_TooLongCountsBytes(t *testing.T) {
	// 40 runes, 80 bytes.
	_, err := HashPassword(strings.Repeat("é", 40), bcrypt.MinCost)
	if !errors.Is(err, ErrPasswordTooLong) {
		t.Errorf("expected ErrPasswordTooLong, got %v", err)
	}
	if _, err := HashPassword(strings.Repeat("a", MaxPasswordBytes), bcrypt.MinCost); err != nil {
		t.Errorf("72 bytes should hash, got %v", err)
	}
}

func TestPassword_MalformedHash(t *testing.T) {
	err := CheckPassword("not-a-bcrypt-hash", "pw")
	if err == nil || errors.Is(err, ErrPasswordMismatch) {
		t.Errorf("expected non-mismatch error for malformed hash, got %v", err)
	}
}
