package auth

import (
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestBcryptHasherRoundTrip(t *testing.T) {
	hasher := BcryptHasher{Cost: bcrypt.MinCost}

	hash, err := hasher.Hash("correct horse")
	if err != nil {
		t.Fatalf("unexpected hash error: %v", err)
	}
	if string(hash) == "correct horse" {
		t.Fatalf("hash must not equal the password")
	}
	if !hasher.Verify(hash, "correct horse") {
		t.Fatalf("expected password to verify")
	}
	if hasher.Verify(hash, "wrong horse") {
		t.Fatalf("expected wrong password to fail")
	}
	if hasher.Verify([]byte("not-a-hash"), "correct horse") {
		t.Fatalf("expected malformed hash to fail")
	}
}
