package common

import (
	"errors"
	"strings"
	"testing"
)

func TestCalculateHashDeterministic(t *testing.T) {
	h1 := CalculateHash("key", "scope", "42", "123456")
	h2 := CalculateHash("key", "scope", "42", "123456")
	if h1 != h2 {
		t.Fatal("hash must be deterministic")
	}
	if CalculateHash("key", "scope", "42", "654321") == h1 {
		t.Fatal("different input must hash differently")
	}
	if CalculateHash("other-key", "scope", "42", "123456") == h1 {
		t.Fatal("different key must hash differently")
	}
}

func TestConstantTimeEquals(t *testing.T) {
	if !ConstantTimeEquals("abc", "abc") {
		t.Fatal("equal strings reported unequal")
	}
	if ConstantTimeEquals("abc", "abd") || ConstantTimeEquals("abc", "abcd") {
		t.Fatal("unequal strings reported equal")
	}
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	plaintext := "JBSWY3DPEHPK3PXP"

	ciphertext, err := EncryptString("master-key", plaintext)
	if err != nil {
		t.Fatalf("EncryptString failed: %v", err)
	}
	if strings.Contains(ciphertext, plaintext) {
		t.Fatal("ciphertext leaks the plaintext")
	}

	decrypted, err := DecryptString("master-key", ciphertext)
	if err != nil {
		t.Fatalf("DecryptString failed: %v", err)
	}
	if decrypted != plaintext {
		t.Fatalf("round trip produced %q, want %q", decrypted, plaintext)
	}
}

func TestEncryptStringNondeterministic(t *testing.T) {
	c1, _ := EncryptString("master-key", "secret")
	c2, _ := EncryptString("master-key", "secret")
	if c1 == c2 {
		t.Fatal("two encryptions of the same plaintext must differ")
	}
}

func TestDecryptStringWrongKey(t *testing.T) {
	ciphertext, err := EncryptString("master-key", "secret")
	if err != nil {
		t.Fatalf("EncryptString failed: %v", err)
	}
	if _, err := DecryptString("other-key", ciphertext); err == nil {
		t.Fatal("decryption with the wrong key must fail")
	}
}

func TestDecryptStringGarbage(t *testing.T) {
	if _, err := DecryptString("master-key", "not-base64!!"); err == nil {
		t.Fatal("garbage ciphertext must fail")
	}
	if _, err := DecryptString("master-key", "YWJj"); !errors.Is(err, ErrCiphertextInvalid) {
		t.Fatalf("expected ErrCiphertextInvalid for truncated input, got %v", err)
	}
}
