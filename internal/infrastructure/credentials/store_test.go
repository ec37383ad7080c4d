package credentials

import (
	"bytes"
	"testing"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	store, err := NewStore("unit-test-secret")
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	plaintext := []byte(`{"root":"/srv/docs"}`)
	sealed, err := store.Encrypt("tenant-a", "src-1", plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if bytes.Contains(sealed, plaintext) {
		t.Fatalf("ciphertext leaks plaintext")
	}

	opened, err := store.Decrypt("tenant-a", "src-1", sealed)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if !bytes.Equal(opened, plaintext) {
		t.Fatalf("round trip mismatch: %q", opened)
	}
}

func TestDecryptRejectsWrongBinding(t *testing.T) {
	store, err := NewStore("unit-test-secret")
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	sealed, err := store.Encrypt("tenant-a", "src-1", []byte("payload"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if _, err := store.Decrypt("tenant-b", "src-1", sealed); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected failure for wrong tenant, got %v", err)
	}
	if _, err := store.Decrypt("tenant-a", "src-2", sealed); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected failure for wrong source, got %v", err)
	}
}

func TestDecryptRejectsTruncatedCiphertext(t *testing.T) {
	store, err := NewStore("unit-test-secret")
	if err != nil {
		t.Fatalf("NewStore() error = %v", err)
	}

	if _, err := store.Decrypt("tenant-a", "src-1", []byte{0x01}); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

func TestEmptySecretRejected(t *testing.T) {
	if _, err := NewStore(""); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}
