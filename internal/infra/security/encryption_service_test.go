package security

import (
	"bytes"
	"errors"
	"testing"
)

const testKey = "0123456789abcdef0123456789abcdef"

func TestEncryptionService_RoundTrip(t *testing.T) {
	svc, err := NewEncryptionService(testKey)
	if err != nil {
		t.Fatalf("NewEncryptionService: %v", err)
	}
	plain := []byte(`{"id":"s-1","status":"active"}`)

	sealed, err := svc.Seal(plain, "s-1")
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	if bytes.Contains(sealed, plain) {
		t.Fatal("sealed payload leaks plaintext")
	}
	got, err := svc.Open(sealed, "s-1")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(got, plain) {
		t.Fatalf("Open = %q, want %q", got, plain)
	}

	again, _ := svc.Seal(plain, "s-1")
	if bytes.Equal(again, sealed) {
		t.Fatal("two seals of the same payload should differ")
	}
}

func TestEncryptionService_WrongLabel(t *testing.T) {
	svc, _ := NewEncryptionService(testKey)
	sealed, _ := svc.Seal([]byte("x"), "s-1")
	if _, err := svc.Open(sealed, "s-2"); err == nil {
		t.Fatal("expected label mismatch to fail")
	}
}

func TestEncryptionService_BadInput(t *testing.T) {
	if _, err := NewEncryptionService("short"); err == nil {
		t.Fatal("expected key length error")
	}
	svc, _ := NewEncryptionService(testKey)
	if _, err := svc.Open([]byte{1, 2}, "s"); !errors.Is(err, ErrCiphertextTooShort) {
		t.Fatalf("err = %v, want ErrCiphertextTooShort", err)
	}
}
