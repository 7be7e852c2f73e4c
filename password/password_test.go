package password

import (
	"path/filepath"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyfile")
	if err := GenerateKeyfile(path); err != nil {
		t.Fatalf("GenerateKeyfile: %v", err)
	}

	k := NewKeyfile(path)
	ct, err := k.Encrypt("hunter2")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	pt, err := k.Decrypt(ct)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if pt != "hunter2" {
		t.Fatalf("expected round-trip %q, got %q", "hunter2", pt)
	}
}

func TestDecryptRejectsMalformedCiphertext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keyfile")
	if err := GenerateKeyfile(path); err != nil {
		t.Fatalf("GenerateKeyfile: %v", err)
	}
	k := NewKeyfile(path)
	if _, err := k.Decrypt("not-hex!!"); err == nil {
		t.Fatalf("expected error for malformed ciphertext")
	}
}
