package signer

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ProtonMail/go-crypto/openpgp"
	"github.com/ProtonMail/go-crypto/openpgp/armor"
)

// writeTestKey generates a throwaway key pair and writes the armored
// private key to a file, returning the path and the entity for
// verification
func writeTestKey(t *testing.T, dir string) (string, *openpgp.Entity) {
	t.Helper()

	entity, err := openpgp.NewEntity("Test Signer", "", "signer@example.org", nil)
	if err != nil {
		t.Fatalf("Failed to generate key: %v", err)
	}

	var buf bytes.Buffer
	w, err := armor.Encode(&buf, openpgp.PrivateKeyType, nil)
	if err != nil {
		t.Fatalf("Failed to start armor block: %v", err)
	}
	if err := entity.SerializePrivate(w, nil); err != nil {
		t.Fatalf("Failed to serialize private key: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close armor block: %v", err)
	}

	path := filepath.Join(dir, "signing.key")
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		t.Fatalf("Failed to write key file: %v", err)
	}
	return path, entity
}

func TestSignDetachedVerifies(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "pkgcross-signer-test-")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	keyPath, entity := writeTestKey(t, tmpDir)
	s, err := NewGPGSigner(keyPath, "")
	if err != nil {
		t.Fatalf("Failed to create signer: %v", err)
	}

	data := []byte("artifact bytes")
	sig, err := s.SignDetached(data)
	if err != nil {
		t.Fatalf("Failed to sign: %v", err)
	}

	signedBy, err := openpgp.CheckDetachedSignature(
		openpgp.EntityList{entity}, bytes.NewReader(data), bytes.NewReader(sig), nil)
	if err != nil {
		t.Fatalf("Signature did not verify: %v", err)
	}
	if signedBy.PrimaryKey.KeyId != entity.PrimaryKey.KeyId {
		t.Errorf("Signature attributed to the wrong key")
	}

	// A tampered artifact must fail verification
	if _, err := openpgp.CheckDetachedSignature(
		openpgp.EntityList{entity}, bytes.NewReader([]byte("tampered")), bytes.NewReader(sig), nil); err == nil {
		t.Errorf("Tampered data still verified")
	}
}

func TestSignFileWritesSidecar(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "pkgcross-signer-test-")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	keyPath, entity := writeTestKey(t, tmpDir)
	s, err := NewGPGSigner(keyPath, "")
	if err != nil {
		t.Fatalf("Failed to create signer: %v", err)
	}

	artifact := filepath.Join(tmpDir, "tool_1.0_amd64.deb")
	if err := os.WriteFile(artifact, []byte("package payload"), 0644); err != nil {
		t.Fatalf("Failed to write artifact: %v", err)
	}

	sigPath := artifact + ".sig"
	if err := SignFile(s, artifact, sigPath); err != nil {
		t.Fatalf("Failed to sign file: %v", err)
	}

	sig, err := os.ReadFile(sigPath)
	if err != nil {
		t.Fatalf("Failed to read signature: %v", err)
	}
	if _, err := openpgp.CheckDetachedSignature(
		openpgp.EntityList{entity}, bytes.NewReader([]byte("package payload")), bytes.NewReader(sig), nil); err != nil {
		t.Fatalf("Sidecar signature did not verify: %v", err)
	}
}

func TestGetPublicKeyArmored(t *testing.T) {
	tmpDir, err := os.MkdirTemp("", "pkgcross-signer-test-")
	if err != nil {
		t.Fatalf("Failed to create temp dir: %v", err)
	}
	defer os.RemoveAll(tmpDir)

	keyPath, _ := writeTestKey(t, tmpDir)
	s, err := NewGPGSigner(keyPath, "")
	if err != nil {
		t.Fatalf("Failed to create signer: %v", err)
	}

	pub, err := s.GetPublicKey()
	if err != nil {
		t.Fatalf("Failed to export public key: %v", err)
	}
	if !strings.Contains(string(pub), "BEGIN PGP PUBLIC KEY BLOCK") {
		t.Errorf("Public key is not armored: %s", pub[:60])
	}
}

func TestNewGPGSignerErrors(t *testing.T) {
	if _, err := NewGPGSigner("", ""); err == nil {
		t.Errorf("Expected an error for an empty key path")
	}
	if _, err := NewGPGSigner("/nonexistent/key.asc", ""); err == nil {
		t.Errorf("Expected an error for a missing key file")
	}
}
