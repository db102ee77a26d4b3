package signer

import (
	"fmt"
	"os"
)

// Signer signs converted package artifacts
type Signer interface {
	// SignDetached creates a binary detached signature over data
	SignDetached(data []byte) ([]byte, error)

	// GetPublicKey returns the public key
	GetPublicKey() ([]byte, error)
}

// SignFile writes a detached signature for the artifact at sigPath
func SignFile(s Signer, artifactPath, sigPath string) error {
	data, err := os.ReadFile(artifactPath)
	if err != nil {
		return fmt.Errorf("failed to read artifact: %w", err)
	}

	sig, err := s.SignDetached(data)
	if err != nil {
		return err
	}

	return os.WriteFile(sigPath, sig, 0644)
}
