package token

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"golang.org/x/crypto/nacl/secretbox"
)

const (
	sealKeyLength = 32
	nonceLength   = 24
)

// Sealer encrypts persisted credentials with NaCl secretbox
type Sealer struct {
	key [sealKeyLength]byte
}

// NewSealer creates a Sealer from a hex encoded 32 byte key
func NewSealer(hexKey string) (*Sealer, error) {
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("seal key is not valid hex: %w", err)
	}
	if len(raw) != sealKeyLength {
		return nil, fmt.Errorf("seal key must be %d bytes, got %d", sealKeyLength, len(raw))
	}
	s := &Sealer{}
	copy(s.key[:], raw)
	return s, nil
}

// Seal returns nonce||box
func (s *Sealer) Seal(plain []byte) ([]byte, error) {
	var nonce [nonceLength]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return secretbox.Seal(nonce[:], plain, &nonce, &s.key), nil
}

// Open reverses Seal
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < nonceLength+secretbox.Overhead {
		return nil, errors.New("sealed data too short")
	}
	var nonce [nonceLength]byte
	copy(nonce[:], sealed[:nonceLength])
	plain, ok := secretbox.Open(nil, sealed[nonceLength:], &nonce, &s.key)
	if !ok {
		return nil, errors.New("sealed data failed authentication")
	}
	return plain, nil
}
