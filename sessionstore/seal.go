package sessionstore

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"io"

	"github.com/pkg/errors"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

const sealInfo = "climate-crusade session seal v1"

var ErrUnseal = errors.New("sealed session could not be opened")

// sealer encrypts persisted sessions with XChaCha20-Poly1305 under a key derived
// from the configured secret.
type sealer struct {
	aead cipher.AEAD
}

func newSealer(secret string) (*sealer, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(sealInfo)), key); err != nil {
		return nil, errors.Wrap(err, "[newSealer] derive key")
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, errors.Wrap(err, "[newSealer]")
	}
	return &sealer{aead: aead}, nil
}

// seal returns nonce || ciphertext. additional binds the payload to its row.
func (s *sealer) seal(plaintext, additional []byte) ([]byte, error) {
	nonce := make([]byte, s.aead.NonceSize(), s.aead.NonceSize()+len(plaintext)+s.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return nil, errors.Wrap(err, "[sealer.seal] nonce")
	}
	return s.aead.Seal(nonce, nonce, plaintext, additional), nil
}

func (s *sealer) open(sealed, additional []byte) ([]byte, error) {
	if len(sealed) < s.aead.NonceSize() {
		return nil, ErrUnseal
	}
	nonce, ciphertext := sealed[:s.aead.NonceSize()], sealed[s.aead.NonceSize():]
	plaintext, err := s.aead.Open(nil, nonce, ciphertext, additional)
	if err != nil {
		return nil, ErrUnseal
	}
	return plaintext, nil
}
