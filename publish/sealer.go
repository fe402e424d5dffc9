package publish

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/pbkdf2"
)

const (
	iterationCount = 10000
	saltLength     = 16
)

var ErrSealedData = errors.New("sealed data is invalid")

// Sealer encrypts account tokens at rest. Each sealed value carries its own
// salt; the key is derived from the configured secret with PBKDF2.
type Sealer struct {
	secret []byte
}

func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, errors.New("token secret must not be empty")
	}
	return &Sealer{secret: []byte(secret)}, nil
}

func (s *Sealer) key(salt []byte) []byte {
	return pbkdf2.Key(s.secret, salt, iterationCount, chacha20poly1305.KeySize, sha256.New)
}

// Seal returns base64(salt | nonce | ciphertext).
func (s *Sealer) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	aead, err := chacha20poly1305.NewX(s.key(salt))
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize(), aead.NonceSize()+len(plaintext)+aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := append(salt, aead.Seal(nonce, nonce, []byte(plaintext), salt)...)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (s *Sealer) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	data, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSealedData, err)
	}
	if len(data) < saltLength+chacha20poly1305.NonceSizeX {
		return "", fmt.Errorf("%w: too short", ErrSealedData)
	}
	salt := data[:saltLength]
	aead, err := chacha20poly1305.NewX(s.key(salt))
	if err != nil {
		return "", err
	}
	nonce := data[saltLength : saltLength+aead.NonceSize()]
	plaintext, err := aead.Open(nil, nonce, data[saltLength+aead.NonceSize():], salt)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSealedData, err)
	}
	return string(plaintext), nil
}
