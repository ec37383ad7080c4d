package credentials

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/kirillkom/knowledge-ingest/internal/core/domain"
)

// Store seals source credentials with AES-256-GCM. The tenant and source
// ids are bound in as additional data, so a ciphertext copied onto another
// source row fails to open.
type Store struct {
	key [32]byte
}

func NewStore(secret string) (*Store, error) {
	if secret == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "credential store",
			fmt.Errorf("encryption secret is empty"))
	}
	return &Store{key: sha256.Sum256([]byte(secret))}, nil
}

func (s *Store) Encrypt(tenantID, sourceID string, plaintext []byte) ([]byte, error) {
	gcm, err := s.sealer()
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}
	sealed := gcm.Seal(nonce, nonce, plaintext, aad(tenantID, sourceID))
	return sealed, nil
}

func (s *Store) Decrypt(tenantID, sourceID string, ciphertext []byte) ([]byte, error) {
	gcm, err := s.sealer()
	if err != nil {
		return nil, err
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decrypt credentials",
			fmt.Errorf("ciphertext shorter than nonce"))
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, aad(tenantID, sourceID))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "decrypt credentials", err)
	}
	return plaintext, nil
}

func (s *Store) sealer() (cipher.AEAD, error) {
	block, err := aes.NewCipher(s.key[:])
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return gcm, nil
}

func aad(tenantID, sourceID string) []byte {
	return []byte(tenantID + "/" + sourceID)
}
