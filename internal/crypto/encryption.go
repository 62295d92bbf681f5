package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"
)

// EncryptionManager handles AES-256-GCM encryption of export credentials at rest.
type EncryptionManager struct {
	key []byte
}

// NewEncryptionManager builds a manager from a base64-encoded key. An empty
// key generates an ephemeral one, which keeps data decryptable only for the
// lifetime of the process.
func NewEncryptionManager(encodedKey string) (*EncryptionManager, error) {
	var key []byte
	if encodedKey == "" {
		generated, err := generateKey()
		if err != nil {
			return nil, fmt.Errorf("failed to generate encryption key: %w", err)
		}
		key = generated
	} else {
		decoded, err := base64.StdEncoding.DecodeString(encodedKey)
		if err != nil {
			return nil, fmt.Errorf("invalid encryption key (must be base64): %w", err)
		}

		if len(decoded) != 32 {
			// Derive a 32-byte key when the input is not exactly AES-256 sized
			hash := sha256.Sum256(decoded)
			key = hash[:]
		} else {
			key = decoded
		}
	}

	return &EncryptionManager{key: key}, nil
}

// EncryptString encrypts plaintext and returns base64(nonce || ciphertext).
func (em *EncryptionManager) EncryptString(plaintext string) (string, error) {
	sealed, err := em.encrypt([]byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString reverses EncryptString.
func (em *EncryptionManager) DecryptString(encoded string) (string, error) {
	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("invalid ciphertext encoding: %w", err)
	}

	plaintext, err := em.decrypt(sealed)
	if err != nil {
		return "", err
	}
	return string(plaintext), nil
}

func (em *EncryptionManager) encrypt(plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(em.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonce := make([]byte, aesGCM.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}

	return aesGCM.Seal(nonce, nonce, plaintext, nil), nil
}

func (em *EncryptionManager) decrypt(sealed []byte) ([]byte, error) {
	block, err := aes.NewCipher(em.key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	nonceSize := aesGCM.NonceSize()
	if len(sealed) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := sealed[:nonceSize], sealed[nonceSize:]

	plaintext, err := aesGCM.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}

	return plaintext, nil
}

func generateKey() ([]byte, error) {
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, err
	}
	return key, nil
}
