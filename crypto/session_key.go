package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
)

// SessionKeyIVSize is the AES-GCM nonce length in bytes. A fresh random IV
// is generated per message and transmitted alongside the ciphertext.
const SessionKeyIVSize = 12

// SessionKey is the symmetric AES-GCM key negotiated once per
// authenticated connection. It is written exactly once on import and
// read-only afterwards; Wipe discards the material on disconnect.
type SessionKey struct {
	mu   sync.RWMutex
	raw  []byte
	aead cipher.AEAD
}

// ImportSessionKey imports raw bytes as an AES-GCM key. The server issues
// 32-byte keys; 16 and 24 are accepted because AES permits them.
func ImportSessionKey(raw []byte) (*SessionKey, error) {
	switch len(raw) {
	case 16, 24, 32:
	default:
		return nil, fmt.Errorf("session key must be 16, 24 or 32 bytes, got %d", len(raw))
	}

	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}

	key := make([]byte, len(raw))
	copy(key, raw)

	logrus.WithFields(logrus.Fields{
		"function": "ImportSessionKey",
		"key_len":  len(raw),
	}).Debug("Session key imported for AES-GCM")

	return &SessionKey{raw: key, aead: aead}, nil
}

// Encrypt performs authenticated encryption of plaintext with a fresh
// random IV. Returns base64 ciphertext and base64 IV.
func (sk *SessionKey) Encrypt(plaintext []byte) (ciphertextB64, ivB64 string, err error) {
	sk.mu.RLock()
	defer sk.mu.RUnlock()

	if sk.aead == nil {
		return "", "", errors.New("session key wiped")
	}

	iv := make([]byte, SessionKeyIVSize)
	if _, err := rand.Read(iv); err != nil {
		return "", "", fmt.Errorf("generate IV: %w", err)
	}

	ct := sk.aead.Seal(nil, iv, plaintext, nil)
	return base64.StdEncoding.EncodeToString(ct), base64.StdEncoding.EncodeToString(iv), nil
}

// Decrypt authenticates and decrypts a base64 ciphertext with its base64 IV.
func (sk *SessionKey) Decrypt(ciphertextB64, ivB64 string) ([]byte, error) {
	sk.mu.RLock()
	defer sk.mu.RUnlock()

	if sk.aead == nil {
		return nil, errors.New("session key wiped")
	}

	ct, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}

	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil {
		return nil, fmt.Errorf("decode IV: %w", err)
	}

	if len(iv) != SessionKeyIVSize {
		return nil, fmt.Errorf("IV must be %d bytes, got %d", SessionKeyIVSize, len(iv))
	}

	plain, err := sk.aead.Open(nil, iv, ct, nil)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "SessionKey.Decrypt",
			"ct_len":   len(ct),
			"error":    err.Error(),
		}).Error("AES-GCM decryption failed")
		return nil, fmt.Errorf("aes decrypt: %w", err)
	}

	return plain, nil
}

// Wipe zeroes the key material and makes the key unusable. Safe to call
// more than once.
func (sk *SessionKey) Wipe() {
	if sk == nil {
		return
	}

	sk.mu.Lock()
	defer sk.mu.Unlock()

	for i := range sk.raw {
		sk.raw[i] = 0
	}
	sk.raw = nil
	sk.aead = nil
}
