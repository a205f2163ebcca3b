package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
)

// clientKeyBits matches the server's expectations for client keys.
const clientKeyBits = 2048

// KeyPair represents the client's RSA-OAEP key pair for one process
// lifetime. The private key stays in memory and is never serialized.
type KeyPair struct {
	Public  *rsa.PublicKey
	Private *rsa.PrivateKey
}

// GenerateKeyPair creates a new random 2048-bit RSA key pair.
func GenerateKeyPair() (*KeyPair, error) {
	private, err := rsa.GenerateKey(rand.Reader, clientKeyBits)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "GenerateKeyPair",
			"error":    err.Error(),
		}).Error("Client key pair generation failed")
		return nil, fmt.Errorf("generate client key pair: %w", err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "GenerateKeyPair",
		"bits":     clientKeyBits,
	}).Debug("Client key pair generated")

	return &KeyPair{
		Public:  &private.PublicKey,
		Private: private,
	}, nil
}

// PublicKeyPEM encodes the public half as a PEM-wrapped SPKI block, the
// form the authenticate event carries as client_public_key.
func (kp *KeyPair) PublicKeyPEM() (string, error) {
	if kp == nil || kp.Public == nil {
		return "", errors.New("no public key")
	}

	spki, err := x509.MarshalPKIXPublicKey(kp.Public)
	if err != nil {
		return "", fmt.Errorf("marshal public key: %w", err)
	}

	block := &pem.Block{Type: "PUBLIC KEY", Bytes: spki}
	return string(pem.EncodeToMemory(block)), nil
}

// DecryptOwn decrypts a base64 RSA-OAEP ciphertext addressed to this
// client's private key. The server uses it to deliver the session key.
func (kp *KeyPair) DecryptOwn(ciphertextB64 string) ([]byte, error) {
	if kp == nil || kp.Private == nil {
		return nil, errors.New("no private key")
	}

	ct, err := base64.StdEncoding.DecodeString(ciphertextB64)
	if err != nil {
		return nil, fmt.Errorf("decode ciphertext: %w", err)
	}

	plain, err := rsa.DecryptOAEP(sha256.New(), rand.Reader, kp.Private, ct, nil)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "KeyPair.DecryptOwn",
			"ct_len":   len(ct),
			"error":    err.Error(),
		}).Error("RSA-OAEP decryption failed")
		return nil, fmt.Errorf("rsa decrypt: %w", err)
	}

	return plain, nil
}
