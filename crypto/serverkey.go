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

// ImportServerPublicKey parses the server's PEM-encoded public key into a
// key usable for encrypt-to-server operations. The key is public
// information and safe to embed in client builds.
func ImportServerPublicKey(pemText string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemText))
	if block == nil {
		return nil, errors.New("no PEM block in server public key")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parse server public key: %w", err)
	}

	pub, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("server public key is %T, want RSA", parsed)
	}

	logrus.WithFields(logrus.Fields{
		"function": "ImportServerPublicKey",
		"bits":     pub.Size() * 8,
	}).Debug("Server public key imported")

	return pub, nil
}

// EncryptToServer encrypts plaintext under the server's public key and
// returns base64 ciphertext. Used only before a symmetric session key
// exists; RSA-OAEP limits the plaintext to one key-sized block.
func EncryptToServer(serverKey *rsa.PublicKey, plaintext []byte) (string, error) {
	if serverKey == nil {
		return "", errors.New("no server public key")
	}

	ct, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, serverKey, plaintext, nil)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function":  "EncryptToServer",
			"plain_len": len(plaintext),
			"error":     err.Error(),
		}).Error("RSA-OAEP encryption failed")
		return "", fmt.Errorf("rsa encrypt: %w", err)
	}

	return base64.StdEncoding.EncodeToString(ct), nil
}
