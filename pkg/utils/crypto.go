package utils

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"

	"golang.org/x/crypto/hkdf"
)

const tokenKeyInfo = "crosspost token encryption"

// Cipher seals platform tokens at rest with AES-256-GCM.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives the AES key from secret with HKDF-SHA256.
func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, errors.New("secret key is empty")
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(tokenKeyInfo)), key); err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	aesGCM, err := cipher.NewGCM(block)
	if err != nil {
		slog.Info(err.Error())
		return nil, err
	}

	return &Cipher{aead: aesGCM}, nil
}

// Encrypt returns base64(nonce || ciphertext). The empty string encrypts to itself.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		slog.Info(err.Error())
		return "", err
	}

	finalData := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(finalData), nil
}

func (c *Cipher) Decrypt(encryptedData string) (string, error) {
	if encryptedData == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(encryptedData)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	nonceSize := c.aead.NonceSize()
	if len(data) < nonceSize {
		return "", errors.New("ciphertext too short")
	}
	nonce, ciphertext := data[:nonceSize], data[nonceSize:]

	plaintext, err := c.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		slog.Info(err.Error())
		return "", err
	}

	return string(plaintext), nil
}
