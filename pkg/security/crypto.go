// Package security implements the process-wide symmetric crypto engine.
// Message bodies are stored as nonce|ciphertext AES-256-GCM blobs; a random
// nonce per call keeps identical plaintexts from producing identical
// ciphertexts.
package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"chabrush/pkg/cerrs"
)

var (
	keyMu sync.RWMutex
	key   []byte
)

// SetKeyHex sets the AES-256 key from a hex string. An empty string clears it.
func SetKeyHex(hexKey string) error {
	keyMu.Lock()
	defer keyMu.Unlock()
	if hexKey == "" {
		key = nil
		return nil
	}
	b, err := hex.DecodeString(strings.TrimSpace(hexKey))
	if err != nil {
		return err
	}
	if len(b) != 32 {
		return errors.New("encryption key must be 32 bytes (AES-256)")
	}
	key = b
	return nil
}

// Enabled reports whether a key is configured.
func Enabled() bool {
	keyMu.RLock()
	defer keyMu.RUnlock()
	return len(key) == 32
}

// LoadOrCreateKeyFile reads a hex key from path, generating and persisting
// a fresh one when the file does not exist, and installs it.
func LoadOrCreateKeyFile(path string) error {
	if b, err := os.ReadFile(path); err == nil {
		return SetKeyHex(string(b))
	}
	raw := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return err
	}
	hx := hex.EncodeToString(raw)
	if err := os.WriteFile(path, []byte(hx), 0o600); err != nil {
		return fmt.Errorf("write key file %s: %w", path, err)
	}
	return SetKeyHex(hx)
}

// Encrypt returns nonce|ciphertext using AES-256-GCM.
func Encrypt(plaintext []byte) ([]byte, error) {
	keyMu.RLock()
	k := key
	keyMu.RUnlock()
	if len(k) != 32 {
		return nil, cerrs.Cryptof("no encryption key configured")
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, cerrs.Cryptof("cipher init: %v", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, cerrs.Cryptof("gcm init: %v", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	out := gcm.Seal(nil, nonce, plaintext, nil)
	// Prepend nonce for storage
	return append(nonce, out...), nil
}

// Decrypt expects nonce|ciphertext.
func Decrypt(data []byte) ([]byte, error) {
	keyMu.RLock()
	k := key
	keyMu.RUnlock()
	if len(k) != 32 {
		return nil, cerrs.Cryptof("no encryption key configured")
	}
	block, err := aes.NewCipher(k)
	if err != nil {
		return nil, cerrs.Cryptof("cipher init: %v", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, cerrs.Cryptof("gcm init: %v", err)
	}
	ns := gcm.NonceSize()
	if len(data) < ns {
		return nil, cerrs.Cryptof("ciphertext too short")
	}
	pt, err := gcm.Open(nil, data[:ns], data[ns:], nil)
	if err != nil {
		return nil, cerrs.Cryptof("decrypt: %v", err)
	}
	return pt, nil
}
