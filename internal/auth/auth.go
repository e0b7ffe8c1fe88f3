// Package auth secures a TCP link between controller and host with a shared
// password. Both sides derive a key with PBKDF2, prove knowledge of it with an
// HMAC challenge and then exchange ChaCha20-Poly1305 sealed packets.
package auth

import (
	"crypto/pbkdf2"
	"crypto/rand"
	"crypto/sha256"
	"errors"
)

const (
	GeneratedKeyLength = 16
	base62Chars        = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"
	pbkdf2Iterations   = 100000
	keySalt            = "motionpad-key-v1"
	sessionLabel       = "motionpad-session-v1"
)

var (
	ErrEmptyPassword = errors.New("password cannot be empty")
	ErrUnauthorized  = errors.New("invalid password")
)

// GenerateKey returns a random base62 password for hosts started without one.
func GenerateKey() (string, error) {
	random := make([]byte, GeneratedKeyLength)
	if _, err := rand.Read(random); err != nil {
		return "", err
	}
	key := make([]byte, GeneratedKeyLength)
	for i, b := range random {
		key[i] = base62Chars[int(b)%len(base62Chars)]
	}
	return string(key), nil
}

// DeriveKey stretches password to a 32-byte key.
func DeriveKey(password string) ([]byte, error) {
	if password == "" {
		return nil, ErrEmptyPassword
	}
	return pbkdf2.Key(sha256.New, password, []byte(keySalt), pbkdf2Iterations, 32)
}

// SessionKeys derives one key per direction from the shared key and both
// handshake nonces, so the two sides never seal with the same key and nonce.
func SessionKeys(key, serverNonce, clientNonce []byte) (toServer, toClient []byte) {
	derive := func(dir byte) []byte {
		h := sha256.New()
		h.Write(key)
		h.Write(serverNonce)
		h.Write(clientNonce)
		h.Write([]byte(sessionLabel))
		h.Write([]byte{dir})
		return h.Sum(nil)
	}
	return derive('s'), derive('c')
}
