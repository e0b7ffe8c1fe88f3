package auth

import (
	"bufio"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
)

const (
	// Magic opens every authenticated connection.
	Magic     = "MPAD\x01"
	NonceSize = 32
	authLabel = "motionpad-auth-v1"
	accepted  = "OK\x00"
	rejected  = "NO\x00"
)

func proof(key, clientNonce []byte) []byte {
	mac := hmac.New(sha256.New, key)
	_, _ = mac.Write([]byte(authLabel))
	_, _ = mac.Write(clientNonce)
	return mac.Sum(nil)
}

// IsHandshake reports whether the next bytes in r are the handshake magic
// without consuming them.
func IsHandshake(r *bufio.Reader) (bool, error) {
	b, err := r.Peek(len(Magic))
	if err != nil {
		return false, err
	}
	return string(b) == Magic, nil
}

// ClientHandshake sends magic, a fresh nonce and its proof, then waits for the
// host's verdict. Responses are read unbuffered so no sealed bytes following
// the handshake are consumed.
func ClientHandshake(rw io.ReadWriter, key []byte) (clientNonce, serverNonce []byte, err error) {
	if len(key) == 0 {
		return nil, nil, fmt.Errorf("handshake: missing key")
	}
	clientNonce = make([]byte, NonceSize)
	if _, err := rand.Read(clientNonce); err != nil {
		return nil, nil, fmt.Errorf("generate client nonce: %w", err)
	}

	msg := make([]byte, 0, len(Magic)+NonceSize+sha256.Size)
	msg = append(msg, Magic...)
	msg = append(msg, clientNonce...)
	msg = append(msg, proof(key, clientNonce)...)
	if _, err := rw.Write(msg); err != nil {
		return nil, nil, fmt.Errorf("write handshake: %w", err)
	}

	verdict := make([]byte, len(accepted))
	if _, err := io.ReadFull(rw, verdict); err != nil {
		return nil, nil, fmt.Errorf("read handshake response: %w", err)
	}
	switch string(verdict) {
	case accepted:
	case rejected:
		return nil, nil, ErrUnauthorized
	default:
		return nil, nil, fmt.Errorf("invalid handshake response %q", verdict)
	}

	serverNonce = make([]byte, NonceSize)
	if _, err := io.ReadFull(rw, serverNonce); err != nil {
		return nil, nil, fmt.Errorf("read server nonce: %w", err)
	}
	return clientNonce, serverNonce, nil
}

// ServerHandshake consumes the client's handshake from r, checks its proof and
// answers on w. A wrong proof is answered with a rejection and ErrUnauthorized.
func ServerHandshake(r *bufio.Reader, w io.Writer, key []byte) (clientNonce, serverNonce []byte, err error) {
	if len(key) == 0 {
		return nil, nil, fmt.Errorf("handshake: missing key")
	}
	magic := make([]byte, len(Magic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, nil, fmt.Errorf("read handshake magic: %w", err)
	}
	if string(magic) != Magic {
		return nil, nil, fmt.Errorf("unexpected handshake magic %q", magic)
	}

	clientNonce = make([]byte, NonceSize)
	if _, err := io.ReadFull(r, clientNonce); err != nil {
		return nil, nil, fmt.Errorf("read client nonce: %w", err)
	}
	clientProof := make([]byte, sha256.Size)
	if _, err := io.ReadFull(r, clientProof); err != nil {
		return nil, nil, fmt.Errorf("read client proof: %w", err)
	}
	if !hmac.Equal(clientProof, proof(key, clientNonce)) {
		_, _ = w.Write([]byte(rejected))
		return nil, nil, ErrUnauthorized
	}

	serverNonce = make([]byte, NonceSize)
	if _, err := rand.Read(serverNonce); err != nil {
		return nil, nil, fmt.Errorf("generate server nonce: %w", err)
	}
	if _, err := w.Write(append([]byte(accepted), serverNonce...)); err != nil {
		return nil, nil, fmt.Errorf("write response: %w", err)
	}
	return clientNonce, serverNonce, nil
}
