package auth

import (
	"bufio"
	"bytes"
	"crypto/cipher"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
)

const (
	maxPacketSize = 64 * 1024
	nonceLen      = chacha20poly1305.NonceSize
)

// ErrReplay is returned when a packet arrives out of sequence.
var ErrReplay = errors.New("packet out of sequence")

// Conn seals every Write into one length-prefixed packet and opens packets on
// Read. Each direction has its own key and counter.
type Conn struct {
	net.Conn
	r    io.Reader
	seal cipher.AEAD
	open cipher.AEAD

	wmu     sync.Mutex
	sendCtr uint64

	rmu     sync.Mutex
	recvCtr uint64
	recvBuf bytes.Buffer
}

// WrapConn wraps conn. Reads come from r, which may be a reader buffering
// conn; a nil r reads conn directly.
func WrapConn(conn net.Conn, r io.Reader, sendKey, recvKey []byte) (*Conn, error) {
	seal, err := chacha20poly1305.New(sendKey)
	if err != nil {
		return nil, err
	}
	open, err := chacha20poly1305.New(recvKey)
	if err != nil {
		return nil, err
	}
	if r == nil {
		r = conn
	}
	return &Conn{Conn: conn, r: r, seal: seal, open: open}, nil
}

// Client authenticates conn as the controller and wraps it.
func Client(conn net.Conn, key []byte) (*Conn, error) {
	clientNonce, serverNonce, err := ClientHandshake(conn, key)
	if err != nil {
		return nil, err
	}
	toServer, toClient := SessionKeys(key, serverNonce, clientNonce)
	return WrapConn(conn, nil, toServer, toClient)
}

// Server authenticates an incoming controller on conn and wraps it. r must be
// the reader the caller has been peeking from.
func Server(conn net.Conn, r *bufio.Reader, key []byte) (*Conn, error) {
	clientNonce, serverNonce, err := ServerHandshake(r, conn, key)
	if err != nil {
		return nil, err
	}
	toServer, toClient := SessionKeys(key, serverNonce, clientNonce)
	return WrapConn(conn, r, toClient, toServer)
}

func (c *Conn) Write(p []byte) (int, error) {
	c.wmu.Lock()
	defer c.wmu.Unlock()

	nonce := make([]byte, nonceLen)
	binary.BigEndian.PutUint64(nonce[4:], c.sendCtr)
	c.sendCtr++

	pkt := make([]byte, 4, 4+nonceLen+len(p)+c.seal.Overhead())
	pkt = append(pkt, nonce...)
	pkt = c.seal.Seal(pkt, nonce, p, nil)
	binary.BigEndian.PutUint32(pkt[:4], uint32(len(pkt)-4))

	if _, err := c.Conn.Write(pkt); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (c *Conn) Read(p []byte) (int, error) {
	c.rmu.Lock()
	defer c.rmu.Unlock()

	for c.recvBuf.Len() == 0 {
		var hdr [4]byte
		if _, err := io.ReadFull(c.r, hdr[:]); err != nil {
			return 0, err
		}
		length := binary.BigEndian.Uint32(hdr[:])
		if length < nonceLen || length > maxPacketSize {
			return 0, io.ErrUnexpectedEOF
		}
		pkt := make([]byte, length)
		if _, err := io.ReadFull(c.r, pkt); err != nil {
			return 0, err
		}
		nonce, ct := pkt[:nonceLen], pkt[nonceLen:]
		if binary.BigEndian.Uint64(nonce[4:]) != c.recvCtr {
			return 0, ErrReplay
		}
		pt, err := c.open.Open(nil, nonce, ct, nil)
		if err != nil {
			return 0, err
		}
		c.recvCtr++
		c.recvBuf.Write(pt)
	}
	return c.recvBuf.Read(p)
}
