// Package wire implements the length-prefixed, CBOR-framed transport shared
// by the host-to-enclave socket and the coordinator-to-coordinator relay.
// Framing: a 4-byte big-endian length prefix followed by that many bytes of
// CBOR-encoded payload.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"

	"github.com/fxamacker/cbor/v2"
	"github.com/mdlayher/vsock"

	"github.com/quietpush/enclavecore/config"
)

// Dial opens a connection per cfg: a vsock dial when VsockCID is set,
// otherwise a plain TCP dial to Host:Port. This mirrors the teacher's
// socket-config dial switch, generalized to either transport.
func Dial(cfg config.SocketConfig) (net.Conn, error) {
	switch {
	case cfg.VsockCID != 0:
		return vsock.Dial(cfg.VsockCID, cfg.Port, nil)
	case cfg.Host != "":
		return net.Dial("tcp", net.JoinHostPort(cfg.Host, strconv.FormatUint(uint64(cfg.Port), 10)))
	default:
		return nil, fmt.Errorf("invalid socket config: %+v", cfg)
	}
}

// Listen opens a listener per cfg.
func Listen(cfg config.SocketConfig) (net.Listener, error) {
	switch {
	case cfg.VsockCID != 0:
		return vsock.Listen(cfg.Port, nil)
	case cfg.Host != "":
		return net.Listen("tcp", net.JoinHostPort(cfg.Host, strconv.FormatUint(uint64(cfg.Port), 10)))
	default:
		return nil, fmt.Errorf("invalid socket config: %+v", cfg)
	}
}

// Conn wraps a net.Conn with CBOR frame read/write helpers. Writes are
// serialized with a mutex since one connection may be shared by concurrent
// callers awaiting distinct request IDs.
type Conn struct {
	conn net.Conn
	wMu  sync.Mutex
}

func NewConn(c net.Conn) *Conn {
	return &Conn{conn: c}
}

// WriteFrame CBOR-encodes v and writes it length-prefixed to the connection.
func (c *Conn) WriteFrame(v interface{}) error {
	buf, err := cbor.Marshal(v)
	if err != nil {
		return fmt.Errorf("cbor marshal: %w", err)
	}
	var sizeBuf [4]byte
	binary.BigEndian.PutUint32(sizeBuf[:], uint32(len(buf)))

	c.wMu.Lock()
	defer c.wMu.Unlock()
	if _, err := c.conn.Write(sizeBuf[:]); err != nil {
		return fmt.Errorf("writing frame length: %w", err)
	}
	if _, err := c.conn.Write(buf); err != nil {
		return fmt.Errorf("writing frame body: %w", err)
	}
	return nil
}

// ReadFrame reads the next length-prefixed frame and CBOR-decodes it into v.
func (c *Conn) ReadFrame(v interface{}) error {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(c.conn, sizeBuf[:]); err != nil {
		return fmt.Errorf("reading frame length: %w", err)
	}
	size := binary.BigEndian.Uint32(sizeBuf[:])
	buf := make([]byte, size)
	if _, err := io.ReadFull(c.conn, buf); err != nil {
		return fmt.Errorf("reading frame body: %w", err)
	}
	if err := cbor.Unmarshal(buf, v); err != nil {
		return fmt.Errorf("cbor unmarshal: %w", err)
	}
	return nil
}

// ReadRawFrame reads the next length-prefixed frame without decoding it,
// used by package relay to forward opaque bytes between peers.
func (c *Conn) ReadRawFrame() ([]byte, error) {
	var sizeBuf [4]byte
	if _, err := io.ReadFull(c.conn, sizeBuf[:]); err != nil {
		return nil, fmt.Errorf("reading frame length: %w", err)
	}
	size := binary.BigEndian.Uint32(sizeBuf[:])
	buf := make([]byte, size)
	if _, err := io.ReadFull(c.conn, buf); err != nil {
		return nil, fmt.Errorf("reading frame body: %w", err)
	}
	return buf, nil
}

// WriteRawFrame writes a pre-encoded frame body length-prefixed, without
// re-encoding it.
func (c *Conn) WriteRawFrame(buf []byte) error {
	var sizeBuf [4]byte
	binary.BigEndian.PutUint32(sizeBuf[:], uint32(len(buf)))

	c.wMu.Lock()
	defer c.wMu.Unlock()
	if _, err := c.conn.Write(sizeBuf[:]); err != nil {
		return fmt.Errorf("writing frame length: %w", err)
	}
	if _, err := c.conn.Write(buf); err != nil {
		return fmt.Errorf("writing frame body: %w", err)
	}
	return nil
}

func (c *Conn) Close() error {
	return c.conn.Close()
}
