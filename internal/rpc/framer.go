package rpc

import (
	"bufio"
	"errors"
	"net"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// ErrMessageTooLarge is returned when a frame exceeds max_size
// (spec.md §6 "Framing").
var ErrMessageTooLarge = errors.New("message exceeds max_size")

// Framer reads and writes whole JSON-RPC payloads over one connection,
// hiding whether the underlying transport is newline-delimited TCP/TLS
// or WebSocket framing (spec.md §4.2 "WebSocket listeners wrap the
// same session logic in WS framing").
type Framer interface {
	ReadMessage() ([]byte, error)
	WriteMessage([]byte) error
	Close() error
}

// newlineFramer implements Framer over newline-delimited JSON-RPC, the
// framing used by tcp/ssl/rpc services (spec.md §6).
type newlineFramer struct {
	conn    net.Conn
	reader  *bufio.Reader
	maxSize int
}

// NewNewlineFramer wraps conn with max_size = env.max_recv (§4.2).
func NewNewlineFramer(conn net.Conn, maxSize int) Framer {
	return &newlineFramer{conn: conn, reader: bufio.NewReaderSize(conn, 4096), maxSize: maxSize}
}

func (f *newlineFramer) ReadMessage() ([]byte, error) {
	var buf []byte
	for {
		chunk, err := f.reader.ReadSlice('\n')
		buf = append(buf, chunk...)
		if len(buf) > f.maxSize {
			return nil, ErrMessageTooLarge
		}
		if err == nil {
			// Trim the trailing newline.
			return buf[:len(buf)-1], nil
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue // line longer than internal buffer; keep accumulating
		}
		return nil, err
	}
}

func (f *newlineFramer) WriteMessage(msg []byte) error {
	if _, err := f.conn.Write(msg); err != nil {
		return err
	}
	_, err := f.conn.Write([]byte("\n"))
	return err
}

func (f *newlineFramer) Close() error { return f.conn.Close() }

// wsFramer implements Framer over a WebSocket connection via
// gobwas/ws, the teacher's WebSocket transport.
type wsFramer struct {
	conn    net.Conn
	maxSize int
}

// NewWSFramer wraps an already-upgraded WebSocket connection.
func NewWSFramer(conn net.Conn, maxSize int) Framer {
	return &wsFramer{conn: conn, maxSize: maxSize}
}

func (f *wsFramer) ReadMessage() ([]byte, error) {
	msg, _, err := wsutil.ReadClientData(f.conn)
	if err != nil {
		return nil, err
	}
	if len(msg) > f.maxSize {
		return nil, ErrMessageTooLarge
	}
	return msg, nil
}

func (f *wsFramer) WriteMessage(msg []byte) error {
	return wsutil.WriteServerMessage(f.conn, ws.OpText, msg)
}

func (f *wsFramer) Close() error { return f.conn.Close() }
