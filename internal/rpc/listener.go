package rpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"sync"

	"github.com/gobwas/ws"
	"github.com/rs/zerolog"
)

// Kind identifies a listener's protocol (spec.md §6).
type Kind string

const (
	KindTCP Kind = "tcp"
	KindSSL Kind = "ssl"
	KindWS  Kind = "ws"
	KindWSS Kind = "wss"
	KindRPC Kind = "rpc"
)

// Accepted is handed to the caller for every newly accepted
// connection, already wrapped in the appropriate Framer.
type Accepted struct {
	Framer     Framer
	RemoteAddr string
	Kind       Kind
}

// Handler processes one accepted connection. Implementations own the
// connection's full lifetime (read loop, dispatch, writes) and must
// call Close when done.
type Handler func(ctx context.Context, a Accepted)

// Listener owns one net.Listener for one configured service and
// accepts connections until closed (spec.md §4.1, §6).
type Listener struct {
	kind     Kind
	maxSize  int
	listener net.Listener
	logger   zerolog.Logger
	handler  Handler

	closeOnce sync.Once
}

// TLSConfig builds a TLS config from cert+key files for ssl/wss
// services. Each call loads the key pair again and returns a new
// config; nothing is cached, so every ssl/wss listener gets its own.
func TLSConfig(certFile, keyFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("load TLS keypair: %w", err)
	}
	return &tls.Config{Certificates: []tls.Certificate{cert}}, nil
}

// Listen starts one listener for the given kind at addr. reuse_address
// is implied by net.Listen's default SO_REUSEADDR on most platforms
// (spec.md §6 "reuse_address is required").
func Listen(addr string, kind Kind, tlsConfig *tls.Config, maxSize int, logger zerolog.Logger, handler Handler) (*Listener, error) {
	var ln net.Listener
	var err error

	switch kind {
	case KindSSL, KindWSS:
		if tlsConfig == nil {
			return nil, fmt.Errorf("%s service requires a TLS config", kind)
		}
		ln, err = tls.Listen("tcp", addr, tlsConfig)
	default:
		ln, err = net.Listen("tcp", addr)
	}
	if err != nil {
		return nil, fmt.Errorf("listen %s (%s): %w", addr, kind, err)
	}

	return &Listener{kind: kind, maxSize: maxSize, listener: ln, logger: logger, handler: handler}, nil
}

// Serve accepts connections until ctx is cancelled or the listener is
// closed. Each accepted connection is wrapped in a Framer appropriate
// to the listener's kind and handed to handler in its own goroutine.
func (l *Listener) Serve(ctx context.Context) error {
	for {
		conn, err := l.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return err
			}
		}

		go l.accept(ctx, conn)
	}
}

func (l *Listener) accept(ctx context.Context, conn net.Conn) {
	remote := conn.RemoteAddr().String()

	var framer Framer
	switch l.kind {
	case KindWS, KindWSS:
		if _, err := ws.Upgrade(conn); err != nil {
			l.logger.Debug().Err(err).Str("remote", remote).Msg("websocket upgrade failed")
			conn.Close()
			return
		}
		framer = NewWSFramer(conn, l.maxSize)
	default:
		framer = NewNewlineFramer(conn, l.maxSize)
	}

	l.handler(ctx, Accepted{Framer: framer, RemoteAddr: remote, Kind: l.kind})
}

// Close stops accepting new connections. Existing connections are
// unaffected; the manager closes sessions separately with
// force_after (spec.md §4.1 "Shutdown").
func (l *Listener) Close() error {
	var err error
	l.closeOnce.Do(func() {
		err = l.listener.Close()
	})
	return err
}

// Addr returns the listener's bound network address.
func (l *Listener) Addr() net.Addr { return l.listener.Addr() }

// Kind returns the listener's configured protocol.
func (l *Listener) Kind() Kind { return l.kind }
