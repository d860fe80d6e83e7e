package wsrpc

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"github.com/termbridge/termbridge/config"
	"github.com/termbridge/termbridge/terminal"
)

const loginTimeout = 10 * time.Second

// Dialer establishes WebSocket sessions to the terminal bridge.
// It implements terminal.Dialer.
type Dialer struct {
	// HandshakeTimeout bounds the WebSocket upgrade. The Dial context
	// applies on top of it.
	HandshakeTimeout time.Duration

	// TLS is the optional TLS configuration for wss endpoints.
	TLS *tls.Config
}

// NewDialer builds a Dialer from the client config, loading client
// certificate and CA material when configured.
func NewDialer(cfg config.ClientConfig) (*Dialer, error) {
	tlsCfg := &tls.Config{
		InsecureSkipVerify: cfg.TLS.InsecureSkipVerify, //nolint:gosec // user-configured
	}

	if cfg.TLS.CertFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.TLS.CertFile, cfg.TLS.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("wsrpc: load client cert: %w", err)
		}
		tlsCfg.Certificates = []tls.Certificate{cert}
	}

	if cfg.TLS.CAFile != "" {
		caPEM, err := os.ReadFile(cfg.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("wsrpc: read ca file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(caPEM) {
			return nil, fmt.Errorf("wsrpc: no valid certs in ca file %q", cfg.TLS.CAFile)
		}
		tlsCfg.RootCAs = pool
	}

	return &Dialer{
		HandshakeTimeout: cfg.DialTimeout,
		TLS:              tlsCfg,
	}, nil
}

// Dial opens the socket and logs the account in. A rejected login
// comes back as the bridge's domain error and must not be retried;
// handshake failures are plain transport errors.
func (d *Dialer) Dial(ctx context.Context, endpoint string, creds terminal.Credentials) (terminal.Session, error) {
	wd := websocket.Dialer{
		HandshakeTimeout: d.HandshakeTimeout,
		TLSClientConfig:  d.TLS,
		ReadBufferSize:   4096,
		WriteBufferSize:  1024,
	}

	conn, resp, err := wd.DialContext(ctx, endpoint, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("wsrpc: dial %s: status %d: %w", endpoint, resp.StatusCode, err)
		}
		return nil, fmt.Errorf("wsrpc: dial %s: %w", endpoint, err)
	}

	s := newSession(conn)
	go s.readLoop()
	go s.pingLoop()

	params := map[string]string{
		"account":  creds.Account,
		"password": creds.Password,
		"server":   creds.Server,
	}
	if _, err := s.Call(ctx, "session.login", params, loginTimeout); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("wsrpc: login account %s: %w", creds.Account, err)
	}

	return s, nil
}
