// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport opens the byte streams a pump is reached over: a local
// serial port or a WebSocket serial bridge.
package transport

import (
	"bufio"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.bug.st/serial"
	"golang.org/x/term"
)

// PasswordEnv names the environment variable holding the bridge password
const PasswordEnv = "PERISTAT_PASSWORD"

// Conn is a duplex byte stream to the pump
type Conn interface {
	io.Reader
	io.Writer
	io.Closer
}

// ErrClosed is returned when reading from a closed WebSocket connection
var ErrClosed = errors.New("websocket connection closed")

// Config selects and parameterizes a transport. URL takes precedence over
// Port.
type Config struct {
	Port        string
	Baud        int
	ReadTimeout time.Duration

	URL           string
	Username      string
	Password      string
	SkipSSLVerify bool
}

// Describe returns a short human readable name for the link
func (c Config) Describe() string {
	if c.URL != "" {
		return fmt.Sprintf("WebSocket: %s", c.URL)
	}
	return fmt.Sprintf("Serial: %s @ %d baud", c.Port, c.Baud)
}

// SerialConn wraps a serial port
type SerialConn struct {
	port serial.Port
}

func (s *SerialConn) Read(p []byte) (int, error) {
	return s.port.Read(p)
}

func (s *SerialConn) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

func (s *SerialConn) Close() error {
	return s.port.Close()
}

// OpenSerial opens a serial port at 8N1. A positive readTimeout makes Read
// return (0, nil) when the line is idle.
func OpenSerial(portName string, baudRate int, readTimeout time.Duration) (*SerialConn, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open serial port %s", portName)
	}

	if readTimeout > 0 {
		if err := port.SetReadTimeout(readTimeout); err != nil {
			port.Close()
			return nil, errors.Wrap(err, "failed to set read timeout")
		}
	}

	return &SerialConn{port: port}, nil
}

// WebSocketConn adapts a message oriented WebSocket to a byte stream. Each
// binary message is one chunk; text and control messages are skipped.
type WebSocketConn struct {
	conn *websocket.Conn

	// Read side
	buf       []byte
	bufOffset int
	closed    bool

	// gorilla allows one concurrent writer
	writeMu sync.Mutex
}

func (w *WebSocketConn) Read(p []byte) (int, error) {
	if w.closed {
		return 0, ErrClosed
	}

	if w.bufOffset < len(w.buf) {
		n := copy(p, w.buf[w.bufOffset:])
		w.bufOffset += n
		return n, nil
	}

	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.closed = true
			return 0, errors.Wrap(err, "websocket read")
		}

		if messageType != websocket.BinaryMessage {
			continue
		}

		w.buf = data
		n := copy(p, w.buf)
		w.bufOffset = n
		return n, nil
	}
}

func (w *WebSocketConn) Write(p []byte) (int, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()
	if err := w.conn.WriteMessage(websocket.BinaryMessage, p); err != nil {
		return 0, errors.Wrap(err, "websocket write")
	}
	return len(p), nil
}

func (w *WebSocketConn) Close() error {
	return w.conn.Close()
}

// OpenWebSocket dials a serial bridge with optional HTTP Basic auth
func OpenWebSocket(ctx context.Context, wsURL, username, password string, skipSSLVerify bool) (*WebSocketConn, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, errors.Wrap(err, "invalid URL")
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, errors.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: 10 * time.Second,
	}
	if u.Scheme == "wss" {
		dialer.TLSClientConfig = &tls.Config{
			InsecureSkipVerify: skipSSLVerify,
		}
	}

	headers := http.Header{}
	if username != "" && password != "" {
		req := http.Request{Header: headers}
		req.SetBasicAuth(username, password)
	}

	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "WebSocket connection failed (HTTP %d)", resp.StatusCode)
		}
		return nil, errors.Wrap(err, "WebSocket connection failed")
	}

	return &WebSocketConn{conn: conn}, nil
}

// GetPassword reads the bridge password from PERISTAT_PASSWORD or prompts
// for it without echo
func GetPassword() (string, error) {
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal; read a plain line
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", errors.Wrap(err, "failed to read password")
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// Open opens the transport cfg selects
func Open(ctx context.Context, cfg Config) (Conn, error) {
	if cfg.URL != "" {
		conn, err := OpenWebSocket(ctx, cfg.URL, cfg.Username, cfg.Password, cfg.SkipSSLVerify)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
	if cfg.Port != "" {
		conn, err := OpenSerial(cfg.Port, cfg.Baud, cfg.ReadTimeout)
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
	return nil, errors.New("either --port or --url must be specified")
}

// Dialer returns a function that opens cfg on every call, suitable for a
// reconnecting link manager
func Dialer(cfg Config) func(ctx context.Context) (Conn, string, error) {
	return func(ctx context.Context) (Conn, string, error) {
		conn, err := Open(ctx, cfg)
		if err != nil {
			return nil, "", err
		}
		return conn, cfg.Describe(), nil
	}
}
