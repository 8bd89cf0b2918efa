// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"context"
	"crypto/tls"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/Thermoquad/ndirstat/pkg/mhz19"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
	"go.bug.st/serial"
	"golang.org/x/term"
)

// Password environment variables
const (
	envBridgePassword = "NDIRSTAT_BRIDGE_PASSWORD"
	envWiFiPassword   = "NDIRSTAT_WIFI_PASSWORD"
)

// SerialConnection wraps a serial port as a sensor transport
type SerialConnection struct {
	port serial.Port
}

// Write implements mhz19.Transport
func (s *SerialConnection) Write(p []byte) (int, error) {
	return s.port.Write(p)
}

// ReadTimeout implements mhz19.Transport. Returns 0, nil when nothing
// arrives before the timeout.
func (s *SerialConnection) ReadTimeout(p []byte, timeout time.Duration) (int, error) {
	if err := s.port.SetReadTimeout(timeout); err != nil {
		return 0, err
	}
	return s.port.Read(p)
}

// Flush implements mhz19.Transport
func (s *SerialConnection) Flush() error {
	return s.port.ResetInputBuffer()
}

// Close closes the port
func (s *SerialConnection) Close() error {
	return s.port.Close()
}

// ErrConnectionClosed is returned when reading from a closed WebSocket connection
var ErrConnectionClosed = fmt.Errorf("websocket connection closed")

// WebSocketConnection carries the UART byte stream over a WebSocket bridge.
// Binary messages are read by a background goroutine so a read timeout does
// not break the connection.
type WebSocketConnection struct {
	conn      *websocket.Conn
	messages  chan []byte
	done      chan struct{}
	closeOnce sync.Once
	err       error // read error, valid once messages is closed
	buf       []byte
}

func newWebSocketConnection(conn *websocket.Conn) *WebSocketConnection {
	w := &WebSocketConnection{
		conn:     conn,
		messages: make(chan []byte, 16),
		done:     make(chan struct{}),
	}
	go w.readLoop()
	return w
}

func (w *WebSocketConnection) readLoop() {
	defer close(w.messages)
	for {
		messageType, data, err := w.conn.ReadMessage()
		if err != nil {
			w.err = err
			return
		}

		// The bridge only forwards UART bytes as binary messages
		if messageType != websocket.BinaryMessage {
			continue
		}

		select {
		case w.messages <- data:
		case <-w.done:
			return
		}
	}
}

// Write implements mhz19.Transport
func (w *WebSocketConnection) Write(p []byte) (int, error) {
	err := w.conn.WriteMessage(websocket.BinaryMessage, p)
	if err != nil {
		return 0, err
	}
	return len(p), nil
}

// ReadTimeout implements mhz19.Transport
func (w *WebSocketConnection) ReadTimeout(p []byte, timeout time.Duration) (int, error) {
	if len(w.buf) > 0 {
		n := copy(p, w.buf)
		w.buf = w.buf[n:]
		return n, nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case data, ok := <-w.messages:
		if !ok {
			return 0, fmt.Errorf("%w: %v", ErrConnectionClosed, w.err)
		}
		n := copy(p, data)
		w.buf = data[n:]
		return n, nil
	case <-timer.C:
		return 0, nil
	}
}

// Flush implements mhz19.Transport by dropping everything already received
func (w *WebSocketConnection) Flush() error {
	w.buf = nil
	for {
		select {
		case _, ok := <-w.messages:
			if !ok {
				return nil
			}
		default:
			return nil
		}
	}
}

// Close closes the connection and stops the reader
func (w *WebSocketConnection) Close() error {
	w.closeOnce.Do(func() { close(w.done) })
	return w.conn.Close()
}

// OpenSerialConnection opens a serial port connection at 8N1
func OpenSerialConnection(portName string, baudRate int) (*SerialConnection, error) {
	mode := &serial.Mode{
		BaudRate: baudRate,
		DataBits: mhz19.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port %s: %v", portName, err)
	}

	return &SerialConnection{port: port}, nil
}

// OpenWebSocketConnection opens a WebSocket connection with HTTP Basic auth
func OpenWebSocketConnection(wsURL, username, password string, skipSSLVerify bool) (*WebSocketConnection, error) {
	u, err := url.Parse(wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %v", err)
	}

	switch u.Scheme {
	case "ws", "wss":
	default:
		return nil, fmt.Errorf("unsupported URL scheme: %s (use ws:// or wss://)", u.Scheme)
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
		credentials := base64.StdEncoding.EncodeToString([]byte(username + ":" + password))
		headers.Set("Authorization", "Basic "+credentials)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	conn, resp, err := dialer.DialContext(ctx, wsURL, headers)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("WebSocket connection failed (HTTP %d): %v", resp.StatusCode, err)
		}
		return nil, fmt.Errorf("WebSocket connection failed: %v", err)
	}

	return newWebSocketConnection(conn), nil
}

// GetPassword retrieves a password from envVar or prompts the user
func GetPassword(envVar, prompt string) (string, error) {
	if pw := os.Getenv(envVar); pw != "" {
		return pw, nil
	}

	fmt.Fprintf(os.Stderr, "%s: ", prompt)

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Fallback to regular input if terminal functions fail
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %v", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// connectionOpener opens the UART selected by the configuration. On hosts
// the device path or bridge URL picks the UART; the pins are only recorded.
type connectionOpener struct {
	serial SerialConfig
	bridge BridgeConfig
	info   string
}

// OpenUART implements mhz19.Opener
func (o *connectionOpener) OpenUART(rx, tx mhz19.Pin, baud int) (mhz19.Transport, error) {
	if o.bridge.URL != "" {
		password := ""
		if o.bridge.Username != "" {
			var err error
			password, err = GetPassword(envBridgePassword, "Bridge password")
			if err != nil {
				return nil, err
			}
		}

		conn, err := OpenWebSocketConnection(o.bridge.URL, o.bridge.Username, password, o.bridge.NoSSLVerify)
		if err != nil {
			return nil, err
		}
		o.info = fmt.Sprintf("WebSocket: %s", o.bridge.URL)
		return conn, nil
	}

	if o.serial.Port != "" {
		if o.serial.Baud != 0 && o.serial.Baud != baud {
			log.WithFields(log.Fields{"baud": o.serial.Baud, "sensor": baud}).Warn("baud rate differs from the sensor's fixed rate")
			baud = o.serial.Baud
		}
		conn, err := OpenSerialConnection(o.serial.Port, baud)
		if err != nil {
			return nil, err
		}
		o.info = fmt.Sprintf("Serial: %s @ %d baud (rx=%d tx=%d)", o.serial.Port, baud, rx, tx)
		return conn, nil
	}

	return nil, fmt.Errorf("either --port or --url must be specified")
}

// OpenSensor creates a sensor on the configured UART and initializes it.
// trace, when not nil, receives every raw exchange.
func OpenSensor(trace mhz19.TraceFunc) (*mhz19.Sensor, string, error) {
	opener := &connectionOpener{serial: cfg.Serial, bridge: cfg.Bridge}

	opts := []mhz19.Option{
		mhz19.WithOpener(opener),
		mhz19.WithReadTimeout(cfg.Serial.Timeout),
	}
	if trace != nil {
		opts = append(opts, mhz19.WithTrace(trace))
	}

	sensor := mhz19.NewSensor(opts...)
	if err := sensor.Initialize(mhz19.Pin(cfg.Serial.RX), mhz19.Pin(cfg.Serial.TX)); err != nil {
		return nil, "", err
	}
	return sensor, opener.info, nil
}

// OpenTransport opens the configured UART without a sensor, for sniffing
func OpenTransport() (mhz19.Transport, string, error) {
	opener := &connectionOpener{serial: cfg.Serial, bridge: cfg.Bridge}
	t, err := opener.OpenUART(mhz19.Pin(cfg.Serial.RX), mhz19.Pin(cfg.Serial.TX), mhz19.BaudRate)
	if err != nil {
		return nil, "", err
	}
	return t, opener.info, nil
}
