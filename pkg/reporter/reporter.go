// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package reporter forwards CO2 readings to a network endpoint.
//
// Every operation returns a Status code instead of failing loudly; the
// control loop keeps measuring whether or not reports get through.
package reporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Status is the result of a reporter operation
type Status int16

// Status codes
const (
	StatusOK            Status = 0
	StatusNoLink        Status = -1
	StatusConnectFailed Status = -2
	StatusNotConnected  Status = -3
	StatusSendFailed    Status = -4
	StatusEncodeFailed  Status = -5
	StatusUnsupported   Status = -6
	StatusThrottled     Status = -7
)

// String returns a short description of the status
func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusNoLink:
		return "no link"
	case StatusConnectFailed:
		return "connect failed"
	case StatusNotConnected:
		return "not connected"
	case StatusSendFailed:
		return "send failed"
	case StatusEncodeFailed:
		return "encode failed"
	case StatusUnsupported:
		return "unsupported"
	case StatusThrottled:
		return "throttled"
	default:
		return "status(" + strconv.Itoa(int(s)) + ")"
	}
}

// OK reports whether the operation succeeded
func (s Status) OK() bool {
	return s == StatusOK
}

// Conn is an open channel to the collecting server
type Conn interface {
	Send(msg []byte) error
	Close() error
}

// Dialer opens a Conn to host:port
type Dialer interface {
	Dial(ctx context.Context, host string, port uint16) (Conn, error)
}

// DefaultTimeout bounds association and connection attempts
const DefaultTimeout = 10 * time.Second

// Reporter associates to a network, connects to a server and sends packets
type Reporter struct {
	link    Link
	dialer  Dialer
	codec   Codec
	limiter *rate.Limiter
	timeout time.Duration
	log     *log.Entry

	conn   Conn
	server string
}

// Option configures a Reporter
type Option func(*Reporter)

// WithLink sets the network association
func WithLink(l Link) Option {
	return func(r *Reporter) { r.link = l }
}

// WithDialer sets the server transport
func WithDialer(d Dialer) Option {
	return func(r *Reporter) { r.dialer = d }
}

// WithCodec sets the packet encoding used by TrySendDataPacket
func WithCodec(c Codec) Option {
	return func(r *Reporter) { r.codec = c }
}

// WithRateLimit caps sends to perSecond with the given burst. Zero disables.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(r *Reporter) {
		if perSecond <= 0 {
			r.limiter = nil
			return
		}
		if burst <= 0 {
			burst = 1
		}
		r.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithTimeout bounds Join and Dial
func WithTimeout(d time.Duration) Option {
	return func(r *Reporter) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the log entry used for failures
func WithLogger(l *log.Entry) Option {
	return func(r *Reporter) { r.log = l }
}

// New creates a reporter. Defaults: HostLink, TCPDialer, JSON codec.
func New(opts ...Option) *Reporter {
	r := &Reporter{
		link:    &HostLink{},
		dialer:  &TCPDialer{},
		codec:   JSONCodec{},
		timeout: DefaultTimeout,
		log:     log.WithField("component", "reporter"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// TryConnect joins the network identified by ssid
func (r *Reporter) TryConnect(ssid, password string) Status {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.link.Join(ctx, ssid, password); err != nil {
		r.log.WithError(err).WithField("ssid", ssid).Warn("network join failed")
		if errors.Is(err, ErrUnsupported) {
			return StatusUnsupported
		}
		return StatusNoLink
	}
	r.log.WithFields(log.Fields{"ssid": ssid, "ip": r.link.IP()}).Info("network joined")
	return StatusOK
}

// TryConnectWPS joins a network by push-button setup
func (r *Reporter) TryConnectWPS() Status {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.link.JoinWPS(ctx); err != nil {
		r.log.WithError(err).Warn("WPS join failed")
		if errors.Is(err, ErrUnsupported) {
			return StatusUnsupported
		}
		return StatusNoLink
	}
	r.log.WithField("ip", r.link.IP()).Info("network joined via WPS")
	return StatusOK
}

// TryServer opens a connection to host:port, replacing any previous one
func (r *Reporter) TryServer(host string, port uint16) Status {
	if r.link.IP() == nil {
		return StatusNoLink
	}
	r.closeConn()

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	conn, err := r.dialer.Dial(ctx, host, port)
	if err != nil {
		r.log.WithError(err).WithFields(log.Fields{"host": host, "port": port}).Warn("server connect failed")
		return StatusConnectFailed
	}
	r.conn = conn
	r.server = fmt.Sprintf("%s:%d", host, port)
	r.log.WithField("server", r.server).Info("server connected")
	return StatusOK
}

// TrySendDataPacketJSON sends p as a JSON message
func (r *Reporter) TrySendDataPacketJSON(p DataPacketOut) Status {
	return r.send(JSONCodec{}, p)
}

// TrySendDataPacket sends p with the configured codec
func (r *Reporter) TrySendDataPacket(p DataPacketOut) Status {
	return r.send(r.codec, p)
}

func (r *Reporter) send(codec Codec, p DataPacketOut) Status {
	if r.conn == nil {
		return StatusNotConnected
	}
	if r.limiter != nil && !r.limiter.Allow() {
		return StatusThrottled
	}

	msg, err := codec.Encode(p)
	if err != nil {
		r.log.WithError(err).WithField("codec", codec.Name()).Warn("packet encode failed")
		return StatusEncodeFailed
	}

	if err := r.conn.Send(msg); err != nil {
		r.log.WithError(err).WithField("server", r.server).Warn("packet send failed, dropping connection")
		r.closeConn()
		return StatusSendFailed
	}
	return StatusOK
}

// Connected reports whether a server connection is open
func (r *Reporter) Connected() bool {
	return r.conn != nil
}

// Server returns host:port of the open connection
func (r *Reporter) Server() string {
	return r.server
}

// IP returns the address obtained from the link
func (r *Reporter) IP() net.IP {
	return r.link.IP()
}

// PrintIP writes the link address to w
func (r *Reporter) PrintIP(w io.Writer) {
	fmt.Fprintf(w, "IP: %v\n", r.link.IP())
}

// PrintMAC writes the link hardware address to w
func (r *Reporter) PrintMAC(w io.Writer) {
	fmt.Fprintf(w, "MAC: %v\n", r.link.MAC())
}

// Close drops the server connection
func (r *Reporter) Close() error {
	if r.conn == nil {
		return nil
	}
	err := r.conn.Close()
	r.conn = nil
	r.server = ""
	return err
}

func (r *Reporter) closeConn() {
	if err := r.Close(); err != nil {
		r.log.WithError(err).Debug("close failed")
	}
}
