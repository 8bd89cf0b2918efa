// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package reporter

import (
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"strconv"
	"time"
)

// MaxFrameLength is the largest message a length-prefixed TCP connection
// can carry.
const MaxFrameLength = 0xFFFF

// TCPDialer connects over plain TCP. By default each message is followed by
// a newline. With LengthPrefix set, each message is preceded by its length as
// a 2-byte big-endian integer instead, which binary codecs need since their
// payloads may contain 0x0A.
type TCPDialer struct {
	// WriteTimeout bounds each Send. Zero means no deadline.
	WriteTimeout time.Duration

	LengthPrefix bool
}

// NewTCPDialer returns a dialer framed for the given codec: newline
// delimited for text codecs, length-prefixed for binary ones.
func NewTCPDialer(codec Codec, writeTimeout time.Duration) *TCPDialer {
	return &TCPDialer{
		WriteTimeout: writeTimeout,
		LengthPrefix: IsBinary(codec),
	}
}

// Dial implements Dialer
func (d *TCPDialer) Dial(ctx context.Context, host string, port uint16) (Conn, error) {
	var nd net.Dialer
	c, err := nd.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		return nil, err
	}
	return &tcpConn{conn: c, writeTimeout: d.WriteTimeout, lengthPrefix: d.LengthPrefix}, nil
}

type tcpConn struct {
	conn         net.Conn
	writeTimeout time.Duration
	lengthPrefix bool
}

func (t *tcpConn) Send(msg []byte) error {
	buf, err := frameTCP(msg, t.lengthPrefix)
	if err != nil {
		return err
	}
	if t.writeTimeout > 0 {
		if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeTimeout)); err != nil {
			return err
		}
	}
	_, err = t.conn.Write(buf)
	return err
}

func (t *tcpConn) Close() error {
	return t.conn.Close()
}

func frameTCP(msg []byte, lengthPrefix bool) ([]byte, error) {
	if !lengthPrefix {
		buf := make([]byte, 0, len(msg)+1)
		buf = append(buf, msg...)
		return append(buf, '\n'), nil
	}
	if len(msg) > MaxFrameLength {
		return nil, fmt.Errorf("message too long: %d bytes (max %d)", len(msg), MaxFrameLength)
	}
	buf := make([]byte, 2, len(msg)+2)
	binary.BigEndian.PutUint16(buf, uint16(len(msg)))
	return append(buf, msg...), nil
}
